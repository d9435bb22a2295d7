// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package batch

import (
	"context"
	"fmt"
	"time"

	metrics "github.com/armon/go-metrics"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsbatch "github.com/aws/aws-sdk-go-v2/service/batch"
	"github.com/aws/aws-sdk-go-v2/service/batch/types"
)

// FleetStats is the number of batch workers on the job queue.
type FleetStats struct {
	Running int

	// Pending counts jobs which are RUNNABLE and waiting for compute.
	Pending int
}

// Inspect counts the RUNNING and RUNNABLE jobs on the configured job queue.
// On error the returned stats are zero.
func (c *Client) Inspect(ctx context.Context) (FleetStats, error) {
	defer metrics.MeasureSince([]string{"batch", "inspect_ms"}, time.Now())

	running, err := c.countJobs(ctx, types.JobStatusRunning)
	if err != nil {
		return FleetStats{}, err
	}

	pending, err := c.countJobs(ctx, types.JobStatusRunnable)
	if err != nil {
		return FleetStats{}, err
	}

	c.log.Trace("inspected fleet", "running", running, "pending", pending)
	return FleetStats{Running: running, Pending: pending}, nil
}

func (c *Client) countJobs(ctx context.Context, status types.JobStatus) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	input := awsbatch.ListJobsInput{
		JobQueue:  aws.String(c.cfg.JobQueue),
		JobStatus: status,
	}

	var count int
	paginator := awsbatch.NewListJobsPaginator(c.api, &input)

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return 0, fmt.Errorf("failed to list %s jobs: %w", status, err)
		}
		count += len(page.JobSummaryList)
	}

	return count, nil
}
