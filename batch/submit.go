// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package batch

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"time"

	metrics "github.com/armon/go-metrics"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsbatch "github.com/aws/aws-sdk-go-v2/service/batch"
	"github.com/aws/aws-sdk-go-v2/service/batch/types"
	"github.com/google/uuid"
)

// dryRunPrefix marks job IDs returned when submission is disabled.
const dryRunPrefix = "dry-run-"

// Environment variables read by the worker image.
const (
	envWorkerConcurrency = "WORKER_CONCURRENCY"
	envWorkerMode        = "WORKER_MODE"
	envAutoExit          = "AUTO_EXIT_WHEN_IDLE"
	envIdleTimeout       = "IDLE_TIMEOUT_SECONDS"
	envAssetURLPrefix    = "ASSET_URL_PREFIX"

	workerModeBatch = "batch"
)

// Tags added to every job in addition to the configured ones.
const (
	tagManagedBy  = "ManagedBy"
	tagQueueDepth = "QueueDepthAtSubmit"

	managedByValue = "transcode-autoscaler"
)

var nowFunc = time.Now

// ProvisionRequest describes a single worker job.
type ProvisionRequest struct {
	JobName        string
	Concurrency    int
	Environment    map[string]string
	Tags           map[string]string
	TimeoutSeconds int32
}

func (c *Client) newProvisionRequest(concurrency, queueDepth int) ProvisionRequest {
	env := map[string]string{
		envWorkerConcurrency: strconv.Itoa(concurrency),
		envWorkerMode:        workerModeBatch,
		envAutoExit:          "true",
		envIdleTimeout:       strconv.Itoa(int(c.cfg.IdleTimeout.Seconds())),
	}
	if c.cfg.AssetURLPrefix != "" {
		env[envAssetURLPrefix] = c.cfg.AssetURLPrefix
	}

	tags := make(map[string]string, len(c.cfg.Tags)+2)
	maps.Copy(tags, c.cfg.Tags)
	tags[tagManagedBy] = managedByValue
	tags[tagQueueDepth] = strconv.Itoa(queueDepth)

	return ProvisionRequest{
		JobName:        fmt.Sprintf("%s-%d-%s", c.cfg.JobNamePrefix, nowFunc().UnixMilli(), uuid.NewString()[:8]),
		Concurrency:    concurrency,
		Environment:    env,
		Tags:           tags,
		TimeoutSeconds: int32(c.cfg.WorkerTimeout.Seconds()),
	}
}

func (c *Client) submitJobInput(req ProvisionRequest) *awsbatch.SubmitJobInput {
	env := make([]types.KeyValuePair, 0, len(req.Environment))
	for _, k := range slices.Sorted(maps.Keys(req.Environment)) {
		env = append(env, types.KeyValuePair{Name: aws.String(k), Value: aws.String(req.Environment[k])})
	}

	return &awsbatch.SubmitJobInput{
		JobName:       aws.String(req.JobName),
		JobQueue:      aws.String(c.cfg.JobQueue),
		JobDefinition: aws.String(c.cfg.JobDefinition),
		ContainerOverrides: &types.ContainerOverrides{
			Environment: env,
		},
		Timeout: &types.JobTimeout{
			AttemptDurationSeconds: aws.Int32(req.TimeoutSeconds),
		},
		Tags:          req.Tags,
		PropagateTags: aws.Bool(true),
	}
}

// Submit starts one batch worker running at the passed concurrency and
// returns its job ID. queueDepth is recorded as a tag on the job.
func (c *Client) Submit(ctx context.Context, concurrency, queueDepth int) (string, error) {
	req := c.newProvisionRequest(concurrency, queueDepth)
	log := c.log.With("job_name", req.JobName)

	if c.cfg.DryRun {
		log.Info("dry run enabled, not submitting job", "concurrency", concurrency)
		return dryRunPrefix + req.JobName, nil
	}

	defer metrics.MeasureSince([]string{"batch", "submit_ms"}, time.Now())

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	out, err := c.api.SubmitJob(ctx, c.submitJobInput(req))
	if err != nil {
		return "", fmt.Errorf("failed to submit job %s: %w", req.JobName, err)
	}

	id := aws.ToString(out.JobId)
	if id == "" {
		return "", fmt.Errorf("submit of job %s returned no job ID", req.JobName)
	}

	log.Debug("submitted job", "job_id", id, "concurrency", concurrency)
	return id, nil
}
