// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package config

import (
	"fmt"
	"strconv"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/joho/godotenv"
	"github.com/reelcast/transcode-autoscaler/helper/ptr"
)

// Environment variables read by LoadEnv.
const (
	EnvBrokerURL          = "AMQP_URL"
	EnvQueueName          = "TRANSCODE_QUEUE_NAME"
	EnvBatchJobQueue      = "AWS_BATCH_JOB_QUEUE"
	EnvBatchJobDefinition = "AWS_BATCH_JOB_DEFINITION"
	EnvAWSRegion          = "AWS_REGION"
	EnvAWSAccessKeyID     = "AWS_ACCESS_KEY_ID"
	EnvAWSSecretAccessKey = "AWS_SECRET_ACCESS_KEY"
	EnvAWSSessionToken    = "AWS_SESSION_TOKEN"
	EnvAssetURLPrefix     = "ASSET_URL_PREFIX"

	EnvEvaluationInterval               = "AUTOSCALER_EVALUATION_INTERVAL_SECONDS"
	EnvCooldown                         = "AUTOSCALER_COOLDOWN_SECONDS"
	EnvQueueThresholdWithLocalWorker    = "AUTOSCALER_QUEUE_THRESHOLD_WITH_LOCAL_WORKER"
	EnvQueueThresholdWithoutLocalWorker = "AUTOSCALER_QUEUE_THRESHOLD_WITHOUT_LOCAL_WORKER"
	EnvLocalWorkerConcurrency           = "AUTOSCALER_LOCAL_WORKER_CONCURRENCY"
	EnvBatchWorkerConcurrency           = "AUTOSCALER_BATCH_WORKER_CONCURRENCY"
	EnvMaxWorkers                       = "AUTOSCALER_MAX_WORKERS"
	EnvWorkerTimeout                    = "AUTOSCALER_WORKER_TIMEOUT_MINUTES"
	EnvWorkerIdleTimeout                = "AUTOSCALER_WORKER_IDLE_TIMEOUT_SECONDS"
	EnvDryRun                           = "AUTOSCALER_DRY_RUN"
)

// LookupFunc reads an environment variable. os.LookupEnv satisfies it.
type LookupFunc func(key string) (string, bool)

// LoadEnvFile loads the dotenv file at path into the process environment.
// Variables which are already set are not overridden.
func LoadEnvFile(path string) error {
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}

// LoadEnv builds a partial configuration from the environment, suitable for
// merging on top of the file configuration. Empty variables are ignored.
func LoadEnv(lookup LookupFunc) (*Agent, error) {
	var mErr *multierror.Error

	get := func(key string) (string, bool) {
		v, ok := lookup(key)
		return v, ok && v != ""
	}

	positiveInt := func(key string, out *int) {
		v, ok := get(key)
		if !ok {
			return
		}
		i, err := strconv.Atoi(v)
		if err != nil || i <= 0 {
			mErr = multierror.Append(mErr, fmt.Errorf("%s must be a positive integer, got %q", key, v))
			return
		}
		*out = i
	}

	positiveDuration := func(key string, unit time.Duration, out *time.Duration) {
		var i int
		positiveInt(key, &i)
		if i > 0 {
			*out = time.Duration(i) * unit
		}
	}

	cfg := &Agent{
		Broker:  &Broker{},
		Batch:   &Batch{},
		Scaling: &Scaling{},
	}

	strs := []struct {
		key string
		out *string
	}{
		{EnvBrokerURL, &cfg.Broker.URL},
		{EnvQueueName, &cfg.Broker.Queue},
		{EnvBatchJobQueue, &cfg.Batch.JobQueue},
		{EnvBatchJobDefinition, &cfg.Batch.JobDefinition},
		{EnvAWSRegion, &cfg.Batch.Region},
		{EnvAWSAccessKeyID, &cfg.Batch.AccessKeyID},
		{EnvAWSSecretAccessKey, &cfg.Batch.SecretAccessKey},
		{EnvAWSSessionToken, &cfg.Batch.SessionToken},
		{EnvAssetURLPrefix, &cfg.Scaling.AssetURLPrefix},
	}
	for _, s := range strs {
		if v, ok := get(s.key); ok {
			*s.out = v
		}
	}

	positiveInt(EnvQueueThresholdWithLocalWorker, &cfg.Scaling.QueueThresholdWithLocalWorker)
	positiveInt(EnvQueueThresholdWithoutLocalWorker, &cfg.Scaling.QueueThresholdWithoutLocalWorker)
	positiveInt(EnvLocalWorkerConcurrency, &cfg.Scaling.LocalWorkerConcurrency)
	positiveInt(EnvBatchWorkerConcurrency, &cfg.Scaling.BatchWorkerConcurrency)
	positiveInt(EnvMaxWorkers, &cfg.Scaling.MaxWorkers)

	positiveDuration(EnvEvaluationInterval, time.Second, &cfg.Scaling.EvaluationInterval)
	positiveDuration(EnvCooldown, time.Second, &cfg.Scaling.Cooldown)
	positiveDuration(EnvWorkerTimeout, time.Minute, &cfg.Scaling.WorkerTimeout)
	positiveDuration(EnvWorkerIdleTimeout, time.Second, &cfg.Scaling.WorkerIdleTimeout)

	if v, ok := get(EnvDryRun); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			mErr = multierror.Append(mErr, fmt.Errorf("%s must be a boolean, got %q", EnvDryRun, v))
		} else {
			cfg.Scaling.DryRun = ptr.Of(b)
		}
	}

	if err := mErr.ErrorOrNil(); err != nil {
		return nil, err
	}
	return cfg, nil
}
