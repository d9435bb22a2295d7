// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/hashicorp/hcl/v2/hclsimple"
	"github.com/mitchellh/copystructure"
	"github.com/reelcast/transcode-autoscaler/batch"
	"github.com/reelcast/transcode-autoscaler/broker"
	"github.com/reelcast/transcode-autoscaler/helper/file"
	"github.com/reelcast/transcode-autoscaler/helper/ptr"
	"github.com/reelcast/transcode-autoscaler/helper/ratelimit"
	"github.com/reelcast/transcode-autoscaler/scaler"
)

// Agent is the overall configuration of an autoscaler agent and includes all
// required information for it to start successfully.
//
// All time.Duration values should have two parts:
//   - a string field tagged with an hcl:"foo" and json:"-"
//   - a time.Duration field in the same struct which is populated within the
//     parseFile if the HCL param is populated.
//
// The string reference of a duration can include "ns", "us" (or "µs"), "ms",
// "s", "m", "h" suffixes.
type Agent struct {

	// LogLevel is the level of the logs to emit.
	LogLevel string `hcl:"log_level,optional"`

	// LogJson enables log output in JSON format.
	LogJson bool `hcl:"log_json,optional"`

	// EnableDebug is used to enable debugging HTTP endpoints.
	EnableDebug bool `hcl:"enable_debug,optional"`

	// HTTP is the configuration used to setup the HTTP API server.
	HTTP *HTTP `hcl:"http,block"`

	// Broker is the configuration used to probe the job queue.
	Broker *Broker `hcl:"broker,block"`

	// Batch is the configuration used to inspect and grow the AWS Batch
	// worker fleet.
	Batch *Batch `hcl:"batch,block"`

	// Scaling holds the scaling decision parameters.
	Scaling *Scaling `hcl:"scaling,block"`

	// Telemetry is the configuration used to setup metrics collection.
	Telemetry *Telemetry `hcl:"telemetry,block"`
}

// HTTP contains all configuration details for the running HTTP API server.
type HTTP struct {

	// BindAddress is the tcp address to bind to.
	BindAddress string `hcl:"bind_address,optional"`

	// BindPort is the port used to run the HTTP server.
	BindPort int `hcl:"bind_port,optional"`
}

// Broker holds the AMQP broker connection details.
type Broker struct {

	// URL is the AMQP URL, including credentials and vhost.
	URL string `hcl:"url,optional"`

	// Queue is the name of the queue transcode jobs are published to.
	Queue string `hcl:"queue,optional"`

	// Timeout bounds a single queue probe.
	Timeout    time.Duration
	TimeoutHCL string `hcl:"timeout,optional" json:"-"`
}

// Batch holds the AWS Batch job and client configuration.
type Batch struct {

	// JobQueue and JobDefinition identify where and how workers are run.
	// Both are required for the scaler to be enabled.
	JobQueue      string `hcl:"job_queue,optional"`
	JobDefinition string `hcl:"job_definition,optional"`

	// Region is the AWS region of the job queue.
	Region string `hcl:"region,optional"`

	// AccessKeyID, SecretAccessKey and SessionToken are optional static
	// credentials. When unset the default AWS credential chain is used.
	AccessKeyID     string `hcl:"access_key_id,optional"`
	SecretAccessKey string `hcl:"secret_access_key,optional"`
	SessionToken    string `hcl:"session_token,optional"`

	// JobNamePrefix is prepended to submitted job names.
	JobNamePrefix string `hcl:"job_name_prefix,optional"`

	// RateLimit is the maximum number of AWS API requests per second.
	RateLimit int `hcl:"rate_limit,optional"`

	// Timeout bounds each AWS API call.
	Timeout    time.Duration
	TimeoutHCL string `hcl:"timeout,optional" json:"-"`

	// Tags are added to every submitted job.
	Tags map[string]string `hcl:"tags,optional"`
}

// Scaling holds the parameters of the scaling decision.
type Scaling struct {

	// EvaluationInterval is the time between two scheduled evaluations.
	EvaluationInterval    time.Duration
	EvaluationIntervalHCL string `hcl:"evaluation_interval,optional" json:"-"`

	// Cooldown is the minimum time between two scale up actions.
	Cooldown    time.Duration
	CooldownHCL string `hcl:"cooldown,optional" json:"-"`

	QueueThresholdWithLocalWorker    int `hcl:"queue_threshold_with_local_worker,optional"`
	QueueThresholdWithoutLocalWorker int `hcl:"queue_threshold_without_local_worker,optional"`
	LocalWorkerConcurrency           int `hcl:"local_worker_concurrency,optional"`
	BatchWorkerConcurrency           int `hcl:"batch_worker_concurrency,optional"`
	MaxWorkers                       int `hcl:"max_workers,optional"`

	// WorkerTimeout is the maximum run time of a single batch worker.
	WorkerTimeout    time.Duration
	WorkerTimeoutHCL string `hcl:"worker_timeout,optional" json:"-"`

	// WorkerIdleTimeout is how long a batch worker waits for jobs before
	// exiting.
	WorkerIdleTimeout    time.Duration
	WorkerIdleTimeoutHCL string `hcl:"worker_idle_timeout,optional" json:"-"`

	// AssetURLPrefix is passed to batch workers to build public asset links.
	AssetURLPrefix string `hcl:"asset_url_prefix,optional"`

	// DryRun logs scaling decisions without submitting jobs. Nil means
	// unset; an explicit false overrides an earlier true on merge.
	DryRun *bool `hcl:"dry_run,optional"`
}

// IsDryRun reports whether dry run mode is enabled.
func (s *Scaling) IsDryRun() bool {
	return s != nil && s.DryRun != nil && *s.DryRun
}

// Telemetry holds the user specified configuration for metrics collection.
type Telemetry struct {

	// PrometheusRetentionTime is the retention time for prometheus metrics if
	// greater than 0.
	PrometheusRetentionTime    time.Duration
	PrometheusRetentionTimeHCL string `hcl:"prometheus_retention_time,optional" json:"-"`

	// PrometheusMetrics specifies whether the agent should make Prometheus
	// formatted metrics available.
	PrometheusMetrics bool `hcl:"prometheus_metrics,optional"`

	// DisableHostname specifies if gauge values should be prefixed with the
	// local hostname.
	DisableHostname bool `hcl:"disable_hostname,optional"`

	// EnableHostnameLabel adds the hostname as a label on all metrics.
	EnableHostnameLabel bool `hcl:"enable_hostname_label,optional"`

	// CollectionInterval specifies the time interval at which the agent
	// collects telemetry data.
	CollectionInterval    time.Duration
	CollectionIntervalHCL string `hcl:"collection_interval,optional" json:"-"`

	// StatsdAddr specifies the address of a statsd server to forward metrics
	// to.
	StatsdAddr string `hcl:"statsd_address,optional"`

	// DogStatsDAddr specifies the address of a DataDog statsd server to
	// forward metrics to.
	DogStatsDAddr string `hcl:"dogstatsd_address,optional"`

	// DogStatsDTags specifies a list of global tags that will be added to all
	// telemetry packets sent to DogStatsD.
	DogStatsDTags []string `hcl:"dogstatsd_tags,optional"`
}

const (
	// defaultLogLevel is the default log level used for the agent.
	defaultLogLevel = "info"

	// defaultHTTPBindAddress is the default address used for the HTTP API
	// server.
	defaultHTTPBindAddress = "127.0.0.1"

	// defaultHTTPBindPort is the default port used for the HTTP API server.
	defaultHTTPBindPort = 8080

	defaultEvaluationInterval               = 30 * time.Second
	defaultCooldown                         = 120 * time.Second
	defaultQueueThresholdWithLocalWorker    = 2
	defaultQueueThresholdWithoutLocalWorker = 1
	defaultLocalWorkerConcurrency           = 1
	defaultBatchWorkerConcurrency           = 2
	defaultMaxWorkers                       = 10

	// defaultTelemetryCollectionInterval is the default telemetry metrics
	// collection interval.
	defaultTelemetryCollectionInterval = 1 * time.Second
)

// Default is used to generate a new default agent configuration.
func Default() *Agent {
	return &Agent{
		LogLevel: defaultLogLevel,
		HTTP: &HTTP{
			BindAddress: defaultHTTPBindAddress,
			BindPort:    defaultHTTPBindPort,
		},
		Broker: &Broker{
			URL:     broker.DefaultURL,
			Queue:   broker.DefaultQueue,
			Timeout: broker.DefaultTimeout,
		},
		Batch: &Batch{
			Region:        batch.DefaultRegion,
			JobNamePrefix: batch.DefaultJobNamePrefix,
			RateLimit:     batch.DefaultRateLimit,
			Timeout:       batch.DefaultTimeout,
		},
		Scaling: &Scaling{
			EvaluationInterval:               defaultEvaluationInterval,
			Cooldown:                         defaultCooldown,
			QueueThresholdWithLocalWorker:    defaultQueueThresholdWithLocalWorker,
			QueueThresholdWithoutLocalWorker: defaultQueueThresholdWithoutLocalWorker,
			LocalWorkerConcurrency:           defaultLocalWorkerConcurrency,
			BatchWorkerConcurrency:           defaultBatchWorkerConcurrency,
			MaxWorkers:                       defaultMaxWorkers,
			WorkerTimeout:                    batch.DefaultWorkerTimeout,
			WorkerIdleTimeout:                batch.DefaultIdleTimeout,
			DryRun:                           ptr.Of(false),
		},
		Telemetry: &Telemetry{
			CollectionInterval: defaultTelemetryCollectionInterval,
		},
	}
}

// Merge is used to merge two agent configurations.
func (a *Agent) Merge(b *Agent) *Agent {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}

	result := *a

	if b.EnableDebug {
		result.EnableDebug = true
	}
	if b.LogLevel != "" {
		result.LogLevel = b.LogLevel
	}
	if b.LogJson {
		result.LogJson = true
	}

	if b.HTTP != nil {
		result.HTTP = result.HTTP.merge(b.HTTP)
	}

	if b.Broker != nil {
		result.Broker = result.Broker.merge(b.Broker)
	}

	if b.Batch != nil {
		result.Batch = result.Batch.merge(b.Batch)
	}

	if b.Scaling != nil {
		result.Scaling = result.Scaling.merge(b.Scaling)
	}

	if b.Telemetry != nil {
		result.Telemetry = result.Telemetry.merge(b.Telemetry)
	}

	return &result
}

// Validate checks the fully merged configuration.
func (a *Agent) Validate() error {
	var result *multierror.Error

	if a.HTTP != nil {
		if a.HTTP.BindPort < 0 || a.HTTP.BindPort > 65535 {
			result = multierror.Append(result, fmt.Errorf("http.bind_port %d is out of range", a.HTTP.BindPort))
		}
	}

	if a.Batch != nil {
		if err := a.Batch.validate(); err != nil {
			result = multierror.Append(result, multierror.Prefix(err, "batch:"))
		}
	}

	if a.Scaling != nil {
		if err := a.Scaling.validate(); err != nil {
			result = multierror.Append(result, multierror.Prefix(err, "scaling:"))
		}
	}

	return result.ErrorOrNil()
}

// MissingSettings returns the names of the settings without which the
// scaler cannot run. Credentials are not included as they may come from the
// default AWS credential chain.
func (a *Agent) MissingSettings() []string {
	var missing []string

	if a.Batch == nil || a.Batch.JobQueue == "" {
		missing = append(missing, "batch.job_queue ("+EnvBatchJobQueue+")")
	}
	if a.Batch == nil || a.Batch.JobDefinition == "" {
		missing = append(missing, "batch.job_definition ("+EnvBatchJobDefinition+")")
	}

	return missing
}

// ScalerConfig returns the scaling parameters used by the scaler engine.
func (a *Agent) ScalerConfig() scaler.Config {
	s := a.Scaling
	return scaler.Config{
		EvaluationInterval:               s.EvaluationInterval,
		Cooldown:                         s.Cooldown,
		QueueThresholdWithLocalWorker:    s.QueueThresholdWithLocalWorker,
		QueueThresholdWithoutLocalWorker: s.QueueThresholdWithoutLocalWorker,
		LocalWorkerConcurrency:           s.LocalWorkerConcurrency,
		BatchWorkerConcurrency:           s.BatchWorkerConcurrency,
		MaxWorkers:                       s.MaxWorkers,
		DryRun:                           s.IsDryRun(),
	}
}

// BrokerConfig returns the queue probe configuration.
func (a *Agent) BrokerConfig() broker.Config {
	return broker.Config{
		URL:     a.Broker.URL,
		Queue:   a.Broker.Queue,
		Timeout: a.Broker.Timeout,
	}
}

// BatchConfig returns the AWS Batch client configuration.
func (a *Agent) BatchConfig() batch.Config {
	return batch.Config{
		JobQueue:        a.Batch.JobQueue,
		JobDefinition:   a.Batch.JobDefinition,
		Region:          a.Batch.Region,
		AccessKeyID:     a.Batch.AccessKeyID,
		SecretAccessKey: a.Batch.SecretAccessKey,
		SessionToken:    a.Batch.SessionToken,
		JobNamePrefix:   a.Batch.JobNamePrefix,
		AssetURLPrefix:  a.Scaling.AssetURLPrefix,
		WorkerTimeout:   a.Scaling.WorkerTimeout,
		IdleTimeout:     a.Scaling.WorkerIdleTimeout,
		Timeout:         a.Batch.Timeout,
		RateLimit:       a.Batch.RateLimit,
		Tags:            copyTags(a.Batch.Tags),
		DryRun:          a.Scaling.IsDryRun(),
	}
}

func (h *HTTP) merge(b *HTTP) *HTTP {
	if h == nil {
		return b
	}

	result := *h

	if b.BindAddress != "" {
		result.BindAddress = b.BindAddress
	}
	if b.BindPort != 0 {
		result.BindPort = b.BindPort
	}

	return &result
}

func (br *Broker) merge(b *Broker) *Broker {
	if br == nil {
		return b
	}

	result := *br

	if b.URL != "" {
		result.URL = b.URL
	}
	if b.Queue != "" {
		result.Queue = b.Queue
	}
	if b.Timeout != 0 {
		result.Timeout = b.Timeout
	}

	return &result
}

func (ba *Batch) merge(b *Batch) *Batch {
	if ba == nil {
		return b.copy()
	}

	result := *ba
	result.Tags = copyTags(ba.Tags)

	if b.JobQueue != "" {
		result.JobQueue = b.JobQueue
	}
	if b.JobDefinition != "" {
		result.JobDefinition = b.JobDefinition
	}
	if b.Region != "" {
		result.Region = b.Region
	}
	if b.AccessKeyID != "" {
		result.AccessKeyID = b.AccessKeyID
	}
	if b.SecretAccessKey != "" {
		result.SecretAccessKey = b.SecretAccessKey
	}
	if b.SessionToken != "" {
		result.SessionToken = b.SessionToken
	}
	if b.JobNamePrefix != "" {
		result.JobNamePrefix = b.JobNamePrefix
	}
	if b.RateLimit != 0 {
		result.RateLimit = b.RateLimit
	}
	if b.Timeout != 0 {
		result.Timeout = b.Timeout
	}
	if len(b.Tags) != 0 {
		if result.Tags == nil {
			result.Tags = make(map[string]string, len(b.Tags))
		}
		for k, v := range b.Tags {
			result.Tags[k] = v
		}
	}

	return &result
}

func (ba *Batch) copy() *Batch {
	if ba == nil {
		return nil
	}

	c := *ba
	c.Tags = copyTags(ba.Tags)
	return &c
}

func (ba *Batch) validate() error {
	var mErr *multierror.Error

	if ba.RateLimit < 1 && ba.RateLimit != ratelimit.Unlimited {
		mErr = multierror.Append(mErr, fmt.Errorf("rate_limit must be positive or -1 for unlimited, got %d", ba.RateLimit))
	}
	if ba.Timeout <= 0 {
		mErr = multierror.Append(mErr, fmt.Errorf("timeout must be positive, got %s", ba.Timeout))
	}
	if (ba.AccessKeyID == "") != (ba.SecretAccessKey == "") {
		mErr = multierror.Append(mErr, fmt.Errorf("access_key_id and secret_access_key must be set together"))
	}

	return mErr.ErrorOrNil()
}

func (s *Scaling) merge(b *Scaling) *Scaling {
	if s == nil {
		return b
	}

	result := *s

	if b.EvaluationInterval != 0 {
		result.EvaluationInterval = b.EvaluationInterval
	}
	if b.Cooldown != 0 {
		result.Cooldown = b.Cooldown
	}
	if b.QueueThresholdWithLocalWorker != 0 {
		result.QueueThresholdWithLocalWorker = b.QueueThresholdWithLocalWorker
	}
	if b.QueueThresholdWithoutLocalWorker != 0 {
		result.QueueThresholdWithoutLocalWorker = b.QueueThresholdWithoutLocalWorker
	}
	if b.LocalWorkerConcurrency != 0 {
		result.LocalWorkerConcurrency = b.LocalWorkerConcurrency
	}
	if b.BatchWorkerConcurrency != 0 {
		result.BatchWorkerConcurrency = b.BatchWorkerConcurrency
	}
	if b.MaxWorkers != 0 {
		result.MaxWorkers = b.MaxWorkers
	}
	if b.WorkerTimeout != 0 {
		result.WorkerTimeout = b.WorkerTimeout
	}
	if b.WorkerIdleTimeout != 0 {
		result.WorkerIdleTimeout = b.WorkerIdleTimeout
	}
	if b.AssetURLPrefix != "" {
		result.AssetURLPrefix = b.AssetURLPrefix
	}
	if b.DryRun != nil {
		result.DryRun = ptr.Of(*b.DryRun)
	}

	return &result
}

func (s *Scaling) validate() error {
	var mErr *multierror.Error

	positiveDurations := []struct {
		name string
		val  time.Duration
	}{
		{"evaluation_interval", s.EvaluationInterval},
		{"cooldown", s.Cooldown},
		{"worker_timeout", s.WorkerTimeout},
		{"worker_idle_timeout", s.WorkerIdleTimeout},
	}
	for _, d := range positiveDurations {
		if d.val <= 0 {
			mErr = multierror.Append(mErr, fmt.Errorf("%s must be positive, got %s", d.name, d.val))
		}
	}

	positiveInts := []struct {
		name string
		val  int
	}{
		{"queue_threshold_with_local_worker", s.QueueThresholdWithLocalWorker},
		{"queue_threshold_without_local_worker", s.QueueThresholdWithoutLocalWorker},
		{"local_worker_concurrency", s.LocalWorkerConcurrency},
		{"batch_worker_concurrency", s.BatchWorkerConcurrency},
		{"max_workers", s.MaxWorkers},
	}
	for _, i := range positiveInts {
		if i.val <= 0 {
			mErr = multierror.Append(mErr, fmt.Errorf("%s must be positive, got %d", i.name, i.val))
		}
	}

	if s.QueueThresholdWithoutLocalWorker > s.QueueThresholdWithLocalWorker {
		mErr = multierror.Append(mErr, fmt.Errorf(
			"queue_threshold_without_local_worker (%d) must not exceed queue_threshold_with_local_worker (%d)",
			s.QueueThresholdWithoutLocalWorker, s.QueueThresholdWithLocalWorker))
	}

	return mErr.ErrorOrNil()
}

func (t *Telemetry) merge(b *Telemetry) *Telemetry {
	if t == nil {
		return b
	}

	result := *t

	if b.StatsdAddr != "" {
		result.StatsdAddr = b.StatsdAddr
	}
	if b.DogStatsDAddr != "" {
		result.DogStatsDAddr = b.DogStatsDAddr
	}
	if b.DogStatsDTags != nil {
		result.DogStatsDTags = b.DogStatsDTags
	}
	if b.PrometheusMetrics {
		result.PrometheusMetrics = b.PrometheusMetrics
	}
	if b.PrometheusRetentionTime != 0 {
		result.PrometheusRetentionTime = b.PrometheusRetentionTime
	}
	if b.DisableHostname {
		result.DisableHostname = true
	}
	if b.EnableHostnameLabel {
		result.EnableHostnameLabel = true
	}
	if b.CollectionInterval != 0 {
		result.CollectionInterval = b.CollectionInterval
	}

	return &result
}

func copyTags(tags map[string]string) map[string]string {
	if tags == nil {
		return nil
	}
	i, err := copystructure.Copy(tags)
	if err != nil {
		panic(err.Error())
	}
	return i.(map[string]string)
}

// parseDurations populates the time.Duration fields from their HCL string
// counterparts.
func parseDurations(cfg *Agent) error {
	type durationField struct {
		name string
		in   string
		out  *time.Duration
	}

	var fields []durationField

	if cfg.Broker != nil {
		fields = append(fields, durationField{"broker.timeout", cfg.Broker.TimeoutHCL, &cfg.Broker.Timeout})
	}
	if cfg.Batch != nil {
		fields = append(fields, durationField{"batch.timeout", cfg.Batch.TimeoutHCL, &cfg.Batch.Timeout})
	}
	if cfg.Scaling != nil {
		fields = append(fields,
			durationField{"scaling.evaluation_interval", cfg.Scaling.EvaluationIntervalHCL, &cfg.Scaling.EvaluationInterval},
			durationField{"scaling.cooldown", cfg.Scaling.CooldownHCL, &cfg.Scaling.Cooldown},
			durationField{"scaling.worker_timeout", cfg.Scaling.WorkerTimeoutHCL, &cfg.Scaling.WorkerTimeout},
			durationField{"scaling.worker_idle_timeout", cfg.Scaling.WorkerIdleTimeoutHCL, &cfg.Scaling.WorkerIdleTimeout},
		)
	}
	if cfg.Telemetry != nil {
		fields = append(fields,
			durationField{"telemetry.collection_interval", cfg.Telemetry.CollectionIntervalHCL, &cfg.Telemetry.CollectionInterval},
			durationField{"telemetry.prometheus_retention_time", cfg.Telemetry.PrometheusRetentionTimeHCL, &cfg.Telemetry.PrometheusRetentionTime},
		)
	}

	for _, f := range fields {
		if f.in == "" {
			continue
		}
		d, err := time.ParseDuration(f.in)
		if err != nil {
			return fmt.Errorf("failed to parse %s: %w", f.name, err)
		}
		*f.out = d
	}

	return nil
}

func parseFile(file string, cfg *Agent) error {
	if err := hclsimple.DecodeFile(file, nil, cfg); err != nil {
		return err
	}
	return parseDurations(cfg)
}

// LoadPaths loads the configuration files and directories in order, merging
// each on top of the defaults. The result is not validated as the
// environment and CLI flags may still change it.
func LoadPaths(paths []string) (*Agent, error) {
	cfg := Default()

	for _, path := range paths {
		current, err := Load(path)
		if err != nil {
			return nil, fmt.Errorf("error loading configuration from %s: %w", path, err)
		}
		cfg = cfg.Merge(current)
	}

	return cfg, nil
}

// Load loads the configuration at the given path, regardless if its a file or
// directory. Called for each -config to build up the runtime config value.
func Load(path string) (*Agent, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	if fi.IsDir() {
		return loadDir(path)
	}

	cleaned := filepath.Clean(path)

	cfg := &Agent{}
	if err := parseFile(cleaned, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file %s: %w", cleaned, err)
	}
	return cfg, nil
}

// loadDir loads all the configurations in the given directory in alphabetical
// order.
func loadDir(dir string) (*Agent, error) {
	files, err := file.ListConfigFiles(dir, ".hcl", ".json")
	if err != nil {
		return nil, fmt.Errorf("failed to load config directory: %w", err)
	}

	// Fast-path if we have no files
	if len(files) == 0 {
		return &Agent{}, nil
	}

	var result *Agent
	for _, f := range files {
		cfg := &Agent{}

		if err := parseFile(f, cfg); err != nil {
			return nil, fmt.Errorf("error parsing config file %s: %w", f, err)
		}

		result = result.Merge(cfg)
	}

	return result, nil
}
