// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package batch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	awsbatch "github.com/aws/aws-sdk-go-v2/service/batch"
	hclog "github.com/hashicorp/go-hclog"
	"github.com/reelcast/transcode-autoscaler/helper/ratelimit"
)

const (
	DefaultRegion        = "us-east-1"
	DefaultJobNamePrefix = "transcode-worker"
	DefaultRateLimit     = 5
	DefaultTimeout       = 10 * time.Second
	DefaultWorkerTimeout = 60 * time.Minute
	DefaultIdleTimeout   = 5 * time.Minute

	// metricsSource labels the outbound HTTP metrics of the AWS client.
	metricsSource = "aws_batch"
)

// Config is the AWS Batch configuration used for fleet inspection and job
// submission.
type Config struct {
	JobQueue      string
	JobDefinition string

	// Region, AccessKeyID, SecretAccessKey and SessionToken configure the
	// AWS client. When either key is empty the default credential chain is
	// used.
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string

	// JobNamePrefix is prepended to every submitted job name.
	JobNamePrefix string

	// AssetURLPrefix is passed to workers so they can build public links to
	// the assets they produce. It is omitted from the job when empty.
	AssetURLPrefix string

	// WorkerTimeout is the attempt duration after which AWS Batch terminates
	// a worker.
	WorkerTimeout time.Duration

	// IdleTimeout is how long a worker waits for new jobs before exiting.
	IdleTimeout time.Duration

	// Timeout bounds each API call, including pagination.
	Timeout time.Duration

	// RateLimit is the number of AWS API requests allowed per second.
	RateLimit int

	// Tags are added to every submitted job for cost attribution.
	Tags map[string]string

	// DryRun disables job submission. Inspection still queries AWS.
	DryRun bool
}

func (c Config) withDefaults() Config {
	if c.Region == "" {
		c.Region = DefaultRegion
	}
	if c.JobNamePrefix == "" {
		c.JobNamePrefix = DefaultJobNamePrefix
	}
	if c.RateLimit == 0 {
		c.RateLimit = DefaultRateLimit
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.WorkerTimeout <= 0 {
		c.WorkerTimeout = DefaultWorkerTimeout
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = DefaultIdleTimeout
	}
	return c
}

// batchAPI is the subset of the AWS Batch client used here.
type batchAPI interface {
	awsbatch.ListJobsAPIClient
	SubmitJob(ctx context.Context, params *awsbatch.SubmitJobInput, optFns ...func(*awsbatch.Options)) (*awsbatch.SubmitJobOutput, error)
}

// Client inspects and grows the fleet of batch workers.
type Client struct {
	cfg   Config
	log   hclog.Logger
	api   batchAPI
	creds aws.CredentialsProvider
}

// NewClient loads the AWS configuration and returns a Client. Requests are
// sent through a rate limited, instrumented HTTP client.
func NewClient(ctx context.Context, cfg Config, log hclog.Logger) (*Client, error) {
	cfg = cfg.withDefaults()
	log = log.Named("batch")

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}

	// Static credentials need both the key ID and the secret; the session
	// token is optional.
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		log.Trace("using static AWS credentials from configuration")
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken)))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	httpClient := instrumentedHTTPClient(awsCfg.HTTPClient, cfg.RateLimit)
	api := awsbatch.NewFromConfig(awsCfg, func(o *awsbatch.Options) {
		o.HTTPClient = httpClient
	})

	return newClient(cfg, api, awsCfg.Credentials, log), nil
}

// instrumentedHTTPClient wraps the transport built by the AWS config loader,
// keeping settings such as a custom CA bundle, with rate limiting and
// request metrics.
func instrumentedHTTPClient(base aws.HTTPClient, ratePerSec int) *http.Client {
	client := &http.Client{}
	if bc, ok := base.(*awshttp.BuildableClient); ok {
		client.Transport = bc.GetTransport()
		client.Timeout = bc.GetTimeout()
	}
	return ratelimit.NewInstrumentedClient(metricsSource, ratePerSec, client)
}

func newClient(cfg Config, api batchAPI, creds aws.CredentialsProvider, log hclog.Logger) *Client {
	return &Client{
		cfg:   cfg.withDefaults(),
		log:   log.With("job_queue", cfg.JobQueue),
		api:   api,
		creds: creds,
	}
}

// CheckCredentials resolves the configured credentials, returning an error
// if none are available.
func (c *Client) CheckCredentials(ctx context.Context) error {
	if c.creds == nil {
		return errors.New("no AWS credentials provider configured")
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	creds, err := c.creds.Retrieve(ctx)
	if err != nil {
		return fmt.Errorf("failed to retrieve AWS credentials: %w", err)
	}
	if !creds.HasKeys() {
		return errors.New("AWS credentials have no access keys")
	}
	return nil
}
