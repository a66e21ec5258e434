package sink

import (
	"context"
	"fmt"
	"time"

	"github.com/bitrise-io/go-utils/v2/log"
)

// Provider names accepted by New.
const (
	ProviderS3     = "s3"
	ProviderGCS    = "gcs"
	ProviderAzure  = "azure"
	ProviderHTTP   = "http"
	ProviderDryRun = "dryrun"
)

// Providers lists every supported provider name.
var Providers = []string{ProviderS3, ProviderGCS, ProviderAzure, ProviderHTTP, ProviderDryRun}

// Config selects and configures a sink.
type Config struct {
	Provider string
	// Bucket is the S3/GCS bucket or the Azure container.
	Bucket string

	Region       string
	Endpoint     string
	UsePathStyle bool

	AccessKeyID     string
	SecretAccessKey string
	CredentialsFile string

	AccountURL  string
	AccountName string
	AccountKey  string

	Token string

	Retries   int
	RetryWait time.Duration
}

// New creates the configured sink, wrapped with retries when Retries > 0.
func New(ctx context.Context, cfg Config, logger log.Logger) (Sink, error) {
	var (
		s   Sink
		err error
	)

	switch cfg.Provider {
	case ProviderS3:
		s, err = NewS3(ctx, S3Params{
			Bucket:          cfg.Bucket,
			Region:          cfg.Region,
			Endpoint:        cfg.Endpoint,
			UsePathStyle:    cfg.UsePathStyle,
			AccessKeyID:     cfg.AccessKeyID,
			SecretAccessKey: cfg.SecretAccessKey,
		}, logger)
	case ProviderGCS:
		s, err = NewGCS(ctx, GCSParams{
			Bucket:          cfg.Bucket,
			CredentialsFile: cfg.CredentialsFile,
		})
	case ProviderAzure:
		s, err = NewAzure(AzureParams{
			Container:   cfg.Bucket,
			AccountURL:  cfg.AccountURL,
			AccountName: cfg.AccountName,
			AccountKey:  cfg.AccountKey,
		}, logger)
	case ProviderHTTP:
		// The retrying wrapper owns retries; the HTTP client only retries transport errors once.
		s, err = NewHTTP(HTTPParams{Endpoint: cfg.Endpoint, Token: cfg.Token, RetryMax: 1}, logger)
	case ProviderDryRun:
		s = NewDryRun(logger)
	default:
		return nil, fmt.Errorf("unknown sink provider %q, supported providers: %v", cfg.Provider, Providers)
	}
	if err != nil {
		return nil, fmt.Errorf("create %s sink: %w", cfg.Provider, err)
	}

	return Retrying(s, cfg.Retries, cfg.RetryWait, logger), nil
}
