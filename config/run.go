package config

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/hashicorp/go-multierror"
	"github.com/mapcache-tools/tile-etl/sink"
	"github.com/mapcache-tools/tile-etl/tilegrid"
	"github.com/mapcache-tools/tile-etl/upload"
)

// LevelRange is an inclusive range of zoom levels.
type LevelRange struct {
	Start int
	End   int
}

// Levels lists every level of the range in ascending order.
func (r LevelRange) Levels() []int {
	levels := make([]int, 0, r.End-r.Start+1)
	for level := r.Start; level <= r.End; level++ {
		levels = append(levels, level)
	}
	return levels
}

// SinkSettings ...
type SinkSettings struct {
	Provider        string
	Region          string
	Endpoint        string
	UsePathStyle    bool
	AccessKeyID     Secret
	SecretAccessKey Secret
	CredentialsFile string
	AccountURL      string
	AccountName     string
	AccountKey      Secret
	Token           Secret
	Retries         int
	RetryWait       time.Duration
}

// Run is the validated configuration of one migration run. It is built once and
// not modified afterwards.
type Run struct {
	MapName string
	Target  MapTarget
	BaseDir string

	// Extent is nil when none is configured, which is only valid in walk mode.
	Extent *tilegrid.Extent
	// Levels is nil when none is configured; walk mode then migrates every level on disk.
	Levels  *LevelRange
	Padding int
	Walk    bool

	Concurrency        int
	Extensions         []string
	KeyLayout          upload.KeyLayout
	ACL                sink.ACL
	WorldDelta         float64
	JobTimeout         time.Duration
	FailureThreshold   int
	AbortOnAuthFailure bool

	Sink SinkSettings
}

// Validate reports every malformed field at once.
func (r Run) Validate() error {
	var errs *multierror.Error
	add := func(format string, args ...interface{}) {
		errs = multierror.Append(errs, fmt.Errorf(format, args...))
	}

	if strings.TrimSpace(r.MapName) == "" {
		add("map name must not be empty")
	}
	if strings.TrimSpace(r.BaseDir) == "" {
		add("base_dir must not be empty")
	}
	if r.Concurrency < 1 {
		add("concurrency must be at least 1, got %d", r.Concurrency)
	}
	if len(r.Extensions) == 0 {
		add("at least one extension is required")
	}
	for _, ext := range r.Extensions {
		if strings.TrimSpace(strings.TrimPrefix(ext, ".")) == "" {
			add("extensions must not contain empty values")
			break
		}
	}
	if r.WorldDelta <= 0 || math.IsNaN(r.WorldDelta) || math.IsInf(r.WorldDelta, 0) {
		add("world_delta must be positive, got %v", r.WorldDelta)
	}
	if r.JobTimeout <= 0 {
		add("job_timeout must be positive, got %s", r.JobTimeout)
	}
	if r.FailureThreshold < 0 {
		add("failure_threshold must not be negative, got %d", r.FailureThreshold)
	}
	if r.Padding < 0 {
		add("padding must not be negative, got %d", r.Padding)
	}

	if r.Levels != nil {
		if r.Levels.Start < 0 {
			add("levels.start must not be negative, got %d", r.Levels.Start)
		}
		if r.Levels.End < r.Levels.Start {
			add("levels.end (%d) must not be less than levels.start (%d)", r.Levels.End, r.Levels.Start)
		}
		if r.Levels.End > tilegrid.MaxLevel {
			add("levels.end must not be greater than %d, got %d", tilegrid.MaxLevel, r.Levels.End)
		}
	}
	if !r.Walk {
		if r.Extent == nil {
			add("extent or extent_wgs84 is required unless walking the cache")
		} else if err := r.Extent.Validate(); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("extent: %w", err))
		}
		if r.Levels == nil {
			add("levels is required unless walking the cache")
		}
	}

	if err := r.validateSink(); err != nil {
		errs = multierror.Append(errs, err)
	}

	return errs.ErrorOrNil()
}

func (r Run) validateSink() error {
	s := r.Sink
	if !slices.Contains(sink.Providers, s.Provider) {
		return fmt.Errorf("sink.provider %q is not supported, supported providers: %v", s.Provider, sink.Providers)
	}

	var errs *multierror.Error
	switch s.Provider {
	case sink.ProviderS3:
		if s.Region == "" {
			errs = multierror.Append(errs, errors.New("sink.region is required for s3"))
		}
		if (s.AccessKeyID == "") != (s.SecretAccessKey == "") {
			errs = multierror.Append(errs, errors.New("sink.access_key_id and sink.secret_access_key must be given together"))
		}
	case sink.ProviderAzure:
		if s.AccountURL == "" {
			errs = multierror.Append(errs, errors.New("sink.account_url is required for azure"))
		}
	case sink.ProviderHTTP:
		if s.Endpoint == "" {
			errs = multierror.Append(errs, errors.New("sink.endpoint is required for http"))
		}
	}

	if s.Provider != sink.ProviderHTTP && s.Provider != sink.ProviderDryRun && r.Target.Bucket == "" {
		errs = multierror.Append(errs, errors.New("bucket must not be empty"))
	}
	if s.Retries < 0 {
		errs = multierror.Append(errs, fmt.Errorf("sink.retries must not be negative, got %d", s.Retries))
	}
	if s.RetryWait < 0 {
		errs = multierror.Append(errs, fmt.Errorf("sink.retry_wait must not be negative, got %s", s.RetryWait))
	}

	return errs.ErrorOrNil()
}

// SinkConfig returns the settings of the sink the run uploads to.
func (r Run) SinkConfig() sink.Config {
	return sink.Config{
		Provider:        r.Sink.Provider,
		Bucket:          r.Target.Bucket,
		Region:          r.Sink.Region,
		Endpoint:        r.Sink.Endpoint,
		UsePathStyle:    r.Sink.UsePathStyle,
		AccessKeyID:     string(r.Sink.AccessKeyID),
		SecretAccessKey: string(r.Sink.SecretAccessKey),
		CredentialsFile: r.Sink.CredentialsFile,
		AccountURL:      r.Sink.AccountURL,
		AccountName:     r.Sink.AccountName,
		AccountKey:      string(r.Sink.AccountKey),
		Token:           string(r.Sink.Token),
		Retries:         r.Sink.Retries,
		RetryWait:       r.Sink.RetryWait,
	}
}

// KeyPrefix is the folder the map's keys are placed under: the target folder, or the map
// name when the target names only a bucket.
func (r Run) KeyPrefix() string {
	if r.Target.Folder != "" {
		return r.Target.Folder
	}
	return r.MapName
}

// SchedulerOptions ...
func (r Run) SchedulerOptions() upload.Options {
	return upload.Options{
		Grid:               tilegrid.Grid{WorldDelta: r.WorldDelta},
		Concurrency:        r.Concurrency,
		Prefix:             r.KeyPrefix(),
		KeyLayout:          r.KeyLayout,
		ACL:                r.ACL,
		JobTimeout:         r.JobTimeout,
		FailureThreshold:   r.FailureThreshold,
		AbortOnAuthFailure: r.AbortOnAuthFailure,
	}
}

// Plan returns the extent based plan of the run. It must not be called in walk mode
// without an extent.
func (r Run) Plan() upload.Plan {
	return upload.Plan{
		Extent:     *r.Extent,
		StartLevel: r.Levels.Start,
		EndLevel:   r.Levels.End,
		Padding:    r.Padding,
	}
}

// WalkLevels returns the configured levels, or nil to walk every level on disk.
func (r Run) WalkLevels() []int {
	if r.Levels == nil {
		return nil
	}
	return r.Levels.Levels()
}

// Print logs the configuration with secrets masked.
func (r Run) Print(logger log.Logger) {
	logger.Infof("Configuration:")
	logger.Printf("- map: %s", r.MapName)
	logger.Printf("- target: %s", r.Target)
	logger.Printf("- key_prefix: %s", r.KeyPrefix())
	logger.Printf("- base_dir: %s", r.BaseDir)
	if r.Walk {
		logger.Printf("- mode: walk")
	}
	if r.Extent != nil {
		logger.Printf("- extent: %s", r.Extent)
	}
	if r.Levels != nil {
		logger.Printf("- levels: %d-%d", r.Levels.Start, r.Levels.End)
	}
	logger.Printf("- padding: %d", r.Padding)
	logger.Printf("- concurrency: %d", r.Concurrency)
	logger.Printf("- extensions: %s", strings.Join(r.Extensions, ", "))
	logger.Printf("- key_layout: %s", r.KeyLayout)
	logger.Printf("- acl: %s", r.ACL)
	logger.Printf("- job_timeout: %s", r.JobTimeout)
	logger.Printf("- sink.provider: %s", r.Sink.Provider)
	if r.Sink.Region != "" {
		logger.Printf("- sink.region: %s", r.Sink.Region)
	}
	if r.Sink.Endpoint != "" {
		logger.Printf("- sink.endpoint: %s", r.Sink.Endpoint)
	}
	if r.Sink.AccessKeyID != "" {
		logger.Printf("- sink.access_key_id: %s", r.Sink.AccessKeyID)
		logger.Printf("- sink.secret_access_key: %s", r.Sink.SecretAccessKey)
	}
	if r.Sink.AccountKey != "" {
		logger.Printf("- sink.account_key: %s", r.Sink.AccountKey)
	}
	if r.Sink.Token != "" {
		logger.Printf("- sink.token: %s", r.Sink.Token)
	}
	logger.Printf("- sink.retries: %d (wait %s)", r.Sink.Retries, r.Sink.RetryWait)
}
