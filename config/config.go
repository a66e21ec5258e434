// Package config loads the run configuration of a migration from a YAML file and
// TILE_ETL_ prefixed environment variables.
package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/mapcache-tools/tile-etl/sink"
	"github.com/mapcache-tools/tile-etl/tilegrid"
	"github.com/mapcache-tools/tile-etl/tilelocator"
	"github.com/mapcache-tools/tile-etl/upload"
	"github.com/spf13/viper"
)

const (
	envPrefix = "TILE_ETL"
	// keyDelimiter replaces viper's default "." so map names may contain dots.
	keyDelimiter = "::"

	mapPlaceholder = "{map}"

	defaultRetries   = 3
	defaultRetryWait = 2 * time.Second
)

type extentSettings struct {
	MinX float64 `mapstructure:"min_x"`
	MinY float64 `mapstructure:"min_y"`
	MaxX float64 `mapstructure:"max_x"`
	MaxY float64 `mapstructure:"max_y"`
}

type wgs84Settings struct {
	MinLon float64 `mapstructure:"min_lon"`
	MinLat float64 `mapstructure:"min_lat"`
	MaxLon float64 `mapstructure:"max_lon"`
	MaxLat float64 `mapstructure:"max_lat"`
}

type levelSettings struct {
	Start int `mapstructure:"start"`
	End   int `mapstructure:"end"`
}

// areaSettings can be given globally and overridden per map.
type areaSettings struct {
	Extent      *extentSettings `mapstructure:"extent"`
	ExtentWGS84 *wgs84Settings  `mapstructure:"extent_wgs84"`
	Levels      *levelSettings  `mapstructure:"levels"`
	Padding     *int            `mapstructure:"padding"`
}

type mapSettings struct {
	Target  string `mapstructure:"target"`
	Bucket  string `mapstructure:"bucket"`
	Folder  string `mapstructure:"folder"`
	BaseDir string `mapstructure:"base_dir"`

	areaSettings `mapstructure:",squash"`
}

type sinkSettings struct {
	Provider        string        `mapstructure:"provider"`
	Region          string        `mapstructure:"region"`
	Endpoint        string        `mapstructure:"endpoint"`
	PathStyle       bool          `mapstructure:"path_style"`
	AccessKeyID     Secret        `mapstructure:"access_key_id"`
	SecretAccessKey Secret        `mapstructure:"secret_access_key"`
	CredentialsFile string        `mapstructure:"credentials_file"`
	AccountURL      string        `mapstructure:"account_url"`
	AccountName     string        `mapstructure:"account_name"`
	AccountKey      Secret        `mapstructure:"account_key"`
	Token           Secret        `mapstructure:"token"`
	Retries         int           `mapstructure:"retries"`
	RetryWait       time.Duration `mapstructure:"retry_wait"`
}

type fileSettings struct {
	BaseDir            string        `mapstructure:"base_dir"`
	Concurrency        int           `mapstructure:"concurrency"`
	Extensions         []string      `mapstructure:"extensions"`
	KeyLayout          string        `mapstructure:"key_layout"`
	ACL                string        `mapstructure:"acl"`
	WorldDelta         float64       `mapstructure:"world_delta"`
	JobTimeout         time.Duration `mapstructure:"job_timeout"`
	FailureThreshold   int           `mapstructure:"failure_threshold"`
	AbortOnAuthFailure bool          `mapstructure:"abort_on_auth_failure"`
	Sink               sinkSettings  `mapstructure:"sink"`

	areaSettings `mapstructure:",squash"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("base_dir", "")
	v.SetDefault("concurrency", upload.DefaultConcurrency)
	v.SetDefault("extensions", tilelocator.DefaultExtensions)
	v.SetDefault("key_layout", upload.ColumnRow.String())
	v.SetDefault("acl", sink.PublicRead.String())
	v.SetDefault("world_delta", tilegrid.WebMercatorDelta)
	v.SetDefault("job_timeout", upload.DefaultJobTimeout)
	v.SetDefault("failure_threshold", 25)
	v.SetDefault("abort_on_auth_failure", true)

	v.SetDefault(sinkKey("provider"), sink.ProviderS3)
	v.SetDefault(sinkKey("retries"), defaultRetries)
	v.SetDefault(sinkKey("retry_wait"), defaultRetryWait)
	for _, key := range []string{
		"region", "endpoint", "access_key_id", "secret_access_key", "credentials_file",
		"account_url", "account_name", "account_key", "token",
	} {
		v.SetDefault(sinkKey(key), "")
	}
	v.SetDefault(sinkKey("path_style"), false)
}

func sinkKey(key string) string {
	return "sink" + keyDelimiter + key
}

// File is a loaded configuration file.
type File struct {
	v        *viper.Viper
	settings fileSettings
}

// Load reads the configuration file at path. Every setting can be overridden by an
// environment variable, e.g. TILE_ETL_CONCURRENCY or TILE_ETL_SINK_SECRET_ACCESS_KEY.
func Load(path string) (*File, error) {
	v := viper.NewWithOptions(viper.KeyDelimiter(keyDelimiter))
	v.SetConfigFile(path)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(keyDelimiter, "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	var settings fileSettings
	if err := v.Unmarshal(&settings); err != nil {
		return nil, fmt.Errorf("decode config %s: %w", path, err)
	}

	return &File{v: v, settings: settings}, nil
}

// MapNames returns the configured map names. Names are case-insensitive and returned lowercased.
func (f *File) MapNames() []string {
	names := make([]string, 0)
	for name := range f.v.GetStringMap("maps") {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Target ...
func (f *File) Target(mapName string) (MapTarget, error) {
	ms, err := f.mapSettings(mapName)
	if err != nil {
		return MapTarget{}, err
	}
	return ms.target()
}

func (f *File) mapSettings(mapName string) (mapSettings, error) {
	if strings.TrimSpace(mapName) == "" {
		return mapSettings{}, errors.New("map name must not be empty")
	}

	key := "maps" + keyDelimiter + mapName
	raw := f.v.Get(key)
	switch value := raw.(type) {
	case nil:
		return mapSettings{}, fmt.Errorf("%w: %q, configured maps: %v", ErrUnknownMap, mapName, f.MapNames())
	case string:
		return mapSettings{Target: value}, nil
	default:
		var ms mapSettings
		if err := f.v.UnmarshalKey(key, &ms); err != nil {
			return mapSettings{}, fmt.Errorf("decode map %q: %w", mapName, err)
		}
		return ms, nil
	}
}

func (ms mapSettings) target() (MapTarget, error) {
	if ms.Target != "" {
		if ms.Bucket != "" || ms.Folder != "" {
			return MapTarget{}, errors.New("target and bucket/folder are mutually exclusive")
		}
		return ParseTarget(ms.Target)
	}
	return ParseTarget(ms.Bucket + ";" + ms.Folder)
}

// Overrides are command line settings applied on top of the file.
type Overrides struct {
	// Concurrency replaces the configured value when positive.
	Concurrency int
	DryRun      bool
	Walk        bool
}

// Run builds and validates the configuration of one map.
func (f *File) Run(mapName string, overrides Overrides) (Run, error) {
	ms, err := f.mapSettings(mapName)
	if err != nil {
		return Run{}, err
	}
	target, err := ms.target()
	if err != nil {
		return Run{}, fmt.Errorf("map %q: %w", mapName, err)
	}

	s := f.settings
	area := s.areaSettings.merge(ms.areaSettings)

	baseDir := s.BaseDir
	if ms.BaseDir != "" {
		baseDir = ms.BaseDir
	}

	var errs *multierror.Error

	layout, err := upload.ParseKeyLayout(s.KeyLayout)
	errs = multierror.Append(errs, err)

	acl, err := sink.ParseACL(s.ACL)
	errs = multierror.Append(errs, err)

	extent, err := area.extent()
	errs = multierror.Append(errs, err)

	if err := errs.ErrorOrNil(); err != nil {
		return Run{}, fmt.Errorf("invalid configuration for map %q: %w", mapName, err)
	}

	run := Run{
		MapName:            mapName,
		Target:             target,
		BaseDir:            strings.ReplaceAll(baseDir, mapPlaceholder, mapName),
		Extent:             extent,
		Concurrency:        s.Concurrency,
		Extensions:         s.Extensions,
		KeyLayout:          layout,
		ACL:                acl,
		WorldDelta:         s.WorldDelta,
		JobTimeout:         s.JobTimeout,
		FailureThreshold:   s.FailureThreshold,
		AbortOnAuthFailure: s.AbortOnAuthFailure,
		Walk:               overrides.Walk,
		Sink: SinkSettings{
			Provider:        s.Sink.Provider,
			Region:          s.Sink.Region,
			Endpoint:        s.Sink.Endpoint,
			UsePathStyle:    s.Sink.PathStyle,
			AccessKeyID:     s.Sink.AccessKeyID,
			SecretAccessKey: s.Sink.SecretAccessKey,
			CredentialsFile: s.Sink.CredentialsFile,
			AccountURL:      s.Sink.AccountURL,
			AccountName:     s.Sink.AccountName,
			AccountKey:      s.Sink.AccountKey,
			Token:           s.Sink.Token,
			Retries:         s.Sink.Retries,
			RetryWait:       s.Sink.RetryWait,
		},
	}
	if area.Levels != nil {
		run.Levels = &LevelRange{Start: area.Levels.Start, End: area.Levels.End}
	}
	if area.Padding != nil {
		run.Padding = *area.Padding
	}
	if overrides.Concurrency > 0 {
		run.Concurrency = overrides.Concurrency
	}
	if overrides.DryRun {
		run.Sink.Provider = sink.ProviderDryRun
	}

	if err := run.Validate(); err != nil {
		return Run{}, fmt.Errorf("invalid configuration for map %q: %w", mapName, err)
	}

	return run, nil
}

func (a areaSettings) merge(override areaSettings) areaSettings {
	merged := a
	if override.Extent != nil || override.ExtentWGS84 != nil {
		merged.Extent = override.Extent
		merged.ExtentWGS84 = override.ExtentWGS84
	}
	if override.Levels != nil {
		merged.Levels = override.Levels
	}
	if override.Padding != nil {
		merged.Padding = override.Padding
	}
	return merged
}

func (a areaSettings) extent() (*tilegrid.Extent, error) {
	switch {
	case a.Extent != nil && a.ExtentWGS84 != nil:
		return nil, errors.New("extent and extent_wgs84 are mutually exclusive")
	case a.Extent != nil:
		e, err := tilegrid.NewExtent(a.Extent.MinX, a.Extent.MinY, a.Extent.MaxX, a.Extent.MaxY)
		if err != nil {
			return nil, fmt.Errorf("extent: %w", err)
		}
		return &e, nil
	case a.ExtentWGS84 != nil:
		w := a.ExtentWGS84
		if w.MinLat < -85.0511 || w.MaxLat > 85.0511 || w.MinLon < -180 || w.MaxLon > 180 {
			return nil, fmt.Errorf("extent_wgs84: %w: outside the web-mercator world", tilegrid.ErrInvalidExtent)
		}
		e, err := tilegrid.ExtentFromWGS84(w.MinLon, w.MinLat, w.MaxLon, w.MaxLat)
		if err != nil {
			return nil, fmt.Errorf("extent_wgs84: %w", err)
		}
		return &e, nil
	}
	return nil, nil
}
