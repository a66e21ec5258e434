package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mapcache-tools/tile-etl/sink"
	"github.com/mapcache-tools/tile-etl/tilegrid"
	"github.com/mapcache-tools/tile-etl/upload"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
base_dir: /arcgiscache/{map}/Layers/_alllayers
concurrency: 40
extensions: [jpg, png]
extent:
  min_x: -8143974
  min_y: 5195979
  max_x: -8125992
  max_y: 5212260
levels:
  start: 17
  end: 18
padding: 6
job_timeout: 30s
sink:
  provider: s3
  region: us-east-1
  access_key_id: AKIAEXAMPLE
  secret_access_key: very-secret
maps:
  MBIAddressing: "AppGeo_MA;MBIAddressing/Basemap"
  BaseMaps.WGS_Topo:
    bucket: appgeo-topo
    folder: topo
    base_dir: /mnt/topo
    levels:
      start: 3
      end: 5
    padding: 0
  Boston:
    target: "AppGeo_MA;Boston"
    extent_wgs84:
      min_lon: -71.19
      min_lat: 42.22
      max_lon: -70.98
      max_lat: 42.40
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	pth := filepath.Join(t.TempDir(), "tile-etl.yml")
	require.NoError(t, os.WriteFile(pth, []byte(content), 0644))
	return pth
}

func TestLoad_Run(t *testing.T) {
	f, err := Load(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	run, err := f.Run("MBIAddressing", Overrides{})
	require.NoError(t, err)

	assert.Equal(t, MapTarget{Bucket: "AppGeo_MA", Folder: "MBIAddressing/Basemap"}, run.Target)
	assert.Equal(t, "/arcgiscache/MBIAddressing/Layers/_alllayers", run.BaseDir)
	require.NotNil(t, run.Extent)
	assert.Equal(t, -8143974.0, run.Extent.MinX())
	assert.Equal(t, 5212260.0, run.Extent.MaxY())
	assert.Equal(t, &LevelRange{Start: 17, End: 18}, run.Levels)
	assert.Equal(t, 6, run.Padding)
	assert.Equal(t, 40, run.Concurrency)
	assert.Equal(t, []string{"jpg", "png"}, run.Extensions)
	assert.Equal(t, upload.ColumnRow, run.KeyLayout)
	assert.Equal(t, sink.PublicRead, run.ACL)
	assert.Equal(t, tilegrid.WebMercatorDelta, run.WorldDelta)
	assert.Equal(t, 30*time.Second, run.JobTimeout)
	assert.Equal(t, 25, run.FailureThreshold)
	assert.True(t, run.AbortOnAuthFailure)
	assert.Equal(t, 3, run.Sink.Retries)
	assert.Equal(t, 2*time.Second, run.Sink.RetryWait)

	cfg := run.SinkConfig()
	assert.Equal(t, "s3", cfg.Provider)
	assert.Equal(t, "AppGeo_MA", cfg.Bucket)
	assert.Equal(t, "very-secret", cfg.SecretAccessKey)
	assert.Equal(t, "*****", run.Sink.SecretAccessKey.String())

	opts := run.SchedulerOptions()
	assert.Equal(t, "MBIAddressing/Basemap", opts.Prefix)
	assert.Equal(t, tilegrid.WebMercator, opts.Grid)

	plan := run.Plan()
	assert.Equal(t, 17, plan.StartLevel)
	assert.Equal(t, 18, plan.EndLevel)
	assert.Equal(t, 6, plan.Padding)
}

func TestLoad_PerMapOverrides(t *testing.T) {
	f, err := Load(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	run, err := f.Run("BaseMaps.WGS_Topo", Overrides{})
	require.NoError(t, err)

	assert.Equal(t, MapTarget{Bucket: "appgeo-topo", Folder: "topo"}, run.Target)
	assert.Equal(t, "/mnt/topo", run.BaseDir)
	assert.Equal(t, &LevelRange{Start: 3, End: 5}, run.Levels)
	assert.Equal(t, 0, run.Padding)
	require.NotNil(t, run.Extent)
	assert.Equal(t, -8143974.0, run.Extent.MinX())
}

func TestLoad_BucketOnlyTargetUsesMapNameAsPrefix(t *testing.T) {
	f, err := Load(writeConfig(t, sampleConfig+"  Topo: \"topo-bucket\"\n"))
	require.NoError(t, err)

	run, err := f.Run("Topo", Overrides{})
	require.NoError(t, err)
	assert.Equal(t, MapTarget{Bucket: "topo-bucket"}, run.Target)
	assert.Equal(t, "Topo", run.KeyPrefix())

	opts := run.SchedulerOptions()
	assert.Equal(t, "Topo", opts.Prefix)
	assert.Equal(t, "Topo/1/3/2", opts.KeyLayout.Key(opts.Prefix, tilegrid.Coordinate{Level: 1, Row: 2, Column: 3}))

	withFolder, err := f.Run("MBIAddressing", Overrides{})
	require.NoError(t, err)
	assert.Equal(t, "MBIAddressing/Basemap", withFolder.KeyPrefix())
}

func TestLoad_WGS84Extent(t *testing.T) {
	f, err := Load(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	run, err := f.Run("Boston", Overrides{})
	require.NoError(t, err)

	require.NotNil(t, run.Extent)
	assert.InDelta(t, -7924991.0, run.Extent.MinX(), 1000)
	assert.InDelta(t, 5193000.0, run.Extent.MinY(), 2000)
	assert.Less(t, run.Extent.MinX(), run.Extent.MaxX())
}

func TestLoad_UnknownMap(t *testing.T) {
	f, err := Load(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	_, err = f.Target("Nowhere")
	assert.ErrorIs(t, err, ErrUnknownMap)

	_, err = f.Run("Nowhere", Overrides{})
	assert.ErrorIs(t, err, ErrUnknownMap)

	_, err = f.Run("", Overrides{})
	assert.Error(t, err)

	assert.Equal(t, []string{"basemaps.wgs_topo", "boston", "mbiaddressing"}, f.MapNames())
}

func TestLoad_MapNamesAreCaseInsensitive(t *testing.T) {
	f, err := Load(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	target, err := f.Target("mbiaddressing")
	require.NoError(t, err)
	assert.Equal(t, "AppGeo_MA/MBIAddressing/Basemap", target.String())
}

func TestLoad_Overrides(t *testing.T) {
	f, err := Load(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	run, err := f.Run("MBIAddressing", Overrides{Concurrency: 8, DryRun: true, Walk: true})
	require.NoError(t, err)

	assert.Equal(t, 8, run.Concurrency)
	assert.Equal(t, sink.ProviderDryRun, run.Sink.Provider)
	assert.True(t, run.Walk)
	assert.Equal(t, []int{17, 18}, run.WalkLevels())
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("TILE_ETL_CONCURRENCY", "12")
	t.Setenv("TILE_ETL_SINK_SECRET_ACCESS_KEY", "from-env")

	f, err := Load(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	run, err := f.Run("MBIAddressing", Overrides{})
	require.NoError(t, err)

	assert.Equal(t, 12, run.Concurrency)
	assert.Equal(t, Secret("from-env"), run.Sink.SecretAccessKey)
}

func TestLoad_WalkWithoutExtent(t *testing.T) {
	f, err := Load(writeConfig(t, `
base_dir: /cache/{map}
sink:
  provider: gcs
maps:
  Topo: "tiles-bucket;Topo"
`))
	require.NoError(t, err)

	_, err = f.Run("Topo", Overrides{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "extent or extent_wgs84 is required")
	assert.Contains(t, err.Error(), "levels is required")

	run, err := f.Run("Topo", Overrides{Walk: true})
	require.NoError(t, err)
	assert.Nil(t, run.Extent)
	assert.Nil(t, run.WalkLevels())
	assert.Equal(t, "/cache/Topo", run.BaseDir)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yml"))
	assert.Error(t, err)
}

func TestLoad_InvalidSettings(t *testing.T) {
	tests := []struct {
		name    string
		config  string
		wantErr string
	}{
		{
			name: "inverted extent",
			config: `
base_dir: /cache
extent: {min_x: 10, min_y: 0, max_x: 0, max_y: 10}
levels: {start: 1, end: 2}
sink: {provider: dryrun}
maps: {m: "b;f"}
`,
			wantErr: "invalid extent",
		},
		{
			name: "zero concurrency",
			config: `
base_dir: /cache
concurrency: 0
extent: {min_x: 0, min_y: 0, max_x: 10, max_y: 10}
levels: {start: 1, end: 2}
sink: {provider: dryrun}
maps: {m: "b;f"}
`,
			wantErr: "concurrency must be at least 1",
		},
		{
			name: "inverted levels",
			config: `
base_dir: /cache
extent: {min_x: 0, min_y: 0, max_x: 10, max_y: 10}
levels: {start: 5, end: 2}
sink: {provider: dryrun}
maps: {m: "b;f"}
`,
			wantErr: "levels.end (2) must not be less than levels.start (5)",
		},
		{
			name: "levels too deep",
			config: `
base_dir: /cache
extent: {min_x: 0, min_y: 0, max_x: 10, max_y: 10}
levels: {start: 60, end: 70}
sink: {provider: dryrun}
maps: {m: "b;f"}
`,
			wantErr: "levels.end must not be greater than 32, got 70",
		},
		{
			name: "unknown provider",
			config: `
base_dir: /cache
extent: {min_x: 0, min_y: 0, max_x: 10, max_y: 10}
levels: {start: 1, end: 2}
sink: {provider: ftp}
maps: {m: "b;f"}
`,
			wantErr: `sink.provider "ftp" is not supported`,
		},
		{
			name: "s3 without region",
			config: `
base_dir: /cache
extent: {min_x: 0, min_y: 0, max_x: 10, max_y: 10}
levels: {start: 1, end: 2}
maps: {m: "b;f"}
`,
			wantErr: "sink.region is required for s3",
		},
		{
			name: "unknown key layout",
			config: `
base_dir: /cache
key_layout: diagonal
extent: {min_x: 0, min_y: 0, max_x: 10, max_y: 10}
levels: {start: 1, end: 2}
sink: {provider: dryrun}
maps: {m: "b;f"}
`,
			wantErr: `unknown key layout "diagonal"`,
		},
		{
			name: "both extents",
			config: `
base_dir: /cache
extent: {min_x: 0, min_y: 0, max_x: 10, max_y: 10}
extent_wgs84: {min_lon: 0, min_lat: 0, max_lon: 1, max_lat: 1}
levels: {start: 1, end: 2}
sink: {provider: dryrun}
maps: {m: "b;f"}
`,
			wantErr: "mutually exclusive",
		},
		{
			name: "empty bucket",
			config: `
base_dir: /cache
extent: {min_x: 0, min_y: 0, max_x: 10, max_y: 10}
levels: {start: 1, end: 2}
sink: {provider: gcs}
maps: {m: ";folder"}
`,
			wantErr: "bucket must not be empty",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := Load(writeConfig(t, tt.config))
			require.NoError(t, err)

			_, err = f.Run("m", Overrides{})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestParseTarget(t *testing.T) {
	tests := []struct {
		in      string
		want    MapTarget
		wantErr bool
	}{
		{in: "AppGeo_MA;MBIAddressing/Basemap", want: MapTarget{Bucket: "AppGeo_MA", Folder: "MBIAddressing/Basemap"}},
		{in: " bucket ; /folder/ ", want: MapTarget{Bucket: "bucket", Folder: "folder"}},
		{in: "bucket", want: MapTarget{Bucket: "bucket"}},
		{in: ";folder", wantErr: true},
		{in: "", wantErr: true},
		{in: "a;b;c", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseTarget(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRun_ValidateCollectsAllErrors(t *testing.T) {
	run := Run{
		Concurrency: 0,
		WorldDelta:  -1,
		Sink:        SinkSettings{Provider: sink.ProviderDryRun},
	}

	err := run.Validate()
	require.Error(t, err)
	for _, want := range []string{
		"map name must not be empty",
		"base_dir must not be empty",
		"concurrency must be at least 1",
		"at least one extension is required",
		"world_delta must be positive",
		"job_timeout must be positive",
	} {
		assert.Contains(t, err.Error(), want)
	}
	assert.False(t, errors.Is(err, ErrUnknownMap))
}

func TestSecret_String(t *testing.T) {
	assert.Equal(t, "*****", Secret("password").String())
	assert.Equal(t, "", Secret("").String())
}
