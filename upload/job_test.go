package upload

import (
	"testing"

	"github.com/mapcache-tools/tile-etl/tilegrid"
	"github.com/mapcache-tools/tile-etl/tilelocator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyLayout_Key(t *testing.T) {
	c := tilegrid.Coordinate{Level: 17, Row: 49262, Column: 38596}

	tests := []struct {
		name   string
		layout KeyLayout
		prefix string
		want   string
	}{
		{name: "column row", layout: ColumnRow, prefix: "MBIAddressing/Basemap", want: "MBIAddressing/Basemap/17/38596/49262"},
		{name: "row column", layout: RowColumn, prefix: "MBIAddressing/Basemap", want: "MBIAddressing/Basemap/17/49262/38596"},
		{name: "slashes trimmed", layout: ColumnRow, prefix: "/topo/", want: "topo/17/38596/49262"},
		{name: "no prefix", layout: ColumnRow, prefix: "", want: "17/38596/49262"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.layout.Key(tt.prefix, c))
		})
	}
}

func TestParseKeyLayout(t *testing.T) {
	tests := []struct {
		in      string
		want    KeyLayout
		wantErr bool
	}{
		{in: "", want: ColumnRow},
		{in: "column-row", want: ColumnRow},
		{in: "z/x/y", want: ColumnRow},
		{in: "Row-Column", want: RowColumn},
		{in: "zyx", want: RowColumn},
		{in: "diagonal", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseKeyLayout(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.want, mustParse(t, got.String()))
		})
	}
}

func mustParse(t *testing.T, s string) KeyLayout {
	l, err := ParseKeyLayout(s)
	require.NoError(t, err)
	return l
}

func TestNewJob(t *testing.T) {
	tile := tilelocator.Tile{
		Coordinate: tilegrid.Coordinate{Level: 3, Row: 5, Column: 2},
		Path:       "/cache/L03/R00000005/C00000002.jpg",
		Extension:  "jpg",
	}

	job := NewJob(tile, "topo", ColumnRow)

	assert.Equal(t, Job{
		Coordinate:     tile.Coordinate,
		SourcePath:     tile.Path,
		DestinationKey: "topo/3/2/5",
		ContentType:    "image/jpeg",
	}, job)
}

func TestContentTypeForExtension(t *testing.T) {
	assert.Equal(t, "image/png", ContentTypeForExtension("png"))
	assert.Equal(t, "image/png", ContentTypeForExtension(".PNG"))
	assert.Equal(t, "image/jpeg", ContentTypeForExtension("jpeg"))
	assert.Equal(t, "", ContentTypeForExtension("dat"))
}
