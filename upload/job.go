// Package upload walks the tile index space of a pyramid and transfers every tile
// found on disk to a sink through a bounded pool of workers.
package upload

import (
	"fmt"
	"strings"

	"github.com/mapcache-tools/tile-etl/tilegrid"
	"github.com/mapcache-tools/tile-etl/tilelocator"
)

// KeyLayout orders the level, row and column segments of a destination key.
type KeyLayout int

const (
	// ColumnRow produces {prefix}/{level}/{column}/{row}, the z/x/y layout web maps request.
	ColumnRow KeyLayout = iota
	// RowColumn produces {prefix}/{level}/{row}/{column}.
	RowColumn
)

// ParseKeyLayout ...
func ParseKeyLayout(s string) (KeyLayout, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "column-row", "zxy", "z/x/y":
		return ColumnRow, nil
	case "row-column", "zyx", "z/y/x":
		return RowColumn, nil
	default:
		return 0, fmt.Errorf("unknown key layout %q, supported layouts: column-row, row-column", s)
	}
}

func (l KeyLayout) String() string {
	switch l {
	case ColumnRow:
		return "column-row"
	case RowColumn:
		return "row-column"
	default:
		return fmt.Sprintf("KeyLayout(%d)", int(l))
	}
}

// Key builds the destination key of a coordinate. Slashes around prefix are trimmed;
// an empty prefix yields a key starting with the level.
func (l KeyLayout) Key(prefix string, c tilegrid.Coordinate) string {
	first, second := c.Column, c.Row
	if l == RowColumn {
		first, second = c.Row, c.Column
	}

	key := fmt.Sprintf("%d/%d/%d", c.Level, first, second)
	if prefix = strings.Trim(prefix, "/"); prefix != "" {
		key = prefix + "/" + key
	}
	return key
}

var contentTypes = map[string]string{
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"png":  "image/png",
	"gif":  "image/gif",
	"webp": "image/webp",
	"tif":  "image/tiff",
	"tiff": "image/tiff",
	"pbf":  "application/x-protobuf",
	"mvt":  "application/vnd.mapbox-vector-tile",
}

// ContentTypeForExtension returns the MIME type of a tile extension, or "" when unknown.
func ContentTypeForExtension(ext string) string {
	return contentTypes[strings.ToLower(strings.TrimPrefix(ext, "."))]
}

// Job is one tile transfer. Jobs are immutable once built.
type Job struct {
	Coordinate     tilegrid.Coordinate
	SourcePath     string
	DestinationKey string
	// ContentType is empty when the extension is unknown; the worker sniffs it from the bytes.
	ContentType string
}

// NewJob ...
func NewJob(tile tilelocator.Tile, prefix string, layout KeyLayout) Job {
	return Job{
		Coordinate:     tile.Coordinate,
		SourcePath:     tile.Path,
		DestinationKey: layout.Key(prefix, tile.Coordinate),
		ContentType:    ContentTypeForExtension(tile.Extension),
	}
}
