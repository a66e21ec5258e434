// Package tilelocator resolves tile coordinates to files in an exploded tile cache
// laid out as {base}/L{level:02d}/R{row:08x}/C{column:08x}.{ext}.
package tilelocator

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/bitrise-io/go-utils/v2/pathutil"
	"github.com/mapcache-tools/tile-etl/tilegrid"
)

// DefaultExtensions is the probe order used when none is configured.
var DefaultExtensions = []string{"jpg", "png"}

// ErrNoExtensions ...
var ErrNoExtensions = errors.New("at least one candidate extension is required")

// Tile is a tile file found on disk.
type Tile struct {
	Coordinate tilegrid.Coordinate
	Path       string
	Extension  string
}

// Locator finds tile files below a cache directory.
type Locator struct {
	baseDir     string
	extensions  []string
	pathChecker pathutil.PathChecker
}

// New creates a Locator probing the extensions in the given order. `pathChecker` can be nil,
// unless you want to provide a custom implementation.
func New(baseDir string, extensions []string, pathChecker pathutil.PathChecker) (*Locator, error) {
	if len(extensions) == 0 {
		return nil, ErrNoExtensions
	}

	exts := make([]string, 0, len(extensions))
	for _, ext := range extensions {
		ext = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
		if ext == "" {
			return nil, fmt.Errorf("empty extension in %v", extensions)
		}
		exts = append(exts, ext)
	}

	if pathChecker == nil {
		pathChecker = pathutil.NewPathChecker()
	}

	return &Locator{
		baseDir:     baseDir,
		extensions:  exts,
		pathChecker: pathChecker,
	}, nil
}

// BaseDir ...
func (l *Locator) BaseDir() string {
	return l.baseDir
}

// Extensions returns the probe order.
func (l *Locator) Extensions() []string {
	return append([]string(nil), l.extensions...)
}

// Path returns the expected path of a tile for one extension.
func (l *Locator) Path(c tilegrid.Coordinate, ext string) string {
	return filepath.Join(l.baseDir, LevelDir(c.Level), RowDir(c.Row), ColumnFile(c.Column, ext))
}

// Locate returns the first existing file for the coordinate in extension priority order.
// A tile missing under every extension is reported with ok == false and a nil error.
func (l *Locator) Locate(c tilegrid.Coordinate) (Tile, bool, error) {
	if c.Row < 0 || c.Column < 0 {
		return Tile{}, false, nil
	}

	for _, ext := range l.extensions {
		pth := l.Path(c, ext)
		exists, err := l.pathChecker.IsPathExists(pth)
		if err != nil {
			return Tile{}, false, fmt.Errorf("check %s: %w", pth, err)
		}
		if exists {
			return Tile{Coordinate: c, Path: pth, Extension: ext}, true, nil
		}
	}

	return Tile{}, false, nil
}

// LevelDir ...
func LevelDir(level int) string {
	return fmt.Sprintf("L%02d", level)
}

// RowDir ...
func RowDir(row int) string {
	return fmt.Sprintf("R%08x", row)
}

// ColumnFile ...
func ColumnFile(column int, ext string) string {
	return fmt.Sprintf("C%08x.%s", column, ext)
}
