package tilelocator

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/mapcache-tools/tile-etl/tilegrid"
)

// Levels lists the levels that have an Lnn directory in the cache, ascending.
func (l *Locator) Levels() ([]int, error) {
	fsys := os.DirFS(l.baseDir)

	matches, err := doublestar.Glob(fsys, "L*")
	if err != nil {
		return nil, fmt.Errorf("glob levels in %s: %w", l.baseDir, err)
	}

	var levels []int
	for _, m := range matches {
		level, ok := parseIndex(m, "L", 10)
		if !ok {
			continue
		}
		if info, err := fs.Stat(fsys, m); err != nil || !info.IsDir() {
			continue
		}
		levels = append(levels, level)
	}
	sort.Ints(levels)

	return levels, nil
}

// Walk calls fn for every tile present on disk at the given level, rows ascending and
// columns ascending within a row. When a coordinate exists with several candidate
// extensions only the highest priority one is reported. Files with other extensions and
// names that do not follow the cache layout are ignored.
func (l *Locator) Walk(ctx context.Context, level int, fn func(Tile) error) error {
	fsys := os.DirFS(l.baseDir)
	levelDir := LevelDir(level)

	rowDirs, err := doublestar.Glob(fsys, path.Join(levelDir, "R*"))
	if err != nil {
		return fmt.Errorf("glob rows in %s: %w", levelDir, err)
	}

	type rowEntry struct {
		dir string
		row int
	}
	var rows []rowEntry
	for _, dir := range rowDirs {
		row, ok := parseIndex(path.Base(dir), "R", 16)
		if !ok {
			continue
		}
		rows = append(rows, rowEntry{dir: dir, row: row})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].row < rows[j].row })

	for _, r := range rows {
		if err := ctx.Err(); err != nil {
			return err
		}

		tiles, err := l.rowTiles(fsys, level, r.row, r.dir)
		if err != nil {
			return err
		}
		for _, tile := range tiles {
			if err := fn(tile); err != nil {
				return err
			}
		}
	}

	return nil
}

func (l *Locator) rowTiles(fsys fs.FS, level, row int, dir string) ([]Tile, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("read row directory %s: %w", dir, err)
	}

	priority := make(map[string]int, len(l.extensions))
	for i, ext := range l.extensions {
		priority[ext] = i
	}

	best := map[int]Tile{}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()
		ext := strings.ToLower(strings.TrimPrefix(path.Ext(name), "."))
		rank, known := priority[ext]
		if !known {
			continue
		}

		column, ok := parseIndex(strings.TrimSuffix(name, path.Ext(name)), "C", 16)
		if !ok {
			continue
		}

		if current, seen := best[column]; seen && priority[current.Extension] <= rank {
			continue
		}
		best[column] = Tile{
			Coordinate: tilegrid.Coordinate{Level: level, Row: row, Column: column},
			Path:       filepath.Join(l.baseDir, filepath.FromSlash(dir), name),
			Extension:  ext,
		}
	}

	tiles := make([]Tile, 0, len(best))
	for _, tile := range best {
		tiles = append(tiles, tile)
	}
	sort.Slice(tiles, func(i, j int) bool { return tiles[i].Coordinate.Column < tiles[j].Coordinate.Column })

	return tiles, nil
}

func parseIndex(name, prefix string, base int) (int, bool) {
	if !strings.HasPrefix(name, prefix) || len(name) == len(prefix) {
		return 0, false
	}
	v, err := strconv.ParseInt(name[len(prefix):], base, 64)
	if err != nil || v < 0 {
		return 0, false
	}
	return int(v), true
}
