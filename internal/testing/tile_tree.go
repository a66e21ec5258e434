package testing

import (
	"fmt"
	"os"
	"path/filepath"
)

// TileTree builds an exploded tile cache on disk for tests.
type TileTree struct {
	Root  string
	Files []string
	err   error
}

// NewTileTree creates a TileTree rooted at root. The directory is created on the first Add.
func NewTileTree(root string) *TileTree {
	return &TileTree{Root: root}
}

// Add writes a tile file for the coordinate. The content defaults to the tile address.
func (tt *TileTree) Add(level, row, column int, ext string, content ...byte) *TileTree {
	if tt.err != nil {
		return tt
	}

	if len(content) == 0 {
		content = []byte(fmt.Sprintf("tile %d/%d/%d.%s", level, row, column, ext))
	}

	dir := filepath.Join(tt.Root, fmt.Sprintf("L%02d", level), fmt.Sprintf("R%08x", row))
	if err := os.MkdirAll(dir, 0755); err != nil {
		tt.err = fmt.Errorf("create %s: %w", dir, err)
		return tt
	}

	pth := filepath.Join(dir, fmt.Sprintf("C%08x.%s", column, ext))
	if err := os.WriteFile(pth, content, 0644); err != nil {
		tt.err = fmt.Errorf("write %s: %w", pth, err)
		return tt
	}
	tt.Files = append(tt.Files, pth)

	return tt
}

// AddBlock writes one tile for every coordinate of the inclusive block.
func (tt *TileTree) AddBlock(level, startRow, endRow, startColumn, endColumn int, ext string) *TileTree {
	for row := startRow; row <= endRow; row++ {
		for column := startColumn; column <= endColumn; column++ {
			tt.Add(level, row, column, ext)
		}
	}
	return tt
}

// AddRaw writes an arbitrary file below the root, for layouts the cache does not produce.
func (tt *TileTree) AddRaw(rel string, content []byte) *TileTree {
	if tt.err != nil {
		return tt
	}

	pth := filepath.Join(tt.Root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(pth), 0755); err != nil {
		tt.err = fmt.Errorf("create %s: %w", filepath.Dir(pth), err)
		return tt
	}
	if err := os.WriteFile(pth, content, 0644); err != nil {
		tt.err = fmt.Errorf("write %s: %w", pth, err)
	}

	return tt
}

// Err returns the first error encountered while building the tree.
func (tt *TileTree) Err() error {
	return tt.err
}
