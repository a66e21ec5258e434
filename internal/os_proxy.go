package internal

import (
	"os"
)

// OsProxy defines the subset of os package functions the upload workers use.
// Add more methods as you need them.
type OsProxy interface {
	ReadFile(name string) ([]byte, error)
}

// RealOS is the default implementation that delegates to the real os package.
type RealOS struct{}

func (RealOS) ReadFile(name string) ([]byte, error) { return os.ReadFile(name) } //nolint:revive
