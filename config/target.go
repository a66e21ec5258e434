package config

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownMap is returned when no target is configured for a map name.
var ErrUnknownMap = errors.New("unknown map")

// MapTarget is the destination of one map: a bucket and the folder its keys are placed under.
type MapTarget struct {
	Bucket string
	Folder string
}

func (t MapTarget) String() string {
	if t.Folder == "" {
		return t.Bucket
	}
	return t.Bucket + "/" + t.Folder
}

// Provider resolves a map name to its destination.
type Provider interface {
	Target(mapName string) (MapTarget, error)
}

var _ Provider = (*File)(nil)

// ParseTarget parses the "bucket;folder" form. The folder part is optional.
func ParseTarget(s string) (MapTarget, error) {
	bucket, folder, _ := strings.Cut(s, ";")
	t := MapTarget{
		Bucket: strings.TrimSpace(bucket),
		Folder: strings.Trim(strings.TrimSpace(folder), "/"),
	}
	if t.Bucket == "" {
		return MapTarget{}, fmt.Errorf("invalid target %q: bucket must not be empty", s)
	}
	if strings.Contains(t.Folder, ";") {
		return MapTarget{}, fmt.Errorf("invalid target %q: expected bucket;folder", s)
	}
	return t, nil
}
