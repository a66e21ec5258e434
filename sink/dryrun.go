package sink

import (
	"context"
	"sync/atomic"

	"github.com/bitrise-io/go-utils/v2/log"
)

// DryRun accepts every object without transferring it.
type DryRun struct {
	logger log.Logger
	count  atomic.Int64
	bytes  atomic.Int64
}

// NewDryRun ...
func NewDryRun(logger log.Logger) *DryRun {
	return &DryRun{logger: logger}
}

// Put ...
func (d *DryRun) Put(ctx context.Context, key string, data []byte, contentType string, acl ACL) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.count.Add(1)
	d.bytes.Add(int64(len(data)))
	d.logger.Debugf("[dry-run] put %s (%s, %d bytes, %s)", key, contentType, len(data), acl)
	return nil
}

// Count returns the number of accepted objects.
func (d *DryRun) Count() int64 { return d.count.Load() }

// Bytes returns the total size of accepted objects.
func (d *DryRun) Bytes() int64 { return d.bytes.Load() }
