// Package sink uploads tile bytes to object storage. Every implementation is safe for
// concurrent use by the upload workers.
package sink

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// ErrAccessDenied marks failures caused by rejected credentials or missing permissions.
// Retrying them does not help.
var ErrAccessDenied = errors.New("access denied")

// ACL is the access policy applied to an uploaded object.
type ACL int

const (
	// PublicRead makes the object readable by anyone.
	PublicRead ACL = iota
	// Private keeps the object readable only by the bucket owner.
	Private
)

func (a ACL) String() string {
	switch a {
	case PublicRead:
		return "public-read"
	case Private:
		return "private"
	default:
		return fmt.Sprintf("ACL(%d)", int(a))
	}
}

// ParseACL ...
func ParseACL(s string) (ACL, error) {
	switch s {
	case "", "public-read", "publicRead", "public":
		return PublicRead, nil
	case "private":
		return Private, nil
	default:
		return 0, fmt.Errorf("unknown acl %q, supported values: public-read, private", s)
	}
}

// Sink stores one object under a '/' delimited key.
type Sink interface {
	Put(ctx context.Context, key string, data []byte, contentType string, acl ACL) error
}

// Func adapts a function to the Sink interface.
type Func func(ctx context.Context, key string, data []byte, contentType string, acl ACL) error

// Put ...
func (f Func) Put(ctx context.Context, key string, data []byte, contentType string, acl ACL) error {
	return f(ctx, key, data, contentType, acl)
}

// Close releases the clients held by s. Sinks without resources are left alone.
func Close(s Sink) error {
	if c, ok := s.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func accessDenied(err error) error {
	return fmt.Errorf("%w: %w", ErrAccessDenied, err)
}
