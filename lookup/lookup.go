// Package lookup defines how stored unicorns are read back by id.
//
// Querying the analytic engine over stored objects is not implemented; the
// Unimplemented finder keeps that absence observable.
package lookup

import (
	"context"
	"errors"

	"github.com/baldanca/unicorn-api/payload"
)

var (
	ErrNotFound       = errors.New("unicorn not found")
	ErrNotImplemented = errors.New("lookup not implemented")
)

// Finder returns the record stored under id, or ErrNotFound.
type Finder interface {
	FindByID(ctx context.Context, id string) (payload.UnicornResponse, error)
}

// FinderFunc adapts a function to Finder.
type FinderFunc func(ctx context.Context, id string) (payload.UnicornResponse, error)

func (f FinderFunc) FindByID(ctx context.Context, id string) (payload.UnicornResponse, error) {
	return f(ctx, id)
}

// Unimplemented answers every lookup with ErrNotImplemented.
type Unimplemented struct{}

func (Unimplemented) FindByID(context.Context, string) (payload.UnicornResponse, error) {
	return payload.UnicornResponse{}, ErrNotImplemented
}
