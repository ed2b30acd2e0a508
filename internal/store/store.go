package store

import (
	"context"
	"errors"
)

// ErrUnavailable wraps any cache connectivity failure. Callers surface it as
// an error event and keep the connection open.
var ErrUnavailable = errors.New("message store unavailable")

func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}

// Store is the capped, ordered, per-room message log.
//
// Range counts offset backwards from the most recent message and returns the
// page in chronological order; an out-of-range offset yields an empty slice.
// Search matches the payload text as a case-insensitive substring within the
// retained window. Clear is idempotent.
type Store interface {
	Append(ctx context.Context, room string, m *Message) error
	Range(ctx context.Context, room string, limit, offset int) ([]*Message, error)
	Count(ctx context.Context, room string) (int64, error)
	Search(ctx context.Context, room, term string) ([]*Message, error)
	Clear(ctx context.Context, room string) error
}
