package bus

import (
	"context"

	"github.com/chorusapp/chorus-backend/internal/realtime"
)

// Bus fans SSE messages across backend replicas so a run executing on one
// replica reaches clients streaming from another.
type Bus interface {
	Publish(ctx context.Context, msg realtime.SSEMessage) error
	StartForwarder(ctx context.Context, onMsg func(m realtime.SSEMessage)) error
	Close() error
}
