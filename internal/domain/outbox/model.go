package outbox

import (
	"context"
	"time"

	"github.com/alexeysirenko/prjctr-home-assignments-2-tig/internal/domain/message"
)

// Status tracks how far a stored message got on its way into the search index.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusDispatched Status = "dispatched"
	StatusIndexed    Status = "indexed"
)

// Stats is a snapshot of the propagation backlog. Legacy counts documents
// that predate sync tracking and are treated as pending.
type Stats struct {
	Pending    int64 `json:"pending"`
	Processing int64 `json:"processing"`
	Dispatched int64 `json:"dispatched"`
	Indexed    int64 `json:"indexed"`
	Legacy     int64 `json:"legacy"`
}

func (s Stats) Backlog() int64 {
	return s.Pending + s.Processing + s.Dispatched + s.Legacy
}

type Repository interface {
	ClaimBatch(ctx context.Context, limit int, lease time.Duration) ([]message.Message, error)
	MarkIndexed(ctx context.Context, ids []string) error
	MarkDispatched(ctx context.Context, ids []string, lease time.Duration) error
	Release(ctx context.Context, ids []string, cause error) error
}
