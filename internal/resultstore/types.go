package resultstore

import (
	"context"
	"time"

	"github.com/dlanza/callprobe/internal/conversation"
)

// Record is one persisted conversation result with store metadata.
type Record struct {
	ID         string              `json:"id"`
	TestCaseID string              `json:"test_case_id"`
	Result     conversation.Result `json:"result"`
	CreatedAt  time.Time           `json:"created_at"`
}

// Store is the external result sink. The engine writes one record per run;
// readers are dashboards and the HTTP surface.
type Store interface {
	Save(ctx context.Context, record Record) error
	Get(ctx context.Context, callID string) (Record, error)
	Recent(ctx context.Context, limit int) ([]Record, error)
	Close() error
}
