package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/repreneur-cli/internal/config"
	"github.com/sells-group/repreneur-cli/internal/model"
)

// ErrNotFound is returned when a run id is unknown.
var ErrNotFound = eris.New("run not found")

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status model.RunStatus `json:"status,omitempty"`
	Limit  int             `json:"limit,omitempty"`
	Offset int             `json:"offset,omitempty"`
}

// Store is the run ledger. It records one row per pipeline run and never
// holds candidates; the snapshot file is the system of record for those.
type Store interface {
	// CreateRun records a run in the running state.
	CreateRun(ctx context.Context, summary *model.RunSummary) (*model.Run, error)
	// FinishRun stores the final summary and its status.
	FinishRun(ctx context.Context, summary *model.RunSummary) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	Migrate(ctx context.Context) error
	Close() error
}

// Open returns the ledger backend selected by cfg.Driver and migrates it.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	var (
		s   Store
		err error
	)
	switch cfg.Driver {
	case "", "sqlite":
		s, err = NewSQLite(cfg.DatabaseURL)
	case "postgres":
		s, err = NewPostgres(ctx, cfg.DatabaseURL, nil)
	case "none":
		return Noop{}, nil
	default:
		return nil, eris.Errorf("store: unknown driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}
	if err := s.Migrate(ctx); err != nil {
		s.Close() //nolint:errcheck
		return nil, err
	}
	return s, nil
}

// Noop discards ledger writes. Reads report nothing recorded.
type Noop struct{}

func (Noop) CreateRun(_ context.Context, summary *model.RunSummary) (*model.Run, error) {
	return &model.Run{
		ID:        summary.RunID,
		Status:    model.RunStatusRunning,
		CreatedAt: summary.StartedAt,
		UpdatedAt: summary.StartedAt,
	}, nil
}

func (Noop) FinishRun(context.Context, *model.RunSummary) error { return nil }

func (Noop) GetRun(_ context.Context, runID string) (*model.Run, error) {
	return nil, eris.Wrapf(ErrNotFound, "noop: %s", runID)
}

func (Noop) ListRuns(context.Context, RunFilter) ([]model.Run, error) { return nil, nil }

func (Noop) Migrate(context.Context) error { return nil }

func (Noop) Close() error { return nil }

func listLimit(f RunFilter) int {
	if f.Limit <= 0 {
		return 100
	}
	return f.Limit
}

func finishStatus(summary *model.RunSummary) model.RunStatus {
	if summary.Status == "" || summary.Status == model.RunStatusRunning {
		if summary.Error != "" {
			return model.RunStatusFailed
		}
		return model.RunStatusComplete
	}
	return summary.Status
}
