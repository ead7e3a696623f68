package temporal

import (
	"context"
	"errors"
	"fmt"

	"go.temporal.io/sdk/activity"
	sdktemporal "go.temporal.io/sdk/temporal"

	"github.com/efebarandurmaz/codegraph/internal/pipeline"
)

// FileLister enumerates the repository files to index.
type FileLister interface {
	Files(ctx context.Context) ([]string, error)
}

// Dependencies holds shared resources injected into activities.
type Dependencies struct {
	Pipeline *pipeline.Pipeline
	Files    FileLister
}

var deps *Dependencies

// SetDependencies injects shared resources (called during worker setup).
func SetDependencies(d *Dependencies) {
	deps = d
}

// FileList is the result of ListFilesActivity.
type FileList struct {
	Files  []string
	Stores []string
}

// StoreInput names one store to rebuild from Files.
type StoreInput struct {
	StoreID string
	Files   []string
}

func ListFilesActivity(ctx context.Context) (FileList, error) {
	if deps == nil {
		return FileList{}, errors.New("temporal dependencies not set")
	}
	files, err := deps.Files.Files(ctx)
	if err != nil {
		return FileList{}, fmt.Errorf("list files: %w", err)
	}
	cfg := deps.Pipeline.Config()
	ids := make([]string, len(cfg.Stores))
	for i, s := range cfg.Stores {
		ids[i] = s.ID
	}
	return FileList{Files: files, Stores: ids}, nil
}

// RegenerateStoreActivity rebuilds one store. A rejected or failed commit is
// reported in the outcome rather than as an activity error, since retrying
// against the same files cannot change the result. Unknown stores fail
// without retry.
func RegenerateStoreActivity(ctx context.Context, input StoreInput) (pipeline.StoreOutcome, error) {
	if deps == nil {
		return pipeline.StoreOutcome{}, errors.New("temporal dependencies not set")
	}
	logger := activity.GetLogger(ctx)

	out, err := deps.Pipeline.RegenerateStore(ctx, input.StoreID, input.Files)
	switch {
	case errors.Is(err, pipeline.ErrUnknownStore):
		return out, sdktemporal.NewNonRetryableApplicationError(err.Error(), "UnknownStore", err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return out, err
	case err != nil:
		logger.Warn("store regeneration failed", "store", input.StoreID, "status", out.Status, "error", err)
	}
	return out, nil
}
