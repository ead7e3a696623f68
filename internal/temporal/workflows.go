package temporal

import (
	"time"

	sdktemporal "go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/efebarandurmaz/codegraph/internal/pipeline"
)

const maxAttempts = 3

// RegenerateInput holds the workflow parameters.
type RegenerateInput struct {
	// Stores limits regeneration to these ids. Empty means every configured store.
	Stores []string
}

// RegenerateOutput holds the workflow result.
type RegenerateOutput struct {
	Files  int
	Stores []pipeline.StoreOutcome
	Failed []string
}

// RegenerateWorkflow lists repository files once, then rebuilds each store
// in its own activity. Stores are independent; one failing store does not
// stop the others.
func RegenerateWorkflow(ctx workflow.Context, input RegenerateInput) (*RegenerateOutput, error) {
	ao := workflow.ActivityOptions{
		StartToCloseTimeout: 10 * time.Minute,
		RetryPolicy:         &sdktemporal.RetryPolicy{MaximumAttempts: maxAttempts},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)
	logger := workflow.GetLogger(ctx)

	var list FileList
	if err := workflow.ExecuteActivity(ctx, ListFilesActivity).Get(ctx, &list); err != nil {
		return nil, err
	}
	stores := input.Stores
	if len(stores) == 0 {
		stores = list.Stores
	}

	futures := make([]workflow.Future, len(stores))
	for i, id := range stores {
		futures[i] = workflow.ExecuteActivity(ctx, RegenerateStoreActivity, StoreInput{StoreID: id, Files: list.Files})
	}

	out := &RegenerateOutput{Files: len(list.Files)}
	for i, f := range futures {
		var so pipeline.StoreOutcome
		if err := f.Get(ctx, &so); err != nil {
			logger.Warn("store activity failed", "store", stores[i], "error", err)
			so = pipeline.StoreOutcome{Graph: stores[i], Status: pipeline.StatusFailed, Error: err.Error()}
		}
		if so.Status != pipeline.StatusCommitted && so.Status != pipeline.StatusUnchanged {
			out.Failed = append(out.Failed, so.Graph)
		}
		out.Stores = append(out.Stores, so)
	}
	return out, nil
}
