package temporal

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	sdktemporal "go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/testsuite"

	"github.com/efebarandurmaz/codegraph/internal/analyzer"
	"github.com/efebarandurmaz/codegraph/internal/config"
	"github.com/efebarandurmaz/codegraph/internal/depgraph"
	"github.com/efebarandurmaz/codegraph/internal/hashstore"
	"github.com/efebarandurmaz/codegraph/internal/observability"
	"github.com/efebarandurmaz/codegraph/internal/pipeline"
)

type staticFiles []string

func (s staticFiles) Files(context.Context) ([]string, error) { return s, nil }

type RegenerateWorkflowSuite struct {
	suite.Suite
	testsuite.WorkflowTestSuite
	env *testsuite.TestWorkflowEnvironment
}

func (s *RegenerateWorkflowSuite) SetupTest() {
	s.env = s.NewTestWorkflowEnvironment()
	s.env.RegisterActivity(ListFilesActivity)
	s.env.RegisterActivity(RegenerateStoreActivity)
}

func (s *RegenerateWorkflowSuite) AfterTest(_, _ string) {
	s.env.AssertExpectations(s.T())
}

func (s *RegenerateWorkflowSuite) TestFansOutPerStore() {
	files := []string{"pkg/a.py", "pkg/b.py"}
	s.env.OnActivity(ListFilesActivity, mock.Anything).
		Return(FileList{Files: files, Stores: []string{"core", "docs"}}, nil)
	s.env.OnActivity(RegenerateStoreActivity, mock.Anything, StoreInput{StoreID: "core", Files: files}).
		Return(pipeline.StoreOutcome{Graph: "core", Status: pipeline.StatusCommitted, Nodes: 2}, nil)
	s.env.OnActivity(RegenerateStoreActivity, mock.Anything, StoreInput{StoreID: "docs", Files: files}).
		Return(pipeline.StoreOutcome{Graph: "docs", Status: pipeline.StatusRejected}, nil)

	s.env.ExecuteWorkflow(RegenerateWorkflow, RegenerateInput{})

	s.Require().True(s.env.IsWorkflowCompleted())
	s.Require().NoError(s.env.GetWorkflowError())
	var out RegenerateOutput
	s.Require().NoError(s.env.GetWorkflowResult(&out))
	s.Equal(2, out.Files)
	s.Len(out.Stores, 2)
	s.Equal([]string{"docs"}, out.Failed)
}

func (s *RegenerateWorkflowSuite) TestSelectedStoresAndActivityFailure() {
	s.env.OnActivity(ListFilesActivity, mock.Anything).
		Return(FileList{Files: []string{"pkg/a.py"}, Stores: []string{"core", "docs"}}, nil)
	s.env.OnActivity(RegenerateStoreActivity, mock.Anything, mock.Anything).
		Return(pipeline.StoreOutcome{}, sdktemporal.NewNonRetryableApplicationError("disk full", "IO", nil))

	s.env.ExecuteWorkflow(RegenerateWorkflow, RegenerateInput{Stores: []string{"core"}})

	s.Require().NoError(s.env.GetWorkflowError())
	var out RegenerateOutput
	s.Require().NoError(s.env.GetWorkflowResult(&out))
	s.Require().Len(out.Stores, 1)
	s.Equal(pipeline.StatusFailed, out.Stores[0].Status)
	s.Contains(out.Stores[0].Error, "disk full")
	s.Equal([]string{"core"}, out.Failed)
}

func TestRegenerateWorkflowSuite(t *testing.T) {
	suite.Run(t, new(RegenerateWorkflowSuite))
}

func newPipeline(t *testing.T) (*pipeline.Pipeline, *config.Config) {
	t.Helper()
	root := t.TempDir()
	files := map[string]string{
		"pkg/__init__.py": "",
		"pkg/a.py":        "import pkg.b\n",
		"pkg/b.py":        "def helper():\n    pass\n",
	}
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}

	cfg := config.Default()
	cfg.Project.Root = root
	cfg.Project.Namespaces = []string{"pkg"}
	hashes, err := hashstore.Open(root, cfg.HashCachePath())
	require.NoError(t, err)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	p := pipeline.New(cfg, analyzer.New(0, logger), hashes,
		pipeline.WithLogger(logger), pipeline.WithMetrics(observability.NewMetrics()))
	return p, cfg
}

func TestActivities_AgainstPipeline(t *testing.T) {
	p, cfg := newPipeline(t)
	SetDependencies(&Dependencies{
		Pipeline: p,
		Files:    staticFiles{"pkg/__init__.py", "pkg/a.py", "pkg/b.py"},
	})
	t.Cleanup(func() { SetDependencies(nil) })

	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestActivityEnvironment()
	env.RegisterActivity(ListFilesActivity)
	env.RegisterActivity(RegenerateStoreActivity)

	val, err := env.ExecuteActivity(ListFilesActivity)
	require.NoError(t, err)
	var list FileList
	require.NoError(t, val.Get(&list))
	require.Equal(t, []string{"project_overview"}, list.Stores)

	val, err = env.ExecuteActivity(RegenerateStoreActivity, StoreInput{StoreID: "project_overview", Files: list.Files})
	require.NoError(t, err)
	var out pipeline.StoreOutcome
	require.NoError(t, val.Get(&out))
	require.Equal(t, pipeline.StatusCommitted, out.Status)
	require.Equal(t, 3, out.Nodes)

	s, _ := cfg.Store("project_overview")
	g, err := depgraph.Load(cfg.StorePath(s))
	require.NoError(t, err)
	require.Len(t, g.OutgoingEdges("pkg.a", depgraph.EdgeImports), 1)

	_, err = env.ExecuteActivity(RegenerateStoreActivity, StoreInput{StoreID: "missing"})
	require.Error(t, err)
}

func TestActivities_WithoutDependencies(t *testing.T) {
	SetDependencies(nil)
	_, err := ListFilesActivity(context.Background())
	require.Error(t, err)
}
