// Package metrics builds the human-readable run report printed by the CLI
// after a batch operation.
package metrics

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/efebarandurmaz/codegraph/internal/pipeline"
)

// RunReport collects statistics for one CLI operation.
type RunReport struct {
	Operation  string        `json:"operation"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at,omitempty"`
	Duration   time.Duration `json:"duration_ms,omitempty"`
	Files      FileCounts    `json:"files"`
	Stores     []StoreLine   `json:"stores"`
	Aborted    bool          `json:"aborted,omitempty"`
	Errors     []string      `json:"errors,omitempty"`
}

// FileCounts tallies per-file outcomes by status.
type FileCounts struct {
	Total    int                     `json:"total"`
	ByStatus map[pipeline.Status]int `json:"by_status"`
}

type StoreLine struct {
	Graph        string          `json:"graph"`
	Status       pipeline.Status `json:"status"`
	Nodes        int             `json:"nodes"`
	Edges        int             `json:"edges"`
	EdgesAdded   int             `json:"edges_added"`
	EdgesRemoved int             `json:"edges_removed"`
	Violations   int             `json:"violations"`
}

// New starts tracking an operation.
func New(operation string) *RunReport {
	return &RunReport{
		Operation: operation,
		StartedAt: time.Now(),
		Files:     FileCounts{ByStatus: make(map[pipeline.Status]int)},
	}
}

// AddFiles counts file outcomes.
func (r *RunReport) AddFiles(outs []pipeline.Outcome) {
	for _, o := range outs {
		r.Files.Total++
		r.Files.ByStatus[o.Status]++
		if o.Error != "" {
			r.Errors = append(r.Errors, fmt.Sprintf("%s: %s", o.Path, o.Error))
		}
	}
}

// AddStores records store outcomes.
func (r *RunReport) AddStores(outs []pipeline.StoreOutcome) {
	for _, o := range outs {
		r.Stores = append(r.Stores, StoreLine{
			Graph:        o.Graph,
			Status:       o.Status,
			Nodes:        o.Nodes,
			Edges:        o.Edges,
			EdgesAdded:   o.EdgesAdded,
			EdgesRemoved: o.EdgesRemoved,
			Violations:   len(o.Violations),
		})
		if o.Error != "" {
			r.Errors = append(r.Errors, fmt.Sprintf("store %s: %s", o.Graph, o.Error))
		}
	}
}

// Finish marks the operation as complete.
func (r *RunReport) Finish(err error) {
	r.FinishedAt = time.Now()
	r.Duration = r.FinishedAt.Sub(r.StartedAt)
	if err != nil {
		r.Errors = append(r.Errors, err.Error())
	}
}

// PrintSummary writes a human-readable summary.
func (r *RunReport) PrintSummary(w io.Writer) {
	fmt.Fprintf(w, "\n%s finished in %s\n", r.Operation, r.Duration.Round(time.Millisecond))
	if r.Aborted {
		fmt.Fprintf(w, "  ABORTED: nothing was written\n")
	}
	fmt.Fprintf(w, "  Files: %d", r.Files.Total)
	for _, st := range statusOrder {
		if n := r.Files.ByStatus[st]; n > 0 {
			fmt.Fprintf(w, "  %s=%d", st, n)
		}
	}
	fmt.Fprintln(w)
	if len(r.Stores) > 0 {
		fmt.Fprintf(w, "  %-24s %-10s %7s %7s %7s %7s\n", "STORE", "STATUS", "NODES", "EDGES", "+EDGES", "-EDGES")
		for _, s := range r.Stores {
			fmt.Fprintf(w, "  %-24s %-10s %7d %7d %7d %7d\n", s.Graph, s.Status, s.Nodes, s.Edges, s.EdgesAdded, s.EdgesRemoved)
			if s.Violations > 0 {
				fmt.Fprintf(w, "    %d violation(s) remain\n", s.Violations)
			}
		}
	}
	if len(r.Errors) > 0 {
		fmt.Fprintf(w, "  Errors:\n")
		for _, e := range r.Errors {
			fmt.Fprintf(w, "    - %s\n", e)
		}
	}
}

var statusOrder = []pipeline.Status{
	pipeline.StatusUpdated,
	pipeline.StatusSkipped,
	pipeline.StatusRemoved,
	pipeline.StatusParseError,
	pipeline.StatusIgnored,
	pipeline.StatusFailed,
}

// JSON returns the report as formatted JSON.
func (r *RunReport) JSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}
