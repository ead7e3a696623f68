package query

import (
	"errors"
	"fmt"

	"github.com/efebarandurmaz/codegraph/internal/depgraph"
)

var (
	ErrGraphNotFound    = errors.New("graph not found")
	ErrSubGraphNotFound = errors.New("sub-graph not found")
	// ErrNodeNotFound is the Graph Store's own sentinel, so errors from the
	// impact analyzer match it too.
	ErrNodeNotFound = depgraph.ErrNodeNotFound
)

// Kind names what a NotFoundError failed to find.
type Kind string

const (
	KindGraph    Kind = "graph"
	KindSubGraph Kind = "sub-graph"
	KindNode     Kind = "node"
)

// NotFoundError is returned when a graph, sub-graph or node id does not exist.
type NotFoundError struct {
	Kind Kind
	ID   string
	// Graph is the graph searched for a missing node or sub-graph.
	Graph string
}

func (e *NotFoundError) Error() string {
	if e.Graph != "" {
		return fmt.Sprintf("%s %q not found in %q", e.Kind, e.ID, e.Graph)
	}
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error {
	switch e.Kind {
	case KindSubGraph:
		return ErrSubGraphNotFound
	case KindNode:
		return ErrNodeNotFound
	default:
		return ErrGraphNotFound
	}
}

// IsNotFound reports whether err is any of the not-found errors.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrGraphNotFound) || errors.Is(err, ErrSubGraphNotFound) || errors.Is(err, ErrNodeNotFound)
}
