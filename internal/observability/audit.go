package observability

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// AuditEventType categorizes audit events.
type AuditEventType string

const (
	AuditEventFileUpdate      AuditEventType = "file.update"
	AuditEventFileRemove      AuditEventType = "file.remove"
	AuditEventStoreCommit     AuditEventType = "store.commit"
	AuditEventStoreRejected   AuditEventType = "store.rejected"
	AuditEventValidateFix     AuditEventType = "validate.fix"
	AuditEventHashCacheInit   AuditEventType = "hashcache.init"
	AuditEventRegenerateStart AuditEventType = "regenerate.start"
	AuditEventRegenerateEnd   AuditEventType = "regenerate.end"
)

// AuditEvent is one line of the mutation journal.
type AuditEvent struct {
	Timestamp   time.Time      `json:"timestamp"`
	EventType   AuditEventType `json:"event_type"`
	SessionID   string         `json:"session_id"`
	GraphID     string         `json:"graph_id,omitempty"`
	Path        string         `json:"path,omitempty"`
	Success     bool           `json:"success"`
	Duration    time.Duration  `json:"duration_ms,omitempty"`
	Message     string         `json:"message,omitempty"`
	Details     map[string]any `json:"details,omitempty"`
	ErrorDetail string         `json:"error_detail,omitempty"`
}

// AuditLogger appends mutation events as JSON lines.
type AuditLogger struct {
	mu        sync.Mutex
	writer    io.Writer
	sessionID string
	enabled   bool
}

// AuditConfig configures the audit logger.
type AuditConfig struct {
	Enabled    bool
	OutputPath string // File path or "stdout"/"stderr"
	SessionID  string
}

// NewAuditLogger creates an audit logger. A nil or disabled config yields a
// logger that drops every event.
func NewAuditLogger(config *AuditConfig) (*AuditLogger, error) {
	if config == nil || !config.Enabled {
		return &AuditLogger{}, nil
	}

	var writer io.Writer
	switch config.OutputPath {
	case "stdout", "":
		writer = os.Stdout
	case "stderr":
		writer = os.Stderr
	default:
		f, err := os.OpenFile(config.OutputPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return nil, fmt.Errorf("open audit log: %w", err)
		}
		writer = f
	}

	sessionID := config.SessionID
	if sessionID == "" {
		sessionID = fmt.Sprintf("session-%d", time.Now().UnixNano())
	}

	return &AuditLogger{
		writer:    writer,
		sessionID: sessionID,
		enabled:   true,
	}, nil
}

// NewWriterAuditLogger journals to w.
func NewWriterAuditLogger(w io.Writer, sessionID string) *AuditLogger {
	return &AuditLogger{writer: w, sessionID: sessionID, enabled: true}
}

// Log writes an audit event.
func (l *AuditLogger) Log(event *AuditEvent) error {
	if l == nil || !l.enabled {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if event.SessionID == "" {
		event.SessionID = l.sessionID
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}

	_, err = fmt.Fprintf(l.writer, "%s\n", data)
	return err
}

// LogFileUpdate journals an incremental update of one file.
func (l *AuditLogger) LogFileUpdate(ctx context.Context, path string, graphs []string, added, removed int, duration time.Duration) {
	l.Log(&AuditEvent{
		EventType: AuditEventFileUpdate,
		Path:      path,
		Success:   true,
		Duration:  duration,
		Message:   fmt.Sprintf("Updated %s in %s", path, strings.Join(graphs, ", ")),
		Details: map[string]any{
			"graphs":        graphs,
			"edges_added":   added,
			"edges_removed": removed,
		},
	})
}

// LogFileRemove journals the removal of a deleted file's node.
func (l *AuditLogger) LogFileRemove(ctx context.Context, path, graphID, nodeID string) {
	l.Log(&AuditEvent{
		EventType: AuditEventFileRemove,
		GraphID:   graphID,
		Path:      path,
		Success:   true,
		Message:   fmt.Sprintf("Removed node %s", nodeID),
		Details:   map[string]any{"node_id": nodeID},
	})
}

// LogStoreCommit journals a store write.
func (l *AuditLogger) LogStoreCommit(ctx context.Context, graphID string, nodes, edges int, err error) {
	event := &AuditEvent{
		EventType: AuditEventStoreCommit,
		GraphID:   graphID,
		Success:   err == nil,
		Message:   fmt.Sprintf("Committed %s: %d nodes, %d edges", graphID, nodes, edges),
		Details:   map[string]any{"node_count": nodes, "edge_count": edges},
	}
	if err != nil {
		event.ErrorDetail = err.Error()
	}
	l.Log(event)
}

// LogStoreRejected journals a store left uncommitted because validation failed.
func (l *AuditLogger) LogStoreRejected(ctx context.Context, graphID string, violations []string) {
	l.Log(&AuditEvent{
		EventType: AuditEventStoreRejected,
		GraphID:   graphID,
		Success:   false,
		Message:   fmt.Sprintf("Store %s not committed: %d violations", graphID, len(violations)),
		Details:   map[string]any{"violations": violations},
	})
}

// LogValidateFix journals automatic repairs.
func (l *AuditLogger) LogValidateFix(ctx context.Context, graphID string, edgesRemoved, depsPruned int, countsFixed bool) {
	l.Log(&AuditEvent{
		EventType: AuditEventValidateFix,
		GraphID:   graphID,
		Success:   true,
		Message:   fmt.Sprintf("Repaired %s", graphID),
		Details: map[string]any{
			"edges_removed":       edgesRemoved,
			"dependencies_pruned": depsPruned,
			"counts_fixed":        countsFixed,
		},
	})
}

// LogHashCacheInit journals a hash cache initialization.
func (l *AuditLogger) LogHashCacheInit(ctx context.Context, recorded, pruned int, force bool) {
	l.Log(&AuditEvent{
		EventType: AuditEventHashCacheInit,
		Success:   true,
		Message:   fmt.Sprintf("Hash cache initialized: %d recorded, %d pruned", recorded, pruned),
		Details:   map[string]any{"recorded": recorded, "pruned": pruned, "force": force},
	})
}

// LogRegenerateStart journals the start of a full regeneration.
func (l *AuditLogger) LogRegenerateStart(ctx context.Context, stores []string, fileCount int) {
	l.Log(&AuditEvent{
		EventType: AuditEventRegenerateStart,
		Success:   true,
		Message:   fmt.Sprintf("Regenerating %d stores from %d files", len(stores), fileCount),
		Details:   map[string]any{"stores": stores, "file_count": fileCount},
	})
}

// LogRegenerateEnd journals the end of a full regeneration.
func (l *AuditLogger) LogRegenerateEnd(ctx context.Context, committed, failed int, duration time.Duration) {
	l.Log(&AuditEvent{
		EventType: AuditEventRegenerateEnd,
		Success:   failed == 0,
		Duration:  duration,
		Message:   fmt.Sprintf("Regeneration finished: %d committed, %d failed", committed, failed),
		Details:   map[string]any{"committed": committed, "failed": failed},
	})
}

// Close closes the audit logger (if using a file).
func (l *AuditLogger) Close() error {
	if l == nil {
		return nil
	}
	if closer, ok := l.writer.(io.Closer); ok {
		if closer != os.Stdout && closer != os.Stderr {
			return closer.Close()
		}
	}
	return nil
}
