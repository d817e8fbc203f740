package websocket

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"
)

// ErrorType represents different categories of errors that can occur
type ErrorType string

const (
	ConnectionError ErrorType = "connection"
	ProtocolError   ErrorType = "protocol"
	SystemError     ErrorType = "system"
)

// ErrorEvent represents a single error occurrence
type ErrorEvent struct {
	Type       ErrorType `json:"type"`
	ClientID   string    `json:"clientId,omitempty"`
	Username   string    `json:"username,omitempty"`
	Message    string    `json:"message"`
	Error      string    `json:"error,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
	StackTrace string    `json:"stackTrace,omitempty"`
}

// ErrorHandler records hub and connection errors and keeps a bounded history
type ErrorHandler struct {
	logger *slog.Logger

	mu          sync.RWMutex
	counts      map[ErrorType]int
	history     []ErrorEvent
	historyPos  int
	historySize int
}

// NewErrorHandler creates an error handler keeping the last historySize events
func NewErrorHandler(logger *slog.Logger, historySize int) *ErrorHandler {
	if historySize <= 0 {
		historySize = 100
	}
	return &ErrorHandler{
		logger:      logger,
		counts:      make(map[ErrorType]int),
		history:     make([]ErrorEvent, 0, historySize),
		historySize: historySize,
	}
}

// HandleConnectionError records a failure that cost a single connection
func (h *ErrorHandler) HandleConnectionError(client *Client, err error) {
	h.record(ErrorEvent{
		Type:     ConnectionError,
		ClientID: client.id,
		Username: client.identity.Username,
		Message:  "Connection dropped",
		Error:    errString(err),
	}, slog.LevelWarn)
}

// HandleProtocolError records a frame that was dropped
func (h *ErrorHandler) HandleProtocolError(client *Client, err error) {
	h.record(ErrorEvent{
		Type:     ProtocolError,
		ClientID: client.id,
		Username: client.identity.Username,
		Message:  "Dropped invalid frame",
		Error:    errString(err),
	}, slog.LevelDebug)
}

// HandleSystemError records a recovered panic in a hub component
func (h *ErrorHandler) HandleSystemError(component string, recovered any) {
	h.record(ErrorEvent{
		Type:       SystemError,
		Message:    fmt.Sprintf("Recovered panic in %s", component),
		Error:      fmt.Sprint(recovered),
		StackTrace: captureStackTrace(3),
	}, slog.LevelError)
}

// GetErrorStats returns how many errors of each type occurred
func (h *ErrorHandler) GetErrorStats() map[ErrorType]int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	stats := make(map[ErrorType]int, len(h.counts))
	for k, v := range h.counts {
		stats[k] = v
	}
	return stats
}

// GetErrorHistory returns the retained events, oldest first
func (h *ErrorHandler) GetErrorHistory() []ErrorEvent {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if len(h.history) < h.historySize {
		return append([]ErrorEvent(nil), h.history...)
	}
	out := make([]ErrorEvent, 0, h.historySize)
	out = append(out, h.history[h.historyPos:]...)
	return append(out, h.history[:h.historyPos]...)
}

func (h *ErrorHandler) record(event ErrorEvent, level slog.Level) {
	event.Timestamp = time.Now()

	h.mu.Lock()
	h.counts[event.Type]++
	if len(h.history) < h.historySize {
		h.history = append(h.history, event)
	} else {
		h.history[h.historyPos] = event
		h.historyPos = (h.historyPos + 1) % h.historySize
	}
	h.mu.Unlock()

	attrs := []any{"type", event.Type, "error", event.Error}
	if event.ClientID != "" {
		attrs = append(attrs, "clientID", event.ClientID, "username", event.Username)
	}
	if event.StackTrace != "" {
		attrs = append(attrs, "stack", event.StackTrace)
	}
	h.logger.Log(context.Background(), level, event.Message, attrs...)
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// captureStackTrace returns the current goroutine's stack without the innermost skip frames
func captureStackTrace(skip int) string {
	pcs := make([]uintptr, 20)
	n := runtime.Callers(skip+1, pcs)
	frames := runtime.CallersFrames(pcs[:n])

	var trace string
	for {
		frame, more := frames.Next()
		trace += fmt.Sprintf("%s\n\t%s:%d\n", frame.Function, frame.File, frame.Line)
		if !more {
			break
		}
	}
	return trace
}
