package logger

import (
	"fmt"
	"sync"
	"time"
)

// BatchTracker reports progress over a batch of statement documents being
// extracted concurrently. Safe for use from multiple workers.
type BatchTracker struct {
	logger    Logger
	operation string
	total     int64
	done      int64
	skipped   int64
	startTime time.Time
	mu        sync.Mutex
}

// NewBatchTracker creates a tracker for a batch of total documents.
func NewBatchTracker(operation string, total int, l Logger) *BatchTracker {
	if l == nil {
		l = GetGlobalLogger()
	}
	t := &BatchTracker{
		logger:    l.WithComponent("batch"),
		operation: operation,
		total:     int64(total),
		startTime: time.Now(),
	}
	t.logger.WithFields(Fields{
		"operation": operation,
		"total":     total,
	}).Info("Starting batch")
	return t
}

// Done records one successfully processed document.
func (t *BatchTracker) Done(name string) {
	t.mu.Lock()
	t.done++
	done, total := t.done, t.total
	t.mu.Unlock()

	t.logger.WithFields(Fields{
		"operation": t.operation,
		"document":  name,
		"progress":  fmt.Sprintf("%d/%d", done, total),
	}).Debug("Document processed")
}

// Skipped records one document that failed and was skipped.
func (t *BatchTracker) Skipped(name string, err error) {
	t.mu.Lock()
	t.skipped++
	t.mu.Unlock()

	t.logger.WithError(err).WithFields(Fields{
		"operation": t.operation,
		"document":  name,
	}).Warn("Document skipped")
}

// Complete logs final batch statistics and returns the processed and
// skipped counts.
func (t *BatchTracker) Complete() (processed, skipped int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.logger.WithFields(Fields{
		"operation": t.operation,
		"total":     t.total,
		"processed": t.done,
		"skipped":   t.skipped,
		"duration":  time.Since(t.startTime).String(),
	}).Info("Batch completed")
	return int(t.done), int(t.skipped)
}

// OperationLogger provides structured logging for pipeline stages with
// timing.
type OperationLogger struct {
	logger    Logger
	operation string
	fields    Fields
	startTime time.Time
}

// NewOperationLogger creates a new operation logger.
func NewOperationLogger(operation string, l Logger) *OperationLogger {
	if l == nil {
		l = GetGlobalLogger()
	}

	ol := &OperationLogger{
		logger:    l.WithComponent("operation"),
		operation: operation,
		fields:    make(Fields),
		startTime: time.Now(),
	}

	ol.logger.WithField("operation", operation).Info("Starting operation")
	return ol
}

// WithField adds a field to the operation context.
func (ol *OperationLogger) WithField(key string, value interface{}) *OperationLogger {
	ol.fields[key] = value
	return ol
}

// Step logs a step within the operation.
func (ol *OperationLogger) Step(step string) {
	fields := Fields{
		"operation": ol.operation,
		"step":      step,
	}
	for k, v := range ol.fields {
		fields[k] = v
	}
	ol.logger.WithFields(fields).Info("Operation step")
}

// Success completes the operation successfully.
func (ol *OperationLogger) Success(message string) {
	fields := Fields{
		"operation": ol.operation,
		"duration":  time.Since(ol.startTime).String(),
		"status":    "success",
	}
	for k, v := range ol.fields {
		fields[k] = v
	}
	ol.logger.WithFields(fields).Info(message)
}

// Error completes the operation with an error.
func (ol *OperationLogger) Error(err error, message string) {
	fields := Fields{
		"operation": ol.operation,
		"duration":  time.Since(ol.startTime).String(),
		"status":    "error",
	}
	for k, v := range ol.fields {
		fields[k] = v
	}
	ol.logger.WithError(err).WithFields(fields).Error(message)
}

// TimedOperation executes a function and logs timing information.
func TimedOperation(operation string, l Logger, fn func() error) error {
	ol := NewOperationLogger(operation, l)

	err := fn()

	if err != nil {
		ol.Error(err, "Operation failed")
	} else {
		ol.Success("Operation completed")
	}

	return err
}
