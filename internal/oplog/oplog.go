// Package oplog adapts balance-engine operation callbacks to zap and the
// prometheus operation counters.
package oplog

import (
	"context"

	"github.com/pideas/creditd/internal/metrics"
	"github.com/pideas/creditd/pkg/credit"
	"go.uber.org/zap"
)

// Logger implements credit.OperationLogger.
type Logger struct {
	logger *zap.Logger
}

// New returns a Logger writing to the supplied zap logger.
func New(logger *zap.Logger) *Logger {
	return &Logger{logger: logger}
}

// LogOperation records one engine operation.
func (operationLogger *Logger) LogOperation(_ context.Context, entry credit.OperationLog) {
	metrics.RecordOperation(entry.Operation, entry.Status)
	if entry.Error == nil {
		switch {
		case entry.Amount < 0:
			metrics.RecordDeduction(entry.Action, -entry.Amount)
		case entry.Amount > 0:
			metrics.RecordGrant(entry.Amount)
		}
	}
	fields := []zap.Field{
		zap.String("operation", entry.Operation),
		zap.String("account_id", entry.AccountID),
		zap.String("status", entry.Status),
		zap.Int64("amount", entry.Amount),
	}
	if entry.Action != "" {
		fields = append(fields, zap.String("action", entry.Action))
	}
	if entry.Role != "" {
		fields = append(fields, zap.String("role", entry.Role))
	}
	if entry.IdempotencyKey != "" {
		fields = append(fields, zap.String("idempotency_key", entry.IdempotencyKey))
	}
	if entry.Error != nil {
		fields = append(fields, zap.Error(entry.Error))
		operationLogger.logger.Warn("credit operation failed", fields...)
		return
	}
	operationLogger.logger.Info("credit operation", fields...)
}
