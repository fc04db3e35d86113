package observability

import (
	"context"
	"errors"

	"github.com/MarkoPoloResearchLab/bankroll/pkg/bankroll"
	"github.com/MarkoPoloResearchLab/bankroll/pkg/webhook"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const (
	metricsNamespace     = "bankroll"
	labelOperation       = "operation"
	labelStatus          = "status"
	labelOutcome         = "outcome"
	operationStatusError = "error"
)

// Recorder logs ledger operations and webhook deliveries and counts them.
type Recorder struct {
	logger     *zap.Logger
	operations *prometheus.CounterVec
	deliveries *prometheus.CounterVec
}

// NewRecorder registers the counters on registerer.
func NewRecorder(logger *zap.Logger, registerer prometheus.Registerer) (*Recorder, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	operations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "ledger_operations_total",
		Help:      "Ledger operations by name and status.",
	}, []string{labelOperation, labelStatus})
	deliveries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "webhook_deliveries_total",
		Help:      "Payment webhook deliveries by outcome.",
	}, []string{labelOutcome})
	if registerer != nil {
		for _, collector := range []prometheus.Collector{operations, deliveries} {
			if err := registerer.Register(collector); err != nil {
				return nil, err
			}
		}
	}
	return &Recorder{logger: logger, operations: operations, deliveries: deliveries}, nil
}

// LogOperation implements bankroll.OperationLogger.
func (recorder *Recorder) LogOperation(_ context.Context, entry bankroll.OperationLog) {
	recorder.operations.WithLabelValues(entry.Operation, entry.Status).Inc()
	fields := []zap.Field{
		zap.String("operation", entry.Operation),
		zap.String("user_id", entry.UserID.String()),
		zap.String("status", entry.Status),
	}
	if betID := entry.BetID.String(); betID != "" {
		fields = append(fields, zap.String("bet_id", betID))
	}
	if !entry.Amount.IsZero() {
		fields = append(fields, zap.String("amount", entry.Amount.StringFixed(2)))
	}
	if entry.Attempts > 0 {
		fields = append(fields, zap.String("balance", entry.Balance.StringFixed(2)), zap.Int("attempts", entry.Attempts))
	}
	if entry.Error != nil || entry.Status == operationStatusError {
		recorder.logger.Warn("ledger operation failed", append(fields, zap.Error(entry.Error))...)
		return
	}
	recorder.logger.Info("ledger operation", fields...)
}

// RecordOutcome implements webhook.OutcomeRecorder.
func (recorder *Recorder) RecordOutcome(_ context.Context, result webhook.Result, err error) {
	recorder.deliveries.WithLabelValues(string(result.Status)).Inc()
	fields := []zap.Field{
		zap.String("event_id", result.EventID),
		zap.String("event_type", result.EventType),
		zap.String("outcome", string(result.Status)),
	}
	if result.UserID != "" {
		fields = append(fields, zap.String("user_id", result.UserID), zap.String("plan_id", result.PlanID), zap.Time("access_until", result.AccessUntil))
	}
	if result.AmountCents > 0 {
		fields = append(fields, zap.Int64("amount_cents", result.AmountCents))
	}
	switch {
	case err == nil:
		recorder.logger.Info("webhook delivery", fields...)
	case errors.Is(err, webhook.ErrUnauthorized), errors.Is(err, webhook.ErrMalformedEvent), errors.Is(err, webhook.ErrUnprocessableEvent):
		recorder.logger.Warn("webhook delivery rejected", append(fields, zap.Error(err))...)
	default:
		recorder.logger.Error("webhook delivery failed", append(fields, zap.Error(err))...)
	}
}
