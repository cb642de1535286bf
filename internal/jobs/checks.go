package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/simonvc/chainledger/internal/hashchain"
	"github.com/simonvc/chainledger/internal/ledger"
)

// Checker is the part of the ledger the checks call.
type Checker interface {
	VerifyHashChainIntegrity(ctx context.Context) (*hashchain.Report, error)
	CheckConsistency(ctx context.Context) (*ledger.Consistency, error)
}

// ChecksJob handles TaskVerifyChain and TaskCheckConsistency.
type ChecksJob struct {
	Ledger Checker
	Logger *slog.Logger
}

func NewChecksJob(l Checker, logger *slog.Logger) *ChecksJob {
	return &ChecksJob{Ledger: l, Logger: logger}
}

func (j *ChecksJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}

func decodePayload(t *asynq.Task) (CheckPayload, error) {
	var payload CheckPayload
	if len(t.Payload()) == 0 {
		return payload, nil
	}
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return payload, fmt.Errorf("decode %s payload: %v: %w", t.Type(), err, asynq.SkipRetry)
	}
	return payload, nil
}

// HandleVerifyChain verifies the chain. A broken chain is not retried:
// the task is archived with the mismatch so it stays visible.
func (j *ChecksJob) HandleVerifyChain(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Ledger == nil {
		return errors.New("verify chain: handler not configured")
	}
	payload, err := decodePayload(t)
	if err != nil {
		return err
	}
	logger := j.logger().With(slog.String("task", t.Type()), slog.String("requested_by", payload.RequestedBy))

	report, err := j.Ledger.VerifyHashChainIntegrity(ctx)
	if err != nil {
		logger.Error("verify chain failed", slog.Any("error", err))
		return err
	}
	if !report.Valid {
		return fmt.Errorf("%w: %w", report.Err(), asynq.SkipRetry)
	}
	logger.Info("chain verified", slog.Int64("checked", report.Checked))
	return nil
}

// HandleCheckConsistency replays balances. Drift is archived like a broken
// chain.
func (j *ChecksJob) HandleCheckConsistency(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Ledger == nil {
		return errors.New("check consistency: handler not configured")
	}
	payload, err := decodePayload(t)
	if err != nil {
		return err
	}
	logger := j.logger().With(slog.String("task", t.Type()), slog.String("requested_by", payload.RequestedBy))

	c, err := j.Ledger.CheckConsistency(ctx)
	if err != nil {
		logger.Error("consistency check failed", slog.Any("error", err))
		return err
	}
	if !c.Consistent {
		return fmt.Errorf("%w: %d drifted entries, debits %d credits %d: %w",
			ledger.ErrIntegrityViolation, len(c.DriftedEntries), c.TotalDebit, c.TotalCredit, asynq.SkipRetry)
	}
	logger.Info("balances consistent", slog.Int64("entries", c.EntriesChecked))
	return nil
}
