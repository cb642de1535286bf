// Package jobs runs ledger maintenance in the background on asynq:
// periodic hash chain verification and balance consistency checks.
package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the queue every ledger task is enqueued on.
	QueueDefault = "default"
	// TaskVerifyChain recomputes the hash chain end to end.
	TaskVerifyChain = "ledger:verify_chain"
	// TaskCheckConsistency replays balances and checks the trial balance.
	TaskCheckConsistency = "ledger:check_consistency"
)

// CheckPayload identifies who asked for a check. Scheduled runs use
// "scheduler".
type CheckPayload struct {
	RequestedBy string `json:"requested_by"`
}

func newCheckTask(typ, requestedBy string) (*asynq.Task, error) {
	data, err := json.Marshal(CheckPayload{RequestedBy: requestedBy})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(typ, data), nil
}

func NewVerifyChainTask(requestedBy string) (*asynq.Task, error) {
	return newCheckTask(TaskVerifyChain, requestedBy)
}

func NewCheckConsistencyTask(requestedBy string) (*asynq.Task, error) {
	return newCheckTask(TaskCheckConsistency, requestedBy)
}

// Enqueuer submits on-demand checks.
type Enqueuer struct {
	client *asynq.Client
}

func NewEnqueuer(redis asynq.RedisConnOpt) *Enqueuer {
	return &Enqueuer{client: asynq.NewClient(redis)}
}

func (e *Enqueuer) EnqueueVerifyChain(ctx context.Context, requestedBy string) (*asynq.TaskInfo, error) {
	task, err := NewVerifyChainTask(requestedBy)
	if err != nil {
		return nil, err
	}
	return e.enqueue(ctx, task)
}

func (e *Enqueuer) EnqueueCheckConsistency(ctx context.Context, requestedBy string) (*asynq.TaskInfo, error) {
	task, err := NewCheckConsistencyTask(requestedBy)
	if err != nil {
		return nil, err
	}
	return e.enqueue(ctx, task)
}

func (e *Enqueuer) enqueue(ctx context.Context, task *asynq.Task) (*asynq.TaskInfo, error) {
	info, err := e.client.EnqueueContext(ctx, task,
		asynq.Queue(QueueDefault),
		asynq.MaxRetry(3),
		asynq.Timeout(10*time.Minute),
	)
	if err != nil {
		return nil, fmt.Errorf("enqueue %s: %w", task.Type(), err)
	}
	return info, nil
}

func (e *Enqueuer) Close() error {
	return e.client.Close()
}
