// Package replenish keeps the drill inventory stocked: a coordinator that
// turns cache misses and low-stock signals into prioritized jobs, and a
// worker that consumes them against the content generator.
package replenish

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/example/drillcore/pkg/models"
)

// Task types.
const (
	TypeReplenishOne   = "drill:replenish_one"
	TypeReplenishBatch = "drill:replenish_batch"
)

// Queue names double as priority tiers: emergency (Plan B) jobs go to
// critical, buffered batches (Plan C) to default, scheduled sweeps to low.
// An actively drilling user is never starved by housekeeping.
const (
	QueueCritical = "critical"
	QueueDefault  = "default"
	QueueLow      = "low"
)

// Payload is the job body for both task types. Empty VocabIDs means the
// worker picks its own targets (scheduled sweep top-up).
type Payload struct {
	UserID        string      `json:"user_id"`
	Mode          models.Mode `json:"mode"`
	VocabIDs      []int64     `json:"vocab_ids,omitempty"`
	CorrelationID string      `json:"correlation_id"`
}

// NewReplenishOneTask builds a single-item emergency task.
func NewReplenishOneTask(p Payload) (*asynq.Task, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to encode payload: %w", err)
	}
	return asynq.NewTask(TypeReplenishOne, data), nil
}

// NewReplenishBatchTask builds a multi-item task.
func NewReplenishBatchTask(p Payload) (*asynq.Task, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to encode payload: %w", err)
	}
	return asynq.NewTask(TypeReplenishBatch, data), nil
}
