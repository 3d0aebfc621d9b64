package queue

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type JobType string

const JobAdvanceRound JobType = "tournament.advance_round"

var ErrInvalidPayload = errors.New("invalid job payload")

// Job is the envelope stored by brokers. Attempt counts executions that have
// already failed, so a fresh job starts at zero.
type Job struct {
	ID         uuid.UUID       `json:"id"`
	Type       JobType         `json:"type"`
	Payload    json.RawMessage `json:"payload"`
	Attempt    int             `json:"attempt"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
	LastError  string          `json:"last_error,omitempty"`

	// receipt is the raw broker entry a dequeued job was read from.
	receipt string
}

type AdvanceRoundPayload struct {
	TournamentID int `json:"tournament_id"`
}

func NewJob(jobType JobType, payload any, now time.Time) (Job, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Job{}, fmt.Errorf("failed to encode %s payload: %w", jobType, err)
	}
	return Job{
		ID:         uuid.New(),
		Type:       jobType,
		Payload:    raw,
		EnqueuedAt: now,
	}, nil
}

func NewAdvanceRoundJob(tournamentID int, now time.Time) (Job, error) {
	return NewJob(JobAdvanceRound, AdvanceRoundPayload{TournamentID: tournamentID}, now)
}

// DecodePayload unmarshals the job payload into T. Decode failures wrap
// ErrInvalidPayload and are never worth retrying.
func DecodePayload[T any](job Job) (T, error) {
	var payload T
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return payload, Permanent(fmt.Errorf("%w: job %s: %v", ErrInvalidPayload, job.ID, err))
	}
	return payload, nil
}
