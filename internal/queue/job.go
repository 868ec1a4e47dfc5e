package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Status is the lifecycle state of a job.
type Status string

const (
	StatusQueued   Status = "queued"
	StatusStarted  Status = "started"
	StatusFinished Status = "finished"
	StatusFailed   Status = "failed"
)

var (
	// ErrUnknownJob is returned when enqueuing a name with no registered handler.
	ErrUnknownJob = errors.New("no handler registered for job")
	// ErrClosed is returned by operations on a closed queue.
	ErrClosed = errors.New("queue closed")
)

// Job is a unit of background work and its outcome.
type Job struct {
	ID         string          `json:"id"`
	Queue      string          `json:"queue"`
	Name       string          `json:"name"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	Status     Status          `json:"status"`
	Result     json.RawMessage `json:"result,omitempty"`
	Error      string          `json:"error,omitempty"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
	StartedAt  *time.Time      `json:"started_at,omitempty"`
	EndedAt    *time.Time      `json:"ended_at,omitempty"`
}

// HandlerFunc executes a job. The returned value, if any, is stored as the
// job's JSON result.
type HandlerFunc func(ctx context.Context, job *Job) (any, error)

// Hook observes jobs once they reach a terminal status.
type Hook func(ctx context.Context, job *Job)

// Decode unmarshals the payload into v.
func (j *Job) Decode(v any) error {
	if len(j.Payload) == 0 {
		return fmt.Errorf("job %s has no payload", j.ID)
	}
	if err := json.Unmarshal(j.Payload, v); err != nil {
		return fmt.Errorf("decode job %s payload: %w", j.ID, err)
	}
	return nil
}

// Done reports whether the job reached a terminal status.
func (j *Job) Done() bool {
	return j.Status == StatusFinished || j.Status == StatusFailed
}

func cloneJob(src *Job) (*Job, error) {
	if src == nil {
		return nil, fmt.Errorf("job is nil")
	}
	b, err := json.Marshal(src)
	if err != nil {
		return nil, fmt.Errorf("marshal job: %w", err)
	}
	return decodeJob(b)
}

func decodeJob(raw []byte) (*Job, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("empty job payload")
	}
	var job Job
	if err := json.Unmarshal(raw, &job); err != nil {
		return nil, fmt.Errorf("unmarshal job: %w", err)
	}
	return &job, nil
}

func encodePayload(payload any) (json.RawMessage, error) {
	switch p := payload.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		return p, nil
	case []byte:
		if !json.Valid(p) {
			return nil, fmt.Errorf("payload is not valid JSON")
		}
		return json.RawMessage(p), nil
	default:
		b, err := json.Marshal(p)
		if err != nil {
			return nil, fmt.Errorf("marshal payload: %w", err)
		}
		return b, nil
	}
}
