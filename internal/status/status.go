// Package status keeps a snapshot of each job's progress in Redis so other
// processes can poll it.
package status

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/FranksOps/kwdig/internal/keyword"
)

// State is the coarse lifecycle of a job.
type State string

const (
	StateRunning  State = "running"
	StateFinished State = "finished"
)

// JobStatus is the snapshot written after every progress change.
type JobStatus struct {
	JobID     string         `json:"job_id"`
	Params    keyword.Params `json:"params"`
	State     State          `json:"state"`
	Current   int            `json:"current"`
	Total     int            `json:"total"`
	Results   int            `json:"results"`
	LastLog   string         `json:"last_log,omitempty"`
	StartedAt time.Time      `json:"started_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Store persists job snapshots.
type Store interface {
	SetStatus(ctx context.Context, s JobStatus) error
	GetStatus(ctx context.Context, jobID string) (JobStatus, bool, error)
}

// RedisStore stores job status in Redis under prefix+jobID with a TTL.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore initializes a Redis-backed Store.
func NewRedisStore(addr, prefix string, ttl time.Duration) *RedisStore {
	return NewRedisStoreWithClient(redis.NewClient(&redis.Options{Addr: addr}), prefix, ttl)
}

// NewRedisStoreWithClient wraps an existing client.
func NewRedisStoreWithClient(client *redis.Client, prefix string, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, prefix: prefix, ttl: ttl}
}

// Ping checks connectivity.
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

// Close closes the Redis client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// SetStatus writes the snapshot to Redis.
func (s *RedisStore) SetStatus(ctx context.Context, st JobStatus) error {
	payload, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode status: %w", err)
	}
	if err := s.client.Set(ctx, s.prefix+st.JobID, payload, s.ttl).Err(); err != nil {
		return fmt.Errorf("set status: %w", err)
	}
	return nil
}

// GetStatus reads the snapshot for jobID. The bool is false when no snapshot
// exists or it has expired.
func (s *RedisStore) GetStatus(ctx context.Context, jobID string) (JobStatus, bool, error) {
	val, err := s.client.Get(ctx, s.prefix+jobID).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return JobStatus{}, false, nil
		}
		return JobStatus{}, false, fmt.Errorf("get status: %w", err)
	}

	var st JobStatus
	if err := json.Unmarshal([]byte(val), &st); err != nil {
		return JobStatus{}, false, fmt.Errorf("decode status: %w", err)
	}
	return st, true, nil
}
