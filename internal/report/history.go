// Package report persists finished evaluation reports and renders them
// for cross-run comparison.
package report

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/R2-Decide/esci-evaluator/internal/evaluation"
)

// History provides Redis-backed persistence for evaluation runs. Runs
// are stored per backend in a sorted set keyed by start time, so range
// queries over a time window stay a single Redis call.
type History struct {
	client    *redis.Client
	prefix    string
	retention time.Duration // 0 keeps runs forever
}

// NewHistory creates a Redis-backed run history.
// Returns error if connection fails.
func NewHistory(url string, retentionDays int) (*History, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	// Test connection with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	return &History{
		client:    client,
		prefix:    "esci:runs:",
		retention: time.Duration(retentionDays) * 24 * time.Hour,
	}, nil
}

func (h *History) key(backend string) string {
	return h.prefix + backend
}

// Save stores a finished report under its backend, pruning runs older
// than the retention window.
func (h *History) Save(ctx context.Context, rep *evaluation.Report) error {
	data, err := json.Marshal(rep)
	if err != nil {
		return fmt.Errorf("marshaling report: %w", err)
	}

	key := h.key(rep.Backend)

	// Use pipeline for atomic write and prune
	pipe := h.client.Pipeline()

	pipe.ZAdd(ctx, key, redis.Z{
		Score:  float64(rep.StartedAt.Unix()),
		Member: string(data),
	})

	if h.retention > 0 {
		minScore := time.Now().Add(-h.retention).Unix()
		pipe.ZRemRangeByScore(ctx, key, "-inf", fmt.Sprintf("%d", minScore))
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("saving report: %w", err)
	}

	return nil
}

// List loads the reports for a backend started since the given time,
// oldest first.
func (h *History) List(ctx context.Context, backend string, since time.Time) ([]evaluation.Report, error) {
	results, err := h.client.ZRangeByScore(ctx, h.key(backend), &redis.ZRangeBy{
		Min: fmt.Sprintf("%d", since.Unix()),
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("loading run history: %w", err)
	}

	reports := make([]evaluation.Report, 0, len(results))
	for _, member := range results {
		var rep evaluation.Report
		if err := json.Unmarshal([]byte(member), &rep); err != nil {
			// Skip invalid entries
			continue
		}
		reports = append(reports, rep)
	}

	return reports, nil
}

// Backends returns the backends with stored runs.
func (h *History) Backends(ctx context.Context) ([]string, error) {
	keys, err := h.client.Keys(ctx, h.prefix+"*").Result()
	if err != nil {
		return nil, fmt.Errorf("listing run history: %w", err)
	}

	names := make([]string, len(keys))
	for i, key := range keys {
		names[i] = key[len(h.prefix):]
	}
	return names, nil
}

// Delete removes the stored runs for a backend.
func (h *History) Delete(ctx context.Context, backend string) error {
	return h.client.Del(ctx, h.key(backend)).Err()
}

// Close closes the Redis connection.
func (h *History) Close() error {
	return h.client.Close()
}
