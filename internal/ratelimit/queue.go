package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"podmill/internal/logging"
)

// Priority bounds for queued requests. 0 drains first.
const (
	HighestPriority = 0
	LowestPriority  = 9
)

// QueuedRequest is a rejected request parked for later replay.
type QueuedRequest struct {
	ID       string
	User     string
	Endpoint string
	Payload  string
	Priority int
	QueuedAt time.Time
}

// QueueStats reports queue depth per priority.
type QueueStats struct {
	Depths map[int]int64
	Total  int64
}

func queueKey(priority int) string {
	return fmt.Sprintf("pqueue:%d", priority)
}

func queueMetaKey(id string) string {
	return "pqueue:meta:" + id
}

func allQueueKeys() []string {
	keys := make([]string, 0, LowestPriority-HighestPriority+1)
	for p := HighestPriority; p <= LowestPriority; p++ {
		keys = append(keys, queueKey(p))
	}
	return keys
}

func clampPriority(priority int) int {
	if priority < HighestPriority {
		return HighestPriority
	}
	if priority > LowestPriority {
		return LowestPriority
	}
	return priority
}

// Enqueue parks a request on its priority queue and returns its ID. The
// request metadata expires with the limiter's queue TTL, after which a
// dequeue returns the ID with empty details.
func (l *Limiter) Enqueue(ctx context.Context, req QueuedRequest) (string, error) {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	req.Priority = clampPriority(req.Priority)
	if req.QueuedAt.IsZero() {
		req.QueuedAt = l.now()
	}
	meta := map[string]string{
		"user":      req.User,
		"endpoint":  req.Endpoint,
		"payload":   req.Payload,
		"priority":  strconv.Itoa(req.Priority),
		"queued_at": req.QueuedAt.UTC().Format(time.RFC3339),
	}
	if err := l.backend.QueuePush(ctx, queueKey(req.Priority), req.ID, meta, l.queueTTL); err != nil {
		return "", fmt.Errorf("enqueue request: %w", err)
	}
	l.logger.Debug("request queued",
		logging.String("request_id", req.ID),
		logging.String(logging.FieldUserID, req.User),
		logging.String(logging.FieldEndpoint, req.Endpoint),
		logging.Int("priority", req.Priority))
	return req.ID, nil
}

// Dequeue removes the oldest request from the highest-priority non-empty
// queue. It returns nil when every queue is empty.
func (l *Limiter) Dequeue(ctx context.Context) (*QueuedRequest, error) {
	id, meta, ok, err := l.backend.QueuePop(ctx, allQueueKeys())
	if err != nil {
		return nil, fmt.Errorf("dequeue request: %w", err)
	}
	if !ok {
		return nil, nil
	}
	req := &QueuedRequest{
		ID:       id,
		User:     meta["user"],
		Endpoint: meta["endpoint"],
		Payload:  meta["payload"],
	}
	if p, err := strconv.Atoi(meta["priority"]); err == nil {
		req.Priority = p
	}
	if at, err := time.Parse(time.RFC3339, meta["queued_at"]); err == nil {
		req.QueuedAt = at
	}
	return req, nil
}

// QueueStats reports how many requests wait at each priority.
func (l *Limiter) QueueStats(ctx context.Context) (QueueStats, error) {
	depths, err := l.backend.QueueDepths(ctx, allQueueKeys())
	if err != nil {
		return QueueStats{}, fmt.Errorf("queue stats: %w", err)
	}
	stats := QueueStats{Depths: make(map[int]int64, len(depths))}
	for i, depth := range depths {
		stats.Depths[HighestPriority+i] = depth
		stats.Total += depth
	}
	return stats, nil
}
