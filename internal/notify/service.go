package notify

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"podmill/internal/config"
)

const userAgent = "Podmill/0.1.0"

// Event identifies a notification type.
type Event string

// Events published by the pipeline and monitoring components. Workflow
// events fire once per job; the remaining events are alerts and share the
// deduplication window.
const (
	EventJobCompleted    Event = "job_completed"
	EventJobFailed       Event = "job_failed"
	EventQueueBacklog    Event = "queue_backlog"
	EventServiceDegraded Event = "service_degraded"
	EventError           Event = "error"
	EventTest            Event = "test"
)

// Payload carries the fields used to format an event message. Unknown keys
// are ignored; missing keys render as empty or "unknown" depending on the
// event.
type Payload map[string]string

func (p Payload) get(key string) string {
	return strings.TrimSpace(p[key])
}

// Service publishes notifications for pipeline milestones and alerts.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// Option adjusts an ntfy-backed service during construction.
type Option func(*ntfyService)

// WithClock overrides the time source used for alert deduplication.
func WithClock(now func() time.Time) Option {
	return func(n *ntfyService) {
		if now != nil {
			n.now = now
		}
	}
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config, opts ...Option) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	svc := &ntfyService{
		endpoint:    topic,
		client:      &http.Client{Timeout: timeout},
		jobComplete: cfg.Notifications.JobComplete,
		jobFailed:   cfg.Notifications.JobFailed,
		queue:       cfg.Notifications.Queue,
		errors:      cfg.Notifications.Errors,
		dedup:       time.Duration(cfg.Notifications.DedupWindowSeconds) * time.Second,
		now:         time.Now,
		lastSent:    make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

type message struct {
	title    string
	body     string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint    string
	client      *http.Client
	jobComplete bool
	jobFailed   bool
	queue       bool
	errors      bool
	dedup       time.Duration
	now         func() time.Time

	mu       sync.Mutex
	lastSent map[string]time.Time
}

func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	if !n.enabled(event) {
		return nil
	}
	msg, ok := formatEvent(event, payload)
	if !ok {
		return nil
	}
	if key, alert := dedupKey(event, payload); alert && n.recentlySent(key) {
		return nil
	}
	return n.send(ctx, msg)
}

func (n *ntfyService) enabled(event Event) bool {
	switch event {
	case EventJobCompleted:
		return n.jobComplete
	case EventJobFailed:
		return n.jobFailed
	case EventQueueBacklog:
		return n.queue
	case EventServiceDegraded, EventError:
		return n.errors
	case EventTest:
		return true
	default:
		return false
	}
}

// dedupKey reports whether the event participates in alert deduplication
// and returns the key that identifies repeats of the same alert.
func dedupKey(event Event, payload Payload) (string, bool) {
	switch event {
	case EventQueueBacklog:
		return string(event), true
	case EventServiceDegraded:
		return string(event) + ":" + payload.get("service"), true
	case EventError:
		return string(event) + ":" + payload.get("context"), true
	default:
		return "", false
	}
}

// recentlySent records the alert and reports whether the same alert already
// fired inside the deduplication window. The timestamp is recorded before
// delivery so a failing ntfy endpoint is not hammered by repeats.
func (n *ntfyService) recentlySent(key string) bool {
	if n.dedup <= 0 {
		return false
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	now := n.now()
	if last, ok := n.lastSent[key]; ok && now.Sub(last) < n.dedup {
		return true
	}
	n.lastSent[key] = now
	return false
}

func formatEvent(event Event, payload Payload) (message, bool) {
	switch event {
	case EventJobCompleted:
		body := fmt.Sprintf("✅ Processed: %s", payload.get("filename"))
		if docID := payload.get("doc_id"); docID != "" {
			body = fmt.Sprintf("%s\nDocument: %s", body, docID)
		}
		return message{
			title:    "Podmill - Processing Complete",
			body:     body,
			tags:     []string{"podmill", "workflow", "completed"},
			priority: "high",
		}, true
	case EventJobFailed:
		reason := payload.get("error")
		if reason == "" {
			reason = "unknown"
		}
		return message{
			title:    "Podmill - Processing Failed",
			body:     fmt.Sprintf("❌ Processing failed: %s: %s", payload.get("filename"), reason),
			tags:     []string{"podmill", "workflow", "failed"},
			priority: "high",
		}, true
	case EventQueueBacklog:
		return message{
			title: "Podmill - Queue Backlog",
			body:  fmt.Sprintf("Queue backlog: %s jobs waiting (threshold %s)", payload.get("depth"), payload.get("threshold")),
			tags:  []string{"podmill", "queue", "alert"},
		}, true
	case EventServiceDegraded:
		reason := payload.get("reason")
		if reason == "" {
			reason = "unknown"
		}
		return message{
			title:    "Podmill - Service Degraded",
			body:     fmt.Sprintf("⚠️ Service degraded: %s (%s)", payload.get("service"), reason),
			tags:     []string{"podmill", "service", "alert"},
			priority: "high",
		}, true
	case EventError:
		var builder strings.Builder
		builder.WriteString("❌ Error")
		if label := payload.get("context"); label != "" {
			builder.WriteString(" with ")
			builder.WriteString(label)
		}
		builder.WriteString(": ")
		if detail := payload.get("error"); detail != "" {
			builder.WriteString(detail)
		} else {
			builder.WriteString("unknown")
		}
		return message{
			title:    "Podmill - Error",
			body:     builder.String(),
			tags:     []string{"podmill", "error", "alert"},
			priority: "high",
		}, true
	case EventTest:
		return message{
			title:    "Podmill - Test",
			body:     "🧪 Notification system test",
			tags:     []string{"podmill", "test"},
			priority: "low",
		}, true
	default:
		return message{}, false
	}
}

func (n *ntfyService) send(ctx context.Context, msg message) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(msg.body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if msg.title != "" {
		req.Header.Set("Title", msg.title)
	}
	if len(msg.tags) > 0 {
		req.Header.Set("Tags", strings.Join(msg.tags, ","))
	}
	if msg.priority != "" && msg.priority != "default" {
		req.Header.Set("Priority", msg.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
