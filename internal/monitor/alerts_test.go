package monitor_test

import (
	"context"
	"testing"

	"podmill/internal/monitor"
	"podmill/internal/notify"
)

type capturedAlert struct {
	event   notify.Event
	payload notify.Payload
}

type captureNotifier struct {
	alerts []capturedAlert
}

func (c *captureNotifier) Publish(_ context.Context, event notify.Event, payload notify.Payload) error {
	c.alerts = append(c.alerts, capturedAlert{event: event, payload: payload})
	return nil
}

func TestAlerterTriggersOnThresholdBreaches(t *testing.T) {
	notifier := &captureNotifier{}
	alerter := monitor.NewAlerter(monitor.Thresholds{}, notifier, nil)

	snap := monitor.Snapshot{
		Health: monitor.Health{
			ErrorRate:            0.10,
			AvgProcessingSeconds: 400,
		},
	}
	alerter.Check(context.Background(), snap, 150)

	if len(notifier.alerts) != 3 {
		t.Fatalf("expected 3 alerts, got %d: %#v", len(notifier.alerts), notifier.alerts)
	}

	degraded := notifier.alerts[0]
	if degraded.event != notify.EventServiceDegraded || degraded.payload["service"] != "api" {
		t.Fatalf("expected api degradation first, got %#v", degraded)
	}

	backlog := notifier.alerts[1]
	if backlog.event != notify.EventQueueBacklog {
		t.Fatalf("expected queue backlog second, got %#v", backlog)
	}
	if backlog.payload["depth"] != "150" || backlog.payload["threshold"] != "100" {
		t.Fatalf("unexpected backlog payload: %#v", backlog.payload)
	}

	slow := notifier.alerts[2]
	if slow.event != notify.EventServiceDegraded || slow.payload["service"] != "pipeline" {
		t.Fatalf("expected pipeline degradation third, got %#v", slow)
	}
}

func TestAlerterQuietWhenHealthy(t *testing.T) {
	notifier := &captureNotifier{}
	alerter := monitor.NewAlerter(monitor.DefaultThresholds(), notifier, nil)

	snap := monitor.Snapshot{
		Health: monitor.Health{
			ErrorRate:            0.01,
			AvgProcessingSeconds: 120,
		},
	}
	alerter.Check(context.Background(), snap, 10)

	if len(notifier.alerts) != 0 {
		t.Fatalf("expected no alerts, got %#v", notifier.alerts)
	}
}

func TestAlerterBoundaryValuesDoNotTrigger(t *testing.T) {
	notifier := &captureNotifier{}
	alerter := monitor.NewAlerter(monitor.Thresholds{}, notifier, nil)

	// Exactly at threshold stays quiet; alerts fire only above it.
	snap := monitor.Snapshot{
		Health: monitor.Health{
			ErrorRate:            0.05,
			AvgProcessingSeconds: 300,
		},
	}
	alerter.Check(context.Background(), snap, 100)

	if len(notifier.alerts) != 0 {
		t.Fatalf("expected boundary values to stay quiet, got %#v", notifier.alerts)
	}
}

func TestAlerterCustomThresholds(t *testing.T) {
	notifier := &captureNotifier{}
	alerter := monitor.NewAlerter(monitor.Thresholds{
		ErrorRate:         0.50,
		QueueDepth:        5,
		ProcessingSeconds: 60,
	}, notifier, nil)

	snap := monitor.Snapshot{
		Health: monitor.Health{
			ErrorRate:            0.10,
			AvgProcessingSeconds: 90,
		},
	}
	alerter.Check(context.Background(), snap, 6)

	if len(notifier.alerts) != 2 {
		t.Fatalf("expected backlog and slow-processing alerts, got %#v", notifier.alerts)
	}
	if notifier.alerts[0].event != notify.EventQueueBacklog {
		t.Fatalf("expected queue backlog, got %#v", notifier.alerts[0])
	}
	if notifier.alerts[1].payload["service"] != "pipeline" {
		t.Fatalf("expected pipeline degradation, got %#v", notifier.alerts[1])
	}
}

func TestAlerterNilNotifier(t *testing.T) {
	alerter := monitor.NewAlerter(monitor.Thresholds{}, nil, nil)
	snap := monitor.Snapshot{Health: monitor.Health{ErrorRate: 0.99}}
	alerter.Check(context.Background(), snap, 1000)
}
