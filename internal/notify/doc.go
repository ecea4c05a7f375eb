// Package notify delivers push notifications for pipeline milestones and
// operational alerts over ntfy. Events can be toggled per type in
// configuration, and alert-class events are deduplicated inside a
// configurable window so a flapping dependency does not flood the topic.
package notify
