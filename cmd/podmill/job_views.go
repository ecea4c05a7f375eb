package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"podmill/internal/ipc"
)

func buildJobListRows(items []ipc.Job) [][]string {
	if len(items) == 0 {
		return nil
	}
	rows := make([][]string, 0, len(items))
	for _, job := range items {
		filename := strings.TrimSpace(job.Filename)
		if filename == "" {
			filename = "-"
		}
		rows = append(rows, []string{
			job.ID,
			job.UserID,
			filename,
			formatStatusLabel(string(job.Status)),
			formatStatusLabel(string(job.Step)),
			fmt.Sprintf("%.0f%%", job.Progress),
			formatDisplayTime(job.CreatedAt),
		})
	}
	return rows
}

func jobDetailLines(job ipc.Job, archived bool) []string {
	status := formatStatusLabel(string(job.Status))
	if archived {
		status += " (archived)"
	}

	lines := make([]string, 0, 14)
	appendLine := func(label, value string) {
		if strings.TrimSpace(value) == "" {
			return
		}
		lines = append(lines, fmt.Sprintf("  %-12s %s", label+":", value))
	}

	appendLine("ID", job.ID)
	appendLine("User", job.UserID)
	appendLine("Workspace", job.Workspace)
	appendLine("File", job.Filename)
	appendLine("Upload", job.UploadID)
	appendLine("Status", status)
	appendLine("Step", formatStatusLabel(string(job.Step)))
	appendLine("Progress", fmt.Sprintf("%.0f%%", job.Progress))
	appendLine("Message", job.Message)
	appendLine("Error", job.Error)
	appendLine("Document", job.DocID)
	appendLine("Created", formatDisplayTime(job.CreatedAt))
	appendLine("Updated", formatDisplayTime(job.UpdatedAt))
	if job.StartedAt != nil {
		appendLine("Started", formatDisplayTime(*job.StartedAt))
	}
	if job.CompletedAt != nil {
		appendLine("Completed", formatDisplayTime(*job.CompletedAt))
	}
	return lines
}

func buildQueueEntryRows(entries []ipc.QueueEntry) [][]string {
	if len(entries) == 0 {
		return nil
	}
	rows := make([][]string, 0, len(entries))
	for _, entry := range entries {
		endpoint := strings.TrimSpace(entry.Endpoint)
		if endpoint == "" {
			endpoint = "-"
		}
		rows = append(rows, []string{
			entry.ID,
			entry.User,
			endpoint,
			strconv.Itoa(entry.Priority),
			formatQueuedTime(entry.QueuedAt),
		})
	}
	return rows
}

func formatStatusLabel(status string) string {
	status = strings.TrimSpace(status)
	if status == "" {
		return ""
	}
	parts := strings.Split(status, "_")
	for i, part := range parts {
		lower := strings.ToLower(part)
		if lower == "" {
			continue
		}
		parts[i] = strings.ToUpper(lower[:1]) + lower[1:]
	}
	return strings.Join(parts, " ")
}

func formatDisplayTime(value time.Time) string {
	if value.IsZero() {
		return ""
	}
	return value.UTC().Format("2006-01-02 15:04")
}

func formatQueuedTime(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t.UTC().Format("2006-01-02 15:04:05")
	}
	return value
}
