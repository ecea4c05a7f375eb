package contentgen_test

import (
	"strings"
	"testing"

	"podmill/internal/contentgen"
)

func TestFormatTimestamp(t *testing.T) {
	cases := []struct {
		name    string
		seconds float64
		want    string
	}{
		{"zero", 0, "00:00"},
		{"under a minute", 59.9, "00:59"},
		{"minute rollover", 65, "01:05"},
		{"ten minutes", 600, "10:00"},
		{"over an hour keeps minutes", 3661, "61:01"},
		{"negative clamps to zero", -5, "00:00"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := contentgen.FormatTimestamp(tc.seconds); got != tc.want {
				t.Fatalf("FormatTimestamp(%v) = %q, want %q", tc.seconds, got, tc.want)
			}
		})
	}
}

func TestFormatSpeakerChunks(t *testing.T) {
	if got := contentgen.FormatSpeakerChunks(nil); got != "" {
		t.Fatalf("empty chunks should render nothing, got %q", got)
	}

	chunks := []contentgen.SpeakerChunk{
		{Speaker: 0, Text: "Welcome to the show.", Start: 0.4, End: 2.1},
		{Speaker: 1, Text: "Glad to be here.", Start: 65.2, End: 67.8},
	}
	got := contentgen.FormatSpeakerChunks(chunks)
	if !strings.Contains(got, "SPEAKER BREAKDOWN:") {
		t.Errorf("missing breakdown header in %q", got)
	}
	if !strings.Contains(got, "[00:00] Speaker 0: Welcome to the show.\n") {
		t.Errorf("missing first line in %q", got)
	}
	if !strings.Contains(got, "[01:05] Speaker 1: Glad to be here.\n") {
		t.Errorf("missing second line in %q", got)
	}
}

func TestBuildPromptIncludesContext(t *testing.T) {
	req := contentgen.Request{
		Transcript:   "We talked about growing an audience from zero.",
		PodcastTitle: "Growth Lab 42",
		HostNames:    []string{"Sam", "Alex"},
		GuestNames:   []string{"Jordan"},
		SpeakerChunks: []contentgen.SpeakerChunk{
			{Speaker: 0, Text: "Let's get started.", Start: 1.0},
		},
	}
	prompt := contentgen.BuildPrompt(req)

	for _, want := range []string{
		"expert SEO content creator",
		"Podcast Episode: Growth Lab 42\n",
		"Host(s): Sam, Alex\n",
		"Guest(s): Jordan\n",
		"PODCAST TRANSCRIPT:\nWe talked about growing an audience from zero.",
		"SPEAKER BREAKDOWN:",
		"[00:01] Speaker 0: Let's get started.",
		`"seo_title"`,
		"respond ONLY with a JSON object",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestBuildPromptOmitsEmptyContext(t *testing.T) {
	prompt := contentgen.BuildPrompt(contentgen.Request{Transcript: "Just the transcript."})
	for _, absent := range []string{"Podcast Episode:", "Host(s):", "Guest(s):", "SPEAKER BREAKDOWN:"} {
		if strings.Contains(prompt, absent) {
			t.Errorf("prompt should not contain %q without context", absent)
		}
	}
	if !strings.Contains(prompt, "PODCAST TRANSCRIPT:\nJust the transcript.") {
		t.Error("prompt missing transcript block")
	}
}
