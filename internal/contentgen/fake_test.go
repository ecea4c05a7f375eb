package contentgen_test

import (
	"context"
	"errors"
	"testing"

	"podmill/internal/contentgen"
	"podmill/internal/services"
)

func TestFakeDerivesContent(t *testing.T) {
	fake := contentgen.NewFake()
	content, err := fake.Generate(context.Background(), contentgen.Request{
		Transcript:   longTranscript,
		PodcastTitle: "Growth Lab 42",
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if content.SEOTitle == "" || content.BlogPost == nil || content.SocialMedia == nil {
		t.Fatalf("derived content incomplete: %+v", content)
	}
	if len(content.ShowNotes) == 0 {
		t.Fatal("derived content has no show notes")
	}
	if content.Metadata.TranscriptLength != len(longTranscript) {
		t.Errorf("TranscriptLength = %d, want %d", content.Metadata.TranscriptLength, len(longTranscript))
	}
	if content.Metadata.GenerationType != "seo_content_suite" {
		t.Errorf("GenerationType = %q", content.Metadata.GenerationType)
	}

	if calls := fake.Calls(); len(calls) != 1 || calls[0].PodcastTitle != "Growth Lab 42" {
		t.Errorf("recorded calls = %v", calls)
	}
}

func TestFakeScriptedContent(t *testing.T) {
	fake := contentgen.NewFake()
	fake.SetContent(contentgen.Content{SEOTitle: "Scripted Title"})

	content, err := fake.Generate(context.Background(), contentgen.Request{Transcript: longTranscript})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if content.SEOTitle != "Scripted Title" {
		t.Errorf("SEOTitle = %q, want Scripted Title", content.SEOTitle)
	}
	if content.ShowNotes == nil {
		t.Error("scripted content should normalize ShowNotes to an empty slice")
	}
}

func TestFakeFailMode(t *testing.T) {
	fake := contentgen.NewFake()
	fake.Fail(services.Wrap(services.ErrUnavailable, "content_generation", "generate", "vendor down", nil))

	if _, err := fake.Generate(context.Background(), contentgen.Request{Transcript: longTranscript}); !errors.Is(err, services.ErrUnavailable) {
		t.Fatalf("expected unavailable, got %v", err)
	}

	fake.Fail(nil)
	if _, err := fake.Generate(context.Background(), contentgen.Request{Transcript: longTranscript}); err != nil {
		t.Fatalf("expected recovery after Fail(nil), got %v", err)
	}
}
