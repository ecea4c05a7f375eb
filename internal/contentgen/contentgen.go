// Package contentgen turns podcast transcripts into an SEO content suite:
// a search-optimized episode title, timestamped show notes, a full blog post,
// and per-platform social media posts. Client talks to the hosted generation
// vendor; Fake is the scripted double for tests and development mode.
package contentgen

import (
	"context"
	"fmt"
	"strings"
)

// MinTranscriptChars is the shortest transcript worth generating content for.
const MinTranscriptChars = 100

// GenerationType labels the content suite in result metadata.
const GenerationType = "seo_content_suite"

// SpeakerChunk is an optional timestamped transcript segment attributed to one
// speaker, used to give the model conversation structure.
type SpeakerChunk struct {
	Speaker int     `json:"speaker"`
	Text    string  `json:"text"`
	Start   float64 `json:"start_time"`
	End     float64 `json:"end_time"`
}

// Request carries the transcript plus optional episode context.
type Request struct {
	Transcript    string
	SpeakerChunks []SpeakerChunk
	PodcastTitle  string
	HostNames     []string
	GuestNames    []string
}

// ShowNote is one timestamped topic summary.
type ShowNote struct {
	Timestamp string `json:"timestamp"`
	Topic     string `json:"topic"`
	Summary   string `json:"summary"`
}

// BlogPost is the long-form article generated for the episode.
type BlogPost struct {
	Title           string   `json:"title"`
	MetaDescription string   `json:"meta_description"`
	Intro           string   `json:"intro"`
	Body            string   `json:"body"`
	Conclusion      string   `json:"conclusion"`
	Tags            []string `json:"tags"`
}

// SocialMediaPosts holds one post per supported platform.
type SocialMediaPosts struct {
	Twitter   string `json:"twitter"`
	Instagram string `json:"instagram"`
	TikTok    string `json:"tiktok"`
	LinkedIn  string `json:"linkedin"`
}

// Metadata describes what was generated and from how much input.
type Metadata struct {
	TranscriptLength      int    `json:"transcript_length"`
	ShowNotesCount        int    `json:"show_notes_count"`
	SpeakerChunksProvided int    `json:"speaker_chunks_provided"`
	BlogPostWordCount     int    `json:"blog_post_word_count"`
	Model                 string `json:"model"`
	GenerationType        string `json:"generation_type"`
}

// Content is the normalized generation result. ShowNotes is never nil;
// BlogPost and SocialMedia stay nil when the model omitted them.
type Content struct {
	SEOTitle    string            `json:"seo_title"`
	ShowNotes   []ShowNote        `json:"show_notes"`
	BlogPost    *BlogPost         `json:"blog_post,omitempty"`
	SocialMedia *SocialMediaPosts `json:"social_media,omitempty"`
	Metadata    Metadata          `json:"metadata"`
}

// Generator produces an SEO content suite from a transcript.
type Generator interface {
	Generate(ctx context.Context, req Request) (Content, error)
}

// FormatTimestamp renders seconds as MM:SS. Minutes are not rolled into
// hours, so a two-hour mark reads 120:00.
func FormatTimestamp(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	total := int(seconds)
	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}

// FormatSpeakerChunks renders the optional speaker segments as the breakdown
// block appended to the prompt, one "[MM:SS] Speaker N: text" line per chunk.
func FormatSpeakerChunks(chunks []SpeakerChunk) string {
	if len(chunks) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("\n\nSPEAKER BREAKDOWN:\n")
	for _, chunk := range chunks {
		fmt.Fprintf(&b, "[%s] Speaker %d: %s\n", FormatTimestamp(chunk.Start), chunk.Speaker, chunk.Text)
	}
	return b.String()
}

// BuildPrompt assembles the full generation prompt: instructions, episode
// context, the transcript, the optional speaker breakdown, and the content
// requirements with the expected JSON shape.
func BuildPrompt(req Request) string {
	var b strings.Builder
	b.WriteString(seoPromptIntro)
	b.WriteString("\n\n")
	if context := contextLines(req); context != "" {
		b.WriteString(context)
		b.WriteString("\n")
	}
	b.WriteString("PODCAST TRANSCRIPT:\n")
	b.WriteString(req.Transcript)
	b.WriteString("\n")
	if breakdown := FormatSpeakerChunks(req.SpeakerChunks); breakdown != "" {
		b.WriteString(breakdown)
	}
	b.WriteString("\n")
	b.WriteString(seoPromptRequirements)
	return b.String()
}

func contextLines(req Request) string {
	var b strings.Builder
	if title := strings.TrimSpace(req.PodcastTitle); title != "" {
		fmt.Fprintf(&b, "Podcast Episode: %s\n", title)
	}
	if len(req.HostNames) > 0 {
		fmt.Fprintf(&b, "Host(s): %s\n", strings.Join(req.HostNames, ", "))
	}
	if len(req.GuestNames) > 0 {
		fmt.Fprintf(&b, "Guest(s): %s\n", strings.Join(req.GuestNames, ", "))
	}
	return b.String()
}
