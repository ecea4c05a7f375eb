package contentgen

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Fake is a scripted Generator for tests and development mode. Without a
// scripted result it derives a small deterministic suite from the request.
type Fake struct {
	mu       sync.Mutex
	scripted *Content
	failErr  error
	calls    []Request
}

// NewFake returns an unscripted fake generator.
func NewFake() *Fake {
	return &Fake{}
}

// SetContent makes every subsequent call return content instead of the
// derived default.
func (f *Fake) SetContent(content Content) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scripted = &content
}

// Fail makes every subsequent call return err; pass nil to recover.
func (f *Fake) Fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failErr = err
}

// Calls returns a copy of the requests seen so far.
func (f *Fake) Calls() []Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	calls := make([]Request, len(f.calls))
	copy(calls, f.calls)
	return calls
}

// Generate implements Generator.
func (f *Fake) Generate(ctx context.Context, req Request) (Content, error) {
	if err := ctx.Err(); err != nil {
		return Content{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req)
	if f.failErr != nil {
		return Content{}, f.failErr
	}
	if f.scripted != nil {
		content := *f.scripted
		if content.ShowNotes == nil {
			content.ShowNotes = []ShowNote{}
		}
		return content, nil
	}
	return cannedContent(req), nil
}

func cannedContent(req Request) Content {
	title := strings.TrimSpace(req.PodcastTitle)
	if title == "" {
		title = "Untitled Episode"
	}
	blog := &BlogPost{
		Title:           fmt.Sprintf("%s: Key Takeaways", title),
		MetaDescription: fmt.Sprintf("Highlights and lessons from %s.", title),
		Intro:           "This episode covered a lot of ground.",
		Body:            "## Highlights\n\nThe conversation moved through the main themes of the episode.",
		Conclusion:      "Listen to the full episode for more.",
		Tags:            []string{"podcast", "interview"},
	}
	notes := []ShowNote{
		{Timestamp: "00:00", Topic: "Introduction", Summary: "The host opens the episode."},
		{Timestamp: "01:30", Topic: "Main discussion", Summary: "The core topic of the conversation."},
	}
	return Content{
		SEOTitle:  fmt.Sprintf("%s | Full Conversation", title),
		ShowNotes: notes,
		BlogPost:  blog,
		SocialMedia: &SocialMediaPosts{
			Twitter:   fmt.Sprintf("New episode: %s", title),
			Instagram: fmt.Sprintf("%s is live now.", title),
			TikTok:    fmt.Sprintf("You need to hear %s.", title),
			LinkedIn:  fmt.Sprintf("We just published %s.", title),
		},
		Metadata: Metadata{
			TranscriptLength:      len(req.Transcript),
			ShowNotesCount:        len(notes),
			SpeakerChunksProvided: len(req.SpeakerChunks),
			BlogPostWordCount:     len(strings.Fields(blog.Body)),
			Model:                 "fake",
			GenerationType:        GenerationType,
		},
	}
}
