package contentgen

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"podmill/internal/clients"
	"podmill/internal/logging"
	"podmill/internal/services"
)

const (
	defaultBaseURL        = "https://generativelanguage.googleapis.com/v1beta"
	defaultModel          = "gemini-1.5-pro"
	defaultTimeoutSeconds = 60
)

// Config captures the runtime settings required to talk to the generation
// vendor.
type Config struct {
	APIKey         string
	BaseURL        string
	Model          string
	TimeoutSeconds int
}

// Client generates the SEO content suite through the hosted model API. It
// performs a single attempt per call; retries belong to the resilience
// executor wrapping it.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *slog.Logger
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the pooled default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// NewClient constructs a content generation client backed by the content
// generation connection pool.
func NewClient(cfg Config, logger *slog.Logger, opts ...Option) *Client {
	client := &Client{
		cfg: Config{
			APIKey:         strings.TrimSpace(cfg.APIKey),
			BaseURL:        strings.TrimSpace(cfg.BaseURL),
			Model:          strings.TrimSpace(cfg.Model),
			TimeoutSeconds: cfg.TimeoutSeconds,
		},
		httpClient: clients.New(clients.ContentGenPool()),
		logger:     logging.NewComponentLogger(logger, "contentgen"),
	}
	for _, opt := range opts {
		opt(client)
	}
	if client.cfg.BaseURL == "" {
		client.cfg.BaseURL = defaultBaseURL
	}
	if client.cfg.Model == "" {
		client.cfg.Model = defaultModel
	}
	if client.cfg.TimeoutSeconds <= 0 {
		client.cfg.TimeoutSeconds = defaultTimeoutSeconds
	}
	if client.logger == nil {
		client.logger = logging.NewNop()
	}
	return client
}

type generateRequest struct {
	Contents         []vendorContent  `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type vendorContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []vendorPart `json:"parts"`
}

type vendorPart struct {
	Text string `json:"text"`
}

type generationConfig struct {
	Temperature     float64 `json:"temperature"`
	TopP            float64 `json:"topP"`
	TopK            int     `json:"topK"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []vendorPart `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
}

// generatedPayload mirrors the JSON shape the prompt instructs the model to
// return.
type generatedPayload struct {
	SEOTitle    string            `json:"seo_title"`
	ShowNotes   []ShowNote        `json:"show_notes"`
	BlogPost    *BlogPost         `json:"blog_post"`
	SocialMedia *SocialMediaPosts `json:"social_media"`
}

// Generate runs one generation attempt and normalizes the model output.
func (c *Client) Generate(ctx context.Context, req Request) (Content, error) {
	if c.cfg.APIKey == "" {
		return Content{}, services.Wrap(services.ErrConfiguration, "content_generation", "generate", "generation API key is not configured", nil)
	}
	transcript := strings.TrimSpace(req.Transcript)
	if len(transcript) < MinTranscriptChars {
		return Content{}, services.Wrap(services.ErrValidation, "content_generation", "generate",
			fmt.Sprintf("transcript must be at least %d characters, got %d", MinTranscriptChars, len(transcript)), nil)
	}

	payload := generateRequest{
		Contents: []vendorContent{{
			Role:  "user",
			Parts: []vendorPart{{Text: BuildPrompt(req)}},
		}},
		GenerationConfig: generationConfig{
			Temperature:     0.7,
			TopP:            0.8,
			TopK:            40,
			MaxOutputTokens: 8192,
		},
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return Content{}, services.Wrap(services.ErrTransient, "content_generation", "generate", "encoding vendor request", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, time.Duration(c.cfg.TimeoutSeconds)*time.Second)
	defer cancel()

	endpoint := fmt.Sprintf("%s/models/%s:generateContent", c.cfg.BaseURL, c.cfg.Model)
	httpReq, err := http.NewRequestWithContext(callCtx, http.MethodPost, endpoint, bytes.NewReader(encoded))
	if err != nil {
		return Content{}, services.Wrap(services.ErrTransient, "content_generation", "generate", "building vendor request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", c.cfg.APIKey)

	started := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return Content{}, classifyTransportError(callCtx, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Content{}, services.Wrap(services.ErrTransient, "content_generation", "generate", "reading vendor response", err)
	}
	if resp.StatusCode != http.StatusOK {
		return Content{}, clients.NewStatusError("contentgen", resp, body)
	}

	var vendorResp generateResponse
	if err := json.Unmarshal(body, &vendorResp); err != nil {
		return Content{}, services.Wrap(services.ErrTransient, "content_generation", "generate", "decoding vendor response", err)
	}
	text := candidateText(vendorResp)
	if text == "" {
		return Content{}, services.Wrap(services.ErrTransient, "content_generation", "generate", emptyCandidateDetail(vendorResp), nil)
	}

	var parsed generatedPayload
	if err := DecodeModelJSON(text, &parsed); err != nil {
		return Content{}, services.Wrap(services.ErrTransient, "content_generation", "generate", "parsing generated content", err)
	}

	content := buildContent(req, parsed, c.cfg.Model)
	c.logger.Info("content generation complete",
		logging.Int("transcript_chars", content.Metadata.TranscriptLength),
		logging.Int("show_notes", content.Metadata.ShowNotesCount),
		logging.Int("blog_words", content.Metadata.BlogPostWordCount),
		logging.Duration("elapsed", time.Since(started)))
	return content, nil
}

func candidateText(resp generateResponse) string {
	for _, candidate := range resp.Candidates {
		var b strings.Builder
		for _, part := range candidate.Content.Parts {
			b.WriteString(part.Text)
		}
		if text := strings.TrimSpace(b.String()); text != "" {
			return text
		}
	}
	return ""
}

func emptyCandidateDetail(resp generateResponse) string {
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return fmt.Sprintf("vendor blocked the prompt (reason=%s)", resp.PromptFeedback.BlockReason)
	}
	for _, candidate := range resp.Candidates {
		if candidate.FinishReason != "" {
			return fmt.Sprintf("vendor returned no content (finish_reason=%s)", candidate.FinishReason)
		}
	}
	return "vendor returned no content"
}

// buildContent normalizes the decoded payload: show notes get a 00:00
// fallback timestamp and the result always carries computed metadata.
func buildContent(req Request, parsed generatedPayload, model string) Content {
	notes := make([]ShowNote, 0, len(parsed.ShowNotes))
	for _, note := range parsed.ShowNotes {
		if strings.TrimSpace(note.Timestamp) == "" {
			note.Timestamp = "00:00"
		}
		notes = append(notes, note)
	}
	if parsed.BlogPost != nil && parsed.BlogPost.Tags == nil {
		parsed.BlogPost.Tags = []string{}
	}
	wordCount := 0
	if parsed.BlogPost != nil {
		wordCount = len(strings.Fields(parsed.BlogPost.Body))
	}
	return Content{
		SEOTitle:    strings.TrimSpace(parsed.SEOTitle),
		ShowNotes:   notes,
		BlogPost:    parsed.BlogPost,
		SocialMedia: parsed.SocialMedia,
		Metadata: Metadata{
			TranscriptLength:      len(req.Transcript),
			ShowNotesCount:        len(notes),
			SpeakerChunksProvided: len(req.SpeakerChunks),
			BlogPostWordCount:     wordCount,
			Model:                 model,
			GenerationType:        GenerationType,
		},
	}
}

func classifyTransportError(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return services.Wrap(services.ErrTimeout, "content_generation", "generate", "vendor call exceeded deadline", err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return services.Wrap(services.ErrTimeout, "content_generation", "generate", "vendor call timed out", err)
	}
	return services.Wrap(services.ErrTransient, "content_generation", "generate", "vendor call failed", err)
}
