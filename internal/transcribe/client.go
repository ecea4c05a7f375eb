package transcribe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"podmill/internal/clients"
	"podmill/internal/logging"
	"podmill/internal/services"
)

const (
	defaultBaseURL = "https://api.deepgram.com/v1/listen"
	defaultModel   = "nova-2"
)

// Config captures the runtime settings required to talk to the transcription
// vendor.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
}

// Client uploads audio to the hosted speech-to-text API and normalizes the
// response. It performs a single attempt per call; retries belong to the
// resilience executor wrapping it, and each retry re-opens the staged file.
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

// NewClient constructs a transcription client. The default transport uses the
// transcriber connection pool, which carries no request timeout; deadlines are
// derived per call from the audio size.
func NewClient(cfg Config, logger *slog.Logger, opts ...Option) *Client {
	client := &Client{
		cfg: Config{
			APIKey:  strings.TrimSpace(cfg.APIKey),
			BaseURL: strings.TrimSpace(cfg.BaseURL),
			Model:   strings.TrimSpace(cfg.Model),
		},
		httpClient: clients.New(clients.TranscriberPool()),
		logger:     logging.NewComponentLogger(logger, "transcribe"),
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
	if client.logger == nil {
		client.logger = logging.NewNop()
	}
	return client
}

// vendorResponse mirrors the slice of the vendor payload we consume.
type vendorResponse struct {
	Results struct {
		Channels []struct {
			Alternatives []struct {
				Transcript string       `json:"transcript"`
				Words      []vendorWord `json:"words"`
			} `json:"alternatives"`
		} `json:"channels"`
	} `json:"results"`
}

type vendorWord struct {
	Word           string  `json:"word"`
	PunctuatedWord string  `json:"punctuated_word"`
	Start          float64 `json:"start"`
	End            float64 `json:"end"`
	Confidence     float64 `json:"confidence"`
	Speaker        *int    `json:"speaker"`
}

// Transcribe uploads the staged audio file and returns the normalized
// transcript. An episode with no detected speech is a successful empty
// transcript, not an error.
func (c *Client) Transcribe(ctx context.Context, req Request) (Transcript, error) {
	if c.cfg.APIKey == "" {
		return Transcript{}, services.Wrap(services.ErrConfiguration, "transcription", "transcribe", "transcriber API key is not configured", nil)
	}
	if !SupportedFormat(req.Filename, req.ContentType) {
		return Transcript{}, services.Wrap(services.ErrValidation, "transcription", "transcribe",
			fmt.Sprintf("unsupported audio format %q, supported: %s", req.Filename, strings.Join(SupportedFormats(), ", ")), nil)
	}

	info, err := os.Stat(req.AudioPath)
	if err != nil {
		return Transcript{}, services.Wrap(services.ErrValidation, "transcription", "transcribe", "staged audio file is not readable", err)
	}
	size := info.Size()
	if size == 0 {
		return Transcript{}, services.Wrap(services.ErrValidation, "transcription", "transcribe", "audio file is empty", nil)
	}
	if size > MaxAudioBytes {
		return Transcript{}, services.Wrap(services.ErrValidation, "transcription", "transcribe",
			fmt.Sprintf("audio file is %d bytes, limit is %d", size, MaxAudioBytes), nil)
	}

	callCtx, cancel := context.WithTimeout(ctx, TimeoutFor(size))
	defer cancel()

	audio, err := os.Open(req.AudioPath)
	if err != nil {
		return Transcript{}, services.Wrap(services.ErrValidation, "transcription", "transcribe", "opening staged audio file", err)
	}
	defer audio.Close()

	httpReq, err := http.NewRequestWithContext(callCtx, http.MethodPost, c.requestURL(), audio)
	if err != nil {
		return Transcript{}, services.Wrap(services.ErrTransient, "transcription", "transcribe", "building vendor request", err)
	}
	httpReq.ContentLength = size
	httpReq.Header.Set("Authorization", "Token "+c.cfg.APIKey)
	contentType := strings.TrimSpace(req.ContentType)
	if contentType == "" {
		contentType = "audio/*"
	}
	httpReq.Header.Set("Content-Type", contentType)

	started := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return Transcript{}, classifyTransportError(callCtx, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Transcript{}, services.Wrap(services.ErrTransient, "transcription", "transcribe", "reading vendor response", err)
	}
	if resp.StatusCode != http.StatusOK {
		return Transcript{}, clients.NewStatusError("transcriber", resp, body)
	}

	var payload vendorResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return Transcript{}, services.Wrap(services.ErrTransient, "transcription", "transcribe", "decoding vendor response", err)
	}

	transcript := normalize(payload)
	transcript.Model = c.cfg.Model
	transcript.SizeBytes = size

	c.logger.Info("transcription complete",
		logging.String("filename", req.Filename),
		logging.Int64("size_bytes", size),
		logging.Int("word_count", transcript.WordCount),
		logging.Int("speaker_count", transcript.SpeakerCount),
		logging.Duration("elapsed", time.Since(started)))
	return transcript, nil
}

func (c *Client) requestURL() string {
	query := url.Values{}
	query.Set("model", c.cfg.Model)
	query.Set("smart_format", "true")
	query.Set("punctuate", "true")
	query.Set("diarize", "true")
	query.Set("utterances", "true")
	query.Set("utt_split", "0.8")
	query.Set("language", "en-US")
	return c.cfg.BaseURL + "?" + query.Encode()
}

// normalize flattens the vendor payload into a Transcript. Empty channel or
// alternative lists collapse to an empty transcript with a non-nil word slice.
func normalize(payload vendorResponse) Transcript {
	transcript := Transcript{Words: []Word{}}
	if len(payload.Results.Channels) == 0 {
		return transcript
	}
	alternatives := payload.Results.Channels[0].Alternatives
	if len(alternatives) == 0 {
		return transcript
	}
	best := alternatives[0]
	transcript.Text = best.Transcript
	for _, raw := range best.Words {
		word := Word{
			Word:       raw.Word,
			Start:      round2(raw.Start),
			End:        round2(raw.End),
			Confidence: round3(raw.Confidence),
		}
		if raw.PunctuatedWord != "" {
			word.Word = raw.PunctuatedWord
		}
		if raw.Speaker != nil {
			speaker := *raw.Speaker
			word.Speaker = &speaker
		}
		transcript.Words = append(transcript.Words, word)
	}
	transcript.WordCount = len(transcript.Words)
	transcript.SpeakerCount = countSpeakers(transcript.Words)
	return transcript
}

func classifyTransportError(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return services.Wrap(services.ErrTimeout, "transcription", "transcribe", "vendor call exceeded deadline", err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return services.Wrap(services.ErrTimeout, "transcription", "transcribe", "vendor call timed out", err)
	}
	return services.Wrap(services.ErrTransient, "transcription", "transcribe", "vendor call failed", err)
}
