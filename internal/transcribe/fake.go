package transcribe

import (
	"context"
	"sync"
)

// Fake is a scripted Transcriber for tests and development mode. Results are
// keyed by filename; unscripted files get a small deterministic transcript.
type Fake struct {
	mu      sync.Mutex
	scripts map[string]Transcript
	failErr error
	calls   []Request
}

// NewFake returns an empty scripted transcriber.
func NewFake() *Fake {
	return &Fake{scripts: make(map[string]Transcript)}
}

// Script registers the transcript returned for a filename.
func (f *Fake) Script(filename string, transcript Transcript) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scripts[filename] = transcript
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

// Transcribe implements Transcriber.
func (f *Fake) Transcribe(ctx context.Context, req Request) (Transcript, error) {
	if err := ctx.Err(); err != nil {
		return Transcript{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req)
	if f.failErr != nil {
		return Transcript{}, f.failErr
	}
	if transcript, ok := f.scripts[req.Filename]; ok {
		if transcript.Words == nil {
			transcript.Words = []Word{}
		}
		return transcript, nil
	}
	return cannedTranscript(), nil
}

func cannedTranscript() Transcript {
	host, guest := 0, 1
	words := []Word{
		{Word: "Welcome", Start: 0.10, End: 0.48, Confidence: 0.998, Speaker: &host},
		{Word: "to", Start: 0.48, End: 0.60, Confidence: 0.997, Speaker: &host},
		{Word: "the", Start: 0.60, End: 0.72, Confidence: 0.999, Speaker: &host},
		{Word: "show.", Start: 0.72, End: 1.10, Confidence: 0.995, Speaker: &host},
		{Word: "Thanks", Start: 1.62, End: 1.98, Confidence: 0.992, Speaker: &guest},
		{Word: "for", Start: 1.98, End: 2.10, Confidence: 0.998, Speaker: &guest},
		{Word: "having", Start: 2.10, End: 2.41, Confidence: 0.991, Speaker: &guest},
		{Word: "me.", Start: 2.41, End: 2.70, Confidence: 0.996, Speaker: &guest},
	}
	return Transcript{
		Text:         "Welcome to the show. Thanks for having me.",
		Words:        words,
		Model:        "fake",
		WordCount:    len(words),
		SpeakerCount: 2,
	}
}
