package clients_test

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"podmill/internal/clients"
)

func TestParseRetryAfterSeconds(t *testing.T) {
	delay, ok := clients.ParseRetryAfter("30")
	if !ok {
		t.Fatal("expected seconds form to parse")
	}
	if delay != 30*time.Second {
		t.Fatalf("unexpected delay: %v", delay)
	}
}

func TestParseRetryAfterHTTPDate(t *testing.T) {
	when := time.Now().Add(90 * time.Second).UTC().Format(http.TimeFormat)
	delay, ok := clients.ParseRetryAfter(when)
	if !ok {
		t.Fatal("expected http date form to parse")
	}
	if delay <= 0 || delay > 91*time.Second {
		t.Fatalf("unexpected delay: %v", delay)
	}
}

func TestParseRetryAfterRejectsGarbage(t *testing.T) {
	for _, value := range []string{"", "soon", "-5"} {
		if _, ok := clients.ParseRetryAfter(value); ok {
			t.Fatalf("expected %q to be rejected", value)
		}
	}
}

func TestStatusErrorMessage(t *testing.T) {
	resp := &http.Response{
		StatusCode: http.StatusTooManyRequests,
		Header:     http.Header{"Retry-After": []string{"12"}},
	}
	err := clients.NewStatusError("transcriber", resp, []byte("  slow down \n"))
	if err.RetryAfter != 12*time.Second {
		t.Fatalf("expected retry-after captured, got %v", err.RetryAfter)
	}
	if !strings.Contains(err.Error(), "transcriber request: http 429: slow down") {
		t.Fatalf("unexpected message: %q", err.Error())
	}
}

func TestNewPoolsBuildsDistinctClients(t *testing.T) {
	pools := clients.NewPools()
	if pools.Transcriber == nil || pools.ContentGen == nil || pools.DocStore == nil {
		t.Fatal("expected all vendor clients to be constructed")
	}
	if pools.Transcriber == pools.ContentGen {
		t.Fatal("expected distinct clients per vendor")
	}
	if pools.Transcriber.Timeout != 0 {
		t.Fatalf("transcriber client must rely on context deadlines, got timeout %v", pools.Transcriber.Timeout)
	}
	if pools.ContentGen.Timeout != 60*time.Second {
		t.Fatalf("unexpected contentgen timeout: %v", pools.ContentGen.Timeout)
	}
	pools.CloseIdle()
}
