package http

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

var errBoom = errors.New("connection reset by peer")

// flakyTransport fails the first failures round trips and then answers 200.
type flakyTransport struct {
	calls    atomic.Int32
	failures int32
}

func (f *flakyTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	n := f.calls.Add(1)
	if f.failures < 0 || n <= f.failures {
		return nil, errBoom
	}
	return &http.Response{
		StatusCode: http.StatusOK,
		Status:     "200 OK",
		Body:       io.NopCloser(strings.NewReader("ok")),
		Header:     http.Header{},
		Request:    req,
	}, nil
}

func testOptions(rt http.RoundTripper) Options {
	opts := DefaultOptions()
	opts.Delay = time.Millisecond
	opts.Transport = rt
	return opts
}

func TestRetrySucceedsOnFifthAttempt(t *testing.T) {
	rt := &flakyTransport{failures: 4}
	client := NewClient(testOptions(rt))

	resp, err := client.Get(context.Background(), "http://archive.test/file")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}
	if got := rt.calls.Load(); got != 5 {
		t.Errorf("expected 5 calls, got %d", got)
	}
}

func TestRetryExhaustion(t *testing.T) {
	rt := &flakyTransport{failures: -1}
	client := NewClient(testOptions(rt))

	_, err := client.Get(context.Background(), "http://archive.test/file")
	if err == nil {
		t.Fatal("expected error")
	}

	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("expected *TransportError, got %T: %v", err, err)
	}
	if te.Attempts != 5 {
		t.Errorf("expected 5 attempts recorded, got %d", te.Attempts)
	}
	if !errors.Is(err, errBoom) {
		t.Errorf("expected underlying error to be preserved, got %v", err)
	}
	if got := rt.calls.Load(); got != 5 {
		t.Errorf("expected 5 calls, got %d", got)
	}
}

func TestStatusIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	opts := DefaultOptions()
	opts.Delay = time.Millisecond
	client := NewClient(opts)

	resp, err := client.Get(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	resp.Body.Close()

	err = CheckStatus(resp, http.StatusOK)
	var se *UnexpectedStatusError
	if !errors.As(err, &se) {
		t.Fatalf("expected *UnexpectedStatusError, got %v", err)
	}
	if se.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("expected status 503, got %d", se.StatusCode)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("expected 1 call, got %d", got)
	}
}

func TestHeadAndPost(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodHead:
			w.Header().Set("Content-Disposition", `attachment; filename="a.zip"`)
		case http.MethodPost:
			if ct := r.Header.Get("Content-Type"); ct != "application/xml" {
				t.Errorf("expected content-type application/xml, got %s", ct)
			}
			body, _ := io.ReadAll(r.Body)
			w.Write(body)
		default:
			t.Errorf("unexpected method %s", r.Method)
		}
	}))
	defer server.Close()

	client := NewClient(DefaultOptions())

	head, err := client.Head(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("Head: %v", err)
	}
	if cd := head.Header.Get("Content-Disposition"); cd != `attachment; filename="a.zip"` {
		t.Errorf("unexpected Content-Disposition %q", cd)
	}

	resp, err := client.Post(context.Background(), server.URL, "application/xml", []byte("<q/>"))
	if err != nil {
		t.Fatalf("Post: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "<q/>" {
		t.Errorf("expected echoed body, got %q", body)
	}
}

func TestPostBodyResentOnRetry(t *testing.T) {
	var bodies []string
	rt := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		b, _ := io.ReadAll(req.Body)
		bodies = append(bodies, string(b))
		if len(bodies) < 2 {
			return nil, errBoom
		}
		return &http.Response{StatusCode: 200, Body: io.NopCloser(strings.NewReader("")), Header: http.Header{}, Request: req}, nil
	})

	client := NewClient(testOptions(rt))
	resp, err := client.Post(context.Background(), "http://catalog.test/", "text/xml", []byte("query"))
	if err != nil {
		t.Fatalf("Post: %v", err)
	}
	resp.Body.Close()

	if len(bodies) != 2 || bodies[0] != "query" || bodies[1] != "query" {
		t.Errorf("expected body sent twice, got %q", bodies)
	}
}

func TestSubstitutionFirstMatchWins(t *testing.T) {
	subs := Substitutions{
		{From: "http://a.example", To: "https://first.example"},
		{From: "http://a.example/docs", To: "https://second.example"},
		{From: "https://first.example", To: "https://third.example"},
	}

	tests := []struct {
		input    string
		expected string
	}{
		{"http://a.example/docs/1.zip", "https://first.example/docs/1.zip"},
		{"http://b.example/x", "http://b.example/x"},
		{"https://first.example/y", "https://third.example/y"},
	}

	for _, tt := range tests {
		if got := subs.Rewrite(tt.input); got != tt.expected {
			t.Errorf("Rewrite(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestSubstitutionAppliedToRequests(t *testing.T) {
	var seen string
	rt := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		seen = req.URL.String()
		return &http.Response{StatusCode: 200, Body: io.NopCloser(strings.NewReader("")), Header: http.Header{}, Request: req}, nil
	})

	opts := testOptions(rt)
	opts.Substitutions = Substitutions{{From: "http://internal:8080", To: "https://public.example"}}
	client := NewClient(opts)

	resp, err := client.Get(context.Background(), "http://internal:8080/archive/7")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	resp.Body.Close()

	if seen != "https://public.example/archive/7" {
		t.Errorf("expected rewritten URL, got %s", seen)
	}
}

func TestContextCancellationDuringDelay(t *testing.T) {
	rt := &flakyTransport{failures: -1}
	opts := testOptions(rt)
	opts.Delay = 10 * time.Second
	client := NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := client.Get(ctx, "http://archive.test/file")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected context.DeadlineExceeded, got %v", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Error("retry delay was not interrupted by context")
	}
}

func TestSlowSteadyBodyDoesNotTimeOut(t *testing.T) {
	chunk := strings.Repeat("x", 1024)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		for i := 0; i < 6; i++ {
			io.WriteString(w, chunk)
			flusher.Flush()
			time.Sleep(100 * time.Millisecond)
		}
	}))
	defer server.Close()

	opts := DefaultOptions()
	opts.Timeout = 300 * time.Millisecond
	opts.Attempts = 1
	client := NewClient(opts)
	defer client.CloseIdleConnections()

	resp, err := client.Get(context.Background(), server.URL+"/big.zip")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if len(data) != 6*len(chunk) {
		t.Errorf("expected %d bytes, got %d", 6*len(chunk), len(data))
	}
}

func TestSlowResponseHeadersTimeOut(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	defer server.Close()

	opts := DefaultOptions()
	opts.Timeout = 100 * time.Millisecond
	opts.Attempts = 2
	opts.Delay = time.Millisecond
	client := NewClient(opts)
	defer client.CloseIdleConnections()

	start := time.Now()
	_, err := client.Get(context.Background(), server.URL+"/stuck")

	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("expected *TransportError, got %T: %v", err, err)
	}
	if te.Attempts != 2 {
		t.Errorf("expected 2 attempts, got %d", te.Attempts)
	}
	if time.Since(start) > 3*time.Second {
		t.Error("header timeout was not applied")
	}
}

func TestZeroAttempts(t *testing.T) {
	opts := DefaultOptions()
	opts.Attempts = 0
	client := NewClient(opts)

	_, err := client.Get(context.Background(), "http://archive.test/")
	if !errors.Is(err, ErrNoAttempts) {
		t.Errorf("expected ErrNoAttempts, got %v", err)
	}
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}
