package catalog

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	darshttp "github.com/ligustah/dars/internal/http"
)

func newHTTPClient() *darshttp.Client {
	opts := darshttp.DefaultOptions()
	opts.Delay = time.Millisecond
	return darshttp.NewClient(opts)
}

func TestRenderDefaultTemplate(t *testing.T) {
	c, err := NewClient(newHTTPClient(), Options{BaseURL: "http://catalog.test/"})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	body, err := c.Render(Request{
		Query:  `title:"a & b"`,
		Params: map[string]string{"to": "2024", "from": "2020"},
	})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}

	s := string(body)
	if !strings.Contains(s, "<query>title:&#34;a &amp; b&#34;</query>") {
		t.Errorf("query not escaped: %s", s)
	}
	from := strings.Index(s, `<param name="from">2020</param>`)
	to := strings.Index(s, `<param name="to">2024</param>`)
	if from < 0 || to < 0 || from > to {
		t.Errorf("params missing or unsorted: %s", s)
	}
}

func TestNewClientErrors(t *testing.T) {
	if _, err := NewClient(newHTTPClient(), Options{}); !errors.Is(err, ErrNoBaseURL) {
		t.Errorf("expected ErrNoBaseURL, got %v", err)
	}
	if _, err := NewClient(newHTTPClient(), Options{BaseURL: "http://x", Template: "{{ .Query"}); err == nil {
		t.Error("expected template parse error")
	}
}

func TestQueryAndLinks(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		body, _ := io.ReadAll(r.Body)
		if !strings.Contains(string(body), "<query>minutes</query>") {
			t.Errorf("unexpected request body: %s", body)
		}
		w.Header().Set("Content-Type", "application/xml")
		io.WriteString(w, `<result>
  <hit><link>/archive/1</link></hit>
  <hit><link>/archive/2</link></hit>
  <hit><link>/other/3</link></hit>
</result>`)
	}))
	defer server.Close()

	c, err := NewClient(newHTTPClient(), Options{
		BaseURL:  server.URL + "/search",
		Template: "<request><query>{{ xml .Query }}</query></request>",
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	links, err := c.Links(context.Background(), Request{Query: "minutes"}, Contains("/archive/"))
	if err != nil {
		t.Fatalf("Links: %v", err)
	}

	got := slices.Collect(links)
	want := []string{server.URL + "/archive/1", server.URL + "/archive/2"}
	if !slices.Equal(got, want) {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestQueryUnexpectedStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, "<error>bad query</error>")
	}))
	defer server.Close()

	core, logs := observer.New(zapcore.ErrorLevel)
	c, err := NewClient(newHTTPClient(), Options{BaseURL: server.URL, Logger: zap.New(core)})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	_, err = c.Query(context.Background(), Request{Query: "x"})
	var se *darshttp.UnexpectedStatusError
	if !errors.As(err, &se) {
		t.Fatalf("expected *UnexpectedStatusError, got %v", err)
	}
	if se.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", se.StatusCode)
	}

	entries := logs.FilterMessage("catalog request failed").All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 log entry, got %d", len(entries))
	}
	if body := entries[0].ContextMap()["body"]; body != "<error>bad query</error>" {
		t.Errorf("expected verbatim body in log, got %v", body)
	}
}
