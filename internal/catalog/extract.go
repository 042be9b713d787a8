package catalog

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"iter"
	"net/url"
	"regexp"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/net/html/charset"
)

// ParseError reports a catalog response that could not be read for links.
type ParseError struct {
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("catalog: parse response: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("catalog: parse response: %s", e.Reason)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Filter decides whether a link is kept. A nil Filter keeps everything.
type Filter func(link string) bool

// MatchAll keeps every link.
func MatchAll(string) bool { return true }

// Contains keeps links containing substr.
func Contains(substr string) Filter {
	return func(link string) bool { return strings.Contains(link, substr) }
}

// Regexp keeps links matching re.
func Regexp(re *regexp.Regexp) Filter {
	return re.MatchString
}

// Elements whose text content is a link.
var linkElements = map[string]bool{
	"url":          true,
	"link":         true,
	"downloadlink": true,
	"archiveurl":   true,
	"href":         true,
}

// Attributes whose value is a link.
var linkAttrs = map[string]bool{
	"href": true,
	"url":  true,
}

// errStop ends a scan early when the consumer stops ranging.
var errStop = errors.New("stop")

type extractOptions struct {
	baseURL string
	logger  *zap.Logger
}

// ExtractOption configures Extract and ExtractAll.
type ExtractOption func(*extractOptions)

// WithBaseURL resolves relative links against base.
func WithBaseURL(base string) ExtractOption {
	return func(o *extractOptions) { o.baseURL = base }
}

// WithLogger sets the logger used to report parse errors.
func WithLogger(logger *zap.Logger) ExtractOption {
	return func(o *extractOptions) { o.logger = logger }
}

// Extract returns the archive links found in a catalog response. Links are
// produced while the response is scanned. The sequence can be ranged over
// once; later ranges yield nothing. A parse error is logged and ends the
// sequence.
func Extract(text []byte, filter Filter, opts ...ExtractOption) iter.Seq[string] {
	o := newExtractOptions(opts)
	var used atomic.Bool

	return func(yield func(string) bool) {
		if used.Swap(true) {
			return
		}
		if err := scan(text, filter, o, yield); err != nil {
			o.logger.Error("no links found", zap.Error(err))
		}
	}
}

// ExtractAll collects every link and reports a *ParseError instead of
// logging it.
func ExtractAll(text []byte, filter Filter, opts ...ExtractOption) ([]string, error) {
	o := newExtractOptions(opts)
	var links []string
	err := scan(text, filter, o, func(link string) bool {
		links = append(links, link)
		return true
	})
	if err != nil {
		return nil, err
	}
	return links, nil
}

func newExtractOptions(opts []ExtractOption) extractOptions {
	o := extractOptions{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	return o
}

func scan(text []byte, filter Filter, o extractOptions, yield func(string) bool) error {
	trimmed := bytes.TrimSpace(text)
	if len(trimmed) == 0 {
		return &ParseError{Reason: "empty response"}
	}

	var base *url.URL
	if o.baseURL != "" {
		u, err := url.Parse(o.baseURL)
		if err != nil {
			return &ParseError{Reason: "invalid base URL", Err: err}
		}
		base = u
	}

	if filter == nil {
		filter = MatchAll
	}

	seen := make(map[string]bool)
	emit := func(raw string) error {
		link := strings.TrimSpace(raw)
		if link == "" {
			return nil
		}
		if base != nil {
			ref, err := url.Parse(link)
			if err != nil {
				return nil
			}
			link = base.ResolveReference(ref).String()
		}
		if seen[link] || !filter(link) {
			return nil
		}
		seen[link] = true
		if !yield(link) {
			return errStop
		}
		return nil
	}

	var err error
	if looksLikeHTML(trimmed) {
		err = scanHTML(trimmed, emit)
	} else {
		err = scanXML(trimmed, emit)
	}
	if errors.Is(err, errStop) {
		return nil
	}
	return err
}

func looksLikeHTML(text []byte) bool {
	head := strings.ToLower(string(text[:min(len(text), 64)]))
	return strings.HasPrefix(head, "<!doctype html") || strings.HasPrefix(head, "<html")
}

func scanXML(text []byte, emit func(string) error) error {
	dec := xml.NewDecoder(bytes.NewReader(text))
	dec.CharsetReader = charset.NewReaderLabel

	var (
		sawElement bool
		capturing  string
		depth      int
		buf        strings.Builder
	)

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return &ParseError{Reason: "malformed XML", Err: err}
		}

		switch t := tok.(type) {
		case xml.StartElement:
			sawElement = true
			for _, attr := range t.Attr {
				if linkAttrs[strings.ToLower(attr.Name.Local)] {
					if err := emit(attr.Value); err != nil {
						return err
					}
				}
			}
			name := strings.ToLower(t.Name.Local)
			if capturing == "" && linkElements[name] {
				capturing = name
				depth = 0
				buf.Reset()
			} else if capturing == name {
				depth++
			}
		case xml.CharData:
			if capturing != "" {
				buf.Write(t)
			}
		case xml.EndElement:
			if capturing == "" || strings.ToLower(t.Name.Local) != capturing {
				continue
			}
			if depth > 0 {
				depth--
				continue
			}
			capturing = ""
			if err := emit(buf.String()); err != nil {
				return err
			}
		}
	}

	if !sawElement {
		return &ParseError{Reason: "no XML elements"}
	}
	return nil
}

func scanHTML(text []byte, emit func(string) error) error {
	z := html.NewTokenizer(bytes.NewReader(text))
	for {
		switch z.Next() {
		case html.ErrorToken:
			if z.Err() == io.EOF {
				return nil
			}
			return &ParseError{Reason: "malformed HTML", Err: z.Err()}
		case html.StartTagToken, html.SelfClosingTagToken:
			name, hasAttr := z.TagName()
			if string(name) != "a" || !hasAttr {
				continue
			}
			for {
				key, val, more := z.TagAttr()
				if string(key) == "href" {
					if err := emit(string(val)); err != nil {
						return err
					}
				}
				if !more {
					break
				}
			}
		}
	}
}
