package datasource

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"pbietl/internal/datasource/httpds"
	"pbietl/internal/datasource/sheets"
	"pbietl/internal/datasource/xlsx"
	"pbietl/internal/metrics"
	csvparser "pbietl/internal/parser/csv"
	htmlparser "pbietl/internal/parser/html"
	jsonparser "pbietl/internal/parser/json"
	"pbietl/internal/table"
)

// Logger is the minimal logging surface used here.
type Logger interface {
	Printf(format string, v ...any)
}

// Getter is the HTTP surface the loader needs; *httpds.Client implements it.
type Getter interface {
	Get(ctx context.Context, rawURL string, headers, params map[string]string) ([]byte, error)
}

// ErrInvalidJSON wraps JSON decode and record-detection failures.
var ErrInvalidJSON = errors.New("invalid json")

// Loader reads sources described by Spec.
type Loader struct {
	HTTP    Getter
	BaseDir string
	Logger  Logger
}

func (l *Loader) logger() Logger {
	if l.Logger == nil {
		return log.Default()
	}
	return l.Logger
}

// Resolve returns the absolute local path of a file source.
func (l *Loader) Resolve(p string) string {
	if p == "" || filepath.IsAbs(p) || l.BaseDir == "" {
		return p
	}
	return filepath.Join(l.BaseDir, p)
}

// Load reads the source into a raw table.
//
// Errors (wrapped with the source name):
//   - xlsx.ErrFileNotFound / xlsx.ErrSheetNotFound / os.ErrNotExist.
//   - httpds.ErrStatus and transport errors.
//   - ErrInvalidJSON.
func (l *Loader) Load(ctx context.Context, s Spec) (*table.Table, error) {
	start := time.Now()
	t, err := l.load(ctx, s)
	if err != nil {
		return nil, fmt.Errorf("source %s (%s %s): %w", s.Name, s.Kind, s.Location(), err)
	}
	metrics.RecordRows("read", s.Name, t.Len())
	l.logger().Printf("source=%s kind=%s rows=%d cols=%d duration=%s", s.Name, s.Kind, t.Len(), len(t.Columns), time.Since(start).Round(time.Millisecond))
	return t, nil
}

func (l *Loader) load(ctx context.Context, s Spec) (*table.Table, error) {
	switch s.Kind {
	case KindXLSX:
		t, err := xlsx.Read(l.Resolve(s.Path), s.Sheet)
		if err != nil {
			return nil, err
		}
		return shapeSheet(t, s), nil

	case KindCSVFile:
		f, err := os.Open(l.Resolve(s.Path))
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return csvparser.Read(ctx, f, csvOptions(s))

	case KindCSVURL:
		body, err := l.fetch(ctx, s)
		if err != nil {
			return nil, err
		}
		return csvparser.Read(ctx, bytes.NewReader(body), csvOptions(s))

	case KindHTMLURL:
		body, err := l.fetch(ctx, s)
		if err != nil {
			return nil, err
		}
		return htmlparser.ReadTable(bytes.NewReader(body), s.Selector)

	case KindJSONURL:
		body, err := l.fetch(ctx, s)
		if err != nil {
			return nil, err
		}
		return jsonTable(body, s)

	default:
		return nil, fmt.Errorf("unsupported source kind %q", s.Kind)
	}
}

func (l *Loader) fetch(ctx context.Context, s Spec) ([]byte, error) {
	if l.HTTP == nil {
		return nil, fmt.Errorf("no http client configured")
	}
	u := s.URL
	if s.ExportFromEdit {
		var err error
		if u, err = sheets.ExportURL(u); err != nil {
			return nil, err
		}
	}
	if s.Timeout != "" {
		d, err := time.ParseDuration(s.Timeout)
		if err != nil {
			return nil, fmt.Errorf("timeout %q: %w", s.Timeout, err)
		}
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}
	headers := s.Headers
	if s.Kind == KindJSONURL {
		headers = withDefault(headers, "Accept", "application/json")
	}
	return l.HTTP.Get(ctx, u, headers, s.Params)
}

func jsonTable(body []byte, s Spec) (*table.Table, error) {
	root, err := jsonparser.Decode(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	var recs []*jsonparser.Object
	switch s.JSONRecords {
	case RecordsFirstList:
		recs, err = jsonparser.FirstList(root)
	case RecordsField:
		recs, err = jsonparser.Field(root, s.JSONField)
	default:
		recs, err = jsonparser.Records(root)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	sep := s.FlattenSep
	if sep == "" {
		sep = "."
	}
	return jsonparser.Flatten(recs, sep), nil
}

// shapeSheet applies SkipRows and HasHeader to a raw worksheet, matching the
// csv reader options.
func shapeSheet(t *table.Table, s Spec) *table.Table {
	for i := 0; i < s.SkipRows && !t.Empty(); i++ {
		t = t.DropFirst()
	}
	if s.HasHeader {
		t = t.PromoteHeader(func(v any) string { return strings.TrimSpace(table.FormatCell(v)) })
	}
	return t
}

func csvOptions(s Spec) csvparser.Options {
	opt := csvparser.Options{
		SkipRows:   s.SkipRows,
		HasHeader:  s.HasHeader,
		LazyQuotes: true,
		TrimSpace:  false,
	}
	if s.Delimiter != "" {
		opt.Comma = []rune(s.Delimiter)[0]
	}
	return opt
}

func withDefault(h map[string]string, k, v string) map[string]string {
	if _, ok := h[k]; ok {
		return h
	}
	out := make(map[string]string, len(h)+1)
	for hk, hv := range h {
		out[hk] = hv
	}
	out[k] = v
	return out
}

// Reason classifies a load error for the console marker line.
func Reason(err error) string {
	var se *httpds.StatusError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, xlsx.ErrSheetNotFound):
		return "sheet not found"
	case errors.Is(err, xlsx.ErrFileNotFound), errors.Is(err, os.ErrNotExist):
		return "file not found"
	case errors.As(err, &se):
		return fmt.Sprintf("http status %d", se.Code)
	case errors.Is(err, ErrInvalidJSON):
		return "invalid json"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "read failed"
	}
}

// LoadOrEmpty is the source boundary: any failure is logged with its reason
// and degrades to an empty table with no columns.
func (l *Loader) LoadOrEmpty(ctx context.Context, s Spec) *table.Table {
	t, err := l.Load(ctx, s)
	if err != nil {
		l.logger().Printf("[ERROR] source=%s reason=%q err=%v", s.Name, Reason(err), err)
		return table.New()
	}
	return t
}

var _ Getter = (*httpds.Client)(nil)
