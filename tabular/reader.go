package tabular

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"path"
	"strings"

	"github.com/spf13/afero"

	"github.com/openagua/go-evaluator/internal/helpers"
)

// Source opens the raw bytes behind a locator.
type Source interface {
	Open(ctx context.Context, name string) (io.ReadCloser, error)
}

// FileSource serves tables from a file system, rooted at a directory.
type FileSource struct {
	fs afero.Fs
}

// NewFileSource serves files under root. An empty root serves fsys as is.
func NewFileSource(fsys afero.Fs, root string) *FileSource {
	if root != "" {
		fsys = afero.NewBasePathFs(fsys, root)
	}
	return &FileSource{fs: fsys}
}

// Open opens name relative to the root.
func (s *FileSource) Open(_ context.Context, name string) (io.ReadCloser, error) {
	f, err := s.fs.Open(name)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return nil, err
	}
	return f, nil
}

// Reader resolves read_csv locators against a Source.
type Reader struct {
	source Source
	http   Source
	prefix string
	logger *slog.Logger
}

// ReaderOption configures a Reader.
type ReaderOption func(*Reader)

// WithPrefix is prepended to every relative locator, like the files path of a project.
func WithPrefix(prefix string) ReaderOption {
	return func(r *Reader) {
		r.prefix = strings.Trim(prefix, "/")
	}
}

// WithHTTP serves http and https locators from src instead of the reader source.
func WithHTTP(src Source) ReaderOption {
	return func(r *Reader) {
		r.http = src
	}
}

// WithReaderLogHandler sets the log handler of the reader.
func WithReaderLogHandler(h slog.Handler) ReaderOption {
	return func(r *Reader) {
		_, r.logger = helpers.SetupLogger(h, "tabular", "Reader")
	}
}

// NewReader creates a reader over source.
func NewReader(source Source, opts ...ReaderOption) *Reader {
	r := &Reader{source: source}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.Default().WithGroup("tabular")
	}
	return r
}

// Resolve maps a locator to a source name. Absolute paths and http URLs are passed through
// without the prefix; "s3://bucket/key" becomes "key".
func (r *Reader) Resolve(locator string) string {
	locator = strings.TrimSpace(locator)
	if IsURL(locator) {
		return locator
	}
	if rest, ok := strings.CutPrefix(locator, "s3://"); ok {
		_, key, _ := strings.Cut(rest, "/")
		return key
	}
	if strings.HasPrefix(locator, "/") || r.prefix == "" {
		return path.Clean(locator)
	}
	return path.Join(r.prefix, locator)
}

// Read loads and shapes the table behind locator.
func (r *Reader) Read(ctx context.Context, locator string, opts Options) (*Table, error) {
	if r == nil {
		return nil, ErrNoSource
	}
	name := r.Resolve(locator)
	src := r.source
	if IsURL(name) {
		src = r.http
	}
	if src == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoSource, locator)
	}
	logger := r.logger.With("locator", locator, "name", name)

	rc, err := src.Open(ctx, name)
	if err != nil {
		logger.WarnContext(ctx, "Failed to open table", "error", err)
		return nil, err
	}
	defer func() {
		if cerr := rc.Close(); cerr != nil {
			logger.WarnContext(ctx, "Failed to close table", "error", cerr)
		}
	}()

	t, err := Parse(rc, opts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", locator, err)
	}
	if opts.FillMethod != FillNone {
		t.Fill(opts.FillMethod, opts.InterpMethod)
	}
	if opts.Fit && t.DateIndex && len(opts.Dates) > 0 {
		t = t.Reindex(opts.Dates)
	}
	logger.DebugContext(ctx, "Table read", "rows", len(t.Index), "columns", len(t.Columns))
	return t, nil
}
