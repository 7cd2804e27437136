// Package extract streams inventory documents out of mod archives.
package extract

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"strings"
	"time"

	"github.com/klauspost/compress/zip"

	"github.com/Ning0612/ipmtool/internal/domain"
	"github.com/Ning0612/ipmtool/internal/logger"
	"github.com/Ning0612/ipmtool/internal/progress"
)

const utf8BOM = "\uFEFF"

// Options configures which entries are read and the per-archive limits
type Options struct {
	// EntryPrefix, EntryMarker and EntrySuffix select entries: prefix, contains, suffix
	EntryPrefix string
	EntryMarker string
	EntrySuffix string

	// Timeout bounds the time spent on one archive
	Timeout time.Duration

	// MaxEntries rejects archives listing more entries than this
	MaxEntries int

	// MaxEntrySize rejects matching entries larger than this many bytes
	MaxEntrySize int64
}

// DefaultOptions returns the limits used for game archives
func DefaultOptions() Options {
	return Options{
		EntryPrefix:  "Libs/Tables/item/",
		EntryMarker:  "InventoryPreset",
		EntrySuffix:  ".xml",
		Timeout:      30 * time.Second,
		MaxEntries:   10000,
		MaxEntrySize: 64 << 20,
	}
}

// Matches reports whether an entry path holds an inventory document
func (o Options) Matches(name string) bool {
	return strings.HasPrefix(name, o.EntryPrefix) &&
		strings.Contains(name, o.EntryMarker) &&
		strings.HasSuffix(name, o.EntrySuffix)
}

// ExtractError is a failure confined to one archive
type ExtractError struct {
	Archive string
	ModID   string
	Err     error
}

func (e *ExtractError) Error() string {
	return fmt.Sprintf("%s (%s): %v", e.Archive, e.ModID, e.Err)
}

func (e *ExtractError) Unwrap() error {
	return e.Err
}

// Result collects the documents of every archive that could be read
type Result struct {
	Documents []domain.ExtractedDocument

	// Errors holds one entry per archive that failed; its earlier documents are kept
	Errors []*ExtractError

	// Entries maps an archive path to the entries read from it, in read order
	Entries map[string][]string
}

// Extractor reads packages one after another
type Extractor struct {
	opts     Options
	reporter progress.Reporter
}

// New creates an Extractor. Zero fields in opts take the defaults and a nil
// reporter discards progress.
func New(opts Options, reporter progress.Reporter) *Extractor {
	def := DefaultOptions()
	if opts.EntryPrefix == "" && opts.EntryMarker == "" && opts.EntrySuffix == "" {
		opts.EntryPrefix, opts.EntryMarker, opts.EntrySuffix = def.EntryPrefix, def.EntryMarker, def.EntrySuffix
	}
	if opts.Timeout == 0 {
		opts.Timeout = def.Timeout
	}
	if opts.MaxEntries <= 0 {
		opts.MaxEntries = def.MaxEntries
	}
	if opts.MaxEntrySize <= 0 {
		opts.MaxEntrySize = def.MaxEntrySize
	}
	if reporter == nil {
		reporter = progress.NullReporter{}
	}
	return &Extractor{opts: opts, reporter: reporter}
}

// Extract reads every package in order. A failing archive is recorded and
// skipped; only cancellation of ctx stops the run, returning what was read so far.
func (e *Extractor) Extract(ctx context.Context, packages []domain.Package) (*Result, error) {
	log := logger.Get()
	res := &Result{Entries: make(map[string][]string)}
	e.reporter.SetTotal(len(packages))

	for _, pkg := range packages {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		e.reporter.StartArchive(pkg.ArchivePath, pkg.ModID)
		err := e.extractArchive(ctx, pkg, res)
		if err == nil {
			e.reporter.CompleteArchive()
			continue
		}
		if ctx.Err() != nil {
			return res, ctx.Err()
		}

		xerr := &ExtractError{Archive: pkg.ArchivePath, ModID: pkg.ModID, Err: err}
		res.Errors = append(res.Errors, xerr)
		e.reporter.Error(xerr)
		log.Warn("skipping archive", "archive", pkg.ArchivePath, "mod", pkg.ModID, "error", err)
	}
	return res, nil
}

func (e *Extractor) extractArchive(ctx context.Context, pkg domain.Package, res *Result) error {
	actx, cancel := context.WithTimeout(ctx, e.opts.Timeout)
	defer cancel()

	r, err := zip.OpenReader(pkg.ArchivePath)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer r.Close()

	if len(r.File) > e.opts.MaxEntries {
		return fmt.Errorf("%w: %d > %d", domain.ErrTooManyEntries, len(r.File), e.opts.MaxEntries)
	}

	next, stop := iter.Pull(e.entries(r.File))
	defer stop()

	for {
		if err := timeoutErr(actx); err != nil {
			return err
		}
		f, ok := next()
		if !ok {
			return nil
		}

		content, err := e.readEntry(actx, f)
		if err != nil {
			if terr := timeoutErr(actx); terr != nil {
				return terr
			}
			return fmt.Errorf("read %s: %w", f.Name, err)
		}

		doc := domain.ExtractedDocument{
			ModID:    pkg.ModID,
			Priority: pkg.Priority,
			Archive:  pkg.ArchivePath,
			Entry:    f.Name,
			Content:  content,
		}
		res.Documents = append(res.Documents, doc)
		res.Entries[pkg.ArchivePath] = append(res.Entries[pkg.ArchivePath], f.Name)
		e.reporter.Entry(doc.Label())
	}
}

// entries yields the matching files lazily, in archive order
func (e *Extractor) entries(files []*zip.File) iter.Seq[*zip.File] {
	return func(yield func(*zip.File) bool) {
		for _, f := range files {
			if f.FileInfo().IsDir() || !e.opts.Matches(f.Name) {
				continue
			}
			if !yield(f) {
				return
			}
		}
	}
}

func (e *Extractor) readEntry(ctx context.Context, f *zip.File) (string, error) {
	if f.UncompressedSize64 > uint64(e.opts.MaxEntrySize) {
		return "", fmt.Errorf("%w: %s, limit %s", domain.ErrEntryTooLarge,
			progress.FormatBytes(int64(f.UncompressedSize64)), progress.FormatBytes(e.opts.MaxEntrySize))
	}

	rc, err := f.Open()
	if err != nil {
		return "", err
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(&ctxReader{ctx: ctx, r: rc}, e.opts.MaxEntrySize+1))
	if err != nil {
		return "", err
	}
	if int64(len(data)) > e.opts.MaxEntrySize {
		return "", fmt.Errorf("%w: more than %s", domain.ErrEntryTooLarge, progress.FormatBytes(e.opts.MaxEntrySize))
	}
	return strings.TrimPrefix(string(data), utf8BOM), nil
}

// timeoutErr maps an expired per-archive deadline to ErrArchiveTimeout
func timeoutErr(ctx context.Context) error {
	err := ctx.Err()
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.ErrArchiveTimeout
	}
	return err
}

// ctxReader stops reading once ctx is done
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
