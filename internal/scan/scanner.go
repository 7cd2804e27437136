// Package scan discovers mod archives under one or more mods roots.
package scan

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/Ning0612/ipmtool/internal/adapter"
	"github.com/Ning0612/ipmtool/internal/adapter/local"
	"github.com/Ning0612/ipmtool/internal/logger"
)

// Options configures a Scanner
type Options struct {
	// Extension is the archive suffix to collect, e.g. ".pak"
	Extension string
	// SkipDir is a directory name never descended into (the tool's own output folder)
	SkipDir string
}

// Warning is a non-fatal problem encountered while scanning
type Warning struct {
	Path string
	Err  error
}

func (w Warning) String() string {
	return fmt.Sprintf("%s: %v", w.Path, w.Err)
}

// Result holds the archives found across all roots
type Result struct {
	// Archives are absolute paths, grouped by root in the order roots were given
	Archives []string
	Warnings []Warning
}

// Scanner finds archive files below mods roots
type Scanner struct {
	opts Options
}

// New creates a Scanner
func New(opts Options) *Scanner {
	if opts.Extension == "" {
		opts.Extension = ".pak"
	}
	return &Scanner{opts: opts}
}

// Scan walks the primary root and any extra roots. The primary root must exist;
// an extra root that cannot be opened only produces a warning. Roots are walked
// concurrently and their results concatenated in argument order.
func (s *Scanner) Scan(ctx context.Context, primary string, extra ...string) (*Result, error) {
	primaryAdapter, err := local.New(primary)
	if err != nil {
		return nil, fmt.Errorf("mods root %s: %w", primary, err)
	}

	adapters := []adapter.Adapter{primaryAdapter}
	var warnings []Warning
	for _, root := range extra {
		if strings.TrimSpace(root) == "" {
			continue
		}
		a, err := local.New(root)
		if err != nil {
			logger.Get().Warn("skipping secondary root", "root", root, "error", err)
			warnings = append(warnings, Warning{Path: root, Err: err})
			continue
		}
		adapters = append(adapters, a)
	}

	perRoot := make([]*Result, len(adapters))
	g, gctx := errgroup.WithContext(ctx)
	for i, a := range adapters {
		g.Go(func() error {
			res := &Result{}
			if err := s.walk(gctx, a, "", res); err != nil {
				return err
			}
			perRoot[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result := &Result{Warnings: warnings}
	for _, r := range perRoot {
		result.Archives = append(result.Archives, r.Archives...)
		result.Warnings = append(result.Warnings, r.Warnings...)
	}

	logger.Get().Debug("scan complete",
		"roots", len(adapters),
		"archives", len(result.Archives),
		"warnings", len(result.Warnings),
	)
	return result, nil
}

// walk recursively lists dir, collecting archives into res.
// Unreadable directories become warnings; only context errors abort.
func (s *Scanner) walk(ctx context.Context, a adapter.Adapter, dir string, res *Result) error {
	items, err := a.List(ctx, dir)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		path := filepath.Join(a.Root(), filepath.FromSlash(dir))
		logger.Get().Warn("cannot read directory", "path", path, "error", err)
		res.Warnings = append(res.Warnings, Warning{Path: path, Err: err})
		return nil
	}

	for _, item := range items {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		name := item.Name
		switch {
		case item.IsDir():
			if s.opts.SkipDir != "" && name == s.opts.SkipDir {
				continue
			}
			if err := s.walk(ctx, a, item.Path, res); err != nil {
				return err
			}
		case item.IsFile() && strings.HasSuffix(name, s.opts.Extension):
			res.Archives = append(res.Archives, filepath.Join(a.Root(), filepath.FromSlash(item.Path)))
		}
	}
	return nil
}
