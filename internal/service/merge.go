// Package service runs the scan → extract → detect → merge → assemble
// pipeline and models the manual-order pause as a resumable outcome.
package service

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Ning0612/ipmtool/internal/adapter/local"
	"github.com/Ning0612/ipmtool/internal/assemble"
	"github.com/Ning0612/ipmtool/internal/config"
	"github.com/Ning0612/ipmtool/internal/core/checksum"
	"github.com/Ning0612/ipmtool/internal/core/conflict"
	"github.com/Ning0612/ipmtool/internal/core/inventory"
	"github.com/Ning0612/ipmtool/internal/core/merge"
	"github.com/Ning0612/ipmtool/internal/domain"
	"github.com/Ning0612/ipmtool/internal/extract"
	"github.com/Ning0612/ipmtool/internal/identity"
	"github.com/Ning0612/ipmtool/internal/lock"
	"github.com/Ning0612/ipmtool/internal/logger"
	"github.com/Ning0612/ipmtool/internal/progress"
	"github.com/Ning0612/ipmtool/internal/report"
	"github.com/Ning0612/ipmtool/internal/scan"
	"github.com/Ning0612/ipmtool/internal/state"
)

// Request is one merge invocation from the host
type Request struct {
	Root                 string          `yaml:"root"`
	SecondaryRoot        string          `yaml:"secondary_root,omitempty"`
	Strategy             domain.Strategy `yaml:"strategy"`
	CombineOnlyConflicts bool            `yaml:"combine_only_conflicts"`

	// ManualOrder lists mod ids highest priority first
	ManualOrder []string `yaml:"manual_order,omitempty"`

	// Progress receives extraction events; nil disables reporting
	Progress progress.Reporter `yaml:"-"`
}

// Resolution is the caller's answer to a NeedsInput outcome
type Resolution struct {
	ManualOrder []string
	Cancel      bool
}

// Inspection is everything known about the mods before merging
type Inspection struct {
	RunID     string
	Request   Request
	Order     identity.OrderList
	Packages  []domain.Package
	Documents []domain.ExtractedDocument
	Parsed    []domain.ParsedDocument
	Detection *conflict.Result

	Warnings      []scan.Warning
	ExtractErrors []*extract.ExtractError
	ParseErrors   []*inventory.ParseError

	Fingerprint string
	Report      *report.Report
}

// ModDetails summarizes every scanned mod for conflict review
func (i *Inspection) ModDetails() []domain.ModDetail {
	return i.Detection.ModDetails(i.Packages)
}

// NeedsManualOrder reports whether the run must pause for a user-supplied order
func (i *Inspection) NeedsManualOrder() bool {
	return i.Detection.HasConflicts() &&
		!i.Order.Exists &&
		len(i.Request.ManualOrder) == 0 &&
		i.Request.Strategy == domain.StrategyManual
}

// MergeService orchestrates merge runs
type MergeService struct {
	cfg      *config.Config
	scanner  *scan.Scanner
	resolver *identity.Resolver
	detector conflict.Detector
	merger   merge.Merger
	checksum *checksum.Calculator
	history  *state.Manager

	now      func() time.Time
	newRunID func() string
}

// NewMergeService creates a merge service. history may be nil to skip run recording.
func NewMergeService(cfg *config.Config, history *state.Manager) (*MergeService, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &MergeService{
		cfg:      cfg,
		scanner:  scan.New(cfg.ScanOptions()),
		resolver: identity.NewResolver(cfg.IdentityOptions()),
		detector: conflict.NewDefaultDetector(),
		merger:   merge.NewDefaultEngine(),
		checksum: checksum.New(),
		history:  history,
		now:      time.Now,
		newRunID: uuid.NewString,
	}, nil
}

// run is the state owned by one invocation
type run struct {
	id  string
	req Request
	rep *report.Report

	packages    []domain.Package
	documents   []domain.ExtractedDocument
	parsed      []domain.ParsedDocument
	conflicts   []domain.ConflictGroup
	fingerprint string
}

// Inspect scans, extracts and detects conflicts without writing anything
func (s *MergeService) Inspect(ctx context.Context, req Request) (*Inspection, error) {
	strategy, err := domain.ParseStrategy(string(req.Strategy))
	if err != nil {
		return nil, err
	}
	req.Strategy = strategy

	r := &run{id: s.newRunID(), req: req, rep: report.New()}
	return s.inspect(ctx, r)
}

// Run performs a merge. It returns *NeedsInput when the manual strategy has
// conflicts to order and neither an order file nor a manual order exists; in
// that case nothing is written and Resume finishes the run.
func (s *MergeService) Run(ctx context.Context, req Request) Outcome {
	r := &run{id: s.newRunID(), req: req, rep: report.New()}
	r.rep.Info("Starting merge run %s", r.id)

	strategy, err := domain.ParseStrategy(string(req.Strategy))
	if err != nil {
		return s.fail(r, err)
	}
	r.req.Strategy = strategy
	r.rep.Info("Resolution method: %s", strategy)
	if req.CombineOnlyConflicts {
		r.rep.Info("Combining only presets shared by several mods")
	}

	insp, err := s.inspect(ctx, r)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return s.cancel(r)
		}
		return s.fail(r, err)
	}

	if insp.NeedsManualOrder() {
		r.rep.Warn("%d conflicts found and no %s exists: manual mod order required",
			len(r.conflicts), s.cfg.Paths.OrderFile)
		return &NeedsInput{Pending: s.pending(r, insp.ModDetails()), Log: r.rep.String()}
	}
	return s.resolve(ctx, r, req.ManualOrder)
}

// Resume finishes a run paused with NeedsInput
func (s *MergeService) Resume(ctx context.Context, p *PendingRun, res Resolution) Outcome {
	if err := p.Validate(); err != nil {
		rep := report.New()
		rep.Error("%v", err)
		rep.Finish()
		id := ""
		if p != nil {
			id = p.RunID
		}
		return &Failed{RunID: id, Err: err, Log: rep.String()}
	}

	r := &run{
		id:          p.RunID,
		req:         p.Request,
		rep:         report.Restore(p.Report),
		packages:    p.Packages,
		documents:   p.Documents,
		conflicts:   p.Conflicts,
		fingerprint: p.Fingerprint,
	}
	r.rep.Info("Resuming merge run %s", r.id)

	if res.Cancel {
		return s.cancel(r)
	}
	if len(res.ManualOrder) == 0 {
		return s.fail(r, fmt.Errorf("%w: a manual mod order is required to resume", domain.ErrPendingState))
	}

	// 解析錯誤已在第一階段記錄過
	r.parsed, _ = inventory.ParseDocuments(r.documents)
	return s.resolve(ctx, r, res.ManualOrder)
}

func (s *MergeService) inspect(ctx context.Context, r *run) (*Inspection, error) {
	rep := r.rep

	root, err := filepath.Abs(r.req.Root)
	if err != nil {
		return nil, fmt.Errorf("resolve mods root: %w", err)
	}
	r.req.Root = root
	rep.Info("Mods path: %s", root)

	var extra []string
	if r.req.SecondaryRoot != "" {
		secondary, err := filepath.Abs(r.req.SecondaryRoot)
		if err != nil {
			return nil, fmt.Errorf("resolve secondary root: %w", err)
		}
		r.req.SecondaryRoot = secondary
		extra = append(extra, secondary)
		rep.Info("Secondary path: %s", secondary)
	}

	scanned, err := s.scanner.Scan(ctx, root, extra...)
	if err != nil {
		return nil, err
	}
	for _, w := range scanned.Warnings {
		rep.Warn("Skipped %s", w)
	}
	rep.Info("PAK files found: %d", len(scanned.Archives))
	if len(scanned.Archives) == 0 {
		return nil, domain.ErrNoArchives
	}

	order := identity.ReadExplicitOrder(root, s.cfg.Paths.OrderFile)
	detected := "None"
	if len(order.Order) > 0 {
		detected = strings.Join(order.Order, ", ")
	}
	rep.Info("Detected mod order: %s", detected)
	rep.Info("Mod order file exists: %s", yesNo(order.Exists))

	r.packages = make([]domain.Package, 0, len(scanned.Archives))
	for _, archive := range scanned.Archives {
		id := s.resolver.ResolveModID(archive)
		pkg := domain.Package{
			ArchivePath: archive,
			ModFolder:   identity.ModFolder(archive),
			ModID:       id,
			Priority:    order.Priority(id),
		}
		r.packages = append(r.packages, pkg)
		rep.AddArchive(archive)
		rep.Debug("%s resolved to %s (priority %d)", archive, id, pkg.Priority)
	}

	reporter := progress.Multi{debugProgress(r.id)}
	if r.req.Progress != nil {
		reporter = append(reporter, r.req.Progress)
	}
	extracted, err := extract.New(s.cfg.ExtractOptions(), reporter).Extract(ctx, r.packages)
	if err != nil {
		return nil, err
	}
	for _, e := range extracted.Errors {
		rep.Error("Failed to process %s (%s): %v", e.Archive, e.ModID, e.Err)
	}

	r.documents = extracted.Documents
	for _, d := range r.documents {
		rep.AddDocument(d.Label())
		rep.AddCombined(d.ModID, d.Priority, d.Entry)
	}
	rep.Info("Relevant XMLs processed: %d", len(r.documents))
	if len(r.documents) == 0 {
		return nil, domain.ErrNoDocuments
	}

	parsed, parseErrs := inventory.ParseDocuments(r.documents)
	for _, e := range parseErrs {
		rep.Warn("Skipped %s from %s: %v", e.Entry, e.ModID, e.Err)
	}
	if len(parsed) == 0 {
		return nil, fmt.Errorf("%w: none of the documents could be parsed", domain.ErrNoDocuments)
	}
	r.parsed = parsed

	detection := s.detector.Detect(parsed)
	r.conflicts = detection.Conflicts
	rep.SetConflicts(detection.Conflicts)
	rep.Info("Conflicts detected: %d", len(detection.Conflicts))

	r.fingerprint, err = s.checksum.Fingerprint(ctx, r.documents, checksum.SHA256)
	if err != nil {
		return nil, err
	}

	return &Inspection{
		RunID:         r.id,
		Request:       r.req,
		Order:         order,
		Packages:      r.packages,
		Documents:     r.documents,
		Parsed:        r.parsed,
		Detection:     detection,
		Warnings:      scanned.Warnings,
		ExtractErrors: extracted.Errors,
		ParseErrors:   parseErrs,
		Fingerprint:   r.fingerprint,
		Report:        rep,
	}, nil
}

// debugProgress mirrors extraction events into the operator log
func debugProgress(runID string) progress.Reporter {
	log := logger.With("run", runID)
	return progress.NewCallbackReporter(func(u progress.Update) {
		if u.Type == progress.UpdateArchiveError {
			log.Warn("archive failed", "archive", u.Archive, "mod", u.ModID, "error", u.Error)
			return
		}
		log.Debug("extract", "event", u.Type, "item", u.Label(), "done", u.ArchivesCompleted, "total", u.ArchivesTotal)
	})
}

func (s *MergeService) pending(r *run, details []domain.ModDetail) *PendingRun {
	req := r.req
	req.Progress = nil
	return &PendingRun{
		Version:     PendingVersion,
		RunID:       r.id,
		CreatedAt:   s.now(),
		Request:     req,
		Packages:    r.packages,
		Documents:   r.documents,
		Fingerprint: r.fingerprint,
		Conflicts:   r.conflicts,
		ModDetails:  details,
		Report:      r.rep.Snapshot(),
	}
}

func (s *MergeService) resolve(ctx context.Context, r *run, order []string) Outcome {
	rep := r.rep

	if len(order) > 0 {
		if r.req.Strategy == domain.StrategyManual {
			if err := checkOrder(order, r.packages); err != nil {
				return s.fail(r, err)
			}
			rep.SetManualOrder(order)
			rep.Info("Used manual mod order: %s", strings.Join(order, ", "))
		} else {
			rep.Warn("Manual mod order ignored by the %s method", r.req.Strategy)
			order = nil
		}
	}

	res, err := s.merger.Merge(r.parsed, merge.Options{
		Strategy:             r.req.Strategy,
		ManualOrder:          order,
		CombineOnlyConflicts: r.req.CombineOnlyConflicts,
	})
	if err != nil {
		return s.fail(r, err)
	}
	rep.Info("Merged %d presets from %d preset groups", len(res.Presets), res.Groups)
	if res.Dropped > 0 {
		rep.Info("Dropped %d presets defined by a single mod", res.Dropped)
	}
	if len(res.Presets) == 0 {
		rep.Warn("No presets left to write")
	}

	if errors.Is(ctx.Err(), context.Canceled) {
		return s.cancel(r)
	}

	done, err := s.write(ctx, r, res)
	if err != nil {
		return s.fail(r, err)
	}
	s.record(r, state.StatusSuccess, res, done.Checksum, nil)
	return done
}

// write holds the output lock while the archive, descriptor, order file and
// run log are written.
func (s *MergeService) write(ctx context.Context, r *run, res *merge.Result) (*Completed, error) {
	rep := r.rep
	opts := s.cfg.AssembleOptions()

	fileLock, err := lock.NewFileLock(filepath.Join(r.req.Root, opts.OutputFolder))
	if err != nil {
		return nil, err
	}
	fileLock.SetStaleTimeout(s.cfg.Merge.LockStaleTimeout)
	if err := fileLock.Acquire("merge", r.id); err != nil {
		return nil, err
	}
	defer func() {
		if err := fileLock.Release(); err != nil {
			logger.Get().Warn("failed to release output lock", "path", fileLock.Path(), "error", err)
		}
	}()

	fs, err := local.New(r.req.Root)
	if err != nil {
		return nil, err
	}
	asm := assemble.New(fs, opts)

	out, err := asm.Write(ctx, res.Presets)
	if err != nil {
		return nil, err
	}
	rep.Info("Output written to %s", out.ArchivePath)
	if out.OrderBackup != "" {
		rep.Info("Backed up %s to %s", opts.OrderFile, out.OrderBackup)
	}
	if out.OrderUpdated {
		rep.Info("Added %s to %s", opts.Manifest.ModID, opts.OrderFile)
	}

	algo := s.cfg.ChecksumAlgorithm()
	sum, err := s.checksum.CalculateFile(ctx, out.ArchivePath, algo)
	if err != nil {
		rep.Warn("Could not checksum %s: %v", out.ArchivePath, err)
	} else {
		rep.Debug("Output %s: %s", algo, sum)
	}

	rep.Info("Used resolution method: %s", r.req.Strategy)
	rep.Info("Mods included in the combined output: %s", strings.Join(res.ContributingMods, ", "))
	rep.Info("Process completed successfully")
	rep.Finish()
	text := rep.String()

	logPath, err := asm.WriteLog(ctx, text)
	if err != nil {
		logger.Get().Warn("failed to save run log", "run", r.id, "error", err)
		logPath = ""
	}

	return &Completed{
		RunID:    r.id,
		Merge:    res,
		Output:   out,
		LogPath:  logPath,
		Checksum: sum,
		Log:      text,
		Summary:  rep.Markdown(),
	}, nil
}

func (s *MergeService) fail(r *run, err error) *Failed {
	r.rep.Error("%v", err)
	r.rep.Finish()
	s.record(r, state.StatusFailed, nil, "", err)
	return &Failed{RunID: r.id, Err: err, Log: r.rep.String(), Summary: r.rep.Markdown()}
}

func (s *MergeService) cancel(r *run) *Cancelled {
	r.rep.Warn(MsgCancelled)
	r.rep.Finish()
	s.record(r, state.StatusCancelled, nil, "", nil)
	return &Cancelled{RunID: r.id, Conflicts: r.conflicts, Log: r.rep.String(), Summary: r.rep.Markdown()}
}

func (s *MergeService) record(r *run, status string, res *merge.Result, sum string, runErr error) {
	if s.history == nil {
		return
	}

	rec := state.RunRecord{
		RunID:            r.id,
		Root:             r.req.Root,
		Strategy:         string(r.req.Strategy),
		Status:           status,
		Archives:         len(r.packages),
		Documents:        len(r.documents),
		Conflicts:        len(r.conflicts),
		InputFingerprint: r.fingerprint,
		OutputChecksum:   sum,
		StartTime:        r.rep.Snapshot().Started,
		EndTime:          s.now(),
	}
	if res != nil {
		rec.Presets = len(res.Presets)
		rec.ContributingMods = res.ContributingMods
	}
	if runErr != nil {
		rec.Error = runErr.Error()
	}

	if err := s.history.SaveRun(rec); err != nil {
		logger.Get().Warn("failed to record run history", "run", r.id, "error", err)
	}
}

// checkOrder rejects ids that were not scanned
func checkOrder(order []string, packages []domain.Package) error {
	known := make(map[string]bool, len(packages))
	for _, p := range packages {
		known[p.ModID] = true
	}
	var unknown []string
	for _, id := range order {
		if !known[id] {
			unknown = append(unknown, id)
		}
	}
	if len(unknown) > 0 {
		return fmt.Errorf("%w: %s", domain.ErrUnknownMod, strings.Join(unknown, ", "))
	}
	return nil
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}
