package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/fulmenhq/draftfix/pkg/archive"
	"github.com/fulmenhq/draftfix/pkg/bundle"
	"github.com/fulmenhq/draftfix/pkg/diagnose"
	"github.com/fulmenhq/draftfix/pkg/logger"
	"github.com/fulmenhq/draftfix/pkg/platform"
	"github.com/fulmenhq/draftfix/pkg/repair"
	"github.com/fulmenhq/draftfix/pkg/source"
)

// Status summarizes a run.
type Status string

const (
	StatusRepaired Status = "repaired"
	StatusPartial  Status = "partial"
	StatusFailed   Status = "failed"
)

// Request describes one bundle to process. Zero fields take the engine's
// configured values.
type Request struct {
	Source     string
	Target     platform.Family
	Policy     repair.Policy
	FallbackID string
	// KeepUnpacked additionally keeps the repaired tree at <OutputDir>/<id>.
	KeepUnpacked bool
	OutputDir    string
}

// Result is the outcome of one run.
type Result struct {
	Source       string             `json:"source" yaml:"source"`
	Status       Status             `json:"status" yaml:"status"`
	Success      bool               `json:"success" yaml:"success"`
	BundleID     string             `json:"bundle_id,omitempty" yaml:"bundle_id,omitempty"`
	Target       platform.Family    `json:"target" yaml:"target"`
	Policy       repair.Policy      `json:"policy" yaml:"policy"`
	OutputPath   string             `json:"output_path,omitempty" yaml:"output_path,omitempty"`
	UnpackedPath string             `json:"unpacked_path,omitempty" yaml:"unpacked_path,omitempty"`
	Findings     []diagnose.Finding `json:"findings" yaml:"findings"`
	Actions      []repair.Action    `json:"actions" yaml:"actions"`
	Unresolved   []diagnose.Finding `json:"unresolved" yaml:"unresolved"`
	Error        string             `json:"error,omitempty" yaml:"error,omitempty"`
	Duration     time.Duration      `json:"duration" yaml:"duration"`
}

// Run processes one bundle. Fatal errors produce no artifact; the returned
// Result then has StatusFailed and the error is returned alongside it. The
// working directory is always removed.
func (e *Engine) Run(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	req = e.defaults(req)
	res := &Result{Source: req.Source, Target: req.Target, Policy: req.Policy, Status: StatusFailed}
	log := e.log.With(logger.String("source", req.Source))

	err := e.run(ctx, req, res, log)
	res.Duration = time.Since(start)
	if err != nil {
		res.Status, res.Success = StatusFailed, false
		res.Error = err.Error()
		log.Error("run failed", logger.Err(err), logger.String("kind", bundle.ErrorKind(err)))
	} else {
		log.Info("run finished",
			logger.String("status", string(res.Status)),
			logger.Int("findings", len(res.Findings)),
			logger.Int("unresolved", len(res.Unresolved)),
			logger.Duration("duration", res.Duration))
	}
	e.observer.RunFinished(string(res.Status), res.Duration)
	return res, err
}

func (e *Engine) defaults(req Request) Request {
	if req.Target == "" {
		req.Target = platform.Family(e.cfg.Target)
	}
	if req.Policy == "" {
		req.Policy = repair.Policy(e.cfg.Policy)
	}
	if req.OutputDir == "" {
		req.OutputDir = e.cfg.Output.Dir
	}
	req.KeepUnpacked = req.KeepUnpacked || e.cfg.Output.KeepUnpacked
	return req
}

func (e *Engine) run(ctx context.Context, req Request, res *Result, log *logger.Logger) error {
	target, err := platform.ParseFamily(string(req.Target))
	if err != nil {
		return err
	}
	res.Target = target
	policy, err := repair.ParsePolicy(string(req.Policy))
	if err != nil {
		return err
	}
	res.Policy = policy

	resolved, err := source.Resolve(ctx, req.Source, e.sources, e.cfg.WorkDir)
	if err != nil {
		return err
	}
	defer func() {
		if err := resolved.Cleanup(); err != nil {
			log.Warn("remove downloaded source", logger.Err(err))
		}
	}()

	fallback := req.FallbackID
	if fallback == "" {
		fallback = source.FallbackID(req.Source)
	}
	b, err := archive.Unpack(ctx, resolved.Path, archive.UnpackOptions{
		WorkDir:    e.cfg.WorkDir,
		FallbackID: fallback,
		Exclude:    e.cfg.Archive.Exclude,
		Validator:  e.validator,
		Now:        e.now,
	})
	if err != nil {
		var af *archive.ArchiveFormatError
		if errors.As(err, &af) {
			if html, sniffErr := archive.SniffHTML(resolved.Path); sniffErr == nil {
				af.LooksLikeHTML = html
			}
		}
		return err
	}
	defer func() {
		if err := b.Cleanup(); err != nil {
			log.Warn("remove working dir", logger.Err(err))
		}
	}()
	res.BundleID = b.ID
	log = log.With(logger.String("bundle", b.ID))
	log.Debug("unpacked", logger.String("dir", b.Dir))

	findings := diagnose.Diagnose(ctx, b, diagnose.Options{Target: target, Placeholders: e.placeholder != nil})
	if err := ctx.Err(); err != nil {
		return err
	}
	res.Findings = findings
	for _, f := range findings {
		e.observer.FindingObserved(f.Kind)
		log.Debug("finding", logger.String("kind", string(f.Kind)), logger.String("detail", f.Detail))
	}

	exec := repair.NewExecutor(repair.Options{
		Target:       target,
		Fetcher:      e.assets,
		Placeholder:  e.placeholder,
		Concurrency:  e.cfg.Concurrency,
		FetchTimeout: e.cfg.Fetch.Timeout,
		Identities:   e.identities,
		Now:          e.now,
		Logger:       log,
		Observer:     e.observer,
	})
	report, err := exec.Repair(ctx, b, findings, policy)
	if report != nil {
		res.Actions = report.Actions
		res.Unresolved = report.Unresolved
	}
	if err != nil {
		return err
	}

	if len(res.Unresolved) == 0 {
		res.Status = StatusRepaired
	} else {
		res.Status = StatusPartial
	}
	res.Success = res.Status == StatusRepaired

	if policy == repair.PolicyDiagnose {
		return nil
	}

	if err := os.MkdirAll(req.OutputDir, 0o755); err != nil {
		return &bundle.WriteError{Path: req.OutputDir, Wrapped: err}
	}
	out, err := archive.Pack(ctx, b, filepath.Join(req.OutputDir, b.ID+e.cfg.Output.Suffix+".zip"), archive.PackOptions{
		Exclude: e.cfg.Archive.Exclude,
	})
	if err != nil {
		return err
	}
	res.OutputPath = out

	if req.KeepUnpacked {
		dest, err := keepTree(b, req.OutputDir)
		if err != nil {
			// A failed run leaves no artifact behind.
			if rmErr := os.Remove(out); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
				log.Warn("remove output archive", logger.String("path", out), logger.Err(rmErr))
			}
			res.OutputPath = ""
			return err
		}
		res.UnpackedPath = dest
	}
	return nil
}

// keepTree is swapped in tests to exercise a failing keep step.
var keepTree = keepUnpacked

// keepUnpacked moves the bundle tree to <outDir>/<id>, replacing an older copy.
func keepUnpacked(b *bundle.Bundle, outDir string) (string, error) {
	dest := filepath.Join(outDir, b.ID)
	if err := os.RemoveAll(dest); err != nil {
		return "", &bundle.WriteError{Path: dest, Wrapped: err}
	}
	if err := os.Rename(b.Dir, dest); err == nil {
		return dest, nil
	}
	// Rename fails across filesystems.
	if err := os.CopyFS(dest, os.DirFS(b.Dir)); err != nil {
		_ = os.RemoveAll(dest)
		return "", &bundle.WriteError{Path: dest, Wrapped: fmt.Errorf("copy unpacked bundle: %w", err)}
	}
	return dest, nil
}

// Item pairs a batch request with its result.
type Item struct {
	Request Request
	Result  *Result
	Err     error
}

// RunBatch runs reqs with at most jobs in parallel. One failure does not stop
// the others; items are returned in request order.
func (e *Engine) RunBatch(ctx context.Context, reqs []Request, jobs int) []Item {
	if jobs <= 0 {
		jobs = e.cfg.Jobs
	}
	items := make([]Item, len(reqs))
	var g errgroup.Group
	g.SetLimit(jobs)
	for i, req := range reqs {
		g.Go(func() error {
			res, err := e.Run(ctx, req)
			items[i] = Item{Request: req, Result: res, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return items
}
