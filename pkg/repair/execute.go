package repair

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/fulmenhq/draftfix/pkg/bundle"
	"github.com/fulmenhq/draftfix/pkg/diagnose"
	"github.com/fulmenhq/draftfix/pkg/fetch"
	"github.com/fulmenhq/draftfix/pkg/logger"
	"github.com/fulmenhq/draftfix/pkg/placeholder"
	"github.com/fulmenhq/draftfix/pkg/platform"
	"github.com/fulmenhq/draftfix/pkg/safeio"
)

// DefaultConcurrency bounds parallel fetches when Options.Concurrency is unset.
const DefaultConcurrency = 4

// ErrNoFetcher fails fetch actions when no Fetcher is configured.
var ErrNoFetcher = errors.New("no asset fetcher configured")

// ErrNoGenerator fails placeholder actions when no generator is configured.
var ErrNoGenerator = errors.New("no placeholder generator configured")

// Observer is notified after each action finishes.
type Observer interface {
	ActionFinished(kind ActionKind, outcome Outcome, elapsed time.Duration)
}

// Options configures an Executor.
type Options struct {
	Target      platform.Family
	Fetcher     fetch.Fetcher
	Placeholder placeholder.Generator
	// Concurrency bounds parallel fetch-and-bind actions.
	Concurrency int
	// FetchTimeout applies to each fetch separately; 0 means none.
	FetchTimeout time.Duration
	// Identities generates the run's platform identity.
	Identities platform.Generator
	Now        func() time.Time
	// NewID overrides skeleton document ids.
	NewID    func() string
	Logger   *logger.Logger
	Observer Observer
}

// Executor applies actions to a bundle.
type Executor struct {
	opts Options
}

// NewExecutor creates an Executor
func NewExecutor(opts Options) *Executor {
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = logger.Default()
	}
	return &Executor{opts: opts}
}

// run is the per-bundle state of one Execute call.
type run struct {
	e  *Executor
	b  *bundle.Bundle
	mu sync.Mutex

	identity    platform.Identity
	hasIdentity bool
}

// Repair plans findings under policy, executes the plan and reports every
// finding that remains a defect, including those with no planned action.
func (e *Executor) Repair(ctx context.Context, b *bundle.Bundle, findings []diagnose.Finding, policy Policy) (*Report, error) {
	actions := Plan(findings, policy)
	report, err := e.Execute(ctx, b, actions)
	if report != nil {
		report.Unresolved = append(report.Unresolved, Unplanned(findings, actions)...)
	}
	return report, err
}

// Execute runs actions in order. Action failures are recorded on the action
// and do not stop the run. Changed manifests are saved at the end; a save
// failure is returned as a *bundle.WriteError. Cancellation of ctx aborts
// the run with ctx's error.
func (e *Executor) Execute(ctx context.Context, b *bundle.Bundle, actions []Action) (*Report, error) {
	r := &run{e: e, b: b}
	report := &Report{Actions: append([]Action(nil), actions...)}

	var fetches []int
	for i := range report.Actions {
		a := &report.Actions[i]
		if a.Kind == FetchAndBindAsset {
			fetches = append(fetches, i)
			continue
		}
		if err := ctx.Err(); err != nil {
			report.tally()
			return report, err
		}
		r.finish(a, time.Now(), r.apply(a))
	}

	if err := r.fetchAll(ctx, report.Actions, fetches); err != nil {
		report.tally()
		return report, err
	}

	report.tally()
	if err := b.Save(); err != nil {
		return report, err
	}
	return report, nil
}

func (r *run) finish(a *Action, start time.Time, err error) {
	switch {
	case errors.Is(err, errSkip):
		a.Outcome = Skipped
	case err != nil:
		a.Outcome = Failed
		a.Error = err.Error()
	default:
		a.Outcome = Applied
	}
	log := r.e.opts.Logger
	if a.Outcome == Failed {
		log.Warn("action failed", logger.String("action", string(a.Kind)), logger.String("target", a.Target), logger.String("error", a.Error))
	} else {
		log.Debug("action finished", logger.String("action", string(a.Kind)), logger.String("target", a.Target), logger.String("outcome", string(a.Outcome)))
	}
	if obs := r.e.opts.Observer; obs != nil {
		obs.ActionFinished(a.Kind, a.Outcome, time.Since(start))
	}
}

// errSkip marks an action with nothing left to do.
var errSkip = errors.New("nothing to do")

func (r *run) apply(a *Action) error {
	switch a.Kind {
	case CreateFile:
		if a.Finding.Kind == diagnose.MissingAssetDir {
			return r.createAssetDir(a.Finding.AssetKind)
		}
		return r.createManifest(a.Finding)
	case RegeneratePlatformBlock:
		return r.regenerate(a.Finding.Manifest)
	case RewritePath:
		return r.rewritePath(a.Finding.Material)
	}
	return fmt.Errorf("unsupported action %q", a.Kind)
}

// runIdentity returns the single identity used for every block created or
// regenerated in this run. It shares no identifier with any existing block.
func (r *run) runIdentity() (platform.Identity, error) {
	if r.hasIdentity {
		return r.identity, nil
	}
	var avoid []string
	for _, role := range bundle.DraftRoles() {
		if d := r.b.Draft(role); d != nil {
			for _, p := range d.Platforms() {
				avoid = append(avoid, p.Identifiers()...)
			}
		}
	}
	if r.b.Meta != nil {
		for _, p := range r.b.Meta.Platforms() {
			avoid = append(avoid, p.Identifiers()...)
		}
	}
	id, err := r.e.opts.Identities.NewIdentity(avoid...)
	if err != nil {
		return platform.Identity{}, err
	}
	r.identity, r.hasIdentity = id, true
	return id, nil
}

func (r *run) createAssetDir(kind bundle.Kind) error {
	if r.b.HasAssetDir(kind) {
		return errSkip
	}
	if err := os.MkdirAll(r.b.AssetDirPath(kind), 0o755); err != nil {
		return &bundle.WriteError{Path: r.b.AssetDirPath(kind), Wrapped: err}
	}
	return nil
}

func (r *run) createManifest(f diagnose.Finding) error {
	role := f.Manifest
	if f.Unparseable {
		if err := r.b.PreserveCorrupt(role); err != nil {
			return fmt.Errorf("preserve unparseable %s: %w", role.FileName(), err)
		}
	}
	id, err := r.runIdentity()
	if err != nil {
		return err
	}
	opts := bundle.SkeletonOptions{
		BundleID: r.b.ID,
		Target:   r.e.opts.Target,
		Identity: id,
		Now:      r.e.opts.Now(),
		NewID:    r.e.opts.NewID,
	}
	switch role {
	case bundle.RoleMeta:
		m, err := bundle.NewMetaSkeleton(opts)
		if err != nil {
			return err
		}
		r.b.Meta = m
	case bundle.RoleContent, bundle.RoleInfo:
		d, err := bundle.NewDraftSkeleton(opts)
		if err != nil {
			return err
		}
		r.b.SetDraft(role, d)
	default:
		return fmt.Errorf("unknown manifest role %q", role)
	}
	delete(r.b.ParseErrors, role)
	r.b.MarkDirty(role)
	return nil
}

func (r *run) regenerate(role bundle.Role) error {
	id, err := r.runIdentity()
	if err != nil {
		return err
	}
	changed := false
	switch role {
	case bundle.RoleMeta:
		if r.b.Meta != nil {
			changed = r.b.Meta.RegeneratePlatform(r.e.opts.Target, id)
		}
	default:
		if d := r.b.Draft(role); d != nil {
			changed = d.RegeneratePlatform(r.e.opts.Target, id)
		}
	}
	if !changed {
		return errSkip
	}
	r.b.MarkDirty(role)
	return nil
}

// material looks up the referenced entry, checking it is still the same one.
func (r *run) material(ref *diagnose.MaterialRef) (*bundle.Material, error) {
	if ref == nil {
		return nil, errors.New("finding has no material")
	}
	d := r.b.Draft(ref.Manifest)
	if d == nil {
		return nil, fmt.Errorf("%s manifest is not loaded", ref.Manifest)
	}
	list := d.MaterialsOf(ref.Kind)
	if ref.Index < 0 || ref.Index >= len(list) || list[ref.Index] == nil || list[ref.Index].ID != ref.ID {
		return nil, fmt.Errorf("%s no longer matches the manifest", ref)
	}
	return list[ref.Index], nil
}

func (r *run) rewritePath(ref *diagnose.MaterialRef) error {
	m, err := r.material(ref)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	target := ref.AssetPath()
	if m.Path == target {
		return errSkip
	}
	m.SetPath(target)
	r.b.MarkDirty(ref.Manifest)
	return nil
}

func (r *run) fetchAll(ctx context.Context, actions []Action, idx []int) error {
	if len(idx) == 0 {
		return nil
	}
	var g errgroup.Group
	g.SetLimit(r.e.opts.Concurrency)
	for _, i := range idx {
		a := &actions[i]
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			start := time.Now()
			err := r.fetchAndBind(ctx, a)
			if ctx.Err() != nil {
				return ctx.Err()
			}
			r.finish(a, start, err)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

func (r *run) fetchAndBind(ctx context.Context, a *Action) error {
	ref := a.Finding.Material
	if ref == nil {
		return errors.New("finding has no material")
	}
	if err := os.MkdirAll(r.b.AssetDirPath(ref.Kind), 0o755); err != nil {
		return &bundle.WriteError{Path: r.b.AssetDirPath(ref.Kind), Wrapped: err}
	}
	rel := ref.AssetPath()
	dest, err := safeio.JoinContained(r.b.Dir, rel)
	if err != nil {
		return err
	}

	fctx := ctx
	if t := r.e.opts.FetchTimeout; t > 0 {
		var cancel context.CancelFunc
		fctx, cancel = context.WithTimeout(ctx, t)
		defer cancel()
	}
	switch {
	case a.Placeholder:
		if r.e.opts.Placeholder == nil {
			return ErrNoGenerator
		}
		err = r.e.opts.Placeholder.Generate(fctx, ref.Kind, dest)
	case r.e.opts.Fetcher == nil:
		return ErrNoFetcher
	default:
		err = r.e.opts.Fetcher.Fetch(fctx, ref.RemoteURL, dest)
	}
	if err != nil {
		if errors.Is(fctx.Err(), context.DeadlineExceeded) && ctx.Err() == nil && !fetch.IsFetchError(err) {
			err = &fetch.FetchError{Locator: ref.RemoteURL, Timeout: true, Wrapped: err}
		}
		return err
	}
	r.bind(ref.Kind, ref.Name, rel)
	return nil
}

// bind points every content and info reference to the asset at rel. It is the
// only place fetches mutate manifests.
func (r *run) bind(kind bundle.Kind, name, rel string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, role := range bundle.DraftRoles() {
		d := r.b.Draft(role)
		if d == nil {
			continue
		}
		changed := false
		for _, m := range d.MaterialsOf(kind) {
			if m != nil && diagnose.AssetName(m) == name && m.Path != rel {
				m.SetPath(rel)
				changed = true
			}
		}
		if changed {
			r.b.MarkDirty(role)
		}
	}
}
