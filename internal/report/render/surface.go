// Package render owns the rendered artifacts of report instances. Every
// target (an instance unique id) holds at most one artifact; re-rendering
// replaces it and a render overtaken by a newer one for the same target
// is thrown away.
package render

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/coocood/freecache"
	log "github.com/sirupsen/logrus"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/2beens/gymhrv/internal/report/analysis"
	"github.com/2beens/gymhrv/internal/telemetry/metrics"
	"github.com/2beens/gymhrv/internal/telemetry/tracing"
)

const (
	DefaultCacheSize = 32 * 1024 * 1024
	pageRenderLimit  = 4
)

var (
	ErrSuperseded    = errors.New("render superseded by a newer one")
	ErrNoArtifact    = errors.New("no artifact for target")
	ErrInvalidTarget = errors.New("invalid render target")
	ErrTargetRemoved = errors.New("render target removed")
)

//go:generate mockgen -source=$GOFILE -destination=renderer_mocks_test.go -package=render_test

type Renderer interface {
	Render(ctx context.Context, id analysis.KindID, mode analysis.Mode, in analysis.Input) (analysis.Artifact, error)
}

// Job is one render request for a target.
type Job struct {
	Target   string
	Kind     analysis.KindID
	Mode     analysis.Mode
	Input    analysis.Input
	Revision uint64
	// Placed reports whether the target still exists. Checked after the
	// artifact is stored; a removed target gets its artifact released.
	Placed func() bool
}

// Entry is a stored artifact and the dataset revision it was rendered from.
type Entry struct {
	Artifact   analysis.Artifact `json:"artifact"`
	Revision   uint64            `json:"revision"`
	RenderedAt time.Time         `json:"renderedAt"`
}

type Surface struct {
	renderer       Renderer
	cache          *freecache.Cache
	metricsManager *metrics.Manager

	mu sync.Mutex
	// latest generation issued per target
	generations map[string]uint64
	live        map[string]struct{}
	// artifacts too large for the cache (over 1/1024 of its size)
	oversized map[string][]byte
	seq       uint64
}

func NewSurface(renderer Renderer, cacheSizeBytes int, metricsManager *metrics.Manager) *Surface {
	if cacheSizeBytes <= 0 {
		cacheSizeBytes = DefaultCacheSize
	}
	return &Surface{
		renderer:       renderer,
		cache:          freecache.NewCache(cacheSizeBytes),
		metricsManager: metricsManager,
		generations:    make(map[string]uint64),
		live:           make(map[string]struct{}),
		oversized:      make(map[string][]byte),
	}
}

func (s *Surface) begin(target string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	s.generations[target] = s.seq
	return s.seq
}

// Render renders the job and stores the artifact for its target, releasing
// the one stored before. A failed render stores an inline error artifact
// and returns the error next to it. When a newer render for the same
// target started meanwhile, the result is dropped and ErrSuperseded
// returned.
func (s *Surface) Render(ctx context.Context, job Job) (_ analysis.Artifact, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "render.surface.render")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	if job.Target == "" {
		return analysis.Artifact{}, ErrInvalidTarget
	}

	gen := s.begin(job.Target)

	start := time.Now()
	artifact, renderErr := s.renderer.Render(ctx, job.Kind, job.Mode, job.Input)
	if s.metricsManager != nil {
		s.metricsManager.HistRenderDuration.WithLabelValues(string(job.Mode)).Observe(time.Since(start).Seconds())
	}
	if renderErr != nil {
		if s.metricsManager != nil {
			s.metricsManager.CounterRenderFailures.WithLabelValues(string(job.Kind)).Inc()
		}
		artifact = analysis.Artifact{
			Kind:  job.Kind,
			Mode:  job.Mode,
			Error: renderErr.Error(),
		}
	}

	if err := s.commit(job, gen, artifact); err != nil {
		return analysis.Artifact{}, err
	}
	if job.Placed != nil && !job.Placed() {
		log.Debugf("render %s (%s): target removed while rendering", job.Target, job.Kind)
		if err := s.Release(job.Target); err != nil {
			return analysis.Artifact{}, err
		}
		return analysis.Artifact{}, fmt.Errorf("%w: %s", ErrTargetRemoved, job.Target)
	}
	return artifact, renderErr
}

func (s *Surface) commit(job Job, gen uint64, artifact analysis.Artifact) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.generations[job.Target] != gen {
		log.Debugf("render %s (%s) superseded, dropping result", job.Target, job.Kind)
		return ErrSuperseded
	}

	value, err := json.Marshal(Entry{
		Artifact:   artifact,
		Revision:   job.Revision,
		RenderedAt: time.Now(),
	})
	if err != nil {
		return fmt.Errorf("marshal artifact: %w", err)
	}

	s.releaseLocked(job.Target)
	if err := s.cache.Set([]byte(job.Target), value, 0); err != nil {
		if !errors.Is(err, freecache.ErrLargeEntry) {
			return fmt.Errorf("store artifact %s: %w", job.Target, err)
		}
		s.oversized[job.Target] = value
	}
	s.live[job.Target] = struct{}{}
	s.updateGauge()
	return nil
}

func (s *Surface) releaseLocked(target string) bool {
	if _, ok := s.live[target]; !ok {
		return false
	}
	s.cache.Del([]byte(target))
	delete(s.oversized, target)
	delete(s.live, target)
	return true
}

func (s *Surface) updateGauge() {
	if s.metricsManager != nil {
		s.metricsManager.GaugeLiveArtifacts.Set(float64(len(s.live)))
	}
}

// Release frees the artifacts of the targets and drops their in-flight
// renders. Releasing a target without an artifact is a no-op.
func (s *Surface) Release(targets ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var err error
	for _, target := range targets {
		if target == "" {
			err = multierr.Append(err, ErrInvalidTarget)
			continue
		}
		delete(s.generations, target)
		s.releaseLocked(target)
	}
	s.updateGauge()
	return err
}

// ReleaseAll frees every artifact.
func (s *Surface) ReleaseAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cache.Clear()
	s.live = make(map[string]struct{})
	s.oversized = make(map[string][]byte)
	s.generations = make(map[string]uint64)
	s.updateGauge()
}

// Cached returns the stored entry of target. An artifact evicted by the
// cache counts as released.
func (s *Surface) Cached(target string) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.live[target]; !ok {
		return Entry{}, ErrNoArtifact
	}

	value, ok := s.oversized[target]
	if ok {
		return decodeEntry(target, value)
	}

	value, err := s.cache.Get([]byte(target))
	if err != nil {
		if errors.Is(err, freecache.ErrNotFound) {
			delete(s.live, target)
			s.updateGauge()
			return Entry{}, ErrNoArtifact
		}
		return Entry{}, err
	}

	return decodeEntry(target, value)
}

func decodeEntry(target string, value []byte) (Entry, error) {
	var entry Entry
	if err := json.Unmarshal(value, &entry); err != nil {
		return Entry{}, fmt.Errorf("unmarshal artifact %s: %w", target, err)
	}
	return entry, nil
}

// Artifact returns the last artifact rendered for target.
func (s *Surface) Artifact(target string) (analysis.Artifact, error) {
	entry, err := s.Cached(target)
	if err != nil {
		return analysis.Artifact{}, err
	}
	return entry.Artifact, nil
}

// Live is the number of targets currently holding an artifact.
func (s *Surface) Live() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.live)
}

// RenderPage renders all jobs concurrently. A job that fails yields an
// inline error artifact in its slot and never affects its siblings.
func (s *Surface) RenderPage(ctx context.Context, jobs []Job) []analysis.Artifact {
	ctx, span := tracing.GlobalTracer.Start(ctx, "render.surface.page")
	defer span.End()

	results := make([]analysis.Artifact, len(jobs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(pageRenderLimit)

	for i, job := range jobs {
		g.Go(func() error {
			artifact, err := s.Render(gctx, job)
			switch {
			case errors.Is(err, ErrSuperseded):
				// a newer render of the same target already owns the slot
				if latest, cachedErr := s.Artifact(job.Target); cachedErr == nil {
					artifact = latest
				} else {
					artifact = analysis.Artifact{Kind: job.Kind, Mode: job.Mode, Error: err.Error()}
				}
			case err != nil:
				log.Warnf("render %s (%s/%s): %s", job.Target, job.Kind, job.Mode, err)
				if artifact.Error == "" {
					artifact = analysis.Artifact{Kind: job.Kind, Mode: job.Mode, Error: err.Error()}
				}
			}
			results[i] = artifact
			return nil
		})
	}

	// goroutines never return errors, failures are kept per slot
	_ = g.Wait()
	return results
}
