package pipeline

import (
	"context"
	"time"

	"sp1500_float/pkg/core/docstore"
	"sp1500_float/pkg/core/errs"
	"sp1500_float/pkg/core/ingest"
	"sp1500_float/pkg/core/prompt"
	"sp1500_float/pkg/core/summarizer"
	"sp1500_float/pkg/models"

	"golang.org/x/time/rate"
)

// Throttle paces every call to an external service through one limiter, so
// concurrent workers share a single request budget.
type Throttle struct {
	limiter *rate.Limiter
}

// NewThrottle allows one call per interval. A non-positive interval disables pacing.
func NewThrottle(interval time.Duration) *Throttle {
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	return &Throttle{limiter: rate.NewLimiter(limit, 1)}
}

// Wait blocks until the next call is allowed.
func (t *Throttle) Wait(ctx context.Context) error {
	return t.limiter.Wait(ctx)
}

// Lookup paces filing lookups.
func (t *Throttle) Lookup(l ingest.FilingLookup) ingest.FilingLookup {
	return &throttledLookup{t: t, next: l}
}

// Documents paces remote document fetches. Local paths, and URLs the store
// reports it already holds, are not paced.
func (t *Throttle) Documents(s docstore.Store) docstore.Store {
	return &throttledDocuments{t: t, next: s}
}

// localStore is implemented by stores that can tell whether a fetch will be
// served from disk.
type localStore interface {
	Has(location string) bool
}

// Summarizer paces summarizer calls. Cache hits never reach it.
func (t *Throttle) Summarizer(s summarizer.Summarizer) summarizer.Summarizer {
	return &throttledSummarizer{t: t, next: s}
}

type throttledLookup struct {
	t    *Throttle
	next ingest.FilingLookup
}

func (l *throttledLookup) Resolve(ctx context.Context, ticker string) (*ingest.Filing, error) {
	if err := l.t.Wait(ctx); err != nil {
		return nil, err
	}
	return l.next.Resolve(ctx, ticker)
}

type throttledDocuments struct {
	t    *Throttle
	next docstore.Store
}

func (d *throttledDocuments) Fetch(ctx context.Context, location string) (*models.Document, error) {
	if docstore.IsRemote(location) && !d.held(location) {
		if err := d.t.Wait(ctx); err != nil {
			return nil, errs.DocumentUnavailable(location, err)
		}
	}
	return d.next.Fetch(ctx, location)
}

func (d *throttledDocuments) held(location string) bool {
	ls, ok := d.next.(localStore)
	return ok && ls.Has(location)
}

type throttledSummarizer struct {
	t    *Throttle
	next summarizer.Summarizer
}

func (s *throttledSummarizer) Summarize(ctx context.Context, doc *models.Document, req prompt.Request, out any) error {
	if err := s.t.Wait(ctx); err != nil {
		return errs.Summarization(req.ID, err)
	}
	return s.next.Summarize(ctx, doc, req, out)
}
