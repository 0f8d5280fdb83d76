// Package ownership extracts the strategic-holder breakdown from a proxy
// statement and normalizes it onto the fixed category set.
package ownership

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"sp1500_float/pkg/core/cache"
	"sp1500_float/pkg/core/errs"
	"sp1500_float/pkg/core/prompt"
	"sp1500_float/pkg/core/summarizer"
	"sp1500_float/pkg/logging"
	"sp1500_float/pkg/models"

	"github.com/phuslu/log"
)

// CacheKind labels ownership entries in the extraction cache.
const CacheKind = "ownership"

// ShareCount decodes share counts written as numbers or as strings such as
// "3,364,457".
type ShareCount int64

func (s *ShareCount) UnmarshalJSON(b []byte) error {
	str := strings.TrimSpace(string(b))
	if str == "null" {
		return nil
	}
	str = strings.NewReplacer(`"`, "", ",", "", "_", "", " ", "").Replace(str)
	if str == "" {
		*s = 0
		return nil
	}
	if n, err := strconv.ParseInt(str, 10, 64); err == nil {
		*s = ShareCount(n)
		return nil
	}
	f, err := strconv.ParseFloat(str, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return fmt.Errorf("invalid share count %s", b)
	}
	*s = ShareCount(math.Round(f))
	return nil
}

// LabeledShares is one holder row as the summarizer reported it.
type LabeledShares struct {
	Label  string     `json:"label"`
	Shares ShareCount `json:"shares"`
}

// Breakdown is the raw ownership.breakdown response. It is what gets cached;
// label mapping runs on every read so synonym edits apply without a refresh.
type Breakdown struct {
	TotalSharesOutstanding ShareCount      `json:"total_shares_outstanding"`
	FilingDate             string          `json:"filing_date,omitempty"`
	Categories             []LabeledShares `json:"categories"`
}

func (b Breakdown) validate() error {
	if b.TotalSharesOutstanding < 0 {
		return fmt.Errorf("negative total shares outstanding %d", b.TotalSharesOutstanding)
	}
	for _, row := range b.Categories {
		if row.Shares < 0 {
			return fmt.Errorf("negative share count %d for %q", row.Shares, row.Label)
		}
	}
	return nil
}

// Extractor turns a proxy document into a normalized OwnershipRecord.
type Extractor struct {
	summarizer summarizer.Summarizer
	prompts    *prompt.Registry
	cache      *cache.ExtractionCache
	synonyms   *Synonyms
	logger     *log.Logger
}

// Option configures an Extractor.
type Option func(*Extractor)

func WithCache(c *cache.ExtractionCache) Option { return func(e *Extractor) { e.cache = c } }

func WithSynonyms(s *Synonyms) Option { return func(e *Extractor) { e.synonyms = s } }

func WithLogger(l *log.Logger) Option { return func(e *Extractor) { e.logger = l } }

// NewExtractor builds an extractor. Without WithCache results are cached in
// memory only.
func NewExtractor(s summarizer.Summarizer, prompts *prompt.Registry, opts ...Option) *Extractor {
	e := &Extractor{summarizer: s, prompts: prompts}
	for _, o := range opts {
		o(e)
	}
	if e.cache == nil {
		e.cache = cache.New()
	}
	if e.synonyms == nil {
		e.synonyms = DefaultSynonyms()
	}
	e.logger = logging.OrNop(e.logger)
	return e
}

// Extract summarizes the beneficial ownership section of doc.
func (e *Extractor) Extract(ctx context.Context, doc *models.Document) (models.OwnershipRecord, error) {
	if doc == nil {
		return models.OwnershipRecord{}, errs.InvalidInput("no proxy document")
	}
	req, err := e.prompts.Build(prompt.OwnershipBreakdown, map[string]any{
		"Categories": CategoryLabels(),
		"ODLabel":    models.CategoryOD.Label(),
	})
	if err != nil {
		return models.OwnershipRecord{}, errs.Summarization(prompt.OwnershipBreakdown, err)
	}

	key := cache.Key(CacheKind, doc.ID, req.ID, req.Version, req.SchemaVersion)
	b, hit, err := cache.GetOrCompute(ctx, e.cache, CacheKind, key, func(ctx context.Context) (Breakdown, error) {
		var b Breakdown
		if err := e.summarizer.Summarize(ctx, doc, req, &b); err != nil {
			return Breakdown{}, err
		}
		if err := b.validate(); err != nil {
			return Breakdown{}, errs.Summarization(req.ID, err)
		}
		return b, nil
	})
	if err != nil {
		return models.OwnershipRecord{}, err
	}

	rec := Normalize(doc.ID, b, e.synonyms)
	for _, w := range rec.Warnings {
		ev := e.logger.Info()
		if w.Code == models.WarnCategoryMapping {
			ev = e.logger.Warn()
		}
		ev.Str("document", doc.ID).Str("code", string(w.Code)).Msg(w.Message)
	}
	e.logger.Info().
		Str("document", doc.ID).
		Bool("cache_hit", hit).
		Int64("total_shares", rec.TotalSharesOutstanding).
		Int("warnings", len(rec.Warnings)).
		Msg("ownership extracted")
	return rec, nil
}

// Normalize maps a raw breakdown onto the fixed categories. Unknown labels
// are dropped with W100, repeated labels are summed, and categories the
// breakdown never mentions are zero-filled with W101.
func Normalize(docID string, b Breakdown, syn *Synonyms) models.OwnershipRecord {
	shares := make(map[models.CategoryName]int64, models.NumCategories)
	seen := make(map[models.CategoryName]bool, models.NumCategories)
	var warnings []models.Warning

	for _, row := range b.Categories {
		c, ok := syn.Match(row.Label)
		if !ok {
			warnings = append(warnings, models.Warning{
				Code:    models.WarnCategoryMapping,
				Message: fmt.Sprintf("unmapped holder label %q (%d shares) dropped", row.Label, row.Shares),
			})
			continue
		}
		shares[c] += int64(row.Shares)
		seen[c] = true
	}
	for _, c := range models.AllCategories {
		if !seen[c] {
			warnings = append(warnings, models.Warning{
				Code:    models.WarnMissingCategory,
				Message: fmt.Sprintf("no holdings reported for %s, using 0", c.Label()),
			})
		}
	}

	rec := models.NewOwnershipRecord(docID, int64(b.TotalSharesOutstanding), shares)
	rec.FilingDate = parseFilingDate(b.FilingDate)
	rec.Warnings = warnings
	return rec
}

var filingDateLayouts = []string{"2006-01-02", "January 2, 2006", "Jan 2, 2006", "01/02/2006"}

func parseFilingDate(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range filingDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}
