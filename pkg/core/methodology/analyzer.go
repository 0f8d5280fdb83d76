// Package methodology derives the float adjustment rules from the S&P
// methodology document: the category definitions and the D+O threshold.
package methodology

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"sp1500_float/pkg/core/cache"
	"sp1500_float/pkg/core/errs"
	"sp1500_float/pkg/core/ownership"
	"sp1500_float/pkg/core/prompt"
	"sp1500_float/pkg/core/summarizer"
	"sp1500_float/pkg/logging"
	"sp1500_float/pkg/models"

	"github.com/phuslu/log"
)

// Cache kinds for methodology entries.
const (
	CacheKindSummary = "methodology"
	CacheKindDORule  = "methodology_dno"
)

// DefaultThresholdPct is used when the document states no D+O threshold.
const DefaultThresholdPct = 5.0

// Percent decodes a percentage given as a number or a string like "5%".
// Anything unreadable decodes as not stated.
type Percent struct {
	Value float64
	Valid bool
}

func (p Percent) MarshalJSON() ([]byte, error) {
	if !p.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(p.Value)
}

func (p *Percent) UnmarshalJSON(b []byte) error {
	*p = Percent{}
	s := strings.TrimSpace(string(b))
	if s == "null" {
		return nil
	}
	s = strings.TrimSpace(strings.Trim(s, `"`))
	s = strings.TrimSpace(strings.TrimSuffix(s, "%"))
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	*p = Percent{Value: v, Valid: true}
	return nil
}

// DORule is the raw methodology.dno_rule response.
type DORule struct {
	ThresholdPct Percent `json:"threshold_pct"`
	RuleText     string  `json:"rule_text"`
}

// CategoryDefinition is one definition as the summarizer labelled it.
type CategoryDefinition struct {
	Category   string `json:"category"`
	Definition string `json:"definition"`
}

// Summary is the raw methodology.summary response.
type Summary struct {
	Summary             string               `json:"summary"`
	CategoryDefinitions []CategoryDefinition `json:"category_definitions"`
}

// Analyzer extracts MethodologyRules from a methodology document.
type Analyzer struct {
	summarizer       summarizer.Summarizer
	prompts          *prompt.Registry
	cache            *cache.ExtractionCache
	synonyms         *ownership.Synonyms
	defaultThreshold float64
	logger           *log.Logger
}

// Option configures an Analyzer.
type Option func(*Analyzer)

func WithCache(c *cache.ExtractionCache) Option { return func(a *Analyzer) { a.cache = c } }

func WithSynonyms(s *ownership.Synonyms) Option { return func(a *Analyzer) { a.synonyms = s } }

func WithLogger(l *log.Logger) Option { return func(a *Analyzer) { a.logger = l } }

// WithDefaultThreshold overrides the fallback threshold. Values outside
// (0, 100] are ignored.
func WithDefaultThreshold(pct float64) Option {
	return func(a *Analyzer) {
		if validThreshold(pct) {
			a.defaultThreshold = pct
		}
	}
}

func NewAnalyzer(s summarizer.Summarizer, prompts *prompt.Registry, opts ...Option) *Analyzer {
	a := &Analyzer{summarizer: s, prompts: prompts, defaultThreshold: DefaultThresholdPct}
	for _, o := range opts {
		o(a)
	}
	if a.cache == nil {
		a.cache = cache.New()
	}
	if a.synonyms == nil {
		a.synonyms = ownership.DefaultSynonyms()
	}
	a.logger = logging.OrNop(a.logger)
	return a
}

// Analyze summarizes the methodology and resolves the D+O threshold.
func (a *Analyzer) Analyze(ctx context.Context, doc *models.Document) (models.MethodologyRules, error) {
	if doc == nil {
		return models.MethodologyRules{}, errs.InvalidInput("no methodology document")
	}
	req, err := a.prompts.Build(prompt.MethodologySummary, map[string]any{
		"Categories": ownership.CategoryLabels(),
	})
	if err != nil {
		return models.MethodologyRules{}, errs.Summarization(prompt.MethodologySummary, err)
	}
	summary, _, err := extract[Summary](ctx, a, CacheKindSummary, doc, req)
	if err != nil {
		return models.MethodologyRules{}, err
	}

	defs, warnings := a.mapDefinitions(summary.CategoryDefinitions)

	rule, err := a.rule(ctx, doc)
	if err != nil {
		return models.MethodologyRules{}, err
	}
	threshold, thresholdWarnings := a.resolveThreshold(doc.ID, rule)
	warnings = append(warnings, thresholdWarnings...)

	rules, err := models.NewMethodologyRules(doc.ID, threshold, defs)
	if err != nil {
		return models.MethodologyRules{}, errs.InvalidInput("%v", err)
	}
	rules.ThresholdDefaulted = len(thresholdWarnings) > 0
	rules.RuleText = rule.RuleText
	rules.Warnings = warnings

	a.logger.Info().
		Str("document", doc.ID).
		Float64("dno_threshold_pct", rules.DOThresholdPct).
		Bool("threshold_defaulted", rules.ThresholdDefaulted).
		Int("definitions", len(defs)).
		Msg("methodology analyzed")
	return rules, nil
}

// GetDORule returns the D+O threshold in percent. When the document states
// none, or states one outside (0, 100], the configured fallback is returned
// with a W200 warning.
func (a *Analyzer) GetDORule(ctx context.Context, doc *models.Document) (float64, []models.Warning, error) {
	if doc == nil {
		return 0, nil, errs.InvalidInput("no methodology document")
	}
	rule, err := a.rule(ctx, doc)
	if err != nil {
		return 0, nil, err
	}
	threshold, warnings := a.resolveThreshold(doc.ID, rule)
	return threshold, warnings, nil
}

func (a *Analyzer) rule(ctx context.Context, doc *models.Document) (DORule, error) {
	req, err := a.prompts.Build(prompt.MethodologyDORule, nil)
	if err != nil {
		return DORule{}, errs.Summarization(prompt.MethodologyDORule, err)
	}
	rule, _, err := extract[DORule](ctx, a, CacheKindDORule, doc, req)
	return rule, err
}

func (a *Analyzer) resolveThreshold(docID string, rule DORule) (float64, []models.Warning) {
	if rule.ThresholdPct.Valid && validThreshold(rule.ThresholdPct.Value) {
		return rule.ThresholdPct.Value, nil
	}
	msg := fmt.Sprintf("no usable D+O threshold in methodology, using fallback %.2f%%", a.defaultThreshold)
	if rule.ThresholdPct.Valid {
		msg = fmt.Sprintf("D+O threshold %v%% outside (0, 100], using fallback %.2f%%", rule.ThresholdPct.Value, a.defaultThreshold)
	}
	a.logger.Warn().Str("document", docID).Str("code", string(models.WarnMissingThreshold)).Msg(msg)
	return a.defaultThreshold, []models.Warning{{Code: models.WarnMissingThreshold, Message: msg}}
}

func (a *Analyzer) mapDefinitions(raw []CategoryDefinition) (map[models.CategoryName]string, []models.Warning) {
	defs := make(map[models.CategoryName]string, len(raw))
	var warnings []models.Warning
	for _, d := range raw {
		text := strings.TrimSpace(d.Definition)
		if text == "" {
			continue
		}
		c, ok := a.synonyms.Match(d.Category)
		if !ok {
			msg := fmt.Sprintf("unmapped methodology category %q dropped", d.Category)
			a.logger.Warn().Str("code", string(models.WarnCategoryMapping)).Msg(msg)
			warnings = append(warnings, models.Warning{Code: models.WarnCategoryMapping, Message: msg})
			continue
		}
		if _, dup := defs[c]; !dup {
			defs[c] = text
		}
	}
	return defs, warnings
}

func extract[T any](ctx context.Context, a *Analyzer, kind string, doc *models.Document, req prompt.Request) (T, bool, error) {
	key := cache.Key(kind, doc.ID, req.ID, req.Version, req.SchemaVersion)
	return cache.GetOrCompute(ctx, a.cache, kind, key, func(ctx context.Context) (T, error) {
		var out T
		if err := a.summarizer.Summarize(ctx, doc, req, &out); err != nil {
			var zero T
			return zero, err
		}
		return out, nil
	})
}

func validThreshold(pct float64) bool {
	return pct > 0 && pct <= 100
}
