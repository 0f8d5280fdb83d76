package methodology

import (
	"context"
	"errors"
	"sync"
	"testing"

	"sp1500_float/pkg/core/cache"
	"sp1500_float/pkg/core/errs"
	"sp1500_float/pkg/core/prompt"
	"sp1500_float/pkg/core/summarizer"
	"sp1500_float/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockSummarizer answers by prompt id.
type MockSummarizer struct {
	mu        sync.Mutex
	Responses map[string]string
	Errs      map[string]error
	Calls     map[string]int
}

func (m *MockSummarizer) Summarize(_ context.Context, _ *models.Document, req prompt.Request, out any) error {
	m.mu.Lock()
	if m.Calls == nil {
		m.Calls = map[string]int{}
	}
	m.Calls[req.ID]++
	err := m.Errs[req.ID]
	resp := m.Responses[req.ID]
	m.mu.Unlock()
	if err != nil {
		return err
	}
	return summarizer.SmartParse(resp, out)
}

const summaryResponse = `{
	"summary": "Float excludes strategic holdings.",
	"category_definitions": [
		{"category": "Officers, Directors, and related individuals (O+D)", "definition": "Holdings of officers and directors."},
		{"category": "Restricted Shares", "definition": "Shares subject to lock-up."},
		{"category": "Hedge funds", "definition": "Not a strategic category."},
		{"category": "Employee Plans", "definition": ""}
	]
}`

var methodologyDoc = &models.Document{ID: "sha-methodology", Source: "sp-float-methodology.pdf", MIMEType: "application/pdf"}

func newAnalyzer(t *testing.T, m *MockSummarizer, opts ...Option) *Analyzer {
	t.Helper()
	reg, err := prompt.Default()
	require.NoError(t, err)
	return NewAnalyzer(m, reg, opts...)
}

func TestAnalyze_StatedThreshold(t *testing.T) {
	m := &MockSummarizer{Responses: map[string]string{
		prompt.MethodologySummary: summaryResponse,
		prompt.MethodologyDORule:  `{"threshold_pct": 5, "rule_text": "Holdings of 5% or more by officers and directors are strategic."}`,
	}}
	a := newAnalyzer(t, m)

	rules, err := a.Analyze(context.Background(), methodologyDoc)
	require.NoError(t, err)

	assert.Equal(t, 5.0, rules.DOThresholdPct)
	assert.False(t, rules.ThresholdDefaulted)
	assert.Equal(t, "sha-methodology", rules.SourceDocumentID)
	assert.Contains(t, rules.RuleText, "5% or more")
	assert.Equal(t, map[models.CategoryName]string{
		models.CategoryOD:         "Holdings of officers and directors.",
		models.CategoryRestricted: "Shares subject to lock-up.",
	}, rules.CategoryDefinitions)

	require.Len(t, rules.Warnings, 1)
	assert.Equal(t, models.WarnCategoryMapping, rules.Warnings[0].Code)
	assert.Contains(t, rules.Warnings[0].Message, "Hedge funds")
}

func TestGetDORule_FallbackThreshold(t *testing.T) {
	tests := []struct {
		name     string
		response string
		opts     []Option
		want     float64
		warned   bool
	}{
		{"stated number", `{"threshold_pct": 10, "rule_text": "10%"}`, nil, 10, false},
		{"stated string", `{"threshold_pct": "7.5%", "rule_text": ""}`, nil, 7.5, false},
		{"boundary 100", `{"threshold_pct": 100}`, nil, 100, false},
		{"null", `{"threshold_pct": null, "rule_text": ""}`, nil, DefaultThresholdPct, true},
		{"missing", `{"rule_text": "none"}`, nil, DefaultThresholdPct, true},
		{"zero", `{"threshold_pct": 0}`, nil, DefaultThresholdPct, true},
		{"negative", `{"threshold_pct": -5}`, nil, DefaultThresholdPct, true},
		{"above 100", `{"threshold_pct": 150}`, nil, DefaultThresholdPct, true},
		{"unreadable", `{"threshold_pct": "five percent"}`, nil, DefaultThresholdPct, true},
		{"configured fallback", `{"threshold_pct": null}`, []Option{WithDefaultThreshold(10)}, 10, true},
		{"invalid configured fallback ignored", `{"threshold_pct": null}`, []Option{WithDefaultThreshold(0)}, DefaultThresholdPct, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &MockSummarizer{Responses: map[string]string{prompt.MethodologyDORule: tt.response}}
			a := newAnalyzer(t, m, tt.opts...)

			got, warnings, err := a.GetDORule(context.Background(), methodologyDoc)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.warned, models.HasWarning(warnings, models.WarnMissingThreshold))
		})
	}
}

func TestAnalyze_FallbackMarksRules(t *testing.T) {
	m := &MockSummarizer{Responses: map[string]string{
		prompt.MethodologySummary: `{"summary": "s", "category_definitions": []}`,
		prompt.MethodologyDORule:  `{"threshold_pct": null, "rule_text": ""}`,
	}}
	rules, err := newAnalyzer(t, m).Analyze(context.Background(), methodologyDoc)
	require.NoError(t, err)
	assert.True(t, rules.ThresholdDefaulted)
	assert.Equal(t, DefaultThresholdPct, rules.DOThresholdPct)
	assert.True(t, models.HasWarning(rules.Warnings, models.WarnMissingThreshold))
}

func TestAnalyze_CachesBothPrompts(t *testing.T) {
	m := &MockSummarizer{Responses: map[string]string{
		prompt.MethodologySummary: summaryResponse,
		prompt.MethodologyDORule:  `{"threshold_pct": 5}`,
	}}
	a := newAnalyzer(t, m, WithCache(cache.New()))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := a.Analyze(ctx, methodologyDoc)
		require.NoError(t, err)
	}
	_, _, err := a.GetDORule(ctx, methodologyDoc)
	require.NoError(t, err)

	assert.Equal(t, 1, m.Calls[prompt.MethodologySummary])
	assert.Equal(t, 1, m.Calls[prompt.MethodologyDORule])
}

func TestAnalyze_SummarizerErrorNotCached(t *testing.T) {
	boom := errs.Summarization(prompt.MethodologyDORule, errors.New("quota exceeded"))
	m := &MockSummarizer{
		Responses: map[string]string{
			prompt.MethodologySummary: summaryResponse,
			prompt.MethodologyDORule:  `{"threshold_pct": 5}`,
		},
		Errs: map[string]error{prompt.MethodologyDORule: boom},
	}
	a := newAnalyzer(t, m)

	_, err := a.Analyze(context.Background(), methodologyDoc)
	require.ErrorIs(t, err, errs.ErrSummarization)

	m.mu.Lock()
	m.Errs = nil
	m.mu.Unlock()
	rules, err := a.Analyze(context.Background(), methodologyDoc)
	require.NoError(t, err)
	assert.Equal(t, 5.0, rules.DOThresholdPct)
	assert.Equal(t, 2, m.Calls[prompt.MethodologyDORule])
	assert.Equal(t, 1, m.Calls[prompt.MethodologySummary])
}

func TestAnalyze_NilDocument(t *testing.T) {
	_, err := newAnalyzer(t, &MockSummarizer{}).Analyze(context.Background(), nil)
	assert.ErrorIs(t, err, errs.ErrInvalidInput)
}
