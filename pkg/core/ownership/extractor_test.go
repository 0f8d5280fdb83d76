package ownership

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"sp1500_float/pkg/core/cache"
	"sp1500_float/pkg/core/errs"
	"sp1500_float/pkg/core/prompt"
	"sp1500_float/pkg/core/summarizer"
	"sp1500_float/pkg/models"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockSummarizer answers every prompt with Response and counts calls.
type MockSummarizer struct {
	Response string
	Err      error
	calls    atomic.Int32
	lastReq  prompt.Request
}

func (m *MockSummarizer) Summarize(_ context.Context, _ *models.Document, req prompt.Request, out any) error {
	m.calls.Add(1)
	m.lastReq = req
	if m.Err != nil {
		return m.Err
	}
	return summarizer.SmartParse(m.Response, out)
}

func newExtractor(t *testing.T, s summarizer.Summarizer, opts ...Option) *Extractor {
	t.Helper()
	reg, err := prompt.Default()
	require.NoError(t, err)
	return NewExtractor(s, reg, opts...)
}

var proxyDoc = &models.Document{ID: "sha-proxy", Source: "aapl-def14a.htm", MIMEType: "text/html", Text: "..."}

func TestExtract_MapsLabelsAndZeroFills(t *testing.T) {
	m := &MockSummarizer{Response: `{
		"total_shares_outstanding": "15,115,823,000",
		"filing_date": "2025-01-02",
		"categories": [
			{"label": "All directors and executive officers as a group", "shares": 3364457},
			{"label": "Employee Plans Shares", "shares": 1000},
			{"label": "ESOP", "shares": 500},
			{"label": "Mutual funds", "shares": 42}
		]
	}`}
	e := newExtractor(t, m)

	rec, err := e.Extract(context.Background(), proxyDoc)
	require.NoError(t, err)

	assert.Equal(t, int64(15_115_823_000), rec.TotalSharesOutstanding)
	assert.Equal(t, "sha-proxy", rec.SourceDocumentID)
	require.NotNil(t, rec.FilingDate)
	assert.Equal(t, time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC), *rec.FilingDate)

	want := map[models.CategoryName]int64{
		models.CategoryOD:                 3364457,
		models.CategoryFivePercentHolders: 0,
		models.CategoryPrivateEquity:      0,
		models.CategoryAssetManagersBoard: 0,
		models.CategoryPublicCompanies:    0,
		models.CategoryRestricted:         0,
		models.CategoryEmployeePlans:      1500,
		models.CategoryFoundations:        0,
		models.CategorySovereignWealth:    0,
	}
	if diff := cmp.Diff(want, rec.CategoryShares); diff != "" {
		t.Errorf("category shares mismatch (-want +got):\n%s", diff)
	}

	var mapping, missing int
	for _, w := range rec.Warnings {
		switch w.Code {
		case models.WarnCategoryMapping:
			mapping++
			assert.Contains(t, w.Message, "Mutual funds")
		case models.WarnMissingCategory:
			missing++
		}
	}
	assert.Equal(t, 1, mapping)
	assert.Equal(t, 7, missing)

	assert.Equal(t, prompt.OwnershipBreakdown, m.lastReq.ID)
	assert.Contains(t, m.lastReq.User, models.CategorySovereignWealth.Label())
}

func TestExtract_CachedPerDocument(t *testing.T) {
	m := &MockSummarizer{Response: `{"total_shares_outstanding": 100, "categories": []}`}
	c := cache.New()
	e := newExtractor(t, m, WithCache(c))
	ctx := context.Background()

	first, err := e.Extract(ctx, proxyDoc)
	require.NoError(t, err)
	second, err := e.Extract(ctx, proxyDoc)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), m.calls.Load())

	other := &models.Document{ID: "sha-other"}
	_, err = e.Extract(ctx, other)
	require.NoError(t, err)
	assert.Equal(t, int32(2), m.calls.Load())
}

func TestExtract_NegativeSharesIsSummarizationError(t *testing.T) {
	m := &MockSummarizer{Response: `{"total_shares_outstanding": 100, "categories": [{"label": "Restricted", "shares": -5}]}`}
	c := cache.New()
	e := newExtractor(t, m, WithCache(c))

	_, err := e.Extract(context.Background(), proxyDoc)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrSummarization))
	assert.Equal(t, 0, c.Len())
}

func TestExtract_SummarizerFailurePropagates(t *testing.T) {
	m := &MockSummarizer{Err: errs.Summarization(prompt.OwnershipBreakdown, context.DeadlineExceeded)}
	e := newExtractor(t, m)

	_, err := e.Extract(context.Background(), proxyDoc)
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrSummarization)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestExtract_NilDocument(t *testing.T) {
	e := newExtractor(t, &MockSummarizer{})
	_, err := e.Extract(context.Background(), nil)
	assert.ErrorIs(t, err, errs.ErrInvalidInput)
}

func TestNormalizeLabel(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"O+D", "o d"},
		{"(O+D) Shares", "o d"},
		{"Officers, Directors, and related individuals (O+D)", "officers directors and related individuals o d"},
		{"  Restricted   Shares ", "restricted"},
		{"Shares", "shares"},
		{"401(k) Plan", "401 k plan"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeLabel(tt.in))
		})
	}
}

func TestDefaultSynonyms_CoverCanonicalLabels(t *testing.T) {
	s := DefaultSynonyms()
	for _, c := range models.AllCategories {
		got, ok := s.Match(c.Label())
		require.True(t, ok, c)
		assert.Equal(t, c, got)

		got, ok = s.Match(c.ResultKey())
		require.True(t, ok, c)
		assert.Equal(t, c, got)
	}

	got, ok := s.Match("D&O")
	require.True(t, ok)
	assert.Equal(t, models.CategoryOD, got)

	_, ok = s.Match("retail investors")
	assert.False(t, ok)
}

func TestDefaultSynonyms_ProxyHeadings(t *testing.T) {
	tests := []struct {
		label string
		want  models.CategoryName
	}{
		{"Directors and Officers", models.CategoryOD},
		{"5% Owners", models.CategoryFivePercentHolders},
		{"5% Beneficial Owners", models.CategoryFivePercentHolders},
		{"Beneficial Owners of More Than 5%", models.CategoryFivePercentHolders},
		{"Principal Stockholders", models.CategoryFivePercentHolders},
		{"Principal Shareholders", models.CategoryFivePercentHolders},
		{"5% Stockholders Shares", models.CategoryFivePercentHolders},
	}
	s := DefaultSynonyms()
	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			got, ok := s.Match(tt.label)
			require.True(t, ok, "label %q not mapped", tt.label)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalize_FivePercentOwnersCountTowardStrategic(t *testing.T) {
	rec := Normalize("doc", Breakdown{
		TotalSharesOutstanding: 1_000_000,
		Categories: []LabeledShares{
			{Label: "Directors and Officers", Shares: 20_000},
			{Label: "5% Owners", Shares: 150_000},
			{Label: "Principal Stockholders", Shares: 50_000},
		},
	}, DefaultSynonyms())

	assert.Equal(t, int64(20_000), rec.CategoryShares[models.CategoryOD])
	assert.Equal(t, int64(200_000), rec.CategoryShares[models.CategoryFivePercentHolders])
	for _, w := range rec.Warnings {
		assert.NotEqual(t, models.WarnCategoryMapping, w.Code, w.Message)
	}
}

func TestParseSynonyms_Errors(t *testing.T) {
	_, err := ParseSynonyms([]byte("od:\n  - founders\nrestricted:\n  - Founders\n"))
	assert.ErrorContains(t, err, "maps to both")

	_, err = ParseSynonyms([]byte("retail:\n  - crowd\n"))
	assert.ErrorContains(t, err, "unknown category")

	_, err = ParseSynonyms([]byte("od: [unterminated"))
	assert.Error(t, err)
}

func TestShareCount_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		in      string
		want    ShareCount
		wantErr bool
	}{
		{`3364457`, 3364457, false},
		{`"3,364,457"`, 3364457, false},
		{`1.2e3`, 1200, false},
		{`null`, 0, false},
		{`""`, 0, false},
		{`"n/a"`, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			var got ShareCount
			err := json.Unmarshal([]byte(tt.in), &got)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
