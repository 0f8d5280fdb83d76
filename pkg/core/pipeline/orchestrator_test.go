package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"sp1500_float/pkg/core/errs"
	"sp1500_float/pkg/core/ingest"
	"sp1500_float/pkg/core/metrics"
	"sp1500_float/pkg/core/prompt"
	"sp1500_float/pkg/core/summarizer"
	"sp1500_float/pkg/models"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Mocks ---

type MockLookup struct {
	ResolveFunc func(ctx context.Context, ticker string) (*ingest.Filing, error)
}

func (m *MockLookup) Resolve(ctx context.Context, ticker string) (*ingest.Filing, error) {
	if m.ResolveFunc != nil {
		return m.ResolveFunc(ctx, ticker)
	}
	return &ingest.Filing{
		Ticker:          ticker,
		CIK:             "0000320193",
		CompanyName:     ticker + " Inc.",
		AccessionNumber: "0001308179-25-000008",
		FilingDate:      time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC),
		FormType:        ingest.FormProxy,
		URL:             "https://www.sec.gov/Archives/edgar/data/320193/000130817925000008/" + strings.ToLower(ticker) + "-def14a.htm",
	}, nil
}

type MockDocuments struct {
	FetchFunc func(ctx context.Context, location string) (*models.Document, error)
	HasFunc   func(location string) bool
}

func (m *MockDocuments) Has(location string) bool {
	return m.HasFunc != nil && m.HasFunc(location)
}

func (m *MockDocuments) Fetch(ctx context.Context, location string) (*models.Document, error) {
	if m.FetchFunc != nil {
		return m.FetchFunc(ctx, location)
	}
	return &models.Document{ID: "sha:" + location, Source: location}, nil
}

type MockMethodology struct {
	AnalyzeFunc func(ctx context.Context, doc *models.Document) (models.MethodologyRules, error)
}

func (m *MockMethodology) Analyze(ctx context.Context, doc *models.Document) (models.MethodologyRules, error) {
	if m.AnalyzeFunc != nil {
		return m.AnalyzeFunc(ctx, doc)
	}
	return models.NewMethodologyRules(doc.ID, 5, nil)
}

type MockOwnership struct {
	ExtractFunc func(ctx context.Context, doc *models.Document) (models.OwnershipRecord, error)
}

func (m *MockOwnership) Extract(ctx context.Context, doc *models.Document) (models.OwnershipRecord, error) {
	if m.ExtractFunc != nil {
		return m.ExtractFunc(ctx, doc)
	}
	return sampleRecord(doc.ID), nil
}

type MockRepository struct {
	mu       sync.Mutex
	SaveFunc func(ctx context.Context, report *models.AnalysisReport) error
	saved    []string
}

func (m *MockRepository) Save(ctx context.Context, report *models.AnalysisReport) error {
	if m.SaveFunc != nil {
		if err := m.SaveFunc(ctx, report); err != nil {
			return err
		}
	}
	m.mu.Lock()
	m.saved = append(m.saved, report.Ticker)
	m.mu.Unlock()
	return nil
}

// sampleRecord: O+D 6% of 1,000,000 plus 10,000 restricted.
func sampleRecord(docID string) models.OwnershipRecord {
	return models.NewOwnershipRecord(docID, 1_000_000, map[models.CategoryName]int64{
		models.CategoryOD:         60_000,
		models.CategoryRestricted: 10_000,
	})
}

type mocks struct {
	lookup      *MockLookup
	documents   *MockDocuments
	methodology *MockMethodology
	ownership   *MockOwnership
	repo        *MockRepository
}

func newMocks() *mocks {
	return &mocks{
		lookup:      &MockLookup{},
		documents:   &MockDocuments{},
		methodology: &MockMethodology{},
		ownership:   &MockOwnership{},
		repo:        &MockRepository{},
	}
}

func (m *mocks) orchestrator(opts ...Option) *Orchestrator {
	opts = append([]Option{WithRepository(m.repo)}, opts...)
	return NewOrchestrator(m.lookup, m.documents, m.methodology, m.ownership, "methodology.pdf", opts...)
}

// --- Tests ---

func TestAnalyzeOne_HappyPath(t *testing.T) {
	m := newMocks()
	m.ownership.ExtractFunc = func(_ context.Context, doc *models.Document) (models.OwnershipRecord, error) {
		rec := sampleRecord(doc.ID)
		rec.Warnings = []models.Warning{{Code: models.WarnMissingCategory, Message: "no holdings reported for Employee Plans"}}
		return rec, nil
	}

	report, err := m.orchestrator().AnalyzeOne(context.Background(), " aapl ")
	require.NoError(t, err)

	assert.Equal(t, "AAPL", report.Ticker)
	assert.Equal(t, "AAPL Inc.", report.CompanyName)
	assert.Equal(t, "2025-01-10", report.FilingDate)
	assert.Equal(t, "sha:methodology.pdf", report.MethodologyDocumentID)
	assert.True(t, strings.HasSuffix(report.ProxyDocumentID, "aapl-def14a.htm"))
	assert.Equal(t, 5.0, report.DOThresholdPct)

	r := report.Result
	assert.Equal(t, 6.0, r.ODPercentage)
	assert.Equal(t, int64(60_000), r.ODStrategicShares)
	assert.Equal(t, int64(70_000), r.TotalStrategicShares)
	assert.Equal(t, int64(930_000), r.FloatShares)
	assert.Equal(t, 93.0, r.AdjustedFloatSharePercentage)
	assert.Len(t, report.Warnings, 1)

	assert.Equal(t, []string{"AAPL"}, m.repo.saved)
}

func TestAnalyzeOne_StageTagging(t *testing.T) {
	boom := errors.New("boom")
	tests := []struct {
		name  string
		setup func(m *mocks)
		stage errs.Stage
		is    error
	}{
		{
			name: "unknown ticker",
			setup: func(m *mocks) {
				m.lookup.ResolveFunc = func(_ context.Context, ticker string) (*ingest.Filing, error) {
					return nil, errs.TickerNotFound(ticker, nil)
				}
			},
			stage: errs.StageLookup,
			is:    errs.ErrTickerNotFound,
		},
		{
			name: "proxy download fails",
			setup: func(m *mocks) {
				m.documents.FetchFunc = func(_ context.Context, location string) (*models.Document, error) {
					if strings.HasPrefix(location, "https://") {
						return nil, errs.DocumentUnavailable(location, boom)
					}
					return &models.Document{ID: "m"}, nil
				}
			},
			stage: errs.StageDownload,
			is:    errs.ErrDocumentUnavailable,
		},
		{
			name: "methodology summarizer times out",
			setup: func(m *mocks) {
				m.methodology.AnalyzeFunc = func(context.Context, *models.Document) (models.MethodologyRules, error) {
					return models.MethodologyRules{}, errs.Summarization(prompt.MethodologyDORule, context.DeadlineExceeded)
				}
			},
			stage: errs.StageExtraction,
			is:    context.DeadlineExceeded,
		},
		{
			name: "ownership extraction fails",
			setup: func(m *mocks) {
				m.ownership.ExtractFunc = func(context.Context, *models.Document) (models.OwnershipRecord, error) {
					return models.OwnershipRecord{}, errs.Summarization(prompt.OwnershipBreakdown, boom)
				}
			},
			stage: errs.StageExtraction,
			is:    errs.ErrSummarization,
		},
		{
			name: "zero total",
			setup: func(m *mocks) {
				m.ownership.ExtractFunc = func(_ context.Context, doc *models.Document) (models.OwnershipRecord, error) {
					return models.NewOwnershipRecord(doc.ID, 0, nil), nil
				}
			},
			stage: errs.StageComputation,
			is:    errs.ErrInvalidInput,
		},
		{
			name: "strategic exceeds total",
			setup: func(m *mocks) {
				m.ownership.ExtractFunc = func(_ context.Context, doc *models.Document) (models.OwnershipRecord, error) {
					return models.NewOwnershipRecord(doc.ID, 100, map[models.CategoryName]int64{models.CategoryRestricted: 101}), nil
				}
			},
			stage: errs.StageComputation,
			is:    errs.ErrInconsistentData,
		},
		{
			name: "save fails",
			setup: func(m *mocks) {
				m.repo.SaveFunc = func(context.Context, *models.AnalysisReport) error { return boom }
			},
			stage: errs.StagePersistence,
			is:    boom,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			m := newMocks()
			tc.setup(m)

			report, err := m.orchestrator().AnalyzeOne(context.Background(), "TEST")
			require.Error(t, err)
			assert.Nil(t, report)

			var se *errs.StageError
			require.True(t, errors.As(err, &se), "error is not stage-tagged: %v", err)
			assert.Equal(t, "TEST", se.Ticker)
			assert.Equal(t, tc.stage, se.Stage)
			assert.ErrorIs(t, err, tc.is)
		})
	}
}

func TestAnalyzeFiling_SkipsLookup(t *testing.T) {
	m := newMocks()
	m.lookup.ResolveFunc = func(context.Context, string) (*ingest.Filing, error) {
		t.Error("lookup must not run")
		return nil, errors.New("unexpected")
	}
	o := m.orchestrator()

	report, err := o.AnalyzeFiling(context.Background(), &ingest.Filing{Ticker: "ajg", URL: "doc_assets/ajg-def14a.pdf"})
	require.NoError(t, err)
	assert.Equal(t, "AJG", report.Ticker)
	assert.Equal(t, "sha:doc_assets/ajg-def14a.pdf", report.ProxyDocumentID)
	assert.Empty(t, report.FilingDate)

	_, err = o.AnalyzeFiling(context.Background(), &ingest.Filing{Ticker: "AJG"})
	assert.Equal(t, errs.StageDownload, errs.StageOf(err))
}

func TestAnalyzeBatch_IsolatesFailuresAndKeepsOrder(t *testing.T) {
	m := newMocks()
	m.lookup.ResolveFunc = func(ctx context.Context, ticker string) (*ingest.Filing, error) {
		if ticker == "BAD" {
			return nil, errs.TickerNotFound(ticker, nil)
		}
		return (&MockLookup{}).Resolve(ctx, ticker)
	}
	m.ownership.ExtractFunc = func(_ context.Context, doc *models.Document) (models.OwnershipRecord, error) {
		if strings.Contains(doc.ID, "zero") {
			return models.NewOwnershipRecord(doc.ID, 0, nil), nil
		}
		return sampleRecord(doc.ID), nil
	}
	rec := metrics.New()
	o := m.orchestrator(WithMetrics(rec))

	tickers := []string{"AAA", "BAD", "ZERO", "bbb", "CCC"}
	res, err := o.AnalyzeBatch(context.Background(), tickers, BatchOptions{Workers: 3})
	require.NoError(t, err)

	require.Len(t, res.Outcomes, len(tickers))
	gotOrder := make([]string, len(res.Outcomes))
	for i, out := range res.Outcomes {
		gotOrder[i] = out.Ticker
	}
	assert.Equal(t, []string{"AAA", "BAD", "ZERO", "BBB", "CCC"}, gotOrder)

	assert.Equal(t, models.StatusFailed, res.Outcomes[1].Status)
	assert.Equal(t, "lookup", res.Outcomes[1].Error.Stage)
	assert.Nil(t, res.Outcomes[1].Report)
	assert.Equal(t, "computation", res.Outcomes[2].Error.Stage)
	assert.NotNil(t, res.Outcomes[3].Report)

	assert.Equal(t, 3, res.Tally.Succeeded)
	assert.Equal(t, 2, res.Tally.Failed)
	assert.Equal(t, 0, res.Tally.Skipped)
	assert.Equal(t, map[string]int{"lookup": 1, "computation": 1}, res.Tally.ByStage)
	assert.NotEmpty(t, res.RunID)
	assert.False(t, res.Stopped)

	// succeeded, failed/lookup and failed/computation
	series, err := testutil.GatherAndCount(rec.Gatherer(), "floatshare_ticker_outcomes_total")
	require.NoError(t, err)
	assert.Equal(t, 3, series)
}

func TestAnalyzeBatch_StopFinishesInFlight(t *testing.T) {
	m := newMocks()
	var o *Orchestrator
	var started atomic.Int32
	m.ownership.ExtractFunc = func(_ context.Context, doc *models.Document) (models.OwnershipRecord, error) {
		if started.Add(1) == 1 {
			o.Stop()
		}
		return sampleRecord(doc.ID), nil
	}
	o = m.orchestrator()

	res, err := o.AnalyzeBatch(context.Background(), []string{"A", "B", "C", "D"}, BatchOptions{Workers: 1})
	require.NoError(t, err)

	assert.True(t, res.Stopped)
	assert.Equal(t, models.StatusSucceeded, res.Outcomes[0].Status)
	for _, out := range res.Outcomes[1:] {
		assert.Equal(t, models.StatusSkipped, out.Status, out.Ticker)
		assert.Equal(t, "skipped", out.Error.Stage)
	}
	assert.Equal(t, 1, res.Tally.Succeeded)
	assert.Equal(t, 3, res.Tally.Skipped)
	assert.Equal(t, int32(1), started.Load())
}

func TestAnalyzeBatch_CancelledContextLetsInFlightComplete(t *testing.T) {
	m := newMocks()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.methodology.AnalyzeFunc = func(ctx context.Context, doc *models.Document) (models.MethodologyRules, error) {
		cancel()
		if err := ctx.Err(); err != nil {
			return models.MethodologyRules{}, err
		}
		return models.NewMethodologyRules(doc.ID, 5, nil)
	}

	res, err := m.orchestrator().AnalyzeBatch(ctx, []string{"A", "B"}, BatchOptions{})
	require.NoError(t, err)

	assert.Equal(t, models.StatusSucceeded, res.Outcomes[0].Status)
	assert.Equal(t, models.StatusSkipped, res.Outcomes[1].Status)
	assert.True(t, res.Stopped)
	assert.Equal(t, []string{"A"}, m.repo.saved)
}

func TestAnalyzeBatch_NoTickers(t *testing.T) {
	_, err := newMocks().orchestrator().AnalyzeBatch(context.Background(), nil, BatchOptions{})
	assert.ErrorIs(t, err, errs.ErrInvalidInput)
}

func TestThrottle_SharedAcrossCapabilities(t *testing.T) {
	const interval = 25 * time.Millisecond
	th := NewThrottle(interval)
	lookup := th.Lookup(&MockLookup{})
	docs := th.Documents(&MockDocuments{})
	summ := th.Summarizer(summarizer.Func(func(context.Context, *models.Document, prompt.Request, any) error {
		return nil
	}))

	ctx := context.Background()
	start := time.Now()
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(3)
		go func() {
			defer wg.Done()
			_, err := lookup.Resolve(ctx, "AAPL")
			assert.NoError(t, err)
		}()
		go func() {
			defer wg.Done()
			_, err := docs.Fetch(ctx, "https://www.sec.gov/doc.htm")
			assert.NoError(t, err)
		}()
		go func() {
			defer wg.Done()
			assert.NoError(t, summ.Summarize(ctx, nil, prompt.Request{ID: "p"}, nil))
		}()
	}
	wg.Wait()

	// six paced calls with burst 1 need at least five intervals
	assert.GreaterOrEqual(t, time.Since(start), 5*interval-5*time.Millisecond)
}

func TestThrottle_WaitErrorsKeepTaxonomy(t *testing.T) {
	th := NewThrottle(time.Hour)
	summ := th.Summarizer(summarizer.Func(func(context.Context, *models.Document, prompt.Request, any) error {
		return nil
	}))
	docs := th.Documents(&MockDocuments{})

	require.NoError(t, summ.Summarize(context.Background(), nil, prompt.Request{ID: "p"}, nil))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := summ.Summarize(ctx, nil, prompt.Request{ID: "p"}, nil)
	assert.ErrorIs(t, err, errs.ErrSummarization)

	_, err = docs.Fetch(ctx, "https://example.test/doc.pdf")
	assert.ErrorIs(t, err, errs.ErrDocumentUnavailable)

	// local paths skip the limiter
	doc, err := docs.Fetch(ctx, "methodology.pdf")
	require.NoError(t, err)
	assert.Equal(t, "sha:methodology.pdf", doc.ID)
}

func TestThrottle_DownloadedDocumentsAreNotPaced(t *testing.T) {
	const held = "https://example.test/methodology.pdf"
	th := NewThrottle(time.Hour)
	docs := th.Documents(&MockDocuments{HasFunc: func(location string) bool { return location == held }})
	require.NoError(t, th.Wait(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	for i := 0; i < 3; i++ {
		doc, err := docs.Fetch(ctx, held)
		require.NoError(t, err)
		assert.Equal(t, "sha:"+held, doc.ID)
	}

	_, err := docs.Fetch(ctx, "https://example.test/other.pdf")
	assert.ErrorIs(t, err, errs.ErrDocumentUnavailable)
}

func TestNewThrottle_ZeroIntervalIsUnpaced(t *testing.T) {
	th := NewThrottle(0)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	for i := 0; i < 100; i++ {
		require.NoError(t, th.Wait(ctx))
	}
}
