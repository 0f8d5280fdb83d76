// Package pipeline runs the float-share analysis end to end: resolve the
// ticker's proxy filing, fetch the documents, extract, compute and persist.
package pipeline

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"sp1500_float/pkg/core/docstore"
	"sp1500_float/pkg/core/errs"
	"sp1500_float/pkg/core/floatcalc"
	"sp1500_float/pkg/core/ingest"
	"sp1500_float/pkg/core/metrics"
	"sp1500_float/pkg/logging"
	"sp1500_float/pkg/models"

	"github.com/google/uuid"
	"github.com/phuslu/log"
	"golang.org/x/sync/errgroup"
)

// MethodologyAnalyzer derives the float rules from the methodology document.
type MethodologyAnalyzer interface {
	Analyze(ctx context.Context, doc *models.Document) (models.MethodologyRules, error)
}

// OwnershipExtractor derives the ownership breakdown from a proxy document.
type OwnershipExtractor interface {
	Extract(ctx context.Context, doc *models.Document) (models.OwnershipRecord, error)
}

// ResultRepository persists one ticker's report.
type ResultRepository interface {
	Save(ctx context.Context, report *models.AnalysisReport) error
}

// Orchestrator manages the per-ticker flow:
// lookup -> download -> extraction -> computation -> persistence.
type Orchestrator struct {
	lookup      ingest.FilingLookup
	documents   docstore.Store
	methodology MethodologyAnalyzer
	ownership   OwnershipExtractor
	repo        ResultRepository

	methodologyLocation string

	logger  *log.Logger
	metrics *metrics.Recorder
	now     func() time.Time

	stopped atomic.Bool
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithRepository persists every successful report.
func WithRepository(r ResultRepository) Option { return func(o *Orchestrator) { o.repo = r } }

func WithLogger(l *log.Logger) Option { return func(o *Orchestrator) { o.logger = l } }

func WithMetrics(r *metrics.Recorder) Option { return func(o *Orchestrator) { o.metrics = r } }

// NewOrchestrator wires the collaborators. methodologyLocation is the URL or
// path of the S&P float methodology document.
func NewOrchestrator(
	lookup ingest.FilingLookup,
	documents docstore.Store,
	methodology MethodologyAnalyzer,
	ownership OwnershipExtractor,
	methodologyLocation string,
	opts ...Option,
) *Orchestrator {
	o := &Orchestrator{
		lookup:              lookup,
		documents:           documents,
		methodology:         methodology,
		ownership:           ownership,
		methodologyLocation: methodologyLocation,
		now:                 time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = logging.OrNop(o.logger)
	return o
}

// Stop prevents AnalyzeBatch from starting further tickers. Tickers already
// in flight finish. A stopped orchestrator stays stopped.
func (o *Orchestrator) Stop() {
	if o.stopped.CompareAndSwap(false, true) {
		o.logger.Info().Msg("stop requested, finishing in-flight tickers")
	}
}

// AnalyzeOne runs the full analysis for one ticker. Every error is an
// *errs.StageError naming the step that failed.
func (o *Orchestrator) AnalyzeOne(ctx context.Context, ticker string) (*models.AnalysisReport, error) {
	ticker = ingest.NormalizeTicker(ticker)
	start := o.now()
	l := o.logger

	if ticker == "" {
		return nil, errs.AtStage(ticker, errs.StageLookup, errs.InvalidInput("empty ticker"))
	}

	// Step 1: resolve the latest proxy filing.
	l.Info().Str("ticker", ticker).Int("step", 1).Msg("resolving proxy filing")
	filing, err := o.lookup.Resolve(ctx, ticker)
	if err != nil {
		return nil, errs.AtStage(ticker, errs.StageLookup, err)
	}
	if filing.URL == "" {
		return nil, errs.AtStage(ticker, errs.StageLookup,
			errs.TickerNotFound(ticker, errors.New("filing has no document URL")))
	}
	filing.Ticker = ticker
	return o.analyzeFiling(ctx, filing, start)
}

// AnalyzeFiling runs the analysis from the download stage on for a filing
// resolved elsewhere, such as a proxy supplied by path or URL. filing.URL
// is the proxy location.
func (o *Orchestrator) AnalyzeFiling(ctx context.Context, filing *ingest.Filing) (*models.AnalysisReport, error) {
	if filing == nil || filing.URL == "" {
		ticker := ""
		if filing != nil {
			ticker = filing.Ticker
		}
		return nil, errs.AtStage(ticker, errs.StageDownload, errs.InvalidInput("no proxy location"))
	}
	f := *filing
	f.Ticker = ingest.NormalizeTicker(f.Ticker)
	return o.analyzeFiling(ctx, &f, o.now())
}

func (o *Orchestrator) analyzeFiling(ctx context.Context, filing *ingest.Filing, start time.Time) (*models.AnalysisReport, error) {
	ticker := filing.Ticker
	l := o.logger

	// Step 2: fetch the methodology and proxy documents.
	l.Info().Str("ticker", ticker).Int("step", 2).Str("filing_url", filing.URL).Msg("fetching documents")
	methodologyDoc, err := o.documents.Fetch(ctx, o.methodologyLocation)
	if err != nil {
		return nil, errs.AtStage(ticker, errs.StageDownload, err)
	}
	proxyDoc, err := o.documents.Fetch(ctx, filing.URL)
	if err != nil {
		return nil, errs.AtStage(ticker, errs.StageDownload, err)
	}

	// Step 3: extract methodology rules and the ownership breakdown.
	l.Info().Str("ticker", ticker).Int("step", 3).Msg("extracting methodology and ownership")
	rules, err := o.methodology.Analyze(ctx, methodologyDoc)
	if err != nil {
		return nil, errs.AtStage(ticker, errs.StageExtraction, err)
	}
	record, err := o.ownership.Extract(ctx, proxyDoc)
	if err != nil {
		return nil, errs.AtStage(ticker, errs.StageExtraction, err)
	}

	// Step 4: compute the float.
	l.Info().Str("ticker", ticker).Int("step", 4).Msg("computing float shares")
	result, err := floatcalc.Compute(record, rules)
	if err != nil {
		return nil, errs.AtStage(ticker, errs.StageComputation, err)
	}

	report := &models.AnalysisReport{
		Ticker:                ticker,
		CompanyName:           filing.CompanyName,
		CIK:                   filing.CIK,
		FilingURL:             filing.URL,
		AccessionNumber:       filing.AccessionNumber,
		MethodologyDocumentID: methodologyDoc.ID,
		ProxyDocumentID:       proxyDoc.ID,
		DOThresholdPct:        rules.DOThresholdPct,
		Result:                result,
		AnalyzedAt:            o.now().UTC(),
	}
	if !filing.FilingDate.IsZero() {
		report.FilingDate = filing.FilingDate.Format("2006-01-02")
	}
	report.Warnings = append(report.Warnings, rules.Warnings...)
	report.Warnings = append(report.Warnings, record.Warnings...)

	// Step 5: persist.
	if o.repo != nil {
		l.Info().Str("ticker", ticker).Int("step", 5).Msg("saving result")
		if err := o.repo.Save(ctx, report); err != nil {
			return nil, errs.AtStage(ticker, errs.StagePersistence, err)
		}
	}

	l.Info().
		Str("ticker", ticker).
		Int64("float_shares", result.FloatShares).
		Float64("adjusted_float_pct", result.AdjustedFloatSharePercentage).
		Int("warnings", len(report.Warnings)).
		Dur("elapsed", o.now().Sub(start)).
		Msg("analysis complete")
	return report, nil
}

// BatchOptions controls AnalyzeBatch.
type BatchOptions struct {
	// Workers bounds concurrent tickers. Zero or less means one at a time.
	Workers int
}

// AnalyzeBatch analyzes every ticker, isolating failures per ticker. It
// stops starting new tickers when ctx is cancelled or Stop is called;
// tickers never started are reported as skipped. In-flight tickers run to
// completion on a context that ignores the cancellation.
func (o *Orchestrator) AnalyzeBatch(ctx context.Context, tickers []string, opts BatchOptions) (*models.BatchResult, error) {
	if len(tickers) == 0 {
		return nil, errs.InvalidInput("no tickers to analyze")
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = 1
	}

	res := &models.BatchResult{
		RunID:     uuid.NewString(),
		StartedAt: o.now().UTC(),
		Outcomes:  make([]models.TickerOutcome, len(tickers)),
		Tally:     models.BatchTally{ByStage: map[string]int{}},
	}
	o.logger.Info().
		Str("run_id", res.RunID).
		Int("tickers", len(tickers)).
		Int("workers", workers).
		Msg("batch started")

	var mu sync.Mutex
	record := func(i int, out models.TickerOutcome) {
		mu.Lock()
		defer mu.Unlock()
		res.Outcomes[i] = out
		stage := ""
		switch out.Status {
		case models.StatusSucceeded:
			res.Tally.Succeeded++
		case models.StatusFailed:
			res.Tally.Failed++
			stage = out.Error.Stage
		case models.StatusSkipped:
			res.Tally.Skipped++
			stage = out.Error.Stage
		}
		if stage != "" {
			res.Tally.ByStage[stage]++
		}
		o.metrics.TickerOutcome(string(out.Status), stage)
		o.logger.Info().
			Str("run_id", res.RunID).
			Str("ticker", out.Ticker).
			Str("status", string(out.Status)).
			Int("succeeded", res.Tally.Succeeded).
			Int("failed", res.Tally.Failed).
			Int("skipped", res.Tally.Skipped).
			Msg("ticker finished")
	}

	work := context.WithoutCancel(ctx)
	g := new(errgroup.Group)
	g.SetLimit(workers)
	for i, ticker := range tickers {
		if o.halted(ctx) {
			record(i, skipped(ticker))
			continue
		}
		g.Go(func() error {
			// The slot may have opened after a stop.
			if o.halted(ctx) {
				record(i, skipped(ticker))
				return nil
			}
			report, err := o.AnalyzeOne(work, ticker)
			if err != nil {
				record(i, failed(ticker, err))
				return nil
			}
			record(i, models.TickerOutcome{Ticker: report.Ticker, Status: models.StatusSucceeded, Report: report})
			return nil
		})
	}
	_ = g.Wait()

	res.FinishedAt = o.now().UTC()
	res.Stopped = o.halted(ctx)
	o.logger.Info().
		Str("run_id", res.RunID).
		Int("succeeded", res.Tally.Succeeded).
		Int("failed", res.Tally.Failed).
		Int("skipped", res.Tally.Skipped).
		Bool("stopped", res.Stopped).
		Dur("elapsed", res.FinishedAt.Sub(res.StartedAt)).
		Msg("batch finished")
	return res, nil
}

func (o *Orchestrator) halted(ctx context.Context) bool {
	return o.stopped.Load() || ctx.Err() != nil
}

func skipped(ticker string) models.TickerOutcome {
	ticker = ingest.NormalizeTicker(ticker)
	return models.TickerOutcome{
		Ticker: ticker,
		Status: models.StatusSkipped,
		Error: &models.ErrorRecord{
			Ticker:  ticker,
			Stage:   string(errs.StageSkipped),
			Message: "batch stopped before this ticker started",
		},
	}
}

func failed(ticker string, err error) models.TickerOutcome {
	ticker = ingest.NormalizeTicker(ticker)
	stage := errs.StageOf(err)
	if stage == "" {
		stage = errs.StageExtraction
	}
	msg := err.Error()
	var se *errs.StageError
	if errors.As(err, &se) {
		msg = se.Err.Error()
	}
	return models.TickerOutcome{
		Ticker: ticker,
		Status: models.StatusFailed,
		Error:  &models.ErrorRecord{Ticker: ticker, Stage: string(stage), Message: msg},
	}
}
