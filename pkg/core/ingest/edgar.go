// Package ingest resolves tickers to their SEC filings and lists the S&P
// 1500 constituents.
// API Documentation: https://www.sec.gov/developer
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"sp1500_float/pkg/core/errs"
)

const (
	// SEC EDGAR API endpoints
	SECTickersURL     = "https://www.sec.gov/files/company_tickers.json"
	SECSubmissionsURL = "https://data.sec.gov/submissions/CIK%s.json"
	SECArchivesURL    = "https://www.sec.gov/Archives/edgar/data"

	// DefaultUserAgent identifies the client per SEC fair-access guidelines.
	DefaultUserAgent = "SP1500FloatAnalyzer/1.0 (contact@example.com)"

	// FormProxy is the definitive proxy statement.
	FormProxy = "DEF 14A"
)

// =============================================================================
// SEC EDGAR DATA TYPES
// =============================================================================

// SECCompanyInfo represents the top-level company submission response.
type SECCompanyInfo struct {
	CIK            string     `json:"cik"`
	EntityType     string     `json:"entityType"`
	SIC            string     `json:"sic"`
	SICDescription string     `json:"sicDescription"`
	Name           string     `json:"name"`
	Tickers        []string   `json:"tickers"`
	Exchanges      []string   `json:"exchanges"`
	Filings        SECFilings `json:"filings"`
}

// SECFilings contains recent and older filing lists.
type SECFilings struct {
	Recent SECRecentFilings `json:"recent"`
}

// SECRecentFilings holds arrays of filing attributes (parallel arrays).
type SECRecentFilings struct {
	AccessionNumber []string `json:"accessionNumber"` // e.g., "0000037996-24-000012"
	FilingDate      []string `json:"filingDate"`      // e.g., "2024-02-06"
	ReportDate      []string `json:"reportDate"`
	Form            []string `json:"form"` // "DEF 14A", "10-K", ...
	PrimaryDocument []string `json:"primaryDocument"`
	Size            []int    `json:"size"`
}

// Filing is a single SEC filing (denormalized from parallel arrays).
type Filing struct {
	Ticker          string    `json:"ticker"`
	CIK             string    `json:"cik"`
	CompanyName     string    `json:"company_name"`
	AccessionNumber string    `json:"accession_number"`
	FilingDate      time.Time `json:"filing_date"`
	FormType        string    `json:"form_type"`
	PrimaryDocument string    `json:"primary_document"`
	Size            int       `json:"size"`
	URL             string    `json:"url"`
}

// FilingLookup resolves a ticker to its latest proxy filing.
// A ticker with no such filing is errs.ErrTickerNotFound.
type FilingLookup interface {
	Resolve(ctx context.Context, ticker string) (*Filing, error)
}

// =============================================================================
// SEC EDGAR CLIENT
// =============================================================================

type tickerEntry struct {
	CIK   int    `json:"cik_str"`
	Title string `json:"title"`
}

// EDGARClient handles SEC EDGAR API requests.
type EDGARClient struct {
	httpClient *http.Client
	userAgent  string

	// Endpoints, overridable for tests.
	TickersURL     string
	SubmissionsURL string
	ArchivesURL    string

	mu      sync.Mutex
	tickers map[string]tickerEntry
}

var _ FilingLookup = (*EDGARClient)(nil)

// NewEDGARClient creates a new SEC EDGAR API client.
func NewEDGARClient(userAgent string) *EDGARClient {
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	return &EDGARClient{
		httpClient:     &http.Client{Timeout: 30 * time.Second},
		userAgent:      userAgent,
		TickersURL:     SECTickersURL,
		SubmissionsURL: SECSubmissionsURL,
		ArchivesURL:    SECArchivesURL,
	}
}

func (c *EDGARClient) getJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	// SEC requires User-Agent header
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("SEC API request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("SEC API returned status %d for %s", resp.StatusCode, url)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse SEC response: %w", err)
	}
	return nil
}

// loadTickers fetches the ticker -> CIK mapping once per client.
func (c *EDGARClient) loadTickers(ctx context.Context) (map[string]tickerEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tickers != nil {
		return c.tickers, nil
	}

	// Response structure: { "0": {"cik_str": 320193, "ticker": "AAPL", "title": "..."}, ... }
	var mapping map[string]struct {
		CIK    int    `json:"cik_str"`
		Ticker string `json:"ticker"`
		Title  string `json:"title"`
	}
	if err := c.getJSON(ctx, c.TickersURL, &mapping); err != nil {
		return nil, fmt.Errorf("ticker mapping: %w", err)
	}

	tickers := make(map[string]tickerEntry, len(mapping))
	for _, e := range mapping {
		tickers[strings.ToUpper(e.Ticker)] = tickerEntry{CIK: e.CIK, Title: e.Title}
	}
	c.tickers = tickers
	return tickers, nil
}

// LookupCIK finds the zero-padded CIK and company name for a ticker. Class
// shares written with a dot (BRK.B) are matched against SEC's dash form.
func (c *EDGARClient) LookupCIK(ctx context.Context, ticker string) (cik, name string, err error) {
	tickers, err := c.loadTickers(ctx)
	if err != nil {
		return "", "", err
	}
	t := NormalizeTicker(ticker)
	for _, candidate := range []string{t, strings.ReplaceAll(t, ".", "-")} {
		if e, ok := tickers[candidate]; ok {
			return fmt.Sprintf("%010d", e.CIK), e.Title, nil
		}
	}
	return "", "", errs.TickerNotFound(ticker, nil)
}

// FetchCompanyInfo retrieves company submission data from SEC EDGAR.
//
// CIK is zero-padded to 10 digits if needed.
func (c *EDGARClient) FetchCompanyInfo(ctx context.Context, cik string) (*SECCompanyInfo, error) {
	cik = PadCIK(cik)
	var info SECCompanyInfo
	if err := c.getJSON(ctx, fmt.Sprintf(c.SubmissionsURL, cik), &info); err != nil {
		return nil, err
	}
	if info.CIK == "" {
		info.CIK = cik
	}
	return &info, nil
}

// GetFilings extracts filings of the given form types, newest first.
// limit 0 means no limit.
func (c *EDGARClient) GetFilings(info *SECCompanyInfo, formTypes []string, limit int) []Filing {
	recent := info.Filings.Recent
	formTypeSet := make(map[string]bool)
	for _, ft := range formTypes {
		formTypeSet[ft] = true
	}

	n := minLen(len(recent.AccessionNumber), len(recent.Form), len(recent.FilingDate), len(recent.PrimaryDocument))
	filings := make([]Filing, 0)
	for i := 0; i < n; i++ {
		if len(formTypes) > 0 && !formTypeSet[recent.Form[i]] {
			continue
		}
		filingDate, _ := time.Parse("2006-01-02", recent.FilingDate[i])
		size := 0
		if i < len(recent.Size) {
			size = recent.Size[i]
		}
		filings = append(filings, Filing{
			CIK:             info.CIK,
			CompanyName:     info.Name,
			AccessionNumber: recent.AccessionNumber[i],
			FilingDate:      filingDate,
			FormType:        recent.Form[i],
			PrimaryDocument: recent.PrimaryDocument[i],
			Size:            size,
			URL:             c.FilingURL(info.CIK, recent.AccessionNumber[i], recent.PrimaryDocument[i]),
		})
	}

	sort.SliceStable(filings, func(i, j int) bool {
		return filings[i].FilingDate.After(filings[j].FilingDate)
	})
	if limit > 0 && len(filings) > limit {
		filings = filings[:limit]
	}
	return filings
}

// FilingURL builds
// https://www.sec.gov/Archives/edgar/data/{cik}/{accession-no-dashes}/{document}
func (c *EDGARClient) FilingURL(cik, accession, document string) string {
	return fmt.Sprintf("%s/%s/%s/%s",
		c.ArchivesURL,
		strings.TrimLeft(cik, "0"),
		strings.ReplaceAll(accession, "-", ""),
		document)
}

// Resolve returns the latest DEF 14A filing for ticker.
func (c *EDGARClient) Resolve(ctx context.Context, ticker string) (*Filing, error) {
	cik, name, err := c.LookupCIK(ctx, ticker)
	if err != nil {
		return nil, err
	}
	info, err := c.FetchCompanyInfo(ctx, cik)
	if err != nil {
		return nil, fmt.Errorf("submissions for %s: %w", ticker, err)
	}

	filings := c.GetFilings(info, []string{FormProxy}, 1)
	if len(filings) == 0 {
		return nil, errs.TickerNotFound(ticker, fmt.Errorf("no %s filings for CIK %s", FormProxy, cik))
	}

	f := filings[0]
	f.Ticker = NormalizeTicker(ticker)
	if f.CompanyName == "" {
		f.CompanyName = name
	}
	return &f, nil
}

// PadCIK zero-pads a CIK to the 10 digits EDGAR uses in URLs.
func PadCIK(cik string) string {
	cik = strings.TrimLeft(strings.TrimSpace(cik), "0")
	if len(cik) >= 10 {
		return cik
	}
	return strings.Repeat("0", 10-len(cik)) + cik
}

// NormalizeTicker upper-cases and trims a ticker symbol.
func NormalizeTicker(ticker string) string {
	return strings.ToUpper(strings.TrimSpace(ticker))
}

func minLen(ns ...int) int {
	m := ns[0]
	for _, n := range ns[1:] {
		if n < m {
			m = n
		}
	}
	return m
}
