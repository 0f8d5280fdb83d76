package ingest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"sp1500_float/pkg/core/errs"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tickersJSON = `{
	"0": {"cik_str": 320193, "ticker": "AAPL", "title": "Apple Inc."},
	"1": {"cik_str": 1067983, "ticker": "BRK-B", "title": "BERKSHIRE HATHAWAY INC"},
	"2": {"cik_str": 999, "ticker": "NOPRX", "title": "No Proxy Co"}
}`

const appleSubmissions = `{
	"cik": "0000320193",
	"name": "Apple Inc.",
	"filings": {"recent": {
		"accessionNumber": ["0000320193-24-000010", "0001308179-24-000010", "0001308179-25-000008"],
		"filingDate":      ["2024-11-01", "2024-01-11", "2025-01-10"],
		"reportDate":      ["2024-09-28", "2024-02-28", "2025-02-25"],
		"form":            ["10-K", "DEF 14A", "DEF 14A"],
		"primaryDocument": ["aapl-20240928.htm", "laapl2024_def14a.htm", "aapl4359751-def14a.htm"],
		"size":            [100, 200, 300]
	}}
}`

func newTestEDGAR(t *testing.T) (*EDGARClient, *int) {
	t.Helper()
	tickerCalls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-agent", r.Header.Get("User-Agent"))
		switch {
		case r.URL.Path == "/files/company_tickers.json":
			tickerCalls++
			fmt.Fprint(w, tickersJSON)
		case r.URL.Path == "/submissions/CIK0000320193.json":
			fmt.Fprint(w, appleSubmissions)
		case strings.HasPrefix(r.URL.Path, "/submissions/"):
			fmt.Fprint(w, `{"name": "No Proxy Co", "filings": {"recent": {}}}`)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)

	c := NewEDGARClient("test-agent")
	c.TickersURL = srv.URL + "/files/company_tickers.json"
	c.SubmissionsURL = srv.URL + "/submissions/CIK%s.json"
	c.ArchivesURL = "https://www.sec.gov/Archives/edgar/data"
	return c, &tickerCalls
}

func TestResolve_LatestProxy(t *testing.T) {
	c, _ := newTestEDGAR(t)

	f, err := c.Resolve(context.Background(), " aapl ")
	require.NoError(t, err)
	assert.Equal(t, "AAPL", f.Ticker)
	assert.Equal(t, "0000320193", f.CIK)
	assert.Equal(t, "Apple Inc.", f.CompanyName)
	assert.Equal(t, "DEF 14A", f.FormType)
	assert.Equal(t, "0001308179-25-000008", f.AccessionNumber)
	assert.Equal(t, "https://www.sec.gov/Archives/edgar/data/320193/000130817925000008/aapl4359751-def14a.htm", f.URL)
}

func TestResolve_UnknownTicker(t *testing.T) {
	c, _ := newTestEDGAR(t)
	_, err := c.Resolve(context.Background(), "ZZZZ")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrTickerNotFound))
}

func TestResolve_NoProxyFiling(t *testing.T) {
	c, _ := newTestEDGAR(t)
	_, err := c.Resolve(context.Background(), "NOPRX")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrTickerNotFound))
	assert.Contains(t, err.Error(), "DEF 14A")
}

func TestLookupCIK_DotClassAndSingleMappingFetch(t *testing.T) {
	c, calls := newTestEDGAR(t)
	ctx := context.Background()

	cik, name, err := c.LookupCIK(ctx, "brk.b")
	require.NoError(t, err)
	assert.Equal(t, "0001067983", cik)
	assert.Equal(t, "BERKSHIRE HATHAWAY INC", name)

	_, _, err = c.LookupCIK(ctx, "AAPL")
	require.NoError(t, err)
	assert.Equal(t, 1, *calls)
}

func TestGetFilings_FilterAndLimit(t *testing.T) {
	c := NewEDGARClient("")
	info := &SECCompanyInfo{CIK: "0000000001", Filings: SECFilings{Recent: SECRecentFilings{
		AccessionNumber: []string{"a-1", "b-2", "c-3"},
		FilingDate:      []string{"2023-01-01", "2025-01-01", "2024-01-01"},
		Form:            []string{"DEF 14A", "DEF 14A", "10-K"},
		PrimaryDocument: []string{"a.htm", "b.htm", "c.htm"},
	}}}

	all := c.GetFilings(info, nil, 0)
	require.Len(t, all, 3)
	assert.Equal(t, "b-2", all[0].AccessionNumber)

	proxies := c.GetFilings(info, []string{FormProxy}, 1)
	require.Len(t, proxies, 1)
	assert.Equal(t, "b-2", proxies[0].AccessionNumber)
	assert.Equal(t, 0, proxies[0].Size)
}
