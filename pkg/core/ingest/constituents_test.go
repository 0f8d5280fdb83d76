package ingest

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const page500 = `<html><body>
<table class="wikitable sortable" id="constituents">
<tr><th>Symbol</th><th>Security</th><th>GICS Sector</th><th>CIK</th></tr>
<tr><td><a>MMM</a></td><td>3M</td><td>Industrials</td><td>66740</td></tr>
<tr><td>AAPL</td><td>Apple Inc.</td><td>Information Technology</td><td>0000320193</td></tr>
</table>
<table class="wikitable"><tr><th>Date</th></tr><tr><td>2024-01-01</td></tr></table>
</body></html>`

const pageSmall = `<html><body>
<table class="wikitable sortable">
<tr><th>Symbol</th><th>Company</th><th>GICS Sector</th></tr>
<tr><td>%s</td><td>%s Corp</td><td>Utilities</td></tr>
</table></body></html>`

func TestConstituents_FetchAllSeries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/500"):
			fmt.Fprint(w, page500)
		case strings.HasSuffix(r.URL.Path, "/400"):
			fmt.Fprintf(w, pageSmall, "MID", "Mid")
		case strings.HasSuffix(r.URL.Path, "/600"):
			fmt.Fprintf(w, pageSmall, "SML", "Small")
		}
	}))
	defer srv.Close()

	c := NewConstituentsClient("test-agent")
	c.PageURL = func(series string) string { return srv.URL + "/" + series }

	got, err := c.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 4)

	assert.Equal(t, Constituent{Symbol: "MMM", Security: "3M", GICSSector: "Industrials", CIK: "0000066740", IndexSeries: "500"}, got[0])
	assert.Equal(t, "0000320193", got[1].CIK)
	assert.Equal(t, Constituent{Symbol: "MID", Security: "Mid Corp", GICSSector: "Utilities", IndexSeries: "400"}, got[2])
	assert.Equal(t, "600", got[3].IndexSeries)
}

func TestConstituents_PageError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewConstituentsClient("")
	c.PageURL = func(series string) string { return srv.URL + "/" + series }

	_, err := c.Fetch(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "S&P 500")
}
