package ingest

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// WikipediaIndexURL is the constituents page per S&P index series.
const WikipediaIndexURL = "https://en.wikipedia.org/wiki/List_of_S%%26P_%s_companies"

// IndexSeries are the three indices that make up the S&P 1500.
var IndexSeries = []string{"500", "400", "600"}

// Constituent is one row of an S&P constituents table.
type Constituent struct {
	Symbol      string `json:"symbol"`
	Security    string `json:"security"`
	GICSSector  string `json:"gics_sector,omitempty"`
	CIK         string `json:"cik,omitempty"`
	IndexSeries string `json:"index_series"`
}

// ConstituentsClient scrapes the constituents tables.
type ConstituentsClient struct {
	httpClient *http.Client
	userAgent  string
	// PageURL returns the page for an index series; overridable for tests.
	PageURL func(series string) string
}

func NewConstituentsClient(userAgent string) *ConstituentsClient {
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	return &ConstituentsClient{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		userAgent:  userAgent,
		PageURL: func(series string) string {
			return fmt.Sprintf(WikipediaIndexURL, series)
		},
	}
}

// Fetch returns the S&P 500, 400 and 600 constituents, in that order.
func (c *ConstituentsClient) Fetch(ctx context.Context) ([]Constituent, error) {
	var all []Constituent
	for _, series := range IndexSeries {
		rows, err := c.fetchSeries(ctx, series)
		if err != nil {
			return nil, fmt.Errorf("S&P %s constituents: %w", series, err)
		}
		all = append(all, rows...)
	}
	return all, nil
}

func (c *ConstituentsClient) fetchSeries(ctx context.Context, series string) ([]Constituent, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.PageURL(series), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return parseConstituentsTable(doc, series)
}

func parseConstituentsTable(doc *goquery.Document, series string) ([]Constituent, error) {
	table := doc.Find("table#constituents").First()
	if table.Length() == 0 {
		table = doc.Find("table.wikitable").First()
	}
	if table.Length() == 0 {
		return nil, fmt.Errorf("no constituents table")
	}

	cols := map[string]int{}
	table.Find("tr").First().Find("th").Each(func(i int, th *goquery.Selection) {
		cols[strings.ToLower(strings.TrimSpace(th.Text()))] = i
	})
	symbolCol, ok := cols["symbol"]
	if !ok {
		return nil, fmt.Errorf("constituents table has no Symbol column")
	}
	nameCol, ok := cols["security"]
	if !ok {
		nameCol, ok = cols["company"]
	}
	if !ok {
		nameCol = -1
	}
	sectorCol, hasSector := cols["gics sector"]
	cikCol, hasCIK := cols["cik"]

	var out []Constituent
	table.Find("tr").Each(func(i int, tr *goquery.Selection) {
		cells := tr.Find("td")
		if cells.Length() == 0 {
			return
		}
		text := func(idx int) string {
			if idx < 0 || idx >= cells.Length() {
				return ""
			}
			return strings.TrimSpace(cells.Eq(idx).Text())
		}
		symbol := text(symbolCol)
		if symbol == "" {
			return
		}
		row := Constituent{
			Symbol:      symbol,
			Security:    text(nameCol),
			IndexSeries: series,
		}
		if hasSector {
			row.GICSSector = text(sectorCol)
		}
		if hasCIK {
			if cik := text(cikCol); cik != "" {
				row.CIK = PadCIK(cik)
			}
		}
		out = append(out, row)
	})
	return out, nil
}
