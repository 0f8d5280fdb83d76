package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Fixed keys of the float-share output schema that are not category echoes.
const (
	KeyTotalSharesOutstanding = "Total Shares Outstanding"
	KeyODPercentage           = "(O+D) Shares percentage"
	KeyODStrategic            = "(O+D) Shares as Strategic Shares"
	KeyTotalStrategic         = "Total Strategic Shares to Exclude"
	KeyFloatShares            = "Float Shares"
	KeyAdjustedFloatPct       = "adjusted_float_share_percentage"
)

// ResultKeys lists all 15 output keys in schema order.
var ResultKeys = func() []string {
	keys := []string{KeyTotalSharesOutstanding}
	for _, c := range AllCategories {
		keys = append(keys, c.ResultKey())
	}
	return append(keys, KeyODPercentage, KeyODStrategic, KeyTotalStrategic, KeyFloatShares, KeyAdjustedFloatPct)
}()

var requiredResultKeys = []string{
	KeyTotalSharesOutstanding, KeyODPercentage, KeyODStrategic,
	KeyTotalStrategic, KeyFloatShares, KeyAdjustedFloatPct,
}

// FloatShareResult is the derived float-share breakdown for one
// (ticker, methodology document, proxy document) triple. Category counts are
// held in a fixed array so copies never share state.
type FloatShareResult struct {
	TotalSharesOutstanding       int64
	CategoryShares               [NumCategories]int64
	ODPercentage                 float64
	ODStrategicShares            int64
	TotalStrategicShares         int64
	FloatShares                  int64
	AdjustedFloatSharePercentage float64
}

// Shares returns the echoed raw count for a category.
func (r FloatShareResult) Shares(c CategoryName) int64 {
	if i := c.Index(); i >= 0 {
		return r.CategoryShares[i]
	}
	return 0
}

// Values returns the result as a key -> number map. Order is given by ResultKeys.
func (r FloatShareResult) Values() map[string]float64 {
	out := make(map[string]float64, len(ResultKeys))
	out[KeyTotalSharesOutstanding] = float64(r.TotalSharesOutstanding)
	for i, c := range AllCategories {
		out[c.ResultKey()] = float64(r.CategoryShares[i])
	}
	out[KeyODPercentage] = r.ODPercentage
	out[KeyODStrategic] = float64(r.ODStrategicShares)
	out[KeyTotalStrategic] = float64(r.TotalStrategicShares)
	out[KeyFloatShares] = float64(r.FloatShares)
	out[KeyAdjustedFloatPct] = r.AdjustedFloatSharePercentage
	return out
}

// MarshalJSON writes the 15 keys verbatim in schema order. Some keys contain
// commas, so struct tags cannot express them.
func (r FloatShareResult) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	write := func(key, num string) {
		if buf.Len() > 1 {
			buf.WriteByte(',')
		}
		k, _ := json.Marshal(key)
		buf.Write(k)
		buf.WriteByte(':')
		buf.WriteString(num)
	}
	ints := func(v int64) string { return strconv.FormatInt(v, 10) }
	floats := func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }

	write(KeyTotalSharesOutstanding, ints(r.TotalSharesOutstanding))
	for i, c := range AllCategories {
		write(c.ResultKey(), ints(r.CategoryShares[i]))
	}
	write(KeyODPercentage, floats(r.ODPercentage))
	write(KeyODStrategic, ints(r.ODStrategicShares))
	write(KeyTotalStrategic, ints(r.TotalStrategicShares))
	write(KeyFloatShares, ints(r.FloatShares))
	write(KeyAdjustedFloatPct, floats(r.AdjustedFloatSharePercentage))
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads a persisted result. Category keys may be absent and
// default to zero; the six computed keys are required.
func (r *FloatShareResult) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw map[string]json.Number
	if err := dec.Decode(&raw); err != nil {
		return fmt.Errorf("decode float share result: %w", err)
	}
	for _, k := range requiredResultKeys {
		if _, ok := raw[k]; !ok {
			return fmt.Errorf("float share result missing key %q", k)
		}
	}

	asInt := func(k string) (int64, error) {
		n, ok := raw[k]
		if !ok {
			return 0, nil
		}
		if v, err := n.Int64(); err == nil {
			return v, nil
		}
		f, err := n.Float64()
		if err != nil {
			return 0, fmt.Errorf("key %q: %w", k, err)
		}
		return int64(f), nil
	}

	var out FloatShareResult
	var err error
	if out.TotalSharesOutstanding, err = asInt(KeyTotalSharesOutstanding); err != nil {
		return err
	}
	for i, c := range AllCategories {
		if out.CategoryShares[i], err = asInt(c.ResultKey()); err != nil {
			return err
		}
	}
	if out.ODPercentage, err = raw[KeyODPercentage].Float64(); err != nil {
		return fmt.Errorf("key %q: %w", KeyODPercentage, err)
	}
	if out.ODStrategicShares, err = asInt(KeyODStrategic); err != nil {
		return err
	}
	if out.TotalStrategicShares, err = asInt(KeyTotalStrategic); err != nil {
		return err
	}
	if out.FloatShares, err = asInt(KeyFloatShares); err != nil {
		return err
	}
	if out.AdjustedFloatSharePercentage, err = raw[KeyAdjustedFloatPct].Float64(); err != nil {
		return fmt.Errorf("key %q: %w", KeyAdjustedFloatPct, err)
	}
	*r = out
	return nil
}

// AnalysisReport decorates a FloatShareResult with the filing it was derived
// from and any warnings raised during extraction.
type AnalysisReport struct {
	Ticker                string           `json:"ticker"`
	CompanyName           string           `json:"company_name,omitempty"`
	CIK                   string           `json:"cik,omitempty"`
	FilingDate            string           `json:"filing_date,omitempty"`
	FilingURL             string           `json:"filing_url,omitempty"`
	AccessionNumber       string           `json:"accession_number,omitempty"`
	MethodologyDocumentID string           `json:"methodology_document_id"`
	ProxyDocumentID       string           `json:"proxy_document_id"`
	DOThresholdPct        float64          `json:"do_threshold_pct"`
	Result                FloatShareResult `json:"results"`
	Warnings              []Warning        `json:"warnings,omitempty"`
	AnalyzedAt            time.Time        `json:"analyzed_at"`
}
