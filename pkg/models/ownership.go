// Package models holds the normalized data model shared by the extraction,
// calculation and persistence layers.
package models

import (
	"fmt"
	"time"
)

// CategoryName identifies one of the fixed strategic-holder categories of the
// S&P float adjustment.
type CategoryName string

const (
	CategoryOD                 CategoryName = "od"
	CategoryFivePercentHolders CategoryName = "five_pct_holders"
	CategoryPrivateEquity      CategoryName = "private_equity"
	CategoryAssetManagersBoard CategoryName = "asset_managers_board"
	CategoryPublicCompanies    CategoryName = "public_companies"
	CategoryRestricted         CategoryName = "restricted"
	CategoryEmployeePlans      CategoryName = "employee_plans"
	CategoryFoundations        CategoryName = "foundations"
	CategorySovereignWealth    CategoryName = "sovereign_wealth"
)

// NumCategories is the size of the fixed category set.
const NumCategories = 9

// AllCategories lists the categories in output-schema order.
var AllCategories = [NumCategories]CategoryName{
	CategoryOD,
	CategoryFivePercentHolders,
	CategoryPrivateEquity,
	CategoryAssetManagersBoard,
	CategoryPublicCompanies,
	CategoryRestricted,
	CategoryEmployeePlans,
	CategoryFoundations,
	CategorySovereignWealth,
}

var categoryLabels = map[CategoryName]string{
	CategoryOD:                 "Officers, Directors, and related individuals (O+D)",
	CategoryFivePercentHolders: "Individual person with a 5% or greater stake",
	CategoryPrivateEquity:      "Private Equity, Venture Capital, and Special Equity Firms",
	CategoryAssetManagersBoard: "Asset Managers and Insurance Companies with direct board representation",
	CategoryPublicCompanies:    "Publicly Traded Company",
	CategoryRestricted:         "Restricted",
	CategoryEmployeePlans:      "Employee Plans",
	CategoryFoundations:        "Foundations, Government Entities, and Endowments",
	CategorySovereignWealth:    "Sovereign Wealth Funds",
}

// Label returns the human-readable category label used in the output schema.
func (c CategoryName) Label() string {
	if l, ok := categoryLabels[c]; ok {
		return l
	}
	return string(c)
}

// ResultKey returns the key this category's share count is reported under.
func (c CategoryName) ResultKey() string {
	return c.Label() + " Shares"
}

// Index returns the schema position of c, or -1 for an unknown category.
func (c CategoryName) Index() int {
	for i, cat := range AllCategories {
		if cat == c {
			return i
		}
	}
	return -1
}

// Valid reports whether c belongs to the fixed category set.
func (c CategoryName) Valid() bool {
	return c.Index() >= 0
}

// ParseCategoryName accepts a canonical category identifier.
func ParseCategoryName(s string) (CategoryName, error) {
	c := CategoryName(s)
	if !c.Valid() {
		return "", fmt.Errorf("unknown category %q", s)
	}
	return c, nil
}

// OwnershipRecord is the normalized ownership breakdown extracted from one
// proxy document. Every category is present; counts are not guaranteed to be
// consistent with the total because they come from raw extraction.
type OwnershipRecord struct {
	TotalSharesOutstanding int64                  `json:"total_shares_outstanding"`
	CategoryShares         map[CategoryName]int64 `json:"category_shares"`
	SourceDocumentID       string                 `json:"source_document_id"`
	FilingDate             *time.Time             `json:"filing_date,omitempty"`
	Warnings               []Warning              `json:"warnings,omitempty"`
}

// NewOwnershipRecord builds a record with every category zero-filled and the
// supplied counts copied in.
func NewOwnershipRecord(docID string, total int64, shares map[CategoryName]int64) OwnershipRecord {
	rec := OwnershipRecord{
		TotalSharesOutstanding: total,
		CategoryShares:         make(map[CategoryName]int64, NumCategories),
		SourceDocumentID:       docID,
	}
	for _, c := range AllCategories {
		rec.CategoryShares[c] = shares[c]
	}
	return rec
}

// Shares returns the count for a category, zero if absent.
func (r OwnershipRecord) Shares(c CategoryName) int64 {
	return r.CategoryShares[c]
}

// MethodologyRules is the subset of the S&P float methodology the calculator
// depends on, derived once per methodology document.
type MethodologyRules struct {
	DOThresholdPct      float64                 `json:"do_threshold_pct"`
	CategoryDefinitions map[CategoryName]string `json:"category_definitions"`
	SourceDocumentID    string                  `json:"source_document_id"`
	ThresholdDefaulted  bool                    `json:"threshold_defaulted"`
	RuleText            string                  `json:"rule_text,omitempty"`
	Warnings            []Warning               `json:"warnings,omitempty"`
}

// NewMethodologyRules validates the threshold and copies the definitions.
func NewMethodologyRules(docID string, thresholdPct float64, defs map[CategoryName]string) (MethodologyRules, error) {
	if !(thresholdPct > 0 && thresholdPct <= 100) {
		return MethodologyRules{}, fmt.Errorf("D&O threshold %.4f outside (0, 100]", thresholdPct)
	}
	copied := make(map[CategoryName]string, len(defs))
	for k, v := range defs {
		copied[k] = v
	}
	return MethodologyRules{
		DOThresholdPct:      thresholdPct,
		CategoryDefinitions: copied,
		SourceDocumentID:    docID,
	}, nil
}
