package models

// WarningCode categorizes non-fatal issues by subsystem.
// W1xx = ownership mapping, W2xx = methodology.
type WarningCode string

const (
	WarnCategoryMapping  WarningCode = "W100" // free-form label not in the synonym table, dropped
	WarnMissingCategory  WarningCode = "W101" // category absent from the source, zero-filled
	WarnMissingThreshold WarningCode = "W200" // D&O threshold not stated, fallback applied
)

// Warning represents a non-fatal issue encountered during extraction.
type Warning struct {
	Code    WarningCode `json:"code"`
	Message string      `json:"message"`
}

// HasWarning reports whether ws contains a warning with the given code.
func HasWarning(ws []Warning, code WarningCode) bool {
	for _, w := range ws {
		if w.Code == code {
			return true
		}
	}
	return false
}
