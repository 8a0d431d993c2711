package dto

import "github.com/google/uuid"

// StatementRow is one raw line of an external statement.
type StatementRow struct {
	Date        string `json:"date"`
	Description string `json:"description"`
	Amount      string `json:"amount"`
	Reference   string `json:"reference"`
	// Line is the source file line, set by the CSV reader.
	Line int `json:"-"`
}

// RowError rejects a single statement row. Row is the file line for CSV
// imports, header included, and the 1-based array position otherwise.
type RowError struct {
	Row    int    `json:"row"`
	Reason string `json:"reason"`
}

// ImportReport summarizes an import.
type ImportReport struct {
	ReconciliationID uuid.UUID  `json:"reconciliation_id"`
	Imported         int        `json:"imported"`
	Errors           []RowError `json:"errors"`
}

// AutoMatchReport summarizes one auto-match pass.
type AutoMatchReport struct {
	ReconciliationID uuid.UUID `json:"reconciliation_id"`
	Considered       int       `json:"considered"`
	Matched          int       `json:"matched"`
	Suggested        int       `json:"suggested"`
	Unmatched        int       `json:"unmatched"`
}

// CreateReconciliation opens a reconciliation.
type CreateReconciliation struct {
	Name   string `json:"name" validate:"required,max=255"`
	Source string `json:"source" validate:"max=255"`
	UserID string `json:"-" validate:"max=255"`
}
