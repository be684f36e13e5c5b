package entity

import "time"

// ReceiptData holds fields extracted from a scanned receipt. Extraction is an
// external collaborator; the engine only uses the values to prefill a
// submission.
type ReceiptData struct {
	Amount      float64    `json:"amount"`
	Currency    string     `json:"currency"`
	Description string     `json:"description"`
	Vendor      string     `json:"vendor,omitempty"`
	ExpenseDate *time.Time `json:"expense_date,omitempty"`
}
