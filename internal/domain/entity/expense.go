package entity

import "time"

// Expense represents a submitted monetary claim routed through an approval
// flow. Monetary fields are inputs to the engine; the engine only mutates
// Status.
type Expense struct {
	ID          int64  `json:"id"`
	Reference   string `json:"reference"`
	CompanyID   int64  `json:"company_id"`
	UserID      int64  `json:"user_id"`
	Description string `json:"description"`
	Category    string `json:"category"`

	Amount                  float64 `json:"amount"`
	Currency                string  `json:"currency"`
	AmountInCompanyCurrency float64 `json:"amount_in_company_currency"`

	Status string `json:"status"`

	// Rule snapshot copied from the company flow at submission time so that
	// later flow edits never change an in-flight expense's aggregation rule.
	// An empty RuleType means no flow existed and the expense auto-approved.
	RuleType            string `json:"rule_type,omitempty"`
	PercentageThreshold *int   `json:"percentage_threshold,omitempty"`
	SpecificApproverID  *int64 `json:"specific_approver_id,omitempty"`

	SubmittedAt time.Time  `json:"submitted_at"`
	DecidedAt   *time.Time `json:"decided_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}
