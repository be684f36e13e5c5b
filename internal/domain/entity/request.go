package entity

import "time"

// ApprovalRequest is a materialized per-step approval work item tied to one
// expense and one resolved approver. The request set for an expense is fixed
// at submission; a request transitions at most once from PENDING to a
// terminal status through the ordinary decide path. Only an administrative
// override may re-write a terminal request.
type ApprovalRequest struct {
	ID         int64      `json:"id"`
	ExpenseID  int64      `json:"expense_id"`
	ApproverID int64      `json:"approver_id"`
	StepOrder  int        `json:"step_order"`
	Status     string     `json:"status"`
	Comment    string     `json:"comment,omitempty"`
	DecidedAt  *time.Time `json:"decided_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// IsPending reports whether the request still awaits a decision.
func (r *ApprovalRequest) IsPending() bool {
	return r.Status == RequestStatusPending
}
