package entity

import "time"

// ApprovalFlow is a company-scoped template describing how a submitted
// expense should be approved. The rule fields drive aggregation; the steps
// name who has to approve.
type ApprovalFlow struct {
	ID                  int64              `json:"id"`
	CompanyID           int64              `json:"company_id"`
	Name                string             `json:"name"`
	RuleType            string             `json:"rule_type"`
	PercentageThreshold *int               `json:"percentage_threshold,omitempty"`
	SpecificApproverID  *int64             `json:"specific_approver_id,omitempty"`
	Steps               []ApprovalFlowStep `json:"steps"`
	CreatedAt           time.Time          `json:"created_at"`
	UpdatedAt           time.Time          `json:"updated_at"`
}

// ApprovalFlowStep is one position in a flow. Exactly one of Role or
// SpecificUserID is expected to be set. StepOrder is unique within a flow and
// used for display/history ordering only; it is not a sequencing gate.
type ApprovalFlowStep struct {
	ID             int64  `json:"id"`
	FlowID         int64  `json:"flow_id"`
	StepOrder      int    `json:"step_order"`
	Role           string `json:"role,omitempty"`
	SpecificUserID *int64 `json:"specific_user_id,omitempty"`
}
