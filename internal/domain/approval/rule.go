// Package approval holds the pure decision logic of the expense approval
// engine: the error taxonomy shared by every operation and the rule policies
// that turn a set of request statuses into an expense status.
package approval

import (
	"github.com/garyjia/expense-approval/internal/domain/entity"
)

// Rule is the aggregation rule snapshot an expense carries from submission.
type Rule struct {
	Type                string
	PercentageThreshold *int
	SpecificApproverID  *int64
}

// RulePolicy computes the aggregate expense status from the current state of
// all approval requests of one expense. Implementations must be pure: no
// stored state, no side effects, so the decision processor can evaluate them
// inside a transaction.
type RulePolicy interface {
	// Evaluate returns one of the entity.ExpenseStatus* values.
	Evaluate(requests []*entity.ApprovalRequest) string
}

// PolicyFor selects the policy for a rule snapshot. Unknown or empty rule
// types fall back to unanimous, which matches the engine's historical
// behavior before per-rule aggregation existed.
func PolicyFor(rule Rule) RulePolicy {
	switch rule.Type {
	case entity.RulePercentage:
		if rule.PercentageThreshold != nil {
			return percentagePolicy{threshold: *rule.PercentageThreshold}
		}
	case entity.RuleSpecific:
		if rule.SpecificApproverID != nil {
			return specificPolicy{approverID: *rule.SpecificApproverID}
		}
	case entity.RuleHybrid:
		if rule.PercentageThreshold != nil && rule.SpecificApproverID != nil {
			return hybridPolicy{
				percentage: percentagePolicy{threshold: *rule.PercentageThreshold},
				specific:   specificPolicy{approverID: *rule.SpecificApproverID},
			}
		}
	}
	return unanimousPolicy{}
}

// unanimousPolicy approves when every request is approved and rejects the
// moment any single request is rejected. Sibling requests of a rejected
// expense stay PENDING; nothing ever moves them through the ordinary path.
type unanimousPolicy struct{}

func (unanimousPolicy) Evaluate(requests []*entity.ApprovalRequest) string {
	pending := 0
	for _, r := range requests {
		switch r.Status {
		case entity.RequestStatusRejected:
			return entity.ExpenseStatusRejected
		case entity.RequestStatusPending:
			pending++
		}
	}
	if pending == 0 {
		return entity.ExpenseStatusApproved
	}
	return entity.ExpenseStatusPending
}

// percentagePolicy approves once the share of approved requests reaches the
// threshold, and rejects once enough requests are rejected that the threshold
// can no longer be reached.
type percentagePolicy struct {
	threshold int // percent, 1-100
}

func (p percentagePolicy) Evaluate(requests []*entity.ApprovalRequest) string {
	total := len(requests)
	if total == 0 {
		return entity.ExpenseStatusApproved
	}
	approved, rejected := 0, 0
	for _, r := range requests {
		switch r.Status {
		case entity.RequestStatusApproved:
			approved++
		case entity.RequestStatusRejected:
			rejected++
		}
	}
	if approved*100 >= p.threshold*total {
		return entity.ExpenseStatusApproved
	}
	// Even if every still-pending request were approved the threshold is out
	// of reach.
	if (total-rejected)*100 < p.threshold*total {
		return entity.ExpenseStatusRejected
	}
	return entity.ExpenseStatusPending
}

// specificPolicy lets one named approver's verdict finalize the expense. When
// no request belongs to that approver the policy degrades to unanimous so the
// expense cannot hang forever on an absent approver.
type specificPolicy struct {
	approverID int64
}

func (p specificPolicy) Evaluate(requests []*entity.ApprovalRequest) string {
	for _, r := range requests {
		if r.ApproverID != p.approverID {
			continue
		}
		switch r.Status {
		case entity.RequestStatusApproved:
			return entity.ExpenseStatusApproved
		case entity.RequestStatusRejected:
			return entity.ExpenseStatusRejected
		default:
			return entity.ExpenseStatusPending
		}
	}
	return unanimousPolicy{}.Evaluate(requests)
}

// hybridPolicy approves when either the percentage or the specific rule is
// satisfied, and rejects only once neither can still approve.
type hybridPolicy struct {
	percentage percentagePolicy
	specific   specificPolicy
}

func (p hybridPolicy) Evaluate(requests []*entity.ApprovalRequest) string {
	pct := p.percentage.Evaluate(requests)
	spc := p.specific.Evaluate(requests)

	if pct == entity.ExpenseStatusApproved || spc == entity.ExpenseStatusApproved {
		return entity.ExpenseStatusApproved
	}
	if pct == entity.ExpenseStatusRejected && spc == entity.ExpenseStatusRejected {
		return entity.ExpenseStatusRejected
	}
	return entity.ExpenseStatusPending
}
