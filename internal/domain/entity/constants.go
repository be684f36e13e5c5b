package entity

// Status constants shared by Expense and ApprovalRequest
const (
	ExpenseStatusPending  = "PENDING"
	ExpenseStatusApproved = "APPROVED"
	ExpenseStatusRejected = "REJECTED"

	RequestStatusPending  = "PENDING"
	RequestStatusApproved = "APPROVED"
	RequestStatusRejected = "REJECTED"
)

// Rule type constants for ApprovalFlow
const (
	RuleUnanimous  = "UNANIMOUS"
	RulePercentage = "PERCENTAGE"
	RuleSpecific   = "SPECIFIC"
	RuleHybrid     = "HYBRID"
)

// Role constants for User
const (
	RoleAdmin    = "ADMIN"
	RoleManager  = "MANAGER"
	RoleFinance  = "FINANCE"
	RoleDirector = "DIRECTOR"
	RoleEmployee = "EMPLOYEE"
)

// Decision actions
const (
	ActionApprove = "APPROVE"
	ActionReject  = "REJECT"
)

// ValidRuleType reports whether rt is a recognized flow rule type.
func ValidRuleType(rt string) bool {
	switch rt {
	case RuleUnanimous, RulePercentage, RuleSpecific, RuleHybrid:
		return true
	}
	return false
}

// ValidStepRole reports whether role may be named by a flow step. Regular
// employees do not approve expenses.
func ValidStepRole(role string) bool {
	switch role {
	case RoleAdmin, RoleManager, RoleFinance, RoleDirector:
		return true
	}
	return false
}

// ValidAction reports whether action is a recognized decision verb.
func ValidAction(action string) bool {
	return action == ActionApprove || action == ActionReject
}
