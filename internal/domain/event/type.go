package event

// Type identifies the type of domain event
type Type string

const (
	TypeExpenseSubmitted  Type = "expense.submitted"
	TypeExpenseApproved   Type = "expense.approved"
	TypeExpenseRejected   Type = "expense.rejected"
	TypeRequestCreated    Type = "request.created"
	TypeRequestDecided    Type = "request.decided"
	TypeRequestOverridden Type = "request.overridden"
	TypeStepSkipped       Type = "step.skipped"
)

// String returns the string representation of the event type
func (t Type) String() string {
	return string(t)
}

// IsValid checks if the event type is one of the defined constants
func (t Type) IsValid() bool {
	switch t {
	case TypeExpenseSubmitted,
		TypeExpenseApproved,
		TypeExpenseRejected,
		TypeRequestCreated,
		TypeRequestDecided,
		TypeRequestOverridden,
		TypeStepSkipped:
		return true
	}
	return false
}
