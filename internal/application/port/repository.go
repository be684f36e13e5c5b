// Package port declares the narrow contracts the application services depend
// on: persistence repositories, the transaction boundary, and the external
// collaborators consumed by the engine.
package port

import (
	"context"
	"time"

	"github.com/garyjia/expense-approval/internal/domain/entity"
)

// FlowRepository defines persistence operations for ApprovalFlow and its
// steps. Steps are always loaded and stored together with their flow; an
// update replaces the entire step list.
type FlowRepository interface {
	Create(ctx context.Context, flow *entity.ApprovalFlow) error
	GetByID(ctx context.Context, id int64) (*entity.ApprovalFlow, error)
	// FirstByCompany returns the company's first flow with steps ordered by
	// step_order, or nil when the company has none.
	FirstByCompany(ctx context.Context, companyID int64) (*entity.ApprovalFlow, error)
	ListByCompany(ctx context.Context, companyID int64) ([]*entity.ApprovalFlow, error)
	// Update rewrites the flow row and replaces all steps (delete then
	// recreate). Step identities are not preserved.
	Update(ctx context.Context, flow *entity.ApprovalFlow) error
	// Delete removes the flow and its steps as a unit.
	Delete(ctx context.Context, id int64) error
}

// ExpenseRepository defines persistence operations for Expense. Status
// transitions are conditional writes so racing deciders cannot lose updates.
type ExpenseRepository interface {
	Create(ctx context.Context, expense *entity.Expense) error
	GetByID(ctx context.Context, id int64) (*entity.Expense, error)
	// TransitionStatus sets status and decided_at only while the stored
	// status is one of fromStatuses. It reports whether a row was written.
	TransitionStatus(ctx context.Context, id int64, status string, decidedAt time.Time, fromStatuses ...string) (bool, error)
	// ForceStatus sets status and decided_at unconditionally (override path).
	ForceStatus(ctx context.Context, id int64, status string, decidedAt time.Time) error
}

// RequestRepository defines persistence operations for ApprovalRequest.
type RequestRepository interface {
	Create(ctx context.Context, request *entity.ApprovalRequest) error
	GetByID(ctx context.Context, id int64) (*entity.ApprovalRequest, error)
	// ListByExpense returns all requests of an expense ordered by step_order,
	// then id.
	ListByExpense(ctx context.Context, expenseID int64) ([]*entity.ApprovalRequest, error)
	// Decide sets status, comment and decided_at only while the request is
	// still PENDING. It reports whether a row was written; false means the
	// request was already decided.
	Decide(ctx context.Context, id int64, status, comment string, decidedAt time.Time) (bool, error)
	// Force sets status, comment and decided_at regardless of the current
	// status (override path).
	Force(ctx context.Context, id int64, status, comment string, decidedAt time.Time) error
	// ListPendingByApprover returns the approver's pending queue, newest
	// first, plus the total count for pagination.
	ListPendingByApprover(ctx context.Context, approverID int64, limit, offset int) ([]*entity.ApprovalRequest, int, error)
	// ListByCompany returns all requests for expenses of a company,
	// optionally filtered by status, newest first, plus the total count.
	ListByCompany(ctx context.Context, companyID int64, status string, limit, offset int) ([]*entity.ApprovalRequest, int, error)
}

// UserRepository is a read-only lookup into the user directory maintained by
// an external service.
type UserRepository interface {
	GetByID(ctx context.Context, id int64) (*entity.User, error)
	// ListByCompanyRole returns company members holding role, ordered by
	// created_at then id ascending, so role resolution is deterministic.
	ListByCompanyRole(ctx context.Context, companyID int64, role string) ([]*entity.User, error)
}

// TransactionManager provides transactional boundaries for multi-repository
// operations. The callback runs with a transaction bound to its context; all
// repository calls made with that context join the same transaction.
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
