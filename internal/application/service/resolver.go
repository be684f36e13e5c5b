package service

import (
	"context"
	"fmt"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/entity"
)

// ApproverResolver maps a flow step to a concrete approver within a company.
// A step that resolves to nobody is skipped by the request generator, so the
// second return value distinguishes "nobody" from a lookup failure.
type ApproverResolver interface {
	Resolve(ctx context.Context, step entity.ApprovalFlowStep, companyID int64) (int64, bool, error)
}

// roleResolver resolves role steps to the earliest-created company member
// holding the role, which keeps resolution deterministic when several members
// share it. Steps naming a specific user resolve to that user directly; the
// flow author is responsible for the user actually belonging to the company.
type roleResolver struct {
	users port.UserRepository
}

// NewApproverResolver creates the default resolver with the
// earliest-member-wins tie-break.
func NewApproverResolver(users port.UserRepository) ApproverResolver {
	return &roleResolver{users: users}
}

func (r *roleResolver) Resolve(ctx context.Context, step entity.ApprovalFlowStep, companyID int64) (int64, bool, error) {
	if step.SpecificUserID != nil {
		return *step.SpecificUserID, true, nil
	}
	if step.Role == "" {
		return 0, false, nil
	}

	members, err := r.users.ListByCompanyRole(ctx, companyID, step.Role)
	if err != nil {
		return 0, false, fmt.Errorf("resolve role %s: %w", step.Role, err)
	}
	if len(members) == 0 {
		return 0, false, nil
	}
	return members[0].ID, true, nil
}
