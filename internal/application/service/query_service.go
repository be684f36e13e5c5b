package service

import (
	"context"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/approval"
	"github.com/garyjia/expense-approval/internal/domain/entity"
)

// Pagination describes the page window of a list response.
type Pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

// RequestPage is one page of approval requests.
type RequestPage struct {
	Requests   []*entity.ApprovalRequest `json:"requests"`
	Pagination Pagination                `json:"pagination"`
}

// HistoryEntry is one request of an expense's decision history enriched with
// the approver's identity.
type HistoryEntry struct {
	Request      *entity.ApprovalRequest `json:"request"`
	ApproverName string                  `json:"approver_name,omitempty"`
	ApproverRole string                  `json:"approver_role,omitempty"`
}

// QueryService exposes the read-only projections of the engine: an approver's
// pending queue, the full per-expense decision history, and the company-wide
// approvals feed.
type QueryService interface {
	ListPending(ctx context.Context, callerID int64, page, limit int) (*RequestPage, error)
	GetHistory(ctx context.Context, expenseID, callerID int64) ([]*HistoryEntry, error)
	ListCompanyApprovals(ctx context.Context, companyID, callerID int64, statusFilter string, page, limit int) (*RequestPage, error)
}

type queryServiceImpl struct {
	requestRepo port.RequestRepository
	expenseRepo port.ExpenseRepository
	userRepo    port.UserRepository
	logger      Logger
}

// NewQueryService creates a new QueryService
func NewQueryService(
	requestRepo port.RequestRepository,
	expenseRepo port.ExpenseRepository,
	userRepo port.UserRepository,
	logger Logger,
) QueryService {
	return &queryServiceImpl{
		requestRepo: requestRepo,
		expenseRepo: expenseRepo,
		userRepo:    userRepo,
		logger:      logger,
	}
}

// ListPending returns the caller's pending work items, newest first.
func (s *queryServiceImpl) ListPending(ctx context.Context, callerID int64, page, limit int) (*RequestPage, error) {
	page, limit = normalizePage(page, limit)

	requests, total, err := s.requestRepo.ListPendingByApprover(ctx, callerID, limit, (page-1)*limit)
	if err != nil {
		s.logger.Error("Failed to list pending requests", "error", err, "approver_id", callerID)
		return nil, err
	}
	return &RequestPage{
		Requests:   requests,
		Pagination: paginate(page, limit, total),
	}, nil
}

// GetHistory returns every request of an expense ordered by step, visible to
// the expense owner and to managers/administrators of the same company.
func (s *queryServiceImpl) GetHistory(ctx context.Context, expenseID, callerID int64) ([]*HistoryEntry, error) {
	expense, err := s.expenseRepo.GetByID(ctx, expenseID)
	if err != nil {
		return nil, err
	}
	if expense == nil {
		return nil, approval.ErrNotFound
	}

	if err := s.authorizeHistory(ctx, expense, callerID); err != nil {
		return nil, err
	}

	requests, err := s.requestRepo.ListByExpense(ctx, expenseID)
	if err != nil {
		s.logger.Error("Failed to load history", "error", err, "expense_id", expenseID)
		return nil, err
	}

	entries := make([]*HistoryEntry, 0, len(requests))
	for _, req := range requests {
		entry := &HistoryEntry{Request: req}
		if approver, err := s.userRepo.GetByID(ctx, req.ApproverID); err == nil && approver != nil {
			entry.ApproverName = approver.Name
			entry.ApproverRole = approver.Role
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// ListCompanyApprovals returns the company-wide feed, administrator only.
func (s *queryServiceImpl) ListCompanyApprovals(ctx context.Context, companyID, callerID int64, statusFilter string, page, limit int) (*RequestPage, error) {
	if err := validateStatusFilter(statusFilter); err != nil {
		return nil, err
	}

	caller, err := s.userRepo.GetByID(ctx, callerID)
	if err != nil {
		return nil, err
	}
	if caller == nil || !caller.IsAdmin() || caller.CompanyID != companyID {
		return nil, approval.ErrForbidden
	}

	page, limit = normalizePage(page, limit)

	requests, total, err := s.requestRepo.ListByCompany(ctx, companyID, statusFilter, limit, (page-1)*limit)
	if err != nil {
		s.logger.Error("Failed to list company approvals", "error", err, "company_id", companyID)
		return nil, err
	}
	return &RequestPage{
		Requests:   requests,
		Pagination: paginate(page, limit, total),
	}, nil
}

func (s *queryServiceImpl) authorizeHistory(ctx context.Context, expense *entity.Expense, callerID int64) error {
	if expense.UserID == callerID {
		return nil
	}
	caller, err := s.userRepo.GetByID(ctx, callerID)
	if err != nil {
		return err
	}
	if caller == nil || caller.CompanyID != expense.CompanyID {
		return approval.ErrForbidden
	}
	if caller.Role != entity.RoleManager && caller.Role != entity.RoleAdmin {
		return approval.ErrForbidden
	}
	return nil
}

func validateStatusFilter(status string) error {
	switch status {
	case "", entity.RequestStatusPending, entity.RequestStatusApproved, entity.RequestStatusRejected:
		return nil
	}
	verr := &approval.ValidationError{}
	verr.Add("status", "must be PENDING, APPROVED or REJECTED")
	return verr
}

func normalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return page, limit
}

func paginate(page, limit, total int) Pagination {
	totalPages := total / limit
	if total%limit != 0 {
		totalPages++
	}
	return Pagination{Page: page, Limit: limit, Total: total, TotalPages: totalPages}
}
