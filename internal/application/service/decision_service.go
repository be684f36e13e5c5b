package service

import (
	"context"
	"fmt"
	"time"

	"github.com/garyjia/expense-approval/internal/application/dispatcher"
	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/approval"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/internal/domain/event"
)

// Decision outcome messages returned to the caller.
const (
	MsgApproved = "Expense approved: all required approvals received"
	MsgWaiting  = "Approval recorded, waiting for remaining approvals"
	MsgRejected = "Expense rejected"

	MsgOverrideApproved = "Expense approved by administrator override"
	MsgOverrideRejected = "Expense rejected by administrator override"
)

// DecisionResult reports the expense status after a decision and a
// human-readable outcome message.
type DecisionResult struct {
	ExpenseStatus string `json:"expense_status"`
	Message       string `json:"message"`
}

// DecisionService applies approver verdicts to approval requests and
// recomputes the owning expense's aggregate status. Override is the
// administrative side channel that can re-decide terminal requests and force
// the expense status past the aggregate rule.
type DecisionService interface {
	Decide(ctx context.Context, requestID, callerID int64, action, comment string) (*DecisionResult, error)
	Override(ctx context.Context, requestID, callerID int64, action, comment string) (*DecisionResult, error)
}

type decisionServiceImpl struct {
	requestRepo port.RequestRepository
	expenseRepo port.ExpenseRepository
	userRepo    port.UserRepository
	txManager   port.TransactionManager
	events      dispatcher.Dispatcher
	logger      Logger
}

// NewDecisionService creates a new DecisionService
func NewDecisionService(
	requestRepo port.RequestRepository,
	expenseRepo port.ExpenseRepository,
	userRepo port.UserRepository,
	txManager port.TransactionManager,
	events dispatcher.Dispatcher,
	logger Logger,
) DecisionService {
	return &decisionServiceImpl{
		requestRepo: requestRepo,
		expenseRepo: expenseRepo,
		userRepo:    userRepo,
		txManager:   txManager,
		events:      events,
		logger:      logger,
	}
}

// Decide applies one approver's verdict to one request and recomputes the
// expense status from the full request set. The whole read-decide-write
// sequence runs in a single transaction so racing deciders on sibling
// requests cannot lose updates; the request transition itself is a
// conditional write that fails when the request already left PENDING.
func (s *decisionServiceImpl) Decide(ctx context.Context, requestID, callerID int64, action, comment string) (*DecisionResult, error) {
	if err := validateAction(action); err != nil {
		return nil, err
	}

	result := &DecisionResult{}
	var expense *entity.Expense

	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		request, err := s.requestRepo.GetByID(txCtx, requestID)
		if err != nil {
			return err
		}
		if request == nil {
			return approval.ErrNotFound
		}

		caller, err := s.userRepo.GetByID(txCtx, callerID)
		if err != nil {
			return err
		}
		// Only the assigned approver or an administrator may decide.
		if caller == nil || (request.ApproverID != callerID && !caller.IsAdmin()) {
			return approval.ErrForbidden
		}

		now := time.Now()
		newStatus := requestStatusFor(action)

		decided, err := s.requestRepo.Decide(txCtx, requestID, newStatus, comment, now)
		if err != nil {
			return fmt.Errorf("decide request: %w", err)
		}
		if !decided {
			return approval.ErrAlreadyDecided
		}

		expense, err = s.expenseRepo.GetByID(txCtx, request.ExpenseID)
		if err != nil {
			return err
		}
		if expense == nil {
			return approval.ErrNotFound
		}

		requests, err := s.requestRepo.ListByExpense(txCtx, request.ExpenseID)
		if err != nil {
			return fmt.Errorf("load sibling requests: %w", err)
		}

		policy := approval.PolicyFor(approval.Rule{
			Type:                expense.RuleType,
			PercentageThreshold: expense.PercentageThreshold,
			SpecificApproverID:  expense.SpecificApproverID,
		})
		outcome := policy.Evaluate(requests)

		switch outcome {
		case entity.ExpenseStatusRejected:
			// Rejection wins over a concurrently written approval, but never
			// overwrites an administrative override.
			if _, err := s.expenseRepo.TransitionStatus(txCtx, expense.ID, entity.ExpenseStatusRejected, now,
				entity.ExpenseStatusPending, entity.ExpenseStatusApproved); err != nil {
				return fmt.Errorf("finalize expense: %w", err)
			}
			expense.Status = entity.ExpenseStatusRejected
			result.Message = MsgRejected
		case entity.ExpenseStatusApproved:
			if _, err := s.expenseRepo.TransitionStatus(txCtx, expense.ID, entity.ExpenseStatusApproved, now,
				entity.ExpenseStatusPending); err != nil {
				return fmt.Errorf("finalize expense: %w", err)
			}
			expense.Status = entity.ExpenseStatusApproved
			result.Message = MsgApproved
		default:
			result.Message = MsgWaiting
		}
		result.ExpenseStatus = expense.Status
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publishDecisionEvents(ctx, expense, requestID, callerID, action, false)

	s.logger.Info("Decision applied",
		"request_id", requestID,
		"caller_id", callerID,
		"action", action,
		"expense_id", expense.ID,
		"expense_status", result.ExpenseStatus,
	)
	return result, nil
}

// Override force-sets a request's status and the owning expense's status to
// the given action, regardless of current state and without running the
// aggregate rule. This is the one path that can un-approve or un-reject an
// expense.
func (s *decisionServiceImpl) Override(ctx context.Context, requestID, callerID int64, action, comment string) (*DecisionResult, error) {
	if err := validateAction(action); err != nil {
		return nil, err
	}

	caller, err := s.userRepo.GetByID(ctx, callerID)
	if err != nil {
		return nil, err
	}
	if caller == nil || !caller.IsAdmin() {
		return nil, approval.ErrForbidden
	}

	result := &DecisionResult{}
	var expense *entity.Expense

	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		request, err := s.requestRepo.GetByID(txCtx, requestID)
		if err != nil {
			return err
		}
		if request == nil {
			return approval.ErrNotFound
		}

		expense, err = s.expenseRepo.GetByID(txCtx, request.ExpenseID)
		if err != nil {
			return err
		}
		if expense == nil {
			return approval.ErrNotFound
		}

		now := time.Now()
		newStatus := requestStatusFor(action)

		if err := s.requestRepo.Force(txCtx, requestID, newStatus, comment, now); err != nil {
			return fmt.Errorf("override request: %w", err)
		}
		if err := s.expenseRepo.ForceStatus(txCtx, expense.ID, newStatus, now); err != nil {
			return fmt.Errorf("override expense: %w", err)
		}

		expense.Status = newStatus
		result.ExpenseStatus = newStatus
		if newStatus == entity.ExpenseStatusApproved {
			result.Message = MsgOverrideApproved
		} else {
			result.Message = MsgOverrideRejected
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publishDecisionEvents(ctx, expense, requestID, callerID, action, true)

	s.logger.Info("Override applied",
		"request_id", requestID,
		"admin_id", callerID,
		"action", action,
		"expense_id", expense.ID,
		"expense_status", result.ExpenseStatus,
	)
	return result, nil
}

func (s *decisionServiceImpl) publishDecisionEvents(ctx context.Context, expense *entity.Expense, requestID, callerID int64, action string, override bool) {
	if s.events == nil || expense == nil {
		return
	}

	evtType := event.TypeRequestDecided
	if override {
		evtType = event.TypeRequestOverridden
	}
	evt := event.NewEvent(evtType, expense.ID, expense.CompanyID, map[string]interface{}{
		"request_id": requestID,
		"caller_id":  callerID,
		"action":     action,
	})
	s.events.DispatchAsync(ctx, evt)

	switch expense.Status {
	case entity.ExpenseStatusApproved:
		s.events.DispatchAsync(ctx, event.NewEventWithCorrelation(
			event.TypeExpenseApproved, expense.ID, expense.CompanyID, nil, evt.CorrelationID))
	case entity.ExpenseStatusRejected:
		s.events.DispatchAsync(ctx, event.NewEventWithCorrelation(
			event.TypeExpenseRejected, expense.ID, expense.CompanyID, nil, evt.CorrelationID))
	}
}

func requestStatusFor(action string) string {
	if action == entity.ActionApprove {
		return entity.RequestStatusApproved
	}
	return entity.RequestStatusRejected
}

func validateAction(action string) error {
	if !entity.ValidAction(action) {
		verr := &approval.ValidationError{}
		verr.Add("action", "must be APPROVE or REJECT")
		return verr
	}
	return nil
}
