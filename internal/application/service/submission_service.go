package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/garyjia/expense-approval/internal/application/dispatcher"
	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/approval"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/internal/domain/event"
)

// SubmitExpenseInput is the payload for submitting an expense.
type SubmitExpenseInput struct {
	CompanyID   int64   `json:"company_id"`
	UserID      int64   `json:"user_id"`
	Description string  `json:"description"`
	Category    string  `json:"category"`
	Amount      float64 `json:"amount"`
	Currency    string  `json:"currency"`
	// CompanyCurrency is supplied by the submission collaborator that owns
	// company data; the engine only uses it to annotate the amount.
	CompanyCurrency string `json:"company_currency"`
	// ReceiptPath optionally points at a scanned receipt used to prefill
	// missing fields through the extraction collaborator.
	ReceiptPath string `json:"receipt_path,omitempty"`
}

// SubmitExpenseResult is the outcome of a submission: the stored expense and
// the approval requests materialized for it (empty when auto-approved).
type SubmitExpenseResult struct {
	Expense  *entity.Expense           `json:"expense"`
	Requests []*entity.ApprovalRequest `json:"requests"`
}

// SubmissionService materializes approval work items for newly submitted
// expenses. When the company has no flow, the flow has no steps, or no step
// resolves to an approver, the expense is finalized as approved on the spot.
type SubmissionService interface {
	SubmitExpense(ctx context.Context, input SubmitExpenseInput) (*SubmitExpenseResult, error)
}

type submissionServiceImpl struct {
	flowRepo    port.FlowRepository
	expenseRepo port.ExpenseRepository
	requestRepo port.RequestRepository
	resolver    ApproverResolver
	rates       port.RateProvider
	extractor   port.ReceiptExtractor
	txManager   port.TransactionManager
	events      dispatcher.Dispatcher
	logger      Logger
}

// NewSubmissionService creates a new SubmissionService. The rate provider and
// receipt extractor are optional collaborators; pass nil to disable them.
func NewSubmissionService(
	flowRepo port.FlowRepository,
	expenseRepo port.ExpenseRepository,
	requestRepo port.RequestRepository,
	resolver ApproverResolver,
	rates port.RateProvider,
	extractor port.ReceiptExtractor,
	txManager port.TransactionManager,
	events dispatcher.Dispatcher,
	logger Logger,
) SubmissionService {
	return &submissionServiceImpl{
		flowRepo:    flowRepo,
		expenseRepo: expenseRepo,
		requestRepo: requestRepo,
		resolver:    resolver,
		rates:       rates,
		extractor:   extractor,
		txManager:   txManager,
		events:      events,
		logger:      logger,
	}
}

func (s *submissionServiceImpl) SubmitExpense(ctx context.Context, input SubmitExpenseInput) (*SubmitExpenseResult, error) {
	if s.extractor != nil && input.ReceiptPath != "" {
		s.prefillFromReceipt(ctx, &input)
	}

	if err := validateSubmission(input); err != nil {
		return nil, err
	}

	now := time.Now()
	expense := &entity.Expense{
		Reference:               uuid.NewString(),
		CompanyID:               input.CompanyID,
		UserID:                  input.UserID,
		Description:             strings.TrimSpace(input.Description),
		Category:                input.Category,
		Amount:                  input.Amount,
		Currency:                strings.ToUpper(input.Currency),
		AmountInCompanyCurrency: s.annotateAmount(ctx, input),
		Status:                  entity.ExpenseStatusPending,
		SubmittedAt:             now,
	}

	var requests []*entity.ApprovalRequest
	var skipped []int

	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		flow, err := s.flowRepo.FirstByCompany(txCtx, input.CompanyID)
		if err != nil {
			return fmt.Errorf("look up company flow: %w", err)
		}

		type assignment struct {
			approverID int64
			stepOrder  int
		}
		var assignments []assignment
		skipped = skipped[:0]

		if flow != nil && len(flow.Steps) > 0 {
			expense.RuleType = flow.RuleType
			expense.PercentageThreshold = flow.PercentageThreshold
			expense.SpecificApproverID = flow.SpecificApproverID

			for _, step := range flow.Steps {
				approverID, ok, err := s.resolver.Resolve(txCtx, step, input.CompanyID)
				if err != nil {
					return fmt.Errorf("resolve step %d: %w", step.StepOrder, err)
				}
				if !ok {
					skipped = append(skipped, step.StepOrder)
					s.logger.Warn("Step skipped: no approver resolved",
						"flow_id", flow.ID,
						"step_order", step.StepOrder,
						"role", step.Role,
						"company_id", input.CompanyID,
					)
					continue
				}
				assignments = append(assignments, assignment{approverID: approverID, stepOrder: step.StepOrder})
			}
		}

		// No flow, no steps or nothing resolvable: the expense is approved
		// synchronously with zero requests.
		if len(assignments) == 0 {
			expense.Status = entity.ExpenseStatusApproved
			expense.DecidedAt = &now
		}

		if err := s.expenseRepo.Create(txCtx, expense); err != nil {
			return fmt.Errorf("create expense: %w", err)
		}

		requests = requests[:0]
		for _, a := range assignments {
			req := &entity.ApprovalRequest{
				ExpenseID:  expense.ID,
				ApproverID: a.approverID,
				StepOrder:  a.stepOrder,
				Status:     entity.RequestStatusPending,
			}
			if err := s.requestRepo.Create(txCtx, req); err != nil {
				return fmt.Errorf("create request for step %d: %w", a.stepOrder, err)
			}
			requests = append(requests, req)
		}
		return nil
	})
	if err != nil {
		s.logger.Error("Failed to submit expense", "error", err, "company_id", input.CompanyID, "user_id", input.UserID)
		return nil, err
	}

	s.publishSubmissionEvents(ctx, expense, requests, skipped)

	s.logger.Info("Expense submitted",
		"expense_id", expense.ID,
		"reference", expense.Reference,
		"status", expense.Status,
		"requests", len(requests),
	)
	return &SubmitExpenseResult{Expense: expense, Requests: requests}, nil
}

// prefillFromReceipt fills missing submission fields from the extraction
// collaborator. Extraction failure is logged and ignored; the caller's own
// fields always win.
func (s *submissionServiceImpl) prefillFromReceipt(ctx context.Context, input *SubmitExpenseInput) {
	data, err := s.extractor.Extract(ctx, input.ReceiptPath)
	if err != nil {
		s.logger.Warn("Receipt extraction failed", "error", err, "receipt", input.ReceiptPath)
		return
	}
	if input.Amount == 0 {
		input.Amount = data.Amount
	}
	if input.Currency == "" {
		input.Currency = data.Currency
	}
	if input.Description == "" {
		input.Description = data.Description
	}
}

// annotateAmount converts the amount into the company currency. The converted
// value is an opaque annotation; on any failure the raw amount is kept.
func (s *submissionServiceImpl) annotateAmount(ctx context.Context, input SubmitExpenseInput) float64 {
	from := strings.ToUpper(input.Currency)
	to := strings.ToUpper(input.CompanyCurrency)
	if s.rates == nil || to == "" || from == to {
		return input.Amount
	}
	converted, err := s.rates.Convert(ctx, input.Amount, from, to)
	if err != nil {
		s.logger.Warn("Currency conversion failed, keeping raw amount",
			"error", err, "from", from, "to", to)
		return input.Amount
	}
	return converted
}

func (s *submissionServiceImpl) publishSubmissionEvents(ctx context.Context, expense *entity.Expense, requests []*entity.ApprovalRequest, skipped []int) {
	if s.events == nil {
		return
	}

	evt := event.NewEvent(event.TypeExpenseSubmitted, expense.ID, expense.CompanyID, map[string]interface{}{
		"reference": expense.Reference,
		"status":    expense.Status,
	})
	s.events.DispatchAsync(ctx, evt)

	for _, order := range skipped {
		s.events.DispatchAsync(ctx, event.NewEventWithCorrelation(
			event.TypeStepSkipped, expense.ID, expense.CompanyID,
			map[string]interface{}{"step_order": order}, evt.CorrelationID))
	}
	for _, req := range requests {
		s.events.DispatchAsync(ctx, event.NewEventWithCorrelation(
			event.TypeRequestCreated, expense.ID, expense.CompanyID,
			map[string]interface{}{"request_id": req.ID, "approver_id": req.ApproverID, "step_order": req.StepOrder},
			evt.CorrelationID))
	}
	if expense.Status == entity.ExpenseStatusApproved {
		s.events.DispatchAsync(ctx, event.NewEventWithCorrelation(
			event.TypeExpenseApproved, expense.ID, expense.CompanyID,
			map[string]interface{}{"auto": true}, evt.CorrelationID))
	}
}

func validateSubmission(input SubmitExpenseInput) error {
	verr := &approval.ValidationError{}
	if input.CompanyID <= 0 {
		verr.Add("company_id", "is required")
	}
	if input.UserID <= 0 {
		verr.Add("user_id", "is required")
	}
	if input.Amount <= 0 {
		verr.Add("amount", "must be greater than zero")
	}
	if strings.TrimSpace(input.Currency) == "" {
		verr.Add("currency", "is required")
	}
	if verr.HasErrors() {
		return verr
	}
	return nil
}
