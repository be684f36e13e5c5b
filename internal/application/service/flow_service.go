package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/approval"
	"github.com/garyjia/expense-approval/internal/domain/entity"
)

// StepInput describes one step of a flow being created or updated.
type StepInput struct {
	StepOrder      int    `json:"step_order"`
	Role           string `json:"role,omitempty"`
	SpecificUserID *int64 `json:"specific_user_id,omitempty"`
}

// FlowInput is the payload for creating or updating an approval flow.
type FlowInput struct {
	CompanyID           int64       `json:"company_id"`
	Name                string      `json:"name"`
	RuleType            string      `json:"rule_type"`
	PercentageThreshold *int        `json:"percentage_threshold,omitempty"`
	SpecificApproverID  *int64      `json:"specific_approver_id,omitempty"`
	Steps               []StepInput `json:"steps"`
}

// FlowService manages approval flow definitions.
type FlowService interface {
	CreateFlow(ctx context.Context, input FlowInput) (*entity.ApprovalFlow, error)
	GetFlow(ctx context.Context, id int64) (*entity.ApprovalFlow, error)
	ListCompanyFlows(ctx context.Context, companyID int64) ([]*entity.ApprovalFlow, error)
	// UpdateFlow replaces the flow definition wholesale, including the entire
	// step list. Step identities are not preserved across an update.
	UpdateFlow(ctx context.Context, id int64, input FlowInput) (*entity.ApprovalFlow, error)
	DeleteFlow(ctx context.Context, id int64) error
}

type flowServiceImpl struct {
	flowRepo  port.FlowRepository
	txManager port.TransactionManager
	logger    Logger
}

// NewFlowService creates a new FlowService
func NewFlowService(flowRepo port.FlowRepository, txManager port.TransactionManager, logger Logger) FlowService {
	return &flowServiceImpl{
		flowRepo:  flowRepo,
		txManager: txManager,
		logger:    logger,
	}
}

// CreateFlow validates and persists a new approval flow with its steps.
func (s *flowServiceImpl) CreateFlow(ctx context.Context, input FlowInput) (*entity.ApprovalFlow, error) {
	if err := validateFlowInput(input); err != nil {
		return nil, err
	}

	flow := flowFromInput(input)

	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := s.flowRepo.Create(txCtx, flow); err != nil {
			return fmt.Errorf("create flow: %w", err)
		}
		return nil
	})
	if err != nil {
		s.logger.Error("Failed to create flow", "error", err, "company_id", input.CompanyID)
		return nil, err
	}

	s.logger.Info("Flow created",
		"flow_id", flow.ID,
		"company_id", flow.CompanyID,
		"rule_type", flow.RuleType,
		"steps", len(flow.Steps),
	)
	return flow, nil
}

// GetFlow retrieves a flow with its steps ordered by step_order.
func (s *flowServiceImpl) GetFlow(ctx context.Context, id int64) (*entity.ApprovalFlow, error) {
	flow, err := s.flowRepo.GetByID(ctx, id)
	if err != nil {
		s.logger.Error("Failed to get flow", "error", err, "flow_id", id)
		return nil, err
	}
	if flow == nil {
		return nil, approval.ErrNotFound
	}
	return flow, nil
}

// ListCompanyFlows retrieves every flow belonging to a company.
func (s *flowServiceImpl) ListCompanyFlows(ctx context.Context, companyID int64) ([]*entity.ApprovalFlow, error) {
	flows, err := s.flowRepo.ListByCompany(ctx, companyID)
	if err != nil {
		s.logger.Error("Failed to list flows", "error", err, "company_id", companyID)
		return nil, err
	}
	return flows, nil
}

// UpdateFlow replaces the stored definition with the validated input.
func (s *flowServiceImpl) UpdateFlow(ctx context.Context, id int64, input FlowInput) (*entity.ApprovalFlow, error) {
	if err := validateFlowInput(input); err != nil {
		return nil, err
	}

	existing, err := s.flowRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, approval.ErrNotFound
	}

	flow := flowFromInput(input)
	flow.ID = id
	flow.CompanyID = existing.CompanyID

	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := s.flowRepo.Update(txCtx, flow); err != nil {
			return fmt.Errorf("update flow: %w", err)
		}
		return nil
	})
	if err != nil {
		s.logger.Error("Failed to update flow", "error", err, "flow_id", id)
		return nil, err
	}

	s.logger.Info("Flow updated", "flow_id", id, "steps", len(flow.Steps))
	return flow, nil
}

// DeleteFlow removes the flow and all its steps as a unit.
func (s *flowServiceImpl) DeleteFlow(ctx context.Context, id int64) error {
	existing, err := s.flowRepo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if existing == nil {
		return approval.ErrNotFound
	}

	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		return s.flowRepo.Delete(txCtx, id)
	})
	if err != nil {
		s.logger.Error("Failed to delete flow", "error", err, "flow_id", id)
		return err
	}

	s.logger.Info("Flow deleted", "flow_id", id)
	return nil
}

func flowFromInput(input FlowInput) *entity.ApprovalFlow {
	flow := &entity.ApprovalFlow{
		CompanyID:           input.CompanyID,
		Name:                strings.TrimSpace(input.Name),
		RuleType:            input.RuleType,
		PercentageThreshold: input.PercentageThreshold,
		SpecificApproverID:  input.SpecificApproverID,
	}
	for _, st := range input.Steps {
		flow.Steps = append(flow.Steps, entity.ApprovalFlowStep{
			StepOrder:      st.StepOrder,
			Role:           st.Role,
			SpecificUserID: st.SpecificUserID,
		})
	}
	return flow
}

// validateFlowInput enforces the flow definition rules: a usable name, a
// recognized rule type with its supporting fields, and a non-empty step list
// where every step names a resolvable approver role or user.
func validateFlowInput(input FlowInput) error {
	verr := &approval.ValidationError{}

	if input.CompanyID <= 0 {
		verr.Add("company_id", "is required")
	}
	if len(strings.TrimSpace(input.Name)) < 2 {
		verr.Add("name", "must be at least 2 characters")
	}
	if !entity.ValidRuleType(input.RuleType) {
		verr.Add("rule_type", "must be one of UNANIMOUS, PERCENTAGE, SPECIFIC, HYBRID")
	}

	switch input.RuleType {
	case entity.RulePercentage:
		if input.PercentageThreshold == nil {
			verr.Add("percentage_threshold", "is required for PERCENTAGE rule")
		}
	case entity.RuleSpecific:
		if input.SpecificApproverID == nil {
			verr.Add("specific_approver_id", "is required for SPECIFIC rule")
		}
	}
	if input.PercentageThreshold != nil {
		if t := *input.PercentageThreshold; t < 1 || t > 100 {
			verr.Add("percentage_threshold", "must be between 1 and 100")
		}
	}

	if len(input.Steps) == 0 {
		verr.Add("steps", "at least one step is required")
	}

	seenOrders := make(map[int]bool, len(input.Steps))
	for i, st := range input.Steps {
		field := fmt.Sprintf("steps[%d]", i)
		if st.StepOrder <= 0 {
			verr.Add(field+".step_order", "must be a positive integer")
		} else if seenOrders[st.StepOrder] {
			verr.Add(field+".step_order", "must be unique within the flow")
		}
		seenOrders[st.StepOrder] = true

		if st.Role == "" && st.SpecificUserID == nil {
			verr.Add(field, "must name a role or a specific user")
		}
		if st.Role != "" && !entity.ValidStepRole(st.Role) {
			verr.Add(field+".role", "is not a recognized approver role")
		}
	}

	if verr.HasErrors() {
		return verr
	}
	return nil
}
