package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/internal/infrastructure/persistence/sqlite"
	"go.uber.org/zap"
)

// FlowRepository implements port.FlowRepository
type FlowRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewFlowRepository creates a new flow repository
func NewFlowRepository(db *sql.DB, logger *zap.Logger) port.FlowRepository {
	return &FlowRepository{
		db:     db,
		logger: logger,
	}
}

// Create persists a flow and its steps.
func (r *FlowRepository) Create(ctx context.Context, flow *entity.ApprovalFlow) error {
	ex := sqlite.ExecutorFrom(ctx, r.db)
	now := time.Now()

	query := `
		INSERT INTO approval_flows (
			company_id, name, rule_type, percentage_threshold,
			specific_approver_id, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	result, err := ex.ExecContext(ctx, query,
		flow.CompanyID,
		flow.Name,
		flow.RuleType,
		flow.PercentageThreshold,
		flow.SpecificApproverID,
		now,
		now,
	)
	if err != nil {
		r.logger.Error("Failed to create flow", zap.Error(err))
		return fmt.Errorf("failed to create flow: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	flow.ID = id
	flow.CreatedAt = now
	flow.UpdatedAt = now

	if err := r.insertSteps(ctx, ex, flow); err != nil {
		return err
	}
	return nil
}

// GetByID retrieves a flow with steps ordered by step_order.
func (r *FlowRepository) GetByID(ctx context.Context, id int64) (*entity.ApprovalFlow, error) {
	query := selectFlowQuery + ` WHERE id = ?`
	return r.queryOne(ctx, query, id)
}

// FirstByCompany returns the company's first flow, or nil when none exists.
func (r *FlowRepository) FirstByCompany(ctx context.Context, companyID int64) (*entity.ApprovalFlow, error) {
	query := selectFlowQuery + ` WHERE company_id = ? ORDER BY id ASC LIMIT 1`
	return r.queryOne(ctx, query, companyID)
}

// ListByCompany retrieves every flow of a company with its steps.
func (r *FlowRepository) ListByCompany(ctx context.Context, companyID int64) ([]*entity.ApprovalFlow, error) {
	ex := sqlite.ExecutorFrom(ctx, r.db)

	query := selectFlowQuery + ` WHERE company_id = ? ORDER BY id ASC`
	rows, err := ex.QueryContext(ctx, query, companyID)
	if err != nil {
		r.logger.Error("Failed to list flows", zap.Error(err))
		return nil, fmt.Errorf("failed to list flows: %w", err)
	}
	defer rows.Close()

	var flows []*entity.ApprovalFlow
	for rows.Next() {
		flow, err := scanFlow(rows)
		if err != nil {
			return nil, err
		}
		flows = append(flows, flow)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, flow := range flows {
		if err := r.loadSteps(ctx, ex, flow); err != nil {
			return nil, err
		}
	}
	return flows, nil
}

// Update rewrites the flow row and replaces the entire step list.
func (r *FlowRepository) Update(ctx context.Context, flow *entity.ApprovalFlow) error {
	ex := sqlite.ExecutorFrom(ctx, r.db)
	now := time.Now()

	query := `
		UPDATE approval_flows
		SET name = ?, rule_type = ?, percentage_threshold = ?,
			specific_approver_id = ?, updated_at = ?
		WHERE id = ?
	`
	if _, err := ex.ExecContext(ctx, query,
		flow.Name,
		flow.RuleType,
		flow.PercentageThreshold,
		flow.SpecificApproverID,
		now,
		flow.ID,
	); err != nil {
		r.logger.Error("Failed to update flow", zap.Int64("id", flow.ID), zap.Error(err))
		return fmt.Errorf("failed to update flow: %w", err)
	}
	flow.UpdatedAt = now

	if _, err := ex.ExecContext(ctx, `DELETE FROM approval_flow_steps WHERE flow_id = ?`, flow.ID); err != nil {
		return fmt.Errorf("failed to delete flow steps: %w", err)
	}
	return r.insertSteps(ctx, ex, flow)
}

// Delete removes the flow and its steps as a unit.
func (r *FlowRepository) Delete(ctx context.Context, id int64) error {
	ex := sqlite.ExecutorFrom(ctx, r.db)

	if _, err := ex.ExecContext(ctx, `DELETE FROM approval_flow_steps WHERE flow_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete flow steps: %w", err)
	}
	if _, err := ex.ExecContext(ctx, `DELETE FROM approval_flows WHERE id = ?`, id); err != nil {
		r.logger.Error("Failed to delete flow", zap.Int64("id", id), zap.Error(err))
		return fmt.Errorf("failed to delete flow: %w", err)
	}
	return nil
}

const selectFlowQuery = `
	SELECT id, company_id, name, rule_type, percentage_threshold,
		specific_approver_id, created_at, updated_at
	FROM approval_flows
`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanFlow(row rowScanner) (*entity.ApprovalFlow, error) {
	var flow entity.ApprovalFlow
	var threshold sql.NullInt64
	var approver sql.NullInt64

	err := row.Scan(
		&flow.ID,
		&flow.CompanyID,
		&flow.Name,
		&flow.RuleType,
		&threshold,
		&approver,
		&flow.CreatedAt,
		&flow.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan flow: %w", err)
	}

	if threshold.Valid {
		t := int(threshold.Int64)
		flow.PercentageThreshold = &t
	}
	if approver.Valid {
		a := approver.Int64
		flow.SpecificApproverID = &a
	}
	return &flow, nil
}

func (r *FlowRepository) queryOne(ctx context.Context, query string, arg interface{}) (*entity.ApprovalFlow, error) {
	ex := sqlite.ExecutorFrom(ctx, r.db)

	flow, err := scanFlow(ex.QueryRowContext(ctx, query, arg))
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		r.logger.Error("Failed to get flow", zap.Error(err))
		return nil, err
	}

	if err := r.loadSteps(ctx, ex, flow); err != nil {
		return nil, err
	}
	return flow, nil
}

func (r *FlowRepository) loadSteps(ctx context.Context, ex sqlite.Executor, flow *entity.ApprovalFlow) error {
	query := `
		SELECT id, flow_id, step_order, role, specific_user_id
		FROM approval_flow_steps
		WHERE flow_id = ?
		ORDER BY step_order ASC
	`
	rows, err := ex.QueryContext(ctx, query, flow.ID)
	if err != nil {
		return fmt.Errorf("failed to load flow steps: %w", err)
	}
	defer rows.Close()

	flow.Steps = flow.Steps[:0]
	for rows.Next() {
		var step entity.ApprovalFlowStep
		var role sql.NullString
		var userID sql.NullInt64

		if err := rows.Scan(&step.ID, &step.FlowID, &step.StepOrder, &role, &userID); err != nil {
			return fmt.Errorf("failed to scan flow step: %w", err)
		}
		step.Role = role.String
		if userID.Valid {
			u := userID.Int64
			step.SpecificUserID = &u
		}
		flow.Steps = append(flow.Steps, step)
	}
	return rows.Err()
}

func (r *FlowRepository) insertSteps(ctx context.Context, ex sqlite.Executor, flow *entity.ApprovalFlow) error {
	query := `
		INSERT INTO approval_flow_steps (flow_id, step_order, role, specific_user_id)
		VALUES (?, ?, ?, ?)
	`
	for i := range flow.Steps {
		step := &flow.Steps[i]
		step.FlowID = flow.ID

		var role interface{}
		if step.Role != "" {
			role = step.Role
		}
		result, err := ex.ExecContext(ctx, query, flow.ID, step.StepOrder, role, step.SpecificUserID)
		if err != nil {
			return fmt.Errorf("failed to insert flow step: %w", err)
		}
		if id, err := result.LastInsertId(); err == nil {
			step.ID = id
		}
	}
	return nil
}

// Verify interface compliance
var _ port.FlowRepository = (*FlowRepository)(nil)
