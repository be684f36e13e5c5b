package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/internal/infrastructure/persistence/sqlite"
	"go.uber.org/zap"
)

// ExpenseRepository implements port.ExpenseRepository
type ExpenseRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewExpenseRepository creates a new expense repository
func NewExpenseRepository(db *sql.DB, logger *zap.Logger) port.ExpenseRepository {
	return &ExpenseRepository{
		db:     db,
		logger: logger,
	}
}

// Create persists a new expense.
func (r *ExpenseRepository) Create(ctx context.Context, expense *entity.Expense) error {
	ex := sqlite.ExecutorFrom(ctx, r.db)
	now := time.Now()

	query := `
		INSERT INTO expenses (
			reference, company_id, user_id, description, category,
			amount, currency, amount_in_company_currency, status,
			rule_type, percentage_threshold, specific_approver_id,
			submitted_at, decided_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	var ruleType interface{}
	if expense.RuleType != "" {
		ruleType = expense.RuleType
	}

	result, err := ex.ExecContext(ctx, query,
		expense.Reference,
		expense.CompanyID,
		expense.UserID,
		expense.Description,
		expense.Category,
		expense.Amount,
		expense.Currency,
		expense.AmountInCompanyCurrency,
		expense.Status,
		ruleType,
		expense.PercentageThreshold,
		expense.SpecificApproverID,
		expense.SubmittedAt,
		expense.DecidedAt,
		now,
		now,
	)
	if err != nil {
		r.logger.Error("Failed to create expense", zap.Error(err))
		return fmt.Errorf("failed to create expense: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	expense.ID = id
	expense.CreatedAt = now
	expense.UpdatedAt = now
	return nil
}

// GetByID retrieves an expense by ID, nil when absent.
func (r *ExpenseRepository) GetByID(ctx context.Context, id int64) (*entity.Expense, error) {
	ex := sqlite.ExecutorFrom(ctx, r.db)

	query := `
		SELECT id, reference, company_id, user_id, description, category,
			amount, currency, amount_in_company_currency, status,
			rule_type, percentage_threshold, specific_approver_id,
			submitted_at, decided_at, created_at, updated_at
		FROM expenses
		WHERE id = ?
	`

	var expense entity.Expense
	var ruleType sql.NullString
	var threshold, approver sql.NullInt64
	var decidedAt sql.NullTime

	err := ex.QueryRowContext(ctx, query, id).Scan(
		&expense.ID,
		&expense.Reference,
		&expense.CompanyID,
		&expense.UserID,
		&expense.Description,
		&expense.Category,
		&expense.Amount,
		&expense.Currency,
		&expense.AmountInCompanyCurrency,
		&expense.Status,
		&ruleType,
		&threshold,
		&approver,
		&expense.SubmittedAt,
		&decidedAt,
		&expense.CreatedAt,
		&expense.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get expense", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get expense: %w", err)
	}

	expense.RuleType = ruleType.String
	if threshold.Valid {
		t := int(threshold.Int64)
		expense.PercentageThreshold = &t
	}
	if approver.Valid {
		a := approver.Int64
		expense.SpecificApproverID = &a
	}
	if decidedAt.Valid {
		expense.DecidedAt = &decidedAt.Time
	}
	return &expense, nil
}

// TransitionStatus writes the status only while the stored status is one of
// fromStatuses, making the aggregate finalization a single atomic step.
func (r *ExpenseRepository) TransitionStatus(ctx context.Context, id int64, status string, decidedAt time.Time, fromStatuses ...string) (bool, error) {
	ex := sqlite.ExecutorFrom(ctx, r.db)

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(fromStatuses)), ", ")
	query := fmt.Sprintf(
		`UPDATE expenses SET status = ?, decided_at = ?, updated_at = ? WHERE id = ? AND status IN (%s)`,
		placeholders,
	)

	args := []interface{}{status, decidedAt, time.Now(), id}
	for _, s := range fromStatuses {
		args = append(args, s)
	}

	result, err := ex.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to transition expense status",
			zap.Int64("id", id), zap.String("status", status), zap.Error(err))
		return false, fmt.Errorf("failed to transition expense status: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return affected > 0, nil
}

// ForceStatus writes the status unconditionally (administrative override).
func (r *ExpenseRepository) ForceStatus(ctx context.Context, id int64, status string, decidedAt time.Time) error {
	ex := sqlite.ExecutorFrom(ctx, r.db)

	query := `UPDATE expenses SET status = ?, decided_at = ?, updated_at = ? WHERE id = ?`
	if _, err := ex.ExecContext(ctx, query, status, decidedAt, time.Now(), id); err != nil {
		r.logger.Error("Failed to force expense status",
			zap.Int64("id", id), zap.String("status", status), zap.Error(err))
		return fmt.Errorf("failed to force expense status: %w", err)
	}
	return nil
}

// Verify interface compliance
var _ port.ExpenseRepository = (*ExpenseRepository)(nil)
