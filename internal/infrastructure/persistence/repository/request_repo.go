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

// RequestRepository implements port.RequestRepository
type RequestRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewRequestRepository creates a new approval request repository
func NewRequestRepository(db *sql.DB, logger *zap.Logger) port.RequestRepository {
	return &RequestRepository{
		db:     db,
		logger: logger,
	}
}

const selectRequestColumns = `
	id, expense_id, approver_id, step_order, status, comment,
	decided_at, created_at, updated_at
`

// Create persists a new approval request.
func (r *RequestRepository) Create(ctx context.Context, request *entity.ApprovalRequest) error {
	ex := sqlite.ExecutorFrom(ctx, r.db)
	now := time.Now()

	query := `
		INSERT INTO approval_requests (
			expense_id, approver_id, step_order, status, comment,
			decided_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	result, err := ex.ExecContext(ctx, query,
		request.ExpenseID,
		request.ApproverID,
		request.StepOrder,
		request.Status,
		request.Comment,
		request.DecidedAt,
		now,
		now,
	)
	if err != nil {
		r.logger.Error("Failed to create request", zap.Error(err))
		return fmt.Errorf("failed to create request: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	request.ID = id
	request.CreatedAt = now
	request.UpdatedAt = now
	return nil
}

// GetByID retrieves a request by ID, nil when absent.
func (r *RequestRepository) GetByID(ctx context.Context, id int64) (*entity.ApprovalRequest, error) {
	ex := sqlite.ExecutorFrom(ctx, r.db)

	query := `SELECT ` + selectRequestColumns + ` FROM approval_requests WHERE id = ?`

	request, err := scanRequest(ex.QueryRowContext(ctx, query, id))
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		r.logger.Error("Failed to get request", zap.Int64("id", id), zap.Error(err))
		return nil, err
	}
	return request, nil
}

// ListByExpense returns all requests of an expense ordered by step_order.
func (r *RequestRepository) ListByExpense(ctx context.Context, expenseID int64) ([]*entity.ApprovalRequest, error) {
	ex := sqlite.ExecutorFrom(ctx, r.db)

	query := `
		SELECT ` + selectRequestColumns + `
		FROM approval_requests
		WHERE expense_id = ?
		ORDER BY step_order ASC, id ASC
	`
	rows, err := ex.QueryContext(ctx, query, expenseID)
	if err != nil {
		r.logger.Error("Failed to list requests", zap.Int64("expense_id", expenseID), zap.Error(err))
		return nil, fmt.Errorf("failed to list requests: %w", err)
	}
	defer rows.Close()

	return collectRequests(rows)
}

// Decide atomically moves a PENDING request to a terminal status. A false
// return means the request had already been decided.
func (r *RequestRepository) Decide(ctx context.Context, id int64, status, comment string, decidedAt time.Time) (bool, error) {
	ex := sqlite.ExecutorFrom(ctx, r.db)

	query := `
		UPDATE approval_requests
		SET status = ?, comment = ?, decided_at = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`
	result, err := ex.ExecContext(ctx, query, status, comment, decidedAt, time.Now(), id, entity.RequestStatusPending)
	if err != nil {
		r.logger.Error("Failed to decide request", zap.Int64("id", id), zap.Error(err))
		return false, fmt.Errorf("failed to decide request: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return affected > 0, nil
}

// Force rewrites the request's status regardless of its current state
// (administrative override).
func (r *RequestRepository) Force(ctx context.Context, id int64, status, comment string, decidedAt time.Time) error {
	ex := sqlite.ExecutorFrom(ctx, r.db)

	query := `
		UPDATE approval_requests
		SET status = ?, comment = ?, decided_at = ?, updated_at = ?
		WHERE id = ?
	`
	if _, err := ex.ExecContext(ctx, query, status, comment, decidedAt, time.Now(), id); err != nil {
		r.logger.Error("Failed to force request status", zap.Int64("id", id), zap.Error(err))
		return fmt.Errorf("failed to force request status: %w", err)
	}
	return nil
}

// ListPendingByApprover returns the approver's pending queue, newest first.
func (r *RequestRepository) ListPendingByApprover(ctx context.Context, approverID int64, limit, offset int) ([]*entity.ApprovalRequest, int, error) {
	ex := sqlite.ExecutorFrom(ctx, r.db)

	var total int
	countQuery := `SELECT COUNT(*) FROM approval_requests WHERE approver_id = ? AND status = ?`
	if err := ex.QueryRowContext(ctx, countQuery, approverID, entity.RequestStatusPending).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count pending requests: %w", err)
	}

	query := `
		SELECT ` + selectRequestColumns + `
		FROM approval_requests
		WHERE approver_id = ? AND status = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?
	`
	rows, err := ex.QueryContext(ctx, query, approverID, entity.RequestStatusPending, limit, offset)
	if err != nil {
		r.logger.Error("Failed to list pending requests", zap.Int64("approver_id", approverID), zap.Error(err))
		return nil, 0, fmt.Errorf("failed to list pending requests: %w", err)
	}
	defer rows.Close()

	requests, err := collectRequests(rows)
	if err != nil {
		return nil, 0, err
	}
	return requests, total, nil
}

// ListByCompany returns all requests for expenses of a company, optionally
// filtered by status, newest first.
func (r *RequestRepository) ListByCompany(ctx context.Context, companyID int64, status string, limit, offset int) ([]*entity.ApprovalRequest, int, error) {
	ex := sqlite.ExecutorFrom(ctx, r.db)

	where := `WHERE e.company_id = ?`
	countArgs := []interface{}{companyID}
	if status != "" {
		where += ` AND ar.status = ?`
		countArgs = append(countArgs, status)
	}

	var total int
	countQuery := `
		SELECT COUNT(*)
		FROM approval_requests ar
		JOIN expenses e ON e.id = ar.expense_id
	` + where
	if err := ex.QueryRowContext(ctx, countQuery, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count company requests: %w", err)
	}

	query := `
		SELECT ar.id, ar.expense_id, ar.approver_id, ar.step_order, ar.status,
			ar.comment, ar.decided_at, ar.created_at, ar.updated_at
		FROM approval_requests ar
		JOIN expenses e ON e.id = ar.expense_id
	` + where + `
		ORDER BY ar.created_at DESC, ar.id DESC
		LIMIT ? OFFSET ?
	`
	args := append(countArgs, limit, offset)
	rows, err := ex.QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list company requests", zap.Int64("company_id", companyID), zap.Error(err))
		return nil, 0, fmt.Errorf("failed to list company requests: %w", err)
	}
	defer rows.Close()

	requests, err := collectRequests(rows)
	if err != nil {
		return nil, 0, err
	}
	return requests, total, nil
}

func scanRequest(row rowScanner) (*entity.ApprovalRequest, error) {
	var request entity.ApprovalRequest
	var decidedAt sql.NullTime

	err := row.Scan(
		&request.ID,
		&request.ExpenseID,
		&request.ApproverID,
		&request.StepOrder,
		&request.Status,
		&request.Comment,
		&decidedAt,
		&request.CreatedAt,
		&request.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan request: %w", err)
	}
	if decidedAt.Valid {
		request.DecidedAt = &decidedAt.Time
	}
	return &request, nil
}

func collectRequests(rows *sql.Rows) ([]*entity.ApprovalRequest, error) {
	var requests []*entity.ApprovalRequest
	for rows.Next() {
		request, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		requests = append(requests, request)
	}
	return requests, rows.Err()
}

// Verify interface compliance
var _ port.RequestRepository = (*RequestRepository)(nil)
