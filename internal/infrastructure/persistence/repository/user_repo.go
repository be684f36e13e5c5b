package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/internal/infrastructure/persistence/sqlite"
	"go.uber.org/zap"
)

// UserRepository implements port.UserRepository against the local read
// replica of the user directory.
type UserRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *sql.DB, logger *zap.Logger) port.UserRepository {
	return &UserRepository{
		db:     db,
		logger: logger,
	}
}

// GetByID retrieves a user by ID, nil when absent.
func (r *UserRepository) GetByID(ctx context.Context, id int64) (*entity.User, error) {
	ex := sqlite.ExecutorFrom(ctx, r.db)

	query := `
		SELECT id, company_id, email, name, role, created_at
		FROM users
		WHERE id = ?
	`

	var user entity.User
	err := ex.QueryRowContext(ctx, query, id).Scan(
		&user.ID,
		&user.CompanyID,
		&user.Email,
		&user.Name,
		&user.Role,
		&user.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get user", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}

// ListByCompanyRole returns company members holding role, earliest created
// first, so the resolver's tie-break is stable.
func (r *UserRepository) ListByCompanyRole(ctx context.Context, companyID int64, role string) ([]*entity.User, error) {
	ex := sqlite.ExecutorFrom(ctx, r.db)

	query := `
		SELECT id, company_id, email, name, role, created_at
		FROM users
		WHERE company_id = ? AND role = ?
		ORDER BY created_at ASC, id ASC
	`
	rows, err := ex.QueryContext(ctx, query, companyID, role)
	if err != nil {
		r.logger.Error("Failed to list users by role",
			zap.Int64("company_id", companyID), zap.String("role", role), zap.Error(err))
		return nil, fmt.Errorf("failed to list users by role: %w", err)
	}
	defer rows.Close()

	var users []*entity.User
	for rows.Next() {
		var user entity.User
		if err := rows.Scan(&user.ID, &user.CompanyID, &user.Email, &user.Name, &user.Role, &user.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, &user)
	}
	return users, rows.Err()
}

// Verify interface compliance
var _ port.UserRepository = (*UserRepository)(nil)
