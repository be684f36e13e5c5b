// Package container provides dependency injection and lifecycle management
// for the expense approval engine.
package container

import (
	"context"
	"fmt"

	"github.com/garyjia/expense-approval/internal/application/dispatcher"
	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/application/service"
	"github.com/garyjia/expense-approval/internal/config"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/internal/domain/event"
	"github.com/garyjia/expense-approval/internal/infrastructure/external/ocr"
	"github.com/garyjia/expense-approval/internal/infrastructure/external/rates"
	"github.com/garyjia/expense-approval/internal/infrastructure/persistence/repository"
	"github.com/garyjia/expense-approval/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/expense-approval/pkg/database"
	"go.uber.org/zap"
)

// DatabaseBundle holds database-related components.
type DatabaseBundle struct {
	DB             *database.DB
	TransactionMgr *sqlite.DB
}

// ExternalBundle holds external collaborator adapters.
type ExternalBundle struct {
	Rates     port.RateProvider
	Extractor port.ReceiptExtractor
}

// ProvideDatabase opens the database, runs pending migrations and builds
// the transaction manager.
func ProvideDatabase(cfg *config.DatabaseConfig, logger *zap.Logger) (*DatabaseBundle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	db, err := database.New(database.Config{
		Path:            cfg.Path,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if cfg.MigrationsDir != "" {
		migrator := database.NewMigrator(db, logger)
		if err := migrator.RunMigrations(cfg.MigrationsDir); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	return &DatabaseBundle{
		DB:             db,
		TransactionMgr: sqlite.NewDB(db.DB, logger),
	}, nil
}

// ProvideRepositories creates all repositories from a database connection.
func ProvideRepositories(db *database.DB, logger *zap.Logger) (*RepositoryBundle, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	return &RepositoryBundle{
		Flow:    repository.NewFlowRepository(db.DB, logger),
		Expense: repository.NewExpenseRepository(db.DB, logger),
		Request: repository.NewRequestRepository(db.DB, logger),
		User:    repository.NewUserRepository(db.DB, logger),
	}, nil
}

// ProvideExternalClients creates the exchange rate provider and the receipt
// extractor. When OpenAI is disabled the extractor falls back to a static
// implementation so submissions without receipt data still work.
func ProvideExternalClients(ratesCfg *config.RatesConfig, openaiCfg *config.OpenAIConfig, logger *zap.Logger) (*ExternalBundle, error) {
	if ratesCfg == nil {
		return nil, fmt.Errorf("rates config is required")
	}
	if openaiCfg == nil {
		return nil, fmt.Errorf("openai config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	rateClient := rates.NewClient(rates.Config{
		BaseURL:  ratesCfg.BaseURL,
		Timeout:  ratesCfg.Timeout,
		CacheTTL: ratesCfg.CacheTTL,
	}, logger)

	var extractor port.ReceiptExtractor
	if openaiCfg.Enabled {
		extractor = ocr.NewReader(openaiCfg.APIKey, openaiCfg.Model, logger)
	} else {
		extractor = ocr.NewStaticExtractor(entity.ReceiptData{})
	}

	return &ExternalBundle{
		Rates:     rateClient,
		Extractor: extractor,
	}, nil
}

// ProvideDispatcher creates the event dispatcher.
func ProvideDispatcher(logger *zap.Logger) (dispatcher.Dispatcher, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	dispatcherLogger := &dispatcherLoggerAdapter{logger: logger}
	return dispatcher.NewDispatcher(
		dispatcher.WithLogger(dispatcherLogger),
	), nil
}

// ServiceDeps holds dependencies required for creating services.
type ServiceDeps struct {
	Repos      *RepositoryBundle
	TxManager  port.TransactionManager
	External   *ExternalBundle
	Dispatcher dispatcher.Dispatcher
	Logger     *zap.Logger
}

// ProvideServices creates all application services.
func ProvideServices(deps *ServiceDeps) (*ServiceBundle, error) {
	if deps == nil {
		return nil, fmt.Errorf("service dependencies are required")
	}
	if deps.Repos == nil {
		return nil, fmt.Errorf("repositories are required")
	}
	if deps.TxManager == nil {
		return nil, fmt.Errorf("transaction manager is required")
	}
	if deps.External == nil {
		return nil, fmt.Errorf("external clients are required")
	}
	if deps.Dispatcher == nil {
		return nil, fmt.Errorf("dispatcher is required")
	}
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	serviceLogger := &zapLoggerAdapter{logger: deps.Logger}
	resolver := service.NewApproverResolver(deps.Repos.User)

	return &ServiceBundle{
		Flow: service.NewFlowService(
			deps.Repos.Flow,
			deps.TxManager,
			serviceLogger,
		),
		Submission: service.NewSubmissionService(
			deps.Repos.Flow,
			deps.Repos.Expense,
			deps.Repos.Request,
			resolver,
			deps.External.Rates,
			deps.External.Extractor,
			deps.TxManager,
			deps.Dispatcher,
			serviceLogger,
		),
		Decision: service.NewDecisionService(
			deps.Repos.Request,
			deps.Repos.Expense,
			deps.Repos.User,
			deps.TxManager,
			deps.Dispatcher,
			serviceLogger,
		),
		Query: service.NewQueryService(
			deps.Repos.Request,
			deps.Repos.Expense,
			deps.Repos.User,
			serviceLogger,
		),
	}, nil
}

// RegisterEventHandlers subscribes the audit log handler to the lifecycle
// event stream.
func RegisterEventHandlers(disp dispatcher.Dispatcher, logger *zap.Logger) {
	handler := createAuditLogHandler(logger)

	for _, t := range []event.Type{
		event.TypeExpenseSubmitted,
		event.TypeExpenseApproved,
		event.TypeExpenseRejected,
		event.TypeRequestCreated,
		event.TypeRequestDecided,
		event.TypeRequestOverridden,
		event.TypeStepSkipped,
	} {
		disp.SubscribeNamed(t, "audit_log", handler)
	}
}

// createAuditLogHandler builds a handler that records every lifecycle event
// in the structured log.
func createAuditLogHandler(logger *zap.Logger) func(context.Context, *event.Event) error {
	return func(ctx context.Context, evt *event.Event) error {
		if evt == nil {
			return fmt.Errorf("event cannot be nil")
		}

		fields := []zap.Field{
			zap.String("event_id", evt.ID),
			zap.String("event_type", string(evt.Type)),
			zap.Int64("expense_id", evt.ExpenseID),
			zap.Int64("company_id", evt.CompanyID),
			zap.Time("timestamp", evt.Timestamp),
		}
		if evt.CorrelationID != "" {
			fields = append(fields, zap.String("correlation_id", evt.CorrelationID))
		}
		for k, v := range evt.Payload {
			fields = append(fields, zap.Any(k, v))
		}

		logger.Info("Lifecycle event", fields...)
		return nil
	}
}
