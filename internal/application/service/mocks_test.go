package service

import (
	"context"
	"sync"
	"time"

	"github.com/garyjia/expense-approval/internal/application/dispatcher"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/internal/domain/event"
)

// Mock repositories and collaborators shared by the service tests.

type mockFlowRepo struct {
	createFunc         func(ctx context.Context, flow *entity.ApprovalFlow) error
	getByIDFunc        func(ctx context.Context, id int64) (*entity.ApprovalFlow, error)
	firstByCompanyFunc func(ctx context.Context, companyID int64) (*entity.ApprovalFlow, error)
	listByCompanyFunc  func(ctx context.Context, companyID int64) ([]*entity.ApprovalFlow, error)
	updateFunc         func(ctx context.Context, flow *entity.ApprovalFlow) error
	deleteFunc         func(ctx context.Context, id int64) error
}

func (m *mockFlowRepo) Create(ctx context.Context, flow *entity.ApprovalFlow) error {
	if m.createFunc != nil {
		return m.createFunc(ctx, flow)
	}
	flow.ID = 1
	return nil
}

func (m *mockFlowRepo) GetByID(ctx context.Context, id int64) (*entity.ApprovalFlow, error) {
	if m.getByIDFunc != nil {
		return m.getByIDFunc(ctx, id)
	}
	return nil, nil
}

func (m *mockFlowRepo) FirstByCompany(ctx context.Context, companyID int64) (*entity.ApprovalFlow, error) {
	if m.firstByCompanyFunc != nil {
		return m.firstByCompanyFunc(ctx, companyID)
	}
	return nil, nil
}

func (m *mockFlowRepo) ListByCompany(ctx context.Context, companyID int64) ([]*entity.ApprovalFlow, error) {
	if m.listByCompanyFunc != nil {
		return m.listByCompanyFunc(ctx, companyID)
	}
	return []*entity.ApprovalFlow{}, nil
}

func (m *mockFlowRepo) Update(ctx context.Context, flow *entity.ApprovalFlow) error {
	if m.updateFunc != nil {
		return m.updateFunc(ctx, flow)
	}
	return nil
}

func (m *mockFlowRepo) Delete(ctx context.Context, id int64) error {
	if m.deleteFunc != nil {
		return m.deleteFunc(ctx, id)
	}
	return nil
}

type mockExpenseRepo struct {
	mu sync.Mutex

	createFunc           func(ctx context.Context, expense *entity.Expense) error
	getByIDFunc          func(ctx context.Context, id int64) (*entity.Expense, error)
	transitionStatusFunc func(ctx context.Context, id int64, status string, decidedAt time.Time, fromStatuses ...string) (bool, error)
	forceStatusFunc      func(ctx context.Context, id int64, status string, decidedAt time.Time) error

	transitions []string
	forced      []string
}

func (m *mockExpenseRepo) Create(ctx context.Context, expense *entity.Expense) error {
	if m.createFunc != nil {
		return m.createFunc(ctx, expense)
	}
	expense.ID = 1
	return nil
}

func (m *mockExpenseRepo) GetByID(ctx context.Context, id int64) (*entity.Expense, error) {
	if m.getByIDFunc != nil {
		return m.getByIDFunc(ctx, id)
	}
	return nil, nil
}

func (m *mockExpenseRepo) TransitionStatus(ctx context.Context, id int64, status string, decidedAt time.Time, fromStatuses ...string) (bool, error) {
	m.mu.Lock()
	m.transitions = append(m.transitions, status)
	m.mu.Unlock()
	if m.transitionStatusFunc != nil {
		return m.transitionStatusFunc(ctx, id, status, decidedAt, fromStatuses...)
	}
	return true, nil
}

func (m *mockExpenseRepo) ForceStatus(ctx context.Context, id int64, status string, decidedAt time.Time) error {
	m.mu.Lock()
	m.forced = append(m.forced, status)
	m.mu.Unlock()
	if m.forceStatusFunc != nil {
		return m.forceStatusFunc(ctx, id, status, decidedAt)
	}
	return nil
}

type mockRequestRepo struct {
	mu sync.Mutex

	createFunc                func(ctx context.Context, request *entity.ApprovalRequest) error
	getByIDFunc               func(ctx context.Context, id int64) (*entity.ApprovalRequest, error)
	listByExpenseFunc         func(ctx context.Context, expenseID int64) ([]*entity.ApprovalRequest, error)
	decideFunc                func(ctx context.Context, id int64, status, comment string, decidedAt time.Time) (bool, error)
	forceFunc                 func(ctx context.Context, id int64, status, comment string, decidedAt time.Time) error
	listPendingByApproverFunc func(ctx context.Context, approverID int64, limit, offset int) ([]*entity.ApprovalRequest, int, error)
	listByCompanyFunc         func(ctx context.Context, companyID int64, status string, limit, offset int) ([]*entity.ApprovalRequest, int, error)

	created []*entity.ApprovalRequest
}

func (m *mockRequestRepo) Create(ctx context.Context, request *entity.ApprovalRequest) error {
	if m.createFunc != nil {
		return m.createFunc(ctx, request)
	}
	m.mu.Lock()
	request.ID = int64(len(m.created) + 1)
	m.created = append(m.created, request)
	m.mu.Unlock()
	return nil
}

func (m *mockRequestRepo) GetByID(ctx context.Context, id int64) (*entity.ApprovalRequest, error) {
	if m.getByIDFunc != nil {
		return m.getByIDFunc(ctx, id)
	}
	return nil, nil
}

func (m *mockRequestRepo) ListByExpense(ctx context.Context, expenseID int64) ([]*entity.ApprovalRequest, error) {
	if m.listByExpenseFunc != nil {
		return m.listByExpenseFunc(ctx, expenseID)
	}
	return []*entity.ApprovalRequest{}, nil
}

func (m *mockRequestRepo) Decide(ctx context.Context, id int64, status, comment string, decidedAt time.Time) (bool, error) {
	if m.decideFunc != nil {
		return m.decideFunc(ctx, id, status, comment, decidedAt)
	}
	return true, nil
}

func (m *mockRequestRepo) Force(ctx context.Context, id int64, status, comment string, decidedAt time.Time) error {
	if m.forceFunc != nil {
		return m.forceFunc(ctx, id, status, comment, decidedAt)
	}
	return nil
}

func (m *mockRequestRepo) ListPendingByApprover(ctx context.Context, approverID int64, limit, offset int) ([]*entity.ApprovalRequest, int, error) {
	if m.listPendingByApproverFunc != nil {
		return m.listPendingByApproverFunc(ctx, approverID, limit, offset)
	}
	return []*entity.ApprovalRequest{}, 0, nil
}

func (m *mockRequestRepo) ListByCompany(ctx context.Context, companyID int64, status string, limit, offset int) ([]*entity.ApprovalRequest, int, error) {
	if m.listByCompanyFunc != nil {
		return m.listByCompanyFunc(ctx, companyID, status, limit, offset)
	}
	return []*entity.ApprovalRequest{}, 0, nil
}

type mockUserRepo struct {
	getByIDFunc           func(ctx context.Context, id int64) (*entity.User, error)
	listByCompanyRoleFunc func(ctx context.Context, companyID int64, role string) ([]*entity.User, error)
}

func (m *mockUserRepo) GetByID(ctx context.Context, id int64) (*entity.User, error) {
	if m.getByIDFunc != nil {
		return m.getByIDFunc(ctx, id)
	}
	return nil, nil
}

func (m *mockUserRepo) ListByCompanyRole(ctx context.Context, companyID int64, role string) ([]*entity.User, error) {
	if m.listByCompanyRoleFunc != nil {
		return m.listByCompanyRoleFunc(ctx, companyID, role)
	}
	return []*entity.User{}, nil
}

type mockTxManager struct {
	withTransactionFunc func(ctx context.Context, fn func(ctx context.Context) error) error
}

func (m *mockTxManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if m.withTransactionFunc != nil {
		return m.withTransactionFunc(ctx, fn)
	}
	return fn(ctx)
}

type mockRateProvider struct {
	convertFunc func(ctx context.Context, amount float64, from, to string) (float64, error)
}

func (m *mockRateProvider) Convert(ctx context.Context, amount float64, from, to string) (float64, error) {
	if m.convertFunc != nil {
		return m.convertFunc(ctx, amount, from, to)
	}
	return amount, nil
}

type mockExtractor struct {
	extractFunc func(ctx context.Context, path string) (*entity.ReceiptData, error)
}

func (m *mockExtractor) Extract(ctx context.Context, path string) (*entity.ReceiptData, error) {
	if m.extractFunc != nil {
		return m.extractFunc(ctx, path)
	}
	return &entity.ReceiptData{}, nil
}

// mockDispatcher records dispatched events; the tests only care that the
// right types went out.
type mockDispatcher struct {
	mu     sync.Mutex
	events []*event.Event
}

func (m *mockDispatcher) Subscribe(eventType event.Type, handler dispatcher.Handler) {}

func (m *mockDispatcher) SubscribeNamed(eventType event.Type, name string, handler dispatcher.Handler) {
}

func (m *mockDispatcher) Dispatch(ctx context.Context, evt *event.Event) error {
	m.record(evt)
	return nil
}

func (m *mockDispatcher) DispatchAsync(ctx context.Context, evt *event.Event) {
	m.record(evt)
}

func (m *mockDispatcher) Close() error { return nil }

func (m *mockDispatcher) record(evt *event.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, evt)
}

func (m *mockDispatcher) typesSeen() []event.Type {
	m.mu.Lock()
	defer m.mu.Unlock()
	types := make([]event.Type, 0, len(m.events))
	for _, evt := range m.events {
		types = append(types, evt.Type)
	}
	return types
}

type mockLogger struct{}

func (m *mockLogger) Info(msg string, keysAndValues ...interface{})  {}
func (m *mockLogger) Warn(msg string, keysAndValues ...interface{})  {}
func (m *mockLogger) Error(msg string, keysAndValues ...interface{}) {}
