package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/garyjia/expense-approval/internal/application/service"
	"github.com/garyjia/expense-approval/internal/domain/approval"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/internal/export"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// Fake services backing the handler tests.

type fakeFlowService struct {
	createFunc func(ctx context.Context, input service.FlowInput) (*entity.ApprovalFlow, error)
	getFunc    func(ctx context.Context, id int64) (*entity.ApprovalFlow, error)
	deleteFunc func(ctx context.Context, id int64) error
}

func (f *fakeFlowService) CreateFlow(ctx context.Context, input service.FlowInput) (*entity.ApprovalFlow, error) {
	if f.createFunc != nil {
		return f.createFunc(ctx, input)
	}
	return &entity.ApprovalFlow{ID: 1, CompanyID: input.CompanyID, Name: input.Name}, nil
}

func (f *fakeFlowService) GetFlow(ctx context.Context, id int64) (*entity.ApprovalFlow, error) {
	if f.getFunc != nil {
		return f.getFunc(ctx, id)
	}
	return &entity.ApprovalFlow{ID: id, CompanyID: 1}, nil
}

func (f *fakeFlowService) ListCompanyFlows(ctx context.Context, companyID int64) ([]*entity.ApprovalFlow, error) {
	return []*entity.ApprovalFlow{{ID: 1, CompanyID: companyID}}, nil
}

func (f *fakeFlowService) UpdateFlow(ctx context.Context, id int64, input service.FlowInput) (*entity.ApprovalFlow, error) {
	return &entity.ApprovalFlow{ID: id, CompanyID: input.CompanyID, Name: input.Name}, nil
}

func (f *fakeFlowService) DeleteFlow(ctx context.Context, id int64) error {
	if f.deleteFunc != nil {
		return f.deleteFunc(ctx, id)
	}
	return nil
}

type fakeSubmissionService struct {
	submitFunc func(ctx context.Context, input service.SubmitExpenseInput) (*service.SubmitExpenseResult, error)
}

func (f *fakeSubmissionService) SubmitExpense(ctx context.Context, input service.SubmitExpenseInput) (*service.SubmitExpenseResult, error) {
	if f.submitFunc != nil {
		return f.submitFunc(ctx, input)
	}
	return &service.SubmitExpenseResult{
		Expense: &entity.Expense{ID: 1, CompanyID: input.CompanyID, Status: entity.ExpenseStatusPending},
	}, nil
}

type fakeDecisionService struct {
	decideFunc   func(ctx context.Context, requestID, callerID int64, action, comment string) (*service.DecisionResult, error)
	overrideFunc func(ctx context.Context, requestID, callerID int64, action, comment string) (*service.DecisionResult, error)
}

func (f *fakeDecisionService) Decide(ctx context.Context, requestID, callerID int64, action, comment string) (*service.DecisionResult, error) {
	if f.decideFunc != nil {
		return f.decideFunc(ctx, requestID, callerID, action, comment)
	}
	return &service.DecisionResult{ExpenseStatus: entity.ExpenseStatusPending, Message: service.MsgWaiting}, nil
}

func (f *fakeDecisionService) Override(ctx context.Context, requestID, callerID int64, action, comment string) (*service.DecisionResult, error) {
	if f.overrideFunc != nil {
		return f.overrideFunc(ctx, requestID, callerID, action, comment)
	}
	return &service.DecisionResult{ExpenseStatus: entity.ExpenseStatusApproved, Message: service.MsgOverrideApproved}, nil
}

type fakeQueryService struct {
	listPendingFunc func(ctx context.Context, callerID int64, page, limit int) (*service.RequestPage, error)
	historyFunc     func(ctx context.Context, expenseID, callerID int64) ([]*service.HistoryEntry, error)
	companyFunc     func(ctx context.Context, companyID, callerID int64, statusFilter string, page, limit int) (*service.RequestPage, error)
}

func (f *fakeQueryService) ListPending(ctx context.Context, callerID int64, page, limit int) (*service.RequestPage, error) {
	if f.listPendingFunc != nil {
		return f.listPendingFunc(ctx, callerID, page, limit)
	}
	return &service.RequestPage{Pagination: service.Pagination{Page: page, Limit: limit}}, nil
}

func (f *fakeQueryService) GetHistory(ctx context.Context, expenseID, callerID int64) ([]*service.HistoryEntry, error) {
	if f.historyFunc != nil {
		return f.historyFunc(ctx, expenseID, callerID)
	}
	return []*service.HistoryEntry{}, nil
}

func (f *fakeQueryService) ListCompanyApprovals(ctx context.Context, companyID, callerID int64, statusFilter string, page, limit int) (*service.RequestPage, error) {
	if f.companyFunc != nil {
		return f.companyFunc(ctx, companyID, callerID, statusFilter, page, limit)
	}
	return &service.RequestPage{Pagination: service.Pagination{Page: 1, Limit: limit, Total: 0, TotalPages: 0}}, nil
}

type testLogger struct{}

func (testLogger) Info(msg string, keysAndValues ...interface{})  {}
func (testLogger) Error(msg string, keysAndValues ...interface{}) {}

type fixture struct {
	flow       *fakeFlowService
	submission *fakeSubmissionService
	decision   *fakeDecisionService
	query      *fakeQueryService
	server     *Server
}

func newFixture() *fixture {
	f := &fixture{
		flow:       &fakeFlowService{},
		submission: &fakeSubmissionService{},
		decision:   &fakeDecisionService{},
		query:      &fakeQueryService{},
	}
	f.server = NewServer(
		DefaultServerConfig(),
		f.flow,
		f.submission,
		f.decision,
		f.query,
		export.NewApprovalsExporter(zap.NewNop()),
		testLogger{},
	)
	return f
}

func (f *fixture) do(method, path string, body interface{}, userID string) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set(HeaderUserID, userID)
	}

	w := httptest.NewRecorder()
	f.server.Router().ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestHealthCheck(t *testing.T) {
	f := newFixture()

	w := f.do(http.MethodGet, "/health", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decode(t, w).Success)
}

func TestCreateFlow(t *testing.T) {
	t.Run("valid flow returns 201", func(t *testing.T) {
		f := newFixture()

		body := service.FlowInput{
			CompanyID: 1,
			Name:      "Default approval",
			RuleType:  entity.RuleUnanimous,
			Steps:     []service.StepInput{{StepOrder: 1, Role: entity.RoleManager}},
		}
		w := f.do(http.MethodPost, "/api/v1/flows", body, "")
		assert.Equal(t, http.StatusCreated, w.Code)
		assert.True(t, decode(t, w).Success)
	})

	t.Run("validation error returns 400 with fields", func(t *testing.T) {
		f := newFixture()
		f.flow.createFunc = func(ctx context.Context, input service.FlowInput) (*entity.ApprovalFlow, error) {
			verr := &approval.ValidationError{}
			verr.Add("name", "must be at least 2 characters")
			return nil, verr
		}

		w := f.do(http.MethodPost, "/api/v1/flows", service.FlowInput{}, "")
		assert.Equal(t, http.StatusBadRequest, w.Code)

		resp := decode(t, w)
		assert.False(t, resp.Success)
		assert.NotNil(t, resp.Fields)
	})

	t.Run("malformed body returns 400", func(t *testing.T) {
		f := newFixture()

		req := httptest.NewRequest(http.MethodPost, "/api/v1/flows", bytes.NewReader([]byte("{not json")))
		w := httptest.NewRecorder()
		f.server.Router().ServeHTTP(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestGetFlow(t *testing.T) {
	t.Run("missing flow returns 404", func(t *testing.T) {
		f := newFixture()
		f.flow.getFunc = func(ctx context.Context, id int64) (*entity.ApprovalFlow, error) {
			return nil, approval.ErrNotFound
		}

		w := f.do(http.MethodGet, "/api/v1/flows/9", nil, "")
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("non-numeric id returns 400", func(t *testing.T) {
		f := newFixture()

		w := f.do(http.MethodGet, "/api/v1/flows/abc", nil, "")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestSubmitExpense(t *testing.T) {
	f := newFixture()

	body := service.SubmitExpenseInput{
		CompanyID: 1,
		UserID:    10,
		Amount:    50,
		Currency:  "USD",
	}
	w := f.do(http.MethodPost, "/api/v1/expenses", body, "")
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.True(t, decode(t, w).Success)
}

func TestDecide(t *testing.T) {
	t.Run("decision returns outcome", func(t *testing.T) {
		f := newFixture()
		var gotRequestID, gotCallerID int64
		var gotAction string
		f.decision.decideFunc = func(ctx context.Context, requestID, callerID int64, action, comment string) (*service.DecisionResult, error) {
			gotRequestID, gotCallerID, gotAction = requestID, callerID, action
			return &service.DecisionResult{ExpenseStatus: entity.ExpenseStatusApproved, Message: service.MsgApproved}, nil
		}

		w := f.do(http.MethodPost, "/api/v1/requests/5/decision", DecisionRequest{Action: entity.ActionApprove}, "20")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, int64(5), gotRequestID)
		assert.Equal(t, int64(20), gotCallerID)
		assert.Equal(t, entity.ActionApprove, gotAction)
	})

	t.Run("missing caller header returns 401", func(t *testing.T) {
		f := newFixture()

		w := f.do(http.MethodPost, "/api/v1/requests/5/decision", DecisionRequest{Action: entity.ActionApprove}, "")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("already decided returns 409", func(t *testing.T) {
		f := newFixture()
		f.decision.decideFunc = func(ctx context.Context, requestID, callerID int64, action, comment string) (*service.DecisionResult, error) {
			return nil, approval.ErrAlreadyDecided
		}

		w := f.do(http.MethodPost, "/api/v1/requests/5/decision", DecisionRequest{Action: entity.ActionApprove}, "20")
		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("foreign approver returns 403", func(t *testing.T) {
		f := newFixture()
		f.decision.decideFunc = func(ctx context.Context, requestID, callerID int64, action, comment string) (*service.DecisionResult, error) {
			return nil, approval.ErrForbidden
		}

		w := f.do(http.MethodPost, "/api/v1/requests/5/decision", DecisionRequest{Action: entity.ActionApprove}, "20")
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("unknown request returns 404", func(t *testing.T) {
		f := newFixture()
		f.decision.decideFunc = func(ctx context.Context, requestID, callerID int64, action, comment string) (*service.DecisionResult, error) {
			return nil, approval.ErrNotFound
		}

		w := f.do(http.MethodPost, "/api/v1/requests/5/decision", DecisionRequest{Action: entity.ActionApprove}, "20")
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestListPending(t *testing.T) {
	f := newFixture()
	var gotPage, gotLimit int
	f.query.listPendingFunc = func(ctx context.Context, callerID int64, page, limit int) (*service.RequestPage, error) {
		gotPage, gotLimit = page, limit
		return &service.RequestPage{Pagination: service.Pagination{Page: page, Limit: limit}}, nil
	}

	w := f.do(http.MethodGet, "/api/v1/approvals/pending?page=3&limit=15", nil, "20")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 3, gotPage)
	assert.Equal(t, 15, gotLimit)
}

func TestExportCompanyApprovals(t *testing.T) {
	t.Run("streams an xlsx attachment", func(t *testing.T) {
		f := newFixture()
		f.query.companyFunc = func(ctx context.Context, companyID, callerID int64, statusFilter string, page, limit int) (*service.RequestPage, error) {
			return &service.RequestPage{
				Requests: []*entity.ApprovalRequest{
					{ID: 1, ExpenseID: 1, ApproverID: 20, StepOrder: 1, Status: entity.RequestStatusPending},
				},
				Pagination: service.Pagination{Page: 1, Limit: 100, Total: 1, TotalPages: 1},
			}, nil
		}

		w := f.do(http.MethodGet, "/api/v1/companies/1/approvals/export", nil, "40")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", w.Header().Get("Content-Type"))
		assert.Contains(t, w.Header().Get("Content-Disposition"), "attachment")
		assert.NotZero(t, w.Body.Len())
	})

	t.Run("non-admin gets 403", func(t *testing.T) {
		f := newFixture()
		f.query.companyFunc = func(ctx context.Context, companyID, callerID int64, statusFilter string, page, limit int) (*service.RequestPage, error) {
			return nil, approval.ErrForbidden
		}

		w := f.do(http.MethodGet, "/api/v1/companies/1/approvals/export", nil, "20")
		assert.Equal(t, http.StatusForbidden, w.Code)
	})
}
