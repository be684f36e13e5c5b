package service

import (
	"context"
	"errors"
	"testing"

	"github.com/garyjia/expense-approval/internal/domain/approval"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/internal/domain/event"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type submissionFixture struct {
	flowRepo    *mockFlowRepo
	expenseRepo *mockExpenseRepo
	requestRepo *mockRequestRepo
	userRepo    *mockUserRepo
	rates       *mockRateProvider
	extractor   *mockExtractor
	events      *mockDispatcher
	svc         SubmissionService
}

func newSubmissionFixture() *submissionFixture {
	f := &submissionFixture{
		flowRepo:    &mockFlowRepo{},
		expenseRepo: &mockExpenseRepo{},
		requestRepo: &mockRequestRepo{},
		userRepo:    &mockUserRepo{},
		rates:       &mockRateProvider{},
		extractor:   &mockExtractor{},
		events:      &mockDispatcher{},
	}
	f.svc = NewSubmissionService(
		f.flowRepo,
		f.expenseRepo,
		f.requestRepo,
		NewApproverResolver(f.userRepo),
		f.rates,
		f.extractor,
		&mockTxManager{},
		f.events,
		&mockLogger{},
	)
	return f
}

func validSubmission() SubmitExpenseInput {
	return SubmitExpenseInput{
		CompanyID:       1,
		UserID:          10,
		Description:     "Client dinner",
		Category:        "MEALS",
		Amount:          120.50,
		Currency:        "usd",
		CompanyCurrency: "USD",
	}
}

func twoStepFlow() *entity.ApprovalFlow {
	return &entity.ApprovalFlow{
		ID:        1,
		CompanyID: 1,
		Name:      "Default approval",
		RuleType:  entity.RuleUnanimous,
		Steps: []entity.ApprovalFlowStep{
			{StepOrder: 1, Role: entity.RoleManager},
			{StepOrder: 2, Role: entity.RoleFinance},
		},
	}
}

func TestSubmitExpense_GeneratesRequestsPerStep(t *testing.T) {
	f := newSubmissionFixture()
	f.flowRepo.firstByCompanyFunc = func(ctx context.Context, companyID int64) (*entity.ApprovalFlow, error) {
		return twoStepFlow(), nil
	}
	f.userRepo.listByCompanyRoleFunc = func(ctx context.Context, companyID int64, role string) ([]*entity.User, error) {
		switch role {
		case entity.RoleManager:
			return []*entity.User{{ID: 20, CompanyID: 1, Role: role}}, nil
		case entity.RoleFinance:
			return []*entity.User{{ID: 30, CompanyID: 1, Role: role}}, nil
		}
		return nil, nil
	}

	result, err := f.svc.SubmitExpense(context.Background(), validSubmission())
	require.NoError(t, err)

	assert.Equal(t, entity.ExpenseStatusPending, result.Expense.Status)
	assert.NotEmpty(t, result.Expense.Reference)
	assert.Equal(t, "USD", result.Expense.Currency)

	require.Len(t, result.Requests, 2)
	assert.Equal(t, int64(20), result.Requests[0].ApproverID)
	assert.Equal(t, 1, result.Requests[0].StepOrder)
	assert.Equal(t, int64(30), result.Requests[1].ApproverID)
	assert.Equal(t, 2, result.Requests[1].StepOrder)
	for _, req := range result.Requests {
		assert.Equal(t, entity.RequestStatusPending, req.Status)
	}

	assert.Contains(t, f.events.typesSeen(), event.TypeExpenseSubmitted)
	assert.Contains(t, f.events.typesSeen(), event.TypeRequestCreated)
}

func TestSubmitExpense_CopiesRuleSnapshot(t *testing.T) {
	f := newSubmissionFixture()
	f.flowRepo.firstByCompanyFunc = func(ctx context.Context, companyID int64) (*entity.ApprovalFlow, error) {
		flow := twoStepFlow()
		flow.RuleType = entity.RulePercentage
		flow.PercentageThreshold = intPtr(60)
		return flow, nil
	}
	f.userRepo.listByCompanyRoleFunc = func(ctx context.Context, companyID int64, role string) ([]*entity.User, error) {
		return []*entity.User{{ID: 20, CompanyID: 1, Role: role}}, nil
	}

	result, err := f.svc.SubmitExpense(context.Background(), validSubmission())
	require.NoError(t, err)

	assert.Equal(t, entity.RulePercentage, result.Expense.RuleType)
	require.NotNil(t, result.Expense.PercentageThreshold)
	assert.Equal(t, 60, *result.Expense.PercentageThreshold)
}

func TestSubmitExpense_RoleTieBreak(t *testing.T) {
	// Repository returns members ordered by created_at then id; the resolver
	// must take the first.
	f := newSubmissionFixture()
	f.flowRepo.firstByCompanyFunc = func(ctx context.Context, companyID int64) (*entity.ApprovalFlow, error) {
		flow := twoStepFlow()
		flow.Steps = flow.Steps[:1]
		return flow, nil
	}
	f.userRepo.listByCompanyRoleFunc = func(ctx context.Context, companyID int64, role string) ([]*entity.User, error) {
		return []*entity.User{
			{ID: 21, CompanyID: 1, Role: role},
			{ID: 22, CompanyID: 1, Role: role},
		}, nil
	}

	result, err := f.svc.SubmitExpense(context.Background(), validSubmission())
	require.NoError(t, err)
	require.Len(t, result.Requests, 1)
	assert.Equal(t, int64(21), result.Requests[0].ApproverID)
}

func TestSubmitExpense_SkipsUnresolvableStep(t *testing.T) {
	f := newSubmissionFixture()
	f.flowRepo.firstByCompanyFunc = func(ctx context.Context, companyID int64) (*entity.ApprovalFlow, error) {
		return twoStepFlow(), nil
	}
	f.userRepo.listByCompanyRoleFunc = func(ctx context.Context, companyID int64, role string) ([]*entity.User, error) {
		if role == entity.RoleManager {
			return []*entity.User{{ID: 20, CompanyID: 1, Role: role}}, nil
		}
		// Nobody holds FINANCE
		return nil, nil
	}

	result, err := f.svc.SubmitExpense(context.Background(), validSubmission())
	require.NoError(t, err)

	assert.Equal(t, entity.ExpenseStatusPending, result.Expense.Status)
	require.Len(t, result.Requests, 1)
	assert.Equal(t, int64(20), result.Requests[0].ApproverID)
	assert.Contains(t, f.events.typesSeen(), event.TypeStepSkipped)
}

func TestSubmitExpense_AutoApproval(t *testing.T) {
	tests := []struct {
		name string
		flow func() (*entity.ApprovalFlow, error)
	}{
		{
			name: "no flow configured",
			flow: func() (*entity.ApprovalFlow, error) { return nil, nil },
		},
		{
			name: "flow without steps",
			flow: func() (*entity.ApprovalFlow, error) {
				flow := twoStepFlow()
				flow.Steps = nil
				return flow, nil
			},
		},
		{
			name: "no step resolves",
			flow: func() (*entity.ApprovalFlow, error) { return twoStepFlow(), nil },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newSubmissionFixture()
			f.flowRepo.firstByCompanyFunc = func(ctx context.Context, companyID int64) (*entity.ApprovalFlow, error) {
				return tt.flow()
			}
			// No members hold any role.

			result, err := f.svc.SubmitExpense(context.Background(), validSubmission())
			require.NoError(t, err)

			assert.Equal(t, entity.ExpenseStatusApproved, result.Expense.Status)
			assert.NotNil(t, result.Expense.DecidedAt)
			assert.Empty(t, result.Requests)
			assert.Contains(t, f.events.typesSeen(), event.TypeExpenseApproved)
		})
	}
}

func TestSubmitExpense_CurrencyAnnotation(t *testing.T) {
	t.Run("converts into company currency", func(t *testing.T) {
		f := newSubmissionFixture()
		f.rates.convertFunc = func(ctx context.Context, amount float64, from, to string) (float64, error) {
			assert.Equal(t, "EUR", from)
			assert.Equal(t, "USD", to)
			return amount * 1.1, nil
		}

		input := validSubmission()
		input.Currency = "EUR"
		input.Amount = 100

		result, err := f.svc.SubmitExpense(context.Background(), input)
		require.NoError(t, err)
		assert.InDelta(t, 110, result.Expense.AmountInCompanyCurrency, 0.001)
	})

	t.Run("conversion failure keeps raw amount", func(t *testing.T) {
		f := newSubmissionFixture()
		f.rates.convertFunc = func(ctx context.Context, amount float64, from, to string) (float64, error) {
			return 0, errors.New("provider down")
		}

		input := validSubmission()
		input.Currency = "EUR"
		input.Amount = 100

		result, err := f.svc.SubmitExpense(context.Background(), input)
		require.NoError(t, err)
		assert.InDelta(t, 100, result.Expense.AmountInCompanyCurrency, 0.001)
	})

	t.Run("same currency skips provider", func(t *testing.T) {
		f := newSubmissionFixture()
		called := false
		f.rates.convertFunc = func(ctx context.Context, amount float64, from, to string) (float64, error) {
			called = true
			return amount, nil
		}

		result, err := f.svc.SubmitExpense(context.Background(), validSubmission())
		require.NoError(t, err)
		assert.False(t, called)
		assert.InDelta(t, 120.50, result.Expense.AmountInCompanyCurrency, 0.001)
	})
}

func TestSubmitExpense_ReceiptPrefill(t *testing.T) {
	t.Run("fills missing fields only", func(t *testing.T) {
		f := newSubmissionFixture()
		f.extractor.extractFunc = func(ctx context.Context, path string) (*entity.ReceiptData, error) {
			return &entity.ReceiptData{Amount: 42, Currency: "GBP", Description: "Taxi"}, nil
		}

		input := SubmitExpenseInput{
			CompanyID:   1,
			UserID:      10,
			Amount:      0, // from receipt
			Currency:    "EUR",
			ReceiptPath: "/tmp/receipt.pdf",
		}

		result, err := f.svc.SubmitExpense(context.Background(), input)
		require.NoError(t, err)
		assert.InDelta(t, 42, result.Expense.Amount, 0.001)
		assert.Equal(t, "EUR", result.Expense.Currency)
		assert.Equal(t, "Taxi", result.Expense.Description)
	})

	t.Run("extraction failure is not fatal", func(t *testing.T) {
		f := newSubmissionFixture()
		f.extractor.extractFunc = func(ctx context.Context, path string) (*entity.ReceiptData, error) {
			return nil, errors.New("unreadable scan")
		}

		input := validSubmission()
		input.ReceiptPath = "/tmp/receipt.pdf"

		_, err := f.svc.SubmitExpense(context.Background(), input)
		assert.NoError(t, err)
	})
}

func TestSubmitExpense_Validation(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(in *SubmitExpenseInput)
		wantField string
	}{
		{name: "missing company", mutate: func(in *SubmitExpenseInput) { in.CompanyID = 0 }, wantField: "company_id"},
		{name: "missing user", mutate: func(in *SubmitExpenseInput) { in.UserID = 0 }, wantField: "user_id"},
		{name: "zero amount", mutate: func(in *SubmitExpenseInput) { in.Amount = 0 }, wantField: "amount"},
		{name: "negative amount", mutate: func(in *SubmitExpenseInput) { in.Amount = -5 }, wantField: "amount"},
		{name: "missing currency", mutate: func(in *SubmitExpenseInput) { in.Currency = " " }, wantField: "currency"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newSubmissionFixture()

			input := validSubmission()
			tt.mutate(&input)

			_, err := f.svc.SubmitExpense(context.Background(), input)
			require.Error(t, err)

			verr, ok := approval.AsValidationError(err)
			require.True(t, ok)
			found := false
			for _, fe := range verr.Fields {
				if fe.Field == tt.wantField {
					found = true
				}
			}
			assert.True(t, found, "expected field %q in %v", tt.wantField, verr.Fields)
		})
	}
}

func TestSubmitExpense_TransactionFailureRollsUp(t *testing.T) {
	f := newSubmissionFixture()
	f.flowRepo.firstByCompanyFunc = func(ctx context.Context, companyID int64) (*entity.ApprovalFlow, error) {
		return nil, errors.New("db gone")
	}

	_, err := f.svc.SubmitExpense(context.Background(), validSubmission())
	assert.Error(t, err)
	assert.Empty(t, f.events.typesSeen())
}
