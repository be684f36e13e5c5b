package port

import (
	"context"

	"github.com/garyjia/expense-approval/internal/domain/entity"
)

// RateProvider converts an amount between currencies. It is used only to
// annotate submissions with a company-currency amount; the engine never does
// monetary arithmetic on the result.
type RateProvider interface {
	Convert(ctx context.Context, amount float64, from, to string) (float64, error)
}

// ReceiptExtractor pulls structured fields out of a scanned receipt so a
// submission can be prefilled. Extraction failures are not fatal to
// submission.
type ReceiptExtractor interface {
	Extract(ctx context.Context, receiptPath string) (*entity.ReceiptData, error)
}
