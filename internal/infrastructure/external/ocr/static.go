package ocr

import (
	"context"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/entity"
)

// StaticExtractor is the mock extraction step: it returns a fixed payload for
// every receipt. Used as the default wiring when no vision API key is
// configured, and in tests.
type StaticExtractor struct {
	Data entity.ReceiptData
}

// NewStaticExtractor creates an extractor that always returns data.
func NewStaticExtractor(data entity.ReceiptData) *StaticExtractor {
	return &StaticExtractor{Data: data}
}

// Extract returns the configured payload regardless of the receipt path.
func (s *StaticExtractor) Extract(_ context.Context, _ string) (*entity.ReceiptData, error) {
	data := s.Data
	return &data, nil
}

// Verify interface compliance
var _ port.ReceiptExtractor = (*StaticExtractor)(nil)
