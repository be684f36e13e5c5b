// Package ocr implements the receipt extraction collaborator. The production
// reader renders receipt PDFs to images and asks the OpenAI vision API for
// the structured fields; StaticExtractor is the mock wiring used when no API
// key is configured.
package ocr

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/gen2brain/go-fitz"
	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// maxReceiptPages bounds how many pages are sent to the vision API per
// receipt to control token cost.
const maxReceiptPages = 2

// Reader extracts receipt fields using the OpenAI vision API.
type Reader struct {
	client *openai.Client
	model  string
	logger *zap.Logger
}

// NewReader creates a new vision-backed receipt reader
func NewReader(apiKey, model string, logger *zap.Logger) *Reader {
	return &Reader{
		client: openai.NewClient(apiKey),
		model:  model,
		logger: logger,
	}
}

// Extract renders the receipt to images and extracts structured fields.
func (r *Reader) Extract(ctx context.Context, receiptPath string) (*entity.ReceiptData, error) {
	r.logger.Info("Extracting receipt data", zap.String("path", receiptPath))

	images, err := r.renderPages(receiptPath)
	if err != nil {
		return nil, fmt.Errorf("render receipt: %w", err)
	}
	if len(images) == 0 {
		return nil, fmt.Errorf("no pages rendered from receipt %s", receiptPath)
	}
	if len(images) > maxReceiptPages {
		images = images[:maxReceiptPages]
	}

	return r.extractWithVision(ctx, images)
}

// renderPages converts a receipt PDF (or a plain image file) to JPEG pages.
func (r *Reader) renderPages(path string) ([][]byte, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("receipt file not found: %s", path)
	}

	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".pdf" {
		if ext == ".jpg" || ext == ".jpeg" || ext == ".png" {
			return r.readImageFile(path)
		}
		return nil, fmt.Errorf("unsupported receipt type: %s", ext)
	}

	doc, err := fitz.New(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}
	defer doc.Close()

	var images [][]byte
	for pageNum := 0; pageNum < doc.NumPage(); pageNum++ {
		img, err := doc.Image(pageNum)
		if err != nil {
			r.logger.Warn("Failed to render receipt page", zap.Int("page", pageNum), zap.Error(err))
			continue
		}
		imgBytes, err := encodeJPEG(img)
		if err != nil {
			r.logger.Warn("Failed to encode receipt page", zap.Int("page", pageNum), zap.Error(err))
			continue
		}
		images = append(images, imgBytes)
	}
	return images, nil
}

func (r *Reader) readImageFile(path string) ([][]byte, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	defer file.Close()

	var img image.Image
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		img, err = jpeg.Decode(file)
	case ".png":
		img, err = png.Decode(file)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	imgBytes, err := encodeJPEG(img)
	if err != nil {
		return nil, err
	}
	return [][]byte{imgBytes}, nil
}

func encodeJPEG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 85}); err != nil {
		return nil, fmt.Errorf("failed to encode JPEG: %w", err)
	}
	return buf.Bytes(), nil
}

// receiptPayload is the JSON shape the vision prompt asks for.
type receiptPayload struct {
	Amount      float64 `json:"amount"`
	Currency    string  `json:"currency"`
	Description string  `json:"description"`
	Vendor      string  `json:"vendor"`
	Date        string  `json:"date"`
}

func (r *Reader) extractWithVision(ctx context.Context, images [][]byte) (*entity.ReceiptData, error) {
	contentParts := []openai.ChatMessagePart{
		{
			Type: openai.ChatMessagePartTypeText,
			Text: visionPrompt,
		},
	}
	for _, imgData := range images {
		contentParts = append(contentParts, openai.ChatMessagePart{
			Type: openai.ChatMessagePartTypeImageURL,
			ImageURL: &openai.ChatMessageImageURL{
				URL:    fmt.Sprintf("data:image/jpeg;base64,%s", base64.StdEncoding.EncodeToString(imgData)),
				Detail: openai.ImageURLDetailHigh,
			},
		})
	}

	resp, err := r.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       r.model,
		MaxTokens:   1024,
		Temperature: 0.1,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: "You extract structured data from expense receipts. Always respond with valid JSON.",
			},
			{
				Role:         openai.ChatMessageRoleUser,
				MultiContent: contentParts,
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("vision extraction failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no response from vision API")
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimSuffix(strings.TrimPrefix(content, "```"), "```")

	var payload receiptPayload
	if err := json.Unmarshal([]byte(content), &payload); err != nil {
		r.logger.Error("Failed to parse extraction result", zap.Error(err), zap.String("content", content))
		return nil, fmt.Errorf("failed to parse extraction result: %w", err)
	}
	if payload.Amount <= 0 {
		return nil, fmt.Errorf("extraction returned no usable amount")
	}

	data := &entity.ReceiptData{
		Amount:      payload.Amount,
		Currency:    strings.ToUpper(payload.Currency),
		Description: payload.Description,
		Vendor:      payload.Vendor,
	}
	if payload.Date != "" {
		if t, err := time.Parse("2006-01-02", payload.Date); err == nil {
			data.ExpenseDate = &t
		}
	}

	r.logger.Info("Receipt data extracted",
		zap.Float64("amount", data.Amount),
		zap.String("currency", data.Currency),
	)
	return data, nil
}

const visionPrompt = `Extract the following fields from this receipt and respond with JSON only:
{"amount": <total amount as number>, "currency": "<ISO 4217 code>", "description": "<short purchase summary>", "vendor": "<merchant name>", "date": "<YYYY-MM-DD>"}`

// Verify interface compliance
var _ port.ReceiptExtractor = (*Reader)(nil)
