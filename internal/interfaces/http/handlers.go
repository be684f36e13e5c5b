package http

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/expense-approval/internal/application/service"
	"github.com/garyjia/expense-approval/internal/domain/approval"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/internal/export"
)

// HeaderUserID carries the authenticated caller's user ID. Authentication
// itself happens upstream; the engine trusts this header.
const HeaderUserID = "X-User-ID"

// Handlers contains all HTTP request handlers
type Handlers struct {
	flowService       service.FlowService
	submissionService service.SubmissionService
	decisionService   service.DecisionService
	queryService      service.QueryService
	exporter          *export.ApprovalsExporter
	logger            Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(
	flowService service.FlowService,
	submissionService service.SubmissionService,
	decisionService service.DecisionService,
	queryService service.QueryService,
	exporter *export.ApprovalsExporter,
	logger Logger,
) *Handlers {
	return &Handlers{
		flowService:       flowService,
		submissionService: submissionService,
		decisionService:   decisionService,
		queryService:      queryService,
		exporter:          exporter,
		logger:            logger,
	}
}

// Response represents a standard JSON response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Fields  interface{} `json:"fields,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
}

// DecisionRequest is the payload for deciding or overriding a request
type DecisionRequest struct {
	Action  string `json:"action"`
	Comment string `json:"comment,omitempty"`
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   "1.0.0",
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    response,
	})
}

// CreateFlow handles POST /api/v1/flows
func (h *Handlers) CreateFlow(c *gin.Context) {
	var input service.FlowInput
	if err := c.ShouldBindJSON(&input); err != nil {
		h.badRequest(c, "invalid request body")
		return
	}

	flow, err := h.flowService.CreateFlow(c.Request.Context(), input)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, Response{
		Success: true,
		Data:    flow,
	})
}

// GetFlow handles GET /api/v1/flows/:id
func (h *Handlers) GetFlow(c *gin.Context) {
	id, ok := h.paramID(c, "id")
	if !ok {
		return
	}

	flow, err := h.flowService.GetFlow(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    flow,
	})
}

// UpdateFlow handles PUT /api/v1/flows/:id
func (h *Handlers) UpdateFlow(c *gin.Context) {
	id, ok := h.paramID(c, "id")
	if !ok {
		return
	}

	var input service.FlowInput
	if err := c.ShouldBindJSON(&input); err != nil {
		h.badRequest(c, "invalid request body")
		return
	}

	flow, err := h.flowService.UpdateFlow(c.Request.Context(), id, input)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    flow,
	})
}

// DeleteFlow handles DELETE /api/v1/flows/:id
func (h *Handlers) DeleteFlow(c *gin.Context) {
	id, ok := h.paramID(c, "id")
	if !ok {
		return
	}

	if err := h.flowService.DeleteFlow(c.Request.Context(), id); err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true})
}

// ListCompanyFlows handles GET /api/v1/companies/:id/flows
func (h *Handlers) ListCompanyFlows(c *gin.Context) {
	companyID, ok := h.paramID(c, "id")
	if !ok {
		return
	}

	flows, err := h.flowService.ListCompanyFlows(c.Request.Context(), companyID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    flows,
	})
}

// SubmitExpense handles POST /api/v1/expenses
func (h *Handlers) SubmitExpense(c *gin.Context) {
	var input service.SubmitExpenseInput
	if err := c.ShouldBindJSON(&input); err != nil {
		h.badRequest(c, "invalid request body")
		return
	}

	result, err := h.submissionService.SubmitExpense(c.Request.Context(), input)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, Response{
		Success: true,
		Data:    result,
	})
}

// GetHistory handles GET /api/v1/expenses/:id/history
func (h *Handlers) GetHistory(c *gin.Context) {
	expenseID, ok := h.paramID(c, "id")
	if !ok {
		return
	}

	callerID, ok := h.callerID(c)
	if !ok {
		return
	}

	history, err := h.queryService.GetHistory(c.Request.Context(), expenseID, callerID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    history,
	})
}

// Decide handles POST /api/v1/requests/:id/decision
func (h *Handlers) Decide(c *gin.Context) {
	requestID, ok := h.paramID(c, "id")
	if !ok {
		return
	}

	callerID, ok := h.callerID(c)
	if !ok {
		return
	}

	var req DecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid request body")
		return
	}

	result, err := h.decisionService.Decide(c.Request.Context(), requestID, callerID, req.Action, req.Comment)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    result,
	})
}

// Override handles POST /api/v1/requests/:id/override
func (h *Handlers) Override(c *gin.Context) {
	requestID, ok := h.paramID(c, "id")
	if !ok {
		return
	}

	callerID, ok := h.callerID(c)
	if !ok {
		return
	}

	var req DecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid request body")
		return
	}

	result, err := h.decisionService.Override(c.Request.Context(), requestID, callerID, req.Action, req.Comment)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    result,
	})
}

// ListPending handles GET /api/v1/approvals/pending
func (h *Handlers) ListPending(c *gin.Context) {
	callerID, ok := h.callerID(c)
	if !ok {
		return
	}

	page, limit := h.pageParams(c)

	result, err := h.queryService.ListPending(c.Request.Context(), callerID, page, limit)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    result,
	})
}

// ListCompanyApprovals handles GET /api/v1/companies/:id/approvals
func (h *Handlers) ListCompanyApprovals(c *gin.Context) {
	companyID, ok := h.paramID(c, "id")
	if !ok {
		return
	}

	callerID, ok := h.callerID(c)
	if !ok {
		return
	}

	page, limit := h.pageParams(c)
	statusFilter := c.Query("status")

	result, err := h.queryService.ListCompanyApprovals(c.Request.Context(), companyID, callerID, statusFilter, page, limit)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    result,
	})
}

// ExportCompanyApprovals handles GET /api/v1/companies/:id/approvals/export.
// It streams the full feed as an XLSX workbook, paging through the query
// service until every row is collected.
func (h *Handlers) ExportCompanyApprovals(c *gin.Context) {
	companyID, ok := h.paramID(c, "id")
	if !ok {
		return
	}

	callerID, ok := h.callerID(c)
	if !ok {
		return
	}

	statusFilter := c.Query("status")

	var requests []*entity.ApprovalRequest
	for page := 1; ; page++ {
		result, err := h.queryService.ListCompanyApprovals(c.Request.Context(), companyID, callerID, statusFilter, page, 100)
		if err != nil {
			h.writeError(c, err)
			return
		}
		requests = append(requests, result.Requests...)
		if page >= result.Pagination.TotalPages || len(result.Requests) == 0 {
			break
		}
	}

	var buf bytes.Buffer
	if err := h.exporter.Write(&buf, requests); err != nil {
		h.logger.Error("Failed to export approvals", "company_id", companyID, "error", err)
		c.JSON(http.StatusInternalServerError, Response{
			Success: false,
			Error:   "failed to export approvals",
		})
		return
	}

	filename := fmt.Sprintf("approvals_%d_%s.xlsx", companyID, time.Now().UTC().Format("20060102"))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", buf.Bytes())
}

// callerID extracts the caller's user ID from the X-User-ID header.
func (h *Handlers) callerID(c *gin.Context) (int64, bool) {
	raw := c.GetHeader(HeaderUserID)
	if raw == "" {
		c.JSON(http.StatusUnauthorized, Response{
			Success: false,
			Error:   "missing " + HeaderUserID + " header",
		})
		return 0, false
	}

	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusUnauthorized, Response{
			Success: false,
			Error:   "invalid " + HeaderUserID + " header",
		})
		return 0, false
	}
	return id, true
}

// paramID parses a positive int64 path parameter.
func (h *Handlers) paramID(c *gin.Context, name string) (int64, bool) {
	raw := c.Param(name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		h.badRequest(c, "invalid "+name+" parameter")
		return 0, false
	}
	return id, true
}

// pageParams parses optional page and limit query parameters. The query
// service normalizes out-of-range values.
func (h *Handlers) pageParams(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	return page, limit
}

func (h *Handlers) badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, Response{
		Success: false,
		Error:   msg,
	})
}

// writeError maps service errors to HTTP status codes.
func (h *Handlers) writeError(c *gin.Context, err error) {
	if ve, ok := approval.AsValidationError(err); ok {
		c.JSON(http.StatusBadRequest, Response{
			Success: false,
			Error:   "validation failed",
			Fields:  ve.Fields,
		})
		return
	}

	switch {
	case errors.Is(err, approval.ErrNotFound):
		c.JSON(http.StatusNotFound, Response{Success: false, Error: err.Error()})
	case errors.Is(err, approval.ErrForbidden):
		c.JSON(http.StatusForbidden, Response{Success: false, Error: err.Error()})
	case errors.Is(err, approval.ErrAlreadyDecided):
		c.JSON(http.StatusConflict, Response{Success: false, Error: err.Error()})
	default:
		h.logger.Error("Request failed", "error", err)
		c.JSON(http.StatusInternalServerError, Response{Success: false, Error: "internal error"})
	}
}
