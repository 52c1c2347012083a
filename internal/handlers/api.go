package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"

	"github.com/rumor-ml/commons.systems/pjledger/internal/domain"
	"github.com/rumor-ml/commons.systems/pjledger/internal/hierarchy"
	"github.com/rumor-ml/commons.systems/pjledger/internal/logger"
	"github.com/rumor-ml/commons.systems/pjledger/internal/middleware"
	"github.com/rumor-ml/commons.systems/pjledger/internal/pipeline"
	"github.com/rumor-ml/commons.systems/pjledger/internal/report"
	"github.com/rumor-ml/commons.systems/pjledger/internal/settlement"
)

// Reports builds the read-side reports.
type Reports interface {
	CostTree(ctx context.Context, req report.ReportRequest) (*hierarchy.Tree, error)
	CashFlow(ctx context.Context, req report.ReportRequest) (*report.CashFlow, error)
	Insights(ctx context.Context, req report.ReportRequest) (*report.Insights, error)
}

// Importer ingests statements and records manual classifications.
type Importer interface {
	ImportFile(ctx context.Context, clientID, accountID, name string, r io.Reader) (*pipeline.ImportResult, error)
	Reclassify(ctx context.Context, clientID, txID string, target domain.Target) (*domain.Transaction, error)
}

// Settlements creates sales and reconciles their parcels.
type Settlements interface {
	CreateSale(ctx context.Context, req settlement.SaleRequest) (*domain.Sale, error)
	Suggest(ctx context.Context, clientID, saleID, legID string, window int) ([]settlement.Suggestion, error)
	Confirm(ctx context.Context, clientID, saleID, legID string, n int, txID string) (*domain.SaleLeg, error)
}

// APIHandler handles API requests
type APIHandler struct {
	reports     Reports
	importer    Importer
	settlements Settlements
	sanitizer   *bluemonday.Policy
}

// NewAPIHandler creates a new API handler
func NewAPIHandler(reports Reports, importer Importer, settlements Settlements) *APIHandler {
	return &APIHandler{
		reports:     reports,
		importer:    importer,
		settlements: settlements,
		sanitizer:   bluemonday.StrictPolicy(),
	}
}

// HealthCheck handles GET /health
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log := logger.FromContext(r.Context())
		log.Error().Err(err).Msg("failed to encode response")
	}
}

// statusFor maps the domain error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	var (
		structural *domain.StructuralError
		parse      *domain.ParseError
		conflict   *domain.ConflictError
	)
	switch {
	case errors.As(err, &structural):
		return http.StatusUnprocessableEntity
	case errors.As(err, &parse):
		return http.StatusBadRequest
	case errors.As(err, &conflict), errors.Is(err, domain.ErrAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		log := logger.FromContext(r.Context())
		log.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		msg = "internal error"
	}
	writeJSON(w, r, status, errorResponse{Error: msg})
}

func badRequest(w http.ResponseWriter, r *http.Request, format string, args ...any) {
	writeJSON(w, r, http.StatusBadRequest, errorResponse{Error: fmt.Sprintf(format, args...)})
}

// clientID returns the client a request acts for. Every API route requires
// an authenticated user and an explicit client.
func clientID(w http.ResponseWriter, r *http.Request) (string, bool) {
	if _, ok := middleware.GetUserID(r.Context()); !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return "", false
	}
	client := strings.TrimSpace(r.URL.Query().Get("client"))
	if client == "" {
		client = strings.TrimSpace(r.FormValue("client"))
	}
	if client == "" {
		badRequest(w, r, "client is required")
		return "", false
	}
	return client, true
}

func (h *APIHandler) sanitize(s string) string {
	return strings.TrimSpace(h.sanitizer.Sanitize(s))
}

func parseDateParam(r *http.Request, name string) (time.Time, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(domain.DateLayout, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid %s %q (expected YYYY-MM-DD)", name, v)
	}
	return t, nil
}

func (h *APIHandler) reportRequest(w http.ResponseWriter, r *http.Request) (report.ReportRequest, bool) {
	client, ok := clientID(w, r)
	if !ok {
		return report.ReportRequest{}, false
	}
	req := report.ReportRequest{ClientID: client}

	var err error
	if req.From, err = parseDateParam(r, "from"); err != nil {
		badRequest(w, r, "%v", err)
		return report.ReportRequest{}, false
	}
	if req.To, err = parseDateParam(r, "to"); err != nil {
		badRequest(w, r, "%v", err)
		return report.ReportRequest{}, false
	}
	if accounts := r.URL.Query().Get("accounts"); accounts != "" {
		for _, id := range strings.Split(accounts, ",") {
			if id = strings.TrimSpace(id); id != "" {
				req.AccountIDs = append(req.AccountIDs, id)
			}
		}
	}
	return req, true
}

// GetCostTree handles GET /api/reports/cost-tree
func (h *APIHandler) GetCostTree(w http.ResponseWriter, r *http.Request) {
	req, ok := h.reportRequest(w, r)
	if !ok {
		return
	}
	tree, err := h.reports.CostTree(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, tree)
}

// GetCashFlow handles GET /api/reports/cash-flow
func (h *APIHandler) GetCashFlow(w http.ResponseWriter, r *http.Request) {
	req, ok := h.reportRequest(w, r)
	if !ok {
		return
	}
	flow, err := h.reports.CashFlow(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, flow)
}

// GetInsights handles GET /api/reports/insights
func (h *APIHandler) GetInsights(w http.ResponseWriter, r *http.Request) {
	req, ok := h.reportRequest(w, r)
	if !ok {
		return
	}
	insights, err := h.reports.Insights(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, insights)
}
