package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"firebase.google.com/go/v4/auth"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/rumor-ml/commons.systems/pjledger/internal/domain"
	"github.com/rumor-ml/commons.systems/pjledger/internal/hierarchy"
	"github.com/rumor-ml/commons.systems/pjledger/internal/pipeline"
	"github.com/rumor-ml/commons.systems/pjledger/internal/report"
	"github.com/rumor-ml/commons.systems/pjledger/internal/settlement"
)

type stubVerifier struct{}

func (stubVerifier) VerifyIDToken(ctx context.Context, idToken string) (*auth.Token, error) {
	if idToken != "good" {
		return nil, errors.New("invalid token")
	}
	return &auth.Token{UID: "accountant-1"}, nil
}

type stubServices struct{}

func (stubServices) CostTree(ctx context.Context, req report.ReportRequest) (*hierarchy.Tree, error) {
	return &hierarchy.Tree{}, nil
}

func (stubServices) CashFlow(ctx context.Context, req report.ReportRequest) (*report.CashFlow, error) {
	return &report.CashFlow{ClientID: req.ClientID}, nil
}

func (stubServices) Insights(ctx context.Context, req report.ReportRequest) (*report.Insights, error) {
	return &report.Insights{}, nil
}

func (stubServices) ImportFile(ctx context.Context, clientID, accountID, name string, r io.Reader) (*pipeline.ImportResult, error) {
	return &pipeline.ImportResult{FileName: name}, nil
}

func (stubServices) Reclassify(ctx context.Context, clientID, txID string, target domain.Target) (*domain.Transaction, error) {
	return &domain.Transaction{ID: txID}, nil
}

func (stubServices) CreateSale(ctx context.Context, req settlement.SaleRequest) (*domain.Sale, error) {
	return &domain.Sale{ID: "sale-1"}, nil
}

func (stubServices) Suggest(ctx context.Context, clientID, saleID, legID string, window int) ([]settlement.Suggestion, error) {
	if saleID != "sale-1" || legID != "card" {
		return nil, domain.ErrNotFound
	}
	return []settlement.Suggestion{}, nil
}

func (stubServices) Confirm(ctx context.Context, clientID, saleID, legID string, n int, txID string) (*domain.SaleLeg, error) {
	return &domain.SaleLeg{ID: legID}, nil
}

func newTestServer(rps float64, burst int) http.Handler {
	s := New(Deps{
		Reports:        stubServices{},
		Importer:       stubServices{},
		Settlements:    stubServices{},
		Verifier:       stubVerifier{},
		Logger:         zerolog.Nop(),
		RateLimitRPS:   rps,
		RateLimitBurst: burst,
		AllowedOrigin:  "*",
	})
	return s.Handler()
}

func TestRoutes(t *testing.T) {
	tests := []struct {
		name     string
		method   string
		path     string
		token    string
		wantCode int
	}{
		{"health without auth", http.MethodGet, "/health", "", http.StatusOK},
		{"report without auth", http.MethodGet, "/api/reports/cost-tree?client=acme", "", http.StatusUnauthorized},
		{"report with bad token", http.MethodGet, "/api/reports/cost-tree?client=acme", "bad", http.StatusUnauthorized},
		{"cost tree", http.MethodGet, "/api/reports/cost-tree?client=acme", "good", http.StatusOK},
		{"cash flow", http.MethodGet, "/api/reports/cash-flow?client=acme", "good", http.StatusOK},
		{"insights", http.MethodGet, "/api/reports/insights?client=acme", "good", http.StatusOK},
		{"suggestions path values", http.MethodGet, "/api/sales/sale-1/legs/card/suggestions?client=acme", "good", http.StatusOK},
		{"suggestions unknown leg", http.MethodGet, "/api/sales/sale-1/legs/boleto/suggestions?client=acme", "good", http.StatusNotFound},
		{"wrong method", http.MethodDelete, "/api/reports/cost-tree", "good", http.StatusMethodNotAllowed},
		{"unknown route", http.MethodGet, "/api/budgets", "good", http.StatusNotFound},
		{"preflight", http.MethodOptions, "/api/sales", "", http.StatusNoContent},
	}

	h := newTestServer(100, 100)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			if tt.token != "" {
				req.Header.Set("Authorization", "Bearer "+tt.token)
			}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)
			assert.Equal(t, tt.wantCode, w.Code)
		})
	}
}

func TestRateLimit(t *testing.T) {
	h := newTestServer(0.001, 1)

	codes := make([]int, 0, 2)
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusTooManyRequests}, codes)
}
