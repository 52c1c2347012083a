package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/rumor-ml/commons.systems/pjledger/internal/domain"
	"github.com/rumor-ml/commons.systems/pjledger/internal/settlement"
)

type legRequest struct {
	ID           string               `json:"id"`
	Method       domain.PaymentMethod `json:"method"`
	Gross        domain.Cents         `json:"gross"`
	Net          domain.Cents         `json:"net"`
	Installments int                  `json:"installments"`
	Rule         string               `json:"rule"`
}

type saleRequest struct {
	Date        string       `json:"date"`
	Description string       `json:"description"`
	Legs        []legRequest `json:"legs"`
}

type matchRequest struct {
	Parcel        int    `json:"parcel"`
	TransactionID string `json:"transactionId"`
}

// CreateSale handles POST /api/sales
func (h *APIHandler) CreateSale(w http.ResponseWriter, r *http.Request) {
	client, ok := clientID(w, r)
	if !ok {
		return
	}

	var body saleRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		badRequest(w, r, "invalid sale body: %v", err)
		return
	}
	date, err := time.Parse(domain.DateLayout, body.Date)
	if err != nil {
		badRequest(w, r, "invalid date %q (expected YYYY-MM-DD)", body.Date)
		return
	}

	req := settlement.SaleRequest{
		ClientID:    client,
		Date:        date,
		Description: h.sanitize(body.Description),
		Legs:        make([]settlement.LegSpec, 0, len(body.Legs)),
	}
	for _, l := range body.Legs {
		req.Legs = append(req.Legs, settlement.LegSpec{
			ID:           h.sanitize(l.ID),
			Method:       l.Method,
			Gross:        l.Gross,
			Net:          l.Net,
			Installments: l.Installments,
			Rule:         l.Rule,
		})
	}

	sale, err := h.settlements.CreateSale(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, sale)
}

// GetSuggestions handles GET /api/sales/{saleID}/legs/{legID}/suggestions
func (h *APIHandler) GetSuggestions(w http.ResponseWriter, r *http.Request) {
	client, ok := clientID(w, r)
	if !ok {
		return
	}

	window := 0
	if v := r.URL.Query().Get("window"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			badRequest(w, r, "invalid window %q", v)
			return
		}
		window = n
	}

	suggestions, err := h.settlements.Suggest(r.Context(), client, r.PathValue("saleID"), r.PathValue("legID"), window)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, suggestions)
}

// ConfirmMatch handles POST /api/sales/{saleID}/legs/{legID}/matches
func (h *APIHandler) ConfirmMatch(w http.ResponseWriter, r *http.Request) {
	client, ok := clientID(w, r)
	if !ok {
		return
	}

	var body matchRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		badRequest(w, r, "invalid match body: %v", err)
		return
	}
	if body.Parcel < 1 || body.TransactionID == "" {
		badRequest(w, r, "parcel and transactionId are required")
		return
	}

	leg, err := h.settlements.Confirm(r.Context(), client, r.PathValue("saleID"), r.PathValue("legID"), body.Parcel, body.TransactionID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, leg)
}
