package handler

import (
	"net/http"

	"github.com/julienschmidt/httprouter"

	"rally/internal/ledger/service"
	apperrors "rally/pkg/errors"
	"rally/pkg/logger"
	"rally/pkg/middleware"
	"rally/pkg/model"
	"rally/pkg/web"
)

type LedgerHandler struct {
	ledger service.Ledger
	logger *logger.Logger
}

func NewLedgerHandler(ledger service.Ledger, log *logger.Logger) *LedgerHandler {
	return &LedgerHandler{ledger: ledger, logger: log}
}

func (h *LedgerHandler) RegisterRoutes(router *httprouter.Router) {
	router.Handle(http.MethodPost, "/api/accounts/:id/recharge", h.Recharge)
	router.Handle(http.MethodGet, "/api/accounts/:id/balance", h.Balance)
	router.Handle(http.MethodGet, "/api/accounts/:id/transactions", h.Transactions)
}

type rechargeRequest struct {
	Amount model.Amount `json:"amount"`
}

func (h *LedgerHandler) Recharge(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	actor, err := middleware.RequireActor(r)
	if err != nil {
		web.WriteError(w, err)
		return
	}

	var req rechargeRequest
	if err := web.DecodeJSON(r, &req); err != nil {
		web.WriteError(w, err)
		return
	}
	if req.Amount <= 0 {
		web.WriteError(w, apperrors.InvalidInput("amount must be positive"))
		return
	}

	txn, err := h.ledger.Recharge(r.Context(), actor, params.ByName("id"), req.Amount)
	if err != nil {
		web.WriteError(w, err)
		return
	}
	web.WriteCreated(w, txn)
}

func (h *LedgerHandler) Balance(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	actor, err := middleware.RequireActor(r)
	if err != nil {
		web.WriteError(w, err)
		return
	}

	balance, err := h.ledger.Balance(r.Context(), actor, params.ByName("id"))
	if err != nil {
		web.WriteError(w, err)
		return
	}
	web.WriteSuccess(w, map[string]any{
		"user_id": params.ByName("id"),
		"balance": balance,
	})
}

func (h *LedgerHandler) Transactions(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	actor, err := middleware.RequireActor(r)
	if err != nil {
		web.WriteError(w, err)
		return
	}

	page, size, err := web.ExtractPageSize(r)
	if err != nil {
		web.WriteError(w, err)
		return
	}

	transactions, total, err := h.ledger.Transactions(r.Context(), actor, params.ByName("id"), page, size)
	if err != nil {
		web.WriteError(w, err)
		return
	}
	web.WritePaginated(w, transactions, total, page, size)
}
