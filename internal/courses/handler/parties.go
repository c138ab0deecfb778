package handler

import (
	"net/http"

	"github.com/julienschmidt/httprouter"

	"rally/internal/courses/service"
	"rally/pkg/logger"
	"rally/pkg/middleware"
	"rally/pkg/model"
	"rally/pkg/web"
)

type PartyHandler struct {
	parties service.PartyService
	logger  *logger.Logger
}

func NewPartyHandler(parties service.PartyService, log *logger.Logger) *PartyHandler {
	return &PartyHandler{parties: parties, logger: log}
}

func (h *PartyHandler) RegisterRoutes(router *httprouter.Router) {
	router.HandlerFunc(http.MethodPost, "/api/coaches", h.CreateCoach)
	router.Handle(http.MethodGet, "/api/coaches/:id", h.GetCoach)
	router.HandlerFunc(http.MethodPost, "/api/students", h.CreateStudent)
	router.HandlerFunc(http.MethodPost, "/api/tables", h.CreateTable)
	router.Handle(http.MethodGet, "/api/campuses/:id/coaches", h.ListCoaches)
}

func (h *PartyHandler) CreateCoach(w http.ResponseWriter, r *http.Request) {
	actor, err := middleware.RequireActor(r)
	if err != nil {
		web.WriteError(w, err)
		return
	}

	var coach model.Coach
	if err := web.DecodeJSON(r, &coach); err != nil {
		web.WriteError(w, err)
		return
	}

	created, err := h.parties.CreateCoach(r.Context(), actor, &coach)
	if err != nil {
		web.WriteError(w, err)
		return
	}
	web.WriteCreated(w, created)
}

func (h *PartyHandler) GetCoach(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	if _, err := middleware.RequireActor(r); err != nil {
		web.WriteError(w, err)
		return
	}

	coach, err := h.parties.GetCoach(r.Context(), params.ByName("id"))
	if err != nil {
		web.WriteError(w, err)
		return
	}
	web.WriteSuccess(w, coach)
}

func (h *PartyHandler) CreateStudent(w http.ResponseWriter, r *http.Request) {
	actor, err := middleware.RequireActor(r)
	if err != nil {
		web.WriteError(w, err)
		return
	}

	var student model.Student
	if err := web.DecodeJSON(r, &student); err != nil {
		web.WriteError(w, err)
		return
	}

	created, err := h.parties.CreateStudent(r.Context(), actor, &student)
	if err != nil {
		web.WriteError(w, err)
		return
	}
	web.WriteCreated(w, created)
}

func (h *PartyHandler) CreateTable(w http.ResponseWriter, r *http.Request) {
	actor, err := middleware.RequireActor(r)
	if err != nil {
		web.WriteError(w, err)
		return
	}

	var table model.Table
	if err := web.DecodeJSON(r, &table); err != nil {
		web.WriteError(w, err)
		return
	}

	created, err := h.parties.CreateTable(r.Context(), actor, &table)
	if err != nil {
		web.WriteError(w, err)
		return
	}
	web.WriteCreated(w, created)
}

func (h *PartyHandler) ListCoaches(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	if _, err := middleware.RequireActor(r); err != nil {
		web.WriteError(w, err)
		return
	}

	page, size, err := web.ExtractPageSize(r)
	if err != nil {
		web.WriteError(w, err)
		return
	}

	coaches, total, err := h.parties.ListCoaches(r.Context(), params.ByName("id"), page, size)
	if err != nil {
		web.WriteError(w, err)
		return
	}
	web.WritePaginated(w, coaches, total, page, size)
}
