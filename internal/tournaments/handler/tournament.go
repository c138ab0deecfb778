package handler

import (
	"context"
	"net/http"

	"github.com/julienschmidt/httprouter"

	"rally/internal/tournaments/repository"
	"rally/internal/tournaments/service"
	"rally/internal/tournaments/validator"
	"rally/pkg/logger"
	"rally/pkg/middleware"
	"rally/pkg/model"
	"rally/pkg/web"
)

type TournamentHandler struct {
	tournaments service.TournamentService
	logger      *logger.Logger
}

func NewTournamentHandler(tournaments service.TournamentService, log *logger.Logger) *TournamentHandler {
	return &TournamentHandler{tournaments: tournaments, logger: log}
}

func (h *TournamentHandler) RegisterRoutes(router *httprouter.Router) {
	router.HandlerFunc(http.MethodPost, "/api/tournaments", h.Create)
	router.HandlerFunc(http.MethodGet, "/api/tournaments", h.List)
	router.Handle(http.MethodGet, "/api/tournaments/:id", h.GetByID)
	router.Handle(http.MethodPost, "/api/tournaments/:id/publish", h.Publish)
	router.Handle(http.MethodPost, "/api/tournaments/:id/register", h.Register)
	router.Handle(http.MethodPost, "/api/tournaments/:id/close-registration", h.CloseRegistration)
	router.Handle(http.MethodPost, "/api/tournaments/:id/start", h.Start)
	router.Handle(http.MethodPost, "/api/tournaments/:id/end", h.End)
	router.Handle(http.MethodPost, "/api/tournaments/:id/cancel", h.Cancel)
	router.Handle(http.MethodGet, "/api/tournaments/:id/enrollments", h.Enrollments)
	router.Handle(http.MethodGet, "/api/tournaments/:id/matches", h.Matches)
	router.Handle(http.MethodPost, "/api/matches/:id/result", h.RecordResult)
}

func (h *TournamentHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, err := middleware.RequireActor(r)
	if err != nil {
		web.WriteError(w, err)
		return
	}

	var req validator.CreateRequest
	if err := web.DecodeJSON(r, &req); err != nil {
		web.WriteError(w, err)
		return
	}

	tournament, err := h.tournaments.Create(r.Context(), actor, &req)
	if err != nil {
		web.WriteError(w, err)
		return
	}
	web.WriteCreated(w, tournament)
}

func (h *TournamentHandler) GetByID(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	if _, err := middleware.RequireActor(r); err != nil {
		web.WriteError(w, err)
		return
	}

	tournament, err := h.tournaments.GetByID(r.Context(), params.ByName("id"))
	if err != nil {
		web.WriteError(w, err)
		return
	}
	web.WriteSuccess(w, tournament)
}

func (h *TournamentHandler) Publish(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	h.transition(w, r, params, h.tournaments.Publish)
}

func (h *TournamentHandler) CloseRegistration(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	h.transition(w, r, params, h.tournaments.CloseRegistration)
}

func (h *TournamentHandler) Start(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	h.transition(w, r, params, h.tournaments.Start)
}

func (h *TournamentHandler) End(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	h.transition(w, r, params, h.tournaments.End)
}

func (h *TournamentHandler) transition(
	w http.ResponseWriter,
	r *http.Request,
	params httprouter.Params,
	op func(ctx context.Context, actor model.Actor, id string) (*model.Tournament, error),
) {
	actor, err := middleware.RequireActor(r)
	if err != nil {
		web.WriteError(w, err)
		return
	}

	tournament, err := op(r.Context(), actor, params.ByName("id"))
	if err != nil {
		web.WriteError(w, err)
		return
	}
	web.WriteSuccess(w, tournament)
}

type registerRequest struct {
	StudentID string `json:"student_id"`
	Group     string `json:"group"`
}

func (h *TournamentHandler) Register(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	actor, err := middleware.RequireActor(r)
	if err != nil {
		web.WriteError(w, err)
		return
	}

	var req registerRequest
	if err := web.DecodeJSON(r, &req); err != nil {
		web.WriteError(w, err)
		return
	}

	enrollment, err := h.tournaments.Register(r.Context(), actor, params.ByName("id"), req.StudentID, req.Group)
	if err != nil {
		web.WriteError(w, err)
		return
	}
	web.WriteCreated(w, enrollment)
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

func (h *TournamentHandler) Cancel(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	actor, err := middleware.RequireActor(r)
	if err != nil {
		web.WriteError(w, err)
		return
	}

	var req cancelRequest
	if r.ContentLength != 0 {
		if err := web.DecodeJSON(r, &req); err != nil {
			web.WriteError(w, err)
			return
		}
	}

	tournament, err := h.tournaments.AdminCancel(r.Context(), actor, params.ByName("id"), req.Reason)
	if err != nil {
		web.WriteError(w, err)
		return
	}
	web.WriteSuccess(w, tournament)
}

func (h *TournamentHandler) Enrollments(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	if _, err := middleware.RequireActor(r); err != nil {
		web.WriteError(w, err)
		return
	}

	enrollments, err := h.tournaments.Enrollments(r.Context(), params.ByName("id"))
	if err != nil {
		web.WriteError(w, err)
		return
	}
	web.WriteSuccess(w, enrollments)
}

func (h *TournamentHandler) Matches(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	if _, err := middleware.RequireActor(r); err != nil {
		web.WriteError(w, err)
		return
	}

	matches, err := h.tournaments.Matches(r.Context(), params.ByName("id"))
	if err != nil {
		web.WriteError(w, err)
		return
	}
	web.WriteSuccess(w, matches)
}

type resultRequest struct {
	WinnerID string `json:"winner_id"`
}

func (h *TournamentHandler) RecordResult(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	actor, err := middleware.RequireActor(r)
	if err != nil {
		web.WriteError(w, err)
		return
	}

	var req resultRequest
	if err := web.DecodeJSON(r, &req); err != nil {
		web.WriteError(w, err)
		return
	}

	match, err := h.tournaments.RecordResult(r.Context(), actor, params.ByName("id"), req.WinnerID)
	if err != nil {
		web.WriteError(w, err)
		return
	}
	web.WriteSuccess(w, match)
}

func (h *TournamentHandler) List(w http.ResponseWriter, r *http.Request) {
	if _, err := middleware.RequireActor(r); err != nil {
		web.WriteError(w, err)
		return
	}

	page, size, err := web.ExtractPageSize(r)
	if err != nil {
		web.WriteError(w, err)
		return
	}

	query := r.URL.Query()
	filter := repository.TournamentFilter{
		CampusID: query.Get("campus_id"),
		Status:   model.TournamentStatus(query.Get("status")),
	}

	tournaments, total, err := h.tournaments.List(r.Context(), filter, page, size)
	if err != nil {
		web.WriteError(w, err)
		return
	}
	web.WritePaginated(w, tournaments, total, page, size)
}
