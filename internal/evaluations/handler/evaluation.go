package handler

import (
	"net/http"

	"github.com/julienschmidt/httprouter"

	"rally/internal/evaluations/service"
	"rally/pkg/logger"
	"rally/pkg/middleware"
	"rally/pkg/web"
)

type EvaluationHandler struct {
	evaluations service.EvaluationService
	logger      *logger.Logger
}

func NewEvaluationHandler(evaluations service.EvaluationService, log *logger.Logger) *EvaluationHandler {
	return &EvaluationHandler{evaluations: evaluations, logger: log}
}

func (h *EvaluationHandler) RegisterRoutes(router *httprouter.Router) {
	router.HandlerFunc(http.MethodPost, "/api/evaluations", h.Create)
	router.Handle(http.MethodGet, "/api/courses/:id/evaluations", h.ListByCourse)
	router.Handle(http.MethodGet, "/api/users/:id/evaluations", h.ListByAuthor)
}

type createRequest struct {
	CourseID string `json:"course_id"`
	Rating   int    `json:"rating"`
	Content  string `json:"content"`
}

func (h *EvaluationHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, err := middleware.RequireActor(r)
	if err != nil {
		web.WriteError(w, err)
		return
	}

	var req createRequest
	if err := web.DecodeJSON(r, &req); err != nil {
		web.WriteError(w, err)
		return
	}

	evaluation, err := h.evaluations.Create(r.Context(), actor, req.CourseID, req.Rating, req.Content)
	if err != nil {
		web.WriteError(w, err)
		return
	}
	web.WriteCreated(w, evaluation)
}

func (h *EvaluationHandler) ListByCourse(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	if _, err := middleware.RequireActor(r); err != nil {
		web.WriteError(w, err)
		return
	}

	evaluations, err := h.evaluations.ListByCourse(r.Context(), params.ByName("id"))
	if err != nil {
		web.WriteError(w, err)
		return
	}
	web.WriteSuccess(w, evaluations)
}

func (h *EvaluationHandler) ListByAuthor(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
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

	evaluations, total, err := h.evaluations.ListByAuthor(r.Context(), actor, params.ByName("id"), page, size)
	if err != nil {
		web.WriteError(w, err)
		return
	}
	web.WritePaginated(w, evaluations, total, page, size)
}
