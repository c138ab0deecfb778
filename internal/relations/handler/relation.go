package handler

import (
	"net/http"

	"github.com/julienschmidt/httprouter"

	"rally/internal/relations/repository"
	"rally/internal/relations/service"
	"rally/pkg/logger"
	"rally/pkg/middleware"
	"rally/pkg/model"
	"rally/pkg/web"
)

type RelationHandler struct {
	relations service.RelationService
	logger    *logger.Logger
}

func NewRelationHandler(relations service.RelationService, log *logger.Logger) *RelationHandler {
	return &RelationHandler{relations: relations, logger: log}
}

func (h *RelationHandler) RegisterRoutes(router *httprouter.Router) {
	router.HandlerFunc(http.MethodPost, "/api/relations", h.Apply)
	router.HandlerFunc(http.MethodGet, "/api/relations", h.List)
	router.Handle(http.MethodPost, "/api/students/:id/change-coach", h.ChangeCoach)
	router.Handle(http.MethodGet, "/api/relations/:id", h.GetByID)
	router.Handle(http.MethodPost, "/api/relations/:id/approve", h.Approve)
	router.Handle(http.MethodPost, "/api/relations/:id/reject", h.Reject)
	router.Handle(http.MethodPost, "/api/relations/:id/terminate", h.Terminate)
}

type applyRequest struct {
	CoachID   string `json:"coach_id"`
	StudentID string `json:"student_id"`
}

func (h *RelationHandler) Apply(w http.ResponseWriter, r *http.Request) {
	actor, err := middleware.RequireActor(r)
	if err != nil {
		web.WriteError(w, err)
		return
	}

	var req applyRequest
	if err := web.DecodeJSON(r, &req); err != nil {
		web.WriteError(w, err)
		return
	}

	relation, err := h.relations.Apply(r.Context(), actor, req.CoachID, req.StudentID)
	if err != nil {
		web.WriteError(w, err)
		return
	}
	web.WriteCreated(w, relation)
}

func (h *RelationHandler) GetByID(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	actor, err := middleware.RequireActor(r)
	if err != nil {
		web.WriteError(w, err)
		return
	}

	relation, err := h.relations.GetByID(r.Context(), actor, params.ByName("id"))
	if err != nil {
		web.WriteError(w, err)
		return
	}
	web.WriteSuccess(w, relation)
}

func (h *RelationHandler) Approve(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	actor, err := middleware.RequireActor(r)
	if err != nil {
		web.WriteError(w, err)
		return
	}

	relation, err := h.relations.Approve(r.Context(), actor, params.ByName("id"))
	if err != nil {
		web.WriteError(w, err)
		return
	}
	web.WriteSuccess(w, relation)
}

type reasonRequest struct {
	Reason string `json:"reason"`
}

func (h *RelationHandler) Reject(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	actor, err := middleware.RequireActor(r)
	if err != nil {
		web.WriteError(w, err)
		return
	}

	var req reasonRequest
	if r.ContentLength != 0 {
		if err := web.DecodeJSON(r, &req); err != nil {
			web.WriteError(w, err)
			return
		}
	}

	relation, err := h.relations.Reject(r.Context(), actor, params.ByName("id"), req.Reason)
	if err != nil {
		web.WriteError(w, err)
		return
	}
	web.WriteSuccess(w, relation)
}

func (h *RelationHandler) Terminate(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	actor, err := middleware.RequireActor(r)
	if err != nil {
		web.WriteError(w, err)
		return
	}

	var req reasonRequest
	if r.ContentLength != 0 {
		if err := web.DecodeJSON(r, &req); err != nil {
			web.WriteError(w, err)
			return
		}
	}

	relation, err := h.relations.Terminate(r.Context(), actor, params.ByName("id"), req.Reason)
	if err != nil {
		web.WriteError(w, err)
		return
	}
	web.WriteSuccess(w, relation)
}

type changeCoachRequest struct {
	OldCoachID string `json:"old_coach_id"`
	NewCoachID string `json:"new_coach_id"`
}

func (h *RelationHandler) ChangeCoach(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	actor, err := middleware.RequireActor(r)
	if err != nil {
		web.WriteError(w, err)
		return
	}

	var req changeCoachRequest
	if err := web.DecodeJSON(r, &req); err != nil {
		web.WriteError(w, err)
		return
	}

	relation, err := h.relations.ChangeCoach(r.Context(), actor, params.ByName("id"), req.OldCoachID, req.NewCoachID)
	if err != nil {
		web.WriteError(w, err)
		return
	}
	web.WriteCreated(w, relation)
}

func (h *RelationHandler) List(w http.ResponseWriter, r *http.Request) {
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

	query := r.URL.Query()
	filter := repository.RelationFilter{
		CoachID:   query.Get("coach_id"),
		StudentID: query.Get("student_id"),
		Status:    model.RelationStatus(query.Get("status")),
	}

	relations, total, err := h.relations.List(r.Context(), actor, filter, page, size)
	if err != nil {
		web.WriteError(w, err)
		return
	}
	web.WritePaginated(w, relations, total, page, size)
}
