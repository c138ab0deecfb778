package handler

import (
	"net/http"

	"github.com/julienschmidt/httprouter"

	"rally/internal/courses/repository"
	"rally/internal/courses/service"
	"rally/internal/courses/validator"
	apperrors "rally/pkg/errors"
	"rally/pkg/logger"
	"rally/pkg/middleware"
	"rally/pkg/model"
	"rally/pkg/web"
)

type CourseHandler struct {
	courses service.CourseService
	logger  *logger.Logger
}

func NewCourseHandler(courses service.CourseService, log *logger.Logger) *CourseHandler {
	return &CourseHandler{courses: courses, logger: log}
}

func (h *CourseHandler) RegisterRoutes(router *httprouter.Router) {
	router.HandlerFunc(http.MethodPost, "/api/courses", h.Book)
	router.HandlerFunc(http.MethodGet, "/api/courses", h.List)
	router.Handle(http.MethodGet, "/api/courses/:id", h.GetByID)
	router.Handle(http.MethodPost, "/api/courses/:id/confirm", h.Confirm)
	router.Handle(http.MethodPost, "/api/courses/:id/reject", h.Reject)
	router.Handle(http.MethodPost, "/api/courses/:id/cancel", h.Cancel)

	router.HandlerFunc(http.MethodGet, "/api/tables/available", h.AvailableTables)
	router.Handle(http.MethodGet, "/api/coaches/:id/income", h.MonthlyIncome)
	router.Handle(http.MethodGet, "/api/campuses/:id/confirmed-today", h.TodayConfirmedCount)
	router.Handle(http.MethodGet, "/api/students/:id/cancellations", h.CancellationsUsed)
}

func (h *CourseHandler) Book(w http.ResponseWriter, r *http.Request) {
	actor, err := middleware.RequireActor(r)
	if err != nil {
		web.WriteError(w, err)
		return
	}

	var req validator.BookRequest
	if err := web.DecodeJSON(r, &req); err != nil {
		web.WriteError(w, err)
		return
	}

	course, err := h.courses.Book(r.Context(), actor, &req)
	if err != nil {
		web.WriteError(w, err)
		return
	}
	web.WriteCreated(w, course)
}

func (h *CourseHandler) GetByID(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	actor, err := middleware.RequireActor(r)
	if err != nil {
		web.WriteError(w, err)
		return
	}

	course, err := h.courses.GetByID(r.Context(), actor, params.ByName("id"))
	if err != nil {
		web.WriteError(w, err)
		return
	}
	web.WriteSuccess(w, course)
}

func (h *CourseHandler) Confirm(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	actor, err := middleware.RequireActor(r)
	if err != nil {
		web.WriteError(w, err)
		return
	}

	course, err := h.courses.Confirm(r.Context(), actor, params.ByName("id"))
	if err != nil {
		web.WriteError(w, err)
		return
	}
	web.WriteSuccess(w, course)
}

type reasonRequest struct {
	Reason string `json:"reason"`
}

func (h *CourseHandler) Reject(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
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

	course, err := h.courses.Reject(r.Context(), actor, params.ByName("id"), req.Reason)
	if err != nil {
		web.WriteError(w, err)
		return
	}
	web.WriteSuccess(w, course)
}

func (h *CourseHandler) Cancel(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
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

	course, err := h.courses.Cancel(r.Context(), actor, params.ByName("id"), req.Reason)
	if err != nil {
		web.WriteError(w, err)
		return
	}
	web.WriteSuccess(w, course)
}

func (h *CourseHandler) List(w http.ResponseWriter, r *http.Request) {
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
	filter := repository.CourseFilter{
		CoachID:   query.Get("coach_id"),
		StudentID: query.Get("student_id"),
		CampusID:  query.Get("campus_id"),
	}
	if s := query.Get("status"); s != "" {
		status := model.CourseStatus(s)
		if !status.Valid() {
			web.WriteError(w, apperrors.InvalidInput("invalid status parameter: "+s))
			return
		}
		filter.Status = status
	}
	if from, err := web.ExtractDateTime(r, "from"); err != nil {
		web.WriteError(w, err)
		return
	} else if !from.IsZero() {
		filter.From = &from.Time
	}
	if to, err := web.ExtractDateTime(r, "to"); err != nil {
		web.WriteError(w, err)
		return
	} else if !to.IsZero() {
		filter.To = &to.Time
	}

	courses, total, err := h.courses.List(r.Context(), actor, filter, page, size)
	if err != nil {
		web.WriteError(w, err)
		return
	}
	web.WritePaginated(w, courses, total, page, size)
}

func (h *CourseHandler) AvailableTables(w http.ResponseWriter, r *http.Request) {
	if _, err := middleware.RequireActor(r); err != nil {
		web.WriteError(w, err)
		return
	}

	start, err := web.ExtractDateTime(r, "start_time")
	if err != nil {
		web.WriteError(w, err)
		return
	}
	end, err := web.ExtractDateTime(r, "end_time")
	if err != nil {
		web.WriteError(w, err)
		return
	}
	if start.IsZero() || end.IsZero() {
		web.WriteError(w, apperrors.InvalidInput("start_time and end_time are required"))
		return
	}

	tables, err := h.courses.AvailableTables(r.Context(), r.URL.Query().Get("campus_id"), start.Time, end.Time)
	if err != nil {
		web.WriteError(w, err)
		return
	}
	web.WriteSuccess(w, tables)
}

func (h *CourseHandler) MonthlyIncome(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	actor, err := middleware.RequireActor(r)
	if err != nil {
		web.WriteError(w, err)
		return
	}

	coachID := params.ByName("id")
	yearMonth := r.URL.Query().Get("year_month")
	if yearMonth == "" {
		web.WriteError(w, apperrors.InvalidInput("year_month is required"))
		return
	}

	total, err := h.courses.MonthlyIncome(r.Context(), actor, coachID, yearMonth)
	if err != nil {
		web.WriteError(w, err)
		return
	}
	web.WriteSuccess(w, map[string]any{
		"coach_id":   coachID,
		"year_month": yearMonth,
		"income":     total,
	})
}

func (h *CourseHandler) TodayConfirmedCount(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	actor, err := middleware.RequireActor(r)
	if err != nil {
		web.WriteError(w, err)
		return
	}

	count, err := h.courses.TodayConfirmedCount(r.Context(), actor, params.ByName("id"))
	if err != nil {
		web.WriteError(w, err)
		return
	}
	web.WriteSuccess(w, map[string]any{
		"campus_id": params.ByName("id"),
		"confirmed": count,
	})
}

func (h *CourseHandler) CancellationsUsed(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	actor, err := middleware.RequireActor(r)
	if err != nil {
		web.WriteError(w, err)
		return
	}

	used, limit, err := h.courses.CancellationsUsed(r.Context(), actor, params.ByName("id"))
	if err != nil {
		web.WriteError(w, err)
		return
	}
	web.WriteSuccess(w, map[string]any{
		"student_id": params.ByName("id"),
		"used":       used,
		"limit":      limit,
		"remaining":  max(0, limit-used),
	})
}
