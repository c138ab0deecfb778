package handler

import (
	"net/http"

	"github.com/julienschmidt/httprouter"

	"golang.org/x/sync/errgroup"

	"rally/internal/notify/repository"
	apperrors "rally/pkg/errors"
	"rally/pkg/logger"
	"rally/pkg/middleware"
	"rally/pkg/model"
	"rally/pkg/web"
)

// NotificationHandler serves each user's own notification feed.
type NotificationHandler struct {
	notifications repository.NotificationRepository
	logger        *logger.Logger
}

func NewNotificationHandler(notifications repository.NotificationRepository, log *logger.Logger) *NotificationHandler {
	return &NotificationHandler{notifications: notifications, logger: log}
}

func (h *NotificationHandler) RegisterRoutes(router *httprouter.Router) {
	router.HandlerFunc(http.MethodGet, "/api/notifications", h.List)
	router.Handle(http.MethodPost, "/api/notifications/:id/read", h.MarkRead)
}

func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
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

	var (
		notifications []*model.Notification
		total         int64
	)

	g, gctx := errgroup.WithContext(r.Context())
	g.Go(func() error {
		var err error
		total, err = h.notifications.CountByUser(gctx, actor.UserID)
		return err
	})
	g.Go(func() error {
		var err error
		notifications, err = h.notifications.FindByUser(gctx, actor.UserID, page, size)
		return err
	})
	if err := g.Wait(); err != nil {
		web.WriteError(w, apperrors.Internal("Failed to list notifications", err))
		return
	}

	web.WritePaginated(w, notifications, total, page, size)
}

func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	actor, err := middleware.RequireActor(r)
	if err != nil {
		web.WriteError(w, err)
		return
	}

	if err := h.notifications.MarkRead(r.Context(), params.ByName("id"), actor.UserID); err != nil {
		web.WriteError(w, apperrors.Internal("Failed to mark notification read", err))
		return
	}
	web.WriteSuccess(w, nil)
}
