package middleware

import (
	"context"
	"net/http"

	apperrors "rally/pkg/errors"
	"rally/pkg/model"
)

const (
	HeaderUserID   = "X-User-ID"
	HeaderUserRole = "X-User-Role"
)

const actorKey contextKey = "actor"

// Identity resolves the calling user from trusted gateway headers and
// stores the resulting Actor in the request context. Requests without
// identity headers pass through; handlers that need an identity call
// RequireActor.
func Identity() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := r.Header.Get(HeaderUserID)
			role := model.Role(r.Header.Get(HeaderUserRole))

			if userID != "" && role.Valid() {
				actor := model.Actor{UserID: userID, Role: role}
				r = r.WithContext(context.WithValue(r.Context(), actorKey, actor))
			}

			next.ServeHTTP(w, r)
		})
	}
}

func ActorFrom(r *http.Request) (model.Actor, bool) {
	actor, ok := r.Context().Value(actorKey).(model.Actor)
	return actor, ok
}

// RequireActor returns the request's Actor or an unauthorized error
// when the identity headers were missing or malformed.
func RequireActor(r *http.Request) (model.Actor, error) {
	actor, ok := ActorFrom(r)
	if !ok {
		return model.Actor{}, apperrors.Unauthorized("missing or invalid identity headers")
	}
	return actor, nil
}
