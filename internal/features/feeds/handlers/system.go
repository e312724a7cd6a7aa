package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"feedsentry/internal/core"
	"feedsentry/internal/features/feeds/models"
)

type permissionRequest struct {
	URL string `json:"url"`
}

func (h *Handlers) ListPermissions(w http.ResponseWriter, r *http.Request) {
	perms, err := h.permissions.List(r.Context())
	if err != nil {
		core.HandleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"permissions": perms})
}

func (h *Handlers) GrantPermission(w http.ResponseWriter, r *http.Request) {
	var req permissionRequest
	if err := decodeBody(r, &req); err != nil {
		core.HandleError(w, err)
		return
	}

	origin, err := h.permissions.Grant(r.Context(), req.URL)
	if err != nil {
		core.HandleError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"origin": origin})
}

// RevokePermission takes the URL from ?url=
func (h *Handlers) RevokePermission(w http.ResponseWriter, r *http.Request) {
	if err := h.permissions.Revoke(r.Context(), r.URL.Query().Get("url")); err != nil {
		core.HandleError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) TestNotification(w http.ResponseWriter, r *http.Request) {
	var payload models.TestNotification
	if err := decodeBody(r, &payload); err != nil {
		core.HandleError(w, err)
		return
	}

	alert, err := h.notifications.SendTest(r.Context(), payload)
	if err != nil {
		h.logger.Error("Failed to send test notification", "error", err)
		core.HandleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"alert": alert})
}

// NotificationClicked resolves the alert's target. Unknown or expired
// alerts answer 404.
func (h *Handlers) NotificationClicked(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	target, ok, err := h.notifications.HandleClick(r.Context(), id)
	if err != nil {
		core.HandleError(w, err)
		return
	}
	if !ok {
		core.HandleError(w, core.NewNotFoundError("no pending alert: "+id, nil))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"targetUrl": target})
}

func (h *Handlers) NotificationClosed(w http.ResponseWriter, r *http.Request) {
	h.notifications.HandleClosed(chi.URLParam(r, "id"))
	w.WriteHeader(http.StatusNoContent)
}
