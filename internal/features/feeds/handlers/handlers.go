package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"feedsentry/internal/core"
	"feedsentry/internal/features/feeds/services"
)

// Handlers contains all feeds feature HTTP handlers
type Handlers struct {
	logger        *core.Logger
	feeds         *services.FeedService
	entries       *services.EntryService
	favorites     *services.FavoriteService
	permissions   *services.PermissionService
	scheduler     *services.SchedulerService
	notifications *services.NotificationService
}

// NewHandlers creates a new handlers instance
func NewHandlers(
	logger *core.Logger,
	feeds *services.FeedService,
	entries *services.EntryService,
	favorites *services.FavoriteService,
	permissions *services.PermissionService,
	scheduler *services.SchedulerService,
	notifications *services.NotificationService,
) *Handlers {
	return &Handlers{
		logger:        logger,
		feeds:         feeds,
		entries:       entries,
		favorites:     favorites,
		permissions:   permissions,
		scheduler:     scheduler,
		notifications: notifications,
	}
}

// Routes returns every route served by the handlers, relative to /api
func (h *Handlers) Routes() []core.Route {
	return []core.Route{
		{Method: http.MethodGet, Path: "/feeds", Handler: h.ListFeeds},
		{Method: http.MethodPost, Path: "/feeds", Handler: h.Subscribe},
		{Method: http.MethodGet, Path: "/feeds/search", Handler: h.SearchFeeds},
		{Method: http.MethodGet, Path: "/feeds/{id}", Handler: h.GetFeed},
		{Method: http.MethodPatch, Path: "/feeds/{id}", Handler: h.UpdateFeed},
		{Method: http.MethodDelete, Path: "/feeds/{id}", Handler: h.Unsubscribe},
		{Method: http.MethodGet, Path: "/feeds/{id}/entries", Handler: h.ListFeedEntries},
		{Method: http.MethodPost, Path: "/sync", Handler: h.Sync},

		{Method: http.MethodGet, Path: "/entries", Handler: h.ListEntries},
		{Method: http.MethodGet, Path: "/entries/infinite", Handler: h.ListEntriesInfinite},
		{Method: http.MethodGet, Path: "/entries/unread-count", Handler: h.UnreadCount},
		{Method: http.MethodPost, Path: "/entries/read-all", Handler: h.MarkAllRead},
		{Method: http.MethodGet, Path: "/entries/{id}", Handler: h.GetEntry},
		{Method: http.MethodPost, Path: "/entries/{id}/read", Handler: h.MarkRead},
		{Method: http.MethodPost, Path: "/entries/{id}/toggle-read", Handler: h.ToggleRead},

		{Method: http.MethodGet, Path: "/favorites", Handler: h.ListAllFavorites},
		{Method: http.MethodPost, Path: "/favorites", Handler: h.AddFavorite},
		{Method: http.MethodGet, Path: "/favorites/status", Handler: h.FavoriteStatus},
		{Method: http.MethodPost, Path: "/favorites/toggle", Handler: h.ToggleFavorite},
		{Method: http.MethodPost, Path: "/favorites/remove", Handler: h.RemoveFavorites},
		{Method: http.MethodPost, Path: "/favorites/remove-by-entry", Handler: h.RemoveFavoriteByEntry},
		{Method: http.MethodPost, Path: "/favorites/move", Handler: h.MoveFavorites},
		{Method: http.MethodGet, Path: "/favorite-folders", Handler: h.ListFolders},
		{Method: http.MethodPost, Path: "/favorite-folders", Handler: h.CreateFolder},
		{Method: http.MethodPut, Path: "/favorite-folders/{id}", Handler: h.RenameFolder},
		{Method: http.MethodDelete, Path: "/favorite-folders/{id}", Handler: h.DeleteFolder},
		{Method: http.MethodGet, Path: "/favorite-folders/{id}/favorites", Handler: h.ListFolderFavorites},

		{Method: http.MethodGet, Path: "/permissions", Handler: h.ListPermissions},
		{Method: http.MethodPost, Path: "/permissions", Handler: h.GrantPermission},
		{Method: http.MethodDelete, Path: "/permissions", Handler: h.RevokePermission},

		{Method: http.MethodPost, Path: "/notifications/test", Handler: h.TestNotification},
		{Method: http.MethodPost, Path: "/notifications/{id}/click", Handler: h.NotificationClicked},
		{Method: http.MethodPost, Path: "/notifications/{id}/close", Handler: h.NotificationClosed},
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// decodeBody reads a JSON body into dst. An empty body leaves dst untouched.
func decodeBody(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return core.NewValidationError("invalid JSON body", err)
	}
	return nil
}

func queryInt(r *http.Request, name string) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, core.NewValidationError(fmt.Sprintf("%s must be an integer", name), err)
	}
	return n, nil
}

func queryBool(r *http.Request, name string) bool {
	v, _ := strconv.ParseBool(r.URL.Query().Get(name))
	return v
}
