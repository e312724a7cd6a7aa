package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"feedsentry/internal/core"
	"feedsentry/internal/features/feeds/models"
)

type markAllReadRequest struct {
	FeedID string `json:"feedId"`
}

func (h *Handlers) ListEntries(w http.ResponseWriter, r *http.Request) {
	h.listEntries(w, r, r.URL.Query().Get("feedId"))
}

// ListFeedEntries is the page alerts link to; keywordFilter=true narrows it
// to keyword matches.
func (h *Handlers) ListFeedEntries(w http.ResponseWriter, r *http.Request) {
	h.listEntries(w, r, chi.URLParam(r, "id"))
}

func (h *Handlers) listEntries(w http.ResponseWriter, r *http.Request, feedID string) {
	read, err := parseReadFilter(r)
	if err != nil {
		core.HandleError(w, err)
		return
	}
	page, err := queryInt(r, "page")
	if err != nil {
		core.HandleError(w, err)
		return
	}
	pageSize, err := queryInt(r, "pageSize")
	if err != nil {
		core.HandleError(w, err)
		return
	}
	keywords, err := h.keywordFilter(r)
	if err != nil {
		core.HandleError(w, err)
		return
	}

	result, err := h.entries.Query(r.Context(), models.EntryQuery{
		FeedID:        feedID,
		Read:          read,
		Search:        r.URL.Query().Get("search"),
		Page:          page,
		PageSize:      pageSize,
		KeywordFilter: keywords,
	})
	if err != nil {
		core.HandleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handlers) ListEntriesInfinite(w http.ResponseWriter, r *http.Request) {
	read, err := parseReadFilter(r)
	if err != nil {
		core.HandleError(w, err)
		return
	}
	cursor, err := parseCursor(r.URL.Query().Get("cursor"))
	if err != nil {
		core.HandleError(w, err)
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		core.HandleError(w, err)
		return
	}
	maxTotal, err := queryInt(r, "maxTotal")
	if err != nil {
		core.HandleError(w, err)
		return
	}
	keywords, err := h.keywordFilter(r)
	if err != nil {
		core.HandleError(w, err)
		return
	}

	result, err := h.entries.QueryInfinite(r.Context(), models.InfiniteQuery{
		FeedID:               r.URL.Query().Get("feedId"),
		Read:                 read,
		Search:               r.URL.Query().Get("search"),
		Cursor:               cursor,
		Limit:                limit,
		MaxTotal:             maxTotal,
		ExcludeInactiveFeeds: queryBool(r, "excludeInactive"),
		KeywordFilter:        keywords,
	})
	if err != nil {
		core.HandleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handlers) GetEntry(w http.ResponseWriter, r *http.Request) {
	entry, err := h.entries.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		core.HandleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entry": entry})
}

func (h *Handlers) MarkRead(w http.ResponseWriter, r *http.Request) {
	if err := h.entries.MarkRead(r.Context(), chi.URLParam(r, "id")); err != nil {
		core.HandleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"isRead": true})
}

func (h *Handlers) ToggleRead(w http.ResponseWriter, r *http.Request) {
	isRead, err := h.entries.ToggleRead(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		core.HandleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"isRead": isRead})
}

func (h *Handlers) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	var req markAllReadRequest
	if err := decodeBody(r, &req); err != nil {
		core.HandleError(w, err)
		return
	}

	changed, err := h.entries.MarkAllRead(r.Context(), req.FeedID)
	if err != nil {
		core.HandleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"changed": changed})
}

func (h *Handlers) UnreadCount(w http.ResponseWriter, r *http.Request) {
	count, err := h.entries.UnreadCount(r.Context(), r.URL.Query().Get("feedId"), queryBool(r, "activeOnly"))
	if err != nil {
		core.HandleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"count": count})
}

func (h *Handlers) keywordFilter(r *http.Request) (map[string][]string, error) {
	if !queryBool(r, "keywordFilter") {
		return nil, nil
	}
	return h.feeds.KeywordMap(r.Context())
}

func parseReadFilter(r *http.Request) (models.ReadFilter, error) {
	switch filter := models.ReadFilter(r.URL.Query().Get("read")); filter {
	case models.ReadAny, models.ReadOnly, models.UnreadOnly:
		return filter, nil
	default:
		return "", core.NewValidationError("read must be 'read' or 'unread'", nil)
	}
}

// parseCursor accepts an RFC 3339 timestamp or unix milliseconds
func parseCursor(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.UnixMilli(ms), nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, core.NewValidationError("cursor must be RFC 3339 or unix milliseconds", err)
	}
	return t, nil
}
