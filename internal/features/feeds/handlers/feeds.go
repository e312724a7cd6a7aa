package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"feedsentry/internal/core"
	"feedsentry/internal/features/feeds/models"
)

type subscribeRequest struct {
	URL string `json:"url"`
	models.SubscribeOptions
}

type syncRequest struct {
	FeedID string `json:"feedId"`
}

func (h *Handlers) ListFeeds(w http.ResponseWriter, r *http.Request) {
	feeds, err := h.feeds.List(r.Context(), queryBool(r, "active"))
	if err != nil {
		core.HandleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"feeds": feeds})
}

func (h *Handlers) SearchFeeds(w http.ResponseWriter, r *http.Request) {
	feeds, err := h.feeds.Search(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		core.HandleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"feeds": feeds})
}

func (h *Handlers) Subscribe(w http.ResponseWriter, r *http.Request) {
	var req subscribeRequest
	if err := decodeBody(r, &req); err != nil {
		core.HandleError(w, err)
		return
	}

	feed, err := h.feeds.Subscribe(r.Context(), req.URL, req.SubscribeOptions)
	if err != nil {
		h.logger.Warn("Subscribe failed", "url", req.URL, "error", err)
		core.HandleError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"feed": feed})
}

func (h *Handlers) GetFeed(w http.ResponseWriter, r *http.Request) {
	feed, err := h.feeds.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		core.HandleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"feed": feed})
}

func (h *Handlers) UpdateFeed(w http.ResponseWriter, r *http.Request) {
	var patch models.FeedPatch
	if err := decodeBody(r, &patch); err != nil {
		core.HandleError(w, err)
		return
	}

	feed, err := h.feeds.Update(r.Context(), chi.URLParam(r, "id"), patch)
	if err != nil {
		core.HandleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"feed": feed})
}

func (h *Handlers) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	if err := h.feeds.Unsubscribe(r.Context(), chi.URLParam(r, "id")); err != nil {
		core.HandleError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Sync polls one feed when feedId is given, otherwise every active feed
func (h *Handlers) Sync(w http.ResponseWriter, r *http.Request) {
	var req syncRequest
	if err := decodeBody(r, &req); err != nil {
		core.HandleError(w, err)
		return
	}

	var (
		summary *models.SyncSummary
		err     error
	)
	if req.FeedID != "" {
		summary, err = h.scheduler.SyncOne(r.Context(), req.FeedID)
	} else {
		summary, err = h.scheduler.SyncAll(r.Context())
	}
	if err != nil {
		core.HandleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"summary": summary})
}
