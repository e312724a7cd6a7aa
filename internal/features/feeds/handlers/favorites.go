package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"feedsentry/internal/core"
	"feedsentry/internal/features/feeds/models"
)

type favoriteIDsRequest struct {
	IDs      []string `json:"ids"`
	FolderID string   `json:"folderId"`
}

type entryRefRequest struct {
	ItemID string `json:"itemId"`
	Link   string `json:"link"`
}

type folderRequest struct {
	Name string `json:"name"`
}

func (h *Handlers) ListAllFavorites(w http.ResponseWriter, r *http.Request) {
	favorites, err := h.favorites.ListAll(r.Context())
	if err != nil {
		core.HandleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"favorites": favorites})
}

func (h *Handlers) AddFavorite(w http.ResponseWriter, r *http.Request) {
	var input models.FavoriteInput
	if err := decodeBody(r, &input); err != nil {
		core.HandleError(w, err)
		return
	}

	favorite, err := h.favorites.Add(r.Context(), input)
	if err != nil {
		core.HandleError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"favorite": favorite})
}

func (h *Handlers) FavoriteStatus(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	favorited, err := h.favorites.IsFavorited(r.Context(), query.Get("itemId"), query.Get("link"))
	if err != nil {
		core.HandleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"isFavorite": favorited})
}

func (h *Handlers) ToggleFavorite(w http.ResponseWriter, r *http.Request) {
	var input models.FavoriteInput
	if err := decodeBody(r, &input); err != nil {
		core.HandleError(w, err)
		return
	}

	favorite, added, err := h.favorites.Toggle(r.Context(), input)
	if err != nil {
		core.HandleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"isFavorite": added, "favorite": favorite})
}

func (h *Handlers) RemoveFavorites(w http.ResponseWriter, r *http.Request) {
	var req favoriteIDsRequest
	if err := decodeBody(r, &req); err != nil {
		core.HandleError(w, err)
		return
	}

	if err := h.favorites.Remove(r.Context(), req.IDs); err != nil {
		core.HandleError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) RemoveFavoriteByEntry(w http.ResponseWriter, r *http.Request) {
	var req entryRefRequest
	if err := decodeBody(r, &req); err != nil {
		core.HandleError(w, err)
		return
	}

	removed, err := h.favorites.RemoveByEntry(r.Context(), req.ItemID, req.Link)
	if err != nil {
		core.HandleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"removed": removed})
}

func (h *Handlers) MoveFavorites(w http.ResponseWriter, r *http.Request) {
	var req favoriteIDsRequest
	if err := decodeBody(r, &req); err != nil {
		core.HandleError(w, err)
		return
	}

	if err := h.favorites.Move(r.Context(), req.IDs, req.FolderID); err != nil {
		core.HandleError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) ListFolders(w http.ResponseWriter, r *http.Request) {
	folders, err := h.favorites.ListFolders(r.Context())
	if err != nil {
		core.HandleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"folders": folders})
}

func (h *Handlers) CreateFolder(w http.ResponseWriter, r *http.Request) {
	var req folderRequest
	if err := decodeBody(r, &req); err != nil {
		core.HandleError(w, err)
		return
	}

	folder, err := h.favorites.CreateFolder(r.Context(), req.Name)
	if err != nil {
		core.HandleError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"folder": folder})
}

func (h *Handlers) RenameFolder(w http.ResponseWriter, r *http.Request) {
	var req folderRequest
	if err := decodeBody(r, &req); err != nil {
		core.HandleError(w, err)
		return
	}

	if err := h.favorites.RenameFolder(r.Context(), chi.URLParam(r, "id"), req.Name); err != nil {
		core.HandleError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteFolder takes the strategy from ?strategy=, moving favorites to the
// default folder when it is omitted.
func (h *Handlers) DeleteFolder(w http.ResponseWriter, r *http.Request) {
	strategy := models.FolderDeleteStrategy(r.URL.Query().Get("strategy"))
	if strategy == "" {
		strategy = models.MoveToDefault
	}

	if err := h.favorites.DeleteFolder(r.Context(), chi.URLParam(r, "id"), strategy); err != nil {
		core.HandleError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) ListFolderFavorites(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		core.HandleError(w, err)
		return
	}
	offset, err := queryInt(r, "offset")
	if err != nil {
		core.HandleError(w, err)
		return
	}

	list, err := h.favorites.List(r.Context(), chi.URLParam(r, "id"), models.FavoriteQuery{
		Keyword: r.URL.Query().Get("keyword"),
		Sort:    models.FavoriteSort(r.URL.Query().Get("sort")),
		Limit:   limit,
		Offset:  offset,
	})
	if err != nil {
		core.HandleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}
