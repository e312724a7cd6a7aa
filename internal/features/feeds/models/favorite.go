package models

import "time"

// DefaultFolderName is the name of the lazily created default folder
const DefaultFolderName = "Default Favorites"

// FavoriteFolder groups favorites
type FavoriteFolder struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	IsDefault bool      `json:"isDefault"`
	Order     int       `json:"order"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// FavoriteFolderSummary is a folder with the number of favorites it holds
type FavoriteFolderSummary struct {
	FavoriteFolder
	Total int `json:"total"`
}

// FavoriteSource tells whether a favorite came from a subscription entry
type FavoriteSource string

const (
	SourceSubscription FavoriteSource = "subscription"
	SourceManual       FavoriteSource = "manual"
)

// CreatedFrom records which surface created a favorite
type CreatedFrom string

const (
	CreatedFromPopup      CreatedFrom = "popup"
	CreatedFromOptions    CreatedFrom = "options"
	CreatedFromBackground CreatedFrom = "background"
	CreatedFromAPI        CreatedFrom = "api"
)

// Favorite is a bookmark that outlives the entry it was made from
type Favorite struct {
	ID          string         `json:"id"`
	FolderID    string         `json:"folderId"`
	ItemID      string         `json:"itemId,omitempty"`
	Title       string         `json:"title"`
	Link        string         `json:"link"`
	Source      FavoriteSource `json:"source"`
	CreatedFrom CreatedFrom    `json:"createdFrom"`
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
}

// FavoriteInput describes a favorite to add or toggle
type FavoriteInput struct {
	FolderID    string         `json:"folderId"`
	ItemID      string         `json:"itemId"`
	Title       string         `json:"title"`
	Link        string         `json:"link"`
	Source      FavoriteSource `json:"source"`
	CreatedFrom CreatedFrom    `json:"createdFrom"`
}

// FolderDeleteStrategy decides what happens to a deleted folder's favorites
type FolderDeleteStrategy string

const (
	MoveToDefault FolderDeleteStrategy = "move-to-default"
	DeleteAll     FolderDeleteStrategy = "delete-all"
)

// FavoriteSort orders favorite listings
type FavoriteSort string

const (
	SortCreatedDesc FavoriteSort = "createTime-desc"
	SortCreatedAsc  FavoriteSort = "createTime-asc"
	SortTitleAsc    FavoriteSort = "title-asc"
	SortTitleDesc   FavoriteSort = "title-desc"
)

// FavoriteQuery filters and pages favorites within a folder. A zero Limit
// returns everything after Offset.
type FavoriteQuery struct {
	Keyword string
	Sort    FavoriteSort
	Limit   int
	Offset  int
}

// FavoriteList is a page of favorites
type FavoriteList struct {
	Data  []Favorite `json:"data"`
	Total int        `json:"total"`
}
