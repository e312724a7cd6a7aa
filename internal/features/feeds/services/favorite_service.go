package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"feedsentry/internal/broadcast"
	"feedsentry/internal/core"
	"feedsentry/internal/features/feeds/models"
)

// FavoriteService manages favorite folders and the favorites inside them
type FavoriteService struct {
	db     *core.Database
	bus    broadcast.Publisher
	logger *core.Logger
	now    Clock
}

// NewFavoriteService creates a new favorite service
func NewFavoriteService(db *core.Database, bus broadcast.Publisher, logger *core.Logger) *FavoriteService {
	return &FavoriteService{
		db:     db,
		bus:    bus,
		logger: logger,
		now:    time.Now,
	}
}

const (
	folderColumns   = `id, name, is_default, sort_order, created_at, updated_at`
	favoriteColumns = `id, folder_id, item_id, title, link, source, created_from, created_at, updated_at`
)

// DefaultFolder returns the default folder, creating it on first use. A
// unique index keeps concurrent first uses from creating two.
func (s *FavoriteService) DefaultFolder(ctx context.Context) (*models.FavoriteFolder, error) {
	folder, err := s.loadDefaultFolder(ctx)
	if err == nil {
		return folder, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, core.NewDatabaseError("failed to load default folder", err)
	}

	now := s.now()
	folder = &models.FavoriteFolder{
		ID:        uuid.NewString(),
		Name:      models.DefaultFolderName,
		IsDefault: true,
		Order:     0,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := insertFolder(ctx, s.db, folder); err != nil {
		// Lost the race to another caller
		if existing, lerr := s.loadDefaultFolder(ctx); lerr == nil {
			return existing, nil
		}
		return nil, core.NewDatabaseError("failed to create default folder", err)
	}

	s.logger.Info("Created default favorite folder", "folder_id", folder.ID)
	return folder, nil
}

func (s *FavoriteService) loadDefaultFolder(ctx context.Context) (*models.FavoriteFolder, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+folderColumns+` FROM favorite_folders WHERE is_default = ? ORDER BY created_at LIMIT 1`, true)
	return scanFolder(row)
}

// ListFolders returns every folder in display order with its favorite count
func (s *FavoriteService) ListFolders(ctx context.Context) ([]models.FavoriteFolderSummary, error) {
	if _, err := s.DefaultFolder(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT f.id, f.name, f.is_default, f.sort_order, f.created_at, f.updated_at,
		       (SELECT COUNT(*) FROM favorites WHERE folder_id = f.id)
		FROM favorite_folders f
		ORDER BY f.sort_order, f.created_at`)
	if err != nil {
		return nil, core.NewDatabaseError("failed to list folders", err)
	}
	defer rows.Close()

	folders := []models.FavoriteFolderSummary{}
	for rows.Next() {
		var summary models.FavoriteFolderSummary
		var createdAt, updatedAt int64
		if err := rows.Scan(
			&summary.ID, &summary.Name, &summary.IsDefault, &summary.Order,
			&createdAt, &updatedAt, &summary.Total,
		); err != nil {
			return nil, core.NewDatabaseError("failed to scan folder", err)
		}
		summary.CreatedAt = time.UnixMilli(createdAt)
		summary.UpdatedAt = time.UnixMilli(updatedAt)
		folders = append(folders, summary)
	}
	if err := rows.Err(); err != nil {
		return nil, core.NewDatabaseError("failed to list folders", err)
	}
	return folders, nil
}

// CreateFolder appends a folder after the existing ones
func (s *FavoriteService) CreateFolder(ctx context.Context, name string) (*models.FavoriteFolder, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, core.NewValidationError("folder name is required", nil)
	}
	if _, err := s.DefaultFolder(ctx); err != nil {
		return nil, err
	}

	var maxOrder int
	if err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(sort_order), 0) FROM favorite_folders`).Scan(&maxOrder); err != nil {
		return nil, core.NewDatabaseError("failed to read folder order", err)
	}

	now := s.now()
	folder := &models.FavoriteFolder{
		ID:        uuid.NewString(),
		Name:      name,
		Order:     maxOrder + 1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := insertFolder(ctx, s.db, folder); err != nil {
		return nil, core.NewDatabaseError("failed to create folder", err)
	}

	s.announceFolders(ctx, folder.ID, "created")
	return folder, nil
}

// RenameFolder changes a folder's name
func (s *FavoriteService) RenameFolder(ctx context.Context, folderID, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return core.NewValidationError("folder name is required", nil)
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE favorite_folders SET name = ?, updated_at = ? WHERE id = ?`,
		name, s.now().UnixMilli(), folderID)
	if err != nil {
		return core.NewDatabaseError("failed to rename folder", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return folderNotFound(folderID)
	}

	s.announceFolders(ctx, folderID, "renamed")
	return nil
}

// DeleteFolder removes a non-default folder, moving its favorites to the
// default folder or deleting them according to strategy.
func (s *FavoriteService) DeleteFolder(ctx context.Context, folderID string, strategy models.FolderDeleteStrategy) error {
	if strategy != models.MoveToDefault && strategy != models.DeleteAll {
		return core.NewValidationError(fmt.Sprintf("unknown delete strategy: %q", strategy), nil)
	}

	folder, err := s.getFolder(ctx, folderID)
	if err != nil {
		return err
	}
	if folder.IsDefault {
		return core.NewDefaultFolderProtectedError("the default folder cannot be deleted", nil)
	}

	defaultFolder, err := s.DefaultFolder(ctx)
	if err != nil {
		return err
	}

	err = s.db.Transaction(ctx, func(tx *core.Tx) error {
		if strategy == models.MoveToDefault {
			now := s.now().UnixMilli()
			if _, err := tx.ExecContext(ctx,
				`UPDATE favorites SET folder_id = ?, created_at = ?, updated_at = ? WHERE folder_id = ?`,
				defaultFolder.ID, now, now, folderID); err != nil {
				return fmt.Errorf("failed to move favorites: %w", err)
			}
		} else {
			if _, err := tx.ExecContext(ctx, `DELETE FROM favorites WHERE folder_id = ?`, folderID); err != nil {
				return fmt.Errorf("failed to delete favorites: %w", err)
			}
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM favorite_folders WHERE id = ?`, folderID); err != nil {
			return fmt.Errorf("failed to delete folder: %w", err)
		}
		return nil
	})
	if err != nil {
		return core.NewDatabaseError("failed to delete folder", err)
	}

	s.logger.Info("Deleted favorite folder", "folder_id", folderID, "strategy", strategy)
	s.announceFolders(ctx, folderID, "deleted")
	s.announceFavorites(ctx, broadcast.FavoritesUpdatedPayload{FolderID: folderID, Action: "folder_deleted"})
	return nil
}

// Add stores a favorite unless one already exists for the same entry or
// link, in which case the existing favorite is returned.
func (s *FavoriteService) Add(ctx context.Context, input models.FavoriteInput) (*models.Favorite, error) {
	itemID, link, err := favoriteIdentity(input)
	if err != nil {
		return nil, err
	}

	existing, err := s.Find(ctx, itemID, link)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	folderID, err := s.resolveFolder(ctx, input.FolderID)
	if err != nil {
		return nil, err
	}

	source := input.Source
	if source == "" {
		source = models.SourceManual
		if itemID != "" {
			source = models.SourceSubscription
		}
	}
	createdFrom := input.CreatedFrom
	if createdFrom == "" {
		createdFrom = models.CreatedFromAPI
	}
	title := strings.TrimSpace(input.Title)
	if title == "" {
		title = link
	}
	if title == "" {
		title = models.FallbackEntryTitle
	}

	now := s.now()
	favorite := &models.Favorite{
		ID:          uuid.NewString(),
		FolderID:    folderID,
		ItemID:      itemID,
		Title:       title,
		Link:        link,
		Source:      source,
		CreatedFrom: createdFrom,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO favorites (`+favoriteColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		favorite.ID, favorite.FolderID, favorite.ItemID, favorite.Title, favorite.Link,
		string(favorite.Source), string(favorite.CreatedFrom), now.UnixMilli(), now.UnixMilli())
	if err != nil {
		return nil, core.NewDatabaseError("failed to add favorite", err)
	}

	s.announceChange(ctx, broadcast.FavoritesUpdatedPayload{
		FavoriteID: favorite.ID,
		FolderID:   favorite.FolderID,
		ItemID:     favorite.ItemID,
		Action:     "added",
	})
	return favorite, nil
}

// Toggle removes the matching favorite if there is one and adds it otherwise.
// It returns the favorite when one was added.
func (s *FavoriteService) Toggle(ctx context.Context, input models.FavoriteInput) (*models.Favorite, bool, error) {
	itemID, link, err := favoriteIdentity(input)
	if err != nil {
		return nil, false, err
	}

	existing, err := s.Find(ctx, itemID, link)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		if err := s.removeIDs(ctx, []string{existing.ID}); err != nil {
			return nil, false, err
		}
		s.announceChange(ctx, broadcast.FavoritesUpdatedPayload{
			FavoriteID: existing.ID,
			FolderID:   existing.FolderID,
			ItemID:     existing.ItemID,
			Action:     "removed",
		})
		return nil, false, nil
	}

	input.ItemID, input.Link = itemID, link
	favorite, err := s.Add(ctx, input)
	if err != nil {
		return nil, false, err
	}
	return favorite, true, nil
}

// RemoveByEntry deletes the favorite matching an entry id or link and
// reports whether one existed.
func (s *FavoriteService) RemoveByEntry(ctx context.Context, itemID, link string) (bool, error) {
	existing, err := s.Find(ctx, strings.TrimSpace(itemID), strings.TrimSpace(link))
	if err != nil || existing == nil {
		return false, err
	}
	if err := s.removeIDs(ctx, []string{existing.ID}); err != nil {
		return false, err
	}
	s.announceChange(ctx, broadcast.FavoritesUpdatedPayload{
		FavoriteID: existing.ID,
		FolderID:   existing.FolderID,
		ItemID:     existing.ItemID,
		Action:     "removed",
	})
	return true, nil
}

// Remove deletes favorites by id
func (s *FavoriteService) Remove(ctx context.Context, favoriteIDs []string) error {
	if len(favoriteIDs) == 0 {
		return nil
	}
	if err := s.removeIDs(ctx, favoriteIDs); err != nil {
		return err
	}
	s.announceChange(ctx, broadcast.FavoritesUpdatedPayload{Action: "removed"})
	return nil
}

// Move puts favorites into another folder, restamping their timestamps
func (s *FavoriteService) Move(ctx context.Context, favoriteIDs []string, targetFolderID string) error {
	if len(favoriteIDs) == 0 {
		return nil
	}
	if _, err := s.getFolder(ctx, targetFolderID); err != nil {
		return err
	}

	now := s.now().UnixMilli()
	args := []any{targetFolderID, now, now}
	for _, id := range favoriteIDs {
		args = append(args, id)
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE favorites SET folder_id = ?, created_at = ?, updated_at = ? WHERE id IN (`+placeholders(len(favoriteIDs))+`)`,
		args...)
	if err != nil {
		return core.NewDatabaseError("failed to move favorites", err)
	}

	s.announceChange(ctx, broadcast.FavoritesUpdatedPayload{FolderID: targetFolderID, Action: "moved"})
	return nil
}

// List returns the favorites of a folder filtered, sorted and paged
func (s *FavoriteService) List(ctx context.Context, folderID string, q models.FavoriteQuery) (*models.FavoriteList, error) {
	clause := `WHERE folder_id = ?`
	args := []any{folderID}
	if keyword := strings.TrimSpace(q.Keyword); keyword != "" {
		pattern := "%" + strings.ToLower(keyword) + "%"
		clause += ` AND (LOWER(title) LIKE ? OR LOWER(link) LIKE ?)`
		args = append(args, pattern, pattern)
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM favorites `+clause, args...).Scan(&total); err != nil {
		return nil, core.NewDatabaseError("failed to count favorites", err)
	}

	query := `SELECT ` + favoriteColumns + ` FROM favorites ` + clause + ` ORDER BY ` + favoriteOrder(q.Sort)
	offset := max(q.Offset, 0)
	if q.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, q.Limit, offset)
	}

	favorites, err := s.queryFavorites(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	if q.Limit <= 0 {
		favorites = favorites[min(offset, len(favorites)):]
	}
	return &models.FavoriteList{Data: favorites, Total: total}, nil
}

// ListAll returns every favorite across folders, newest first
func (s *FavoriteService) ListAll(ctx context.Context) ([]models.Favorite, error) {
	return s.queryFavorites(ctx, `SELECT `+favoriteColumns+` FROM favorites ORDER BY created_at DESC, id`)
}

// IsFavorited reports whether an entry id or link has a favorite
func (s *FavoriteService) IsFavorited(ctx context.Context, itemID, link string) (bool, error) {
	existing, err := s.Find(ctx, strings.TrimSpace(itemID), strings.TrimSpace(link))
	if err != nil {
		return false, err
	}
	return existing != nil, nil
}

// Find looks a favorite up by entry id first and by link second
func (s *FavoriteService) Find(ctx context.Context, itemID, link string) (*models.Favorite, error) {
	if itemID != "" {
		fav, err := s.findOne(ctx, `item_id = ?`, itemID)
		if err != nil || fav != nil {
			return fav, err
		}
	}
	if link != "" {
		return s.findOne(ctx, `link = ?`, link)
	}
	return nil, nil
}

func (s *FavoriteService) findOne(ctx context.Context, cond string, arg any) (*models.Favorite, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+favoriteColumns+` FROM favorites WHERE `+cond+` ORDER BY created_at LIMIT 1`, arg)
	fav, err := scanFavorite(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, core.NewDatabaseError("failed to look up favorite", err)
	}
	return fav, nil
}

func (s *FavoriteService) resolveFolder(ctx context.Context, folderID string) (string, error) {
	if folderID != "" {
		folder, err := s.getFolder(ctx, folderID)
		if err == nil {
			return folder.ID, nil
		}
		if !core.IsCode(err, core.ErrCodeFolderNotFound) {
			return "", err
		}
	}
	folder, err := s.DefaultFolder(ctx)
	if err != nil {
		return "", err
	}
	return folder.ID, nil
}

func (s *FavoriteService) getFolder(ctx context.Context, folderID string) (*models.FavoriteFolder, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+folderColumns+` FROM favorite_folders WHERE id = ?`, folderID)
	folder, err := scanFolder(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, folderNotFound(folderID)
		}
		return nil, core.NewDatabaseError("failed to get folder", err)
	}
	return folder, nil
}

func (s *FavoriteService) removeIDs(ctx context.Context, ids []string) error {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM favorites WHERE id IN (`+placeholders(len(ids))+`)`, args...); err != nil {
		return core.NewDatabaseError("failed to remove favorites", err)
	}
	return nil
}

func (s *FavoriteService) queryFavorites(ctx context.Context, query string, args ...any) ([]models.Favorite, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, core.NewDatabaseError("failed to list favorites", err)
	}
	defer rows.Close()

	favorites := []models.Favorite{}
	for rows.Next() {
		fav, err := scanFavorite(rows)
		if err != nil {
			return nil, core.NewDatabaseError("failed to scan favorite", err)
		}
		favorites = append(favorites, *fav)
	}
	if err := rows.Err(); err != nil {
		return nil, core.NewDatabaseError("failed to list favorites", err)
	}
	return favorites, nil
}

// announceChange reports a favorite change on both favorite channels
func (s *FavoriteService) announceChange(ctx context.Context, payload broadcast.FavoritesUpdatedPayload) {
	s.announceFavorites(ctx, payload)
	s.announceFolders(ctx, payload.FolderID, "counts_changed")
}

func (s *FavoriteService) announceFavorites(ctx context.Context, payload broadcast.FavoritesUpdatedPayload) {
	if err := s.bus.Publish(ctx, broadcast.NewEvent(broadcast.FavoritesUpdated, payload)); err != nil {
		s.logger.Warn("Failed to broadcast favorites update", "error", err)
	}
}

func (s *FavoriteService) announceFolders(ctx context.Context, folderID, action string) {
	payload := broadcast.FavoriteFoldersUpdatedPayload{FolderID: folderID, Action: action}
	if err := s.bus.Publish(ctx, broadcast.NewEvent(broadcast.FavoriteFoldersUpdated, payload)); err != nil {
		s.logger.Warn("Failed to broadcast folder update", "error", err)
	}
}

func favoriteIdentity(input models.FavoriteInput) (string, string, error) {
	itemID := strings.TrimSpace(input.ItemID)
	link := strings.TrimSpace(input.Link)
	if itemID == "" && link == "" {
		return "", "", core.NewValidationError("favorite requires an item id or a link", nil)
	}
	return itemID, link, nil
}

func favoriteOrder(sort models.FavoriteSort) string {
	switch sort {
	case models.SortCreatedAsc:
		return `created_at ASC, id`
	case models.SortTitleAsc:
		return `LOWER(title) ASC, id`
	case models.SortTitleDesc:
		return `LOWER(title) DESC, id`
	default:
		return `created_at DESC, id`
	}
}

func folderNotFound(folderID string) error {
	return core.NewFolderNotFoundError(fmt.Sprintf("folder not found: %s", folderID), nil)
}

func insertFolder(ctx context.Context, q querier, folder *models.FavoriteFolder) error {
	_, err := q.ExecContext(ctx, `INSERT INTO favorite_folders (`+folderColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		folder.ID, folder.Name, folder.IsDefault, folder.Order,
		folder.CreatedAt.UnixMilli(), folder.UpdatedAt.UnixMilli())
	return err
}

func scanFolder(row rowScanner) (*models.FavoriteFolder, error) {
	var folder models.FavoriteFolder
	var createdAt, updatedAt int64
	if err := row.Scan(&folder.ID, &folder.Name, &folder.IsDefault, &folder.Order, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	folder.CreatedAt = time.UnixMilli(createdAt)
	folder.UpdatedAt = time.UnixMilli(updatedAt)
	return &folder, nil
}

func scanFavorite(row rowScanner) (*models.Favorite, error) {
	var fav models.Favorite
	var source, createdFrom string
	var createdAt, updatedAt int64
	if err := row.Scan(
		&fav.ID, &fav.FolderID, &fav.ItemID, &fav.Title, &fav.Link,
		&source, &createdFrom, &createdAt, &updatedAt,
	); err != nil {
		return nil, err
	}
	fav.Source = models.FavoriteSource(source)
	fav.CreatedFrom = models.CreatedFrom(createdFrom)
	fav.CreatedAt = time.UnixMilli(createdAt)
	fav.UpdatedAt = time.UnixMilli(updatedAt)
	return &fav, nil
}
