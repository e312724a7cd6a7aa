package migrations

import (
	"feedsentry/internal/core"
)

// Migration002CreateFavoriteTables creates favorite folders and favorites.
// Favorites copy title and link so they survive entry eviction.
var Migration002CreateFavoriteTables = core.Migration{
	Version:     2,
	Name:        "create_favorite_tables",
	Description: "Create favorite folder and favorite tables",
	UpSQL: `
		CREATE TABLE IF NOT EXISTS favorite_folders (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			is_default BOOLEAN NOT NULL DEFAULT FALSE,
			sort_order INTEGER NOT NULL DEFAULT 0,
			created_at BIGINT NOT NULL,
			updated_at BIGINT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS favorites (
			id TEXT PRIMARY KEY,
			folder_id TEXT NOT NULL REFERENCES favorite_folders(id),
			item_id TEXT NOT NULL DEFAULT '',
			title TEXT NOT NULL,
			link TEXT NOT NULL DEFAULT '',
			source TEXT NOT NULL,
			created_from TEXT NOT NULL,
			created_at BIGINT NOT NULL,
			updated_at BIGINT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_favorites_folder ON favorites(folder_id);
		CREATE INDEX IF NOT EXISTS idx_favorites_item ON favorites(item_id);
		CREATE INDEX IF NOT EXISTS idx_favorites_link ON favorites(link);
	`,
	DownSQL: `
		DROP INDEX IF EXISTS idx_favorites_link;
		DROP INDEX IF EXISTS idx_favorites_item;
		DROP INDEX IF EXISTS idx_favorites_folder;
		DROP TABLE IF EXISTS favorites;
		DROP TABLE IF EXISTS favorite_folders;
	`,
}
