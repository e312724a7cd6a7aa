package migrations

import (
	"feedsentry/internal/core"
)

// Migration004SingleDefaultFolder allows at most one default favorite folder
var Migration004SingleDefaultFolder = core.Migration{
	Version:     4,
	Name:        "single_default_folder",
	Description: "Enforce a single default favorite folder",
	UpSQL: `
		CREATE UNIQUE INDEX IF NOT EXISTS idx_favorite_folders_single_default
			ON favorite_folders(is_default) WHERE is_default;
	`,
	DownSQL: `
		DROP INDEX IF EXISTS idx_favorite_folders_single_default;
	`,
}
