package migrations

import (
	"feedsentry/internal/core"
)

// Migration003CreateHostPermissions stores granted host origins
var Migration003CreateHostPermissions = core.Migration{
	Version:     3,
	Name:        "create_host_permissions",
	Description: "Create table of host origins the fetcher may contact",
	UpSQL: `
		CREATE TABLE IF NOT EXISTS host_permissions (
			origin TEXT PRIMARY KEY,
			granted_at BIGINT NOT NULL
		);
	`,
	DownSQL: `
		DROP TABLE IF EXISTS host_permissions;
	`,
}
