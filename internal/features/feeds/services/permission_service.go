package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"feedsentry/internal/core"
)

// HostPermission is a granted origin pattern
type HostPermission struct {
	Origin    string    `json:"origin"`
	GrantedAt time.Time `json:"grantedAt"`
}

// PermissionService stores host-origin grants and answers fetch permission checks
type PermissionService struct {
	db       *core.Database
	allowAll bool
	logger   *core.Logger
	now      Clock
}

// NewPermissionService creates a new permission service. With allowAll set
// every http(s) URL is permitted regardless of stored grants.
func NewPermissionService(db *core.Database, cfg core.PermissionsConfig, logger *core.Logger) *PermissionService {
	return &PermissionService{
		db:       db,
		allowAll: cfg.AllowAllHosts,
		logger:   logger,
		now:      time.Now,
	}
}

// Seed grants every configured host. Entries may be bare hosts or URLs.
func (s *PermissionService) Seed(ctx context.Context, hosts []string) error {
	for _, host := range hosts {
		host = strings.TrimSpace(host)
		if host == "" {
			continue
		}
		if !strings.Contains(host, "://") {
			host = "https://" + host
		}
		if _, err := s.Grant(ctx, host); err != nil {
			return err
		}
	}
	return nil
}

// IsAllowed reports whether the origin of feedURL has been granted
func (s *PermissionService) IsAllowed(ctx context.Context, feedURL string) (bool, error) {
	origin, err := OriginPattern(feedURL)
	if err != nil {
		return false, err
	}
	if s.allowAll {
		return true, nil
	}

	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM host_permissions WHERE origin = ?`, origin).Scan(&count); err != nil {
		return false, core.NewDatabaseError("failed to check host permission", err)
	}
	return count > 0, nil
}

// Grant records the origin of rawURL and returns its pattern. Granting an
// origin twice keeps the first grant.
func (s *PermissionService) Grant(ctx context.Context, rawURL string) (string, error) {
	origin, err := OriginPattern(rawURL)
	if err != nil {
		return "", err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO host_permissions (origin, granted_at) VALUES (?, ?) ON CONFLICT (origin) DO NOTHING`,
		origin, s.now().UnixMilli())
	if err != nil {
		return "", core.NewDatabaseError("failed to grant host permission", err)
	}

	s.logger.Info("Granted host permission", "origin", origin)
	return origin, nil
}

// Revoke removes the grant covering rawURL
func (s *PermissionService) Revoke(ctx context.Context, rawURL string) error {
	origin, err := OriginPattern(rawURL)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `DELETE FROM host_permissions WHERE origin = ?`, origin)
	if err != nil {
		return core.NewDatabaseError("failed to revoke host permission", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.NewNotFoundError(fmt.Sprintf("no permission granted for %s", origin), nil)
	}

	s.logger.Info("Revoked host permission", "origin", origin)
	return nil
}

// List returns all grants ordered by origin
func (s *PermissionService) List(ctx context.Context) ([]HostPermission, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT origin, granted_at FROM host_permissions ORDER BY origin`)
	if err != nil {
		return nil, core.NewDatabaseError("failed to list host permissions", err)
	}
	defer rows.Close()

	perms := []HostPermission{}
	for rows.Next() {
		var p HostPermission
		var grantedAt int64
		if err := rows.Scan(&p.Origin, &grantedAt); err != nil {
			return nil, core.NewDatabaseError("failed to scan host permission", err)
		}
		p.GrantedAt = time.UnixMilli(grantedAt)
		perms = append(perms, p)
	}
	if err := rows.Err(); err != nil {
		return nil, core.NewDatabaseError("failed to list host permissions", err)
	}
	return perms, nil
}
