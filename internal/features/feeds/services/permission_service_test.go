package services

import (
	"context"
	"testing"

	"feedsentry/internal/core"
)

func TestPermissionGrants(t *testing.T) {
	s := NewPermissionService(newTestDB(t), core.PermissionsConfig{}, testLogger())
	ctx := context.Background()

	allowed, err := s.IsAllowed(ctx, "https://example.com/feed.xml")
	if err != nil || allowed {
		t.Fatalf("Expected no permission before granting, got %v %v", allowed, err)
	}

	origin, err := s.Grant(ctx, "https://Example.com/some/page")
	if err != nil {
		t.Fatalf("Grant failed: %v", err)
	}
	if origin != "https://example.com/*" {
		t.Errorf("Unexpected origin pattern %q", origin)
	}
	if _, err := s.Grant(ctx, "https://example.com/other"); err != nil {
		t.Fatalf("Granting twice should succeed, got %v", err)
	}

	allowed, err = s.IsAllowed(ctx, "https://example.com/feed.xml")
	if err != nil || !allowed {
		t.Errorf("Expected permission after granting, got %v %v", allowed, err)
	}
	if allowed, _ := s.IsAllowed(ctx, "http://example.com/feed.xml"); allowed {
		t.Error("Grants are scoped to the scheme")
	}
	if allowed, _ := s.IsAllowed(ctx, "https://example.com:8443/feed.xml"); allowed {
		t.Error("Grants are scoped to the port")
	}

	perms, err := s.List(ctx)
	if err != nil || len(perms) != 1 {
		t.Fatalf("Expected one grant, got %v %v", perms, err)
	}

	if err := s.Revoke(ctx, "https://example.com/"); err != nil {
		t.Fatalf("Revoke failed: %v", err)
	}
	if err := s.Revoke(ctx, "https://example.com/"); !core.IsCode(err, core.ErrCodeNotFound) {
		t.Errorf("Expected NOT_FOUND revoking twice, got %v", err)
	}
}

func TestPermissionAllowAllAndSeed(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	open := NewPermissionService(db, core.PermissionsConfig{AllowAllHosts: true}, testLogger())
	if allowed, err := open.IsAllowed(ctx, "https://anything.example.org/rss"); err != nil || !allowed {
		t.Errorf("Expected allow-all to permit, got %v %v", allowed, err)
	}
	if _, err := open.IsAllowed(ctx, "ftp://example.org/rss"); !core.IsCode(err, core.ErrCodeInvalidURL) {
		t.Errorf("Expected INVALID_URL for non-http scheme, got %v", err)
	}

	gated := NewPermissionService(db, core.PermissionsConfig{}, testLogger())
	if err := gated.Seed(ctx, []string{"news.example.com", " ", "http://blog.example.com"}); err != nil {
		t.Fatalf("Seed failed: %v", err)
	}
	for url, want := range map[string]bool{
		"https://news.example.com/feed": true,
		"http://blog.example.com/rss":   true,
		"https://blog.example.com/rss":  false,
	} {
		if allowed, _ := gated.IsAllowed(ctx, url); allowed != want {
			t.Errorf("IsAllowed(%s) = %v, want %v", url, allowed, want)
		}
	}
}
