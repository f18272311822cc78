package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/mraprguild/vaultlink/config"
	"github.com/mraprguild/vaultlink/internal/app/model"
	"github.com/mraprguild/vaultlink/internal/app/repository"
)

func newTestShortener(links repository.LinkRepository, settings repository.SettingRepository) (*Shortener, *fakeUserRepo) {
	users := newFakeUserRepo()
	s := NewShortener(ShortenerDeps{
		Links:    links,
		Users:    users,
		Settings: settings,
		Config:   config.ShortenerConfig{CodeLength: 7, MaxAttempts: 8},
	})
	return s, users
}

func TestShortener_RoundTrip(t *testing.T) {
	links := newFakeLinkRepo()
	s, _ := newTestShortener(links, nil)
	ctx := context.Background()

	link, err := s.Shorten(ctx, 42, "https://example.com/a", "")
	if err != nil {
		t.Fatalf("Shorten returned error: %v", err)
	}
	if len(link.Code) != 7 {
		t.Fatalf("code length = %d, want 7", len(link.Code))
	}

	target, err := s.Resolve(ctx, link.Code, ClickMeta{})
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if target != "https://example.com/a" {
		t.Fatalf("Resolve returned %q, want original url", target)
	}

	stats, err := s.Stats(ctx, link.Code)
	if err != nil {
		t.Fatalf("Stats returned error: %v", err)
	}
	if stats.ClickCount != 1 {
		t.Fatalf("click count = %d after one resolve, want 1", stats.ClickCount)
	}
}

func TestShortener_NormalizeAddsScheme(t *testing.T) {
	links := newFakeLinkRepo()
	s, _ := newTestShortener(links, nil)

	link, err := s.Shorten(context.Background(), 1, "example.com/path", "")
	if err != nil {
		t.Fatalf("Shorten returned error: %v", err)
	}
	if link.URL != "https://example.com/path" {
		t.Fatalf("stored url = %q, want https scheme added", link.URL)
	}
}

func TestShortener_InvalidURL(t *testing.T) {
	s, _ := newTestShortener(newFakeLinkRepo(), nil)

	for _, raw := range []string{"", "   ", "https://", "not a url"} {
		_, err := s.Shorten(context.Background(), 1, raw, "")
		if !errors.Is(err, ErrInvalidURL) {
			t.Fatalf("Shorten(%q): expected ErrInvalidURL, got %v", raw, err)
		}
	}
}

func TestShortener_UniqueCodes(t *testing.T) {
	links := newFakeLinkRepo()
	s, _ := newTestShortener(links, nil)
	ctx := context.Background()

	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		link, err := s.Shorten(ctx, 1, "https://example.com", "")
		if err != nil {
			t.Fatalf("Shorten #%d returned error: %v", i, err)
		}
		if seen[link.Code] {
			t.Fatalf("duplicate code %q on draw %d", link.Code, i)
		}
		seen[link.Code] = true
	}
}

func TestShortener_CustomAlias(t *testing.T) {
	links := newFakeLinkRepo()
	s, _ := newTestShortener(links, nil)
	ctx := context.Background()

	link, err := s.Shorten(ctx, 1, "https://example.com/a", "promo")
	if err != nil {
		t.Fatalf("Shorten with alias returned error: %v", err)
	}
	if link.Code != "promo" {
		t.Fatalf("code = %q, want %q", link.Code, "promo")
	}

	_, err = s.Shorten(ctx, 2, "https://example.com/b", "promo")
	if !errors.Is(err, ErrAliasTaken) {
		t.Fatalf("second alias use: expected ErrAliasTaken, got %v", err)
	}
}

func TestShortener_ExhaustedCodeSpace(t *testing.T) {
	links := newFakeLinkRepo()
	links.createErr = repository.ErrCodeTaken
	s, _ := newTestShortener(links, nil)

	_, err := s.Shorten(context.Background(), 1, "https://example.com", "")
	if !errors.Is(err, ErrExhaustedCodeSpace) {
		t.Fatalf("expected ErrExhaustedCodeSpace, got %v", err)
	}
}

func TestShortener_ResolveNotFound(t *testing.T) {
	s, _ := newTestShortener(newFakeLinkRepo(), nil)

	_, err := s.Resolve(context.Background(), "missing", ClickMeta{})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestShortener_ConcurrentResolves(t *testing.T) {
	links := newFakeLinkRepo()
	s, _ := newTestShortener(links, nil)
	ctx := context.Background()

	link, err := s.Shorten(ctx, 1, "https://example.com", "")
	if err != nil {
		t.Fatalf("Shorten returned error: %v", err)
	}

	const resolvers = 50
	var wg sync.WaitGroup
	wg.Add(resolvers)
	for i := 0; i < resolvers; i++ {
		go func() {
			defer wg.Done()
			if _, err := s.Resolve(ctx, link.Code, ClickMeta{}); err != nil {
				t.Errorf("Resolve returned error: %v", err)
			}
		}()
	}
	wg.Wait()

	stats, err := s.Stats(ctx, link.Code)
	if err != nil {
		t.Fatalf("Stats returned error: %v", err)
	}
	if stats.ClickCount != resolvers {
		t.Fatalf("click count = %d after %d concurrent resolves, want %d",
			stats.ClickCount, resolvers, resolvers)
	}
}

func TestShortener_WarmFilterRejectsUnknown(t *testing.T) {
	links := newFakeLinkRepo()
	s, _ := newTestShortener(links, nil)
	ctx := context.Background()

	link, err := s.Shorten(ctx, 1, "https://example.com", "")
	if err != nil {
		t.Fatalf("Shorten returned error: %v", err)
	}

	if err := s.WarmFilter(ctx); err != nil {
		t.Fatalf("WarmFilter returned error: %v", err)
	}

	if _, err := s.Resolve(ctx, "definitely-not-there", ClickMeta{}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound from filter, got %v", err)
	}

	// Known codes still resolve after the filter is active.
	if _, err := s.Resolve(ctx, link.Code, ClickMeta{}); err != nil {
		t.Fatalf("Resolve of existing code returned error: %v", err)
	}

	// A code created after warming must pass the filter too.
	fresh, err := s.Shorten(ctx, 1, "https://example.com/fresh", "")
	if err != nil {
		t.Fatalf("Shorten returned error: %v", err)
	}
	if _, err := s.Resolve(ctx, fresh.Code, ClickMeta{}); err != nil {
		t.Fatalf("Resolve of fresh code returned error: %v", err)
	}
}

func TestShortener_BannedUser(t *testing.T) {
	links := newFakeLinkRepo()
	s, users := newTestShortener(links, nil)
	ctx := context.Background()

	if err := users.Ensure(ctx, &model.User{ID: 7}); err != nil {
		t.Fatalf("Ensure returned error: %v", err)
	}
	if err := users.SetBanned(ctx, 7, true); err != nil {
		t.Fatalf("SetBanned returned error: %v", err)
	}

	_, err := s.Shorten(ctx, 7, "https://example.com", "")
	if !errors.Is(err, ErrUserBanned) {
		t.Fatalf("expected ErrUserBanned, got %v", err)
	}
}

func TestShortener_ShortURLUsesCustomDomain(t *testing.T) {
	settings := newFakeSettingRepo()
	s, _ := newTestShortener(newFakeLinkRepo(), settings)
	ctx := context.Background()

	if got := s.ShortURL(ctx, "abc"); got != "https://short.ly/abc" {
		t.Fatalf("default short url = %q", got)
	}

	if err := settings.Set(ctx, model.SettingCustomDomain, "https://go.example.com/"); err != nil {
		t.Fatalf("Set returned error: %v", err)
	}
	if got := s.ShortURL(ctx, "abc"); got != "https://go.example.com/abc" {
		t.Fatalf("custom short url = %q", got)
	}
}

func TestShortener_CodeLengthSettingOverride(t *testing.T) {
	settings := newFakeSettingRepo()
	links := newFakeLinkRepo()
	s, _ := newTestShortener(links, settings)
	ctx := context.Background()

	if err := settings.Set(ctx, model.SettingCodeLength, "10"); err != nil {
		t.Fatalf("Set returned error: %v", err)
	}

	link, err := s.Shorten(ctx, 1, "https://example.com", "")
	if err != nil {
		t.Fatalf("Shorten returned error: %v", err)
	}
	if len(link.Code) != 10 {
		t.Fatalf("code length = %d with override, want 10", len(link.Code))
	}
}
