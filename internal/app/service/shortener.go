package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/mraprguild/vaultlink/config"
	"github.com/mraprguild/vaultlink/internal/app/model"
	"github.com/mraprguild/vaultlink/internal/app/repository"
	infraprom "github.com/mraprguild/vaultlink/internal/infra/prometheus"
)

// Base62: with the default length of 7 the code space holds ~3.5e12 codes,
// keeping the per-draw collision probability under 1e-6 up to ~3.5M rows.
const codeAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

const (
	urlCacheTTL     = time.Hour
	urlCachePrefix  = "link:url:"
	defaultBaseURL  = "https://short.ly"
	bloomMinEntries = 100_000
	bloomFPRate     = 1e-6
)

var aliasPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{3,32}$`)

// ClickMeta carries per-resolve request data for the analytics stream.
type ClickMeta struct {
	IP        string
	UserAgent string
}

// Shortener implements short-link creation, resolution and stats.
type Shortener struct {
	links    repository.LinkRepository
	users    repository.UserRepository
	settings repository.SettingRepository
	cache    *redis.Client
	clicks   *ClickPublisher
	cfg      config.ShortenerConfig
	logger   *zap.Logger

	filter *guardedFilter
}

// ShortenerDeps groups what the shortener needs. Cache and Clicks are
// optional; Settings may be nil when no runtime overrides are wanted.
type ShortenerDeps struct {
	Links    repository.LinkRepository
	Users    repository.UserRepository
	Settings repository.SettingRepository
	Cache    *redis.Client
	Clicks   *ClickPublisher
	Config   config.ShortenerConfig
	Logger   *zap.Logger
}

// NewShortener returns a Shortener wired to the given dependencies.
func NewShortener(deps ShortenerDeps) *Shortener {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg := deps.Config
	if cfg.CodeLength <= 0 {
		cfg.CodeLength = config.DefaultCodeLength
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = config.DefaultMaxAttempts
	}

	return &Shortener{
		links:    deps.Links,
		users:    deps.Users,
		settings: deps.Settings,
		cache:    deps.Cache,
		clicks:   deps.Clicks,
		cfg:      cfg,
		logger:   logger,
		filter:   newGuardedFilter(),
	}
}

// WarmFilter loads all existing codes into the negative-lookup filter.
// Until it runs, Resolve skips the filter and always hits the store.
func (s *Shortener) WarmFilter(ctx context.Context) error {
	codes, err := s.links.AllCodes(ctx)
	if err != nil {
		return fmt.Errorf("shortener: warm filter: %w", err)
	}
	s.filter.reset(codes)
	s.logger.Info("short code filter warmed", zap.Int("codes", len(codes)))
	return nil
}

// Shorten validates the URL, assigns a unique code and persists the
// mapping. A non-empty alias bypasses random generation but is subject to
// the same uniqueness constraint, failing with ErrAliasTaken on conflict.
func (s *Shortener) Shorten(ctx context.Context, ownerID int64, rawURL, alias string) (*model.ShortLink, error) {
	if err := s.ensureActiveUser(ctx, ownerID); err != nil {
		return nil, err
	}

	target, err := NormalizeURL(rawURL)
	if err != nil {
		return nil, err
	}

	var link *model.ShortLink
	if alias != "" {
		link, err = s.insertAlias(ctx, ownerID, target, alias)
	} else {
		link, err = s.insertRandom(ctx, ownerID, target)
	}
	if err != nil {
		return nil, err
	}

	if err := s.users.IncrementLinks(ctx, ownerID); err != nil {
		s.logger.Warn("failed to bump user link counter",
			zap.Int64("owner_id", ownerID), zap.Error(err))
	}

	s.filter.add(link.Code)
	s.cacheURL(ctx, link.Code, link.URL)
	infraprom.ShortensTotal.Inc()

	s.logger.Info("short link created",
		zap.String("code", link.Code),
		zap.Int64("owner_id", ownerID),
		zap.Bool("custom_alias", alias != ""))

	return link, nil
}

func (s *Shortener) insertAlias(ctx context.Context, ownerID int64, target, alias string) (*model.ShortLink, error) {
	if !aliasPattern.MatchString(alias) {
		return nil, fmt.Errorf("shortener: alias %q: %w", alias, ErrInvalidURL)
	}

	link := &model.ShortLink{Code: alias, URL: target, OwnerID: ownerID}
	if err := s.links.Create(ctx, link); err != nil {
		if errors.Is(err, repository.ErrCodeTaken) {
			return nil, ErrAliasTaken
		}
		return nil, fmt.Errorf("shortener: insert alias: %w", err)
	}
	return link, nil
}

// insertRandom draws fresh candidates until the insert lands. The unique
// constraint is the only collision check; a bounded number of redraws
// guards against a misconfigured (too small) code space.
func (s *Shortener) insertRandom(ctx context.Context, ownerID int64, target string) (*model.ShortLink, error) {
	length := s.codeLength(ctx)

	for attempt := 0; attempt < s.cfg.MaxAttempts; attempt++ {
		code, err := randomCode(length)
		if err != nil {
			return nil, fmt.Errorf("shortener: draw code: %w", err)
		}

		link := &model.ShortLink{Code: code, URL: target, OwnerID: ownerID}
		err = s.links.Create(ctx, link)
		if err == nil {
			return link, nil
		}
		if errors.Is(err, repository.ErrCodeTaken) {
			s.logger.Debug("short code collision, redrawing",
				zap.String("code", code), zap.Int("attempt", attempt+1))
			continue
		}
		return nil, fmt.Errorf("shortener: insert link: %w", err)
	}

	s.logger.Error("short code space exhausted",
		zap.Int("length", length), zap.Int("attempts", s.cfg.MaxAttempts))
	return nil, ErrExhaustedCodeSpace
}

// Resolve returns the target URL and atomically counts the click. The
// increment happens in a single store round trip so concurrent resolves of
// the same code never lose updates.
func (s *Shortener) Resolve(ctx context.Context, code string, meta ClickMeta) (string, error) {
	if code == "" {
		return "", ErrNotFound
	}
	if s.filter.definitelyAbsent(code) {
		return "", ErrNotFound
	}

	target, err := s.resolveCounted(ctx, code)
	if err != nil {
		return "", err
	}

	infraprom.ResolvesTotal.Inc()
	s.publishClick(code, meta)
	return target, nil
}

func (s *Shortener) resolveCounted(ctx context.Context, code string) (string, error) {
	if cached := s.cachedURL(ctx, code); cached != "" {
		err := s.links.IncrementClicks(ctx, code)
		if err == nil {
			return cached, nil
		}
		if errors.Is(err, repository.ErrLinkNotFound) {
			// Stale cache entry for a deleted link.
			s.dropCachedURL(ctx, code)
			return "", ErrNotFound
		}
		return "", fmt.Errorf("shortener: count click: %w", err)
	}

	target, err := s.links.ResolveAndCount(ctx, code)
	if err != nil {
		if errors.Is(err, repository.ErrLinkNotFound) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("shortener: resolve: %w", err)
	}

	s.cacheURL(ctx, code, target)
	return target, nil
}

// Stats returns the link row without touching the click counter.
func (s *Shortener) Stats(ctx context.Context, code string) (*model.ShortLink, error) {
	link, err := s.links.GetByCode(ctx, code)
	if err != nil {
		if errors.Is(err, repository.ErrLinkNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("shortener: stats: %w", err)
	}
	return link, nil
}

// OwnerStats returns link count and click sum for one owner.
func (s *Shortener) OwnerStats(ctx context.Context, ownerID int64) (links, clicks int64, err error) {
	links, clicks, err = s.links.OwnerTotals(ctx, ownerID)
	if err != nil {
		return 0, 0, fmt.Errorf("shortener: owner stats: %w", err)
	}
	return links, clicks, nil
}

// ShortURL renders the public form of a code using the custom domain
// setting when present.
func (s *Shortener) ShortURL(ctx context.Context, code string) string {
	base := s.cfg.CustomDomain
	if s.settings != nil {
		if v, err := s.settings.Get(ctx, model.SettingCustomDomain); err == nil && v != "" {
			base = v
		}
	}
	if base == "" {
		base = defaultBaseURL
	}
	return strings.TrimRight(base, "/") + "/" + code
}

func (s *Shortener) codeLength(ctx context.Context) int {
	if s.settings != nil {
		if v, err := s.settings.Get(ctx, model.SettingCodeLength); err == nil {
			if n, err := strconv.Atoi(v); err == nil && n >= 4 && n <= 32 {
				return n
			}
		}
	}
	return s.cfg.CodeLength
}

func (s *Shortener) ensureActiveUser(ctx context.Context, ownerID int64) error {
	user, err := s.users.Get(ctx, ownerID)
	if errors.Is(err, repository.ErrUserNotFound) {
		return s.users.Ensure(ctx, &model.User{ID: ownerID})
	}
	if err != nil {
		return fmt.Errorf("shortener: load user: %w", err)
	}
	if user.Banned {
		return ErrUserBanned
	}
	return nil
}

func (s *Shortener) publishClick(code string, meta ClickMeta) {
	if s.clicks == nil {
		return
	}
	if err := s.clicks.Publish(code, meta.IP, meta.UserAgent); err != nil {
		s.logger.Warn("failed to publish click event",
			zap.String("code", code), zap.Error(err))
	}
}

func (s *Shortener) cacheURL(ctx context.Context, code, target string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, urlCachePrefix+code, target, urlCacheTTL).Err(); err != nil {
		s.logger.Debug("url cache set failed", zap.Error(err))
	}
}

func (s *Shortener) cachedURL(ctx context.Context, code string) string {
	if s.cache == nil {
		return ""
	}
	v, err := s.cache.Get(ctx, urlCachePrefix+code).Result()
	if err != nil {
		return ""
	}
	return v
}

func (s *Shortener) dropCachedURL(ctx context.Context, code string) {
	if s.cache == nil {
		return
	}
	_ = s.cache.Del(ctx, urlCachePrefix+code).Err()
}

// NormalizeURL trims the input, defaults the scheme to https and requires
// an absolute URL with scheme and host.
func NormalizeURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrInvalidURL
	}
	if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		raw = "https://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidURL, raw)
	}
	return u.String(), nil
}

// randomCode draws a uniformly distributed code over the base62 alphabet
// using rejection sampling so no symbol is favored.
func randomCode(length int) (string, error) {
	const maxByte = 255 - (256 % len(codeAlphabet))

	out := make([]byte, 0, length)
	buf := make([]byte, length)
	for len(out) < length {
		if _, err := rand.Read(buf); err != nil {
			return "", err
		}
		for _, b := range buf {
			if int(b) > maxByte {
				continue
			}
			out = append(out, codeAlphabet[int(b)%len(codeAlphabet)])
			if len(out) == length {
				break
			}
		}
	}
	return string(out), nil
}

// guardedFilter wraps the bloom filter with a lock; bloom filters have no
// false negatives, so a miss is a safe NotFound fast path.
type guardedFilter struct {
	mu     sync.RWMutex
	filter *bloom.BloomFilter
	warmed bool
}

func newGuardedFilter() *guardedFilter {
	return &guardedFilter{}
}

func (g *guardedFilter) reset(codes []string) {
	capacity := uint(len(codes) * 10)
	if capacity < bloomMinEntries {
		capacity = bloomMinEntries
	}

	f := bloom.NewWithEstimates(capacity, bloomFPRate)
	for _, code := range codes {
		f.AddString(code)
	}

	g.mu.Lock()
	g.filter = f
	g.warmed = true
	g.mu.Unlock()
}

func (g *guardedFilter) add(code string) {
	g.mu.Lock()
	if g.filter != nil {
		g.filter.AddString(code)
	}
	g.mu.Unlock()
}

func (g *guardedFilter) definitelyAbsent(code string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if !g.warmed {
		return false
	}
	return !g.filter.TestString(code)
}
