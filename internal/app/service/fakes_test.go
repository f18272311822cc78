package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/mraprguild/vaultlink/internal/app/model"
	"github.com/mraprguild/vaultlink/internal/app/repository"
)

// fakeLinkRepo is an in-memory LinkRepository enforcing code uniqueness,
// so the insert-is-the-serialization-point contract holds in tests too.
type fakeLinkRepo struct {
	mu    sync.Mutex
	links map[string]*model.ShortLink

	createErr error // forced Create result when non-nil
}

func newFakeLinkRepo() *fakeLinkRepo {
	return &fakeLinkRepo{links: make(map[string]*model.ShortLink)}
}

func (r *fakeLinkRepo) Create(ctx context.Context, link *model.ShortLink) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.createErr != nil {
		return r.createErr
	}
	if _, exists := r.links[link.Code]; exists {
		return repository.ErrCodeTaken
	}
	link.CreatedAt = time.Now()
	cp := *link
	r.links[link.Code] = &cp
	return nil
}

func (r *fakeLinkRepo) GetByCode(ctx context.Context, code string) (*model.ShortLink, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	link, ok := r.links[code]
	if !ok {
		return nil, repository.ErrLinkNotFound
	}
	cp := *link
	return &cp, nil
}

func (r *fakeLinkRepo) ResolveAndCount(ctx context.Context, code string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	link, ok := r.links[code]
	if !ok {
		return "", repository.ErrLinkNotFound
	}
	link.ClickCount++
	return link.URL, nil
}

func (r *fakeLinkRepo) IncrementClicks(ctx context.Context, code string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	link, ok := r.links[code]
	if !ok {
		return repository.ErrLinkNotFound
	}
	link.ClickCount++
	return nil
}

func (r *fakeLinkRepo) AllCodes(ctx context.Context) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	codes := make([]string, 0, len(r.links))
	for code := range r.links {
		codes = append(codes, code)
	}
	return codes, nil
}

func (r *fakeLinkRepo) OwnerTotals(ctx context.Context, ownerID int64) (int64, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var links, clicks int64
	for _, l := range r.links {
		if l.OwnerID == ownerID {
			links++
			clicks += l.ClickCount
		}
	}
	return links, clicks, nil
}

func (r *fakeLinkRepo) List(ctx context.Context, limit, offset int) ([]model.ShortLink, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []model.ShortLink
	for _, l := range r.links {
		out = append(out, *l)
	}
	return out, nil
}

// fakeUserRepo is an in-memory UserRepository.
type fakeUserRepo struct {
	mu    sync.Mutex
	users map[int64]*model.User
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[int64]*model.User)}
}

func (r *fakeUserRepo) Ensure(ctx context.Context, user *model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.users[user.ID]; ok {
		existing.Username = user.Username
		return nil
	}
	user.JoinedAt = time.Now()
	cp := *user
	r.users[user.ID] = &cp
	return nil
}

func (r *fakeUserRepo) Get(ctx context.Context, id int64) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	cp := *user
	return &cp, nil
}

func (r *fakeUserRepo) SetBanned(ctx context.Context, id int64, banned bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[id]
	if !ok {
		return repository.ErrUserNotFound
	}
	user.Banned = banned
	return nil
}

func (r *fakeUserRepo) IncrementFiles(ctx context.Context, id int64) error {
	return r.increment(id, func(u *model.User) { u.TotalFiles++ })
}

func (r *fakeUserRepo) IncrementLinks(ctx context.Context, id int64) error {
	return r.increment(id, func(u *model.User) { u.TotalLinks++ })
}

func (r *fakeUserRepo) increment(id int64, bump func(*model.User)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[id]
	if !ok {
		return repository.ErrUserNotFound
	}
	bump(user)
	return nil
}

// fakeSettingRepo is an in-memory SettingRepository.
type fakeSettingRepo struct {
	mu     sync.Mutex
	values map[string]string
}

func newFakeSettingRepo() *fakeSettingRepo {
	return &fakeSettingRepo{values: make(map[string]string)}
}

func (r *fakeSettingRepo) Get(ctx context.Context, key string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	v, ok := r.values[key]
	if !ok {
		return "", repository.ErrSettingNotFound
	}
	return v, nil
}

func (r *fakeSettingRepo) Set(ctx context.Context, key, value string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.values[key] = value
	return nil
}

// fakeFileRepo is an in-memory FileRepository with upsert-by-index chunk
// semantics matching the Postgres unique constraint.
type fakeFileRepo struct {
	mu     sync.Mutex
	files  map[string]*model.FileObject
	creats int
}

func newFakeFileRepo() *fakeFileRepo {
	return &fakeFileRepo{files: make(map[string]*model.FileObject)}
}

func (r *fakeFileRepo) Create(ctx context.Context, file *model.FileObject) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.creats++
	file.CreatedAt = time.Now()
	file.UpdatedAt = file.CreatedAt
	cp := *file
	cp.Chunks = nil
	r.files[file.ID] = &cp
	return nil
}

func (r *fakeFileRepo) Get(ctx context.Context, id string) (*model.FileObject, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	file, ok := r.files[id]
	if !ok {
		return nil, repository.ErrFileNotFound
	}

	cp := *file
	cp.Chunks = append([]model.FileChunk(nil), file.Chunks...)
	sort.Slice(cp.Chunks, func(i, j int) bool {
		return cp.Chunks[i].ChunkIndex < cp.Chunks[j].ChunkIndex
	})
	return &cp, nil
}

func (r *fakeFileRepo) UpsertChunk(ctx context.Context, chunk *model.FileChunk) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	file, ok := r.files[chunk.FileID]
	if !ok {
		return repository.ErrFileNotFound
	}

	for i := range file.Chunks {
		if file.Chunks[i].ChunkIndex == chunk.ChunkIndex {
			file.Chunks[i] = *chunk
			file.UpdatedAt = time.Now()
			return nil
		}
	}
	file.Chunks = append(file.Chunks, *chunk)
	file.UpdatedAt = time.Now()
	return nil
}

func (r *fakeFileRepo) MarkComplete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	file, ok := r.files[id]
	if !ok || file.Complete {
		return repository.ErrFileNotFound
	}
	file.Complete = true
	return nil
}

func (r *fakeFileRepo) ListByOwner(ctx context.Context, ownerID int64, limit int) ([]model.FileObject, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []model.FileObject
	for _, f := range r.files {
		if f.OwnerID == ownerID && f.Complete {
			cp := *f
			cp.Chunks = nil
			out = append(out, cp)
		}
	}
	return out, nil
}

func (r *fakeFileRepo) DeleteStaleIncomplete(ctx context.Context, before time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var swept int64
	for id, f := range r.files {
		if !f.Complete && f.UpdatedAt.Before(before) {
			delete(r.files, id)
			swept++
		}
	}
	return swept, nil
}
