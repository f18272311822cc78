package handler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/mraprguild/vaultlink/internal/app/model"
	"github.com/mraprguild/vaultlink/internal/app/repository"
	"github.com/mraprguild/vaultlink/internal/app/service"
	httpUtil "github.com/mraprguild/vaultlink/internal/http/util"
	"github.com/mraprguild/vaultlink/internal/transport"
)

const downloadTokenTTL = 10 * time.Minute

// APIDeps groups dependencies required by API handlers.
type APIDeps struct {
	Logger    *zap.Logger
	Shortener *service.Shortener
	Uploader  *service.Uploader
	Retriever *service.Retriever
	Stats     *service.StatsAggregator
	Users     repository.UserRepository
	Secret    []byte
}

// APIHandler implements the management API consumed by the bot command
// layer and the dashboard.
type APIHandler struct {
	logger    *zap.Logger
	shortener *service.Shortener
	uploader  *service.Uploader
	retriever *service.Retriever
	stats     *service.StatsAggregator
	users     repository.UserRepository
	tokens    *httpUtil.TokenSigner
}

// NewAPIHandler creates an API handler with the provided dependencies.
func NewAPIHandler(deps APIDeps) *APIHandler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &APIHandler{
		logger:    logger,
		shortener: deps.Shortener,
		uploader:  deps.Uploader,
		retriever: deps.Retriever,
		stats:     deps.Stats,
		users:     deps.Users,
		tokens:    httpUtil.NewTokenSigner(deps.Secret, downloadTokenTTL),
	}
}

// Register wires API routes onto the provided router.
func (h *APIHandler) Register(router fiber.Router) {
	api := router.Group("/api")
	{
		links := api.Group("/links")
		{
			links.Post("/", h.Shorten)
			links.Get("/:code", h.LinkStats)
		}

		files := api.Group("/files")
		{
			files.Post("/", h.BeginUpload)
			files.Put("/:id/chunks/:index", h.AppendChunk)
			files.Post("/:id/finalize", h.FinalizeUpload)
			files.Get("/:id/token", h.DownloadToken)
			files.Get("/:id/download", h.Download)
		}

		users := api.Group("/users")
		{
			users.Get("/:id/files", h.UserFiles)
			users.Get("/:id/links", h.UserLinkStats)
		}

		api.Get("/stats", h.Totals)

		admin := api.Group("/admin")
		{
			admin.Post("/users/:id/ban", h.BanUser)
			admin.Post("/users/:id/unban", h.UnbanUser)
		}
	}
}

// ShortenRequest represents the request body for creating a short link.
type ShortenRequest struct {
	OwnerID int64  `json:"owner_id"`
	URL     string `json:"url"`
	Alias   string `json:"alias,omitempty"`
}

// LinkResponse represents one short link.
type LinkResponse struct {
	Code       string    `json:"code"`
	ShortURL   string    `json:"short_url"`
	URL        string    `json:"url"`
	OwnerID    int64     `json:"owner_id"`
	ClickCount int64     `json:"click_count"`
	CreatedAt  time.Time `json:"created_at"`
}

// Shorten handles POST /api/links
func (h *APIHandler) Shorten(c *fiber.Ctx) error {
	var req ShortenRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body",
		})
	}
	if req.URL == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "url is required",
		})
	}

	ctx := requestContext(c)
	link, err := h.shortener.Shorten(ctx, req.OwnerID, req.URL, req.Alias)
	if err != nil {
		return h.fail(c, "failed to shorten url", err)
	}

	return c.Status(fiber.StatusCreated).JSON(h.linkResponse(ctx, link))
}

// LinkStats handles GET /api/links/:code — read-only, counts nothing.
func (h *APIHandler) LinkStats(c *fiber.Ctx) error {
	code := c.Params("code")
	if code == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "code is required",
		})
	}

	ctx := requestContext(c)
	link, err := h.shortener.Stats(ctx, code)
	if err != nil {
		return h.fail(c, "failed to load link stats", err)
	}

	return c.JSON(h.linkResponse(ctx, link))
}

// BeginUploadRequest represents the request body for starting an upload.
type BeginUploadRequest struct {
	OwnerID int64  `json:"owner_id"`
	Name    string `json:"name"`
	Size    int64  `json:"size"`
}

// FileResponse represents one file object.
type FileResponse struct {
	ID        string    `json:"id"`
	OwnerID   int64     `json:"owner_id"`
	Name      string    `json:"name"`
	Category  string    `json:"category"`
	Size      int64     `json:"size"`
	SizeHuman string    `json:"size_human"`
	Chunks    int       `json:"chunks"`
	Complete  bool      `json:"complete"`
	CreatedAt time.Time `json:"created_at"`
}

// BeginUpload handles POST /api/files
func (h *APIHandler) BeginUpload(c *fiber.Ctx) error {
	var req BeginUploadRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body",
		})
	}
	if req.Name == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "name is required",
		})
	}

	file, err := h.uploader.Begin(requestContext(c), req.OwnerID, req.Name, req.Size)
	if err != nil {
		return h.fail(c, "failed to begin upload", err)
	}

	return c.Status(fiber.StatusCreated).JSON(fileResponse(file))
}

// AppendChunk handles PUT /api/files/:id/chunks/:index with the raw chunk
// bytes as the request body.
func (h *APIHandler) AppendChunk(c *fiber.Ctx) error {
	fileID := c.Params("id")
	index, err := c.ParamsInt("index")
	if err != nil || index < 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid chunk index",
		})
	}

	stored, err := h.uploader.Append(requestContext(c), fileID, index, c.Body())
	if err != nil {
		return h.fail(c, "failed to append chunk", err)
	}

	return c.JSON(fiber.Map{"index": stored})
}

// FinalizeUpload handles POST /api/files/:id/finalize
func (h *APIHandler) FinalizeUpload(c *fiber.Ctx) error {
	file, err := h.uploader.Finalize(requestContext(c), c.Params("id"))
	if err != nil {
		return h.fail(c, "failed to finalize upload", err)
	}

	return c.JSON(fileResponse(file))
}

// DownloadToken handles GET /api/files/:id/token
func (h *APIHandler) DownloadToken(c *fiber.Ctx) error {
	fileID := c.Params("id")

	token, err := h.tokens.Issue(fileID)
	if err != nil {
		if errors.Is(err, httpUtil.ErrMissingSecret) {
			return c.Status(fiber.StatusNotImplemented).JSON(fiber.Map{
				"error": "download tokens are not configured",
			})
		}
		return h.fail(c, "failed to issue download token", err)
	}

	return c.JSON(fiber.Map{"token": token, "expires_in": int(downloadTokenTTL.Seconds())})
}

// Download handles GET /api/files/:id/download and streams the
// reconstructed file, chunk by chunk, without buffering it whole.
func (h *APIHandler) Download(c *fiber.Ctx) error {
	fileID := c.Params("id")

	if h.tokens.Enabled() {
		if err := h.tokens.Validate(fileID, c.Query("token")); err != nil {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "invalid or expired download token",
			})
		}
	}

	reader, err := h.retriever.OpenForRead(requestContext(c), fileID)
	if err != nil {
		return h.fail(c, "failed to open file", err)
	}

	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", reader.Name()))
	c.Set(fiber.HeaderContentType, fiber.MIMEOctetStream)
	return c.SendStream(reader, int(reader.Size()))
}

// UserFiles handles GET /api/users/:id/files
func (h *APIHandler) UserFiles(c *fiber.Ctx) error {
	ownerID, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid user id",
		})
	}

	limit := c.QueryInt("limit", 10)
	files, err := h.uploader.ListFiles(requestContext(c), int64(ownerID), limit)
	if err != nil {
		return h.fail(c, "failed to list files", err)
	}

	out := make([]FileResponse, len(files))
	for i := range files {
		out[i] = fileResponse(&files[i])
	}
	return c.JSON(fiber.Map{"files": out, "count": len(out)})
}

// UserLinkStats handles GET /api/users/:id/links
func (h *APIHandler) UserLinkStats(c *fiber.Ctx) error {
	ownerID, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid user id",
		})
	}

	links, clicks, err := h.shortener.OwnerStats(requestContext(c), int64(ownerID))
	if err != nil {
		return h.fail(c, "failed to load link stats", err)
	}

	return c.JSON(fiber.Map{"links": links, "clicks": clicks})
}

// Totals handles GET /api/stats with an optional RFC3339 since filter.
func (h *APIHandler) Totals(c *fiber.Ctx) error {
	var since *time.Time
	if raw := c.Query("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "since must be RFC3339",
			})
		}
		since = &parsed
	}

	totals, err := h.stats.Totals(requestContext(c), since)
	if err != nil {
		return h.fail(c, "failed to load stats", err)
	}

	return c.JSON(totals)
}

// BanUser handles POST /api/admin/users/:id/ban
func (h *APIHandler) BanUser(c *fiber.Ctx) error {
	return h.setBanned(c, true)
}

// UnbanUser handles POST /api/admin/users/:id/unban
func (h *APIHandler) UnbanUser(c *fiber.Ctx) error {
	return h.setBanned(c, false)
}

func (h *APIHandler) setBanned(c *fiber.Ctx, banned bool) error {
	id, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid user id",
		})
	}

	if err := h.users.SetBanned(requestContext(c), int64(id), banned); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "user not found",
			})
		}
		return h.fail(c, "failed to update user", err)
	}

	return c.JSON(fiber.Map{"id": id, "banned": banned})
}

func (h *APIHandler) linkResponse(ctx context.Context, link *model.ShortLink) LinkResponse {
	return LinkResponse{
		Code:       link.Code,
		ShortURL:   h.shortener.ShortURL(ctx, link.Code),
		URL:        link.URL,
		OwnerID:    link.OwnerID,
		ClickCount: link.ClickCount,
		CreatedAt:  link.CreatedAt,
	}
}

func fileResponse(file *model.FileObject) FileResponse {
	return FileResponse{
		ID:        file.ID,
		OwnerID:   file.OwnerID,
		Name:      file.Name,
		Category:  file.Category,
		Size:      file.DeclaredSize,
		SizeHuman: service.FormatSize(file.DeclaredSize),
		Chunks:    len(file.Chunks),
		Complete:  file.Complete,
		CreatedAt: file.CreatedAt,
	}
}

// fail maps domain errors onto HTTP statuses and logs the unexpected ones.
func (h *APIHandler) fail(c *fiber.Ctx, msg string, err error) error {
	status := fiber.StatusInternalServerError
	switch {
	case errors.Is(err, service.ErrInvalidURL),
		errors.Is(err, service.ErrSizeExceeded):
		status = fiber.StatusBadRequest
	case errors.Is(err, service.ErrAliasTaken),
		errors.Is(err, service.ErrIncomplete),
		errors.Is(err, service.ErrConcurrentUpload):
		status = fiber.StatusConflict
	case errors.Is(err, service.ErrNotFound):
		status = fiber.StatusNotFound
	case errors.Is(err, service.ErrUserBanned):
		status = fiber.StatusForbidden
	case errors.Is(err, transport.ErrUnavailable),
		errors.Is(err, transport.ErrFetch):
		status = fiber.StatusServiceUnavailable
	}

	if status == fiber.StatusInternalServerError || status == fiber.StatusServiceUnavailable {
		h.logger.Error(msg, zap.String("path", c.Path()), zap.Error(err))
	}

	return c.Status(status).JSON(fiber.Map{"error": userMessage(err, msg)})
}

// userMessage keeps the outward error short and non-technical.
func userMessage(err error, fallback string) string {
	switch {
	case errors.Is(err, service.ErrInvalidURL):
		return "that does not look like a valid URL"
	case errors.Is(err, service.ErrSizeExceeded):
		return "file or chunk is over the size limit"
	case errors.Is(err, service.ErrAliasTaken):
		return "that alias is already taken, pick another"
	case errors.Is(err, service.ErrIncomplete):
		return "upload is not complete yet"
	case errors.Is(err, service.ErrConcurrentUpload):
		return "another upload to this file is in progress"
	case errors.Is(err, service.ErrNotFound):
		return "not found"
	case errors.Is(err, service.ErrUserBanned):
		return "this account is banned"
	case errors.Is(err, transport.ErrUnavailable), errors.Is(err, transport.ErrFetch):
		return "storage backend is unavailable, try again"
	default:
		return fallback
	}
}

func requestContext(c *fiber.Ctx) context.Context {
	ctx := c.UserContext()
	if ctx == nil {
		ctx = context.Background()
	}
	return ctx
}
