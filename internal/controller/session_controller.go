package controller

import (
	"encoding/base64"
	"strings"

	"surgical-review-be/internal/config"
	"surgical-review-be/internal/dto"
	"surgical-review-be/internal/pkg/serverutils"
	"surgical-review-be/internal/service"
	internalWS "surgical-review-be/internal/websocket"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

type ISessionController interface {
	RegisterRoutes(r fiber.Router)
	State(ctx *fiber.Ctx) error
	UploadVideo(ctx *fiber.Ctx) error
	UploadReference(ctx *fiber.Ctx) error
	RemoveReference(ctx *fiber.Ctx) error
	SendChat(ctx *fiber.Ctx) error
	ExportReport(ctx *fiber.Ctx) error
	CloseSession(ctx *fiber.Ctx) error
}

type sessionController struct {
	sessionService service.ISessionService
	hub            *internalWS.Hub
	media          config.MediaConfig
}

func NewSessionController(sessionService service.ISessionService, hub *internalWS.Hub, media config.MediaConfig) ISessionController {
	return &sessionController{
		sessionService: sessionService,
		hub:            hub,
		media:          media,
	}
}

func (c *sessionController) RegisterRoutes(r fiber.Router) {
	h := r.Group("/session/v1")
	h.Get("state", c.State)
	h.Post("video", c.UploadVideo)
	h.Post("reference", c.UploadReference)
	h.Delete("reference/:fileId", c.RemoveReference)
	h.Post("chat", c.SendChat)
	h.Post("export", c.ExportReport)
	h.Delete("", c.CloseSession)

	// Event stream: the client opens this once per tab and receives every
	// SESSION_UPDATED / NOTICE event live.
	h.Use("ws", func(ctx *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(ctx) {
			return ctx.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	h.Get("ws", websocket.New(func(conn *websocket.Conn) {
		sessionId := conn.Query("session_id")
		if sessionId == "" {
			conn.Close()
			return
		}
		internalWS.ServeWs(c.hub, conn, sessionId)
	}))
}

// checkUpload enforces the size cap and MIME allowlist before any bytes are
// forwarded to the media backend. The multipart part's declared content type
// is what the browser sends; the backend does its own validation on top.
func (c *sessionController) checkUpload(size int64, contentType string, allowed []string) error {
	if size > int64(c.media.MaxUploadBytes) {
		return fiber.NewError(fiber.StatusRequestEntityTooLarge,
			"file exceeds the "+config.FormatFileSize(int64(c.media.MaxUploadBytes))+" upload limit")
	}
	if mt, _, found := strings.Cut(contentType, ";"); found {
		contentType = mt
	}
	contentType = strings.TrimSpace(contentType)
	for _, t := range allowed {
		if strings.EqualFold(contentType, t) {
			return nil
		}
	}
	return fiber.NewError(fiber.StatusUnsupportedMediaType, "unsupported file type: "+contentType)
}

// sessionId identifies the browser tab; one Session aggregate exists per id.
func sessionId(ctx *fiber.Ctx) (string, error) {
	id := ctx.Get("X-Session-Id")
	if id == "" {
		id = ctx.Query("session_id")
	}
	if id == "" {
		return "", fiber.NewError(fiber.StatusBadRequest, "missing X-Session-Id header")
	}
	return id, nil
}

func (c *sessionController) State(ctx *fiber.Ctx) error {
	id, err := sessionId(ctx)
	if err != nil {
		return err
	}

	state, err := c.sessionService.GetState(ctx.Context(), id)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success get session state", state))
}

func (c *sessionController) UploadVideo(ctx *fiber.Ctx) error {
	id, err := sessionId(ctx)
	if err != nil {
		return err
	}

	fileHeader, err := ctx.FormFile("file")
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "missing file field")
	}
	if err := c.checkUpload(fileHeader.Size, fileHeader.Header.Get(fiber.HeaderContentType), c.media.AllowedVideoTypes); err != nil {
		return err
	}

	file, err := fileHeader.Open()
	if err != nil {
		return err
	}
	defer file.Close()

	res, err := c.sessionService.UploadVideo(ctx.Context(), id, fileHeader.Filename, file)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success upload video", res))
}

func (c *sessionController) UploadReference(ctx *fiber.Ctx) error {
	id, err := sessionId(ctx)
	if err != nil {
		return err
	}

	fileHeader, err := ctx.FormFile("file")
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "missing file field")
	}
	if err := c.checkUpload(fileHeader.Size, fileHeader.Header.Get(fiber.HeaderContentType), c.media.AllowedDocumentTypes); err != nil {
		return err
	}

	file, err := fileHeader.Open()
	if err != nil {
		return err
	}
	defer file.Close()

	res, err := c.sessionService.UploadReference(ctx.Context(), id, fileHeader.Filename, file)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success upload reference", res))
}

func (c *sessionController) RemoveReference(ctx *fiber.Ctx) error {
	id, err := sessionId(ctx)
	if err != nil {
		return err
	}

	fileId := ctx.Params("fileId")
	if err := c.sessionService.RemoveReference(ctx.Context(), id, fileId); err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success remove reference", nil))
}

func (c *sessionController) SendChat(ctx *fiber.Ctx) error {
	id, err := sessionId(ctx)
	if err != nil {
		return err
	}

	var req dto.SendChatRequest
	if err := ctx.BodyParser(&req); err != nil {
		return err
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.sessionService.SendChat(ctx.Context(), id, &req)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success send chat", res))
}

func (c *sessionController) ExportReport(ctx *fiber.Ctx) error {
	id, err := sessionId(ctx)
	if err != nil {
		return err
	}

	var req dto.ExportReportRequest
	if len(ctx.Body()) > 0 {
		if err := ctx.BodyParser(&req); err != nil {
			return err
		}
	}

	snapshot, err := decodeSnapshot(req.Snapshot)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "snapshot is not valid base64 PNG data")
	}

	artifact, err := c.sessionService.ExportReport(ctx.Context(), id, snapshot)
	if err != nil {
		return err
	}

	ctx.Set(fiber.HeaderContentType, artifact.ContentType)
	ctx.Set(fiber.HeaderContentDisposition, `attachment; filename="`+artifact.FileName+`"`)
	return ctx.Send(artifact.Data)
}

func (c *sessionController) CloseSession(ctx *fiber.Ctx) error {
	id, err := sessionId(ctx)
	if err != nil {
		return err
	}

	c.sessionService.CloseSession(id)
	return ctx.JSON(serverutils.SuccessResponse("Success close session", nil))
}

// decodeSnapshot accepts raw base64 or a data URL as produced by
// canvas.toDataURL.
func decodeSnapshot(snapshot string) ([]byte, error) {
	if snapshot == "" {
		return nil, nil
	}
	if idx := strings.Index(snapshot, "base64,"); idx >= 0 {
		snapshot = snapshot[idx+len("base64,"):]
	}
	return base64.StdEncoding.DecodeString(snapshot)
}
