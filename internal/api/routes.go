package api

import (
	"context"
	"crypto/subtle"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/satriahrh/studylive/domain/entities"
	"github.com/satriahrh/studylive/internal/auth"
	"github.com/satriahrh/studylive/internal/contexttier"
	"github.com/satriahrh/studylive/internal/websocket"
)

const (
	maxImageBytes = 8 << 20

	// DefaultSystemPrompt is used when a connect request carries none.
	DefaultSystemPrompt = "You are a friendly study assistant watching a lecture video with the student. " +
		"Answer out loud, briefly and concretely. Use get_video_context when you need the script " +
		"around the current position, and seek_video to jump the player to a moment you refer to."
)

// SessionController is the live session surface exposed over HTTP
type SessionController interface {
	Connect(ctx context.Context, systemPrompt string) (entities.Session, error)
	Disconnect() error
	Active() (entities.Session, bool)
	StartInputAudio() error
	StopInputAudio() error
	SendImage(jpeg []byte) error
	UpdateView(view entities.ViewState)
	View() entities.ViewState
	SetScript(lines []entities.ScriptLine)
	Script() []entities.ScriptLine
	CaptureFrame(ctx context.Context) ([]byte, error)
}

// Asker answers one-off questions with a structured card
type Asker interface {
	Ask(ctx context.Context, query string, bundle entities.ContextualBundle) entities.AnswerCard
}

// Handler holds the dependencies of the control API
type Handler struct {
	sessions     SessionController
	asker        Asker
	tiers        *contexttier.Policy
	hub          *websocket.Hub
	issuer       *auth.Issuer
	sharedSecret string
	logger       *zap.Logger
}

// NewHandler creates the control API handler
func NewHandler(
	sessions SessionController,
	asker Asker,
	tiers *contexttier.Policy,
	hub *websocket.Hub,
	issuer *auth.Issuer,
	sharedSecret string,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		sessions:     sessions,
		asker:        asker,
		tiers:        tiers,
		hub:          hub,
		issuer:       issuer,
		sharedSecret: sharedSecret,
		logger:       logger,
	}
}

// InitRoutes initializes all API routes
func InitRoutes(e *echo.Echo, h *Handler) {
	// Health check
	e.GET("/health", func(c echo.Context) error {
		_, active := h.sessions.Active()
		return c.JSON(http.StatusOK, map[string]interface{}{
			"status":         "ok",
			"service":        "studylive",
			"session_active": active,
		})
	})

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// API v1 routes
	v1 := e.Group("/api/v1")
	v1.POST("/auth/token", h.issueToken)

	protected := v1.Group("", h.issuer.Middleware(h.logger))

	protected.GET("/session", h.getSession)
	protected.POST("/session/connect", h.connect)
	protected.POST("/session/disconnect", h.disconnect)
	protected.POST("/session/talk/start", h.talkStart)
	protected.POST("/session/talk/stop", h.talkStop)
	protected.POST("/session/image", h.sendImage)

	protected.PUT("/player", h.updatePlayer)
	protected.PUT("/player/script", h.updateScript)

	protected.POST("/ask", h.ask)

	// WebSocket endpoint with JWT validation
	e.GET("/ws", h.websocket, h.issuer.Middleware(h.logger))
}

func (h *Handler) issueToken(c echo.Context) error {
	var req TokenRequest
	if err := c.Bind(&req); err != nil {
		h.logger.Error("Failed to bind token request", zap.Error(err))
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid request format",
		})
	}

	if req.Secret == "" {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "missing_fields",
			Message: "Secret is required",
		})
	}

	if subtle.ConstantTimeCompare([]byte(req.Secret), []byte(h.sharedSecret)) != 1 {
		h.logger.Warn("Token request rejected", zap.String("client_id", req.ClientID))
		return c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error:   "authentication_failed",
			Message: "Invalid secret",
		})
	}

	clientID := req.ClientID
	if clientID == "" {
		clientID = uuid.NewString()
	}

	token, err := h.issuer.GenerateToken(clientID)
	if err != nil {
		h.logger.Error("Failed to generate token", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "token_generation_failed",
			Message: "Failed to generate authentication token",
		})
	}

	h.logger.Info("Client authenticated", zap.String("client_id", clientID))
	return c.JSON(http.StatusOK, TokenResponse{
		Token:     token,
		ExpiresAt: time.Now().Add(h.issuer.TTL()),
		ClientID:  clientID,
	})
}

func (h *Handler) getSession(c echo.Context) error {
	session, ok := h.sessions.Active()
	if !ok {
		return h.fail(c, entities.ErrNoSession)
	}
	return c.JSON(http.StatusOK, SessionResponse{Session: session})
}

func (h *Handler) connect(c echo.Context) error {
	var req ConnectRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid request format",
		})
	}

	prompt := req.SystemPrompt
	if prompt == "" {
		prompt = DefaultSystemPrompt
	}

	session, err := h.sessions.Connect(c.Request().Context(), prompt)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, SessionResponse{Session: session})
}

func (h *Handler) disconnect(c echo.Context) error {
	if err := h.sessions.Disconnect(); err != nil {
		return h.fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) talkStart(c echo.Context) error {
	if err := h.sessions.StartInputAudio(); err != nil {
		return h.fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) talkStop(c echo.Context) error {
	if err := h.sessions.StopInputAudio(); err != nil {
		return h.fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) sendImage(c echo.Context) error {
	data, err := io.ReadAll(io.LimitReader(c.Request().Body, maxImageBytes+1))
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid_request", Message: "Failed to read image"})
	}
	if len(data) == 0 || len(data) > maxImageBytes {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid_image", Message: "Image must be a non-empty JPEG up to 8MB"})
	}

	if err := h.sessions.SendImage(data); err != nil {
		return h.fail(c, err)
	}
	return c.NoContent(http.StatusAccepted)
}

func (h *Handler) updatePlayer(c echo.Context) error {
	var req PlayerRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid_request", Message: "Invalid request format"})
	}
	if req.PositionSeconds < 0 {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid_position", Message: "position_seconds must not be negative"})
	}

	h.sessions.UpdateView(entities.ViewState{
		VideoPath: req.VideoPath,
		Position:  seconds(req.PositionSeconds),
		Container: req.Container,
		Outline:   req.Outline,
	})
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) updateScript(c echo.Context) error {
	var req ScriptRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid_request", Message: "Invalid request format"})
	}

	lines := make([]entities.ScriptLine, 0, len(req.Lines))
	for _, line := range req.Lines {
		lines = append(lines, entities.ScriptLine{
			Start: seconds(line.StartSeconds),
			End:   seconds(line.EndSeconds),
			Text:  line.Text,
		})
	}
	h.sessions.SetScript(lines)

	h.logger.Info("Script updated", zap.Int("lines", len(lines)))
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) ask(c echo.Context) error {
	var req AskRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid_request", Message: "Invalid request format"})
	}
	if req.Query == "" {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "missing_fields", Message: "Query is required"})
	}

	tier := entities.TierS
	if req.Tier != "" {
		parsed, err := contexttier.ParseTier(req.Tier)
		if err != nil {
			return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid_tier", Message: err.Error()})
		}
		tier = parsed
	}

	ctx := c.Request().Context()

	var image []byte
	if req.IncludeFrame == nil || *req.IncludeFrame {
		frame, err := h.sessions.CaptureFrame(ctx)
		switch {
		case err == nil:
			image = frame
		case errors.Is(err, entities.ErrNoFrame):
		default:
			h.logger.Warn("Failed to capture frame for question", zap.Error(err))
		}
	}

	view := h.sessions.View()
	bundle := h.tiers.Assemble(tier, view.Position, h.sessions.Script(), image)
	card := h.asker.Ask(ctx, req.Query, bundle)

	return c.JSON(http.StatusOK, AskResponse{
		AnswerCard: card,
		Tier:       tier,
		NextTier:   contexttier.Next(card, tier),
	})
}

func (h *Handler) websocket(c echo.Context) error {
	clientID := uuid.NewString()
	if claims, ok := auth.ClaimsFrom(c); ok && claims.ClientID != "" {
		clientID = claims.ClientID + "/" + clientID
	}

	h.logger.Info("WebSocket connection authenticated", zap.String("client_id", clientID))
	return websocket.HandleWebSocket(h.hub, c, clientID, h.logger)
}

// fail maps domain errors to HTTP statuses
func (h *Handler) fail(c echo.Context, err error) error {
	status, code := errorStatus(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("Request failed", zap.String("path", c.Path()), zap.Error(err))
	}
	return c.JSON(status, ErrorResponse{Error: code, Message: err.Error()})
}

func errorStatus(err error) (int, string) {
	switch {
	case entities.IsDeviceError(err):
		return http.StatusFailedDependency, "device_error"
	case entities.IsTransportError(err):
		return http.StatusBadGateway, "transport_error"
	case errors.Is(err, entities.ErrSessionActive):
		return http.StatusConflict, "session_active"
	case errors.Is(err, entities.ErrNoSession):
		return http.StatusConflict, "no_session"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, "canceled"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}
