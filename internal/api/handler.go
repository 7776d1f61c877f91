package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/minus-twelve/taskauth"
	"github.com/minus-twelve/taskauth/internal/logging"
	"github.com/minus-twelve/taskauth/internal/users"
	"github.com/minus-twelve/taskauth/token"
	"github.com/minus-twelve/taskauth/types"
)

const minPasswordLength = 8

// Credentials is the part of the user store the handlers need.
type Credentials interface {
	Authenticate(ctx context.Context, username, password string) (types.Identity, error)
	Create(ctx context.Context, u users.NewUser) (types.Identity, error)
}

type Pinger interface {
	Ping(ctx context.Context) error
}

type Handler struct {
	users    Credentials
	sessions *taskauth.SessionManager
	tokens   *taskauth.TokenRegistry
	signer   *token.Signer
	stores   []Pinger
}

func NewHandler(
	creds Credentials,
	sessions *taskauth.SessionManager,
	tokens *taskauth.TokenRegistry,
	signer *token.Signer,
	stores ...Pinger,
) *Handler {
	return &Handler{
		users:    creds,
		sessions: sessions,
		tokens:   tokens,
		signer:   signer,
		stores:   stores,
	}
}

// RegisterRoutes mounts the auth endpoints. limit guards the credential
// endpoints; auth decides who reaches the protected ones.
func (h *Handler) RegisterRoutes(r gin.IRouter, auth taskauth.Authenticator, limit gin.HandlerFunc) {
	r.GET("/healthz", h.Health)

	public := r.Group("/auth")
	if limit != nil {
		public.Use(limit)
	}
	public.POST("/register", h.Register)
	public.POST("/login", h.Login)
	public.POST("/token", h.ObtainToken)

	r.POST("/auth/token/revoke", h.RevokeToken)

	protected := r.Group("/")
	protected.Use(taskauth.AuthMiddleware(auth), taskauth.RequireAuth())
	protected.POST("/auth/logout", h.Logout)
	protected.GET("/auth/session", h.SessionCheck)
	protected.GET("/api/me", h.Me)
}

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Email    string `json:"email"`
}

type sessionResponse struct {
	SessionID string         `json:"session_id"`
	User      types.Identity `json:"user"`
}

func internalError(c *gin.Context, msg string, err error) {
	logging.FromContext(c.Request.Context()).Error(msg, "err", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
}

func (h *Handler) Register(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Username == "" || req.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Username and password are required"})
		return
	}
	if len(req.Password) < minPasswordLength {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Password must be at least 8 characters long"})
		return
	}

	ctx := c.Request.Context()
	user, err := h.users.Create(ctx, users.NewUser{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
	if errors.Is(err, users.ErrUsernameTaken) {
		c.JSON(http.StatusConflict, gin.H{"error": "Username already exists"})
		return
	}
	if err != nil {
		internalError(c, "register: create user", err)
		return
	}

	handle, err := h.sessions.CreateOrReuse(ctx, user)
	if err != nil {
		internalError(c, "register: create session", err)
		return
	}

	h.sessions.SetSessionCookie(c.Writer, handle)
	c.JSON(http.StatusCreated, sessionResponse{SessionID: handle, User: user})
}

func (h *Handler) Login(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Username == "" || req.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Username and password are required"})
		return
	}

	ctx := c.Request.Context()
	user, err := h.users.Authenticate(ctx, req.Username, req.Password)
	if errors.Is(err, users.ErrInvalidCredentials) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	}
	if err != nil {
		internalError(c, "login: authenticate", err)
		return
	}

	handle, err := h.sessions.CreateOrReuse(ctx, user)
	if err != nil {
		internalError(c, "login: create session", err)
		return
	}

	h.sessions.SetSessionCookie(c.Writer, handle)
	c.JSON(http.StatusOK, sessionResponse{SessionID: handle, User: user})
}

// requestHandle reads the handle in the same order the session
// authenticator does, so handlers act on the session that was authenticated.
func (h *Handler) requestHandle(c *gin.Context) string {
	return taskauth.SessionHandle(c.Request, h.sessions.CookieName(), h.sessions.HeaderName())
}

func (h *Handler) Logout(c *gin.Context) {
	handle := h.requestHandle(c)
	if handle == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Session ID is required"})
		return
	}

	if err := h.sessions.Delete(c.Request.Context(), handle); err != nil {
		internalError(c, "logout: delete session", err)
		return
	}

	h.sessions.ClearSessionCookie(c.Writer)
	c.JSON(http.StatusOK, gin.H{"message": "Successfully logged out"})
}

func (h *Handler) SessionCheck(c *gin.Context) {
	ctx := c.Request.Context()
	handle := h.requestHandle(c)

	user, err := h.sessions.Resolve(ctx, handle)
	if err != nil {
		if !errors.Is(err, taskauth.ErrSessionInvalid) && !errors.Is(err, taskauth.ErrUserNotFound) {
			logging.FromContext(ctx).Error("session check: resolve", "err", err)
		}
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid session"})
		return
	}

	if _, err := h.sessions.Refresh(ctx, handle); err != nil {
		logging.FromContext(ctx).Warn("session check: refresh", "err", err)
	}
	c.JSON(http.StatusOK, user)
}

func (h *Handler) Me(c *gin.Context) {
	user, _ := taskauth.IdentityFromContext(c)
	c.JSON(http.StatusOK, user)
}

func (h *Handler) ObtainToken(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Username == "" || req.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Username and password are required"})
		return
	}

	ctx := c.Request.Context()
	user, err := h.users.Authenticate(ctx, req.Username, req.Password)
	if errors.Is(err, users.ErrInvalidCredentials) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	}
	if err != nil {
		internalError(c, "token: authenticate", err)
		return
	}

	raw, _, err := h.signer.Issue(user.UserID)
	if err != nil {
		internalError(c, "token: issue", err)
		return
	}
	if !h.tokens.Store(ctx, raw, user.UserID) {
		logging.FromContext(ctx).Warn("token issued without registry tracking", "user_id", user.UserID)
	}

	c.JSON(http.StatusOK, gin.H{
		"access":     raw,
		"token_type": "Bearer",
		"expires_in": int(h.signer.TTL() / time.Second),
	})
}

func (h *Handler) RevokeToken(c *gin.Context) {
	raw, ok := taskauth.BearerToken(c.Request)
	if !ok || raw == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	if !h.tokens.Blacklist(c.Request.Context(), raw) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Token revoked"})
}

func (h *Handler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	for _, s := range h.stores {
		if err := s.Ping(ctx); err != nil {
			logging.FromContext(ctx).Error("health: store ping failed", "err", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
