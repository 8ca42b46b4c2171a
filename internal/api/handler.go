package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apperrors "github.com/solvio/solvio-core/internal/common/errors"
	"github.com/solvio/solvio-core/internal/identity"
	"github.com/solvio/solvio-core/internal/middleware"
	"github.com/solvio/solvio-core/internal/principal"
	"github.com/solvio/solvio-core/internal/rbac"
	"github.com/solvio/solvio-core/internal/rolechange"
	"github.com/solvio/solvio-core/internal/session"
)

// Handler exposes the session core over HTTP
type Handler struct {
	sessions *session.Manager
	guard    *principal.Guard
	roles    *rolechange.Service
	logger   *zap.Logger
}

// NewHandler creates the HTTP handler over the session manager and role
// change service. The guard reads its principal snapshots from the manager.
func NewHandler(sessions *session.Manager, roles *rolechange.Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		sessions: sessions,
		guard:    principal.NewGuard(sessions),
		roles:    roles,
		logger:   logger.With(zap.String("component", "api")),
	}
}

// Guard returns the authorization guard backed by the session manager
func (h *Handler) Guard() *principal.Guard {
	return h.guard
}

// RegisterRoutes registers the session and role endpoints
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	v1 := router.Group("/api/v1")
	v1.Use(VersionMiddleware())

	sessionGroup := v1.Group("/session")
	{
		sessionGroup.POST("/sign-in", h.handleSignIn)
		sessionGroup.POST("/sign-in/external", h.handleSignInExternal)
		sessionGroup.DELETE("", h.handleSignOut)
		sessionGroup.POST("/refresh", h.handleRefresh)
		sessionGroup.GET("", h.handleGetSession)
		sessionGroup.GET("/fingerprint", h.handleGetFingerprint)
	}

	v1.GET("/authz/check", h.handleAuthzCheck)

	rolesGroup := v1.Group("/roles")
	rolesGroup.Use(middleware.RequireAuthenticated(h.sessions))
	{
		rolesGroup.POST("/assign", middleware.RequirePermission(h.guard, rbac.PermRolesAssign), h.handleAssignRole)
		rolesGroup.POST("/remove", middleware.RequirePermission(h.guard, rbac.PermRolesAssign), h.handleRemoveRole)
		rolesGroup.POST("/requests", h.handleCreateRequest)
		rolesGroup.GET("/requests", middleware.RequirePermission(h.guard, rbac.PermRolesAssign), h.handleListRequests)
		rolesGroup.GET("/requests/:id", middleware.RequirePermission(h.guard, rbac.PermRolesAssign), h.handleGetRequest)
		rolesGroup.POST("/requests/:id/approve", middleware.RequirePermission(h.guard, rbac.PermRolesAssign), h.handleApproveRequest)
		rolesGroup.POST("/requests/:id/reject", middleware.RequirePermission(h.guard, rbac.PermRolesAssign), h.handleRejectRequest)
	}
}

type signInRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *Handler) handleSignIn(c *gin.Context) {
	var req signInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.HandleError(c, apperrors.BadRequest(err.Error()))
		return
	}

	p, err := h.sessions.SignIn(c.Request.Context(), identity.Credentials{
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, principalResponse(p))
}

type externalSignInRequest struct {
	Token string `json:"token" binding:"required"`
}

func (h *Handler) handleSignInExternal(c *gin.Context) {
	var req externalSignInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.HandleError(c, apperrors.BadRequest(err.Error()))
		return
	}

	p, err := h.sessions.SignInWithExternalProvider(c.Request.Context(), req.Token)
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, principalResponse(p))
}

func (h *Handler) handleSignOut(c *gin.Context) {
	if err := h.sessions.SignOut(c.Request.Context()); err != nil {
		apperrors.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": string(h.sessions.State())})
}

func (h *Handler) handleRefresh(c *gin.Context) {
	if err := h.sessions.RefreshUser(c.Request.Context()); err != nil {
		apperrors.HandleError(c, err)
		return
	}

	resp := gin.H{"state": string(h.sessions.State())}
	if p := h.sessions.Current(); p != nil {
		resp["principal"] = principalResponse(p)
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) handleGetSession(c *gin.Context) {
	resp := gin.H{"state": string(h.sessions.State())}
	if p := h.sessions.Current(); p != nil {
		resp["principal"] = principalResponse(p)
	}
	c.JSON(http.StatusOK, resp)
}

// handleGetFingerprint serves the persisted fingerprint for display
// pre-population. It grants nothing: authorization always goes through the
// guard against the live principal.
func (h *Handler) handleGetFingerprint(c *gin.Context) {
	fp, err := h.sessions.CachedFingerprint(c.Request.Context())
	if err != nil {
		apperrors.HandleError(c, apperrors.Internal("failed to read fingerprint", err))
		return
	}
	if fp == nil {
		c.JSON(http.StatusOK, gin.H{"fingerprint": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"fingerprint": fp})
}

func (h *Handler) handleAuthzCheck(c *gin.Context) {
	resp := gin.H{}
	if perm := c.Query("permission"); perm != "" {
		resp["permission"] = perm
		resp["allowed"] = h.guard.HasPermission(rbac.Permission(perm))
	} else if role := c.Query("role"); role != "" {
		resp["role"] = role
		resp["allowed"] = h.guard.HasRole(rbac.Role(role))
	} else {
		apperrors.HandleError(c, apperrors.BadRequest("permission or role query parameter is required"))
		return
	}
	c.JSON(http.StatusOK, resp)
}

type assignRoleRequest struct {
	TargetUserID string `json:"target_user_id" binding:"required"`
	Role         string `json:"role" binding:"required"`
	Reason       string `json:"reason"`
}

func (h *Handler) handleAssignRole(c *gin.Context) {
	var req assignRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.HandleError(c, apperrors.BadRequest(err.Error()))
		return
	}

	err := h.roles.AssignRole(c.Request.Context(), req.TargetUserID, rbac.Role(req.Role), c.GetString("user_id"), req.Reason)
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"target_user_id": req.TargetUserID, "role": req.Role})
}

type removeRoleRequest struct {
	TargetUserID string `json:"target_user_id" binding:"required"`
}

func (h *Handler) handleRemoveRole(c *gin.Context) {
	var req removeRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.HandleError(c, apperrors.BadRequest(err.Error()))
		return
	}

	err := h.roles.RemoveRole(c.Request.Context(), req.TargetUserID, c.GetString("user_id"))
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"target_user_id": req.TargetUserID, "role": string(rbac.RoleStandard)})
}

type createRequestRequest struct {
	TargetUserID string `json:"target_user_id" binding:"required"`
	Role         string `json:"role" binding:"required"`
	Reason       string `json:"reason"`
}

func (h *Handler) handleCreateRequest(c *gin.Context) {
	var req createRequestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.HandleError(c, apperrors.BadRequest(err.Error()))
		return
	}

	created, err := h.roles.CreateRequest(c.Request.Context(), req.TargetUserID, rbac.Role(req.Role), c.GetString("user_id"), req.Reason)
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (h *Handler) handleListRequests(c *gin.Context) {
	pending, err := h.roles.ListPendingRequests(c.Request.Context())
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}
	if pending == nil {
		pending = []*rolechange.Request{}
	}
	c.JSON(http.StatusOK, pending)
}

func (h *Handler) handleGetRequest(c *gin.Context) {
	req, err := h.roles.GetRequest(c.Request.Context(), c.Param("id"))
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, req)
}

func (h *Handler) handleApproveRequest(c *gin.Context) {
	if err := h.roles.ApproveRequest(c.Request.Context(), c.Param("id"), c.GetString("user_id")); err != nil {
		apperrors.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": c.Param("id"), "status": string(rolechange.StatusApproved)})
}

type rejectRequestRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) handleRejectRequest(c *gin.Context) {
	var req rejectRequestRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			apperrors.HandleError(c, apperrors.BadRequest(err.Error()))
			return
		}
	}

	if err := h.roles.RejectRequest(c.Request.Context(), c.Param("id"), c.GetString("user_id"), req.Reason); err != nil {
		apperrors.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": c.Param("id"), "status": string(rolechange.StatusRejected)})
}

func principalResponse(p *principal.Principal) gin.H {
	return gin.H{
		"id":                  p.ID,
		"email":               p.Email,
		"role":                string(p.Role),
		"permissions":         p.Permissions,
		"last_revalidated_at": p.LastRevalidatedAt,
	}
}
