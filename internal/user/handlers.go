package user

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mbd888/tenantdesk/internal/logging"
	"github.com/mbd888/tenantdesk/internal/partition"
	"github.com/mbd888/tenantdesk/internal/validation"
)

// Scopes finds the partition of a tenant for the admin API.
type Scopes interface {
	ForTenant(ctx context.Context, tenantID int64) (partition.Partition, error)
}

// Handler manages the accounts of any workspace over the admin API.
type Handler struct {
	svc    *Service
	scopes Scopes
	now    func() time.Time
}

// NewHandler creates a new user handler.
func NewHandler(svc *Service, scopes Scopes) *Handler {
	return &Handler{svc: svc, scopes: scopes, now: time.Now}
}

// RegisterAdminRoutes sets up the admin-only account routes of a tenant.
func (h *Handler) RegisterAdminRoutes(r *gin.RouterGroup) {
	r.GET("/tenants/:id/users", h.ListUsers)
	r.POST("/tenants/:id/users", h.RegisterUser)
	r.GET("/tenants/:id/users/:uid", h.GetUser)
	r.POST("/tenants/:id/users/:uid/activate", h.ActivateUser)
	r.POST("/tenants/:id/users/:uid/deactivate", h.DeactivateUser)
	r.POST("/tenants/:id/users/:uid/admin", h.PromoteUser)
	r.PUT("/tenants/:id/users/:uid/role", h.AssignRole)
	r.DELETE("/tenants/:id/users/:uid", h.DeleteUser)
}

// View is a user with its derived fields.
type View struct {
	*User
	FullName    string  `json:"full_name"`
	RoleDisplay *string `json:"role_display"`
	IsRecent    bool    `json:"is_recent"`
}

func (h *Handler) view(u *User) View {
	return View{User: u, FullName: u.FullName(), RoleDisplay: u.RoleDisplay(), IsRecent: u.IsRecent(h.now())}
}

// ListUsers handles GET /admin/tenants/:id/users
func (h *Handler) ListUsers(c *gin.Context) {
	ctx, ok := h.scope(c)
	if !ok {
		return
	}
	users, err := h.svc.List(ctx)
	if err != nil {
		h.respondError(c, "list users", err)
		return
	}
	out := make([]View, len(users))
	for i, u := range users {
		out[i] = h.view(u)
	}
	c.JSON(http.StatusOK, gin.H{"users": out, "count": len(out)})
}

type registerRequest struct {
	Email       string  `json:"email" binding:"required"`
	Username    string  `json:"username"`
	Password    string  `json:"password"`
	FirstName   string  `json:"first_name"`
	LastName    string  `json:"last_name"`
	PhoneNumber *string `json:"phone_number"`
	Role        *string `json:"role"`
}

// RegisterUser handles POST /admin/tenants/:id/users. An existing account
// with the same email is returned unchanged.
func (h *Handler) RegisterUser(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "email required"})
		return
	}
	nu := NewUser{
		Email:       req.Email,
		Username:    req.Username,
		Password:    req.Password,
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		PhoneNumber: req.PhoneNumber,
	}
	if req.Role != nil {
		role, err := ParseRole(*req.Role)
		if err != nil {
			h.respondError(c, "register user", err)
			return
		}
		nu.Role = &role
	}

	ctx, ok := h.scope(c)
	if !ok {
		return
	}
	u, created, err := h.svc.Register(ctx, nu)
	if err != nil {
		h.respondError(c, "register user", err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{"user": h.view(u), "created": created})
}

// GetUser handles GET /admin/tenants/:id/users/:uid
func (h *Handler) GetUser(c *gin.Context) {
	h.apply(c, "get user", h.svc.Get)
}

// ActivateUser handles POST /admin/tenants/:id/users/:uid/activate
func (h *Handler) ActivateUser(c *gin.Context) {
	h.apply(c, "activate user", h.svc.Activate)
}

// DeactivateUser handles POST /admin/tenants/:id/users/:uid/deactivate
func (h *Handler) DeactivateUser(c *gin.Context) {
	h.apply(c, "deactivate user", h.svc.Deactivate)
}

// PromoteUser handles POST /admin/tenants/:id/users/:uid/admin
func (h *Handler) PromoteUser(c *gin.Context) {
	h.apply(c, "promote user", h.svc.CreateAdmin)
}

// AssignRole handles PUT /admin/tenants/:id/users/:uid/role
func (h *Handler) AssignRole(c *gin.Context) {
	var req struct {
		Role string `json:"role" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "role required"})
		return
	}
	role, err := ParseRole(req.Role)
	if err != nil {
		h.respondError(c, "assign role", err)
		return
	}
	h.apply(c, "assign role", func(ctx context.Context, id int64) (*User, error) {
		return h.svc.CreateRoleBasedUser(ctx, id, role)
	})
}

// DeleteUser handles DELETE /admin/tenants/:id/users/:uid
func (h *Handler) DeleteUser(c *gin.Context) {
	ctx, ok := h.scope(c)
	if !ok {
		return
	}
	id, ok := userID(c)
	if !ok {
		return
	}
	if err := h.svc.Delete(ctx, id); err != nil {
		h.respondError(c, "delete user", err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ---------- helpers ----------

func (h *Handler) apply(c *gin.Context, op string, fn func(ctx context.Context, id int64) (*User, error)) {
	ctx, ok := h.scope(c)
	if !ok {
		return
	}
	id, ok := userID(c)
	if !ok {
		return
	}
	u, err := fn(ctx, id)
	if err != nil {
		h.respondError(c, op, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": h.view(u)})
}

// scope binds the partition of the tenant named in the path, replacing the
// public binding of the admin request.
func (h *Handler) scope(c *gin.Context) (context.Context, bool) {
	tenantID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || tenantID <= 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": "tenant not found"})
		return nil, false
	}
	ctx := c.Request.Context()
	p, err := h.scopes.ForTenant(ctx, tenantID)
	if err != nil {
		h.respondError(c, "resolve tenant", err)
		return nil, false
	}
	return partition.With(ctx, p), true
}

func userID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("uid"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": "user not found"})
		return 0, false
	}
	return id, true
}

func (h *Handler) respondError(c *gin.Context, op string, err error) {
	if errs, ok := validation.As(err); ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation_failed", "message": errs.Error(), "fields": errs})
		return
	}
	switch {
	case errors.Is(err, partition.ErrNoTenant):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": "tenant not found"})
	case errors.Is(err, ErrUserNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": "user not found"})
	case errors.Is(err, ErrInvalidRole):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_role", "message": err.Error()})
	case errors.Is(err, partition.ErrPublicTarget):
		c.JSON(http.StatusBadRequest, gin.H{"error": "public_partition", "message": "role users exist only in tenant workspaces"})
	case errors.Is(err, ErrEmailTaken):
		c.JSON(http.StatusConflict, gin.H{"error": "email_taken", "message": "email already registered"})
	default:
		logging.L(c.Request.Context()).Error(op+" failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "failed to " + op})
	}
}
