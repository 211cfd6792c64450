package tenant

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/mbd888/tenantdesk/internal/billing"
	"github.com/mbd888/tenantdesk/internal/logging"
	"github.com/mbd888/tenantdesk/internal/plan"
	"github.com/mbd888/tenantdesk/internal/validation"
)

// Handler provides HTTP endpoints for tenant management.
type Handler struct {
	svc *Service
}

// NewHandler creates a new tenant handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterAdminRoutes sets up the admin-only tenant routes. Creation lives
// with provisioning since it also allocates the partition.
func (h *Handler) RegisterAdminRoutes(r *gin.RouterGroup) {
	r.GET("/tenants", h.ListTenants)
	r.GET("/tenants/:id", h.GetTenant)
	r.POST("/tenants/:id/activate", h.ActivateTenant)
	r.POST("/tenants/:id/deactivate", h.DeactivateTenant)
	r.PUT("/tenants/:id/plan", h.ChangePlan)
	r.PUT("/tenants/:id/billing", h.SetBillingCustomer)
	r.GET("/tenants/:id/domains", h.ListDomains)
	r.POST("/tenants/:id/domains", h.AddDomain)
}

// ListTenants handles GET /admin/tenants
func (h *Handler) ListTenants(c *gin.Context) {
	tenants, err := h.svc.List(c.Request.Context())
	if err != nil {
		h.internalError(c, "list tenants", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tenants": tenants, "count": len(tenants)})
}

// GetTenant handles GET /admin/tenants/:id
func (h *Handler) GetTenant(c *gin.Context) {
	id, ok := tenantID(c)
	if !ok {
		return
	}
	t, err := h.svc.Get(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, "get tenant", err)
		return
	}
	domains, err := h.svc.Domains(c.Request.Context(), id)
	if err != nil {
		h.internalError(c, "list domains", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"tenant":           t,
		"display_name":     t.DisplayName(),
		"has_subscription": t.HasSubscription(),
		"domains":          domains,
	})
}

// ActivateTenant handles POST /admin/tenants/:id/activate
func (h *Handler) ActivateTenant(c *gin.Context) {
	id, ok := tenantID(c)
	if !ok {
		return
	}
	t, err := h.svc.Activate(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, "activate tenant", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tenant": t})
}

// DeactivateTenant handles POST /admin/tenants/:id/deactivate
func (h *Handler) DeactivateTenant(c *gin.Context) {
	id, ok := tenantID(c)
	if !ok {
		return
	}
	t, err := h.svc.Deactivate(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, "deactivate tenant", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tenant": t})
}

// ChangePlan handles PUT /admin/tenants/:id/plan. An optional
// stripe_customer_id is linked before the billing gate is consulted.
func (h *Handler) ChangePlan(c *gin.Context) {
	id, ok := tenantID(c)
	if !ok {
		return
	}
	var req struct {
		Plan             string  `json:"plan" binding:"required"`
		StripeCustomerID *string `json:"stripe_customer_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "plan required"})
		return
	}
	code, err := plan.ParseCode(req.Plan)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_plan", "message": "unknown plan"})
		return
	}

	ctx := c.Request.Context()
	if req.StripeCustomerID != nil {
		if _, err := h.svc.SetBillingCustomer(ctx, id, *req.StripeCustomerID); err != nil {
			h.respondError(c, "link billing customer", err)
			return
		}
	}
	t, err := h.svc.AttachPlan(ctx, id, code)
	if err != nil {
		h.respondError(c, "change plan", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tenant": t})
}

// SetBillingCustomer handles PUT /admin/tenants/:id/billing
func (h *Handler) SetBillingCustomer(c *gin.Context) {
	id, ok := tenantID(c)
	if !ok {
		return
	}
	var req struct {
		StripeCustomerID *string `json:"stripe_customer_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "stripe_customer_id required"})
		return
	}

	t, err := h.svc.SetBillingCustomer(c.Request.Context(), id, *req.StripeCustomerID)
	if err != nil {
		h.respondError(c, "link billing customer", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tenant": t})
}

// ListDomains handles GET /admin/tenants/:id/domains
func (h *Handler) ListDomains(c *gin.Context) {
	id, ok := tenantID(c)
	if !ok {
		return
	}
	if _, err := h.svc.Get(c.Request.Context(), id); err != nil {
		h.respondError(c, "get tenant", err)
		return
	}
	domains, err := h.svc.Domains(c.Request.Context(), id)
	if err != nil {
		h.internalError(c, "list domains", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"domains": domains, "count": len(domains)})
}

// AddDomain handles POST /admin/tenants/:id/domains
func (h *Handler) AddDomain(c *gin.Context) {
	id, ok := tenantID(c)
	if !ok {
		return
	}
	var req struct {
		Domain    string `json:"domain"`
		IsPrimary bool   `json:"is_primary"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "invalid body"})
		return
	}

	d, err := h.svc.AddDomain(c.Request.Context(), id, req.Domain, req.IsPrimary)
	if err != nil {
		h.respondError(c, "add domain", err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"domain": d})
}

// ---------- helpers ----------

func tenantID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": "tenant not found"})
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
	case errors.Is(err, ErrTenantNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": "tenant not found"})
	case errors.Is(err, plan.ErrPlanNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "plan_not_found", "message": "plan has not been seeded"})
	case errors.Is(err, billing.ErrPaymentRequired), errors.Is(err, billing.ErrNoCustomer):
		c.JSON(http.StatusPaymentRequired, gin.H{"error": "payment_required", "message": err.Error()})
	case errors.Is(err, billing.ErrUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "billing_unavailable", "message": "billing provider is unavailable, try again later"})
	case errors.Is(err, ErrDomainTaken):
		c.JSON(http.StatusConflict, gin.H{"error": "domain_taken", "message": "domain already registered"})
	case errors.Is(err, ErrPrimaryExists):
		c.JSON(http.StatusConflict, gin.H{"error": "primary_exists", "message": "tenant already has a primary domain"})
	case errors.Is(err, ErrSlugTaken):
		c.JSON(http.StatusConflict, gin.H{"error": "slug_taken", "message": "slug already in use"})
	case errors.Is(err, ErrSchemaTaken):
		c.JSON(http.StatusConflict, gin.H{"error": "schema_taken", "message": "schema name already in use"})
	default:
		h.internalError(c, op, err)
	}
}

func (h *Handler) internalError(c *gin.Context, op string, err error) {
	logging.L(c.Request.Context()).Error(op+" failed", "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "failed to " + op})
}
