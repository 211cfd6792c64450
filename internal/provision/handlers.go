package provision

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/mbd888/tenantdesk/internal/billing"
	"github.com/mbd888/tenantdesk/internal/logging"
	"github.com/mbd888/tenantdesk/internal/partition"
	"github.com/mbd888/tenantdesk/internal/plan"
	"github.com/mbd888/tenantdesk/internal/tenant"
	"github.com/mbd888/tenantdesk/internal/user"
	"github.com/mbd888/tenantdesk/internal/validation"
)

// Handler exposes provisioning over the admin API.
type Handler struct {
	p *Provisioner
}

// NewHandler creates a new provisioning handler.
func NewHandler(p *Provisioner) *Handler {
	return &Handler{p: p}
}

// RegisterAdminRoutes sets up provisioning routes on an admin-guarded group.
func (h *Handler) RegisterAdminRoutes(r *gin.RouterGroup) {
	r.POST("/tenants", h.ProvisionTenant)
}

// ProvisionTenant handles POST /admin/tenants?seed_tasks=true
func (h *Handler) ProvisionTenant(c *gin.Context) {
	var spec TenantSpec
	if err := c.ShouldBindJSON(&spec); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "schema_name, name, slug and owner.email are required",
		})
		return
	}
	seed, _ := strconv.ParseBool(c.DefaultQuery("seed_tasks", "false"))

	res, err := h.p.Provision(c.Request.Context(), spec, Options{SeedTasks: seed})
	if err != nil {
		respondError(c, err)
		return
	}

	status := http.StatusOK
	if res.TenantCreated {
		status = http.StatusCreated
	}
	c.JSON(status, res)
}

func respondError(c *gin.Context, err error) {
	if errs, ok := validation.As(err); ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation_failed", "message": errs.Error(), "fields": errs})
		return
	}
	switch {
	case errors.Is(err, partition.ErrInvalidName), errors.Is(err, plan.ErrUnknownCode), errors.Is(err, user.ErrInvalidRole):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
	case errors.Is(err, plan.ErrPlanNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "plan_not_found", "message": "plan has not been seeded"})
	case errors.Is(err, tenant.ErrSlugTaken), errors.Is(err, tenant.ErrSchemaTaken),
		errors.Is(err, tenant.ErrDomainTaken), errors.Is(err, tenant.ErrPrimaryExists),
		errors.Is(err, user.ErrEmailTaken):
		c.JSON(http.StatusConflict, gin.H{"error": "conflict", "message": err.Error()})
	case errors.Is(err, billing.ErrPaymentRequired), errors.Is(err, billing.ErrNoCustomer):
		c.JSON(http.StatusPaymentRequired, gin.H{"error": "payment_required", "message": err.Error()})
	case errors.Is(err, billing.ErrUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "billing_unavailable", "message": "billing provider is unavailable, try again later"})
	default:
		logging.L(c.Request.Context()).Error("provision tenant failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "failed to provision tenant"})
	}
}
