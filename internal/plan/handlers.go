package plan

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/mbd888/tenantdesk/internal/logging"
	"github.com/mbd888/tenantdesk/internal/validation"
)

// Handler provides the administrative plan endpoints.
type Handler struct {
	store Store
}

// NewHandler creates a new plan handler.
func NewHandler(store Store) *Handler {
	return &Handler{store: store}
}

// RegisterAdminRoutes sets up plan routes on an admin-guarded group.
func (h *Handler) RegisterAdminRoutes(r *gin.RouterGroup) {
	r.GET("/plans", h.ListPlans)
	r.GET("/plans/:code", h.GetPlan)
	r.POST("/plans", h.CreatePlan)
}

type planView struct {
	*Plan
	DisplayName string `json:"display_name"`
}

func view(p *Plan) planView {
	return planView{Plan: p, DisplayName: p.DisplayName()}
}

// ListPlans handles GET /admin/plans?is_active=&bulk_sms=&ordering=
func (h *Handler) ListPlans(c *gin.Context) {
	var f ListFilter
	for _, q := range []struct {
		name string
		dst  **bool
	}{{"is_active", &f.IsActive}, {"bulk_sms", &f.BulkSMS}} {
		raw := c.Query(q.name)
		if raw == "" {
			continue
		}
		v, err := strconv.ParseBool(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": q.name + " must be a boolean"})
			return
		}
		*q.dst = &v
	}
	f.Ordering = c.DefaultQuery("ordering", DefaultListOrdering)
	if !ValidOrdering(f.Ordering) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "unsupported ordering"})
		return
	}

	plans, err := h.store.List(c.Request.Context(), f)
	if err != nil {
		logging.L(c.Request.Context()).Error("list plans failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "failed to list plans"})
		return
	}

	out := make([]planView, len(plans))
	for i, p := range plans {
		out[i] = view(p)
	}
	c.JSON(http.StatusOK, gin.H{"plans": out, "count": len(out)})
}

// GetPlan handles GET /admin/plans/:code
func (h *Handler) GetPlan(c *gin.Context) {
	code, err := ParseCode(c.Param("code"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": "plan not found"})
		return
	}

	p, err := h.store.GetByCode(c.Request.Context(), code)
	if err != nil {
		if errors.Is(err, ErrPlanNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": "plan not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "failed to load plan"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"plan": view(p)})
}

type createRequest struct {
	Code             string `json:"code" binding:"required,oneof=free standard business enterprise"`
	PriceNPR         int    `json:"price_npr"`
	IsActive         *bool  `json:"is_active"`
	MaxUsers         int    `json:"max_users"`
	MaxLeadForms     *int   `json:"max_lead_forms" binding:"omitempty,gt=0"`
	StorageGBPerUser int    `json:"storage_gb_per_user"`
	BulkEmailLimit   *int   `json:"bulk_email_limit" binding:"omitempty,gt=0"`
	BulkSMS          bool   `json:"bulk_sms"`
}

// CreatePlan handles POST /admin/plans
func (h *Handler) CreatePlan(c *gin.Context) {
	var req createRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "code must be one of free, standard, business, enterprise; optional limits must be positive",
		})
		return
	}

	p := &Plan{
		Code:             Code(req.Code),
		PriceNPR:         req.PriceNPR,
		IsActive:         req.IsActive == nil || *req.IsActive,
		MaxUsers:         req.MaxUsers,
		MaxLeadForms:     req.MaxLeadForms,
		StorageGBPerUser: req.StorageGBPerUser,
		BulkEmailLimit:   req.BulkEmailLimit,
		BulkSMS:          req.BulkSMS,
	}
	if err := p.Validate(); err != nil {
		errs, _ := validation.As(err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation_failed", "message": err.Error(), "fields": errs})
		return
	}

	if err := h.store.Create(c.Request.Context(), p); err != nil {
		if errors.Is(err, ErrCodeTaken) {
			c.JSON(http.StatusConflict, gin.H{"error": "code_taken", "message": "a plan with this code already exists"})
			return
		}
		logging.L(c.Request.Context()).Error("create plan failed", "code", p.Code, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "failed to create plan"})
		return
	}

	logging.L(c.Request.Context()).Info("plan created", "code", p.Code, "price_npr", p.PriceNPR)
	c.JSON(http.StatusCreated, gin.H{"plan": view(p)})
}
