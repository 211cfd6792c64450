package task

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mbd888/tenantdesk/internal/logging"
	"github.com/mbd888/tenantdesk/internal/pagination"
	"github.com/mbd888/tenantdesk/internal/partition"
	"github.com/mbd888/tenantdesk/internal/validation"
)

// Handler provides the task HTTP endpoints of a tenant partition.
type Handler struct {
	svc *Service
}

// NewHandler creates a new task handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes sets up task routes. The group must only be reachable from
// tenant partitions.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/", h.ListTasks)
	r.POST("/", h.CreateTask)
	r.GET("/:id/", h.GetTask)
	r.POST("/:id/complete", h.CompleteTask)
	r.POST("/:id/incomplete", h.ReopenTask)
}

// ListTasks handles GET /api/tasks/?limit=&cursor=
func (h *Handler) ListTasks(c *gin.Context) {
	limit, err := pagination.ParseLimit(c.Query("limit"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "limit must be a non-negative integer"})
		return
	}
	after, err := pagination.Decode(c.Query("cursor"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "invalid cursor"})
		return
	}
	if after != nil && limit == 0 {
		limit = pagination.DefaultLimit
	}

	tasks, next, err := h.svc.List(c.Request.Context(), ListOptions{Limit: limit, After: after})
	if err != nil {
		h.respondError(c, "list tasks", err)
		return
	}
	if next != "" {
		c.Header("X-Next-Cursor", next)
	}

	out := make([]View, len(tasks))
	for i, t := range tasks {
		out[i] = t.ToView()
	}
	c.JSON(http.StatusOK, out)
}

// GetTask handles GET /api/tasks/:id/
func (h *Handler) GetTask(c *gin.Context) {
	id, ok := taskID(c)
	if !ok {
		return
	}
	t, err := h.svc.Get(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, "get task", err)
		return
	}
	c.JSON(http.StatusOK, t.ToView())
}

type createRequest struct {
	UserID      int64      `json:"user_id" binding:"required,gt=0"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Completed   bool       `json:"completed"`
	PublishedAt *time.Time `json:"published_at"`
}

// CreateTask handles POST /api/tasks/
func (h *Handler) CreateTask(c *gin.Context) {
	var req createRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "user_id is required; published_at must be RFC 3339"})
		return
	}

	t, err := h.svc.Create(c.Request.Context(), NewTask{
		UserID:      req.UserID,
		Title:       validation.SanitizeString(req.Title, MaxTitleLength+1),
		Description: validation.SanitizeString(req.Description, MaxDescriptionLength+1),
		Completed:   req.Completed,
		PublishedAt: req.PublishedAt,
	})
	if err != nil {
		h.respondError(c, "create task", err)
		return
	}
	c.JSON(http.StatusCreated, t.ToView())
}

// CompleteTask handles POST /api/tasks/:id/complete
func (h *Handler) CompleteTask(c *gin.Context) {
	id, ok := taskID(c)
	if !ok {
		return
	}
	t, err := h.svc.Complete(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, "complete task", err)
		return
	}
	c.JSON(http.StatusOK, t.ToView())
}

// ReopenTask handles POST /api/tasks/:id/incomplete
func (h *Handler) ReopenTask(c *gin.Context) {
	id, ok := taskID(c)
	if !ok {
		return
	}
	t, err := h.svc.Reopen(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, "reopen task", err)
		return
	}
	c.JSON(http.StatusOK, t.ToView())
}

// taskID parses the :id parameter. Anything but a positive integer is
// answered as a missing task.
func taskID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": "task not found"})
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
	case errors.Is(err, ErrTaskNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": "task not found"})
	case errors.Is(err, ErrOwnerNotFound):
		c.JSON(http.StatusBadRequest, gin.H{"error": "owner_not_found", "message": "user_id does not name an account"})
	case errors.Is(err, ErrDescriptionTaken):
		c.JSON(http.StatusConflict, gin.H{"error": "description_taken", "message": "a task with this description already exists"})
	case errors.Is(err, partition.ErrPublicTarget), errors.Is(err, partition.ErrUnbound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": "tasks are only available on tenant domains"})
	default:
		logging.L(c.Request.Context()).Error(op+" failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "failed to " + op})
	}
}
