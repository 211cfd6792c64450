package plan

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func setupRouter(t *testing.T) (*gin.Engine, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore()
	_, err := SeedDefaults(context.Background(), store)
	require.NoError(t, err)

	r := gin.New()
	NewHandler(store).RegisterAdminRoutes(r.Group("/admin"))
	return r, store
}

func do(r *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	return w
}

func TestListPlans(t *testing.T) {
	r, _ := setupRouter(t)

	w := do(r, http.MethodGet, "/admin/plans?bulk_sms=true&ordering=-price_npr", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Plans []struct {
			Code        string `json:"code"`
			DisplayName string `json:"display_name"`
			PriceNPR    int    `json:"price_npr"`
		} `json:"plans"`
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Count)
	assert.Equal(t, "enterprise", resp.Plans[0].Code)
	assert.Equal(t, "Enterprise", resp.Plans[0].DisplayName)
	assert.Equal(t, "business", resp.Plans[1].Code)
}

func TestListPlans_BadQuery(t *testing.T) {
	r, _ := setupRouter(t)

	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodGet, "/admin/plans?is_active=maybe", nil).Code)
	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodGet, "/admin/plans?ordering=name", nil).Code)
}

func TestGetPlan(t *testing.T) {
	r, _ := setupRouter(t)

	w := do(r, http.MethodGet, "/admin/plans/free", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"display_name":"Free"`)

	assert.Equal(t, http.StatusNotFound, do(r, http.MethodGet, "/admin/plans/platinum", nil).Code)
}

func TestGetPlan_NotSeeded(t *testing.T) {
	r := gin.New()
	NewHandler(NewMemoryStore()).RegisterAdminRoutes(r.Group("/admin"))

	w := do(r, http.MethodGet, "/admin/plans/free", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCreatePlan(t *testing.T) {
	r := gin.New()
	store := NewMemoryStore()
	NewHandler(store).RegisterAdminRoutes(r.Group("/admin"))

	body := map[string]any{
		"code":                "standard",
		"price_npr":           700,
		"max_users":           20,
		"storage_gb_per_user": 4,
		"bulk_sms":            true,
	}
	w := do(r, http.MethodPost, "/admin/plans", body)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	stored, err := store.GetByCode(context.Background(), CodeStandard)
	require.NoError(t, err)
	assert.Equal(t, 700, stored.PriceNPR)
	assert.True(t, stored.IsActive)
	assert.Nil(t, stored.MaxLeadForms)

	w = do(r, http.MethodPost, "/admin/plans", body)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestCreatePlan_ValidationFailed(t *testing.T) {
	r, _ := setupRouter(t)

	w := do(r, http.MethodPost, "/admin/plans", map[string]any{
		"code":                "standard",
		"price_npr":           -1,
		"max_users":           0,
		"storage_gb_per_user": 0,
	})
	require.Equal(t, http.StatusBadRequest, w.Code)

	var resp struct {
		Error  string `json:"error"`
		Fields []struct {
			Field string `json:"field"`
		} `json:"fields"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "validation_failed", resp.Error)
	assert.Len(t, resp.Fields, 3)
}

func TestCreatePlan_UnknownCode(t *testing.T) {
	r, _ := setupRouter(t)

	w := do(r, http.MethodPost, "/admin/plans", map[string]any{
		"code": "platinum", "max_users": 1, "storage_gb_per_user": 1,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid_request")
}
