package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbd888/tenantdesk/internal/config"
	"github.com/mbd888/tenantdesk/internal/provision"
	"github.com/mbd888/tenantdesk/internal/security"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const testAdminSecret = "test-admin-secret"

func testConfig() *config.Config {
	return &config.Config{
		Port:             "0",
		Env:              "development",
		LogLevel:         "error",
		LogFormat:        "text",
		BaseDomain:       "localhost",
		PublicSchemaName: "public",
		SeedPlans:        true,
		AdminSecret:      testAdminSecret,
		RateLimitRPM:     600,
	}
}

// newTestServer creates a server over in-memory storage
func newTestServer(t *testing.T) *Server {
	t.Helper()
	s, err := New(testConfig(), WithDrainDelay(0))
	require.NoError(t, err)
	t.Cleanup(func() { s.rateLimiter.Stop() })
	return s
}

// provisionDemo creates the demo1 workspace and returns its owner's ID.
func provisionDemo(t *testing.T, s *Server) int64 {
	t.Helper()
	res, err := s.Provisioner().Provision(context.Background(), provision.TenantSpec{
		SchemaName: "demo1",
		Name:       "Demo One",
		Slug:       "demo1",
		Subdomain:  "demo1",
		Owner:      provision.OwnerSpec{Email: "owner@demo1.localhost", Password: "demo1-pass"},
	}, provision.Options{})
	require.NoError(t, err)
	return res.Owner.ID
}

func do(s *Server, method, target string, body any, headers map[string]string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, target, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

// ---------------------------------------------------------------------------
// Health endpoint tests
// ---------------------------------------------------------------------------

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(t)

	w := do(s, http.MethodGet, "http://10.0.0.7/health", nil, nil)
	require.Equal(t, http.StatusOK, w.Code, "probes answer on any host")

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, Version, resp.Version)
	require.Len(t, resp.Checks, 1)
	assert.Equal(t, "plans", resp.Checks[0].Name)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestHealthEndpoint_DegradedWithoutPlans(t *testing.T) {
	cfg := testConfig()
	cfg.SeedPlans = false
	s, err := New(cfg, WithDrainDelay(0))
	require.NoError(t, err)
	defer s.rateLimiter.Stop()

	w := do(s, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "free plan not seeded")
}

func TestLivenessEndpoint(t *testing.T) {
	s := newTestServer(t)

	w := do(s, http.MethodGet, "/health/live", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "alive")
}

func TestReadinessEndpoint(t *testing.T) {
	s := newTestServer(t)

	w := do(s, http.MethodGet, "/health/ready", nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code, "not ready before Run")

	s.ready.Store(true)
	w = do(s, http.MethodGet, "/health/ready", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRequestIDPropagated(t *testing.T) {
	s := newTestServer(t)

	w := do(s, http.MethodGet, "/health/live", nil, map[string]string{"X-Request-ID": "req-123"})
	assert.Equal(t, "req-123", w.Header().Get("X-Request-ID"))
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t)

	w := do(s, http.MethodGet, "/metrics", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "tenantdesk_")
}

// ---------------------------------------------------------------------------
// Partition routing
// ---------------------------------------------------------------------------

func TestLandingPage_Public(t *testing.T) {
	s := newTestServer(t)

	w := do(s, http.MethodGet, "http://localhost/", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.HasPrefix(w.Header().Get("Content-Type"), "text/html"))
	assert.Contains(t, w.Body.String(), "Free")
	assert.Contains(t, w.Body.String(), "Enterprise")
}

func TestLandingPage_Tenant(t *testing.T) {
	s := newTestServer(t)
	provisionDemo(t, s)

	w := do(s, http.MethodGet, "http://demo1.localhost/", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "demo1", resp["slug"])
	assert.Equal(t, "free", resp["plan"])
}

func TestUnknownHost(t *testing.T) {
	s := newTestServer(t)

	w := do(s, http.MethodGet, "http://nobody.localhost/api/tasks/", nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "tenant_not_found")
}

func TestInactiveTenant(t *testing.T) {
	s := newTestServer(t)
	inactive := false
	_, err := s.Provisioner().Provision(context.Background(), provision.TenantSpec{
		SchemaName: "demo2",
		Name:       "Demo Two",
		Slug:       "demo2",
		Subdomain:  "demo2",
		IsActive:   &inactive,
		Owner:      provision.OwnerSpec{Email: "owner@demo2.localhost"},
	}, provision.Options{})
	require.NoError(t, err)

	w := do(s, http.MethodGet, "http://demo2.localhost/api/tasks/", nil, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestTaskRoutes_TenantOnly(t *testing.T) {
	s := newTestServer(t)

	w := do(s, http.MethodGet, "http://localhost/api/tasks/", nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code, "the base domain has no task list")
}

func TestTaskFlow(t *testing.T) {
	s := newTestServer(t)
	ownerID := provisionDemo(t, s)

	w := do(s, http.MethodPost, "http://demo1.localhost/api/tasks/", map[string]any{
		"user_id":     ownerID,
		"title":       "Call back lead",
		"description": "Follow up on the spring intake enquiry",
	}, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var created map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Equal(t, "Call back lead", created["title"])
	assert.Equal(t, false, created["completed"])

	w = do(s, http.MethodGet, "http://demo1.localhost/api/tasks/", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Len(t, list, 1)

	// Same description in the same workspace is rejected.
	w = do(s, http.MethodPost, "http://demo1.localhost/api/tasks/", map[string]any{
		"user_id":     ownerID,
		"title":       "Duplicate",
		"description": "Follow up on the spring intake enquiry",
	}, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

// ---------------------------------------------------------------------------
// Admin routes
// ---------------------------------------------------------------------------

func TestAdminRoutes_RequireSecret(t *testing.T) {
	s := newTestServer(t)

	w := do(s, http.MethodGet, "http://localhost/admin/plans", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(s, http.MethodGet, "http://localhost/admin/plans", nil, map[string]string{security.AdminHeader: "wrong"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = do(s, http.MethodGet, "http://localhost/admin/plans", nil, map[string]string{security.AdminHeader: testAdminSecret})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAdminRoutes_PublicOnly(t *testing.T) {
	s := newTestServer(t)
	provisionDemo(t, s)

	w := do(s, http.MethodGet, "http://demo1.localhost/admin/plans", nil, map[string]string{security.AdminHeader: testAdminSecret})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAdminProvisionTenant(t *testing.T) {
	s := newTestServer(t)
	admin := map[string]string{security.AdminHeader: testAdminSecret}

	w := do(s, http.MethodPost, "http://localhost/admin/tenants?seed_tasks=true", provision.TenantSpec{
		SchemaName: "acme",
		Name:       "Acme",
		Slug:       "acme",
		Subdomain:  "acme",
		Owner:      provision.OwnerSpec{Email: "owner@acme.localhost"},
	}, admin)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = do(s, http.MethodGet, "http://acme.localhost/api/tasks/", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Len(t, list, 3)

	w = do(s, http.MethodGet, "http://localhost/admin/tenants", nil, admin)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "acme")
}

func TestAdminTenantUsers(t *testing.T) {
	s := newTestServer(t)
	admin := map[string]string{security.AdminHeader: testAdminSecret}
	res, err := s.Provisioner().Provision(context.Background(), provision.TenantSpec{
		SchemaName: "acme",
		Name:       "Acme",
		Slug:       "acme",
		Subdomain:  "acme",
		Owner:      provision.OwnerSpec{Email: "owner@acme.localhost"},
	}, provision.Options{})
	require.NoError(t, err)
	base := fmt.Sprintf("http://localhost/admin/tenants/%d/users", res.Tenant.ID)

	w := do(s, http.MethodGet, base, nil, admin)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), "owner@acme.localhost")

	w = do(s, http.MethodPut, fmt.Sprintf("%s/%d/role", base, res.Owner.ID), map[string]string{"role": "manager"}, admin)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"role_display":"Manager"`)

	w = do(s, http.MethodGet, base, nil, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCORS_TenantOrigin(t *testing.T) {
	s := newTestServer(t)

	w := do(s, http.MethodGet, "/health/live", nil, map[string]string{"Origin": "http://demo1.localhost"})
	assert.Equal(t, "http://demo1.localhost", w.Header().Get("Access-Control-Allow-Origin"))

	w = do(s, http.MethodGet, "/health/live", nil, map[string]string{"Origin": "http://evil.example"})
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestNotFoundRoute(t *testing.T) {
	s := newTestServer(t)

	w := do(s, http.MethodGet, "/nonexistent", nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestMaskDSN(t *testing.T) {
	assert.Equal(t, "postgres://app:***@db:5432/tenantdesk", maskDSN("postgres://app:secret@db:5432/tenantdesk"))
	assert.Equal(t, "***", maskDSN("::not a url"))
}
