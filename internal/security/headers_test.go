package security

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// serve runs one request through a router built from the given handlers.
func serve(method, origin string, header map[string]string, handlers ...gin.HandlerFunc) *httptest.ResponseRecorder {
	router := gin.New()
	handlers = append(handlers, func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	router.Handle(http.MethodGet, "/api/tasks/", handlers...)
	router.Handle(http.MethodOptions, "/api/tasks/", handlers...)

	req := httptest.NewRequest(method, "/api/tasks/", nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHeadersMiddleware(t *testing.T) {
	w := serve(http.MethodGet, "", nil, HeadersMiddleware())

	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Equal(t, "strict-origin-when-cross-origin", w.Header().Get("Referrer-Policy"))
	assert.NotEmpty(t, w.Header().Get("Content-Security-Policy"))
	assert.NotEmpty(t, w.Header().Get("Permissions-Policy"))
}

func TestTenantOrigins(t *testing.T) {
	allowed := TenantOrigins("tenantdesk.test")

	cases := map[string]bool{
		"https://tenantdesk.test":          true,
		"https://acme.tenantdesk.test":     true,
		"http://acme.tenantdesk.test:8000": true,
		"https://ACME.tenantdesk.test":     true,
		"https://eviltenantdesk.test":      false,
		"https://tenantdesk.test.evil.com": false,
		"not a url":                        false,
		"":                                 false,
	}
	for origin, want := range cases {
		assert.Equal(t, want, originAllowed(origin, allowed), origin)
	}
}

func TestCORSMiddleware_TenantOrigins(t *testing.T) {
	cors := CORSMiddleware(TenantOrigins("localhost"))

	w := serve(http.MethodGet, "http://demo1.localhost:8000", nil, cors)
	assert.Equal(t, "http://demo1.localhost:8000", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "Origin", w.Header().Get("Vary"))
	assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
	assert.Contains(t, w.Header().Get("Access-Control-Expose-Headers"), "X-Next-Cursor")

	w = serve(http.MethodGet, "https://evil.example", nil, cors)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, http.StatusOK, w.Code, "the request itself is still served")
}

func TestCORSMiddleware_WildcardDropsCredentials(t *testing.T) {
	w := serve(http.MethodGet, "https://anything.example", nil, CORSMiddleware([]string{"*"}))

	assert.Equal(t, "https://anything.example", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Credentials"))
}

func TestCORSPreflight(t *testing.T) {
	w := serve(http.MethodOptions, "http://acme.localhost", nil, CORSMiddleware(TenantOrigins("localhost")))

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), "POST")
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), AdminHeader)
}

func TestRequireAdmin(t *testing.T) {
	tests := []struct {
		name   string
		secret string
		header string
		want   int
		code   string
	}{
		{"correct secret", "s3cret-admin", "s3cret-admin", http.StatusOK, ""},
		{"wrong secret", "s3cret-admin", "s3cret-admiN", http.StatusForbidden, "forbidden"},
		{"missing header", "s3cret-admin", "", http.StatusUnauthorized, "unauthorized"},
		{"admin disabled", "", "anything", http.StatusForbidden, "admin_disabled"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			header := map[string]string{}
			if tc.header != "" {
				header[AdminHeader] = tc.header
			}
			w := serve(http.MethodGet, "", header, RequireAdmin(tc.secret))

			assert.Equal(t, tc.want, w.Code)
			if tc.code != "" {
				assert.Contains(t, w.Body.String(), `"error":"`+tc.code+`"`)
			}
		})
	}
}
