package partition

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestSchema_Unbound(t *testing.T) {
	_, err := Schema(context.Background())
	assert.ErrorIs(t, err, ErrUnbound)

	_, err = Table(context.Background(), "tasks")
	assert.ErrorIs(t, err, ErrUnbound)
}

func TestTable_QuotesIdentifiers(t *testing.T) {
	ctx := With(context.Background(), Partition{Schema: "acme", TenantID: 3})
	table, err := Table(ctx, "tasks")
	require.NoError(t, err)
	assert.Equal(t, `"acme"."tasks"`, table)

	assert.Equal(t, `"we""ird"."tasks"`, QualifiedTable(`we"ird`, "tasks"))
}

func TestValidSchemaName(t *testing.T) {
	tests := []struct {
		name  string
		valid bool
	}{
		{"public", true},
		{"acme", true},
		{"tenant_01", true},
		{"_scratch", true},
		{"", false},
		{"Acme", false},
		{"1acme", false},
		{"acme-corp", false},
		{"pg_catalog", false},
		{"information_schema", false},
		{"a234567890123456789012345678901234567890123456789012345678901234", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.valid, ValidSchemaName(tt.name), "schema %q", tt.name)
	}
}

func TestNormalizeHost(t *testing.T) {
	assert.Equal(t, "acme.localhost", NormalizeHost("ACME.localhost:8080"))
	assert.Equal(t, "acme.example.com", NormalizeHost(" acme.example.com. "))
	assert.Equal(t, "localhost", NormalizeHost("localhost"))
}

func TestBindingIsRequestScoped(t *testing.T) {
	base := context.Background()
	var wg sync.WaitGroup
	for _, schema := range []string{"alpha", "beta", "gamma", "delta"} {
		wg.Add(1)
		go func(schema string) {
			defer wg.Done()
			ctx := With(base, Partition{Schema: schema})
			got, err := Schema(ctx)
			assert.NoError(t, err)
			assert.Equal(t, schema, got)
		}(schema)
	}
	wg.Wait()

	_, ok := From(base)
	assert.False(t, ok, "parent context must stay unbound")
}

func newRouter(r Resolver) *gin.Engine {
	router := gin.New()
	router.Use(Middleware(r))
	router.GET("/whoami", func(c *gin.Context) {
		p, _ := From(c.Request.Context())
		c.JSON(http.StatusOK, p)
	})
	router.GET("/tenant-only", RequireTenant(), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	router.GET("/public-only", RequirePublic(), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return router
}

func staticResolver() Resolver {
	return ResolverFunc(func(_ context.Context, host string) (Partition, error) {
		switch host {
		case "localhost":
			return PublicPartition("public"), nil
		case "acme.localhost":
			return Partition{Schema: "acme", TenantID: 7}, nil
		case "dormant.localhost":
			return Partition{}, ErrInactive
		case "broken.localhost":
			return Partition{}, errors.New("db down")
		default:
			return Partition{}, ErrUnknownHost
		}
	})
}

func serve(router *gin.Engine, host, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.Host = host
	router.ServeHTTP(w, req)
	return w
}

func TestMiddleware_Resolution(t *testing.T) {
	router := newRouter(staticResolver())

	w := serve(router, "acme.localhost:8000", "/whoami")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"schema":"acme","tenant_id":7,"public":false}`, w.Body.String())

	w = serve(router, "nowhere.localhost", "/whoami")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "tenant_not_found")

	w = serve(router, "dormant.localhost", "/whoami")
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "tenant_inactive")

	w = serve(router, "broken.localhost", "/whoami")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestRequireTenantAndPublic(t *testing.T) {
	router := newRouter(staticResolver())

	assert.Equal(t, http.StatusNoContent, serve(router, "acme.localhost", "/tenant-only").Code)
	assert.Equal(t, http.StatusNotFound, serve(router, "localhost", "/tenant-only").Code)

	assert.Equal(t, http.StatusNoContent, serve(router, "localhost", "/public-only").Code)
	assert.Equal(t, http.StatusNotFound, serve(router, "acme.localhost", "/public-only").Code)
}
