package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func corsRequest(t *testing.T, origins []string, method, origin string) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(CORS(origins))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, "/", nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	r.ServeHTTP(w, req)
	return w
}

func TestCORS_EmptyListAllowsAnyOrigin(t *testing.T) {
	w := corsRequest(t, nil, http.MethodGet, "http://anywhere.test")
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORS_AllowListEchoesKnownOrigin(t *testing.T) {
	origins := []string{"https://till.example.com"}

	w := corsRequest(t, origins, http.MethodGet, "https://till.example.com")
	assert.Equal(t, "https://till.example.com", w.Header().Get("Access-Control-Allow-Origin"))

	w = corsRequest(t, origins, http.MethodGet, "https://evil.example.com")
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORS_PreflightShortCircuits(t *testing.T) {
	w := corsRequest(t, nil, http.MethodOptions, "http://anywhere.test")
	assert.Equal(t, http.StatusNoContent, w.Code)
}
