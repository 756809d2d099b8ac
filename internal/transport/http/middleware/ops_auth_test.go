package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func newOpsRouter(token string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/ops", RequireOpsToken(token), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return router
}

func TestRequireOpsToken(t *testing.T) {
	cases := []struct {
		name   string
		token  string
		header string
		want   int
	}{
		{name: "disabled without token", token: "", header: "Bearer anything", want: http.StatusNotFound},
		{name: "missing header", token: "s3cret", want: http.StatusUnauthorized},
		{name: "wrong scheme", token: "s3cret", header: "Basic s3cret", want: http.StatusUnauthorized},
		{name: "wrong token", token: "s3cret", header: "Bearer nope", want: http.StatusUnauthorized},
		{name: "valid token", token: "s3cret", header: "Bearer s3cret", want: http.StatusOK},
		{name: "case insensitive scheme", token: "s3cret", header: "bearer s3cret", want: http.StatusOK},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/ops", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rr := httptest.NewRecorder()
			newOpsRouter(tc.token).ServeHTTP(rr, req)

			if rr.Code != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, rr.Code)
			}
			if tc.want == http.StatusUnauthorized && rr.Header().Get("WWW-Authenticate") == "" {
				t.Fatalf("expected WWW-Authenticate challenge")
			}
		})
	}
}
