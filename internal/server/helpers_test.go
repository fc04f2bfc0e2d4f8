package server

import (
	"net/http"
	"net/http/httptest"

	"github.com/gin-gonic/gin"
)

func newGinContext(url, authorization string) *gin.Context {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, url, nil)
	if authorization != "" {
		c.Request.Header.Set("Authorization", authorization)
	}
	return c
}
