package daemon

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

func TestGinLoggerLevels(t *testing.T) {
	gin.SetMode(gin.TestMode)
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	router := gin.New()
	router.Use(ginLogger(logger))
	respond := func(code int, withErr bool) gin.HandlerFunc {
		return func(c *gin.Context) {
			if withErr {
				_ = c.AbortWithError(code, errors.New("boom"))
				return
			}
			c.Status(code)
		}
	}
	router.GET("/ok", respond(http.StatusOK, false))
	router.GET("/conflict", respond(http.StatusConflict, true))
	router.GET("/bad", respond(http.StatusBadRequest, true))
	router.GET("/fail", respond(http.StatusInternalServerError, true))

	tests := []struct {
		path  string
		level logrus.Level
	}{
		{"/ok", logrus.DebugLevel},
		{"/conflict", logrus.InfoLevel},
		{"/bad", logrus.WarnLevel},
		{"/fail", logrus.ErrorLevel},
	}
	for _, tt := range tests {
		hook.Reset()
		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, tt.path, nil))

		entry := hook.LastEntry()
		if entry == nil {
			t.Fatalf("%s: nothing logged", tt.path)
		}
		if entry.Level != tt.level {
			t.Fatalf("%s: expected level %s, got %s (%s)", tt.path, tt.level, entry.Level, entry.Message)
		}
		if entry.Data["path"] != tt.path {
			t.Fatalf("%s: unexpected path field %v", tt.path, entry.Data["path"])
		}
	}
}
