package daemon

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// ginLogger logs every request through logrus. Event streams are logged
// once, when the subscriber disconnects.
func ginLogger(logger logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		// other handler can change c.Path so:
		path := c.Request.URL.Path
		start := time.Now()
		c.Next()
		elapsed := time.Since(start)
		statusCode := c.Writer.Status()
		dataLength := c.Writer.Size()
		if dataLength < 0 {
			dataLength = 0
		}

		entry := logger.WithFields(logrus.Fields{
			"statusCode": statusCode,
			"method":     c.Request.Method,
			"path":       path,
			"dataLength": dataLength,
		})

		if c.FullPath() == "/events" {
			entry.WithFields(logrus.Fields{
				"duration":    elapsed.Round(time.Millisecond),
				"subscribers": sseHub.Subscribers(),
			}).Debug("event stream closed")
			return
		}

		latency := elapsed.Milliseconds()
		msg := fmt.Sprintf("%s %s %d (%dms)", c.Request.Method, path, statusCode, latency)
		if len(c.Errors) > 0 {
			msg += ": " + c.Errors.ByType(gin.ErrorTypePrivate).String()
		}
		entry = entry.WithField("latency", latency)

		switch {
		case statusCode >= http.StatusInternalServerError:
			entry.Error(msg)
		case statusCode == http.StatusConflict:
			// A calibration request while another one runs.
			entry.Info(msg)
		case statusCode >= http.StatusBadRequest:
			entry.Warn(msg)
		default:
			entry.Debug(msg)
		}
	}
}
