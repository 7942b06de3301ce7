package httpapi

import (
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/nimbusdata/logflow/internal/platform/mlog"
)

const headerCorrelationID = "X-Request-Id"

// requestInfo carries the fields needed for a Common-Log-Format access
// line.
type requestInfo struct {
	method        string
	uri           string
	remoteAddress string
	correlationID string
	status        int
	duration      time.Duration
}

func (r requestInfo) clfString() string {
	return strings.Join([]string{
		r.remoteAddress,
		"-",
		`"` + r.method,
		r.uri + `"`,
		strconv.Itoa(r.status),
		r.duration.String(),
		r.correlationID,
	}, " ")
}

// WithHTTPLogging logs one Common-Log-Format access line per request,
// skipping /health to keep liveness probes quiet,
// and stamps every other request with a correlation id propagated through
// context via internal/platform/mlog.
func WithHTTPLogging(logger mlog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if c.Path() == "/health" {
			return c.Next()
		}

		correlationID := c.Get(headerCorrelationID)
		if correlationID == "" {
			correlationID = uuid.NewString()
		}

		c.Set(headerCorrelationID, correlationID)

		requestLogger := logger.WithFields("correlation_id", correlationID)
		c.SetUserContext(mlog.ContextWithLogger(c.UserContext(), requestLogger))

		start := time.Now()
		err := c.Next()

		info := requestInfo{
			method:        c.Method(),
			uri:           c.OriginalURL(),
			remoteAddress: c.IP(),
			correlationID: correlationID,
			status:        c.Response().StatusCode(),
			duration:      time.Since(start),
		}

		requestLogger.Info(info.clfString())

		return err
	}
}
