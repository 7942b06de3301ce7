package httpapi

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/nimbusdata/logflow/internal/ingest"
	"github.com/nimbusdata/logflow/internal/model"
	"github.com/nimbusdata/logflow/internal/platform/apperr"
)

const (
	defaultQueryLimit = 50
	maxQueryLimit     = 1000
)

// submitResponse is the body POST /api/log returns on success: the record
// is durably queued, not yet persisted.
type submitResponse struct {
	Status   string `json:"status"`
	IngestID int64  `json:"ingest_id"`
}

func (h *Handlers) submitLog(c *fiber.Ctx) error {
	var r model.LogRecord
	if err := c.BodyParser(&r); err != nil {
		return WithError(c, apperr.ValidationError{Field: "body", Message: "malformed JSON body"})
	}

	ingestID, err := h.service.Submit(c.UserContext(), r)
	if err != nil {
		return WithError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(submitResponse{Status: "queued", IngestID: ingestID})
}

// batchRequest is the body POST /api/logs/batch accepts.
type batchRequest struct {
	Logs []model.LogRecord `json:"logs"`
}

type batchOutcome struct {
	Index    int    `json:"index"`
	Status   string `json:"status"`
	IngestID int64  `json:"ingest_id,omitempty"`
	Error    string `json:"error,omitempty"`
}

// batchResponse reports per-record outcomes plus aggregate counts.
type batchResponse struct {
	Results []batchOutcome `json:"results"`
	Queued  int            `json:"queued"`
	Failed  int            `json:"failed"`
	Total   int            `json:"total"`
}

func (h *Handlers) submitBatch(c *fiber.Ctx) error {
	var req batchRequest
	if err := c.BodyParser(&req); err != nil {
		return WithError(c, apperr.ValidationError{Field: "body", Message: "malformed JSON body"})
	}

	outcomes, err := h.service.SubmitBatch(c.UserContext(), req.Logs)
	if err != nil {
		return WithError(c, err)
	}

	results := make([]batchOutcome, len(outcomes))

	var queued, failed int

	for i, o := range outcomes {
		if o.Err != nil {
			results[i] = batchOutcome{Index: o.Index, Status: "rejected", Error: o.Err.Error()}
			failed++
			continue
		}

		results[i] = batchOutcome{Index: o.Index, Status: "queued", IngestID: o.IngestID}
		queued++
	}

	return c.Status(fiber.StatusAccepted).JSON(batchResponse{
		Results: results,
		Queued:  queued,
		Failed:  failed,
		Total:   len(outcomes),
	})
}

type queryResponse struct {
	Records []model.LogRecord `json:"records"`
	Source  string            `json:"source"`
}

func (h *Handlers) queryLogs(c *fiber.Ctx) error {
	deviceID := c.Params("device_id")
	if deviceID == "" {
		return WithError(c, apperr.ValidationError{Field: "device_id", Message: "device_id is required"})
	}

	limit := defaultQueryLimit

	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 || parsed > maxQueryLimit {
			return WithError(c, apperr.ValidationError{Field: "limit", Message: "limit must be an integer between 0 and 1000"})
		}

		limit = parsed
	}

	if limit == 0 {
		return c.JSON(queryResponse{Records: []model.LogRecord{}, Source: "db"})
	}

	result, err := h.service.Query(c.UserContext(), deviceID, limit)
	if err != nil {
		return WithError(c, err)
	}

	return c.JSON(queryResponse{Records: result.Records, Source: result.Source})
}

func (h *Handlers) stats(c *fiber.Ctx) error {
	s, err := h.service.Stats(c.UserContext())
	if err != nil {
		return WithError(c, err)
	}

	return c.JSON(s)
}

func (h *Handlers) health(c *fiber.Ctx) error {
	report := h.service.Health(c.UserContext())

	status := fiber.StatusOK
	if !report.Healthy {
		status = fiber.StatusServiceUnavailable
	}

	return c.Status(status).JSON(report)
}

// Handlers bundles the ingest service behind the HTTP routes.
type Handlers struct {
	service *ingest.Service
}
