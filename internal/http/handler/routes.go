package handler

import (
	"context"
	"database/sql"
	"encoding/json"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"cdnapi/internal/model"
	"cdnapi/internal/relay"
	"cdnapi/internal/service"
)

// ownerHeader carries the authenticated owner identity, resolved by the edge
// in front of this service.
const ownerHeader = "X-Owner-ID"

// downloadAuthHeader carries the credential forwarded to the source host when
// downloading URL uploads.
const downloadAuthHeader = "X-Download-Authorization"

func ownerFromCtx(c *fiber.Ctx) string {
	return c.Get(ownerHeader)
}

// HealthCheck reports readiness by pinging the database.
func HealthCheck(db *sql.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			return writeError(c, fiber.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "dependency unavailable")
		}
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "healthy"})
	}
}

// LivenessProbe is a bare liveness endpoint.
func LivenessProbe() fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	}
}

// UploadFile ingests a multipart/form-data upload (field name: file).
func UploadFile(svc service.IngestService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		owner := ownerFromCtx(c)
		if owner == "" {
			return writeError(c, fiber.StatusBadRequest, "OWNER_REQUIRED", "owner id header is required")
		}

		fh, err := c.FormFile("file")
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "FILE_REQUIRED", "file is required")
		}
		f, err := fh.Open()
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "FILE_OPEN_ERROR", "cannot open uploaded file")
		}
		defer f.Close()

		ct := fh.Header.Get("Content-Type")
		if ct == "" {
			ct = "application/octet-stream"
		}

		up, err := svc.UploadDirect(c.UserContext(), owner, f, fh.Filename, ct, fh.Size, model.ProvenanceWeb)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(service.ResultFrom(up, svc.FileURL(up)))
	}
}

// UploadFromURL ingests a single remote file given as {"url": "..."}.
func UploadFromURL(svc service.IngestService) fiber.Handler {
	type request struct {
		URL string `json:"url"`
	}
	return func(c *fiber.Ctx) error {
		owner := ownerFromCtx(c)
		if owner == "" {
			return writeError(c, fiber.StatusBadRequest, "OWNER_REQUIRED", "owner id header is required")
		}

		var req request
		if err := c.BodyParser(&req); err != nil || req.URL == "" {
			return writeError(c, fiber.StatusBadRequest, "URL_REQUIRED", "url is required")
		}

		up, err := svc.UploadFromURL(c.UserContext(), owner, req.URL, c.Get(downloadAuthHeader), model.ProvenanceAPI)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(service.ResultFrom(up, svc.FileURL(up)))
	}
}

// BulkUpload ingests a JSON array of URLs and renders the response in the
// wire shape of the given API version.
func BulkUpload(svc service.IngestService, version int, cdnBase string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		owner := ownerFromCtx(c)
		if owner == "" {
			return writeError(c, fiber.StatusBadRequest, "OWNER_REQUIRED", "owner id header is required")
		}

		var urls []string
		if err := json.Unmarshal(c.Body(), &urls); err != nil || len(urls) == 0 {
			return writeError(c, fiber.StatusBadRequest, "URLS_REQUIRED", "request body must be a non-empty JSON array of urls")
		}

		ups, err := svc.UploadFromURLs(c.UserContext(), owner, urls, c.Get(downloadAuthHeader), model.ProvenanceAPI)
		if err != nil {
			return writeServiceError(c, err)
		}

		results := make([]service.Result, 0, len(ups))
		for _, up := range ups {
			results = append(results, service.ResultFrom(up, svc.FileURL(up)))
		}
		return c.JSON(service.FormatResults(results, version, cdnBase))
	}
}

// ListUploads returns the owner's uploads with limit & offset pagination.
func ListUploads(svc service.IngestService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		owner := ownerFromCtx(c)
		if owner == "" {
			return writeError(c, fiber.StatusBadRequest, "OWNER_REQUIRED", "owner id header is required")
		}

		limit, err := strconv.Atoi(c.Query("limit", "50"))
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_LIMIT", "invalid limit")
		}
		offset, err := strconv.Atoi(c.Query("offset", "0"))
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_OFFSET", "invalid offset")
		}

		res, err := svc.List(c.UserContext(), owner, limit, offset)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(res)
	}
}

// GetUpload returns one of the owner's uploads by ID.
func GetUpload(svc service.IngestService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		owner := ownerFromCtx(c)
		if owner == "" {
			return writeError(c, fiber.StatusBadRequest, "OWNER_REQUIRED", "owner id header is required")
		}
		id := c.Params("id")
		if _, err := uuid.Parse(id); err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}

		up, err := svc.Get(c.UserContext(), owner, id)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(service.ResultFrom(up, svc.FileURL(up)))
	}
}

// DeleteUpload removes an upload and its stored object.
func DeleteUpload(svc service.IngestService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		owner := ownerFromCtx(c)
		if owner == "" {
			return writeError(c, fiber.StatusBadRequest, "OWNER_REQUIRED", "owner id header is required")
		}
		id := c.Params("id")
		if _, err := uuid.Parse(id); err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}

		if err := svc.Delete(c.UserContext(), owner, id); err != nil {
			return writeServiceError(c, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}

// GetUsage returns the owner's storage usage snapshot.
func GetUsage(svc service.IngestService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		owner := ownerFromCtx(c)
		if owner == "" {
			return writeError(c, fiber.StatusBadRequest, "OWNER_REQUIRED", "owner id header is required")
		}

		usage, err := svc.Usage(c.UserContext(), owner)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(usage)
	}
}

// RelayEvent ingests a file event delivered by the chat relay. Duplicate and
// stale events are acknowledged with an empty result set.
func RelayEvent(proc *relay.Processor) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var ev relay.FileEvent
		if err := c.BodyParser(&ev); err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_EVENT", "invalid event body")
		}
		ev.BotToken = c.Get(downloadAuthHeader)

		results, err := proc.Handle(c.UserContext(), ev)
		if err != nil {
			return writeServiceError(c, err)
		}
		if results == nil {
			results = []relay.FileResult{}
		}
		return c.JSON(fiber.Map{"results": results})
	}
}

// RegisterRoutes attaches HTTP routes to the provided Fiber app.
func RegisterRoutes(app *fiber.App, db *sql.DB, svc service.IngestService, proc *relay.Processor, cdnBase string) {
	// Serve OpenAPI spec and Swagger UI
	app.Get("/openapi.yaml", func(c *fiber.Ctx) error {
		c.Type("yaml")
		return c.SendFile("openapi.yaml")
	})
	app.Get("/docs", func(c *fiber.Ctx) error {
		html := `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8" />
  <meta name="viewport" content="width=device-width, initial-scale=1" />
  <title>API Docs</title>
  <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
</head>
<body>
  <div id="swagger-ui"></div>
  <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
  <script>
    window.ui = SwaggerUIBundle({
      url: '/openapi.yaml',
      dom_id: '#swagger-ui',
      presets: [SwaggerUIBundle.presets.apis],
      layout: 'BaseLayout'
    });
  </script>
</body>
</html>`
		return c.Type("html").SendString(html)
	})

	app.Get("/health", HealthCheck(db))
	app.Get("/healthz", LivenessProbe())

	app.Post("/upload", UploadFile(svc))
	app.Post("/file", UploadFromURL(svc))

	app.Post("/api/v1/new", BulkUpload(svc, 1, cdnBase))
	app.Post("/api/v2/new", BulkUpload(svc, 2, cdnBase))
	app.Post("/api/v3/new", BulkUpload(svc, 3, cdnBase))
	app.Post("/api/new", BulkUpload(svc, 3, cdnBase))

	app.Get("/uploads", ListUploads(svc))
	app.Get("/uploads/:id", GetUpload(svc))
	app.Delete("/uploads/:id", DeleteUpload(svc))
	app.Get("/usage", GetUsage(svc))

	app.Post("/events/files", RelayEvent(proc))
}
