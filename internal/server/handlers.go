package server

import (
	"io"
	"path/filepath"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/sygefi/ocr-mandats/constants"
	"github.com/sygefi/ocr-mandats/internal/pipeline"
	"github.com/sygefi/ocr-mandats/internal/repository"
)

func (s *Server) handleHealth(c *fiber.Ctx) error {
	names := []string{}
	if s.engines != nil {
		names = s.engines.Names()
	}
	status := "healthy"
	if len(names) == 0 {
		status = "degraded"
	}
	return c.JSON(fiber.Map{
		"status":  status,
		"service": "ocr-mandats",
		"engines": names,
	})
}

func (s *Server) handleEngines(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"engines": s.engines.Infos()})
}

// handleExtract accepts a multipart upload and runs the full pipeline.
// Form fields: file, engine, profile, enable_fallback, extract_metadata,
// validate.
func (s *Server) handleExtract(c *fiber.Ctx) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "multipart field 'file' is required")
	}
	if fh.Size > s.cfg.MaxFileSize {
		return fiber.NewError(fiber.StatusRequestEntityTooLarge, "file exceeds size limit")
	}
	ext := constants.NormalizeExt(filepath.Ext(fh.Filename))
	if !constants.IsAllowedExt(ext) {
		return fiber.NewError(fiber.StatusUnsupportedMediaType, "unsupported file type: "+ext)
	}

	f, err := fh.Open()
	if err != nil {
		return err
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return err
	}

	opts := pipeline.DefaultOptions()
	opts.Filename = fh.Filename
	if v := c.FormValue("engine"); v != "" {
		opts.PreferredEngine = v
	}
	if v := c.FormValue("profile"); v != "" {
		opts.Profile = v
	}
	opts.EnableFallback = formBool(c, "enable_fallback", opts.EnableFallback)
	opts.ExtractMetadata = formBool(c, "extract_metadata", opts.ExtractMetadata)
	opts.Validate = formBool(c, "validate", opts.Validate)

	res, err := s.proc.Process(c.Context(), data, ext, opts)
	if err != nil {
		return err
	}
	return c.JSON(res)
}

func (s *Server) handleListResults(c *fiber.Ctx) error {
	if s.store == nil {
		return fiber.NewError(fiber.StatusNotImplemented, "result storage not configured")
	}
	limit := c.QueryInt("limit", 50)
	offset := c.QueryInt("offset", 0)
	recs, err := s.store.List(c.Context(), limit, offset)
	if err != nil {
		return err
	}
	if recs == nil {
		recs = []*repository.ResultRecord{}
	}
	return c.JSON(fiber.Map{"results": recs, "count": len(recs)})
}

func (s *Server) handleGetResult(c *fiber.Ctx) error {
	if s.store == nil {
		return fiber.NewError(fiber.StatusNotImplemented, "result storage not configured")
	}
	rec, err := s.store.GetByID(c.Context(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(rec)
}

func (s *Server) handleDeleteResult(c *fiber.Ctx) error {
	if s.store == nil {
		return fiber.NewError(fiber.StatusNotImplemented, "result storage not configured")
	}
	if err := s.store.Delete(c.Context(), c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) handleExportResults(c *fiber.Ctx) error {
	if s.exporter == nil {
		return fiber.NewError(fiber.StatusNotImplemented, "export not configured")
	}
	limit := c.QueryInt("limit", 500)
	out, err := s.exporter.ExportResultsXLSX(c.Context(), limit)
	if err != nil {
		return err
	}
	c.Set(fiber.HeaderContentType, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Set(fiber.HeaderContentDisposition, `attachment; filename="extractions.xlsx"`)
	return c.Send(out)
}

func (s *Server) handleValidationRules(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"rules": s.validator.Rules()})
}

type validateMandatRequest struct {
	Number   string `json:"number"`
	Exercice string `json:"exercice"`
}

func (s *Server) handleValidateMandat(c *fiber.Ctx) error {
	var req validateMandatRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid JSON body")
	}
	if req.Number == "" {
		return fiber.NewError(fiber.StatusBadRequest, "number is required")
	}
	return c.JSON(s.validator.ValidateMandat(req.Number, req.Exercice))
}

type validateBordereauRequest struct {
	Number string `json:"number"`
}

func (s *Server) handleValidateBordereau(c *fiber.Ctx) error {
	var req validateBordereauRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid JSON body")
	}
	if req.Number == "" {
		return fiber.NewError(fiber.StatusBadRequest, "number is required")
	}
	return c.JSON(s.validator.ValidateBordereau(req.Number))
}

func formBool(c *fiber.Ctx, field string, def bool) bool {
	v := c.FormValue(field)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
