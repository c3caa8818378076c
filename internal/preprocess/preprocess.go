// Package preprocess turns an uploaded document into a rendered page ready
// for OCR: PDFs are rasterized with pdftoppm, images are normalized with
// ImageMagick according to the requested profile.
package preprocess

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/sygefi/ocr-mandats/constants"
	"github.com/sygefi/ocr-mandats/internal/common"
	"github.com/sygefi/ocr-mandats/internal/engine"
	"github.com/sygefi/ocr-mandats/internal/execx"
)

// Config holds the external tool settings.
type Config struct {
	Pdftoppm string
	Magick   string
	DPI      int
	WorkDir  string // "" uses the system temp dir
}

// Result is a prepared page plus the cleanup for its temp files.
type Result struct {
	Page    engine.Page
	Profile string
	Applied []string // magick operations that ran
	Cleanup func()
}

// Preprocessor renders and normalizes uploaded documents.
type Preprocessor struct {
	cfg    Config
	runner execx.Runner
	log    *slog.Logger
}

// New creates a Preprocessor. A nil runner uses the real binaries.
func New(cfg Config, runner execx.Runner, log *slog.Logger) *Preprocessor {
	if runner == nil {
		runner = execx.Default()
	}
	if log == nil {
		log = slog.Default()
	}
	if cfg.Pdftoppm == "" {
		cfg.Pdftoppm = "pdftoppm"
	}
	if cfg.Magick == "" {
		cfg.Magick = "magick"
	}
	if cfg.DPI <= 0 {
		cfg.DPI = 300
	}
	return &Preprocessor{cfg: cfg, runner: runner, log: log}
}

// profileArgs maps a preprocessing profile to its magick operations.
// fast skips normalization entirely.
func profileArgs(profile string) []string {
	switch profile {
	case constants.ProfileStandard:
		return []string{"-colorspace", "sRGB", "-contrast-stretch", "2%x1%"}
	case constants.ProfileAccurate:
		return []string{"-colorspace", "sRGB", "-contrast-stretch", "2%x1%", "-despeckle", "-gamma", "1.2"}
	default:
		return nil
	}
}

// Process writes data to a work dir and renders the first page. ext is the
// upload's file extension; unsupported extensions are rejected.
func (p *Preprocessor) Process(ctx context.Context, data []byte, ext, profile string) (*Result, error) {
	if !constants.IsAllowedExt(ext) {
		return nil, common.NewAppError("UNSUPPORTED_FILE", "extension not accepted: "+ext, common.ErrUnsupportedFile)
	}
	if !constants.IsKnownProfile(profile) {
		profile = constants.ProfileStandard
	}

	dir, err := os.MkdirTemp(p.cfg.WorkDir, "ocrpp-*")
	if err != nil {
		return nil, fmt.Errorf("preprocess: temp dir: %w", err)
	}
	cleanup := func() {
		if err := os.RemoveAll(dir); err != nil {
			p.log.Warn("failed to remove work dir", "dir", dir, "error", err)
		}
	}

	src := filepath.Join(dir, "source."+constants.NormalizeExt(ext))
	if err := os.WriteFile(src, data, 0o600); err != nil {
		cleanup()
		return nil, fmt.Errorf("preprocess: write upload: %w", err)
	}

	res := &Result{Profile: profile, Cleanup: cleanup}
	switch constants.MapExtToFormat(ext) {
	case constants.PDF:
		png, err := p.renderPDF(ctx, src, dir)
		if err != nil {
			cleanup()
			return nil, err
		}
		res.Page = engine.Page{PNGPath: png, PDFPath: src, DPI: p.cfg.DPI}
	default:
		png := src
		if args := profileArgs(profile); args != nil {
			png, err = p.normalizeImage(ctx, src, dir, args)
			if err != nil {
				cleanup()
				return nil, err
			}
			res.Applied = args
		}
		res.Page = engine.Page{PNGPath: png, DPI: p.cfg.DPI}
	}

	// the rendered raster goes through the same profile normalization
	if res.Page.PDFPath != "" {
		if args := profileArgs(profile); args != nil {
			png, err := p.normalizeImage(ctx, res.Page.PNGPath, dir, args)
			if err != nil {
				cleanup()
				return nil, err
			}
			res.Page.PNGPath = png
			res.Applied = args
		}
	}

	return res, nil
}

// renderPDF rasterizes the first page at the configured DPI.
func (p *Preprocessor) renderPDF(ctx context.Context, src, dir string) (string, error) {
	prefix := filepath.Join(dir, "page")
	_, errb, err := p.runner.Run(ctx, p.cfg.Pdftoppm,
		"-r", strconv.Itoa(p.cfg.DPI), "-png", "-f", "1", "-l", "1", src, prefix)
	if err != nil {
		return "", common.NewAppError("PREPROCESS_FAILED",
			"pdftoppm: "+string(errb), common.ErrPreprocessFailed)
	}
	// pdftoppm pads the page number depending on page count
	matches, _ := filepath.Glob(prefix + "-*.png")
	sort.Strings(matches)
	if len(matches) == 0 {
		return "", common.NewAppError("PREPROCESS_FAILED",
			"pdftoppm produced no image", common.ErrPreprocessFailed)
	}
	return matches[0], nil
}

func (p *Preprocessor) normalizeImage(ctx context.Context, src, dir string, args []string) (string, error) {
	out := filepath.Join(dir, "normalized.png")
	cmdArgs := append([]string{src}, args...)
	cmdArgs = append(cmdArgs, out)
	_, errb, err := p.runner.Run(ctx, p.cfg.Magick, cmdArgs...)
	if err != nil {
		return "", common.NewAppError("PREPROCESS_FAILED",
			"magick: "+string(errb), common.ErrPreprocessFailed)
	}
	return out, nil
}
