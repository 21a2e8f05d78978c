package studiocms

import (
	"bytes"
	"errors"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	_ "golang.org/x/image/webp"

	"github.com/eringen/studiocms/assethost"
)

const (
	maxUploadSize  = 10 << 20 // 10MB
	uploadTooLarge = "File too large (max 10MB)"
)

func (a *App) uploadRoutes(e *echo.Echo) {
	e.POST("/", pipeline(a.handleUpload, a.requireAdmin))
}

func (a *App) isUploadPath(p string) bool {
	return strings.TrimRight(p, "/") == a.Config.APIPrefix+"/upload"
}

// handleUpload checks that the "image" part really is an image and forwards
// it to the asset host.
func (a *App) handleUpload(c echo.Context) error {
	file, err := c.FormFile("image")
	if err != nil {
		return badRequest("No image file provided")
	}
	if file.Size > maxUploadSize {
		return badRequest(uploadTooLarge)
	}
	contentType := file.Header.Get(echo.HeaderContentType)
	if !strings.HasPrefix(contentType, "image/") {
		return badRequest("Only image files are allowed")
	}

	src, err := file.Open()
	if err != nil {
		return err
	}
	defer src.Close()
	data, err := io.ReadAll(io.LimitReader(src, maxUploadSize+1))
	if err != nil {
		return err
	}
	if len(data) > maxUploadSize {
		return badRequest(uploadTooLarge)
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return badRequest("Invalid image: " + err.Error())
	}

	if a.uploader == nil {
		a.metrics.uploads.WithLabelValues("unconfigured").Inc()
		return internalError(assethost.ErrNotConfigured)
	}
	ctx := c.Request().Context()
	asset, err := a.uploader.Upload(ctx, assethost.File{
		Name:        file.Filename,
		ContentType: contentType,
		Data:        data,
	})
	if err != nil {
		result := "error"
		if errors.Is(err, assethost.ErrNotConfigured) {
			result = "unconfigured"
		}
		a.metrics.uploads.WithLabelValues(result).Inc()
		return internalError(err)
	}
	if asset.Width == 0 && asset.Height == 0 {
		asset.Width, asset.Height = cfg.Width, cfg.Height
	}
	if asset.Format == "" {
		asset.Format = format
	}

	a.metrics.uploads.WithLabelValues("ok").Inc()
	a.log.Info("image uploaded",
		zap.String("public_id", asset.PublicID),
		zap.String("format", format),
		zap.Int("bytes", len(data)),
		actor(ctx),
	)
	return c.JSON(http.StatusCreated, asset)
}
