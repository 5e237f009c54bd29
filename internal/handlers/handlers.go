package handlers

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Brownie44l1/flood-api/internal/analysis"
	"github.com/Brownie44l1/flood-api/internal/device"
	"github.com/Brownie44l1/flood-api/internal/middleware"
	"github.com/Brownie44l1/flood-api/internal/model"
	"github.com/Brownie44l1/flood-api/internal/segment"
	"github.com/Brownie44l1/flood-api/internal/upload"
)

// Pipeline is the segmentation work behind the upload endpoints.
type Pipeline interface {
	Analyze(ctx context.Context, img image.Image) (*analysis.Result, error)
	Predict(ctx context.Context, img image.Image, name model.Name) (*segment.SingleResult, error)
}

// Models reports the state of the loaded weights.
type Models interface {
	Loaded(name model.Name) bool
	Device() string
	Info() model.Info
}

// multipartOverhead is the slack allowed on top of the file limit for
// boundaries and part headers.
const multipartOverhead = 1 << 20

type Handler struct {
	pipeline  Pipeline
	models    Models
	validator *upload.Validator
	logger    *zap.Logger
}

func NewHandler(pipeline Pipeline, models Models, validator *upload.Validator, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		pipeline:  pipeline,
		models:    models,
		validator: validator,
		logger:    logger,
	}
}

// Register mounts every endpoint on r.
func (h *Handler) Register(r gin.IRouter) {
	r.GET("/", h.Root)
	r.GET("/health", h.Health)
	r.GET("/api/models", h.ModelInfo)
	r.POST("/api/segment", h.Segment)
	r.POST("/segment", h.SegmentSingle)
}

// Recovery turns a panic in any handler into the usual error envelope.
func (h *Handler) Recovery() gin.HandlerFunc {
	return gin.CustomRecoveryWithWriter(io.Discard, func(c *gin.Context, rec any) {
		h.requestLogger(c).Error("panic recovered",
			zap.Any("panic", rec),
			zap.String("path", c.Request.URL.Path),
			zap.Stack("stack"))
		c.AbortWithStatusJSON(http.StatusInternalServerError,
			ErrorResponse{Detail: fmt.Sprintf("Internal server error: %v", rec)})
	})
}

func (h *Handler) loaded(name model.Name) bool {
	return h.models != nil && h.models.Loaded(name)
}

func (h *Handler) Root(c *gin.Context) {
	status := func(name model.Name) string {
		if h.loaded(name) {
			return "loaded"
		}
		return "not loaded"
	}
	c.JSON(http.StatusOK, RootResponse{
		Status:  "healthy",
		Message: "Flood Segmentation API is running",
		Version: Version,
		Models: map[model.Name]string{
			model.UNet:   status(model.UNet),
			model.UNetPP: status(model.UNetPP),
		},
	})
}

func (h *Handler) Health(c *gin.Context) {
	if !h.loaded(model.UNet) || !h.loaded(model.UNetPP) {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Detail: "Models not loaded"})
		return
	}
	c.JSON(http.StatusOK, HealthResponse{
		Status:       "healthy",
		ModelsLoaded: true,
		Device:       h.models.Device(),
		Host:         device.Describe(c.Request.Context()),
	})
}

func (h *Handler) ModelInfo(c *gin.Context) {
	if h.models == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Detail: "Models not loaded"})
		return
	}
	c.JSON(http.StatusOK, h.models.Info())
}

// Segment runs both models over the uploaded image.
func (h *Handler) Segment(c *gin.Context) {
	log := h.requestLogger(c)

	img, ok := h.readImage(c, log)
	if !ok {
		return
	}

	result, err := h.pipeline.Analyze(c.Request.Context(), img)
	if err != nil {
		h.fail(c, log, err)
		return
	}

	log.Info("segmentation complete",
		zap.Float64("unet_percent", result.UNet.FloodPercent),
		zap.Float64("unetpp_percent", result.UNetPP.FloodPercent),
		zap.Float64("agreement_percent", result.Comparison.AgreementPercent))

	c.JSON(http.StatusOK, SegmentResponse{Success: true, Data: result})
}

// SegmentSingle runs the model named by the "model" query parameter and
// returns its raw mask.
func (h *Handler) SegmentSingle(c *gin.Context) {
	log := h.requestLogger(c)

	name, err := model.ParseName(c.DefaultQuery("model", string(model.UNet)))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Detail: err.Error()})
		return
	}

	img, ok := h.readImage(c, log)
	if !ok {
		return
	}

	result, err := h.pipeline.Predict(c.Request.Context(), img, name)
	if err != nil {
		h.fail(c, log, err)
		return
	}

	log.Info("single model segmentation complete",
		zap.String("model", string(name)),
		zap.Float64("flood_percent", result.Metrics.FloodPercent))

	c.JSON(http.StatusOK, result)
}

// readImage validates and decodes the "file" form field. On failure the
// response has already been written.
func (h *Handler) readImage(c *gin.Context, log *zap.Logger) (image.Image, bool) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.validator.MaxSize()+multipartOverhead)

	header, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.reject(c, log, h.validator.ValidateSize(tooLarge.Limit+1))
			return nil, false
		}
		h.reject(c, log, &upload.Error{Kind: upload.KindMissingFile, Msg: "No file provided. Use 'file' as the form field name", Err: err})
		return nil, false
	}

	log.Info("received file", zap.String("filename", header.Filename), zap.Int64("size", header.Size))

	if err := h.validator.ValidateFilename(header.Filename); err != nil {
		h.reject(c, log, err)
		return nil, false
	}
	if err := h.validator.ValidateSize(header.Size); err != nil {
		h.reject(c, log, err)
		return nil, false
	}

	file, err := header.Open()
	if err != nil {
		h.reject(c, log, &upload.Error{Kind: upload.KindUndecodable, Msg: "Could not read image file", Err: err})
		return nil, false
	}
	defer file.Close()

	img, format, err := h.validator.Decode(file)
	if err != nil {
		h.reject(c, log, err)
		return nil, false
	}

	log.Info("image decoded",
		zap.String("format", format),
		zap.Int("width", img.Bounds().Dx()),
		zap.Int("height", img.Bounds().Dy()))
	return img, true
}

func (h *Handler) reject(c *gin.Context, log *zap.Logger, err error) {
	log.Warn("upload rejected", zap.String("kind", upload.KindOf(err).String()), zap.Error(err))
	c.JSON(http.StatusBadRequest, ErrorResponse{Detail: err.Error()})
}

func (h *Handler) fail(c *gin.Context, log *zap.Logger, err error) {
	_ = c.Error(err)

	switch {
	case errors.Is(err, segment.ErrBusy):
		log.Warn("inference queue full", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Detail: err.Error()})
	case errors.Is(err, segment.ErrTimeout):
		log.Error("inference timed out", zap.Error(err))
		c.JSON(http.StatusGatewayTimeout, ErrorResponse{Detail: err.Error()})
	case errors.Is(err, model.ErrUnknownModel):
		c.JSON(http.StatusBadRequest, ErrorResponse{Detail: err.Error()})
	default:
		log.Error("segmentation failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{Detail: "Internal server error: " + err.Error()})
	}
}

func (h *Handler) requestLogger(c *gin.Context) *zap.Logger {
	return h.logger.With(zap.String("request_id", middleware.RequestID(c)))
}
