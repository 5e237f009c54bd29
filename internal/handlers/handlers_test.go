package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Brownie44l1/flood-api/internal/analysis"
	"github.com/Brownie44l1/flood-api/internal/mask"
	"github.com/Brownie44l1/flood-api/internal/model"
	"github.com/Brownie44l1/flood-api/internal/segment"
	"github.com/Brownie44l1/flood-api/internal/summary"
	"github.com/Brownie44l1/flood-api/internal/upload"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeModels struct {
	loaded bool
}

func (f fakeModels) Loaded(model.Name) bool { return f.loaded }
func (f fakeModels) Device() string         { return "cpu" }
func (f fakeModels) Info() model.Info {
	return model.Info{Device: "cpu", Encoder: "resnet34", InputSize: "256x256"}
}

type fakePredictor struct {
	fill bool
	err  error
}

func (f fakePredictor) Predict(context.Context, []float32) (*mask.Binary, error) {
	if f.err != nil {
		return nil, f.err
	}
	m := mask.New(mask.Size, mask.Size)
	m.Fill(f.fill)
	return m, nil
}

func newRouter(unet, unetpp segment.Predictor, models Models) *gin.Engine {
	a := analysis.NewAnalyzer(summary.NewGenerator("UNet", "UNet++", summary.DefaultPolicy()), analysis.DefaultStyles(), nil)
	svc := segment.NewService(unet, unetpp, a, segment.Options{MaxConcurrent: 2}, nil)
	h := NewHandler(svc, models, upload.NewValidator(0, 0, nil), nil)

	r := gin.New()
	h.Register(r)
	return r
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 64, 48))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = 20, 120, 200, 255
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func jpegBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 32, 32))
	for y := 0; y < 32; y++ {
		for x := 0; x < 32; x++ {
			img.Set(x, y, color.RGBA{R: 90, G: 90, B: 90, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	return buf.Bytes()
}

func uploadRequest(t *testing.T, target, field, filename string, content []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = io.Copy(part, bytes.NewReader(content))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, target, &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func serve(r *gin.Engine, req *http.Request) (*httptest.ResponseRecorder, map[string]any) {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	var body map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	return w, body
}

func assertErrorBody(t *testing.T, body map[string]any) {
	t.Helper()
	assert.NotContains(t, body, "data")
	assert.NotContains(t, body, "images")
	assert.Equal(t, false, body["success"])
	assert.NotEmpty(t, body["detail"])
}

func TestRoot(t *testing.T) {
	r := newRouter(fakePredictor{}, fakePredictor{}, fakeModels{loaded: true})
	w, body := serve(r, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, Version, body["version"])
	assert.Equal(t, map[string]any{"unet": "loaded", "unetpp": "loaded"}, body["models"])
}

func TestRootModelsNotLoaded(t *testing.T) {
	r := newRouter(fakePredictor{}, fakePredictor{}, nil)
	_, body := serve(r, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, map[string]any{"unet": "not loaded", "unetpp": "not loaded"}, body["models"])
}

func TestHealth(t *testing.T) {
	r := newRouter(fakePredictor{}, fakePredictor{}, fakeModels{loaded: true})
	w, body := serve(r, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, true, body["models_loaded"])
	assert.Equal(t, "cpu", body["device"])
	assert.Contains(t, body, "host")
}

func TestHealthNotLoaded(t *testing.T) {
	r := newRouter(fakePredictor{}, fakePredictor{}, fakeModels{loaded: false})
	w, body := serve(r, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "Models not loaded", body["detail"])
}

func TestModelInfo(t *testing.T) {
	r := newRouter(fakePredictor{}, fakePredictor{}, fakeModels{loaded: true})
	w, body := serve(r, httptest.NewRequest(http.MethodGet, "/api/models", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "resnet34", body["encoder"])
	assert.Equal(t, "256x256", body["input_size"])
}

func TestSegment(t *testing.T) {
	r := newRouter(fakePredictor{fill: true}, fakePredictor{}, fakeModels{loaded: true})
	w, body := serve(r, uploadRequest(t, "/api/segment", "file", "flood.JPG", jpegBytes(t)))

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, true, body["success"])

	data := body["data"].(map[string]any)
	assert.Equal(t, 100.0, data["unet"].(map[string]any)["flood_percent"])
	assert.Equal(t, 0.0, data["unetpp"].(map[string]any)["flood_percent"])

	comparison := data["comparison"].(map[string]any)
	assert.Equal(t, 100.0, comparison["disagreement_percent"])
	assert.Equal(t, 0.0, comparison["agreement_percent"])

	images := data["images"].(map[string]any)
	for _, key := range []string{"original", "unet_overlay", "unetpp_overlay", "disagreement"} {
		assert.Contains(t, images[key], "data:image/png;base64,")
	}
}

func TestSegmentRejectsUploads(t *testing.T) {
	tests := []struct {
		name     string
		field    string
		filename string
		content  []byte
	}{
		{"bmp extension", "file", "flood.bmp", []byte("BM")},
		{"no extension", "file", "flood", []byte("x")},
		{"wrong field", "image", "flood.png", []byte("x")},
		{"undecodable", "file", "flood.png", []byte("not really a png")},
		{"too large", "file", "flood.png", make([]byte, 11<<20)},
	}

	r := newRouter(fakePredictor{}, fakePredictor{}, fakeModels{loaded: true})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, body := serve(r, uploadRequest(t, "/api/segment", tt.field, tt.filename, tt.content))
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assertErrorBody(t, body)
		})
	}
}

func TestSegmentEmptyFilename(t *testing.T) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreatePart(map[string][]string{
		"Content-Disposition": {`form-data; name="file"; filename=""`},
		"Content-Type":        {"image/png"},
	})
	require.NoError(t, err)
	_, err = part.Write(pngBytes(t))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/segment", &body)
	req.Header.Set("Content-Type", w.FormDataContentType())

	r := newRouter(fakePredictor{}, fakePredictor{}, fakeModels{loaded: true})
	rec, resp := serve(r, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assertErrorBody(t, resp)
}

func TestSegmentInferenceFailure(t *testing.T) {
	r := newRouter(fakePredictor{}, fakePredictor{err: errors.New("onnx exploded")}, fakeModels{loaded: true})
	w, body := serve(r, uploadRequest(t, "/api/segment", "file", "flood.png", pngBytes(t)))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assertErrorBody(t, body)
	assert.Contains(t, body["detail"], "Internal server error: ")
	assert.Contains(t, body["detail"], "onnx exploded")
}

func TestSegmentSingle(t *testing.T) {
	r := newRouter(fakePredictor{}, fakePredictor{fill: true}, fakeModels{loaded: true})
	w, body := serve(r, uploadRequest(t, "/segment?model=unetplus", "file", "flood.png", pngBytes(t)))

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, body["mask_base64"], "data:image/png;base64,")
	metrics := body["metrics"].(map[string]any)
	assert.Equal(t, 100.0, metrics["flood_percent"])
	assert.EqualValues(t, mask.TotalPixels, metrics["total_pixels"])
}

func TestSegmentSingleUnknownModel(t *testing.T) {
	r := newRouter(fakePredictor{}, fakePredictor{}, fakeModels{loaded: true})
	w, body := serve(r, uploadRequest(t, "/segment?model=segformer", "file", "flood.png", pngBytes(t)))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assertErrorBody(t, body)
}

type panickingPipeline struct{}

func (panickingPipeline) Analyze(context.Context, image.Image) (*analysis.Result, error) {
	panic("tensor buffer nil")
}

func (panickingPipeline) Predict(context.Context, image.Image, model.Name) (*segment.SingleResult, error) {
	panic("tensor buffer nil")
}

func TestRecoveryKeepsErrorEnvelope(t *testing.T) {
	h := NewHandler(panickingPipeline{}, fakeModels{loaded: true}, upload.NewValidator(0, 0, nil), nil)
	r := gin.New()
	r.Use(h.Recovery())
	h.Register(r)

	for _, target := range []string{"/api/segment", "/segment?model=unet"} {
		w, body := serve(r, uploadRequest(t, target, "file", "flood.png", pngBytes(t)))

		assert.Equal(t, http.StatusInternalServerError, w.Code, target)
		assertErrorBody(t, body)
		assert.Equal(t, "Internal server error: tensor buffer nil", body["detail"])
	}
}
