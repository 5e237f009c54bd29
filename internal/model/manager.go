package model

import (
	"fmt"

	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/zap"

	"github.com/Brownie44l1/flood-api/internal/mask"
)

const encoderName = "resnet34"

// Manager owns both segmenters for the lifetime of the process. It is
// built once at startup and only read afterwards.
type Manager struct {
	unet   *Segmenter
	unetpp *Segmenter
	device string
}

// NewManager initializes the ONNX environment and loads both models. Any
// failure leaves nothing allocated.
func NewManager(cfg Config, logger *zap.Logger) (*Manager, error) {
	if cfg.InputName == "" {
		cfg.InputName = "input"
	}
	if cfg.OutputName == "" {
		cfg.OutputName = "output"
	}
	if cfg.Threshold == 0 {
		cfg.Threshold = 0.5
	}

	if cfg.LibraryPath != "" {
		ort.SetSharedLibraryPath(cfg.LibraryPath)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return nil, fmt.Errorf("failed to initialize ONNX environment: %w", err)
	}

	logger.Info("loading model", zap.String("model", UNet.Label()), zap.String("path", cfg.UNetPath))
	unet, err := newSegmenter(UNet, cfg.UNetPath, cfg)
	if err != nil {
		ort.DestroyEnvironment()
		return nil, err
	}

	logger.Info("loading model", zap.String("model", UNetPP.Label()), zap.String("path", cfg.UNetPPPath))
	unetpp, err := newSegmenter(UNetPP, cfg.UNetPPPath, cfg)
	if err != nil {
		unet.Close()
		ort.DestroyEnvironment()
		return nil, err
	}

	return &Manager{unet: unet, unetpp: unetpp, device: "cpu"}, nil
}

func (m *Manager) UNet() *Segmenter   { return m.unet }
func (m *Manager) UNetPP() *Segmenter { return m.unetpp }

// Get returns the segmenter registered under name.
func (m *Manager) Get(name Name) (*Segmenter, error) {
	switch name {
	case UNet:
		return m.unet, nil
	case UNetPP:
		return m.unetpp, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownModel, name)
}

func (m *Manager) Loaded(name Name) bool {
	if m == nil {
		return false
	}
	s, err := m.Get(name)
	return err == nil && s.Loaded()
}

func (m *Manager) Device() string {
	if m == nil {
		return ""
	}
	return m.device
}

func (m *Manager) Info() Info {
	if m == nil {
		return Info{}
	}
	return Info{
		Device:    m.device,
		Encoder:   encoderName,
		InputSize: fmt.Sprintf("%dx%d", mask.Size, mask.Size),
		Models: map[Name]ModelStatus{
			UNet:   m.unet.status(),
			UNetPP: m.unetpp.status(),
		},
	}
}

func (m *Manager) Close() {
	m.unet.Close()
	m.unetpp.Close()
	ort.DestroyEnvironment()
}
