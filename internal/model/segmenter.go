package model

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/Brownie44l1/flood-api/internal/mask"
	"github.com/Brownie44l1/flood-api/internal/preprocess"
)

// Segmenter runs one exported segmentation graph. The session binds
// preallocated tensors, so calls are serialized.
type Segmenter struct {
	name         Name
	path         string
	sizeBytes    int64
	threshold    float64
	mu           sync.Mutex
	closed       atomic.Bool
	session      *ort.AdvancedSession
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
}

func newSegmenter(name Name, path string, cfg Config) (*Segmenter, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%s weights not found at %s: %w", name.Label(), path, err)
	}

	inputShape := ort.NewShape(1, 3, mask.Size, mask.Size)
	outputShape := ort.NewShape(1, 1, mask.Size, mask.Size)

	inputTensor, err := ort.NewEmptyTensor[float32](inputShape)
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}

	outputTensor, err := ort.NewEmptyTensor[float32](outputShape)
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(path,
		[]string{cfg.InputName}, []string{cfg.OutputName},
		[]ort.ArbitraryTensor{inputTensor}, []ort.ArbitraryTensor{outputTensor},
		nil)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("failed to load %s weights: %w", name.Label(), err)
	}

	return &Segmenter{
		name:         name,
		path:         path,
		sizeBytes:    fi.Size(),
		threshold:    cfg.Threshold,
		session:      session,
		inputTensor:  inputTensor,
		outputTensor: outputTensor,
	}, nil
}

func (s *Segmenter) Name() Name {
	return s.name
}

// Predict runs a forward pass over a normalized [1,3,Size,Size] tensor and
// thresholds the logits into a mask.
func (s *Segmenter) Predict(ctx context.Context, input []float32) (*mask.Binary, error) {
	if len(input) != preprocess.TensorLen {
		return nil, fmt.Errorf("expected %d input values, got %d", preprocess.TensorLen, len(input))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.session == nil {
		return nil, fmt.Errorf("%s session is closed", s.name.Label())
	}

	copy(s.inputTensor.GetData(), input)
	if err := s.session.Run(); err != nil {
		return nil, fmt.Errorf("%s inference failed: %w", s.name.Label(), err)
	}

	return mask.FromLogits(s.outputTensor.GetData(), mask.Size, mask.Size, s.threshold)
}

func (s *Segmenter) Loaded() bool {
	return s != nil && !s.closed.Load()
}

func (s *Segmenter) status() ModelStatus {
	if s == nil {
		return ModelStatus{}
	}
	return ModelStatus{Loaded: s.Loaded(), Path: s.path, SizeBytes: s.sizeBytes}
}

func (s *Segmenter) Close() {
	if s == nil {
		return
	}
	s.closed.Store(true)
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.inputTensor != nil {
		s.inputTensor.Destroy()
		s.inputTensor = nil
	}
	if s.outputTensor != nil {
		s.outputTensor.Destroy()
		s.outputTensor = nil
	}
	if s.session != nil {
		s.session.Destroy()
		s.session = nil
	}
}
