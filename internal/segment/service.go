// Package segment runs one upload through both models and the analysis
// pipeline.
package segment

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/Brownie44l1/flood-api/internal/analysis"
	"github.com/Brownie44l1/flood-api/internal/imageutil"
	"github.com/Brownie44l1/flood-api/internal/mask"
	"github.com/Brownie44l1/flood-api/internal/model"
	"github.com/Brownie44l1/flood-api/internal/preprocess"
)

var (
	// ErrBusy means no inference slot freed up within the queue timeout.
	ErrBusy = errors.New("inference queue is full, please retry later")
	// ErrTimeout means inference did not finish within the request timeout.
	ErrTimeout = errors.New("inference timed out")
)

// Predictor maps a normalized [1,3,Size,Size] tensor to a binary mask.
type Predictor interface {
	Predict(ctx context.Context, input []float32) (*mask.Binary, error)
}

type Options struct {
	MaxConcurrent int64
	QueueTimeout  time.Duration
	Timeout       time.Duration
}

// Service is safe for concurrent use; it holds only read-only handles.
type Service struct {
	predictors map[model.Name]Predictor
	analyzer   *analysis.Analyzer
	sem        *semaphore.Weighted
	opts       Options
	logger     *zap.Logger
}

func NewService(unet, unetpp Predictor, analyzer *analysis.Analyzer, opts Options, logger *zap.Logger) *Service {
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 2
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		predictors: map[model.Name]Predictor{
			model.UNet:   unet,
			model.UNetPP: unetpp,
		},
		analyzer: analyzer,
		sem:      semaphore.NewWeighted(opts.MaxConcurrent),
		opts:     opts,
		logger:   logger,
	}
}

// Analyze runs both models and aggregates their masks.
func (s *Service) Analyze(ctx context.Context, img image.Image) (*analysis.Result, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	base, input, err := prepare(img)
	if err != nil {
		return nil, err
	}

	masks, err := s.infer(ctx, input, model.UNet, model.UNetPP)
	if err != nil {
		return nil, err
	}

	return s.analyzer.Analyze(base, masks[0], masks[1])
}

// prepare resizes the upload once; the same Size x Size image feeds the
// models and serves as the display base, so overlays line up with the input.
func prepare(img image.Image) (*image.RGBA, []float32, error) {
	if img == nil || img.Bounds().Empty() {
		return nil, nil, fmt.Errorf("preprocess: empty image")
	}
	base := imageutil.Resize(img, mask.Size, mask.Size)
	input, err := preprocess.Tensor(base)
	if err != nil {
		return nil, nil, fmt.Errorf("preprocess: %w", err)
	}
	return base, input, nil
}

// SingleResult is the response of a one-model segmentation.
type SingleResult struct {
	MaskBase64 string       `json:"mask_base64"`
	Metrics    mask.Metrics `json:"metrics"`
}

// Predict runs a single model and returns its mask as a PNG data URI.
func (s *Service) Predict(ctx context.Context, img image.Image, name model.Name) (*SingleResult, error) {
	if _, ok := s.predictors[name]; !ok {
		return nil, fmt.Errorf("%w: %q", model.ErrUnknownModel, name)
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	_, input, err := prepare(img)
	if err != nil {
		return nil, err
	}

	masks, err := s.infer(ctx, input, name)
	if err != nil {
		return nil, err
	}

	metrics, err := mask.Calculate(masks[0])
	if err != nil {
		return nil, err
	}
	uri, err := imageutil.DataURI(masks[0].Image())
	if err != nil {
		return nil, err
	}
	return &SingleResult{MaskBase64: uri, Metrics: metrics}, nil
}

func (s *Service) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.opts.Timeout > 0 {
		return context.WithTimeout(ctx, s.opts.Timeout)
	}
	return context.WithCancel(ctx)
}

// infer takes one slot and runs the named models concurrently. The forward
// passes themselves cannot be interrupted, so on timeout the slot is released
// only once they return.
func (s *Service) infer(ctx context.Context, input []float32, names ...model.Name) ([]*mask.Binary, error) {
	if err := s.acquire(ctx); err != nil {
		return nil, err
	}

	masks := make([]*mask.Binary, len(names))
	g, gctx := errgroup.WithContext(ctx)
	for i, name := range names {
		i, name := i, name
		p := s.predictors[name]
		g.Go(func() (err error) {
			defer func() {
				if rec := recover(); rec != nil {
					err = fmt.Errorf("%s: panic: %v", name.Label(), rec)
				}
			}()
			start := time.Now()
			m, err := p.Predict(gctx, input)
			if err != nil {
				return fmt.Errorf("%s: %w", name.Label(), err)
			}
			s.logger.Debug("inference complete",
				zap.String("model", string(name)),
				zap.Duration("duration", time.Since(start)))
			masks[i] = m
			return nil
		})
	}

	done := make(chan error, 1)
	go func() {
		defer s.sem.Release(1)
		done <- g.Wait()
	}()

	select {
	case err := <-done:
		if err != nil {
			return nil, err
		}
		return masks, nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w after %s", ErrTimeout, s.opts.Timeout)
		}
		return nil, ctx.Err()
	}
}

func (s *Service) acquire(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	qctx := ctx
	if s.opts.QueueTimeout > 0 {
		var cancel context.CancelFunc
		qctx, cancel = context.WithTimeout(ctx, s.opts.QueueTimeout)
		defer cancel()
	}

	if err := s.sem.Acquire(qctx, 1); err != nil {
		if ctx.Err() != nil {
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return fmt.Errorf("%w after %s", ErrTimeout, s.opts.Timeout)
			}
			return ctx.Err()
		}
		return ErrBusy
	}
	return nil
}
