package analysis

import (
	"fmt"
	"image"
	"image/color"

	"go.uber.org/zap"

	"github.com/Brownie44l1/flood-api/internal/imageutil"
	"github.com/Brownie44l1/flood-api/internal/mask"
	"github.com/Brownie44l1/flood-api/internal/overlay"
	"github.com/Brownie44l1/flood-api/internal/summary"
)

// Styles picks the tint of each overlay.
type Styles struct {
	UNet         overlay.Style
	UNetPP       overlay.Style
	Disagreement overlay.Style
}

func DefaultStyles() Styles {
	return Styles{
		UNet:         overlay.Style{Color: color.RGBA{R: 255, G: 0, B: 0, A: 255}, Alpha: 0.4},
		UNetPP:       overlay.Style{Color: color.RGBA{R: 0, G: 100, B: 255, A: 255}, Alpha: 0.4},
		Disagreement: overlay.Style{Color: color.RGBA{R: 150, G: 0, B: 255, A: 255}, Alpha: 0.5},
	}
}

// Analyzer turns the two model masks into the response payload.
type Analyzer struct {
	summaries *summary.Generator
	styles    Styles
	logger    *zap.Logger
}

func NewAnalyzer(summaries *summary.Generator, styles Styles, logger *zap.Logger) *Analyzer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Analyzer{
		summaries: summaries,
		styles:    styles,
		logger:    logger,
	}
}

// Analyze builds the full result or fails as a whole.
func (a *Analyzer) Analyze(original image.Image, unet, unetpp *mask.Binary) (*Result, error) {
	unetMetrics, err := mask.Calculate(unet)
	if err != nil {
		return nil, fmt.Errorf("unet metrics: %w", err)
	}
	unetppMetrics, err := mask.Calculate(unetpp)
	if err != nil {
		return nil, fmt.Errorf("unet++ metrics: %w", err)
	}

	a.logger.Info("flood metrics",
		zap.Float64("unet_percent", unetMetrics.FloodPercent),
		zap.Int("unet_pixels", unetMetrics.FloodPixels),
		zap.Float64("unetpp_percent", unetppMetrics.FloodPercent),
		zap.Int("unetpp_pixels", unetppMetrics.FloodPixels))

	disagreement, err := mask.Compare(unet, unetpp)
	if err != nil {
		return nil, fmt.Errorf("disagreement: %w", err)
	}

	a.logger.Info("model agreement",
		zap.Float64("agreement_percent", disagreement.AgreementPercent),
		zap.Float64("disagreement_percent", disagreement.DisagreementPercent))

	texts := a.summaries.Generate(unetMetrics, unetppMetrics, disagreement)

	base := imageutil.Resize(original, mask.Size, mask.Size)

	unetOverlay, err := overlay.Composite(base, unet, a.styles.UNet)
	if err != nil {
		return nil, fmt.Errorf("unet overlay: %w", err)
	}
	unetppOverlay, err := overlay.Composite(base, unetpp, a.styles.UNetPP)
	if err != nil {
		return nil, fmt.Errorf("unet++ overlay: %w", err)
	}
	disagreementOverlay, err := overlay.Composite(base, disagreement.Mask, a.styles.Disagreement)
	if err != nil {
		return nil, fmt.Errorf("disagreement overlay: %w", err)
	}

	images, err := encodeImages(base, unetOverlay, unetppOverlay, disagreementOverlay)
	if err != nil {
		return nil, err
	}

	return &Result{
		UNet:   ModelResult{Metrics: unetMetrics, Summary: texts.First},
		UNetPP: ModelResult{Metrics: unetppMetrics, Summary: texts.Second},
		Comparison: Comparison{
			DisagreementPercent: disagreement.DisagreementPercent,
			AgreementPercent:    disagreement.AgreementPercent,
			DisagreementPixels:  disagreement.DisagreementPixels,
			Summary:             texts.Disagreement,
		},
		Images: images,
	}, nil
}

func encodeImages(original, unet, unetpp, disagreement image.Image) (Images, error) {
	var (
		out Images
		err error
	)
	targets := []struct {
		name string
		img  image.Image
		dst  *string
	}{
		{"original", original, &out.Original},
		{"unet_overlay", unet, &out.UNetOverlay},
		{"unetpp_overlay", unetpp, &out.UNetPPOverlay},
		{"disagreement", disagreement, &out.Disagreement},
	}
	for _, t := range targets {
		if *t.dst, err = imageutil.DataURI(t.img); err != nil {
			return Images{}, fmt.Errorf("encode %s: %w", t.name, err)
		}
	}
	return out, nil
}
