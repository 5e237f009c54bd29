package analysis

import "github.com/Brownie44l1/flood-api/internal/mask"

// ModelResult is one model's coverage plus its summary sentence.
type ModelResult struct {
	mask.Metrics
	Summary string `json:"summary"`
}

type Comparison struct {
	DisagreementPercent float64 `json:"disagreement_percent"`
	AgreementPercent    float64 `json:"agreement_percent"`
	DisagreementPixels  int     `json:"disagreement_pixels"`
	Summary             string  `json:"summary"`
}

// Images are PNG data URIs, all Size x Size.
type Images struct {
	Original      string `json:"original"`
	UNetOverlay   string `json:"unet_overlay"`
	UNetPPOverlay string `json:"unetpp_overlay"`
	Disagreement  string `json:"disagreement"`
}

// Result is the payload returned for one segmentation request.
type Result struct {
	UNet       ModelResult `json:"unet"`
	UNetPP     ModelResult `json:"unetpp"`
	Comparison Comparison  `json:"comparison"`
	Images     Images      `json:"images"`
}
