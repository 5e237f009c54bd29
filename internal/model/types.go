package model

import (
	"errors"
	"fmt"
	"strings"
)

var ErrUnknownModel = errors.New("unknown model")

// Name identifies one of the two loaded segmentation models.
type Name string

const (
	UNet   Name = "unet"
	UNetPP Name = "unetpp"
)

// Label is the human readable model name used in summaries.
func (n Name) Label() string {
	switch n {
	case UNet:
		return "UNet"
	case UNetPP:
		return "UNet++"
	}
	return string(n)
}

// ParseName accepts the canonical names and the aliases the web client sends.
func ParseName(s string) (Name, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "unet", "baseline":
		return UNet, nil
	case "unetpp", "unet++", "unetplus", "unetplusplus":
		return UNetPP, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownModel, s)
}

// Config describes where the weights live and how the exported graphs are wired.
type Config struct {
	UNetPath    string
	UNetPPPath  string
	LibraryPath string
	InputName   string
	OutputName  string
	Threshold   float64
}

// Info is reported by the model listing endpoint.
type Info struct {
	Device    string               `json:"device"`
	Encoder   string               `json:"encoder"`
	InputSize string               `json:"input_size"`
	Models    map[Name]ModelStatus `json:"models"`
}

type ModelStatus struct {
	Loaded    bool   `json:"loaded"`
	Path      string `json:"path"`
	SizeBytes int64  `json:"size_bytes,omitempty"`
}
