package handlers

import (
	"github.com/Brownie44l1/flood-api/internal/analysis"
	"github.com/Brownie44l1/flood-api/internal/device"
	"github.com/Brownie44l1/flood-api/internal/model"
)

// Version is reported by the status endpoints.
const Version = "1.0.0"

type SegmentResponse struct {
	Success bool             `json:"success"`
	Data    *analysis.Result `json:"data"`
}

// ErrorResponse is returned on every non-200 path. Clients read Detail.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Detail  string `json:"detail"`
}

type RootResponse struct {
	Status  string                `json:"status"`
	Message string                `json:"message"`
	Version string                `json:"version"`
	Models  map[model.Name]string `json:"models"`
}

type HealthResponse struct {
	Status       string      `json:"status"`
	ModelsLoaded bool        `json:"models_loaded"`
	Device       string      `json:"device"`
	Host         device.Host `json:"host"`
}
