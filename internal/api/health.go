package api

import (
	"context"
	"net/http"

	"github.com/fmueller/voxserve/internal/locator"
)

type ResourceReporter interface {
	Health(ctx context.Context) []locator.ResourceStatus
}

type HealthResponse struct {
	Status    string                   `json:"status"`
	Message   string                   `json:"message"`
	Version   string                   `json:"version,omitempty"`
	Resources []locator.ResourceStatus `json:"resources"`
}

type HealthHandler struct {
	resources ResourceReporter
	version   string
}

func NewHealthHandler(resources ResourceReporter, version string) *HealthHandler {
	return &HealthHandler{resources: resources, version: version}
}

// ServeHTTP always answers 200; missing resources show up in the body only.
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:    "ok",
		Message:   "voxserve is running",
		Version:   h.version,
		Resources: []locator.ResourceStatus{},
	}

	if h.resources != nil {
		resp.Resources = h.resources.Health(r.Context())
		for _, res := range resp.Resources {
			if !res.Found {
				resp.Message = "voxserve is running with missing resources"
				break
			}
		}
	}

	WriteJSON(w, http.StatusOK, resp)
}
