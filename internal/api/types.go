package api

// HealthResponse is the body of /health
type HealthResponse struct {
	Status string `json:"status"`
}

// ReadinessResponse is the body of /readiness
type ReadinessResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}
