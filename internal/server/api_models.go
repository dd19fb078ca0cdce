package server

// CreateProjectRequest represents the payload required to create a project.
type CreateProjectRequest struct {
	Slug        string `json:"slug" example:"acme-landing"`
	Name        string `json:"name" example:"Acme Landing"`
	Description string `json:"description" example:"Marketing site for Acme"`
	Framework   string `json:"framework" example:"nextjs"`
}

// AppendFileRequest adds one generated file to an open build.
type AppendFileRequest struct {
	Path    string `json:"path" example:"index.html"`
	Content string `json:"content" example:"<!doctype html>..."`
}

// CreateDeploymentRequest carries the caller's hosting-provider access token.
type CreateDeploymentRequest struct {
	Token   string `json:"token" example:"tok_live_xxx"`
	Preview bool   `json:"preview" example:"false"`
}

// DeploymentResponse reports where the deployment landed.
type DeploymentResponse struct {
	URL          string `json:"url" example:"https://acme-landing.example.app"`
	DeploymentID string `json:"deploymentId" example:"dpl_abc123"`
}

// PublishStatusResponse is the public staleness check payload.
type PublishStatusResponse struct {
	Published bool   `json:"published" example:"true"`
	IsStale   bool   `json:"isStale" example:"false"`
	URL       string `json:"url,omitempty" example:"https://acme-landing.example.app"`
}

// SlugAvailabilityResponse answers whether a slug can be claimed.
type SlugAvailabilityResponse struct {
	Available bool   `json:"available" example:"true"`
	Reason    string `json:"reason,omitempty" example:"slug is already taken"`
}

// ErrorResponse is a uniform error payload returned by the API.
type ErrorResponse struct {
	Error string `json:"error" example:"not found"`
}
