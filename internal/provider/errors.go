package provider

import "errors"

var (
	// ErrInvalidCredential means the provider rejected the access token.
	// Surfaced verbatim to the caller, never retried.
	ErrInvalidCredential = errors.New("hosting provider rejected the access token")

	// ErrUploadFailed covers any non-success, non-conflict upload response.
	ErrUploadFailed = errors.New("file upload failed")

	// ErrDeploymentFailed covers any non-success deployment-creation response
	// that is not a credential failure.
	ErrDeploymentFailed = errors.New("deployment creation failed")
)
