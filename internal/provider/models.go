package provider

import "github.com/sitecraft/sitecraft/internal/registry"

// UploadResult describes the outcome of a single file upload.
// AlreadyUploaded is true when the provider answered with its conflict status,
// meaning it already held content with the same hash; that counts as success.
type UploadResult struct {
	SHA             string
	Size            int
	AlreadyUploaded bool
}

// FileRef is one entry of a deployment request, pointing at previously
// uploaded content by hash.
type FileRef struct {
	File string `json:"file"`
	SHA  string `json:"sha"`
	Size int    `json:"size"`
}

// DeploymentRequest asks the provider to assemble a deployment from uploaded
// files. Framework is the provider's vocabulary, nil when unspecified.
type DeploymentRequest struct {
	Name      string
	Files     []FileRef
	Framework *string
}

// Deployment is the provider's answer to a successful deployment request.
type Deployment struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// FrameworkSlug translates the internal framework enumeration into the
// provider's vocabulary. Unrecognized or absent frameworks map to nil
// (unspecified) rather than erroring.
func FrameworkSlug(f registry.Framework) *string {
	switch f {
	case registry.FrameworkNextJS:
		s := "nextjs"
		return &s
	case registry.FrameworkViteReact:
		s := "vite"
		return &s
	default:
		return nil
	}
}
