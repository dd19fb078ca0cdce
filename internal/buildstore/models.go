package buildstore

// BuildStatus is the lifecycle state of a BuildOutput. Failed or interrupted
// generation attempts stay in StatusGenerating until promoted or superseded.
type BuildStatus string

const (
	StatusGenerating BuildStatus = "generating"
	StatusComplete   BuildStatus = "complete"
)

// BuildOutput is one build attempt for a project. Rows are append-only;
// superseded builds are retained for history, never deleted.
type BuildOutput struct {
	ID           string      `json:"id"`
	ProjectID    string      `json:"project_id"`
	Status       BuildStatus `json:"status"`
	PreviewToken string      `json:"preview_token,omitempty"`
	CreatedAt    int64       `json:"created_at"`

	// Files is populated by Files/GetBuild; empty until generation writes
	// at least one file.
	Files []File `json:"files,omitempty"`
}

// File is a single generated file within a build.
type File struct {
	Path    string `json:"path"`
	Content string `json:"content"`
	Size    int    `json:"size"`
}

// SiteStatus is the lifecycle state of a PublishedSite row.
type SiteStatus string

const (
	SiteLive    SiteStatus = "live"
	SiteDeleted SiteStatus = "deleted"
)

// PublishedSite is the public-facing record of a project's live deployment.
// Rows are append-only: re-publishing inserts a new row, deleting inserts a
// tombstone row, and "current" is always the most recent row per project.
type PublishedSite struct {
	ID            string     `json:"id"`
	ProjectID     string     `json:"project_id"`
	Slug          string     `json:"slug"`
	URL           string     `json:"url"`
	BuildOutputID string     `json:"build_output_id"`
	Status        SiteStatus `json:"status"`
	CreatedAt     int64      `json:"created_at"`
}
