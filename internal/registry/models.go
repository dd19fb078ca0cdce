package registry

// Framework identifies the target framework a project's builds are generated
// for. Unrecognized values are tolerated and treated as FrameworkNone by
// consumers.
type Framework string

const (
	FrameworkNone      Framework = ""
	FrameworkNextJS    Framework = "nextjs"
	FrameworkViteReact Framework = "vite_react"
)

// Project is a row in the projects table. OwnerID is the platform user that
// created the project; every non-public operation checks it.
type Project struct {
	ID          string    `json:"id"`
	Slug        string    `json:"slug"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	OwnerID     string    `json:"owner_id"`
	Framework   Framework `json:"framework,omitempty"`
	CreatedAt   int64     `json:"created_at"`
}
