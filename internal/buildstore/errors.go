package buildstore

import "errors"

var (
	ErrBuildNotFound = errors.New("build not found")
	ErrSiteNotFound  = errors.New("published site not found")
)
