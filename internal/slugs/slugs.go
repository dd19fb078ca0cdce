// Package slugs validates candidate public slugs and checks global
// availability before a publish commits to one.
package slugs

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/net/idna"

	"github.com/sitecraft/sitecraft/internal/logging"
)

// ErrInvalidSlug marks a slug that fails validation; the wrapped message
// explains which rule broke.
var ErrInvalidSlug = errors.New("invalid slug")

// Lowercase, 3-48 characters, alphanumeric ends, hyphens allowed inside.
var slugPattern = regexp.MustCompile(`^[a-z0-9](?:[a-z0-9-]{1,46}[a-z0-9])?$`)

// SiteIndex is the slice of the build store the resolver needs.
type SiteIndex interface {
	SlugOwner(ctx context.Context, slug, excludeProjectID string) (string, error)
}

// Resolver answers whether a slug may be used by a given project.
type Resolver struct {
	sites  SiteIndex
	logger logging.Logger
}

// New creates a Resolver.
func New(sites SiteIndex, logger logging.Logger) (*Resolver, error) {
	if sites == nil {
		return nil, errors.New("slugs: nil site index provided")
	}
	if logger == nil {
		return nil, errors.New("slugs: nil logger provided")
	}
	return &Resolver{sites: sites, logger: logger}, nil
}

// Validate checks the shape of a candidate slug.
func Validate(slug string) error {
	if len(slug) < 3 {
		return fmt.Errorf("%w: must be at least 3 characters", ErrInvalidSlug)
	}
	if len(slug) > 48 {
		return fmt.Errorf("%w: must be at most 48 characters", ErrInvalidSlug)
	}
	if !slugPattern.MatchString(slug) {
		return fmt.Errorf("%w: lowercase letters, digits and interior hyphens only", ErrInvalidSlug)
	}
	return nil
}

// ValidateDomain checks an optional custom domain through IDNA lookup rules.
func ValidateDomain(domain string) error {
	domain = strings.TrimSpace(strings.ToLower(domain))
	if domain == "" {
		return errors.New("domain is empty")
	}
	if !strings.Contains(domain, ".") {
		return errors.New("domain must contain at least one dot")
	}
	if _, err := idna.Lookup.ToASCII(domain); err != nil {
		return fmt.Errorf("domain is not a valid hostname: %w", err)
	}
	return nil
}

// Check validates slug shape and global availability for projectID.
// A project re-claiming its own existing slug is always available.
// Returns (available, reason); reason is empty when available.
func (r *Resolver) Check(ctx context.Context, projectID, slug string) (bool, string, error) {
	if err := Validate(slug); err != nil {
		return false, err.Error(), nil
	}

	owner, err := r.sites.SlugOwner(ctx, slug, projectID)
	if err != nil {
		return false, "", fmt.Errorf("check slug owner: %w", err)
	}
	if owner != "" {
		r.logger.Debug("slug taken",
			logging.Field{Key: "slug", Value: slug},
			logging.Field{Key: "owner", Value: owner})
		return false, "slug is already taken", nil
	}
	return true, "", nil
}
