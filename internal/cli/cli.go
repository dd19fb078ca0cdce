package cli

import (
	"flag"
	"fmt"
	"strings"
)

// CLIArgs are the command-line arguments for one service run.
type CLIArgs struct {
	// Addr is the listen address for the HTTP API.
	Addr string

	// StorageRoot is the base directory for the registry and build store.
	StorageRoot string

	// ProviderURL is the hosting provider's API base URL.
	ProviderURL string

	// Concurrency overrides the publisher's upload concurrency; 0 means
	// "use config default".
	Concurrency int

	// RawArgs is the original args slice (useful for debugging/tests).
	RawArgs []string
}

// ParseArgs parses a slice of args and returns CLIArgs. Use in tests by passing
// arbitrary slices. The function is deterministic and does not read os.Args.
func ParseArgs(args []string) (*CLIArgs, error) {
	fs := flag.NewFlagSet("sitecraft", flag.ContinueOnError)
	var (
		addr        = fs.String("addr", ":8080", "HTTP listen address")
		storage     = fs.String("storage", "./data", "Storage root directory")
		providerURL = fs.String("provider-url", "", "Hosting provider API base URL (required)")
		concurrency = fs.Int("concurrency", 0, "Upload concurrency for deploys (0=use default)")
	)

	// Ensure Parse doesn't write to stdout/stderr in tests
	fs.SetOutput(nil)

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if strings.TrimSpace(*providerURL) == "" {
		return nil, fmt.Errorf("missing required -provider-url argument")
	}

	return &CLIArgs{
		Addr:        *addr,
		StorageRoot: *storage,
		ProviderURL: *providerURL,
		Concurrency: *concurrency,
		RawArgs:     args,
	}, nil
}
