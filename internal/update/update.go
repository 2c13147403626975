// Package update performs a best-effort startup check for a newer
// release. Log-only: it never blocks or changes behavior.
package update

import (
	"context"
	"log/slog"
	"strings"
	"time"

	gogithub "github.com/google/go-github/v69/github"

	"github.com/wayfarerlabs/wayfarer/internal/buildinfo"
)

const (
	repoOwner = "wayfarerlabs"
	repoName  = "wayfarer"
)

// Checker asks GitHub for the latest release.
type Checker struct {
	client *gogithub.Client
	logger *slog.Logger
}

// NewChecker builds a checker against the public GitHub API.
func NewChecker(logger *slog.Logger) *Checker {
	return &Checker{
		client: gogithub.NewClient(nil),
		logger: logger.With("component", "update"),
	}
}

// Check compares the latest published release against the running
// version and logs the result. All failures are logged at debug level;
// a missing network or repo must not be noisy.
func (c *Checker) Check(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	release, resp, err := c.client.Repositories.GetLatestRelease(ctx, repoOwner, repoName)
	if err != nil {
		c.logger.Debug("release check failed", "error", err)
		return
	}
	if resp != nil && resp.Rate.Remaining < 100 {
		c.logger.Debug("github rate limit low", "remaining", resp.Rate.Remaining)
	}

	latest := strings.TrimPrefix(release.GetTagName(), "v")
	current := strings.TrimPrefix(buildinfo.Version, "v")
	if latest == "" || current == "dev" {
		return
	}

	if latest != current {
		c.logger.Info("a newer release is available",
			"current", current, "latest", latest, "url", release.GetHTMLURL())
	} else {
		c.logger.Debug("running the latest release", "version", current)
	}
}
