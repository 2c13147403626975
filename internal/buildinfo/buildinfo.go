// Package buildinfo carries version metadata stamped at link time.
package buildinfo

import (
	"fmt"
	"runtime"
	"time"
)

// Set via -ldflags at release build time; defaults describe a local
// development build.
var (
	Version   = "dev"
	GitCommit = "unknown"
	GitBranch = "unknown"
	BuildTime = "unknown"
)

var startTime = time.Now()

// Uptime is the time elapsed since process start.
func Uptime() time.Duration {
	return time.Since(startTime).Truncate(time.Second)
}

// Info collects build and runtime metadata for the version endpoint.
func Info() map[string]string {
	return map[string]string{
		"version":    Version,
		"git_commit": GitCommit,
		"git_branch": GitBranch,
		"build_time": BuildTime,
		"go_version": runtime.Version(),
		"os":         runtime.GOOS,
		"arch":       runtime.GOARCH,
		"uptime":     Uptime().String(),
	}
}

// String is the one-line startup banner.
func String() string {
	return fmt.Sprintf("Wayfarer %s (%s@%s) built %s", Version, GitCommit, GitBranch, BuildTime)
}

// UserAgent identifies this build on outbound HTTP requests.
func UserAgent() string {
	return fmt.Sprintf("Wayfarer/%s (%s; %s)", Version, runtime.GOOS, runtime.GOARCH)
}
