// Package version provides build-time metadata for the concord client.
// These variables are populated via -ldflags at build time.
package version

import (
	"fmt"
	"sync"

	"github.com/Masterminds/semver/v3"
	"github.com/google/uuid"
)

var (
	// Version is the semantic version of this build (e.g., "v0.3.1").
	// Set via: -ldflags "-X concord/internal/version.Version=..."
	Version = "unknown"

	// GitCommit is the git commit SHA of the source code.
	// Set via: -ldflags "-X concord/internal/version.GitCommit=..."
	GitCommit = "unknown"

	// BuildDate is the ISO 8601 UTC timestamp when the binary was built.
	// Set via: -ldflags "-X concord/internal/version.BuildDate=..."
	BuildDate = "unknown"
)

// devVersion is reported when the Version ldflag is absent or malformed,
// which is the case for plain `go build` / `go test` invocations.
const devVersion = "0.0.0-dev"

// Info holds build metadata and per-process identity.
type Info struct {
	Version    string `json:"version"`
	GitCommit  string `json:"git_commit"`
	BuildDate  string `json:"build_date"`
	InstanceID string `json:"instance_id"`
}

var (
	once sync.Once
	info Info
)

// GetInfo returns build metadata. The version string is normalized to a
// valid semantic version and the instance ID is generated once per process.
func GetInfo() Info {
	once.Do(func() {
		info = Info{
			Version:    normalize(Version),
			GitCommit:  GitCommit,
			BuildDate:  BuildDate,
			InstanceID: uuid.New().String(),
		}
	})
	return info
}

// normalize parses raw as a semantic version and returns its canonical
// form, falling back to devVersion when raw is not a valid semver.
func normalize(raw string) string {
	v, err := semver.NewVersion(raw)
	if err != nil {
		return devVersion
	}
	return v.String()
}

// String formats version info for CLI display and User-Agent construction.
func (i Info) String() string {
	return fmt.Sprintf("concord %s (commit: %s, built: %s)", i.Version, i.GitCommit, i.BuildDate)
}

// UserAgent returns the User-Agent header value sent with every REST
// request, in the form the remote service requires for bots.
func (i Info) UserAgent() string {
	return fmt.Sprintf("DiscordBot (https://concord.invalid, %s)", i.Version)
}
