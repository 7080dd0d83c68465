package internal

import (
	"fmt"

	"github.com/Masterminds/semver/v3"
)

var (
	Branch     = "main"
	Version    = "0.2.0"
	Prerelease = ""
	Metadata   = "dev"
	Commit     = ""
	Date       = ""
)

// FullVersion returns the full semver version string. The patch version is
// incremented on dev builds because the release tooling keeps Version at the
// last released version, not the upcoming one, and semver comparisons behave
// better against the next version.
func FullVersion() string {
	v, err := semver.NewVersion(Version)
	if err != nil {
		panic(fmt.Sprintf("invalid version %v: %v", Version, err))
	}

	if Metadata == "dev" {
		*v = v.IncPatch()
	}

	*v, _ = v.SetPrerelease(Prerelease)
	*v, _ = v.SetMetadata(Metadata)

	return v.String()
}
