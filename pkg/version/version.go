// Package version derives the binary's version identity from build metadata.
package version

import "runtime/debug"

// AppName identifies this service in version strings and User-Agent headers.
const AppName = "inquest"

// commit can be injected at build time:
//
//	go build -ldflags "-X github.com/probelab/inquest/pkg/version.commit=<sha>"
//
// Container builds rely on this since their build context carries no .git.
var commit string

// GitCommit is the abbreviated hash the binary was built from. It falls back
// to "dev" when neither ldflags nor VCS stamping provided one, as under
// `go test` or a non-git checkout.
var GitCommit = resolve()

// Full renders the canonical identity string, e.g. "inquest/a3f8c2d1".
func Full() string {
	return AppName + "/" + GitCommit
}

func resolve() string {
	if commit != "" {
		return shorten(commit)
	}
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, s := range info.Settings {
			if s.Key == "vcs.revision" && s.Value != "" {
				return shorten(s.Value)
			}
		}
	}
	return "dev"
}

func shorten(rev string) string {
	if len(rev) > 8 {
		return rev[:8]
	}
	return rev
}
