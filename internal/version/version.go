// Package version reports the build of the running binary.
package version

import (
	"runtime"
	"runtime/debug"

	"github.com/botte/botte-service/config"
)

// Version is set at build time with -ldflags "-X .../internal/version.Version=...".
var Version = "dev"

// Info is served on /version.
type Info struct {
	AppName        string            `json:"appName"`
	AppVersion     string            `json:"appVersion"`
	RuntimeVersion string            `json:"runtimeVersion"`
	Dependencies   map[string]string `json:"dependencies,omitempty"`
}

// Get returns the version info of this binary. Dependency versions come from
// the embedded build info and are empty in test binaries without it.
func Get() Info {
	info := Info{
		AppName:        config.AppName,
		AppVersion:     Version,
		RuntimeVersion: runtime.Version(),
	}

	if bi, ok := debug.ReadBuildInfo(); ok {
		info.Dependencies = make(map[string]string, len(bi.Deps))
		for _, dep := range bi.Deps {
			v := dep.Version
			if dep.Replace != nil {
				v = dep.Replace.Version
			}
			info.Dependencies[dep.Path] = v
		}
	}
	return info
}
