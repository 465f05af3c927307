package main

import (
	"runtime/debug"

	"github.com/GoogleCloudPlatform/microservices-demo/src/storefront/cmd"
)

// set via ldflags: -X main.version=1.0.0 -X main.commit=abc1234
var (
	version = "1.0.0"
	commit  = "none"
)

func init() {
	if commit == "none" {
		if info, ok := debug.ReadBuildInfo(); ok {
			for _, s := range info.Settings {
				if s.Key == "vcs.revision" && len(s.Value) >= 7 {
					commit = s.Value[:7]
					break
				}
			}
		}
	}
}

func main() {
	cmd.Execute(version, commit)
}
