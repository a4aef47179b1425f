package version

import (
	"fmt"
	"regexp"
	"runtime/debug"
)

// Pre-built binaries will have version set correctly during build time.
var Version = "v0.1.0-HEAD"

var numbersRegex = regexp.MustCompile(`[0-9]+\.[0-9]+\.[0-9]+`)

func OnlyNumbers() string {
	return numbersRegex.FindString(Version)
}

// Engine returns the version of the d2 module compiled into the binary.
func Engine() string {
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return "unknown"
	}
	for _, dep := range bi.Deps {
		if dep.Path == "oss.terrastruct.com/d2" {
			return dep.Version
		}
	}
	return "unknown"
}

func String() string {
	return fmt.Sprintf("%s (d2 %s)", Version, Engine())
}
