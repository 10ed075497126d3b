package infra

import (
	"fmt"
	"runtime"
)

// Set by -ldflags at build time.
var (
	Version   = "0.1.0"
	CommitSHA = "development build"
	BuiltTime = "Mon Jan 1 00:00:00 2024"
)

func GetVersionInfo() string {
	return fmt.Sprintf(
		"partiture:\n Version: %s\n Go version: %s\n Git commit: %s\n Built: %s\n OS/Arch: %s\n",
		Version,
		runtime.Version(),
		CommitSHA,
		BuiltTime,
		fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
	)
}
