package cli

import (
	"fmt"
	"os"
	"runtime"
	"runtime/debug"

	"github.com/spf13/cobra"
)

// Build-time variables set via ldflags
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		printVersionInfo()
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

// resolveVersionInfo prefers ldflags values and falls back to the module
// build info embedded by `go install`.
func resolveVersionInfo() (string, string, string) {
	v, c, d := version, commit, date
	if v != "dev" {
		return v, c, d
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return v, c, d
	}
	if info.Main.Version != "" && info.Main.Version != "(devel)" {
		v = info.Main.Version
	}
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			if len(s.Value) > 12 {
				c = s.Value[:12]
			} else {
				c = s.Value
			}
		case "vcs.time":
			d = s.Value
		}
	}
	return v, c, d
}

// printVersionInfo prints version information.
// Version string goes to stdout for pipeline consumption.
// Decorative content goes to stderr.
func printVersionInfo() {
	v, c, d := resolveVersionInfo()
	fmt.Printf("stockimport %s (%s, %s) %s/%s\n", v, c, d, runtime.GOOS, runtime.GOARCH)
	fmt.Fprintln(os.Stderr, "Staged bulk import of stock prices into PostgreSQL")
}
