// Command sstimap is the driver binary: it wires a target URL and run
// options onto an httpchannel.Channel, installs the known engine plugins,
// and runs the detection/capability-escalation state machine against each
// one in turn.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	cfgFile string
	verbose bool
	version = "dev"
)

var rootCmd = &cobra.Command{
	Use:     "sstimap",
	Short:   "Server-side template injection detection and exploitation core",
	Long:    `sstimap probes an HTTP target for server-side template injection, confirms it via reflected-render or timing-blind techniques, and can escalate a confirmed engine to code evaluation, command execution, file I/O, or a shell.`,
	Version: version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to a YAML plugin catalog to load in addition to the built-in engines")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose logging")

	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(pluginsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
