package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sstimap/sstimap-go/pkg/registry"
	"github.com/sstimap/sstimap-go/pkg/ssmlog"
)

var pluginsCmd = &cobra.Command{
	Use:   "plugins",
	Args:  cobra.NoArgs,
	Short: "List the engine plugins this build knows about",
	RunE:  runPlugins,
}

func runPlugins(cmd *cobra.Command, _ []string) error {
	log := ssmlog.New(os.Stderr, "sstimap")
	reg := registry.NewRegistry(log)
	installBuiltins(reg, log)
	if err := installCatalog(cmd, reg); err != nil {
		return err
	}

	for _, lang := range reg.Languages() {
		fmt.Printf("%s:\n", lang)
		for _, p := range reg.Plugins(lang) {
			fmt.Printf("  %-15s priority=%-3d header_type=%s\n", p.EngineName(), p.Priority, p.HeaderType)
			if p.Info.Description != "" {
				fmt.Printf("    %s\n", p.Info.Description)
			}
		}
	}
	for _, p := range reg.Failed() {
		fmt.Printf("rejected: %s/%s\n", p.Language, p.EngineName())
	}
	return nil
}
