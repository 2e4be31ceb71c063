package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/sstimap/sstimap-go/pkg/capability"
	"github.com/sstimap/sstimap-go/pkg/channel"
	"github.com/sstimap/sstimap-go/pkg/detect"
	"github.com/sstimap/sstimap-go/pkg/fileio"
	"github.com/sstimap/sstimap-go/pkg/httpchannel"
	"github.com/sstimap/sstimap-go/pkg/metrics"
	"github.com/sstimap/sstimap-go/pkg/plugins/catalog"
	"github.com/sstimap/sstimap-go/pkg/plugins/javascript"
	"github.com/sstimap/sstimap-go/pkg/registry"
	"github.com/sstimap/sstimap-go/pkg/ssmlog"
	"github.com/sstimap/sstimap-go/pkg/telemetry"
	"github.com/sstimap/sstimap-go/pkg/timing"

	promclient "github.com/prometheus/client_golang/prometheus"
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Args:  cobra.NoArgs,
	Short: "Probe a target URL for server-side template injection",
	RunE:  runScan,
}

func init() {
	scanCmd.Flags().String("url", "", "target URL to probe (required)")
	scanCmd.Flags().String("param", "q", "query parameter carrying the injection string")
	scanCmd.Flags().String("technique", "RT", "techniques to run: any of R (render), T (time-based blind)")
	scanCmd.Flags().Int("level", 1, "aggressiveness level, 1..5")
	scanCmd.Flags().Int("force-context-level", 0, "pin enumeration to a single context level (0 = unset)")
	scanCmd.Flags().Int("force-closure-level", 0, "pin enumeration to a single closure level (0 = unset)")
	scanCmd.Flags().Bool("force-overwrite", false, "allow write() to clobber an existing remote file")
	scanCmd.Flags().Int("time-based-blind-delay", 0, "seconds added to the rolling average for a blind decision (0 = default)")
	scanCmd.Flags().Int("time-based-verify-blind-delay", 0, "seconds added to the rolling average while re-verifying a blind hit (0 = default)")
	scanCmd.Flags().String("read-file", "", "once a session is confirmed, download this remote path and print it to stdout")
	scanCmd.Flags().String("write-file", "", "once a session is confirmed, upload --write-file-local to this remote path")
	scanCmd.Flags().String("write-file-local", "", "local path whose contents are uploaded to --write-file")
	scanCmd.MarkFlagRequired("url")
}

func runScan(cmd *cobra.Command, _ []string) error {
	url, _ := cmd.Flags().GetString("url")
	param, _ := cmd.Flags().GetString("param")
	technique, _ := cmd.Flags().GetString("technique")
	level, _ := cmd.Flags().GetInt("level")
	forceCtx, _ := cmd.Flags().GetInt("force-context-level")
	forceClosure, _ := cmd.Flags().GetInt("force-closure-level")
	forceOverwrite, _ := cmd.Flags().GetBool("force-overwrite")
	blindDelay, _ := cmd.Flags().GetInt("time-based-blind-delay")
	verifyDelay, _ := cmd.Flags().GetInt("time-based-verify-blind-delay")

	logLevel := ssmlog.New(os.Stderr, "sstimap")

	args := channel.Args{
		Technique:                 technique,
		Level:                     level,
		ForceOverwrite:            forceOverwrite,
		TimeBasedBlindDelay:       blindDelay,
		TimeBasedVerifyBlindDelay: verifyDelay,
	}
	if forceCtx > 0 {
		args.ForceLevel[0] = &forceCtx
	}
	if forceClosure > 0 {
		args.ForceLevel[1] = &forceClosure
	}

	ch := httpchannel.New(httpchannel.Config{
		URL:   url,
		Param: param,
		Args:  args,
		Log:   logLevel,
	})

	reg := registry.NewRegistry(logLevel)
	installBuiltins(reg, logLevel)
	if err := installCatalog(cmd, reg); err != nil {
		return err
	}

	metricsReg := promclient.NewRegistry()
	rec := metrics.New(metricsReg)

	settings := telemetry.DefaultSettings().WithEnabled(verbose)
	if verbose {
		provider := telemetry.NewLoggingProvider(logLevel)
		defer provider.Shutdown(cmd.Context())
		settings = settings.WithTracer(provider.Tracer(telemetry.TracerName))
	}

	tm := timing.New(
		time.Duration(blindDelay)*time.Second,
		time.Duration(verifyDelay)*time.Second,
	)

	var anyConfirmed bool
	for _, lang := range reg.Languages() {
		for _, plugin := range reg.Plugins(lang) {
			s := detect.NewSession(ch, plugin, tm, logLevel).WithTelemetry(settings, rec)
			if err := s.Detect(cmd.Context()); err != nil {
				fmt.Fprintf(os.Stderr, "%s/%s: %v\n", lang, plugin.EngineName(), err)
				continue
			}

			data := ch.Data()
			if !data.GetBool("render") && !data.GetBool("blind") {
				continue
			}
			anyConfirmed = true
			fmt.Printf("confirmed: %s/%s (render=%v blind=%v)\n",
				lang, plugin.EngineName(), data.GetBool("render"), data.GetBool("blind"))

			if err := capability.RenderedDetected(cmd.Context(), s); err != nil {
				fmt.Fprintf(os.Stderr, "capability probe failed: %v\n", err)
				continue
			}
			reportCapabilities(data)

			if err := runFileIO(cmd, s); err != nil {
				fmt.Fprintf(os.Stderr, "file I/O failed: %v\n", err)
			}
		}
	}

	if !anyConfirmed {
		fmt.Println("no template injection confirmed")
	}
	return nil
}

func installBuiltins(reg *registry.Registry, log *ssmlog.Logger) {
	for _, p := range []*registry.Plugin{javascript.NewNunjucks()} {
		if err := reg.Install(p); err != nil {
			log.PluginRejected(fmt.Sprintf("%s: %v", p.EngineName(), err))
		}
	}
}

func installCatalog(cmd *cobra.Command, reg *registry.Registry) error {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		return nil
	}
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open plugin catalog: %w", err)
	}
	defer f.Close()

	plugins, err := catalog.Load(f)
	if err != nil {
		return fmt.Errorf("load plugin catalog: %w", err)
	}
	for _, p := range plugins {
		if err := reg.Install(p); err != nil {
			fmt.Fprintf(os.Stderr, "catalog plugin %s rejected: %v\n", p.EngineName(), err)
		}
	}
	return nil
}

func reportCapabilities(data *channel.Data) {
	if osFingerprint, ok := data.Get("os", nil).(string); ok && osFingerprint != "" {
		fmt.Printf("  os: %s\n", osFingerprint)
	}
	if data.GetBool("execute") {
		fmt.Println("  execute: available")
	}
	if data.GetBool("write") {
		fmt.Println("  write: available")
	}
	if data.GetBool("read") {
		fmt.Println("  read: available")
	}
}

// runFileIO services --read-file/--write-file against an already-confirmed
// session, skipping silently when neither flag was given.
func runFileIO(cmd *cobra.Command, s *detect.Session) error {
	if readPath, _ := cmd.Flags().GetString("read-file"); readPath != "" {
		data, err := fileio.Read(cmd.Context(), s, readPath)
		if err != nil {
			return err
		}
		os.Stdout.Write(data)
	}

	writePath, _ := cmd.Flags().GetString("write-file")
	if writePath == "" {
		return nil
	}
	localPath, _ := cmd.Flags().GetString("write-file-local")
	if localPath == "" {
		return fmt.Errorf("--write-file requires --write-file-local")
	}
	data, err := os.ReadFile(localPath)
	if err != nil {
		return err
	}
	forceOverwrite, _ := cmd.Flags().GetBool("force-overwrite")
	return fileio.Write(cmd.Context(), s, data, writePath, forceOverwrite)
}
