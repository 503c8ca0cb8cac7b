package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/yungbote/contentlib/internal/app"
	"github.com/yungbote/contentlib/internal/temporalx/rebuild"
)

var (
	waitRebuild bool
	exportOut   string
	exportGCS   bool

	rebuildCmd = &cobra.Command{
		Use:   "rebuild-index",
		Short: "Rebuild the search index into a fresh index and swap it in",
		Args:  cobra.NoArgs,
		RunE:  withApp(runRebuild),
	}
	syncCmd = &cobra.Command{
		Use:   "sync <usage_key>",
		Short: "Refresh an item-bank's children from its source libraries",
		Args:  cobra.ExactArgs(1),
		RunE:  withApp(runSync),
	}
	validateCmd = &cobra.Command{
		Use:   "validate <usage_key>",
		Short: "Report item-bank configuration problems; exits 1 when invalid",
		Args:  cobra.ExactArgs(1),
		RunE:  withApp(runValidate),
	}
	exportCmd = &cobra.Command{
		Use:   "export-olx <usage_key>",
		Short: "Write an item-bank as OLX",
		Args:  cobra.ExactArgs(1),
		RunE:  withApp(runExport),
	}
	seedCmd = &cobra.Command{
		Use:   "seed <fixtures.yaml>",
		Short: "Load libraries, courses, item-banks, tags and roles from YAML",
		Args:  cobra.ExactArgs(1),
		RunE:  withApp(runSeed),
	}
)

func init() {
	rebuildCmd.Flags().BoolVar(&waitRebuild, "wait", false, "block until the rebuild finishes")
	exportCmd.Flags().StringVar(&exportOut, "out", "", "write to this file instead of stdout")
	exportCmd.Flags().BoolVar(&exportGCS, "gcs", false, "upload to the configured export bucket")
	rootCmd.AddCommand(rebuildCmd, syncCmd, validateCmd, exportCmd, seedCmd)
}

type appRunE func(cmd *cobra.Command, a *app.App, args []string) error

func withApp(fn appRunE) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := app.New()
		if err != nil {
			return fmt.Errorf("init app: %w", err)
		}
		defer a.Close()
		return fn(cmd, a, args)
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func runRebuild(cmd *cobra.Command, a *app.App, _ []string) error {
	ctx := cmd.Context()
	if !waitRebuild {
		out, err := a.Services.Rebuild.Schedule(ctx, "libctl")
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), out)
	}
	if a.Clients.Temporal != nil {
		_, started, res, err := rebuild.Start(ctx, a.Clients.Temporal, a.Clients.TemporalCfg.TaskQueue, true)
		if err != nil {
			return err
		}
		if !started {
			return fmt.Errorf("a rebuild is already running (workflow %s)", rebuild.WorkflowID)
		}
		return printJSON(cmd.OutOrStdout(), res)
	}
	report, err := a.Services.Projector.RebuildIndex(ctx)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), report)
}

func runSync(cmd *cobra.Command, a *app.App, args []string) error {
	view, err := a.Services.ItemBanks.SyncFromLibraries(cmd.Context(), "libctl", args[0])
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), view)
}

func runValidate(cmd *cobra.Command, a *app.App, args []string) error {
	report, err := a.Services.ItemBanks.Validate(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if err := printJSON(cmd.OutOrStdout(), report.Messages); err != nil {
		return err
	}
	if !report.Valid() {
		return fmt.Errorf("%s is not valid", args[0])
	}
	return nil
}

func runExport(cmd *cobra.Command, a *app.App, args []string) error {
	ctx := cmd.Context()
	if exportGCS {
		url, err := a.Services.ItemBanks.ExportToStore(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), url)
		return nil
	}
	var buf bytes.Buffer
	if err := a.Services.ItemBanks.ExportOLX(ctx, args[0], &buf); err != nil {
		return err
	}
	if exportOut == "" {
		_, err := buf.WriteTo(cmd.OutOrStdout())
		return err
	}
	return os.WriteFile(exportOut, buf.Bytes(), 0o644)
}

func runSeed(cmd *cobra.Command, a *app.App, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()
	fixtures, err := app.ParseFixtures(f)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	report, err := a.Services.Seed(ctx, a.Repos, fixtures)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), report)
}
