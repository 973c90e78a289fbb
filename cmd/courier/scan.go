package main

import (
	"fmt"

	"github.com/BearBump/RekaTrack/internal/services/shipments"
	"github.com/spf13/cobra"
)

func newScanCmd() *cobra.Command {
	var (
		configPath string
		refresh    bool
	)

	cmd := &cobra.Command{
		Use:   "scan <code>",
		Short: "Show the shipment behind a scanned SJNID code",
		Long:  "Resolves an SJNID:<id> code, loads the travel document and shows its status. A shipment already in transit gets its background tracking resumed.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScan(cmd, configPath, args[0], refresh)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to courier config file")
	cmd.Flags().BoolVar(&refresh, "refresh", false, "bypass the cached travel document")
	return cmd
}

func runScan(cmd *cobra.Command, configPath, code string, refresh bool) error {
	if _, err := shipments.ResolveCode(code); err != nil {
		return userError(err)
	}

	app, err := openApp(configPath, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer app.Close()

	ctx := cmd.Context()
	view, err := app.shipments.Scan(ctx, code, refresh)
	if err != nil {
		return userError(err)
	}

	out := cmd.OutOrStdout()
	sh := view.Shipment
	fmt.Fprintf(out, "Surat jalan: %s (ID %d)\n", sh.NoTravelDocument, sh.ID)
	fmt.Fprintf(out, "Tujuan:      %s\n", sh.SendTo)
	if sh.Project != "" {
		fmt.Fprintf(out, "Proyek:      %s\n", sh.Project)
	}
	fmt.Fprintf(out, "Status:      %s\n", view.DisplayStatus)

	if view.TracerActive {
		if err := app.activation().SyncBackground(ctx, sh.ID); err != nil {
			return userError(err)
		}
		fmt.Fprintln(out, "Tracking berjalan di background")
	}
	return nil
}

func newActivateCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "activate <code>",
		Short: "Start tracking a shipment",
		Long:  "Sends the current position for the shipment and starts background location reporting in the tracer agent.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runActivate(cmd, configPath, args[0])
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to courier config file")
	return cmd
}

func runActivate(cmd *cobra.Command, configPath, code string) error {
	id, err := shipments.ResolveCode(code)
	if err != nil {
		return userError(err)
	}

	app, err := openApp(configPath, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer app.Close()

	if err := app.activation().Activate(cmd.Context(), id); err != nil {
		return userError(err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Tracking aktif untuk surat jalan %d\n", id)
	return nil
}
