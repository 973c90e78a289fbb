package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/BearBump/RekaTrack/internal/services/shipments"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var errNoJournal = errors.New("journal database is not configured (database.host)")

func newReportsCmd() *cobra.Command {
	var (
		configPath string
		limit      int
		offset     int
	)

	cmd := &cobra.Command{
		Use:   "reports <code>",
		Short: "List location reports sent for a shipment",
		Long:  "Lists the background location reports journaled for the shipment, newest first, including failed ones.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReports(cmd, configPath, args[0], limit, offset)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to courier config file")
	cmd.Flags().IntVar(&limit, "limit", 20, "max reports to show")
	cmd.Flags().IntVar(&offset, "offset", 0, "skip this many reports")
	return cmd
}

func runReports(cmd *cobra.Command, configPath, code string, limit, offset int) error {
	id, err := shipments.ResolveCode(code)
	if err != nil {
		return userError(err)
	}

	app, err := openApp(configPath, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer app.Close()
	if app.journal == nil {
		return errNoJournal
	}

	reports, err := app.journal.ListLocationReports(cmd.Context(), id, limit, offset)
	if err != nil {
		return err
	}
	if len(reports) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "Belum ada laporan lokasi")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "REPORTED AT\tLATITUDE\tLONGITUDE\tRESULT")
	for _, r := range reports {
		result := "ok"
		if r.Error != nil {
			result = *r.Error
		}
		fmt.Fprintf(w, "%s\t%.6f\t%.6f\t%s\n",
			r.ReportedAt.Local().Format(time.DateTime), r.Position.Latitude, r.Position.Longitude, result)
	}
	return w.Flush()
}
