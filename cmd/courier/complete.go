package main

import (
	"fmt"
	"time"

	"github.com/BearBump/RekaTrack/internal/services/completion"
	"github.com/BearBump/RekaTrack/internal/services/shipments"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func newCompleteCmd() *cobra.Command {
	var (
		configPath string
		receiver   string
		note       string
		receivedAt string
		photos     []string
	)

	cmd := &cobra.Command{
		Use:   "complete <code>",
		Short: "Confirm delivery of a shipment",
		Long:  "Uploads the proof photos, submits the completion record and stops background tracking for the shipment.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := completion.Request{
				ReceiverName: receiver,
				Note:         note,
				Photos:       photos,
			}
			if receivedAt != "" {
				t, err := time.Parse(time.RFC3339, receivedAt)
				if err != nil {
					return errors.Wrap(err, "--received-at must be RFC 3339")
				}
				req.ReceivedAt = t
			}
			return runComplete(cmd, configPath, args[0], req)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to courier config file")
	cmd.Flags().StringVar(&receiver, "receiver", "", "name of the person who received the goods")
	cmd.Flags().StringVar(&note, "note", "", "optional delivery note")
	cmd.Flags().StringVar(&receivedAt, "received-at", "", "receipt time, RFC 3339 (default: now)")
	cmd.Flags().StringArrayVar(&photos, "photo", nil, "proof photo (JPEG); repeat for several")
	return cmd
}

func runComplete(cmd *cobra.Command, configPath, code string, req completion.Request) error {
	id, err := shipments.ResolveCode(code)
	if err != nil {
		return userError(err)
	}
	req.ShipmentID = id
	if err := completion.Validate(req); err != nil {
		return userError(err)
	}

	app, err := openApp(configPath, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer app.Close()

	c, err := app.completion().Complete(cmd.Context(), req)
	if err != nil {
		return userError(err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, completion.MsgCompleted)
	fmt.Fprintf(out, "Penerima: %s\n", c.ReceiverName)
	for i, p := range c.PhotoPaths {
		fmt.Fprintf(out, "Foto %d:   %s\n", i+1, p)
	}
	return nil
}
