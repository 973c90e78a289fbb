package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/BearBump/RekaTrack/config"
	"github.com/BearBump/RekaTrack/internal/broker/kafka"
	"github.com/BearBump/RekaTrack/internal/broker/messages"
	"github.com/BearBump/RekaTrack/internal/logging"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func newEventsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Courier lifecycle events",
	}
	cmd.AddCommand(newEventsTailCmd())
	return cmd
}

func newEventsTailCmd() *cobra.Command {
	var (
		configPath    string
		fromBeginning bool
	)

	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Print courier events as they arrive",
		Long:  "Consumes the courier events topic and prints one line per event until interrupted.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEventsTail(cmd, configPath, fromBeginning)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to courier config file")
	cmd.Flags().BoolVar(&fromBeginning, "from-beginning", false, "start at the oldest retained event")
	return cmd
}

func runEventsTail(cmd *cobra.Command, configPath string, fromBeginning bool) error {
	cfg, err := config.LoadConfig(resolveConfigPath(configPath))
	if err != nil {
		return err
	}
	logging.Setup(cfg.Log, cmd.ErrOrStderr())

	brokers := cfg.KafkaBrokers()
	if len(brokers) == 0 {
		return errors.New("kafka is not configured (kafka.host)")
	}
	topic := cfg.Kafka.CourierEventsTopicName
	if topic == "" {
		topic = "courier.events"
	}

	var opts []kafka.ConsumerOption
	if fromBeginning {
		opts = append(opts, kafka.FromBeginning())
	}
	c := kafka.NewConsumer(brokers, topic, cfg.Kafka.ConsumerGroup, opts...)
	defer c.Close()

	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	err = c.Consume(ctx, func(key, value []byte) error {
		printEvent(out, value)
		return nil
	})
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func printEvent(w io.Writer, value []byte) {
	var ev messages.CourierEvent
	if err := json.Unmarshal(value, &ev); err != nil {
		slog.Warn("skip malformed courier event", "error", err.Error())
		return
	}
	line := fmt.Sprintf("%s  %-20s shipment=%d", ev.At.Format("2006-01-02T15:04:05Z07:00"), ev.Type, ev.ShipmentID)
	if ev.Latitude != nil && ev.Longitude != nil {
		line += fmt.Sprintf(" pos=%.6f,%.6f", *ev.Latitude, *ev.Longitude)
	}
	if ev.ReceiverName != "" {
		line += fmt.Sprintf(" receiver=%q", ev.ReceiverName)
	}
	if len(ev.PhotoPaths) > 0 {
		line += fmt.Sprintf(" photos=%d", len(ev.PhotoPaths))
	}
	if ev.Reason != "" {
		line += fmt.Sprintf(" reason=%q", ev.Reason)
	}
	fmt.Fprintln(w, line)
}

