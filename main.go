package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/ericogr/pisensor-mqtt/pkg/config"
	"github.com/ericogr/pisensor-mqtt/pkg/i2c"
	"github.com/ericogr/pisensor-mqtt/pkg/output"
	"github.com/ericogr/pisensor-mqtt/pkg/output/console"
	"github.com/ericogr/pisensor-mqtt/pkg/output/mqtt"
	"github.com/ericogr/pisensor-mqtt/pkg/output/redis"
	"github.com/ericogr/pisensor-mqtt/pkg/record"
	"github.com/ericogr/pisensor-mqtt/pkg/scheduler"
	"github.com/ericogr/pisensor-mqtt/pkg/sensor"
	"github.com/ericogr/pisensor-mqtt/pkg/viewer"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var flags *config.Flags
	cmd := &cobra.Command{
		Use:          "pisensor",
		Short:        "Sample I2C sensors and publish telemetry records",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := setup(flags)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()
			return runSampler(cmd.Context(), cfg, i2c.OpenPeriph, logger)
		},
	}
	flags = config.BindFlags(cmd.PersistentFlags())
	cmd.AddCommand(newViewCmd(flags))
	return cmd
}

func newViewCmd(flags *config.Flags) *cobra.Command {
	return &cobra.Command{
		Use:   "view",
		Short: "Subscribe to a device topic and show a live channel table",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := setup(flags)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()
			return runViewer(cmd.Context(), cfg, logger)
		},
	}
}

func setup(flags *config.Flags) (config.Config, *zap.Logger, error) {
	cfg, err := config.LoadFromFlags(flags)
	if err != nil {
		return cfg, nil, fmt.Errorf("config: %w", err)
	}
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return cfg, nil, err
	}
	return cfg, logger, nil
}

func newLogger(level string) (*zap.Logger, error) {
	if level == "" {
		level = "info"
	}
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	zc := zap.NewProductionConfig()
	zc.Level = lvl
	return zc.Build()
}

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }

func runSampler(ctx context.Context, cfg config.Config, open i2c.Opener, logger *zap.Logger) (err error) {
	sensors := sensor.OpenAll(cfg, open, logger)
	defer func() { err = multierr.Append(err, output.CloseAll(sensors...)) }()

	var channels []sensor.ChannelID
	for _, s := range sensors {
		if s.Valid() {
			channels = append(channels, s.Channels()...)
		}
	}
	if len(channels) == 0 {
		logger.Warn("no sensor detected, nothing will be published")
	}

	targets, err := initOutputs(&cfg, cfg.SampleIntervalMs, channels, logger)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, closeTargets(targets)) }()

	topic := cfg.DeviceID + mqtt.DefaultTopicSuffix
	for _, o := range cfg.Outputs {
		if o.Type == config.OutputMQTT && o.MQTT != nil && o.MQTT.Topic != "" {
			topic = o.MQTT.Topic
			break
		}
	}
	set := record.NewSet(cfg.RecordLength, ms(cfg.RecordIntervalMs), channels...)
	loop := scheduler.New(scheduler.Settings{
		DeviceID:       cfg.DeviceID,
		Topic:          topic,
		SampleInterval: ms(cfg.SampleIntervalMs),
		StatusInterval: ms(cfg.StatusIntervalMs),
	}, sensors, set, targets, scheduler.WithLogger(logger))
	return loop.Run(ctx)
}

// initOutputs creates the configured outputs. Outputs without an interval get
// defaultIntervalMs, written back into cfg.
func initOutputs(cfg *config.Config, defaultIntervalMs int, channels []sensor.ChannelID, logger *zap.Logger) ([]*scheduler.Target, error) {
	targets := make([]*scheduler.Target, 0, len(cfg.Outputs))
	for i := range cfg.Outputs {
		oc := &cfg.Outputs[i]
		if oc.IntervalMs == 0 {
			oc.IntervalMs = defaultIntervalMs
		}
		var (
			out output.Output
			err error
		)
		switch oc.Type {
		case config.OutputConsole:
			out = console.NewConsole()
		case config.OutputMQTT:
			mc := config.MQTTConfig{}
			if oc.MQTT != nil {
				mc = *oc.MQTT
			}
			out, err = mqtt.NewMQTT(mc, cfg.DeviceID, channels, logger)
		case config.OutputRedis:
			rc := config.RedisConfig{}
			if oc.Redis != nil {
				rc = *oc.Redis
			}
			out, err = redis.NewRedis(rc, cfg.DeviceID, logger)
		default:
			err = fmt.Errorf("unknown output type %q", oc.Type)
		}
		if err != nil {
			_ = closeTargets(targets)
			return nil, fmt.Errorf("output %s: %w", oc.Type, err)
		}
		targets = append(targets, &scheduler.Target{Name: oc.Type, Output: out, IntervalMs: oc.IntervalMs})
	}
	return targets, nil
}

func closeTargets(targets []*scheduler.Target) error {
	outs := make([]output.Output, len(targets))
	for i, t := range targets {
		outs[i] = t.Output
	}
	return output.CloseAll(outs...)
}

func runViewer(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	mc := config.MQTTConfig{}
	if cfg.View.MQTT != nil {
		mc = *cfg.View.MQTT
	}
	topic := cfg.View.Topic
	if topic == "" {
		topic = cfg.DeviceID + mqtt.DefaultTopicSuffix
	}
	interval := ms(cfg.View.PlotIntervalMs)
	if interval <= 0 {
		interval = time.Second
	}
	set := record.NewSet(cfg.RecordLength, interval)
	v := viewer.New(set, topic, interval, os.Stdout, viewer.WithLogger(logger))
	sub := mqtt.NewSubscriber(mc, topic, v.Handle, logger)

	errc := make(chan error, 1)
	go func() { errc <- sub.Run(ctx) }()
	return multierr.Append(v.Run(ctx), <-errc)
}
