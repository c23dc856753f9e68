// Copyright © 2020 Jonathan Whitaker <jonathan@whitaker.io>

package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/whitaker-io/chewdata/pipeline"
	"github.com/whitaker-io/chewdata/telemetry"
)

var cfgFile string

// rootCmd implements spec.md §6's CLI contract: `chewdata [JSON_INLINE] [-f
// FILE]`. At most one of the positional JSON_INLINE argument or the -f/--file
// flag supplies the step-sequence config (giving both is an error); with
// neither, a ~/.chewdata.yaml found by initConfig is used, and with none of
// the three the command refuses to start, the same way the teacher's
// serveCmd (serve.go) refuses to start without at least one Serialization.
var rootCmd = &cobra.Command{
	Use:   "chewdata [JSON_INLINE]",
	Short: "run a chewdata step pipeline to completion",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runPipeline,
}

// Execute runs the command tree, the way the teacher's own Execute (root.go)
// turns a cobra error into a process exit code.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.Flags().StringVarP(&cfgFile, "file", "f", "", "path to a JSON or YAML step-sequence config file")
	cobra.OnInitialize(initConfig)
	viper.AutomaticEnv()
}

// initConfig locates a default ~/.chewdata.yaml the way the teacher's own
// initConfig (root.go) locates ~/.cmd.yaml, so -f can be omitted when the
// caller keeps a standing pipeline config in their home directory. The
// positional JSON_INLINE argument and -f both still take precedence; see
// configBytes.
func initConfig() {
	home, err := homedir.Dir()
	if err != nil {
		return
	}

	viper.AddConfigPath(home)
	viper.SetConfigName(".chewdata")
	_ = viper.ReadInConfig()
}

func runPipeline(cmd *cobra.Command, args []string) error {
	data, err := configBytes(args)
	if err != nil {
		return err
	}

	installLogging()

	steps, err := pipeline.Build(data)
	if err != nil {
		return fmt.Errorf("chewdata: invalid config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := pipeline.Exec(ctx, steps, nil, nil); err != nil {
		return fmt.Errorf("chewdata: %w", err)
	}
	return nil
}

// configBytes resolves the config source per spec.md §6: either the single
// positional JSON_INLINE argument, or -f/--file, never both; with neither,
// the ~/.chewdata.yaml viper located, and an error when that is absent too.
func configBytes(args []string) ([]byte, error) {
	switch {
	case len(args) == 1 && cfgFile != "":
		return nil, fmt.Errorf("chewdata: specify either JSON_INLINE or -f FILE, not both")
	case len(args) == 1:
		return []byte(args[0]), nil
	case cfgFile != "":
		return os.ReadFile(cfgFile)
	case viper.ConfigFileUsed() != "":
		return os.ReadFile(viper.ConfigFileUsed())
	default:
		return nil, fmt.Errorf("chewdata: a JSON_INLINE argument, -f FILE, or ~/.chewdata.yaml is required")
	}
}

// installLogging wires the ambient telemetry stack into the process-wide
// slog default, per spec.md §9's "logging is a process-wide concern left to
// the CLI frontend" -- pipeline and its dependencies only ever call slog at
// common.LevelTrace/LevelMetric; nothing below this package decides where
// those records end up.
func installLogging() {
	tracerProvider := sdktrace.NewTracerProvider()
	meterProvider := sdkmetric.NewMeterProvider()

	handler := telemetry.New(
		slog.NewJSONHandler(os.Stderr, nil),
		meterProvider.Meter("chewdata"),
		tracerProvider.Tracer("chewdata"),
		false,
	)
	slog.SetDefault(slog.New(handler))
}
