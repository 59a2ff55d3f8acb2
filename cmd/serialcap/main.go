package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"runtime/debug"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/opensesame/sesametools/internal/adapters/fs"
	logAdapter "github.com/opensesame/sesametools/internal/adapters/log"
	serialAdapter "github.com/opensesame/sesametools/internal/adapters/serial"
	"github.com/opensesame/sesametools/internal/capture"
	"github.com/opensesame/sesametools/internal/cliconfig"
)

const longHelp = `
Capture raw bytes from a serial device into a file.

The device is read in fixed-size chunks at 8N1 framing. A chunk consisting of
exactly the three bytes "EOF" ends the capture and is not written; every other
chunk is appended to the output file as received. The output file is
truncated on start.`

var exampleUsage = strings.TrimSpace(`
  serialcap --device /dev/ttyACM0 --output samples.f32
  serialcap --read-timeout 0 --trace=false
  serialcap --config $HOME/.sesame/config.toml
`)

func getVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

func main() {
	cfg := cliconfig.DefaultConfig()
	var cfgPath string

	log := cliconfig.Logger()

	root := &cobra.Command{
		Use:           "serialcap",
		Short:         "Capture raw bytes from a serial device into a file",
		Long:          strings.TrimSpace(longHelp),
		Example:       exampleUsage,
		Version:       fmt.Sprintf("%s %s/%s", getVersion(), runtime.GOOS, runtime.GOARCH),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			used, err := cliconfig.Load(&cfg, cfgPath, cmd.Flags())
			if err != nil {
				return err
			}
			if err := cfg.Capture.Validate(); err != nil {
				return err
			}

			log, err = cliconfig.Configure(cfg.LogFormat, cfg.LogLevel)
			if err != nil {
				return err
			}
			if used != "" {
				log.Debug().Str("path", used).Msg("loaded config file")
			}
			log.Info().Interface("config", cfg.Capture).Msg("configuration")

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			c := capture.New(
				serialAdapter.NewOpener(),
				fs.NewOutputFileOpener(),
				logAdapter.NewZerologAdapter(log),
			)
			stats, err := c.Run(ctx, cfg.Capture.CaptureRun())

			ev := log.Info()
			if err != nil {
				ev = log.Warn()
			}
			ev.Int("chunks", stats.Chunks).
				Int64("bytes", stats.Bytes).
				Int("idle_reads", stats.IdleReads).
				Bool("sentinel", stats.SentinelSeen).
				Dur("elapsed", stats.Elapsed).
				Msg("capture finished")
			return err
		},
	}

	root.Flags().StringVar(&cfgPath, "config", "", "path to config file (default: $HOME/.sesame/config.toml)")
	root.Flags().StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (debug, info, warn, error)")
	root.Flags().StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "log format (auto, console, json)")

	root.Flags().StringVar(&cfg.Capture.Device, "device", cfg.Capture.Device, "serial device path")
	root.Flags().IntVar(&cfg.Capture.Baud, "baud", cfg.Capture.Baud, "baud rate")
	root.Flags().StringVar(&cfg.Capture.Output, "output", cfg.Capture.Output, "output file, truncated on start")
	root.Flags().IntVar(&cfg.Capture.ChunkSize, "chunk-size", cfg.Capture.ChunkSize, "maximum bytes per read")
	root.Flags().DurationVar(&cfg.Capture.ReadTimeout, "read-timeout", cfg.Capture.ReadTimeout, "per-read timeout; 0 blocks until data arrives")
	root.Flags().DurationVar(&cfg.Capture.OpenWait, "open-wait", cfg.Capture.OpenWait, "keep retrying a device that is not present yet for this long")
	root.Flags().BoolVar(&cfg.Capture.Trace, "trace", cfg.Capture.Trace, "log every received chunk at debug level")

	if err := root.Execute(); err != nil {
		log.Error().Err(err).Msg("serialcap")
		os.Exit(1)
	}
}
