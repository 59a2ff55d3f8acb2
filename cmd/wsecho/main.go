package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"runtime/debug"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	logAdapter "github.com/opensesame/sesametools/internal/adapters/log"
	"github.com/opensesame/sesametools/internal/cliconfig"
	"github.com/opensesame/sesametools/internal/domain"
	"github.com/opensesame/sesametools/internal/echo"
)

const longHelp = `
Run a WebSocket echo service.

Every message a client sends is answered on the same connection with a fixed
prefix followed by the message. Connections are independent: a client that
disconnects, or one whose messages fail, does not affect the others.`

var exampleUsage = strings.TrimSpace(`
  wsecho --port 8080
  wsecho --host 127.0.0.1 --prefix "echo: "
  wsecho send --url ws://127.0.0.1:8080 hello world
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
		Use:           "wsecho",
		Short:         "Run a WebSocket echo service",
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
			if err := cfg.Echo.Validate(); err != nil {
				return err
			}

			log, err = cliconfig.Configure(cfg.LogFormat, cfg.LogLevel)
			if err != nil {
				return err
			}
			log.Info().Interface("config", cfg.Echo).Msg("configuration")

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			adapter := logAdapter.NewZerologAdapter(log)

			if used != "" {
				w := cliconfig.NewWatcher(used, adapter, func(fc cliconfig.FileConfig) {
					applyLogLevel(log, fc.LogLevel, cmd.Flags().Changed("log-level"))
				})
				go func() {
					if err := w.Run(ctx); err != nil {
						log.Warn().Err(err).Str("path", used).Msg("config watcher stopped")
					}
				}()
			}

			return echo.NewServer(cfg.Echo.Server(), adapter).ListenAndServe(ctx)
		},
	}

	root.PersistentFlags().StringVar(&cfgPath, "config", "", "path to config file (default: $HOME/.sesame/config.toml)")
	root.PersistentFlags().StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "log format (auto, console, json)")

	root.Flags().StringVar(&cfg.Echo.Host, "host", cfg.Echo.Host, "interface to listen on")
	root.Flags().IntVar(&cfg.Echo.Port, "port", cfg.Echo.Port, "TCP port to listen on")
	root.Flags().StringVar(&cfg.Echo.Prefix, "prefix", cfg.Echo.Prefix, "text prepended to every reply")
	root.Flags().IntVar(&cfg.Echo.MaxMessageBytes, "max-message-bytes", cfg.Echo.MaxMessageBytes, "largest accepted message")
	root.Flags().BoolVar(&cfg.Echo.ReusePort, "reuse-port", cfg.Echo.ReusePort, "bind with SO_REUSEPORT")
	root.Flags().DurationVar(&cfg.Echo.ShutdownTimeout, "shutdown-timeout", cfg.Echo.ShutdownTimeout, "how long to wait for connections on shutdown")

	root.AddCommand(newSendCmd(&cfg, &cfgPath, &log))

	if err := root.Execute(); err != nil {
		// The server has already logged bind failures.
		if !errors.Is(err, domain.ErrBind) {
			log.Error().Err(err).Msg("wsecho")
		}
		os.Exit(1)
	}
}

func newSendCmd(cfg *cliconfig.Config, cfgPath *string, log *zerolog.Logger) *cobra.Command {
	var (
		url      string
		messages []string
		timeout  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "send [message...]",
		Short: "Send messages to an echo service and print the replies",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := cliconfig.Load(cfg, *cfgPath, cmd.Flags()); err != nil {
				return err
			}
			l, err := cliconfig.Configure(cfg.LogFormat, cfg.LogLevel)
			if err != nil {
				return err
			}
			*log = l

			msgs := append(append([]string{}, messages...), args...)
			if len(msgs) == 0 {
				return fmt.Errorf("%w: no messages to send", domain.ErrInvalidConfig)
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			replies, err := echo.Send(ctx, url, msgs, timeout)
			for _, r := range replies {
				fmt.Fprintln(cmd.OutOrStdout(), r)
			}
			if err != nil {
				return err
			}
			log.Debug().Str("url", url).Int("replies", len(replies)).Msg("send complete")
			return nil
		},
	}

	cmd.Flags().StringVar(&url, "url", "ws://127.0.0.1:80", "echo service URL")
	cmd.Flags().StringArrayVarP(&messages, "message", "m", nil, "message to send (repeatable)")
	cmd.Flags().DurationVar(&timeout, "timeout", echo.DefaultSendTimeout, "timeout for the whole exchange")
	return cmd
}

// applyLogLevel switches the global level after a config reload. A level set
// on the command line is left alone.
func applyLogLevel(log zerolog.Logger, level string, pinned bool) {
	if pinned || level == "" {
		return
	}
	lvl, err := cliconfig.ParseLevel(level)
	if err != nil {
		log.Warn().Err(err).Str("log_level", level).Msg("ignoring invalid log level")
		return
	}
	if lvl != zerolog.GlobalLevel() {
		zerolog.SetGlobalLevel(lvl)
		log.Info().Str("log_level", lvl.String()).Msg("log level changed")
	}
}
