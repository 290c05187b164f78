package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/fiffu/verimail/app"
	"github.com/fiffu/verimail/lib"
	"github.com/fiffu/verimail/lib/escalation"
	"github.com/fiffu/verimail/lib/processors"
	"github.com/fiffu/verimail/queue"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func NewLogger() (*zap.Logger, error) {
	switch os.Getenv("ENVIRONMENT") {
	default:
		return zap.NewDevelopment()

	case "production":
		logCfg := zap.NewProductionConfig()
		logCfg.EncoderConfig.EncodeTime = func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
			t = t.UTC()
			zapcore.ISO8601TimeEncoder(t, enc)
		}
		return logCfg.Build()
	}
}

func newApp(opts ...fx.Option) *fx.App {
	return fx.New(
		fx.Provide(NewLogger),
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log.Named("fx")}
		}),
		app.Module,
		fx.Options(opts...),
	)
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "verimail",
		Short:         "E-mail verification with reminders, blocking and clean-up",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(newServeCommand())
	cmd.AddCommand(newTickCommand())
	cmd.AddCommand(newLinkCommand())
	return cmd
}

func newServeCommand() *cobra.Command {
	var noScheduler, noWorkers bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, the escalation scheduler and the queue workers",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := []fx.Option{
				fx.Provide(app.NewAPI),
				fx.Invoke(func(*http.Server) {}),
			}
			if !noWorkers {
				opts = append(opts, fx.Invoke(app.RunWorkers))
			}
			if !noScheduler {
				opts = append(opts, fx.Invoke(escalation.RunOnSchedule))
			}

			fxApp := newApp(opts...)
			if err := fxApp.Err(); err != nil {
				return err
			}
			fxApp.Run()
			return nil
		},
	}

	cmd.Flags().BoolVar(&noScheduler, "no-scheduler", false, "Do not run escalation ticks in this process")
	cmd.Flags().BoolVar(&noWorkers, "no-workers", false, "Do not consume the escalation queues in this process")
	return cmd
}

// runOnce starts the graph, runs fn and stops the graph again.
func runOnce(ctx context.Context, fn func(context.Context) error, populate ...any) error {
	fxApp := newApp(fx.Populate(populate...))
	if err := fxApp.Start(ctx); err != nil {
		return err
	}

	err := fn(ctx)

	stopCtx, cancel := context.WithTimeout(context.Background(), fx.DefaultTimeout)
	defer cancel()
	if stopErr := fxApp.Stop(stopCtx); err == nil {
		err = stopErr
	}
	return err
}

func newTickCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "tick",
		Short: "Run one escalation tick and print what was enqueued",
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				svc    *lib.Service
				broker queue.Broker
				procs  *processors.Processors
				log    *zap.Logger
			)
			return runOnce(cmd.Context(), func(ctx context.Context) error {
				defer broker.Close()

				res, err := svc.RunTick(ctx)
				if err != nil {
					log.Sugar().Warnw("Tick finished with errors", "err", err)
				}

				// Nothing else consumes in-memory queues, so handle them here.
				if mem, ok := broker.(*queue.Memory); ok {
					n, perr := mem.Process(ctx, procs.Handlers())
					log.Sugar().Infow("Processed queued batches", "batches", n)
					if perr != nil {
						log.Sugar().Warnw("Some batches failed", "err", perr)
					}
				}

				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if encErr := enc.Encode(res); encErr != nil {
					return encErr
				}
				return err
			}, &svc, &broker, &procs, &log)
		},
	}
}

func newLinkCommand() *cobra.Command {
	var extended bool

	cmd := &cobra.Command{
		Use:   "link <user id>",
		Short: "Print a fresh verification link for a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid user id %q: %w", args[0], err)
			}

			var svc *lib.Service
			return runOnce(cmd.Context(), func(context.Context) error {
				fmt.Fprintln(cmd.OutOrStdout(), svc.Link(uint(userID), extended))
				return nil
			}, &svc)
		},
	}

	cmd.Flags().BoolVar(&extended, "extended", false, "Issue a link for the extended verification period")
	return cmd
}
