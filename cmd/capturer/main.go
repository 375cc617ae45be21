package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dennisdiepolder/monti/callmonitor/internal/capture"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

type runOptions struct {
	server     string
	callID     string
	system     string
	mic        string
	timeslice  time.Duration
	sampleRate int
	logLevel   string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "capturer",
		Short:        "Stream call audio to the call monitor in fixed timeslices",
		SilenceUsage: true,
	}
	root.AddCommand(newRunCmd())
	return root
}

func newRunCmd() *cobra.Command {
	opts := runOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Capture system audio and microphone and post chunks to /api/live",
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.system == "" && opts.mic == "" {
				return fmt.Errorf("at least one of --system or --mic is required")
			}
			if opts.system == "-" && opts.mic == "-" {
				return fmt.Errorf("--system and --mic cannot both read stdin")
			}
			if opts.callID == "" {
				opts.callID = uuid.New().String()
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return run(ctx, opts, newLogger(opts.logLevel))
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.server, "server", "http://localhost:8080", "call monitor base URL")
	flags.StringVar(&opts.callID, "call-id", "", "call id to report under (default: random uuid)")
	flags.StringVar(&opts.system, "system", "", "system audio PCM source: file, named pipe or - for stdin")
	flags.StringVar(&opts.mic, "mic", "", "microphone PCM source: file, named pipe or - for stdin")
	flags.DurationVar(&opts.timeslice, "timeslice", capture.DefaultTimeslice, "length of each chunk")
	flags.IntVar(&opts.sampleRate, "sample-rate", capture.DefaultSampleRate, "sample rate of the sources in Hz")
	flags.StringVar(&opts.logLevel, "log-level", "info", "log level")
	return cmd
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		Level(lvl).
		With().Timestamp().Logger()
}

func run(ctx context.Context, opts runOptions, logger zerolog.Logger) error {
	var sources []io.ReadCloser
	for _, path := range []string{opts.system, opts.mic} {
		if path == "" {
			continue
		}
		src, err := capture.OpenSource(path)
		if err != nil {
			for _, s := range sources {
				s.Close()
			}
			return err
		}
		sources = append(sources, src)
	}

	logger.Info().
		Str("server", opts.server).
		Str("call_id", opts.callID).
		Int("sources", len(sources)).
		Msg("starting capture")

	session := &capture.LocalSession{}
	sink := capture.NewHTTPSink(opts.server, opts.callID, session, logger)
	capturer := capture.NewCapturer(capture.NewMixer(sources...), sink, capture.Config{
		Timeslice:  opts.timeslice,
		SampleRate: opts.sampleRate,
	}, logger)

	if err := capturer.Run(ctx); err != nil {
		return err
	}

	logger.Info().
		Int("lines", len(session.Transcript())).
		Int("suggestions", len(session.Suggestions())).
		Msg("capture finished")
	return nil
}
