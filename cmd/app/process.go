package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/urfave/cli/v3"

	"github.com/starford/scribe/internal"
	"github.com/starford/scribe/internal/apperr"
	"github.com/starford/scribe/internal/ingest"
	"github.com/starford/scribe/internal/processing"
	"github.com/starford/scribe/internal/render"
)

func summarizeCommand() *cli.Command {
	return &cli.Command{
		Name:      "summarize",
		Usage:     "Upload a PDF (max 25MB); the backend saves its summary as a note",
		ArgsUsage: "<file.pdf>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			path := cmd.Args().First()
			if path == "" {
				return apperr.Validation("Please select a file")
			}
			core, err := openCore(cmd)
			if err != nil {
				return err
			}
			a, err := ingest.FromPath(path)
			if err != nil {
				return err
			}
			return process(ctx, core, processing.PDFSummarize, a, os.Stdout, os.Stderr)
		},
	}
}

func transcribeCommand() *cli.Command {
	return &cli.Command{
		Name:      "transcribe",
		Usage:     "Upload or record audio (max 50MB); the backend saves its transcription as a note",
		ArgsUsage: "[<audio file>]",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "record", Aliases: []string{"r"}, Usage: "Record from the microphone until Enter is pressed"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			path := cmd.Args().First()
			record := cmd.Bool("record")
			if path != "" && record {
				return apperr.Validation("Choose either a file or --record, not both")
			}
			core, err := openCore(cmd)
			if err != nil {
				return err
			}

			var a *ingest.Artifact
			switch {
			case record:
				if a, err = recordAudio(ctx, core); err != nil {
					return err
				}
			case path != "":
				if a, err = ingest.FromPath(path); err != nil {
					return err
				}
			default:
				return apperr.Validation("Please select a file")
			}
			return process(ctx, core, processing.AudioTranscribe, a, os.Stdout, os.Stderr)
		},
	}
}

// recordAudio records until Enter (or Ctrl-C) and returns the recording.
func recordAudio(ctx context.Context, core *internal.Core) (*ingest.Artifact, error) {
	rec := core.Recorder()
	if rec == nil {
		return nil, apperr.Validation("Recording is disabled: set capture.command in the config")
	}
	if err := rec.Start(ctx); err != nil {
		return nil, err
	}
	fmt.Fprintln(os.Stderr, "Recording... press Enter to stop.")

	stop := make(chan struct{})
	go func() {
		_, _ = bufio.NewReader(os.Stdin).ReadString('\n')
		close(stop)
	}()
	sigCtx, cancel := signal.NotifyContext(ctx, os.Interrupt)
	defer cancel()

	select {
	case <-stop:
		return rec.Stop()
	case <-sigCtx.Done():
		rec.Discard()
		return nil, apperr.ErrCancelled
	}
}

// process validates and uploads a, printing each state change to stderr and
// the generated content to stdout. After the display delay the refreshed
// notes list follows, where the backend has saved the new note.
func process(ctx context.Context, core *internal.Core, target processing.Target, a *ingest.Artifact, stdout, stderr io.Writer) error {
	fmt.Fprintln(stderr, ingest.Inspect(a))

	navigated := make(chan struct{})
	o := core.Orchestrator(target,
		processing.WithListener(func(s processing.Snapshot) {
			if s.State.Busy() && s.Message != "" {
				fmt.Fprintln(stderr, s.Message)
			}
		}),
		processing.WithNavigate(func() { close(navigated) }),
	)
	if err := o.Select(a); err != nil {
		return err
	}
	snap, err := o.Submit(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintln(stderr, snap.Message)
	fmt.Fprintln(stdout, snap.Content)

	select {
	case <-navigated:
	case <-ctx.Done():
		return nil
	}
	all, err := core.Notes.List(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout)
	return render.WriteList(stdout, all)
}
