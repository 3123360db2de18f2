// Command transcriber turns lecture videos, audio recordings and narrated
// presentations into time-stamped transcripts.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/codebuildervaibhav/lecture-transcriber/internal/failure"
)

// Exit codes
const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

const usage = `Usage: transcriber <command> [flags] [args]

Commands:
  video <file>          Transcribe the audio track of a video
  audio <file>          Transcribe an audio recording
  presentation <file>   Transcribe the slide narration of a .pptx
  serve                 Run the HTTP API and worker pool
  runs                  List recent runs
  drive-login           Authorize Google Drive uploads

Run "transcriber <command> -h" for command flags.
`

// errUsage marks command line mistakes
var errUsage = errors.New("usage error")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	os.Exit(run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return exitUsage
	}

	cmd, rest := args[0], args[1:]
	var err error
	switch cmd {
	case "video", "audio", "presentation":
		err = runTranscribe(ctx, cmd, rest, stdout, stderr)
	case "serve":
		err = runServe(ctx, rest, stderr)
	case "runs":
		err = runRuns(ctx, rest, stdout, stderr)
	case "drive-login":
		err = runDriveLogin(ctx, rest, stdin, stdout, stderr)
	case "help", "-h", "--help":
		fmt.Fprint(stdout, usage)
		return exitOK
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n%s", cmd, usage)
		return exitUsage
	}

	if err != nil && !errors.Is(err, flag.ErrHelp) {
		fmt.Fprintf(stderr, "error: %v\n", err)
	}
	return exitCode(err)
}

func exitCode(err error) int {
	switch {
	case err == nil, errors.Is(err, flag.ErrHelp):
		return exitOK
	case errors.Is(err, errUsage), errors.Is(err, failure.ErrInvalidArgument):
		return exitUsage
	}
	return exitError
}

func usageErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errUsage, fmt.Sprintf(format, args...))
}
