package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/codebuildervaibhav/lecture-transcriber/internal/cleanup"
	"github.com/codebuildervaibhav/lecture-transcriber/internal/pipeline"
	"github.com/codebuildervaibhav/lecture-transcriber/internal/queue"
	"github.com/codebuildervaibhav/lecture-transcriber/internal/storage"
	"github.com/codebuildervaibhav/lecture-transcriber/internal/types"
)

// transcribeFlags are shared by video, audio and presentation
type transcribeFlags struct {
	configPath     string
	chunk          float64
	output         string
	vocabulary     string
	vocabularyFile string
	provider       string
	concurrency    int
	keep           bool
}

func newFlagSet(name string, stderr io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	return fs
}

func parseTranscribeFlags(kind string, args []string, stderr io.Writer) (*transcribeFlags, string, error) {
	f := &transcribeFlags{}
	fs := newFlagSet(kind, stderr)
	fs.StringVar(&f.configPath, "config", "", "path to config file (default config/config.yaml)")
	fs.StringVar(&f.output, "output", "", "transcript path (default <source dir>/<stem>_transcript.txt)")
	fs.StringVar(&f.vocabulary, "vocabulary", "", "comma separated domain terms to bias recognition")
	fs.StringVar(&f.vocabularyFile, "vocabulary-file", "", "file with domain terms, one per line")
	fs.StringVar(&f.provider, "provider", "", "override transcription provider (openai, google, mock)")
	fs.IntVar(&f.concurrency, "concurrency", 0, "override the number of sections transcribed in parallel")
	fs.BoolVar(&f.keep, "keep-artifacts", false, "keep the run work directory")
	if kind != string(types.SourcePresentation) {
		fs.Float64Var(&f.chunk, "chunk", 0, "chunk duration in seconds (default from config, 900)")
	}

	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return nil, "", err
		}
		return nil, "", usageErrorf("%v", err)
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return nil, "", usageErrorf("%s expects exactly one source file", kind)
	}

	chunkSet := false
	fs.Visit(func(fl *flag.Flag) {
		if fl.Name == "chunk" {
			chunkSet = true
		}
	})
	if chunkSet && f.chunk <= 0 {
		return nil, "", usageErrorf("-chunk must be positive, got %v", f.chunk)
	}
	if f.concurrency < 0 {
		return nil, "", usageErrorf("-concurrency must not be negative")
	}
	return f, fs.Arg(0), nil
}

func (f *transcribeFlags) vocabularyText() (string, error) {
	if f.vocabularyFile == "" {
		return f.vocabulary, nil
	}
	data, err := os.ReadFile(f.vocabularyFile)
	if err != nil {
		return "", usageErrorf("read vocabulary file: %v", err)
	}
	terms := strings.TrimSpace(string(data))
	if f.vocabulary != "" {
		terms = f.vocabulary + "\n" + terms
	}
	return terms, nil
}

// runTranscribe submits one job to a single-worker pool and waits for it, so
// CLI runs are recorded and published exactly like server jobs.
func runTranscribe(ctx context.Context, kind string, args []string, stdout, stderr io.Writer) error {
	f, source, err := parseTranscribeFlags(kind, args, stderr)
	if err != nil {
		return err
	}
	vocabulary, err := f.vocabularyText()
	if err != nil {
		return err
	}

	cfg, err := loadConfig(f.configPath, true)
	if err != nil {
		return err
	}
	if f.provider != "" {
		cfg.Transcription.Provider = f.provider
	}
	if f.concurrency > 0 {
		cfg.Pipeline.Concurrency = f.concurrency
	}
	if f.keep {
		cfg.Pipeline.KeepArtifacts = true
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	initLogging(cfg, stderr)

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()

	cleanup.NewScheduler(cfg.Pipeline.WorkDir, cfg.Cleanup.IntervalMinutes, cfg.Cleanup.MaxAgeHours).RunOnce()

	pool := a.workerPool(1, 1, "")
	pool.Start(ctx)
	defer pool.Stop()

	job, err := pool.Submit(types.SourceKind(kind), pipeline.Request{
		Source:        source,
		Output:        f.output,
		ChunkDuration: f.chunk,
		Vocabulary:    vocabulary,
	})
	if err != nil {
		return err
	}

	updates, unsubscribe := job.Subscribe()
	defer unsubscribe()
	printed := make(chan struct{})
	go func() {
		defer close(printed)
		shown := false
		for p := range updates {
			if p.Total > 0 {
				fmt.Fprintf(stderr, "\rtranscribed %d/%d sections", p.Completed, p.Total)
				shown = true
			}
		}
		if shown {
			fmt.Fprintln(stderr)
		}
	}()

	// the pool context carries the signal; the job reports its own cancellation
	res, err := queue.Wait(context.WithoutCancel(ctx), job)
	<-printed
	if err != nil {
		return err
	}

	fmt.Fprintln(stdout, res.Output)
	if url := job.Status().DriveURL; url != "" {
		fmt.Fprintln(stdout, url)
	}
	return nil
}

// runRuns prints the most recent runs
func runRuns(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := newFlagSet("runs", stderr)
	configPath := fs.String("config", "", "path to config file")
	limit := fs.Int("limit", 20, "number of runs to show")
	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return err
		}
		return usageErrorf("%v", err)
	}
	if *limit < 1 {
		return usageErrorf("-limit must be positive")
	}

	cfg, err := loadConfig(*configPath, true)
	if err != nil {
		return err
	}
	initLogging(cfg, stderr)

	db, err := storage.NewMetadataDB(cfg.Storage.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	runs, err := db.ListRuns(ctx, *limit)
	if err != nil {
		return err
	}
	return printRuns(stdout, runs)
}

func printRuns(w io.Writer, runs []types.RunRecord) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN ID\tKIND\tSTATUS\tSECTIONS\tWORDS\tCREATED\tOUTPUT")
	for _, r := range runs {
		output := r.OutputPath
		if r.Status != types.StatusCompleted && r.Error != "" {
			output = r.Error
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%s\t%s\n",
			r.RunID, r.Kind, r.Status, r.Sections, r.WordCount,
			r.CreatedAt.Local().Format(time.DateTime), output)
	}
	return tw.Flush()
}

// runDriveLogin runs the OAuth consent flow and caches the token
func runDriveLogin(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	fs := newFlagSet("drive-login", stderr)
	configPath := fs.String("config", "", "path to config file")
	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return err
		}
		return usageErrorf("%v", err)
	}

	cfg, err := loadConfig(*configPath, true)
	if err != nil {
		return err
	}
	initLogging(cfg, stderr)

	if err := storage.Login(ctx, cfg.GoogleDrive.CredentialsFile, cfg.GoogleDrive.TokenFile, stdin, stdout); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Token saved to %s\n", cfg.GoogleDrive.TokenFile)
	return nil
}
