// Fetch a shared ChatGPT conversation and render it as Markdown, text or JSON
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"
)

// toolResult is the invoke mode response: a single text content block.
type toolResult struct {
	Content []toolContent `json:"content"`
}

type toolContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func invokeHandler(f *Fetcher) func(context.Context, FetchRequest) (toolResult, error) {
	return func(ctx context.Context, req FetchRequest) (toolResult, error) {
		return toolResult{Content: []toolContent{{Type: "text", Text: f.Handle(ctx, req)}}}, nil
	}
}

func initS3(ctx context.Context) (*s3.Client, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}
	return s3.NewFromConfig(cfg), nil
}

func main() {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger := newLogger(os.Stderr, cfg.LogLevel)

	pages := newHTTPPageSource(cfg.Fetcher.UserAgent, cfg.Fetcher.Timeout())
	f, err := NewFetcher(pages, cfg.Heuristics, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("building fetcher")
	}

	if os.Getenv("AWS_LAMBDA_FUNCTION_NAME") == "" {
		os.Exit(runCLI(context.Background(), f, os.Args[1:], os.Stdout, os.Stderr))
	}

	needS3 := cfg.LambdaMode == lambdaModeS3 || cfg.Archive.Bucket != ""
	var client *s3.Client
	if needS3 {
		client, err = initS3(context.Background())
		if err != nil {
			logger.Fatal().Err(err).Msg("initialising s3")
		}
	}

	switch cfg.LambdaMode {
	case lambdaModeS3:
		h := &snapshotHandler{fetcher: f, client: client, outputPrefix: cfg.Archive.OutputPrefix}
		lambda.Start(h.Handle)
	default:
		if cfg.Archive.Bucket != "" {
			f.WithArchive(newS3Archive(client, cfg.Archive.Bucket, cfg.Archive.Prefix))
		}
		lambda.Start(invokeHandler(f))
	}
}

// optionalInt is an int flag that remembers whether it was set.
type optionalInt struct {
	v *int
}

func (o *optionalInt) String() string {
	if o.v == nil {
		return ""
	}
	return strconv.Itoa(*o.v)
}

func (o *optionalInt) Set(s string) error {
	n, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	o.v = &n
	return nil
}

// runCLI renders one conversation to stdout and returns the exit code. With
// -file the page is read from disk instead of fetched.
func runCLI(ctx context.Context, f *Fetcher, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("shared-chat-fetcher", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintln(stderr, "usage: shared-chat-fetcher [flags] <conversation url>")
		fs.PrintDefaults()
	}

	format := fs.String("format", "markdown", "output format: json, markdown or text")
	metadata := fs.Bool("metadata", true, "include title and timestamps")
	file := fs.String("file", "", "render a saved page instead of fetching the URL")
	var maxMessages, skip, start, end optionalInt
	fs.Var(&maxMessages, "max", "maximum number of messages")
	fs.Var(&skip, "skip", "messages to skip from the start")
	fs.Var(&start, "start", "index of the first message")
	fs.Var(&end, "end", "index after the last message, used with -start")

	if err := fs.Parse(args); err != nil {
		return 2
	}

	ctx = invocationLogger(ctx, f.logger).WithContext(ctx)

	if *file != "" {
		out, err := renderFile(ctx, f, *file, *format, *metadata, WindowSpec{
			MaxMessages:  maxMessages.v,
			SkipMessages: skip.v,
			StartIndex:   start.v,
			EndIndex:     end.v,
		})
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		fmt.Fprintln(stdout, out)
		return 0
	}

	if fs.NArg() != 1 {
		fs.Usage()
		return 2
	}
	req := FetchRequest{
		URL:             fs.Arg(0),
		Format:          *format,
		IncludeMetadata: metadata,
		MaxMessages:     maxMessages.v,
		SkipMessages:    skip.v,
		StartIndex:      start.v,
		EndIndex:        end.v,
	}
	out, err := f.Fetch(ctx, req)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("url", req.URL).Msg("error fetching conversation")
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Fprintln(stdout, out)
	return 0
}

func renderFile(ctx context.Context, f *Fetcher, name, format string, metadata bool, spec WindowSpec) (string, error) {
	fmtOut, err := parseFormat(format)
	if err != nil {
		return "", err
	}
	if err := spec.validate(); err != nil {
		return "", err
	}
	raw, err := os.ReadFile(name)
	if err != nil {
		return "", fmt.Errorf("error opening file: %w", err)
	}
	conv, err := f.ConversationFromHTML(ctx, decodePage(raw, ""))
	if err != nil {
		return "", err
	}
	return render(conv, fmtOut, metadata, spec)
}
