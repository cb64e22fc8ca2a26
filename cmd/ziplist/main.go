package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/jessevdk/go-flags"
)

var opts struct {
	Profile    string `short:"p" long:"profile" description:"override AWS_PROFILE if given"`
	Long       bool   `short:"l" long:"long" description:"print uncompressed sizes next to names"`
	RawDecoder bool   `long:"raw-decoder" description:"decode filenames without charset tables"`
	NoProgress bool   `long:"no-progress" description:"disable the progress bar"`
	Args       struct {
		Sources []string `positional-arg-name:"source" description:"http(s) URLs, s3://bucket/key URIs, or local files" required:"yes"`
	} `positional-args:"yes"`
}

func main() {
	if _, err := flags.Parse(&opts); err != nil {
		if flags.WroteHelp(err) {
			return
		}
		os.Exit(1)
	}

	if opts.Profile != "" {
		if err := os.Setenv("AWS_PROFILE", opts.Profile); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "set AWS_PROFILE error: %v\n", err)
			os.Exit(1)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, os.Kill)
	defer stop()

	if err := run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		_, _ = fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}
