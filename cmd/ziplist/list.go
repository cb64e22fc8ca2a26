package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/davern/ziplist"
	"github.com/davern/ziplist/httpfetch"
	"github.com/davern/ziplist/internal"
	"github.com/davern/ziplist/s3fetch"
	"github.com/dustin/go-humanize"
	"github.com/schollz/progressbar/v3"
)

func run(ctx context.Context) error {
	var client *s3.Client

	n := len(opts.Args.Sources)
	for i, source := range opts.Args.Sources {
		if err := ctx.Err(); err != nil {
			return err
		}

		logger := internal.NewLogger(i, n, source)

		var send ziplist.SendFunc
		switch {
		case strings.HasPrefix(source, "s3://"):
			if client == nil {
				cfg, err := config.LoadDefaultConfig(ctx)
				if err != nil {
					return fmt.Errorf("load default config error: %w", err)
				}
				client = s3.NewFromConfig(cfg)
			}

			bucket, key, ok := splitS3URI(source)
			if !ok {
				logger.Printf("not a valid s3://bucket/key URI")
				continue
			}
			send = s3fetch.New(ctx, client, bucket, key)
		case strings.HasPrefix(source, "http://"), strings.HasPrefix(source, "https://"):
			send = httpfetch.New(ctx, source)
		default:
			// a local file: no fetch minimization needed, just parse it.
			data, err := os.ReadFile(source)
			if err != nil {
				logger.Printf("read error: %v", err)
				continue
			}
			printListing(logger, ziplist.Parse(data, decoder))
			continue
		}

		if !opts.NoProgress {
			send = withProgress(send, internal.TruncateRightWithSuffix(source, 30, "..."))
		}

		printListing(logger, ziplist.List(send, func(o *ziplist.FetchOptions) {
			if opts.RawDecoder {
				o.Decoder = ziplist.Raw
			}
		}))
	}

	return nil
}

// splitS3URI breaks "s3://bucket/key" apart; both parts must be non-empty.
func splitS3URI(source string) (bucket, key string, ok bool) {
	bucket, key, ok = strings.Cut(strings.TrimPrefix(source, "s3://"), "/")
	ok = ok && bucket != "" && key != ""
	return
}

func decoder(o *ziplist.ParseOptions) {
	if opts.RawDecoder {
		o.Decoder = ziplist.Raw
	}
}

func printListing(logger *log.Logger, entries []ziplist.Entry) {
	// entries[0] is the synthetic root; it carries the central directory
	// offset but is not part of the archive's own listing.
	logger.Printf("%d entries, central directory at byte %d", len(entries)-1, entries[0].CentralDirectoryStart)

	for _, e := range entries[1:] {
		if opts.Long {
			size := "-"
			if !e.Directory {
				size = humanize.Bytes(e.UncompressedSize)
			}
			fmt.Printf("%10s  %s\n", size, e.Name)
			continue
		}

		fmt.Println(e.Name)
	}
}

// withProgress decorates send so every completed response advances one shared
// byte-count bar.
func withProgress(send ziplist.SendFunc, description string) ziplist.SendFunc {
	bar := progressbar.DefaultBytes(-1, description)

	return func(req ziplist.Request) ziplist.Handle {
		onComplete := req.OnComplete
		req.OnComplete = func(body []byte) {
			_ = bar.Add(len(body))
			onComplete(body)
		}
		return send(req)
	}
}
