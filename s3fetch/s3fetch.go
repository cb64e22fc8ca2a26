// Package s3fetch adapts the S3 GetObject API to the ziplist transport
// contract, so that the listing of a large archive in S3 costs only a few
// ranged GetObject calls.
package s3fetch

import (
	"context"
	"io"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/davern/ziplist"
)

// Client abstracts the API that is needed to fetch byte ranges from S3.
type Client interface {
	GetObject(context.Context, *s3.GetObjectInput, ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Options customises New.
type Options struct {
	// ModifyGetObjectInput can be used to modify the GetObject input
	// parameters such as adding ExpectedBucketOwner.
	//
	// Its return value will be used to make the GetObject call.
	ModifyGetObjectInput func(*s3.GetObjectInput) *s3.GetObjectInput
}

// New returns a ziplist.SendFunc that fetches the object at bucket and key
// with ranged GetObject calls.
//
// ctx bounds every request started by the returned SendFunc.
func New(ctx context.Context, client Client, bucket, key string, optFns ...func(*Options)) ziplist.SendFunc {
	opts := &Options{
		ModifyGetObjectInput: func(input *s3.GetObjectInput) *s3.GetObjectInput {
			return input
		},
	}
	for _, fn := range optFns {
		fn(opts)
	}

	return func(req ziplist.Request) ziplist.Handle {
		rctx, cancel := context.WithCancel(ctx)
		h := &handle{cancel: cancel}
		go h.run(rctx, opts, client, bucket, key, req)
		return h
	}
}

type handle struct {
	cancel  context.CancelFunc
	aborted atomic.Bool
}

func (h *handle) Abort() {
	h.aborted.Store(true)
	h.cancel()
}

// run owns the whole lifecycle of one request; both callbacks fire from this
// goroutine and an abort observed at any point suppresses OnComplete.
func (h *handle) run(ctx context.Context, opts *Options, client Client, bucket, key string, req ziplist.Request) {
	defer h.cancel()

	body, err := h.do(ctx, opts, client, bucket, key, req)
	if h.aborted.Load() {
		return
	}
	if err != nil {
		body = nil
	}
	if req.OnComplete != nil {
		req.OnComplete(body)
	}
}

func (h *handle) do(ctx context.Context, opts *Options, client Client, bucket, key string, req ziplist.Request) ([]byte, error) {
	input := &s3.GetObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)}
	if v := wireRange(req.Range); v != "" {
		input.Range = aws.String(v)
	}

	output, err := client.GetObject(ctx, opts.ModifyGetObjectInput(input))
	if err != nil {
		return nil, err
	}
	defer output.Body.Close()

	if req.OnHeaders != nil && !h.aborted.Load() {
		req.OnHeaders(headerFunc(output))
	}
	// OnHeaders may have aborted this request in favor of a ranged one.
	if h.aborted.Load() {
		return nil, nil
	}

	return io.ReadAll(output.Body)
}

// headerFunc exposes the GetObject output as response headers. Only the two
// headers the orchestrator inspects are mapped.
func headerFunc(output *s3.GetObjectOutput) ziplist.HeaderFunc {
	return func(name string) string {
		switch name {
		case "Content-Length":
			if output.ContentLength == nil {
				return ""
			}
			return strconv.FormatInt(aws.ToInt64(output.ContentLength), 10)
		case "Accept-Ranges":
			return aws.ToString(output.AcceptRanges)
		default:
			return ""
		}
	}
}

// wireRange strips the "/<total>" suffix from the range value produced by the
// orchestrator; S3 expects plain "bytes=<start>-<end>".
func wireRange(v string) string {
	if i := strings.IndexByte(v, '/'); i != -1 {
		return v[:i]
	}
	return v
}
