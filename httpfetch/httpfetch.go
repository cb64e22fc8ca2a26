// Package httpfetch adapts net/http to the ziplist transport contract.
package httpfetch

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/davern/ziplist"
	"github.com/valyala/bytebufferpool"
	"golang.org/x/time/rate"
)

// Options customises New.
type Options struct {
	// HTTPClient issues the requests.
	//
	// The default client disables transparent compression so that response
	// lengths stay byte-exact, which the range arithmetic depends on.
	HTTPClient *http.Client

	// Limiter, if not nil, paces outgoing requests.
	Limiter *rate.Limiter

	// ModifyRequest can decorate every outgoing request, e.g. with
	// authorization headers.
	ModifyRequest func(*http.Request)
}

// New returns a ziplist.SendFunc that fetches url with GET requests.
//
// ctx bounds every request started by the returned SendFunc; cancelling it
// abandons in-flight requests, which downstream shows up as an empty listing.
func New(ctx context.Context, url string, optFns ...func(*Options)) ziplist.SendFunc {
	opts := &Options{HTTPClient: defaultClient()}
	for _, fn := range optFns {
		fn(opts)
	}

	return func(req ziplist.Request) ziplist.Handle {
		rctx, cancel := context.WithCancel(ctx)
		h := &handle{cancel: cancel}
		go h.run(rctx, opts, url, req)
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

// run owns the whole lifecycle of one request: OnHeaders and OnComplete are
// both called from this goroutine, so one request's callbacks never race. An
// abort observed at any point suppresses OnComplete for good.
func (h *handle) run(ctx context.Context, opts *Options, url string, req ziplist.Request) {
	defer h.cancel()

	body, err := h.do(ctx, opts, url, req)
	if h.aborted.Load() {
		return
	}
	if err != nil {
		// a failed transfer is indistinguishable from an empty remote file.
		body = nil
	}
	if req.OnComplete != nil {
		req.OnComplete(body)
	}
}

func (h *handle) do(ctx context.Context, opts *Options, url string, req ziplist.Request) ([]byte, error) {
	if opts.Limiter != nil {
		if err := opts.Limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	r, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request error: %w", err)
	}
	if v := wireRange(req.Range); v != "" {
		r.Header.Set("Range", v)
	}
	if opts.ModifyRequest != nil {
		opts.ModifyRequest(r)
	}

	resp, err := opts.HTTPClient.Do(r)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	if req.OnHeaders != nil && !h.aborted.Load() {
		req.OnHeaders(resp.Header.Get)
	}
	// OnHeaders may have aborted this request in favor of a ranged one; don't
	// pull the rest of the body in that case.
	if h.aborted.Load() {
		return nil, nil
	}

	bb := bytebufferpool.Get()
	defer bytebufferpool.Put(bb)
	if _, err = bb.ReadFrom(resp.Body); err != nil {
		return nil, fmt.Errorf("read body error: %w", err)
	}

	body := make([]byte, bb.Len())
	copy(body, bb.B)
	return body, nil
}

// wireRange strips the "/<total>" suffix from the range value produced by the
// orchestrator; HTTP servers reject it inside a Range header.
func wireRange(v string) string {
	if i := strings.IndexByte(v, '/'); i != -1 {
		return v[:i]
	}
	return v
}

func defaultClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			// raw bytes only: transparent gzip makes Content-Length lie.
			DisableCompression:  true,
			MaxIdleConnsPerHost: 4,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}
