package ziplist

import (
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
)

const (
	// rangeThreshold is the minimum Content-Length at which aborting the
	// initial request in favor of a ranged fetch beats letting the full
	// download finish.
	rangeThreshold = 100000

	// tailWindow is the largest span the EOCD record can occupy (fixed record
	// plus maximal comment) plus one byte; a window of this size anchored at
	// the end of the file always contains the EOCD.
	tailWindow = maxCommentLength + eocdFixedSize + 1
)

// HeaderFunc returns the value of the named response header, or "" when the
// header is absent.
type HeaderFunc func(name string) string

// Request describes one transport request issued by FetchEntries.
type Request struct {
	// Range is the byte range to fetch, formatted as
	// "bytes=<start>-<end>/<total>". Empty requests the whole file.
	Range string

	// OnHeaders, if not nil, is invoked when response headers become
	// available. It may run zero or more times, only while the request is in
	// flight.
	OnHeaders func(HeaderFunc)

	// OnComplete is invoked exactly once with the full response body, unless
	// the request was aborted first. A transport failure delivers an empty
	// body.
	OnComplete func(body []byte)
}

// Handle controls an in-flight request.
type Handle interface {
	// Abort cancels the request. Once Abort has been called the request's
	// OnComplete must never fire; its outcome is permanently discarded.
	Abort()
}

// SendFunc begins a request against some fixed remote file and returns a
// handle that can abort it.
//
// Implementations must never invoke the callbacks of one FetchEntries call
// concurrently, must deliver transport failures as an empty body rather than
// withholding OnComplete, and must honor the Abort contract.
type SendFunc func(Request) Handle

// FetchOptions customises FetchEntries and List.
type FetchOptions struct {
	// Decoder converts filename bytes into strings.
	//
	// Defaults to Charset.
	Decoder TextDecoder
}

// FetchEntries retrieves the file listing of the remote ZIP archive behind
// send, invoking onEntries exactly once with the result.
//
// An initial unranged request is issued first. If its response headers report
// a file of at least 100000 bytes on a server that accepts byte ranges, that
// request is aborted in favor of one request for the trailing window that must
// contain the EOCD record, plus at most one corrective request when the window
// turns out to begin past the central directory. A server that claims range
// support but responds with the full file is detected by the response length
// and handled as a full download. Small files, unknown lengths, missing range
// support and transport failures all degrade to parsing whatever bytes
// arrived; at most 3 requests are issued per call.
//
// FetchEntries does not block: all work happens inside transport callbacks.
func FetchEntries(send SendFunc, onEntries func([]Entry), optFns ...func(*FetchOptions)) {
	opts := &FetchOptions{Decoder: Charset}
	for _, fn := range optFns {
		fn(opts)
	}

	s := &session{send: send, onEntries: onEntries, decoder: opts.Decoder}
	s.issue(Request{
		OnHeaders:  s.decideStrategy,
		OnComplete: func(body []byte) { s.deliver(s.parse(body, 0)) },
	})
}

// List is a convenience wrapper around FetchEntries that blocks until the
// listing is available.
func List(send SendFunc, optFns ...func(*FetchOptions)) []Entry {
	ch := make(chan []Entry, 1)
	FetchEntries(send, func(entries []Entry) { ch <- entries }, optFns...)
	return <-ch
}

// session carries the state of one FetchEntries call. At most one request is
// in flight at any time and transports never run a call's callbacks
// concurrently, so the plain fields need no locking; the two spots where a
// misbehaving transport could still bite (callbacks racing the Send return
// value, a late OnComplete after Abort) are covered by pendingHandle and the
// delivered flag.
type session struct {
	send      SendFunc
	onEntries func([]Entry)
	decoder   TextDecoder

	// start is the committed range start, 0 until a range request is chosen.
	start int64
	// length is the total file length reported by the server, 0 if unknown.
	length int64
	// handle owns cancellation of the in-flight request, released once the
	// request completes or is aborted.
	handle *pendingHandle
	// delivered guards the exactly-once contract on onEntries.
	delivered atomic.Bool
}

// issue sends one request, making its cancellation available to callbacks
// even when they fire before Send returns.
func (s *session) issue(req Request) {
	s.handle = &pendingHandle{}
	s.handle.resolve(s.send(req))
}

// deliver invokes onEntries, once.
func (s *session) deliver(entries []Entry) {
	if s.delivered.CompareAndSwap(false, true) {
		s.onEntries(entries)
	}
}

// decideStrategy runs on the initial request's response headers. Small files,
// unknown lengths and servers without range support leave the initial request
// to complete normally; everything else aborts it and fetches the trailing
// window instead.
func (s *session) decideStrategy(header HeaderFunc) {
	length, err := strconv.ParseInt(header("Content-Length"), 10, 64)
	if err != nil {
		length = 0
	}
	if length < rangeThreshold || header("Accept-Ranges") != "bytes" {
		return
	}

	s.length = length
	s.start = length - tailWindow

	// the abort must be requested before the ranged request goes out; its
	// completion is not waited on since an aborted request can no longer
	// deliver OnComplete.
	s.handle.Abort()
	s.issue(Request{
		Range:      formatRange(s.start, s.length),
		OnComplete: s.completeRanged,
	})
}

// completeRanged handles the speculative tail-window response.
func (s *session) completeRanged(body []byte) {
	start := s.start
	if start != 0 && int64(len(body)) == s.length {
		// the server ignored the Range header and sent the whole file.
		start = 0
	}

	entries := s.parse(body, start)
	cdStart := entries[0].CentralDirectoryStart
	if start == 0 || cdStart >= start {
		// the window covers the whole central directory.
		s.deliver(entries)
		return
	}

	// under-fetched: the central directory begins before the window. Issue
	// exactly one corrective request from the offset the EOCD reported and
	// deliver whatever it parses to, no further retries.
	s.start = cdStart
	s.issue(Request{
		Range:      formatRange(cdStart, s.length),
		OnComplete: func(body []byte) { s.deliver(s.parse(body, s.start)) },
	})
}

// pendingHandle stands in for a transport handle that may not have been
// returned by Send yet: a synchronous transport can run OnHeaders, and with it
// an Abort, before Send hands the real handle back. An Abort recorded early is
// replayed on the real handle as soon as it resolves.
type pendingHandle struct {
	mu      sync.Mutex
	aborted bool
	handle  Handle
}

func (p *pendingHandle) Abort() {
	p.mu.Lock()
	p.aborted = true
	h := p.handle
	p.mu.Unlock()

	if h != nil {
		h.Abort()
	}
}

func (p *pendingHandle) resolve(h Handle) {
	p.mu.Lock()
	p.handle = h
	aborted := p.aborted
	p.mu.Unlock()

	if aborted {
		h.Abort()
	}
}

func (s *session) parse(body []byte, start int64) []Entry {
	return Parse(body, func(o *ParseOptions) {
		o.StartOffset = start
		o.Decoder = s.decoder
	})
}

// formatRange renders the wire format "bytes=<start>-<end>/<total>". A start
// of 0 means the whole file and produces no Range value at all, since an
// explicit zero start would be ambiguous with "no range requested".
func formatRange(start, length int64) string {
	if start == 0 {
		return ""
	}
	return fmt.Sprintf("bytes=%d-%d/%d", start, length-1, length)
}
