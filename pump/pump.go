// Package pump implements spec.md §4.4's StreamPump: non-blocking readers
// for stdout and stderr that emit line events into a single multi-
// producer/single-consumer channel, without ever backpressuring the
// child process.
//
// Grounded on the teacher's engine/cli/process.go scanLines (bufio.Scanner
// over one stream with a configurable buffer), generalized to two streams
// feeding one channel, and on the two-goroutine-plus-waitgroup shape of
// other_examples' monopole-clirunner SentinelFilter.filterForSentinels.
package pump

import (
	"bufio"
	"context"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Line is one logical line of output from the child process (spec §4.4:
// "{ text, is_stderr, timestamp }"). No line ever contains \r, \n, or
// \r\n — those are the delimiters split on.
type Line struct {
	Text     string
	IsStderr bool
	At       time.Time
}

// defaultScannerBuffer bounds the maximum single-line size the pump will
// accept, mirroring the teacher's 1 MB default (engine/cli/options.go).
const defaultScannerBuffer = 1 << 20

// Pump reads two streams (stdout, stderr) without blocking the consumer
// and emits Line events onto a shared, unbounded channel (spec §4.4:
// "The channel is unbounded in order to never backpressure the child").
// Producers append to an internal growable queue (never blocking); a
// single forwarder goroutine drains that queue into the fixed-size
// channel Lines returns, so a slow consumer stalls only the forwarder,
// never the goroutines reading the child's OS pipes.
type Pump struct {
	log           *zap.Logger
	scannerBuffer int
	queue         *unboundedQueue
	lines         chan Line
	wg            sync.WaitGroup
}

// Option configures a Pump at construction time.
type Option func(*Pump)

// WithScannerBuffer overrides the maximum line size in bytes. Values <= 0
// are ignored.
func WithScannerBuffer(n int) Option {
	return func(p *Pump) {
		if n > 0 {
			p.scannerBuffer = n
		}
	}
}

// New returns a Pump ready to have its streams started via Start. log may
// be nil.
func New(log *zap.Logger, opts ...Option) *Pump {
	if log == nil {
		log = zap.NewNop()
	}
	p := &Pump{
		log:           log.Named("pump"),
		scannerBuffer: defaultScannerBuffer,
		queue:         newUnboundedQueue(),
		lines:         make(chan Line),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Lines returns the unified channel of line events from both streams.
// Closed once both the stdout and stderr pump goroutines have exited and
// the internal queue has been fully drained, or once the ctx passed to
// Start is cancelled (spec §4.4 lifecycle).
func (p *Pump) Lines() <-chan Line {
	return p.lines
}

// Start launches one background goroutine per non-nil stream (spec §4.4
// "one background task per stream"), plus the forwarder goroutine that
// drains the internal queue into Lines(). Each stream goroutine runs until
// its stream closes; it does not watch ctx. Cancelling ctx stops only the
// forwarder and closes Lines(). A failure in one pump is logged and
// terminates only that pump (spec §4.4 "Pump failures are logged and
// terminate that pump only; the other pump continues").
func (p *Pump) Start(ctx context.Context, stdout, stderr io.Reader) {
	if stdout != nil {
		p.wg.Add(1)
		go p.pumpStream(stdout, false)
	}
	if stderr != nil {
		p.wg.Add(1)
		go p.pumpStream(stderr, true)
	}
	streamsDone := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(streamsDone)
	}()
	go func() {
		select {
		case <-streamsDone:
		case <-ctx.Done():
		}
		p.queue.closeQueue()
	}()
	go p.forward(ctx)
}

// pumpStream scans r for lines (split on \r, \n, or \r\n) and pushes a
// Line event per logical line onto the unbounded queue. Trailing partial
// lines are held until a delimiter arrives or the stream closes
// (bufio.Scanner's default ScanLines already implements exactly this
// flush-on-close behavior). push never blocks, so a slow consumer can
// never stall this goroutine's reads off the OS pipe (spec §4.4).
func (p *Pump) pumpStream(r io.Reader, isStderr bool) {
	defer p.wg.Done()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), p.scannerBuffer)
	scanner.Split(scanAnyNewline)

	for scanner.Scan() {
		p.queue.push(Line{Text: scanner.Text(), IsStderr: isStderr, At: time.Now()})
	}
	if err := scanner.Err(); err != nil {
		p.log.Warn("stream pump error", zap.Bool("stderr", isStderr), zap.Error(err))
	}
}

// forward drains the unbounded queue into the fixed-size Lines() channel
// until the queue is closed and empty or ctx is cancelled.
func (p *Pump) forward(ctx context.Context) {
	defer close(p.lines)
	for {
		line, ok := p.queue.pop()
		if !ok {
			return
		}
		select {
		case p.lines <- line:
		case <-ctx.Done():
			return
		}
	}
}

// scanAnyNewline is a bufio.SplitFunc that splits on \r, \n, or \r\n —
// spec §4.4: "split on \r, \n, or \r\n; no line is ever emitted
// containing a delimiter; trailing partial lines are held until a
// delimiter arrives, and flushed on stream close". bufio.ScanLines
// alone only handles \n and \r\n, not a lone \r, hence this custom func.
func scanAnyNewline(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	for i, b := range data {
		if b == '\n' {
			return i + 1, data[:i], nil
		}
		if b == '\r' {
			if i+1 < len(data) {
				if data[i+1] == '\n' {
					return i + 2, data[:i], nil
				}
				return i + 1, data[:i], nil
			}
			if atEOF {
				return i + 1, data[:i], nil
			}
			// \r at the very end of the buffer but not atEOF: need more
			// data to know whether it's followed by \n.
			return 0, nil, nil
		}
	}
	if atEOF {
		// Flush the final partial line on stream close.
		return len(data), data, nil
	}
	return 0, nil, nil
}

// unboundedQueue is a growable FIFO of Lines that never blocks a
// producer (spec §4.4: "the channel is unbounded in order to never
// backpressure the child"). push only ever appends to a slice; pop
// blocks on a condition variable until a line is available or the queue
// is closed and drained.
type unboundedQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	buf    []Line
	closed bool
}

func newUnboundedQueue() *unboundedQueue {
	q := &unboundedQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

func (q *unboundedQueue) push(line Line) {
	q.mu.Lock()
	q.buf = append(q.buf, line)
	q.mu.Unlock()
	q.cond.Signal()
}

func (q *unboundedQueue) closeQueue() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.cond.Signal()
}

// pop blocks until a line is available or the queue is closed with
// nothing left to drain, in which case it returns ok=false.
func (q *unboundedQueue) pop() (line Line, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.buf) == 0 && !q.closed {
		q.cond.Wait()
	}
	if len(q.buf) == 0 {
		return Line{}, false
	}
	line = q.buf[0]
	q.buf = q.buf[1:]
	return line, true
}
