package transport

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/time/rate"

	"github.com/benchtop-io/benchd/internal/log"
	"github.com/benchtop-io/benchd/internal/metrics"
	"github.com/benchtop-io/benchd/internal/telemetry"
)

// Encoding selects how command text is put on the wire.
type Encoding int

const (
	// EncodingASCII passes text through unchanged.
	EncodingASCII Encoding = iota
	// EncodingLatin1 maps text through ISO 8859-1, for firmware that
	// speaks 8-bit character sets.
	EncodingLatin1
)

// Pacer gates outgoing commands across connections. A nil Pacer falls
// back to a per-connection limiter.
type Pacer interface {
	Wait(ctx context.Context, instrument string) error
}

// Options configures a TCP instrument connection.
type Options struct {
	// Name identifies the instrument in logs, metrics and errors.
	Name string

	DialTimeout time.Duration
	ReadTimeout time.Duration

	// WriteTerminator is appended to every outgoing command. Most SCPI
	// boxes take "\n"; some serial-heritage devices want "\r".
	WriteTerminator string
	// ReadTerminator ends every incoming reply.
	ReadTerminator string

	Encoding Encoding

	// Echo indicates the device echoes every command line back before
	// any reply. The echo line is read and discarded.
	Echo bool
	// DrainBefore discards stale buffered bytes before each exchange,
	// so a late reply from an earlier command cannot be mistaken for
	// the current one.
	DrainBefore bool

	// Pacer, when set, replaces the per-connection rate limiter.
	Pacer Pacer

	// RateLimit paces outgoing commands when no Pacer is set.
	RateLimit      rate.Limit
	RateLimitBurst int

	// MaxRetries applies to the initial dial only. Exchanges are never
	// retried: re-sending a set command is not safe on real hardware.
	MaxRetries int
	Backoff    time.Duration
	MaxBackoff time.Duration
}

const (
	defaultDialTimeout = 5 * time.Second
	defaultReadTimeout = 2 * time.Second
	defaultTerminator  = "\n"
	defaultRateLimit   = 20
	defaultRateBurst   = 5
	defaultRetries     = 2
	defaultBackoff     = 200 * time.Millisecond
	defaultMaxBackoff  = 2 * time.Second
)

func normalizeOptions(opts Options) Options {
	if strings.TrimSpace(opts.Name) == "" {
		opts.Name = "instrument"
	}
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = defaultDialTimeout
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = defaultReadTimeout
	}
	if opts.WriteTerminator == "" {
		opts.WriteTerminator = defaultTerminator
	}
	if opts.ReadTerminator == "" {
		opts.ReadTerminator = defaultTerminator
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = rate.Limit(defaultRateLimit)
	}
	if opts.RateLimitBurst <= 0 {
		opts.RateLimitBurst = defaultRateBurst
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.MaxRetries == 0 {
		opts.MaxRetries = defaultRetries
	}
	if opts.Backoff <= 0 {
		opts.Backoff = defaultBackoff
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = defaultMaxBackoff
	}
	return opts
}

// TCPClient is a Transport over a raw TCP socket. A mutex serializes
// exchanges so replies stay paired with their commands.
type TCPClient struct {
	addr   string
	opts   Options
	logger zerolog.Logger

	limiter *rate.Limiter

	mu     sync.Mutex
	conn   net.Conn
	reader *bufio.Reader
	closed bool

	rndMu sync.Mutex
	rnd   *rand.Rand
}

// Dial connects to an instrument at address ("host:port"), retrying
// with backoff on connection failure.
func Dial(ctx context.Context, address string, opts Options) (*TCPClient, error) {
	opts = normalizeOptions(opts)

	c := &TCPClient{
		addr: address,
		opts: opts,
		logger: log.WithComponent("transport").With().
			Str(log.FieldInstrument, opts.Name).
			Str(log.FieldAddress, address).
			Logger(),
		limiter: rate.NewLimiter(opts.RateLimit, opts.RateLimitBurst),
		rnd:     rand.New(rand.NewSource(time.Now().UnixNano())), // #nosec G404 -- jitter only
	}

	dialer := net.Dialer{Timeout: opts.DialTimeout}
	maxAttempts := opts.MaxRetries + 1
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		conn, err := dialer.DialContext(ctx, "tcp", address)
		if err == nil {
			c.conn = conn
			c.reader = bufio.NewReader(conn)
			c.logger.Debug().Int("attempt", attempt).Msg("connected")
			return c, nil
		}
		lastErr = err
		c.logger.Warn().Err(err).Int("attempt", attempt).Msg("dial failed")

		if attempt == maxAttempts {
			break
		}
		if err := sleepWithContext(ctx, c.backoffFor(attempt-1)); err != nil {
			return nil, &Error{Sentinel: ErrUnavailable, Instrument: opts.Name, Err: err}
		}
	}

	return nil, &Error{Sentinel: ErrUnavailable, Instrument: opts.Name, Err: lastErr}
}

// Name returns the instrument name this connection was opened for.
func (c *TCPClient) Name() string { return c.opts.Name }

// Addr returns the dialed address.
func (c *TCPClient) Addr() string { return c.addr }

// Write sends a command that expects no reply.
func (c *TCPClient) Write(ctx context.Context, cmd string) error {
	start := time.Now()
	err := c.exchange(ctx, cmd, nil)
	metrics.ObserveSCPICommand(c.opts.Name, "write", err, time.Since(start))
	return err
}

// Query sends a command and reads one reply line, with terminators and
// surrounding whitespace stripped.
func (c *TCPClient) Query(ctx context.Context, cmd string) (string, error) {
	var reply string
	start := time.Now()
	err := c.exchange(ctx, cmd, &reply)
	metrics.ObserveSCPICommand(c.opts.Name, "query", err, time.Since(start))
	return reply, err
}

// Close shuts the connection down. It is safe to call twice.
func (c *TCPClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	if err != nil {
		return fmt.Errorf("close %s: %w", c.opts.Name, err)
	}
	c.logger.Debug().Msg("connection closed")
	return nil
}

func (c *TCPClient) exchange(ctx context.Context, cmd string, reply *string) error {
	kind := "write"
	if reply != nil {
		kind = "query"
	}

	tracer := telemetry.Tracer("benchd.transport")
	ctx, span := tracer.Start(ctx, "benchd.scpi."+kind, trace.WithSpanKind(trace.SpanKindClient))
	span.SetAttributes(telemetry.CommandAttributes(cmd, kind)...)
	span.SetAttributes(telemetry.InstrumentAttributes(c.opts.Name, "", c.addr)...)
	defer span.End()

	if err := c.pace(ctx); err != nil {
		err = &Error{Sentinel: ErrTimeout, Instrument: c.opts.Name, Command: cmd, Err: err}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || c.conn == nil {
		err := &Error{Sentinel: ErrClosed, Instrument: c.opts.Name, Command: cmd}
		span.RecordError(err)
		span.SetStatus(codes.Error, "connection closed")
		return err
	}

	if c.opts.DrainBefore {
		c.drainLocked()
	}

	if err := c.writeLocked(ctx, cmd); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	if c.opts.Echo {
		if _, err := c.readLineLocked(ctx, cmd); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return err
		}
	}

	if reply != nil {
		line, err := c.readLineLocked(ctx, cmd)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return err
		}
		*reply = strings.TrimSpace(line)
	}

	span.SetStatus(codes.Ok, "")
	c.logger.Trace().Str(log.FieldCommand, cmd).Str("kind", kind).Msg("exchange complete")
	return nil
}

func (c *TCPClient) pace(ctx context.Context) error {
	if c.opts.Pacer != nil {
		return c.opts.Pacer.Wait(ctx, c.opts.Name)
	}
	return c.limiter.Wait(ctx)
}

func (c *TCPClient) writeLocked(ctx context.Context, cmd string) error {
	payload, err := c.encode(cmd + c.opts.WriteTerminator)
	if err != nil {
		return fmt.Errorf("encode command %q: %w", cmd, err)
	}
	if err := c.conn.SetWriteDeadline(c.deadline(ctx)); err != nil {
		return c.classify(cmd, err)
	}
	if _, err := c.conn.Write([]byte(payload)); err != nil {
		return c.classify(cmd, err)
	}
	return nil
}

func (c *TCPClient) readLineLocked(ctx context.Context, cmd string) (string, error) {
	if err := c.conn.SetReadDeadline(c.deadline(ctx)); err != nil {
		return "", c.classify(cmd, err)
	}

	term := byte('\n')
	if c.opts.ReadTerminator != "" {
		term = c.opts.ReadTerminator[len(c.opts.ReadTerminator)-1]
	}
	line, err := c.reader.ReadString(term)
	if err != nil {
		return "", c.classify(cmd, err)
	}
	line = strings.TrimRight(line, "\r\n")

	decoded, err := c.decode(line)
	if err != nil {
		return "", &Error{Sentinel: ErrBadResponse, Instrument: c.opts.Name, Command: cmd, Err: err}
	}
	return decoded, nil
}

// drainLocked discards bytes left over from earlier exchanges.
func (c *TCPClient) drainLocked() {
	_ = c.conn.SetReadDeadline(time.Now().Add(5 * time.Millisecond))
	for {
		if _, err := c.reader.ReadByte(); err != nil {
			break
		}
	}
}

// deadline picks the sooner of the read timeout and the context deadline.
func (c *TCPClient) deadline(ctx context.Context) time.Time {
	d := time.Now().Add(c.opts.ReadTimeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(d) {
		d = dl
	}
	return d
}

func (c *TCPClient) classify(cmd string, err error) error {
	sentinel := ErrUnavailable
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		sentinel = ErrTimeout
	}
	return &Error{Sentinel: sentinel, Instrument: c.opts.Name, Command: cmd, Err: err}
}

func (c *TCPClient) encode(s string) (string, error) {
	if c.opts.Encoding == EncodingLatin1 {
		return charmap.ISO8859_1.NewEncoder().String(s)
	}
	return s, nil
}

func (c *TCPClient) decode(s string) (string, error) {
	if c.opts.Encoding == EncodingLatin1 {
		return charmap.ISO8859_1.NewDecoder().String(s)
	}
	return s, nil
}

func (c *TCPClient) backoffFor(attempt int) time.Duration {
	wait := c.opts.Backoff * time.Duration(1<<attempt)
	if wait > c.opts.MaxBackoff {
		wait = c.opts.MaxBackoff
	}
	jitter := time.Duration(c.randInt63n(int64(wait/5 + 1)))
	return wait + jitter
}

func (c *TCPClient) randInt63n(n int64) int64 {
	c.rndMu.Lock()
	defer c.rndMu.Unlock()
	return c.rnd.Int63n(n)
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
