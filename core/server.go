package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"github.com/rs/zerolog"
	"golang.org/x/net/netutil"

	"github.com/searchktools/mini-server/core/http"
	"github.com/searchktools/mini-server/core/observability"
	"github.com/searchktools/mini-server/core/pools"
)

// Server accepts connections and hands each one to the worker pool as a
// single job that loops parse -> handle -> respond until the client goes
// away or asks to close.
//
// A request that fails to parse never reaches the handler. The client gets
// a 404 carrying the parse error and "Connection: close", and the
// connection is dropped. Handler failures are answered the same way.
type Server struct {
	handler http.HandlerFunc
	pool    *pools.WorkerPool
	bufs    *pools.BufioPool
	logger  zerolog.Logger
	metrics *observability.Metrics

	readTimeout  time.Duration
	writeTimeout time.Duration
	maxConns     int

	conns *xsync.MapOf[net.Conn, *connState]

	mu         sync.Mutex
	listener   net.Listener
	serving    sync.WaitGroup
	inShutdown atomic.Bool

	// Statistics
	stats struct {
		accepted        atomic.Uint64
		served          atomic.Uint64
		parseFailures   atomic.Uint64
		handlerFailures atomic.Uint64
		writeFailures   atomic.Uint64
	}
}

type connState struct {
	since time.Time

	mu sync.Mutex
	// idle is set while the connection waits for the first byte of its
	// next request.
	idle  bool
	woken bool
}

// setIdle records the idle flag and reports whether Shutdown woke the
// connection since the flag was last set.
func (st *connState) setIdle(idle bool) (woken bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	woken, st.woken = st.woken, false
	st.idle = idle
	return woken
}

// wake interrupts a read that is waiting for a new request. Connections in
// the middle of a request are left alone.
func (st *connState) wake(conn net.Conn) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.idle {
		st.woken = true
		conn.SetReadDeadline(time.Now())
	}
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithLogger sets the server logger.
func WithLogger(l zerolog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = l
	}
}

// WithMetrics records connection and parse metrics on m.
func WithMetrics(m *observability.Metrics) ServerOption {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithTimeouts bounds each request read and each response write. Zero
// disables the bound.
func WithTimeouts(read, write time.Duration) ServerOption {
	return func(s *Server) {
		s.readTimeout = read
		s.writeTimeout = write
	}
}

// WithMaxConns caps the number of connections accepted but not yet
// closed. Zero means no cap.
func WithMaxConns(n int) ServerOption {
	return func(s *Server) {
		s.maxConns = n
	}
}

// WithBufioPool shares reader and writer buffers with other servers.
func WithBufioPool(bp *pools.BufioPool) ServerOption {
	return func(s *Server) {
		s.bufs = bp
	}
}

// NewServer creates a server that runs handler on pool. The server owns
// pool from here on: Shutdown closes it.
func NewServer(handler http.HandlerFunc, pool *pools.WorkerPool, opts ...ServerOption) *Server {
	s := &Server{
		handler: handler,
		pool:    pool,
		logger:  zerolog.Nop(),
		conns:   xsync.NewMapOf[net.Conn, *connState](),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.bufs == nil {
		s.bufs = pools.NewBufioPool(pools.DefaultReaderSize, pools.DefaultWriterSize)
	}
	return s
}

// Listen opens a TCP listener on addr, applying the connection cap.
func (s *Server) Listen(ctx context.Context, addr string) (net.Listener, error) {
	lc := net.ListenConfig{Control: controlSocket}
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	if s.maxConns > 0 {
		ln = netutil.LimitListener(ln, s.maxConns)
	}
	return ln, nil
}

// ListenAndServe listens on addr and serves until ctx is done or Shutdown
// is called.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := s.Listen(ctx, addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is done or Shutdown is called,
// then returns ErrServerClosed. ln is closed on return.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.mu.Lock()
	if s.inShutdown.Load() {
		s.mu.Unlock()
		ln.Close()
		return ErrServerClosed
	}
	s.listener = ln
	s.serving.Add(1)
	s.mu.Unlock()
	defer s.serving.Done()
	defer ln.Close()

	stop := context.AfterFunc(ctx, func() { ln.Close() })
	defer stop()

	s.logger.Info().Str("addr", ln.Addr().String()).Int("workers", s.pool.Size()).Msg("server listening")

	var backoff time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.inShutdown.Load() || ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return ErrServerClosed
			}
			if backoff == 0 {
				backoff = 5 * time.Millisecond
			} else if backoff *= 2; backoff > time.Second {
				backoff = time.Second
			}
			s.logger.Error().Err(err).Dur("retry_in", backoff).Msg("accept failed")
			time.Sleep(backoff)
			continue
		}
		backoff = 0

		if !s.dispatch(ctx, conn, s.track(conn)) {
			return ErrServerClosed
		}
	}
}

// dispatch hands conn to the pool. A full queue is retried until room
// frees up or the server stops; the connection is then dropped and false
// returned.
func (s *Server) dispatch(ctx context.Context, conn net.Conn, state *connState) bool {
	job := func() { s.serveConn(conn, state) }

	wait := time.Millisecond
	for {
		err := s.pool.TrySubmit(job)
		if err == nil {
			return true
		}
		if !errors.Is(err, pools.ErrQueueFull) || s.inShutdown.Load() || ctx.Err() != nil {
			s.untrack(conn)
			return false
		}
		time.Sleep(wait)
		if wait < 50*time.Millisecond {
			wait *= 2
		}
	}
}

// Shutdown stops accepting, wakes connections waiting for a new request
// and waits for in-flight requests to finish. When ctx ends first the
// remaining connections are closed and ctx's error is returned.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.inShutdown.Store(true)
	ln := s.listener
	s.mu.Unlock()

	if ln != nil {
		ln.Close()
	}
	s.conns.Range(func(c net.Conn, st *connState) bool {
		st.wake(c)
		return true
	})

	served := make(chan struct{})
	go func() {
		s.serving.Wait()
		close(served)
	}()
	select {
	case <-served:
	case <-ctx.Done():
		s.pool.Close()
		s.closeConns()
		return ctx.Err()
	}

	if err := s.pool.Shutdown(ctx); err != nil {
		s.closeConns()
		return err
	}
	return nil
}

func (s *Server) closeConns() {
	s.conns.Range(func(c net.Conn, _ *connState) bool {
		c.Close()
		return true
	})
}

func (s *Server) track(conn net.Conn) *connState {
	st := &connState{since: time.Now()}
	s.stats.accepted.Add(1)
	s.conns.Store(conn, st)
	s.metrics.ConnOpened(context.Background())
	return st
}

func (s *Server) untrack(conn net.Conn) {
	conn.Close()
	if _, ok := s.conns.LoadAndDelete(conn); ok {
		s.metrics.ConnClosed(context.Background())
	}
}

// serveConn is the job body for one connection.
func (s *Server) serveConn(conn net.Conn, state *connState) {
	defer s.untrack(conn)

	br := s.bufs.GetReader(conn)
	defer s.bufs.PutReader(br)
	bw := s.bufs.GetWriter(conn)
	defer s.bufs.PutWriter(bw)

	log := s.logger.With().Str("remote", conn.RemoteAddr().String()).Logger()

	for {
		var deadline time.Time
		if s.readTimeout > 0 {
			deadline = time.Now().Add(s.readTimeout)
		}
		conn.SetReadDeadline(deadline)

		// Shutdown flags before waking idle conns, so one of the two sides
		// always sees the other.
		state.setIdle(true)
		if s.inShutdown.Load() {
			return
		}
		_, err := br.Peek(1)
		if state.setIdle(false) && err == nil {
			// Woken just as a request began; let it finish.
			conn.SetReadDeadline(deadline)
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return
			}
			err = &http.ParseError{Kind: http.KindReadFailed, Message: "Failed to read request", Err: err}
			if res := s.parseFailure(log, err); res != nil {
				s.write(log, conn, bw, res)
			}
			return
		}

		req, err := http.ReadRequest(br)
		if err != nil {
			if res := s.parseFailure(log, err); res != nil {
				s.write(log, conn, bw, res)
			}
			return
		}

		res, closeAfter := s.respond(log, req)
		if !s.write(log, conn, bw, res) {
			return
		}
		s.stats.served.Add(1)

		if closeAfter {
			return
		}
	}
}

// parseFailure classifies a read error and returns the error response to
// send, or nil when the connection should just be closed.
func (s *Server) parseFailure(log zerolog.Logger, err error) *http.Response {
	if errors.Is(err, io.EOF) {
		return nil
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		log.Debug().Err(err).Msg("read timed out")
		return nil
	}
	if errors.Is(err, net.ErrClosed) {
		return nil
	}

	kind := "unknown"
	var perr *http.ParseError
	if errors.As(err, &perr) {
		kind = perr.Kind.String()
	}
	s.stats.parseFailures.Add(1)
	s.metrics.ParseFailed(context.Background(), kind)
	log.Warn().Err(err).Str("kind", kind).Msg("rejecting malformed request")

	return errorResponse(err.Error())
}

// respond runs the handler behind a recover and reports whether the
// connection must close after the response.
func (s *Server) respond(log zerolog.Logger, req *http.Request) (*http.Response, bool) {
	res, err := s.invoke(req)
	if err != nil {
		s.stats.handlerFailures.Add(1)
		log.Error().Err(err).Str("method", req.Method.String()).Str("path", req.Path).Msg("handler failed")
		return errorResponse("Request failed"), true
	}
	if req.WantsClose() {
		res.SetHeader(HeaderConnection, "close")
		return res, true
	}
	return res, false
}

func (s *Server) invoke(req *http.Request) (res *http.Response, err error) {
	defer func() {
		if r := recover(); r != nil {
			res, err = nil, fmt.Errorf("handler panic: %v", r)
		}
	}()

	res, err = s.handler(req)
	if err == nil && res == nil {
		err = errNilResponse
	}
	return res, err
}

func (s *Server) write(log zerolog.Logger, conn net.Conn, bw io.Writer, res *http.Response) bool {
	if s.writeTimeout > 0 {
		conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	}
	if err := http.WriteResponse(bw, res); err != nil {
		s.stats.writeFailures.Add(1)
		log.Debug().Err(err).Msg("write failed")
		return false
	}
	return true
}

func errorResponse(msg string) *http.Response {
	return http.NotFound().
		SetHeader(HeaderContentType, "text/plain").
		SetHeader(HeaderConnection, "close").
		SetBodyString(msg)
}
