package server

import (
	"context"
	"crypto/subtle"
	"io"
	"net"
	"sync"

	"github.com/google/uuid"

	"github.com/kartikbazzad/bunstore/internal/logger"
	"github.com/kartikbazzad/bunstore/storage"
	"github.com/kartikbazzad/bunstore/wire"
)

// TCPServer accepts wire-framed connections and dispatches each envelope
// to the Engine. One goroutine per connection, tracked by a WaitGroup,
// with a quit channel for a graceful Stop that lets in-flight
// connections drain.
type TCPServer struct {
	addr   string
	engine *Engine
	auth   AuthChecker

	// conns bounds the number of simultaneously active connections; a
	// nil channel means unbounded. Acquired in acceptLoop before the
	// per-connection goroutine is spawned, released when it returns.
	conns chan struct{}

	ln   net.Listener
	wg   sync.WaitGroup
	quit chan struct{}
}

// AuthChecker validates the credential carried by an AuthenticationRequest.
// It is the narrow seam the core exposes to whatever credential check a
// deployment wants; a nil AuthChecker disables authentication entirely.
type AuthChecker interface {
	Check(masterPassword string) bool
}

// staticPasswordAuth is the simplest AuthChecker: a single configured
// master password, constant-time compared so a failed check's timing
// doesn't leak how many leading bytes matched.
type staticPasswordAuth struct{ password string }

func NewStaticPasswordAuth(password string) AuthChecker {
	return staticPasswordAuth{password: password}
}

func (a staticPasswordAuth) Check(candidate string) bool {
	return subtle.ConstantTimeCompare([]byte(a.password), []byte(candidate)) == 1
}

// NewTCPServer builds a server that dispatches to engine. If auth is
// non-nil, every connection must send a successful
// Authentication message before any Command/BulkOperation is accepted.
// maxConns bounds simultaneously active connections; <= 0 means
// unbounded.
func NewTCPServer(addr string, engine *Engine, auth AuthChecker, maxConns int) *TCPServer {
	s := &TCPServer{addr: addr, engine: engine, auth: auth, quit: make(chan struct{})}
	if maxConns > 0 {
		s.conns = make(chan struct{}, maxConns)
	}
	return s
}

// Start begins listening and accepting connections in the background.
func (s *TCPServer) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.ln = ln
	logger.Info("bunstore tcp server listening", "addr", s.addr)

	s.wg.Add(1)
	go s.acceptLoop()
	return nil
}

// Stop closes the listener and waits for every in-flight connection
// goroutine to return.
func (s *TCPServer) Stop() error {
	close(s.quit)
	if s.ln != nil {
		s.ln.Close()
	}
	s.wg.Wait()
	return nil
}

func (s *TCPServer) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			select {
			case <-s.quit:
				return
			default:
				logger.Warn("accept error", "error", err)
				continue
			}
		}

		if s.conns != nil {
			select {
			case s.conns <- struct{}{}:
			case <-s.quit:
				conn.Close()
				continue
			}
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if s.conns != nil {
				defer func() { <-s.conns }()
			}
			s.handleConnection(conn)
		}()
	}
}

// session is per-connection state; it is never shared across connections.
type session struct {
	id            string
	authenticated bool
}

func (s *TCPServer) handleConnection(conn net.Conn) {
	defer conn.Close()
	sess := &session{id: uuid.NewString(), authenticated: s.auth == nil}
	ctx := logger.WithConnID(context.Background(), sess.id)
	log := logger.FromContext(ctx)

	for {
		env, err := wire.ReadEnvelope(conn)
		if err != nil {
			if err != io.EOF {
				log.Warn("read envelope failed", "error", err)
			}
			return
		}

		switch env.Header.Type {
		case wire.MessageHandshake:
			s.handleHandshake(conn, env)
		case wire.MessagePing:
			wire.WriteMessage(conn, wire.MessagePong, env.Header.CorrID, nil)
		case wire.MessageAuthentication:
			s.handleAuth(conn, env, sess)
		case wire.MessageCommand:
			s.handleCommand(ctx, conn, env, sess)
		case wire.MessageBulkOperation:
			s.handleBulk(ctx, conn, env, sess)
		default:
			s.sendError(conn, env.Header.CorrID, storage.ErrUnsupported("unknown message type "+env.Header.Type.String()))
		}
	}
}

func (s *TCPServer) handleHandshake(conn net.Conn, env *wire.Envelope) {
	var req wire.HandshakeRequest
	if err := env.Decode(&req); err != nil {
		s.sendError(conn, env.Header.CorrID, err)
		return
	}
	wire.WriteMessage(conn, wire.MessageHandshake, env.Header.CorrID, wire.HandshakeResponse{
		ProtocolVersion: req.ProtocolVersion,
		ServerName:      "bunstore",
	})
}

func (s *TCPServer) handleAuth(conn net.Conn, env *wire.Envelope, sess *session) {
	var req wire.AuthenticationRequest
	if err := env.Decode(&req); err != nil {
		s.sendError(conn, env.Header.CorrID, err)
		return
	}
	ok := s.auth == nil || s.auth.Check(req.MasterPassword)
	sess.authenticated = ok
	wire.WriteMessage(conn, wire.MessageAuthentication, env.Header.CorrID, wire.AuthenticationResponse{Authenticated: ok})
}

func (s *TCPServer) handleCommand(ctx context.Context, conn net.Conn, env *wire.Envelope, sess *session) {
	if !sess.authenticated {
		s.sendError(conn, env.Header.CorrID, storage.ErrAuthFailed("authentication required"))
		return
	}
	if err := wire.ValidateCommand(env.Payload); err != nil {
		s.sendError(conn, env.Header.CorrID, err)
		return
	}
	var cmd wire.Command
	if err := env.Decode(&cmd); err != nil {
		s.sendError(conn, env.Header.CorrID, err)
		return
	}
	resp, err := s.engine.Dispatch(ctx, cmd)
	if err != nil {
		s.sendError(conn, env.Header.CorrID, err)
		return
	}
	wire.WriteMessage(conn, wire.MessageResponse, env.Header.CorrID, resp)
}

func (s *TCPServer) handleBulk(ctx context.Context, conn net.Conn, env *wire.Envelope, sess *session) {
	if !sess.authenticated {
		s.sendError(conn, env.Header.CorrID, storage.ErrAuthFailed("authentication required"))
		return
	}
	if err := wire.ValidateBulkRequest(env.Payload); err != nil {
		s.sendError(conn, env.Header.CorrID, err)
		return
	}
	var req wire.BulkRequest
	if err := env.Decode(&req); err != nil {
		s.sendError(conn, env.Header.CorrID, err)
		return
	}
	resp := s.engine.RunBulk(ctx, req)
	wire.WriteMessage(conn, wire.MessageResponse, env.Header.CorrID, resp)
}

func (s *TCPServer) sendError(w io.Writer, corrID uuid.UUID, err error) {
	wire.WriteMessage(w, wire.MessageError, corrID, wire.ErrorFrom(err))
}
