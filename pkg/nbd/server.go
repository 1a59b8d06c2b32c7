// Package nbd implements a minimal NBD (Network Block Device) protocol
// host: the fixed-newstyle negotiation handshake and the transmission-phase
// request loop, dispatching block operations to a Session. The host's
// request dispatch is deliberately thin — every operation it decodes is
// handed straight to the Session Facade, which is where the actual
// block-to-object translation happens.
package nbd

import (
	"context"
	"fmt"
	"net"

	"github.com/cuemby/s3block/pkg/log"
	"github.com/cuemby/s3block/pkg/session"
)

// SessionOpener constructs a new Session for an incoming connection. The
// host calls it once per accepted connection.
type SessionOpener func(ctx context.Context) (*session.Session, error)

// Server accepts NBD connections and serves one Session per connection.
type Server struct {
	exportName string
	opener     SessionOpener
	listener   net.Listener
}

// NewServer constructs a Server. exportName is logged when the server
// starts listening; NBD_OPT_EXPORT_NAME/NBD_OPT_GO negotiation does not
// compare it with the name the client requests, so any requested name is
// served. opener is called once per accepted connection to bind a fresh
// Session.
func NewServer(exportName string, opener SessionOpener) *Server {
	return &Server{exportName: exportName, opener: opener}
}

// Start listens on addr and serves connections until Stop is called or
// Accept returns an error.
func (s *Server) Start(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("nbd: listen: %w", err)
	}
	s.listener = lis

	log.Info(fmt.Sprintf("nbd host listening on %s, export %q", addr, s.exportName))

	for {
		conn, err := lis.Accept()
		if err != nil {
			if s.listener == nil {
				return nil // Stop was called
			}
			return fmt.Errorf("nbd: accept: %w", err)
		}
		go s.serveConn(conn)
	}
}

// Stop closes the listener, causing Start to return.
func (s *Server) Stop() {
	if s.listener != nil {
		lis := s.listener
		s.listener = nil
		lis.Close()
	}
}

func (s *Server) serveConn(nc net.Conn) {
	defer nc.Close()

	ctx := context.Background()
	c := &conn{rw: nc, exportName: s.exportName}

	sess, err := s.opener(ctx)
	if err != nil {
		log.Errorf("nbd: session open failed: %v", err)
		return
	}
	defer sess.Close()

	size, err := sess.Size(ctx)
	if err != nil {
		log.Errorf("nbd: size discovery failed: %v", err)
		return
	}
	c.size = size
	c.caps = sess.Capabilities()

	if err := c.negotiate(); err != nil {
		log.Errorf("nbd: negotiation failed: %v", err)
		return
	}

	if err := c.serveRequests(ctx, sess); err != nil {
		log.WithSession(sess.ID).Debug().Err(err).Msg("connection closed")
	}
}
