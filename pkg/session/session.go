// Package session implements the Session Facade: one handle per host
// connection, binding a Translator to a dedicated object-store client and
// translating transient transport errors into the host's timeout signal.
package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/cuemby/s3block/pkg/config"
	"github.com/cuemby/s3block/pkg/keylock"
	"github.com/cuemby/s3block/pkg/log"
	"github.com/cuemby/s3block/pkg/metrics"
	"github.com/cuemby/s3block/pkg/objectstore"
	"github.com/cuemby/s3block/pkg/translator"
)

// ErrTimeout is the sentinel the facade returns in place of a transient
// transport error, for the host's timeout-class handling.
var ErrTimeout = errors.New("session: operation timed out")

// Capabilities describes the block-device surface advertised to the host.
type Capabilities struct {
	Writable      bool
	Trim          bool
	Zero          bool
	FastZero      bool
	MultiConn     bool
	FUANative     bool
	Caching       bool
	Extents       bool
	NonRotational bool

	MinBlockSize       int64
	PreferredBlockSize int64
	MaxBlockSize       int64
}

// Session is a per-connection handle. It owns one object-store client for
// its lifetime and serves every block operation on the translator bound to
// that client.
type Session struct {
	ID         string
	translator *translator.Translator
	caps       Capabilities
}

// Open constructs a Session from cfg: it resolves credentials, constructs
// a dedicated S3 client, and builds the Translator bound to it. Locks is
// the process-wide Key-Lock Registry, shared across every Session
// operating on the same bucket.
func Open(ctx context.Context, cfg *config.Config, locks *keylock.Registry) (*Session, error) {
	client, err := objectstore.NewS3Client(ctx, objectstore.S3Config{
		AccessKey:    cfg.AccessKey,
		SecretKey:    cfg.SecretKey,
		SessionToken: cfg.SessionToken,
		EndpointURL:  cfg.EndpointURL,
		Bucket:       cfg.Bucket,
	})
	if err != nil {
		return nil, fmt.Errorf("session: open: %w", err)
	}
	return newSession(cfg, client, locks), nil
}

// OpenWithClient builds a Session over an already-constructed Client,
// bypassing credential resolution. It exists for tests that substitute an
// in-memory or otherwise pre-wired Client.
func OpenWithClient(cfg *config.Config, client objectstore.Client, locks *keylock.Registry) *Session {
	return newSession(cfg, client, locks)
}

func newSession(cfg *config.Config, client objectstore.Client, locks *keylock.Registry) *Session {
	writable := cfg.Mode == config.ModeMultiObject

	tcfg := translator.Config{
		KeyPrefix:  cfg.Key,
		ObjectSize: cfg.ObjectSize,
		Writable:   writable,
		DevSize:    cfg.Size,
	}

	caps := Capabilities{
		Writable:      writable,
		Trim:          writable,
		Zero:          writable,
		FastZero:      writable,
		MultiConn:     true,
		FUANative:     true,
		Caching:       false,
		Extents:       false,
		NonRotational: true,
	}
	if writable {
		caps.MinBlockSize = cfg.ObjectSize
		caps.PreferredBlockSize = cfg.ObjectSize
		caps.MaxBlockSize = cfg.ObjectSize
	} else {
		caps.MinBlockSize = 1
		caps.PreferredBlockSize = 512 * 1024
		caps.MaxBlockSize = 1<<32 - 1
	}

	sessionID := uuid.NewString()
	metrics.SessionsOpenTotal.Inc()
	metrics.SessionsActive.Inc()
	log.WithSession(sessionID).Info().Bool("writable", writable).Msg("session opened")

	return &Session{
		ID:         sessionID,
		translator: translator.New(tcfg, client, locks),
		caps:       caps,
	}
}

// Close releases the session's resources. There is nothing to close on
// the current backends, but host connections still call it symmetrically
// with Open.
func (s *Session) Close() {
	metrics.SessionsActive.Dec()
	log.WithSession(s.ID).Info().Msg("session closed")
}

// Capabilities returns the block-device capabilities to advertise to the
// host for this session.
func (s *Session) Capabilities() Capabilities {
	return s.caps
}

// Read fills buf from the virtual disk starting at off.
func (s *Session) Read(ctx context.Context, buf []byte, off int64) error {
	return s.translate("read", s.translator.Read(ctx, buf, off))
}

// Write applies buf to the virtual disk starting at off.
func (s *Session) Write(ctx context.Context, buf []byte, off int64) error {
	return s.translate("write", s.translator.Write(ctx, buf, off))
}

// Zero sets n bytes starting at off to zero.
func (s *Session) Zero(ctx context.Context, off, n int64, mayTrim bool) error {
	return s.translate("zero", s.translator.Zero(ctx, off, n, mayTrim))
}

// Trim deallocates the blocks fully contained in [off, off+n).
func (s *Session) Trim(ctx context.Context, off, n int64) error {
	return s.translate("trim", s.translator.Trim(ctx, off, n))
}

// Flush is a no-op; every write is already durable on return.
func (s *Session) Flush(ctx context.Context) error {
	return s.translate("flush", s.translator.Flush(ctx))
}

// Size returns the virtual disk size in bytes.
func (s *Session) Size(ctx context.Context) (int64, error) {
	size, err := s.translator.Size(ctx)
	return size, s.translate("size", err)
}

// translate maps a transient transport error to ErrTimeout. Every other
// error, including nil, passes through unchanged.
func (s *Session) translate(op string, err error) error {
	if err == nil {
		return nil
	}
	var transient *objectstore.TransientError
	if errors.As(err, &transient) {
		log.WithSession(s.ID).Warn().Str("op", op).Err(err).Msg("transient transport error, reporting timeout to host")
		return ErrTimeout
	}
	return fmt.Errorf("session: %s: %w", op, err)
}
