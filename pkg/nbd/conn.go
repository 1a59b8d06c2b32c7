package nbd

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"

	"github.com/cuemby/s3block/pkg/log"
	"github.com/cuemby/s3block/pkg/metrics"
	"github.com/cuemby/s3block/pkg/session"
)

// conn holds the per-connection negotiation state. It is a thin wire-codec
// layer: everything it decodes is forwarded to the Session.
type conn struct {
	rw         net.Conn
	exportName string
	size       int64
	caps       session.Capabilities
}

// negotiate runs the fixed-newstyle handshake: server greeting, client
// flags, then a loop of option requests until the client sends
// NBD_OPT_EXPORT_NAME or NBD_OPT_GO, either of which ends negotiation and
// begins the transmission phase.
func (c *conn) negotiate() error {
	if err := binary.Write(c.rw, binary.BigEndian, negotiationMagic); err != nil {
		return err
	}
	if err := binary.Write(c.rw, binary.BigEndian, iHaveOptMagic); err != nil {
		return err
	}
	if err := binary.Write(c.rw, binary.BigEndian, flagFixedNewstyle); err != nil {
		return err
	}

	var clientFlags uint32
	if err := binary.Read(c.rw, binary.BigEndian, &clientFlags); err != nil {
		return fmt.Errorf("nbd: reading client flags: %w", err)
	}

	for {
		var magic uint64
		if err := binary.Read(c.rw, binary.BigEndian, &magic); err != nil {
			return fmt.Errorf("nbd: reading option magic: %w", err)
		}
		if magic != iHaveOptMagic {
			return fmt.Errorf("nbd: unexpected option magic %x", magic)
		}

		var opt, length uint32
		if err := binary.Read(c.rw, binary.BigEndian, &opt); err != nil {
			return err
		}
		if err := binary.Read(c.rw, binary.BigEndian, &length); err != nil {
			return err
		}
		data := make([]byte, length)
		if _, err := io.ReadFull(c.rw, data); err != nil {
			return fmt.Errorf("nbd: reading option payload: %w", err)
		}

		switch opt {
		case optExportName:
			return c.replyExportName()
		case optGo:
			return c.replyGo(data)
		case optAbort:
			c.writeOptionReply(opt, repAck, nil)
			return errors.New("nbd: client aborted negotiation")
		default:
			// NBD_REP_ERR_UNSUP = (1<<31) | 1
			c.writeOptionReply(opt, (1<<31)|1, nil)
		}
	}
}

func (c *conn) transmissionFlags() uint16 {
	flags := transmitHasFlags | transmitMultiConn
	if !c.caps.Writable {
		flags |= transmitReadOnly
	}
	if c.caps.Trim {
		flags |= transmitSendTrim
	}
	if c.caps.Zero {
		flags |= transmitSendWriteZeroes
	}
	if c.caps.FUANative {
		flags |= transmitSendFUA
	}
	flags |= transmitSendFlush
	if !c.caps.NonRotational {
		flags |= transmitRotational
	}
	return flags
}

// replyExportName implements the legacy NBD_OPT_EXPORT_NAME reply: export
// size, transmission flags, and 124 bytes of zero padding.
func (c *conn) replyExportName() error {
	if err := binary.Write(c.rw, binary.BigEndian, uint64(c.size)); err != nil {
		return err
	}
	if err := binary.Write(c.rw, binary.BigEndian, c.transmissionFlags()); err != nil {
		return err
	}
	_, err := c.rw.Write(make([]byte, 124))
	return err
}

// replyGo implements a minimal NBD_OPT_GO: one NBD_INFO_EXPORT reply
// followed by NBD_REP_ACK. Requested info types beyond export size/flags
// are ignored; no name/description info blocks are sent.
func (c *conn) replyGo(data []byte) error {
	if len(data) < 4 {
		return errors.New("nbd: malformed NBD_OPT_GO payload")
	}
	nameLen := binary.BigEndian.Uint32(data[0:4])
	if uint32(len(data)) < 4+nameLen {
		return errors.New("nbd: malformed NBD_OPT_GO payload")
	}

	info := make([]byte, 12)
	binary.BigEndian.PutUint16(info[0:2], 0) // NBD_INFO_EXPORT
	binary.BigEndian.PutUint64(info[2:10], uint64(c.size))
	binary.BigEndian.PutUint16(info[10:12], c.transmissionFlags())
	c.writeOptionReply(optGo, 3, info) // NBD_REP_INFO

	c.writeOptionReply(optGo, repAck, nil)
	return nil
}

func (c *conn) writeOptionReply(opt, repType uint32, data []byte) {
	binary.Write(c.rw, binary.BigEndian, optionReplyMagic)
	binary.Write(c.rw, binary.BigEndian, opt)
	binary.Write(c.rw, binary.BigEndian, repType)
	binary.Write(c.rw, binary.BigEndian, uint32(len(data)))
	if len(data) > 0 {
		c.rw.Write(data)
	}
}

// request is the fixed 28-byte transmission-phase request header.
type request struct {
	Flags  uint16
	Type   uint16
	Handle uint64
	Offset uint64
	Length uint32
}

// serveRequests reads requests until the client disconnects or sends
// NBD_CMD_DISC, dispatching each to sess. Requests are handled one at a
// time per connection (ordering within a connection is preserved) but the
// host may hold many connections open concurrently, satisfying the
// parallel dispatch model.
func (c *conn) serveRequests(ctx context.Context, sess *session.Session) error {
	return c.loop(ctx, sess)
}

func (c *conn) loop(ctx context.Context, sess *session.Session) error {
	for {
		var magic uint32
		if err := binary.Read(c.rw, binary.BigEndian, &magic); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if magic != requestMagic {
			return fmt.Errorf("nbd: bad request magic %x", magic)
		}

		var req request
		if err := binary.Read(c.rw, binary.BigEndian, &req.Flags); err != nil {
			return err
		}
		if err := binary.Read(c.rw, binary.BigEndian, &req.Type); err != nil {
			return err
		}
		if err := binary.Read(c.rw, binary.BigEndian, &req.Handle); err != nil {
			return err
		}
		if err := binary.Read(c.rw, binary.BigEndian, &req.Offset); err != nil {
			return err
		}
		if err := binary.Read(c.rw, binary.BigEndian, &req.Length); err != nil {
			return err
		}

		if req.Type == cmdDisc {
			return nil
		}

		if err := c.handle(ctx, sess, req); err != nil {
			return err
		}
	}
}

func (c *conn) handle(ctx context.Context, sess *session.Session, req request) error {
	switch req.Type {
	case cmdRead:
		timer := metrics.NewTimer()
		buf := make([]byte, req.Length)
		err := sess.Read(ctx, buf, int64(req.Offset))
		timer.ObserveDurationVec(metrics.BlockOpDuration, "read")
		if err != nil {
			metrics.BlockOpsTotal.WithLabelValues("read", "error").Inc()
			return c.writeReply(req.Handle, errCodeFor(err), nil)
		}
		metrics.BlockOpsTotal.WithLabelValues("read", "ok").Inc()
		metrics.BytesTransferred.WithLabelValues("read").Add(float64(len(buf)))
		return c.writeReply(req.Handle, errOK, buf)

	case cmdWrite:
		body := make([]byte, req.Length)
		if _, err := io.ReadFull(c.rw, body); err != nil {
			return err
		}
		timer := metrics.NewTimer()
		err := sess.Write(ctx, body, int64(req.Offset))
		timer.ObserveDurationVec(metrics.BlockOpDuration, "write")
		if err != nil {
			metrics.BlockOpsTotal.WithLabelValues("write", "error").Inc()
			return c.writeReply(req.Handle, errCodeFor(err), nil)
		}
		metrics.BlockOpsTotal.WithLabelValues("write", "ok").Inc()
		metrics.BytesTransferred.WithLabelValues("write").Add(float64(len(body)))
		return c.writeReply(req.Handle, errOK, nil)

	case cmdFlush:
		err := sess.Flush(ctx)
		if err != nil {
			return c.writeReply(req.Handle, errCodeFor(err), nil)
		}
		return c.writeReply(req.Handle, errOK, nil)

	case cmdTrim:
		err := sess.Trim(ctx, int64(req.Offset), int64(req.Length))
		if err != nil {
			metrics.BlockOpsTotal.WithLabelValues("trim", "error").Inc()
			return c.writeReply(req.Handle, errCodeFor(err), nil)
		}
		metrics.BlockOpsTotal.WithLabelValues("trim", "ok").Inc()
		return c.writeReply(req.Handle, errOK, nil)

	case cmdWriteZeroes:
		mayTrim := req.Flags&cmdFlagNoHole == 0
		err := sess.Zero(ctx, int64(req.Offset), int64(req.Length), mayTrim)
		if err != nil {
			metrics.BlockOpsTotal.WithLabelValues("zero", "error").Inc()
			return c.writeReply(req.Handle, errCodeFor(err), nil)
		}
		metrics.BlockOpsTotal.WithLabelValues("zero", "ok").Inc()
		return c.writeReply(req.Handle, errOK, nil)

	default:
		log.Warn(fmt.Sprintf("nbd: unsupported command type %d", req.Type))
		return c.writeReply(req.Handle, errInval, nil)
	}
}

func (c *conn) writeReply(handle uint64, errCode uint32, body []byte) error {
	if err := binary.Write(c.rw, binary.BigEndian, replyMagic); err != nil {
		return err
	}
	if err := binary.Write(c.rw, binary.BigEndian, errCode); err != nil {
		return err
	}
	if err := binary.Write(c.rw, binary.BigEndian, handle); err != nil {
		return err
	}
	if len(body) > 0 {
		_, err := c.rw.Write(body)
		return err
	}
	return nil
}

// errCodeFor maps a session error to an NBD error code. session.ErrTimeout
// becomes EIO, since NBD has no dedicated timeout error code; the host is
// expected to notice the round trip stalled and apply its own timeout
// policy on top.
func errCodeFor(err error) uint32 {
	if errors.Is(err, session.ErrTimeout) {
		return errIO
	}
	return errIO
}
