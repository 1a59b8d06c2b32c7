// Package translator implements the block-to-object translation algorithms:
// read, write, zero, trim, flush, and size discovery, over the Address Map,
// the Key-Lock Registry, and an Object Store Client. The Translator itself
// holds no mutable state beyond its fixed configuration; all per-call state
// lives on the call stack.
package translator

import (
	"context"
	"errors"
	"fmt"

	"github.com/cuemby/s3block/pkg/addressmap"
	"github.com/cuemby/s3block/pkg/keylock"
	"github.com/cuemby/s3block/pkg/log"
	"github.com/cuemby/s3block/pkg/metrics"
	"github.com/cuemby/s3block/pkg/objectstore"
)

// ErrReadOnly is returned by Write, Zero, and Trim in single-object mode,
// where the virtual disk is backed by one pre-existing object.
var ErrReadOnly = errors.New("translator: disk is read-only (single-object mode)")

// AssertionError indicates a logic bug, not a backend condition: a ranged
// get returned a body of the wrong length. It is never translated to a
// host timeout.
type AssertionError struct {
	msg string
}

func (e *AssertionError) Error() string { return "translator: assertion violated: " + e.msg }

func assertionf(format string, args ...any) *AssertionError {
	return &AssertionError{msg: fmt.Sprintf(format, args...)}
}

// BatchDeleteError wraps the per-key errors returned by a delete_many call
// that is not fully successful. It is fatal for the enclosing trim/zero
// operation.
type BatchDeleteError struct {
	Failures []objectstore.DeleteResult
}

func (e *BatchDeleteError) Error() string {
	return fmt.Sprintf("translator: batch delete failed for %d of the requested keys", len(e.Failures))
}

// Config is the fixed, immutable configuration a Translator operates
// under, resolved once at session-open time.
type Config struct {
	// KeyPrefix is the object-key prefix in multi-object mode, or the
	// exact single-object key in single-object mode.
	KeyPrefix string
	// ObjectSize is the per-block size in bytes. Unused in single-object
	// mode.
	ObjectSize int64
	// Writable is true in multi-object mode, false in single-object
	// read-only mode.
	Writable bool
	// DevSize is the virtual disk size in bytes in multi-object mode. In
	// single-object mode it is zero; Size discovers it from the backend.
	DevSize int64
}

// Translator implements the block-device algorithms over a Client.
type Translator struct {
	cfg    Config
	client objectstore.Client
	locks  *keylock.Registry
}

// New constructs a Translator over client, sharing locks across every
// Translator bound to the same underlying bucket of objects.
func New(cfg Config, client objectstore.Client, locks *keylock.Registry) *Translator {
	return &Translator{cfg: cfg, client: client, locks: locks}
}

func (t *Translator) key(block int64) string {
	return addressmap.Key(t.cfg.KeyPrefix, block)
}

// Read fills buf with the bytes of the virtual disk starting at off.
func (t *Translator) Read(ctx context.Context, buf []byte, off int64) error {
	n := int64(len(buf))
	if n == 0 {
		return nil
	}

	if !t.cfg.Writable {
		body, err := t.client.Get(ctx, t.cfg.KeyPrefix, &objectstore.Range{Start: off, End: off + n - 1})
		if err != nil {
			return fmt.Errorf("translator: read: %w", err)
		}
		if int64(len(body)) != n {
			return assertionf("single-object read returned %d bytes, want %d", len(body), n)
		}
		copy(buf, body)
		return nil
	}

	span := addressmap.Map(off, n, t.cfg.ObjectSize)
	pos := int64(0)

	readFragment := func(frag addressmap.Fragment) error {
		key := t.key(frag.Block)
		var rng *objectstore.Range
		if !frag.Full {
			rng = &objectstore.Range{Start: frag.BlockOffset, End: frag.BlockOffset + frag.Length - 1}
		}
		body, err := t.client.Get(ctx, key, rng)
		if errors.Is(err, objectstore.ErrNoSuchKey) {
			for i := int64(0); i < frag.Length; i++ {
				buf[pos+i] = 0
			}
			return nil
		}
		if err != nil {
			return fmt.Errorf("translator: read block %d: %w", frag.Block, err)
		}
		if int64(len(body)) != frag.Length {
			return assertionf("get on block %d returned %d bytes, want %d", frag.Block, len(body), frag.Length)
		}
		copy(buf[pos:pos+frag.Length], body)
		return nil
	}

	if span.Head != nil {
		if err := readFragment(*span.Head); err != nil {
			return err
		}
		pos += span.Head.Length
	}
	for _, frag := range span.Body {
		if err := readFragment(frag); err != nil {
			return err
		}
		pos += frag.Length
	}
	if span.Tail != nil {
		if err := readFragment(*span.Tail); err != nil {
			return err
		}
		pos += span.Tail.Length
	}

	if pos != n {
		return assertionf("read assembled %d bytes, want %d", pos, n)
	}
	return nil
}

// Write applies buf to the virtual disk starting at off.
func (t *Translator) Write(ctx context.Context, buf []byte, off int64) error {
	if !t.cfg.Writable {
		return ErrReadOnly
	}
	n := int64(len(buf))
	if n == 0 {
		return nil
	}

	span := addressmap.Map(off, n, t.cfg.ObjectSize)

	// Contained-unaligned case: the whole span lies inside one block and
	// does not cover it fully.
	if span.Head != nil && span.Tail == nil && len(span.Body) == 0 {
		return t.writeContained(ctx, *span.Head, buf)
	}

	pos := int64(0)
	if span.Head != nil {
		if err := t.writeHead(ctx, *span.Head, buf[pos:pos+span.Head.Length]); err != nil {
			return err
		}
		pos += span.Head.Length
	}
	for _, frag := range span.Body {
		key := t.key(frag.Block)
		chunk := buf[pos : pos+frag.Length]
		if err := t.locks.WithLock(key, func() error {
			return t.client.Put(ctx, key, chunk)
		}); err != nil {
			return fmt.Errorf("translator: write body block %d: %w", frag.Block, err)
		}
		pos += frag.Length
	}
	if span.Tail != nil {
		if err := t.writeTail(ctx, *span.Tail, buf[pos:pos+span.Tail.Length]); err != nil {
			return err
		}
		pos += span.Tail.Length
	}
	return nil
}

func (t *Translator) writeContained(ctx context.Context, frag addressmap.Fragment, buf []byte) error {
	key := t.key(frag.Block)
	return t.locks.WithLock(key, func() error {
		full, err := t.getOrZeroedBlock(ctx, key)
		if err != nil {
			return fmt.Errorf("translator: RMW get block %d: %w", frag.Block, err)
		}
		copy(full[frag.BlockOffset:frag.BlockOffset+frag.Length], buf)
		if err := t.client.Put(ctx, key, full); err != nil {
			return fmt.Errorf("translator: RMW put block %d: %w", frag.Block, err)
		}
		return nil
	})
}

func (t *Translator) writeHead(ctx context.Context, frag addressmap.Fragment, buf []byte) error {
	key := t.key(frag.Block)
	bo := frag.BlockOffset
	return t.locks.WithLock(key, func() error {
		var prefix []byte
		if bo > 0 {
			body, err := t.client.Get(ctx, key, &objectstore.Range{Start: 0, End: bo - 1})
			if errors.Is(err, objectstore.ErrNoSuchKey) {
				prefix = make([]byte, bo)
			} else if err != nil {
				return fmt.Errorf("translator: head get block %d: %w", frag.Block, err)
			} else {
				if int64(len(body)) != bo {
					return assertionf("head prefix get on block %d returned %d bytes, want %d", frag.Block, len(body), bo)
				}
				prefix = body
			}
		}
		full := make([]byte, 0, t.cfg.ObjectSize)
		full = append(full, prefix...)
		full = append(full, buf...)
		if err := t.client.Put(ctx, key, full); err != nil {
			return fmt.Errorf("translator: head put block %d: %w", frag.Block, err)
		}
		return nil
	})
}

func (t *Translator) writeTail(ctx context.Context, frag addressmap.Fragment, buf []byte) error {
	key := t.key(frag.Block)
	tailLen := frag.Length
	return t.locks.WithLock(key, func() error {
		var suffix []byte
		if tailLen < t.cfg.ObjectSize {
			body, err := t.client.Get(ctx, key, &objectstore.Range{Start: tailLen, End: t.cfg.ObjectSize - 1})
			if errors.Is(err, objectstore.ErrNoSuchKey) {
				suffix = make([]byte, t.cfg.ObjectSize-tailLen)
			} else if err != nil {
				return fmt.Errorf("translator: tail get block %d: %w", frag.Block, err)
			} else {
				if int64(len(body)) != t.cfg.ObjectSize-tailLen {
					return assertionf("tail suffix get on block %d returned %d bytes, want %d", frag.Block, len(body), t.cfg.ObjectSize-tailLen)
				}
				suffix = body
			}
		}
		full := make([]byte, 0, t.cfg.ObjectSize)
		full = append(full, buf...)
		full = append(full, suffix...)
		if err := t.client.Put(ctx, key, full); err != nil {
			return fmt.Errorf("translator: tail put block %d: %w", frag.Block, err)
		}
		return nil
	})
}

// getOrZeroedBlock fetches the full block at key, returning an all-zero
// buffer of length ObjectSize if the block is a hole.
func (t *Translator) getOrZeroedBlock(ctx context.Context, key string) ([]byte, error) {
	body, err := t.client.Get(ctx, key, nil)
	if errors.Is(err, objectstore.ErrNoSuchKey) {
		return make([]byte, t.cfg.ObjectSize), nil
	}
	if err != nil {
		return nil, err
	}
	if int64(len(body)) != t.cfg.ObjectSize {
		return nil, assertionf("get on %q returned %d bytes, want object-size %d", key, len(body), t.cfg.ObjectSize)
	}
	return body, nil
}

// Zero sets n bytes starting at off to zero. If mayTrim is set, Zero
// delegates to Trim over the same range.
func (t *Translator) Zero(ctx context.Context, off, n int64, mayTrim bool) error {
	if !t.cfg.Writable {
		return ErrReadOnly
	}
	if n == 0 {
		return nil
	}
	if mayTrim {
		return t.Trim(ctx, off, n)
	}

	span := addressmap.Map(off, n, t.cfg.ObjectSize)

	if span.Head != nil && span.Tail == nil && len(span.Body) == 0 {
		return t.Write(ctx, make([]byte, n), off)
	}

	if span.Head != nil {
		zlen := span.Head.Length
		if err := t.Write(ctx, make([]byte, zlen), off); err != nil {
			return err
		}
	}
	if span.Tail != nil {
		tailOff := span.Tail.Block * t.cfg.ObjectSize
		if err := t.Write(ctx, make([]byte, span.Tail.Length), tailOff); err != nil {
			return err
		}
	}
	if len(span.Body) > 0 {
		first := span.Body[0].Block
		last := span.Body[len(span.Body)-1].Block + 1
		if err := t.deleteObjects(ctx, first, last); err != nil {
			return err
		}
	}
	return nil
}

// Trim deallocates the blocks fully contained in [off, off+n).
func (t *Translator) Trim(ctx context.Context, off, n int64) error {
	if !t.cfg.Writable {
		return ErrReadOnly
	}
	if n == 0 {
		return nil
	}

	objSize := t.cfg.ObjectSize
	first := ceilDiv(off, objSize)
	last := (off + n) / objSize
	if first >= last {
		return nil
	}
	return t.deleteObjects(ctx, first, last)
}

func ceilDiv(a, b int64) int64 {
	return (a + b - 1) / b
}

// deleteObjects deletes every present object with a block number in
// [first, last), using list to skip holes and batching deletes at the
// backend's per-call cap.
func (t *Translator) deleteObjects(ctx context.Context, first, last int64) error {
	startAfter := ""
	if first > 0 {
		startAfter = t.key(first - 1)
	}
	lastKey := t.key(last)
	listPrefix := t.cfg.KeyPrefix + "/"

	keys, err := t.client.List(ctx, listPrefix, startAfter)
	if err != nil {
		return fmt.Errorf("translator: list for bulk delete: %w", err)
	}

	var pending []string
	for _, key := range keys {
		if key >= lastKey {
			break
		}
		pending = append(pending, key)
		if len(pending) == maxDeleteBatch {
			if err := t.deleteBatch(ctx, pending); err != nil {
				return err
			}
			pending = pending[:0]
		}
	}
	if len(pending) > 0 {
		return t.deleteBatch(ctx, pending)
	}
	return nil
}

const maxDeleteBatch = 1000

func (t *Translator) deleteBatch(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	results, err := t.client.DeleteMany(ctx, keys)
	if err != nil {
		return fmt.Errorf("translator: delete_many: %w", err)
	}
	var failures []objectstore.DeleteResult
	for _, r := range results {
		if r.Err != nil {
			failures = append(failures, r)
		}
	}
	if len(failures) > 0 {
		return &BatchDeleteError{Failures: failures}
	}
	metrics.ObjectsDeletedTotal.Add(float64(len(keys)))
	log.WithComponent("translator").Debug().Int("count", len(keys)).Msg("deleted batch")
	return nil
}

// Flush is a no-op: every write is acknowledged only after its backing put
// returns, so there is nothing left to flush.
func (t *Translator) Flush(ctx context.Context) error {
	return nil
}

// Size returns the virtual disk size. In multi-object mode this is the
// configured DevSize; in single-object mode it is discovered from the
// backend via head, falling back (when head returns ErrNotImplemented) to
// an unranged get whose body length is taken as the size.
func (t *Translator) Size(ctx context.Context) (int64, error) {
	if t.cfg.Writable {
		return t.cfg.DevSize, nil
	}

	size, err := t.client.Head(ctx, t.cfg.KeyPrefix)
	if err == nil {
		return size, nil
	}
	if !errors.Is(err, objectstore.ErrNotImplemented) {
		return 0, fmt.Errorf("translator: size discovery: %w", err)
	}

	body, err := t.client.Get(ctx, t.cfg.KeyPrefix, nil)
	if err != nil {
		return 0, fmt.Errorf("translator: size discovery fallback: %w", err)
	}
	return int64(len(body)), nil
}
