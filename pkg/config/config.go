// Package config implements the process-wide configuration builder: keys
// accumulate in any order via Set, then Complete validates once and
// returns an immutable Config.
package config

import (
	"fmt"
	"strings"

	"github.com/cuemby/s3block/internal/sizeparse"
)

// Error is a configuration error raised at config-complete time. It is
// always fatal.
type Error struct {
	msg string
}

func (e *Error) Error() string { return "config: " + e.msg }

func errorf(format string, args ...any) *Error {
	return &Error{msg: fmt.Sprintf(format, args...)}
}

// recognizedKeys is the set of canonical (hyphenated) keys; Set accepts
// either the hyphenated or underscore spelling.
var recognizedKeys = map[string]struct{}{
	"access-key":    {},
	"secret-key":    {},
	"session-token": {},
	"endpoint-url":  {},
	"bucket":        {},
	"key":           {},
	"size":          {},
	"object-size":   {},
}

// Builder accumulates configuration keys in any order.
type Builder struct {
	values map[string]string
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{values: make(map[string]string)}
}

// Set records value for key. Key may be spelled with hyphens or
// underscores interchangeably; Set is idempotent for re-entrant callers
// and the last Set for a given key wins. An unrecognized key is a
// configuration error deferred until Complete.
func (b *Builder) Set(key, value string) {
	b.values[canonical(key)] = value
}

func canonical(key string) string {
	return strings.ReplaceAll(strings.ToLower(key), "_", "-")
}

// Mode describes whether the resulting Config is single-object read-only
// or multi-object writable.
type Mode int

const (
	// ModeSingleObject is read-only, backed by one existing object whose
	// length is reported by the backend.
	ModeSingleObject Mode = iota
	// ModeMultiObject is writable, backed by a sparse family of fixed-size
	// objects under a key prefix.
	ModeMultiObject
)

// Config is the immutable, validated configuration.
type Config struct {
	AccessKey    string
	SecretKey    string
	SessionToken string
	EndpointURL  string
	Bucket       string
	Key          string
	Mode         Mode
	// Size is the virtual disk size in bytes. Zero in single-object mode;
	// discovered from the backend at session-open time instead.
	Size int64
	// ObjectSize is the per-block size in bytes. Zero in single-object
	// mode.
	ObjectSize int64
}

// Complete validates the accumulated keys and returns an immutable Config.
// Validation happens exactly once; the Builder may be discarded afterward.
func (b *Builder) Complete() (*Config, error) {
	for key := range b.values {
		if _, ok := recognizedKeys[key]; !ok {
			return nil, errorf("unrecognized key %q", key)
		}
	}

	bucket := b.values["bucket"]
	if bucket == "" {
		return nil, errorf("missing mandatory key %q", "bucket")
	}
	key := b.values["key"]
	if key == "" {
		return nil, errorf("missing mandatory key %q", "key")
	}

	sizeText, hasSize := b.values["size"]
	objSizeText, hasObjSize := b.values["object-size"]

	if hasSize != hasObjSize {
		return nil, errorf("size and object-size must both be present or both absent")
	}

	cfg := &Config{
		AccessKey:    b.values["access-key"],
		SecretKey:    b.values["secret-key"],
		SessionToken: b.values["session-token"],
		EndpointURL:  b.values["endpoint-url"],
		Bucket:       bucket,
		Key:          key,
	}

	if !hasSize {
		cfg.Mode = ModeSingleObject
		return cfg, nil
	}

	size, err := sizeparse.Parse(sizeText)
	if err != nil {
		return nil, errorf("invalid size %q: %v", sizeText, err)
	}
	objSize, err := sizeparse.Parse(objSizeText)
	if err != nil {
		return nil, errorf("invalid object-size %q: %v", objSizeText, err)
	}
	if objSize <= 0 {
		return nil, errorf("object-size must be nonzero, got %d", objSize)
	}
	if size <= 0 {
		return nil, errorf("size must be nonzero, got %d", size)
	}
	if size%objSize != 0 {
		return nil, errorf("size (%d) must be a nonzero multiple of object-size (%d)", size, objSize)
	}

	cfg.Mode = ModeMultiObject
	cfg.Size = size
	cfg.ObjectSize = objSize
	return cfg, nil
}
