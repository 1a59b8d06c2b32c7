/*
Package log provides structured logging via zerolog.

# Usage

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true, Output: os.Stdout})
	log.Info("s3blockd starting")

	sessLog := log.WithSession(sess.ID)
	sessLog.Info().Str("key", key).Msg("block read")

Context loggers:

  - WithSession(id): tags all logs with the NBD session ID
  - WithKey(key): tags all logs with the object key being operated on
  - WithOp(op): tags all logs with the operation name (read/write/trim/zero)

These compose: a translator call can log through
log.WithSession(id).With().Str("op", "write").Logger() to carry both
fields without re-deriving the session logger each time.

# Levels

Debug is for per-request tracing (block offsets, key computation).
Info covers session open/close and server lifecycle. Warn covers
unsupported wire commands and transient transport errors that the
session facade reports to the host as timeouts. Error covers object-store failures and
protocol violations. Fatal exits the process and is only used for
configuration failures at startup.
*/
package log
