/*
Package metrics defines and registers the Prometheus metrics exposed by
s3blockd, and the small helpers (Timer, health checker) that feed them.

# Categories

Sessions: SessionsOpenTotal, SessionsActive track NBD connection
lifecycle.

Block operations: BlockOpsTotal (by op, status), BlockOpDuration (by
op), BytesTransferred (by direction) cover the Session Facade's
Read/Write/Trim/Zero/Flush calls.

Object store: ObjectStoreOpsTotal (by verb, status),
ObjectStoreOpDuration (by verb), ObjectsDeletedTotal cover calls made to
the Object Store Client.

Locking: LockWaitDuration, LocksHeld observe contention on the
Key-Lock Registry.

All metrics are registered once at package init against the default
Prometheus registry; Handler returns the promhttp handler for mounting
under /metrics.

# Timer

Timer is a small stopwatch helper (NewTimer, Duration,
ObserveDuration, ObserveDurationVec) used at call sites instead of
hand-rolling time.Since arithmetic against a histogram.
*/
package metrics
