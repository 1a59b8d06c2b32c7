/*
Package translator implements the block-to-object translation that backs a
virtual disk onto a sparse family of fixed-size objects in a remote bucket.

# Architecture

Every operation decomposes the requested byte range into an address-map
span, then drives the Object Store Client against the resulting
fragments, serializing per-object access through a shared Key-Lock
Registry:

	┌─────────────────────── BLOCK TRANSLATOR ───────────────────────┐
	│                                                                  │
	│   virtual offset, length                                        │
	│          │                                                       │
	│          ▼                                                       │
	│   ┌────────────────────────────┐                                │
	│   │        Address Map          │  off,n -> head / body* / tail  │
	│   └──────────────┬──────────────┘                                │
	│                  │                                               │
	│     ┌────────────┼─────────────┐                                │
	│     ▼             ▼             ▼                                │
	│  head frag    body blocks    tail frag                          │
	│     │             │             │                                │
	│     ▼             ▼             ▼                                │
	│   RMW          direct put      RMW                               │
	│ (lock, get,   (lock, put,    (lock, get,                        │
	│  splice, put)  release)       splice, put)                       │
	│     │             │             │                                │
	│     └────────────┬┴─────────────┘                                │
	│                  ▼                                               │
	│         Key-Lock Registry (one holder per block key)             │
	│                  │                                               │
	│                  ▼                                               │
	│           Object Store Client                                    │
	│      get / put / delete_many / list / head                      │
	└───────────────────────────────────────────────────────────────┘

Trim and the zero-with-trim path skip the RMW step entirely: they resolve
the fully-covered block range and ask the Object Store Client's list to
enumerate which of those blocks actually exist before batching deletes,
since the on-disk set is sparse and most of the range is typically holes
already.

# Single-object mode

When the Translator is constructed with Writable=false, Read issues one
ranged get against the single configured key and every mutating method
returns ErrReadOnly. This mode exists to present a read-only view of a
pre-existing object as a block device without requiring a size or
object-size configuration.
*/
package translator
