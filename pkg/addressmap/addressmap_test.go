package addressmap_test

import (
	"testing"

	"github.com/cuemby/s3block/pkg/addressmap"
)

const objSize = 16

func TestKey(t *testing.T) {
	got := addressmap.Key("disk", 5)
	want := "disk/0000000000000005"
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestBlockOf(t *testing.T) {
	b, o := addressmap.BlockOf(80, objSize)
	if b != 5 || o != 0 {
		t.Fatalf("got block=%d off=%d want block=5 off=0", b, o)
	}
	b, o = addressmap.BlockOf(86, objSize)
	if b != 5 || o != 6 {
		t.Fatalf("got block=%d off=%d want block=5 off=6", b, o)
	}
}

func TestMapAlignedMultiBlock(t *testing.T) {
	span := addressmap.Map(0, 64, objSize)
	if span.Head != nil || span.Tail != nil {
		t.Fatalf("expected no head/tail fragments, got %+v", span)
	}
	if len(span.Body) != 4 {
		t.Fatalf("expected 4 body blocks, got %d", len(span.Body))
	}
	for i, f := range span.Body {
		if f.Block != int64(i) || !f.Full || f.Length != objSize {
			t.Fatalf("body[%d] = %+v unexpected", i, f)
		}
	}
}

func TestMapContainedUnaligned(t *testing.T) {
	// write of 4 bytes at offset 6 stays within block 0
	span := addressmap.Map(6, 4, objSize)
	if span.Head == nil || span.Tail != nil || len(span.Body) != 0 {
		t.Fatalf("expected single head-only fragment, got %+v", span)
	}
	if span.Head.Block != 0 || span.Head.BlockOffset != 6 || span.Head.Length != 4 {
		t.Fatalf("unexpected head fragment %+v", span.Head)
	}
}

func TestMapHeadAndTailUnaligned(t *testing.T) {
	// trim(n=32, off=8): spans bytes [8,40) -> block0 head [8,16), block1 full, block2 tail [0,8)
	span := addressmap.Map(8, 32, objSize)
	if span.Head == nil || span.Head.Block != 0 || span.Head.BlockOffset != 8 || span.Head.Length != 8 {
		t.Fatalf("unexpected head %+v", span.Head)
	}
	if span.Tail == nil || span.Tail.Block != 2 || span.Tail.BlockOffset != 0 || span.Tail.Length != 8 {
		t.Fatalf("unexpected tail %+v", span.Tail)
	}
	if len(span.Body) != 1 || span.Body[0].Block != 1 {
		t.Fatalf("expected single body block 1, got %+v", span.Body)
	}
}

func TestMapZeroLength(t *testing.T) {
	span := addressmap.Map(10, 0, objSize)
	if span.Head != nil || span.Tail != nil || len(span.Body) != 0 {
		t.Fatalf("expected empty span for n=0, got %+v", span)
	}
}

func TestMapSingleByteAligned(t *testing.T) {
	span := addressmap.Map(0, 1, objSize)
	if span.Head == nil || span.Head.Length != 1 {
		t.Fatalf("expected single-byte head fragment, got %+v", span)
	}
}

func TestMapBlockMinusOneByte(t *testing.T) {
	span := addressmap.Map(0, objSize-1, objSize)
	if span.Head == nil || span.Head.Length != objSize-1 || !((span.Head.Full) == false) {
		t.Fatalf("expected unaligned single-block fragment, got %+v", span)
	}
}
