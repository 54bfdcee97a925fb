package iobuf_test

import (
	"bytes"
	"testing"

	"github.com/momentics/netloop/iobuf"
)

func TestAppendGrowsAndPreservesData(t *testing.T) {
	b := iobuf.New()
	if _, err := b.Append([]byte("hello")); err != nil {
		t.Fatal(err)
	}
	if _, err := b.Append([]byte(" world")); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(b.Bytes(), []byte("hello world")) {
		t.Fatalf("unexpected contents: %q", b.Bytes())
	}
	if b.Len() > b.Cap() {
		t.Fatalf("length %d exceeds capacity %d", b.Len(), b.Cap())
	}
}

func TestRemoveHeadPreservesSuffix(t *testing.T) {
	b := iobuf.New()
	src := []byte("0123456789")
	b.Append(src)
	b.RemoveHead(3)
	if !bytes.Equal(b.Bytes(), src[3:]) {
		t.Fatalf("got %q, want %q", b.Bytes(), src[3:])
	}
}

func TestRemoveHeadZeroIsNoop(t *testing.T) {
	b := iobuf.New()
	b.Append([]byte("abc"))
	b.RemoveHead(0)
	if !bytes.Equal(b.Bytes(), []byte("abc")) {
		t.Fatalf("got %q", b.Bytes())
	}
}

func TestRemoveHeadFullEmptiesBuffer(t *testing.T) {
	b := iobuf.New()
	b.Append([]byte("abc"))
	capBefore := b.Cap()
	b.RemoveHead(3)
	if b.Len() != 0 {
		t.Fatalf("expected empty buffer, got len %d", b.Len())
	}
	if b.Cap() != capBefore {
		t.Fatalf("capacity should be retained across RemoveHead, got %d want %d", b.Cap(), capBefore)
	}
}

func TestReserveGrowsGeometrically(t *testing.T) {
	b := iobuf.New()
	b.Reserve(10)
	if b.Cap() < 10 {
		t.Fatalf("cap %d less than reserved 10", b.Cap())
	}
	firstCap := b.Cap()
	b.Append(make([]byte, firstCap))
	// Appending one more byte must at least double capacity, not just bump it.
	b.Append([]byte{1})
	if b.Cap() < firstCap*2 {
		t.Fatalf("expected geometric growth, got cap %d from %d", b.Cap(), firstCap)
	}
}

func TestTailAndCommit(t *testing.T) {
	b := iobuf.New()
	b.Reserve(16)
	tail := b.Tail()
	n := copy(tail, []byte("xyz"))
	b.Commit(n)
	if !bytes.Equal(b.Bytes(), []byte("xyz")) {
		t.Fatalf("got %q", b.Bytes())
	}
}

func TestRemoveHeadPanicsOnOutOfRange(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for RemoveHead(n) with n > length")
		}
	}()
	b := iobuf.New()
	b.Append([]byte("ab"))
	b.RemoveHead(3)
}
