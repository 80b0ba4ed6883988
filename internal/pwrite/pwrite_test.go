package pwrite

import (
	"bytes"
	"errors"
	"io"
	"testing"
)

func TestWriteAndBytes(t *testing.T) {
	var b Buffer
	for _, chunk := range []string{"hello", " ", "world"} {
		if _, err := b.Write([]byte(chunk)); err != nil {
			t.Fatal(err)
		}
	}
	if got := string(b.Bytes()); got != "hello world" {
		t.Fatalf("Bytes = %q", got)
	}
	if b.Len() != 11 {
		t.Fatalf("Len = %d", b.Len())
	}
}

func TestWriteAtPatchesInPlace(t *testing.T) {
	var b Buffer
	b.Write(bytes.Repeat([]byte{0}, 16))
	if _, err := b.WriteAt([]byte{0xde, 0xad}, 4); err != nil {
		t.Fatal(err)
	}
	if b.Bytes()[4] != 0xde || b.Bytes()[5] != 0xad {
		t.Fatalf("patch not applied: % x", b.Bytes())
	}
	if b.Len() != 16 {
		t.Fatalf("Len changed to %d", b.Len())
	}
}

func TestWriteAtCannotExtend(t *testing.T) {
	var b Buffer
	b.Write([]byte("abcd"))
	if _, err := b.WriteAt([]byte("xy"), 3); !errors.Is(err, ErrWriteBeyondEnd) {
		t.Fatalf("err = %v, want ErrWriteBeyondEnd", err)
	}
}

func TestSeekOverwrite(t *testing.T) {
	var b Buffer
	b.Write([]byte("0123456789"))
	if _, err := b.Seek(2, io.SeekStart); err != nil {
		t.Fatal(err)
	}
	b.Write([]byte("XY"))
	if got := string(b.Bytes()); got != "01XY456789" {
		t.Fatalf("Bytes = %q", got)
	}
	// Seeking past the end then writing extends the buffer.
	if _, err := b.Seek(0, io.SeekEnd); err != nil {
		t.Fatal(err)
	}
	b.Write([]byte("!"))
	if got := b.Len(); got != 11 {
		t.Fatalf("Len = %d", got)
	}
}

func TestReset(t *testing.T) {
	var b Buffer
	b.Write(bytes.Repeat([]byte{1}, 100))
	b.Reset()
	if b.Len() != 0 {
		t.Fatalf("Len after Reset = %d", b.Len())
	}
	b.Write([]byte("new"))
	if got := string(b.Bytes()); got != "new" {
		t.Fatalf("Bytes = %q", got)
	}
}
