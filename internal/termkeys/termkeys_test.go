package termkeys

import (
	"bytes"
	"testing"
)

func TestEncodeArrows(t *testing.T) {
	t.Parallel()

	cases := map[Key]string{
		KeyUp:    "\x1b[A",
		KeyDown:  "\x1b[B",
		KeyRight: "\x1b[C",
		KeyLeft:  "\x1b[D",
	}
	for key, want := range cases {
		got, ok := Encode(key)
		if !ok {
			t.Fatalf("Encode(%v) ok = false", key)
		}
		if !bytes.Equal(got, []byte(want)) {
			t.Fatalf("Encode(%v) = %q, want %q", key, got, want)
		}
	}
}

func TestEncodeEnterBackspaceTabEsc(t *testing.T) {
	t.Parallel()

	cases := map[Key]byte{
		KeyEnter:     '\r',
		KeyBackspace: 0x7f,
		KeyTab:       '\t',
		KeyEsc:       0x1b,
	}
	for key, want := range cases {
		got, ok := Encode(key)
		if !ok || len(got) != 1 || got[0] != want {
			t.Fatalf("Encode(%v) = %v, ok=%v, want [%x]", key, got, ok, want)
		}
	}
}

func TestEncodeRuneCtrlFolding(t *testing.T) {
	t.Parallel()

	got := EncodeRune('a', true)
	if !bytes.Equal(got, []byte{1}) {
		t.Fatalf("EncodeRune('a', true) = %v, want [1]", got)
	}

	got = EncodeRune('z', true)
	if !bytes.Equal(got, []byte{26}) {
		t.Fatalf("EncodeRune('z', true) = %v, want [26]", got)
	}
}

func TestEncodeRunePlain(t *testing.T) {
	t.Parallel()

	got := EncodeRune('A', false)
	if !bytes.Equal(got, []byte("A")) {
		t.Fatalf("EncodeRune('A', false) = %q, want %q", got, "A")
	}

	got = EncodeRune('A', true)
	if !bytes.Equal(got, []byte("A")) {
		t.Fatalf("EncodeRune('A', true) = %q, want %q (uppercase not folded)", got, "A")
	}
}

func TestEncodeUnknownKey(t *testing.T) {
	t.Parallel()

	if _, ok := Encode(Key(9999)); ok {
		t.Fatalf("Encode(unknown) ok = true")
	}
}
