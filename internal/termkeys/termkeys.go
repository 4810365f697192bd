// Package termkeys encodes terminal UI key events into the byte sequences a
// shell or agent process expects on its stdin, mirroring the escape
// sequences a real terminal emulator would send.
package termkeys

// Key identifies a non-printable key a TUI client can send.
type Key int

// Recognized non-printable keys.
const (
	KeyEnter Key = iota
	KeyBackspace
	KeyTab
	KeyEsc
	KeyUp
	KeyDown
	KeyRight
	KeyLeft
	KeyHome
	KeyEnd
	KeyPageUp
	KeyPageDown
	KeyDelete
	KeyInsert
	KeyF1
	KeyF2
	KeyF3
	KeyF4
	KeyF5
	KeyF6
	KeyF7
	KeyF8
	KeyF9
	KeyF10
	KeyF11
	KeyF12
)

var sequences = map[Key][]byte{
	KeyEnter:     {'\r'},
	KeyBackspace: {0x7f},
	KeyTab:       {'\t'},
	KeyEsc:       {0x1b},
	KeyUp:        []byte("\x1b[A"),
	KeyDown:      []byte("\x1b[B"),
	KeyRight:     []byte("\x1b[C"),
	KeyLeft:      []byte("\x1b[D"),
	KeyHome:      []byte("\x1b[H"),
	KeyEnd:       []byte("\x1b[F"),
	KeyPageUp:    []byte("\x1b[5~"),
	KeyPageDown:  []byte("\x1b[6~"),
	KeyDelete:    []byte("\x1b[3~"),
	KeyInsert:    []byte("\x1b[2~"),
	KeyF1:        []byte("\x1bOP"),
	KeyF2:        []byte("\x1bOQ"),
	KeyF3:        []byte("\x1bOR"),
	KeyF4:        []byte("\x1bOS"),
	KeyF5:        []byte("\x1b[15~"),
	KeyF6:        []byte("\x1b[17~"),
	KeyF7:        []byte("\x1b[18~"),
	KeyF8:        []byte("\x1b[19~"),
	KeyF9:        []byte("\x1b[20~"),
	KeyF10:       []byte("\x1b[21~"),
	KeyF11:       []byte("\x1b[23~"),
	KeyF12:       []byte("\x1b[24~"),
}

// Encode returns the byte sequence for a non-printable key. The second
// return value is false for an unrecognized key.
func Encode(k Key) ([]byte, bool) {
	seq, ok := sequences[k]
	if !ok {
		return nil, false
	}
	out := make([]byte, len(seq))
	copy(out, seq)
	return out, true
}

// EncodeRune returns the byte sequence for a printable character, applying
// control-key folding when ctrl is true: for lowercase a-z, Ctrl+letter
// encodes to the single byte letter-'a'+1. Any other rune is encoded as its
// plain UTF-8 form regardless of ctrl.
func EncodeRune(r rune, ctrl bool) []byte {
	if ctrl && r >= 'a' && r <= 'z' {
		return []byte{byte(r-'a') + 1}
	}
	return []byte(string(r))
}
