package logmsg

import "testing"

func TestApproxBytesText(t *testing.T) {
	t.Parallel()

	msg := Stdout("hello")
	if got := msg.ApproxBytes(); got != len("hello")+textOverhead {
		t.Fatalf("ApproxBytes() = %d, want %d", got, len("hello")+textOverhead)
	}
}

func TestApproxBytesFinished(t *testing.T) {
	t.Parallel()

	msg := Finished()
	if got := msg.ApproxBytes(); got != finishedCost {
		t.Fatalf("ApproxBytes() = %d, want %d", got, finishedCost)
	}
	if !msg.IsFinished() {
		t.Fatalf("IsFinished() = false, want true")
	}
}

func TestApproxBytesJSONPatch(t *testing.T) {
	t.Parallel()

	patch := []byte(`[{"op":"replace","path":"/a","value":1}]`)
	msg := JSONPatch(patch)
	if got := msg.ApproxBytes(); got != len(patch) {
		t.Fatalf("ApproxBytes() = %d, want %d", got, len(patch))
	}
}

func TestSessionIDMsg(t *testing.T) {
	t.Parallel()

	msg := SessionIDMsg("abc-123")
	if msg.Kind != KindSessionID {
		t.Fatalf("Kind = %v, want KindSessionID", msg.Kind)
	}
	if msg.Text != "abc-123" {
		t.Fatalf("Text = %q, want %q", msg.Text, "abc-123")
	}
}
