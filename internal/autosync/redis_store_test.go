package autosync

import (
	"testing"
	"time"
)

func TestEncodeDecodeTaskRoundTrip(t *testing.T) {
	task := Task{Peer: "phone", URL: "http://example.com/sync", Delay: 90 * time.Second}
	decoded, err := decodeTask(encodeTask(task))
	if err != nil {
		t.Fatalf("decodeTask: %v", err)
	}
	if decoded != task {
		t.Errorf("decodeTask(encodeTask(task)) = %+v, want %+v", decoded, task)
	}
}

func TestDecodeTaskRejectsMalformed(t *testing.T) {
	if _, err := decodeTask("not-enough-fields"); err == nil {
		t.Error("expected error decoding malformed task record")
	}
	if _, err := decodeTask("peer\x1furl\x1fnot-a-number"); err == nil {
		t.Error("expected error decoding non-numeric delay")
	}
}
