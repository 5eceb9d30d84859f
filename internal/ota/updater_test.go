package ota

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"
)

type statusTransport struct {
	mu       sync.Mutex
	statuses []Status
}

func (s *statusTransport) Publish(topic string, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var st Status
	if err := json.Unmarshal(payload, &st); err != nil {
		return err
	}
	s.statuses = append(s.statuses, st)
	return nil
}

func (s *statusTransport) states() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var states []string
	for _, st := range s.statuses {
		states = append(states, st.State)
	}
	return states
}

func (s *statusTransport) last() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.statuses) == 0 {
		return Status{}
	}
	return s.statuses[len(s.statuses)-1]
}

type testLogger struct{}

func (testLogger) Info(msg string, args ...any)  {}
func (testLogger) Warn(msg string, args ...any)  {}
func (testLogger) Error(msg string, args ...any) {}

func newTestUpdater(t *testing.T) (*Updater, *FileStore, *statusTransport, *int) {
	t.Helper()

	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}

	transport := &statusTransport{}
	reboots := 0
	u := NewUpdater(store, SHA256Verifier{}, transport, "alarm/ota", 30*time.Second,
		func() { reboots++ }, testLogger{})
	return u, store, transport, &reboots
}

func marshalChunk(t *testing.T, c Chunk) []byte {
	t.Helper()
	payload, err := json.Marshal(c)
	if err != nil {
		t.Fatalf("marshaling chunk: %v", err)
	}
	return payload
}

// sendImage streams an image in fixed-size chunks; the final chunk
// carries done and the token.
func sendImage(t *testing.T, u *Updater, image []byte, token string, chunkSize int) error {
	t.Helper()

	total := int64(len(image))
	seq := 0
	for offset := 0; offset < len(image); offset += chunkSize {
		end := offset + chunkSize
		if end > len(image) {
			end = len(image)
		}
		chunk := Chunk{
			SessionID: "session-1",
			Seq:       seq,
			Offset:    int64(offset),
			TotalSize: total,
			Data:      image[offset:end],
		}
		if end == len(image) {
			chunk.Done = true
			chunk.Token = token
		}
		if err := u.HandleChunk(marshalChunk(t, chunk)); err != nil {
			return err
		}
		seq++
	}
	return nil
}

func sha256Token(image []byte) string {
	sum := sha256.Sum256(image)
	return hex.EncodeToString(sum[:])
}

func TestUpdateHappyPath(t *testing.T) {
	u, store, transport, reboots := newTestUpdater(t)
	image := []byte("this is firmware v2, trust me")

	if err := sendImage(t, u, image, sha256Token(image), 8); err != nil {
		t.Fatalf("sendImage() error = %v", err)
	}

	active, err := store.ActiveSlot()
	if err != nil {
		t.Fatalf("ActiveSlot() error = %v", err)
	}
	if active != "b" {
		t.Errorf("ActiveSlot() = %q, want promoted slot b", active)
	}
	if *reboots != 1 {
		t.Errorf("reboot requested %d times, want 1", *reboots)
	}
	if u.State() != StateIdle {
		t.Errorf("State() = %q after completion, want idle", u.State())
	}

	states := transport.states()
	want := []string{StateReceiving, StateVerifying, StateApplying, StateApplied}
	if len(states) != len(want) {
		t.Fatalf("status states = %v, want %v", states, want)
	}
	for i := range want {
		if states[i] != want[i] {
			t.Errorf("status[%d] = %q, want %q", i, states[i], want[i])
		}
	}
}

func TestUpdateCorruptImageFails(t *testing.T) {
	u, store, transport, reboots := newTestUpdater(t)
	image := []byte("this image will not match its token")

	err := sendImage(t, u, image, sha256Token([]byte("a different image")), 16)
	if !errors.Is(err, ErrVerification) {
		t.Fatalf("sendImage() error = %v, want ErrVerification", err)
	}

	active, _ := store.ActiveSlot()
	if active != "a" {
		t.Errorf("ActiveSlot() = %q after failed verify, want untouched a", active)
	}
	if *reboots != 0 {
		t.Errorf("reboot requested after failed verify")
	}
	if transport.last().State != StateFailed {
		t.Errorf("last status = %q, want failed", transport.last().State)
	}
}

func TestUpdateTruncatedImageFails(t *testing.T) {
	u, store, _, reboots := newTestUpdater(t)
	image := []byte("full image contents here")

	// Declare more bytes than we send.
	chunk := Chunk{
		SessionID: "session-1",
		Seq:       0,
		Offset:    0,
		TotalSize: int64(len(image)) + 100,
		Data:      image,
		Done:      true,
		Token:     sha256Token(image),
	}
	err := u.HandleChunk(marshalChunk(t, chunk))
	if !errors.Is(err, ErrSizeMismatch) {
		t.Fatalf("HandleChunk() error = %v, want ErrSizeMismatch", err)
	}

	active, _ := store.ActiveSlot()
	if active != "a" {
		t.Errorf("ActiveSlot() = %q after truncated transfer, want a", active)
	}
	if *reboots != 0 {
		t.Errorf("reboot requested after truncated transfer")
	}
}

func TestUpdateOutOfOrderChunkFails(t *testing.T) {
	u, _, transport, _ := newTestUpdater(t)

	first := Chunk{SessionID: "session-1", Seq: 0, Offset: 0, TotalSize: 100, Data: []byte("0123456789")}
	if err := u.HandleChunk(marshalChunk(t, first)); err != nil {
		t.Fatalf("first chunk: %v", err)
	}

	skipped := Chunk{SessionID: "session-1", Seq: 2, Offset: 20, TotalSize: 100, Data: []byte("0123456789")}
	err := u.HandleChunk(marshalChunk(t, skipped))
	if !errors.Is(err, ErrChunkOutOfOrder) {
		t.Fatalf("HandleChunk() error = %v, want ErrChunkOutOfOrder", err)
	}
	if transport.last().State != StateFailed {
		t.Errorf("last status = %q, want failed", transport.last().State)
	}
	if u.State() != StateIdle {
		t.Errorf("State() = %q after out-of-order failure, want idle", u.State())
	}
}

func TestUpdateContinuationWithoutSession(t *testing.T) {
	u, _, _, _ := newTestUpdater(t)

	chunk := Chunk{SessionID: "session-1", Seq: 3, Offset: 300, TotalSize: 1000, Data: []byte("late")}
	err := u.HandleChunk(marshalChunk(t, chunk))
	if !errors.Is(err, ErrNoSession) {
		t.Errorf("HandleChunk() error = %v, want ErrNoSession", err)
	}
}

func TestUpdateSessionMismatchFails(t *testing.T) {
	u, _, _, _ := newTestUpdater(t)

	first := Chunk{SessionID: "session-1", Seq: 0, Offset: 0, TotalSize: 100, Data: []byte("0123456789")}
	if err := u.HandleChunk(marshalChunk(t, first)); err != nil {
		t.Fatalf("first chunk: %v", err)
	}

	foreign := Chunk{SessionID: "session-2", Seq: 1, Offset: 10, TotalSize: 100, Data: []byte("0123456789")}
	err := u.HandleChunk(marshalChunk(t, foreign))
	if !errors.Is(err, ErrSessionMismatch) {
		t.Errorf("HandleChunk() error = %v, want ErrSessionMismatch", err)
	}
}

func TestUpdateStalledSessionExpires(t *testing.T) {
	u, store, transport, _ := newTestUpdater(t)

	first := Chunk{SessionID: "session-1", Seq: 0, Offset: 0, TotalSize: 100, Data: []byte("0123456789")}
	if err := u.HandleChunk(marshalChunk(t, first)); err != nil {
		t.Fatalf("first chunk: %v", err)
	}

	// Before the timeout the session survives.
	u.expire(time.Now().Add(10 * time.Second))
	if u.State() != StateReceiving {
		t.Fatalf("State() = %q after early expire check, want receiving", u.State())
	}

	// Past the timeout it is cancelled.
	u.expire(time.Now().Add(31 * time.Second))
	if u.State() != StateIdle {
		t.Errorf("State() = %q after timeout, want idle", u.State())
	}
	if transport.last().State != StateFailed {
		t.Errorf("last status = %q, want failed", transport.last().State)
	}

	active, _ := store.ActiveSlot()
	if active != "a" {
		t.Errorf("ActiveSlot() = %q after timeout, want a", active)
	}

	// A fresh session can start immediately.
	if err := u.HandleChunk(marshalChunk(t, first)); err != nil {
		t.Errorf("restarting after timeout: %v", err)
	}
}

func TestVerifiers(t *testing.T) {
	image := []byte("image bytes")

	t.Run("sha256 accepts matching digest", func(t *testing.T) {
		if err := (SHA256Verifier{}).Verify(image, sha256Token(image)); err != nil {
			t.Errorf("Verify() error = %v", err)
		}
	})

	t.Run("sha256 rejects wrong digest", func(t *testing.T) {
		err := (SHA256Verifier{}).Verify(image, sha256Token([]byte("other")))
		if !errors.Is(err, ErrVerification) {
			t.Errorf("Verify() error = %v, want ErrVerification", err)
		}
	})

	t.Run("sha256 rejects malformed token", func(t *testing.T) {
		err := (SHA256Verifier{}).Verify(image, "not hex at all")
		if !errors.Is(err, ErrVerification) {
			t.Errorf("Verify() error = %v, want ErrVerification", err)
		}
	})

	t.Run("minisign rejects malformed signature", func(t *testing.T) {
		v, err := NewMinisignVerifier("RWTs/v2+ntUcvpgj3hhtLesiIv6ny153HNmYsGvzrkVbCCy8lHHKo5Mv")
		if err != nil {
			t.Fatalf("NewMinisignVerifier() error = %v", err)
		}
		if err := v.Verify(image, "garbage"); !errors.Is(err, ErrVerification) {
			t.Errorf("Verify() error = %v, want ErrVerification", err)
		}
	})

	t.Run("minisign rejects bad public key", func(t *testing.T) {
		if _, err := NewMinisignVerifier("not a key"); err == nil {
			t.Error("NewMinisignVerifier() error = nil for invalid key")
		}
	})
}

func TestResultHookObservesOutcome(t *testing.T) {
	type result struct {
		sessionID string
		success   bool
		bytes     int64
	}

	t.Run("successful attempt", func(t *testing.T) {
		u, _, _, _ := newTestUpdater(t)
		var got []result
		u.SetResultHook(func(sessionID string, success bool, bytes int64) {
			got = append(got, result{sessionID, success, bytes})
		})

		image := []byte("hooked firmware image")
		if err := sendImage(t, u, image, sha256Token(image), 8); err != nil {
			t.Fatalf("sendImage() error = %v", err)
		}
		want := []result{{"session-1", true, int64(len(image))}}
		if len(got) != 1 || got[0] != want[0] {
			t.Errorf("hook results = %v, want %v", got, want)
		}
	})

	t.Run("failed attempt", func(t *testing.T) {
		u, _, _, _ := newTestUpdater(t)
		var got []result
		u.SetResultHook(func(sessionID string, success bool, bytes int64) {
			got = append(got, result{sessionID, success, bytes})
		})

		image := []byte("hooked firmware image")
		if err := sendImage(t, u, image, sha256Token([]byte("other")), 8); !errors.Is(err, ErrVerification) {
			t.Fatalf("sendImage() error = %v, want ErrVerification", err)
		}
		if len(got) != 1 || got[0].success || got[0].bytes != int64(len(image)) {
			t.Errorf("hook results = %v, want one failed result with %d bytes", got, len(image))
		}
	})
}
