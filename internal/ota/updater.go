package ota

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
)

// watchTick is how often the stalled-session watchdog wakes up.
const watchTick = time.Second

// Session states, reported in status messages.
const (
	StateIdle      = "idle"
	StateReceiving = "receiving"
	StateVerifying = "verifying"
	StateApplying  = "applying"
	StateApplied   = "applied"
	StateFailed    = "failed"
)

// Transport is the publishing surface the updater needs.
// Status messages are not retained; each attempt narrates itself.
type Transport interface {
	Publish(topic string, payload []byte) error
}

// Logger is the subset of logging used by the updater.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// RebootFunc is invoked after a successful update to request a restart
// into the new image. Surfaced to main rather than executed here.
type RebootFunc func()

// ResultHook observes finished update attempts, for telemetry.
type ResultHook func(sessionID string, success bool, bytes int64)

// session is one in-flight transfer. Destroyed on completion, failure
// or timeout; at most one exists at a time.
type session struct {
	id        string
	attemptID string
	nextSeq   int
	written   int64
	total     int64
	writer    SlotWriter
	lastChunk time.Time
}

// Updater streams firmware images from the OTA topic into the inactive
// partition slot and flips the active slot only after verification.
//
// The active image is never written: a failed, truncated or corrupt
// transfer leaves the device running its known-good slot and the next
// attempt starts clean.
type Updater struct {
	store        Store
	verifier     Verifier
	transport    Transport
	logger       Logger
	statusTopic  string
	chunkTimeout time.Duration
	reboot       RebootFunc

	mu   sync.Mutex
	sess *session
	hook ResultHook
}

// NewUpdater creates an updater.
//
// Parameters:
//   - store: Partition slot store
//   - verifier: Image verifier (minisign or sha256)
//   - transport: Publishing surface for status messages
//   - topic: OTA topic; status goes to <topic>/status
//   - chunkTimeout: Maximum gap between chunks before cancelling
//   - reboot: Restart request callback, called only after a verified
//     image has been promoted
//   - logger: Structured logger
func NewUpdater(
	store Store,
	verifier Verifier,
	transport Transport,
	topic string,
	chunkTimeout time.Duration,
	reboot RebootFunc,
	logger Logger,
) *Updater {
	return &Updater{
		store:        store,
		verifier:     verifier,
		transport:    transport,
		logger:       logger,
		statusTopic:  topic + "/status",
		chunkTimeout: chunkTimeout,
		reboot:       reboot,
	}
}

// SetResultHook installs an observer for finished attempts. Must be
// called before the first chunk arrives.
func (u *Updater) SetResultHook(hook ResultHook) {
	u.hook = hook
}

// State returns the current session state string.
func (u *Updater) State() string {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.sess == nil {
		return StateIdle
	}
	return StateReceiving
}

// HandleChunk processes one message from the OTA topic.
//
// The first chunk of a session (seq 0, offset 0) opens the inactive
// slot; later chunks append in order. A chunk that does not fit the
// open session fails that session: the sender is confused and the
// half-written slot is worthless.
func (u *Updater) HandleChunk(payload []byte) error {
	chunk, err := ParseChunk(payload)
	if err != nil {
		u.mu.Lock()
		active := u.sess != nil
		u.mu.Unlock()
		if active {
			u.fail(fmt.Errorf("malformed chunk mid-session: %w", err))
		}
		return err
	}

	u.mu.Lock()
	defer u.mu.Unlock()

	if u.sess == nil {
		if chunk.Seq != 0 || chunk.Offset != 0 {
			return fmt.Errorf("%w: continuation chunk seq %d with no session", ErrNoSession, chunk.Seq)
		}
		if err := u.open(chunk); err != nil {
			return err
		}
	}

	if chunk.SessionID != u.sess.id {
		err := fmt.Errorf("%w: got %s, session is %s", ErrSessionMismatch, chunk.SessionID, u.sess.id)
		u.failLocked(err)
		return err
	}
	if chunk.Seq != u.sess.nextSeq || chunk.Offset != u.sess.written {
		err := fmt.Errorf("%w: seq %d offset %d, expected seq %d offset %d",
			ErrChunkOutOfOrder, chunk.Seq, chunk.Offset, u.sess.nextSeq, u.sess.written)
		u.failLocked(err)
		return err
	}
	if chunk.TotalSize != u.sess.total {
		err := fmt.Errorf("%w: total_size changed from %d to %d", ErrSizeMismatch, u.sess.total, chunk.TotalSize)
		u.failLocked(err)
		return err
	}

	if len(chunk.Data) > 0 {
		if _, err := u.sess.writer.Write(chunk.Data); err != nil {
			err = fmt.Errorf("writing to slot %s: %w", u.sess.writer.Name(), err)
			u.failLocked(err)
			return err
		}
		u.sess.written += int64(len(chunk.Data))
	}
	u.sess.nextSeq++
	u.sess.lastChunk = time.Now()

	if !chunk.Done {
		return nil
	}
	return u.finishLocked(chunk.Token)
}

// Run cancels a stalled session when no chunk arrives within the
// timeout. Blocks until ctx is cancelled.
func (u *Updater) Run(ctx context.Context) {
	ticker := time.NewTicker(watchTick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			u.expire(now)
		}
	}
}

// expire fails the session if the chunk gap exceeded the timeout.
func (u *Updater) expire(now time.Time) {
	u.mu.Lock()
	stalled := u.sess != nil && u.chunkTimeout > 0 && now.Sub(u.sess.lastChunk) > u.chunkTimeout
	u.mu.Unlock()

	if stalled {
		u.fail(fmt.Errorf("%w: no chunk for %s", ErrChunkTimeout, u.chunkTimeout))
	}
}

// open starts a session from a first chunk. Caller holds u.mu.
func (u *Updater) open(chunk Chunk) error {
	writer, err := u.store.BeginInactive()
	if err != nil {
		return fmt.Errorf("opening inactive slot: %w", err)
	}

	u.sess = &session{
		id:        chunk.SessionID,
		attemptID: uuid.NewString(),
		total:     chunk.TotalSize,
		writer:    writer,
		lastChunk: time.Now(),
	}

	u.logger.Info("update session opened",
		"session_id", chunk.SessionID,
		"attempt_id", u.sess.attemptID,
		"slot", writer.Name(),
		"total_size", chunk.TotalSize,
	)
	u.publishStatusLocked(StateReceiving, "")
	return nil
}

// finishLocked verifies and applies a completed transfer. Caller holds u.mu.
func (u *Updater) finishLocked(token string) error {
	sess := u.sess

	if sess.written != sess.total {
		err := fmt.Errorf("%w: received %d of %d bytes", ErrSizeMismatch, sess.written, sess.total)
		u.failLocked(err)
		return err
	}

	slot := sess.writer.Name()
	if err := sess.writer.Close(); err != nil {
		err = fmt.Errorf("finalizing slot %s: %w", slot, err)
		u.failLocked(err)
		return err
	}
	sess.writer = nil

	u.publishStatusLocked(StateVerifying, "")

	// Verify what actually landed in the slot, not what we think we
	// wrote.
	image, err := u.readSlot(slot)
	if err != nil {
		u.failLocked(err)
		return err
	}
	if err := u.verifier.Verify(image, token); err != nil {
		u.failLocked(err)
		return err
	}

	u.publishStatusLocked(StateApplying, "")

	if err := u.store.Promote(slot); err != nil {
		err = fmt.Errorf("promoting slot %s: %w", slot, err)
		u.failLocked(err)
		return err
	}

	u.logger.Info("update applied",
		"session_id", sess.id,
		"attempt_id", sess.attemptID,
		"slot", slot,
		"bytes", sess.total,
	)
	u.publishStatusLocked(StateApplied, "")
	u.sess = nil

	if u.hook != nil {
		u.hook(sess.id, true, sess.total)
	}
	if u.reboot != nil {
		u.reboot()
	}
	return nil
}

// readSlot reads a slot image back for verification.
func (u *Updater) readSlot(slot string) ([]byte, error) {
	r, err := u.store.ReadSlot(slot)
	if err != nil {
		return nil, fmt.Errorf("reading back slot %s: %w", slot, err)
	}
	defer r.Close() //nolint:errcheck

	image, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading back slot %s: %w", slot, err)
	}
	return image, nil
}

// fail tears down the session from outside the lock.
func (u *Updater) fail(cause error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.sess != nil {
		u.failLocked(cause)
	}
}

// failLocked tears down the session. Caller holds u.mu. The active
// slot is untouched and no reboot happens.
func (u *Updater) failLocked(cause error) {
	sess := u.sess
	if sess.writer != nil {
		sess.writer.Close() //nolint:errcheck // Slot is being abandoned
	}

	u.logger.Error("update failed",
		"session_id", sess.id,
		"attempt_id", sess.attemptID,
		"received", sess.written,
		"total_size", sess.total,
		"error", cause,
	)
	u.publishStatusLocked(StateFailed, cause.Error())
	u.sess = nil

	if u.hook != nil {
		u.hook(sess.id, false, sess.written)
	}
}

// publishStatusLocked publishes a status message. Caller holds u.mu
// with u.sess non-nil.
func (u *Updater) publishStatusLocked(state, errText string) {
	status := Status{
		SessionID: u.sess.id,
		AttemptID: u.sess.attemptID,
		State:     state,
		Received:  u.sess.written,
		TotalSize: u.sess.total,
		Error:     errText,
	}
	if u.sess.writer != nil {
		status.Slot = u.sess.writer.Name()
	}

	payload, err := json.Marshal(status)
	if err != nil {
		u.logger.Error("marshaling update status", "error", err)
		return
	}
	if err := u.transport.Publish(u.statusTopic, payload); err != nil {
		u.logger.Warn("publishing update status", "error", err)
	}
}
