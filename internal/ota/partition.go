package ota

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Store abstracts the dual-slot partition layout: one active slot
// running, one inactive slot written by updates, and an atomic flip.
type Store interface {
	// ActiveSlot returns the name of the currently active slot.
	ActiveSlot() (string, error)

	// BeginInactive opens the inactive slot for writing, truncating
	// any half-written previous attempt.
	BeginInactive() (SlotWriter, error)

	// ReadSlot opens a slot's image for reading.
	ReadSlot(name string) (io.ReadCloser, error)

	// Promote atomically makes the named slot the active one.
	// Only called after the slot's image has verified.
	Promote(name string) error
}

// SlotWriter streams an image into a slot.
type SlotWriter interface {
	io.WriteCloser

	// Name returns the slot being written.
	Name() string
}

// Slot names of the file-backed store.
const (
	slotA = "a"
	slotB = "b"

	slotFilePattern = "slot_%s.img"
	activeFileName  = "active"

	storeDirPerm  = 0750
	storeFilePerm = 0600
)

// FileStore is a file-backed Store: two slot image files and an active
// pointer file in one directory. The pointer flip is write-to-temp,
// fsync, rename, so a power cut leaves either the old or the new
// pointer, never a torn one.
type FileStore struct {
	dir string
}

// NewFileStore creates the store directory if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, storeDirPerm); err != nil {
		return nil, fmt.Errorf("creating firmware store directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// ActiveSlot returns the slot named by the pointer file.
// A missing pointer means first boot: slot a is active.
func (s *FileStore) ActiveSlot() (string, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, activeFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return slotA, nil
		}
		return "", fmt.Errorf("reading active slot pointer: %w", err)
	}
	name := string(data)
	if name != slotA && name != slotB {
		return "", fmt.Errorf("%w: pointer names %q", ErrUnknownSlot, name)
	}
	return name, nil
}

// BeginInactive opens the slot opposite the active one for writing.
func (s *FileStore) BeginInactive() (SlotWriter, error) {
	active, err := s.ActiveSlot()
	if err != nil {
		return nil, err
	}

	inactive := slotA
	if active == slotA {
		inactive = slotB
	}

	path := filepath.Join(s.dir, fmt.Sprintf(slotFilePattern, inactive))
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, storeFilePerm)
	if err != nil {
		return nil, fmt.Errorf("opening inactive slot %s: %w", inactive, err)
	}
	return &fileSlotWriter{file: f, slot: inactive}, nil
}

// ReadSlot opens a slot image for reading.
func (s *FileStore) ReadSlot(name string) (io.ReadCloser, error) {
	if name != slotA && name != slotB {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSlot, name)
	}
	f, err := os.Open(filepath.Join(s.dir, fmt.Sprintf(slotFilePattern, name)))
	if err != nil {
		return nil, fmt.Errorf("opening slot %s: %w", name, err)
	}
	return f, nil
}

// Promote flips the active pointer to the named slot.
func (s *FileStore) Promote(name string) error {
	if name != slotA && name != slotB {
		return fmt.Errorf("%w: %q", ErrUnknownSlot, name)
	}

	tmp := filepath.Join(s.dir, activeFileName+".tmp")
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, storeFilePerm)
	if err != nil {
		return fmt.Errorf("creating pointer temp file: %w", err)
	}
	if _, err := f.Write([]byte(name)); err != nil {
		f.Close() //nolint:errcheck
		return fmt.Errorf("writing pointer temp file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close() //nolint:errcheck
		return fmt.Errorf("syncing pointer temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing pointer temp file: %w", err)
	}

	if err := os.Rename(tmp, filepath.Join(s.dir, activeFileName)); err != nil {
		return fmt.Errorf("flipping active slot pointer: %w", err)
	}

	// fsync the directory so the rename itself is durable.
	dir, err := os.Open(s.dir)
	if err != nil {
		return fmt.Errorf("opening store directory for sync: %w", err)
	}
	defer dir.Close() //nolint:errcheck
	if err := dir.Sync(); err != nil {
		return fmt.Errorf("syncing store directory: %w", err)
	}
	return nil
}

// fileSlotWriter syncs before close so a promoted image is on disk.
type fileSlotWriter struct {
	file *os.File
	slot string
}

func (w *fileSlotWriter) Write(p []byte) (int, error) {
	return w.file.Write(p)
}

func (w *fileSlotWriter) Close() error {
	if err := w.file.Sync(); err != nil {
		w.file.Close() //nolint:errcheck
		return fmt.Errorf("syncing slot %s: %w", w.slot, err)
	}
	if err := w.file.Close(); err != nil {
		return fmt.Errorf("closing slot %s: %w", w.slot, err)
	}
	return nil
}

func (w *fileSlotWriter) Name() string {
	return w.slot
}
