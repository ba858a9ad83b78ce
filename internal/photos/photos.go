// Package photos manages the ordered list of images attached to a draft ad.
// Each accepted file is written to preview storage immediately and referenced
// by its handle until the entry is removed or the list is reset.
package photos

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/dustin/go-humanize"
)

const (
	MaxPhotos   = 20
	MaxFileSize = 5 * 1024 * 1024 // 5 MiB

	MsgUnsupportedType = "Only JPEG, PNG, and WEBP images are allowed"
	MsgTooLarge        = "Image size should not exceed 5MB"
)

// ErrIndexOutOfRange is returned when an operation names a position that is
// not in the list.
var ErrIndexOutOfRange = errors.New("photo index out of range")

var acceptedTypes = map[string]bool{
	"image/jpeg": true,
	"image/jpg":  true,
	"image/png":  true,
	"image/webp": true,
}

// Accepted reports whether mimeType is one of the allowed image types.
func Accepted(mimeType string) bool {
	return acceptedTypes[mimeType]
}

// File is a user-selected file as received from the picker.
type File struct {
	Name     string
	Size     int64
	MIMEType string
	Data     []byte
}

// Entry is an accepted photo. Preview is the handle of its blob in preview
// storage; the entry owns it until removal.
type Entry struct {
	Name     string
	Size     int64
	MIMEType string
	Preview  string
}

// previewStore is the subset of photostore.PhotoStore the manager needs.
type previewStore interface {
	Save(ctx context.Context, prefix, mimeType string, r io.Reader) (string, error)
	Delete(ctx context.Context, storageKey string) error
}

// Manager is not safe for concurrent use; callers serialize access.
type Manager struct {
	store   previewStore
	prefix  string
	entries []Entry
	message string
	logger  *slog.Logger
}

func NewManager(store previewStore, prefix string, logger *slog.Logger) *Manager {
	return &Manager{
		store:  store,
		prefix: prefix,
		logger: logger,
	}
}

// AddFiles filters files by type and size and appends the accepted ones,
// keeping at most MaxPhotos entries. Rejections are reported through
// Message, where the last rejection reason wins; files beyond the limit are
// dropped without a message. A selection with at least one accepted file
// clears the message. The returned error covers preview storage failures
// only; on failure none of the selection is kept.
func (m *Manager) AddFiles(ctx context.Context, files []File) error {
	accepted := make([]File, 0, len(files))
	for _, f := range files {
		switch {
		case !Accepted(f.MIMEType):
			m.message = MsgUnsupportedType
		case f.Size > MaxFileSize:
			m.message = MsgTooLarge
		default:
			accepted = append(accepted, f)
		}
	}
	rejected := len(files) - len(accepted)
	if len(accepted) == 0 {
		m.logger.Debug("photo selection rejected", "prefix", m.prefix, "rejected", rejected, "message", m.message)
		return nil
	}
	m.message = ""

	room := MaxPhotos - len(m.entries)
	dropped := 0
	if len(accepted) > room {
		dropped = len(accepted) - room
		accepted = accepted[:room]
	}

	before := len(m.entries)
	for _, f := range accepted {
		key, err := m.store.Save(ctx, m.prefix, f.MIMEType, bytes.NewReader(f.Data))
		if err != nil {
			m.rollback(ctx, before)
			return fmt.Errorf("failed to store preview for %q: %w", f.Name, err)
		}
		m.entries = append(m.entries, Entry{
			Name:     f.Name,
			Size:     f.Size,
			MIMEType: f.MIMEType,
			Preview:  key,
		})
		m.logger.Debug("photo accepted", "prefix", m.prefix, "name", f.Name, "size", humanize.IBytes(uint64(f.Size)))
	}

	m.logger.Info("photos added",
		"prefix", m.prefix,
		"accepted", len(accepted),
		"rejected", rejected,
		"dropped", dropped,
		"total", len(m.entries),
	)
	return nil
}

// rollback drops the entries appended after the first n and releases their
// previews, so a failed selection leaves the list as it was.
func (m *Manager) rollback(ctx context.Context, n int) {
	for _, e := range m.entries[n:] {
		if err := m.store.Delete(ctx, e.Preview); err != nil {
			m.logger.Error("failed to release preview", "prefix", m.prefix, "preview", e.Preview, "error", err)
		}
	}
	m.entries = m.entries[:n]
}

// Remove deletes the entry at index and releases its preview.
func (m *Manager) Remove(ctx context.Context, index int) error {
	if index < 0 || index >= len(m.entries) {
		return fmt.Errorf("%w: %d", ErrIndexOutOfRange, index)
	}
	entry := m.entries[index]
	m.entries = append(m.entries[:index], m.entries[index+1:]...)

	if err := m.store.Delete(ctx, entry.Preview); err != nil {
		return fmt.Errorf("failed to release preview %q: %w", entry.Preview, err)
	}
	return nil
}

// Reset empties the list, clears the message and releases every preview.
func (m *Manager) Reset(ctx context.Context) error {
	entries := m.entries
	m.entries = nil
	m.message = ""

	var errs []error
	for _, e := range entries {
		if err := m.store.Delete(ctx, e.Preview); err != nil {
			errs = append(errs, fmt.Errorf("failed to release preview %q: %w", e.Preview, err))
		}
	}
	return errors.Join(errs...)
}

// Entries returns a copy of the list in display order.
func (m *Manager) Entries() []Entry {
	out := make([]Entry, len(m.entries))
	copy(out, m.entries)
	return out
}

func (m *Manager) Entry(index int) (Entry, error) {
	if index < 0 || index >= len(m.entries) {
		return Entry{}, fmt.Errorf("%w: %d", ErrIndexOutOfRange, index)
	}
	return m.entries[index], nil
}

func (m *Manager) Len() int { return len(m.entries) }

// Cover returns the first entry, which listings show as the primary image.
func (m *Manager) Cover() (Entry, bool) {
	if len(m.entries) == 0 {
		return Entry{}, false
	}
	return m.entries[0], true
}

// Message returns the rejection message of the last selection, or "".
func (m *Manager) Message() string { return m.message }
