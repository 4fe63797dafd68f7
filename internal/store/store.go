// Package store persists bridge state to a single JSON file on disk: the
// device catalogue, cover motion state, and the admin UI's saved layout.
// Writes are atomic (temp file + fsync + rename); reads that encounter a
// corrupt file quarantine it rather than failing startup.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/busprobridge/core/internal/device"
)

// ErrEmpty is returned by ReadRaw when no document has been persisted yet.
var ErrEmpty = errors.New("store: no document present")

// Document is the full persisted state of the bridge.
type Document struct {
	Catalogue device.Catalogue        `json:"catalogue"`
	Covers    map[string]CoverState   `json:"cover_state"`
	UI        UIConfig                `json:"ui"`
	SavedAt   time.Time               `json:"saved_at"`
}

// CoverState is the on-disk representation of a cover's last known motion
// state. Its position seeds the cover engine at startup, so a restart does
// not forget the last reconciled position; it holds no calibration data.
type CoverState struct {
	Phase    device.CoverPhase `json:"phase"`
	Position int               `json:"position"`
}

// UIConfig holds admin-surface preferences that have no bus-side meaning:
// dashboard grouping, display order, and similar presentation state.
type UIConfig struct {
	RoomOrder  []string          `json:"room_order,omitempty"`
	Favourites []string          `json:"favourites,omitempty"`
	Extra      map[string]string `json:"extra,omitempty"`
}

func emptyDocument() Document {
	return Document{
		Catalogue: device.NewCatalogue(),
		Covers:    make(map[string]CoverState),
		UI:        UIConfig{},
	}
}

// Logger is the logging interface used by Store.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Store is a JSON-file-backed persistence layer for one Document.
type Store struct {
	path   string
	logger Logger
}

// New creates a Store writing to path. The parent directory is created on
// first write if it does not already exist.
func New(path string) *Store {
	return &Store{path: path, logger: noopLogger{}}
}

// SetLogger sets the logger used for read/write/quarantine events.
func (s *Store) SetLogger(logger Logger) {
	s.logger = logger
}

// ReadRaw loads the persisted Document. If the file does not exist, it
// returns an empty Document and ErrEmpty. If the file exists but fails to
// parse, it is renamed aside to "<path>.corrupt.<unix-ts>" and ReadRaw
// returns an empty Document and ErrEmpty rather than failing startup — a
// single malformed state file must never prevent the bridge from coming up.
func (s *Store) ReadRaw(ctx context.Context) (Document, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return emptyDocument(), ErrEmpty
	}
	if err != nil {
		return emptyDocument(), fmt.Errorf("reading state file: %w", err)
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		s.logger.Warn("state file corrupt, quarantining", "path", s.path, "error", err)
		if qerr := s.quarantine(); qerr != nil {
			return emptyDocument(), fmt.Errorf("quarantining corrupt state file: %w", qerr)
		}
		return emptyDocument(), ErrEmpty
	}
	if doc.Catalogue.Lights == nil {
		doc.Catalogue = device.NewCatalogue()
	}
	if doc.Covers == nil {
		doc.Covers = make(map[string]CoverState)
	}
	return doc, nil
}

func (s *Store) quarantine() error {
	dest := fmt.Sprintf("%s.corrupt.%d", s.path, time.Now().Unix())
	if err := os.Rename(s.path, dest); err != nil {
		return err
	}
	s.logger.Warn("state file quarantined", "path", s.path, "quarantined_to", dest)
	return nil
}

// Write atomically persists doc: it is marshalled to a temp file in the
// same directory, fsynced, then renamed over the target path so a crash
// mid-write can never leave a half-written state file.
func (s *Store) Write(ctx context.Context, doc Document) error {
	doc.SavedAt = time.Now().UTC()

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating state directory: %w", err)
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshalling state document: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp state file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing temp state file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("fsyncing temp state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp state file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("renaming temp state file into place: %w", err)
	}

	s.logger.Debug("state written", "path", s.path, "bytes", len(data))
	return nil
}
