package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// fileRecord mirrors State with pointers so missing keys are detected.
type fileRecord struct {
	BucketIndex      *int   `yaml:"bucket_index"`
	LastSeenID       *int64 `yaml:"last_seen_id"`
	BucketDiscovered *int   `yaml:"bucket_discovered,omitempty"`
	SampleWritten    *int64 `yaml:"sample_written,omitempty"`
}

// FileStore keeps the state in a small YAML file that is replaced
// atomically (write temp, fsync, rename).
type FileStore struct {
	path   string
	logger zerolog.Logger
}

// NewFileStore creates a store at path.
func NewFileStore(path string) *FileStore {
	return &FileStore{
		path:   path,
		logger: log.With().Str("component", "checkpoint").Str("path", path).Logger(),
	}
}

// Path returns the checkpoint file path.
func (f *FileStore) Path() string {
	return f.path
}

// Load reads the state. Absent, unreadable or malformed files yield the
// zero State.
func (f *FileStore) Load(_ context.Context) (State, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			resetsTotal.WithLabelValues("unreadable").Inc()
			f.logger.Warn().Err(err).Msg("Checkpoint unreadable - starting over")
		}
		return State{}, nil
	}

	state, ok := decodeFile(data)
	if !ok {
		resetsTotal.WithLabelValues("malformed").Inc()
		f.logger.Warn().Str("content", truncate(string(data), 64)).Msg("Checkpoint malformed - starting over")
		return State{}, nil
	}

	f.logger.Debug().
		Int("bucket_index", state.BucketIndex).
		Int64("last_seen_id", state.LastSeenID).
		Msg("Checkpoint loaded")

	return state, nil
}

func decodeFile(data []byte) (State, bool) {
	text := strings.TrimSpace(string(data))
	if text == "" {
		return State{}, false
	}

	if !strings.Contains(text, ":") {
		return parseLegacy(text)
	}

	var rec fileRecord
	if err := yaml.Unmarshal(data, &rec); err != nil {
		return State{}, false
	}
	if rec.BucketIndex == nil || rec.LastSeenID == nil {
		return State{}, false
	}

	state := State{BucketIndex: *rec.BucketIndex, LastSeenID: *rec.LastSeenID}
	if rec.BucketDiscovered != nil {
		state.BucketDiscovered = *rec.BucketDiscovered
	}
	if rec.SampleWritten != nil {
		state.SampleWritten = *rec.SampleWritten
	}
	return state, state.valid()
}

// Save writes the state to a temp file in the same directory and renames
// it over the checkpoint, so a crash never leaves a partial file behind.
func (f *FileStore) Save(_ context.Context, state State) error {
	if !state.valid() {
		return fmt.Errorf("invalid checkpoint state %+v", state)
	}

	data, err := yaml.Marshal(fileRecord{
		BucketIndex:      &state.BucketIndex,
		LastSeenID:       &state.LastSeenID,
		BucketDiscovered: &state.BucketDiscovered,
		SampleWritten:    &state.SampleWritten,
	})
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}

	if err := f.writeAtomic(data); err != nil {
		savesTotal.WithLabelValues("file", "error").Inc()
		return err
	}
	savesTotal.WithLabelValues("file", "ok").Inc()

	return nil
}

func (f *FileStore) writeAtomic(data []byte) error {
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create checkpoint dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(f.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp checkpoint: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp checkpoint: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp checkpoint: %w", err)
	}

	if err := os.Rename(tmpName, f.path); err != nil {
		return fmt.Errorf("replace checkpoint: %w", err)
	}

	return nil
}

// Clear removes the checkpoint file.
func (f *FileStore) Clear(_ context.Context) error {
	if err := os.Remove(f.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove checkpoint: %w", err)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
