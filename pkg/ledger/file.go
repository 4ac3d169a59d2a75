package ledger

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// FileStore is a MemoryStore whose journal is persisted to a local JSON file
// (for simple durability). The indexes are rebuilt by replaying the journal
// on open.
type FileStore struct {
	*MemoryStore
	path string
}

// OpenFileStore loads the journal at path, creating an empty ledger when the
// file does not exist yet.
func OpenFileStore(path string) (*FileStore, error) {
	entries, err := readJournalFile(path)
	if err != nil {
		return nil, err
	}
	j, err := RestoreJournal(entries)
	if err != nil {
		return nil, fmt.Errorf("journal %s: %w", path, err)
	}

	mem := newMemoryStore(j)
	for _, e := range entries {
		if err := mem.apply(e); err != nil {
			return nil, fmt.Errorf("journal %s: replay: %w", path, err)
		}
	}

	fs := &FileStore{MemoryStore: mem, path: path}
	mem.sink = func(Entry) error { return fs.save() }
	return fs, nil
}

func readJournalFile(path string) ([]Entry, error) {
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil // Start empty
	}
	if err != nil {
		return nil, err
	}
	var entries []Entry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("journal %s: %w", path, err)
	}
	return entries, nil
}

// save rewrites the whole journal through a temp file so a crash never
// leaves a truncated file behind.
func (f *FileStore) save() error {
	raw, err := json.MarshalIndent(f.journal.Entries(), "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".journal-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(raw); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), f.path)
}

// Path returns the journal file location.
func (f *FileStore) Path() string { return f.path }
