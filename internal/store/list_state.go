package store

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"todo-cli/internal/liststate"
)

const listStateFileName = "list_state.json"

// ListStateFile stores the last filter/pagination selection of each list so
// separate CLI invocations can page through results.
//
// It is best effort: callers should tolerate missing/invalid data.
type ListStateFile struct {
	Version int                        `json:"version"`
	Lists   map[string]liststate.State `json:"lists,omitempty"`
}

func (s Store) listStatePath() string {
	return filepath.Join(s.Dir, listStateFileName)
}

func (s Store) LoadListState() (*ListStateFile, error) {
	empty := &ListStateFile{Version: 1, Lists: map[string]liststate.State{}}
	if strings.TrimSpace(s.Dir) == "" {
		return empty, nil
	}
	b, err := os.ReadFile(s.listStatePath())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return empty, nil
		}
		return nil, err
	}
	var st ListStateFile
	if err := json.Unmarshal(b, &st); err != nil {
		// Corrupted file: treat as missing.
		return empty, nil
	}
	if st.Version == 0 {
		st.Version = 1
	}
	if st.Lists == nil {
		st.Lists = map[string]liststate.State{}
	}
	return &st, nil
}

func (s Store) SaveListState(st *ListStateFile) error {
	if st == nil || strings.TrimSpace(s.Dir) == "" {
		return nil
	}
	if err := s.Ensure(); err != nil {
		return err
	}
	if st.Version == 0 {
		st.Version = 1
	}
	b, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return err
	}
	return atomicWriteFile(s.Dir, listStateFileName+".*.tmp", s.listStatePath(), b, 0o644)
}

// RestoreList seeds ls from the saved state for name, if any.
func (f *ListStateFile) RestoreList(name string, ls *liststate.Store) {
	if f == nil || ls == nil {
		return
	}
	if saved, ok := f.Lists[name]; ok {
		ls.Restore(saved)
	}
}

// CaptureList records the current state of ls under name.
func (f *ListStateFile) CaptureList(name string, ls *liststate.Store) {
	if f == nil || ls == nil {
		return
	}
	if f.Lists == nil {
		f.Lists = map[string]liststate.State{}
	}
	f.Lists[name] = ls.Snapshot()
}
