package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

const indexFile = "index.json"

type fileIndex struct {
	Version  int        `json:"version"`
	Projects []*Project `json:"projects"`
	Screens  []*Screen  `json:"screens"`
}

// FileStore persists to a directory: one JSON index plus two PNG files per
// screen (the raw capture and the flattened image). Every write replaces files
// through a temp file and a rename.
type FileStore struct {
	*MemoryStore

	dir    string
	logger *slog.Logger
	wmu    sync.Mutex // serializes mutations with their flush
}

// NewFileStore opens or creates a store rooted at dir.
func NewFileStore(dir string, logger *slog.Logger) (*FileStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(filepath.Join(dir, "images"), 0o755); err != nil {
		return nil, fmt.Errorf("create storage directory: %w", err)
	}
	f := &FileStore{MemoryStore: NewMemoryStore(), dir: dir, logger: logger}
	if err := f.load(); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *FileStore) imagePath(id, kind string) string {
	return filepath.Join(f.dir, "images", id+"."+kind+".png")
}

func (f *FileStore) load() error {
	data, err := os.ReadFile(filepath.Join(f.dir, indexFile))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read index: %w", err)
	}
	var idx fileIndex
	if err := json.Unmarshal(data, &idx); err != nil {
		return fmt.Errorf("decode index: %w", err)
	}
	m := f.MemoryStore
	for _, p := range idx.Projects {
		m.projects[p.ID] = p
	}
	for _, s := range idx.Screens {
		if s.SourceImage, err = os.ReadFile(f.imagePath(s.ID, "source")); err != nil {
			f.logger.Warn("storage: screen source image missing", "screen", s.ID, "error", err)
		}
		if s.ImageData, err = os.ReadFile(f.imagePath(s.ID, "flat")); err != nil {
			f.logger.Warn("storage: screen image missing", "screen", s.ID, "error", err)
		}
		m.put(s)
	}
	f.logger.Debug("storage: index loaded", "dir", f.dir, "projects", len(idx.Projects), "screens", len(idx.Screens))
	return nil
}

// flush writes the index. Callers hold wmu.
func (f *FileStore) flush() error {
	m := f.MemoryStore
	m.mu.RLock()
	idx := fileIndex{Version: 1}
	for _, p := range m.projects {
		idx.Projects = append(idx.Projects, p)
	}
	for _, s := range m.screens {
		idx.Screens = append(idx.Screens, s)
	}
	sort.Slice(idx.Projects, func(i, j int) bool { return idx.Projects[i].CreatedAt.Before(idx.Projects[j].CreatedAt) })
	sort.Slice(idx.Screens, func(i, j int) bool { return m.order[idx.Screens[i].ID] < m.order[idx.Screens[j].ID] })
	data, err := json.MarshalIndent(idx, "", "  ")
	m.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("encode index: %w", err)
	}
	return writeFileAtomic(filepath.Join(f.dir, indexFile), data)
}

func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		os.Remove(tmp) //nolint:errcheck
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp) //nolint:errcheck
		return fmt.Errorf("rename %s: %w", filepath.Base(path), err)
	}
	return nil
}

func (f *FileStore) removeImages(id string) {
	for _, kind := range []string{"source", "flat"} {
		if err := os.Remove(f.imagePath(id, kind)); err != nil && !errors.Is(err, os.ErrNotExist) {
			f.logger.Warn("storage: remove image", "screen", id, "error", err)
		}
	}
}

func (f *FileStore) Save(ctx context.Context, screenID string, u Update) error {
	f.wmu.Lock()
	defer f.wmu.Unlock()
	prev, err := f.MemoryStore.Load(ctx, screenID)
	if err != nil {
		return err
	}
	if len(u.ImageData) > 0 {
		if err := writeFileAtomic(f.imagePath(screenID, "flat"), u.ImageData); err != nil {
			return err
		}
	}
	if err := f.MemoryStore.Save(ctx, screenID, u); err != nil {
		return err
	}
	if err := f.flush(); err != nil {
		f.restore(prev, len(u.ImageData) > 0)
		return err
	}
	return nil
}

// restore puts back a screen whose save could not reach the index, so memory
// and disk keep describing the same state.
func (f *FileStore) restore(prev *Screen, imageWritten bool) {
	m := f.MemoryStore
	m.mu.Lock()
	if cur, ok := m.screens[prev.ID]; ok {
		*cur = *prev
	}
	m.mu.Unlock()
	if !imageWritten {
		return
	}
	path := f.imagePath(prev.ID, "flat")
	if len(prev.ImageData) == 0 {
		os.Remove(path) //nolint:errcheck
		return
	}
	if err := writeFileAtomic(path, prev.ImageData); err != nil {
		f.logger.Warn("storage: restore screen image", "screen", prev.ID, "error", err)
	}
}

func (f *FileStore) CreateProject(ctx context.Context, p Project) (*Project, error) {
	f.wmu.Lock()
	defer f.wmu.Unlock()
	out, err := f.MemoryStore.CreateProject(ctx, p)
	if err != nil {
		return nil, err
	}
	return out, f.flush()
}

func (f *FileStore) UpdateProject(ctx context.Context, p Project) error {
	f.wmu.Lock()
	defer f.wmu.Unlock()
	if err := f.MemoryStore.UpdateProject(ctx, p); err != nil {
		return err
	}
	return f.flush()
}

func (f *FileStore) DeleteProject(ctx context.Context, id string) error {
	f.wmu.Lock()
	defer f.wmu.Unlock()
	screens, err := f.MemoryStore.ListScreens(ctx, id)
	if err != nil {
		return err
	}
	if err := f.MemoryStore.DeleteProject(ctx, id); err != nil {
		return err
	}
	if err := f.flush(); err != nil {
		return err
	}
	for _, s := range screens {
		f.removeImages(s.ID)
	}
	return nil
}

func (f *FileStore) CreateScreen(ctx context.Context, n NewScreen) (*Screen, error) {
	f.wmu.Lock()
	defer f.wmu.Unlock()
	s, err := f.MemoryStore.CreateScreen(ctx, n)
	if err != nil {
		return nil, err
	}
	for _, kind := range []string{"source", "flat"} {
		if err := writeFileAtomic(f.imagePath(s.ID, kind), n.Image); err != nil {
			f.MemoryStore.DeleteScreen(ctx, s.ID) //nolint:errcheck
			return nil, err
		}
	}
	return s, f.flush()
}

func (f *FileStore) DeleteScreen(ctx context.Context, id string) error {
	f.wmu.Lock()
	defer f.wmu.Unlock()
	if err := f.MemoryStore.DeleteScreen(ctx, id); err != nil {
		return err
	}
	if err := f.flush(); err != nil {
		return err
	}
	f.removeImages(id)
	return nil
}
