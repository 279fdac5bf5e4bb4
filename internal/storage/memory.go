package storage

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"screenspec/internal/state"
)

// MemoryStore keeps everything in process memory. FileStore builds on it.
type MemoryStore struct {
	mu       sync.RWMutex
	projects map[string]*Project
	screens  map[string]*Screen
	order    map[string]uint64 // screen id -> insertion sequence
	next     uint64
	now      func() time.Time
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		projects: make(map[string]*Project),
		screens:  make(map[string]*Screen),
		order:    make(map[string]uint64),
		now:      time.Now,
	}
}

func cloneScreen(s *Screen) *Screen {
	out := *s
	out.Annotations = slices.Clone(s.Annotations)
	out.Metadata.Tags = slices.Clone(s.Metadata.Tags)
	return &out
}

func (m *MemoryStore) Load(_ context.Context, screenID string) (*Screen, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.screens[screenID]
	if !ok {
		return nil, fmt.Errorf("screen %s: %w", screenID, ErrNotFound)
	}
	return cloneScreen(s), nil
}

func (m *MemoryStore) Save(_ context.Context, screenID string, u Update) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.screens[screenID]
	if !ok {
		return fmt.Errorf("screen %s: %w", screenID, ErrNotFound)
	}
	applyUpdate(s, u, m.now())
	return nil
}

func applyUpdate(s *Screen, u Update, at time.Time) {
	if len(u.ImageData) > 0 {
		s.ImageData = u.ImageData
	}
	s.Annotations = state.List(slices.Clone(u.Annotations))
	s.Metadata = u.Metadata
	s.Metadata.Tags = slices.Clone(u.Metadata.Tags)
	if t := strings.TrimSpace(u.Metadata.Title); t != "" {
		s.Title = t
	}
	s.UpdatedAt = at
}

func normalizeProject(p *Project) error {
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		return fmt.Errorf("%w: project name is required", ErrInvalid)
	}
	if p.Color == "" {
		p.Color = DefaultProjectColor
	}
	c, err := state.ParseColor(p.Color)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	p.Color = string(c)
	return nil
}

func (m *MemoryStore) nameTaken(name, exceptID string) bool {
	for id, p := range m.projects {
		if id != exceptID && strings.EqualFold(p.Name, name) {
			return true
		}
	}
	return false
}

func (m *MemoryStore) CreateProject(_ context.Context, p Project) (*Project, error) {
	if err := normalizeProject(&p); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.nameTaken(p.Name, "") {
		return nil, fmt.Errorf("%q: %w", p.Name, ErrDuplicateName)
	}
	p.ID = uuid.NewString()
	p.CreatedAt = m.now()
	p.ScreenCount = 0
	m.projects[p.ID] = &p
	out := p
	return &out, nil
}

func (m *MemoryStore) GetProject(_ context.Context, id string) (*Project, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.projects[id]
	if !ok {
		return nil, fmt.Errorf("project %s: %w", id, ErrNotFound)
	}
	out := *p
	return &out, nil
}

// ListProjects returns projects newest first.
func (m *MemoryStore) ListProjects(_ context.Context) ([]*Project, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Project, 0, len(m.projects))
	for _, p := range m.projects {
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Name < out[j].Name
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (m *MemoryStore) UpdateProject(_ context.Context, p Project) error {
	if err := normalizeProject(&p); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.projects[p.ID]
	if !ok {
		return fmt.Errorf("project %s: %w", p.ID, ErrNotFound)
	}
	if m.nameTaken(p.Name, p.ID) {
		return fmt.Errorf("%q: %w", p.Name, ErrDuplicateName)
	}
	cur.Name = p.Name
	cur.Description = p.Description
	cur.Color = p.Color
	return nil
}

// DeleteProject removes the project and every screen in it.
func (m *MemoryStore) DeleteProject(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.projects[id]; !ok {
		return fmt.Errorf("project %s: %w", id, ErrNotFound)
	}
	for sid, s := range m.screens {
		if s.ProjectID == id {
			delete(m.screens, sid)
			delete(m.order, sid)
		}
	}
	delete(m.projects, id)
	return nil
}

func (m *MemoryStore) CreateScreen(_ context.Context, n NewScreen) (*Screen, error) {
	if len(n.Image) == 0 {
		return nil, fmt.Errorf("%w: screen image is required", ErrInvalid)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.projects[n.ProjectID]
	if !ok {
		return nil, fmt.Errorf("project %s: %w", n.ProjectID, ErrNotFound)
	}
	s := newScreen(n, m.now())
	m.put(s)
	p.ScreenCount++
	return cloneScreen(s), nil
}

func newScreen(n NewScreen, at time.Time) *Screen {
	title := strings.TrimSpace(n.Title)
	if title == "" {
		title = "Untitled screen"
	}
	kind := n.CaptureType
	if kind == "" {
		kind = "visible"
	}
	return &Screen{
		ID:          uuid.NewString(),
		ProjectID:   n.ProjectID,
		Title:       title,
		URL:         n.URL,
		CaptureType: kind,
		SourceImage: n.Image,
		ImageData:   n.Image,
		Annotations: state.List{},
		Metadata:    Metadata{Title: title},
		CreatedAt:   at,
		UpdatedAt:   at,
	}
}

func (m *MemoryStore) put(s *Screen) {
	m.next++
	m.screens[s.ID] = s
	m.order[s.ID] = m.next
}

// ListScreens returns the screens of a project in capture order. An empty
// projectID lists every screen.
func (m *MemoryStore) ListScreens(_ context.Context, projectID string) ([]*Screen, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if projectID != "" {
		if _, ok := m.projects[projectID]; !ok {
			return nil, fmt.Errorf("project %s: %w", projectID, ErrNotFound)
		}
	}
	var out []*Screen
	for _, s := range m.screens {
		if projectID == "" || s.ProjectID == projectID {
			out = append(out, cloneScreen(s))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return m.order[out[i].ID] < m.order[out[j].ID]
	})
	return out, nil
}

func (m *MemoryStore) DeleteScreen(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.screens[id]
	if !ok {
		return fmt.Errorf("screen %s: %w", id, ErrNotFound)
	}
	if p, ok := m.projects[s.ProjectID]; ok && p.ScreenCount > 0 {
		p.ScreenCount--
	}
	delete(m.screens, id)
	delete(m.order, id)
	return nil
}

func (m *MemoryStore) Close() error { return nil }
