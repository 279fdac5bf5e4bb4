package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"screenspec/internal/state"
)

var png = []byte("\x89PNG fake image bytes")

func backends(t *testing.T) map[string]func(t *testing.T) Repository {
	return map[string]func(t *testing.T) Repository{
		"memory": func(t *testing.T) Repository { return NewMemoryStore() },
		"file": func(t *testing.T) Repository {
			s, err := NewFileStore(t.TempDir(), nil)
			require.NoError(t, err)
			return s
		},
		"sqlite": func(t *testing.T) Repository {
			s, err := OpenSQLite(filepath.Join(t.TempDir(), "screens.db"), nil)
			require.NoError(t, err)
			t.Cleanup(func() { s.Close() })
			return s
		},
	}
}

func TestRepositoryContract(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			repo := open(t)

			p, err := repo.CreateProject(ctx, Project{Name: "Checkout flow", Description: "QA pass"})
			require.NoError(t, err)
			assert.NotEmpty(t, p.ID)
			assert.Equal(t, DefaultProjectColor, p.Color)

			_, err = repo.CreateProject(ctx, Project{Name: "checkout FLOW"})
			assert.ErrorIs(t, err, ErrDuplicateName)
			_, err = repo.CreateProject(ctx, Project{Name: "  "})
			assert.ErrorIs(t, err, ErrInvalid)

			first, err := repo.CreateScreen(ctx, NewScreen{ProjectID: p.ID, Title: "Cart", URL: "https://shop.test/cart", Image: png})
			require.NoError(t, err)
			second, err := repo.CreateScreen(ctx, NewScreen{ProjectID: p.ID, Title: "Pay", Image: png})
			require.NoError(t, err)
			assert.Empty(t, first.Annotations)

			_, err = repo.CreateScreen(ctx, NewScreen{ProjectID: "nope", Image: png})
			assert.ErrorIs(t, err, ErrNotFound)

			got, err := repo.GetProject(ctx, p.ID)
			require.NoError(t, err)
			assert.Equal(t, 2, got.ScreenCount)

			list := []state.Annotation{
				state.Arrow{StartX: 1, StartY: 2, EndX: 30, EndY: 40, Color: "#ff0000", StrokeSize: 2, CreatedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)},
				state.Text{X: 5, Y: 9, Text: "Total", Color: "#000000", StrokeSize: 3, CreatedAt: time.Date(2026, 1, 1, 0, 0, 1, 0, time.UTC)},
			}
			meta := Metadata{Title: "Cart page", FunctionName: "checkout", Author: "qa", Tags: []string{"cart", "p1"}, Description: "totals"}
			require.NoError(t, repo.Save(ctx, first.ID, Update{ImageData: []byte("flat"), Annotations: list, Metadata: meta}))

			loaded, err := repo.Load(ctx, first.ID)
			require.NoError(t, err)
			assert.Equal(t, list, []state.Annotation(loaded.Annotations))
			assert.Equal(t, meta, loaded.Metadata)
			assert.Equal(t, "Cart page", loaded.Title)
			assert.Equal(t, []byte("flat"), loaded.ImageData)
			assert.Equal(t, png, loaded.SourceImage, "the raw capture is kept")
			assert.Equal(t, "https://shop.test/cart", loaded.URL)

			err = repo.Save(ctx, "missing", Update{})
			assert.ErrorIs(t, err, ErrNotFound)
			_, err = repo.Load(ctx, "missing")
			assert.ErrorIs(t, err, ErrNotFound)

			screens, err := repo.ListScreens(ctx, p.ID)
			require.NoError(t, err)
			require.Len(t, screens, 2)
			assert.Equal(t, first.ID, screens[0].ID)
			assert.Equal(t, second.ID, screens[1].ID)

			require.NoError(t, repo.DeleteScreen(ctx, second.ID))
			assert.ErrorIs(t, repo.DeleteScreen(ctx, second.ID), ErrNotFound)
			got, err = repo.GetProject(ctx, p.ID)
			require.NoError(t, err)
			assert.Equal(t, 1, got.ScreenCount)

			p.Name = "Checkout"
			p.Color = "#10B981"
			require.NoError(t, repo.UpdateProject(ctx, *p))
			got, err = repo.GetProject(ctx, p.ID)
			require.NoError(t, err)
			assert.Equal(t, "Checkout", got.Name)
			assert.Equal(t, "#10b981", got.Color)

			require.NoError(t, repo.DeleteProject(ctx, p.ID))
			_, err = repo.Load(ctx, first.ID)
			assert.ErrorIs(t, err, ErrNotFound, "deleting a project deletes its screens")
			projects, err := repo.ListProjects(ctx)
			require.NoError(t, err)
			assert.Empty(t, projects)
			assert.ErrorIs(t, repo.DeleteProject(ctx, p.ID), ErrNotFound)
		})
	}
}

func TestFileStoreSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s, err := NewFileStore(dir, nil)
	require.NoError(t, err)
	p, err := s.CreateProject(ctx, Project{Name: "Onboarding"})
	require.NoError(t, err)
	sc, err := s.CreateScreen(ctx, NewScreen{ProjectID: p.ID, Title: "Welcome", Image: png})
	require.NoError(t, err)
	list := []state.Annotation{state.Circle{CenterX: 10, CenterY: 10, EndX: 20, EndY: 10, Color: "#00ff00", StrokeSize: 2}}
	require.NoError(t, s.Save(ctx, sc.ID, Update{ImageData: []byte("flat"), Annotations: list}))

	reopened, err := NewFileStore(dir, nil)
	require.NoError(t, err)
	loaded, err := reopened.Load(ctx, sc.ID)
	require.NoError(t, err)
	assert.Equal(t, list, []state.Annotation(loaded.Annotations))
	assert.Equal(t, png, loaded.SourceImage)
	assert.Equal(t, []byte("flat"), loaded.ImageData)

	projects, err := reopened.ListProjects(ctx)
	require.NoError(t, err)
	require.Len(t, projects, 1)
	assert.Equal(t, 1, projects[0].ScreenCount)
}

func TestFileStoreSkipsMalformedAnnotations(t *testing.T) {
	dir := t.TempDir()
	index := `{
  "version": 1,
  "projects": [{"id": "p1", "name": "Legacy", "color": "#3b82f6", "createdAt": "2026-10-01T10:00:00Z", "screenCount": 2}],
  "screens": [
    {"id": "s1", "projectId": "p1", "title": "Cart", "createdAt": "2026-10-01T10:00:00Z", "updatedAt": "2026-10-01T10:00:00Z",
     "annotations": [
       {"type": "arrow", "startX": 1, "startY": 2, "endX": 30, "endY": 40, "color": "#ff0000", "strokeSize": 2},
       {"type": "freehand", "points": [1, 2, 3]},
       {"type": "text", "x": 5, "y": 6, "text": "Pay", "color": "#000000", "createdAt": "not a time"}
     ]},
    {"id": "s2", "projectId": "p1", "title": "Checkout", "createdAt": "2026-10-01T10:00:00Z", "updatedAt": "2026-10-01T10:00:00Z",
     "annotations": [{"type": "circle", "centerX": 10, "centerY": 10, "endX": 20, "endY": 10, "color": "#00ff00"}]}
  ]
}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, indexFile), []byte(index), 0o644))

	s, err := NewFileStore(dir, nil)
	require.NoError(t, err)

	ctx := context.Background()
	cart, err := s.Load(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, cart.Annotations, 1)
	assert.Equal(t, state.ToolArrow, cart.Annotations[0].Kind())

	checkout, err := s.Load(ctx, "s2")
	require.NoError(t, err)
	require.Len(t, checkout.Annotations, 1)
	assert.Equal(t, state.ToolCircle, checkout.Annotations[0].Kind())
}

func TestFileStoreSaveRollsBackWhenIndexWriteFails(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s, err := NewFileStore(dir, nil)
	require.NoError(t, err)
	p, err := s.CreateProject(ctx, Project{Name: "Settings"})
	require.NoError(t, err)
	sc, err := s.CreateScreen(ctx, NewScreen{ProjectID: p.ID, Title: "Profile", Image: png})
	require.NoError(t, err)
	kept := []state.Annotation{state.Rectangle{StartX: 1, StartY: 1, EndX: 5, EndY: 5, Color: "#ff0000", StrokeSize: 2}}
	require.NoError(t, s.Save(ctx, sc.ID, Update{ImageData: []byte("flat-1"), Annotations: kept}))

	// A non-empty directory in place of the index makes the rename fail.
	indexPath := filepath.Join(dir, indexFile)
	require.NoError(t, os.Remove(indexPath))
	require.NoError(t, os.MkdirAll(filepath.Join(indexPath, "blocker"), 0o755))

	lost := []state.Annotation{state.Arrow{StartX: 1, StartY: 1, EndX: 9, EndY: 9, Color: "#0000ff", StrokeSize: 2}}
	err = s.Save(ctx, sc.ID, Update{ImageData: []byte("flat-2"), Annotations: lost})
	require.Error(t, err)

	got, err := s.Load(ctx, sc.ID)
	require.NoError(t, err)
	assert.Equal(t, kept, []state.Annotation(got.Annotations))
	assert.Equal(t, []byte("flat-1"), got.ImageData)
	onDisk, err := os.ReadFile(s.imagePath(sc.ID, "flat"))
	require.NoError(t, err)
	assert.Equal(t, []byte("flat-1"), onDisk)
}

func TestOpen(t *testing.T) {
	repo, err := Open(Config{Driver: "memory"}, nil)
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, repo)

	repo, err = Open(Config{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "db", "s.db")}, nil)
	require.NoError(t, err)
	assert.IsType(t, &SQLStore{}, repo)
	require.NoError(t, repo.Close())

	_, err = Open(Config{Driver: "file"}, nil)
	assert.Error(t, err)
	_, err = Open(Config{Driver: "mongo", Path: "x"}, nil)
	assert.Error(t, err)
}

func TestParseTags(t *testing.T) {
	assert.Equal(t, []string{"login", "auth"}, ParseTags(" login, ,auth "))
	assert.Nil(t, ParseTags(""))
}
