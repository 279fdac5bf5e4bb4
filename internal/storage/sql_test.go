package storage

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"screenspec/internal/state"
)

// setupMockDB creates a store over a mock database, skipping schema creation.
func setupMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *SQLStore) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock db: %v", err)
	}
	store := &SQLStore{db: db, logger: slog.Default(), now: func() time.Time {
		return time.Date(2026, 10, 15, 8, 0, 0, 0, time.UTC)
	}}
	return db, mock, store
}

func TestNewSQLStore_EnsuresSchema(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS projects").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS screens").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE INDEX IF NOT EXISTS idx_screens_project_id").WillReturnResult(sqlmock.NewResult(0, 0))

	_, err = NewSQLStore(db, nil)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNewSQLStore_SchemaError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS projects").WillReturnError(errors.New("read-only"))

	_, err = NewSQLStore(db, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ensure schema")

	_, err = NewSQLStore(nil, nil)
	assert.Error(t, err)
}

func TestSQLStore_Load(t *testing.T) {
	columns := []string{"id", "project_id", "title", "url", "capture_type", "source_image", "image_data", "annotations", "metadata", "created_at", "updated_at"}

	tests := []struct {
		name      string
		setupMock func(sqlmock.Sqlmock)
		wantErr   error
		check     func(t *testing.T, s *Screen)
	}{
		{
			name: "found",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery("SELECT (.+) FROM screens WHERE id = ?").
					WithArgs("screen-1").
					WillReturnRows(sqlmock.NewRows(columns).AddRow(
						"screen-1", "project-1", "Login", "https://app.test/login", "visible",
						[]byte("src"), []byte("flat"),
						`[{"type":"rect","startX":1,"startY":2,"endX":3,"endY":4,"color":"#ff0000","strokeSize":2}]`,
						`{"title":"Login","tags":["auth"]}`,
						"2026-10-01T10:00:00Z", "2026-10-02T10:00:00Z",
					))
			},
			check: func(t *testing.T, s *Screen) {
				assert.Equal(t, "project-1", s.ProjectID)
				require.Len(t, s.Annotations, 1)
				assert.Equal(t, state.ToolRectangle, s.Annotations[0].Kind())
				assert.Equal(t, []string{"auth"}, s.Metadata.Tags)
				assert.Equal(t, 2, s.UpdatedAt.Day())
			},
		},
		{
			name: "not found",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery("SELECT (.+) FROM screens WHERE id = ?").
					WithArgs("screen-1").
					WillReturnError(sql.ErrNoRows)
			},
			wantErr: ErrNotFound,
		},
		{
			name: "unknown annotation skipped",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery("SELECT (.+) FROM screens WHERE id = ?").
					WithArgs("screen-1").
					WillReturnRows(sqlmock.NewRows(columns).AddRow(
						"screen-1", "project-1", "Login", "", "", nil, nil,
						`[{"type":"spiral"},{"type":"arrow","startX":1,"startY":2,"endX":3,"endY":4,"color":"#ff0000"}]`,
						`{}`, "2026-10-01T10:00:00Z", "2026-10-01T10:00:00Z",
					))
			},
			check: func(t *testing.T, s *Screen) {
				require.Len(t, s.Annotations, 1)
				assert.Equal(t, state.ToolArrow, s.Annotations[0].Kind())
			},
		},
		{
			name: "corrupt annotations",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery("SELECT (.+) FROM screens WHERE id = ?").
					WithArgs("screen-1").
					WillReturnRows(sqlmock.NewRows(columns).AddRow(
						"screen-1", "project-1", "Login", "", "", nil, nil,
						`{not json`, `{}`, "2026-10-01T10:00:00Z", "2026-10-01T10:00:00Z",
					))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, store := setupMockDB(t)
			defer db.Close()
			tt.setupMock(mock)

			s, err := store.Load(context.Background(), "screen-1")
			switch {
			case tt.check != nil:
				require.NoError(t, err)
				tt.check(t, s)
			case tt.wantErr != nil:
				assert.ErrorIs(t, err, tt.wantErr)
			default:
				assert.Error(t, err)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestSQLStore_Save(t *testing.T) {
	update := Update{
		ImageData:   []byte("png"),
		Annotations: []state.Annotation{state.Text{X: 1, Y: 2, Text: "hi", Color: "#000000", StrokeSize: 2}},
		Metadata:    Metadata{Title: "Renamed"},
	}

	tests := []struct {
		name      string
		setupMock func(sqlmock.Sqlmock)
		wantErr   error
		errText   string
	}{
		{
			name: "updates image, annotations and title",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec("UPDATE screens SET annotations = \\?, metadata = \\?, updated_at = \\?, image_data = \\?, title = \\? WHERE id = \\?").
					WithArgs(sqlmock.AnyArg(), `{"title":"Renamed"}`, "2026-10-15T08:00:00Z", []byte("png"), "Renamed", "screen-1").
					WillReturnResult(sqlmock.NewResult(0, 1))
			},
		},
		{
			name: "missing screen",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec("UPDATE screens").WillReturnResult(sqlmock.NewResult(0, 0))
			},
			wantErr: ErrNotFound,
		},
		{
			name: "database error",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec("UPDATE screens").WillReturnError(errors.New("disk I/O error"))
			},
			errText: "disk I/O error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, store := setupMockDB(t)
			defer db.Close()
			tt.setupMock(mock)

			err := store.Save(context.Background(), "screen-1", update)
			switch {
			case tt.wantErr != nil:
				assert.ErrorIs(t, err, tt.wantErr)
			case tt.errText != "":
				require.Error(t, err)
				assert.True(t, strings.Contains(err.Error(), tt.errText))
			default:
				assert.NoError(t, err)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestSQLStore_CreateProjectDuplicate(t *testing.T) {
	db, mock, store := setupMockDB(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM projects WHERE name_key = \\? AND id <> \\?").
		WithArgs("release 2.0", "").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectRollback()

	_, err := store.CreateProject(context.Background(), Project{Name: "Release 2.0"})
	assert.ErrorIs(t, err, ErrDuplicateName)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_DeleteProjectRollsBack(t *testing.T) {
	db, mock, store := setupMockDB(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM screens WHERE project_id = ?").WithArgs("p1").WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec("DELETE FROM projects WHERE id = ?").WithArgs("p1").WillReturnError(errors.New("locked"))
	mock.ExpectRollback()

	err := store.DeleteProject(context.Background(), "p1")
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
