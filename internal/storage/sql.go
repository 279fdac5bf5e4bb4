package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"screenspec/internal/state"
)

// SQLStore keeps projects and screens in a SQL database. Images are stored
// inline as blobs.
type SQLStore struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

// OpenSQLite opens (creating if needed) a SQLite database file.
func OpenSQLite(path string, logger *slog.Logger) (*SQLStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	store, err := NewSQLStore(db, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// NewSQLStore wraps db and ensures the schema exists.
func NewSQLStore(db *sql.DB, logger *slog.Logger) (*SQLStore, error) {
	if db == nil {
		return nil, fmt.Errorf("db is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &SQLStore{db: db, logger: logger, now: time.Now}
	if err := s.ensureSchema(context.Background()); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (s *SQLStore) ensureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS projects (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			name_key TEXT NOT NULL UNIQUE,
			description TEXT NOT NULL DEFAULT '',
			color TEXT NOT NULL,
			created_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS screens (
			id TEXT PRIMARY KEY,
			project_id TEXT NOT NULL,
			title TEXT NOT NULL,
			url TEXT NOT NULL DEFAULT '',
			capture_type TEXT NOT NULL DEFAULT '',
			source_image BLOB,
			image_data BLOB,
			annotations TEXT NOT NULL DEFAULT '[]',
			metadata TEXT NOT NULL DEFAULT '{}',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_screens_project_id ON screens (project_id)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(v string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", v, err)
	}
	return t, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

const screenColumns = `id, project_id, title, url, capture_type, source_image, image_data, annotations, metadata, created_at, updated_at`

func scanScreen(row rowScanner) (*Screen, error) {
	var sc Screen
	var annotations, metadata, created, updated string
	if err := row.Scan(
		&sc.ID,
		&sc.ProjectID,
		&sc.Title,
		&sc.URL,
		&sc.CaptureType,
		&sc.SourceImage,
		&sc.ImageData,
		&annotations,
		&metadata,
		&created,
		&updated,
	); err != nil {
		return nil, err
	}
	list, err := state.UnmarshalAnnotations([]byte(annotations))
	if err != nil {
		return nil, fmt.Errorf("screen %s annotations: %w", sc.ID, err)
	}
	sc.Annotations = list
	if err := json.Unmarshal([]byte(metadata), &sc.Metadata); err != nil {
		return nil, fmt.Errorf("screen %s metadata: %w", sc.ID, err)
	}
	if sc.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	if sc.UpdatedAt, err = parseTime(updated); err != nil {
		return nil, err
	}
	return &sc, nil
}

func (s *SQLStore) Load(ctx context.Context, screenID string) (*Screen, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+screenColumns+` FROM screens WHERE id = ?`, screenID)
	sc, err := scanScreen(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("screen %s: %w", screenID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load screen %s: %w", screenID, err)
	}
	return sc, nil
}

func (s *SQLStore) Save(ctx context.Context, screenID string, u Update) error {
	annotations, err := state.MarshalAnnotations(u.Annotations)
	if err != nil {
		return fmt.Errorf("encode annotations: %w", err)
	}
	metadata, err := json.Marshal(u.Metadata)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}

	sets := []string{"annotations = ?", "metadata = ?", "updated_at = ?"}
	args := []any{string(annotations), string(metadata), formatTime(s.now())}
	if len(u.ImageData) > 0 {
		sets = append(sets, "image_data = ?")
		args = append(args, u.ImageData)
	}
	if t := strings.TrimSpace(u.Metadata.Title); t != "" {
		sets = append(sets, "title = ?")
		args = append(args, t)
	}
	args = append(args, screenID)

	res, err := s.db.ExecContext(ctx, `UPDATE screens SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return fmt.Errorf("save screen %s: %w", screenID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("screen %s: %w", screenID, ErrNotFound)
	}
	s.logger.Debug("storage: screen saved", "screen", screenID, "annotations", len(u.Annotations))
	return nil
}

const projectQuery = `SELECT p.id, p.name, p.description, p.color, p.created_at,
	(SELECT COUNT(*) FROM screens s WHERE s.project_id = p.id)
	FROM projects p`

func scanProject(row rowScanner) (*Project, error) {
	var p Project
	var created string
	if err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Color, &created, &p.ScreenCount); err != nil {
		return nil, err
	}
	t, err := parseTime(created)
	if err != nil {
		return nil, err
	}
	p.CreatedAt = t
	return &p, nil
}

func nameTaken(ctx context.Context, tx *sql.Tx, name, exceptID string) (bool, error) {
	var n int
	err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM projects WHERE name_key = ? AND id <> ?`,
		strings.ToLower(name), exceptID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check project name: %w", err)
	}
	return n > 0, nil
}

func (s *SQLStore) CreateProject(ctx context.Context, p Project) (*Project, error) {
	if err := normalizeProject(&p); err != nil {
		return nil, err
	}
	p.ID = uuid.NewString()
	p.CreatedAt = s.now()
	p.ScreenCount = 0

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	taken, err := nameTaken(ctx, tx, p.Name, "")
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, fmt.Errorf("%q: %w", p.Name, ErrDuplicateName)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO projects (id, name, name_key, description, color, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		p.ID, p.Name, strings.ToLower(p.Name), p.Description, p.Color, formatTime(p.CreatedAt),
	); err != nil {
		return nil, fmt.Errorf("insert project: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	s.logger.Info("storage: project created", "id", p.ID, "name", p.Name)
	return &p, nil
}

func (s *SQLStore) GetProject(ctx context.Context, id string) (*Project, error) {
	p, err := scanProject(s.db.QueryRowContext(ctx, projectQuery+` WHERE p.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("project %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get project %s: %w", id, err)
	}
	return p, nil
}

func (s *SQLStore) ListProjects(ctx context.Context) ([]*Project, error) {
	rows, err := s.db.QueryContext(ctx, projectQuery+` ORDER BY p.created_at DESC, p.name`)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	var out []*Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	return out, nil
}

func (s *SQLStore) UpdateProject(ctx context.Context, p Project) error {
	if err := normalizeProject(&p); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	taken, err := nameTaken(ctx, tx, p.Name, p.ID)
	if err != nil {
		return err
	}
	if taken {
		return fmt.Errorf("%q: %w", p.Name, ErrDuplicateName)
	}
	res, err := tx.ExecContext(ctx,
		`UPDATE projects SET name = ?, name_key = ?, description = ?, color = ? WHERE id = ?`,
		p.Name, strings.ToLower(p.Name), p.Description, p.Color, p.ID)
	if err != nil {
		return fmt.Errorf("update project %s: %w", p.ID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("project %s: %w", p.ID, ErrNotFound)
	}
	return tx.Commit()
}

// DeleteProject removes the project and every screen in it.
func (s *SQLStore) DeleteProject(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	screens, err := tx.ExecContext(ctx, `DELETE FROM screens WHERE project_id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete project %s screens: %w", id, err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM projects WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete project %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("project %s: %w", id, ErrNotFound)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	removed, _ := screens.RowsAffected()
	s.logger.Info("storage: project deleted", "id", id, "screens", removed)
	return nil
}

func (s *SQLStore) projectExists(ctx context.Context, id string) error {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM projects WHERE id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("project %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("check project %s: %w", id, err)
	}
	return nil
}

func (s *SQLStore) CreateScreen(ctx context.Context, n NewScreen) (*Screen, error) {
	if len(n.Image) == 0 {
		return nil, fmt.Errorf("%w: screen image is required", ErrInvalid)
	}
	if err := s.projectExists(ctx, n.ProjectID); err != nil {
		return nil, err
	}
	sc := newScreen(n, s.now())
	metadata, err := json.Marshal(sc.Metadata)
	if err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO screens (`+screenColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sc.ID, sc.ProjectID, sc.Title, sc.URL, sc.CaptureType, sc.SourceImage, sc.ImageData,
		"[]", string(metadata), formatTime(sc.CreatedAt), formatTime(sc.UpdatedAt),
	)
	if err != nil {
		return nil, fmt.Errorf("insert screen: %w", err)
	}
	s.logger.Info("storage: screen created", "id", sc.ID, "project", sc.ProjectID, "bytes", len(n.Image))
	return sc, nil
}

// ListScreens returns the screens of a project in capture order. An empty
// projectID lists every screen.
func (s *SQLStore) ListScreens(ctx context.Context, projectID string) ([]*Screen, error) {
	query := `SELECT ` + screenColumns + ` FROM screens`
	var args []any
	if projectID != "" {
		if err := s.projectExists(ctx, projectID); err != nil {
			return nil, err
		}
		query += ` WHERE project_id = ?`
		args = append(args, projectID)
	}
	query += ` ORDER BY rowid`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list screens: %w", err)
	}
	defer rows.Close()

	var out []*Screen
	for rows.Next() {
		sc, err := scanScreen(rows)
		if err != nil {
			return nil, fmt.Errorf("scan screen: %w", err)
		}
		out = append(out, sc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list screens: %w", err)
	}
	return out, nil
}

func (s *SQLStore) DeleteScreen(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM screens WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete screen %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("screen %s: %w", id, ErrNotFound)
	}
	return nil
}
