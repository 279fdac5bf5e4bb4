// Package storage persists projects and annotated screens.
package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	"screenspec/internal/state"
)

var (
	// ErrNotFound is returned when a project or screen does not exist.
	ErrNotFound = errors.New("storage: not found")
	// ErrDuplicateName is returned when a project name is already taken.
	ErrDuplicateName = errors.New("storage: project name already exists")
	// ErrInvalid is returned for records missing required fields.
	ErrInvalid = errors.New("storage: invalid record")
)

// Metadata is free-form text describing a screen. It is stored and exported
// as-is.
type Metadata struct {
	Title        string   `json:"title,omitempty"`
	FunctionName string   `json:"functionName,omitempty"`
	Author       string   `json:"createdBy,omitempty"`
	Tags         []string `json:"tags,omitempty"`
	Description  string   `json:"description,omitempty"`
}

// ParseTags splits a comma separated tag list, dropping blanks.
func ParseTags(s string) []string {
	var tags []string
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

// Screen is a captured image together with its annotations.
type Screen struct {
	ID          string     `json:"id"`
	ProjectID   string     `json:"projectId"`
	Title       string     `json:"title"`
	URL         string     `json:"url,omitempty"`
	CaptureType string     `json:"type,omitempty"`
	SourceImage []byte     `json:"-"` // raw capture, never annotated
	ImageData   []byte     `json:"-"` // PNG with annotations baked in
	Annotations state.List `json:"annotations"`
	Metadata    Metadata   `json:"metadata"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// Base returns the image an editor should open onto.
func (s *Screen) Base() []byte {
	if len(s.SourceImage) > 0 {
		return s.SourceImage
	}
	return s.ImageData
}

// Update is what an editor writes back on save.
type Update struct {
	ImageData   []byte
	Annotations []state.Annotation
	Metadata    Metadata
}

// Gateway loads and saves single screens.
type Gateway interface {
	Load(ctx context.Context, screenID string) (*Screen, error)
	Save(ctx context.Context, screenID string, u Update) error
}

// Project groups screens.
type Project struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Color       string    `json:"color"`
	CreatedAt   time.Time `json:"createdAt"`
	ScreenCount int       `json:"screenCount"`
}

// DefaultProjectColor is used when a project is created without one.
const DefaultProjectColor = "#3b82f6"

// NewScreen describes a capture to import.
type NewScreen struct {
	ProjectID   string
	Title       string
	URL         string
	CaptureType string
	Image       []byte
}

// Repository is the full persistence surface used by the CLI and exporters.
type Repository interface {
	Gateway

	CreateProject(ctx context.Context, p Project) (*Project, error)
	GetProject(ctx context.Context, id string) (*Project, error)
	ListProjects(ctx context.Context) ([]*Project, error)
	UpdateProject(ctx context.Context, p Project) error
	DeleteProject(ctx context.Context, id string) error

	CreateScreen(ctx context.Context, s NewScreen) (*Screen, error)
	ListScreens(ctx context.Context, projectID string) ([]*Screen, error)
	DeleteScreen(ctx context.Context, id string) error

	Close() error
}
