package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"fyne.io/fyne/v2/app"
	"github.com/spf13/cobra"

	"screenspec/internal/canvas"
	"screenspec/internal/export"
	share "screenspec/internal/net"
	"screenspec/internal/state"
	"screenspec/internal/storage"
	"screenspec/internal/surface"
	"screenspec/internal/ui"
)

func (e *env) runProjectCreate(cmd *cobra.Command, name, description, color string) error {
	repo, err := e.store()
	if err != nil {
		return err
	}
	p, err := repo.CreateProject(cmd.Context(), storage.Project{Name: name, Description: description, Color: color})
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), p.ID)
	return nil
}

func (e *env) runProjectList(cmd *cobra.Command) error {
	repo, err := e.store()
	if err != nil {
		return err
	}
	projects, err := repo.ListProjects(cmd.Context())
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tSCREENS\tCREATED")
	for _, p := range projects {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", p.ID, p.Name, p.ScreenCount, p.CreatedAt.Local().Format("2006-01-02 15:04"))
	}
	return tw.Flush()
}

func (e *env) runProjectDelete(cmd *cobra.Command, id string) error {
	repo, err := e.store()
	if err != nil {
		return err
	}
	if err := repo.DeleteProject(cmd.Context(), id); err != nil {
		return err
	}
	e.logger.Info("Project deleted", "project", id)
	return nil
}

func (e *env) runCapture(cmd *cobra.Command, projectID, path, title, url, kind string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read capture: %w", err)
	}
	if _, err := surface.DecodeBytes(data); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	if title == "" {
		title = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	repo, err := e.store()
	if err != nil {
		return err
	}
	s, err := repo.CreateScreen(cmd.Context(), storage.NewScreen{
		ProjectID:   projectID,
		Title:       title,
		URL:         url,
		CaptureType: kind,
		Image:       data,
	})
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), s.ID)
	return nil
}

func (e *env) runList(cmd *cobra.Command, projectID string) error {
	repo, err := e.store()
	if err != nil {
		return err
	}
	screens, err := repo.ListScreens(cmd.Context(), projectID)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tANNOTATIONS\tUPDATED")
	for _, s := range screens {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", s.ID, s.Title, len(s.Annotations), s.UpdatedAt.Local().Format("2006-01-02 15:04"))
	}
	return tw.Flush()
}

// openCanvas opens a screen for editing with the configured defaults and
// waits for its image.
func (e *env) openCanvas(ctx context.Context, screenID string, opts ...canvas.Option) (*canvas.Canvas, error) {
	repo, err := e.store()
	if err != nil {
		return nil, err
	}
	base := []canvas.Option{
		canvas.WithLogger(e.logger),
		canvas.WithHistoryCapacity(e.cfg.Editor.HistoryCapacity),
		canvas.WithDefaults(e.cfg.Editor.DefaultTool(), e.cfg.Editor.Style()),
	}
	c, err := canvas.Open(ctx, repo, screenID, append(base, opts...)...)
	if err != nil {
		return nil, err
	}
	if err := c.WaitReady(ctx); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

func parsePoint(s string) (state.Point, error) {
	xs, ys, ok := strings.Cut(s, ",")
	if !ok {
		return state.Point{}, fmt.Errorf("point %q: want x,y", s)
	}
	x, err := strconv.ParseFloat(strings.TrimSpace(xs), 64)
	if err != nil {
		return state.Point{}, fmt.Errorf("point %q: %w", s, err)
	}
	y, err := strconv.ParseFloat(strings.TrimSpace(ys), 64)
	if err != nil {
		return state.Point{}, fmt.Errorf("point %q: %w", s, err)
	}
	return state.Point{X: x, Y: y}, nil
}

func (e *env) runAnnotate(cmd *cobra.Command, screenID string, f annotateFlags) error {
	tool, err := state.ParseTool(f.tool)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	text := f.text
	c, err := e.openCanvas(ctx, screenID, canvas.WithPrompter(canvas.PrompterFunc(func(state.Point) (string, bool) {
		return text, text != ""
	})))
	if err != nil {
		return err
	}
	defer c.Close()

	c.SelectTool(tool)
	if f.color != "" {
		if err := c.SetColor(f.color); err != nil {
			return err
		}
	}
	if f.size != 0 {
		if err := c.SetStrokeSize(f.size); err != nil {
			return err
		}
	}

	before := c.Len()
	if tool == state.ToolText {
		at, err := parsePoint(f.at)
		if err != nil {
			return err
		}
		if err := c.Click(at); err != nil {
			return err
		}
	} else {
		from, err := parsePoint(f.from)
		if err != nil {
			return err
		}
		to, err := parsePoint(f.to)
		if err != nil {
			return err
		}
		if err := c.PointerDown(from); err != nil {
			return err
		}
		if err := c.PointerMove(to); err != nil {
			return err
		}
		if err := c.PointerUp(to); err != nil {
			return err
		}
	}
	if c.Len() == before {
		return errors.New("nothing was added")
	}
	if err := c.Save(ctx); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", screenID, export.Describe(c.Annotations()[c.Len()-1]))
	return nil
}

func (e *env) runUndo(cmd *cobra.Command, screenID string, steps int) error {
	ctx := cmd.Context()
	c, err := e.openCanvas(ctx, screenID)
	if err != nil {
		return err
	}
	defer c.Close()

	removed := 0
	for removed < steps && c.Undo() {
		removed++
	}
	if removed == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "nothing to undo")
		return nil
	}
	if err := c.Save(ctx); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "removed %d, %d left\n", removed, c.Len())
	return nil
}

func (e *env) runFlatten(cmd *cobra.Command, screenID, out string) error {
	c, err := e.openCanvas(cmd.Context(), screenID)
	if err != nil {
		return err
	}
	defer c.Close()

	img, err := c.ExportRenderedImage()
	if err != nil {
		return err
	}
	data, err := surface.EncodePNG(img)
	if err != nil {
		return err
	}
	if out == "" {
		out = screenID + ".png"
	}
	if err := os.WriteFile(out, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", out, err)
	}
	e.logger.Info("Flattened screen written", "screen", screenID, "file", out)
	return nil
}

// exportProject renders every screen of a project to w.
func (e *env) exportProject(ctx context.Context, w io.Writer, projectID string, ex export.Exporter, author string) error {
	repo, err := e.store()
	if err != nil {
		return err
	}
	p, err := repo.GetProject(ctx, projectID)
	if err != nil {
		return err
	}
	screens, err := repo.ListScreens(ctx, projectID)
	if err != nil {
		return err
	}
	return ex.Render(ctx, w, export.Collection{
		Project:     *p,
		Screens:     screens,
		Author:      author,
		GeneratedAt: time.Now(),
	})
}

func (e *env) runExport(cmd *cobra.Command, projectID, out, format, author string) error {
	if format == "" {
		format = e.cfg.Export.Format
	}
	if author == "" {
		author = e.cfg.Export.Author
	}
	ex, err := export.New(format, e.logger)
	if err != nil {
		return err
	}
	if out == "" {
		repo, err := e.store()
		if err != nil {
			return err
		}
		p, err := repo.GetProject(cmd.Context(), projectID)
		if err != nil {
			return err
		}
		out = strings.ReplaceAll(strings.ToLower(p.Name), " ", "-") + ex.Ext()
	}

	f, err := os.Create(out)
	if err != nil {
		return fmt.Errorf("create %s: %w", out, err)
	}
	if err := e.exportProject(cmd.Context(), f, projectID, ex, author); err != nil {
		f.Close()
		os.Remove(out)
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), out)
	return nil
}

// runSession opens a screen for a live session: shared over the network,
// edited in the desktop window, or both.
func (e *env) runSession(cmd *cobra.Command, screenID string, shared, editor bool) error {
	ctx, stop := signalContext()
	defer stop()

	repo, err := e.store()
	if err != nil {
		return err
	}
	screen, err := repo.Load(ctx, screenID)
	if err != nil {
		return err
	}
	title := export.ScreenTitle(screen, 1)

	emitter := state.NewEmitter()
	c, err := e.openCanvas(ctx, screenID, canvas.WithEmitter(emitter))
	if err != nil {
		return err
	}
	defer c.Close()

	if shared {
		hub := share.NewHub(screenID, emitter, c.Annotations(), e.logger)
		srv := share.NewServer(hub, c, title, e.logger)
		if err := srv.Start(fmt.Sprintf(":%d", e.cfg.Share.Port)); err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
		if e.cfg.Share.Advertise {
			mdnsServer, err := share.Advertise(e.cfg.Share.Instance, srv.Port(), screenID, title)
			if err != nil {
				e.logger.Warn("mDNS advertise failed", "error", err)
			} else {
				defer mdnsServer.Shutdown()
			}
		}
		fmt.Fprintln(cmd.OutOrStdout(), share.ShareURL(srv.Port()))
	}

	if !editor {
		<-ctx.Done()
		return nil
	}

	ex, err := export.New(e.cfg.Export.Format, e.logger)
	if err != nil {
		return err
	}
	a := app.NewWithID("io.screenspec.editor")
	ed := ui.NewEditor(a, c, ui.Options{
		Title:     title,
		Logger:    e.logger,
		ExportExt: ex.Ext(),
		Export: func(ctx context.Context, w io.Writer) error {
			if err := c.Save(ctx); err != nil {
				return fmt.Errorf("save before export: %w", err)
			}
			return e.exportProject(ctx, w, screen.ProjectID, ex, e.cfg.Export.Author)
		},
	})
	go func() {
		<-ctx.Done()
		a.Quit()
	}()
	ed.ShowAndRun()
	return nil
}

func (e *env) runFollow(cmd *cobra.Command, addr string) error {
	ctx, stop := signalContext()
	defer stop()

	out := cmd.OutOrStdout()
	replica := state.NewReplica(e.logger)
	err := share.Follow(ctx, addr, replica, func(op state.Op) {
		switch op.Type {
		case state.OpAppend:
			fmt.Fprintf(out, "+ %s\n", export.Describe(op.Annotation))
		case state.OpUndo:
			fmt.Fprintln(out, "- undo")
		case state.OpReplace:
			fmt.Fprintf(out, "= %d annotations\n", len(op.Annotations))
			for _, a := range op.Annotations {
				fmt.Fprintf(out, "  %s\n", export.Describe(a))
			}
		}
	}, e.logger)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (e *env) runDiscover(cmd *cobra.Command, timeout time.Duration) error {
	peers, err := share.Browse(timeout)
	if errors.Is(err, share.ErrNoPeers) {
		fmt.Fprintln(cmd.OutOrStdout(), "no shared screens found")
		return nil
	}
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ADDRESS\tSCREEN\tTITLE\tHOST")
	for _, p := range peers {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", p.Addr, p.ScreenID, p.Title, p.Instance)
	}
	return tw.Flush()
}
