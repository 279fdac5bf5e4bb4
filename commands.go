package main

import (
	"time"

	"github.com/spf13/cobra"
)

func buildProjectCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "project",
		Short: "Manage projects",
	}

	var description, color string
	create := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return e.runProjectCreate(cmd, args[0], description, color)
		},
	}
	create.Flags().StringVar(&description, "description", "", "project description")
	create.Flags().StringVar(&color, "color", "", "accent color used in exports (#rrggbb)")

	list := &cobra.Command{
		Use:   "list",
		Short: "List projects",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return e.runProjectList(cmd)
		},
	}

	del := &cobra.Command{
		Use:   "delete <project-id>",
		Short: "Delete a project and all of its screens",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return e.runProjectDelete(cmd, args[0])
		},
	}

	cmd.AddCommand(create, list, del)
	return cmd
}

func buildCaptureCmd(e *env) *cobra.Command {
	var title, url, kind string
	cmd := &cobra.Command{
		Use:   "capture <project-id> <image>",
		Short: "Import a screenshot into a project",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return e.runCapture(cmd, args[0], args[1], title, url, kind)
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "screen title (default: file name)")
	cmd.Flags().StringVar(&url, "url", "", "page URL the screenshot was taken from")
	cmd.Flags().StringVar(&kind, "type", "visible", "capture type: visible, full or selection")
	return cmd
}

func buildListCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "list [project-id]",
		Short: "List screens",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			project := ""
			if len(args) == 1 {
				project = args[0]
			}
			return e.runList(cmd, project)
		},
	}
}

type annotateFlags struct {
	tool, from, to, at, text, color string
	size                            int
}

func buildAnnotateCmd(e *env) *cobra.Command {
	var f annotateFlags
	cmd := &cobra.Command{
		Use:   "annotate <screen-id>",
		Short: "Add one annotation to a screen without opening the editor",
		Long: `Adds a shape by dragging from --from to --to, or a text label with --at and --text.

  screenspec annotate s1 --tool rect --from 10,10 --to 200,80
  screenspec annotate s1 --tool text --at 40,60 --text "Submit is disabled"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return e.runAnnotate(cmd, args[0], f)
		},
	}
	cmd.Flags().StringVar(&f.tool, "tool", "arrow", "text, arrow, rect, highlight or circle")
	cmd.Flags().StringVar(&f.from, "from", "", "drag start x,y")
	cmd.Flags().StringVar(&f.to, "to", "", "drag end x,y")
	cmd.Flags().StringVar(&f.at, "at", "", "text position x,y")
	cmd.Flags().StringVar(&f.text, "text", "", "label text")
	cmd.Flags().StringVar(&f.color, "color", "", "annotation color (default from config)")
	cmd.Flags().IntVar(&f.size, "size", 0, "stroke size (default from config)")
	return cmd
}

func buildUndoCmd(e *env) *cobra.Command {
	var steps int
	cmd := &cobra.Command{
		Use:   "undo <screen-id>",
		Short: "Remove the most recent annotations of a screen",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return e.runUndo(cmd, args[0], steps)
		},
	}
	cmd.Flags().IntVarP(&steps, "steps", "n", 1, "number of annotations to remove")
	return cmd
}

func buildFlattenCmd(e *env) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "flatten <screen-id>",
		Short: "Write the annotated image as PNG",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return e.runFlatten(cmd, args[0], out)
		},
	}
	cmd.Flags().StringVarP(&out, "output", "o", "", "output file (default <screen-id>.png)")
	return cmd
}

func buildEditCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "edit <screen-id>",
		Short: "Open a screen in the desktop editor",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return e.runSession(cmd, args[0], false, true)
		},
	}
}

func buildExportCmd(e *env) *cobra.Command {
	var out, format, author string
	cmd := &cobra.Command{
		Use:   "export <project-id>",
		Short: "Export a project as a PDF or HTML specification",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return e.runExport(cmd, args[0], out, format, author)
		},
	}
	cmd.Flags().StringVarP(&out, "output", "o", "", "output file (default <project-name>.<format>)")
	cmd.Flags().StringVar(&format, "format", "", "pdf or html (default from config)")
	cmd.Flags().StringVar(&author, "author", "", "author shown on the cover (default from config)")
	return cmd
}

func buildShareCmd(e *env) *cobra.Command {
	var port int
	var edit bool
	cmd := &cobra.Command{
		Use:   "share <screen-id>",
		Short: "Serve a screen to viewers on the local network",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if port != 0 {
				e.cfg.Share.Port = port
			}
			return e.runSession(cmd, args[0], true, edit)
		},
	}
	cmd.Flags().IntVarP(&port, "port", "p", 0, "listen port (default from config)")
	cmd.Flags().BoolVar(&edit, "edit", false, "open the editor while sharing")
	return cmd
}

func buildFollowCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "follow <address>",
		Short: "Print the annotations of a shared screen as they change",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return e.runFollow(cmd, args[0])
		},
	}
}

func buildDiscoverCmd(e *env) *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Find shared screens on the local network",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return e.runDiscover(cmd, timeout)
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 3*time.Second, "how long to listen for answers")
	return cmd
}
