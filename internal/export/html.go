package export

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"html/template"
	"io"
	"log/slog"
	"strings"

	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/css"
	"github.com/tdewolff/minify/v2/html"
)

const htmlImageMaxPx = 1600

// HTML writes a single self-contained page with the screens inlined as
// data URIs.
type HTML struct {
	Logger *slog.Logger
	// Raw disables minification.
	Raw bool
}

func (e *HTML) Ext() string { return ".html" }

var page = template.Must(template.New("page").Funcs(template.FuncMap{
	"join": strings.Join,
}).Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>UI Specification - {{.Project.Name}}</title>
<style>
  body { font-family: Helvetica, Arial, sans-serif; margin: 0; background: #f0f0f0; color: #1e293b; }
  header { border-top: 12px solid {{.Accent}}; padding: 48px 10%; background: #fff; }
  header h1 { margin: 0; font-size: 32px; }
  header h2 { margin: 8px 0 0; color: {{.Accent}}; font-weight: normal; }
  nav, section { background: #fff; margin: 24px 10%; padding: 24px; }
  nav ol { padding-left: 20px; }
  section h3 { border-bottom: 3px solid {{.Accent}}; padding-bottom: 6px; }
  table { border-collapse: collapse; width: 100%; margin-bottom: 16px; }
  th, td { border: 1px solid #e2e8f0; padding: 4px 8px; text-align: left; vertical-align: top; }
  th { background: #f1f5f9; width: 140px; }
  img { display: block; max-width: 100%; margin: 0 auto; border: 1px solid #cbd5e1; }
  .missing { background: #f1f5f9; color: #94a3b8; padding: 48px; text-align: center; }
  .dot { display: inline-block; width: 10px; height: 10px; border-radius: 50%; margin-right: 6px; }
  footer { margin: 24px 10%; font-size: 12px; color: #94a3b8; }
</style>
</head>
<body>
<header>
  <h1>UI Specification</h1>
  <h2>{{.Project.Name}}</h2>
  {{with .Project.Description}}<p>{{.}}</p>{{end}}
  <p>{{len .Screens}} screens &middot; generated {{.Generated}}{{with .Author}} by {{.}}{{end}}</p>
</header>
<nav>
  <h3>Contents</h3>
  <ol>
  {{range .Screens}}<li><a href="#{{.Anchor}}">{{.Title}}</a>{{with .Meta.Description}} <small>{{.}}</small>{{end}}</li>
  {{end}}</ol>
</nav>
{{range .Screens}}
<section id="{{.Anchor}}">
  <h3>{{.Title}}</h3>
  <table>
    <tr><th>Function</th><td>{{or .Meta.FunctionName "-"}}</td></tr>
    <tr><th>Author</th><td>{{or .Meta.Author "-"}}</td></tr>
    <tr><th>Tags</th><td>{{with .Meta.Tags}}{{join . ", "}}{{else}}-{{end}}</td></tr>
    <tr><th>Description</th><td>{{or .Meta.Description "-"}}</td></tr>
    {{with .URL}}<tr><th>URL</th><td><a href="{{.}}">{{.}}</a></td></tr>{{end}}
  </table>
  {{if .Image}}<img src="{{.Image}}" width="{{.Width}}" height="{{.Height}}" alt="{{.Title}}">{{else}}<div class="missing">Image unavailable</div>{{end}}
  {{with .Notes}}<h4>Annotations ({{len .}})</h4>
  <ul>{{range .}}<li><span class="dot" style="background: {{.Color}}"></span>{{.Text}}</li>{{end}}</ul>{{end}}
</section>
{{end}}
<footer>Generated {{.Generated}}</footer>
</body>
</html>
`))

type htmlPage struct {
	Project   any
	Accent    template.CSS
	Author    string
	Generated string
	Screens   []htmlScreen
}

type htmlScreen struct {
	Anchor, Title, URL string
	Meta               any
	Image              template.URL
	Width, Height      int
	Notes              []htmlNote
}

type htmlNote struct {
	Color template.CSS
	Text  string
}

func (e *HTML) Render(ctx context.Context, w io.Writer, c Collection) error {
	if err := c.validate(); err != nil {
		return err
	}
	logger := e.Logger
	if logger == nil {
		logger = slog.Default()
	}
	images, err := prepareImages(ctx, c.Screens, htmlImageMaxPx)
	if err != nil {
		return fmt.Errorf("prepare images: %w", err)
	}

	data := htmlPage{
		Project:   c.Project,
		Accent:    cssColor(c.Project.Color),
		Author:    c.Author,
		Generated: c.generated().Format("02.01.2006 15:04"),
	}
	for i, s := range c.Screens {
		hs := htmlScreen{
			Anchor: fmt.Sprintf("screen-%d", i+1),
			Title:  ScreenTitle(s, i+1),
			URL:    s.URL,
			Meta:   s.Metadata,
		}
		if img := images[i]; img.Err == nil {
			hs.Image = template.URL("data:image/png;base64," + base64.StdEncoding.EncodeToString(img.PNG))
			hs.Width, hs.Height = img.Width, img.Height
		} else {
			logger.Warn("Screen image unreadable", "screen", s.ID, "err", img.Err)
		}
		for _, a := range s.Annotations {
			hs.Notes = append(hs.Notes, htmlNote{Color: cssColor(string(a.StyleOf().Color)), Text: Describe(a)})
		}
		data.Screens = append(data.Screens, hs)
	}

	var buf bytes.Buffer
	if err := page.Execute(&buf, data); err != nil {
		return fmt.Errorf("render html: %w", err)
	}
	if e.Raw {
		_, err = buf.WriteTo(w)
		return err
	}
	m := minify.New()
	m.AddFunc("text/css", css.Minify)
	m.AddFunc("text/html", html.Minify)
	if err := m.Minify("text/html", w, &buf); err != nil {
		return fmt.Errorf("minify html: %w", err)
	}
	logger.Info("HTML exported", "project", c.Project.ID, "screens", len(c.Screens))
	return nil
}

// cssColor passes only well-formed colors into style contexts.
func cssColor(hex string) template.CSS {
	c := rgb(hex)
	return template.CSS(fmt.Sprintf("#%02x%02x%02x", c[0], c[1], c[2]))
}
