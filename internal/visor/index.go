package visor

import (
	"bytes"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"strings"
)

var indexTemplate = template.Must(template.New("index").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
body { font-family: sans-serif; margin: 0; display: flex; }
nav { width: 200px; padding: 1em; background: #f4f4f4; min-height: 100vh; }
main { padding: 1em 2em; }
section { margin-bottom: 2em; }
.thumbs img { width: 56px; height: 56px; image-rendering: pixelated; margin: 2px; }
pre { background: #fafafa; padding: 0.5em; }
</style>
</head>
<body>
<nav>
{{range .Tabs}}<h3>{{.Name}}</h3>
<ul>{{range .Surfaces}}<li><a href="#{{.Anchor}}">{{.Name}}</a></li>{{end}}</ul>
{{end}}</nav>
<main>
<h1>{{.Title}}</h1>
{{range .Tabs}}{{range .Surfaces}}<section id="{{.Anchor}}">
<h2>{{.Tab}} / {{.Name}}</h2>
{{if .Thumbs}}<div class="thumbs">{{range .Thumbs}}<img src="{{.}}" alt="{{.}}">{{end}}</div>{{end}}
{{range .Images}}<img src="{{.}}" alt="{{.}}">
{{end}}{{range .Texts}}<pre>{{.}}</pre>
{{end}}{{if .Links}}<p>{{range .Links}}<a href="{{.}}">{{.}}</a> {{end}}</p>{{end}}
</section>
{{end}}{{end}}</main>
</body>
</html>
`))

type indexTab struct {
	Name     string
	Surfaces []indexSurface
}

type indexSurface struct {
	Name, Tab, Anchor string
	Thumbs, Images    []string
	Texts             []string
	Links             []string
}

// WriteIndex writes index.html at the output root listing every surface drawn so far,
// grouped by tab in first-use order, and returns its path.
func (v *Visor) WriteIndex(title string) (string, error) {
	data := struct {
		Title string
		Tabs  []*indexTab
	}{Title: title}

	byTab := map[string]*indexTab{}
	for _, e := range v.entries {
		tab, ok := byTab[e.surface.Tab]
		if !ok {
			tab = &indexTab{Name: e.surface.Tab}
			byTab[e.surface.Tab] = tab
			data.Tabs = append(data.Tabs, tab)
		}

		is := indexSurface{
			Name:   e.surface.Name,
			Tab:    e.surface.Tab,
			Anchor: slug(e.surface.Tab) + "--" + slug(e.surface.Name),
		}
		for _, rel := range e.files {
			href := filepath.ToSlash(rel)
			switch strings.ToLower(filepath.Ext(rel)) {
			case ".png":
				if strings.HasPrefix(filepath.Base(rel), "example_") {
					is.Thumbs = append(is.Thumbs, href)
				} else {
					is.Images = append(is.Images, href)
				}
			case ".svg":
				is.Images = append(is.Images, href)
			case ".txt":
				text, err := os.ReadFile(filepath.Join(v.dir, rel))
				if err != nil {
					return "", fmt.Errorf("index: %w", err)
				}
				is.Texts = append(is.Texts, string(text))
			default:
				is.Links = append(is.Links, href)
			}
		}
		tab.Surfaces = append(tab.Surfaces, is)
	}

	var buf bytes.Buffer
	if err := indexTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("index: %w", err)
	}
	path := filepath.Join(v.dir, "index.html")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return "", fmt.Errorf("index: %w", err)
	}
	v.logger.Printf("index=%s surfaces=%d", path, len(v.entries))
	return path, nil
}
