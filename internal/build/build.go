package build

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/tdewolff/minify/v2"
	mhtml "github.com/tdewolff/minify/v2/html"

	"github.com/mdpeek/mdpeek/internal/store"
	"github.com/mdpeek/mdpeek/internal/watch"
)

// Renderer is the markdown collaborator, same contract as the server's.
type Renderer interface {
	Render(src []byte) ([]byte, error)
}

// Builder writes one HTML artifact per input file into outDir. Output
// is deterministic: rebuilding unchanged input reproduces the same
// bytes.
type Builder struct {
	renderer Renderer
	outDir   string
	min      *minify.M
}

func New(r Renderer, outDir string) *Builder {
	m := minify.New()
	m.AddFunc("text/html", mhtml.Minify)
	return &Builder{renderer: r, outDir: outDir, min: m}
}

var staticTmpl = template.Must(template.New("static").Parse(`<!doctype html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Title}}</title>
</head>
<body>
{{.Body}}
</body>
</html>
`))

// BuildFile renders path and writes outDir/<base>.html, creating the
// output directory if needed. Returns the artifact path.
func (b *Builder) BuildFile(path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}

	body, err := b.renderer.Render(raw)
	if err != nil {
		return "", fmt.Errorf("render %s: %w", path, err)
	}

	base := filepath.Base(path)
	name := strings.TrimSuffix(base, filepath.Ext(base)) + ".html"

	var page bytes.Buffer
	err = staticTmpl.Execute(&page, struct {
		Title string
		Body  template.HTML
	}{Title: base, Body: template.HTML(body)})
	if err != nil {
		return "", fmt.Errorf("assemble %s: %w", path, err)
	}

	var out bytes.Buffer
	if err := b.min.Minify("text/html", &out, &page); err != nil {
		return "", fmt.Errorf("minify %s: %w", path, err)
	}

	if err := os.MkdirAll(b.outDir, 0o755); err != nil {
		return "", fmt.Errorf("create %s: %w", b.outDir, err)
	}

	artifact := filepath.Join(b.outDir, name)
	if err := os.WriteFile(artifact, out.Bytes(), 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", artifact, err)
	}
	return artifact, nil
}

// BuildDir renders every markdown file under root. A failing file is
// logged and skipped; the rest of the build continues. The returned
// error, if any, summarizes how many files failed.
func (b *Builder) BuildDir(root string) error {
	var built, failed int
	sources := make(map[string]string) // artifact base name -> source path
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !watch.IsMarkdown(path) {
			return nil
		}
		base := filepath.Base(path)
		name := strings.TrimSuffix(base, filepath.Ext(base)) + ".html"
		if prev, dup := sources[name]; dup {
			// Artifacts flatten to base names, so same-named files in
			// different subdirectories collide and the later one wins.
			log.Printf("BUILD: %s overwrites output of %s (both flatten to %s)", path, prev, name)
		}
		sources[name] = path
		if artifact, err := b.BuildFile(path); err != nil {
			log.Printf("BUILD: %v", err)
			failed++
		} else {
			log.Printf("BUILD: %s -> %s", path, artifact)
			built++
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("build %s: %w", root, err)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d file(s) failed", failed, built+failed)
	}
	return nil
}

// WatchAndBuild performs a full build, then re-renders each changed
// file on every change notification until ctx is done. No incremental
// rebuild: a changed file is always rendered whole. only, when
// non-empty, restricts the watch to that single root-relative file
// (build -file -watch).
func (b *Builder) WatchAndBuild(ctx context.Context, root, only string) error {
	st := store.New()
	w, err := watch.New(root, only, st)
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Scan(); err != nil {
		return err
	}
	if only != "" {
		if _, err := b.BuildFile(filepath.Join(root, filepath.FromSlash(only))); err != nil {
			log.Printf("BUILD: initial build: %v", err)
		}
	} else if err := b.BuildDir(root); err != nil {
		log.Printf("BUILD: initial build: %v", err)
	}

	go w.Run(ctx)

	log.Printf("BUILD: watching %s, output in %s", root, b.outDir)
	for {
		select {
		case <-ctx.Done():
			return nil
		case rel, ok := <-w.Changes():
			if !ok {
				return nil
			}
			path := filepath.Join(root, filepath.FromSlash(rel))
			if artifact, err := b.BuildFile(path); err != nil {
				log.Printf("BUILD: %v", err)
			} else {
				log.Printf("BUILD: %s -> %s", rel, artifact)
			}
		}
	}
}
