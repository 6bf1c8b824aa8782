package server

import (
	"fmt"
	"html"
	"html/template"
	"log"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/mdpeek/mdpeek/internal/config"
	"github.com/mdpeek/mdpeek/internal/notify"
	"github.com/mdpeek/mdpeek/internal/store"
)

// Renderer is the markdown collaborator. Concrete implementation lives
// in internal/render; tests substitute a failing one.
type Renderer interface {
	Render(src []byte) ([]byte, error)
}

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Localhost tool; the page and the socket share an origin but
	// editors embed previews behind file:// and proxies.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Server resolves page requests to markdown content and wraps the
// rendered result in the presentation shell. One instance per process,
// but nothing here is global: tests run several side by side.
type Server struct {
	cfg      config.Config
	store    *store.Store
	renderer Renderer
	hub      *notify.Hub
}

func New(cfg config.Config, st *store.Store, r Renderer, hub *notify.Hub) *Server {
	return &Server{cfg: cfg, store: st, renderer: r, hub: hub}
}

// Handler returns the HTTP surface: the page route and the websocket
// endpoint the reload script connects back to.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/", s.handlePage)
	return mux
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("SERVER: websocket upgrade failed: %v", err)
		return
	}
	id := s.hub.Register(conn)
	defer s.hub.Unregister(id)

	// No client-to-server messages are defined; drain control frames
	// until the peer goes away.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// handlePage always answers 200 with a complete HTML document. Content
// errors become inline diagnostics so the viewer never sees a blank
// page or a broken connection.
func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	rel := strings.TrimPrefix(path.Clean(r.URL.Path), "/")

	var vm pageVM
	if s.cfg.Mode == config.ModeWatch {
		vm = s.watchPage(rel)
	} else {
		vm = s.servePage(rel)
	}
	vm.Script = reloadScript

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := shellTmpl.Execute(w, vm); err != nil {
		log.Printf("SERVER: template execute: %v", err)
	}
}

// watchPage resolves rel against the store. An unknown path still gets
// the full shell (sidebar included) with a not-found body.
func (s *Server) watchPage(rel string) pageVM {
	if rel == "" || rel == "." {
		rel = s.defaultPath()
	}

	raw, ok := s.store.Get(rel)
	if !ok {
		// Links and muscle memory often carry the watched directory
		// itself as a leading segment (/docs/a.md for -dir docs).
		// Store keys are root-relative, so retry without it.
		prefix := filepath.Base(s.cfg.Target) + "/"
		if trimmed, found := strings.CutPrefix(rel, prefix); found {
			if r, ok2 := s.store.Get(trimmed); ok2 {
				rel, raw, ok = trimmed, r, true
			}
		}
	}

	vm := pageVM{Title: pageTitle(rel)}

	if !ok {
		vm.Body = diagnostic("not found", fmt.Sprintf("no file %q under %s", rel, s.cfg.Target))
		vm.Sidebar = s.sidebar(rel)
		return vm
	}

	vm.Body = s.renderBody(raw)
	vm.Sidebar = s.sidebar(rel)
	return vm
}

// servePage reads the configured file (or a sibling, looked up
// verbatim) from disk on every request, so an edit is visible even
// before the watcher has caught up.
func (s *Server) servePage(rel string) pageVM {
	target := s.cfg.Target
	if rel != "" && rel != "." {
		target = filepath.Join(filepath.Dir(s.cfg.Target), filepath.FromSlash(rel))
	}

	vm := pageVM{Title: pageTitle(filepath.Base(target))}

	raw, err := os.ReadFile(target)
	if err != nil {
		vm.Body = diagnostic(fmt.Sprintf("%T", err), err.Error())
		return vm
	}

	vm.Body = s.renderBody(raw)
	return vm
}

func (s *Server) renderBody(raw []byte) template.HTML {
	out, err := s.renderer.Render(raw)
	if err != nil {
		return diagnostic("render error", err.Error())
	}
	return template.HTML(out)
}

// defaultPath picks what "/" means in watch mode: README.md when
// present, otherwise the first file in listing order.
func (s *Server) defaultPath() string {
	if _, ok := s.store.Get("README.md"); ok {
		return "README.md"
	}
	if list := s.store.List(); len(list) > 0 {
		return list[0]
	}
	return ""
}

func (s *Server) sidebar(active string) []sidebarEntry {
	list := s.store.List()
	out := make([]sidebarEntry, 0, len(list))
	for _, p := range list {
		u := url.URL{Path: "/" + p}
		out = append(out, sidebarEntry{
			Path:   p,
			Href:   u.EscapedPath(),
			Active: p == active,
		})
	}
	return out
}

func pageTitle(rel string) string {
	if rel == "" {
		return "mdpeek"
	}
	return path.Base(rel)
}

// diagnostic builds the inline error fragment used in place of content.
func diagnostic(kind, msg string) template.HTML {
	return template.HTML(fmt.Sprintf(
		`<div class="diagnostic"><span class="kind">%s</span>%s</div>`,
		html.EscapeString(kind), html.EscapeString(msg),
	))
}
