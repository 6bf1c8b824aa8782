// main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/mdpeek/mdpeek/internal/build"
	"github.com/mdpeek/mdpeek/internal/config"
	"github.com/mdpeek/mdpeek/internal/notify"
	"github.com/mdpeek/mdpeek/internal/render"
	"github.com/mdpeek/mdpeek/internal/server"
	"github.com/mdpeek/mdpeek/internal/store"
	"github.com/mdpeek/mdpeek/internal/watch"
)

// appVersion is set at build time via -ldflags "-X main.appVersion=x.y.z"
var appVersion = "dev"

var showVersion = flag.Bool("version", false, "Show version")

func main() {
	flag.Usage = showUsage
	flag.Parse()

	if *showVersion {
		fmt.Printf("mdpeek v%s\n", appVersion)
		return
	}

	args := flag.Args()
	if len(args) == 0 {
		showUsage()
		os.Exit(1)
	}

	switch args[0] {
	case "serve":
		runServe(args[1:])
	case "watch":
		runWatch(args[1:])
	case "build":
		runBuild(args[1:])
	case "help":
		showUsage()
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown command %q\n\n", args[0])
		showUsage()
		os.Exit(1)
	}
}

func runServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	file := fs.String("file", "", "markdown file to serve")
	port := fs.Int("port", 8080, "HTTP port (0 picks a free port)")
	fs.Parse(args)

	cfg := config.Config{Mode: config.ModeServe, Target: *file, Port: *port}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("serve: %v", err)
	}
	runServer(cfg)
}

func runWatch(args []string) {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	dir := fs.String("dir", "", "directory of markdown files")
	port := fs.Int("port", 8080, "HTTP port (0 picks a free port)")
	fs.Parse(args)

	cfg := config.Config{Mode: config.ModeWatch, Target: *dir, Port: *port}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("watch: %v", err)
	}
	runServer(cfg)
}

// runServer wires the live pipeline: watcher keeps the store fresh, the
// hub turns change notifications into reload broadcasts, the HTTP
// server renders on request. Shared by serve (one file) and watch
// (whole directory).
func runServer(cfg config.Config) {
	root, only := cfg.Target, ""
	if cfg.Mode == config.ModeServe {
		root = filepath.Dir(cfg.Target)
		only = filepath.Base(cfg.Target)
	}

	st := store.New()

	w, err := watch.New(root, only, st)
	if err != nil {
		log.Fatalf("%s: %v", cfg.Mode, err)
	}
	defer w.Close()

	if err := w.Scan(); err != nil {
		log.Fatalf("%s: %v", cfg.Mode, err)
	}

	ctx, cancel := signalContext()
	defer cancel()

	hub := notify.NewHub()
	defer hub.Close()

	go w.Run(ctx)
	go hub.Run(ctx, w.Changes())

	ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", cfg.Port))
	if err != nil {
		log.Fatalf("%s: listen: %v", cfg.Mode, err)
	}

	srv := &http.Server{Handler: server.New(cfg, st, render.New(), hub).Handler()}

	printBanner(cfg, ln.Addr().String())

	go func() {
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			log.Fatalf("%s: %v", cfg.Mode, err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer shutdownCancel()
	_ = srv.Shutdown(shutdownCtx)
}

func runBuild(args []string) {
	fs := flag.NewFlagSet("build", flag.ExitOnError)
	file := fs.String("file", "", "single markdown file")
	dir := fs.String("dir", "", "directory of markdown files")
	out := fs.String("out", "dist", "output directory")
	rebuild := fs.Bool("watch", false, "stay running and rebuild on change")
	fs.Parse(args)

	if *file != "" && *dir != "" {
		log.Fatalf("build: use -file or -dir, not both")
	}
	target := *file
	if *dir != "" {
		target = *dir
	}

	cfg := config.Config{Mode: config.ModeBuild, Target: target, OutDir: *out, Watch: *rebuild}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("build: %v", err)
	}

	b := build.New(render.New(), cfg.OutDir)

	if cfg.Watch {
		root, only := cfg.Target, ""
		if !cfg.TargetIsDir() {
			root = filepath.Dir(cfg.Target)
			only = filepath.Base(cfg.Target)
		}
		ctx, cancel := signalContext()
		defer cancel()
		if err := b.WatchAndBuild(ctx, root, only); err != nil {
			log.Fatalf("build: %v", err)
		}
		return
	}

	if cfg.TargetIsDir() {
		if err := b.BuildDir(cfg.Target); err != nil {
			log.Fatalf("build: %v", err)
		}
		return
	}
	artifact, err := b.BuildFile(cfg.Target)
	if err != nil {
		log.Fatalf("build: %v", err)
	}
	log.Printf("BUILD: %s -> %s", cfg.Target, artifact)
}

// signalContext returns a context cancelled on SIGINT/SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigCh
		log.Println("\nShutting down gracefully...")
		cancel()
	}()

	return ctx, cancel
}

func printBanner(cfg config.Config, addr string) {
	fmt.Println("────────────────────────────────────────")
	fmt.Printf("mdpeek v%s — %s mode\n", appVersion, cfg.Mode)
	fmt.Printf("Target:  %s\n", cfg.Target)
	fmt.Printf("Viewer:  http://%s/\n", addr)
	fmt.Println("Press Ctrl+C to stop")
	fmt.Println("────────────────────────────────────────")
}

func showUsage() {
	fmt.Println("mdpeek - live markdown preview")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  mdpeek serve -file <file.md> [-port N]   Serve one file with live reload")
	fmt.Println("  mdpeek watch -dir <directory> [-port N]  Serve a directory tree with live reload")
	fmt.Println("  mdpeek build -file <file.md> | -dir <directory> [-out dist] [-watch]")
	fmt.Println("                                           Write static HTML artifacts")
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("  -version  Show version information")
	fmt.Println("  -help     Show this help message")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  # Preview a single file")
	fmt.Println("  mdpeek serve -file README.md -port 3000")
	fmt.Println()
	fmt.Println("  # Browse a docs tree, sidebar lists every file")
	fmt.Println("  mdpeek watch -dir docs -port 4000")
	fmt.Println()
	fmt.Println("  # One-shot static build")
	fmt.Println("  mdpeek build -file notes.md -out dist")
}
