package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Operating modes. Set once at startup from the CLI subcommand.
const (
	ModeServe = "serve"
	ModeWatch = "watch"
	ModeBuild = "build"
)

// Config holds the process-wide settings for one run. Immutable after
// Validate succeeds.
type Config struct {
	Mode   string
	Target string // file (serve, build -file) or directory (watch, build -dir)
	Port   int
	OutDir string // build only
	Watch  bool   // build only: rebuild on change
}

// Validate checks the configuration and resolves Target to an absolute
// path. A returned error is a startup error: the caller prints it and
// exits non-zero.
func (c *Config) Validate() error {
	if c.Target == "" {
		return errors.New("missing target: specify a file or directory")
	}

	abs, err := filepath.Abs(c.Target)
	if err != nil {
		return fmt.Errorf("invalid target %q: %w", c.Target, err)
	}
	c.Target = abs

	stat, err := os.Stat(c.Target)
	if err != nil {
		return fmt.Errorf("target %s: %w", c.Target, err)
	}

	switch c.Mode {
	case ModeServe:
		if stat.IsDir() {
			return fmt.Errorf("serve expects a file, %s is a directory (use watch)", c.Target)
		}
	case ModeWatch:
		if !stat.IsDir() {
			return fmt.Errorf("watch expects a directory, %s is a file (use serve)", c.Target)
		}
	case ModeBuild:
		if c.OutDir == "" {
			return errors.New("missing output directory")
		}
	default:
		return fmt.Errorf("unknown mode %q", c.Mode)
	}

	if c.Mode != ModeBuild {
		if c.Port < 0 || c.Port > 65535 {
			return fmt.Errorf("invalid port %d", c.Port)
		}
	}

	return nil
}

// TargetIsDir reports whether the validated target is a directory.
// Build uses it to pick single-file or directory mode.
func (c *Config) TargetIsDir() bool {
	stat, err := os.Stat(c.Target)
	return err == nil && stat.IsDir()
}
