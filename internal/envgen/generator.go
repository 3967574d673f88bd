package envgen

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	securejoin "github.com/cyphar/filepath-securejoin"
)

// DockerfileName is the name of the rendered Dockerfile in a build context
const DockerfileName = "Dockerfile"

// Generator renders Dockerfiles and stages build contexts for environments
type Generator struct {
	templateEngine *TemplateEngine
}

// NewGenerator creates a new environment generator
func NewGenerator() (*Generator, error) {
	tmplEngine, err := NewTemplateEngine()
	if err != nil {
		return nil, fmt.Errorf("failed to create template engine: %w", err)
	}

	return &Generator{templateEngine: tmplEngine}, nil
}

// Render renders the Dockerfile for cfg
func (g *Generator) Render(cfg *BuildConfig) ([]byte, error) {
	steps := Steps(cfg)
	if err := ValidateSteps(steps); err != nil {
		return nil, err
	}
	return g.templateEngine.Render("Dockerfile.tmpl", NewTemplateData(cfg, steps))
}

// Generate writes a complete build context for cfg into contextDir.
// configsDir is optional; its files are copied verbatim into the home seed.
func (g *Generator) Generate(cfg *BuildConfig, configsDir, contextDir string) error {
	// Remove existing directory if exists
	if err := os.RemoveAll(contextDir); err != nil {
		return fmt.Errorf("failed to remove existing directory: %w", err)
	}

	if err := g.createDirectoryStructure(cfg, contextDir); err != nil {
		return fmt.Errorf("failed to create directory structure: %w", err)
	}

	slog.Debug("Generating build context", "name", cfg.Name, "dir", contextDir)

	dockerfile, err := g.Render(cfg)
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(contextDir, DockerfileName), dockerfile, 0644); err != nil {
		return fmt.Errorf("failed to write Dockerfile: %w", err)
	}

	home := filepath.Join(contextDir, stagedHome)
	if err := seedHome(cfg, home); err != nil {
		return err
	}
	if err := overlayConfigs(configsDir, home); err != nil {
		return fmt.Errorf("failed to copy configs: %w", err)
	}
	if err := restoreHistoryOverride(cfg, home); err != nil {
		return err
	}

	slog.Debug("Build context ready", "name", cfg.Name, "dir", contextDir)
	return nil
}

// createDirectoryStructure creates all required directories
func (g *Generator) createDirectoryStructure(cfg *BuildConfig, contextDir string) error {
	home := filepath.Join(contextDir, stagedHome)
	dirs := []string{
		contextDir,
		home,
		filepath.Join(home, filepath.FromSlash(historyDir)),
		filepath.Dir(filepath.Join(home, filepath.FromSlash(StartupFile(cfg.Shell)))),
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}

	return nil
}

// seedHome writes the startup file and the history override file
func seedHome(cfg *BuildConfig, home string) error {
	files := []struct {
		path    string
		content string
	}{
		{StartupFile(cfg.Shell), StartupContent(cfg)},
		{HistoryOverrideFile(cfg.Shell), HistoryOverride(cfg.Shell)},
	}

	for _, f := range files {
		p := filepath.Join(home, filepath.FromSlash(f.path))
		if err := os.WriteFile(p, []byte(f.content), 0644); err != nil {
			return fmt.Errorf("failed to write %s: %w", f.path, err)
		}
	}
	return nil
}

// maxLinkDepth bounds how many symlinked directories are merged into each other
const maxLinkDepth = 8

// overlayConfigs copies configsDir over home, replacing existing files
func overlayConfigs(configsDir, home string) error {
	if configsDir == "" {
		return nil
	}
	info, err := os.Stat(configsDir)
	if os.IsNotExist(err) {
		slog.Debug("No configs directory", "dir", configsDir)
		return nil
	}
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", configsDir)
	}

	return overlayDir(configsDir, home, 0)
}

// overlayDir copies src over dst. Entries replace what dst holds, except
// that generated directories are never replaced: a symlink to a directory
// is merged into them and anything else is rejected.
func overlayDir(src, dst string, depth int) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}

		// a symlink already in the seed must not lead the copy out of home
		target, err := securejoin.SecureJoin(dst, rel)
		if err != nil {
			return err
		}

		switch {
		case d.IsDir():
			return os.MkdirAll(target, 0755)
		case d.Type()&fs.ModeSymlink != 0:
			if isDir(target) {
				return mergeLinkedDir(path, target, rel, depth)
			}
			link, err := os.Readlink(path)
			if err != nil {
				return err
			}
			if err := removeFile(target); err != nil {
				return err
			}
			return os.Symlink(link, target)
		case d.Type().IsRegular():
			if isDir(target) {
				return fmt.Errorf("%w: configs file %s would replace a generated directory", ErrInvalidConfig, rel)
			}
			info, err := d.Info()
			if err != nil {
				return err
			}
			return copyFile(path, target, info.Mode().Perm())
		default:
			slog.Debug("Skipping special file in configs", "path", rel)
			return nil
		}
	})
}

// mergeLinkedDir copies the directory link points to into the existing
// directory target
func mergeLinkedDir(link, target, rel string, depth int) error {
	resolved, err := filepath.EvalSymlinks(link)
	if err != nil {
		return fmt.Errorf("%w: configs link %s: %v", ErrInvalidConfig, rel, err)
	}
	info, err := os.Stat(resolved)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: configs link %s would replace a generated directory", ErrInvalidConfig, rel)
	}
	if depth >= maxLinkDepth {
		return fmt.Errorf("%w: configs link %s nests too deep", ErrInvalidConfig, rel)
	}

	slog.Debug("Merging linked configs directory", "path", rel, "into", target)
	return overlayDir(resolved, target, depth+1)
}

func isDir(path string) bool {
	info, err := os.Lstat(path)
	return err == nil && info.IsDir()
}

// removeFile removes path if it exists
func removeFile(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func copyFile(src, dst string, perm os.FileMode) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}
	// the seed file may have a narrower mode than the replacement
	if err := removeFile(dst); err != nil {
		return err
	}
	return os.WriteFile(dst, data, perm)
}

// restoreHistoryOverride re-adds the history override line when a copied
// config replaced the startup file without it
func restoreHistoryOverride(cfg *BuildConfig, home string) error {
	rc, err := securejoin.SecureJoin(home, StartupFile(cfg.Shell))
	if err != nil {
		return err
	}
	content, err := os.ReadFile(rc)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to read startup file: %w", err)
	}

	updated, changed := EnsureHistoryOverride(string(content), cfg.Shell)
	if !changed {
		return nil
	}

	slog.Info("Restored history override in copied startup file", "file", StartupFile(cfg.Shell))
	perm := os.FileMode(0644)
	if info, err := os.Stat(rc); err == nil {
		perm = info.Mode().Perm()
	}
	if err := os.MkdirAll(filepath.Dir(rc), 0755); err != nil {
		return err
	}
	return os.WriteFile(rc, []byte(updated), perm)
}
