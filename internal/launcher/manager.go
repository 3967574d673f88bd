// Package launcher implements the create, list, build, run and remove
// commands on top of the environment store and the Docker engine.
package launcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"paul-envs/internal/docker"
	"paul-envs/internal/envgen"
	"paul-envs/internal/envstore"
)

// Engine is the subset of the Docker client the launcher needs
type Engine interface {
	BuildImage(ctx context.Context, req docker.BuildRequest) error
	Run(ctx context.Context, spec docker.RunSpec) error
	Remove(ctx context.Context, req docker.RemoveRequest) error
	ImageInfo(ctx context.Context, tag string) (*docker.ImageInfo, error)
}

// Manager runs launcher commands
type Manager struct {
	store      *envstore.Store
	engine     Engine
	generator  *envgen.Generator
	configsDir string
	output     io.Writer
}

// NewManager creates a Manager. configsDir may be empty.
func NewManager(store *envstore.Store, engine Engine, configsDir string, output io.Writer) (*Manager, error) {
	gen, err := envgen.NewGenerator()
	if err != nil {
		return nil, err
	}
	if output == nil {
		output = io.Discard
	}
	return &Manager{
		store:      store,
		engine:     engine,
		generator:  gen,
		configsDir: configsDir,
		output:     output,
	}, nil
}

// ImageTag is the image built for an environment
func ImageTag(name string) string {
	return "paulenvs-" + name + ":latest"
}

// ContainerName is the container run for an environment
func ContainerName(name string) string {
	return "paulenvs-" + name
}

// VolumeNames are the persisted cache and local volumes of an environment
func VolumeNames(name string) (cache, local string) {
	return "paulenvs-" + name + "-cache", "paulenvs-" + name + "-local"
}

// CreateRequest holds the arguments of create
type CreateRequest struct {
	ProjectDir string
	Name       string // derived from ProjectDir when empty
	Params     envgen.Params
	Force      bool // replace an existing environment
}

// Create resolves and stores a new environment
func (m *Manager) Create(ctx context.Context, req CreateRequest) (*envstore.Record, []envgen.Warning, error) {
	projectDir, err := filepath.Abs(req.ProjectDir)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to resolve project directory: %w", err)
	}
	info, err := os.Stat(projectDir)
	if err != nil {
		return nil, nil, fmt.Errorf("project directory: %w", err)
	}
	if !info.IsDir() {
		return nil, nil, fmt.Errorf("project directory %s is not a directory", projectDir)
	}

	name := req.Name
	if name == "" {
		name = envstore.SanitizeName(filepath.Base(projectDir))
	}
	if err := envstore.ValidateName(name); err != nil {
		return nil, nil, err
	}
	if !req.Force && m.store.Exists(name) {
		return nil, nil, fmt.Errorf("%w: %s (use --force to replace it)", envstore.ErrAlreadyExists, name)
	}

	cfg, warnings, err := envgen.Resolve(name, req.Params)
	if err != nil {
		return nil, nil, err
	}
	logWarnings(name, warnings)

	dockerfile, err := m.generator.Render(cfg)
	if err != nil {
		return nil, nil, err
	}

	rec := &envstore.Record{
		Name:       name,
		ProjectDir: projectDir,
		CreatedAt:  time.Now().UTC().Truncate(time.Second),
		Params:     req.Params,
	}
	if err := m.store.Save(rec, dockerfile, req.Force); err != nil {
		return nil, nil, err
	}

	slog.Info("Created environment", "name", name, "project", projectDir, "shell", cfg.Shell)
	return rec, warnings, nil
}

// Summary is one line of list
type Summary struct {
	Name       string
	ProjectDir string
	Image      *docker.ImageInfo // nil when not built or not requested
}

// Names lists environment names
func (m *Manager) Names() ([]string, error) {
	return m.store.Names()
}

// List returns all environments; withImages also inspects their images
func (m *Manager) List(ctx context.Context, withImages bool) ([]Summary, error) {
	names, err := m.store.Names()
	if err != nil {
		return nil, err
	}

	summaries := make([]Summary, 0, len(names))
	for _, name := range names {
		rec, err := m.store.Load(name)
		if err != nil {
			slog.Warn("Skipping unreadable environment", "name", name, "error", err)
			continue
		}
		s := Summary{Name: name, ProjectDir: rec.ProjectDir}
		if withImages {
			s.Image, err = m.engine.ImageInfo(ctx, ImageTag(name))
			if err != nil {
				return nil, err
			}
		}
		summaries = append(summaries, s)
	}
	return summaries, nil
}

// Build stages the build context of an environment and builds its image
func (m *Manager) Build(ctx context.Context, name string, noCache bool) error {
	rec, cfg, err := m.load(name)
	if err != nil {
		return err
	}

	contextDir, err := os.MkdirTemp("", "paul-envs-"+name+"-")
	if err != nil {
		return fmt.Errorf("failed to create build context directory: %w", err)
	}
	defer os.RemoveAll(contextDir)

	if err := m.generator.Generate(cfg, m.configsDir, contextDir); err != nil {
		return err
	}

	// keep the stored Dockerfile in sync with what gets built
	dockerfile, err := os.ReadFile(filepath.Join(contextDir, envgen.DockerfileName))
	if err != nil {
		return err
	}
	if err := m.store.Save(rec, dockerfile, true); err != nil {
		return err
	}

	pr, pw := io.Pipe()
	go func() {
		pw.CloseWithError(envgen.Tarball(contextDir, pw))
	}()
	defer pr.Close()

	return m.engine.BuildImage(ctx, docker.BuildRequest{
		Name:    name,
		Tag:     ImageTag(name),
		Context: pr,
		BuildArgs: map[string]string{
			"USER_UID": strconv.Itoa(cfg.UID),
			"USER_GID": strconv.Itoa(cfg.GID),
		},
		NoCache: noCache,
		Output:  m.output,
	})
}

// Run opens an interactive shell in the environment container
func (m *Manager) Run(ctx context.Context, name string) error {
	rec, cfg, err := m.load(name)
	if err != nil {
		return err
	}

	info, err := m.engine.ImageInfo(ctx, ImageTag(name))
	if err != nil {
		return err
	}
	if info == nil {
		return fmt.Errorf("environment %s has no image yet; run build first", name)
	}

	return m.engine.Run(ctx, RunSpecFor(rec, cfg))
}

// RunSpecFor maps a resolved environment onto its container
func RunSpecFor(rec *envstore.Record, cfg *envgen.BuildConfig) docker.RunSpec {
	cacheVol, localVol := VolumeNames(cfg.Name)
	mounts := []docker.Mount{
		{Source: rec.ProjectDir, Target: cfg.Workspace()},
		{Source: cacheVol, Target: cfg.CacheDir(), Volume: true},
		{Source: localVol, Target: cfg.LocalDir(), Volume: true},
	}
	for _, v := range cfg.Volumes {
		mounts = append(mounts, docker.Mount{
			Source:   v.Source,
			Target:   v.Destination,
			ReadOnly: v.ReadOnly,
			Volume:   v.Named(),
		})
	}

	return docker.RunSpec{
		Name:      cfg.Name,
		Container: ContainerName(cfg.Name),
		Image:     ImageTag(cfg.Name),
		User:      strconv.Itoa(cfg.UID) + ":" + strconv.Itoa(cfg.GID),
		WorkDir:   cfg.Workspace(),
		Cmd:       []string{envgen.LoginPath(cfg.Shell), "-l"},
		Mounts:    mounts,
		Ports:     cfg.Ports,
		Memory:    cfg.Memory,
	}
}

// Remove deletes the environment container, image and record. Persisted
// volumes are kept when keepVolumes is set.
func (m *Manager) Remove(ctx context.Context, name string, keepVolumes bool) error {
	if _, err := m.store.Load(name); err != nil {
		return m.notFound(name, err)
	}

	req := docker.RemoveRequest{Container: ContainerName(name), Image: ImageTag(name)}
	if !keepVolumes {
		cache, local := VolumeNames(name)
		req.Volumes = []string{cache, local}
	}
	if err := m.engine.Remove(ctx, req); err != nil {
		return err
	}

	if err := m.store.Delete(name); err != nil {
		return err
	}
	slog.Info("Removed environment", "name", name, "keptVolumes", keepVolumes)
	return nil
}

func (m *Manager) load(name string) (*envstore.Record, *envgen.BuildConfig, error) {
	rec, err := m.store.Load(name)
	if err != nil {
		return nil, nil, m.notFound(name, err)
	}
	cfg, warnings, err := envgen.Resolve(name, rec.Params)
	if err != nil {
		return nil, nil, fmt.Errorf("stored configuration of %s: %w", name, err)
	}
	logWarnings(name, warnings)
	return rec, cfg, nil
}

// notFound adds close names to a not-found error
func (m *Manager) notFound(name string, err error) error {
	if !errors.Is(err, envstore.ErrNotFound) {
		return err
	}
	suggestions := m.store.Suggest(name)
	if len(suggestions) == 0 {
		return err
	}
	return fmt.Errorf("%w (did you mean %s?)", err, strings.Join(suggestions, ", "))
}

func logWarnings(name string, warnings []envgen.Warning) {
	for _, w := range warnings {
		slog.Warn("Build configuration", "name", name, "param", w.Field, "warning", w.Message)
	}
}
