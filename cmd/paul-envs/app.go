package main

import (
	"context"
	"io"
	"sync"

	"paul-envs/internal/completion"
	"paul-envs/internal/config"
	"paul-envs/internal/docker"
	"paul-envs/internal/envstore"
	"paul-envs/internal/launcher"
)

// app wires the launcher pieces; everything is opened on first use so that
// completion and listing do not need a Docker daemon
type app struct {
	cfg    *config.Config
	out    io.Writer
	engine *lazyEngine

	once    sync.Once
	manager *launcher.Manager
	err     error
}

func newApp(cfg *config.Config, out io.Writer) *app {
	return &app{cfg: cfg, out: out, engine: &lazyEngine{}}
}

// Manager opens the store and returns the command manager
func (a *app) Manager() (*launcher.Manager, error) {
	a.once.Do(func() {
		store, err := envstore.New(a.cfg.DataDir)
		if err != nil {
			a.err = err
			return
		}
		a.manager, a.err = launcher.NewManager(store, a.engine, a.cfg.ConfigsDir, a.out)
	})
	return a.manager, a.err
}

// Lister returns the source of environment names for completion
func (a *app) Lister() completion.Lister {
	if a.cfg.Launcher != "" {
		return &completion.CommandLister{Path: a.cfg.Launcher, Args: []string{"ls"}}
	}
	return completion.ListerFunc(func(ctx context.Context) ([]string, error) {
		m, err := a.Manager()
		if err != nil {
			return nil, err
		}
		return m.Names()
	})
}

func (a *app) Close() error {
	return a.engine.Close()
}

// lazyEngine connects to Docker on the first call
type lazyEngine struct {
	once   sync.Once
	client *docker.Client
	err    error
}

func (l *lazyEngine) get() (*docker.Client, error) {
	l.once.Do(func() {
		l.client, l.err = docker.NewClient()
	})
	return l.client, l.err
}

func (l *lazyEngine) BuildImage(ctx context.Context, req docker.BuildRequest) error {
	c, err := l.get()
	if err != nil {
		return err
	}
	return c.BuildImage(ctx, req)
}

func (l *lazyEngine) Run(ctx context.Context, spec docker.RunSpec) error {
	c, err := l.get()
	if err != nil {
		return err
	}
	return c.Run(ctx, spec)
}

func (l *lazyEngine) Remove(ctx context.Context, req docker.RemoveRequest) error {
	c, err := l.get()
	if err != nil {
		return err
	}
	return c.Remove(ctx, req)
}

func (l *lazyEngine) ImageInfo(ctx context.Context, tag string) (*docker.ImageInfo, error) {
	c, err := l.get()
	if err != nil {
		return nil, err
	}
	return c.ImageInfo(ctx, tag)
}

func (l *lazyEngine) Close() error {
	if l.client != nil {
		return l.client.Close()
	}
	return nil
}
