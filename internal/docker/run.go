package docker

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	cerrdefs "github.com/containerd/errdefs"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/go-connections/nat"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"
)

// Mount is a bind mount or named volume attached to the container
type Mount struct {
	Source   string // host path, or volume name when Volume is set
	Target   string
	ReadOnly bool
	Volume   bool
}

// RunSpec describes the interactive container of an environment
type RunSpec struct {
	Name      string // environment name, used as label
	Container string
	Image     string
	User      string // "uid:gid"
	WorkDir   string
	Cmd       []string
	Env       []string
	Mounts    []Mount
	Ports     []string // host:container[/proto]
	Memory    int64
}

// Run starts (or restarts) the environment container and attaches the
// current terminal to it until the shell exits.
func (c *Client) Run(ctx context.Context, spec RunSpec) error {
	id, err := c.ensureContainer(ctx, spec)
	if err != nil {
		return err
	}

	attach, err := c.cli.ContainerAttach(ctx, id, container.AttachOptions{
		Stream: true,
		Stdin:  true,
		Stdout: true,
		Stderr: true,
	})
	if err != nil {
		return fmt.Errorf("failed to attach to container: %w", err)
	}
	defer attach.Close()

	// Wait before start so a fast exit is not missed
	statusCh, errCh := c.cli.ContainerWait(ctx, id, container.WaitConditionNextExit)

	if err := c.cli.ContainerStart(ctx, id, container.StartOptions{}); err != nil {
		return fmt.Errorf("failed to start container: %w", err)
	}

	if f, ok := c.stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		state, err := term.MakeRaw(int(f.Fd()))
		if err != nil {
			return fmt.Errorf("failed to set terminal raw mode: %w", err)
		}
		defer term.Restore(int(f.Fd()), state)

		if w, h, err := term.GetSize(int(f.Fd())); err == nil {
			if err := c.cli.ContainerResize(ctx, id, container.ResizeOptions{Height: uint(h), Width: uint(w)}); err != nil {
				slog.Debug("Failed to resize container tty", "error", err)
			}
		}
	}

	// stdin blocks on the terminal; it is abandoned once the container exits
	go func() {
		if _, err := io.Copy(attach.Conn, c.stdin); err != nil {
			slog.Debug("stdin copy ended", "error", err)
		}
		_ = attach.CloseWrite()
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		_, err := io.Copy(c.stdout, attach.Reader)
		return err
	})
	g.Go(func() error {
		select {
		case status := <-statusCh:
			if status.Error != nil {
				return fmt.Errorf("container wait: %s", status.Error.Message)
			}
			slog.Debug("Container exited", "container", spec.Container, "status", status.StatusCode)
			return nil
		case err := <-errCh:
			return fmt.Errorf("container wait: %w", err)
		case <-gctx.Done():
			return gctx.Err()
		}
	})

	return g.Wait()
}

// ensureContainer returns the id of the environment container, creating it
// when it does not exist
func (c *Client) ensureContainer(ctx context.Context, spec RunSpec) (string, error) {
	existing, err := c.cli.ContainerInspect(ctx, spec.Container)
	if err == nil {
		if existing.Config != nil && existing.Config.Image == spec.Image && existing.Image == c.imageID(ctx, spec.Image) {
			if existing.State != nil && existing.State.Running {
				return "", fmt.Errorf("container %s is already running", spec.Container)
			}
			slog.Info("Reusing container", "container", spec.Container)
			return existing.ID, nil
		}
		// image was rebuilt: recreate so the shell runs the new one
		slog.Info("Recreating container for rebuilt image", "container", spec.Container)
		if err := c.cli.ContainerRemove(ctx, existing.ID, container.RemoveOptions{Force: true}); err != nil {
			return "", fmt.Errorf("failed to remove stale container: %w", err)
		}
	} else if !cerrdefs.IsNotFound(err) {
		return "", fmt.Errorf("failed to inspect container: %w", err)
	}

	config, hostConfig, err := containerConfig(spec)
	if err != nil {
		return "", err
	}

	resp, err := c.cli.ContainerCreate(ctx, config, hostConfig, nil, nil, spec.Container)
	if err != nil {
		return "", fmt.Errorf("failed to create container: %w", err)
	}
	for _, w := range resp.Warnings {
		slog.Warn("Docker warning", "warning", w)
	}

	slog.Info("Created container", "container", spec.Container, "image", spec.Image)
	return resp.ID, nil
}

// containerConfig maps spec onto the Engine API create options
func containerConfig(spec RunSpec) (*container.Config, *container.HostConfig, error) {
	exposed, bindings, err := nat.ParsePortSpecs(spec.Ports)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid port mapping: %w", err)
	}

	mounts := make([]mount.Mount, 0, len(spec.Mounts))
	for _, m := range spec.Mounts {
		mt := mount.TypeBind
		if m.Volume {
			mt = mount.TypeVolume
		}
		mounts = append(mounts, mount.Mount{Type: mt, Source: m.Source, Target: m.Target, ReadOnly: m.ReadOnly})
	}

	config := &container.Config{
		Image:        spec.Image,
		User:         spec.User,
		WorkingDir:   spec.WorkDir,
		Cmd:          spec.Cmd,
		Env:          spec.Env,
		Tty:          true,
		OpenStdin:    true,
		StdinOnce:    false,
		AttachStdin:  true,
		AttachStdout: true,
		AttachStderr: true,
		ExposedPorts: exposed,
		Labels:       map[string]string{LabelName: spec.Name},
	}
	hostConfig := &container.HostConfig{
		Mounts:       mounts,
		PortBindings: bindings,
		Init:         boolPtr(true),
		Resources:    container.Resources{Memory: spec.Memory},
	}
	return config, hostConfig, nil
}

func (c *Client) imageID(ctx context.Context, ref string) string {
	img, err := c.cli.ImageInspect(ctx, ref)
	if err != nil {
		return ""
	}
	return img.ID
}

func boolPtr(b bool) *bool { return &b }
