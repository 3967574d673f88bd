// Package docker drives the Docker Engine API for environment images and containers.
package docker

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	cerrdefs "github.com/containerd/errdefs"
	"github.com/docker/docker/api/types/build"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/jsonmessage"
	"golang.org/x/term"
)

// LabelName marks images and containers created for an environment
const LabelName = "dev.paul-envs.name"

// BuildRequest describes an image build
type BuildRequest struct {
	Name      string
	Tag       string
	Context   io.Reader // tar stream containing the Dockerfile
	BuildArgs map[string]string
	NoCache   bool
	Output    io.Writer
}

// RemoveRequest describes what to delete for an environment
type RemoveRequest struct {
	Container string
	Image     string
	Volumes   []string // removed only when non-empty
}

// ImageInfo summarizes a built image
type ImageInfo struct {
	ID      string
	Size    int64
	Created time.Time
}

// Client wraps the Docker API client
type Client struct {
	cli    *client.Client
	stdin  io.Reader
	stdout io.Writer
}

// NewClient connects to the Docker daemon configured by the environment
func NewClient() (*Client, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create Docker client: %w", err)
	}

	return &Client{cli: cli, stdin: os.Stdin, stdout: os.Stdout}, nil
}

// Close closes the Docker client
func (c *Client) Close() error {
	if c.cli != nil {
		return c.cli.Close()
	}
	return nil
}

// BuildImage builds an image and streams progress to req.Output.
// An error reported by the build aborts with that error.
func (c *Client) BuildImage(ctx context.Context, req BuildRequest) error {
	args := make(map[string]*string, len(req.BuildArgs))
	for k, v := range req.BuildArgs {
		args[k] = &v
	}

	slog.Info("Building image", "name", req.Name, "tag", req.Tag, "noCache", req.NoCache)

	resp, err := c.cli.ImageBuild(ctx, req.Context, build.ImageBuildOptions{
		Tags:        []string{req.Tag},
		Dockerfile:  "Dockerfile",
		BuildArgs:   args,
		NoCache:     req.NoCache,
		Remove:      true,
		ForceRemove: true,
		PullParent:  true,
		Labels:      map[string]string{LabelName: req.Name},
	})
	if err != nil {
		return fmt.Errorf("failed to start image build: %w", err)
	}
	defer resp.Body.Close()

	out := req.Output
	if out == nil {
		out = io.Discard
	}
	fd, isTerm := terminalFd(out)
	if err := jsonmessage.DisplayJSONMessagesStream(resp.Body, out, fd, isTerm, nil); err != nil {
		return fmt.Errorf("image build failed: %w", err)
	}

	slog.Info("Image built", "tag", req.Tag)
	return nil
}

// Remove deletes the container, image and optional volumes of an
// environment. Objects that do not exist are skipped.
func (c *Client) Remove(ctx context.Context, req RemoveRequest) error {
	if req.Container != "" {
		err := c.cli.ContainerRemove(ctx, req.Container, container.RemoveOptions{Force: true})
		if err != nil && !cerrdefs.IsNotFound(err) {
			return fmt.Errorf("failed to remove container %s: %w", req.Container, err)
		}
	}

	if req.Image != "" {
		_, err := c.cli.ImageRemove(ctx, req.Image, image.RemoveOptions{PruneChildren: true})
		if err != nil && !cerrdefs.IsNotFound(err) {
			return fmt.Errorf("failed to remove image %s: %w", req.Image, err)
		}
	}

	for _, v := range req.Volumes {
		err := c.cli.VolumeRemove(ctx, v, false)
		if err != nil && !cerrdefs.IsNotFound(err) {
			return fmt.Errorf("failed to remove volume %s: %w", v, err)
		}
	}

	slog.Info("Removed environment objects", "container", req.Container, "image", req.Image, "volumes", len(req.Volumes))
	return nil
}

// ImageInfo returns size and creation time of an image, or nil when the
// image has not been built
func (c *Client) ImageInfo(ctx context.Context, tag string) (*ImageInfo, error) {
	resp, err := c.cli.ImageInspect(ctx, tag)
	if cerrdefs.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to inspect image %s: %w", tag, err)
	}

	info := &ImageInfo{ID: resp.ID, Size: resp.Size}
	if created, err := time.Parse(time.RFC3339Nano, resp.Created); err == nil {
		info.Created = created
	}
	return info, nil
}

func terminalFd(w io.Writer) (uintptr, bool) {
	f, ok := w.(*os.File)
	if !ok {
		return 0, false
	}
	return f.Fd(), term.IsTerminal(int(f.Fd()))
}
