// Package container manages the headless-browser container used for automation.
package container

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/containerd/errdefs"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
)

const (
	// DefaultImage is a browserless-compatible Chromium image.
	DefaultImage = "ghcr.io/browserless/chromium:latest"

	browserPort     = "3000"
	stopTimeoutSecs = 10

	// Resource limits.
	memoryLimitBytes = 2 * 1024 * 1024 * 1024 // 2GB
	cpuQuota         = 100000                 // 1 CPU
	pidsLimit        = 512
	shmSizeBytes     = 512 * 1024 * 1024

	browserNetwork = "mindcure-browser"
	browserSubnet  = "172.29.0.0/16"

	createRetryAttempts = 20
	createRetryDelay    = 250 * time.Millisecond
)

// BrowserOptions describes the browser container to run.
type BrowserOptions struct {
	Name  string
	Image string
	Token string
}

// Browser is a running browser container.
type Browser struct {
	ContainerID string
	Endpoint    string
}

// Manager defines the interface for managing the browser container.
type Manager interface {
	// EnsureBrowser ensures the named browser container exists and is running.
	EnsureBrowser(ctx context.Context, opts BrowserOptions) (Browser, error)

	// StopContainer stops and removes a container.
	StopContainer(ctx context.Context, containerID string) error

	// IsRunning checks if a container is currently running.
	IsRunning(ctx context.Context, containerID string) (bool, error)

	// EnsureNetwork creates the bridge network if it doesn't exist.
	EnsureNetwork(ctx context.Context) (string, error)
}

// dockerAPI is the subset of the Docker client used by DockerManager.
type dockerAPI interface {
	ContainerInspect(ctx context.Context, containerID string) (container.InspectResponse, error)
	ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networkingConfig *network.NetworkingConfig, platform any, containerName string) (container.CreateResponse, error)
	ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error
	ContainerStop(ctx context.Context, containerID string, options container.StopOptions) error
	ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error
	NetworkList(ctx context.Context, options network.ListOptions) ([]network.Summary, error)
	NetworkCreate(ctx context.Context, name string, options network.CreateOptions) (network.CreateResponse, error)
}

// clientAdapter narrows the platform parameter so tests can fake the client.
type clientAdapter struct {
	*client.Client
}

func (c clientAdapter) ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networkingConfig *network.NetworkingConfig, _ any, containerName string) (container.CreateResponse, error) {
	return c.Client.ContainerCreate(ctx, config, hostConfig, networkingConfig, nil, containerName)
}

// DockerManager implements Manager using the Docker API.
type DockerManager struct {
	cli dockerAPI
}

// NewDockerManager creates a new Docker-backed container manager.
func NewDockerManager() (*DockerManager, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}
	slog.Info("Docker client initialized")
	return &DockerManager{cli: clientAdapter{cli}}, nil
}

// EnsureBrowser ensures the browser container exists and is running.
func (m *DockerManager) EnsureBrowser(ctx context.Context, opts BrowserOptions) (Browser, error) {
	if opts.Name == "" {
		opts.Name = "mindcure-browser"
	}
	if opts.Image == "" {
		opts.Image = DefaultImage
	}

	inspect, err := m.cli.ContainerInspect(ctx, opts.Name)
	if err == nil {
		if !inspect.State.Running {
			slog.Info("Restarting stopped browser container", "container_id", inspect.ID)
			if err := m.cli.ContainerStart(ctx, inspect.ID, container.StartOptions{}); err != nil {
				return Browser{}, fmt.Errorf("restart container %s: %w", inspect.ID, err)
			}
		} else {
			slog.Info("Browser container already running", "container_id", inspect.ID)
		}
		return m.browserFor(ctx, inspect.ID)
	}
	if !errdefs.IsNotFound(err) {
		return Browser{}, fmt.Errorf("inspect container %s: %w", opts.Name, err)
	}

	slog.Info("Creating browser container", "name", opts.Name, "image", opts.Image)

	env := []string{"CONCURRENT=2", "TIMEOUT=60000"}
	if opts.Token != "" {
		env = append(env, "TOKEN="+opts.Token)
	}
	config := &container.Config{
		Image: opts.Image,
		Env:   env,
	}
	hostConfig := &container.HostConfig{
		NetworkMode: container.NetworkMode(browserNetwork),
		ShmSize:     shmSizeBytes,
		Resources: container.Resources{
			Memory:    memoryLimitBytes,
			CPUQuota:  cpuQuota,
			PidsLimit: ptr(int64(pidsLimit)),
		},
	}

	var resp container.CreateResponse
	var createErr error
	for i := 0; i < createRetryAttempts; i++ {
		resp, createErr = m.cli.ContainerCreate(ctx, config, hostConfig, nil, nil, opts.Name)
		if createErr == nil {
			break
		}

		errStr := strings.ToLower(createErr.Error())
		if !strings.Contains(errStr, "is already in use") && !strings.Contains(errStr, "conflict") {
			return Browser{}, fmt.Errorf("create container: %w", createErr)
		}

		// A previous shutdown may still be removing the named container.
		slog.Warn("Container name conflict during create, retrying",
			"container_name", opts.Name,
			"attempt", i+1,
			"error", createErr,
		)
		if inspect, inspectErr := m.cli.ContainerInspect(ctx, opts.Name); inspectErr == nil {
			if stopErr := m.StopContainer(ctx, inspect.ID); stopErr != nil {
				slog.Warn("Failed to stop conflicting container before retry", "container_id", inspect.ID, "error", stopErr)
			}
		}

		select {
		case <-ctx.Done():
			return Browser{}, ctx.Err()
		case <-time.After(createRetryDelay):
		}
	}
	if createErr != nil {
		return Browser{}, fmt.Errorf("create container after retries: %w", createErr)
	}

	if err := m.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		if removeErr := m.cli.ContainerRemove(ctx, resp.ID, container.RemoveOptions{Force: true}); removeErr != nil && !errors.Is(removeErr, context.Canceled) {
			slog.Warn("Failed to remove container after start failure", "container_id", resp.ID, "error", removeErr)
		}
		return Browser{}, fmt.Errorf("start container %s: %w", resp.ID, err)
	}

	slog.Info("Browser container created and started", "container_id", resp.ID)
	return m.browserFor(ctx, resp.ID)
}

// browserFor resolves the endpoint of a running container on the browser network.
func (m *DockerManager) browserFor(ctx context.Context, containerID string) (Browser, error) {
	inspect, err := m.cli.ContainerInspect(ctx, containerID)
	if err != nil {
		return Browser{}, fmt.Errorf("inspect container %s: %w", containerID, err)
	}
	host := strings.TrimPrefix(inspect.Name, "/")
	if inspect.NetworkSettings != nil {
		if ep, ok := inspect.NetworkSettings.Networks[browserNetwork]; ok && ep != nil && ep.IPAddress != "" {
			host = ep.IPAddress
		}
	}
	if host == "" {
		return Browser{}, fmt.Errorf("container %s has no reachable address", containerID)
	}
	return Browser{ContainerID: inspect.ID, Endpoint: "http://" + host + ":" + browserPort}, nil
}

// StopContainer stops and removes a container.
// It is idempotent and handles concurrent calls gracefully.
func (m *DockerManager) StopContainer(ctx context.Context, containerID string) error {
	slog.Info("Stopping container", "container_id", containerID)

	if _, err := m.cli.ContainerInspect(ctx, containerID); err != nil {
		if errdefs.IsNotFound(err) {
			slog.Debug("Container already removed", "container_id", containerID)
			return nil
		}
		return fmt.Errorf("inspect container %s: %w", containerID, err)
	}

	timeout := stopTimeoutSecs
	if err := m.cli.ContainerStop(ctx, containerID, container.StopOptions{Timeout: &timeout}); err != nil {
		if errdefs.IsNotFound(err) {
			slog.Debug("Container already stopped/removed", "container_id", containerID)
		} else {
			slog.Debug("Container stop returned error, continuing to remove", "container_id", containerID, "error", err)
		}
	}

	if err := m.cli.ContainerRemove(ctx, containerID, container.RemoveOptions{Force: true}); err != nil {
		if errdefs.IsNotFound(err) || strings.Contains(err.Error(), "is already in progress") {
			return nil
		}
		if ctx.Err() != nil {
			slog.Debug("Context canceled during remove, container may still be removed", "container_id", containerID, "error", err)
			return nil
		}
		return fmt.Errorf("remove container %s: %w", containerID, err)
	}

	slog.Info("Container stopped and removed", "container_id", containerID)
	return nil
}

// IsRunning checks if a container is currently running.
func (m *DockerManager) IsRunning(ctx context.Context, containerID string) (bool, error) {
	inspect, err := m.cli.ContainerInspect(ctx, containerID)
	if err != nil {
		if errdefs.IsNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("inspect container %s: %w", containerID, err)
	}
	return inspect.State != nil && inspect.State.Running, nil
}

// EnsureNetwork creates the bridge network if it doesn't exist.
func (m *DockerManager) EnsureNetwork(ctx context.Context) (string, error) {
	networks, err := m.cli.NetworkList(ctx, network.ListOptions{})
	if err != nil {
		return "", fmt.Errorf("list networks: %w", err)
	}
	for _, nw := range networks {
		if nw.Name == browserNetwork {
			slog.Info("Browser network already exists", "network_id", nw.ID)
			return nw.ID, nil
		}
	}

	createResp, err := m.cli.NetworkCreate(ctx, browserNetwork, network.CreateOptions{
		Driver: "bridge",
		IPAM: &network.IPAM{
			Config: []network.IPAMConfig{{Subnet: browserSubnet}},
		},
	})
	if err != nil {
		return "", fmt.Errorf("create network %s: %w", browserNetwork, err)
	}

	slog.Info("Browser network created", "network_id", createResp.ID, "subnet", browserSubnet)
	return createResp.ID, nil
}

func ptr[T any](v T) *T {
	return &v
}
