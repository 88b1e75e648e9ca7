// Package sandbox provides Docker container management for browser
// automation sandboxes.
package sandbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/containerd/errdefs"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"

	"github.com/deepc0py/Jamie/internal/config"
)

const (
	stopTimeoutSecs = 10

	// Port the automation runtime listens on inside the container.
	runtimePort = "8000/tcp"

	sandboxNetwork = "jamie-sandbox"
	sandboxSubnet  = "172.29.0.0/16"

	createRetryAttempts = 20
	createRetryDelay    = 250 * time.Millisecond
)

// Manager runs one sandbox container per streaming session.
type Manager struct {
	cli *client.Client
	cfg *config.AgentConfig

	mu         sync.Mutex
	containers map[string]string // session ID -> container ID
}

// NewManager creates a Docker-backed sandbox manager.
func NewManager(cfg *config.AgentConfig) (*Manager, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}
	slog.Info("Docker client initialized", "image", cfg.SandboxImage)
	return &Manager{
		cli:        cli,
		cfg:        cfg,
		containers: make(map[string]string),
	}, nil
}

// Client returns the underlying Docker client.
func (m *Manager) Client() *client.Client {
	return m.cli
}

// StartSandbox creates and starts a sandbox container for the session and
// returns the endpoint of the automation runtime inside it.
func (m *Manager) StartSandbox(ctx context.Context, sessionID string) (string, error) {
	containerName := fmt.Sprintf("jamie-sandbox-%s", sessionID)

	// A lingering container with this name is stale and must be recycled,
	// not reused.
	if inspect, err := m.cli.ContainerInspect(ctx, containerName); err == nil {
		slog.Info("Found stale sandbox, recreating",
			"container_id", inspect.ID,
			"session_id", sessionID,
		)
		if err := m.removeContainer(ctx, inspect.ID); err != nil {
			slog.Warn("Failed to remove stale sandbox before recreation", "error", err, "container_id", inspect.ID)
		}
	}

	slog.Info("Creating sandbox", "session_id", sessionID, "image", m.cfg.SandboxImage)

	cfg := &container.Config{
		Image: m.cfg.SandboxImage,
		Env: []string{
			fmt.Sprintf("DISPLAY_RESOLUTION=%s", m.cfg.DisplayResolution),
		},
		ExposedPorts: nat.PortSet{runtimePort: struct{}{}},
	}

	hostConfig := &container.HostConfig{
		NetworkMode: container.NetworkMode(sandboxNetwork),
		PortBindings: nat.PortMap{
			// Ephemeral host port; resolved after start.
			runtimePort: []nat.PortBinding{{HostIP: "127.0.0.1"}},
		},
		ShmSize: 2 * 1024 * 1024 * 1024,
		Resources: container.Resources{
			Memory:   m.cfg.SandboxMemoryMB * 1024 * 1024,
			NanoCPUs: m.cfg.SandboxCPUs * 1_000_000_000,
		},
		DNS: []string{"8.8.8.8", "8.8.4.4"},
	}

	var resp container.CreateResponse
	var createErr error
	for i := 0; i < createRetryAttempts; i++ {
		resp, createErr = m.cli.ContainerCreate(ctx, cfg, hostConfig, nil, nil, containerName)
		if createErr == nil {
			break
		}

		errStr := strings.ToLower(createErr.Error())
		if !strings.Contains(errStr, "is already in use") && !strings.Contains(errStr, "conflict") {
			return "", fmt.Errorf("create sandbox: %w", createErr)
		}

		// A delayed cleanup can leave the old named container around briefly.
		// Force-remove by name and retry shortly.
		slog.Warn("Sandbox name conflict during create, retrying",
			"session_id", sessionID,
			"container_name", containerName,
			"attempt", i+1,
			"error", createErr,
		)

		if inspect, inspectErr := m.cli.ContainerInspect(ctx, containerName); inspectErr == nil {
			if removeErr := m.removeContainer(ctx, inspect.ID); removeErr != nil {
				slog.Warn("Failed to remove conflicting sandbox before retry", "container_id", inspect.ID, "error", removeErr)
			}
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(createRetryDelay):
		}
	}
	if createErr != nil {
		return "", fmt.Errorf("create sandbox after retries: %w", createErr)
	}

	if err := m.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		if removeErr := m.cli.ContainerRemove(ctx, resp.ID, container.RemoveOptions{Force: true}); removeErr != nil && !errors.Is(removeErr, context.Canceled) {
			slog.Warn("Failed to remove sandbox after start failure", "container_id", resp.ID, "error", removeErr)
		}
		return "", fmt.Errorf("start sandbox %s: %w", resp.ID, err)
	}

	endpoint, err := m.resolveEndpoint(ctx, resp.ID)
	if err != nil {
		if removeErr := m.removeContainer(ctx, resp.ID); removeErr != nil {
			slog.Warn("Failed to remove sandbox after endpoint resolution failure", "container_id", resp.ID, "error", removeErr)
		}
		return "", err
	}

	m.mu.Lock()
	m.containers[sessionID] = resp.ID
	m.mu.Unlock()

	slog.Info("Sandbox started",
		"container_id", resp.ID,
		"session_id", sessionID,
		"endpoint", endpoint,
	)
	return endpoint, nil
}

// resolveEndpoint reads back the host port Docker assigned to the runtime.
func (m *Manager) resolveEndpoint(ctx context.Context, containerID string) (string, error) {
	inspect, err := m.cli.ContainerInspect(ctx, containerID)
	if err != nil {
		return "", fmt.Errorf("inspect sandbox %s: %w", containerID, err)
	}
	bindings := inspect.NetworkSettings.Ports[nat.Port(runtimePort)]
	if len(bindings) == 0 || bindings[0].HostPort == "" {
		return "", fmt.Errorf("sandbox %s has no published runtime port", containerID)
	}
	return fmt.Sprintf("http://127.0.0.1:%s", bindings[0].HostPort), nil
}

// StopSandbox stops and removes the session's container. It is idempotent
// and safe to call for sessions that never started.
func (m *Manager) StopSandbox(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	containerID, ok := m.containers[sessionID]
	delete(m.containers, sessionID)
	m.mu.Unlock()

	if !ok {
		// Fall back to lookup by name in case state was lost on restart.
		inspect, err := m.cli.ContainerInspect(ctx, fmt.Sprintf("jamie-sandbox-%s", sessionID))
		if err != nil {
			if errdefs.IsNotFound(err) {
				return nil
			}
			return fmt.Errorf("inspect sandbox for %s: %w", sessionID, err)
		}
		containerID = inspect.ID
	}

	return m.removeContainer(ctx, containerID)
}

func (m *Manager) removeContainer(ctx context.Context, containerID string) error {
	slog.Info("Stopping sandbox", "container_id", containerID)

	_, err := m.cli.ContainerInspect(ctx, containerID)
	if err != nil {
		if errdefs.IsNotFound(err) {
			slog.Debug("Sandbox already removed", "container_id", containerID)
			return nil
		}
		return fmt.Errorf("inspect sandbox %s: %w", containerID, err)
	}

	timeout := stopTimeoutSecs
	if err := m.cli.ContainerStop(ctx, containerID, container.StopOptions{Timeout: &timeout}); err != nil {
		// The container may already be stopped or being removed elsewhere.
		if errdefs.IsNotFound(err) {
			slog.Debug("Sandbox already stopped", "container_id", containerID)
		} else if ctx.Err() != nil {
			slog.Debug("Context canceled during stop, continuing with force removal", "container_id", containerID)
		} else {
			slog.Debug("Sandbox stop returned error, continuing to remove", "container_id", containerID, "error", err)
		}
	}

	if err := m.cli.ContainerRemove(ctx, containerID, container.RemoveOptions{Force: true}); err != nil {
		if errdefs.IsNotFound(err) {
			slog.Debug("Sandbox already removed", "container_id", containerID)
			return nil
		}
		if strings.Contains(err.Error(), "is already in progress") {
			slog.Debug("Sandbox removal already in progress", "container_id", containerID)
			return nil
		}
		if ctx.Err() != nil {
			slog.Debug("Context canceled during remove, sandbox may still be removed", "container_id", containerID, "error", err)
			return nil
		}
		return fmt.Errorf("remove sandbox %s: %w", containerID, err)
	}

	slog.Info("Sandbox stopped and removed", "container_id", containerID)
	return nil
}

// StopAll removes every tracked sandbox, used during shutdown.
func (m *Manager) StopAll(ctx context.Context) {
	m.mu.Lock()
	sessions := make([]string, 0, len(m.containers))
	for id := range m.containers {
		sessions = append(sessions, id)
	}
	m.mu.Unlock()

	for _, id := range sessions {
		if err := m.StopSandbox(ctx, id); err != nil {
			slog.Warn("Failed to stop sandbox during shutdown", "session_id", id, "error", err)
		}
	}
}

// EnsureNetwork creates the sandbox bridge network if it doesn't exist.
func (m *Manager) EnsureNetwork(ctx context.Context) (string, error) {
	networks, err := m.cli.NetworkList(ctx, network.ListOptions{})
	if err != nil {
		return "", fmt.Errorf("list networks: %w", err)
	}

	for _, nw := range networks {
		if nw.Name == sandboxNetwork {
			slog.Info("Sandbox network already exists", "network_id", nw.ID)
			return nw.ID, nil
		}
	}

	createResp, err := m.cli.NetworkCreate(ctx, sandboxNetwork, network.CreateOptions{
		Driver: "bridge",
		IPAM: &network.IPAM{
			Config: []network.IPAMConfig{
				{Subnet: sandboxSubnet},
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("create network %s: %w", sandboxNetwork, err)
	}

	slog.Info("Sandbox network created", "network_id", createResp.ID, "subnet", sandboxSubnet)
	return createResp.ID, nil
}
