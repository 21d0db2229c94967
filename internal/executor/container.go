package executor

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/registry"
	"github.com/docker/docker/client"

	"github.com/khaosresearch/dramax/internal/dramaxerr"
	"github.com/khaosresearch/dramax/internal/model"
)

// RegistryCredentials are optional image-registry login credentials, read
// from the worker's environment (spec.md §6 "optional container-registry
// credentials").
type RegistryCredentials struct {
	Username      string
	Password      string
	ServerAddress string
}

// ContainerExecutor runs one task as a detached Docker container, grounded
// in the teacher's DockerBackend (internal/services/sandbox_docker_backend.go):
// same ImageInspect-then-Pull fallback, same ContainerCreate/Start/exec
// shape, adapted here to run the task's own command to completion
// (ContainerWait) rather than hosting a long-lived exec sandbox.
type ContainerExecutor struct {
	client *client.Client
	creds  *RegistryCredentials
}

func NewContainerExecutor(creds *RegistryCredentials) (*ContainerExecutor, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}
	return &ContainerExecutor{client: cli, creds: creds}, nil
}

func (e *ContainerExecutor) Close() error {
	return e.client.Close()
}

func (e *ContainerExecutor) Execute(ctx context.Context, task model.Task, workdir string) (string, error) {
	spec := task.Executor.Container

	if err := e.ensureImage(ctx, spec.Ref()); err != nil {
		return "", err
	}

	cmdLine := buildCommandLine(spec.Params)

	envVars := make([]string, 0, len(spec.Env))
	for k, v := range spec.Env {
		envVars = append(envVars, fmt.Sprintf("%s=%s", k, v))
	}

	containerCfg := &container.Config{
		Image: spec.Ref(),
		Cmd:   []string{"sh", "-c", cmdLine},
		Env:   envVars,
		Tty:   true,
	}

	binds := []string{
		bindMount(workdir, "inputs"),
		bindMount(workdir, "outputs"),
		bindMount(workdir, "shared"),
	}
	hostCfg := &container.HostConfig{Binds: binds}

	resp, err := e.client.ContainerCreate(ctx, containerCfg, hostCfg, nil, nil, "")
	if err != nil {
		return "", fmt.Errorf("create container: %w", err)
	}
	containerID := resp.ID
	defer e.client.ContainerRemove(ctx, containerID, container.RemoveOptions{Force: true, RemoveVolumes: true})

	if err := e.client.ContainerStart(ctx, containerID, container.StartOptions{}); err != nil {
		return "", fmt.Errorf("start container: %w", err)
	}

	waitCh, errCh := e.client.ContainerWait(ctx, containerID, container.WaitConditionNotRunning)
	var statusCode int64
	select {
	case err := <-errCh:
		if err != nil {
			return "", fmt.Errorf("wait container: %w", err)
		}
	case status := <-waitCh:
		statusCode = status.StatusCode
	}

	logs, err := e.collectLogs(ctx, containerID)
	if err != nil {
		return "", fmt.Errorf("collect container logs: %w", err)
	}
	fullLog := cmdLine + "\n" + logs

	if statusCode != 0 {
		return "", &dramaxerr.ContainerExecutionError{Logs: fullLog, StatusCode: statusCode}
	}

	return fullLog, nil
}

func (e *ContainerExecutor) ensureImage(ctx context.Context, ref string) error {
	_, _, err := e.client.ImageInspectWithRaw(ctx, ref)
	if err == nil {
		return nil
	}

	pullOpts := image.PullOptions{}
	if e.creds != nil {
		pullOpts.RegistryAuth = e.encodedAuth()
	}
	reader, err := e.client.ImagePull(ctx, ref, pullOpts)
	if err != nil {
		return fmt.Errorf("pull image %s: %w", ref, err)
	}
	defer reader.Close()
	_, _ = io.Copy(io.Discard, reader)
	return nil
}

func (e *ContainerExecutor) encodedAuth() string {
	auth := registry.AuthConfig{
		Username:      e.creds.Username,
		Password:      e.creds.Password,
		ServerAddress: e.creds.ServerAddress,
	}
	encoded, err := registry.EncodeAuthConfig(auth)
	if err != nil {
		return ""
	}
	return encoded
}

func (e *ContainerExecutor) collectLogs(ctx context.Context, containerID string) (string, error) {
	out, err := e.client.ContainerLogs(ctx, containerID, container.LogsOptions{ShowStdout: true, ShowStderr: true})
	if err != nil {
		return "", err
	}
	defer out.Close()

	// containerCfg always sets Tty: true, so the log stream is a raw byte
	// stream, not the stdout/stderr multiplexed framing stdcopy.StdCopy
	// expects; read it directly.
	raw, err := io.ReadAll(out)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// buildCommandLine joins parameters as "{name} {value}" pairs, per
// spec.md §4.5.
func buildCommandLine(params []model.Param) string {
	parts := make([]string, 0, len(params))
	for _, p := range params {
		parts = append(parts, fmt.Sprintf("%s %s", p.Name, p.Value))
	}
	return strings.Join(parts, " ")
}

func bindMount(workdir, name string) string {
	host := filepath.Join(workdir, "mnt", name)
	return fmt.Sprintf("%s:/mnt/%s", host, name)
}
