package deploy

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/compose-spec/compose-go/v2/cli"
	"github.com/compose-spec/compose-go/v2/types"
	"github.com/docker/cli/cli/command"
	"github.com/docker/cli/cli/flags"
	"github.com/docker/compose/v2/pkg/api"
	"github.com/docker/compose/v2/pkg/compose"
	"github.com/docker/docker/client"
	"github.com/syncline/syncline/internal/config"
	"go.uber.org/zap"
)

// ComposeDeployer converges one compose project per target against the
// local docker daemon. Project files are read from the working copy.
type ComposeDeployer struct {
	dockerClient *client.Client
	composeAPI   api.Service
	repoPath     string
	log          *zap.SugaredLogger
}

// NewComposeDeployer connects to the docker daemon at dockerHost and fails
// fast when it is unreachable.
func NewComposeDeployer(dockerHost, repoPath string, log *zap.SugaredLogger) (*ComposeDeployer, error) {
	dockerClient, err := client.NewClientWithOpts(
		client.WithHost(dockerHost),
		client.WithAPIVersionNegotiation(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := dockerClient.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to connect to docker daemon: %w", err)
	}

	dockerCli, err := command.NewDockerCli(
		command.WithInputStream(os.Stdin),
		command.WithOutputStream(os.Stdout),
		command.WithErrorStream(os.Stderr),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create docker CLI: %w", err)
	}

	if err := dockerCli.Initialize(&flags.ClientOptions{Hosts: []string{dockerHost}}); err != nil {
		return nil, fmt.Errorf("failed to initialize docker CLI: %w", err)
	}

	return &ComposeDeployer{
		dockerClient: dockerClient,
		composeAPI:   compose.NewComposeService(dockerCli),
		repoPath:     repoPath,
		log:          log,
	}, nil
}

// Apply creates and starts the project. Containers already matching the
// compose model are left alone, diverged ones are recreated and orphans
// removed.
func (d *ComposeDeployer) Apply(ctx context.Context, target config.Target) error {
	project, err := d.loadProject(ctx, target)
	if err != nil {
		return err
	}

	err = d.composeAPI.Create(ctx, project, api.CreateOptions{
		RemoveOrphans: true,
		Recreate:      api.RecreateDiverged,
	})
	if err != nil {
		return fmt.Errorf("failed to create containers for %s: %w", target.Name, err)
	}

	err = d.composeAPI.Start(ctx, project.Name, api.StartOptions{
		Project: project,
	})
	if err != nil {
		return fmt.Errorf("failed to start %s: %w", target.Name, err)
	}

	d.log.Infow("Applied compose project", "project", project.Name)
	return nil
}

// WaitReady polls container state for the project until every service is
// running, and healthy where a healthcheck exists, or ctx expires.
func (d *ComposeDeployer) WaitReady(ctx context.Context, target config.Target) (bool, error) {
	project, err := d.loadProject(ctx, target)
	if err != nil {
		return false, err
	}

	return pollUntil(ctx, func(ctx context.Context) (bool, error) {
		containers, err := d.composeAPI.Ps(ctx, project.Name, api.PsOptions{
			All:     true,
			Project: project,
		})
		if err != nil {
			return false, fmt.Errorf("failed to list containers for %s: %w", project.Name, err)
		}
		return allRunning(containers), nil
	})
}

func (d *ComposeDeployer) loadProject(ctx context.Context, target config.Target) (*types.Project, error) {
	composeFile := filepath.Join(d.repoPath, target.ComposeFile)
	opts, err := cli.NewProjectOptions(
		[]string{composeFile},
		cli.WithName(target.Name),
		cli.WithInterpolation(true),
		cli.WithWorkingDirectory(filepath.Dir(composeFile)),
		cli.WithEnv(os.Environ()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to build project options for %s: %w", target.Name, err)
	}

	project, err := cli.ProjectFromOptions(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to load compose project %s: %w", target.Name, err)
	}
	return project, nil
}

// allRunning reports whether every container is up and, when it defines a
// healthcheck, healthy. An empty listing is not ready, the project has not
// materialized yet.
func allRunning(containers []api.ContainerSummary) bool {
	if len(containers) == 0 {
		return false
	}
	for _, container := range containers {
		if !strings.EqualFold(container.State, "running") {
			return false
		}
		if container.Health != "" && !strings.EqualFold(container.Health, "healthy") {
			return false
		}
	}
	return true
}
