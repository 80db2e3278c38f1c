// Package cmd holds the syncline command tree. Subcommands stay thin, all
// reconciliation behavior lives in the internal packages they wire up.
package cmd

import (
	"fmt"

	"github.com/kr/pretty"
	"github.com/spf13/cobra"
	"github.com/syncline/syncline/internal/config"
	"github.com/syncline/syncline/internal/deploy"
	"github.com/syncline/syncline/internal/gitrepo"
	"github.com/syncline/syncline/internal/journal"
	"github.com/syncline/syncline/internal/monitor"
	"github.com/syncline/syncline/internal/state"
	"go.uber.org/zap"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "syncline",
	Short: "Continuous reconciliation between a git repository and its deployment targets",
	Long: `Syncline watches a git branch for new commits, maps the changed paths to
registered deployment targets and drives each affected target to the new
revision with its native tooling. Every observation and deployment lands
in an append-only journal.`,
	SilenceUsage: true,
}

// Execute runs the command tree.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config/config.yaml", "path to the configuration file")
}

// foundation is what every subcommand needs before touching any runtime:
// parsed config, logger, journal and the persisted state.
type foundation struct {
	config  *config.Config
	log     *zap.SugaredLogger
	journal *journal.Journal
	store   state.StoreIfc
}

func buildFoundation() (*foundation, error) {
	cfg, err := config.NewManager(configPath).LoadAndValidateConfig()
	if err != nil {
		return nil, err
	}

	log, err := newLogger(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	log.Debugw("Loaded configuration", "config", pretty.Sprint(cfg))

	jrnl, err := journal.New(cfg.DataDir)
	if err != nil {
		return nil, err
	}

	store, err := state.NewStore(cfg.DataDir)
	if err != nil {
		return nil, err
	}

	return &foundation{config: cfg, log: log, journal: jrnl, store: store}, nil
}

func newLogger(level string) (*zap.SugaredLogger, error) {
	var logger *zap.Logger
	var err error
	if level == "debug" {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return logger.Sugar(), nil
}

// buildMonitor wires the repository client and one deployer per runtime
// the target registry actually references. An unreachable cluster or
// daemon is fatal here, before any scheduler state changes.
func buildMonitor(f *foundation) (*monitor.Monitor, error) {
	var auth *gitrepo.Auth
	if f.config.GitAuth != nil {
		auth = &gitrepo.Auth{Username: f.config.GitAuth.Username, Token: f.config.GitAuth.Token}
	}

	repo, err := gitrepo.NewClient(f.config.RemoteURL, f.config.Branch, f.config.RepoPath, auth, f.log)
	if err != nil {
		return nil, err
	}

	deployers := make(map[string]monitor.DeployerIfc)
	if f.config.HasRuntime(config.RuntimeHelm) {
		helm, err := deploy.NewHelmDeployer(f.config.Kubeconfig, f.config.RepoPath, f.log)
		if err != nil {
			return nil, err
		}
		deployers[config.RuntimeHelm] = helm
	}
	if f.config.HasRuntime(config.RuntimeCompose) {
		compose, err := deploy.NewComposeDeployer(f.config.DockerHost, f.config.RepoPath, f.log)
		if err != nil {
			return nil, err
		}
		deployers[config.RuntimeCompose] = compose
	}

	return monitor.New(f.config, repo, deployers, f.journal, f.store, f.log), nil
}
