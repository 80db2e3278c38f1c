// Package deploy drives deployment targets to the revision currently
// checked out in the working copy. One deployer exists per runtime, all of
// them converge rather than re-create: applying the same revision twice
// leaves the workload untouched.
package deploy

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/syncline/syncline/internal/config"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
	"helm.sh/helm/v3/pkg/action"
	"helm.sh/helm/v3/pkg/chart/loader"
	"helm.sh/helm/v3/pkg/cli"
	"helm.sh/helm/v3/pkg/storage/driver"
	"k8s.io/client-go/kubernetes"
)

// HelmDeployer installs or upgrades one release per target. Releases are
// named after the target, charts are read from the working copy.
type HelmDeployer struct {
	settings *cli.EnvSettings
	kube     kubernetes.Interface
	repoPath string
	log      *zap.SugaredLogger

	mu sync.Mutex
	// action configurations are scoped to the namespace their release
	// history lives in, so one is kept per namespace
	configs map[string]*action.Configuration
}

// NewHelmDeployer connects to the cluster described by kubeconfigPath,
// falling back to in-cluster credentials when it is empty.
func NewHelmDeployer(kubeconfigPath, repoPath string, log *zap.SugaredLogger) (*HelmDeployer, error) {
	settings := cli.New()
	if kubeconfigPath != "" {
		settings.KubeConfig = kubeconfigPath
	}

	kube, err := newKubeClient(kubeconfigPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create kubernetes client: %w", err)
	}

	return &HelmDeployer{
		settings: settings,
		kube:     kube,
		repoPath: repoPath,
		log:      log,
		configs:  make(map[string]*action.Configuration),
	}, nil
}

func (d *HelmDeployer) actionConfig(namespace string) (*action.Configuration, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if actionConfig, ok := d.configs[namespace]; ok {
		return actionConfig, nil
	}

	actionConfig := new(action.Configuration)
	err := actionConfig.Init(d.settings.RESTClientGetter(), namespace, os.Getenv("HELM_DRIVER"), log.Printf)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize helm configuration: %w", err)
	}

	d.configs[namespace] = actionConfig
	return actionConfig, nil
}

// Apply installs the chart when the release does not exist yet and upgrades
// it otherwise.
func (d *HelmDeployer) Apply(ctx context.Context, target config.Target) error {
	actionConfig, err := d.actionConfig(target.Namespace)
	if err != nil {
		return err
	}

	chartPath := filepath.Join(d.repoPath, target.Chart)
	chart, err := loader.Load(chartPath)
	if err != nil {
		return fmt.Errorf("failed to load chart %s: %w", chartPath, err)
	}

	values, err := d.loadValues(target)
	if err != nil {
		return err
	}

	history := action.NewHistory(actionConfig)
	history.Max = 1
	_, err = history.Run(target.Name)
	if errors.Is(err, driver.ErrReleaseNotFound) {
		install := action.NewInstall(actionConfig)
		install.ReleaseName = target.Name
		install.Namespace = target.Namespace
		install.CreateNamespace = true
		install.Wait = false
		install.Timeout = target.Timeout()

		if _, err := install.RunWithContext(ctx, chart, values); err != nil {
			return fmt.Errorf("failed to install release %s: %w", target.Name, err)
		}
		d.log.Infow("Installed release", "release", target.Name, "namespace", target.Namespace)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read history of release %s: %w", target.Name, err)
	}

	upgrade := action.NewUpgrade(actionConfig)
	upgrade.Namespace = target.Namespace
	upgrade.Wait = false
	upgrade.Timeout = target.Timeout()

	if _, err := upgrade.RunWithContext(ctx, target.Name, chart, values); err != nil {
		return fmt.Errorf("failed to upgrade release %s: %w", target.Name, err)
	}
	d.log.Infow("Upgraded release", "release", target.Name, "namespace", target.Namespace)
	return nil
}

// WaitReady polls the pods selected by the target until all of them report
// the Ready condition or ctx expires.
func (d *HelmDeployer) WaitReady(ctx context.Context, target config.Target) (bool, error) {
	return pollUntil(ctx, func(ctx context.Context) (bool, error) {
		return d.podsReady(ctx, target.Namespace, target.ReadinessSelector)
	})
}

func (d *HelmDeployer) loadValues(target config.Target) (map[string]interface{}, error) {
	values := map[string]interface{}{}
	if target.ValuesFile == "" {
		return values, nil
	}

	path := filepath.Join(d.repoPath, target.ValuesFile)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read values file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("failed to parse values file %s: %w", path, err)
	}
	return values, nil
}
