package deploy

import (
	"context"
	"fmt"
	"time"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
)

const readinessPollInterval = 2 * time.Second

// pollUntil runs check until it reports ready, fails, or ctx expires.
// Context expiry is a timeout, not an error, the two are distinct verdicts
// for the caller.
func pollUntil(ctx context.Context, check func(context.Context) (bool, error)) (bool, error) {
	ticker := time.NewTicker(readinessPollInterval)
	defer ticker.Stop()

	for {
		ready, err := check(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return false, nil
			}
			return false, err
		}
		if ready {
			return true, nil
		}

		select {
		case <-ctx.Done():
			return false, nil
		case <-ticker.C:
		}
	}
}

func newKubeClient(kubeconfigPath string) (kubernetes.Interface, error) {
	var restConfig *rest.Config
	var err error

	if kubeconfigPath != "" {
		restConfig, err = clientcmd.BuildConfigFromFlags("", kubeconfigPath)
	} else {
		restConfig, err = rest.InClusterConfig()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to build kubernetes config: %w", err)
	}

	return kubernetes.NewForConfig(restConfig)
}

func (d *HelmDeployer) podsReady(ctx context.Context, namespace, selector string) (bool, error) {
	pods, err := d.kube.CoreV1().Pods(namespace).List(ctx, metav1.ListOptions{LabelSelector: selector})
	if err != nil {
		return false, fmt.Errorf("failed to list pods for selector %s: %w", selector, err)
	}

	// zero matching pods means the workload has not materialized yet
	if len(pods.Items) == 0 {
		return false, nil
	}

	for _, pod := range pods.Items {
		if !podReady(pod) {
			return false, nil
		}
	}
	return true, nil
}

func podReady(pod corev1.Pod) bool {
	if pod.Status.Phase != corev1.PodRunning {
		return false
	}
	for _, cond := range pod.Status.Conditions {
		if cond.Type == corev1.PodReady {
			return cond.Status == corev1.ConditionTrue
		}
	}
	return false
}
