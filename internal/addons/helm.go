package addons

import (
	"fmt"
	"log"
	"os"
	"time"

	"k8s.io/apimachinery/pkg/api/meta"
	"k8s.io/client-go/discovery"
	"k8s.io/client-go/discovery/cached/memory"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/restmapper"
	"k8s.io/client-go/tools/clientcmd"
	clientcmdapi "k8s.io/client-go/tools/clientcmd/api"

	"helm.sh/helm/v3/pkg/action"
	"helm.sh/helm/v3/pkg/chart/loader"
	"helm.sh/helm/v3/pkg/cli"
)

// HelmClient installs and upgrades helm-packaged addons.
type HelmClient struct {
	settings *cli.EnvSettings
}

// NewHelmClient returns a helm client using ambient helm settings.
func NewHelmClient() *HelmClient {
	return &HelmClient{settings: cli.New()}
}

// InstallOrUpgrade converges a release to the chart version: upgrade when a
// release history exists, install (creating the namespace) otherwise.
func (h *HelmClient) InstallOrUpgrade(kubeconfig []byte, namespace, releaseName, repoURL, chartName, version string, values map[string]any) error {
	restConfig, err := clientcmd.RESTConfigFromKubeConfig(kubeconfig)
	if err != nil {
		return fmt.Errorf("failed to create rest config: %w", err)
	}

	actionConfig := new(action.Configuration)
	clientGetter := &restClientGetter{config: restConfig, namespace: namespace}
	if err := actionConfig.Init(clientGetter, namespace, os.Getenv("HELM_DRIVER"), log.Printf); err != nil {
		return fmt.Errorf("failed to init helm action config: %w", err)
	}

	cp := &action.ChartPathOptions{RepoURL: repoURL, Version: version}
	chartPath, err := cp.LocateChart(chartName, h.settings)
	if err != nil {
		return fmt.Errorf("failed to locate chart %s: %w", chartName, err)
	}
	chart, err := loader.Load(chartPath)
	if err != nil {
		return fmt.Errorf("failed to load chart %s: %w", chartName, err)
	}

	history := action.NewHistory(actionConfig)
	history.Max = 1
	if _, err := history.Run(releaseName); err == nil {
		upgrade := action.NewUpgrade(actionConfig)
		upgrade.Namespace = namespace
		upgrade.Wait = true
		upgrade.Timeout = 5 * time.Minute
		if _, err := upgrade.Run(releaseName, chart, values); err != nil {
			return fmt.Errorf("helm upgrade %s failed: %w", releaseName, err)
		}
		return nil
	}

	install := action.NewInstall(actionConfig)
	install.Namespace = namespace
	install.ReleaseName = releaseName
	install.CreateNamespace = true
	install.Wait = true
	install.Timeout = 5 * time.Minute
	if _, err := install.Run(chart, values); err != nil {
		return fmt.Errorf("helm install %s failed: %w", releaseName, err)
	}
	return nil
}

// restClientGetter is the minimal RESTClientGetter helm's action package
// needs when driven from an in-memory kubeconfig.
type restClientGetter struct {
	config    *rest.Config
	namespace string
}

func (g *restClientGetter) ToRESTConfig() (*rest.Config, error) {
	return g.config, nil
}

func (g *restClientGetter) ToDiscoveryClient() (discovery.CachedDiscoveryInterface, error) {
	discoveryClient, err := discovery.NewDiscoveryClientForConfig(g.config)
	if err != nil {
		return nil, err
	}
	return memory.NewMemCacheClient(discoveryClient), nil
}

func (g *restClientGetter) ToRESTMapper() (meta.RESTMapper, error) {
	discoveryClient, err := g.ToDiscoveryClient()
	if err != nil {
		return nil, err
	}
	return restmapper.NewDeferredDiscoveryRESTMapper(discoveryClient), nil
}

func (g *restClientGetter) ToRawKubeConfigLoader() clientcmd.ClientConfig {
	return clientcmd.NewDefaultClientConfig(*clientcmdapi.NewConfig(), &clientcmd.ConfigOverrides{})
}
