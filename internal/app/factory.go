package app

import (
	"relesia/internal/scm"
)

// LocatorFunc creates a repository locator for a hosting instance.
type LocatorFunc func(baseURL, token string) (scm.RepositoryLocator, error)

// ConnectorFactory provides the connectors and repository locators a sync
// run needs, keeping the workflow decoupled from concrete backends.
type ConnectorFactory struct {
	resolver   *scm.Resolver
	newLocator LocatorFunc
}

// NewConnectorFactory creates a factory resolving connectors through
// resolver. A nil resolver uses the default registry.
func NewConnectorFactory(resolver *scm.Resolver) *ConnectorFactory {
	if resolver == nil {
		resolver = scm.NewResolver(nil)
	}
	return &ConnectorFactory{
		resolver: resolver,
		newLocator: func(baseURL, token string) (scm.RepositoryLocator, error) {
			return scm.NewGitLabLocator(baseURL, token)
		},
	}
}

// WithLocator replaces how GitLab locators are created.
func (f *ConnectorFactory) WithLocator(fn LocatorFunc) *ConnectorFactory {
	f.newLocator = fn
	return f
}

// GetConnector returns a fresh connector for the kind named in the manifest.
func (f *ConnectorFactory) GetConnector(kindText string) (scm.Connector, error) {
	return f.resolver.GetConnector(kindText)
}

// GetLocator returns a locator for the GitLab instance at baseURL.
func (f *ConnectorFactory) GetLocator(baseURL, token string) (scm.RepositoryLocator, error) {
	return f.newLocator(baseURL, token)
}
