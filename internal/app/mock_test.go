package app

import (
	"context"

	"github.com/stretchr/testify/mock"

	"relesia/internal/scm"
)

// MockConnector is a mock implementation of the scm.Connector interface
type MockConnector struct {
	*mock.Mock
}

func NewMockConnector() *MockConnector {
	m := &MockConnector{Mock: &mock.Mock{}}
	m.On("Kind").Return(scm.KindGit).Maybe()
	m.On("Close").Return(nil).Maybe()
	return m
}

func (m *MockConnector) Kind() scm.BackendKind {
	args := m.Called()
	return args.Get(0).(scm.BackendKind)
}

func (m *MockConnector) Clone(ctx context.Context, sourceURL, destination string, creds scm.Credentials) (*scm.WorkingCopy, error) {
	args := m.Called(ctx, sourceURL, destination, creds)
	wc, _ := args.Get(0).(*scm.WorkingCopy)
	return wc, args.Error(1)
}

func (m *MockConnector) Open(ctx context.Context, path string, creds scm.Credentials) (*scm.WorkingCopy, error) {
	args := m.Called(ctx, path, creds)
	wc, _ := args.Get(0).(*scm.WorkingCopy)
	return wc, args.Error(1)
}

func (m *MockConnector) FetchChanges(ctx context.Context, wc *scm.WorkingCopy) (*scm.ChangeSet, error) {
	args := m.Called(ctx, wc)
	changes, _ := args.Get(0).(*scm.ChangeSet)
	return changes, args.Error(1)
}

func (m *MockConnector) Checkout(ctx context.Context, wc *scm.WorkingCopy, revision string) error {
	args := m.Called(ctx, wc, revision)
	return args.Error(0)
}

func (m *MockConnector) Stage(ctx context.Context, wc *scm.WorkingCopy, paths ...string) error {
	args := m.Called(ctx, wc, paths)
	return args.Error(0)
}

func (m *MockConnector) Commit(ctx context.Context, wc *scm.WorkingCopy, message string, author scm.Identity) (scm.RevisionID, error) {
	args := m.Called(ctx, wc, message, author)
	return args.Get(0).(scm.RevisionID), args.Error(1)
}

func (m *MockConnector) CurrentRevision(ctx context.Context, wc *scm.WorkingCopy) (scm.RevisionID, error) {
	args := m.Called(ctx, wc)
	return args.Get(0).(scm.RevisionID), args.Error(1)
}

func (m *MockConnector) Close() error {
	args := m.Called()
	return args.Error(0)
}

// MockLocator is a mock implementation of the scm.RepositoryLocator interface
type MockLocator struct {
	*mock.Mock
}

func NewMockLocator() *MockLocator {
	return &MockLocator{Mock: &mock.Mock{}}
}

func (m *MockLocator) CloneURL(ctx context.Context, project string, preferSSH bool) (string, error) {
	args := m.Called(ctx, project, preferSSH)
	return args.String(0), args.Error(1)
}

// factoryFor returns a ConnectorFactory whose git connector is conn.
func factoryFor(conn scm.Connector) *ConnectorFactory {
	registry := scm.NewRegistry()
	registry.Register(scm.KindGit, func() scm.Connector { return conn })
	return NewConnectorFactory(scm.NewResolver(registry))
}
