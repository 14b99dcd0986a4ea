package scm

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	relerrors "relesia/internal/errors"
)

func TestResolver_GetConnector(t *testing.T) {
	resolver := NewResolver(nil)

	tests := []struct {
		name     string
		kindText string
		wantKind BackendKind
		wantErr  error
	}{
		{name: "git", kindText: "git", wantKind: KindGit},
		{name: "git upper case", kindText: "GIT", wantKind: KindGit},
		{name: "git padded", kindText: "  Git\t", wantKind: KindGit},
		{name: "bitbucket speaks git", kindText: "bitbucket", wantKind: KindGit},
		{name: "bitbucket mixed case", kindText: "BitBucket", wantKind: KindGit},
		{name: "svn unsupported", kindText: "svn", wantErr: relerrors.ErrUnsupportedBackend},
		{name: "cvs unsupported", kindText: "CVS", wantErr: relerrors.ErrUnsupportedBackend},
		{name: "perforce unknown", kindText: "perforce", wantErr: relerrors.ErrUnknownBackend},
		{name: "empty unknown", kindText: "", wantErr: relerrors.ErrUnknownBackend},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn, err := resolver.GetConnector(tt.kindText)
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.Nil(t, conn)
				assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)

				var connErr *relerrors.ConnectorError
				require.True(t, errors.As(err, &connErr))
				assert.Contains(t, connErr.Error(), tt.kindText)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantKind, conn.Kind())
		})
	}
}

func TestResolver_FreshInstancePerCall(t *testing.T) {
	resolver := NewResolver(nil)

	first, err := resolver.GetConnector("git")
	require.NoError(t, err)
	second, err := resolver.GetConnector("git")
	require.NoError(t, err)

	assert.NotSame(t, first, second)
}

func TestResolver_RegisteredDoubleOverridesBuiltIn(t *testing.T) {
	registry := NewRegistry()
	RegisterDefaults(registry)
	registry.Register(KindGit, stubFactory(KindGit, "double"))
	resolver := NewResolver(registry)

	conn, err := resolver.GetConnector("bitbucket")
	require.NoError(t, err)
	stub, ok := conn.(*stubConnector)
	require.True(t, ok)
	assert.Equal(t, "double", stub.tag)
}

func TestResolver_RegisteringRecognisedKindMakesItSupported(t *testing.T) {
	registry := NewRegistry()
	registry.Register(KindSVN, stubFactory(KindSVN, ""))
	resolver := NewResolver(registry)

	conn, err := resolver.GetConnector("svn")
	require.NoError(t, err)
	assert.Equal(t, KindSVN, conn.Kind())

	_, err = resolver.GetConnector("git")
	assert.ErrorIs(t, err, relerrors.ErrUnsupportedBackend)
}

func TestResolver_NilFactoryResult(t *testing.T) {
	registry := NewRegistry()
	registry.Register(KindGit, func() Connector { return nil })

	_, err := NewResolver(registry).GetConnector("git")
	assert.ErrorIs(t, err, relerrors.ErrOperationFailed)
}

func TestResolver_Describe(t *testing.T) {
	statuses := NewResolver(nil).Describe()

	require.Len(t, statuses, 4)
	assert.Equal(t, KindStatus{Kind: KindGit, Supported: true}, statuses[0])
	assert.Equal(t, KindStatus{Kind: KindBitbucket, AliasOf: KindGit, Supported: true}, statuses[1])
	assert.Equal(t, KindStatus{Kind: KindSVN}, statuses[2])
	assert.Equal(t, KindStatus{Kind: KindCVS}, statuses[3])
}
