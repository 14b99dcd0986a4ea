package scm

import (
	"errors"
	"log/slog"
	"slices"

	relerrors "relesia/internal/errors"
)

var (
	// aliases maps hosting kinds onto the backend whose protocol they speak.
	aliases = map[BackendKind]BackendKind{
		KindBitbucket: KindGit,
	}

	// recognizedKinds are the backends the resolver knows about, whether or
	// not a connector is registered for them.
	recognizedKinds = []BackendKind{KindGit, KindBitbucket, KindSVN, KindCVS}
)

// Resolver turns user-supplied kind text into a ready connector.
type Resolver struct {
	registry *Registry
}

// NewResolver returns a resolver backed by registry. A nil registry means
// DefaultRegistry.
func NewResolver(registry *Registry) *Resolver {
	if registry == nil {
		registry = DefaultRegistry()
	}
	return &Resolver{registry: registry}
}

// GetConnector resolves kindText to a new connector instance. Recognised
// kinds without a registered connector fail with ErrUnsupportedBackend;
// anything else fails with ErrUnknownBackend.
func (r *Resolver) GetConnector(kindText string) (Connector, error) {
	kind := NormalizeKind(kindText)
	target := kind
	if alias, ok := aliases[kind]; ok {
		target = alias
	}

	if factory, ok := r.registry.Resolve(target); ok {
		conn := factory()
		if conn == nil {
			return nil, relerrors.NewOperationError(
				"Failed to resolve SCM connector",
				"the connector factory for '"+string(target)+"' returned nothing",
				"",
				errors.New("nil connector from factory: "+string(target)))
		}
		slog.Debug("Resolved SCM connector", "requested", kindText, "kind", conn.Kind())
		return conn, nil
	}

	if slices.Contains(recognizedKinds, kind) {
		return nil, relerrors.NewUnsupportedBackendError(kindText)
	}
	return nil, relerrors.NewUnknownBackendError(kindText)
}

// KindStatus describes whether a recognised kind can be resolved.
type KindStatus struct {
	Kind      BackendKind
	AliasOf   BackendKind
	Supported bool
}

// Describe reports every recognised kind and whether a connector is
// registered for it.
func (r *Resolver) Describe() []KindStatus {
	statuses := make([]KindStatus, 0, len(recognizedKinds))
	for _, kind := range recognizedKinds {
		target := kind
		status := KindStatus{Kind: kind}
		if alias, ok := aliases[kind]; ok {
			target = alias
			status.AliasOf = alias
		}
		_, status.Supported = r.registry.Resolve(target)
		statuses = append(statuses, status)
	}
	return statuses
}
