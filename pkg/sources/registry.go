// Package sources knows the configured production line databases and turns a
// source name into a ready query executor.
package sources

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-lineqa/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-lineqa/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-lineqa/pkg/models"
)

// Resolver turns source names into executors. The fetcher depends on this
// interface so tests can supply in-memory sources.
type Resolver interface {
	Names() []string
	TableNameFor(name string) (string, error)
	Resolve(ctx context.Context, name string) (datasource.QueryExecutor, error)
}

// Registry is the set of configured sources.
type Registry struct {
	sources map[string]SourceConfig
	creds   CredentialProvider
	factory datasource.ExecutorFactory
	logger  *zap.Logger
}

// NewRegistry creates a registry over sources. Entries with a type no adapter
// handles are kept so they show up in listings, and fail on Resolve.
func NewRegistry(sources map[string]SourceConfig, creds CredentialProvider, factory datasource.ExecutorFactory, logger *zap.Logger) *Registry {
	r := &Registry{
		sources: make(map[string]SourceConfig, len(sources)),
		creds:   creds,
		factory: factory,
		logger:  logger.Named("sources"),
	}
	for name, c := range sources {
		c.Name = name
		if !datasource.IsRegistered(c.Type) {
			r.logger.Warn("source has unsupported type",
				zap.String("source", name),
				zap.String("type", c.Type),
			)
		}
		r.sources[name] = c
	}
	return r
}

// Names returns the source names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.sources))
	for n := range r.sources {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Len is the number of configured sources.
func (r *Registry) Len() int {
	return len(r.sources)
}

// Config returns the configuration of a source.
func (r *Registry) Config(name string) (SourceConfig, error) {
	c, ok := r.sources[name]
	if !ok {
		return SourceConfig{}, fmt.Errorf("%w: %s", apperrors.ErrUnknownSource, name)
	}
	return c, nil
}

// TableNameFor returns the table queried for a source.
func (r *Registry) TableNameFor(name string) (string, error) {
	c, err := r.Config(name)
	if err != nil {
		return "", err
	}
	return c.TableName(), nil
}

// Describe lists every source without credentials, sorted by name.
func (r *Registry) Describe() []models.SourceInfo {
	out := make([]models.SourceInfo, 0, len(r.sources))
	for _, name := range r.Names() {
		c := r.sources[name]
		out = append(out, models.SourceInfo{
			Name:        name,
			Type:        c.Type,
			Location:    c.Location(),
			Table:       c.TableName(),
			Credentials: r.credentialState(c),
		})
	}
	return out
}

func (r *Registry) credentialState(c SourceConfig) string {
	if needsNoCredentials(c) {
		return models.CredentialsNotRequired
	}
	if checker, ok := r.creds.(interface{ HasPassword(SourceConfig) bool }); ok {
		if !checker.HasPassword(c) {
			return models.CredentialsMissing
		}
		return models.CredentialsOK
	}
	if _, err := r.creds.GetCredentials(c); err != nil {
		return models.CredentialsMissing
	}
	return models.CredentialsOK
}

func needsNoCredentials(c SourceConfig) bool {
	return datasource.CanonicalType(c.Type) == "sqlite"
}

// Resolve creates an executor for the named source.
func (r *Registry) Resolve(ctx context.Context, name string) (datasource.QueryExecutor, error) {
	c, err := r.Config(name)
	if err != nil {
		return nil, err
	}
	if !datasource.IsRegistered(c.Type) {
		return nil, fmt.Errorf("source %s: unsupported database type %q", name, c.Type)
	}

	cfg, err := r.connectionConfig(c)
	if err != nil {
		return nil, err
	}
	return r.factory.NewQueryExecutor(ctx, c.Type, cfg, name)
}

// connectionConfig flattens a source entry and its credentials into the
// adapter config map.
func (r *Registry) connectionConfig(c SourceConfig) (map[string]any, error) {
	cfg := map[string]any{}
	set := func(key, v string) {
		if v != "" {
			cfg[key] = v
		}
	}

	set(datasource.KeyHost, c.Host)
	if c.Host == "" {
		set(datasource.KeyHost, c.Server)
	}
	if c.Port > 0 {
		cfg[datasource.KeyPort] = c.Port
	}
	set(datasource.KeyDatabase, c.Database)
	set(datasource.KeyPath, c.Path)
	set(datasource.KeySSLMode, c.SSLMode)
	set("instance", c.Instance)
	if c.Encrypt != nil {
		cfg[datasource.KeyEncrypt] = *c.Encrypt
	}
	if c.TrustServerCertificate {
		cfg[datasource.KeyTrustServerCertificate] = true
	}
	if len(c.Options) > 0 {
		cfg[datasource.KeyParams] = c.Options
	}

	if needsNoCredentials(c) {
		return cfg, nil
	}
	creds, err := r.creds.GetCredentials(c)
	if err != nil {
		return nil, err
	}
	set(datasource.KeyUser, creds.User)
	cfg[datasource.KeyPassword] = creds.Password
	return cfg, nil
}

var _ Resolver = (*Registry)(nil)
