package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/sluicehq/sluice/internal/config"
	"github.com/sluicehq/sluice/internal/connector"
	"github.com/sluicehq/sluice/internal/model"
	"github.com/sluicehq/sluice/internal/secret"
	"github.com/sluicehq/sluice/internal/tenant"
)

// ConnectionInput is a connection as submitted by an operator, with its
// configuration in plaintext.
type ConnectionInput struct {
	Name   string            `json:"name"`
	Class  string            `json:"class"`
	Config map[string]any    `json:"config"`
	Pool   *model.PoolConfig `json:"pool,omitempty"`
}

// ConnectionView is a stored connection with its configuration redacted.
type ConnectionView struct {
	model.Connection
	Config map[string]any `json:"config"`
}

// ConnectionService stores connection configurations encrypted at rest and
// opens pools for them on demand.
type ConnectionService struct {
	repo     ConnectionRepository
	registry *connector.Registry
	key      secret.Key
	quota    *Quota
	logger   *slog.Logger
}

// NewConnectionService creates a connection service. Configurations are sealed
// with key.
func NewConnectionService(repo ConnectionRepository, registry *connector.Registry, key secret.Key, quota *Quota, logger *slog.Logger) *ConnectionService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ConnectionService{repo: repo, registry: registry, key: key, quota: quota, logger: logger}
}

// Save validates in against its engine schema, encrypts the configuration and
// creates or replaces the named connection.
func (s *ConnectionService) Save(ctx context.Context, t tenant.Context, in ConnectionInput) (*model.Connection, error) {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidRequest)
	}
	if in.Config == nil {
		in.Config = map[string]any{}
	}
	if _, err := s.registry.Decode(in.Class, in.Config); err != nil {
		return nil, err
	}
	blob, err := secret.Encrypt(in.Config, s.key)
	if err != nil {
		return nil, fmt.Errorf("seal connection config: %w", err)
	}

	pool := model.DefaultPoolConfig()
	if in.Pool != nil {
		pool = *in.Pool
	}
	c := &model.Connection{Name: in.Name, Class: in.Class, Config: blob, Pool: pool}

	_, err = s.repo.GetConnectionByName(ctx, t, in.Name)
	switch {
	case errors.Is(err, config.ErrNotFound):
		if err := s.quota.Check(ctx, t, ResourceConnections); err != nil {
			return nil, err
		}
		if err := s.repo.CreateConnection(ctx, t, c); err != nil {
			return nil, err
		}
	case err != nil:
		return nil, err
	default:
		if err := s.repo.UpdateConnection(ctx, t, c); err != nil {
			return nil, err
		}
		if err := s.registry.Close(poolKey(t, in.Name)); err != nil {
			s.logger.Warn("closing replaced pool", "connection", in.Name, "error", err)
		}
	}
	s.logger.Info("connection saved", "tenant", t.String(), "connection", in.Name, "class", in.Class)
	return c, nil
}

// Config returns the decrypted configuration of a connection. A blob that
// fails to decrypt is logged without its contents and reported as
// secret.ErrDecryption.
func (s *ConnectionService) Config(ctx context.Context, t tenant.Context, name string) (*model.Connection, map[string]any, error) {
	c, err := s.repo.GetConnectionByName(ctx, t, name)
	if err != nil {
		return nil, nil, err
	}
	m, err := secret.Decrypt(c.Config, s.key)
	if err != nil {
		s.logger.Error("connection config unreadable", "tenant", t.String(), "connection", name, "error", err)
		return nil, nil, err
	}
	return c, m, nil
}

// Describe returns a connection with secret fields masked.
func (s *ConnectionService) Describe(ctx context.Context, t tenant.Context, name string) (*ConnectionView, error) {
	c, m, err := s.Config(ctx, t, name)
	if err != nil {
		return nil, err
	}
	return &ConnectionView{Connection: *c, Config: secret.Redact(m)}, nil
}

// List returns the tenant's connections without their configurations.
func (s *ConnectionService) List(ctx context.Context, t tenant.Context) ([]model.Connection, error) {
	return s.repo.ListConnections(ctx, t)
}

// Open returns a pool for the named connection, connecting on first use.
func (s *ConnectionService) Open(ctx context.Context, t tenant.Context, name string) (*sqlx.DB, error) {
	c, m, err := s.Config(ctx, t, name)
	if err != nil {
		return nil, err
	}
	return s.registry.Open(ctx, poolKey(t, name), c.Class, m, c.Pool)
}

// Test opens the named connection and pings it.
func (s *ConnectionService) Test(ctx context.Context, t tenant.Context, name string) error {
	db, err := s.Open(ctx, t, name)
	if err != nil {
		return err
	}
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping %s: %w", name, err)
	}
	return nil
}

// Delete removes a connection and closes its pool.
func (s *ConnectionService) Delete(ctx context.Context, t tenant.Context, name string) error {
	if err := s.repo.DeleteConnection(ctx, t, name); err != nil {
		return err
	}
	return s.registry.Close(poolKey(t, name))
}

func poolKey(t tenant.Context, name string) string {
	return t.ID() + "/" + name
}
