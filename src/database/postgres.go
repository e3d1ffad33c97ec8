package database

import (
	"context"
	"fmt"

	"treasury/src/config"
	aws_handler "treasury/src/utils/aws"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ResolveDSN returns the connection string, swapping in the password from Secrets Manager when a secret name is configured.
func ResolveDSN(cfg config.SQLConfig) (string, error) {
	if cfg.SecretName == "" {
		return cfg.DSN(), nil
	}
	handler, err := aws_handler.NewAWSHandler(cfg.Region)
	if err != nil {
		return "", fmt.Errorf("failed to create aws session: %w", err)
	}
	password, err := handler.SecretManager.GetDatabasePassword(cfg.SecretName)
	if err != nil {
		return "", fmt.Errorf("failed to read database secret %s: %w", cfg.SecretName, err)
	}
	cfg.Password = password
	return cfg.DSN(), nil
}

func SetupDB(ctx context.Context, cfg config.SQLConfig) (*pgxpool.Pool, error) {
	dsn, err := ResolveDSN(cfg)
	if err != nil {
		return nil, err
	}

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolConfig.MinConns = cfg.MinConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return pool, nil
}
