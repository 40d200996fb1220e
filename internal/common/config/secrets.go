package config

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-secretsmanager-caching-go/v2/secretcache"
)

// SecretSource returns the plaintext value of a secret
type SecretSource interface {
	GetSecretString(ctx context.Context, secretID string) (string, error)
}

// SecretsManagerSource reads secrets from AWS Secrets Manager through the
// caching client, falling back to a direct call when the cache is unavailable
type SecretsManagerSource struct {
	client *secretsmanager.Client
	cache  *secretcache.Cache
}

// NewSecretsManagerSource creates a cached Secrets Manager source
func NewSecretsManagerSource(awsCfg aws.Config) *SecretsManagerSource {
	client := secretsmanager.NewFromConfig(awsCfg)
	cache, err := secretcache.New(
		func(c *secretcache.Cache) {
			c.Client = client
		},
	)
	if err != nil {
		cache = nil
	}
	return &SecretsManagerSource{client: client, cache: cache}
}

// GetSecretString implements SecretSource
func (s *SecretsManagerSource) GetSecretString(ctx context.Context, secretID string) (string, error) {
	if s.cache != nil {
		return s.cache.GetSecretString(secretID)
	}
	result, err := s.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(secretID),
	})
	if err != nil {
		return "", err
	}
	return aws.ToString(result.SecretString), nil
}

// ResolveSecrets fills the values configured by *_SECRET_ID variables.
// Values set directly in the environment win.
func (c *Config) ResolveSecrets(ctx context.Context, source SecretSource) error {
	if c.PostgresDSN == "" && c.PostgresDSNSecretID != "" {
		dsn, err := source.GetSecretString(ctx, c.PostgresDSNSecretID)
		if err != nil {
			return fmt.Errorf("failed to read secret %s: %w", c.PostgresDSNSecretID, err)
		}
		c.PostgresDSN = dsn
	}
	if c.RedisPassword == "" && c.RedisPasswordSecretID != "" {
		password, err := source.GetSecretString(ctx, c.RedisPasswordSecretID)
		if err != nil {
			return fmt.Errorf("failed to read secret %s: %w", c.RedisPasswordSecretID, err)
		}
		c.RedisPassword = password
	}
	return nil
}

// NeedsSecrets reports whether any value must be read from Secrets Manager
func (c *Config) NeedsSecrets() bool {
	return (c.PostgresDSN == "" && c.PostgresDSNSecretID != "") ||
		(c.RedisPassword == "" && c.RedisPasswordSecretID != "")
}
