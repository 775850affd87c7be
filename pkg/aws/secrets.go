package aws

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

type secretsAPI interface {
	GetSecretValue(ctx context.Context, in *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// SecretsClient reads JSON key/value secrets. Parsed secrets are cached for
// the life of the process.
type SecretsClient struct {
	api secretsAPI

	mu     sync.Mutex
	parsed map[string]map[string]string
}

func NewSecretsClient(cfg sdkaws.Config) *SecretsClient {
	return newSecretsClient(secretsmanager.NewFromConfig(cfg))
}

func newSecretsClient(api secretsAPI) *SecretsClient {
	return &SecretsClient{api: api, parsed: make(map[string]map[string]string)}
}

// GetSecret returns the raw string value of a secret.
func (s *SecretsClient) GetSecret(ctx context.Context, name string) (string, error) {
	out, err := s.api.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{SecretId: sdkaws.String(name)})
	if err != nil {
		return "", fmt.Errorf("read secret %s: %w", name, err)
	}
	if out.SecretString == nil {
		return "", fmt.Errorf("secret %s is binary", name)
	}
	return *out.SecretString, nil
}

// GetSecretMap reads a JSON object secret such as {"STRIPE_API_KEY": "..."}.
func (s *SecretsClient) GetSecretMap(ctx context.Context, name string) (map[string]string, error) {
	s.mu.Lock()
	cached, ok := s.parsed[name]
	s.mu.Unlock()
	if ok {
		return cached, nil
	}

	raw, err := s.GetSecret(ctx, name)
	if err != nil {
		return nil, err
	}
	var m map[string]string
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, fmt.Errorf("secret %s is not a JSON object: %w", name, err)
	}

	s.mu.Lock()
	s.parsed[name] = m
	s.mu.Unlock()
	return m, nil
}
