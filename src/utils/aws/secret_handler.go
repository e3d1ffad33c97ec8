package aws_handler

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/secretsmanager"
	"github.com/aws/aws-sdk-go/service/secretsmanager/secretsmanageriface"
)

var ErrEmptySecret = errors.New("secret has no string value")

type SecretManager struct {
	svc secretsmanageriface.SecretsManagerAPI
}

func NewSecretManager(svc secretsmanageriface.SecretsManagerAPI) *SecretManager {
	return &SecretManager{svc: svc}
}

func (s *SecretManager) GetSecretValue(secretID string) (string, error) {
	result, err := s.svc.GetSecretValue(&secretsmanager.GetSecretValueInput{
		SecretId: aws.String(secretID),
	})
	if err != nil {
		return "", err
	}
	if result.SecretString == nil {
		return "", ErrEmptySecret
	}
	return *result.SecretString, nil
}

// GetDatabasePassword accepts either a plain secret or the RDS JSON form with a "password" key.
func (s *SecretManager) GetDatabasePassword(secretID string) (string, error) {
	value, err := s.GetSecretValue(secretID)
	if err != nil {
		return "", err
	}
	if !strings.HasPrefix(strings.TrimSpace(value), "{") {
		return value, nil
	}
	var payload struct {
		Password string `json:"password"`
	}
	if err := json.Unmarshal([]byte(value), &payload); err != nil {
		return "", err
	}
	if payload.Password == "" {
		return "", ErrEmptySecret
	}
	return payload.Password, nil
}
