package config

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Keys recognised in the .secrets file
const (
	SecretLLMAPIKey      = "LLM_API_KEY"
	SecretTelegramToken  = "TELEGRAM_BOT_TOKEN"
	SecretMatrixToken    = "MATRIX_ACCESS_TOKEN"
	SecretGitHubToken    = "GITHUB_TOKEN"
	SecretWebSearchKey   = "WEB_SEARCH_API_KEY"
	legacyOpenAIKeyAlias = "OPENAI_API_KEY"
)

// Secrets credentials kept out of config.yaml
type Secrets struct {
	values map[string]string
}

// SecretsPath returns the secrets file path
func SecretsPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, ".secrets"), nil
}

// LoadSecrets reads the .secrets file. A missing file yields empty secrets.
func LoadSecrets() (*Secrets, error) {
	path, err := SecretsPath()
	if err != nil {
		return &Secrets{}, err
	}

	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return &Secrets{}, nil
	}
	if err != nil {
		return &Secrets{}, fmt.Errorf("failed to open secrets file: %w", err)
	}
	defer f.Close()

	return parseSecrets(f)
}

// parseSecrets reads KEY=VALUE lines. Blank lines and # comments are
// skipped, surrounding quotes are removed from values.
func parseSecrets(r io.Reader) (*Secrets, error) {
	s := &Secrets{values: make(map[string]string)}
	scanner := bufio.NewScanner(r)
	for lineNo := 1; scanner.Scan(); lineNo++ {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || line[0] == '#' {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return s, fmt.Errorf("secrets line %d: expected KEY=VALUE", lineNo)
		}
		s.values[strings.TrimSpace(key)] = strings.Trim(strings.TrimSpace(value), `"'`)
	}
	return s, scanner.Err()
}

// Get returns the value for a key, "" when absent
func (s *Secrets) Get(key string) string {
	if s == nil {
		return ""
	}
	return s.values[key]
}

// GetLLMAPIKey returns the completion service key. OPENAI_API_KEY is
// accepted as an alias.
func (s *Secrets) GetLLMAPIKey() string {
	if key := s.Get(SecretLLMAPIKey); key != "" {
		return key
	}
	return s.Get(legacyOpenAIKeyAlias)
}

func (s *Secrets) GetTelegramToken() string     { return s.Get(SecretTelegramToken) }
func (s *Secrets) GetMatrixAccessToken() string { return s.Get(SecretMatrixToken) }
func (s *Secrets) GetGitHubToken() string       { return s.Get(SecretGitHubToken) }
func (s *Secrets) GetWebSearchAPIKey() string   { return s.Get(SecretWebSearchKey) }
