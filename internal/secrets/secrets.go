// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package secrets loads API keys from a directory of plain-text files. The
// file name is the key and the trimmed contents are the value.
//
// Recognised keys: gemini-api-key, anthropic-api-key, embedding-api-key.
package secrets

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/pdiddy/medcode/pkg/types"
)

// DefaultDir is where the CLI looks for key files.
const DefaultDir = ".secrets/"

const (
	KeyGemini    = "gemini-api-key"
	KeyAnthropic = "anthropic-api-key"
	KeyEmbedding = "embedding-api-key"
)

// Secrets maps key names to values.
type Secrets map[string]string

// Load reads every regular, non-hidden file in dir. A missing directory
// yields an empty set. Unreadable files are logged and skipped.
func Load(dir string, logger *logrus.Logger) (Secrets, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return Secrets{}, nil
		}
		return nil, fmt.Errorf("reading secrets directory %s: %w", dir, err)
	}

	s := make(Secrets)
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			logger.WithField("secret", name).WithError(err).Warn("could not read secret")
			continue
		}
		if value := strings.TrimSpace(string(data)); value != "" {
			s[name] = value
		}
	}
	return s, nil
}

// Resolve returns explicit when set, otherwise the loaded value for key.
func (s Secrets) Resolve(key, explicit string) string {
	if explicit != "" {
		return explicit
	}
	return s[key]
}

// Names lists the loaded keys in sorted order.
func (s Secrets) Names() []string {
	names := make([]string, 0, len(s))
	for k := range s {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// ProviderKey names the key file holding the API key for p.
func ProviderKey(p types.GenerativeProvider) string {
	if p == types.ProviderClaude {
		return KeyAnthropic
	}
	return KeyGemini
}
