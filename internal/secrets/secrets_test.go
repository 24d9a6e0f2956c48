// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package secrets

import (
	"os"
	"path/filepath"
	"testing"

	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/medcode/pkg/types"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name  string
		setup func(t *testing.T) string
		want  Secrets
	}{
		{
			name: "reads key files and trims whitespace",
			setup: func(t *testing.T) string {
				dir := t.TempDir()
				writeFile(t, dir, KeyGemini, "  AIza-test  \n")
				writeFile(t, dir, KeyEmbedding, "emb_xyz\n")
				return dir
			},
			want: Secrets{KeyGemini: "AIza-test", KeyEmbedding: "emb_xyz"},
		},
		{
			name: "missing directory is empty",
			setup: func(t *testing.T) string {
				return filepath.Join(t.TempDir(), "does-not-exist")
			},
			want: Secrets{},
		},
		{
			name: "skips empty files, dotfiles and subdirectories",
			setup: func(t *testing.T) string {
				dir := t.TempDir()
				writeFile(t, dir, KeyAnthropic, "sk-ant")
				writeFile(t, dir, "empty-key", "   \n\t")
				writeFile(t, dir, ".gitkeep", "")
				require.NoError(t, os.Mkdir(filepath.Join(dir, "nested"), 0o755))
				return dir
			},
			want: Secrets{KeyAnthropic: "sk-ant"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Load(tt.setup(t), nil)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLoad_UnreadableFileWarns(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("file permissions are not enforced for root")
	}
	dir := t.TempDir()
	writeFile(t, dir, KeyGemini, "value123")
	bad := filepath.Join(dir, KeyAnthropic)
	require.NoError(t, os.WriteFile(bad, []byte("secret"), 0o000))
	t.Cleanup(func() { os.Chmod(bad, 0o644) })

	logger, hook := logtest.NewNullLogger()
	got, err := Load(dir, logger)
	require.NoError(t, err)
	assert.Equal(t, Secrets{KeyGemini: "value123"}, got)
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, KeyAnthropic, hook.LastEntry().Data["secret"])
}

func TestResolve(t *testing.T) {
	s := Secrets{KeyGemini: "from-file"}
	assert.Equal(t, "explicit", s.Resolve(KeyGemini, "explicit"))
	assert.Equal(t, "from-file", s.Resolve(KeyGemini, ""))
	assert.Empty(t, s.Resolve(KeyAnthropic, ""))
}

func TestNamesAndProviderKey(t *testing.T) {
	s := Secrets{KeyGemini: "a", KeyAnthropic: "b"}
	assert.Equal(t, []string{KeyAnthropic, KeyGemini}, s.Names())
	assert.Equal(t, KeyAnthropic, ProviderKey(types.ProviderClaude))
	assert.Equal(t, KeyGemini, ProviderKey(types.ProviderGemini))
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}
