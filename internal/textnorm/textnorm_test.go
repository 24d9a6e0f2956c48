package textnorm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClean(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"collapses whitespace", "  chest \t pain\n ", "chest pain"},
		{"nfkc fullwidth", "ＣＯＰＤ", "COPD"},
		{"drops control", "fever\x00", "fever"},
		{"empty", "   ", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Clean(tt.in))
		})
	}
}

func TestKey_CaseFolding(t *testing.T) {
	assert.Equal(t, Key("Hypertension"), Key("HYPERTENSION"))
	assert.NotEqual(t, Key("hypertension"), Key("hypotension"))
}

func TestDedupe(t *testing.T) {
	got := Dedupe([]string{"Hypertension", " hypertension ", "Chest pain", "", "CHEST  PAIN", "Fever"})
	assert.Equal(t, []string{"Hypertension", "Chest pain", "Fever"}, got)
}

func TestDedupe_NeverNil(t *testing.T) {
	assert.NotNil(t, Dedupe(nil))
	assert.Empty(t, Dedupe(nil))
}
