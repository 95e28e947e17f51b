package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func clearProviderEnv(t *testing.T) {
	t.Helper()
	vars := []string{
		"PROVIDERS_PRIORITY",
		"GROQ_API_KEY", "GROQ_ENCRYPTED_CREDENTIAL", "GROQ_BASE_URL", "GROQ_MODEL",
		"DEEPSEEK_API_KEY", "DEEPSEEK_ENCRYPTED_CREDENTIAL",
		"GEMINI_API_KEY", "GEMINI_ENCRYPTED_CREDENTIAL",
		"ENHANCEMENT_CREDENTIAL_KEY",
		"ENHANCEMENT_ENABLED", "ENHANCEMENT_TIMEOUT_SECONDS",
	}
	for _, v := range vars {
		orig, existed := os.LookupEnv(v)
		os.Unsetenv(v)
		t.Cleanup(func() {
			if existed {
				os.Setenv(v, orig)
			}
		})
	}
}

func TestParsePrioritiesFallsBackOnMalformedInput(t *testing.T) {
	got := parsePriorities("groq:1,deepseek:not-a-number")
	assert.Equal(t, defaultPriorities, got)
}

func TestParsePrioritiesParsesValidInput(t *testing.T) {
	got := parsePriorities("gemini:1,groq:2")
	assert.Equal(t, 1, got["gemini"])
	assert.Equal(t, 2, got["groq"])
}

func TestLoadSkipsProvidersMissingCredential(t *testing.T) {
	clearProviderEnv(t)
	os.Setenv("PROVIDERS_PRIORITY", "groq:1,deepseek:2,localllm:4")
	os.Setenv("DEEPSEEK_API_KEY", "sk-deepseek")

	cfg, err := Load()
	assert.NoError(t, err)

	names := make(map[string]bool)
	for _, p := range cfg.Providers {
		names[p.Name] = true
	}
	assert.False(t, names["groq"], "groq has no credential and should be skipped")
	assert.True(t, names["deepseek"])
	assert.True(t, names["localllm"], "localllm never requires a credential")
}

func TestLoadDecryptsEncryptedCredential(t *testing.T) {
	clearProviderEnv(t)
	keyB64, err := GenerateKey(32)
	assert.NoError(t, err)
	enc, err := NewEncryptionFromBase64(keyB64)
	assert.NoError(t, err)
	ciphertext, err := enc.Encrypt("sk-groq-secret")
	assert.NoError(t, err)

	os.Setenv("ENHANCEMENT_CREDENTIAL_KEY", keyB64)
	os.Setenv("GROQ_ENCRYPTED_CREDENTIAL", ciphertext)
	os.Setenv("PROVIDERS_PRIORITY", "groq:1")

	cfg, err := Load()
	assert.NoError(t, err)
	assert.Len(t, cfg.Providers, 1)
	assert.Equal(t, "sk-groq-secret", cfg.Providers[0].Credential)
}
