package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// resetEnv pins every variable the assertions depend on, so values leaking
// in from the host environment cannot skew a test.
func resetEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"PORT", "ENV", "DEFAULT_LLM", "OPENAI_API_KEY", "ANTHROPIC_API_KEY",
		"VECTOR_MODE", "VECTOR_URL", "VECTOR_TOKEN", "VECTOR_TOP_K", "VECTOR_MIN_SCORE",
		"IDLE_THRESHOLD", "PROCESSOR_BATCH", "CORS_ALLOWED_ORIGINS",
	} {
		t.Setenv(key, "")
	}
	t.Setenv("OPENAI_API_KEY", "sk-test")
}

func TestLoadDefaults(t *testing.T) {
	resetEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.True(t, cfg.IsDevelopment())
	assert.Equal(t, ProviderOpenAI, cfg.DefaultLLM)
	assert.Equal(t, VectorModeOff, cfg.VectorMode)
	assert.Equal(t, 3, cfg.VectorTopK)
	assert.InDelta(t, 0.5, cfg.VectorMinScore, 1e-9)
	assert.Equal(t, 120*time.Second, cfg.IdleThreshold)
	assert.Equal(t, 10, cfg.ProcessorBatch)
	assert.Equal(t, []string{"*"}, cfg.AllowedOrigins)
}

func TestLoadValidation(t *testing.T) {
	cases := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{"missing openai key", map[string]string{"OPENAI_API_KEY": ""}, "OPENAI_API_KEY"},
		{"anthropic without key", map[string]string{"DEFAULT_LLM": "anthropic"}, "ANTHROPIC_API_KEY"},
		{"unknown provider", map[string]string{"DEFAULT_LLM": "llama-at-home"}, "DEFAULT_LLM"},
		{"remote vector without endpoint", map[string]string{"VECTOR_MODE": "remote"}, "VECTOR_URL"},
		{"unknown vector mode", map[string]string{"VECTOR_MODE": "faiss"}, "VECTOR_MODE"},
		{"port out of range", map[string]string{"PORT": "70000"}, "PORT"},
		{"zero idle threshold", map[string]string{"IDLE_THRESHOLD": "0"}, "IDLE_THRESHOLD"},
		{"zero batch", map[string]string{"PROCESSOR_BATCH": "0"}, "PROCESSOR_BATCH"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resetEnv(t)
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestLocalVectorModeNeedsEmbeddingKey(t *testing.T) {
	resetEnv(t)
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("DEFAULT_LLM", "anthropic")
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-test")
	t.Setenv("VECTOR_MODE", "local")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "OPENAI_API_KEY")
}

func TestDurationEnvAcceptsBareSeconds(t *testing.T) {
	t.Setenv("IDLE_THRESHOLD", "300")
	assert.Equal(t, 300*time.Second, getDurationEnv("IDLE_THRESHOLD", time.Second))

	t.Setenv("IDLE_THRESHOLD", "45s")
	assert.Equal(t, 45*time.Second, getDurationEnv("IDLE_THRESHOLD", time.Second))

	t.Setenv("IDLE_THRESHOLD", "nonsense")
	assert.Equal(t, time.Second, getDurationEnv("IDLE_THRESHOLD", time.Second))
}

func TestSliceEnvTrimsAndFallsBack(t *testing.T) {
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example ,,")
	assert.Equal(t,
		[]string{"https://a.example", "https://b.example"},
		getSliceEnv("CORS_ALLOWED_ORIGINS", []string{"*"}))

	t.Setenv("CORS_ALLOWED_ORIGINS", " , ")
	assert.Equal(t, []string{"*"}, getSliceEnv("CORS_ALLOWED_ORIGINS", []string{"*"}))
}
