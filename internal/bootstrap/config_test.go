package bootstrap

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestConfig_EnvTagsUnique guards against a field's env tag silently
// overwriting another's value at load time.
func TestConfig_EnvTagsUnique(t *testing.T) {
	t.Parallel()

	configType := reflect.TypeOf(Config{})
	seen := make(map[string]string)

	for i := 0; i < configType.NumField(); i++ {
		field := configType.Field(i)

		envTag := field.Tag.Get("env")
		if envTag == "" {
			continue
		}

		if existing, ok := seen[envTag]; ok {
			t.Fatalf("duplicate env tag %q on fields %s and %s", envTag, existing, field.Name)
		}

		seen[envTag] = field.Name
	}
}

func TestLoadConfig_AppliesDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.EnvName)
	assert.Equal(t, ":8080", cfg.ServerAddress)
	assert.Equal(t, "logs:stream", cfg.StreamName)
	assert.Equal(t, 10, cfg.PoolSize)
	assert.Equal(t, 3, cfg.WorkerMaxBatchRetries)
	assert.True(t, cfg.PoolHealthCheck)
}

func TestLoadConfig_EnvOverridesDefault(t *testing.T) {
	t.Setenv("SERVER_ADDRESS", ":9090")
	t.Setenv("PLS_POOL_SIZE", "25")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.ServerAddress)
	assert.Equal(t, 25, cfg.PoolSize)
}
