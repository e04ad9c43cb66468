package secrets

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvName(t *testing.T) {
	assert.Equal(t, "DOCKER_REGISTRY_USER", EnvName("docker-registry-user"))
	assert.Equal(t, "A_B_C", EnvName("a.b-c"))
}

func TestFromLookup(t *testing.T) {
	env := map[string]string{
		"DOCKER_REGISTRY_USER":     "deployer",
		"DOCKER_REGISTRY_PASSWORD": "s3cr3t",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	t.Run("all present", func(t *testing.T) {
		set, err := FromLookup([]Declaration{
			{Name: "docker-registry-user", Required: true},
			{Name: "docker-registry-password", Required: true},
			{Name: "optional-token"},
		}, lookup)
		require.NoError(t, err)
		assert.Equal(t, []string{"docker-registry-password", "docker-registry-user"}, set.Names())
		v, ok := set.Value("docker-registry-user")
		assert.True(t, ok)
		assert.Equal(t, "deployer", v)
	})

	t.Run("missing required", func(t *testing.T) {
		_, err := FromLookup([]Declaration{{Name: "signing-key", Required: true}}, lookup)
		require.Error(t, err)
		assert.ErrorContains(t, err, "signing-key (env SIGNING_KEY)")
	})
}

func TestValues_LongestFirst(t *testing.T) {
	set := NewSet()
	set.Add("short", "abc")
	set.Add("long", "abcdef")
	set.Add("empty", "")
	assert.Equal(t, []string{"abcdef", "abc"}, set.Values())
	assert.Equal(t, 3, set.Len())
}
