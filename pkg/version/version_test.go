package version

import (
	"encoding/json"
	"regexp"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersion_FollowsSemverOrDev(t *testing.T) {
	if Version == "dev" {
		return
	}
	semver := regexp.MustCompile(`^\d+\.\d+\.\d+(-[a-zA-Z0-9.]+)?$`)
	require.True(t, semver.MatchString(Version), "got %s", Version)
}

func TestString_NamesBinaryAndBuild(t *testing.T) {
	// Given: build information injected by ldflags
	oldV, oldC := Version, Commit
	t.Cleanup(func() { Version, Commit = oldV, oldC })
	Version, Commit = "1.2.3", "abc1234"

	// When: rendering the version line
	s := String()

	// Then: it carries the binary name and every build field
	assert.Contains(t, s, "searchsync 1.2.3")
	assert.Contains(t, s, "commit: abc1234")
	assert.Contains(t, s, runtime.Version())
	assert.Equal(t, "1.2.3", Short())
}

func TestGetInfo_JSON(t *testing.T) {
	data, err := json.Marshal(GetInfo())
	require.NoError(t, err)

	var got map[string]string
	require.NoError(t, json.Unmarshal(data, &got))
	for _, k := range []string{"version", "commit", "date", "go_version", "os", "arch"} {
		assert.Contains(t, got, k)
	}
	assert.Equal(t, runtime.GOOS, got["os"])
}
