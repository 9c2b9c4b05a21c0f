package build

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidVersion(t *testing.T) {
	require.True(t, ValidVersion("0.1.0"))
	require.True(t, ValidVersion("v1.2.3"))
	require.False(t, ValidVersion("not-a-version"))
}

func TestIsNewerVersion(t *testing.T) {
	require.True(t, IsNewerVersion("0.1.0", "0.2.0"))
	require.False(t, IsNewerVersion("0.2.0", "0.1.0"))
	require.False(t, IsNewerVersion("0.1.0", "0.1.0"))
	require.False(t, IsNewerVersion("garbage", "0.1.0"))
}

func TestEmbeddedVersionIsValid(t *testing.T) {
	require.NotEmpty(t, Version)
	require.True(t, ValidVersion(Version))
}
