package version

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"v1.2.3", "1.2.3"},
		{"1.2.3", "1.2.3"},
		{"2.0.0-rc.1", "2.0.0-rc.1"},
		{"unknown", devVersion},
		{"", devVersion},
		{"not a version", devVersion},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, normalize(tt.in), tt.in)
	}
}

func TestGetInfo_Cached(t *testing.T) {
	first := GetInfo()
	second := GetInfo()

	require.NotEmpty(t, first.InstanceID)
	assert.Equal(t, first.InstanceID, second.InstanceID)
	assert.Equal(t, first.Version, second.Version)
}

func TestInfo_UserAgent(t *testing.T) {
	ua := Info{Version: "1.0.0"}.UserAgent()
	assert.True(t, strings.HasPrefix(ua, "DiscordBot ("), ua)
	assert.Contains(t, ua, "1.0.0")
}
