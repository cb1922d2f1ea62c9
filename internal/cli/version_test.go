package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatVersion(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"dev", "dev"},
		{"", ""},
		{"1.2.3", "v1.2.3"},
		{"v1.2.3", "v1.2.3"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatVersion(tt.in))
	}
}

func TestVersionCommand(t *testing.T) {
	SetVersionInfo("1.0.0", "abc1234", "2026-03-14")
	t.Cleanup(func() { SetVersionInfo("dev", "none", "unknown") })

	var buf bytes.Buffer
	versionCmd.SetOut(&buf)
	versionCmd.Run(versionCmd, nil)

	out := buf.String()
	assert.Contains(t, out, "beacon v1.0.0")
	assert.Contains(t, out, "commit: abc1234")
	assert.Contains(t, out, "built: 2026-03-14")
}

func TestVersionCommandShort(t *testing.T) {
	SetVersionInfo("1.0.0", "abc1234", "2026-03-14")
	t.Cleanup(func() { SetVersionInfo("dev", "none", "unknown") })

	versionShort = true
	t.Cleanup(func() { versionShort = false })

	var buf bytes.Buffer
	versionCmd.SetOut(&buf)
	versionCmd.Run(versionCmd, nil)

	assert.Equal(t, "1.0.0\n", buf.String())
	require.Equal(t, "1.0.0", GetVersion())
}
