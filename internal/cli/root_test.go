package cli

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCmd_Subcommands(t *testing.T) {
	root := NewRootCmd()

	names := make([]string, 0)
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.Subset(t, names, []string{"run", "mock", "version"})
}

func TestVersionCmd(t *testing.T) {
	stdout, _, err := runCLI(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "ridesim "+version, strings.TrimSpace(stdout))
}

func TestRootCmd_Help(t *testing.T) {
	stdout, _, err := runCLI(t)
	require.NoError(t, err)
	assert.Contains(t, stdout, "simulates riders and drivers")
}

func TestMockCmd_InvalidSettings(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"bad rate limit", []string{"mock", "--rate-limit", "often"}},
		{"negative drivers", []string{"mock", "--drivers", "-1"}},
		{"bad log format", []string{"mock", "--log-format", "xml"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := runCLI(t, tt.args...)
			assert.Error(t, err)
		})
	}
}

func TestMockOptions_NewServer(t *testing.T) {
	cmd := newMockCmd()
	o := &mockOptions{drivers: 4, seed: 1, rateLimit: "10-S", jwtSecret: "s"}

	srv, err := o.newServer(cmd)
	require.NoError(t, err)
	assert.Len(t, srv.Store().AvailableDrivers(), 4)
}
