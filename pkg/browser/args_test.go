package browser

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func portsBusy(busy ...int) PortInUse {
	set := make(map[int]bool, len(busy))
	for _, p := range busy {
		set[p] = true
	}
	return func(p int) bool { return set[p] }
}

func portsBusyBelow(limit int) PortInUse {
	return func(p int) bool { return p < limit }
}

func flagsWithPrefix(args []string, prefix string) []string {
	var out []string
	for _, a := range args {
		if strings.HasPrefix(a, prefix) {
			out = append(out, a)
		}
	}
	return out
}

func TestBuildArgsBase(t *testing.T) {
	cfg := Config{
		DisableSecurity: true,
		ExtraArgs:       []string{"--kiosk", "--window-size=1920,1080", "--kiosk"},
		WindowWidth:     1920,
		WindowHeight:    1080,
	}
	got := BuildArgs(cfg, portsBusy())

	assert.NotContains(t, got.Args, "--disable-setuid-sandbox")
	assert.Contains(t, got.Args, "--disable-web-security")
	assert.Contains(t, got.Args, "--kiosk")
	assert.NotContains(t, got.Args, "--headless=new")
	assert.NotContains(t, got.Args, "--no-sandbox")
	assert.Equal(t, []string{"--window-size=1920,1080"}, flagsWithPrefix(got.Args, "--window-size="))
	assert.Equal(t, DefaultDebugPort, got.DebugPort)
	assert.Equal(t, []string{"--remote-debugging-port=9222"}, flagsWithPrefix(got.Args, debugPortPrefix))

	seen := map[string]bool{}
	for _, a := range got.Args {
		require.False(t, seen[a], "duplicate arg %s", a)
		seen[a] = true
	}
}

func TestBuildArgsModes(t *testing.T) {
	t.Run("headless", func(t *testing.T) {
		got := BuildArgs(Config{Headless: true, WindowWidth: 800, WindowHeight: 600}, portsBusy())
		assert.Contains(t, got.Args, "--headless=new")
		assert.Empty(t, flagsWithPrefix(got.Args, "--window-size="))
	})

	t.Run("headed adds window size", func(t *testing.T) {
		got := BuildArgs(Config{WindowWidth: 800, WindowHeight: 600}, portsBusy())
		assert.Contains(t, got.Args, "--window-size=800,600")
	})

	t.Run("docker", func(t *testing.T) {
		got := BuildArgs(Config{InDocker: true}, portsBusy())
		assert.Contains(t, got.Args, "--no-sandbox")
		assert.NotContains(t, got.Args, "--disable-setuid-sandbox")
	})

	t.Run("security kept", func(t *testing.T) {
		got := BuildArgs(Config{}, portsBusy())
		assert.NotContains(t, got.Args, "--disable-web-security")
	})
}

func TestBuildArgsDebugPort(t *testing.T) {
	tests := []struct {
		name     string
		onAWS    bool
		inUse    PortInUse
		wantPort int
		wantArgs []string
	}{
		{name: "local free", inUse: portsBusy(), wantPort: 9222, wantArgs: []string{"--remote-debugging-port=9222"}},
		{name: "local busy", inUse: portsBusy(9222), wantPort: 0},
		{name: "aws first free", onAWS: true, inUse: portsBusy(), wantPort: 9222, wantArgs: []string{"--remote-debugging-port=9222"}},
		{name: "aws scans", onAWS: true, inUse: portsBusyBelow(9230), wantPort: 9230, wantArgs: []string{"--remote-debugging-port=9230"}},
		{name: "aws exhausted", onAWS: true, inUse: portsBusyBelow(10000), wantPort: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := BuildArgs(Config{OnAWS: tt.onAWS}, tt.inUse)
			assert.Equal(t, tt.wantPort, got.DebugPort)
			assert.Equal(t, tt.wantArgs, flagsWithPrefix(got.Args, debugFlagPrefix))
		})
	}
}
