package version

import (
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGetUsesLdflags(t *testing.T) {
	oldVersion, oldCommit, oldTime := Version, GitCommit, BuildTime
	t.Cleanup(func() { Version, GitCommit, BuildTime = oldVersion, oldCommit, oldTime })

	Version = "v1.2.0"
	GitCommit = "abc1234def5678"
	BuildTime = "2024-03-01T10:00:00Z"

	info := Get()
	assert.Equal(t, "v1.2.0", info.Version)
	assert.Equal(t, "abc1234def5678", info.GitCommit)
	assert.Equal(t, time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC), info.BuildTime.UTC())
	assert.Equal(t, runtime.Version(), info.GoVersion)
	assert.Equal(t, runtime.GOOS+"/"+runtime.GOARCH, info.Platform)
	assert.True(t, info.IsRelease())
	assert.True(t, strings.HasPrefix(info.String(), "v1.2.0 (abc1234)"))
	assert.Contains(t, info.Detailed(), "Built: 2024-03-01T10:00:00Z")
}

func TestBuildInfoFormatting(t *testing.T) {
	tests := []struct {
		name    string
		info    BuildInfo
		short   string
		release bool
	}{
		{
			name:  "dev without commit",
			info:  BuildInfo{Version: "dev", GitCommit: "unknown"},
			short: "dev",
		},
		{
			name:  "dev with dirty tree",
			info:  BuildInfo{Version: "dev", GitCommit: "0123456789", Dirty: true},
			short: "dev (0123456) (dirty)",
		},
		{
			name:    "release",
			info:    BuildInfo{Version: "v0.3.1", GitCommit: "abc"},
			short:   "v0.3.1",
			release: true,
		},
		{
			name:  "dev build of a commit",
			info:  BuildInfo{Version: "dev-0123456", GitCommit: "unknown"},
			short: "dev-0123456",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.short, tt.info.String())
			assert.Equal(t, tt.release, tt.info.IsRelease())
		})
	}
}

func TestDetailedOmitsUnknownFields(t *testing.T) {
	info := BuildInfo{Version: "dev", GitCommit: "unknown", GoVersion: "go1.24.4", Platform: "linux/amd64"}
	d := info.Detailed()

	assert.NotContains(t, d, "Commit:")
	assert.NotContains(t, d, "Built:")
	assert.Equal(t, "Version: dev\nGo: go1.24.4\nPlatform: linux/amd64", d)
}
