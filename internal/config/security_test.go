package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateServerConfig_Security(t *testing.T) {
	tests := []struct {
		name        string
		config      ServerConfig
		expectError bool
	}{
		{name: "valid", config: ServerConfig{Port: 8080, Host: "localhost"}},
		{name: "system assigned port", config: ServerConfig{Port: 0, Host: "127.0.0.1"}},
		{name: "maximum port", config: ServerConfig{Port: 65535, Host: "0.0.0.0"}},
		{name: "negative port", config: ServerConfig{Port: -1, Host: "localhost"}, expectError: true},
		{name: "command injection in host", config: ServerConfig{Port: 8080, Host: "localhost;rm -rf /"}, expectError: true},
		{name: "backtick in host", config: ServerConfig{Port: 8080, Host: "`id`"}, expectError: true},
		{name: "backslash in host", config: ServerConfig{Port: 8080, Host: `local\host`}, expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateServerConfig(&tt.config)
			if tt.expectError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateTaskConfig_Security(t *testing.T) {
	valid := TaskConfig{
		Tool:    ToolCommand,
		Inputs:  []string{"source/js/index.js"},
		Output:  "build/js",
		Command: "esbuild",
		Mode:    ModePerFile,
	}

	tests := []struct {
		name        string
		task        string
		mutate      func(*TaskConfig)
		expectError bool
	}{
		{name: "valid", task: "script-build", mutate: func(*TaskConfig) {}},
		{name: "pipe in command", task: "script-build", mutate: func(c *TaskConfig) { c.Command = "esbuild | sh" }, expectError: true},
		{name: "subshell in command", task: "script-build", mutate: func(c *TaskConfig) { c.Command = "$(curl x)" }, expectError: true},
		{name: "output traversal", task: "script-build", mutate: func(c *TaskConfig) { c.Output = "../outside" }, expectError: true},
		{name: "rename with separator", task: "script-build", mutate: func(c *TaskConfig) { c.Rename = "../x.js" }, expectError: true},
		{name: "no inputs", task: "script-build", mutate: func(c *TaskConfig) { c.Inputs = nil }, expectError: true},
		{name: "no command", task: "script-build", mutate: func(c *TaskConfig) { c.Command = "" }, expectError: true},
		{name: "name with slash", task: "a/b", mutate: func(*TaskConfig) {}, expectError: true},
		{name: "name with space", task: "a b", mutate: func(*TaskConfig) {}, expectError: true},
		{name: "copy without inputs", task: "copy", mutate: func(c *TaskConfig) { c.Tool = ToolCopy; c.Inputs = nil }, expectError: true},
		{name: "copy base traversal", task: "copy", mutate: func(c *TaskConfig) { c.Tool = ToolCopy; c.Base = "../x" }, expectError: true},
		{name: "clean needs only output", task: "clean", mutate: func(c *TaskConfig) { *c = TaskConfig{Tool: ToolClean, Output: "build"} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tc := valid
			tc.Inputs = append([]string(nil), valid.Inputs...)
			tt.mutate(&tc)

			err := validateTaskConfig(tt.task, tc)
			if tt.expectError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidatePath_Security(t *testing.T) {
	tests := []struct {
		path        string
		expectError bool
	}{
		{"build", false},
		{"build/css", false},
		{"./source", false},
		{"", true},
		{"../secret", true},
		{"build/../../etc", true},
		{"build;rm", true},
		{"build|cat", true},
		{"build$(id)", true},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			err := validatePath(tt.path)
			if tt.expectError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestIsWithin(t *testing.T) {
	assert.True(t, isWithin("site/source", "site"))
	assert.False(t, isWithin("site", "site"))
	assert.False(t, isWithin("source", "build"))
	assert.False(t, isWithin("build-old", "build"))
}
