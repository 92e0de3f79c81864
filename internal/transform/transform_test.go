package transform

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/sitepipe/internal/config"
	"github.com/conneroisu/sitepipe/internal/errors"
	"github.com/conneroisu/sitepipe/internal/globset"
)

func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}

func writeFile(t *testing.T, name, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(name), 0o755))
	require.NoError(t, os.WriteFile(name, []byte(content), 0o644))
}

func readFile(t *testing.T, name string) string {
	t.Helper()
	data, err := os.ReadFile(name)
	require.NoError(t, err)
	return string(data)
}

func TestMapOutput(t *testing.T) {
	tests := []struct {
		name     string
		file     globset.File
		base     string
		output   string
		ext      string
		rename   string
		expected string
	}{
		{
			name:     "ext rewrite",
			file:     globset.File{Path: "source/sass/style.scss", Base: "source/sass"},
			output:   "build/css",
			ext:      ".css",
			expected: filepath.Join("build", "css", "style.css"),
		},
		{
			name:     "nested keeps relative dirs",
			file:     globset.File{Path: "build/img/bg/hero.png", Base: "build/img"},
			output:   "build/img",
			ext:      ".webp",
			expected: filepath.Join("build", "img", "bg", "hero.webp"),
		},
		{
			name:     "configured base",
			file:     globset.File{Path: "source/img/logo.png", Base: "source/img"},
			base:     "source",
			output:   "build",
			expected: filepath.Join("build", "img", "logo.png"),
		},
		{
			name:     "rename",
			file:     globset.File{Path: "source/img/sprite/a.svg", Base: "source/img/sprite"},
			output:   "build/img",
			rename:   "sprite.svg",
			expected: filepath.Join("build", "img", "sprite.svg"),
		},
		{
			name:     "unchanged",
			file:     globset.File{Path: "source/js/index.js", Base: "source/js"},
			output:   "build/js",
			expected: filepath.Join("build", "js", "index.js"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, mapOutput(tt.file, tt.base, tt.output, tt.ext, tt.rename))
		})
	}
}

func TestExpandPlaceholders(t *testing.T) {
	tool, err := NewCommandTool("template-render", config.TaskConfig{
		Inputs:  []string{"source/pug/pages/*.pug"},
		Output:  "build",
		Command: "pug",
		Args:    []string{"--pretty", "--out", "{outdir}", "{inputs}"},
		Mode:    config.ModeBatch,
	}, 1, nil)
	require.NoError(t, err)

	args := tool.expand("", "build", "build", []string{"a.pug", "b.pug"})
	assert.Equal(t, []string{"--pretty", "--out", "build", "a.pug", "b.pug"}, args)

	script, err := NewCommandTool("script-build", config.TaskConfig{
		Inputs:  []string{"source/js/index.js"},
		Output:  "build/js",
		Command: "esbuild",
		Args:    []string{"{in}", "--bundle", "--outfile={out}"},
	}, 1, nil)
	require.NoError(t, err)

	args = script.expand("source/js/index.js", "build/js/index.js", "build/js", nil)
	assert.Equal(t, []string{filepath.FromSlash("source/js/index.js"), "--bundle", "--outfile=build/js/index.js"}, args)

	assert.Equal(t, "esbuild {in} --bundle --outfile={out}", script.Describe())
}

func TestCommandToolValidation(t *testing.T) {
	tests := []struct {
		name string
		tc   config.TaskConfig
		code string
	}{
		{"empty command", config.TaskConfig{Inputs: []string{"a"}}, errors.ErrCodeInvalidCommand},
		{"shell in command", config.TaskConfig{Inputs: []string{"a"}, Command: "sass;rm"}, errors.ErrCodeInvalidCommand},
		{"spaces in command", config.TaskConfig{Inputs: []string{"a"}, Command: "sass --x"}, errors.ErrCodeInvalidCommand},
		{"substitution in arg", config.TaskConfig{Inputs: []string{"a"}, Command: "sass", Args: []string{"$(id)"}}, errors.ErrCodeInvalidCommand},
		{"traversal in arg", config.TaskConfig{Inputs: []string{"a"}, Command: "sass", Args: []string{"../../etc"}}, errors.ErrCodeInvalidCommand},
		{"bad glob", config.TaskConfig{Inputs: []string{"!"}, Command: "sass"}, errors.ErrCodeInvalidGlob},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewCommandTool("t", tt.tc, 1, nil)
			require.Error(t, err)
			var pe *errors.PipelineError
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, tt.code, pe.Code)
		})
	}
}

func TestCommandToolPerFile(t *testing.T) {
	chdir(t, t.TempDir())
	writeFile(t, "source/sass/style.scss", "body { color: red }")

	tool, err := NewCommandTool("style-build", config.TaskConfig{
		Inputs:  []string{"source/sass/style.scss"},
		Output:  "build/css",
		Command: "cp",
		Args:    []string{"{in}", "{out}"},
		Mode:    config.ModePerFile,
		Ext:     ".css",
	}, 2, nil)
	require.NoError(t, err)

	require.NoError(t, tool.Run(context.Background()))
	assert.Equal(t, "body { color: red }", readFile(t, "build/css/style.css"))
}

func TestCommandToolStdoutInPlace(t *testing.T) {
	chdir(t, t.TempDir())
	writeFile(t, "build/img/a.png", "aaa")
	writeFile(t, "build/img/icons/b.svg", "<svg/>")

	tool, err := NewCommandTool("image-optimize", config.TaskConfig{
		Inputs:  []string{"build/img/**/*.{png,svg}"},
		Output:  "build/img",
		Command: "cat",
		Args:    []string{"{in}"},
		Stdout:  true,
	}, 4, nil)
	require.NoError(t, err)

	require.NoError(t, tool.Run(context.Background()))
	assert.Equal(t, "aaa", readFile(t, "build/img/a.png"))
	assert.Equal(t, "<svg/>", readFile(t, "build/img/icons/b.svg"))

	entries, err := os.ReadDir("build/img")
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".a.png.", "temp file left behind")
	}
}

func TestCommandToolBatchRename(t *testing.T) {
	chdir(t, t.TempDir())
	writeFile(t, "source/img/sprite/a.svg", "A")
	writeFile(t, "source/img/sprite/b.svg", "B")

	tool, err := NewCommandTool("sprite-build", config.TaskConfig{
		Inputs:  []string{"source/img/sprite/*.svg"},
		Output:  "build/img",
		Command: "cat",
		Args:    []string{"{inputs}"},
		Mode:    config.ModeBatch,
		Rename:  "sprite.svg",
		Stdout:  true,
	}, 1, nil)
	require.NoError(t, err)

	require.NoError(t, tool.Run(context.Background()))
	assert.Equal(t, "AB", readFile(t, "build/img/sprite.svg"))
	assert.Equal(t, filepath.Join("build", "img", "sprite.svg"), tool.BatchOutputPath())
}

func TestCommandToolCollectsEveryFileError(t *testing.T) {
	chdir(t, t.TempDir())
	writeFile(t, "source/js/a.js", "a")
	writeFile(t, "source/js/b.js", "b")

	tool, err := NewCommandTool("script-build", config.TaskConfig{
		Inputs:  []string{"source/js/*.js"},
		Output:  "build/js",
		Command: "false",
	}, 1, nil)
	require.NoError(t, err)

	err = tool.Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsToolError(err))
	assert.Contains(t, err.Error(), "source/js/a.js")
	assert.Contains(t, err.Error(), "source/js/b.js")
}

func TestCommandToolMissingBinary(t *testing.T) {
	chdir(t, t.TempDir())

	tool, err := NewCommandTool("style-build", config.TaskConfig{
		Inputs:  []string{"source/sass/style.scss"},
		Output:  "build/css",
		Command: "sitepipe-no-such-tool",
		Args:    []string{"{in}", "{out}"},
	}, 1, nil)
	require.NoError(t, err)

	// No inputs: the tool is never looked up.
	require.NoError(t, tool.Run(context.Background()))

	writeFile(t, "source/sass/style.scss", "body{}")
	err = tool.Run(context.Background())
	require.Error(t, err)

	var pe *errors.PipelineError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, errors.ErrCodeToolNotFound, pe.Code)
	assert.Equal(t, "style-build", pe.Task)
	assert.True(t, errors.IsRecoverable(err))
}

func TestCopyTool(t *testing.T) {
	chdir(t, t.TempDir())
	writeFile(t, "source/fonts/a.woff2", "font")
	writeFile(t, "source/img/logo.png", "png")
	writeFile(t, "source/img/bg/hero.jpg", "jpg")
	writeFile(t, "source/img/sprite/icon.svg", "<svg/>")

	tool, err := NewCopyTool("asset-copy", config.TaskConfig{
		Tool: config.ToolCopy,
		Inputs: []string{
			"source/fonts/**/*.{woff,woff2}",
			"source/img/**/*",
			"!source/img/sprite/**",
		},
		Base:   "source",
		Output: "build",
	}, nil)
	require.NoError(t, err)

	require.NoError(t, tool.Run(context.Background()))

	assert.Equal(t, "font", readFile(t, "build/fonts/a.woff2"))
	assert.Equal(t, "png", readFile(t, "build/img/logo.png"))
	assert.Equal(t, "jpg", readFile(t, "build/img/bg/hero.jpg"))
	assert.NoFileExists(t, "build/img/sprite/icon.svg")
	assert.Contains(t, tool.Describe(), "!source/img/sprite/**")
}

func TestCleanTool(t *testing.T) {
	chdir(t, t.TempDir())
	writeFile(t, "build/css/style.css", "x")

	tool, err := NewCleanTool("clean", "build", nil)
	require.NoError(t, err)
	assert.Equal(t, "remove build", tool.Describe())

	require.NoError(t, tool.Run(context.Background()))
	assert.NoDirExists(t, "build")

	// Cleaning twice is fine.
	require.NoError(t, tool.Run(context.Background()))

	for _, dir := range []string{"", ".", "/", "..", "build/../.."} {
		_, err := NewCleanTool("clean", dir, nil)
		assert.Error(t, err, dir)
	}
}

func TestNewFromConfig(t *testing.T) {
	defaults := config.Defaults()

	for _, name := range []string{config.TaskClean, config.TaskAssetCopy, config.TaskStyleBuild} {
		tc := defaults.Build.Tasks[name]
		tc.Output = "build"
		tc.Base = ""
		tc.Inputs = []string{"source/**/*"}
		tool, err := New(name, tc, 2, nil)
		require.NoError(t, err, name)
		assert.NotEmpty(t, tool.Describe())
	}

	_, err := New("x", config.TaskConfig{Tool: "rsync", Output: "build"}, 1, nil)
	require.Error(t, err)
	var pe *errors.PipelineError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, errors.ErrorTypeConfig, pe.Type)
}
