package globset

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBase(t *testing.T) {
	tests := []struct {
		pattern  string
		expected string
	}{
		{"source/pug/pages/*.pug", "source/pug/pages"},
		{"source/sass/**/*.{scss,sass}", "source/sass"},
		{"source/sass/style.scss", "source/sass"},
		{"**/*.pug", "."},
		{"build/img/**/*.{png,jpg}", "build/img"},
		{"./source/js/*.js", "source/js"},
	}

	for _, tt := range tests {
		t.Run(tt.pattern, func(t *testing.T) {
			assert.Equal(t, tt.expected, Base(tt.pattern))
		})
	}
}

func TestPatternMatch(t *testing.T) {
	tests := []struct {
		name    string
		pattern string
		path    string
		match   bool
	}{
		{"double star zero dirs", "source/sass/**/*.scss", "source/sass/style.scss", true},
		{"double star nested", "source/sass/**/*.scss", "source/sass/blocks/header/_h.scss", true},
		{"brace alternation", "source/sass/**/*.{scss,sass}", "source/sass/old.sass", true},
		{"brace miss", "source/sass/**/*.{scss,sass}", "source/sass/style.css", false},
		{"single star stays in dir", "source/pug/pages/*.pug", "source/pug/pages/sub/a.pug", false},
		{"single star", "source/pug/pages/*.pug", "source/pug/pages/index.pug", true},
		{"leading double star", "**/*.pug", "index.pug", true},
		{"leading double star nested", "**/*.pug", "source/pug/layout/base.pug", true},
		{"trailing double star", "source/img/sprite/**", "source/img/sprite/icon.svg", true},
		{"literal", "source/js/index.js", "source/js/index.js", true},
		{"literal miss", "source/js/index.js", "source/js/other.js", false},
		{"two double stars", "a/**/b/**/*.txt", "a/b/c.txt", true},
		{"two double stars nested", "a/**/b/**/*.txt", "a/x/b/y/z/c.txt", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := Compile(tt.pattern)
			require.NoError(t, err)
			assert.Equal(t, tt.match, p.Match(tt.path))
		})
	}
}

func TestCompileErrors(t *testing.T) {
	_, err := Compile("")
	assert.Error(t, err)

	_, err = Compile(".")
	assert.Error(t, err)

	_, err = NewSet("source/*.scss", "!")
	assert.Error(t, err)
}

func TestSetMatchWithExclusion(t *testing.T) {
	s, err := NewSet("source/img/**/*", "!source/img/sprite/**")
	require.NoError(t, err)

	assert.True(t, s.Match("source/img/logo.png"))
	assert.True(t, s.Match("source/img/bg/hero.jpg"))
	assert.False(t, s.Match("source/img/sprite/icon.svg"))
	assert.False(t, s.Match("source/js/index.js"))

	assert.Equal(t, []string{"source/img/**/*", "!source/img/sprite/**"}, s.Patterns())
	assert.False(t, s.Empty())
}

func TestSetResolve(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)

	writeFile(t, "source/img/logo.png", "png")
	writeFile(t, "source/img/bg/hero.jpg", "jpg")
	writeFile(t, "source/img/sprite/icon.svg", "<svg/>")
	writeFile(t, "source/fonts/a.woff2", "font")
	writeFile(t, "source/fonts/a.ttf", "font")

	s, err := NewSet(
		"source/fonts/**/*.{woff,woff2}",
		"source/img/**/*",
		"!source/img/sprite/**",
	)
	require.NoError(t, err)

	files, err := s.Resolve()
	require.NoError(t, err)

	paths := make([]string, 0, len(files))
	for _, f := range files {
		paths = append(paths, f.Path)
	}
	assert.Equal(t, []string{
		"source/fonts/a.woff2",
		"source/img/bg/hero.jpg",
		"source/img/logo.png",
	}, paths)

	assert.Equal(t, "source/img", files[1].Base)
	assert.Equal(t, filepath.Join("bg", "hero.jpg"), files[1].Rel())
}

func TestSetResolveMissingBase(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)

	s, err := NewSet("source/js/index.js", "source/img/**/*")
	require.NoError(t, err)

	files, err := s.Resolve()
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestSetResolveLiteral(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)

	writeFile(t, "source/sass/style.scss", "body{}")
	writeFile(t, "source/sass/_vars.scss", "$a: 1;")

	s, err := NewSet("source/sass/style.scss")
	require.NoError(t, err)

	files, err := s.Resolve()
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "source/sass/style.scss", files[0].Path)
	assert.Equal(t, "style.scss", files[0].Rel())
}

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
