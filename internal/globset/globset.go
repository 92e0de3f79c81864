// Package globset compiles gulp-style glob lists and resolves them against
// the filesystem.
//
// A set is an ordered list of patterns. Patterns starting with "!" exclude
// files matched by the others. "**" spans directories, and "dir/**/x"
// also matches "dir/x". Brace alternation ("*.{png,jpg}") and character
// classes come from github.com/gobwas/glob.
package globset

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gobwas/glob"
)

const metaChars = "*?[{"

// Pattern is one compiled glob.
type Pattern struct {
	raw      string
	base     string
	literal  bool
	variants []glob.Glob
}

// Compile compiles a single pattern (without a leading "!").
func Compile(pattern string) (*Pattern, error) {
	p := path.Clean(filepath.ToSlash(pattern))
	if p == "" || p == "." {
		return nil, fmt.Errorf("empty glob pattern")
	}

	variants := expandDoubleStar(p)
	compiled := make([]glob.Glob, 0, len(variants))
	for _, v := range variants {
		g, err := glob.Compile(v, '/')
		if err != nil {
			return nil, fmt.Errorf("invalid glob %q: %w", pattern, err)
		}
		compiled = append(compiled, g)
	}

	return &Pattern{
		raw:      p,
		base:     Base(p),
		literal:  !strings.ContainsAny(p, metaChars),
		variants: compiled,
	}, nil
}

// String returns the cleaned pattern.
func (p *Pattern) String() string { return p.raw }

// Base returns the static directory prefix of the pattern.
func (p *Pattern) Base() string { return p.base }

// Match reports whether the slash-separated, cleaned path matches.
func (p *Pattern) Match(name string) bool {
	name = path.Clean(filepath.ToSlash(name))
	for _, g := range p.variants {
		if g.Match(name) {
			return true
		}
	}
	return false
}

// Base returns the longest leading run of path segments that contain no glob
// meta characters. For a pattern without meta characters it is the parent
// directory, so "src/a.scss" has base "src".
func Base(pattern string) string {
	p := path.Clean(filepath.ToSlash(pattern))
	if !strings.ContainsAny(p, metaChars) {
		return path.Dir(p)
	}

	segments := strings.Split(p, "/")
	static := make([]string, 0, len(segments))
	for _, seg := range segments {
		if strings.ContainsAny(seg, metaChars) {
			break
		}
		static = append(static, seg)
	}

	if len(static) == 0 {
		return "."
	}
	base := strings.Join(static, "/")
	if base == "" {
		return "/"
	}
	return base
}

// expandDoubleStar rewrites "a/**/b" into {"a/b", "a/**/b"} and a leading
// "**/b" into {"b", "**/b"} so that "**" may also stand for zero directories.
func expandDoubleStar(p string) []string {
	out := []string{p}

	if strings.HasPrefix(p, "**/") {
		out = append(out, strings.TrimPrefix(p, "**/"))
	}

	for {
		var next []string
		changed := false
		for _, v := range out {
			i := strings.Index(v, "/**/")
			if i < 0 {
				next = append(next, v)
				continue
			}
			changed = true
			// Mark the expanded occurrence so it is not expanded again.
			next = append(next, v[:i]+"/"+v[i+4:])
			next = append(next, v[:i]+"/\x00/"+v[i+4:])
		}
		out = next
		if !changed {
			break
		}
	}

	for i, v := range out {
		out[i] = strings.ReplaceAll(v, "\x00", "**")
	}

	return dedupe(out)
}

func dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := in[:0]
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// Set is an ordered list of include and exclude patterns.
type Set struct {
	include []*Pattern
	exclude []*Pattern
}

// NewSet compiles a list of patterns. Entries starting with "!" are
// exclusions.
func NewSet(patterns ...string) (*Set, error) {
	s := &Set{}
	for _, raw := range patterns {
		neg := strings.HasPrefix(raw, "!")
		p, err := Compile(strings.TrimPrefix(raw, "!"))
		if err != nil {
			return nil, err
		}
		if neg {
			s.exclude = append(s.exclude, p)
		} else {
			s.include = append(s.include, p)
		}
	}
	return s, nil
}

// Patterns returns the set as it was written, exclusions prefixed with "!".
func (s *Set) Patterns() []string {
	out := make([]string, 0, len(s.include)+len(s.exclude))
	for _, p := range s.include {
		out = append(out, p.raw)
	}
	for _, p := range s.exclude {
		out = append(out, "!"+p.raw)
	}
	return out
}

// Empty reports whether the set has no include patterns.
func (s *Set) Empty() bool { return len(s.include) == 0 }

// Match reports whether name matches any include and no exclude pattern.
func (s *Set) Match(name string) bool {
	for _, p := range s.exclude {
		if p.Match(name) {
			return false
		}
	}
	for _, p := range s.include {
		if p.Match(name) {
			return true
		}
	}
	return false
}

// File is a resolved input file together with the base of the pattern that
// matched it.
type File struct {
	Path string
	Base string
}

// Rel returns the path of the file relative to its base.
func (f File) Rel() string {
	rel, err := filepath.Rel(filepath.FromSlash(f.Base), filepath.FromSlash(f.Path))
	if err != nil {
		return filepath.Base(f.Path)
	}
	return rel
}

// Resolve walks the filesystem under each include pattern's base and returns
// the matching regular files, sorted by path. A base directory that does not
// exist contributes no files.
func (s *Set) Resolve() ([]File, error) {
	found := make(map[string]File)

	for _, p := range s.include {
		if p.literal {
			info, err := os.Stat(filepath.FromSlash(p.raw))
			if err != nil {
				if os.IsNotExist(err) {
					continue
				}
				return nil, err
			}
			if info.Mode().IsRegular() && !s.excluded(p.raw) {
				if _, ok := found[p.raw]; !ok {
					found[p.raw] = File{Path: p.raw, Base: p.base}
				}
			}
			continue
		}

		root := filepath.FromSlash(p.base)
		if _, err := os.Stat(root); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, err
		}

		err := filepath.WalkDir(root, func(name string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.Type().IsRegular() {
				return nil
			}
			slashed := filepath.ToSlash(name)
			if !p.Match(slashed) || s.excluded(slashed) {
				return nil
			}
			if _, ok := found[slashed]; !ok {
				found[slashed] = File{Path: slashed, Base: p.base}
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	files := make([]File, 0, len(found))
	for _, f := range found {
		files = append(files, f)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })

	return files, nil
}

func (s *Set) excluded(name string) bool {
	for _, p := range s.exclude {
		if p.Match(name) {
			return true
		}
	}
	return false
}
