package scanner

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/jeremyadavis/turbo/pkg/types"
)

// writeTree creates files under dir, keyed by relative slash path.
func writeTree(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		full := filepath.Join(dir, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(full, []byte(content), 0644); err != nil {
			t.Fatalf("write %s: %v", rel, err)
		}
	}
}

func paths(files []FileInfo) map[string]bool {
	out := make(map[string]bool, len(files))
	for _, f := range files {
		out[f.Path] = true
	}
	return out
}

func TestScan_SupportedLanguagesOnly(t *testing.T) {
	dir := t.TempDir()
	writeTree(t, dir, map[string]string{
		"src/lib.rs":  "fn main() {}",
		"src/util.go": "package util",
		"README.md":   "# readme",
		"Cargo.toml":  "[package]",
	})

	files, err := Scan(dir)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}

	got := paths(files)
	if !got["src/lib.rs"] || !got["src/util.go"] {
		t.Errorf("expected source units in %v", got)
	}
	if got["README.md"] || got["Cargo.toml"] {
		t.Errorf("non-source files should be excluded, got %v", got)
	}
	for _, f := range files {
		if f.Path == "src/lib.rs" && f.Language != types.Rust {
			t.Errorf("lib.rs language = %v, want rust", f.Language)
		}
	}
}

func TestScan_SkipsDefaultExcludesAndHidden(t *testing.T) {
	dir := t.TempDir()
	writeTree(t, dir, map[string]string{
		"src/main.rs":           "fn main() {}",
		"target/debug/build.rs": "fn main() {}",
		"node_modules/x/mod.go": "package x",
		"vendor/dep/dep.go":     "package dep",
		".hidden/secret.rs":     "fn main() {}",
		"src/.generated.rs":     "fn main() {}",
	})

	files, err := Scan(dir)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}

	got := paths(files)
	if len(got) != 1 || !got["src/main.rs"] {
		t.Errorf("Scan = %v, want only src/main.rs", got)
	}
}

func TestScan_HonorsIgnoreFile(t *testing.T) {
	dir := t.TempDir()
	writeTree(t, dir, map[string]string{
		".taskgraphignore": "generated/\n*_gen.rs\n!keep_gen.rs\n",
		"src/main.rs":      "fn main() {}",
		"src/types_gen.rs": "fn main() {}",
		"src/keep_gen.rs":  "fn main() {}",
		"generated/out.rs": "fn main() {}",
	})

	files, err := Scan(dir)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}

	got := paths(files)
	if !got["src/main.rs"] {
		t.Errorf("src/main.rs should be scanned, got %v", got)
	}
	if got["generated/out.rs"] {
		t.Errorf("generated/ should be ignored, got %v", got)
	}
	if got["src/types_gen.rs"] {
		t.Errorf("*_gen.rs should be ignored, got %v", got)
	}
	if !got["src/keep_gen.rs"] {
		t.Errorf("negation should re-include keep_gen.rs, got %v", got)
	}
}

func TestScan_IncludeExcludeGlobs(t *testing.T) {
	dir := t.TempDir()
	writeTree(t, dir, map[string]string{
		"crates/core/src/lib.rs":  "fn main() {}",
		"crates/cli/src/main.rs":  "fn main() {}",
		"examples/hello.rs":       "fn main() {}",
		"crates/core/src/test.rs": "fn main() {}",
	})

	opts := DefaultOptions()
	opts.Include = []string{"crates/**/*.rs"}
	opts.Exclude = []string{"**/test.rs"}

	files, err := New(opts).Scan(dir)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}

	got := paths(files)
	want := map[string]bool{
		"crates/core/src/lib.rs": true,
		"crates/cli/src/main.rs": true,
	}
	if len(got) != len(want) {
		t.Errorf("Scan = %v, want %v", got, want)
	}
	for p := range want {
		if !got[p] {
			t.Errorf("missing %s in %v", p, got)
		}
	}
}

func TestParseIgnorePattern(t *testing.T) {
	tests := []struct {
		line      string
		path      string
		wantMatch bool
	}{
		{"*.rs", "deep/nested/file.rs", true},
		{"*.rs", "file.go", false},
		{"/top.rs", "top.rs", true},
		{"/top.rs", "sub/top.rs", false},
		{"build/", "build/out.rs", true},
		{"build/", "src/build/out.rs", true},
		{"docs/**/*.go", "docs/a/b/c.go", true},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			p := ParseIgnorePattern(tt.line)
			if got := p.Match(tt.path); got != tt.wantMatch {
				t.Errorf("ParseIgnorePattern(%q).Match(%q) = %v, want %v",
					tt.line, tt.path, got, tt.wantMatch)
			}
		})
	}
}
