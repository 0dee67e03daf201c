package paths

import (
	"path/filepath"
	"testing"

	"github.com/xyproto/env/v2"
)

func TestDefaultsAnchorAtRoot(t *testing.T) {
	dir := t.TempDir()
	p := NewAt(dir)

	if p.RootDir() != dir {
		t.Errorf("RootDir() = %q, want %q", p.RootDir(), dir)
	}
	if got, want := p.AddressesFile(), filepath.Join(dir, "addresses.json"); got != want {
		t.Errorf("AddressesFile() = %q, want %q", got, want)
	}
	if got, want := p.SymbolsFile(), filepath.Join(dir, "symbols.json"); got != want {
		t.Errorf("SymbolsFile() = %q, want %q", got, want)
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	p := NewAt(t.TempDir())

	// env/v2 snapshots the environment on first use; refresh the cache after
	// mutating it, and again once t.Setenv has restored the original values.
	t.Cleanup(env.Load)

	t.Setenv("GAMEHOOK_ADDRESSES", `C:\game\red4ext\addresses.json`)
	t.Setenv("GAMEHOOK_SYMBOLS", `C:\game\red4ext\symbols.json`)
	env.Load()

	if got := p.AddressesFile(); got != `C:\game\red4ext\addresses.json` {
		t.Errorf("AddressesFile() = %q, override ignored", got)
	}
	if got := p.SymbolsFile(); got != `C:\game\red4ext\symbols.json` {
		t.Errorf("SymbolsFile() = %q, override ignored", got)
	}
}

func TestNewUsesExecutableDir(t *testing.T) {
	p, err := New()
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if p.RootDir() == "" {
		t.Error("RootDir() is empty")
	}
	if !filepath.IsAbs(p.RootDir()) {
		t.Errorf("RootDir() = %q, want an absolute path", p.RootDir())
	}
}
