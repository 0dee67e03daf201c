// Package paths locates the engine's database files next to the running
// module, with environment overrides for non-standard layouts.
package paths

import (
	"os"
	"path/filepath"

	"github.com/xyproto/env/v2"
)

const (
	addressesFileName = "addresses.json"
	symbolsFileName   = "symbols.json"

	addressesEnv = "GAMEHOOK_ADDRESSES"
	symbolsEnv   = "GAMEHOOK_SYMBOLS"
)

// Paths resolves where the databases live. Built once at startup.
type Paths struct {
	rootDir string
}

// New anchors the default locations at the directory of the running
// executable.
func New() (*Paths, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, err
	}
	return &Paths{rootDir: filepath.Dir(exe)}, nil
}

// NewAt anchors the default locations at an explicit directory.
func NewAt(dir string) *Paths {
	return &Paths{rootDir: dir}
}

// RootDir returns the anchor directory.
func (p *Paths) RootDir() string {
	return p.rootDir
}

// AddressesFile returns the address database path, honoring the
// GAMEHOOK_ADDRESSES override.
func (p *Paths) AddressesFile() string {
	return env.Str(addressesEnv, filepath.Join(p.rootDir, addressesFileName))
}

// SymbolsFile returns the symbol database path, honoring the
// GAMEHOOK_SYMBOLS override.
func (p *Paths) SymbolsFile() string {
	return env.Str(symbolsEnv, filepath.Join(p.rootDir, symbolsFileName))
}
