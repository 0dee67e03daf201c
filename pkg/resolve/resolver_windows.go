//go:build windows

package resolve

import (
	"golang.org/x/sys/windows"

	wcobf "github.com/carved4/go-wincall/pkg/obf"
	wcresolve "github.com/carved4/go-wincall/pkg/resolve"

	"gamehook/pkg/image"
)

// NewWindowsResolver wires the symbol tier to the main module's live export
// table, walked by name hash without going through any import table the
// engine itself might have patched.
func NewWindowsResolver(img *image.Image, addrs *AddressDB, syms *SymbolDB) (*Resolver, error) {
	handle, err := windows.GetModuleHandle(nil)
	if err != nil {
		return nil, err
	}
	moduleBase := uintptr(handle)

	lookup := func(name string) uintptr {
		return wcresolve.GetFunctionAddress(moduleBase, wcobf.GetHash(name))
	}

	return NewResolver(img, addrs, syms, lookup), nil
}
