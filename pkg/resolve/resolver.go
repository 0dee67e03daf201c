package resolve

import (
	"gamehook/pkg/hashes"
	"gamehook/pkg/image"
)

// SymbolLookup queries the OS loader's live symbol table for an exported
// name and returns its runtime address, or 0 when the export is absent.
type SymbolLookup func(name string) uintptr

// Resolver is the single entry point translating a stable hash to a usable
// runtime pointer. It is an explicitly constructed context, not process
// state: build one at startup, pass it to whoever resolves.
type Resolver struct {
	img    *image.Image
	addrs  *AddressDB
	syms   *SymbolDB
	lookup SymbolLookup
}

// NewResolver builds a resolver over a parsed image and the two databases.
// Either database may be empty. The lookup function is the live export
// query; on Windows use NewWindowsResolver instead.
func NewResolver(img *image.Image, addrs *AddressDB, syms *SymbolDB, lookup SymbolLookup) *Resolver {
	if addrs == nil {
		addrs = EmptyAddressDB()
	}
	if syms == nil {
		syms = EmptySymbolDB()
	}
	return &Resolver{img: img, addrs: addrs, syms: syms, lookup: lookup}
}

// Resolve maps an identifier hash to a runtime pointer, or 0 when the hash
// is not known for this binary version. A zero result is not an error:
// callers skip the feature, log, and continue.
//
// Exported symbols are preferred: they survive re-linking and minor patches,
// while curated offsets must be regenerated per binary version. Exported
// lookups are re-tried on every call rather than cached.
func (r *Resolver) Resolve(hash uint32) uintptr {
	if entry, ok := r.syms.Lookup(hash); ok && r.lookup != nil {
		if ptr := r.lookup(entry.Name); ptr != 0 {
			return ptr
		}
		// The export vanished from the live table; fall through to the
		// offset database in case the hash is pinned there too.
	}

	if entry, ok := r.addrs.Lookup(hash); ok {
		segBase, ok := r.img.Segment(entry.Segment)
		if !ok {
			return 0
		}
		return r.img.PreferredBase() + r.img.Slide() + segBase + uintptr(entry.Offset)
	}

	return 0
}

// ResolveName hashes a human-readable identifier and resolves it.
func (r *Resolver) ResolveName(name string) uintptr {
	return r.Resolve(hashes.Get(name))
}
