// Package resolve translates stable 32-bit identifier hashes to concrete
// runtime pointers inside the relocated main image.
package resolve

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"gamehook/pkg/image"
)

// AddressEntry pins a non-exported function by a human-curated, per-version
// offset relative to one of the image's segments.
type AddressEntry struct {
	Hash    uint32
	Segment image.SegmentID
	Offset  uint32
}

// SymbolEntry maps an identifier hash to one of the image's own exported
// symbol names. The export is looked up live on every resolution.
type SymbolEntry struct {
	Hash uint32
	Name string
}

// AddressDB is the identifier -> segment-relative-offset table, loaded once
// at startup and never mutated.
type AddressDB struct {
	entries map[uint32]AddressEntry
}

// SymbolDB is the identifier -> exported-name table.
type SymbolDB struct {
	entries map[uint32]SymbolEntry
}

type addressFile struct {
	Version   string       `json:"version"`
	Addresses []addressRow `json:"addresses"`
}

type addressRow struct {
	Hash    string `json:"hash"`
	Symbol  string `json:"symbol,omitempty"`
	Segment string `json:"segment"`
	Offset  string `json:"offset"`
}

type symbolFile struct {
	Version string      `json:"version"`
	Symbols []symbolRow `json:"symbols"`
}

type symbolRow struct {
	Hash string `json:"hash"`
	Name string `json:"name"`
}

// LoadAddressDB reads an address database file. Rows that cannot be parsed
// are skipped with a warning; a missing entry later is an expected condition,
// so a sparse database is fine.
func LoadAddressDB(path string) (*AddressDB, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read address database %s: %w", path, err)
	}

	var file addressFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse address database %s: %w", path, err)
	}

	db := &AddressDB{entries: make(map[uint32]AddressEntry, len(file.Addresses))}
	for _, row := range file.Addresses {
		hash, err := parseHex32(row.Hash)
		if err != nil {
			log.Printf("[WARN] address database %s: bad hash %q: %v\n", path, row.Hash, err)
			continue
		}
		seg, ok := image.ParseSegment(row.Segment)
		if !ok {
			log.Printf("[WARN] address database %s: unknown segment %q for hash 0x%08X\n", path, row.Segment, hash)
			continue
		}
		offset, err := parseHex32(row.Offset)
		if err != nil {
			log.Printf("[WARN] address database %s: bad offset %q for hash 0x%08X: %v\n", path, row.Offset, hash, err)
			continue
		}
		// First match wins on duplicate hashes.
		if _, exists := db.entries[hash]; exists {
			log.Printf("[WARN] address database %s: duplicate hash 0x%08X, keeping first entry\n", path, hash)
			continue
		}
		db.entries[hash] = AddressEntry{Hash: hash, Segment: seg, Offset: offset}
	}

	return db, nil
}

// LoadSymbolDB reads a symbol database file generated from the target
// binary's export table.
func LoadSymbolDB(path string) (*SymbolDB, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read symbol database %s: %w", path, err)
	}

	var file symbolFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse symbol database %s: %w", path, err)
	}

	db := &SymbolDB{entries: make(map[uint32]SymbolEntry, len(file.Symbols))}
	for _, row := range file.Symbols {
		hash, err := parseHex32(row.Hash)
		if err != nil {
			log.Printf("[WARN] symbol database %s: bad hash %q: %v\n", path, row.Hash, err)
			continue
		}
		if row.Name == "" {
			log.Printf("[WARN] symbol database %s: empty name for hash 0x%08X\n", path, hash)
			continue
		}
		if _, exists := db.entries[hash]; exists {
			log.Printf("[WARN] symbol database %s: duplicate hash 0x%08X, keeping first entry\n", path, hash)
			continue
		}
		db.entries[hash] = SymbolEntry{Hash: hash, Name: row.Name}
	}

	return db, nil
}

// EmptyAddressDB returns a usable database with no entries, for running
// without a curated offsets file.
func EmptyAddressDB() *AddressDB {
	return &AddressDB{entries: make(map[uint32]AddressEntry)}
}

// EmptySymbolDB returns a usable database with no entries.
func EmptySymbolDB() *SymbolDB {
	return &SymbolDB{entries: make(map[uint32]SymbolEntry)}
}

// Lookup returns the entry for a hash, if present.
func (db *AddressDB) Lookup(hash uint32) (AddressEntry, bool) {
	e, ok := db.entries[hash]
	return e, ok
}

// Len returns the number of loaded entries.
func (db *AddressDB) Len() int {
	return len(db.entries)
}

// Lookup returns the entry for a hash, if present.
func (db *SymbolDB) Lookup(hash uint32) (SymbolEntry, bool) {
	e, ok := db.entries[hash]
	return e, ok
}

// Len returns the number of loaded entries.
func (db *SymbolDB) Len() int {
	return len(db.entries)
}

func parseHex32(s string) (uint32, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if s == "" {
		return 0, fmt.Errorf("empty value")
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return 0, err
	}
	return uint32(v), nil
}
