// Package hashes provides the stable identifier hashing used by the address
// and symbol databases.
package hashes

import (
	"log"
	"sync"
)

const (
	fnvSeed  uint32 = 0x811C9DC5
	fnvPrime uint32 = 0x01000193
)

// FNV1a32 hashes a string with the 32-bit Fowler-Noll-Vo 1a variant. This is
// the key function for both databases; the same identifier always produces
// the same hash.
func FNV1a32(s string) uint32 {
	return FNV1a32Bytes([]byte(s))
}

// FNV1a32Bytes hashes a byte slice with FNV-1a 32.
func FNV1a32Bytes(buffer []byte) uint32 {
	hash := fnvSeed
	for _, b := range buffer {
		hash ^= uint32(b)
		hash *= fnvPrime
	}
	return hash
}

var (
	hashCache      = make(map[string]uint32)
	hashCacheMutex sync.RWMutex

	collisionDetector = make(map[uint32]string)
	collisionMutex    sync.Mutex
)

// Get returns the hash for an identifier, using the cache if available.
func Get(s string) uint32 {
	hashCacheMutex.RLock()
	if hash, ok := hashCache[s]; ok {
		hashCacheMutex.RUnlock()
		return hash
	}
	hashCacheMutex.RUnlock()

	hash := FNV1a32(s)

	hashCacheMutex.Lock()
	hashCache[s] = hash
	hashCacheMutex.Unlock()

	detectCollision(hash, s)

	return hash
}

// Collisions across distinct identifiers are possible and not an error;
// first match wins on lookup. They are still worth a warning in the log.
func detectCollision(hash uint32, newString string) {
	collisionMutex.Lock()
	defer collisionMutex.Unlock()

	if existing, ok := collisionDetector[hash]; ok {
		if existing != newString {
			log.Printf("[WARN] hash collision: 0x%08X maps to both %q and %q\n", hash, existing, newString)
		}
		return
	}
	collisionDetector[hash] = newString
}
