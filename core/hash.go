package core

import (
	"encoding/binary"
	"strconv"

	"github.com/go-crypt/x/blake2b"
)

// ContentHash returns a deterministic 64-bit BLAKE2b digest of text in hex.
// Identical content always produces the identical hash, which lets embedding
// chunks be addressed by what they contain.
func ContentHash(text string) string {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write([]byte(text))
	sum := h.Sum(nil)
	return strconv.FormatUint(binary.LittleEndian.Uint64(sum), 16)
}
