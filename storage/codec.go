package storage

import (
	"encoding/binary"
	"fmt"
	"math"
)

const float32Width = 4

// EmbeddingCodec converts vectors to and from an engine's storage representation.
// Repositories pass every embedding field through their codec, so callers always
// deal in []float32 whichever engine is active.
type EmbeddingCodec interface {
	Encode(vector []float32) (any, error)
	Decode(stored any) ([]float32, error)
}

// BlobCodec packs vectors as little-endian float32 bytes for engines without a vector type.
type BlobCodec struct{}

var _ EmbeddingCodec = BlobCodec{}

// Encode packs vector. An empty vector packs to an empty byte slice.
func (BlobCodec) Encode(vector []float32) (any, error) {
	return EncodeFloat32s(vector), nil
}

// Decode unpacks stored bytes. Nil decodes to nil.
func (BlobCodec) Decode(stored any) ([]float32, error) {
	switch v := stored.(type) {
	case nil:
		return nil, nil
	case []byte:
		return DecodeFloat32s(v)
	case string:
		return DecodeFloat32s([]byte(v))
	}
	return nil, fmt.Errorf("%w: unexpected type %T", ErrCorruptEmbedding, stored)
}

// NativeCodec is the identity codec for engines that store vectors natively.
type NativeCodec struct{}

var _ EmbeddingCodec = NativeCodec{}

// Encode returns vector unchanged.
func (NativeCodec) Encode(vector []float32) (any, error) {
	return vector, nil
}

// Decode returns the stored vector unchanged.
func (NativeCodec) Decode(stored any) ([]float32, error) {
	switch v := stored.(type) {
	case nil:
		return nil, nil
	case []float32:
		return v, nil
	}
	return nil, fmt.Errorf("%w: unexpected type %T", ErrCorruptEmbedding, stored)
}

// EncodeFloat32s packs a vector into little-endian float32 bytes.
// NaN and Inf values keep their exact bit patterns.
func EncodeFloat32s(vector []float32) []byte {
	buf := make([]byte, len(vector)*float32Width)
	for i, f := range vector {
		binary.LittleEndian.PutUint32(buf[i*float32Width:], math.Float32bits(f))
	}
	return buf
}

// DecodeFloat32s is the inverse of EncodeFloat32s.
// Fails with ErrCorruptEmbedding when len(data) is not a multiple of 4.
func DecodeFloat32s(data []byte) ([]float32, error) {
	if len(data)%float32Width != 0 {
		return nil, fmt.Errorf("%w: %d bytes is not a multiple of %d", ErrCorruptEmbedding, len(data), float32Width)
	}
	vector := make([]float32, len(data)/float32Width)
	for i := range vector {
		vector[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*float32Width:]))
	}
	return vector, nil
}

// ToFloat32s converts the loosely typed vectors callers hand to a repository.
func ToFloat32s(v any) ([]float32, bool) {
	switch vec := v.(type) {
	case []float32:
		return vec, true
	case []float64:
		out := make([]float32, len(vec))
		for i, f := range vec {
			out[i] = float32(f)
		}
		return out, true
	case []any:
		out := make([]float32, len(vec))
		for i, f := range vec {
			n, ok := f.(float64)
			if !ok {
				return nil, false
			}
			out[i] = float32(n)
		}
		return out, true
	}
	return nil, false
}
