package policyindex

import (
	"encoding/binary"
	"math"
)

// encodeVector packs a float32 embedding into a little-endian byte blob
// for BLOB storage — no external vector database is available in the
// dependency pack, so questions.embedding is compared by brute-force
// cosine similarity rather than an ANN index.
func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(b []byte) []float32 {
	n := len(b) / 4
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return out
}
