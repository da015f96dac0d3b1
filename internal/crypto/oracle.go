package crypto

import (
	"encoding/binary"
	"errors"
	"hash"
	"strings"
	"sync"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/sha3"
)

// VectorWidth is the number of nonces a BatchOracle evaluates per call.
const VectorWidth = 4

// DigestLen is the digest size of the bundled oracles.
const DigestLen = 32

// ErrUnknownAlgorithm is returned by New for an unsupported oracle name.
var ErrUnknownAlgorithm = errors.New("unknown hash algorithm")

// Oracle computes the proof-of-work digest of a header for one nonce.
// Implementations must be safe for concurrent use and must not fail.
type Oracle interface {
	// Digest appends the digest of (header, nonce) to dst and returns it.
	Digest(nonce uint64, header []byte, dst []byte) []byte
}

// BatchOracle is an Oracle that can evaluate VectorWidth independent nonces
// in a single call. out[i] receives the digest for nonces[i]; its backing
// array is reused when large enough.
type BatchOracle interface {
	Oracle
	DigestBatch(nonces *[VectorWidth]uint64, header []byte, out *[VectorWidth][]byte)
}

// New returns the oracle registered under name.
func New(name string) (Oracle, error) {
	switch strings.ToLower(name) {
	case "", "keccak", "keccak256":
		return NewKeccak(), nil
	case "blake2b", "blake2b256":
		return NewBlake2b(), nil
	}
	return nil, ErrUnknownAlgorithm
}

// Algorithms lists the names accepted by New.
func Algorithms() []string {
	return []string{"keccak", "blake2b"}
}

// hasherOracle hashes header || little-endian(nonce) with pooled hashers.
type hasherOracle struct {
	pool sync.Pool
}

func newHasherOracle(fn func() hash.Hash) *hasherOracle {
	return &hasherOracle{pool: sync.Pool{New: func() any { return fn() }}}
}

func (o *hasherOracle) Digest(nonce uint64, header []byte, dst []byte) []byte {
	h := o.pool.Get().(hash.Hash)
	sum := sumNonce(h, nonce, header, dst)
	o.pool.Put(h)
	return sum
}

func (o *hasherOracle) DigestBatch(nonces *[VectorWidth]uint64, header []byte, out *[VectorWidth][]byte) {
	// One hasher serves all lanes of the vector.
	h := o.pool.Get().(hash.Hash)
	for i, n := range nonces {
		out[i] = sumNonce(h, n, header, out[i][:0])
	}
	o.pool.Put(h)
}

func sumNonce(h hash.Hash, nonce uint64, header []byte, dst []byte) []byte {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], nonce)
	h.Reset()
	h.Write(header)
	h.Write(buf[:])
	return h.Sum(dst)
}

// Keccak is the legacy Keccak-256 oracle.
type Keccak struct{ *hasherOracle }

// NewKeccak creates a Keccak-256 oracle.
func NewKeccak() *Keccak {
	return &Keccak{newHasherOracle(sha3.NewLegacyKeccak256)}
}

// Blake2b is the unkeyed BLAKE2b-256 oracle.
type Blake2b struct{ *hasherOracle }

// NewBlake2b creates a BLAKE2b-256 oracle.
func NewBlake2b() *Blake2b {
	return &Blake2b{newHasherOracle(func() hash.Hash {
		h, err := blake2b.New256(nil)
		if err != nil {
			// only reachable with an oversized key
			panic("blake2b: " + err.Error())
		}
		return h
	})}
}

// Keccak256 calculates the keccak256 hash of the input bytes
func Keccak256(data []byte) []byte {
	h := sha3.NewLegacyKeccak256()
	_, _ = h.Write(data)
	return h.Sum(nil)
}
