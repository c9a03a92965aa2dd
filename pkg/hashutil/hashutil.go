package hashutil

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"

	"lukechampine.com/blake3"
)

type HashAlgo string

const (
	HashAlgoSHA256 HashAlgo = "sha256"
	HashAlgoBLAKE3 HashAlgo = "blake3"
)

// HashBytes returns the hash of bytes as a hex string using the specified algorithm.
// Supported algorithms: "sha256" and "blake3".
func HashBytes(data []byte, algo HashAlgo) (string, error) {
	h, err := newHasher(algo)
	if err != nil {
		return "", err
	}
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// HashReader consumes r and returns its hex digest along with the number of bytes read.
func HashReader(r io.Reader, algo HashAlgo) (string, int64, error) {
	h, err := newHasher(algo)
	if err != nil {
		return "", 0, err
	}
	n, err := io.Copy(h, r)
	if err != nil {
		return "", n, err
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}

// NewWriter returns a hasher to be used as an io.Writer, e.g. with io.MultiWriter.
func NewWriter(algo HashAlgo) (hash.Hash, error) {
	return newHasher(algo)
}

// Fingerprint derives a fixed-length key from a validator string.
// The same validator always yields the same fingerprint.
func Fingerprint(validator string) string {
	sum := blake3.Sum256([]byte(validator))
	return hex.EncodeToString(sum[:16])
}

func newHasher(algo HashAlgo) (hash.Hash, error) {
	switch algo {
	case HashAlgoSHA256:
		return sha256.New(), nil
	case HashAlgoBLAKE3:
		return blake3.New(32, nil), nil
	default:
		return nil, fmt.Errorf("unsupported hash algorithm: %s", algo)
	}
}
