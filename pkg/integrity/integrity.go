// Package integrity parses and verifies the prefixed content hashes that
// lock documents pin for each downloadable artifact.
package integrity

import (
	"crypto/sha1"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"hash"
	"strings"
)

const (
	AlgorithmSHA1   = "sha1"
	AlgorithmSHA512 = "sha512"
)

// ErrUnknownAlgorithm marks an integrity prefix outside the supported set.
// Verification is a security property, so callers must treat this as fatal
// rather than falling back to serving unverified content.
var ErrUnknownAlgorithm = errors.New("unknown integrity algorithm")

// Digest is a parsed integrity string.
type Digest struct {
	Algorithm string
	Sum       []byte
}

// Parse decodes an integrity string of the form "<algorithm>-<base64>".
// Exactly sha1 and sha512 are recognized.
func Parse(s string) (Digest, error) {
	algorithm, payload, found := strings.Cut(s, "-")
	if !found {
		return Digest{}, fmt.Errorf("integrity %q: missing algorithm prefix", s)
	}

	switch algorithm {
	case AlgorithmSHA1, AlgorithmSHA512:
	default:
		return Digest{}, fmt.Errorf("integrity %q: %w", s, ErrUnknownAlgorithm)
	}

	sum, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return Digest{}, fmt.Errorf("integrity %q: decode digest: %w", s, err)
	}

	return Digest{Algorithm: algorithm, Sum: sum}, nil
}

func (d Digest) newHash() hash.Hash {
	if d.Algorithm == AlgorithmSHA1 {
		return sha1.New()
	}
	return sha512.New()
}

// Verify checks data against the digest.
func (d Digest) Verify(data []byte) error {
	h := d.newHash()
	h.Write(data)
	if subtle.ConstantTimeCompare(h.Sum(nil), d.Sum) != 1 {
		return fmt.Errorf("content does not match %s digest %s", d.Algorithm, d)
	}
	return nil
}

func (d Digest) String() string {
	return d.Algorithm + "-" + base64.StdEncoding.EncodeToString(d.Sum)
}
