// Package canonical produces byte-exact canonical JSON and its SHA-256,
// the deterministic encoding every hash in the ledger (event hashes, the
// ledger root, report body hashes, commitment hashes) is computed over.
//
// Adapted from the teacher's JSON-canonicalization helpers: recursive
// key-sorting at every depth, arrays left in place, no insignificant
// whitespace. Two differences from the teacher's version: hashes here are
// bare lowercase hex with no "0x" prefix (§6 of the ledger spec), and the
// Merkle-tree/bundle-ID helpers that package carried are dropped — the
// ledger root is a flat concatenation hash (§4.I), not a Merkle root.
package canonical

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
)

// Marshal takes arbitrary JSON bytes and returns them re-encoded with map
// keys sorted lexicographically at every depth and no insignificant
// whitespace. Numbers are decoded with json.Number so their original
// digit sequence is preserved byte-for-byte rather than round-tripped
// through float64, which could otherwise introduce scientific notation
// or trailing-zero drift the spec forbids.
func Marshal(raw []byte) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("canonical: unmarshal: %w", err)
	}
	return json.Marshal(sortKeys(v))
}

// MarshalValue canonicalizes a Go value by round-tripping it through
// encoding/json and then sorting keys. Struct field order from json tags
// does not matter; only the final sorted form does.
func MarshalValue(v interface{}) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canonical: marshal: %w", err)
	}
	return Marshal(raw)
}

func sortKeys(v interface{}) interface{} {
	switch vv := v.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(vv))
		for k := range vv {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		ordered := make(map[string]interface{}, len(vv))
		for _, k := range keys {
			ordered[k] = sortKeys(vv[k])
		}
		return ordered
	case []interface{}:
		out := make([]interface{}, len(vv))
		for i, e := range vv {
			out[i] = sortKeys(e)
		}
		return out
	default:
		return vv
	}
}

// Hash returns the lowercase hex SHA-256 of data.
func Hash(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// HashConcat returns the lowercase hex SHA-256 of the concatenation of
// parts, used for the ledger root hash (concat of event hashes) and
// commitment hashes (concat of instanceId | seqNo | lastEventHash |
// stateHmac).
func HashConcat(parts ...[]byte) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write(p)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// HashValue canonicalizes v and returns its lowercase hex SHA-256.
func HashValue(v interface{}) (string, error) {
	b, err := MarshalValue(v)
	if err != nil {
		return "", err
	}
	return Hash(b), nil
}
