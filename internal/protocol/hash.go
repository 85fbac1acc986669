package protocol

import (
	"crypto/sha1" //nolint:gosec // required by the MonetDB challenge/response wire format, not used for security-sensitive hashing decisions
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"hash"
	"strings"

	"golang.org/x/crypto/ripemd160" //nolint:staticcheck // required by the MonetDB challenge/response wire format
)

// hashAlgo names a digest algorithm the server may advertise in its
// response_hashes list (spec.md §4.D) and a constructor for it.
type hashAlgo struct {
	name string
	new  func() hash.Hash
}

// supportedHashAlgos lists the digests this driver can compute, in the
// order the original implementation tries them
// (original_source/src/util/hash_algorithms.rs).
var supportedHashAlgos = []hashAlgo{
	{"RIPEMD160", ripemd160.New},
	{"SHA512", sha512.New},
	{"SHA384", sha512.New384},
	{"SHA256", sha256.New},
	{"SHA224", sha256.New224},
	{"SHA1", sha1.New},
}

// findHashAlgo picks the first algorithm in commaSeparatedNames that
// this driver implements, preserving the server's advertised order.
func findHashAlgo(commaSeparatedNames string) (hashAlgo, bool) {
	for _, name := range strings.Split(commaSeparatedNames, ",") {
		name = strings.TrimSpace(name)
		for _, a := range supportedHashAlgos {
			if a.name == name {
				return a, true
			}
		}
	}
	return hashAlgo{}, false
}

// hashHex returns the lowercase hex encoding of algo applied to data.
func hashHex(algo hashAlgo, data []byte) string {
	h := algo.new()
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// prehashedMarker is the byte MonetDB uses to flag a password as
// already hashed (spec.md §4.D).
const prehashedMarker = 0x01

// prehashPassword returns the hex-encoded prehash of password: if
// password already carries the pre-hashed marker byte, the remainder is
// used verbatim (it is assumed to already be hex); otherwise the
// plaintext is hashed with prehashAlgo and hex-encoded.
func prehashPassword(password string, prehashAlgo hashAlgo) string {
	if len(password) > 0 && password[0] == prehashedMarker {
		return password[1:]
	}
	return hashHex(prehashAlgo, []byte(password))
}

// sessionHash computes H(prehashedPasswordHex || salt), hex-encoded,
// using the selected response algorithm (spec.md §4.D).
func sessionHash(algo hashAlgo, prehashedPasswordHex, salt string) string {
	return hashHex(algo, []byte(prehashedPasswordHex+salt))
}
