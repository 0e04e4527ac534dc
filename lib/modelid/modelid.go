// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package modelid

import (
	"encoding/base32"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"

	"github.com/zeebo/blake3"

	"github.com/bureau-foundation/modelcache/lib/version"
)

// DigestSize is the number of hash bytes kept for an identity token.
const DigestSize = 5

// Prefix starts every model identity.
const Prefix = "models/"

// tokenLength is the encoded length of a DigestSize-byte digest.
var tokenLength = tokenEncoding.EncodedLen(DigestSize)

var tokenEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// domainKey is a 32-byte key for BLAKE3 keyed hashing. The byte values
// are the ASCII encoding of the domain name, zero-padded to 32 bytes.
// Changing a key invalidates every identity in that domain.
type domainKey [32]byte

var (
	modelDomainKey = domainKey{
		'm', 'o', 'd', 'e', 'l', 'c', 'a', 'c', 'h', 'e', '.', 'm', 'o', 'd', 'e', 'l',
		0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	}

	fitDomainKey = domainKey{
		'm', 'o', 'd', 'e', 'l', 'c', 'a', 'c', 'h', 'e', '.', 'f', 'i', 't',
		0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	}
)

// Identity names one compiled model: "models/<token>".
type Identity string

// Token returns the identity without its "models/" prefix. This is the
// name of the model's cache directory.
func (id Identity) Token() string {
	return strings.TrimPrefix(string(id), Prefix)
}

// String returns the identity in its canonical "models/<token>" form.
func (id Identity) String() string {
	return string(id)
}

// Parse validates a "models/<token>" string and returns it as an
// Identity. Tokens are accepted only in the lowercase form produced by
// [Environment.Derive].
func Parse(name string) (Identity, error) {
	token, ok := strings.CutPrefix(name, Prefix)
	if !ok {
		return "", fmt.Errorf("model name %q does not start with %q", name, Prefix)
	}
	if err := validateToken(token); err != nil {
		return "", fmt.Errorf("model name %q: %w", name, err)
	}
	return Identity(name), nil
}

func validateToken(token string) error {
	if len(token) != tokenLength {
		return fmt.Errorf("token is %d characters, want %d", len(token), tokenLength)
	}
	for _, r := range token {
		if (r < 'a' || r > 'z') && (r < '2' || r > '7') {
			return fmt.Errorf("token contains invalid character %q", r)
		}
	}
	return nil
}

// Environment is the build-environment fingerprint mixed into every
// model identity. Two processes with equal environments share cache
// entries; any difference yields disjoint identities.
type Environment struct {
	// Version is the modelcache version string.
	Version string

	// Platform is the GOOS/GOARCH pair, e.g. "linux/amd64".
	Platform string

	// PointerWidth is the decimal form of the largest native int,
	// which distinguishes 32-bit from 64-bit address spaces.
	PointerWidth string

	// RuntimeVersion is the Go runtime version string.
	RuntimeVersion string

	// Executable is the absolute path of the running binary. Including
	// it keeps separately installed copies from sharing modules.
	Executable string
}

var currentEnvironment = sync.OnceValue(func() Environment {
	executable, err := os.Executable()
	if err != nil {
		executable = os.Args[0]
	}
	if absolute, err := filepath.Abs(executable); err == nil {
		executable = absolute
	}
	return Environment{
		Version:        version.Short(),
		Platform:       runtime.GOOS + "/" + runtime.GOARCH,
		PointerWidth:   strconv.Itoa(math.MaxInt),
		RuntimeVersion: runtime.Version(),
		Executable:     executable,
	}
})

// CurrentEnvironment returns the fingerprint of the running process.
// The value is resolved once and never changes afterwards.
func CurrentEnvironment() Environment {
	return currentEnvironment()
}

// Derive computes the model identity for source in the current
// environment.
func Derive(source string) Identity {
	return CurrentEnvironment().Derive(source)
}

// Derive computes the model identity for source in environment e.
// Inputs are hashed in this order: source, version, platform, pointer
// width, runtime version, executable.
func (e Environment) Derive(source string) Identity {
	digest := keyedDigest(modelDomainKey,
		[]byte(source),
		[]byte(e.Version),
		[]byte(e.Platform),
		[]byte(e.PointerWidth),
		[]byte(e.RuntimeVersion),
		[]byte(e.Executable),
	)
	return Identity(Prefix + encodeToken(digest))
}

func encodeToken(digest [DigestSize]byte) string {
	return strings.ToLower(tokenEncoding.EncodeToString(digest[:]))
}

// keyedDigest hashes each field with a uvarint length prefix and
// truncates the BLAKE3 output to DigestSize bytes.
func keyedDigest(key domainKey, fields ...[]byte) [DigestSize]byte {
	// NewKeyed only fails for a key that is not 32 bytes, which
	// domainKey rules out.
	hasher, err := blake3.NewKeyed(key[:])
	if err != nil {
		panic("modelid: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	var length [binary.MaxVarintLen64]byte
	for _, field := range fields {
		n := binary.PutUvarint(length[:], uint64(len(field)))
		hasher.Write(length[:n])
		hasher.Write(field)
	}
	var digest [DigestSize]byte
	copy(digest[:], hasher.Sum(nil))
	return digest
}
