// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package modelid

import (
	"fmt"

	"github.com/bureau-foundation/modelcache/lib/codec"
)

// DeriveFitName returns the fit name for running function on model
// with the given arguments: "models/<token>/fits/<fit-token>".
//
// The fit token hashes the function name and the deterministic CBOR
// encoding of arguments, so the same request always maps to the same
// stored fit. Fits live under their parent model, and deleting the
// model directory removes them too.
func DeriveFitName(model Identity, function string, arguments any) (string, error) {
	encoded, err := codec.Marshal(arguments)
	if err != nil {
		return "", fmt.Errorf("encoding arguments for %s fit of %s: %w", function, model, err)
	}
	digest := keyedDigest(fitDomainKey,
		[]byte(model),
		[]byte(function),
		encoded,
	)
	return fmt.Sprintf("%s/fits/%s", model, encodeToken(digest)), nil
}
