// Package schnorr implements the verification predicate for the Schnorr
// identification protocol over a modular-exponentiation group.
package schnorr

import "math/big"

// Verify checks the Schnorr identification predicate for a single candidate
// device key y:
//
//	left  = g^z mod p
//	right = (u_t * y^c) mod p
//	accept iff left == right
//
// The prover reduces its exponents mod q before computing z; the verifier
// must not reduce z or c before exponentiation here — it computes directly
// modulo p.
func Verify(p, g, ut, c, z, y *big.Int) bool {
	left := new(big.Int).Exp(g, z, p)

	right := new(big.Int).Exp(y, c, p)
	right.Mul(right, ut)
	right.Mod(right, p)

	return left.Cmp(right) == 0
}

// VerifyAny tries the predicate against each candidate key in order and
// returns the index of the first match, or -1 if none match. A key that
// fails to parse upstream is the caller's concern: VerifyAny only evaluates
// the keys it is given.
func VerifyAny(p, g, ut, c, z *big.Int, candidates []*big.Int) int {
	for i, y := range candidates {
		if Verify(p, g, ut, c, z, y) {
			return i
		}
	}
	return -1
}
