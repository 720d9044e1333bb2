// Package group holds the named modular-exponentiation groups the Schnorr
// protocol runs over: a prime p, generator g, and the derived prime-order
// subgroup size q = (p-1)/2.
package group

import (
	"fmt"
	"math/big"
	"strings"
	"sync"
)

// Group is a registered (p, g, q) modular-exponentiation group.
type Group struct {
	// ID is the name the group is registered and selected under.
	ID string

	// P is the modulus, an odd prime such that q = (P-1)/2 is also prime.
	P *big.Int

	// G is the generator of the order-q subgroup.
	G *big.Int

	// Q is the subgroup order, derived as (P-1)/2 at registration time.
	Q *big.Int
}

var (
	mu       sync.RWMutex
	registry = map[string]*Group{}
)

func register(id string, pHex string, g int64) {
	p, ok := new(big.Int).SetString(pHex, 16)
	if !ok {
		panic(fmt.Sprintf("group: invalid modulus for %q", id))
	}

	q := new(big.Int).Sub(p, big.NewInt(1))
	q.Rsh(q, 1)

	mu.Lock()
	defer mu.Unlock()
	registry[id] = &Group{
		ID: id,
		P:  p,
		G:  big.NewInt(g),
		Q:  q,
	}
}

// Get returns the named group, or an error if no group is registered under
// that id.
func Get(id string) (*Group, error) {
	mu.RLock()
	defer mu.RUnlock()

	g, ok := registry[id]
	if !ok {
		return nil, fmt.Errorf("group: unknown group id %q", id)
	}
	return g, nil
}

// Exp returns base^exp mod g.P using square-and-multiply modular
// exponentiation (math/big.Int.Exp). Exponents and bases are never reduced
// through floating point.
func (g *Group) Exp(base, exp *big.Int) *big.Int {
	return new(big.Int).Exp(base, exp, g.P)
}

// modp1536Hex is the RFC 3526 group 5 prime, 1536 bits, whitespace stripped
// at init time for readability against the RFC's published line breaks.
const modp1536Hex = `
	FFFFFFFF FFFFFFFF C90FDAA2 2168C234 C4C6628B 80DC1CD1
	29024E08 8A67CC74 020BBEA6 3B139B22 514A0879 8E3404DD
	EF9519B3 CD3A431B 302B0A6D F25F1437 4FE1356D 6D51C245
	E485B576 625E7EC6 F44C42E9 A637ED6B 0BFF5CB6 F406B7ED
	EE386BFB 5A899FA5 AE9F2411 7C4B1FE6 49286651 ECE45B3D
	C2007CB8 A163BF05 98DA4836 1C55D39A 69163FA8 FD24CF5F
	83655D23 DCA3AD96 1C62F356 208552BB 9ED52907 7096966D
	670C354E 4ABC9804 F1746C08 CA18217C 32905E46 2E36CE3B
	E39E772C 180E8603 9B2783A2 EC07A28F B5C55DF0 6F4C52C9
	DE2BCBF6 95581718 3995497C EA956AE5 15D22618 98FA0510
	15728E5A 8AACAA68 FFFFFFFF FFFFFFFF
`

func init() {
	// MODP-1536, RFC 3526 group 5, g=2. Production default.
	hex := strings.NewReplacer(" ", "", "\n", "", "\t", "").Replace(modp1536Hex)
	register("modp1536", hex, 2)

	// The spec's small verifiable group (p=23, g=2, q=11). Never the
	// default; tests and local development config only.
	register("test23", "17", 2) // 0x17 = 23
}
