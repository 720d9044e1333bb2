package schnorr

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
)

// Exercises a small toy group: p=23, g=2, q=11, alpha=6 (y=18),
// alpha_t=4 (u_t=16), c=7.
func TestVerify_HappyPath(t *testing.T) {
	p := big.NewInt(23)
	g := big.NewInt(2)
	ut := big.NewInt(16)
	y := big.NewInt(18)
	c := big.NewInt(7)
	z := big.NewInt(2) // (4 + 6*7) mod 11 = 2

	assert.True(t, Verify(p, g, ut, c, z, y))
}

func TestVerify_WrongResponse(t *testing.T) {
	p := big.NewInt(23)
	g := big.NewInt(2)
	ut := big.NewInt(16)
	y := big.NewInt(18)
	c := big.NewInt(7)
	z := big.NewInt(3) // wrong response

	assert.False(t, Verify(p, g, ut, c, z, y))
}

func TestVerifyAny_SkipsNonMatchingDevices(t *testing.T) {
	p := big.NewInt(23)
	g := big.NewInt(2)
	ut := big.NewInt(16)
	c := big.NewInt(7)
	z := big.NewInt(2)

	wrong := big.NewInt(5)
	right := big.NewInt(18)

	idx := VerifyAny(p, g, ut, c, z, []*big.Int{wrong, right})
	assert.Equal(t, 1, idx)
}

func TestVerifyAny_NoMatch(t *testing.T) {
	p := big.NewInt(23)
	g := big.NewInt(2)
	ut := big.NewInt(16)
	c := big.NewInt(7)
	z := big.NewInt(2)

	idx := VerifyAny(p, g, ut, c, z, []*big.Int{big.NewInt(3), big.NewInt(4)})
	assert.Equal(t, -1, idx)
}
