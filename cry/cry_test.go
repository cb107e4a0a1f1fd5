// Copyright (c) 2025 The Khora developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package cry

import (
	"encoding/json"
	"testing"

	"github.com/sile/Khora-sub000/khora"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeys(t *testing.T) {
	a := KeyFromSeed([]byte("alice"))
	b := KeyFromSeed([]byte("alice"))
	assert.Equal(t, a.Public(), b.Public())
	assert.NotEqual(t, a.Public(), KeyFromSeed([]byte("bob")).Public())

	k, err := PrivateKeyFromBytes(a.Bytes())
	require.NoError(t, err)
	assert.Equal(t, a.Public(), k.Public())

	_, err = PrivateKeyFromBytes(make([]byte, 32))
	assert.Error(t, err)

	pk, err := ParsePublicKey(a.Public().Bytes())
	require.NoError(t, err)
	assert.Equal(t, a.Public(), pk)

	_, err = ParsePublicKey(make([]byte, 33))
	assert.Error(t, err)

	data, err := json.Marshal(pk)
	require.NoError(t, err)
	var back PublicKey
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, pk, back)
}

func TestSignVerify(t *testing.T) {
	k, err := GenerateKey()
	require.NoError(t, err)
	digest := khora.Blake2b([]byte("block"))

	sig := Sign(digest, k)
	assert.True(t, Verify(digest, k.Public(), sig))
	assert.Equal(t, sig, Sign(digest, k), "deterministic")

	assert.False(t, Verify(khora.Blake2b([]byte("other")), k.Public(), sig))
	assert.False(t, Verify(digest, KeyFromSeed([]byte("x")).Public(), sig))

	sig[5] ^= 1
	assert.False(t, Verify(digest, k.Public(), sig))
	assert.False(t, Verify(digest, PublicKey{}, sig))
}

func TestNoncedSignature(t *testing.T) {
	k := KeyFromSeed([]byte("leader"))
	payload := []byte("batch")

	ns := SignNonced(payload, 7, k)
	assert.True(t, ns.Verify(payload, 7, k.Public()))
	assert.False(t, ns.Verify(payload, 8, k.Public()))
	assert.False(t, ns.Verify([]byte("batch2"), 7, k.Public()))

	other := SignNonced(payload, 7, k)
	assert.NotEqual(t, ns.Nonce, other.Nonce)
}

func TestScalarPointArithmetic(t *testing.T) {
	one := Scalar{31: 1}
	two := Scalar{31: 2}
	assert.Equal(t, two, SumScalars(one, one))

	g := Commitment(one)
	g2, err := SumPoints(g, g)
	require.NoError(t, err)
	assert.Equal(t, Commitment(two), g2)

	sum, err := SumPoints()
	require.NoError(t, err)
	assert.True(t, sum.IsIdentity())

	same, err := SumPoints(Point{}, g)
	require.NoError(t, err)
	assert.Equal(t, g, same)

	_, err = SumPoints(Point{0: 0x07, 1: 0xff})
	assert.Error(t, err)
}

func multisigRound(t *testing.T, keys []*PrivateKey, bnum, round uint64, m []byte) (Point, Scalar, []Point, []Scalar, Scalar) {
	var xs []Scalar
	var Xs []Point
	for _, k := range keys {
		x := CommitSecret(k, bnum, round)
		xs = append(xs, x)
		Xs = append(Xs, Commitment(x))
	}
	X, err := SumPoints(Xs...)
	require.NoError(t, err)

	e := Challenge(m, X)
	var ys []Scalar
	for i, k := range keys {
		y := Respond(xs[i], k, e)
		require.True(t, CheckResponse(Xs[i], k.Public(), e, y))
		ys = append(ys, y)
	}
	return X, SumScalars(ys...), Xs, ys, e
}

func TestMultiSignature(t *testing.T) {
	var keys []*PrivateKey
	var pks []PublicKey
	for _, s := range []string{"a", "b", "c", "d"} {
		k := KeyFromSeed([]byte(s))
		keys = append(keys, k)
		pks = append(pks, k.Public())
	}
	m := []byte("leader|lastname|0")

	X, Y, Xs, ys, e := multisigRound(t, keys, 1, 0, m)
	assert.True(t, VerifyMulti(m, X, Y, pks))

	// wrong message, missing participant, extra participant
	assert.False(t, VerifyMulti([]byte("other"), X, Y, pks))
	assert.False(t, VerifyMulti(m, X, Y, pks[:3]))
	assert.False(t, VerifyMulti(m, X, Y, append(pks, KeyFromSeed([]byte("e")).Public())))

	// a bad response is caught individually
	bad := SumScalars(ys[2], Scalar{31: 1})
	assert.False(t, CheckResponse(Xs[2], pks[2], e, bad))

	// commit secrets are per height and round
	assert.NotEqual(t, CommitSecret(keys[0], 1, 0), CommitSecret(keys[0], 2, 0))
	assert.NotEqual(t, CommitSecret(keys[0], 1, 0), CommitSecret(keys[0], 1, 1))
	assert.Equal(t, CommitSecret(keys[0], 1, 0), CommitSecret(keys[0], 1, 0))

	// a retry without the excluded participant still verifies
	X3, Y3, _, _, _ := multisigRound(t, keys[:3], 1, 1, m)
	assert.True(t, VerifyMulti(m, X3, Y3, pks[:3]))
}
