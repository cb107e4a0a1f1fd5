// Copyright (c) 2025 The Khora developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package cry

import (
	"encoding/hex"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/pkg/errors"
	"github.com/sile/Khora-sub000/khora"
)

// Scalar is a big-endian integer modulo the curve order.
type Scalar [32]byte

// Point is a compressed curve point. The zero value is the identity.
type Point [PublicKeyLength]byte

func (s Scalar) String() string { return hex.EncodeToString(s[:]) }
func (p Point) String() string  { return hex.EncodeToString(p[:]) }

// IsIdentity reports whether p is the point at infinity.
func (p Point) IsIdentity() bool { return p == Point{} }

func (s Scalar) mod() *secp256k1.ModNScalar {
	var m secp256k1.ModNScalar
	m.SetBytes((*[32]byte)(&s))
	return &m
}

func scalarOf(m *secp256k1.ModNScalar) Scalar {
	return Scalar(m.Bytes())
}

// hashToScalar reduces a blake2b digest of data modulo the curve order.
func hashToScalar(data ...[]byte) *secp256k1.ModNScalar {
	h := khora.Blake2b(data...)
	var m secp256k1.ModNScalar
	m.SetBytes((*[32]byte)(&h))
	return &m
}

func (p Point) jacobian() (secp256k1.JacobianPoint, error) {
	var jp secp256k1.JacobianPoint
	if p.IsIdentity() {
		return jp, nil
	}
	pub, err := secp256k1.ParsePubKey(p[:])
	if err != nil {
		return jp, errors.Wrap(err, "invalid point")
	}
	pub.AsJacobian(&jp)
	return jp, nil
}

func isInfinity(jp *secp256k1.JacobianPoint) bool {
	return (jp.X.IsZero() && jp.Y.IsZero()) || jp.Z.IsZero()
}

// addInto sets acc = acc + p. The curve routines do not allow the result to alias an operand.
func addInto(acc, p *secp256k1.JacobianPoint) {
	var sum secp256k1.JacobianPoint
	secp256k1.AddNonConst(acc, p, &sum)
	acc.Set(&sum)
}

func pointOf(jp *secp256k1.JacobianPoint) Point {
	var p Point
	if isInfinity(jp) {
		return p
	}
	jp.ToAffine()
	copy(p[:], secp256k1.NewPublicKey(&jp.X, &jp.Y).SerializeCompressed())
	return p
}

// CommitSecret derives the multi-signature secret x = H(bnum ∥ round ∥ sk). A secret must
// answer at most one challenge, so every retry at the same height uses a new round.
func CommitSecret(k *PrivateKey, bnum, round uint64) Scalar {
	return scalarOf(hashToScalar(khora.Uint64Bytes(bnum), khora.Uint64Bytes(round), k.Bytes()))
}

// Commitment returns X = x·G.
func Commitment(x Scalar) Point {
	var jp secp256k1.JacobianPoint
	secp256k1.ScalarBaseMultNonConst(x.mod(), &jp)
	return pointOf(&jp)
}

// SumPoints adds points. It fails on an invalid encoding.
func SumPoints(points ...Point) (Point, error) {
	var acc secp256k1.JacobianPoint
	for _, p := range points {
		jp, err := p.jacobian()
		if err != nil {
			return Point{}, err
		}
		addInto(&acc, &jp)
	}
	return pointOf(&acc), nil
}

// SumScalars adds scalars modulo the curve order.
func SumScalars(scalars ...Scalar) Scalar {
	var acc secp256k1.ModNScalar
	for _, s := range scalars {
		acc.Add(s.mod())
	}
	return scalarOf(&acc)
}

// Challenge computes e = H(m ∥ X).
func Challenge(m []byte, X Point) Scalar {
	return scalarOf(hashToScalar(m, X[:]))
}

// Respond computes y = x + e·sk.
func Respond(x Scalar, k *PrivateKey, e Scalar) Scalar {
	var y secp256k1.ModNScalar
	y.Mul2(e.mod(), k.scalar()).Add(x.mod())
	return scalarOf(&y)
}

// sumPublicKeys returns Σ pk as a jacobian point.
func sumPublicKeys(pks []PublicKey) (secp256k1.JacobianPoint, error) {
	var acc secp256k1.JacobianPoint
	for _, pk := range pks {
		pub, err := pk.parse()
		if err != nil {
			return acc, err
		}
		var jp secp256k1.JacobianPoint
		pub.AsJacobian(&jp)
		addInto(&acc, &jp)
	}
	return acc, nil
}

// checkLinear reports whether y·G == X + e·P.
func checkLinear(X Point, e Scalar, P *secp256k1.JacobianPoint, y Scalar) bool {
	xj, err := X.jacobian()
	if err != nil {
		return false
	}
	var lhs, eP, rhs secp256k1.JacobianPoint
	secp256k1.ScalarBaseMultNonConst(y.mod(), &lhs)
	if !isInfinity(P) {
		secp256k1.ScalarMultNonConst(e.mod(), P, &eP)
	}
	secp256k1.AddNonConst(&xj, &eP, &rhs)
	return pointOf(&lhs) == pointOf(&rhs)
}

// CheckResponse verifies a single participant's response: y·G == X + e·pk.
func CheckResponse(X Point, pk PublicKey, e, y Scalar) bool {
	pub, err := pk.parse()
	if err != nil {
		return false
	}
	var P secp256k1.JacobianPoint
	pub.AsJacobian(&P)
	return checkLinear(X, e, &P, y)
}

// VerifyMulti verifies an aggregate signature (X, Y) of m by the participants pks,
// accepting iff Y·G == X + H(m ∥ X)·Σ pks.
func VerifyMulti(m []byte, X Point, Y Scalar, pks []PublicKey) bool {
	P, err := sumPublicKeys(pks)
	if err != nil {
		return false
	}
	return checkLinear(X, Challenge(m, X), &P, Y)
}
