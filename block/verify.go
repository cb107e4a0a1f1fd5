// Copyright (c) 2025 The Khora developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package block

import (
	"github.com/sile/Khora-sub000/co"
	"github.com/sile/Khora-sub000/consensus"
	"github.com/sile/Khora-sub000/cry"
	"github.com/sile/Khora-sub000/khora"
	"github.com/sile/Khora-sub000/stake"
	"github.com/sile/Khora-sub000/tx"
)

// Verify checks a full block through its light form.
func (b *Block) Verify(reader tx.StakeReader, committee []uint64, stakes stake.Set, params *khora.Params) error {
	return b.ToLight(reader).Verify(committee, stakes, params)
}

// Verify checks the block against the head committee (stake indices) and the stake set,
// in order: forker evidence, signature exclusivity, leader signature, then either the
// validator signatures or the empty-block multi-signature.
func (lb *LightBlock) Verify(committee []uint64, stakes stake.Set, params *khora.Params) error {
	h := lb.header

	if f := h.body.Forker; f != nil {
		if f.Number >= h.body.Number {
			return consensus.New(consensus.ProtocolInvalid, "forker evidence from height %d not before %d", f.Number, h.body.Number)
		}
		if err := f.Verify(stakes); err != nil {
			return err
		}
	}

	hasValidators := len(h.body.Validators) > 0
	if hasValidators == h.IsEmpty() {
		return consensus.New(consensus.ProtocolInvalid, "exactly one of validators and emptiness must be present")
	}
	if n := len(h.body.Shards); n == 0 || n > khora.MaxShards {
		return consensus.New(consensus.ProtocolInvalid, "bad shard list length %d", n)
	}
	if uint64(len(committee)) != params.NumberOfValidators {
		return consensus.New(consensus.StateMismatch, "committee size %d", len(committee))
	}

	leader := h.body.Leader
	if leader.Index >= uint64(len(stakes)) {
		return consensus.New(consensus.ProtocolInvalid, "leader index %d out of range", leader.Index)
	}
	seats := make(map[uint64]int, len(committee))
	for _, m := range committee {
		seats[m]++
	}
	if seats[leader.Index] == 0 {
		return consensus.New(consensus.ProtocolInvalid, "leader %d not in committee", leader.Index)
	}
	leaderPK := stakes[leader.Index].PK
	if !cry.Verify(h.SigningHash(), leaderPK, leader.Sig) {
		return consensus.New(consensus.CryptoInvalid, "leader signature invalid")
	}

	if hasValidators {
		return lb.verifyValidators(leaderPK, seats, stakes, params)
	}
	return lb.verifyEmptiness(leaderPK, committee, stakes, params)
}

// verifyValidators counts committee seats: a stake entry holding several seats
// contributes each of them to the quorum.
func (lb *LightBlock) verifyValidators(leaderPK cry.PublicKey, seats map[uint64]int, stakes stake.Set, params *khora.Params) error {
	h := lb.header
	sigs := h.body.Validators

	seen := make(map[uint64]bool, len(sigs))
	signed := 0
	for _, s := range sigs {
		if s.Index >= uint64(len(stakes)) || seats[s.Index] == 0 {
			return consensus.New(consensus.ProtocolInvalid, "signer %d not in committee", s.Index)
		}
		if seen[s.Index] {
			return consensus.New(consensus.ProtocolInvalid, "duplicate signer %d", s.Index)
		}
		seen[s.Index] = true
		signed += seats[s.Index]
	}
	if signed < params.SigningCutoff() {
		return consensus.New(consensus.ProtocolInvalid, "%d signed seats below cutoff %d", signed, params.SigningCutoff())
	}

	msg := ValidatorMessage(h.body.Number, ValidatorBody(leaderPK, h.body.Shards, lb.delta.Digest(), h.body.LastName))
	return co.Parallel(len(sigs), func(i int) error {
		if !cry.Verify(msg, stakes[sigs[i].Index].PK, sigs[i].Sig) {
			return consensus.New(consensus.CryptoInvalid, "validator %d signature invalid", sigs[i].Index)
		}
		return nil
	})
}

func (lb *LightBlock) verifyEmptiness(leaderPK cry.PublicKey, committee []uint64, stakes stake.Set, params *khora.Params) error {
	h := lb.header
	ms := h.body.Emptiness

	if !lb.delta.IsEmpty() {
		return consensus.New(consensus.ProtocolInvalid, "empty block carries transactions")
	}
	if len(h.body.Shards) != 1 {
		return consensus.New(consensus.ProtocolInvalid, "empty block merges shards")
	}

	absent := make(map[uint64]bool, len(ms.Absentees))
	for _, pos := range ms.Absentees {
		if pos >= uint64(len(committee)) {
			return consensus.New(consensus.ProtocolInvalid, "absentee position %d out of committee", pos)
		}
		if absent[pos] {
			return consensus.New(consensus.ProtocolInvalid, "duplicate absentee %d", pos)
		}
		absent[pos] = true
	}
	pks := make([]cry.PublicKey, 0, len(committee))
	for pos, idx := range committee {
		if absent[uint64(pos)] {
			continue
		}
		if idx >= uint64(len(stakes)) {
			return consensus.New(consensus.StateMismatch, "committee member %d out of range", idx)
		}
		pks = append(pks, stakes[idx].PK)
	}
	if len(pks) < params.SigningCutoff() {
		return consensus.New(consensus.ProtocolInvalid, "%d participants below cutoff %d", len(pks), params.SigningCutoff())
	}
	if !cry.VerifyMulti(EmptyMessage(leaderPK, h.body.LastName, h.HeadShard()), ms.X, ms.Y, pks) {
		return consensus.New(consensus.CryptoInvalid, "empty block multi-signature invalid")
	}
	return nil
}
