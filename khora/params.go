// Copyright (c) 2025 The Khora developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package khora

import (
	"time"

	"github.com/pkg/errors"
)

// BlockKeyword prefixes every signed block digest.
const BlockKeyword = "khora-block-v1"

// Constants of the network that are not subject to genesis overrides.
const (
	BloomHashes  = 6       // number of probes per tag.
	HistoryEntry = 64      // bytes per OTA history record (pk, commitment).
	MaxShards    = 1 << 10 // upper bound on shard ids accepted from the wire.
)

// Params are the tunable parameters of a network. Every node of a network must share them.
type Params struct {
	NumberOfValidators uint64 `yaml:"validators"`
	ReplaceRate        uint64 `yaml:"replace-rate"`
	QueueLength        uint64 `yaml:"queue-length"`
	WarningTime        uint64 `yaml:"warning-time"`

	InflationConstant  uint64 `yaml:"inflation-constant"`
	InflationExponent  uint64 `yaml:"inflation-exponent"`
	PunishmentFraction uint64 `yaml:"punishment-fraction"`

	MergeThreshold      uint64 `yaml:"merge-threshold"`
	MaxTxSize           uint64 `yaml:"max-tx-size"`
	MaxBatchSize        uint64 `yaml:"max-batch-size"`
	VoteResetPeriod     uint64 `yaml:"vote-reset-period"`
	LeaderExitLookahead uint64 `yaml:"leader-exit-lookahead"`

	BatchInterval     time.Duration `yaml:"batch-interval"`
	EmptyRoundTimeout time.Duration `yaml:"empty-round-timeout"`
	ResponseTimeout   time.Duration `yaml:"response-timeout"`
	LeaderTimeout     time.Duration `yaml:"leader-timeout"`
	ShardTimeout      time.Duration `yaml:"shard-timeout"`
	AliveInterval     time.Duration `yaml:"alive-interval"`
}

// DefaultParams returns the parameters of the main network.
func DefaultParams() Params {
	return Params{
		NumberOfValidators: 128,
		ReplaceRate:        4,
		QueueLength:        40,
		WarningTime:        20,

		InflationConstant:  1 << 30,
		InflationExponent:  1_000_000,
		PunishmentFraction: 1000,

		MergeThreshold:      63,
		MaxTxSize:           10_000,
		MaxBatchSize:        1000,
		VoteResetPeriod:     128,
		LeaderExitLookahead: 10,

		BatchInterval:     5 * time.Second,
		EmptyRoundTimeout: 5 * time.Second,
		ResponseTimeout:   time.Second,
		LeaderTimeout:     30 * time.Second,
		ShardTimeout:      5 * time.Minute,
		AliveInterval:     time.Minute,
	}
}

// DevParams returns parameters for a small committee, used by dev networks and tests.
func DevParams(validators uint64) Params {
	p := DefaultParams()
	p.NumberOfValidators = validators
	p.ReplaceRate = 1
	p.QueueLength = 10
	p.WarningTime = 5
	return p
}

// SigningCutoff is the BFT quorum: the smallest signer count strictly above 2N/3.
func (p *Params) SigningCutoff() int {
	return int(2*p.NumberOfValidators/3) + 1
}

// Validate checks the parameters for internal consistency.
func (p *Params) Validate() error {
	switch {
	case p.NumberOfValidators == 0:
		return errors.New("validators must be positive")
	case p.ReplaceRate == 0:
		return errors.New("replace rate must be positive")
	case p.QueueLength < p.ReplaceRate:
		return errors.New("queue length shorter than replace rate")
	case p.WarningTime > p.QueueLength:
		return errors.New("warning time exceeds queue length")
	case p.InflationExponent == 0:
		return errors.New("inflation exponent must be positive")
	case p.PunishmentFraction == 0:
		return errors.New("punishment fraction must be positive")
	case p.VoteResetPeriod == 0:
		return errors.New("vote reset period must be positive")
	case p.MaxTxSize == 0 || p.MaxBatchSize == 0:
		return errors.New("batch limits must be positive")
	}
	return nil
}
