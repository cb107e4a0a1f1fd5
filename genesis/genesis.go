// Copyright (c) 2025 The Khora developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package genesis builds the state every node of a network starts from.
package genesis

import (
	"io"
	"os"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/sile/Khora-sub000/cry"
	"github.com/sile/Khora-sub000/history"
	"github.com/sile/Khora-sub000/khora"
	"github.com/sile/Khora-sub000/seal"
	"github.com/sile/Khora-sub000/stake"
	"github.com/sile/Khora-sub000/state"
	"github.com/sile/Khora-sub000/tx"
)

// Alloc pays amount to an account at genesis.
type Alloc struct {
	Owner  cry.PublicKey `yaml:"owner"`
	Amount uint64        `yaml:"amount"`
}

// Stake is a genesis stake entry.
type Stake struct {
	PK     cry.PublicKey `yaml:"pk"`
	Amount uint64        `yaml:"amount"`
}

// Config is the user-editable description of a network.
type Config struct {
	Name    string       `yaml:"name"`
	Shards  int          `yaml:"shards"`
	Params  khora.Params `yaml:"params"`
	Stakes  []Stake      `yaml:"stakes"`
	Outputs []Alloc      `yaml:"outputs"`
}

// Genesis is a built network start.
type Genesis struct {
	name    khora.Bytes32
	params  khora.Params
	state   *state.State
	outputs []tx.Output
}

// Name returns the genesis name, the last_name of block 1.
func (g *Genesis) Name() khora.Bytes32 { return g.name }

// Params returns the network parameters.
func (g *Genesis) Params() *khora.Params {
	p := g.params
	return &p
}

// State returns a copy of the state at height 0.
func (g *Genesis) State() *state.State { return g.state.Copy() }

// Outputs returns the outputs occupying the first history entries.
func (g *Genesis) Outputs() []tx.Output {
	outs := make([]tx.Output, len(g.outputs))
	copy(outs, g.outputs)
	return outs
}

// Records returns the history records of the genesis outputs.
func (g *Genesis) Records() []history.Record {
	records := make([]history.Record, 0, len(g.outputs))
	for i := range g.outputs {
		records = append(records, g.outputs[i].Record())
	}
	return records
}

// Load reads a YAML genesis file.
func Load(path string) (*Genesis, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read genesis file")
	}
	return Parse(data)
}

// Parse builds a genesis from YAML. Params absent from the document keep their
// default values.
func Parse(data []byte) (*Genesis, error) {
	cfg := Config{Shards: 1, Params: khora.DefaultParams()}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "decode genesis")
	}
	return Build(&cfg)
}

// Dev builds a network from in-memory entries.
func Dev(name string, params khora.Params, shards int, stakes []Stake, outputs ...Alloc) (*Genesis, error) {
	return Build(&Config{
		Name:    name,
		Shards:  shards,
		Params:  params,
		Stakes:  stakes,
		Outputs: outputs,
	})
}

// Build validates cfg and derives the genesis state.
func Build(cfg *Config) (*Genesis, error) {
	params := cfg.Params
	if err := params.Validate(); err != nil {
		return nil, errors.Wrap(err, "params")
	}
	if len(cfg.Stakes) == 0 {
		return nil, errors.New("no genesis stakes")
	}

	stakes := make(stake.Set, 0, len(cfg.Stakes))
	for _, s := range cfg.Stakes {
		if s.Amount == 0 {
			return nil, errors.Errorf("zero stake for %v", s.PK.AbbrevString())
		}
		stakes = append(stakes, stake.Entry{PK: s.PK, Amount: s.Amount})
	}

	name := khora.Blake2bFn(func(w io.Writer) {
		w.Write([]byte("khora-genesis"))
		w.Write([]byte(cfg.Name))
		rlp.Encode(w, []any{uint64(cfg.Shards), stakes, cfg.Outputs})
	})

	outputs := make([]tx.Output, 0, len(cfg.Outputs))
	for i, a := range cfg.Outputs {
		out, err := seal.GenesisOutput(a.Owner, a.Amount, khora.Blake2b(name[:], khora.Uint64Bytes(uint64(i))))
		if err != nil {
			return nil, errors.Wrapf(err, "output %d", i)
		}
		outputs = append(outputs, out)
	}

	st, err := state.Genesis(name, stakes, cfg.Shards, &params)
	if err != nil {
		return nil, err
	}
	st.HistoryHeight = uint64(len(outputs))

	return &Genesis{
		name:    name,
		params:  params,
		state:   st,
		outputs: outputs,
	}, nil
}
