// Copyright (c) 2025 The Khora developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package genesis_test

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sile/Khora-sub000/cry"
	"github.com/sile/Khora-sub000/genesis"
	"github.com/sile/Khora-sub000/khora"
	"github.com/sile/Khora-sub000/seal"
)

func devStakes(n int) []genesis.Stake {
	stakes := make([]genesis.Stake, n)
	for i := range stakes {
		stakes[i] = genesis.Stake{PK: cry.KeyFromSeed([]byte{byte(i)}).Public(), Amount: 1000}
	}
	return stakes
}

func TestDev(t *testing.T) {
	owner := cry.KeyFromSeed([]byte("owner"))
	g, err := genesis.Dev("dev", khora.DevParams(4), 2, devStakes(4), genesis.Alloc{Owner: owner.Public(), Amount: 500})
	require.NoError(t, err)

	st := g.State()
	assert.Equal(t, uint64(0), st.Height)
	assert.Equal(t, uint64(1), st.HistoryHeight)
	assert.Equal(t, g.Name(), st.LastName)
	assert.Len(t, st.Shards, 2)
	assert.Len(t, st.Stakes, 4)
	for _, sh := range st.Shards {
		assert.Len(t, sh.Committee, 4)
	}

	outs := g.Outputs()
	require.Len(t, outs, 1)
	owned, err := seal.Oracle{}.Receive(&outs[0], owner)
	require.NoError(t, err)
	assert.Equal(t, uint64(500), owned.Amount)
	assert.Equal(t, outs[0].Record(), g.Records()[0])

	// deterministic
	again, err := genesis.Dev("dev", khora.DevParams(4), 2, devStakes(4), genesis.Alloc{Owner: owner.Public(), Amount: 500})
	require.NoError(t, err)
	assert.Equal(t, g.Name(), again.Name())
	assert.Equal(t, g.Outputs(), again.Outputs())
	assert.Equal(t, g.State().Digest(), again.State().Digest())

	other, err := genesis.Dev("other", khora.DevParams(4), 2, devStakes(4))
	require.NoError(t, err)
	assert.NotEqual(t, g.Name(), other.Name())
}

func TestBuildErrors(t *testing.T) {
	_, err := genesis.Dev("dev", khora.DevParams(4), 1, nil)
	assert.Error(t, err)

	stakes := devStakes(4)
	stakes[2].Amount = 0
	_, err = genesis.Dev("dev", khora.DevParams(4), 1, stakes)
	assert.Error(t, err)

	_, err = genesis.Dev("dev", khora.DevParams(4), 0, devStakes(4))
	assert.Error(t, err)

	params := khora.DevParams(4)
	params.PunishmentFraction = 0
	_, err = genesis.Dev("dev", params, 1, devStakes(4))
	assert.Error(t, err)
}

func TestLoad(t *testing.T) {
	stakes := devStakes(4)
	doc := "name: testnet\nshards: 1\nparams:\n  validators: 4\n  replace-rate: 1\n  queue-length: 10\n  warning-time: 5\n  batch-interval: 2s\nstakes:\n"
	for _, s := range stakes {
		doc += fmt.Sprintf("  - pk: \"%v\"\n    amount: %d\n", s.PK, s.Amount)
	}
	path := filepath.Join(t.TempDir(), "genesis.yaml")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	g, err := genesis.Load(path)
	require.NoError(t, err)

	p := g.Params()
	assert.Equal(t, uint64(4), p.NumberOfValidators)
	assert.Equal(t, 2*time.Second, p.BatchInterval)
	// untouched fields keep defaults
	assert.Equal(t, khora.DefaultParams().PunishmentFraction, p.PunishmentFraction)
	assert.Equal(t, khora.DefaultParams().LeaderTimeout, p.LeaderTimeout)

	dev, err := genesis.Dev("testnet", *p, 1, stakes)
	require.NoError(t, err)
	assert.Equal(t, dev.Name(), g.Name())

	_, err = genesis.Parse([]byte("stakes: [{pk: \"zz\", amount: 1}]"))
	assert.Error(t, err)
}
