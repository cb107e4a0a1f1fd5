// Copyright (c) 2025 The Khora developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package api_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/mclock"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sile/Khora-sub000/api"
	"github.com/sile/Khora-sub000/api/stakes"
	"github.com/sile/Khora-sub000/api/transactions"
	"github.com/sile/Khora-sub000/api/wallet"
	"github.com/sile/Khora-sub000/comm"
	"github.com/sile/Khora-sub000/genesis"
	"github.com/sile/Khora-sub000/khora"
	"github.com/sile/Khora-sub000/node"
	kwallet "github.com/sile/Khora-sub000/wallet"
)

var (
	ts     *httptest.Server
	gen    *genesis.Genesis
	server *node.Node
	owner  *node.Node
)

func newNode(t *testing.T, keys *kwallet.Keys) *node.Node {
	n, err := node.New(node.Options{
		Genesis:   gen,
		Keys:      keys,
		Bus:       comm.NewMemNetwork().Attach("self"),
		Clock:     &mclock.Simulated{},
		BloomBits: 1 << 12,
		RingSize:  4,
	})
	require.NoError(t, err)
	t.Cleanup(func() { n.Close() })
	return n
}

func initServer(t *testing.T) {
	serverKeys := kwallet.KeysFromPassword("server")
	ownerKeys := kwallet.KeysFromPassword("owner")

	var err error
	gen, err = genesis.Dev("api", khora.DevParams(1), 1,
		[]genesis.Stake{{PK: serverKeys.Stake.Public(), Amount: 5}},
		genesis.Alloc{Owner: ownerKeys.Account.Public(), Amount: 100},
	)
	require.NoError(t, err)

	server = newNode(t, serverKeys)
	owner = newNode(t, ownerKeys)
	ts = httptest.NewServer(api.New(server, api.Options{AllowedOrigins: "*"}))
	t.Cleanup(ts.Close)
}

func httpGet(t *testing.T, path string) ([]byte, int) {
	res, err := http.Get(ts.URL + path) //#nosec G107
	require.NoError(t, err)
	defer res.Body.Close()
	body, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	return body, res.StatusCode
}

func httpPost(t *testing.T, path string, obj any) ([]byte, int) {
	data, err := json.Marshal(obj)
	require.NoError(t, err)
	res, err := http.Post(ts.URL+path, "application/json", bytes.NewReader(data)) //#nosec G107
	require.NoError(t, err)
	defer res.Body.Close()
	body, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	return body, res.StatusCode
}

func TestAPI(t *testing.T) {
	initServer(t)

	for name, tt := range map[string]func(*testing.T){
		"getNodeInfo":          getNodeInfo,
		"getStakes":            getStakes,
		"getCommittee":         getCommittee,
		"getMissingBlock":      getMissingBlock,
		"getBadRevision":       getBadRevision,
		"getEmptyWallet":       getEmptyWallet,
		"sendTransaction":      sendTransaction,
		"sendBadTransaction":   sendBadTransaction,
		"unknownFieldRejected": unknownFieldRejected,
	} {
		t.Run(name, tt)
	}
}

func getNodeInfo(t *testing.T) {
	body, code := httpGet(t, "/node")
	require.Equal(t, http.StatusOK, code)

	var info node.Info
	require.NoError(t, json.Unmarshal(body, &info))
	assert.Zero(t, info.Height)
	assert.Equal(t, 1, info.Stakes)
	assert.Equal(t, 1, info.Shards)
}

func getStakes(t *testing.T) {
	body, code := httpGet(t, "/stakes")
	require.Equal(t, http.StatusOK, code)

	var entries []stakes.Entry
	require.NoError(t, json.Unmarshal(body, &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, uint64(5), entries[0].Amount)
	assert.Equal(t, server.Info().StakeKey, entries[0].PK)
}

func getCommittee(t *testing.T) {
	body, code := httpGet(t, "/committees/0")
	require.Equal(t, http.StatusOK, code)

	var members []stakes.Member
	require.NoError(t, json.Unmarshal(body, &members))
	require.NotEmpty(t, members)
	for i, m := range members {
		assert.Equal(t, uint64(i), m.Seat)
		assert.Equal(t, uint64(0), m.Index)
	}

	_, code = httpGet(t, "/committees/7")
	assert.Equal(t, http.StatusNotFound, code)
	_, code = httpGet(t, "/committees/x")
	assert.Equal(t, http.StatusBadRequest, code)
}

func getMissingBlock(t *testing.T) {
	body, code := httpGet(t, "/blocks/12")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "null\n", string(body))

	body, code = httpGet(t, "/blocks/12/light")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "null\n", string(body))
}

func getBadRevision(t *testing.T) {
	_, code := httpGet(t, "/blocks/abc")
	assert.Equal(t, http.StatusBadRequest, code)
	_, code = httpGet(t, "/blocks/1?expanded=maybe")
	assert.Equal(t, http.StatusBadRequest, code)
}

func getEmptyWallet(t *testing.T) {
	body, code := httpGet(t, "/wallet")
	require.Equal(t, http.StatusOK, code)

	var w wallet.Wallet
	require.NoError(t, json.Unmarshal(body, &w))
	assert.Zero(t, w.Balance)
	assert.Empty(t, w.Outputs)
	assert.Equal(t, server.Info().Account, w.Account)
}

func sendTransaction(t *testing.T) {
	trx, err := owner.Send(server.Info().Account, 30, 1)
	require.NoError(t, err)
	raw, err := rlp.EncodeToBytes(trx)
	require.NoError(t, err)

	body, code := httpPost(t, "/transactions", transactions.RawTx{Raw: hexutil.Encode(raw)})
	require.Equal(t, http.StatusOK, code, string(body))

	var res transactions.SendTxResult
	require.NoError(t, json.Unmarshal(body, &res))
	assert.Equal(t, trx.ID(), *res.ID)
	assert.Equal(t, 1, server.Info().Pooled)

	// resubmitting a pooled tx is not an error
	_, code = httpPost(t, "/transactions", transactions.RawTx{Raw: hexutil.Encode(raw)})
	assert.Equal(t, http.StatusOK, code)
}

func sendBadTransaction(t *testing.T) {
	_, code := httpPost(t, "/transactions", transactions.RawTx{Raw: "0xzz"})
	assert.Equal(t, http.StatusBadRequest, code)
	_, code = httpPost(t, "/transactions", transactions.RawTx{Raw: "0x0102"})
	assert.Equal(t, http.StatusBadRequest, code)
}

func unknownFieldRejected(t *testing.T) {
	_, code := httpPost(t, "/transactions", map[string]string{"raw": "0x", "extra": "1"})
	assert.Equal(t, http.StatusBadRequest, code)
}
