// Copyright (c) 2025 The Khora developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package transactions

import (
	"net/http"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/gorilla/mux"
	"github.com/pkg/errors"

	"github.com/sile/Khora-sub000/api/utils"
	"github.com/sile/Khora-sub000/consensus"
	"github.com/sile/Khora-sub000/khora"
	"github.com/sile/Khora-sub000/tx"
)

// Pool accepts transactions for gossip.
type Pool interface {
	SubmitTx(t *tx.Transaction) error
}

type RawTx struct {
	Raw string `json:"raw"`
}

type SendTxResult struct {
	ID *khora.Bytes32 `json:"id"`
}

type Transactions struct {
	pool Pool
}

func New(pool Pool) *Transactions {
	return &Transactions{pool}
}

func (t *Transactions) handleSendTransaction(w http.ResponseWriter, req *http.Request) error {
	var raw RawTx
	if err := utils.ParseJSON(req.Body, &raw); err != nil {
		return utils.BadRequest(errors.WithMessage(err, "body"))
	}
	data, err := hexutil.Decode(raw.Raw)
	if err != nil {
		return utils.BadRequest(errors.WithMessage(err, "raw"))
	}
	var trx tx.Transaction
	if err := rlp.DecodeBytes(data, &trx); err != nil {
		return utils.BadRequest(errors.WithMessage(err, "raw"))
	}

	if err := t.pool.SubmitTx(&trx); err != nil {
		switch consensus.KindOf(err) {
		case consensus.DoubleSpend:
			return utils.HTTPError(err, http.StatusConflict)
		case consensus.CryptoInvalid, consensus.ProtocolInvalid:
			return utils.HTTPError(err, http.StatusForbidden)
		}
		return err
	}
	id := trx.ID()
	return utils.WriteJSON(w, &SendTxResult{ID: &id})
}

func (t *Transactions) Mount(root *mux.Router, pathPrefix string) {
	sub := root.PathPrefix(pathPrefix).Subrouter()

	sub.Path("").
		Methods(http.MethodPost).
		Name("POST /transactions").
		HandlerFunc(utils.WrapHandlerFunc(t.handleSendTransaction))
}
