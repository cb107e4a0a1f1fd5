// Copyright (c) 2025 The Khora developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package wallet

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/sile/Khora-sub000/api/utils"
	"github.com/sile/Khora-sub000/cry"
	"github.com/sile/Khora-sub000/khora"
	"github.com/sile/Khora-sub000/node"
	"github.com/sile/Khora-sub000/tx"
)

// Source exposes the node's wallet.
type Source interface {
	Info() *node.Info
	Owned() []*tx.Owned
}

type Output struct {
	Index  uint64         `json:"index"`
	Amount uint64         `json:"amount"`
	Tag    *khora.Bytes32 `json:"tag"`
}

type Wallet struct {
	Account      cry.PublicKey `json:"account"`
	StakeKey     cry.PublicKey `json:"stakeKey"`
	Balance      uint64        `json:"balance"`
	StakeBalance uint64        `json:"stakeBalance"`
	StakeEntries []uint64      `json:"stakeEntries"`
	Outputs      []Output      `json:"outputs"`
}

type Handler struct {
	src Source
}

func New(src Source) *Handler {
	return &Handler{src}
}

func (h *Handler) handleGetWallet(w http.ResponseWriter, _ *http.Request) error {
	info := h.src.Info()
	owned := h.src.Owned()
	out := &Wallet{
		Account:      info.Account,
		StakeKey:     info.StakeKey,
		Balance:      info.Balance,
		StakeBalance: info.StakeBalance,
		StakeEntries: info.StakeEntries,
		Outputs:      make([]Output, len(owned)),
	}
	for i, o := range owned {
		tag := o.Tag
		out.Outputs[i] = Output{Index: o.Index, Amount: o.Amount, Tag: &tag}
	}
	return utils.WriteJSON(w, out)
}

func (h *Handler) Mount(root *mux.Router, pathPrefix string) {
	sub := root.PathPrefix(pathPrefix).Subrouter()
	sub.Path("").
		Methods(http.MethodGet).
		Name("GET /wallet").
		HandlerFunc(utils.WrapHandlerFunc(h.handleGetWallet))
}
