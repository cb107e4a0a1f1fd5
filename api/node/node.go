// Copyright (c) 2025 The Khora developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package node

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/sile/Khora-sub000/api/utils"
	knode "github.com/sile/Khora-sub000/node"
)

// Status is the source of the node snapshot.
type Status interface {
	Info() *knode.Info
}

type Node struct {
	status Status
}

func New(status Status) *Node {
	return &Node{status}
}

func (n *Node) handleNodeInfo(w http.ResponseWriter, _ *http.Request) error {
	return utils.WriteJSON(w, n.status.Info())
}

func (n *Node) Mount(root *mux.Router, pathPrefix string) {
	sub := root.PathPrefix(pathPrefix).Subrouter()

	sub.Path("").
		Methods(http.MethodGet).
		Name("GET /node").
		HandlerFunc(utils.WrapHandlerFunc(n.handleNodeInfo))
}
