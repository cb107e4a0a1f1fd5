// Copyright (c) 2025 The Khora developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package blocks

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"

	"github.com/sile/Khora-sub000/api/utils"
	"github.com/sile/Khora-sub000/block"
)

// Chain reads stored blocks.
type Chain interface {
	Height() uint64
	Block(num uint64) (*block.Block, error)
	Light(num uint64) (*block.LightBlock, error)
	IsNotFound(err error) bool
}

type Blocks struct {
	chain Chain
}

func New(chain Chain) *Blocks {
	return &Blocks{chain}
}

func (b *Blocks) parseRevision(req *http.Request) (uint64, error) {
	rev := mux.Vars(req)["revision"]
	if rev == "" || rev == "best" {
		return b.chain.Height(), nil
	}
	return utils.ParseUint(rev, "revision")
}

func (b *Blocks) handleGetBlock(w http.ResponseWriter, req *http.Request) error {
	num, err := b.parseRevision(req)
	if err != nil {
		return err
	}
	expanded := req.URL.Query().Get("expanded")
	if expanded != "" && expanded != "false" && expanded != "true" {
		return utils.BadRequest(errors.WithMessage(errors.New("should be boolean"), "expanded"))
	}

	blk, err := b.chain.Block(num)
	if err != nil {
		if !b.chain.IsNotFound(err) {
			return err
		}
		// only the light form is kept for some heights
		lb, err := b.chain.Light(num)
		if err != nil {
			if b.chain.IsNotFound(err) {
				return utils.WriteJSON(w, nil)
			}
			return err
		}
		return utils.WriteJSON(w, convertLight(lb))
	}
	return utils.WriteJSON(w, convertBlock(blk, expanded == "true"))
}

func (b *Blocks) handleGetLight(w http.ResponseWriter, req *http.Request) error {
	num, err := b.parseRevision(req)
	if err != nil {
		return err
	}
	lb, err := b.chain.Light(num)
	if err != nil {
		if b.chain.IsNotFound(err) {
			return utils.WriteJSON(w, nil)
		}
		return err
	}
	return utils.WriteJSON(w, convertLight(lb))
}

func (b *Blocks) Mount(root *mux.Router, pathPrefix string) {
	sub := root.PathPrefix(pathPrefix).Subrouter()
	sub.Path("/{revision}").
		Methods(http.MethodGet).
		Name("GET /blocks/{revision}").
		HandlerFunc(utils.WrapHandlerFunc(b.handleGetBlock))
	sub.Path("/{revision}/light").
		Methods(http.MethodGet).
		Name("GET /blocks/{revision}/light").
		HandlerFunc(utils.WrapHandlerFunc(b.handleGetLight))
}
