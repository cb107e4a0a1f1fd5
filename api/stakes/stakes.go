// Copyright (c) 2025 The Khora developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package stakes

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/sile/Khora-sub000/api/utils"
	"github.com/sile/Khora-sub000/cry"
	"github.com/sile/Khora-sub000/stake"
)

// Source reads the stake set and the shard committees.
type Source interface {
	Stakes() stake.Set
	// Committee fails only for an unknown shard.
	Committee(shard uint64) ([]uint64, error)
}

type Entry struct {
	Index  uint64        `json:"index"`
	PK     cry.PublicKey `json:"pk"`
	Amount uint64        `json:"amount"`
}

type Member struct {
	Seat uint64 `json:"seat"`
	Entry
}

type Stakes struct {
	src Source
}

func New(src Source) *Stakes {
	return &Stakes{src}
}

func (s *Stakes) handleGetStakes(w http.ResponseWriter, _ *http.Request) error {
	set := s.src.Stakes()
	out := make([]Entry, len(set))
	for i, e := range set {
		out[i] = Entry{Index: uint64(i), PK: e.PK, Amount: e.Amount}
	}
	return utils.WriteJSON(w, out)
}

func (s *Stakes) handleGetCommittee(w http.ResponseWriter, req *http.Request) error {
	shard, err := utils.ParseUint(mux.Vars(req)["shard"], "shard")
	if err != nil {
		return err
	}
	committee, err := s.src.Committee(shard)
	if err != nil {
		return utils.NotFound(err)
	}
	set := s.src.Stakes()
	out := make([]Member, 0, len(committee))
	for seat, idx := range committee {
		m := Member{Seat: uint64(seat), Entry: Entry{Index: idx}}
		if idx < uint64(len(set)) {
			m.PK, m.Amount = set[idx].PK, set[idx].Amount
		}
		out = append(out, m)
	}
	return utils.WriteJSON(w, out)
}

// Mount serves /stakes and /committees/{shard} from the root.
func (s *Stakes) Mount(root *mux.Router) {
	root.Path("/stakes").
		Methods(http.MethodGet).
		Name("GET /stakes").
		HandlerFunc(utils.WrapHandlerFunc(s.handleGetStakes))
	root.Path("/committees/{shard}").
		Methods(http.MethodGet).
		Name("GET /committees/{shard}").
		HandlerFunc(utils.WrapHandlerFunc(s.handleGetCommittee))
}
