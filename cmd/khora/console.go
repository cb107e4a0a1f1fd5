// Copyright (c) 2025 The Khora developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/sile/Khora-sub000/comm"
	"github.com/sile/Khora-sub000/cry"
	"github.com/sile/Khora-sub000/node"
	"github.com/sile/Khora-sub000/tx"
)

const defaultFee = 1

// commander is the part of the node driven from stdin.
type commander interface {
	Info() *node.Info
	Send(to cry.PublicKey, amount, fee uint64) (*tx.Transaction, error)
	Stake(amount, fee uint64) (*tx.Transaction, error)
	Unstake(index, fee uint64) (*tx.Transaction, error)
	Save() error
	RequestSync(peer comm.PeerID)
	ResetToGenesis() error
}

type console struct {
	node     commander
	out      io.Writer
	syncPeer comm.PeerID
	peers    func() []comm.PeerID
}

const usage = `commands:
  send <pk> <amount> [fee]   pay an account
  stake <amount> [fee]       deposit a stake entry
  unstake <index> [fee]      withdraw a stake entry
  info                       print the node status
  save                       write a checkpoint
  sync [peer]                request blocks from a peer
  reset                      drop the chain and start from genesis
`

// run executes lines from r until it is exhausted or ctx is done.
func (c *console) run(ctx context.Context, r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		if err := c.exec(scanner.Text()); err != nil {
			fmt.Fprintln(c.out, "error:", err)
		}
	}
}

func parseAmounts(fields []string, name string) (uint64, uint64, error) {
	if len(fields) < 1 || len(fields) > 2 {
		return 0, 0, errors.Errorf("usage: %s", name)
	}
	v, err := strconv.ParseUint(fields[0], 10, 64)
	if err != nil {
		return 0, 0, errors.WithMessage(err, name)
	}
	fee := uint64(defaultFee)
	if len(fields) == 2 {
		if fee, err = strconv.ParseUint(fields[1], 10, 64); err != nil {
			return 0, 0, errors.WithMessage(err, "fee")
		}
	}
	return v, fee, nil
}

func (c *console) printTx(t *tx.Transaction) {
	fmt.Fprintf(c.out, "submitted %v (%d bytes)\n", t.ID(), t.Size())
}

func (c *console) exec(line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	switch cmd, rest := strings.ToLower(fields[0]), fields[1:]; cmd {
	case "send":
		if len(rest) < 2 {
			return errors.New("usage: send <pk> <amount> [fee]")
		}
		var to cry.PublicKey
		if err := to.UnmarshalText([]byte(strings.TrimPrefix(rest[0], "0x"))); err != nil {
			return errors.WithMessage(err, "pk")
		}
		amount, fee, err := parseAmounts(rest[1:], "amount")
		if err != nil {
			return err
		}
		t, err := c.node.Send(to, amount, fee)
		if err != nil {
			return err
		}
		c.printTx(t)
	case "stake":
		amount, fee, err := parseAmounts(rest, "amount")
		if err != nil {
			return err
		}
		t, err := c.node.Stake(amount, fee)
		if err != nil {
			return err
		}
		c.printTx(t)
	case "unstake":
		index, fee, err := parseAmounts(rest, "index")
		if err != nil {
			return err
		}
		t, err := c.node.Unstake(index, fee)
		if err != nil {
			return err
		}
		c.printTx(t)
	case "info":
		data, err := json.MarshalIndent(c.node.Info(), "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(c.out, string(data))
	case "save":
		if err := c.node.Save(); err != nil {
			return err
		}
		fmt.Fprintln(c.out, "saved")
	case "sync":
		peer := c.syncPeer
		if len(rest) > 0 {
			peer = comm.PeerID(rest[0])
		}
		if peer == "" && c.peers != nil {
			if peers := c.peers(); len(peers) > 0 {
				peer = peers[0]
			}
		}
		if peer == "" {
			return errors.New("no peer to sync from")
		}
		c.node.RequestSync(peer)
		fmt.Fprintln(c.out, "sync requested from", peer)
	case "reset":
		if err := c.node.ResetToGenesis(); err != nil {
			return err
		}
		fmt.Fprintln(c.out, "reset to genesis")
	case "help":
		fmt.Fprint(c.out, usage)
	default:
		return errors.Errorf("unknown command %q, try help", cmd)
	}
	return nil
}
