// Copyright (c) 2025 The Khora developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package main

import (
	"bytes"
	"context"
	"runtime"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	cli "gopkg.in/urfave/cli.v1"

	"github.com/sile/Khora-sub000/comm"
	"github.com/sile/Khora-sub000/cry"
	"github.com/sile/Khora-sub000/node"
	"github.com/sile/Khora-sub000/tx"
)

type fakeNode struct {
	calls   []string
	to      cry.PublicKey
	amount  uint64
	fee     uint64
	synced  comm.PeerID
	sendErr error
}

func (f *fakeNode) Info() *node.Info {
	f.calls = append(f.calls, "info")
	return &node.Info{Height: 7, Role: "validator"}
}

func (f *fakeNode) Send(to cry.PublicKey, amount, fee uint64) (*tx.Transaction, error) {
	f.calls = append(f.calls, "send")
	f.to, f.amount, f.fee = to, amount, fee
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	return tx.New(nil, nil, nil, fee), nil
}

func (f *fakeNode) Stake(amount, fee uint64) (*tx.Transaction, error) {
	f.calls = append(f.calls, "stake")
	f.amount, f.fee = amount, fee
	return tx.New(nil, nil, nil, fee), nil
}

func (f *fakeNode) Unstake(index, fee uint64) (*tx.Transaction, error) {
	f.calls = append(f.calls, "unstake")
	f.amount, f.fee = index, fee
	return tx.New(nil, nil, nil, fee), nil
}

func (f *fakeNode) Save() error {
	f.calls = append(f.calls, "save")
	return nil
}

func (f *fakeNode) RequestSync(peer comm.PeerID) {
	f.calls = append(f.calls, "sync")
	f.synced = peer
}

func (f *fakeNode) ResetToGenesis() error {
	f.calls = append(f.calls, "reset")
	return nil
}

func newConsole(peers ...comm.PeerID) (*console, *fakeNode, *bytes.Buffer) {
	f := &fakeNode{}
	out := &bytes.Buffer{}
	return &console{
		node:  f,
		out:   out,
		peers: func() []comm.PeerID { return peers },
	}, f, out
}

func TestConsoleSend(t *testing.T) {
	c, f, out := newConsole()
	pk := cry.KeyFromSeed([]byte("to")).Public()

	require.NoError(t, c.exec("send 0x"+pk.String()+" 25"))
	assert.Equal(t, pk, f.to)
	assert.Equal(t, uint64(25), f.amount)
	assert.Equal(t, uint64(defaultFee), f.fee)
	assert.Contains(t, out.String(), "submitted")

	require.NoError(t, c.exec("SEND "+pk.String()+" 3 9"))
	assert.Equal(t, uint64(9), f.fee)

	assert.Error(t, c.exec("send "+pk.String()))
	assert.Error(t, c.exec("send zz 1"))
	assert.Error(t, c.exec("send "+pk.String()+" -1"))
	assert.Error(t, c.exec("send "+pk.String()+" 1 x"))

	f.sendErr = errors.New("insufficient funds")
	assert.EqualError(t, c.exec("send "+pk.String()+" 1"), "insufficient funds")
}

func TestConsoleStakeUnstake(t *testing.T) {
	c, f, _ := newConsole()

	require.NoError(t, c.exec("stake 100"))
	assert.Equal(t, uint64(100), f.amount)
	require.NoError(t, c.exec("unstake 2 5"))
	assert.Equal(t, uint64(2), f.amount)
	assert.Equal(t, uint64(5), f.fee)

	assert.Error(t, c.exec("stake"))
	assert.Error(t, c.exec("unstake 1 2 3"))
	assert.Equal(t, []string{"stake", "unstake"}, f.calls)
}

func TestConsoleSync(t *testing.T) {
	c, f, _ := newConsole()
	assert.Error(t, c.exec("sync"))

	require.NoError(t, c.exec("sync peer-a"))
	assert.Equal(t, comm.PeerID("peer-a"), f.synced)

	c, f, _ = newConsole("peer-b", "peer-c")
	require.NoError(t, c.exec("sync"))
	assert.Equal(t, comm.PeerID("peer-b"), f.synced)

	c.syncPeer = "contact"
	require.NoError(t, c.exec("sync"))
	assert.Equal(t, comm.PeerID("contact"), f.synced)
}

func TestConsoleRun(t *testing.T) {
	c, f, out := newConsole()
	input := strings.Join([]string{"info", "", "save", "bogus", "reset", "help"}, "\n")
	c.run(context.Background(), strings.NewReader(input))

	assert.Equal(t, []string{"info", "save", "reset"}, f.calls)
	assert.Contains(t, out.String(), `"height": 7`)
	assert.Contains(t, out.String(), `error: unknown command "bogus"`)
	assert.Contains(t, out.String(), "reset to genesis")
	assert.Contains(t, out.String(), "commands:")
}

func TestConsoleRunCanceled(t *testing.T) {
	c, f, _ := newConsole()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c.run(ctx, strings.NewReader("save\n"))
	assert.Empty(t, f.calls)
}

func TestParseArgs(t *testing.T) {
	cases := []struct {
		in   []string
		want *args
	}{
		{[]string{"9000"}, &args{port: 9000}},
		{[]string{"9000", "pw"}, &args{port: 9000, password: "pw"}},
		{[]string{"9000", "pw", "true"}, &args{port: 9000, password: "pw", saveHistory: true}},
		{[]string{"9000", "pw", "0"}, &args{port: 9000, password: "pw"}},
		{[]string{"9000", "pw", "1.2.3.4:9000"}, &args{port: 9000, password: "pw", contact: "1.2.3.4:9000"}},
		{[]string{"9000", "pw", "yes", "c"}, &args{port: 9000, password: "pw", saveHistory: true, contact: "c"}},
	}
	for _, tc := range cases {
		got, err := parseArgs(cli.Args(tc.in))
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}

	for _, bad := range [][]string{
		nil,
		{"x"},
		{"0"},
		{"70000"},
		{"9000", "pw", "maybe", "c"},
		{"9000", "pw", "1", "c", "extra"},
	} {
		_, err := parseArgs(cli.Args(bad))
		assert.Error(t, err, bad)
	}
}

func TestMakeName(t *testing.T) {
	name := makeName("khora")
	assert.True(t, strings.HasPrefix(name, "khora/v"+version+"/"+runtime.GOOS+"/"), name)
	assert.True(t, strings.HasSuffix(name, "/"+runtime.Version()), name)
}
