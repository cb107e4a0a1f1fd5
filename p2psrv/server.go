// Copyright (c) 2025 The Khora developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package p2psrv implements comm.Bus over the devp2p transport.
package p2psrv

import (
	"slices"
	"sync"

	"github.com/ethereum/go-ethereum/p2p"
	"github.com/ethereum/go-ethereum/p2p/enode"
	"github.com/pkg/errors"
	"github.com/sile/Khora-sub000/cache"
	"github.com/sile/Khora-sub000/co"
	"github.com/sile/Khora-sub000/comm"
	"github.com/sile/Khora-sub000/khora"
	"github.com/sile/Khora-sub000/log"
)

var logger = log.WithContext("pkg", "p2psrv")

const (
	// ProtocolName is the devp2p capability name.
	ProtocolName    = "khr"
	ProtocolVersion = 1

	defaultInboxSize = 4096
	seenLimit        = 8192
)

var _ comm.Bus = (*Server)(nil)

// Server p2p server wraps ethereum's p2p.Server and exposes it as a gossip bus.
type Server struct {
	opts     Options
	srv      *p2p.Server
	notifier *co.Notifier
	seen     *cache.RandSet[khora.Bytes32]

	mu       sync.Mutex
	sessions map[enode.ID]*session
	inner    map[enode.ID]bool
	joined   bool
	inbox    []comm.Inbound
}

// New create a p2p server.
func New(opts *Options) *Server {
	o := *opts
	if o.InboxSize <= 0 {
		o.InboxSize = defaultInboxSize
	}
	if o.MaxPeers <= 0 {
		o.MaxPeers = 25
	}
	return &Server{
		opts:     o,
		notifier: co.NewNotifier(),
		seen:     cache.NewRandSet[khora.Bytes32](seenLimit),
		sessions: make(map[enode.ID]*session),
		inner:    make(map[enode.ID]bool),
	}
}

// Start start the server.
func (s *Server) Start() error {
	s.srv = &p2p.Server{
		Config: p2p.Config{
			Name:        s.opts.Name,
			PrivateKey:  s.opts.PrivateKey,
			MaxPeers:    s.opts.MaxPeers,
			NoDiscovery: true,
			ListenAddr:  s.opts.ListenAddr,
			StaticNodes: s.opts.StaticNodes,
			NAT:         s.opts.NAT,
			NoDial:      s.opts.NoDial,
			Protocols: []p2p.Protocol{{
				Name:    ProtocolName,
				Version: ProtocolVersion,
				Length:  codeCount,
				Run:     s.runProtocol,
			}},
		},
	}
	if err := s.srv.Start(); err != nil {
		return errors.Wrap(err, "start p2p server")
	}
	logger.Info("p2p server started", "self", s.srv.Self().URLv4())
	return nil
}

// Stop stop the server.
func (s *Server) Stop() {
	if s.srv != nil {
		s.srv.Stop()
	}
}

func (s *Server) runProtocol(peer *p2p.Peer, rw p2p.MsgReadWriter) error {
	ss := newSession(peer, rw)

	s.mu.Lock()
	s.sessions[peer.ID()] = ss
	metricConnectedPeers().Set(int64(len(s.sessions)))
	s.mu.Unlock()
	logger.Debug("peer connected", "peer", peer.ID().TerminalString())

	defer func() {
		s.mu.Lock()
		delete(s.sessions, peer.ID())
		metricConnectedPeers().Set(int64(len(s.sessions)))
		s.mu.Unlock()
		logger.Debug("peer disconnected", "peer", peer.ID().TerminalString())
	}()

	for {
		in, err := ss.read()
		if err != nil {
			return err
		}
		s.push(in)
	}
}

func (s *Server) push(in comm.Inbound) {
	if in.Msg.Tag == comm.TagTx && !s.seen.Add(in.Msg.Digest()) {
		return
	}
	s.mu.Lock()
	if in.Overlay == comm.Inner && !s.joined {
		s.mu.Unlock()
		return
	}
	if len(s.inbox) >= s.opts.InboxSize {
		s.inbox = s.inbox[1:]
		metricDroppedInbound().Add(1)
	}
	s.inbox = append(s.inbox, in)
	s.mu.Unlock()

	comm.CountMessage(in.Overlay, in.Msg.Tag, "in")
	s.notifier.Notify()
}

// Self returns self enode url.
// Only available when server is running.
func (s *Server) Self() comm.PeerID {
	if s.srv == nil {
		return ""
	}
	return comm.PeerID(s.srv.Self().URLv4())
}

func (s *Server) targets(o comm.Overlay, to []comm.PeerID) []*session {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*session
	if to == nil {
		for id, ss := range s.sessions {
			if o == comm.Inner && !s.inner[id] {
				continue
			}
			out = append(out, ss)
		}
		return out
	}
	for _, id := range to {
		node, err := enode.Parse(enode.ValidSchemes, string(id))
		if err != nil {
			continue
		}
		if ss, ok := s.sessions[node.ID()]; ok {
			out = append(out, ss)
		}
	}
	return out
}

func (s *Server) sendTo(o comm.Overlay, sessions []*session, m comm.Message) {
	comm.CountMessage(o, m.Tag, "out")
	for _, ss := range sessions {
		if err := ss.send(o, m); err != nil {
			logger.Debug("failed to send", "peer", ss.peer.ID().TerminalString(), "tag", m.Tag, "err", err)
		}
	}
}

func (s *Server) Broadcast(o comm.Overlay, m comm.Message) {
	if o == comm.Inner {
		s.mu.Lock()
		joined := s.joined
		s.mu.Unlock()
		if !joined {
			return
		}
	}
	s.sendTo(o, s.targets(o, nil), m)
}

func (s *Server) Send(o comm.Overlay, to []comm.PeerID, m comm.Message) {
	if len(to) == 0 {
		return
	}
	s.sendTo(o, s.targets(o, to), m)
}

func (s *Server) Peers(o comm.Overlay) []comm.PeerID {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ids []comm.PeerID
	for id, ss := range s.sessions {
		if o == comm.Inner && !s.inner[id] {
			continue
		}
		ids = append(ids, ss.id)
	}
	slices.Sort(ids)
	return ids
}

// Join dials the given enode urls. Joining Inner also admits them to the committee overlay.
func (s *Server) Join(o comm.Overlay, peers []comm.PeerID) {
	s.mu.Lock()
	if o == comm.Inner {
		s.joined = true
	}
	s.mu.Unlock()

	for _, id := range peers {
		node, err := enode.Parse(enode.ValidSchemes, string(id))
		if err != nil {
			logger.Debug("invalid peer", "peer", id, "err", err)
			continue
		}
		if o == comm.Inner {
			s.mu.Lock()
			s.inner[node.ID()] = true
			s.mu.Unlock()
		}
		if s.srv != nil && node.ID() != s.srv.Self().ID() {
			s.srv.AddPeer(node)
		}
	}
}

func (s *Server) Leave(o comm.Overlay) {
	if o != comm.Inner {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.joined = false
	clear(s.inner)
}

func (s *Server) Poll() (comm.Inbound, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.inbox) == 0 {
		return comm.Inbound{}, false
	}
	in := s.inbox[0]
	s.inbox = s.inbox[1:]
	return in, true
}

func (s *Server) Notify() <-chan struct{} {
	return s.notifier.C()
}
