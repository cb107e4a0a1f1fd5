// Copyright (c) 2025 The Khora developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/mattn/go-isatty"
	cli "gopkg.in/urfave/cli.v1"

	"github.com/sile/Khora-sub000/api"
	"github.com/sile/Khora-sub000/co"
	"github.com/sile/Khora-sub000/comm"
	"github.com/sile/Khora-sub000/log"
	"github.com/sile/Khora-sub000/node"
	"github.com/sile/Khora-sub000/wallet"
)

const version = "1.0"

var logger = log.WithContext("pkg", "khora")

func main() {
	app := cli.App{
		Version:   version,
		Name:      "khora",
		Usage:     "Node of the Khora network",
		ArgsUsage: "port [password] [save-history] [contact-server]",
		Copyright: "2025 The Khora developers",
		Flags: []cli.Flag{
			dataDirFlag,
			genesisFlag,
			dbEngineFlag,
			cacheFlag,
			bloomBitsFlag,
			ringSizeFlag,
			apiAddrFlag,
			apiCorsFlag,
			enableAPILogsFlag,
			verbosityFlag,
			jsonLogsFlag,
			maxPeersFlag,
			natFlag,
			bootNodeFlag,
			enableMetricsFlag,
			metricsAddrFlag,
			skipNTPFlag,
			noStdinFlag,
		},
		Action: defaultAction,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func defaultAction(ctx *cli.Context) error {
	a, err := parseArgs(ctx.Args())
	if err != nil {
		cli.ShowAppHelp(ctx)
		return err
	}
	initLogger(ctx)
	defer func() { logger.Info("exited") }()

	if a.password == "" {
		if !isatty.IsTerminal(os.Stdin.Fd()) {
			return cli.NewExitError("password required", 1)
		}
		if a.password, err = readPassword("Password: "); err != nil {
			return err
		}
	}
	keys := wallet.KeysFromPassword(a.password)

	gen := loadGenesis(ctx, keys)
	instanceDir := makeInstanceDir(ctx, gen, a.port)

	if ctx.Bool(enableMetricsFlag.Name) {
		url, close := startMetricsServer(ctx.String(metricsAddrFlag.Name))
		defer func() { logger.Info("stopping metrics server..."); close() }()
		logger.Info("metrics server started", "url", url)
	}

	var contacts []string
	if a.contact != "" {
		contacts = append(contacts, a.contact)
	}
	p2pSrv, peers := startP2PServer(ctx, instanceDir, a.port, contacts)
	defer func() { logger.Info("stopping P2P server..."); p2pSrv.Stop() }()

	n, err := node.New(node.Options{
		Genesis:    gen,
		Keys:       keys,
		Bus:        p2pSrv,
		DataDir:    instanceDir,
		Store:      openStore(ctx, instanceDir),
		BloomBits:  ctx.Uint64(bloomBitsFlag.Name),
		RingSize:   ctx.Int(ringSizeFlag.Name),
		LightOnly:  !a.saveHistory,
		SyncSource: comm.PeerID(a.contact),
		Contacts:   peers,
	})
	if err != nil {
		return err
	}
	defer func() {
		logger.Info("saving checkpoint...")
		if err := n.Save(); err != nil {
			logger.Error("failed to save checkpoint", "err", err)
		}
		n.Close()
	}()

	apiURL := ""
	if addr := ctx.String(apiAddrFlag.Name); addr != "" {
		reqLogger := &atomic.Bool{}
		reqLogger.Store(ctx.Bool(enableAPILogsFlag.Name))
		handler := api.New(n, api.Options{
			AllowedOrigins:       ctx.String(apiCorsFlag.Name),
			EnableMetrics:        ctx.Bool(enableMetricsFlag.Name),
			EnableReqLogger:      reqLogger,
			SlowQueriesThreshold: time.Second,
		})
		var close func()
		apiURL, close = startServer(addr, handler)
		defer func() { logger.Info("stopping API server..."); close() }()
	}

	printStartupMessage(gen, keys, instanceDir, string(p2pSrv.Self()), apiURL)

	exit, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var goes co.Goes
	defer goes.Wait()
	if !ctx.Bool(skipNTPFlag.Name) {
		params := n.Params()
		goes.Go(func() { checkClockOffset(params.ResponseTimeout) })
	}
	if !ctx.Bool(noStdinFlag.Name) {
		c := &console{
			node:     n,
			out:      os.Stdout,
			syncPeer: comm.PeerID(a.contact),
			peers:    func() []comm.PeerID { return p2pSrv.Peers(comm.Outer) },
		}
		// the reader blocks on stdin, so it is not waited for
		go c.run(exit, os.Stdin)
	}

	return n.Run(exit)
}
