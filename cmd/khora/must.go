// Copyright (c) 2025 The Khora developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package main

import (
	"crypto/ecdsa"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/user"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/beevik/ntp"
	"github.com/elastic/gosigar"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/p2p/enode"
	"github.com/ethereum/go-ethereum/p2p/nat"
	"github.com/mattn/go-tty"
	"github.com/pkg/errors"
	cli "gopkg.in/urfave/cli.v1"

	"github.com/sile/Khora-sub000/co"
	"github.com/sile/Khora-sub000/comm"
	"github.com/sile/Khora-sub000/genesis"
	"github.com/sile/Khora-sub000/khora"
	"github.com/sile/Khora-sub000/kv"
	"github.com/sile/Khora-sub000/kv/pebbledb"
	"github.com/sile/Khora-sub000/log"
	"github.com/sile/Khora-sub000/lvldb"
	"github.com/sile/Khora-sub000/metrics"
	"github.com/sile/Khora-sub000/p2psrv"
	"github.com/sile/Khora-sub000/wallet"
)

func fatal(args ...any) {
	var w io.Writer
	if runtime.GOOS == "windows" {
		// The SameFile check below doesn't work on Windows.
		// stdout is unlikely to get redirected though, so just print there.
		w = os.Stdout
	} else {
		outf, _ := os.Stdout.Stat()
		errf, _ := os.Stderr.Stat()
		if outf != nil && errf != nil && os.SameFile(outf, errf) {
			w = os.Stderr
		} else {
			w = io.MultiWriter(os.Stdout, os.Stderr)
		}
	}
	fmt.Fprint(w, "Fatal: ")
	fmt.Fprintln(w, args...)
	os.Exit(1)
}

func initLogger(ctx *cli.Context) {
	lvl := &slog.LevelVar{}
	lvl.Set(log.FromLegacyLevel(int(ctx.Uint64(verbosityFlag.Name))))
	log.SetDefault(log.NewLogger(log.NewStderrHandler(ctx.Bool(jsonLogsFlag.Name), lvl)))
}

// makeName builds a node name like khora/v1.0/linux/go1.25.
func makeName(name string) string {
	return fmt.Sprintf("%s/v%s/%s/%s", name, version, runtime.GOOS, runtime.Version())
}

func homeDir() string {
	if home := os.Getenv("HOME"); home != "" {
		return home
	}
	if usr, err := user.Current(); err == nil {
		return usr.HomeDir
	}
	return ""
}

func defaultDataDir() string {
	if home := homeDir(); home != "" {
		return filepath.Join(home, ".khora")
	}
	return ""
}

// args are the positional arguments: port password [save-history] [contact-server].
type args struct {
	port        int
	password    string
	saveHistory bool
	contact     string
}

func parseArgs(a cli.Args) (*args, error) {
	if len(a) < 1 || len(a) > 4 {
		return nil, errors.New("expected: port [password] [save-history] [contact-server]")
	}
	port, err := strconv.Atoi(a[0])
	if err != nil || port <= 0 || port > 65535 {
		return nil, errors.Errorf("invalid port %q", a[0])
	}
	out := &args{port: port}
	if len(a) > 1 {
		out.password = a[1]
	}
	if len(a) > 2 {
		switch strings.ToLower(a[2]) {
		case "1", "true", "yes", "y":
			out.saveHistory = true
		case "0", "false", "no", "n", "":
		default:
			// a contact server given without the flag
			if len(a) == 3 {
				out.contact = a[2]
				return out, nil
			}
			return nil, errors.Errorf("invalid save-history %q", a[2])
		}
	}
	if len(a) > 3 {
		out.contact = a[3]
	}
	return out, nil
}

// readPassword prompts on the controlling terminal.
func readPassword(prompt string) (string, error) {
	t, err := tty.Open()
	if err != nil {
		return "", err
	}
	defer t.Close()
	fmt.Fprint(t.Output(), prompt)
	return t.ReadPassword()
}

func makeInstanceDir(ctx *cli.Context, gen *genesis.Genesis, port int) string {
	dataDir := ctx.String(dataDirFlag.Name)
	if dataDir == "" {
		fatal(fmt.Sprintf("unable to infer default data dir, use -%s to specify", dataDirFlag.Name))
	}
	name := gen.Name()
	instanceDir := filepath.Join(dataDir, fmt.Sprintf("instance-%x-%d", name[:4], port))
	if err := os.MkdirAll(instanceDir, 0o700); err != nil {
		fatal(fmt.Sprintf("create data dir [%v]: %v", instanceDir, err))
	}
	return instanceDir
}

func loadGenesis(ctx *cli.Context, keys *wallet.Keys) *genesis.Genesis {
	if path := ctx.String(genesisFlag.Name); path != "" {
		gen, err := genesis.Load(path)
		if err != nil {
			fatal(fmt.Sprintf("load genesis [%v]: %v", path, err))
		}
		return gen
	}
	// a private single-node network funding this node's own account
	gen, err := genesis.Dev("dev", khora.DevParams(1), 1,
		[]genesis.Stake{{PK: keys.Stake.Public(), Amount: 1_000}},
		genesis.Alloc{Owner: keys.Account.Public(), Amount: 1_000_000},
	)
	if err != nil {
		fatal(fmt.Sprintf("build dev genesis: %v", err))
	}
	return gen
}

// openStore opens the block store under dir. The files engine is left to the node,
// which lays out one file per block.
func openStore(ctx *cli.Context, dir string) kv.Store {
	engine := ctx.String(dbEngineFlag.Name)
	switch engine {
	case "files", "":
		return nil
	case "leveldb":
		cacheMB := normalizeCacheSize(ctx.Int(cacheFlag.Name))
		logger.Debug("cache size(MB)", "size", cacheMB)
		path := filepath.Join(dir, "blocks.db")
		db, err := lvldb.New(path, lvldb.Options{
			CacheSize:              cacheMB,
			OpenFilesCacheCapacity: 500,
		})
		if err != nil {
			fatal(fmt.Sprintf("open block database [%v]: %v", path, err))
		}
		return db
	case "pebble":
		path := filepath.Join(dir, "blocks.pebble")
		db, err := pebbledb.Open(path)
		if err != nil {
			fatal(fmt.Sprintf("open block database [%v]: %v", path, err))
		}
		return db
	}
	fatal(fmt.Sprintf("unknown db engine %q", engine))
	return nil
}

func normalizeCacheSize(sizeMB int) int {
	if sizeMB < 16 {
		sizeMB = 16
	}

	var mem gosigar.Mem
	if err := mem.Get(); err != nil {
		logger.Warn("failed to get total mem:", "err", err)
	} else {
		// limit to 1/2 os physical ram
		limitMB := int(mem.Total / 1024 / 1024 / 2)
		if sizeMB > limitMB {
			sizeMB = limitMB
			logger.Warn("cache size(MB) limited", "limit", limitMB)
		}
	}
	return sizeMB
}

func loadNodeKey(dir string) (*ecdsa.PrivateKey, error) {
	keyFile := filepath.Join(dir, "node.key")
	if key, err := crypto.LoadECDSA(keyFile); err == nil {
		return key, nil
	} else if !os.IsNotExist(err) {
		return nil, err
	}
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, err
	}
	if err := crypto.SaveECDSA(keyFile, key); err != nil {
		return nil, err
	}
	return key, nil
}

func parseEnodes(list []string) ([]*enode.Node, []comm.PeerID) {
	var (
		nodes []*enode.Node
		ids   []comm.PeerID
	)
	for _, s := range list {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		n, err := enode.Parse(enode.ValidSchemes, s)
		if err != nil {
			fatal(fmt.Sprintf("parse enode [%v]: %v", s, err))
		}
		nodes = append(nodes, n)
		ids = append(ids, comm.PeerID(s))
	}
	return nodes, ids
}

func startP2PServer(ctx *cli.Context, dir string, port int, contacts []string) (*p2psrv.Server, []comm.PeerID) {
	key, err := loadNodeKey(dir)
	if err != nil {
		fatal(fmt.Sprintf("load or generate node key: %v", err))
	}
	natm, err := nat.Parse(ctx.String(natFlag.Name))
	if err != nil {
		fatal(fmt.Sprintf("parse -%s flag: %v", natFlag.Name, err))
	}
	boot := strings.Split(ctx.String(bootNodeFlag.Name), ",")
	static, _ := parseEnodes(boot)
	_, peers := parseEnodes(append(boot, contacts...))

	srv := p2psrv.New(&p2psrv.Options{
		Name:        makeName("khora"),
		PrivateKey:  key,
		MaxPeers:    ctx.Int(maxPeersFlag.Name),
		ListenAddr:  fmt.Sprintf(":%d", port),
		StaticNodes: static,
		NAT:         natm,
	})
	if err := srv.Start(); err != nil {
		fatal(fmt.Sprintf("start P2P server: %v", err))
	}
	return srv, peers
}

func startServer(addr string, handler http.Handler) (string, func()) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		fatal(fmt.Sprintf("listen [%v]: %v", addr, err))
	}
	srv := &http.Server{Handler: handler, ReadHeaderTimeout: 10 * time.Second}
	var goes co.Goes
	goes.Go(func() {
		srv.Serve(listener)
	})
	return "http://" + listener.Addr().String() + "/", func() {
		srv.Close()
		goes.Wait()
	}
}

func startMetricsServer(addr string) (string, func()) {
	metrics.InitializePrometheusMetrics()
	return startServer(addr, metrics.HTTPHandler())
}

// checkClockOffset warns when the local clock is far off. Protocol timers are local,
// so this is advisory only.
func checkClockOffset(limit time.Duration) {
	resp, err := ntp.Query("pool.ntp.org")
	if err != nil {
		logger.Debug("failed to access NTP", "err", err)
		return
	}
	offset := resp.ClockOffset
	if offset < 0 {
		offset = -offset
	}
	if offset > limit {
		logger.Warn("clock offset detected", "offset", common.PrettyDuration(resp.ClockOffset))
	}
}

func printStartupMessage(gen *genesis.Genesis, keys *wallet.Keys, dir, self, apiURL string) {
	fmt.Printf(`Starting %v
    Network      [ %v ]
    Account      [ %v ]
    Stake key    [ %v ]
    Instance dir [ %v ]
    Node         [ %v ]
    API portal   [ %v ]
`,
		makeName("Khora"),
		gen.Name(),
		keys.Account.Public(),
		keys.Stake.Public(),
		dir,
		self,
		apiURL)
}
