// Copyright (c) 2025 The Khora developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package api serves the node over HTTP.
package api

import (
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/sile/Khora-sub000/api/blocks"
	"github.com/sile/Khora-sub000/api/middleware"
	"github.com/sile/Khora-sub000/api/node"
	"github.com/sile/Khora-sub000/api/stakes"
	"github.com/sile/Khora-sub000/api/transactions"
	"github.com/sile/Khora-sub000/api/wallet"
	"github.com/sile/Khora-sub000/log"
	"github.com/sile/Khora-sub000/metrics"
)

var logger = log.WithContext("pkg", "api")

// Backend is everything the api reads from or submits to. *node.Node implements it.
type Backend interface {
	node.Status
	blocks.Chain
	stakes.Source
	wallet.Source
	transactions.Pool
}

type Options struct {
	AllowedOrigins       string
	EnableMetrics        bool
	EnableReqLogger      *atomic.Bool
	SlowQueriesThreshold time.Duration
}

// New return api router
func New(backend Backend, opts Options) http.HandlerFunc {
	origins := strings.Split(strings.TrimSpace(opts.AllowedOrigins), ",")
	for i, o := range origins {
		origins[i] = strings.ToLower(strings.TrimSpace(o))
	}

	router := mux.NewRouter()

	node.New(backend).
		Mount(router, "/node")
	blocks.New(backend).
		Mount(router, "/blocks")
	stakes.New(backend).
		Mount(router)
	wallet.New(backend).
		Mount(router, "/wallet")
	transactions.New(backend).
		Mount(router, "/transactions")

	if opts.EnableMetrics {
		router.Use(metricsMiddleware)
		if metrics.Enabled() {
			router.Path("/metrics").Methods(http.MethodGet).Handler(metrics.HTTPHandler())
		}
	}

	reqLogger := opts.EnableReqLogger
	if reqLogger == nil {
		reqLogger = &atomic.Bool{}
	}
	router.Use(middleware.RequestLoggerMiddleware(logger, reqLogger, opts.SlowQueriesThreshold))

	handler := handlers.CompressHandler(router)
	handler = handlers.CORS(
		handlers.AllowedOrigins(origins),
		handlers.AllowedHeaders([]string{"content-type"}),
	)(handler)
	handler = handlers.RecoveryHandler(handlers.PrintRecoveryStack(true))(handler)

	return handler.ServeHTTP
}
