// Command bgpd runs a multi-peer BGP-4 speaker: it loads a peer
// configuration, listens for inbound sessions, dials the peers
// configured as active, and exposes Prometheus metrics over HTTP.
package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fritz0705/bgpkit/bgp"
	"github.com/fritz0705/bgpkit/internal/config"
	"github.com/fritz0705/bgpkit/internal/logging"
	"github.com/fritz0705/bgpkit/internal/metrics"
	"github.com/fritz0705/bgpkit/server"
	"github.com/fritz0705/bgpkit/wire"
)

func main() {
	configPath, logLevelOverride := parseFlags(os.Args[1:])

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if logLevelOverride != "" {
		cfg.Service.LogLevel = logLevelOverride
	}

	logger, err := logging.New(cfg.Service.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
		cancel()
	}()

	srv, peers, err := buildServer(cfg, logger)
	if err != nil {
		logger.Fatal("failed to build server", zap.Error(err))
	}

	registry := prometheus.NewRegistry()
	metrics.MustRegister(registry)
	go serveMetrics(ctx, logger, cfg.Metrics.Listen, registry)

	ln, err := net.Listen("tcp", cfg.Service.Listen)
	if err != nil {
		logger.Fatal("failed to listen", zap.String("addr", cfg.Service.Listen), zap.Error(err))
	}
	logger.Info("listening for BGP sessions", zap.String("addr", cfg.Service.Listen))

	srv.DialAll(ctx, peers)
	if err := srv.Serve(ctx, ln); err != nil {
		logger.Error("accept loop exited", zap.Error(err))
	}
}

func buildServer(cfg *config.Config, logger *zap.Logger) (*server.Server, []*server.PeerTemplate, error) {
	srv := server.New(logger)

	localRouterID := net.ParseIP(cfg.Service.LocalRouterID)
	if localRouterID == nil {
		return nil, nil, fmt.Errorf("invalid service.local_router_id %q", cfg.Service.LocalRouterID)
	}

	var peers []*server.PeerTemplate
	for name, p := range cfg.Peers {
		_, network, err := net.ParseCIDR(p.Network)
		if err != nil {
			return nil, nil, fmt.Errorf("peer %s: invalid network %q: %w", name, p.Network, err)
		}

		localASN := bgp.ASN4(p.LocalASN)
		if localASN == 0 {
			localASN = bgp.ASN4(cfg.Service.LocalASN)
		}
		holdTime := p.HoldTime
		if holdTime == 0 {
			holdTime = cfg.Service.HoldTime
		}
		routerID := bgp.NewIdentifier(localRouterID)
		if p.LocalRouterID != "" {
			if ip := net.ParseIP(p.LocalRouterID); ip != nil {
				routerID = bgp.NewIdentifier(ip)
			}
		}

		var protos []bgp.Proto
		for _, name := range p.Protocols {
			proto, err := server.ParseProto(name)
			if err != nil {
				return nil, nil, err
			}
			protos = append(protos, proto)
		}
		if len(protos) == 0 {
			protos = []bgp.Proto{{AFI: bgp.AFIIPv4, SAFI: bgp.SAFIUnicast}}
		}

		var addPath []wire.AddPathTuple
		for _, name := range p.AddPathProtocols {
			proto, err := server.ParseProto(name)
			if err != nil {
				return nil, nil, err
			}
			addPath = append(addPath, wire.AddPathTuple{AFI: proto.AFI, SAFI: proto.SAFI, SendReceive: 3})
		}

		tmpl := &server.PeerTemplate{
			Network:       network,
			RemoteASN:     bgp.ASN4(p.RemoteASN),
			LocalASN:      localASN,
			LocalRouterID: routerID,
			HoldTime:      holdTime,
			Passive:       p.Passive,
			AdvertiseASN4: p.AdvertiseASN4,
			Protocols:     protos,
			AddPath:       addPath,
		}
		srv.AddPeer(tmpl)
		peers = append(peers, tmpl)
	}
	return srv, peers, nil
}

func serveMetrics(ctx context.Context, logger *zap.Logger, addr string, registry *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	httpSrv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		httpSrv.Shutdown(shutdownCtx)
	}()

	logger.Info("serving metrics", zap.String("addr", addr))
	if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("metrics server exited", zap.Error(err))
	}
}

func parseFlags(args []string) (configPath, logLevel string) {
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--config":
			if i+1 < len(args) {
				configPath = args[i+1]
				i++
			}
		case "--log-level":
			if i+1 < len(args) {
				logLevel = args[i+1]
				i++
			}
		}
	}
	return
}
