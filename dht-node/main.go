package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/AtDexters-Lab/nexus-dht/internal/admin"
	"github.com/AtDexters-Lab/nexus-dht/internal/auth"
	"github.com/AtDexters-Lab/nexus-dht/internal/config"
	"github.com/AtDexters-Lab/nexus-dht/internal/contacts"
	"github.com/AtDexters-Lab/nexus-dht/internal/id"
	"github.com/AtDexters-Lab/nexus-dht/internal/node"
	"github.com/AtDexters-Lab/nexus-dht/internal/peerstore"
	"github.com/AtDexters-Lab/nexus-dht/internal/token"
	"github.com/AtDexters-Lab/nexus-dht/internal/transport"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to the configuration file.")
	flag.Parse()

	log.Logger = zerolog.New(zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}).With().Timestamp().Str("app", "dht-node").Logger()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("error loading configuration")
	}
	log.Info().Str("path", *configPath).Str("listen", cfg.ListenAddress).Msg("configuration loaded")

	selfID, err := resolveNodeID(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("could not resolve node identifier")
	}
	log.Info().Str("nodeId", selfID.String()).Str("family", cfg.Family().String()).Msg("node identity ready")

	tokens, err := token.NewManager(cfg.TokenRotation())
	if err != nil {
		log.Fatal().Err(err).Msg("could not initialize token manager")
	}
	peers, err := peerstore.New(cfg.PeerStoreCapacity, cfg.PeersPerInfohash, cfg.PeerTTL())
	if err != nil {
		log.Fatal().Err(err).Msg("could not initialize peer store")
	}
	contactSet := contacts.NewSet(cfg.ContactSetSize)

	endpoint := transport.New(cfg)
	dhtNode := node.New(cfg, selfID, endpoint, contactSet, peers, tokens)
	endpoint.SetHandler(dhtNode)

	var feed *admin.Feed
	if cfg.AdminListenAddress != "" {
		validator, err := auth.NewValidator(cfg.AdminJWTSecret)
		if err != nil {
			log.Fatal().Err(err).Msg("could not initialize admin auth")
		}
		feed = admin.New(cfg, validator)
		dhtNode.SetEvents(feed)
		feed.Run()
	}

	if err := endpoint.Start(); err != nil {
		log.Fatal().Err(err).Msg("could not start DHT endpoint")
	}

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		dhtNode.Bootstrap(ctx)
	}()

	shutdownChan := make(chan os.Signal, 1)
	signal.Notify(shutdownChan, syscall.SIGINT, syscall.SIGTERM)

	log.Info().Msg("nexus-dht node is running, press CTRL+C to exit")
	<-shutdownChan
	log.Info().Msg("shutdown signal received")

	cancel()
	endpoint.Stop()
	if feed != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		feed.Stop(shutdownCtx)
		shutdownCancel()
	}
	wg.Wait()

	log.Info().Msg("shutdown complete")
}

// resolveNodeID uses the configured fixed identifier when present and
// generates a random one otherwise.
func resolveNodeID(cfg *config.Config) (id.NodeID, error) {
	if cfg.NodeID != "" {
		return id.NodeIDFromHex(cfg.NodeID)
	}
	return id.GenerateNodeID()
}
