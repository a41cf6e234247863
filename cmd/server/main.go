package main

import (
	"context"
	"crypto/rsa"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/cipherchat/cipherchat/pkg/api"
	"github.com/cipherchat/cipherchat/pkg/config"
	"github.com/cipherchat/cipherchat/pkg/crypto"
	"github.com/cipherchat/cipherchat/pkg/network"
	"github.com/cipherchat/cipherchat/pkg/storage"
)

var (
	configPath  = flag.String("config", "./config.json", "Path to config file")
	listenAddr  = flag.String("addr", "", "Listen address (overrides config)")
	keyPath     = flag.String("key", "", "Path to server private key file (overrides config)")
	dbPath      = flag.String("db", "", "Path to database file (overrides config)")
	generateKey = flag.Bool("genkey", false, "Generate a new private key if none exists")
	apiPort     = flag.Int("api-port", 0, "Status API port (overrides config, 0 disables)")
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *listenAddr != "" {
		cfg.ListenAddr = *listenAddr
	}
	if *keyPath != "" {
		cfg.KeyPath = *keyPath
	}
	if *dbPath != "" {
		cfg.DatabasePath = *dbPath
	}
	if *apiPort != 0 {
		cfg.APIPort = *apiPort
	}

	privateKey, err := loadOrGenerateKey(cfg.KeyPath, *generateKey)
	if err != nil {
		log.Fatalf("Failed to load/generate key: %v", err)
	}
	log.Printf("Private key loaded from %s", cfg.KeyPath)

	if err := os.MkdirAll(filepath.Dir(cfg.DatabasePath), 0755); err != nil {
		log.Fatalf("Failed to create data directory: %v", err)
	}
	store, err := storage.Open(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer store.Close()

	server, err := network.NewServer(cfg, privateKey, store)
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}
	if err := server.Start(); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.APIPort > 0 {
		statusAPI := api.NewServer(server, cfg.APIPort)
		go func() {
			log.Printf("Status API listening on :%d", cfg.APIPort)
			if err := statusAPI.Start(ctx); err != nil {
				log.Printf("Status API error: %v", err)
			}
		}()
	}

	waitForShutdown(server, cancel)
}

// loadOrGenerateKey loads the server RSA key, generating and saving a new
// one when asked
func loadOrGenerateKey(path string, generate bool) (*rsa.PrivateKey, error) {
	pemData, err := crypto.LoadKeyFromFile(path)
	if err == nil {
		return crypto.ImportPrivateKeyPEM(pemData)
	}
	if !os.IsNotExist(err) {
		return nil, err
	}

	if !generate {
		return nil, fmt.Errorf("key file %s not found (use -genkey to create one)", path)
	}

	log.Printf("Generating new RSA key at %s", path)

	key, err := crypto.GenerateRSAKeyPair()
	if err != nil {
		return nil, err
	}

	pemData, err = crypto.ExportPrivateKeyPEM(key)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, err
	}
	if err := crypto.SaveKeyToFile(path, pemData); err != nil {
		return nil, err
	}

	return key, nil
}

func waitForShutdown(server *network.Server, cancel context.CancelFunc) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	log.Printf("Received %v, shutting down", sig)

	cancel()
	if err := server.Stop(); err != nil {
		log.Printf("Shutdown error: %v", err)
	}
}
