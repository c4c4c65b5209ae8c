package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/crystal-mush/sourcemud/pkg/accounts"
	"github.com/crystal-mush/sourcemud/pkg/archive"
	"github.com/crystal-mush/sourcemud/pkg/server"
)

// envDefault returns the environment variable value if set, otherwise the fallback.
func envDefault(envVar, fallback string) string {
	if v := os.Getenv(envVar); v != "" {
		return v
	}
	return fallback
}

func main() {
	confFile := flag.String("conf", envDefault("MUD_CONF", ""), "Path to server config file (env: MUD_CONF)")
	port := flag.Int("port", 0, "TCP port to listen on, overrides config (env: MUD_PORT)")
	accountsDB := flag.String("accounts", envDefault("MUD_ACCOUNTS", ""), "Path to bbolt account database (env: MUD_ACCOUNTS)")
	denyFile := flag.String("deny", envDefault("MUD_DENY", ""), "Path to deny list file (env: MUD_DENY)")
	metricsPort := flag.Int("metrics-port", 0, "Prometheus metrics port, 0 disables (env: MUD_METRICS_PORT)")
	debug := flag.Bool("debug", os.Getenv("MUD_DEBUG") == "true", "Enable debug logging (env: MUD_DEBUG)")
	setPass := flag.String("passwd", envDefault("MUD_PASSWD", ""), "Set an account passphrase as account=passphrase on startup (env: MUD_PASSWD)")
	restoreArchive := flag.String("restore", envDefault("MUD_RESTORE", ""), "Restore from archive before boot (env: MUD_RESTORE)")
	backupOnly := flag.Bool("backup", false, "Write a backup archive and exit")
	showVersion := flag.Bool("version", false, "Print the version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(server.VersionString())
		return
	}
	log.Printf("Welcome to %s", server.VersionString())

	// Handle MUD_PORT / MUD_METRICS_PORT env if flags not set
	if *port == 0 {
		*port = envInt("MUD_PORT")
	}
	if *metricsPort == 0 {
		*metricsPort = envInt("MUD_METRICS_PORT")
	}

	// Load config if specified, otherwise use defaults
	var cfg *server.Config
	if *confFile != "" {
		var err error
		cfg, err = server.LoadConfig(*confFile)
		if err != nil {
			log.Fatalf("Error loading config: %v", err)
		}
		log.Printf("Loaded config from %s", *confFile)
	} else {
		cfg = server.DefaultConfig()
	}

	// Command-line flags override config file values
	if *port != 0 {
		cfg.Port = *port
	}
	if *metricsPort != 0 {
		cfg.MetricsPort = *metricsPort
	}
	if *accountsDB != "" {
		cfg.AccountsDB = *accountsDB
	}
	if *denyFile != "" {
		cfg.DenyFile = *denyFile
	}
	if *debug {
		cfg.Debug = true
	}

	// Pre-boot restore from archive
	if *restoreArchive != "" {
		log.Printf("Restoring from archive: %s", *restoreArchive)
		result, err := archive.Restore(archive.RestoreParams{
			ArchivePath:  *restoreArchive,
			AccountsDest: cfg.AccountsDB,
			DenyDest:     cfg.DenyFile,
			ConfDest:     cfg.ConfPath,
		})
		if err != nil {
			log.Fatalf("Restore failed: %v", err)
		}
		log.Printf("Restore complete: %d files restored from %s", result.FilesRestored, result.Manifest.Timestamp)
		for _, w := range result.Warnings {
			log.Printf("Restore warning: %s", w)
		}
	}

	if dir := filepath.Dir(cfg.AccountsDB); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			log.Fatalf("Error creating data directory: %v", err)
		}
	}
	store, err := accounts.Open(cfg.AccountsDB)
	if err != nil {
		log.Fatalf("Error opening account database: %v", err)
	}
	defer store.Close()
	log.Printf("Opened account database %s (%d accounts)", cfg.AccountsDB, store.Count())

	// Handle -passwd: reset one account's passphrase (continues booting)
	if *setPass != "" {
		if err := resetPassphrase(store, *setPass); err != nil {
			log.Fatalf("Error setting passphrase: %v", err)
		}
	}

	srv, err := server.New(cfg, store)
	if err != nil {
		log.Fatalf("Error configuring server: %v", err)
	}
	if *backupOnly {
		path, err := srv.Backup()
		if err != nil {
			log.Fatalf("Backup failed: %v", err)
		}
		log.Printf("Backup written to %s", path)
		return
	}
	if err := srv.Listen(); err != nil {
		log.Fatalf("Server error: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Printf("Starting %s on port %d...", cfg.MudName, cfg.Port)
	if err := srv.Run(ctx); err != nil {
		log.Fatalf("Server error: %v", err)
	}
	log.Printf("Shutdown complete")
}

func envInt(envVar string) int {
	v := os.Getenv(envVar)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("Ignoring %s=%q: %v", envVar, v, err)
		return 0
	}
	return n
}

func resetPassphrase(store *accounts.Store, arg string) error {
	id, pass, ok := strings.Cut(arg, "=")
	if !ok {
		return fmt.Errorf("expected account=passphrase")
	}
	acct, err := store.Get(id)
	if err != nil {
		return fmt.Errorf("account %s: %w", id, err)
	}
	if !accounts.ValidPassphrase(pass) {
		return fmt.Errorf("passphrase for %s is too weak", id)
	}
	if err := acct.SetPassphrase(pass); err != nil {
		return err
	}
	if err := store.Put(acct); err != nil {
		return err
	}
	log.Printf("Passphrase for account '%s' updated", acct.ID)
	return nil
}
