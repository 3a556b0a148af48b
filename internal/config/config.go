// Package config loads process-level configuration: CLI flags and the
// environment variables that carry remote-depot credentials. It is distinct
// from internal/configdoc, which loads and validates the sprinkler
// configuration document (zones, programs, schedules).
package config

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds process-level settings resolved from CLI flags and the
// environment, per spec §6's CLI flag table.
type Config struct {
	ConfigPath      string // -config, default /etc/house/sprinkler.json
	BackupPath      string // -backup
	UseLocalStorage bool   // -use-local-storage / -no-local-storage; parsed only, nothing reads it
	Debug           bool   // -debug
	Test            bool   // -test; parsed only, nothing reads it
	ListenAddr      string // -listen, default :8080

	// DiscoveryProviders is the static set of relay/index provider base URLs
	// to scan. Spec.md §4.1/§4.2 discover providers through "the external
	// service registry," a collaborator explicitly out of scope for this
	// repo (§9); this flag is the substitute seam until such a registry is
	// wired in.
	DiscoveryProviders []string // -providers, comma-separated

	DepotEndpoint  string // DEPOT_ENDPOINT
	DepotBucket    string // DEPOT_BUCKET
	DepotAccessKey string // DEPOT_ACCESS_KEY
	DepotSecretKey string // DEPOT_SECRET_KEY
	DepotRegion    string // DEPOT_REGION, default "auto"
}

const defaultConfigPath = "/etc/house/sprinkler.json"

// Load parses CLI flags (from args, typically os.Args[1:]) and environment
// variables into a Config. A .env file in the working directory is loaded
// first, if present, so depot credentials can be supplied locally without
// polluting the real environment.
func Load(args []string) (*Config, error) {
	_ = godotenv.Load() // best-effort; absence of .env is not an error

	fs := flag.NewFlagSet("sprinklerd", flag.ContinueOnError)
	configPath := fs.String("config", defaultConfigPath, "path to the sprinkler configuration document")
	backupPath := fs.String("backup", "", "path to the local persisted-state backup file")
	useLocalStorage := fs.Bool("use-local-storage", true, "local persisted-state storage flag (recorded only; the local snapshot is always written)")
	noLocalStorage := fs.Bool("no-local-storage", false, "clears the local persisted-state storage flag (recorded only; the local snapshot is always written)")
	debug := fs.Bool("debug", false, "enable debug logging")
	test := fs.Bool("test", false, "test mode flag (recorded only; actuation is not affected)")
	listenAddr := fs.String("listen", ":8080", "HTTP listen address")
	providers := fs.String("providers", "", "comma-separated relay/index provider base URLs")

	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("parsing flags: %w", err)
	}

	cfg := &Config{
		ConfigPath:         *configPath,
		BackupPath:         *backupPath,
		UseLocalStorage:    *useLocalStorage && !*noLocalStorage,
		Debug:              *debug,
		Test:               *test,
		ListenAddr:         *listenAddr,
		DiscoveryProviders: splitNonEmpty(*providers),
		DepotEndpoint:      os.Getenv("DEPOT_ENDPOINT"),
		DepotBucket:        os.Getenv("DEPOT_BUCKET"),
		DepotAccessKey:     os.Getenv("DEPOT_ACCESS_KEY"),
		DepotSecretKey:     os.Getenv("DEPOT_SECRET_KEY"),
		DepotRegion:        os.Getenv("DEPOT_REGION"),
	}
	if cfg.DepotRegion == "" {
		cfg.DepotRegion = "auto"
	}
	if cfg.BackupPath == "" {
		cfg.BackupPath = "/var/lib/housesprinkler/state.json"
	}

	return cfg, nil
}

// DepotEnabled reports whether enough credentials were supplied to enable
// the remote depot. The local file store is always available regardless.
func (c *Config) DepotEnabled() bool {
	return c.DepotEndpoint != "" && c.DepotBucket != "" && c.DepotAccessKey != "" && c.DepotSecretKey != ""
}

func splitNonEmpty(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
