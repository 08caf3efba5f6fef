package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/kylerisse/breachcheck/pkg/backends"
	"github.com/kylerisse/breachcheck/pkg/check"
	"github.com/kylerisse/breachcheck/pkg/connectivity"
	"github.com/kylerisse/breachcheck/pkg/server"
	"github.com/kylerisse/breachcheck/pkg/store"
	"github.com/sirupsen/logrus"
)

func main() {
	backend := flag.String("backend", check.KindOnDevice.String(), "Backend to check with (ondevice, remote)")
	configFile := flag.String("config", "sample-credentials.json", "Path to the credential store JSON file")
	breachesFile := flag.String("breaches", "", "Path to the breach digest list (empty for none)")
	port := flag.String("port", server.DefaultPort, "HTTP listen port")
	interval := flag.Duration("interval", server.DefaultInterval, "Time between scheduled checks")
	dnsServer := flag.String("dns-server", "", "DNS server used for the connectivity probe, host:port (ondevice, empty to disable)")
	dnsName := flag.String("dns-name", connectivity.DefaultName, "Name resolved by the connectivity probe (ondevice)")
	pwnedURL := flag.String("pwned-url", "", "Pwned Passwords range API URL for online lookups (ondevice, empty to disable)")
	quota := flag.Int("quota", 0, "Maximum checks per hour (ondevice, 0 for unlimited)")
	url := flag.String("url", "", "Upstream checkup service base URL (remote)")
	account := flag.String("account", "", "Signed-in account (defaults to the store account)")
	logLevel := flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	flag.Parse()

	logger := logrus.New()
	level, err := logrus.ParseLevel(*logLevel)
	if err != nil {
		logger.Fatalf("Invalid log level %q: %v", *logLevel, err)
	}
	logger.SetLevel(level)

	st, err := store.LoadFile(*configFile)
	if err != nil {
		logger.Fatalf("Failed to load credentials: %v", err)
	}

	breaches := store.NewBreachList()
	if *breachesFile != "" {
		breaches, err = store.LoadBreachList(*breachesFile)
		if err != nil {
			logger.Fatalf("Failed to load breach list: %v", err)
		}
	}
	logger.Infof("Loaded %d local and %d account credentials, %d breach digests",
		st.Count(check.ScopeLocal), st.Count(check.ScopeAccount), breaches.Len())

	reg, cleanup, err := backends.NewRegistry(logger)
	if err != nil {
		logger.Fatalf("Failed to register backends: %v", err)
	}

	strategy, err := reg.Create(*backend, map[string]any{
		"store":       st,
		"breach-list": breaches,
		"dns-server":  *dnsServer,
		"dns-name":    *dnsName,
		"pwned-url":   *pwnedURL,
		"quota":       *quota,
		"url":         *url,
		"account":     *account,
	})
	if err != nil {
		logger.Fatalf("Failed to create %s backend: %v (available: %v)", *backend, err, reg.Types())
	}
	logger.Infof("Using %s backend", strategy.Kind())

	srv, err := server.NewServer(server.Config{
		Store:      st,
		Breaches:   breaches,
		Strategy:   strategy,
		ListenPort: *port,
		Interval:   *interval,
		Logger:     logger,
	})
	if err != nil {
		logger.Fatalf("Failed to create server: %v", err)
	}
	srv.Start()

	// Graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	logger.Info("Server is running. Press Ctrl+C to stop.")
	<-stop
	logger.Info("Shutting down server...")
	srv.Stop()
	cleanup()
	logger.Info("Server stopped.")
}
