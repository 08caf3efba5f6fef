package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/kylerisse/breachcheck/pkg/backends"
	"github.com/kylerisse/breachcheck/pkg/check"
	"github.com/kylerisse/breachcheck/pkg/store"
	"github.com/sirupsen/logrus"
)

func main() {
	os.Exit(run())
}

func run() int {
	backend := flag.String("backend", check.KindOnDevice.String(), "Backend to check with (ondevice, remote)")
	scopeName := flag.String("scope", "local", "Credential scope (local, account)")
	fetch := flag.Bool("fetch", false, "Fetch the last known breached count instead of running a check")
	configFile := flag.String("config", "sample-credentials.json", "Path to the credential store JSON file (ondevice)")
	breachesFile := flag.String("breaches", "", "Path to the breach digest list (ondevice)")
	pwnedURL := flag.String("pwned-url", "", "Pwned Passwords range API URL for online lookups (ondevice, empty to disable)")
	url := flag.String("url", "http://localhost:1982", "Checkup service base URL (remote)")
	account := flag.String("account", "", "Signed-in account")
	timeout := flag.Duration("timeout", 30*time.Second, "Maximum time to wait for a result")
	digest := flag.String("digest", "", "Print the breach list digest of a password and exit")
	logLevel := flag.String("log-level", "warn", "Log level (debug, info, warn, error)")
	flag.Parse()

	if *digest != "" {
		fmt.Println(store.Digest(*digest))
		return 0
	}

	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	level, err := logrus.ParseLevel(*logLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid log level %q: %v\n", *logLevel, err)
		return 2
	}
	logger.SetLevel(level)

	scope, err := check.ParseScope(*scopeName)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	reg, cleanup, err := backends.NewRegistry(logger)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer cleanup()

	strategy, err := reg.Create(*backend, map[string]any{
		"config":    *configFile,
		"breaches":  *breachesFile,
		"pwned-url": *pwnedURL,
		"url":       *url,
		"account":   *account,
		"timeout":   *timeout,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create %s backend: %v (available: %v)\n", *backend, err, reg.Types())
		return 2
	}

	agg := check.NewAggregator(strategy, logger)
	defer agg.Destroy()

	var future *check.Future[check.Result]
	if *fetch {
		future = agg.GetBreachedCount(scope)
	} else {
		future = agg.RunCheck(scope)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	result, err := future.Wait(ctx)
	if err != nil {
		agg.StopCheck(scope)
		fmt.Fprintf(os.Stderr, "%s: no result: %v\n", scope, err)
		return 1
	}

	total, breached, ok := result.Counts()
	if !ok {
		fmt.Fprintf(os.Stderr, "%s: %v\n", scope, result.Err())
		return 1
	}
	fmt.Printf("%s: %d saved, %d breached\n", scope, total, breached)
	return 0
}
