// Package backends registers the "ondevice" and "remote" check strategies
// with a check.Registry, so every command builds its backend the same way.
//
// Factory options:
//
//	store       *store.Store loaded by the caller (ondevice, remote)
//	config      credential store path, used when store is unset (ondevice)
//	breach-list *store.BreachList loaded by the caller (ondevice)
//	breaches    breach digest list path, used when breach-list is unset (ondevice)
//	pwned-url   Pwned Passwords range API URL (ondevice)
//	dns-server  connectivity probe server, host:port (ondevice)
//	dns-name    name resolved by the connectivity probe (ondevice)
//	quota       maximum checks per hour, int (ondevice)
//	url         checkup service base URL (remote)
//	account     signed-in account (ondevice, remote)
//	timeout     checkup request timeout, time.Duration (remote)
//
// A remote backend given a store starts with its saved counts cached.
package backends

import (
	"fmt"
	"time"

	"github.com/kylerisse/breachcheck/pkg/check"
	"github.com/kylerisse/breachcheck/pkg/checkup"
	"github.com/kylerisse/breachcheck/pkg/connectivity"
	"github.com/kylerisse/breachcheck/pkg/engine"
	"github.com/kylerisse/breachcheck/pkg/ondevice"
	"github.com/kylerisse/breachcheck/pkg/pwned"
	"github.com/kylerisse/breachcheck/pkg/remote"
	"github.com/kylerisse/breachcheck/pkg/store"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// pwnedRate bounds online lookups to the range API.
const pwnedRate = 10

// NewRegistry returns a registry holding both backends. Anything a backend
// starts is shut down by the returned cleanup func.
func NewRegistry(logger *logrus.Logger) (*check.Registry, func(), error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	var cleanups []func()
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	reg := check.NewRegistry()
	factories := map[check.Kind]check.Factory{
		check.KindOnDevice: func(cfg map[string]any) (check.Strategy, error) {
			eng, err := newEngine(cfg, logger)
			if err != nil {
				return nil, err
			}
			eng.Start()
			cleanups = append(cleanups, eng.Stop)
			return ondevice.New(eng, logger), nil
		},
		check.KindRemote: func(cfg map[string]any) (check.Strategy, error) {
			return newRemote(cfg, logger)
		},
	}
	for kind, factory := range factories {
		if err := reg.Register(kind.String(), factory); err != nil {
			return nil, nil, fmt.Errorf("backends: %w", err)
		}
	}

	return reg, cleanup, nil
}

func newEngine(cfg map[string]any, logger *logrus.Logger) (*engine.Engine, error) {
	st, err := loadStore(cfg, true)
	if err != nil {
		return nil, err
	}
	if account, _ := stringOption(cfg, "account", false); account != "" {
		st.SetAccount(account)
	}

	breaches, ok := cfg["breach-list"].(*store.BreachList)
	if !ok {
		breaches = store.NewBreachList()
		if p, _ := stringOption(cfg, "breaches", false); p != "" {
			breaches, err = store.LoadBreachList(p)
			if err != nil {
				return nil, err
			}
		}
	}

	var opts []engine.Option
	if server, _ := stringOption(cfg, "dns-server", false); server != "" {
		var probeOpts []connectivity.Option
		if name, _ := stringOption(cfg, "dns-name", false); name != "" {
			probeOpts = append(probeOpts, connectivity.WithName(name))
		}
		probe, err := connectivity.New(server, probeOpts...)
		if err != nil {
			return nil, err
		}
		opts = append(opts, engine.WithProber(probe))
	}
	if u, _ := stringOption(cfg, "pwned-url", false); u != "" {
		lookup, err := pwned.New(pwned.WithURL(u), pwned.WithLogger(logger),
			pwned.WithLimiter(rate.NewLimiter(rate.Limit(pwnedRate), pwnedRate)))
		if err != nil {
			return nil, err
		}
		opts = append(opts, engine.WithLookup(lookup))
	}
	if quota, ok := cfg["quota"].(int); ok && quota > 0 {
		opts = append(opts, engine.WithQuota(rate.NewLimiter(rate.Every(time.Hour/time.Duration(quota)), quota)))
	}

	return engine.New(st, breaches, logger, opts...)
}

func newRemote(cfg map[string]any, logger *logrus.Logger) (*remote.Strategy, error) {
	url, err := stringOption(cfg, "url", true)
	if err != nil {
		return nil, err
	}
	st, err := loadStore(cfg, false)
	if err != nil {
		return nil, err
	}

	account, _ := stringOption(cfg, "account", false)
	if account == "" && st != nil {
		account = st.Account()
	}
	opts := []checkup.Option{checkup.WithAccount(account), checkup.WithLogger(logger)}
	if d, ok := cfg["timeout"].(time.Duration); ok && d > 0 {
		opts = append(opts, checkup.WithTimeout(d))
	}

	client, err := checkup.New(url, opts...)
	if err != nil {
		return nil, err
	}
	strategy := remote.New(client, logger)
	if st != nil {
		for _, scope := range []check.Scope{check.ScopeLocal, check.ScopeAccount} {
			strategy.SetSavedCount(scope, st.Count(scope))
		}
	}
	return strategy, nil
}

// loadStore returns the store option, or loads the config path. Without
// either it fails if required and returns nil otherwise.
func loadStore(cfg map[string]any, required bool) (*store.Store, error) {
	if st, ok := cfg["store"].(*store.Store); ok && st != nil {
		return st, nil
	}
	if !required {
		return nil, nil
	}
	path, err := stringOption(cfg, "config", true)
	if err != nil {
		return nil, err
	}
	return store.LoadFile(path)
}

func stringOption(cfg map[string]any, key string, required bool) (string, error) {
	v, ok := cfg[key].(string)
	if required && (!ok || v == "") {
		return "", fmt.Errorf("%s is required", key)
	}
	return v, nil
}
