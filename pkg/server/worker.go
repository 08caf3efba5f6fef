package server

import (
	"context"
	"math/rand"
	"time"

	"github.com/kylerisse/breachcheck/pkg/check"
	"github.com/sirupsen/logrus"
)

// worker periodically runs a breach check for scope.
func (s *Server) worker(scope check.Scope) {
	defer s.wg.Done()

	log := s.logger.WithField("scope", scope.String())

	startDelay := randomDelay(s.maxStartDelay)
	log.Infof("Worker will start in %v", startDelay)
	select {
	case <-time.After(startDelay):
		s.performCheck(scope, log)
	case <-s.done:
		log.Info("Worker received shutdown signal before starting")
		return
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.performCheck(scope, log)
		case <-s.done:
			log.Info("Worker received shutdown signal")
			return
		}
	}
}

// performCheck runs one check and records its result. A check that has
// not finished within one interval is stopped and recorded as failed.
func (s *Server) performCheck(scope check.Scope, log *logrus.Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), s.interval)
	defer cancel()
	go func() {
		select {
		case <-s.done:
			cancel()
		case <-ctx.Done():
		}
	}()

	result, err := s.aggregator.RunCheck(scope).Wait(ctx)
	if err != nil {
		s.aggregator.StopCheck(scope)
		result = check.Failed(err)
	}

	status := s.status(scope)
	status.SetResult(result)
	status.SetLastUpdate(time.Now().Unix())

	if result.OK() {
		log.Debugf("Check result: %v", result)
	} else {
		log.Warnf("Check failed: %v", result.Err())
	}
}

// randomDelay returns a whole-second delay in [1s, max], or zero when max
// is under a second.
func randomDelay(max time.Duration) time.Duration {
	secs := int(max / time.Second)
	if secs < 1 {
		return 0
	}
	return time.Duration(rand.Intn(secs)+1) * time.Second
}
