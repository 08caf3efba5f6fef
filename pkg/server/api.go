package server

import (
	"encoding/json"
	"net/http"

	"github.com/kylerisse/breachcheck/pkg/check"
	"github.com/kylerisse/breachcheck/pkg/checkup"
	"github.com/kylerisse/breachcheck/pkg/store"
	"github.com/sirupsen/logrus"
)

// handleCheckup audits every credential in the scope against the breach
// list and remembers the breached count for later fetches.
func (s *Server) handleCheckup(w http.ResponseWriter, r *http.Request) {
	scope, ok := s.authorize(w, r)
	if !ok {
		return
	}

	_, breached := store.Audit(s.store.Credentials(scope), s.breaches)

	s.breachedMu.Lock()
	s.breached[scope] = breached
	s.breachedMu.Unlock()

	s.logger.WithFields(logrus.Fields{
		"scope":      scope.String(),
		"request_id": requestID(r),
	}).Infof("Checkup found %d breached credentials", breached)

	writeJSON(w, checkup.BreachedResponse{Breached: breached})
}

// handleBreached returns the breached count of the last checkup, or zero
// if the scope was never checked.
func (s *Server) handleBreached(w http.ResponseWriter, r *http.Request) {
	scope, ok := s.authorize(w, r)
	if !ok {
		return
	}

	s.breachedMu.RLock()
	breached := s.breached[scope]
	s.breachedMu.RUnlock()

	writeJSON(w, checkup.BreachedResponse{Breached: breached})
}

func (s *Server) handleCount(w http.ResponseWriter, r *http.Request) {
	scope, ok := s.authorize(w, r)
	if !ok {
		return
	}
	writeJSON(w, checkup.CountResponse{Total: s.store.Count(scope)})
}

// handleStatus returns the last scheduled check result per scope.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.scopeStatuses())
}

// authorize resolves the scope path value. Account scope requests must
// name the signed-in account.
func (s *Server) authorize(w http.ResponseWriter, r *http.Request) (check.Scope, bool) {
	scope, err := check.ParseScope(r.PathValue("scope"))
	if err != nil {
		writeError(w, r, http.StatusNotFound, err.Error())
		return 0, false
	}
	if scope == check.ScopeAccount {
		account := s.store.Account()
		if account == "" || r.Header.Get(checkup.HeaderAccount) != account {
			writeError(w, r, http.StatusUnauthorized, "account not signed in")
			return 0, false
		}
	}
	return scope, true
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(checkup.ErrorResponse{Error: msg, RequestID: requestID(r)})
}
