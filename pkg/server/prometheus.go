package server

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// handlePrometheus writes Prometheus-formatted metrics for every scope.
func (s *Server) handlePrometheus(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")

	w.Write([]byte("# HELP breachcheck_ok Whether the last breach check succeeded (1=ok, 0=failed).\n"))
	w.Write([]byte("# TYPE breachcheck_ok gauge\n"))
	w.Write([]byte("# HELP breachcheck_saved_credentials Saved credentials seen by the last successful check.\n"))
	w.Write([]byte("# TYPE breachcheck_saved_credentials gauge\n"))
	w.Write([]byte("# HELP breachcheck_breached_credentials Breached credentials found by the last successful check.\n"))
	w.Write([]byte("# TYPE breachcheck_breached_credentials gauge\n"))
	w.Write([]byte("# HELP breachcheck_last_update Unix time of the last check.\n"))
	w.Write([]byte("# TYPE breachcheck_last_update gauge\n"))

	snapshots := s.scopeStatuses()
	scopes := make([]string, 0, len(snapshots))
	for scope := range snapshots {
		scopes = append(scopes, scope)
	}
	sort.Strings(scopes)

	for _, scope := range scopes {
		snap := snapshots[scope]
		if !snap.Checked {
			continue
		}
		label := sanitizePrometheusLabel(scope)
		okVal := 0
		if snap.OK {
			okVal = 1
		}
		w.Write(fmt.Appendf([]byte{}, "breachcheck_ok{scope=\"%s\"} %d\n", label, okVal))
		if snap.Total != nil {
			w.Write(fmt.Appendf([]byte{}, "breachcheck_saved_credentials{scope=\"%s\"} %d\n", label, *snap.Total))
		}
		if snap.Breached != nil {
			w.Write(fmt.Appendf([]byte{}, "breachcheck_breached_credentials{scope=\"%s\"} %d\n", label, *snap.Breached))
		}
		w.Write(fmt.Appendf([]byte{}, "breachcheck_last_update{scope=\"%s\"} %d\n", label, snap.LastUpdate))
	}
}

// sanitizePrometheusLabel escapes backslash, double-quote, and newline
// characters in a Prometheus label value for the text exposition format.
func sanitizePrometheusLabel(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	s = strings.ReplaceAll(s, "\n", `\n`)
	return s
}
