package security

import (
	"net/http"
	"strings"
	"sync/atomic"

	"facturation/internal/log"
)

var probePatterns = []string{
	"../", "..\\", ".env", "wp-admin", "phpmyadmin", "admin.php",
	".git", ".ssh", "<script", "union select", "etc/passwd", "cmd.exe",
}

var scannerAgents = []string{"sqlmap", "nmap", "nikto", "gobuster", "dirb", "masscan"}

// Detector flags requests that look like probes. It never blocks.
type Detector struct {
	logger   *log.Logger
	clientIP func(*http.Request) string
	flagged  atomic.Int64
}

func NewDetector(logger *log.Logger, clientIP func(*http.Request) string) *Detector {
	return &Detector{logger: logger.WithComponent(log.ComponentSecurity), clientIP: clientIP}
}

// Suspicious reports whether r matches a known probe pattern.
func (d *Detector) Suspicious(r *http.Request) bool {
	path := strings.ToLower(r.URL.Path)
	query := strings.ToLower(r.URL.RawQuery)
	for _, p := range probePatterns {
		if strings.Contains(path, p) || strings.Contains(query, p) {
			return true
		}
	}
	ua := strings.ToLower(r.Header.Get("User-Agent"))
	for _, a := range scannerAgents {
		if strings.Contains(ua, a) {
			return true
		}
	}
	switch r.Method {
	case "TRACE", "TRACK", "DEBUG":
		return true
	}
	return len(r.URL.String()) > 2048
}

// Flagged returns the number of suspicious requests seen.
func (d *Detector) Flagged() int64 {
	return d.flagged.Load()
}

func (d *Detector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if d.Suspicious(r) {
			d.flagged.Add(1)
			ip := r.RemoteAddr
			if d.clientIP != nil {
				ip = d.clientIP(r)
			}
			d.logger.WarnContext(r.Context(), "Suspicious request",
				log.FieldClientIP, ip,
				log.FieldMethod, r.Method,
				log.FieldPath, r.URL.Path,
				log.FieldUserAgent, r.Header.Get("User-Agent"))
		}
		next.ServeHTTP(w, r)
	})
}
