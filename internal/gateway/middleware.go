package gateway

import (
	"net"
	"net/http"
	"strings"

	"github.com/vietvoice/vvtts/internal/auth"
)

// localhostAddrs are the client addresses that bypass the credential gate.
var localhostAddrs = map[string]bool{
	"127.0.0.1": true,
	"::1":       true,
	"localhost": true,
}

// isLocalRequest reports whether r originates from localhost. With
// trustProxy enabled, the first element of X-Forwarded-For is also
// consulted; that header is client-controlled, so only enable the option
// behind a proxy that overwrites it.
func isLocalRequest(r *http.Request, trustProxy bool) bool {
	host := r.RemoteAddr
	if h, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		host = h
	}
	if localhostAddrs[host] {
		return true
	}

	if trustProxy {
		if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
			first := strings.TrimSpace(strings.Split(fwd, ",")[0])
			if localhostAddrs[first] {
				return true
			}
		}
	}
	return false
}

// requestKey extracts the supplied credential from the X-API-Key header or
// the api_key query parameter, header first.
func requestKey(r *http.Request) string {
	if key := r.Header.Get("X-API-Key"); key != "" {
		return key
	}
	return r.URL.Query().Get("api_key")
}

// authenticate applies the credential gate: localhost requests pass with no
// credential (nil info), everything else must present a valid key. On
// failure it writes the 401 response and returns ok=false.
func (s *Server) authenticate(w http.ResponseWriter, r *http.Request) (info *auth.KeyInfo, ok bool) {
	if isLocalRequest(r, s.trustProxy) {
		return nil, true
	}

	key := requestKey(r)
	if key == "" {
		writeError(w, http.StatusUnauthorized, "API key required. Provide via X-API-Key header or api_key query parameter.")
		return nil, false
	}

	info, err := s.keys.Validate(r.Context(), key)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "Credential store unavailable")
		return nil, false
	}
	if info == nil {
		writeError(w, http.StatusUnauthorized, "Invalid API key.")
		return nil, false
	}
	return info, true
}

// corsMiddleware allows cross-origin calls from browser front-ends,
// answering preflight requests directly.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-API-Key")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
