package httpx

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// CORSPolicy lists the browser origins allowed to call the API. "*" admits any
// origin; credentials are never allowed with it.
type CORSPolicy struct {
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	AllowCredentials bool
	MaxAge           time.Duration
}

// PublicCORS covers the booking widget and the staff dashboard. Staff calls
// carry a bearer token, not cookies, so credentials stay off.
func PublicCORS(origins []string) CORSPolicy {
	return CORSPolicy{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type", RequestIDHeader},
		MaxAge:         10 * time.Minute,
	}
}

type corsRules struct {
	anyOrigin   bool
	origins     map[string]bool
	credentials bool
	preflight   map[string]string
}

func (p CORSPolicy) compile() corsRules {
	c := corsRules{origins: make(map[string]bool), credentials: p.AllowCredentials}
	for _, o := range p.AllowedOrigins {
		switch o = strings.TrimSpace(o); o {
		case "":
		case "*":
			c.anyOrigin = true
		default:
			c.origins[strings.ToLower(strings.TrimSuffix(o, "/"))] = true
		}
	}
	c.preflight = map[string]string{
		"Access-Control-Allow-Methods": joinTrimmed(p.AllowedMethods),
		"Access-Control-Allow-Headers": joinTrimmed(p.AllowedHeaders),
	}
	if p.MaxAge > 0 {
		c.preflight["Access-Control-Max-Age"] = strconv.Itoa(int(p.MaxAge / time.Second))
	}
	return c
}

// allow returns the Access-Control-Allow-Origin value for origin, or "".
func (c corsRules) allow(origin string) string {
	if c.origins[strings.ToLower(origin)] {
		return origin
	}
	if c.anyOrigin && !c.credentials {
		return "*"
	}
	return ""
}

// WithCORS answers preflights itself and tags other responses for allowed
// origins. Mount it outside the router: chi would otherwise reject OPTIONS
// with 405 before any group middleware runs. An empty origin list disables it.
func WithCORS(p CORSPolicy) Middleware {
	rules := p.compile()
	if !rules.anyOrigin && len(rules.origins) == 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" {
				next.ServeHTTP(w, r)
				return
			}
			h := w.Header()
			h.Add("Vary", "Origin")
			allowed := rules.allow(origin)
			if allowed == "" {
				next.ServeHTTP(w, r)
				return
			}
			h.Set("Access-Control-Allow-Origin", allowed)
			if rules.credentials {
				h.Set("Access-Control-Allow-Credentials", "true")
			}

			if r.Method != http.MethodOptions || r.Header.Get("Access-Control-Request-Method") == "" {
				next.ServeHTTP(w, r)
				return
			}
			h.Add("Vary", "Access-Control-Request-Method")
			h.Add("Vary", "Access-Control-Request-Headers")
			for k, v := range rules.preflight {
				if v != "" {
					h.Set(k, v)
				}
			}
			w.WriteHeader(http.StatusNoContent)
		})
	}
}

func joinTrimmed(values []string) string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return strings.Join(out, ", ")
}
