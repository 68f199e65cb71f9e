package httpmiddleware

import (
	"net/http"
	"strconv"
	"strings"
)

// CORSConfig configures cross-origin access for the POS web clients.
type CORSConfig struct {
	// AllowOrigins lists origins permitted to call the API. Empty, or a
	// single "*", allows every origin.
	AllowOrigins []string

	// AllowMethods lists permitted HTTP methods. Empty defaults to
	// "GET, POST, PUT, DELETE, OPTIONS".
	AllowMethods []string

	// AllowHeaders lists permitted request headers. When empty the preflight
	// response echoes whatever Access-Control-Request-Headers asked for.
	AllowHeaders []string

	// ExposeHeaders lists response headers the browser may read.
	ExposeHeaders []string

	// AllowCredentials permits cookies and auth headers on cross-origin
	// requests. Incompatible with the wildcard origin, so enabling it forces
	// specific-origin echo.
	AllowCredentials bool

	// MaxAge is the preflight cache lifetime in seconds. Zero omits the
	// header, negative sends "0".
	MaxAge int
}

// corsPolicy is CORSConfig with the origin set and header strings
// precomputed once at middleware construction.
type corsPolicy struct {
	allowAll    bool
	origins     map[string]string // lowercase -> configured spelling
	methods     string
	headers     string
	expose      string
	credentials bool
	maxAge      string
}

func buildPolicy(cfg CORSConfig) corsPolicy {
	p := corsPolicy{
		allowAll:    len(cfg.AllowOrigins) == 0,
		origins:     make(map[string]string, len(cfg.AllowOrigins)),
		methods:     strings.Join(cfg.AllowMethods, ", "),
		headers:     strings.Join(cfg.AllowHeaders, ", "),
		expose:      strings.Join(cfg.ExposeHeaders, ", "),
		credentials: cfg.AllowCredentials,
	}
	for _, o := range cfg.AllowOrigins {
		if o == "*" {
			p.allowAll = true
			break
		}
		p.origins[strings.ToLower(o)] = o
	}
	// Credentials with "*" is forbidden by the fetch spec; echo the
	// specific origin instead.
	if p.credentials && p.allowAll {
		p.allowAll = false
	}
	if p.methods == "" {
		p.methods = "GET, POST, PUT, DELETE, OPTIONS"
	}
	if cfg.MaxAge > 0 {
		p.maxAge = strconv.Itoa(cfg.MaxAge)
	} else if cfg.MaxAge < 0 {
		p.maxAge = "0"
	}
	return p
}

// resolveOrigin returns the Access-Control-Allow-Origin value for a request
// origin, or "" when the origin is not allowed. Matching is case-insensitive
// but the configured spelling is echoed back.
func (p corsPolicy) resolveOrigin(origin string) string {
	if p.allowAll {
		return "*"
	}
	return p.origins[strings.ToLower(origin)]
}

// CORS returns a middleware enforcing the given cross-origin policy. Vary
// headers are set so shared caches never serve a CORS response to the wrong
// origin.
func CORS(cfg CORSConfig) Middleware {
	policy := buildPolicy(cfg)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			// Same-origin request. Still vary on Origin when the policy is
			// origin-specific so caches keep responses apart.
			if origin == "" {
				if !policy.allowAll {
					w.Header().Add("Vary", "Origin")
				}
				next.ServeHTTP(w, r)
				return
			}

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				policy.preflight(w, r, origin)
				return
			}

			if !policy.allowAll {
				w.Header().Add("Vary", "Origin")
			}
			if allow := policy.resolveOrigin(origin); allow != "" {
				w.Header().Set("Access-Control-Allow-Origin", allow)
				if policy.credentials {
					w.Header().Set("Access-Control-Allow-Credentials", "true")
				}
				if policy.expose != "" {
					w.Header().Set("Access-Control-Expose-Headers", policy.expose)
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (p corsPolicy) preflight(w http.ResponseWriter, r *http.Request, origin string) {
	w.Header().Add("Vary", "Origin")
	w.Header().Add("Vary", "Access-Control-Request-Method")
	w.Header().Add("Vary", "Access-Control-Request-Headers")

	allow := p.resolveOrigin(origin)
	if allow == "" {
		// Disallowed origin gets an empty 204, no CORS headers.
		w.WriteHeader(http.StatusNoContent)
		return
	}

	w.Header().Set("Access-Control-Allow-Origin", allow)
	w.Header().Set("Access-Control-Allow-Methods", p.methods)

	if p.headers != "" {
		w.Header().Set("Access-Control-Allow-Headers", p.headers)
	} else if rh := r.Header.Get("Access-Control-Request-Headers"); rh != "" {
		w.Header().Set("Access-Control-Allow-Headers", rh)
	}
	if p.credentials {
		w.Header().Set("Access-Control-Allow-Credentials", "true")
	}
	if p.maxAge != "" {
		w.Header().Set("Access-Control-Max-Age", p.maxAge)
	}

	w.WriteHeader(http.StatusNoContent)
}
