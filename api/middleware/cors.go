package middleware

import (
	"net/http"
	"strings"

	"github.com/go-chi/cors"

	"github.com/pantrylink/pantrylink-backend/pkg/config"
)

var devCORSOrigins = []string{
	"http://localhost:3000",
	"http://localhost:5173",
}

// CORS allows the apex domain and every tenant subdomain under it.
// Tenants come and go at runtime, so the policy matches on the domain
// suffix instead of a fixed origin list.
func CORS(cfg config.TenancyConfig) func(http.Handler) http.Handler {
	apex := strings.ToLower(strings.TrimSpace(cfg.ApexDomain))
	return cors.New(cors.Options{
		AllowOriginFunc: func(r *http.Request, origin string) bool {
			return originAllowed(origin, apex)
		},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Requested-With", "X-Tenant-Slug"},
		AllowCredentials: true,
		MaxAge:           300,
	}).Handler
}

func originAllowed(origin, apex string) bool {
	for _, dev := range devCORSOrigins {
		if origin == dev {
			return true
		}
	}
	trimmed := strings.ToLower(origin)
	trimmed = strings.TrimPrefix(trimmed, "https://")
	if trimmed == origin {
		return false
	}
	return trimmed == apex || strings.HasSuffix(trimmed, "."+apex)
}
