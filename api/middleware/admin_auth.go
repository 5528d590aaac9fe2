package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/keydrop/keydrop-backend/api/responses"
	"github.com/keydrop/keydrop-backend/pkg/config"
	pkgerrors "github.com/keydrop/keydrop-backend/pkg/errors"
	"github.com/keydrop/keydrop-backend/pkg/logger"
)

const adminPasswordHeader = "X-Admin-Password"

// AdminAuth guards operator routes with the shared static credential. The
// storefront has one operator and no user model; a constant-time compare on a
// header is the whole auth story.
func AdminAuth(cfg config.AdminConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			if cfg.Password == "" {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "admin credential not configured"))
				return
			}

			supplied := strings.TrimSpace(r.Header.Get(adminPasswordHeader))
			if supplied == "" || subtle.ConstantTimeCompare([]byte(supplied), []byte(cfg.Password)) != 1 {
				if logg != nil {
					logg.Warn(ctx, "admin auth rejected")
				}
				responses.WriteError(ctx, nil, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid admin credential"))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
