// Package middleware holds site-level HTTP middleware.
package middleware

import (
	"net/http"

	"github.com/GearConnect-Official/gearconnect-landing/internal/i18n"
	"github.com/GearConnect-Official/gearconnect-landing/internal/platform/requestctx"
)

const (
	LangCookie    = "lang"
	LangQuery     = "lang"
	langCookieAge = 365 * 24 * 60 * 60
)

// Locale resolves the request language, stores it on the context and
// refreshes the lang cookie on every response.
func Locale(resolver *i18n.Resolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var cookie string
			if c, err := r.Cookie(LangCookie); err == nil {
				cookie = c.Value
			}
			lang := resolver.Resolve(r.URL.Query().Get(LangQuery), cookie, r.Header.Get("Accept-Language"))

			http.SetCookie(w, &http.Cookie{
				Name:     LangCookie,
				Value:    string(lang),
				Path:     "/",
				MaxAge:   langCookieAge,
				SameSite: http.SameSiteLaxMode,
			})
			w.Header().Set("Content-Language", string(lang))
			w.Header().Add("Vary", "Accept-Language")
			w.Header().Add("Vary", "Cookie")

			next.ServeHTTP(w, r.WithContext(requestctx.WithLocale(r.Context(), string(lang))))
		})
	}
}

// Lang returns the request language, defaulting when Locale did not run.
func Lang(r *http.Request) i18n.Language {
	if lang := requestctx.Locale(r.Context()); lang != "" {
		return i18n.Language(lang)
	}
	return i18n.Default
}
