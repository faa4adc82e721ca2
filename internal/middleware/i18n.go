package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"

	"golang.org/x/text/language"
)

type localeContextKey struct{}
type countryContextKey struct{}

var (
	LocaleKey  = localeContextKey{}
	CountryKey = countryContextKey{}
)

// SupportedLocales lists the message catalogs the API serves, default first.
var SupportedLocales = []language.Tag{language.English, language.Indonesian, language.Vietnamese}

var localeMatcher = language.NewMatcher(SupportedLocales)

// countryLocales picks a locale for visitors whose browser gave no usable
// preference. Countries not listed get English.
var countryLocales = map[string]string{
	"ID": "id",
	"VN": "vi",
}

// countryHeaders are set by CDNs and load balancers in front of the API.
var countryHeaders = []string{"X-Country-Code", "X-IP-Country", "CF-IPCountry", "X-Appengine-Country"}

// CountryLookup resolves ISO country codes for an IP address.
type CountryLookup func(ip string) (string, error)

// I18N stores the request's locale and country in the context and echoes the
// locale in Content-Language. Error messages are rendered in that locale.
func I18N(defaultLocale string, lookup CountryLookup) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			country := ResolveCountry(r, lookup)
			locale := detectLocale(r, defaultLocale, country)

			ctx := context.WithValue(r.Context(), LocaleKey, locale)
			if country != "" {
				ctx = context.WithValue(ctx, CountryKey, country)
			}
			annotateLocale(ctx, locale, country)
			w.Header().Set("Content-Language", locale)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// detectLocale prefers, in order: an explicit X-Locale, Accept-Language, the
// visitor's country and finally the configured default.
func detectLocale(r *http.Request, fallback, country string) string {
	if explicit := strings.TrimSpace(r.Header.Get("X-Locale")); explicit != "" {
		return matchLocale(explicit)
	}
	if tags, _, err := language.ParseAcceptLanguage(r.Header.Get("Accept-Language")); err == nil && len(tags) > 0 {
		return closestLocale(tags...)
	}
	if country != "" {
		if locale, ok := countryLocales[country]; ok {
			return locale
		}
		return "en"
	}
	if fallback != "" {
		return matchLocale(fallback)
	}
	return "en"
}

// matchLocale maps a BCP 47 tag, or a POSIX-style id_ID, to the closest
// supported locale.
func matchLocale(locale string) string {
	tag, err := language.Parse(strings.ReplaceAll(locale, "_", "-"))
	if err != nil {
		return "en"
	}
	return closestLocale(tag)
}

func closestLocale(tags ...language.Tag) string {
	_, idx, conf := localeMatcher.Match(tags...)
	if conf == language.No {
		return "en"
	}
	base, _ := SupportedLocales[idx].Base()
	return base.String()
}

// ClientIP returns the request's client address without the port. Behind a
// proxy it relies on chi's RealIP having rewritten RemoteAddr.
func ClientIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

func LocaleFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(LocaleKey).(string); ok && v != "" {
		return v
	}
	return "en"
}

// CountryFromContext returns the upper-case ISO country code, or "".
func CountryFromContext(ctx context.Context) string {
	v, _ := ctx.Value(CountryKey).(string)
	return v
}

// ResolveCountry returns an upper-case ISO country code from, in order: edge
// proxy headers, an explicit region in X-Locale or Accept-Language, and the
// GeoIP lookup of the client address.
func ResolveCountry(r *http.Request, lookup CountryLookup) string {
	if r == nil {
		return ""
	}
	for _, h := range countryHeaders {
		if v := strings.TrimSpace(r.Header.Get(h)); v != "" {
			return strings.ToUpper(v)
		}
	}
	for _, h := range []string{"X-Locale", "Accept-Language"} {
		if region := localeRegion(r.Header.Get(h)); region != "" {
			return region
		}
	}
	if lookup == nil {
		return ""
	}
	ip := ClientIP(r)
	if ip == "" {
		return ""
	}
	country, err := lookup(ip)
	if err != nil {
		return ""
	}
	return strings.ToUpper(country)
}

// localeRegion returns the explicit region subtag of the first tag in accept.
func localeRegion(accept string) string {
	first, _, _ := strings.Cut(accept, ",")
	first, _, _ = strings.Cut(first, ";")
	first = strings.TrimSpace(first)
	if first == "" {
		return ""
	}
	tag, err := language.Parse(strings.ReplaceAll(first, "_", "-"))
	if err != nil {
		return ""
	}
	if region, conf := tag.Region(); conf == language.Exact {
		return region.String()
	}
	return ""
}
