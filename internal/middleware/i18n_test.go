package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func request(headers map[string]string) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/v1/campaigns", nil)
	r.RemoteAddr = "203.0.113.4:51000"
	for k, v := range headers {
		r.Header.Set(k, v)
	}
	return r
}

func TestDetectLocalePrecedence(t *testing.T) {
	cases := map[string]struct {
		headers  map[string]string
		fallback string
		country  string
		want     string
	}{
		"explicit wins over country":     {headers: map[string]string{"X-Locale": "ID"}, country: "US", want: "id"},
		"posix style explicit":           {headers: map[string]string{"X-Locale": "vi_VN"}, want: "vi"},
		"garbage explicit":               {headers: map[string]string{"X-Locale": "!!"}, country: "ID", want: "en"},
		"accept-language first match":    {headers: map[string]string{"Accept-Language": "id-ID,en;q=0.8"}, want: "id"},
		"accept-language skips unknowns": {headers: map[string]string{"Accept-Language": "fr-FR;q=0.9, vi;q=0.8"}, want: "vi"},
		"accept-language unsupported":    {headers: map[string]string{"Accept-Language": "de-DE"}, country: "VN", want: "en"},
		"country mapping":                {country: "VN", want: "vi"},
		"unmapped country":               {country: "SG", fallback: "id", want: "en"},
		"configured fallback":            {fallback: "id", want: "id"},
		"nothing known":                  {want: "en"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.want, detectLocale(request(tc.headers), tc.fallback, tc.country))
		})
	}
}

func TestResolveCountrySources(t *testing.T) {
	geo := func(ip string) (string, error) {
		if ip != "203.0.113.4" {
			return "", errors.New("unexpected ip " + ip)
		}
		return "my", nil
	}
	cases := map[string]struct {
		headers map[string]string
		lookup  CountryLookup
		want    string
	}{
		"edge header first":      {headers: map[string]string{"CF-IPCountry": "id", "X-Locale": "en-AU"}, lookup: geo, want: "ID"},
		"explicit locale region": {headers: map[string]string{"X-Locale": "en-AU"}, lookup: geo, want: "AU"},
		"accept-language region": {headers: map[string]string{"Accept-Language": "en-GB,en;q=0.9"}, want: "GB"},
		"bare language is no region": {
			headers: map[string]string{"Accept-Language": "id;q=0.8"},
			lookup:  func(string) (string, error) { return "", nil },
			want:    "",
		},
		"geoip fallback":  {lookup: geo, want: "MY"},
		"geoip failure":   {lookup: func(string) (string, error) { return "", errors.New("boom") }, want: ""},
		"no lookup wired": {want: ""},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.want, ResolveCountry(request(tc.headers), tc.lookup))
		})
	}
}

func TestClientIPStripsPort(t *testing.T) {
	assert.Equal(t, "203.0.113.4", ClientIP(request(nil)))
	r := request(nil)
	r.RemoteAddr = "2001:db8::7"
	assert.Equal(t, "2001:db8::7", ClientIP(r))
	r.RemoteAddr = "[2001:db8::7]:443"
	assert.Equal(t, "2001:db8::7", ClientIP(r))
}

func TestLocaleFromContextDefaultsToEnglish(t *testing.T) {
	assert.Equal(t, "en", LocaleFromContext(context.Background()))
	assert.Equal(t, "vi", LocaleFromContext(context.WithValue(context.Background(), LocaleKey, "vi")))
	assert.Equal(t, "", CountryFromContext(context.Background()))
}

func TestI18NStoresLocaleAndCountry(t *testing.T) {
	var locale, country string
	h := I18N("en", func(string) (string, error) { return "vn", nil })(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		locale = LocaleFromContext(r.Context())
		country = CountryFromContext(r.Context())
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, request(nil))

	assert.Equal(t, "vi", locale)
	assert.Equal(t, "VN", country)
	assert.Equal(t, "vi", rec.Header().Get("Content-Language"))
}
