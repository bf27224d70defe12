package handlers

import (
	"net/http"
	"strconv"
	"strings"
)

// geoHeaders maps proxy-supplied geolocation headers onto the geo record
// fields rule expressions can reference. Everything is best-effort: absent
// headers simply leave the field unset.
var geoHeaders = []struct {
	header string
	field  string
}{
	{"CF-IPCountry", "country"},
	{"CF-IPContinent", "continent"},
	{"CF-Region", "region"},
	{"CF-Region-Code", "regionCode"},
	{"CF-IPCity", "city"},
	{"CF-Postal-Code", "postalCode"},
	{"CF-Timezone", "timezone"},
}

// geoFromHeaders assembles the geo record for rule expressions from
// whatever the fronting proxy forwarded. Returns nil when nothing was
// forwarded, so `geo` stays null in the expression environment.
func geoFromHeaders(h http.Header) map[string]any {
	geo := make(map[string]any)
	for _, m := range geoHeaders {
		if v := h.Get(m.header); v != "" {
			geo[m.field] = v
		}
	}
	if v := h.Get("CF-IPLatitude"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			geo["latitude"] = f
		}
	}
	if v := h.Get("CF-IPLongitude"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			geo["longitude"] = f
		}
	}
	if v := h.Get("CF-IPisEUCountry"); v != "" {
		geo["isEUCountry"] = v == "1" || strings.EqualFold(v, "true")
	}
	if len(geo) == 0 {
		return nil
	}
	return geo
}

// requestRecord exposes transport details to rule expressions as the
// `request` variable. Header names are lowercased so rules do not need to
// know Go's canonical form.
func requestRecord(r *http.Request) map[string]any {
	headers := make(map[string]any, len(r.Header))
	for name, values := range r.Header {
		if len(values) > 0 {
			headers[strings.ToLower(name)] = values[0]
		}
	}
	return map[string]any{
		"headers": headers,
		"method":  r.Method,
	}
}
