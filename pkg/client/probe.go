package client

import (
	"net/http"
)

// Endpoint fallback probing: when a specifically configured endpoint
// returns 404 on its primary path, a bounded set of alternate path and
// parameter-name variants is attempted exactly once before giving up.
// This absorbs upstream API-version drift (the orders resource has moved
// between generations and renamed its date filters); it is not a general
// retry mechanism and never loops.

// endpointVariant is one alternate request shape for a fragile endpoint.
type endpointVariant struct {
	// path overrides the primary path when non-empty.
	path string

	// paramRenames maps original query parameter names to the variant's.
	paramRenames map[string]string

	// pageSizeParam overrides the page-size parameter name when non-empty.
	pageSizeParam string
}

// fallbackVariants lists the endpoints eligible for probing. Endpoints
// absent from this table fail a 404 immediately.
var fallbackVariants = map[string][]endpointVariant{
	"orders": {
		{
			// Same generation, alternate filter naming some tenants expose.
			paramRenames: map[string]string{
				"created_at_start": "order_date_start",
				"created_at_end":   "order_date_end",
			},
		},
		{
			// Legacy generation path and naming.
			path: "/orders/list",
			paramRenames: map[string]string{
				"created_at_start": "orderDateStart",
				"created_at_end":   "orderDateEnd",
			},
			pageSizeParam: "pageSize",
		},
	},
}

// probeVariants tries each configured variant once for the current page.
// On success the variant is adopted for the remainder of the sequence and
// the successful response is returned for consumption. On failure the
// originally requested path and parameter semantics are left untouched.
func (p *Pages) probeVariants() (http.Header, []byte, bool) {
	variants := fallbackVariants[p.endpoint]
	if len(variants) == 0 {
		return nil, nil, false
	}

	p.client.logger.Warn().
		Str("endpoint", p.endpoint).
		Str("path", p.path).
		Int("variants", len(variants)).
		Msg("Primary path returned 404, probing alternate variants")

	for i, v := range variants {
		path := p.path
		if v.path != "" {
			path = v.path
		}
		params := renameParams(p.params, v.paramRenames)
		pageSizeParam := p.pageSizeParam
		if v.pageSizeParam != "" {
			pageSizeParam = v.pageSizeParam
		}

		status, header, body, err := p.fetch(path, params, pageSizeParam)
		if err != nil || status != http.StatusOK {
			p.client.logger.Warn().
				Str("endpoint", p.endpoint).
				Int("variant", i).
				Int("status", status).
				Msg("Fallback variant did not succeed")
			continue
		}

		p.client.logger.Info().
			Str("endpoint", p.endpoint).
			Int("variant", i).
			Str("path", path).
			Msg("Adopted fallback variant for remainder of sequence")

		p.path = path
		p.params = params
		p.pageSizeParam = pageSizeParam
		return header, body, true
	}

	return nil, nil, false
}

// renameParams returns a copy of params with the given keys renamed.
func renameParams(params Params, renames map[string]string) Params {
	out := Params{}
	for k, v := range params {
		if renamed, ok := renames[k]; ok {
			out[renamed] = v
			continue
		}
		out[k] = v
	}
	return out
}
