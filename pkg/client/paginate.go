package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	json "github.com/goccy/go-json"
)

// Pages is a lazy, finite sequence of record pages for one endpoint. It is
// produced by Client.Paginate and consumed with the usual iterator shape:
//
//	pages := client.Paginate(ctx, "shipments", params)
//	for pages.Next() {
//	    for _, record := range pages.Records() {
//	        ...
//	    }
//	}
//	if err := pages.Err(); err != nil {
//	    ...
//	}
//
// Rate limit waits and 429 retries happen inside Next; they never surface
// as errors. Authentication and structural failures terminate the sequence.
type Pages struct {
	client   *Client
	ctx      context.Context
	endpoint string

	// Effective request shape. Fallback probing may swap these for an
	// alternate variant mid-sequence.
	path          string
	params        Params
	pageSizeParam string

	page    int
	records []Record
	err     error
	done    bool
	probed  bool
}

// Paginate returns the lazy page sequence for an endpoint. params may
// carry a starting page index under "page" (default 1); every other entry
// is passed through as a query parameter on each request.
func (c *Client) Paginate(ctx context.Context, endpoint string, params Params) *Pages {
	p := &Pages{
		client:        c,
		ctx:           ctx,
		endpoint:      endpoint,
		params:        Params{},
		pageSizeParam: c.config.PageSizeParam,
		page:          1,
	}

	path, ok := endpointPaths[endpoint]
	if !ok {
		p.err = fmt.Errorf("unknown endpoint %q", endpoint)
		p.done = true
		return p
	}
	p.path = path

	for k, v := range params {
		if k == "page" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				p.page = n
			}
			continue
		}
		p.params[k] = v
	}

	return p
}

// Next fetches the next page. It returns false when the sequence is
// exhausted or a fatal error occurred; check Err afterwards.
func (p *Pages) Next() bool {
	if p.done || p.err != nil {
		return false
	}

	for {
		// The only intentional blocking point: honor the budget observed
		// on the previous response before issuing the next request.
		if err := p.client.limiter.Wait(p.ctx); err != nil {
			p.err = err
			return false
		}

		status, header, body, err := p.fetch(p.path, p.params, p.pageSizeParam)
		if err != nil {
			p.err = err
			return false
		}

		switch {
		case status == http.StatusOK:
			return p.consume(header, body)

		case status == http.StatusTooManyRequests:
			// Blocking delay, then retry the SAME page.
			if err := p.client.waitAfterTooManyRequests(p.ctx, header); err != nil {
				p.err = err
				return false
			}

		case status == http.StatusUnauthorized || status == http.StatusForbidden:
			p.client.logger.Error().
				Str("endpoint", p.endpoint).
				Int("status", status).
				Str("auth_mode", string(p.client.authMode)).
				Msg("Authentication rejected; verify the credentials for the active auth mode")
			errorsTotal.WithLabelValues(string(ErrorClassAuth)).Inc()
			p.err = &APIError{
				StatusCode:  status,
				Class:       ErrorClassAuth,
				Endpoint:    p.endpoint,
				Message:     fmt.Sprintf("authentication rejected under %s auth", p.client.authMode),
				BodyExcerpt: excerpt(body),
			}
			return false

		case status == http.StatusNotFound:
			if !p.probed {
				p.probed = true
				if hdr, probeBody, ok := p.probeVariants(); ok {
					return p.consume(hdr, probeBody)
				}
			}
			errorsTotal.WithLabelValues(string(ErrorClassNotFound)).Inc()
			p.err = &APIError{
				StatusCode:  status,
				Class:       ErrorClassNotFound,
				Endpoint:    p.endpoint,
				Message:     "resource not found",
				BodyExcerpt: excerpt(body),
			}
			return false

		default:
			class := classifyStatus(status)
			p.client.logger.Error().
				Str("endpoint", p.endpoint).
				Int("status", status).
				Str("body_excerpt", excerpt(body)).
				Msg("Request failed")
			errorsTotal.WithLabelValues(string(class)).Inc()
			p.err = &APIError{
				StatusCode:  status,
				Class:       class,
				Endpoint:    p.endpoint,
				Message:     "unexpected status",
				BodyExcerpt: excerpt(body),
			}
			return false
		}
	}
}

// Records returns the current page's record list. Valid after Next has
// returned true, until the following call to Next.
func (p *Pages) Records() []Record {
	return p.records
}

// Err returns the error that terminated the sequence, if any.
func (p *Pages) Err() error {
	return p.err
}

// fetch issues the request for the current page and reads the body. The
// rate limit observation is refreshed from every response.
func (p *Pages) fetch(path string, params Params, pageSizeParam string) (int, http.Header, []byte, error) {
	query := url.Values{}
	for k, v := range params {
		query.Set(k, v)
	}
	query.Set(pageSizeParam, strconv.Itoa(p.client.config.PageSize))
	query.Set("page", strconv.Itoa(p.page))

	resp, status, err := p.client.get(p.ctx, p.endpoint, path, query)
	if err != nil {
		return 0, nil, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, nil, &APIError{
			StatusCode: status,
			Class:      ErrorClassNetwork,
			Endpoint:   p.endpoint,
			Message:    "read response body",
			Err:        err,
		}
	}

	p.client.limiter.Observe(resp.Header)

	return status, resp.Header, body, nil
}

// consume parses a 200 response, stores the page's records, and decides
// continuation for the request after this one.
func (p *Pages) consume(headers http.Header, body []byte) bool {
	var envelope map[string]any
	if err := json.Unmarshal(body, &envelope); err != nil {
		// A non-JSON 200 body means the upstream served an error page
		// disguised as success. Structural failure, not a fallback path.
		p.client.logger.Error().
			Str("endpoint", p.endpoint).
			Int("status", http.StatusOK).
			Interface("headers", flattenHeaders(headers)).
			Str("body_excerpt", excerpt(body)).
			Msg("Non-JSON body on a 200 response")
		errorsTotal.WithLabelValues(string(ErrorClassStructural)).Inc()
		p.err = &APIError{
			StatusCode:  http.StatusOK,
			Class:       ErrorClassStructural,
			Endpoint:    p.endpoint,
			Message:     "unparseable response body",
			BodyExcerpt: excerpt(body),
			Err:         err,
		}
		return false
	}

	// Explicit zero total: stop immediately, nothing to yield.
	if total, ok := intField(envelope, "total"); ok && total == 0 {
		p.client.logger.Info().
			Str("endpoint", p.endpoint).
			Msg("No data for endpoint")
		p.done = true
		return false
	}

	p.records = extractRecords(envelope, p.endpoint)
	pagesTotal.WithLabelValues(p.endpoint).Inc()

	decision := decideContinuation(envelope, len(p.records), p.client.config.PageSize)
	p.client.logger.Debug().
		Str("endpoint", p.endpoint).
		Int("page", p.page).
		Int("records", len(p.records)).
		Str("strategy", decision.strategy).
		Bool("more", decision.more).
		Msg("Finished requesting page")

	if decision.more {
		p.page++
	} else {
		p.done = true
	}

	return true
}

// extractRecords pulls the record array keyed by the endpoint's own
// resource name, falling back to an empty list if absent.
func extractRecords(envelope map[string]any, key string) []Record {
	list, ok := envelope[key].([]any)
	if !ok {
		return []Record{}
	}

	records := make([]Record, 0, len(list))
	for _, item := range list {
		if m, ok := item.(map[string]any); ok {
			records = append(records, Record(m))
		}
	}
	return records
}

// flattenHeaders reduces response headers to single values for logging.
func flattenHeaders(headers http.Header) map[string]string {
	flat := make(map[string]string, len(headers))
	for k := range headers {
		flat[k] = headers.Get(k)
	}
	return flat
}
