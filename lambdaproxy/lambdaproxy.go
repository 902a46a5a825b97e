// Package lambdaproxy serves an http.Handler behind AWS Lambda. It accepts API
// Gateway REST (payload v1), HTTP API (payload v2) and function URL events and
// replays them as ordinary HTTP requests.
package lambdaproxy

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/aws/aws-lambda-go/events"
)

// ErrUnsupportedEvent is returned for payloads that are not HTTP events.
var ErrUnsupportedEvent = errors.New("unsupported lambda event")

type Adapter struct {
	handler http.Handler
}

func New(h http.Handler) *Adapter {
	if h == nil {
		panic("handler is required")
	}
	return &Adapter{handler: h}
}

// Handle is the Lambda entrypoint; pass it to lambda.Start. It returns an
// events.APIGatewayProxyResponse or events.APIGatewayV2HTTPResponse matching
// the request payload version.
func (a *Adapter) Handle(ctx context.Context, raw json.RawMessage) (any, error) {
	var probe struct {
		Version    string `json:"version"`
		HTTPMethod string `json:"httpMethod"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedEvent, err)
	}

	switch {
	case probe.Version == "2.0":
		var req events.APIGatewayV2HTTPRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			return nil, fmt.Errorf("decode v2 event: %w", err)
		}
		return a.ServeV2(ctx, req)
	case probe.HTTPMethod != "":
		var req events.APIGatewayProxyRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			return nil, fmt.Errorf("decode v1 event: %w", err)
		}
		return a.ServeV1(ctx, req)
	default:
		return nil, ErrUnsupportedEvent
	}
}

// ServeV1 handles an API Gateway REST (payload v1) event.
func (a *Adapter) ServeV1(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	body, err := decodeBody(req.Body, req.IsBase64Encoded)
	if err != nil {
		return events.APIGatewayProxyResponse{}, err
	}

	query := url.Values{}
	if len(req.MultiValueQueryStringParameters) > 0 {
		for k, vs := range req.MultiValueQueryStringParameters {
			for _, v := range vs {
				query.Add(k, v)
			}
		}
	} else {
		for k, v := range req.QueryStringParameters {
			query.Set(k, v)
		}
	}

	u := url.URL{Path: req.Path, RawQuery: query.Encode()}
	r, err := http.NewRequestWithContext(ctx, req.HTTPMethod, u.RequestURI(), bytes.NewReader(body))
	if err != nil {
		return events.APIGatewayProxyResponse{}, fmt.Errorf("build request: %w", err)
	}
	if len(req.MultiValueHeaders) > 0 {
		for k, vs := range req.MultiValueHeaders {
			for _, v := range vs {
				r.Header.Add(k, v)
			}
		}
	} else {
		for k, v := range req.Headers {
			r.Header.Set(k, v)
		}
	}
	finishRequest(r, req.RequestContext.Identity.SourceIP, len(body))

	w := newResponseWriter()
	a.handler.ServeHTTP(w, r)

	out, isB64 := w.encodedBody()
	resp := events.APIGatewayProxyResponse{
		StatusCode:        w.statusCode(),
		Headers:           make(map[string]string, len(w.header)),
		MultiValueHeaders: make(map[string][]string, len(w.header)),
		Body:              out,
		IsBase64Encoded:   isB64,
	}
	for k, vs := range w.header {
		resp.Headers[k] = vs[0]
		resp.MultiValueHeaders[k] = vs
	}
	return resp, nil
}

// ServeV2 handles an HTTP API (payload v2) or function URL event.
func (a *Adapter) ServeV2(ctx context.Context, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	body, err := decodeBody(req.Body, req.IsBase64Encoded)
	if err != nil {
		return events.APIGatewayV2HTTPResponse{}, err
	}

	path := req.RawPath
	if path == "" {
		path = req.RequestContext.HTTP.Path
	}
	if path == "" {
		path = "/"
	}
	target := path
	if req.RawQueryString != "" {
		target += "?" + req.RawQueryString
	}

	r, err := http.NewRequestWithContext(ctx, req.RequestContext.HTTP.Method, target, bytes.NewReader(body))
	if err != nil {
		return events.APIGatewayV2HTTPResponse{}, fmt.Errorf("build request: %w", err)
	}
	for k, v := range req.Headers {
		r.Header.Set(k, v)
	}
	if len(req.Cookies) > 0 {
		r.Header.Set("Cookie", strings.Join(req.Cookies, "; "))
	}
	finishRequest(r, req.RequestContext.HTTP.SourceIP, len(body))

	w := newResponseWriter()
	a.handler.ServeHTTP(w, r)

	out, isB64 := w.encodedBody()
	resp := events.APIGatewayV2HTTPResponse{
		StatusCode:      w.statusCode(),
		Headers:         make(map[string]string, len(w.header)),
		Body:            out,
		IsBase64Encoded: isB64,
	}
	for k, vs := range w.header {
		if http.CanonicalHeaderKey(k) == "Set-Cookie" {
			resp.Cookies = append(resp.Cookies, vs...)
			continue
		}
		resp.Headers[k] = strings.Join(vs, ",")
	}
	return resp, nil
}

func decodeBody(body string, isBase64 bool) ([]byte, error) {
	if !isBase64 {
		return []byte(body), nil
	}
	b, err := base64.StdEncoding.DecodeString(body)
	if err != nil {
		return nil, fmt.Errorf("decode base64 body: %w", err)
	}
	return b, nil
}

func finishRequest(r *http.Request, sourceIP string, n int) {
	r.ContentLength = int64(n)
	if host := r.Header.Get("Host"); host != "" {
		r.Host = host
	}
	if sourceIP != "" {
		r.RemoteAddr = sourceIP + ":0"
	}
	r.RequestURI = r.URL.RequestURI()
}

// responseWriter buffers a handler response for conversion into an event.
type responseWriter struct {
	header http.Header
	status int
	body   bytes.Buffer
}

func newResponseWriter() *responseWriter {
	return &responseWriter{header: make(http.Header)}
}

func (w *responseWriter) Header() http.Header { return w.header }

func (w *responseWriter) WriteHeader(code int) {
	if w.status == 0 {
		w.status = code
	}
}

func (w *responseWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.WriteHeader(http.StatusOK)
	}
	return w.body.Write(b)
}

func (w *responseWriter) statusCode() int {
	if w.status == 0 {
		return http.StatusOK
	}
	return w.status
}

// encodedBody returns text bodies as-is and everything else base64 encoded.
func (w *responseWriter) encodedBody() (string, bool) {
	b := w.body.Bytes()
	if isText(w.header.Get("Content-Type")) && utf8.Valid(b) {
		return string(b), false
	}
	if len(b) == 0 {
		return "", false
	}
	return base64.StdEncoding.EncodeToString(b), true
}

func isText(contentType string) bool {
	if contentType == "" {
		return true
	}
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	switch {
	case strings.HasPrefix(mt, "text/"),
		mt == "application/json",
		strings.HasSuffix(mt, "+json"),
		mt == "application/xml",
		mt == "application/javascript":
		return true
	}
	return false
}
