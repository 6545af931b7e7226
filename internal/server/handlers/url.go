package handlers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/watzon/lambdev/internal/functions"
	"github.com/watzon/lambdev/internal/requestctx"
	"github.com/watzon/lambdev/internal/scheduler"
)

// URLEvent is the payload a function URL sends to its function
// (API Gateway HTTP API payload format 2.0).
type URLEvent struct {
	Version               string            `json:"version"`
	RouteKey              string            `json:"routeKey"`
	RawPath               string            `json:"rawPath"`
	RawQueryString        string            `json:"rawQueryString"`
	Cookies               []string          `json:"cookies,omitempty"`
	Headers               map[string]string `json:"headers"`
	QueryStringParameters map[string]string `json:"queryStringParameters,omitempty"`
	RequestContext        URLRequestContext `json:"requestContext"`
	Body                  string            `json:"body,omitempty"`
	IsBase64Encoded       bool              `json:"isBase64Encoded"`
}

// URLRequestContext describes the HTTP request behind a URLEvent.
type URLRequestContext struct {
	AccountID    string         `json:"accountId"`
	APIID        string         `json:"apiId"`
	DomainName   string         `json:"domainName"`
	DomainPrefix string         `json:"domainPrefix"`
	HTTP         URLHTTPContext `json:"http"`
	RequestID    string         `json:"requestId"`
	RouteKey     string         `json:"routeKey"`
	Stage        string         `json:"stage"`
	Time         string         `json:"time"`
	TimeEpoch    int64          `json:"timeEpoch"`
}

// URLHTTPContext is the http block of a URLRequestContext.
type URLHTTPContext struct {
	Method    string `json:"method"`
	Path      string `json:"path"`
	Protocol  string `json:"protocol"`
	SourceIP  string `json:"sourceIp"`
	UserAgent string `json:"userAgent"`
}

// URLResponse is the structured result a function may return to a function URL.
type URLResponse struct {
	StatusCode      int               `json:"statusCode"`
	Headers         map[string]string `json:"headers"`
	Cookies         []string          `json:"cookies"`
	Body            string            `json:"body"`
	IsBase64Encoded bool              `json:"isBase64Encoded"`
}

const urlTimeFormat = "02/Jan/2006:15:04:05 -0700"

// URLHandlers serve function URLs.
type URLHandlers struct {
	invoker     *Invoker
	accountID   string
	maxBodySize int64
}

// NewURLHandlers creates function URL handlers.
func NewURLHandlers(invoker *Invoker, accountID string, maxBodySize int64) *URLHandlers {
	return &URLHandlers{
		invoker:     invoker,
		accountID:   accountID,
		maxBodySize: maxBodySize,
	}
}

// Serve handles /lambda-url/{function}/{path...}.
func (h *URLHandlers) Serve(w http.ResponseWriter, r *http.Request) {
	function := r.PathValue("function")
	requestctx.Annotate(r.Context(), function, "")

	if err := functions.ValidateName(function); err != nil {
		JSON(w, http.StatusBadRequest, map[string]string{"Message": err.Error()})
		return
	}

	if h.maxBodySize > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBodySize)
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			Error(w, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "request body too large")
			return
		}
		BadRequest(w, "failed to read body")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.invoker.Timeout(function))
	defer cancel()

	// The event carries the request id, so the id comes first.
	id := uuid.NewString()
	event := BuildURLEvent(r, function, h.accountID, id, "/"+r.PathValue("path"), body)
	payload, err := json.Marshal(event)
	if err != nil {
		InternalError(w, "failed to encode event")
		return
	}

	deadline, _ := ctx.Deadline()
	inv := h.invoker.NewWithID(id, function, payload, scheduler.Metadata{
		TraceID:  r.Header.Get("X-Amzn-Trace-Id"),
		Deadline: deadline,
		Trigger:  scheduler.TriggerURL,
	})
	requestctx.Annotate(r.Context(), "", inv.ID)

	resp, err := h.invoker.Run(ctx, inv)
	w.Header().Set("X-Amzn-RequestId", inv.ID)

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		JSON(w, http.StatusGatewayTimeout, map[string]string{"Message": "Endpoint request timed out"})
		return
	case err != nil:
		JSON(w, http.StatusBadGateway, map[string]string{"Message": "Internal Server Error"})
		return
	case resp.Failed():
		JSON(w, http.StatusBadGateway, map[string]string{"Message": "Internal Server Error"})
		return
	}

	WriteURLResponse(w, resp.Payload)
}

// BuildURLEvent translates an HTTP request into a function URL event.
func BuildURLEvent(r *http.Request, function, accountID, requestID, path string, body []byte) *URLEvent {
	now := time.Now()

	headers := make(map[string]string, len(r.Header))
	for name, values := range r.Header {
		lower := strings.ToLower(name)
		if lower == "cookie" {
			continue
		}
		headers[lower] = strings.Join(values, ",")
	}
	if r.Host != "" {
		headers["host"] = r.Host
	}

	var cookies []string
	for _, c := range r.Cookies() {
		cookies = append(cookies, c.String())
	}

	var query map[string]string
	if values := r.URL.Query(); len(values) > 0 {
		query = make(map[string]string, len(values))
		for k, v := range values {
			query[k] = strings.Join(v, ",")
		}
	}

	sourceIP := r.RemoteAddr
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		sourceIP = host
	}

	event := &URLEvent{
		Version:               "2.0",
		RouteKey:              "$default",
		RawPath:               path,
		RawQueryString:        r.URL.RawQuery,
		Cookies:               cookies,
		Headers:               headers,
		QueryStringParameters: query,
		RequestContext: URLRequestContext{
			AccountID:    accountID,
			APIID:        function,
			DomainName:   r.Host,
			DomainPrefix: function,
			HTTP: URLHTTPContext{
				Method:    r.Method,
				Path:      path,
				Protocol:  r.Proto,
				SourceIP:  sourceIP,
				UserAgent: r.UserAgent(),
			},
			RequestID: requestID,
			RouteKey:  "$default",
			Stage:     "$default",
			Time:      now.UTC().Format(urlTimeFormat),
			TimeEpoch: now.UnixMilli(),
		},
	}

	if len(body) > 0 {
		if isTextual(r.Header.Get("Content-Type")) {
			event.Body = string(body)
		} else {
			event.Body = base64.StdEncoding.EncodeToString(body)
			event.IsBase64Encoded = true
		}
	}

	return event
}

// WriteURLResponse translates a function result into the HTTP response. Results
// without a statusCode are returned as a JSON body.
func WriteURLResponse(w http.ResponseWriter, payload []byte) {
	var probe map[string]json.RawMessage
	structured := false
	if err := json.Unmarshal(payload, &probe); err == nil {
		_, structured = probe["statusCode"]
	}

	var resp URLResponse
	if !structured || json.Unmarshal(payload, &resp) != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(payload)
		return
	}

	keys := make([]string, 0, len(resp.Headers))
	for k := range resp.Headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		w.Header().Set(k, resp.Headers[k])
	}
	for _, c := range resp.Cookies {
		w.Header().Add("Set-Cookie", c)
	}

	body := []byte(resp.Body)
	if resp.IsBase64Encoded {
		decoded, err := base64.StdEncoding.DecodeString(resp.Body)
		if err != nil {
			JSON(w, http.StatusBadGateway, map[string]string{"Message": "Internal Server Error"})
			return
		}
		body = decoded
	}

	status := resp.StatusCode
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func isTextual(contentType string) bool {
	if contentType == "" {
		return true
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	if strings.HasPrefix(mediaType, "text/") {
		return true
	}
	switch mediaType {
	case "application/json", "application/xml", "application/javascript",
		"application/x-www-form-urlencoded", "application/graphql":
		return true
	}
	return strings.HasSuffix(mediaType, "+json") || strings.HasSuffix(mediaType, "+xml")
}
