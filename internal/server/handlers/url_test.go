package handlers

import (
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildURLEvent(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "http://localhost:9001/lambda-url/web/items/42?a=1&a=2&b=x", strings.NewReader(`{"k":"v"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "test-agent")
	req.Header.Add("X-Multi", "one")
	req.Header.Add("X-Multi", "two")
	req.AddCookie(&http.Cookie{Name: "session", Value: "abc"})
	req.RemoteAddr = "10.0.0.7:5555"

	event := BuildURLEvent(req, "web", "123456789012", "req-1", "/items/42", []byte(`{"k":"v"}`))

	assert.Equal(t, "2.0", event.Version)
	assert.Equal(t, "$default", event.RouteKey)
	assert.Equal(t, "/items/42", event.RawPath)
	assert.Equal(t, "a=1&a=2&b=x", event.RawQueryString)
	assert.Equal(t, map[string]string{"a": "1,2", "b": "x"}, event.QueryStringParameters)
	assert.Equal(t, []string{"session=abc"}, event.Cookies)
	assert.Equal(t, "one,two", event.Headers["x-multi"])
	assert.Equal(t, "application/json", event.Headers["content-type"])
	assert.NotContains(t, event.Headers, "cookie")
	assert.Equal(t, `{"k":"v"}`, event.Body)
	assert.False(t, event.IsBase64Encoded)

	rc := event.RequestContext
	assert.Equal(t, "123456789012", rc.AccountID)
	assert.Equal(t, "web", rc.APIID)
	assert.Equal(t, "req-1", rc.RequestID)
	assert.Equal(t, http.MethodPost, rc.HTTP.Method)
	assert.Equal(t, "/items/42", rc.HTTP.Path)
	assert.Equal(t, "10.0.0.7", rc.HTTP.SourceIP)
	assert.Equal(t, "test-agent", rc.HTTP.UserAgent)
	assert.NotZero(t, rc.TimeEpoch)
}

func TestBuildURLEvent_BinaryBody(t *testing.T) {
	body := []byte{0x00, 0xff, 0x10}
	req := httptest.NewRequest(http.MethodPut, "/lambda-url/web/upload", nil)
	req.Header.Set("Content-Type", "application/octet-stream")

	event := BuildURLEvent(req, "web", "000000000000", "req-2", "/upload", body)

	assert.True(t, event.IsBase64Encoded)
	assert.Equal(t, base64.StdEncoding.EncodeToString(body), event.Body)
	assert.Nil(t, event.QueryStringParameters)
}

func TestWriteURLResponse_Structured(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteURLResponse(rec, []byte(`{
		"statusCode": 418,
		"headers": {"Content-Type": "text/plain", "X-Custom": "yes"},
		"cookies": ["a=1", "b=2"],
		"body": "teapot"
	}`))

	assert.Equal(t, 418, rec.Code)
	assert.Equal(t, "text/plain", rec.Header().Get("Content-Type"))
	assert.Equal(t, "yes", rec.Header().Get("X-Custom"))
	assert.Equal(t, []string{"a=1", "b=2"}, rec.Header().Values("Set-Cookie"))
	assert.Equal(t, "teapot", rec.Body.String())
}

func TestWriteURLResponse_Base64(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteURLResponse(rec, []byte(`{"statusCode":200,"body":"aGVsbG8=","isBase64Encoded":true}`))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "hello", rec.Body.String())
}

func TestWriteURLResponse_Unstructured(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{"object without statusCode", `{"message":"hi"}`},
		{"string", `"hello"`},
		{"number", `42`},
		{"not json", `plain text`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			WriteURLResponse(rec, []byte(tt.payload))

			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			assert.Equal(t, tt.payload, rec.Body.String())
		})
	}
}

func TestIsTextual(t *testing.T) {
	tests := []struct {
		contentType string
		want        bool
	}{
		{"", true},
		{"text/html; charset=utf-8", true},
		{"application/json", true},
		{"application/vnd.api+json", true},
		{"application/x-www-form-urlencoded", true},
		{"image/png", false},
		{"application/octet-stream", false},
		{";;;", false},
	}

	for _, tt := range tests {
		t.Run(tt.contentType, func(t *testing.T) {
			require.Equal(t, tt.want, isTextual(tt.contentType))
		})
	}
}
