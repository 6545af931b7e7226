package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseFunctionError(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		header      string
		wantType    string
		wantMessage string
	}{
		{
			name:        "json document",
			body:        `{"errorType":"Handler.Error","errorMessage":"bad input","stackTrace":[]}`,
			wantType:    "Handler.Error",
			wantMessage: "bad input",
		},
		{
			name:        "type from header",
			body:        `{"errorMessage":"crashed"}`,
			header:      "Runtime.Crash",
			wantType:    "Runtime.Crash",
			wantMessage: "crashed",
		},
		{
			name:        "body type wins over header",
			body:        `{"errorType":"A","errorMessage":"m"}`,
			header:      "B",
			wantType:    "A",
			wantMessage: "m",
		},
		{
			name:        "plain text",
			body:        "segfault",
			wantType:    "Unhandled",
			wantMessage: "segfault",
		},
		{
			name:     "empty",
			body:     "",
			wantType: "Unhandled",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fnErr := parseFunctionError([]byte(tt.body), tt.header)
			assert.Equal(t, tt.wantType, fnErr.Type)
			assert.Equal(t, tt.wantMessage, fnErr.Message)
			assert.Equal(t, tt.body, string(fnErr.Payload))
		})
	}
}

func TestLambdaError(t *testing.T) {
	rec := httptest.NewRecorder()
	LambdaError(rec, http.StatusBadRequest, "InvalidParameterValueException", "nope")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "InvalidParameterValueException", rec.Header().Get("X-Amzn-ErrorType"))
	assert.JSONEq(t, `{"Type":"User","message":"nope"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	LambdaError(rec, http.StatusServiceUnavailable, "ServiceException", "down")
	assert.JSONEq(t, `{"Type":"Service","message":"down"}`, rec.Body.String())
}

func TestRawJSON(t *testing.T) {
	assert.Equal(t, json.RawMessage(`{"a":1}`), rawJSON([]byte(`{"a":1}`)))
	assert.Equal(t, "not json", rawJSON([]byte("not json")))
}
