package testutils

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"
)

// MakeRequestWithApp sends a JSON request to app and returns the response.
func MakeRequestWithApp(app *fiber.App, method, path, body, token string) *http.Response {
	return MakeRequestWithHeaders(app, method, path, body, token, nil)
}

// MakeRequestWithHeaders is MakeRequestWithApp with extra headers. A
// Content-Type in headers overrides the JSON default.
func MakeRequestWithHeaders(app *fiber.App, method, path, body, token string, headers map[string]string) *http.Response {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := app.Test(req, -1)
	if err != nil {
		panic(err)
	}
	return resp
}

// DecodeJSON reads resp's body into a T and closes it.
func DecodeJSON[T any](tb testing.TB, resp *http.Response) T {
	tb.Helper()
	defer resp.Body.Close() //nolint:errcheck
	raw, err := io.ReadAll(resp.Body)
	require.NoError(tb, err)
	var out T
	require.NoError(tb, json.Unmarshal(raw, &out), string(raw))
	return out
}
