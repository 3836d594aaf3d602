package logging

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func logLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var lines []map[string]any
	sc := bufio.NewScanner(buf)
	for sc.Scan() {
		var line map[string]any
		require.NoError(t, json.Unmarshal(sc.Bytes(), &line))
		lines = append(lines, line)
	}
	return lines
}

func serve(t *testing.T, h http.Handler) []map[string]any {
	t.Helper()
	var buf bytes.Buffer
	handler := middleware.RequestID(RequestLogger(NewLoggerWithWriter(&buf, false))(h))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/users/me", nil))
	return logLines(t, &buf)
}

func TestRequestLoggerCompletionLine(t *testing.T) {
	lines := serve(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		AddRequestFields(r.Context(), "user_id", "42")
		GetLoggerFromContext(r.Context()).Info("inside handler")
		_, _ = w.Write([]byte("hello"))
	}))
	require.Len(t, lines, 2)

	inner := lines[0]
	assert.Equal(t, "inside handler", inner["msg"])
	assert.NotEmpty(t, inner["request_id"])
	assert.NotContains(t, inner, "user_id")

	done := lines[1]
	assert.Equal(t, "request completed", done["msg"])
	assert.Equal(t, "INFO", done["level"])
	assert.Equal(t, inner["request_id"], done["request_id"])
	assert.Equal(t, "/api/v1/users/me", done["path"])
	assert.EqualValues(t, 200, done["status"])
	assert.EqualValues(t, 5, done["bytes"])
	assert.Equal(t, "42", done["user_id"])
}

func TestRequestLoggerLevelFollowsStatus(t *testing.T) {
	tests := []struct {
		status int
		level  string
	}{
		{http.StatusNoContent, "INFO"},
		{http.StatusUnauthorized, "WARN"},
		{http.StatusInternalServerError, "ERROR"},
	}

	for _, tt := range tests {
		lines := serve(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
		}))
		require.Len(t, lines, 1)
		assert.Equal(t, tt.level, lines[0]["level"])
		assert.EqualValues(t, tt.status, lines[0]["status"])
	}
}

func TestAddRequestFieldsWithoutMiddleware(t *testing.T) {
	assert.NotPanics(t, func() {
		AddRequestFields(context.Background(), "user_id", "42")
	})
}

func TestGetLoggerFromContextFallsBack(t *testing.T) {
	assert.NotNil(t, GetLoggerFromContext(context.Background()))

	l := NewNopLogger()
	assert.Same(t, l, GetLoggerFromContext(WithContext(context.Background(), l)))
}
