package api

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rtcstreamer/native/internal/domain"
)

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func serve(t *testing.T, status int, body string, check func(r *http.Request)) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			check(r)
		}
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv.URL
}

func TestFetchICEServers(t *testing.T) {
	t.Run("list response", func(t *testing.T) {
		url := serve(t, http.StatusOK,
			`{"iceServers":[{"urls":["turn:a:3478","turns:a:5349"],"username":"u","credential":"p"},{"urls":"stun:b:19302"},{"username":"orphan"}]}`,
			func(r *http.Request) {
				assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
			})

		servers, err := NewClient(quietLogger()).FetchICEServers(context.Background(), url, "secret")
		require.NoError(t, err)
		assert.Equal(t, []domain.ICEServer{
			{URLs: []string{"turn:a:3478", "turns:a:5349"}, Username: "u", Credential: "p"},
			{URLs: []string{"stun:b:19302"}},
		}, servers)
	})

	t.Run("single credentials object", func(t *testing.T) {
		url := serve(t, http.StatusOK, `{"urls":"turn:c:80","username":"u","credential":"p"}`,
			func(r *http.Request) {
				assert.Empty(t, r.Header.Get("Authorization"))
			})

		servers, err := NewClient(quietLogger()).FetchICEServers(context.Background(), url, "")
		require.NoError(t, err)
		assert.Equal(t, []domain.ICEServer{{URLs: []string{"turn:c:80"}, Username: "u", Credential: "p"}}, servers)
	})

	t.Run("no servers", func(t *testing.T) {
		url := serve(t, http.StatusOK, `{"username":"u"}`, nil)

		_, err := NewClient(quietLogger()).FetchICEServers(context.Background(), url, "")
		assert.ErrorIs(t, err, ErrNoServers)
	})

	t.Run("http error", func(t *testing.T) {
		url := serve(t, http.StatusUnauthorized, "bad token", nil)

		_, err := NewClient(quietLogger()).FetchICEServers(context.Background(), url, "x")
		assert.ErrorContains(t, err, "http 401: bad token")
	})

	t.Run("bad json", func(t *testing.T) {
		url := serve(t, http.StatusOK, `{"urls":42}`, nil)

		_, err := NewClient(quietLogger()).FetchICEServers(context.Background(), url, "")
		assert.ErrorContains(t, err, "unmarshal response")
	})

	t.Run("cancelled", func(t *testing.T) {
		url := serve(t, http.StatusOK, `{"urls":"turn:c:80"}`, nil)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := NewClient(quietLogger()).FetchICEServers(ctx, url, "")
		assert.ErrorIs(t, err, context.Canceled)
	})
}
