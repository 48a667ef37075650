package backend

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestProcessDecodesFinalAnswer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, PathProcess, r.URL.Path)
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body ProcessRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "Hello", body.Text)
		require.Equal(t, "it", body.UserLanguage)
		require.Equal(t, "session-1", body.SessionID)

		_, _ = w.Write([]byte(`{"original_text":"Hello","steps":{"is_ambiguous":false},
			"result":{"status":"ok","payload":{"response_native":"Ciao","source":"rag","confidence":0.8,
			"consultants":[{"id":"c1","name":"Anna","specialization":"INPS","languages":["it","uk"]}],
			"action_items":[{"type":"form","title":"Domanda NASpI","form_id":"naspi-1"}]}}}`))
	}))
	defer srv.Close()

	body, err := json.Marshal(ProcessRequest{Text: "Hello", UserLanguage: "it", SessionID: "session-1"})
	require.NoError(t, err)

	c := NewClient(srv.URL, WithHTTPClient(srv.Client()))
	resp, err := c.Process(context.Background(), Request{
		Path: PathProcess,
		Body: body,
		Header: http.Header{
			"Content-Type":  {"application/json"},
			"Authorization": {"Bearer tok"},
		},
	})
	require.NoError(t, err)
	require.NotNil(t, resp.Result)
	require.Equal(t, StatusOK, resp.Result.Status)
	require.Equal(t, "Ciao", resp.Result.Payload.ResponseNative)
	require.InDelta(t, 0.8, *resp.Result.Payload.Confidence, 1e-9)
	require.Len(t, resp.Result.Payload.Consultants, 1)
	require.Equal(t, []string{"it", "uk"}, resp.Result.Payload.Consultants[0].SpokenLanguages)
	require.Equal(t, "naspi-1", resp.Result.Payload.ActionItems[0].FormRef)
}

func TestUnauthorizedRegardlessOfBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"result":{"status":"ok","payload":{"response_native":"x"}}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, WithHTTPClient(srv.Client()))
	_, err := c.Process(context.Background(), Request{Path: PathProcess, Body: []byte(`{}`)})
	require.True(t, IsUnauthorized(err))

	_, err = c.ProcessAudio(context.Background(), Request{Path: PathProcessAudio, Body: []byte(`x`)})
	require.True(t, IsUnauthorized(err))
}

func TestServerErrorIsStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = io.WriteString(w, "upstream down")
	}))
	defer srv.Close()

	c := NewClient(srv.URL, WithHTTPClient(srv.Client()))
	_, err := c.Process(context.Background(), Request{Path: PathProcess})
	require.Error(t, err)
	require.False(t, IsUnauthorized(err))

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	require.Equal(t, http.StatusBadGateway, statusErr.Code)
	require.Equal(t, "upstream down", statusErr.Body)
}

func TestTimeoutIsNetworkError(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c := NewClient(srv.URL, WithHTTPClient(srv.Client()), WithTimeout(50*time.Millisecond))
	_, err := c.Process(context.Background(), Request{Path: PathProcess})

	var netErr *NetworkError
	require.True(t, errors.As(err, &netErr))
	require.True(t, netErr.Timeout())
	require.False(t, IsUnauthorized(err))
}

func TestUnreachableIsNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := NewClient(url)
	_, err := c.Process(context.Background(), Request{Path: PathProcess})
	var netErr *NetworkError
	require.True(t, errors.As(err, &netErr))
}

func TestCheckAuthPassesOtherErrorsThrough(t *testing.T) {
	require.NoError(t, CheckAuth(nil))

	other := errors.New("boom")
	require.Equal(t, other, CheckAuth(other))

	forbidden := &StatusError{Code: http.StatusForbidden}
	require.Equal(t, error(forbidden), CheckAuth(forbidden))

	require.Equal(t, ErrUnauthorized, CheckAuth(errors.Wrap(&StatusError{Code: 401}, "wrapped")))
}

func TestHealth(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		require.Equal(t, http.MethodGet, r.Method)
		_ = json.NewEncoder(w).Encode(HealthResponse{Status: HealthyStatus})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, WithHTTPClient(srv.Client()), WithHealthTTL(time.Minute))
	require.True(t, c.Health(context.Background()))
	require.True(t, c.Health(context.Background()))
	require.Equal(t, int32(1), calls.Load())
}

func TestHealthWrongStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(HealthResponse{Status: "starting"})
	}))
	defer srv.Close()

	require.False(t, NewClient(srv.URL, WithHTTPClient(srv.Client())).Health(context.Background()))
}

func TestHealthDownWhenUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	require.False(t, NewClient(url).Health(context.Background()))
}
