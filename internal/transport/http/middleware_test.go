package httptransport

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func testRouter() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/members/{id}", func(w http.ResponseWriter, r *http.Request) {
		if RequestIDFromContext(r.Context()) == "" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		zerolog.Ctx(r.Context()).Info().Msg("inside handler")
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/boom", func(w http.ResponseWriter, r *http.Request) {
		panic("kaboom")
	})
	return mux
}

func sampleCount(t *testing.T, method, route, status string) uint64 {
	t.Helper()
	m := &dto.Metric{}
	obs := requestDuration.WithLabelValues(method, route, status)
	require.NoError(t, obs.(prometheus.Metric).Write(m))
	return m.GetHistogram().GetSampleCount()
}

func TestWrapAssignsRequestIDAndLogs(t *testing.T) {
	var buf bytes.Buffer
	h := Wrap(testRouter(), zerolog.New(&buf), "")

	before := sampleCount(t, http.MethodGet, "/members/{id}", "200")

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/members/7", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	id := rr.Header().Get(RequestIDHeader)
	require.NotEmpty(t, id)
	require.Contains(t, buf.String(), `"request_id":"`+id+`"`)
	require.Contains(t, buf.String(), `"message":"inside handler"`)
	require.Contains(t, buf.String(), `"status":200`)
	require.Equal(t, before+1, sampleCount(t, http.MethodGet, "/members/{id}", "200"))
}

func TestRequestIDIsPropagated(t *testing.T) {
	h := Wrap(testRouter(), zerolog.Nop(), "")

	req := httptest.NewRequest(http.MethodGet, "/members/7", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	require.Equal(t, "abc-123", rr.Header().Get(RequestIDHeader))
}

func TestRecoverReturnsJSON500(t *testing.T) {
	var buf bytes.Buffer
	h := Wrap(testRouter(), zerolog.New(&buf), "")

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/boom", nil))

	require.Equal(t, http.StatusInternalServerError, rr.Code)
	require.JSONEq(t, `{"type":"server_error","detail":"internal server error"}`, rr.Body.String())
	require.Contains(t, buf.String(), "kaboom")
	require.Contains(t, buf.String(), `"level":"error"`)
}

func TestCORSPreflight(t *testing.T) {
	h := Wrap(testRouter(), zerolog.Nop(), "http://localhost:5173")

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodOptions, "/members/1", nil))

	require.Equal(t, http.StatusNoContent, rr.Code)
	require.Equal(t, "http://localhost:5173", rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestUnmatchedRouteLabel(t *testing.T) {
	h := Wrap(testRouter(), zerolog.Nop(), "")
	before := sampleCount(t, http.MethodGet, "unmatched", "404")

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/nope", nil))

	require.Equal(t, http.StatusNotFound, rr.Code)
	require.Equal(t, before+1, sampleCount(t, http.MethodGet, "unmatched", "404"))
}
