package data

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portfolio-backtest/internal/model"
)

func day(s string) time.Time {
	d, err := model.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Three NYSE opens: 2024-01-02, 2024-01-03, 2024-01-04 at 14:30 UTC.
const chartOK = `{"chart":{"result":[{"meta":{"symbol":"AAPL","gmtoffset":-18000,"longName":"Apple Inc."},
"timestamp":[1704205800,1704292200,1704378600],
"indicators":{"quote":[{"close":[185.5,184.0,181.9]}],"adjclose":[{"adjclose":[184.9,null,181.2]}]}}],"error":null}}`

func TestYahooHistory(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v8/finance/chart/AAPL", r.URL.Path)
		assert.Equal(t, "1d", r.URL.Query().Get("interval"))
		assert.Equal(t, fmt.Sprint(day("2024-01-01").Unix()), r.URL.Query().Get("period1"))
		assert.Equal(t, fmt.Sprint(day("2024-01-06").Unix()), r.URL.Query().Get("period2"))
		_, _ = w.Write([]byte(chartOK))
	}))
	defer srv.Close()

	y := NewYahoo(WithYahooBaseURL(srv.URL))
	s, err := y.History(context.Background(), "AAPL", day("2024-01-01"), day("2024-01-05"))
	require.NoError(t, err)

	require.Equal(t, 3, s.Len())
	assert.Equal(t, "AAPL", s.Symbol)
	assert.Equal(t, day("2024-01-02"), s.Points[0].Date)
	assert.InDelta(t, 184.9, s.Points[0].Close, 1e-9)
	// Missing adjusted close falls back to the raw close.
	assert.InDelta(t, 184.0, s.Points[1].Close, 1e-9)
	assert.Equal(t, day("2024-01-04"), s.Points[2].Date)
}

func TestYahooHistoryClipsToRange(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(chartOK))
	}))
	defer srv.Close()

	y := NewYahoo(WithYahooBaseURL(srv.URL))
	s, err := y.History(context.Background(), "AAPL", day("2024-01-03"), day("2024-01-03"))
	require.NoError(t, err)
	require.Equal(t, 1, s.Len())
	assert.Equal(t, day("2024-01-03"), s.First())
}

func TestYahooEmptyRangeIsNotAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"chart":{"result":[{"meta":{"symbol":"AAPL","gmtoffset":-18000},"indicators":{"quote":[{}]}}],"error":null}}`))
	}))
	defer srv.Close()

	s, err := NewYahoo(WithYahooBaseURL(srv.URL)).History(context.Background(), "AAPL", day("1990-01-01"), day("1990-02-01"))
	require.NoError(t, err)
	assert.True(t, s.Empty())
}

func TestYahooErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		notFound  bool
		permanent bool
	}{
		{name: "404", status: http.StatusNotFound, body: `{"chart":{"result":null,"error":{"code":"Not Found","description":"No data found, symbol may be delisted"}}}`, notFound: true},
		{name: "error payload", status: http.StatusOK, body: `{"chart":{"result":null,"error":{"code":"Not Found","description":"delisted"}}}`, notFound: true},
		{name: "throttled", status: http.StatusTooManyRequests, body: "Too Many Requests"},
		{name: "edge throttle", status: http.StatusOK, body: "Edge: Too Many Requests"},
		{name: "html", status: http.StatusOK, body: "<html>oops</html>"},
		{name: "server error", status: http.StatusBadGateway, body: "bad gateway"},
		{name: "truncated json", status: http.StatusOK, body: `{"chart":{"result":[`},
		{name: "bad request", status: http.StatusBadRequest, body: `{"chart":{"result":null,"error":{"code":"Bad Request","description":"Invalid input"}}}`, permanent: true},
		{name: "unprocessable", status: http.StatusUnprocessableEntity, body: "unprocessable", permanent: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewYahoo(WithYahooBaseURL(srv.URL)).History(context.Background(), "ZZZZ", day("2024-01-01"), day("2024-01-05"))
			require.Error(t, err)
			assert.Equal(t, tt.notFound, IsNotFound(err))
			assert.Equal(t, tt.permanent, IsPermanent(err))
			if !tt.notFound && !tt.permanent {
				assert.ErrorIs(t, err, ErrTransient)
			}

			var se *SourceError
			require.ErrorAs(t, err, &se)
			assert.Equal(t, "yahoo", se.Provider)
		})
	}
}

func TestYahooFallsBackToSecondHost(t *testing.T) {
	var firstHits atomic.Int32
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		firstHits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer bad.Close()
	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(chartOK))
	}))
	defer good.Close()

	y := NewYahoo()
	y.hosts = []string{bad.URL, good.URL}

	s, err := y.History(context.Background(), "AAPL", day("2024-01-01"), day("2024-01-05"))
	require.NoError(t, err)
	assert.Equal(t, 3, s.Len())
	assert.Equal(t, int32(1), firstHits.Load())
}

func TestYahooCompanyName(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"chart":{"result":[{"meta":{"symbol":"BRK-B","longName":"Berkshire Hathaway Inc. Class B Common"}}],"error":null}}`))
	}))
	defer srv.Close()

	name, err := NewYahoo(WithYahooBaseURL(srv.URL)).CompanyName(context.Background(), "BRK-B")
	require.NoError(t, err)
	assert.Equal(t, "Berkshire Hathaway Inc. Cla...", name)
	assert.Len(t, name, MaxNameLength)
}

func TestTruncateName(t *testing.T) {
	assert.Equal(t, "Apple Inc.", TruncateName(" Apple Inc. "))
	assert.Equal(t, "123456789012345678901234567890", TruncateName("123456789012345678901234567890"))
	assert.Equal(t, "123456789012345678901234567...", TruncateName("1234567890123456789012345678901"))
}

func TestYahooRespectsContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(chartOK))
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewYahoo(WithYahooBaseURL(srv.URL)).History(ctx, "AAPL", day("2024-01-01"), day("2024-01-05"))
	assert.ErrorIs(t, err, context.Canceled)
}
