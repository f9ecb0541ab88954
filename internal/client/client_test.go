package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eidos-exchange/eidos-whalesync/pkg/circuitbreaker"
	"github.com/eidos-exchange/eidos-whalesync/pkg/errors"
)

func newTestClient(t *testing.T, h http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c := New(Config{BaseURL: srv.URL, ProxyURL: srv.URL, APIKey: "k", Timeout: 2 * time.Second})
	return c, srv
}

func TestClient_MissingAPIKeyFailsBeforeIO(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL})
	_, err := c.ListMarkets(context.Background(), 1, 20)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrConfiguration))
	assert.False(t, errors.IsRetryable(err))
	assert.Equal(t, int32(0), atomic.LoadInt32(&hits))
}

func TestClient_ListMarkets(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/market", r.URL.Path)
		assert.Equal(t, "k", r.Header.Get("apikey"))
		assert.Equal(t, "2", r.URL.Query().Get("page"))
		assert.Equal(t, "20", r.URL.Query().Get("limit"))
		assert.Equal(t, "2", r.URL.Query().Get("marketType"))
		assert.Equal(t, "activated", r.URL.Query().Get("status"))
		_, _ = w.Write([]byte(`{"errno":0,"errmsg":"","result":{"total":2,"list":[{"marketId":1,"marketTitle":"A"},{"marketId":"x"}]}}`))
	})

	page, err := c.ListMarkets(context.Background(), 2, 20)
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total)
	require.Len(t, page.List, 2)

	_, err = DecodeMarket(page.List[0])
	assert.NoError(t, err)
	_, err = DecodeMarket(page.List[1])
	assert.True(t, errors.Is(err, errors.ErrValidation))
}

func TestClient_EnvelopeErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"errno", http.StatusOK, `{"errno":10001,"errmsg":"bad key","result":null}`},
		{"missing errno", http.StatusOK, `{"result":{"total":0,"list":[]}}`},
		{"http status", http.StatusInternalServerError, `oops`},
		{"malformed", http.StatusOK, `{"errno":0,`},
		{"missing list", http.StatusOK, `{"errno":0,"result":{"total":3}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})
			_, err := c.ListUserTrades(context.Background(), "0xabc", 20)
			require.Error(t, err)
			assert.True(t, errors.Is(err, errors.ErrUpstream), "got %v", err)
		})
	}
}

func TestClient_Timeout(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := c.ListUserTrades(ctx, "0xabc", 20)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrTimeout), "got %v", err)
}

func TestClient_TradesAndPrices(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/trade/user/0xabc":
			assert.Equal(t, "56", r.URL.Query().Get("chainId"))
			_, _ = w.Write([]byte(`{"errno":0,"result":{"total":7,"list":[{"marketId":9,"side":"SELL","price":"0.4","amount":"120.5","createdAt":1700000000}]}}`))
		case "/token/latest-price":
			assert.Equal(t, "tok-1", r.URL.Query().Get("token_id"))
			_, _ = w.Write([]byte(`{"errno":0,"result":{"tokenId":"tok-1","price":"0.62","side":"BUY","timestamp":1}}`))
		case "/leaderboard":
			assert.Equal(t, "volume", r.URL.Query().Get("dataType"))
			assert.Equal(t, "7", r.URL.Query().Get("period"))
			assert.Equal(t, "100", r.URL.Query().Get("limit"))
			_, _ = w.Write([]byte(`{"errno":0,"result":{"list":[{"id":1}]}}`))
		default:
			http.NotFound(w, r)
		}
	})
	ctx := context.Background()

	page, err := c.ListUserTrades(ctx, "0xabc", 20)
	require.NoError(t, err)
	assert.Equal(t, 7, page.Total)
	trade, err := DecodeTrade(page.List[0])
	require.NoError(t, err)
	assert.True(t, trade.Sell)
	assert.Equal(t, int64(1700000000000), trade.Timestamp)
	assert.Equal(t, "120.5", trade.Amount.String())

	price, err := c.LatestTokenPrice(ctx, "tok-1")
	require.NoError(t, err)
	assert.InDelta(t, 0.62, price.Value, 1e-9)

	list, err := c.Leaderboard(ctx, "volume", 7)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestClient_BreakerOpens(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := New(Config{
		BaseURL: srv.URL,
		APIKey:  "k",
		Breaker: circuitbreaker.Config{FailureThreshold: 2, OpenTimeout: time.Hour},
	})
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		_, err := c.LatestTokenPrice(ctx, "t")
		require.True(t, errors.Is(err, errors.ErrUpstream))
	}
	_, err := c.LatestTokenPrice(ctx, "t")
	assert.True(t, errors.Is(err, errors.ErrCircuitOpen))
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))

	// other endpoints have their own breaker
	_, err = c.ListMarkets(ctx, 1, 20)
	assert.True(t, errors.Is(err, errors.ErrUpstream))
}

func TestClient_TradeErrorsDoNotOpenBreaker(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		if r.URL.Path == "/trade/user/0xerrno" {
			_, _ = w.Write([]byte(`{"errno":10403,"errmsg":"wallet blocked"}`))
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(Config{
		BaseURL: srv.URL,
		APIKey:  "k",
		Breaker: circuitbreaker.Config{FailureThreshold: 2, OpenTimeout: time.Hour},
	})
	ctx := context.Background()
	for _, addr := range []string{"0xa", "0xb", "0xerrno", "0xc"} {
		_, err := c.ListUserTrades(ctx, addr, 10)
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.ErrUpstream), addr)
		assert.False(t, errors.Is(err, errors.ErrCircuitOpen), addr)
	}
	assert.Equal(t, int32(4), atomic.LoadInt32(&hits))
}

func TestClient_TradeConnectionFailuresOpenBreaker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	baseURL := srv.URL
	srv.Close()

	c := New(Config{
		BaseURL: baseURL,
		APIKey:  "k",
		Breaker: circuitbreaker.Config{FailureThreshold: 2, OpenTimeout: time.Hour},
	})
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		_, err := c.ListUserTrades(ctx, "0xa", 10)
		require.True(t, errors.Is(err, errors.ErrUpstream))
	}
	_, err := c.ListUserTrades(ctx, "0xb", 10)
	assert.True(t, errors.Is(err, errors.ErrCircuitOpen))
}

func TestFlattenMarkets(t *testing.T) {
	raw := []string{
		`{"marketId":1,"marketTitle":"Binary","marketType":0,"yesTokenId":"y1","noTokenId":"n1","volume":"10.5","chainId":"56","cutoffAt":100}`,
		`{"marketId":2,"marketTitle":"No tokens","marketType":0}`,
		`{"marketId":3,"marketTitle":"Who wins","marketType":1,"rules":"parent rules","cutoffAt":500,"thumbnailUrl":"img",
		  "childMarkets":[
		    {"marketId":31,"marketTitle":"Alice","yesTokenId":"y31","noTokenId":"n31","cutoffAt":0,"rules":""},
		    {"marketId":32,"marketTitle":"Bob","yesTokenId":"y32","noTokenId":"","cutoffAt":700},
		    {"marketId":33,"marketTitle":"Carol","yesTokenId":"y33","noTokenId":"n33","cutoffAt":900,"rules":"own","chainId":56}
		  ]}`,
		`{"marketId":4,"marketTitle":"Empty categorical","marketType":1,"childMarkets":null}`,
	}
	var records []*MarketRecord
	for _, r := range raw {
		m, err := DecodeMarket(json.RawMessage(r))
		require.NoError(t, err)
		records = append(records, m)
	}

	flat := FlattenMarkets(records)
	require.Len(t, flat, 4)

	assert.Equal(t, "1", flat[0].ExternalID)
	assert.Equal(t, "", flat[0].ParentExternalID)
	assert.InDelta(t, 10.5, flat[0].Volume.FloatOrZero(), 1e-9)

	assert.Equal(t, "2", flat[1].ExternalID)

	alice := flat[2]
	assert.Equal(t, "31", alice.ExternalID)
	assert.Equal(t, "Who wins: Alice", alice.Title)
	assert.Equal(t, "parent rules", alice.Rules)
	assert.Equal(t, int64(500), alice.CutoffAt)
	assert.Equal(t, "3", alice.ParentExternalID)
	assert.Equal(t, "img", alice.ThumbnailURL)

	carol := flat[3]
	assert.Equal(t, "own", carol.Rules)
	assert.Equal(t, int64(900), carol.CutoffAt)
	assert.Equal(t, NumericString("56"), carol.ChainID)
}

func TestDecodeMarket_Invalid(t *testing.T) {
	for _, raw := range []string{
		`{"marketTitle":"no id"}`,
		`{"marketId":1}`,
		`{"marketId":1,"marketTitle":"   "}`,
		`{"marketId":"1","marketTitle":"string id"}`,
		`[]`,
	} {
		_, err := DecodeMarket(json.RawMessage(raw))
		assert.Error(t, err, raw)
	}
}

func TestDecodeTrade(t *testing.T) {
	trade, err := DecodeTrade(json.RawMessage(`{"marketId":5,"side":"buy","price":0.3,"amount":"50","createdAt":1700000000123,"txHash":"0x1"}`))
	require.NoError(t, err)
	assert.False(t, trade.Sell)
	assert.Equal(t, "5", trade.MarketExternalID)
	assert.Equal(t, int64(1700000000123), trade.Timestamp)
	assert.Equal(t, "0.3", trade.Price.String())

	for _, raw := range []string{
		`{"side":"BUY","price":"0.3","amount":"50","createdAt":1}`,
		`{"marketId":5,"price":"abc","amount":"50","createdAt":1}`,
		`{"marketId":5,"price":"0.3","amount":"","createdAt":1}`,
		`{"marketId":5,"price":"0.3","amount":"50"}`,
		`{"marketId":5,"price":"0.3","amount":"50","createdAt":0}`,
	} {
		_, err := DecodeTrade(json.RawMessage(raw))
		assert.True(t, errors.Is(err, errors.ErrValidation), raw)
	}
}

func TestDecodeLeaderboardTrader(t *testing.T) {
	ok := `{"id":1,"walletAddress":"0xA","userName":"a","avatar":"","rankingValue":"123.5","rankingChange":0,"rankingType":1}`
	tr, err := DecodeLeaderboardTrader(json.RawMessage(ok))
	require.NoError(t, err)
	assert.InDelta(t, 123.5, tr.Value, 1e-9)

	for _, raw := range []string{
		`{"walletAddress":"0xA","userName":"a","avatar":"","rankingValue":"1","rankingChange":0,"rankingType":1}`,
		`{"id":1,"walletAddress":"","userName":"a","avatar":"","rankingValue":"1","rankingChange":0,"rankingType":1}`,
		`{"id":1,"walletAddress":"0xA","avatar":"","rankingValue":"1","rankingChange":0,"rankingType":1}`,
		`{"id":1,"walletAddress":"0xA","userName":"a","avatar":"","rankingValue":"NaN","rankingChange":0,"rankingType":1}`,
		`{"id":1,"walletAddress":"0xA","userName":"a","avatar":"","rankingValue":"1","rankingType":1}`,
	} {
		_, err := DecodeLeaderboardTrader(json.RawMessage(raw))
		assert.Error(t, err, raw)
	}
}

func TestBatchInterval(t *testing.T) {
	assert.Equal(t, 666666666*time.Nanosecond, BatchInterval(10, 100*time.Millisecond))
	assert.Equal(t, 100*time.Millisecond, BatchInterval(1, 100*time.Millisecond))
}

func TestPacer(t *testing.T) {
	p := NewPacer(20 * time.Millisecond)
	ctx := context.Background()
	start := time.Now()
	for i := 0; i < 3; i++ {
		require.NoError(t, p.Wait(ctx))
	}
	assert.GreaterOrEqual(t, time.Since(start), 35*time.Millisecond)
}
