package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"git.sr.ht/~aondrejcak/payrecon/kernel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, "client-1", "key-1", 2*time.Second, kernel.TestDiagnostic())
}

func TestFetchTransaction_Success(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/transaction/O-100", r.URL.Path)
		assert.Equal(t, "client-1", r.Header.Get("x-client-id"))
		assert.Equal(t, "key-1", r.Header.Get("x-api-key"))
		assert.NotEmpty(t, r.Header.Get("X-Request-ID"))

		_, _ = w.Write([]byte(`{
			"code": "00",
			"desc": "success",
			"data": {
				"id": "gw-1",
				"orderCode": "O-100",
				"amount": 300000,
				"status": "PAID",
				"createdAt": "2024-01-01T09:55:00Z",
				"paidAt": "2024-01-01T10:00:00Z",
				"transactions": [{
					"reference": "FT123",
					"amount": 300000,
					"transactionDateTime": "2024-01-01 10:00:05",
					"counterAccountName": "NGUYEN VAN A"
				}]
			}
		}`))
	})

	tx, err := client.FetchTransaction(context.Background(), "O-100")
	require.NoError(t, err)

	assert.Equal(t, "gw-1", tx.ID)
	assert.Equal(t, OrderCode("O-100"), tx.OrderCode)
	assert.Equal(t, int64(300000), tx.Amount)
	assert.Equal(t, STATUS_PAID, tx.Status)
	assert.Equal(t, "FT123", tx.SettlementReference())
	require.NotNil(t, tx.SettledAt())
	assert.Equal(t, time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC), *tx.SettledAt())
}

func TestFetchTransaction_NumericOrderCode(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"code":"00","desc":"success","data":{"id":"gw-2","orderCode":123456,"amount":1,"status":"PENDING"}}`))
	})

	tx, err := client.FetchTransaction(context.Background(), "123456")
	require.NoError(t, err)
	assert.Equal(t, OrderCode("123456"), tx.OrderCode)
	assert.Nil(t, tx.SettledAt())
	assert.Equal(t, "gw-2", tx.SettlementReference())
}

func TestFetchTransaction_NotFound(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"code":"101","desc":"payment request not found","data":null}`))
	})

	_, err := client.FetchTransaction(context.Background(), "O-404")
	assert.ErrorIs(t, err, ErrTransactionNotFound)
	assert.False(t, IsUnavailable(err))
}

func TestFetchTransaction_Unavailable(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		kind    UnavailableKind
	}{
		{
			name: "non-2xx",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte("slow down"))
			},
			kind: KindStatus,
		},
		{
			name: "vendor error in 2xx",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"code":"20","desc":"invalid signature","data":null}`))
			},
			kind: KindLogical,
		},
		{
			name: "garbage body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`<html>gateway maintenance</html>`))
			},
			kind: KindDecode,
		},
		{
			name: "oversized body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"code":"00","desc":"success","data":{"id":"`))
				_, _ = w.Write([]byte(strings.Repeat("x", maxResponseBytes)))
				_, _ = w.Write([]byte(`"}}`))
			},
			kind: KindDecode,
		},
		{
			name: "success without data",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"code":"00","desc":"success"}`))
			},
			kind: KindDecode,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, tt.handler)

			tx, err := client.FetchTransaction(context.Background(), "O-1")
			assert.Nil(t, tx)
			require.Error(t, err)

			var ue *UnavailableError
			require.ErrorAs(t, err, &ue)
			assert.Equal(t, tt.kind, ue.Kind)
			assert.Equal(t, "O-1", ue.OrderCode)
			assert.Equal(t, tt.kind == KindLogical, IsLogical(err))
		})
	}
}

func TestFetchTransaction_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	client := NewClient(srv.URL, "c", "k", time.Second, kernel.TestDiagnostic())
	_, err := client.FetchTransaction(context.Background(), "O-1")

	var ue *UnavailableError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, KindTransport, ue.Kind)
}

func TestFetchTransaction_Timeout(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(time.Second):
		case <-r.Context().Done():
		}
	})
	client.httpClient.Timeout = 50 * time.Millisecond

	_, err := client.FetchTransaction(context.Background(), "O-1")
	assert.True(t, IsUnavailable(err))
}

func TestTime_Unmarshal(t *testing.T) {
	var v struct {
		A *Time `json:"a"`
		B *Time `json:"b"`
		C *Time `json:"c"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a":"2024-01-01T10:00:00+07:00","b":"2024-01-01 10:00:00","c":null}`), &v))

	assert.Equal(t, time.Date(2024, 1, 1, 3, 0, 0, 0, time.UTC), v.A.UTC())
	assert.Equal(t, time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC), v.B.UTC())
	assert.Nil(t, v.C)

	var bad Time
	assert.Error(t, json.Unmarshal([]byte(`"yesterday"`), &bad))
}
