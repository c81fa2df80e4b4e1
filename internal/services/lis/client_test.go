package lis

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetUserBalance(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/user/balance", r.URL.Path)
		require.Equal(t, "Bearer api-key", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":{"balance":"123.45"}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "api-key")
	bal, err := c.GetUserBalance(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 123.45, bal)
}

func TestGetWSToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/user/get-ws-token", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":{"token":"tok-1"}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "k")
	tok, err := c.GetWSToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-1", tok)
}

func TestGetWSTokenEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":{"token":""}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "k")
	_, err := c.GetWSToken(context.Background())
	require.Error(t, err)
}

func TestBuyForUser(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/market/buy", r.URL.Path)
		var req BuyRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, []int64{912345}, req.IDs)
		assert.True(t, req.SkipUnavailable)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":{"purchase_id":777,"steam_id":"7656","custom_id":"c-1"}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "k")
	resp, err := c.BuyForUser(context.Background(), BuyRequest{
		IDs: []int64{912345}, Partner: "p", Token: "t", CustomID: "c-1", SkipUnavailable: true,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(777), resp.Data.PurchaseID)
	assert.NotEmpty(t, resp.Raw)
}

func TestBuyForUserUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"message":"skin is unavailable"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "k")
	_, err := c.BuyForUser(context.Background(), BuyRequest{IDs: []int64{1}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "skin is unavailable")
}
