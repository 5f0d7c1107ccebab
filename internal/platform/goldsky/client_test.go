package goldsky

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestFetchOrderFills(t *testing.T) {
	t.Run("parses fills with uint256 fields", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var req graphqlRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				t.Errorf("decode request: %v", err)
			}
			if req.Variables["since"] != "1700000000" {
				t.Errorf("since = %v, want 1700000000", req.Variables["since"])
			}

			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{
				"data": {
					"orderFilledEvents": [{
						"orderHash": "0x00000000000000000000000000000000000000000000000000000000000000aa",
						"transactionHash": "0x00000000000000000000000000000000000000000000000000000000000000bb",
						"timestamp": "1700000042",
						"maker": "0x1111111111111111111111111111111111111111",
						"makerAssetId": "0",
						"makerAmountFilled": "50000000",
						"taker": "0x2222222222222222222222222222222222222222",
						"takerAssetId": "21742633143463906290569050155826241533067272736897614950488156847949938836455",
						"takerAmountFilled": "100000000",
						"fee": "250"
					}]
				}
			}`))
		}))
		defer srv.Close()

		client := NewClient(srv.URL, "")
		fills, err := client.FetchOrderFills(context.Background(), time.Unix(1700000000, 0), 100)
		if err != nil {
			t.Fatalf("FetchOrderFills: %v", err)
		}
		if len(fills) != 1 {
			t.Fatalf("got %d fills, want 1", len(fills))
		}

		fill := fills[0]
		if fill.Timestamp != 1700000042 {
			t.Errorf("Timestamp = %d", fill.Timestamp)
		}
		if fill.MakerAssetID.Sign() != 0 {
			t.Errorf("MakerAssetID = %s, want 0", fill.MakerAssetID)
		}
		if got := fill.TakerAssetID.String(); got != "21742633143463906290569050155826241533067272736897614950488156847949938836455" {
			t.Errorf("TakerAssetID = %s", got)
		}
		if fill.MakerAmountFilled.Int64() != 50000000 {
			t.Errorf("MakerAmountFilled = %s", fill.MakerAmountFilled)
		}
		if fill.Fee.Int64() != 250 {
			t.Errorf("Fee = %s", fill.Fee)
		}
		if got := fill.Maker.Hex(); got != "0x1111111111111111111111111111111111111111" {
			t.Errorf("Maker = %s", got)
		}
	})

	t.Run("surfaces graphql errors", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"errors": [{"message": "rate limited"}]}`))
		}))
		defer srv.Close()

		client := NewClient(srv.URL, "")
		if _, err := client.FetchOrderFills(context.Background(), time.Unix(0, 0), 10); err == nil {
			t.Fatal("want error from graphql errors array")
		}
	})

	t.Run("rejects malformed amounts", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{
				"data": {
					"orderFilledEvents": [{
						"orderHash": "0xaa",
						"timestamp": "1700000042",
						"makerAssetId": "not-a-number",
						"takerAssetId": "1",
						"makerAmountFilled": "1",
						"takerAmountFilled": "1",
						"fee": "0"
					}]
				}
			}`))
		}))
		defer srv.Close()

		client := NewClient(srv.URL, "")
		if _, err := client.FetchOrderFills(context.Background(), time.Unix(0, 0), 10); err == nil {
			t.Fatal("want error for malformed makerAssetId")
		}
	})
}

func TestFetchLatestBlock(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("Authorization = %q", auth)
		}
		_, _ = w.Write([]byte(`{"data": {"_meta": {"block": {"number": 55123456}}}}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "test-key")
	n, err := client.FetchLatestBlock(context.Background())
	if err != nil {
		t.Fatalf("FetchLatestBlock: %v", err)
	}
	if n != 55123456 {
		t.Errorf("block = %d, want 55123456", n)
	}
}
