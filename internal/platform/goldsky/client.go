// Package goldsky is a GraphQL client for the Goldsky subgraph that indexes
// the Polymarket CTF Exchange contract. The backfill pipeline uses it to
// replay historical OrderFilled events.
package goldsky

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/polysight/ctfindexer/internal/domain"
)

// Client is a GraphQL client for a Goldsky subgraph endpoint.
type Client struct {
	graphqlURL string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a new Goldsky GraphQL client.
//
// graphqlURL is the subgraph endpoint, e.g.
// "https://api.goldsky.com/api/public/.../subgraphs/polymarket-orderbook-resync/gn".
func NewClient(graphqlURL, apiKey string) *Client {
	return &Client{
		graphqlURL: graphqlURL,
		apiKey:     strings.TrimSpace(apiKey),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// graphqlRequest is the standard GraphQL request envelope.
type graphqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

// graphqlResponse is the standard GraphQL response envelope.
type graphqlResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// rawFill mirrors the subgraph's orderFilledEvent entity. All numeric fields
// arrive as decimal strings; asset ids and amounts are uint256 and must not
// be squeezed through int64.
type rawFill struct {
	OrderHash         string `json:"orderHash"`
	TransactionHash   string `json:"transactionHash"`
	Timestamp         string `json:"timestamp"`
	Maker             string `json:"maker"`
	MakerAssetID      string `json:"makerAssetId"`
	MakerAmountFilled string `json:"makerAmountFilled"`
	Taker             string `json:"taker"`
	TakerAssetID      string `json:"takerAssetId"`
	TakerAmountFilled string `json:"takerAmountFilled"`
	Fee               string `json:"fee"`
}

// FetchOrderFills queries OrderFilled events at or after the given timestamp,
// oldest first, limited by the 'first' parameter.
func (c *Client) FetchOrderFills(ctx context.Context, since time.Time, first int) ([]domain.FillEvent, error) {
	query := `
		query OrderFills($since: BigInt!, $first: Int!) {
			orderFilledEvents(
				first: $first
				orderBy: timestamp
				orderDirection: asc
				where: { timestamp_gte: $since }
			) {
				orderHash
				transactionHash
				timestamp
				maker
				makerAssetId
				makerAmountFilled
				taker
				takerAssetId
				takerAmountFilled
				fee
			}
		}
	`

	variables := map[string]any{
		"since": strconv.FormatInt(since.Unix(), 10),
		"first": first,
	}

	respData, err := c.doQuery(ctx, query, variables)
	if err != nil {
		return nil, fmt.Errorf("goldsky: fetch order fills: %w", err)
	}

	var result struct {
		OrderFilledEvents []rawFill `json:"orderFilledEvents"`
	}
	if err := json.Unmarshal(respData, &result); err != nil {
		return nil, fmt.Errorf("goldsky: decode order fills: %w", err)
	}

	fills := make([]domain.FillEvent, 0, len(result.OrderFilledEvents))
	for _, raw := range result.OrderFilledEvents {
		fill, err := raw.toFillEvent()
		if err != nil {
			return nil, fmt.Errorf("goldsky: bad fill %s: %w", raw.OrderHash, err)
		}
		fills = append(fills, fill)
	}
	return fills, nil
}

// FetchLatestBlock returns the latest block number indexed by the subgraph,
// useful for monitoring indexing lag.
func (c *Client) FetchLatestBlock(ctx context.Context) (int64, error) {
	query := `
		query LatestBlock {
			_meta {
				block {
					number
				}
			}
		}
	`

	respData, err := c.doQuery(ctx, query, nil)
	if err != nil {
		return 0, fmt.Errorf("goldsky: fetch latest block: %w", err)
	}

	var result struct {
		Meta struct {
			Block struct {
				Number int64 `json:"number"`
			} `json:"block"`
		} `json:"_meta"`
	}
	if err := json.Unmarshal(respData, &result); err != nil {
		return 0, fmt.Errorf("goldsky: decode latest block: %w", err)
	}
	return result.Meta.Block.Number, nil
}

func (r rawFill) toFillEvent() (domain.FillEvent, error) {
	ts, err := strconv.ParseInt(r.Timestamp, 10, 64)
	if err != nil {
		return domain.FillEvent{}, fmt.Errorf("timestamp %q: %w", r.Timestamp, err)
	}

	bigField := func(name, s string) (*big.Int, error) {
		if s == "" {
			return big.NewInt(0), nil
		}
		v, ok := new(big.Int).SetString(s, 10)
		if !ok {
			return nil, fmt.Errorf("%s: bad integer %q", name, s)
		}
		return v, nil
	}

	makerAssetID, err := bigField("makerAssetId", r.MakerAssetID)
	if err != nil {
		return domain.FillEvent{}, err
	}
	takerAssetID, err := bigField("takerAssetId", r.TakerAssetID)
	if err != nil {
		return domain.FillEvent{}, err
	}
	makerAmt, err := bigField("makerAmountFilled", r.MakerAmountFilled)
	if err != nil {
		return domain.FillEvent{}, err
	}
	takerAmt, err := bigField("takerAmountFilled", r.TakerAmountFilled)
	if err != nil {
		return domain.FillEvent{}, err
	}
	fee, err := bigField("fee", r.Fee)
	if err != nil {
		return domain.FillEvent{}, err
	}

	return domain.FillEvent{
		OrderHash:         common.HexToHash(r.OrderHash),
		Maker:             common.HexToAddress(r.Maker),
		Taker:             common.HexToAddress(r.Taker),
		MakerAssetID:      makerAssetID,
		TakerAssetID:      takerAssetID,
		MakerAmountFilled: makerAmt,
		TakerAmountFilled: takerAmt,
		Fee:               fee,
		TransactionHash:   common.HexToHash(r.TransactionHash),
		Timestamp:         ts,
	}, nil
}

// doQuery executes a GraphQL query and returns the raw "data" field from the
// response.
func (c *Client) doQuery(ctx context.Context, query string, variables map[string]any) (json.RawMessage, error) {
	reqBody := graphqlRequest{
		Query:     query,
		Variables: variables,
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal graphql request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.graphqlURL, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
	}

	var gqlResp graphqlResponse
	if err := json.Unmarshal(body, &gqlResp); err != nil {
		return nil, fmt.Errorf("decode graphql response: %w", err)
	}

	if len(gqlResp.Errors) > 0 {
		return nil, fmt.Errorf("graphql error: %s", gqlResp.Errors[0].Message)
	}

	return gqlResp.Data, nil
}
