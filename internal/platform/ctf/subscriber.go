package ctf

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/polysight/ctfindexer/internal/domain"
)

const (
	resubscribeDelay = 5 * time.Second
	blockTimeCap     = 512
)

// Subscriber streams OrderFilled fills from the exchange contract over a
// websocket RPC endpoint and hands them to a callback. It reconnects on
// subscription errors and caches block timestamps so each block's header is
// fetched once no matter how many fills it contains.
type Subscriber struct {
	client   *ethclient.Client
	exchange common.Address
	logger   *slog.Logger

	blockTimes map[uint64]int64
}

// NewSubscriber dials the websocket RPC endpoint and returns a Subscriber
// for the given exchange contract address.
func NewSubscriber(ctx context.Context, rpcURL string, exchange common.Address, logger *slog.Logger) (*Subscriber, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("ctf: dial %s: %w", rpcURL, err)
	}

	return &Subscriber{
		client:     client,
		exchange:   exchange,
		logger:     logger.With("component", "ctf_subscriber"),
		blockTimes: make(map[uint64]int64),
	}, nil
}

// Close releases the underlying RPC connection.
func (s *Subscriber) Close() error {
	s.client.Close()
	return nil
}

// Run subscribes to OrderFilled logs and invokes handle for each decoded
// fill until the context is cancelled. Subscription errors trigger a
// resubscribe after a fixed delay; handler errors are logged and the stream
// continues, so one bad fill cannot stall the feed.
func (s *Subscriber) Run(ctx context.Context, handle func(context.Context, domain.FillEvent) error) error {
	for {
		if err := s.stream(ctx, handle); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logger.WarnContext(ctx, "log subscription dropped, reconnecting",
				"error", err,
				"retry_in", resubscribeDelay.String())
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(resubscribeDelay):
		}
	}
}

func (s *Subscriber) stream(ctx context.Context, handle func(context.Context, domain.FillEvent) error) error {
	query := ethereum.FilterQuery{
		Addresses: []common.Address{s.exchange},
		Topics:    [][]common.Hash{{OrderFilledTopic}},
	}

	logs := make(chan types.Log, 256)
	sub, err := s.client.SubscribeFilterLogs(ctx, query, logs)
	if err != nil {
		return fmt.Errorf("ctf: subscribe filter logs: %w", err)
	}
	defer sub.Unsubscribe()

	s.logger.InfoContext(ctx, "subscribed to fill events", "exchange", s.exchange.Hex())

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-sub.Err():
			return fmt.Errorf("ctf: subscription: %w", err)
		case lg := <-logs:
			if lg.Removed {
				continue
			}

			ts, err := s.blockTime(ctx, lg.BlockNumber)
			if err != nil {
				return fmt.Errorf("ctf: block %d timestamp: %w", lg.BlockNumber, err)
			}

			fill, err := ParseOrderFilled(lg, ts)
			if err != nil {
				s.logger.WarnContext(ctx, "skipping undecodable log",
					"tx", lg.TxHash.Hex(),
					"log_index", lg.Index,
					"error", err)
				continue
			}

			if err := handle(ctx, fill); err != nil {
				s.logger.ErrorContext(ctx, "fill handler failed",
					"order_hash", fill.OrderHash.Hex(),
					"error", err)
			}
		}
	}
}

func (s *Subscriber) blockTime(ctx context.Context, number uint64) (int64, error) {
	if ts, ok := s.blockTimes[number]; ok {
		return ts, nil
	}

	header, err := s.client.HeaderByNumber(ctx, new(big.Int).SetUint64(number))
	if err != nil {
		return 0, err
	}
	ts := int64(header.Time)

	// Bound the cache; fills arrive in rough block order so dropping it
	// entirely once full costs at most one header refetch per block.
	if len(s.blockTimes) >= blockTimeCap {
		s.blockTimes = make(map[uint64]int64)
	}
	s.blockTimes[number] = ts

	return ts, nil
}
