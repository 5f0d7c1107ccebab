// Package ctf decodes logs emitted by the Polymarket CTF Exchange contract.
package ctf

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/polysight/ctfindexer/internal/domain"
)

// OrderFilledSignature is the canonical event signature of the exchange's
// fill event.
const OrderFilledSignature = "OrderFilled(bytes32,address,address,uint256,uint256,uint256,uint256,uint256)"

// OrderFilledTopic is keccak256 of OrderFilledSignature, topic zero of every
// OrderFilled log.
var OrderFilledTopic = crypto.Keccak256Hash([]byte(OrderFilledSignature))

const (
	// orderHash, maker and taker are indexed, so the log carries four topics.
	orderFilledTopics = 4
	// makerAssetId, takerAssetId, makerAmountFilled, takerAmountFilled and
	// fee are unindexed, five 32-byte words of data.
	orderFilledDataLen = 5 * 32
)

// ParseOrderFilled decodes an OrderFilled log into a domain.FillEvent.
// blockTime is the timestamp of the block the log was mined in; logs do not
// carry it themselves.
func ParseOrderFilled(lg types.Log, blockTime int64) (domain.FillEvent, error) {
	if len(lg.Topics) != orderFilledTopics || lg.Topics[0] != OrderFilledTopic {
		return domain.FillEvent{}, fmt.Errorf("ctf: not an OrderFilled log (tx %s, index %d)", lg.TxHash, lg.Index)
	}
	if len(lg.Data) != orderFilledDataLen {
		return domain.FillEvent{}, fmt.Errorf("ctf: OrderFilled data is %d bytes, want %d (tx %s)", len(lg.Data), orderFilledDataLen, lg.TxHash)
	}

	word := func(i int) *big.Int {
		return new(big.Int).SetBytes(lg.Data[i*32 : (i+1)*32])
	}

	return domain.FillEvent{
		OrderHash:         lg.Topics[1],
		Maker:             common.BytesToAddress(lg.Topics[2].Bytes()),
		Taker:             common.BytesToAddress(lg.Topics[3].Bytes()),
		MakerAssetID:      word(0),
		TakerAssetID:      word(1),
		MakerAmountFilled: word(2),
		TakerAmountFilled: word(3),
		Fee:               word(4),
		BlockNumber:       lg.BlockNumber,
		TransactionHash:   lg.TxHash,
		Timestamp:         blockTime,
	}, nil
}
