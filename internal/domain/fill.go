package domain

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// FillEvent is one decoded OrderFilled event from the CTF Exchange contract.
// Asset IDs are ERC-1155 token IDs (uint256); asset ID 0 is the USDC
// collateral token. Amounts are raw integer units scaled by the asset's
// decimal precision (6 for USDC).
type FillEvent struct {
	OrderHash         common.Hash
	Maker             common.Address
	Taker             common.Address
	MakerAssetID      *big.Int
	TakerAssetID      *big.Int
	MakerAmountFilled *big.Int
	TakerAmountFilled *big.Int
	Fee               *big.Int
	BlockNumber       uint64
	TransactionHash   common.Hash
	Timestamp         int64
}
