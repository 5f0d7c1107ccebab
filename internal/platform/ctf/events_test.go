package ctf

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

func word(v *big.Int) []byte {
	b := make([]byte, 32)
	v.FillBytes(b)
	return b
}

func orderFilledLog(makerAssetID, takerAssetID, makerAmt, takerAmt, fee *big.Int) types.Log {
	data := make([]byte, 0, orderFilledDataLen)
	for _, v := range []*big.Int{makerAssetID, takerAssetID, makerAmt, takerAmt, fee} {
		data = append(data, word(v)...)
	}
	return types.Log{
		Topics: []common.Hash{
			OrderFilledTopic,
			common.HexToHash("0x00000000000000000000000000000000000000000000000000000000000000aa"),
			common.HexToHash("0x0000000000000000000000001111111111111111111111111111111111111111"),
			common.HexToHash("0x0000000000000000000000002222222222222222222222222222222222222222"),
		},
		Data:        data,
		BlockNumber: 55000000,
		TxHash:      common.HexToHash("0xdead"),
		Index:       3,
	}
}

func TestParseOrderFilled(t *testing.T) {
	tokenID, _ := new(big.Int).SetString("21742633143463906290569050155826241533067272736897614950488156847949938836455", 10)

	t.Run("decodes all fields", func(t *testing.T) {
		lg := orderFilledLog(big.NewInt(0), tokenID, big.NewInt(50_000000), big.NewInt(100_000000), big.NewInt(250))

		ev, err := ParseOrderFilled(lg, 1700000000)
		if err != nil {
			t.Fatalf("ParseOrderFilled: %v", err)
		}

		if ev.OrderHash != lg.Topics[1] {
			t.Errorf("OrderHash = %s, want %s", ev.OrderHash, lg.Topics[1])
		}
		if got := ev.Maker.Hex(); got != "0x1111111111111111111111111111111111111111" {
			t.Errorf("Maker = %s", got)
		}
		if got := ev.Taker.Hex(); got != "0x2222222222222222222222222222222222222222" {
			t.Errorf("Taker = %s", got)
		}
		if ev.MakerAssetID.Sign() != 0 {
			t.Errorf("MakerAssetID = %s, want 0", ev.MakerAssetID)
		}
		if ev.TakerAssetID.Cmp(tokenID) != 0 {
			t.Errorf("TakerAssetID = %s, want %s", ev.TakerAssetID, tokenID)
		}
		if ev.MakerAmountFilled.Int64() != 50_000000 {
			t.Errorf("MakerAmountFilled = %s", ev.MakerAmountFilled)
		}
		if ev.TakerAmountFilled.Int64() != 100_000000 {
			t.Errorf("TakerAmountFilled = %s", ev.TakerAmountFilled)
		}
		if ev.Fee.Int64() != 250 {
			t.Errorf("Fee = %s", ev.Fee)
		}
		if ev.BlockNumber != 55000000 {
			t.Errorf("BlockNumber = %d", ev.BlockNumber)
		}
		if ev.Timestamp != 1700000000 {
			t.Errorf("Timestamp = %d", ev.Timestamp)
		}
	})

	t.Run("rejects wrong topic", func(t *testing.T) {
		lg := orderFilledLog(big.NewInt(0), tokenID, big.NewInt(1), big.NewInt(1), big.NewInt(0))
		lg.Topics[0] = common.HexToHash("0xbeef")

		if _, err := ParseOrderFilled(lg, 0); err == nil {
			t.Fatal("want error for wrong topic0")
		}
	})

	t.Run("rejects short data", func(t *testing.T) {
		lg := orderFilledLog(big.NewInt(0), tokenID, big.NewInt(1), big.NewInt(1), big.NewInt(0))
		lg.Data = lg.Data[:64]

		if _, err := ParseOrderFilled(lg, 0); err == nil {
			t.Fatal("want error for truncated data")
		}
	})

	t.Run("rejects missing topics", func(t *testing.T) {
		lg := orderFilledLog(big.NewInt(0), tokenID, big.NewInt(1), big.NewInt(1), big.NewInt(0))
		lg.Topics = lg.Topics[:2]

		if _, err := ParseOrderFilled(lg, 0); err == nil {
			t.Fatal("want error for missing topics")
		}
	})
}
