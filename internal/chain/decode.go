// Package chain listens for new blocks and decodes OrderFilled logs from the
// CTF exchange contracts into normalized trade records.
package chain

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/Oceanjackson1/Polymarket-BTC-5m-Scraper-API-Soluation/internal/domain"
)

// Settlement contracts on Polygon that emit OrderFilled.
var (
	CTFExchange        = common.HexToAddress("0x4bFb41d5B3570DeFd03C39a9A4D8dE6Bd8B8982E")
	NegRiskCTFExchange = common.HexToAddress("0xC5d563A36AE78145C45a50134d48A1215220f80a")

	// OrderFilledTopic is the keccak256 signature of
	// OrderFilled(bytes32,address,address,uint256,uint256,uint256,uint256,uint256).
	OrderFilledTopic = common.HexToHash("0xd0a08e8c493f9c94f29311604c9de1b4e8c8d4c06bd0c789af57f2d65bfec0f6")
)

// usdcScale converts 6-decimal fixed-point amounts; both USDC and the
// outcome tokens use 6 decimals.
const usdcScale = 1e6

// OrderFill is a decoded OrderFilled log. The collateral (USDC) side carries
// asset ID zero.
type OrderFill struct {
	OrderHash    common.Hash
	Maker        common.Address
	Taker        common.Address
	MakerAssetID *big.Int
	TakerAssetID *big.Int
	MakerAmount  *big.Int
	TakerAmount  *big.Int
	Fee          *big.Int

	TxHash   common.Hash
	LogIndex uint
	Block    uint64
}

// DecodeOrderFilled unpacks an OrderFilled log. Maker and taker arrive as
// indexed topics; the data payload is five 32-byte words: maker asset ID,
// taker asset ID, maker amount, taker amount, fee.
func DecodeOrderFilled(lg types.Log) (OrderFill, error) {
	if len(lg.Topics) < 4 {
		return OrderFill{}, fmt.Errorf("chain: %w: %d topics", domain.ErrDecode, len(lg.Topics))
	}
	if len(lg.Data) < 5*32 {
		return OrderFill{}, fmt.Errorf("chain: %w: %d data bytes", domain.ErrDecode, len(lg.Data))
	}

	return OrderFill{
		OrderHash:    lg.Topics[1],
		Maker:        common.BytesToAddress(lg.Topics[2].Bytes()),
		Taker:        common.BytesToAddress(lg.Topics[3].Bytes()),
		MakerAssetID: new(big.Int).SetBytes(lg.Data[0:32]),
		TakerAssetID: new(big.Int).SetBytes(lg.Data[32:64]),
		MakerAmount:  new(big.Int).SetBytes(lg.Data[64:96]),
		TakerAmount:  new(big.Int).SetBytes(lg.Data[96:128]),
		Fee:          new(big.Int).SetBytes(lg.Data[128:160]),
		TxHash:       lg.TxHash,
		LogIndex:     lg.Index,
		Block:        lg.BlockNumber,
	}, nil
}

// Classify resolves a fill against the tracked token set and builds the
// normalized trade. When the maker asset is a market token and the taker
// side is USDC the fill is a SELL; the inverse is a BUY. Fills whose token
// is not tracked, or that are token-for-token, yield ok=false.
func Classify(fill OrderFill, resolver domain.TokenResolver, blockTime uint64) (domain.Trade, bool) {
	var (
		ref      domain.TokenRef
		assetID  string
		side     string
		size     float64
		notional float64
	)

	switch {
	case fill.MakerAssetID.Sign() != 0 && fill.TakerAssetID.Sign() == 0:
		r, err := resolver.ResolveToken(fill.MakerAssetID.String())
		if err != nil {
			return domain.Trade{}, false
		}
		ref = r
		assetID = fill.MakerAssetID.String()
		side = "SELL"
		size = scaleAmount(fill.MakerAmount)
		notional = scaleAmount(fill.TakerAmount)

	case fill.TakerAssetID.Sign() != 0 && fill.MakerAssetID.Sign() == 0:
		r, err := resolver.ResolveToken(fill.TakerAssetID.String())
		if err != nil {
			return domain.Trade{}, false
		}
		ref = r
		assetID = fill.TakerAssetID.String()
		side = "BUY"
		size = scaleAmount(fill.TakerAmount)
		notional = scaleAmount(fill.MakerAmount)

	default:
		return domain.Trade{}, false
	}

	price := 0.0
	if size > 0 {
		price = notional / size
	}

	return domain.Trade{
		Source:        domain.TradeSourceChain,
		MarketSlug:    ref.MarketSlug,
		ConditionID:   ref.ConditionID,
		EventID:       ref.EventID,
		WindowStartTs: ref.WindowStartTs,
		AssetID:       assetID,
		Outcome:       ref.Outcome,
		Side:          side,
		Price:         price,
		Size:          size,
		Notional:      notional,
		TimestampMs:   TimestampMs(blockTime, fill.LogIndex),
		ProxyWallet:   strings.ToLower(fill.Maker.Hex()),
		TxHash:        fill.TxHash.Hex(),
		DedupeKey:     DedupeKey(fill.TxHash, fill.LogIndex),
	}, true
}

// TimestampMs derives the deterministic sub-second timestamp: the log index
// offsets the block time so same-block fills keep their on-chain order.
func TimestampMs(blockTime uint64, logIndex uint) int64 {
	return int64(blockTime)*1000 + int64(logIndex)
}

// DedupeKey is txHash:logIndex, globally unique per chain event.
func DedupeKey(txHash common.Hash, logIndex uint) string {
	return fmt.Sprintf("%s:%d", txHash.Hex(), logIndex)
}

func scaleAmount(v *big.Int) float64 {
	f, _ := new(big.Float).SetInt(v).Float64()
	return f / usdcScale
}
