package scoring

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/hulrap/TradingBot-sub016/pkg/types"
)

// ErrNotASwap marks transactions that decode cleanly but are not swaps
var ErrNotASwap = errors.New("transaction is not a swap")

// SwapDetails carries the decoded fields of a victim swap
type SwapDetails struct {
	Protocol     types.DEXProtocol
	TokenIn      string
	TokenOut     string
	AmountIn     *big.Int
	MinAmountOut *big.Int
	Decimals     int
}

// SwapDecoder extracts swap details from a raw pending transaction of one
// chain family
type SwapDecoder interface {
	Decode(tx *types.PendingTransaction) (*SwapDetails, error)
}

// EVM router method selectors (UniswapV2/PancakeSwap family)
const (
	selSwapExactETHForTokens    = "7ff36ab5"
	selSwapExactTokensForETH    = "18cbafe5"
	selSwapExactTokensForTokens = "38ed1739"
	selSwapETHForExactTokens    = "fb3bdb41"
	selSwapTokensForExactTokens = "8803dbee"
)

// evmDecoder decodes UniswapV2-style router calldata. Shared by the Ethereum
// and BSC chain families; only the protocol label differs.
type evmDecoder struct {
	protocol types.DEXProtocol
}

// NewEVMDecoder creates a decoder for UniswapV2-style router calldata
func NewEVMDecoder(protocol types.DEXProtocol) SwapDecoder {
	return &evmDecoder{protocol: protocol}
}

func (d *evmDecoder) Decode(tx *types.PendingTransaction) (*SwapDetails, error) {
	if len(tx.Data) < 4 {
		return nil, ErrNotASwap
	}
	sel := common.Bytes2Hex(tx.Data[:4])
	args := tx.Data[4:]

	details := &SwapDetails{Protocol: d.protocol, Decimals: 18}

	switch sel {
	case selSwapExactETHForTokens:
		// swapExactETHForTokens(uint256 amountOutMin, address[] path, address to, uint256 deadline)
		minOut, path, err := decodeAmountAndPath(args, 0, 1)
		if err != nil {
			return nil, err
		}
		details.AmountIn = tx.Value
		details.MinAmountOut = minOut
		details.TokenIn = path[0]
		details.TokenOut = path[len(path)-1]

	case selSwapExactTokensForETH, selSwapExactTokensForTokens:
		// (uint256 amountIn, uint256 amountOutMin, address[] path, address to, uint256 deadline)
		amountIn, err := wordAsBig(args, 0)
		if err != nil {
			return nil, err
		}
		minOut, path, err := decodeAmountAndPath(args, 1, 2)
		if err != nil {
			return nil, err
		}
		details.AmountIn = amountIn
		details.MinAmountOut = minOut
		details.TokenIn = path[0]
		details.TokenOut = path[len(path)-1]

	case selSwapETHForExactTokens:
		// swapETHForExactTokens(uint256 amountOut, address[] path, address to, uint256 deadline)
		amountOut, path, err := decodeAmountAndPath(args, 0, 1)
		if err != nil {
			return nil, err
		}
		details.AmountIn = tx.Value
		details.MinAmountOut = amountOut
		details.TokenIn = path[0]
		details.TokenOut = path[len(path)-1]

	case selSwapTokensForExactTokens:
		// (uint256 amountOut, uint256 amountInMax, address[] path, address to, uint256 deadline)
		amountOut, err := wordAsBig(args, 0)
		if err != nil {
			return nil, err
		}
		amountInMax, path, err := decodeAmountAndPath(args, 1, 2)
		if err != nil {
			return nil, err
		}
		details.AmountIn = amountInMax
		details.MinAmountOut = amountOut
		details.TokenIn = path[0]
		details.TokenOut = path[len(path)-1]

	default:
		return nil, ErrNotASwap
	}

	if details.AmountIn == nil || details.AmountIn.Sign() <= 0 {
		return nil, fmt.Errorf("swap has no input amount")
	}
	return details, nil
}

// decodeAmountAndPath reads a uint256 word at amountWord and the address[]
// whose offset pointer sits at pathWord
func decodeAmountAndPath(args []byte, amountWord, pathWord int) (*big.Int, []string, error) {
	amount, err := wordAsBig(args, amountWord)
	if err != nil {
		return nil, nil, err
	}
	path, err := decodeAddressArray(args, pathWord)
	if err != nil {
		return nil, nil, err
	}
	return amount, path, nil
}

// wordAsBig reads the 32-byte word at the given index
func wordAsBig(args []byte, word int) (*big.Int, error) {
	start := word * 32
	if len(args) < start+32 {
		return nil, fmt.Errorf("calldata too short for word %d", word)
	}
	return new(big.Int).SetBytes(args[start : start+32]), nil
}

// decodeAddressArray follows the offset pointer at the given word and reads
// the dynamic address array it points to
func decodeAddressArray(args []byte, word int) ([]string, error) {
	offset, err := wordAsBig(args, word)
	if err != nil {
		return nil, err
	}
	if !offset.IsInt64() {
		return nil, fmt.Errorf("path offset out of range")
	}
	base := int(offset.Int64())
	length, err := wordAsBig(args, base/32)
	if err != nil {
		return nil, err
	}
	if !length.IsInt64() || length.Int64() < 2 || length.Int64() > 8 {
		return nil, fmt.Errorf("invalid path length")
	}
	n := int(length.Int64())

	path := make([]string, 0, n)
	for i := 0; i < n; i++ {
		w, err := wordAsBig(args, base/32+1+i)
		if err != nil {
			return nil, err
		}
		path = append(path, common.BytesToAddress(w.Bytes()).Hex())
	}
	return path, nil
}

// Raydium-style swap instruction layout: 1-byte discriminator followed by two
// little-endian u64 amounts, then the 32-byte source and destination mints.
const solSwapDiscriminator = 0x09

type solanaDecoder struct{}

// NewSolanaDecoder creates a decoder for Raydium-style swap instructions
func NewSolanaDecoder() SwapDecoder {
	return &solanaDecoder{}
}

func (d *solanaDecoder) Decode(tx *types.PendingTransaction) (*SwapDetails, error) {
	data := tx.Data
	if len(data) < 1+8+8+32+32 {
		return nil, ErrNotASwap
	}
	if data[0] != solSwapDiscriminator {
		return nil, ErrNotASwap
	}

	amountIn := binary.LittleEndian.Uint64(data[1:9])
	minOut := binary.LittleEndian.Uint64(data[9:17])
	if amountIn == 0 {
		return nil, fmt.Errorf("swap has no input amount")
	}

	return &SwapDetails{
		Protocol:     types.ProtocolRaydium,
		TokenIn:      common.Bytes2Hex(data[17:49]),
		TokenOut:     common.Bytes2Hex(data[49:81]),
		AmountIn:     new(big.Int).SetUint64(amountIn),
		MinAmountOut: new(big.Int).SetUint64(minOut),
		Decimals:     9,
	}, nil
}
