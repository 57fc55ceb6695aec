package types

// Chain identifies one of the supported blockchain networks
type Chain string

const (
	ChainEthereum Chain = "ethereum"
	ChainSolana   Chain = "solana"
	ChainBSC      Chain = "bsc"
)

// SupportedChains lists every chain the engine can execute on
var SupportedChains = []Chain{ChainEthereum, ChainSolana, ChainBSC}

// Valid reports whether the chain is one of the supported networks
func (c Chain) Valid() bool {
	switch c {
	case ChainEthereum, ChainSolana, ChainBSC:
		return true
	}
	return false
}

func (c Chain) String() string {
	return string(c)
}

// DEXProtocol identifies the DEX protocol a victim transaction targets
type DEXProtocol string

const (
	ProtocolUniswapV2   DEXProtocol = "uniswap_v2"
	ProtocolUniswapV3   DEXProtocol = "uniswap_v3"
	ProtocolPancakeSwap DEXProtocol = "pancakeswap"
	ProtocolRaydium     DEXProtocol = "raydium"
	ProtocolOrca        DEXProtocol = "orca"
	ProtocolUnknown     DEXProtocol = "unknown"
)
