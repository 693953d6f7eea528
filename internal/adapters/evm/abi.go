package evm

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const routerABIJSON = `[
  {"type":"function","name":"addLiquidity","stateMutability":"nonpayable","inputs":[
    {"name":"tokenA","type":"address"},{"name":"tokenB","type":"address"},
    {"name":"amountADesired","type":"uint256"},{"name":"amountBDesired","type":"uint256"},
    {"name":"amountAMin","type":"uint256"},{"name":"amountBMin","type":"uint256"},
    {"name":"to","type":"address"},{"name":"deadline","type":"uint256"}],
   "outputs":[{"name":"amountA","type":"uint256"},{"name":"amountB","type":"uint256"},{"name":"liquidity","type":"uint256"}]},
  {"type":"function","name":"removeLiquidity","stateMutability":"nonpayable","inputs":[
    {"name":"tokenA","type":"address"},{"name":"tokenB","type":"address"},
    {"name":"liquidity","type":"uint256"},{"name":"amountAMin","type":"uint256"},
    {"name":"amountBMin","type":"uint256"},{"name":"to","type":"address"},{"name":"deadline","type":"uint256"}],
   "outputs":[{"name":"amountA","type":"uint256"},{"name":"amountB","type":"uint256"}]},
  {"type":"function","name":"swapExactTokensForTokens","stateMutability":"nonpayable","inputs":[
    {"name":"amountIn","type":"uint256"},{"name":"amountOutMin","type":"uint256"},
    {"name":"path","type":"address[]"},{"name":"to","type":"address"},{"name":"deadline","type":"uint256"}],
   "outputs":[{"name":"amounts","type":"uint256[]"}]},
  {"type":"function","name":"getAmountsOut","stateMutability":"view","inputs":[
    {"name":"amountIn","type":"uint256"},{"name":"path","type":"address[]"}],
   "outputs":[{"name":"amounts","type":"uint256[]"}]},
  {"type":"function","name":"factory","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]}
]`

const factoryABIJSON = `[
  {"type":"function","name":"getPair","stateMutability":"view","inputs":[
    {"name":"tokenA","type":"address"},{"name":"tokenB","type":"address"}],
   "outputs":[{"name":"pair","type":"address"}]}
]`

const pairABIJSON = `[
  {"type":"function","name":"getReserves","stateMutability":"view","inputs":[],
   "outputs":[{"name":"reserve0","type":"uint112"},{"name":"reserve1","type":"uint112"},{"name":"blockTimestampLast","type":"uint32"}]},
  {"type":"function","name":"token0","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},
  {"type":"function","name":"totalSupply","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]}
]`

const erc20ABIJSON = `[
  {"type":"function","name":"balanceOf","stateMutability":"view","inputs":[{"name":"owner","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"allowance","stateMutability":"view","inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"approve","stateMutability":"nonpayable","inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
  {"type":"function","name":"transfer","stateMutability":"nonpayable","inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
  {"type":"function","name":"decimals","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint8"}]},
  {"type":"function","name":"symbol","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]}
]`

const masterChefABIJSON = `[
  {"type":"function","name":"deposit","stateMutability":"nonpayable","inputs":[{"name":"pid","type":"uint256"},{"name":"amount","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"withdraw","stateMutability":"nonpayable","inputs":[{"name":"pid","type":"uint256"},{"name":"amount","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"userInfo","stateMutability":"view","inputs":[{"name":"pid","type":"uint256"},{"name":"user","type":"address"}],
   "outputs":[{"name":"amount","type":"uint256"},{"name":"rewardDebt","type":"uint256"}]}
]`

// The pending reward view differs per masterchef family; only its name changes.
const pendingABITemplate = `[
  {"type":"function","name":%q,"stateMutability":"view","inputs":[{"name":"pid","type":"uint256"},{"name":"user","type":"address"}],"outputs":[{"name":"","type":"uint256"}]}
]`

// Profits are ordered like the pair's token0/token1.
const hedgerABIJSON = `[
  {"type":"function","name":"hedgeLPToken","stateMutability":"nonpayable","inputs":[
    {"name":"lpToken","type":"address"},{"name":"amount","type":"uint256"},
    {"name":"h","type":"uint256"},{"name":"period","type":"uint256"}],
   "outputs":[{"name":"callID","type":"uint256"},{"name":"putID","type":"uint256"}]},
  {"type":"function","name":"closeHedge","stateMutability":"nonpayable","inputs":[
    {"name":"lpToken","type":"address"},{"name":"callID","type":"uint256"},{"name":"putID","type":"uint256"}],
   "outputs":[{"name":"payout0","type":"uint256"},{"name":"payout1","type":"uint256"}]},
  {"type":"function","name":"getHedgeProfit","stateMutability":"view","inputs":[
    {"name":"lpToken","type":"address"},{"name":"callID","type":"uint256"},{"name":"putID","type":"uint256"}],
   "outputs":[{"name":"profit0","type":"uint256"},{"name":"profit1","type":"uint256"}]}
]`

const providerABIJSON = `[
  {"type":"function","name":"want","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},
  {"type":"function","name":"strategist","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},
  {"type":"function","name":"vault","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]}
]`

const vaultABIJSON = `[
  {"type":"function","name":"governance","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]}
]`

var (
	routerABI     = mustParseABI(routerABIJSON)
	pairABI       = mustParseABI(pairABIJSON)
	factoryABI    = mustParseABI(factoryABIJSON)
	erc20ABI      = mustParseABI(erc20ABIJSON)
	masterChefABI = mustParseABI(masterChefABIJSON)
	hedgerABI     = mustParseABI(hedgerABIJSON)
	providerABI   = mustParseABI(providerABIJSON)
	vaultABI      = mustParseABI(vaultABIJSON)
)

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(fmt.Sprintf("invalid contract ABI: %v", err))
	}
	return parsed
}

// pendingABI builds the ABI of a variant's pending reward view.
func pendingABI(method string) (abi.ABI, error) {
	return abi.JSON(strings.NewReader(fmt.Sprintf(pendingABITemplate, method)))
}
