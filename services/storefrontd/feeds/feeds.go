package feeds

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	gethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"storefront/native/sale"
)

// Aggregator method selectors, first four bytes of the keccak hash of the
// canonical signature.
var (
	latestRoundDataSelector = gethcrypto.Keccak256([]byte("latestRoundData()"))[:4]
	decimalsSelector        = gethcrypto.Keccak256([]byte("decimals()"))[:4]
	descriptionSelector     = gethcrypto.Keccak256([]byte("description()"))[:4]
)

// ContractCaller is the subset of the Ethereum RPC used to read Chainlink
// aggregator contracts.
type ContractCaller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// DialClient initialises an EVM RPC client for the provided endpoint.
func DialClient(endpoint string) (*ethclient.Client, error) {
	trimmed := strings.TrimSpace(endpoint)
	if trimmed == "" {
		return nil, fmt.Errorf("evm endpoint required")
	}
	return ethclient.Dial(trimmed)
}

// ParseFeedAddress converts a 0x-prefixed hex string into a feed handle.
func ParseFeedAddress(raw string) (sale.FeedAddress, error) {
	trimmed := strings.TrimSpace(raw)
	if !common.IsHexAddress(trimmed) {
		return sale.FeedAddress{}, fmt.Errorf("feed %q is not a hex address", raw)
	}
	return sale.FeedAddress(common.HexToAddress(trimmed)), nil
}

// Chainlink reads price rounds from aggregator contracts over EVM JSON-RPC.
type Chainlink struct {
	client  ContractCaller
	timeout time.Duration
}

// NewChainlink constructs a feed over an EVM contract caller.
func NewChainlink(client ContractCaller, timeout time.Duration) *Chainlink {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Chainlink{client: client, timeout: timeout}
}

// Latest implements sale.PriceFeed against the aggregator at the supplied
// address. Each call reads the answer, decimals, and description in one
// timeout window.
func (c *Chainlink) Latest(ctx context.Context, feed sale.FeedAddress) (sale.RoundData, error) {
	if c == nil || c.client == nil {
		return sale.RoundData{}, fmt.Errorf("chainlink feed not initialised")
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	contract := common.Address(feed)
	raw, err := c.call(ctx, contract, latestRoundDataSelector)
	if err != nil {
		return sale.RoundData{}, fmt.Errorf("latest round data: %w", err)
	}
	answer, err := decodeRoundAnswer(raw)
	if err != nil {
		return sale.RoundData{}, fmt.Errorf("decode round: %w", err)
	}

	raw, err = c.call(ctx, contract, decimalsSelector)
	if err != nil {
		return sale.RoundData{}, fmt.Errorf("decimals: %w", err)
	}
	decimals, err := decodeUint8(raw)
	if err != nil {
		return sale.RoundData{}, fmt.Errorf("decode decimals: %w", err)
	}

	description := ""
	if raw, err = c.call(ctx, contract, descriptionSelector); err == nil {
		// Description is informational; a decode failure leaves it blank.
		description, _ = decodeString(raw)
	}

	return sale.RoundData{Answer: answer, Decimals: decimals, Description: description}, nil
}

func (c *Chainlink) call(ctx context.Context, to common.Address, selector []byte) ([]byte, error) {
	msg := ethereum.CallMsg{To: &to, Data: selector}
	return c.client.CallContract(ctx, msg, nil)
}

// decodeRoundAnswer extracts the int256 answer from the five-word
// latestRoundData return payload.
func decodeRoundAnswer(raw []byte) (*big.Int, error) {
	if len(raw) < 160 {
		return nil, fmt.Errorf("short payload: %d bytes", len(raw))
	}
	return decodeInt256(raw[32:64]), nil
}

func decodeInt256(word []byte) *big.Int {
	value := new(big.Int).SetBytes(word)
	if len(word) == 32 && word[0]&0x80 != 0 {
		max := new(big.Int).Lsh(big.NewInt(1), 256)
		value.Sub(value, max)
	}
	return value
}

func decodeUint8(raw []byte) (uint8, error) {
	if len(raw) < 32 {
		return 0, fmt.Errorf("short payload: %d bytes", len(raw))
	}
	value := new(big.Int).SetBytes(raw[:32])
	if !value.IsUint64() || value.Uint64() > 255 {
		return 0, fmt.Errorf("value %s out of range", value)
	}
	return uint8(value.Uint64()), nil
}

func decodeString(raw []byte) (string, error) {
	if len(raw) < 64 {
		return "", fmt.Errorf("short payload: %d bytes", len(raw))
	}
	offset := new(big.Int).SetBytes(raw[:32])
	if !offset.IsUint64() || offset.Uint64()+32 > uint64(len(raw)) {
		return "", fmt.Errorf("offset %s out of range", offset)
	}
	start := offset.Uint64()
	length := new(big.Int).SetBytes(raw[start : start+32])
	if !length.IsUint64() || length.Uint64() > uint64(len(raw))-start-32 {
		return "", fmt.Errorf("length %s out of range", length)
	}
	return string(raw[start+32 : start+32+length.Uint64()]), nil
}

// StaticRound pins one feed handle to a constant answer for development and
// test deployments without an EVM endpoint.
type StaticRound struct {
	Feed        sale.FeedAddress
	Answer      *big.Int
	Decimals    uint8
	Description string
}

// NewStatic builds a feed serving the supplied rounds. Unknown handles fail
// with the engine's feed-unavailable sentinel.
func NewStatic(rounds []StaticRound) *sale.ManualFeed {
	feed := sale.NewManualFeed()
	for _, round := range rounds {
		feed.Set(round.Feed, round.Answer, round.Decimals, round.Description)
	}
	return feed
}
