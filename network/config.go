// Package network holds the one supported target network and the guard that
// keeps the wallet attached to it.
package network

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/go-playground/validator/v10"
	"github.com/ruteri/encrypted-name-registry/interfaces"
)

// Config describes the supported network and the services bound to it.
type Config struct {
	ChainID          uint64                    `validate:"required"`
	Name             string                    `validate:"required"`
	Currency         interfaces.NativeCurrency `validate:"required"`
	RPCURL           string                    `validate:"required,url"`
	ExplorerURL      string                    `validate:"required,url"`
	GatewayURL       string                    `validate:"required,url"`
	RegistryContract common.Address            `validate:"required"`
}

// Sepolia returns the fixed configuration of the Sepolia test network.
func Sepolia() Config {
	return Config{
		ChainID: 11155111,
		Name:    "Sepolia Test Network",
		Currency: interfaces.NativeCurrency{
			Name:     "ETH",
			Symbol:   "ETH",
			Decimals: 18,
		},
		RPCURL:           "https://sepolia.infura.io/v3/",
		ExplorerURL:      "https://sepolia.etherscan.io/",
		GatewayURL:       "https://gateway.sepolia.zama.cloud",
		RegistryContract: common.HexToAddress("0x64C68a9dE828712C3DfC9867Ed619E24f140c749"),
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks that every field required to negotiate the network is set.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid network config: %w", err)
	}
	return nil
}

// HexChainID returns the chain identifier in the 0x-prefixed form wallets expect.
func (c Config) HexChainID() string {
	return hexutil.EncodeUint64(c.ChainID)
}

// ChainParams returns the wallet_addEthereumChain parameters of the network.
func (c Config) ChainParams() interfaces.ChainParams {
	return interfaces.ChainParams{
		ChainID:           c.HexChainID(),
		ChainName:         c.Name,
		NativeCurrency:    c.Currency,
		RPCURLs:           []string{c.RPCURL},
		BlockExplorerURLs: []string{c.ExplorerURL},
	}
}
