package registry

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// RegistryABI is the interface of the deployed domain registry contract.
// Owner handles are encrypted addresses and travel as uint256.
const RegistryABI = `[
  {"type":"function","name":"nameOf","stateMutability":"view",
   "inputs":[{"name":"","type":"bytes32","internalType":"bytes32"}],
   "outputs":[{"name":"","type":"string","internalType":"string"}]},
  {"type":"function","name":"registerDomain","stateMutability":"nonpayable",
   "inputs":[{"name":"name","type":"string","internalType":"string"},
             {"name":"encryptedOwner","type":"uint256","internalType":"eaddress"}],
   "outputs":[]},
  {"type":"function","name":"resolveOwnerHandle","stateMutability":"view",
   "inputs":[{"name":"name","type":"string","internalType":"string"}],
   "outputs":[{"name":"","type":"uint256","internalType":"eaddress"}]},
  {"type":"function","name":"transferDomain","stateMutability":"nonpayable",
   "inputs":[{"name":"name","type":"string","internalType":"string"},
             {"name":"newEncryptedOwner","type":"uint256","internalType":"eaddress"}],
   "outputs":[]},
  {"type":"event","name":"DomainRegistered","anonymous":false,
   "inputs":[{"name":"nameHash","type":"bytes32","indexed":true,"internalType":"bytes32"},
             {"name":"owner","type":"uint256","indexed":false,"internalType":"eaddress"},
             {"name":"registrar","type":"address","indexed":true,"internalType":"address"}]},
  {"type":"event","name":"DomainTransferred","anonymous":false,
   "inputs":[{"name":"nameHash","type":"bytes32","indexed":true,"internalType":"bytes32"},
             {"name":"newOwner","type":"uint256","indexed":false,"internalType":"eaddress"},
             {"name":"by","type":"address","indexed":true,"internalType":"address"}]}
]`

var parsedABI = mustParseABI()

func mustParseABI() abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(RegistryABI))
	if err != nil {
		panic(err)
	}
	return parsed
}

// ABI returns the parsed registry interface.
func ABI() abi.ABI {
	return parsedABI
}
