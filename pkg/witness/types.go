package witness

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Request asks for a mint of the holder's balance to Destination. Token is
// the ERC-20 contract for storage-slot deployments.
type Request struct {
	Holder      common.Address  `json:"eth_addr"`
	Destination string          `json:"neutron_addr"`
	Token       *common.Address `json:"erc20,omitempty"`
}

// BlockRoot is a block the oracle trusts for a domain.
type BlockRoot struct {
	Domain string
	Number uint64
	Root   common.Hash
}

// AccountProof is an EIP-1186 eth_getProof result.
type AccountProof struct {
	Address      common.Address  `json:"address"`
	AccountProof []hexutil.Bytes `json:"accountProof"`
	Balance      *hexutil.Big    `json:"balance"`
	CodeHash     common.Hash     `json:"codeHash"`
	Nonce        hexutil.Uint64  `json:"nonce"`
	StorageHash  common.Hash     `json:"storageHash"`
	StorageProof []StorageProof  `json:"storageProof"`
}

type StorageProof struct {
	Key   string          `json:"key"` // providers echo the requested form
	Value *hexutil.Big    `json:"value"`
	Proof []hexutil.Bytes `json:"proof"`
}

// KeyHash returns the 32-byte slot key.
func (s StorageProof) KeyHash() common.Hash { return common.HexToHash(s.Key) }

// ValueBig returns the claimed slot value, zero when absent.
func (s StorageProof) ValueBig() *big.Int {
	if s.Value == nil {
		return new(big.Int)
	}
	return s.Value.ToInt()
}

// BalanceBig returns the claimed account balance, zero when absent.
func (p *AccountProof) BalanceBig() *big.Int {
	if p.Balance == nil {
		return new(big.Int)
	}
	return p.Balance.ToInt()
}

// Nodes returns the account proof as raw RLP nodes.
func (p *AccountProof) Nodes() [][]byte {
	return toNodes(p.AccountProof)
}

// Nodes returns the storage proof as raw RLP nodes.
func (s StorageProof) Nodes() [][]byte {
	return toNodes(s.Proof)
}

func toNodes(in []hexutil.Bytes) [][]byte {
	out := make([][]byte, len(in))
	for i, n := range in {
		out[i] = n
	}
	return out
}
