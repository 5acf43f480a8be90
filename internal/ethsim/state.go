// Package ethsim is an in-memory Ethereum state that answers block-root and
// eth_getProof requests with real Merkle-Patricia proofs. It backs the local
// pipeline and tests.
package ethsim

import (
	"context"
	"sort"
	"sync"

	errorsmod "cosmossdk.io/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"

	"github.com/yourorg/zkmint/pkg/errs"
	"github.com/yourorg/zkmint/pkg/mpt"
	"github.com/yourorg/zkmint/pkg/witness"
)

type account struct {
	nonce   uint64
	balance *uint256.Int
	storage map[common.Hash]*uint256.Int
}

// State is a mutable account set served as a single domain block.
type State struct {
	Domain string
	Number uint64

	// OracleErr and ProviderErr, when set, are returned by the respective
	// lookups.
	OracleErr   error
	ProviderErr error

	mu       sync.Mutex
	accounts map[common.Address]*account
	calls    int
}

func New(domain string, number uint64) *State {
	return &State{Domain: domain, Number: number, accounts: make(map[common.Address]*account)}
}

func (s *State) acct(addr common.Address) *account {
	a, ok := s.accounts[addr]
	if !ok {
		a = &account{balance: new(uint256.Int), storage: make(map[common.Hash]*uint256.Int)}
		s.accounts[addr] = a
	}
	return a
}

// SetBalance sets the native balance of addr.
func (s *State) SetBalance(addr common.Address, v *uint256.Int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.acct(addr).balance = new(uint256.Int).Set(v)
}

// SetStorage sets one storage slot of contract.
func (s *State) SetStorage(contract common.Address, key common.Hash, v *uint256.Int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := s.acct(contract)
	if a.nonce == 0 {
		a.nonce = 1
	}
	a.storage[key] = new(uint256.Int).Set(v)
}

// ProofCalls is the number of InclusionProof calls served.
func (s *State) ProofCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func storageTrie(a *account) (*mpt.Fixture, error) {
	st := mpt.NewFixture()
	for k, v := range a.storage {
		if v.IsZero() {
			continue
		}
		enc, err := mpt.EncodeStorage(v)
		if err != nil {
			return nil, err
		}
		if err := st.Put(k.Bytes(), enc); err != nil {
			return nil, err
		}
	}
	return st, nil
}

// build returns the account trie and every account's storage trie.
func (s *State) build() (*mpt.Fixture, map[common.Address]*mpt.Fixture, error) {
	addrs := make([]common.Address, 0, len(s.accounts))
	for addr := range s.accounts {
		addrs = append(addrs, addr)
	}
	sort.Slice(addrs, func(i, j int) bool { return addrs[i].Cmp(addrs[j]) < 0 })

	state := mpt.NewFixture()
	tries := make(map[common.Address]*mpt.Fixture, len(addrs))
	for _, addr := range addrs {
		a := s.accounts[addr]
		st, err := storageTrie(a)
		if err != nil {
			return nil, nil, err
		}
		tries[addr] = st
		enc, err := mpt.EncodeAccount(&types.StateAccount{
			Nonce:    a.nonce,
			Balance:  a.balance,
			Root:     st.Root(),
			CodeHash: types.EmptyCodeHash.Bytes(),
		})
		if err != nil {
			return nil, nil, err
		}
		if err := state.Put(addr.Bytes(), enc); err != nil {
			return nil, nil, err
		}
	}
	return state, tries, nil
}

// Root is the current state root.
func (s *State) Root() (common.Hash, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, _, err := s.build()
	if err != nil {
		return common.Hash{}, err
	}
	return state.Root(), nil
}

// Proof returns the EIP-1186 proof of address and keys against Root.
func (s *State) Proof(address common.Address, keys []common.Hash) (*witness.AccountProof, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, tries, err := s.build()
	if err != nil {
		return nil, err
	}
	nodes, err := state.Prove(address.Bytes())
	if err != nil {
		return nil, err
	}

	out := &witness.AccountProof{
		Address:      address,
		AccountProof: toHex(nodes),
		Balance:      (*hexutil.Big)(new(uint256.Int).ToBig()),
		CodeHash:     types.EmptyCodeHash,
		StorageHash:  types.EmptyRootHash,
		StorageProof: make([]witness.StorageProof, 0, len(keys)),
	}

	a, exists := s.accounts[address]
	st := mpt.NewFixture()
	if exists {
		st = tries[address]
		out.Balance = (*hexutil.Big)(a.balance.ToBig())
		out.Nonce = hexutil.Uint64(a.nonce)
		out.StorageHash = st.Root()
	}

	for _, k := range keys {
		sp, err := st.Prove(k.Bytes())
		if err != nil {
			return nil, err
		}
		val := new(uint256.Int)
		if exists {
			if v, ok := a.storage[k]; ok {
				val = v
			}
		}
		out.StorageProof = append(out.StorageProof, witness.StorageProof{
			Key:   k.Hex(),
			Value: (*hexutil.Big)(val.ToBig()),
			Proof: toHex(sp),
		})
	}
	return out, nil
}

// LatestBlock implements witness.BlockOracle for s.Domain only.
func (s *State) LatestBlock(_ context.Context, domain string) (*witness.BlockRoot, error) {
	if s.OracleErr != nil {
		return nil, s.OracleErr
	}
	if domain != s.Domain {
		return nil, errorsmod.Wrapf(errs.ErrDomainUnavailable, "domain %q", domain)
	}
	root, err := s.Root()
	if err != nil {
		return nil, err
	}
	return &witness.BlockRoot{Domain: domain, Number: s.Number, Root: root}, nil
}

// InclusionProof implements witness.ProofProvider.
func (s *State) InclusionProof(
	_ context.Context,
	_ string,
	address common.Address,
	keys []common.Hash,
	_ uint64,
) (*witness.AccountProof, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.ProviderErr != nil {
		return nil, s.ProviderErr
	}
	return s.Proof(address, keys)
}

func toHex(nodes [][]byte) []hexutil.Bytes {
	out := make([]hexutil.Bytes, len(nodes))
	for i, n := range nodes {
		out[i] = n
	}
	return out
}
