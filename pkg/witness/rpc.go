package witness

import (
	"context"
	"sync"

	errorsmod "cosmossdk.io/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/yourorg/zkmint/pkg/errs"
)

// FetchProof calls eth_getProof for contract at block. keys may be empty.
func FetchProof(
	ctx context.Context,
	cli *rpc.Client,
	contract common.Address,
	keys []common.Hash,
	block uint64,
) (*AccountProof, error) {

	slots := make([]string, 0, len(keys)) // never null on the wire
	for _, k := range keys {
		slots = append(slots, k.Hex())
	}

	var p AccountProof
	err := cli.CallContext(
		ctx, &p, "eth_getProof",
		contract,
		slots,                 // slot list as hex-strings
		hexutil.Uint64(block), // block tag
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// FetchHeader returns number and state root of the block selected by tag
// ("latest", "finalized", "safe" or a 0x-number).
func FetchHeader(ctx context.Context, cli *rpc.Client, tag string) (uint64, common.Hash, error) {
	var hdr *struct {
		Number    hexutil.Uint64 `json:"number"`
		StateRoot common.Hash    `json:"stateRoot"`
	}
	if err := cli.CallContext(ctx, &hdr, "eth_getBlockByNumber", tag, false); err != nil {
		return 0, common.Hash{}, err
	}
	if hdr == nil {
		return 0, common.Hash{}, errorsmod.Wrapf(errs.ErrDomainUnavailable, "no block for tag %s", tag)
	}
	return uint64(hdr.Number), hdr.StateRoot, nil
}

// RPCOracle trusts the header an execution RPC reports for a domain.
type RPCOracle struct {
	// Tag selects the block, "latest" when empty.
	Tag string

	mu      sync.RWMutex
	clients map[string]*rpc.Client
}

func NewRPCOracle(tag string) *RPCOracle {
	return &RPCOracle{Tag: tag, clients: make(map[string]*rpc.Client)}
}

// Register binds domain to cli.
func (o *RPCOracle) Register(domain string, cli *rpc.Client) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.clients[domain] = cli
}

func (o *RPCOracle) LatestBlock(ctx context.Context, domain string) (*BlockRoot, error) {
	o.mu.RLock()
	cli, ok := o.clients[domain]
	o.mu.RUnlock()
	if !ok {
		return nil, errorsmod.Wrapf(errs.ErrDomainUnavailable, "domain %q", domain)
	}

	tag := o.Tag
	if tag == "" {
		tag = "latest"
	}
	num, root, err := FetchHeader(ctx, cli, tag)
	if err != nil {
		return nil, errorsmod.Wrapf(errs.ErrDomainUnavailable, "domain %q: %v", domain, err)
	}
	return &BlockRoot{Domain: domain, Number: num, Root: root}, nil
}

// RPCProvider serves eth_getProof from one RPC per network.
type RPCProvider struct {
	mu      sync.RWMutex
	clients map[string]*rpc.Client
}

func NewRPCProvider() *RPCProvider {
	return &RPCProvider{clients: make(map[string]*rpc.Client)}
}

func (p *RPCProvider) Register(network string, cli *rpc.Client) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clients[network] = cli
}

func (p *RPCProvider) InclusionProof(
	ctx context.Context,
	network string,
	address common.Address,
	keys []common.Hash,
	block uint64,
) (*AccountProof, error) {
	p.mu.RLock()
	cli, ok := p.clients[network]
	p.mu.RUnlock()
	if !ok {
		return nil, errorsmod.Wrapf(errs.ErrProofProvider, "no provider for network %q", network)
	}
	return FetchProof(ctx, cli, address, keys, block)
}
