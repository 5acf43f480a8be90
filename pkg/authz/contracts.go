package authz

import (
	"encoding/json"

	errorsmod "cosmossdk.io/errors"

	"github.com/yourorg/zkmint/pkg/errs"
)

// Mint is the body of a CW20 mint.
type Mint struct {
	Recipient string  `json:"recipient"`
	Amount    Uint128 `json:"amount"`
}

// Cw20ExecuteMsg is the subset of CW20 execute messages the pipeline emits.
type Cw20ExecuteMsg struct {
	Mint *Mint `json:"mint,omitempty"`
}

// Cw20QueryMsg is the subset of CW20 queries the pipeline issues.
type Cw20QueryMsg struct {
	Balance *BalanceQuery `json:"balance,omitempty"`
}

type BalanceQuery struct {
	Address string `json:"address"`
}

type BalanceResponse struct {
	Balance Uint128 `json:"balance"`
}

// ZKAuthorization is the payload of the authorization contract's
// permissionless proof-gated entrypoint.
type ZKAuthorization struct {
	Label         string `json:"label"`
	Message       []byte `json:"message"`
	Proof         []byte `json:"proof"`
	DomainMessage []byte `json:"domain_message"`
	DomainProof   []byte `json:"domain_proof"`
}

// AuthorizationExecuteMsg is the subset of authorization contract messages.
type AuthorizationExecuteMsg struct {
	ExecuteZKAuthorization *ZKAuthorization `json:"execute_zk_authorization,omitempty"`
}

// ProcessorExecuteMsg is the subset of processor messages.
type ProcessorExecuteMsg struct {
	PermissionlessAction *PermissionlessAction `json:"permissionless_action,omitempty"`
}

type PermissionlessAction struct {
	Tick *struct{} `json:"tick,omitempty"`
}

// TickMsg dequeues and executes the next ready message.
func TickMsg() ProcessorExecuteMsg {
	return ProcessorExecuteMsg{PermissionlessAction: &PermissionlessAction{Tick: &struct{}{}}}
}

// MintParams is the deployment-time configuration of the mint authorization.
type MintParams struct {
	TokenContract         string
	Registry              uint64
	BlockNumber           uint64
	AuthorizationContract *string
}

// BuildMintMessage wraps a single CW20 mint into an atomic subroutine with
// medium priority and no expiration.
func BuildMintMessage(p MintParams, recipient string, amount Uint128) (*ZkMessage, error) {
	if p.TokenContract == "" {
		return nil, errorsmod.Wrap(errs.ErrConfiguration, "token contract not set")
	}
	mint, err := json.Marshal(Cw20ExecuteMsg{Mint: &Mint{Recipient: recipient, Amount: amount}})
	if err != nil {
		return nil, err
	}

	function := AtomicFunction{
		Domain: MainDomain,
		MessageDetails: MessageDetails{
			MessageType: MessageTypeCosmwasmExecute,
			Message:     Message{Name: "mint"},
		},
		ContractAddress: ContractAddress{Addr: p.TokenContract},
	}

	return &ZkMessage{
		Registry:              p.Registry,
		BlockNumber:           p.BlockNumber,
		Domain:                MainDomain,
		AuthorizationContract: p.AuthorizationContract,
		Message: AuthorizationMsg{
			EnqueueMsgs: &EnqueueMsgs{
				ID:   0,
				Msgs: []ProcessorMessage{{CosmwasmExecuteMsg: &CosmwasmExecuteMsg{Msg: mint}}},
				Subroutine: Subroutine{
					Atomic: &AtomicSubroutine{Functions: []AtomicFunction{function}},
				},
				Priority: PriorityMedium,
			},
		},
	}, nil
}

// MintCall is a mint paired with the contract it targets.
type MintCall struct {
	Contract string
	Mint
}

// Mints extracts every CW20 mint the message would execute, in order.
func (m *ZkMessage) Mints() ([]MintCall, error) {
	enq := m.Message.EnqueueMsgs
	if enq == nil || enq.Subroutine.Atomic == nil {
		return nil, errorsmod.Wrap(errs.ErrDecode, "not an atomic enqueue")
	}
	fns := enq.Subroutine.Atomic.Functions
	if len(fns) != len(enq.Msgs) {
		return nil, errorsmod.Wrapf(errs.ErrDecode, "%d functions for %d messages", len(fns), len(enq.Msgs))
	}

	var out []MintCall
	for i, pm := range enq.Msgs {
		if pm.CosmwasmExecuteMsg == nil {
			continue
		}
		var exec Cw20ExecuteMsg
		if err := json.Unmarshal(pm.CosmwasmExecuteMsg.Msg, &exec); err != nil {
			return nil, errorsmod.Wrapf(errs.ErrDecode, "message %d: %v", i, err)
		}
		if exec.Mint == nil {
			continue
		}
		out = append(out, MintCall{Contract: fns[i].ContractAddress.Addr, Mint: *exec.Mint})
	}
	return out, nil
}
