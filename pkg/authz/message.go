// Package authz models the authorization messages a verified state proof is
// turned into: a CW20 mint wrapped in an atomic subroutine, enqueued with a
// priority through the ZK authorization entrypoint.
//
// JSON field names and enum encodings follow the on-chain contracts' serde
// representation, so the bytes produced here are accepted as-is.
package authz

import (
	"bytes"
	"encoding/json"

	errorsmod "cosmossdk.io/errors"

	"github.com/yourorg/zkmint/pkg/errs"
)

const (
	// RegularMintLabel is the authorization label for signature-gated mints.
	RegularMintLabel = "mint_cw20"
	// ZKMintLabel is the authorization label for proof-gated mints.
	ZKMintLabel = "zk_mint_cw20"

	// Unconstrained is the registry / block-number value that leaves the
	// field unchecked by the verifier.
	Unconstrained uint64 = 0
)

// Domain names the chain an authorization function executes on. The zero
// value is the main domain.
type Domain struct {
	External string
}

// MainDomain is the domain hosting the authorization contract.
var MainDomain = Domain{}

func (d Domain) IsMain() bool { return d.External == "" }

func (d Domain) MarshalJSON() ([]byte, error) {
	if d.IsMain() {
		return []byte(`"main"`), nil
	}
	return json.Marshal(map[string]string{"external": d.External})
}

func (d *Domain) UnmarshalJSON(b []byte) error {
	if string(b) == `"main"` {
		*d = MainDomain
		return nil
	}
	var ext struct {
		External *string `json:"external"`
	}
	if err := json.Unmarshal(b, &ext); err != nil || ext.External == nil || *ext.External == "" {
		return errorsmod.Wrapf(errs.ErrDecode, "domain %s", b)
	}
	d.External = *ext.External
	return nil
}

// Priority orders enqueued messages in the processor.
type Priority string

const (
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Rank returns a larger number for messages that run first.
func (p Priority) Rank() int {
	if p == PriorityHigh {
		return 1
	}
	return 0
}

// Expiration mirrors cw_utils::Expiration. A nil *Expiration means none.
type Expiration struct {
	AtHeight *uint64   `json:"at_height,omitempty"`
	AtTime   *string   `json:"at_time,omitempty"`
	Never    *struct{} `json:"never,omitempty"`
}

// ParamsRestrictions is left opaque; mints carry none.
type ParamsRestrictions = json.RawMessage

type Message struct {
	Name               string             `json:"name"`
	ParamsRestrictions ParamsRestrictions `json:"params_restrictions"`
}

type MessageType string

const MessageTypeCosmwasmExecute MessageType = "cosmwasm_execute_msg"

type MessageDetails struct {
	MessageType MessageType `json:"message_type"`
	Message     Message     `json:"message"`
}

// ContractAddress is a LibraryAccountType::Addr.
type ContractAddress struct {
	Addr string `json:"|library_account_addr|"`
}

// AtomicFunction is a single call of an atomic subroutine.
type AtomicFunction struct {
	Domain          Domain          `json:"domain"`
	MessageDetails  MessageDetails  `json:"message_details"`
	ContractAddress ContractAddress `json:"contract_address"`
}

// AtomicSubroutine is an ordered list of calls that succeed or fail together.
type AtomicSubroutine struct {
	Functions      []AtomicFunction `json:"functions"`
	RetryLogic     json.RawMessage  `json:"retry_logic"`
	ExpirationTime *uint64          `json:"expiration_time"`
}

type Subroutine struct {
	Atomic *AtomicSubroutine `json:"atomic,omitempty"`
}

type CosmwasmExecuteMsg struct {
	Msg []byte `json:"msg"`
}

// ProcessorMessage is the payload handed to the processor for one function.
type ProcessorMessage struct {
	CosmwasmExecuteMsg *CosmwasmExecuteMsg `json:"cosmwasm_execute_msg,omitempty"`
}

// EnqueueMsgs asks the processor to queue msgs under subroutine.
type EnqueueMsgs struct {
	ID             uint64             `json:"id"`
	Msgs           []ProcessorMessage `json:"msgs"`
	Subroutine     Subroutine         `json:"subroutine"`
	Priority       Priority           `json:"priority"`
	ExpirationTime *Expiration        `json:"expiration_time"`
}

type AuthorizationMsg struct {
	EnqueueMsgs *EnqueueMsgs `json:"enqueue_msgs,omitempty"`
}

// ZkMessage is the public output of the state-proof circuit and the message
// the authorization contract executes once both proofs verify.
type ZkMessage struct {
	Registry              uint64           `json:"registry"`
	BlockNumber           uint64           `json:"block_number"`
	Domain                Domain           `json:"domain"`
	AuthorizationContract *string          `json:"authorization_contract"`
	Message               AuthorizationMsg `json:"message"`
}

// Encode returns the canonical serialization of m.
func (m *ZkMessage) Encode() ([]byte, error) {
	return json.Marshal(m)
}

// DecodeZkMessage parses the canonical serialization, rejecting unknown fields.
func DecodeZkMessage(b []byte) (*ZkMessage, error) {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	var m ZkMessage
	if err := dec.Decode(&m); err != nil {
		return nil, errorsmod.Wrapf(errs.ErrDecode, "zk message: %v", err)
	}
	if m.Message.EnqueueMsgs == nil {
		return nil, errorsmod.Wrap(errs.ErrDecode, "zk message: missing enqueue_msgs")
	}
	return &m, nil
}
