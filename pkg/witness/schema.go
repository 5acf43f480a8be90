package witness

import (
	"fmt"
	"strings"
	"unicode/utf8"

	errorsmod "cosmossdk.io/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"

	"github.com/yourorg/zkmint/pkg/errs"
)

// SchemaVersion is bumped whenever the meaning of a bundle position changes.
const SchemaVersion uint16 = 1

// Label names a bundle position. Every encoded witness carries its label and
// the decoder checks it against the position it was found at.
type Label string

const (
	LabelStateProof  Label = "state_proof"
	LabelDestination Label = "destination"
	LabelToken       Label = "token"
)

// Kind discriminates the witness union.
type Kind uint8

const (
	KindStateProof Kind = 1
	KindData       Kind = 2
)

// schema is the position → (label, kind) table shared by builder and circuit.
var schema = []struct {
	label Label
	kind  Kind
}{
	{LabelStateProof, KindStateProof},
	{LabelDestination, KindData},
	{LabelToken, KindData},
}

// Variant selects where the minted amount is read from. It fixes the bundle
// arity and is chosen per deployment.
type Variant int

const (
	// NativeBalance reads the holder account's native balance.
	NativeBalance Variant = iota + 1
	// StorageSlot reads the holder's entry of a token's balance mapping.
	StorageSlot
)

// Arity is the number of witnesses a bundle for v must contain.
func (v Variant) Arity() int {
	switch v {
	case NativeBalance:
		return 2
	case StorageSlot:
		return 3
	}
	return 0
}

func (v Variant) String() string {
	switch v {
	case NativeBalance:
		return "native"
	case StorageSlot:
		return "storage"
	}
	return fmt.Sprintf("variant(%d)", int(v))
}

// ParseVariant accepts "native" or "storage".
func ParseVariant(s string) (Variant, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "native", "native_balance":
		return NativeBalance, nil
	case "storage", "storage_slot":
		return StorageSlot, nil
	}
	return 0, errorsmod.Wrapf(errs.ErrConfiguration, "unknown circuit variant %q", s)
}

// StateProof is an inclusion proof bound to the root of a trusted block.
type StateProof struct {
	Domain  string
	Root    common.Hash
	Payload []byte
	Proof   []byte
}

// Witness is one labelled bundle entry: either a state proof or raw data.
type Witness struct {
	Label      Label
	StateProof *StateProof
	Data       []byte
}

func (w Witness) Kind() Kind {
	if w.StateProof != nil {
		return KindStateProof
	}
	return KindData
}

// NewStateProofWitness builds the position-0 witness.
func NewStateProofWitness(sp StateProof) Witness {
	return Witness{Label: LabelStateProof, StateProof: &sp}
}

// NewDestinationWitness builds the position-1 witness: the UTF-8 bytes of the
// destination chain address.
func NewDestinationWitness(addr string) Witness {
	return Witness{Label: LabelDestination, Data: []byte(addr)}
}

// NewTokenWitness builds the position-2 witness: the 20 raw address bytes.
func NewTokenWitness(addr common.Address) Witness {
	return Witness{Label: LabelToken, Data: addr.Bytes()}
}

// Bundle is the ordered witness sequence handed to the circuit.
type Bundle struct {
	Version   uint16
	Witnesses []Witness
}

type rlpEntry struct {
	Label   string
	Kind    uint8
	Domain  string
	Root    common.Hash
	Payload []byte
	Body    []byte
}

type rlpBundle struct {
	Version uint16
	Entries []rlpEntry
}

// Encode validates the bundle against the schema and returns its canonical
// RLP encoding.
func (b *Bundle) Encode() ([]byte, error) {
	if err := b.checkLabels(); err != nil {
		return nil, err
	}
	env := rlpBundle{Version: b.Version, Entries: make([]rlpEntry, len(b.Witnesses))}
	for i, w := range b.Witnesses {
		e := rlpEntry{Label: string(w.Label), Kind: uint8(w.Kind())}
		if sp := w.StateProof; sp != nil {
			e.Domain, e.Root, e.Payload, e.Body = sp.Domain, sp.Root, sp.Payload, sp.Proof
		} else {
			e.Body = w.Data
		}
		env.Entries[i] = e
	}
	return rlp.EncodeToBytes(&env)
}

// Decode parses an encoded bundle. It only checks the envelope; positions
// are checked by Check.
func Decode(data []byte) (*Bundle, error) {
	env, err := decodeEnvelope(data)
	if err != nil {
		return nil, err
	}
	return env.bundle()
}

// DecodeFor parses an encoded bundle for variant v. The witness count is
// enforced before any entry is interpreted.
func DecodeFor(data []byte, v Variant) (*Bundle, error) {
	env, err := decodeEnvelope(data)
	if err != nil {
		return nil, err
	}
	if want := v.Arity(); len(env.Entries) != want {
		return nil, errorsmod.Wrapf(errs.ErrWitnessArity, "got %d witnesses, %s variant expects %d", len(env.Entries), v, want)
	}
	b, err := env.bundle()
	if err != nil {
		return nil, err
	}
	return b, b.Check(v)
}

func decodeEnvelope(data []byte) (*rlpBundle, error) {
	if len(data) == 0 {
		return nil, errorsmod.Wrap(errs.ErrDecode, "empty witness bundle")
	}
	var env rlpBundle
	if err := rlp.DecodeBytes(data, &env); err != nil {
		return nil, errorsmod.Wrapf(errs.ErrDecode, "witness bundle: %v", err)
	}
	if env.Version != SchemaVersion {
		return nil, errorsmod.Wrapf(errs.ErrDecode, "witness schema version %d, want %d", env.Version, SchemaVersion)
	}
	return &env, nil
}

func (env *rlpBundle) bundle() (*Bundle, error) {
	b := &Bundle{Version: env.Version, Witnesses: make([]Witness, len(env.Entries))}
	for i, e := range env.Entries {
		w := Witness{Label: Label(e.Label)}
		switch Kind(e.Kind) {
		case KindStateProof:
			w.StateProof = &StateProof{Domain: e.Domain, Root: e.Root, Payload: e.Payload, Proof: e.Body}
		case KindData:
			w.Data = e.Body
		default:
			return nil, errorsmod.Wrapf(errs.ErrDecode, "witness %d: unknown kind %d", i, e.Kind)
		}
		b.Witnesses[i] = w
	}
	return b, nil
}

// Check enforces the arity of v first and the label and kind of every
// position second.
func (b *Bundle) Check(v Variant) error {
	if want := v.Arity(); len(b.Witnesses) != want {
		return errorsmod.Wrapf(errs.ErrWitnessArity, "got %d witnesses, %s variant expects %d", len(b.Witnesses), v, want)
	}
	return b.checkLabels()
}

func (b *Bundle) checkLabels() error {
	if b.Version != SchemaVersion {
		return errorsmod.Wrapf(errs.ErrDecode, "witness schema version %d, want %d", b.Version, SchemaVersion)
	}
	if len(b.Witnesses) > len(schema) {
		return errorsmod.Wrapf(errs.ErrWitnessArity, "got %d witnesses, schema has %d positions", len(b.Witnesses), len(schema))
	}
	for i, w := range b.Witnesses {
		want := schema[i]
		if w.Label != want.label || w.Kind() != want.kind {
			return errorsmod.Wrapf(errs.ErrDecode, "witness %d is %q (kind %d), want %q (kind %d)",
				i, w.Label, w.Kind(), want.label, want.kind)
		}
	}
	return nil
}

// StateProof returns position 0.
func (b *Bundle) StateProof() (*StateProof, error) {
	if len(b.Witnesses) < 1 || b.Witnesses[0].StateProof == nil {
		return nil, errorsmod.Wrap(errs.ErrDecode, "missing state proof witness")
	}
	sp := b.Witnesses[0].StateProof
	if len(sp.Proof) == 0 {
		return nil, errorsmod.Wrap(errs.ErrDecode, "empty state proof")
	}
	return sp, nil
}

// Destination returns position 1 as a string.
func (b *Bundle) Destination() (string, error) {
	if len(b.Witnesses) < 2 {
		return "", errorsmod.Wrap(errs.ErrDecode, "missing destination witness")
	}
	raw := b.Witnesses[1].Data
	if len(raw) == 0 || !utf8.Valid(raw) {
		return "", errorsmod.Wrapf(errs.ErrDecode, "destination %x is not a UTF-8 address", raw)
	}
	return string(raw), nil
}

// Token returns position 2, if present.
func (b *Bundle) Token() (common.Address, bool, error) {
	if len(b.Witnesses) < 3 {
		return common.Address{}, false, nil
	}
	raw := b.Witnesses[2].Data
	if len(raw) != common.AddressLength {
		return common.Address{}, false, errorsmod.Wrapf(errs.ErrDecode, "token witness is %d bytes", len(raw))
	}
	return common.BytesToAddress(raw), true, nil
}
