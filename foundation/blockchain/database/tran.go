package database

import (
	"errors"
	"fmt"

	"github.com/tidechain/tide/foundation/codec"
	"github.com/tidechain/tide/foundation/crypt"
)

// Sign carries the compressed secp256k1 public key of the sender and a
// 65 byte recoverable signature over the transaction header hash. The
// zero value means unsigned.
type Sign struct {
	PublicKey []byte
	Signature []byte
}

// IsNull reports whether the transaction has not been signed.
func (s Sign) IsNull() bool {
	return len(s.PublicKey) == 0 && len(s.Signature) == 0
}

// Encode writes the signature as an Option: absence tag or presence tag
// followed by the two byte sequences.
func (s Sign) Encode(w *codec.Writer) {
	if s.IsNull() {
		w.WriteBool(false)
		return
	}
	w.WriteBool(true)
	w.WriteBytes(s.PublicKey)
	w.WriteBytes(s.Signature)
}

// DecodeSign reads an Option-encoded signature.
func DecodeSign(r *codec.Reader) (Sign, error) {
	present, err := r.ReadBool()
	if err != nil {
		return Sign{}, err
	}
	if !present {
		return Sign{}, nil
	}

	pub, err := r.ReadBytes()
	if err != nil {
		return Sign{}, err
	}
	sig, err := r.ReadBytes()
	if err != nil {
		return Sign{}, err
	}
	return Sign{PublicKey: pub, Signature: sig}, nil
}

// =============================================================================

// Tx is the transactional information between two parties. A transaction
// with the null address as recipient deploys the contract code carried in
// Data; a zero amount is only permitted when Data is non-empty.
type Tx struct {
	From      Address
	To        Address
	Amount    Balance
	Fee       uint64
	Timestamp uint32
	Data      []byte
	Sign      Sign
}

// encodeHeader writes the signed portion of the transaction: everything
// except the signature itself.
func (tx Tx) encodeHeader(w *codec.Writer) {
	tx.From.Encode(w)
	tx.To.Encode(w)
	EncodeBalance(w, tx.Amount)
	w.WriteUint64(tx.Fee)
	w.WriteUint32(tx.Timestamp)
	w.WriteBytes(tx.Data)
}

// Encode writes the full transaction.
func (tx Tx) Encode(w *codec.Writer) {
	tx.encodeHeader(w)
	tx.Sign.Encode(w)
}

// DecodeTx reads a full transaction.
func DecodeTx(r *codec.Reader) (Tx, error) {
	var tx Tx
	var err error

	if tx.From, err = DecodeAddress(r); err != nil {
		return Tx{}, err
	}
	if tx.To, err = DecodeAddress(r); err != nil {
		return Tx{}, err
	}
	if tx.Amount, err = DecodeBalance(r); err != nil {
		return Tx{}, err
	}
	if tx.Fee, err = r.ReadUint64(); err != nil {
		return Tx{}, err
	}
	if tx.Timestamp, err = r.ReadUint32(); err != nil {
		return Tx{}, err
	}
	if tx.Data, err = r.ReadBytes(); err != nil {
		return Tx{}, err
	}
	if tx.Sign, err = DecodeSign(r); err != nil {
		return Tx{}, err
	}

	return tx, nil
}

// HeaderHash is the digest that gets signed.
func (tx Tx) HeaderHash() crypt.Hash {
	var w codec.Writer
	tx.encodeHeader(&w)
	return crypt.Sha256(w.Bytes())
}

// Hash is the identity of the transaction, over the full encoding
// including the signature.
func (tx Tx) Hash() crypt.Hash {
	var w codec.Writer
	tx.Encode(&w)
	return crypt.Sha256(w.Bytes())
}

// SignTx signs the transaction with the specified private key and embeds
// the compressed public key so any node can check the sender.
func (tx *Tx) SignTx(key crypt.PrivateKey) error {
	derived := AddressFromPublicKey(key.PublicKey())
	if tx.From != derived {
		return fmt.Errorf("from address %s is not owned by the signing key (%s)", tx.From, derived)
	}

	sig, err := key.Sign(tx.HeaderHash())
	if err != nil {
		return err
	}

	tx.Sign = Sign{
		PublicKey: key.CompressedPublicKey(),
		Signature: sig,
	}
	return nil
}

// CheckSign verifies the signature and that the from address is derived
// from the embedded public key.
func (tx Tx) CheckSign() bool {
	if tx.Sign.IsNull() {
		return false
	}

	pub, err := crypt.DecompressPublicKey(tx.Sign.PublicKey)
	if err != nil {
		return false
	}
	if AddressFromPublicKey(pub) != tx.From {
		return false
	}

	return crypt.VerifySignature(tx.Sign.PublicKey, tx.HeaderHash(), tx.Sign.Signature)
}

// Validate applies the structural invariants that hold for every
// transaction regardless of chain state.
func (tx Tx) Validate() error {
	if tx.Amount.IsZero() && len(tx.Data) == 0 {
		return errors.New("zero amount is only permitted for contract calls")
	}
	return nil
}

// Cost returns amount + fee. The error reports 256 bit overflow.
func (tx Tx) Cost() (Balance, error) {
	cost, overflow := costOf(tx.Amount, tx.Fee)
	if overflow {
		return Balance{}, errors.New("transaction cost overflows")
	}
	return cost, nil
}

// Equal reports whether two transactions are the same transaction.
func (tx Tx) Equal(other Tx) bool {
	return tx.Hash() == other.Hash()
}

// String implements the fmt.Stringer interface for logging.
func (tx Tx) String() string {
	return fmt.Sprintf("%s->%s amount[%s] fee[%d]", tx.From, tx.To, tx.Amount.Dec(), tx.Fee)
}

// =============================================================================

// TxBuilder accumulates the fields of a transaction before signing.
// Build fails if a required field was never set.
type TxBuilder struct {
	from      *Address
	to        *Address
	amount    *Balance
	fee       *uint64
	timestamp *uint32
	data      []byte
}

// SetFrom sets the sender.
func (b *TxBuilder) SetFrom(from Address) *TxBuilder {
	b.from = &from
	return b
}

// SetTo sets the recipient.
func (b *TxBuilder) SetTo(to Address) *TxBuilder {
	b.to = &to
	return b
}

// SetAmount sets the amount transferred.
func (b *TxBuilder) SetAmount(amount Balance) *TxBuilder {
	b.amount = &amount
	return b
}

// SetFee sets the fee offered to the coinbase.
func (b *TxBuilder) SetFee(fee uint64) *TxBuilder {
	b.fee = &fee
	return b
}

// SetTimestamp sets the creation time in seconds since epoch.
func (b *TxBuilder) SetTimestamp(ts uint32) *TxBuilder {
	b.timestamp = &ts
	return b
}

// SetData sets the opaque payload.
func (b *TxBuilder) SetData(data []byte) *TxBuilder {
	b.data = data
	return b
}

// Build assembles the unsigned transaction.
func (b *TxBuilder) Build() (Tx, error) {
	if b.from == nil || b.to == nil || b.amount == nil || b.fee == nil || b.timestamp == nil {
		return Tx{}, errors.New("transaction builder is missing required fields")
	}

	tx := Tx{
		From:      *b.from,
		To:        *b.to,
		Amount:    *b.amount,
		Fee:       *b.fee,
		Timestamp: *b.timestamp,
		Data:      b.data,
	}

	if err := tx.Validate(); err != nil {
		return Tx{}, err
	}
	return tx, nil
}
