package database

import (
	"fmt"

	"github.com/tidechain/tide/foundation/codec"
	"github.com/tidechain/tide/foundation/crypt"
)

// MaxTxPerBlock bounds the transaction count of a valid block.
const MaxTxPerBlock = 128

// Complexity is the opaque monotone scalar handed to miners. Chain
// selection itself is depth based.
type Complexity uint64

// Block is a group of transactions appended to the chain as one unit.
type Block struct {
	Depth     uint64
	PrevHash  crypt.Hash
	Timestamp uint32
	Coinbase  Address
	Nonce     uint64
	Trans     []Tx
}

// Encode writes the full block.
func (b Block) Encode(w *codec.Writer) {
	w.WriteUint64(b.Depth)
	b.PrevHash.Encode(w)
	w.WriteUint32(b.Timestamp)
	b.Coinbase.Encode(w)
	w.WriteUint64(b.Nonce)
	w.WriteCount(len(b.Trans))
	for _, tx := range b.Trans {
		tx.Encode(w)
	}
}

// DecodeBlock reads a full block.
func DecodeBlock(r *codec.Reader) (Block, error) {
	var b Block
	var err error

	if b.Depth, err = r.ReadUint64(); err != nil {
		return Block{}, err
	}
	if b.PrevHash, err = crypt.DecodeHash(r); err != nil {
		return Block{}, err
	}
	if b.Timestamp, err = r.ReadUint32(); err != nil {
		return Block{}, err
	}
	if b.Coinbase, err = DecodeAddress(r); err != nil {
		return Block{}, err
	}
	if b.Nonce, err = r.ReadUint64(); err != nil {
		return Block{}, err
	}

	count, err := r.ReadCount()
	if err != nil {
		return Block{}, err
	}
	for i := 0; i < count; i++ {
		tx, err := DecodeTx(r)
		if err != nil {
			return Block{}, err
		}
		b.Trans = append(b.Trans, tx)
	}

	return b, nil
}

// Hash is the identity of the block: SHA256 over the full encoding.
func (b Block) Hash() crypt.Hash {
	var w codec.Writer
	b.Encode(&w)
	return crypt.Sha256(w.Bytes())
}

// Bytes returns the encoded block.
func (b Block) Bytes() []byte {
	var w codec.Writer
	b.Encode(&w)
	return w.Bytes()
}

// Equal reports whether two blocks are the same block.
func (b Block) Equal(other Block) bool {
	return b.Hash() == other.Hash()
}

// String implements the fmt.Stringer interface for logging.
func (b Block) String() string {
	return fmt.Sprintf("blk[%d] hash[%s] txs[%d]", b.Depth, b.Hash(), len(b.Trans))
}
