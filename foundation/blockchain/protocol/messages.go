// Package protocol implements the gossip protocol spoken between
// peers: the message taxonomy, the handshake, and the sync state
// machine that converges two chains.
package protocol

import (
	"github.com/tidechain/tide/foundation/blockchain/database"
	"github.com/tidechain/tide/foundation/blockchain/network"
	"github.com/tidechain/tide/foundation/blockchain/peer"
	"github.com/tidechain/tide/foundation/codec"
	"github.com/tidechain/tide/foundation/crypt"
)

// MessageType is the tag byte leading every payload.
type MessageType uint8

// The message taxonomy. NotAvailable is the "no constraint" sentinel
// for the per-peer waiting-for gate, never sent on the wire.
const (
	NotAvailable MessageType = iota
	Accepted
	AcceptedResponse
	CannotAccept
	Ping
	Pong
	Transaction
	GetBlock
	BlockMsg
	BlockNotFound
	GetInfo
	Info
	NewNode
	Close
	Lookup
	LookupResponse
)

// String implements the fmt.Stringer interface for logging.
func (t MessageType) String() string {
	switch t {
	case NotAvailable:
		return "NOT_AVAILABLE"
	case Accepted:
		return "ACCEPTED"
	case AcceptedResponse:
		return "ACCEPTED_RESPONSE"
	case CannotAccept:
		return "CANNOT_ACCEPT"
	case Ping:
		return "PING"
	case Pong:
		return "PONG"
	case Transaction:
		return "TRANSACTION"
	case GetBlock:
		return "GET_BLOCK"
	case BlockMsg:
		return "BLOCK"
	case BlockNotFound:
		return "BLOCK_NOT_FOUND"
	case GetInfo:
		return "GET_INFO"
	case Info:
		return "INFO"
	case NewNode:
		return "NEW_NODE"
	case Close:
		return "CLOSE"
	case Lookup:
		return "LOOKUP"
	case LookupResponse:
		return "LOOKUP_RESPONSE"
	}
	return "UNKNOWN"
}

// RefusalReason explains a CANNOT_ACCEPT.
type RefusalReason uint8

// The refusal reasons.
const (
	RefusalPoolFull RefusalReason = iota
)

// =============================================================================
// Message preparation. Every payload starts with its tag byte.

func prepare(t MessageType, body func(w *codec.Writer)) []byte {
	var w codec.Writer
	w.WriteUint8(uint8(t))
	if body != nil {
		body(&w)
	}
	return w.Bytes()
}

// prepareGreeting serializes ACCEPTED and ACCEPTED_RESPONSE, which share
// a shape: top block, own address, listening port, peer sample.
func prepareGreeting(t MessageType, top database.Block, addr database.Address, publicPort uint16, known []peer.Info) []byte {
	return prepare(t, func(w *codec.Writer) {
		top.Encode(w)
		addr.Encode(w)
		w.WriteUint16(publicPort)
		peer.EncodeInfoList(w, known)
	})
}

func prepareCannotAccept(reason RefusalReason, known []peer.Info) []byte {
	return prepare(CannotAccept, func(w *codec.Writer) {
		w.WriteUint8(uint8(reason))
		peer.EncodeInfoList(w, known)
	})
}

func preparePing() []byte {
	return prepare(Ping, nil)
}

func preparePong() []byte {
	return prepare(Pong, nil)
}

func prepareTransaction(tx database.Tx) []byte {
	return prepare(Transaction, tx.Encode)
}

func prepareGetBlock(hash crypt.Hash) []byte {
	return prepare(GetBlock, hash.Encode)
}

func prepareBlock(b database.Block) []byte {
	return prepare(BlockMsg, b.Encode)
}

func prepareBlockNotFound(hash crypt.Hash) []byte {
	return prepare(BlockNotFound, hash.Encode)
}

func prepareGetInfo() []byte {
	return prepare(GetInfo, nil)
}

func prepareInfo(topHash crypt.Hash, known []peer.Info) []byte {
	return prepare(Info, func(w *codec.Writer) {
		topHash.Encode(w)
		peer.EncodeInfoList(w, known)
	})
}

func prepareNewNode(ep network.Endpoint, addr database.Address) []byte {
	return prepare(NewNode, func(w *codec.Writer) {
		ep.Encode(w)
		addr.Encode(w)
	})
}

func prepareClose() []byte {
	return prepare(Close, nil)
}

func prepareLookup(target database.Address, k uint8) []byte {
	return prepare(Lookup, func(w *codec.Writer) {
		target.Encode(w)
		w.WriteUint8(k)
	})
}

func prepareLookupResponse(infos []peer.Info) []byte {
	return prepare(LookupResponse, func(w *codec.Writer) {
		peer.EncodeInfoList(w, infos)
	})
}

// =============================================================================
// Payload decoding.

// greeting is the decoded shape of ACCEPTED and ACCEPTED_RESPONSE.
type greeting struct {
	topBlock   database.Block
	address    database.Address
	publicPort uint16
	knownPeers []peer.Info
}

func decodeGreeting(r *codec.Reader) (greeting, error) {
	var g greeting
	var err error

	if g.topBlock, err = database.DecodeBlock(r); err != nil {
		return greeting{}, err
	}
	if g.address, err = database.DecodeAddress(r); err != nil {
		return greeting{}, err
	}
	if g.publicPort, err = r.ReadUint16(); err != nil {
		return greeting{}, err
	}
	if g.knownPeers, err = peer.DecodeInfoList(r); err != nil {
		return greeting{}, err
	}
	return g, nil
}
