// Package public maintains the group of handlers for public access.
package public

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/tidechain/tide/business/web/errs"
	"github.com/tidechain/tide/foundation/blockchain/database"
	"github.com/tidechain/tide/foundation/blockchain/genesis"
	"github.com/tidechain/tide/foundation/blockchain/protocol"
	"github.com/tidechain/tide/foundation/blockchain/state"
	"github.com/tidechain/tide/foundation/crypt"
	"github.com/tidechain/tide/foundation/events"
	"github.com/tidechain/tide/foundation/web"
	"go.uber.org/zap"
)

// Handlers manages the set of public node endpoints.
type Handlers struct {
	Log  *zap.SugaredLogger
	Core *state.Core
	Host *protocol.Host
	WS   websocket.Upgrader
	Evts *events.Events
}

// Genesis returns the genesis block hash and constants.
func (h Handlers) Genesis(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	resp := struct {
		Hash      string `json:"hash"`
		Timestamp uint32 `json:"timestamp"`
		Recipient string `json:"recipient"`
	}{
		Hash:      genesis.Hash().String(),
		Timestamp: genesis.Timestamp,
		Recipient: genesis.Recipient,
	}
	return web.Respond(ctx, w, resp, http.StatusOK)
}

// NodeStatus returns the chain tip and this node's identity.
func (h Handlers) NodeStatus(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	top := h.Core.GetTopBlock()

	resp := struct {
		Address  string `json:"address"`
		TopHash  string `json:"top_hash"`
		TopDepth uint64 `json:"top_depth"`
		Pending  int    `json:"pending_transactions"`
	}{
		Address:  h.Core.NodeAddress().String(),
		TopHash:  h.Core.GetTopBlockHash().String(),
		TopDepth: top.Depth,
		Pending:  len(h.Core.PendingTransactions()),
	}
	return web.Respond(ctx, w, resp, http.StatusOK)
}

// Peers returns the identities of the connected peers.
func (h Handlers) Peers(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	type peerInfo struct {
		Endpoint string `json:"endpoint"`
		Address  string `json:"address"`
	}

	infos := h.Host.Pool().AllPeersInfo()
	resp := make([]peerInfo, len(infos))
	for i, info := range infos {
		resp[i] = peerInfo{
			Endpoint: info.Endpoint.String(),
			Address:  info.Address.String(),
		}
	}
	return web.Respond(ctx, w, resp, http.StatusOK)
}

// Events handles a web socket to provide events to a client.
func (h Handlers) Events(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	h.WS.CheckOrigin = func(r *http.Request) bool { return true }

	c, err := h.WS.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	defer c.Close()

	id := uuid.NewString()
	ch := h.Evts.Acquire(id)
	defer h.Evts.Release(id)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg, wd := <-ch:
			if !wd {
				return nil
			}
			if err := c.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
				return err
			}

		case <-ticker.C:
			if err := c.WriteMessage(websocket.PingMessage, []byte("ping")); err != nil {
				return nil
			}
		}
	}
}

// SubmitTransaction admits a new transaction into the pending pool.
func (h Handlers) SubmitTransaction(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	var app submitTx
	if err := web.Decode(r, &app); err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}
	if err := errs.Check(app); err != nil {
		return err
	}

	tx, err := app.toDatabaseTx()
	if err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	h.Log.Infow("submit tran", "tx", tx.String())
	status := h.Core.AddPendingTransaction(tx)

	resp := struct {
		Hash   string   `json:"hash"`
		Status txStatus `json:"status"`
	}{
		Hash:   tx.Hash().String(),
		Status: toAppStatus(status),
	}
	return web.Respond(ctx, w, resp, http.StatusOK)
}

// Mempool returns the set of uncommitted transactions.
func (h Handlers) Mempool(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	pending := h.Core.PendingTransactions()

	trans := make([]tx, len(pending))
	for i, dbTx := range pending {
		trans[i] = toAppTx(dbTx)
	}
	return web.Respond(ctx, w, trans, http.StatusOK)
}

// TransactionStatus returns the recorded verdict for a transaction.
func (h Handlers) TransactionStatus(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	hash, err := crypt.HashFromString(web.Param(r, "hash"))
	if err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	status, found := h.Core.TransactionOutput(hash)
	if !found {
		return errs.NewTrusted(errors.New("unknown transaction"), http.StatusNotFound)
	}
	return web.Respond(ctx, w, toAppStatus(status), http.StatusOK)
}

// Transaction returns a mined transaction and the block that holds it.
func (h Handlers) Transaction(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	hash, err := crypt.HashFromString(web.Param(r, "hash"))
	if err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	dbTx, dbBlock, found := h.Core.FindTransaction(hash)
	if !found {
		return errs.NewTrusted(errors.New("transaction not found"), http.StatusNotFound)
	}

	resp := struct {
		Tx        tx     `json:"transaction"`
		BlockHash string `json:"block_hash"`
		Depth     uint64 `json:"depth"`
	}{
		Tx:        toAppTx(dbTx),
		BlockHash: dbBlock.Hash().String(),
		Depth:     dbBlock.Depth,
	}
	return web.Respond(ctx, w, resp, http.StatusOK)
}

// Account returns the current state of one account.
func (h Handlers) Account(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	addr, err := database.ToAddress(web.Param(r, "address"))
	if err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	return web.Respond(ctx, w, toAppAccount(h.Core.GetAccountInfo(addr)), http.StatusOK)
}

// TopBlock returns the current chain tip.
func (h Handlers) TopBlock(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	return web.Respond(ctx, w, toAppBlock(h.Core.GetTopBlock()), http.StatusOK)
}

// BlockByHash returns the block stored under the specified hash.
func (h Handlers) BlockByHash(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	hash, err := crypt.HashFromString(web.Param(r, "hash"))
	if err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	b, found := h.Core.FindBlock(hash)
	if !found {
		return errs.NewTrusted(errors.New("block not found"), http.StatusNotFound)
	}
	return web.Respond(ctx, w, toAppBlock(b), http.StatusOK)
}

// BlockByDepth returns the canonical block at the specified depth.
func (h Handlers) BlockByDepth(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	depth, err := strconv.ParseUint(web.Param(r, "depth"), 10, 64)
	if err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	hash, found := h.Core.FindBlockHash(depth)
	if !found {
		return errs.NewTrusted(errors.New("no block at that depth"), http.StatusNotFound)
	}

	b, found := h.Core.FindBlock(hash)
	if !found {
		return errs.NewTrusted(errors.New("block not found"), http.StatusNotFound)
	}
	return web.Respond(ctx, w, toAppBlock(b), http.StatusOK)
}
