// Package handlers manages the different versions of the node's RPC API.
package handlers

import (
	"net/http"

	"github.com/dimfeld/httptreemux/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/tidechain/tide/app/services/node/handlers/v1/public"
	"github.com/tidechain/tide/foundation/blockchain/protocol"
	"github.com/tidechain/tide/foundation/blockchain/state"
	"github.com/tidechain/tide/foundation/events"
	"github.com/tidechain/tide/foundation/web"
	"go.uber.org/zap"
)

// MuxConfig contains all the mandatory systems required by handlers.
type MuxConfig struct {
	Log  *zap.SugaredLogger
	Core *state.Core
	Host *protocol.Host
	Evts *events.Events
}

// PublicMux constructs a http.Handler with all application routes defined.
func PublicMux(cfg MuxConfig) http.Handler {
	mux := httptreemux.NewContextMux()

	hdl := public.Handlers{
		Log:  cfg.Log,
		Core: cfg.Core,
		Host: cfg.Host,
		WS:   websocket.Upgrader{},
		Evts: cfg.Evts,
	}

	handle := func(method string, path string, handler web.Handler) {
		h := func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			traceID := uuid.NewString()

			if err := handler(ctx, w, r); err != nil {
				cfg.Log.Errorw("request", "traceid", traceID, "method", method, "path", path, "ERROR", err)
				if err := respondError(ctx, w, err); err != nil {
					cfg.Log.Errorw("respond", "traceid", traceID, "ERROR", err)
				}
			}
		}
		mux.Handle(method, path, h)
	}

	handle(http.MethodGet, "/v1/genesis", hdl.Genesis)
	handle(http.MethodGet, "/v1/node/status", hdl.NodeStatus)
	handle(http.MethodGet, "/v1/node/peers", hdl.Peers)
	handle(http.MethodGet, "/v1/events", hdl.Events)
	handle(http.MethodPost, "/v1/tx/submit", hdl.SubmitTransaction)
	handle(http.MethodGet, "/v1/tx/pending", hdl.Mempool)
	handle(http.MethodGet, "/v1/tx/status/:hash", hdl.TransactionStatus)
	handle(http.MethodGet, "/v1/tx/:hash", hdl.Transaction)
	handle(http.MethodGet, "/v1/accounts/:address", hdl.Account)
	handle(http.MethodGet, "/v1/block/top", hdl.TopBlock)
	handle(http.MethodGet, "/v1/block/hash/:hash", hdl.BlockByHash)
	handle(http.MethodGet, "/v1/block/depth/:depth", hdl.BlockByDepth)

	return mux
}
