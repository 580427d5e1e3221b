package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ardanlabs/conf/v3"
	"github.com/tidechain/tide/app/services/node/handlers"
	"github.com/tidechain/tide/foundation/blockchain/database"
	"github.com/tidechain/tide/foundation/blockchain/network"
	"github.com/tidechain/tide/foundation/blockchain/protocol"
	"github.com/tidechain/tide/foundation/blockchain/state"
	"github.com/tidechain/tide/foundation/blockchain/storage"
	"github.com/tidechain/tide/foundation/blockchain/vm"
	"github.com/tidechain/tide/foundation/crypt"
	"github.com/tidechain/tide/foundation/events"
	"github.com/tidechain/tide/foundation/logger"
	"go.uber.org/zap"
)

// build is the git version of this program. It is set using build flags
// in the makefile.
var build = "develop"

func main() {
	log, err := logger.New("NODE")
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	defer logger.Sync(log)

	if err := run(log); err != nil {
		log.Errorw("startup", "ERROR", err)
		logger.Sync(log)
		os.Exit(1)
	}
}

func run(log *zap.SugaredLogger) error {

	// =========================================================================
	// Configuration

	cfg := struct {
		conf.Version
		Web struct {
			ReadTimeout     time.Duration `conf:"default:5s"`
			WriteTimeout    time.Duration `conf:"default:10s"`
			IdleTimeout     time.Duration `conf:"default:120s"`
			ShutdownTimeout time.Duration `conf:"default:20s"`
			PublicHost      string        `conf:"default:0.0.0.0:8080"`
		}
		Database struct {
			Path  string `conf:"default:zblock/database"`
			Clean bool   `conf:"default:false"`
		}
		Vault struct {
			PublicPath  string `conf:"default:zblock/keys/node.pub.pem"`
			PrivatePath string `conf:"default:zblock/keys/node.pem"`
		}
		P2P struct {
			Listen     string   `conf:"default:0.0.0.0:9080"`
			PublicPort uint16   `conf:"default:9080"`
			MaxPeers   int      `conf:"default:32"`
			KnownPeers []string
		}
	}{
		Version: conf.Version{
			Build: build,
			Desc:  "copyright information here",
		},
	}

	const prefix = "NODE"
	help, err := conf.Parse(prefix, &cfg)
	if err != nil {
		if errors.Is(err, conf.ErrHelpWanted) {
			fmt.Println(help)
			return nil
		}
		return fmt.Errorf("parsing config: %w", err)
	}

	// =========================================================================
	// App Starting

	log.Infow("starting service", "version", build)
	defer log.Infow("shutdown complete")

	out, err := conf.String(&cfg)
	if err != nil {
		return fmt.Errorf("generating config for output: %w", err)
	}
	log.Infow("startup", "config", out)

	// =========================================================================
	// Key Vault Support

	// The vault's public key identifies this node: its address receives
	// the emission for every block this node mines.
	vault, err := crypt.LoadKeyVault(cfg.Vault.PublicPath, cfg.Vault.PrivatePath)
	if err != nil {
		return fmt.Errorf("unable to load key vault: %w", err)
	}

	pubBytes, err := vault.PublicBytes()
	if err != nil {
		return err
	}
	nodeAddress := database.AddressFromPublicKey(pubBytes)
	log.Infow("startup", "status", "key vault loaded", "address", nodeAddress)

	// =========================================================================
	// Blockchain Support

	// The blockchain packages accept a function of this signature so the
	// application decides where their raw event strings go. They are
	// logged and mirrored to any connected websocket client.
	evts := events.New()
	defer evts.Shutdown()

	ev := func(v string, args ...any) {
		s := fmt.Sprintf(v, args...)
		log.Infow(s)
		evts.Send(s)
	}

	store, err := storage.New(storage.KVConfig{
		Path:  cfg.Database.Path,
		Clean: cfg.Database.Clean,
	}, ev)
	if err != nil {
		return fmt.Errorf("unable to open block store: %w", err)
	}
	defer store.Close()

	core, err := state.New(state.Config{
		NodeAddress: nodeAddress,
		Store:       store,
		Evaluator:   vm.Load(),
		EvHandler:   ev,
	})
	if err != nil {
		return fmt.Errorf("unable to start chain core: %w", err)
	}

	// =========================================================================
	// P2P Overlay Support

	listen, err := network.ParseEndpoint(cfg.P2P.Listen)
	if err != nil {
		return err
	}

	knownPeers := make([]network.Endpoint, 0, len(cfg.P2P.KnownPeers))
	for _, kp := range cfg.P2P.KnownPeers {
		ep, err := network.ParseEndpoint(kp)
		if err != nil {
			return err
		}
		knownPeers = append(knownPeers, ep)
	}

	host := protocol.NewHost(protocol.HostConfig{
		Core:       core,
		Listen:     listen,
		PublicPort: cfg.P2P.PublicPort,
		MaxPeers:   cfg.P2P.MaxPeers,
		KnownPeers: knownPeers,
		EvHandler:  ev,
	})

	if err := host.Run(); err != nil {
		return fmt.Errorf("unable to start overlay host: %w", err)
	}
	defer host.Shutdown()

	// =========================================================================
	// Start Public Service

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	mux := handlers.PublicMux(handlers.MuxConfig{
		Log:  log,
		Core: core,
		Host: host,
		Evts: evts,
	})

	public := http.Server{
		Addr:         cfg.Web.PublicHost,
		Handler:      mux,
		ReadTimeout:  cfg.Web.ReadTimeout,
		WriteTimeout: cfg.Web.WriteTimeout,
		IdleTimeout:  cfg.Web.IdleTimeout,
	}

	serverErrors := make(chan error, 1)
	go func() {
		log.Infow("startup", "status", "public api started", "host", public.Addr)
		serverErrors <- public.ListenAndServe()
	}()

	// =========================================================================
	// Shutdown

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)

	case sig := <-shutdown:
		log.Infow("shutdown", "status", "shutdown started", "signal", sig)
		defer log.Infow("shutdown", "status", "shutdown complete", "signal", sig)

		ctx, cancel := context.WithTimeout(context.Background(), cfg.Web.ShutdownTimeout)
		defer cancel()

		if err := public.Shutdown(ctx); err != nil {
			public.Close()
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
	}

	return nil
}
