// Command witnessnode runs the blockchain core as a standalone process:
// it bootstraps genesis or restores the chain tail, then waits until told
// to stop; it serves no ingest/witness traffic itself. Transport (P2P
// block/transaction propagation) and a web API are external-collaborator
// concerns this core does not implement (spec §1 non-goals); this binary
// is the startup/shutdown skeleton those collaborators would be wired
// into, in the teacher's own conf/zap lifecycle shape.
package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ardanlabs/conf/v3"
	"go.uber.org/zap"

	"github.com/coreledger/witnesschain/foundation/blockchain/block"
	"github.com/coreledger/witnesschain/foundation/blockchain/chain"
	"github.com/coreledger/witnesschain/foundation/blockchain/genesis"
	"github.com/coreledger/witnesschain/foundation/blockchain/persist"
	"github.com/coreledger/witnesschain/foundation/blockchain/wcrypto"
	"github.com/coreledger/witnesschain/foundation/logger"
)

// build is the git version of this program, set via build flags.
var build = "develop"

func main() {
	log, err := logger.New("WITNESSNODE")
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(log); err != nil {
		log.Errorw("startup", "ERROR", err)
		log.Sync()
		os.Exit(1)
	}
}

func run(log *zap.SugaredLogger) error {

	// =========================================================================
	// Configuration

	cfg := struct {
		conf.Version
		Genesis struct {
			Path   string `conf:"default:zblock/genesis.dat"`
			KeyDir string `conf:"default:zblock/keys/"`
		}
		Witness struct {
			Index   int  `conf:"default:-1"`
			Enabled bool `conf:"default:false"`
		}
		Chain struct {
			TrailingRounds uint64 `conf:"default:6"`
		}
	}{
		Version: conf.Version{
			Build: build,
			Desc:  "witness chain core node",
		},
	}

	const prefix = "WITNESSNODE"
	help, err := conf.Parse(prefix, &cfg)
	if err != nil {
		if errors.Is(err, conf.ErrHelpWanted) {
			fmt.Println(help)
			return nil
		}
		return fmt.Errorf("parsing config: %w", err)
	}

	log.Infow("starting service", "version", build)
	defer log.Infow("shutdown complete")

	out, err := conf.String(&cfg)
	if err != nil {
		return fmt.Errorf("generating config for output: %w", err)
	}
	log.Infow("startup", "config", out)

	// =========================================================================
	// Genesis / witness identity

	var witnessIdentity *chain.WitnessIdentity
	if cfg.Witness.Enabled {
		if cfg.Witness.Index < 0 {
			return fmt.Errorf("witness.enabled requires witness.index to be set")
		}

		priv, err := genesis.LoadPrivateKey(cfg.Genesis.KeyDir, cfg.Witness.Index)
		if err != nil {
			return fmt.Errorf("loading private key for witness %d: %w", cfg.Witness.Index, err)
		}
		witnessIdentity = &chain.WitnessIdentity{Index: uint8(cfg.Witness.Index), PrivateKey: priv}
		log.Infow("startup", "status", "witness identity loaded", "index", cfg.Witness.Index)
	}

	evts := func(v string, args ...any) {
		log.Infow(fmt.Sprintf(v, args...), "traceid", "00000000-0000-0000-0000-000000000000")
	}

	// =========================================================================
	// Blockchain core

	// DbConn, Commitments and PersistData are durable/checkpoint
	// collaborators this core only consumes through an interface (spec
	// §6); a real SQL engine and commitment-tree storage are external
	// concerns, so the in-memory reference implementations stand in here
	// until those are wired by a deployment.
	bc := chain.New(chain.Config{
		Arena:          block.NewArena(),
		DbConn:         persist.NewMemDbConn(),
		Commitments:    persist.NewMemCommitments(),
		TxCodec:        persist.SimpleTxCodec{},
		PersistData:    &persist.MemPersistData{},
		TrailingRounds: cfg.Chain.TrailingRounds,
		EvHandler:      evts,
		Witness:        witnessIdentity,
	})

	lastIndelibleLevel, hasChain, err := bc.State().DbConn().BlockchainSelectMax()
	if err != nil {
		return fmt.Errorf("probing durable chain state: %w", err)
	}

	if !hasChain {
		g, err := genesis.Load(cfg.Genesis.Path)
		if err != nil {
			return fmt.Errorf("loading genesis file %s: %w", cfg.Genesis.Path, err)
		}

		genesisBlk, err := bc.Bootstrap(g)
		if err != nil {
			return fmt.Errorf("bootstrapping genesis: %w", err)
		}
		log.Infow("startup", "status", "genesis bootstrapped", "oid", wcrypto.HexString(genesisBlk.Aux.Oid[:]))
	} else {
		if err := bc.Restore(lastIndelibleLevel); err != nil {
			return fmt.Errorf("restoring chain tail at level %d: %w", lastIndelibleLevel, err)
		}
		log.Infow("startup", "status", "chain tail restored", "level", lastIndelibleLevel)
	}

	// =========================================================================
	// Shutdown

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	sig := <-shutdown
	log.Infow("shutdown", "status", "shutdown started", "signal", sig)
	defer log.Infow("shutdown", "status", "shutdown complete", "signal", sig)

	if err := bc.State().PersistData().WaitForFullCheckpoint(); err != nil {
		return fmt.Errorf("waiting for final checkpoint: %w", err)
	}

	return nil
}
