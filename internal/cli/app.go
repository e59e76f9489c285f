package cli

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/spacewald/core/internal/config"
	"github.com/spacewald/core/internal/crdt"
	"github.com/spacewald/core/internal/hlc"
	"github.com/spacewald/core/internal/identity"
	"github.com/spacewald/core/internal/holdback"
	"github.com/spacewald/core/internal/membership"
	"github.com/spacewald/core/internal/mls"
	"github.com/spacewald/core/internal/opmodel"
	"github.com/spacewald/core/internal/pipeline"
	"github.com/spacewald/core/internal/ports"
	"github.com/spacewald/core/internal/storage"
)

// App bundles one node's identity and in-memory correctness engine,
// rebuilt from disk on every command invocation the way the teacher's
// CLI re-opened .mlsgit/ on every git filter call.
type App struct {
	Root     string
	Config   config.NodeConfig
	Identity identity.Keypair
	Log      *zap.Logger

	Store       *crdt.Store
	Membership  *membership.Index
	MLS         *mls.Engine
	Holdback    *holdback.Buffer
	Persistence *storage.FileSystemPersistence
	Blobs       *storage.FileSystemBlobStore
	Pipeline    *pipeline.Pipeline
	Clock       *hlc.Clock
}

func identityPath(root string) string { return filepath.Join(root, ".spacewald", "identity.pem") }
func configPath(root string) string   { return filepath.Join(root, ".spacewald", "config.toml") }
func dataDir(root string) string      { return filepath.Join(root, ".spacewald", "data") }
func secretsDir(root string) string   { return filepath.Join(root, ".spacewald", "mls-secrets") }

// bootstrap creates a fresh node directory at root: identity keypair and
// default config. It refuses to overwrite an existing node.
func bootstrap(root string, passphrase []byte) (identity.Keypair, error) {
	swDir := filepath.Join(root, ".spacewald")
	if _, err := os.Stat(swDir); err == nil {
		return identity.Keypair{}, fmt.Errorf("cli: %s already initialized", root)
	}
	if err := os.MkdirAll(swDir, 0o755); err != nil {
		return identity.Keypair{}, err
	}

	kp, err := identity.Generate()
	if err != nil {
		return identity.Keypair{}, err
	}
	pemStr, err := identity.PrivateKeyToPEM(kp.Private, passphrase)
	if err != nil {
		return identity.Keypair{}, err
	}
	if err := os.WriteFile(identityPath(root), []byte(pemStr), 0o600); err != nil {
		return identity.Keypair{}, err
	}
	if err := config.Save(configPath(root), config.Default()); err != nil {
		return identity.Keypair{}, err
	}
	return kp, nil
}

// loadApp opens an already-initialized node at root and replays every
// persisted group's ops and MLS state back into memory.
func loadApp(root string) (*App, error) {
	cfg, err := config.Load(configPath(root))
	if err != nil {
		return nil, fmt.Errorf("cli: load config (run 'spacewald init' first?): %w", err)
	}

	pemBytes, err := os.ReadFile(identityPath(root))
	if err != nil {
		return nil, fmt.Errorf("cli: load identity: %w", err)
	}
	priv, err := identity.LoadPrivateKey(string(pemBytes), nil)
	if err != nil {
		return nil, fmt.Errorf("cli: decrypt identity: %w", err)
	}
	kp := identity.Keypair{Private: priv, Public: priv.Public().(ed25519.PublicKey)}

	log, err := buildLogger(cfg.Logging)
	if err != nil {
		return nil, err
	}

	persistence, err := storage.NewFileSystemPersistence(dataDir(root))
	if err != nil {
		return nil, err
	}
	blobs, err := storage.NewFileSystemBlobStore(filepath.Join(root, ".spacewald", "blobs"))
	if err != nil {
		return nil, err
	}

	a := &App{
		Root:        root,
		Config:      cfg,
		Identity:    kp,
		Log:         log,
		Store:       crdt.NewStore(),
		Membership:  membership.New(),
		MLS:         mls.NewEngine(),
		Persistence: persistence,
		Blobs:       blobs,
		Clock:       hlc.New(func() uint64 { return uint64(time.Now().UnixMilli()) }),
	}
	a.Holdback = holdback.New(nil, nil)
	a.Pipeline = pipeline.New(a.Store, a.Membership, a.MLS, a.Holdback, a.Persistence, ports.Transport(nil), a.Log)

	if err := a.replay(); err != nil {
		return nil, err
	}
	return a, nil
}

func buildLogger(cfg config.LoggingSection) (*zap.Logger, error) {
	var zcfg zap.Config
	if cfg.Production {
		zcfg = zap.NewProductionConfig()
	} else {
		zcfg = zap.NewDevelopmentConfig()
	}
	if cfg.Encoding != "" {
		zcfg.Encoding = cfg.Encoding
	}
	level := zap.NewAtomicLevel()
	if err := level.UnmarshalText([]byte(cfg.Level)); err == nil {
		zcfg.Level = level
	}
	return zcfg.Build()
}

// replay rebuilds every group's CRDT/membership/MLS state from disk by
// re-running every persisted op back through the Acceptance Pipeline,
// and re-adopting every group's last MLS snapshot plus its local-only
// signing/init secrets.
func (a *App) replay() error {
	groups, err := a.Persistence.ListGroups()
	if err != nil {
		return fmt.Errorf("cli: list persisted groups: %w", err)
	}
	for _, group := range groups {
		if err := a.adoptMLSGroup(group); err != nil {
			a.Log.Warn("replay: no local MLS state for group", zap.String("group", group.String()), zap.Error(err))
		}
		ops, err := a.Persistence.LoadOps(context.Background(), group)
		if err != nil {
			return fmt.Errorf("cli: load ops for group %s: %w", group, err)
		}
		for _, op := range ops {
			a.Pipeline.Admit(context.Background(), op)
		}
	}
	return nil
}

// groupSecrets is the node-local (never persisted through the
// Persistence port, never transmitted) half of an MLS group's state:
// the signing key seed and X25519 init private key Group.FromBytes
// needs but Group.ToBytes deliberately omits.
type groupSecrets struct {
	SigPrivSeedHex string `json:"sig_priv_seed_hex"`
	InitPrivHex    string `json:"init_priv_hex"`
}

func (a *App) secretsPath(group opmodel.Hash32) string {
	return filepath.Join(secretsDir(a.Root), group.String()+".json")
}

func (a *App) saveGroupSecrets(group opmodel.Hash32, sigPrivSeed, initPriv []byte) error {
	if err := os.MkdirAll(secretsDir(a.Root), 0o700); err != nil {
		return err
	}
	s := groupSecrets{SigPrivSeedHex: hex.EncodeToString(sigPrivSeed), InitPrivHex: hex.EncodeToString(initPriv)}
	b, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return os.WriteFile(a.secretsPath(group), b, 0o600)
}

func (a *App) loadGroupSecrets(group opmodel.Hash32) (sigPriv ed25519.PrivateKey, initPriv []byte, err error) {
	data, err := os.ReadFile(a.secretsPath(group))
	if err != nil {
		return nil, nil, err
	}
	var s groupSecrets
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, nil, err
	}
	seed, err := hex.DecodeString(s.SigPrivSeedHex)
	if err != nil {
		return nil, nil, err
	}
	initPriv, err = hex.DecodeString(s.InitPrivHex)
	if err != nil {
		return nil, nil, err
	}
	return ed25519.NewKeyFromSeed(seed), initPriv, nil
}

// adoptMLSGroup loads group's last persisted MLS state and local secrets
// and registers it with the MLS engine under its ScopeKey.
func (a *App) adoptMLSGroup(group opmodel.Hash32) error {
	state, ok, err := a.Persistence.LoadMLSState(context.Background(), group)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	sigPriv, initPriv, err := a.loadGroupSecrets(group)
	if err != nil {
		return err
	}
	g, err := mls.FromBytes(state, sigPriv, initPriv)
	if err != nil {
		return err
	}
	a.MLS.AdoptGroup(mls.ScopeKey(group), g)
	return nil
}

// persistGroup durably records op (always under its space's GroupID,
// matching how Store.Space aggregates by space) plus the latest MLS
// snapshot for whichever scope(s) may have changed as a result of
// admitting it: the space's own group, and, when op carries a channel
// with its own MLS group, that channel's group too.
func (a *App) persistGroup(ctx context.Context, op opmodel.Op) error {
	batch := ports.Batch{Ops: []opmodel.Op{op}}
	if g, ok := a.mlsGroup(op.SpaceID); ok {
		state, err := g.ToBytes()
		if err != nil {
			return fmt.Errorf("cli: serialize space mls state: %w", err)
		}
		batch.MLSState = state
	}
	if err := a.Persistence.AtomicBatch(ctx, op.SpaceID, batch); err != nil {
		return err
	}

	if op.HasChannel() {
		if g, ok := a.mlsGroup(op.ChannelID); ok {
			state, err := g.ToBytes()
			if err != nil {
				return fmt.Errorf("cli: serialize channel mls state: %w", err)
			}
			if err := a.Persistence.AtomicBatch(ctx, op.ChannelID, ports.Batch{MLSState: state}); err != nil {
				return err
			}
		}
	}
	return nil
}

func (a *App) mlsGroup(group opmodel.Hash32) (*mls.Group, bool) {
	return a.MLS.Group(mls.ScopeKey(group))
}

// adoptOwnSecrets re-wraps group's in-memory MLS state (built by the
// pipeline from the public fields of a signed op, with no local secrets
// of its own) around this node's real signing and init private keys,
// then persists those secrets locally. Called once, right after this
// node originates the CreateSpace or own-MLS-group CreateChannel op
// that seeds a group it is the sole member of.
func (a *App) adoptOwnSecrets(group opmodel.Hash32, keys mls.MLSKeys) error {
	g, ok := a.mlsGroup(group)
	if !ok {
		return fmt.Errorf("cli: no local mls group for %s", group)
	}
	data, err := g.ToBytes()
	if err != nil {
		return fmt.Errorf("cli: serialize mls state: %w", err)
	}
	owned, err := mls.FromBytes(data, keys.SigPriv, keys.InitPriv)
	if err != nil {
		return fmt.Errorf("cli: re-adopt mls state: %w", err)
	}
	a.MLS.AdoptGroup(mls.ScopeKey(group), owned)
	return a.saveGroupSecrets(group, keys.SigPriv.Seed(), keys.InitPriv)
}
