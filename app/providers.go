package app

import (
	"net/http"

	"github.com/fiffu/verimail/config"
	"github.com/fiffu/verimail/lib"
	"github.com/fiffu/verimail/lib/accounts"
	"github.com/fiffu/verimail/lib/clock"
	"github.com/fiffu/verimail/lib/escalation"
	"github.com/fiffu/verimail/lib/policy"
	"github.com/fiffu/verimail/lib/processors"
	"github.com/fiffu/verimail/lib/store"
	"github.com/fiffu/verimail/lib/token"
	"github.com/fiffu/verimail/lib/verification"
	"github.com/fiffu/verimail/queue"
	"github.com/fiffu/verimail/senders"
	"github.com/nats-io/nats.go"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Module wires everything except the entry points (HTTP server, workers,
// scheduler) so that the CLI commands can pick what they run.
var Module = fx.Options(
	fx.Provide(config.NewConfig),
	fx.Provide(NewDatabase),
	fx.Provide(NewTransport),
	fx.Provide(senders.NewSenderRegistry),
	fx.Provide(senders.NewMailer),
	fx.Provide(clock.New),
	fx.Provide(NewPolicy),
	fx.Provide(NewCodec),
	fx.Provide(NewAccounts),
	fx.Provide(NewStore),
	fx.Provide(NewEngine),
	fx.Provide(NewBroker),
	fx.Provide(NewScheduler),
	fx.Provide(NewProcessors),
	fx.Provide(NewService),
)

func NewPolicy(cfg *config.Config) *policy.Policy {
	return cfg.Policy()
}

func NewCodec(cfg *config.Config) *token.Codec {
	return token.NewCodec(cfg.Salt())
}

// NewAccounts reads accounts from the shared database, or from the host
// application's API when ACCOUNTS_SOURCE=remote.
func NewAccounts(cfg *config.Config, db *gorm.DB, transport http.RoundTripper, log *zap.Logger) accounts.Accounts {
	if cfg.Accounts.Source == "remote" {
		log.Sugar().Infow("Using remote accounts", "url", cfg.Accounts.APIURL)
		return accounts.NewRemote(cfg.Accounts.APIURL, cfg.Accounts.APIToken, transport, log)
	}
	return accounts.NewLocal(db, log)
}

// NewStore filters skip roles in SQL when the role table is local, and through
// the accounts API otherwise.
func NewStore(cfg *config.Config, db *gorm.DB, clk clock.Clock, accts accounts.Accounts) *store.Store {
	if cfg.Accounts.Source == "remote" {
		return store.New(db, clk, store.WithRoleLookup(accts.RolesOf))
	}
	return store.New(db, clk)
}

func NewEngine(st *store.Store, accts accounts.Accounts, codec *token.Codec, pol *policy.Policy, clk clock.Clock, log *zap.Logger) *verification.Engine {
	return verification.NewEngine(st, accts, codec, pol, clk, log)
}

// NewBroker connects to NATS JetStream when NATS_URL is set. Without it the
// queues live in memory and the scheduler and workers must share a process.
func NewBroker(cfg *config.Config, log *zap.Logger) (queue.Broker, error) {
	if cfg.Queue.NATSURL == "" {
		log.Sugar().Info("NATS_URL is not set, using in-memory queues")
		return queue.NewMemory(log), nil
	}
	return queue.NewNATS(cfg.Queue.NATSURL, cfg.Queue.Stream, log, nats.Name("verimail"))
}

func NewScheduler(cfg *config.Config, st *store.Store, broker queue.Broker, pol *policy.Policy, clk clock.Clock, log *zap.Logger) *escalation.Scheduler {
	return escalation.NewScheduler(st, broker, pol, clk, log, escalation.SettingsFrom(cfg))
}

func NewProcessors(
	cfg *config.Config,
	accts accounts.Accounts,
	st *store.Store,
	engine *verification.Engine,
	mailer *senders.Mailer,
	pol *policy.Policy,
	clk clock.Clock,
	log *zap.Logger,
) (*processors.Processors, error) {
	method, err := accounts.ParseCancelMethod(cfg.Accounts.CancelMethod)
	if err != nil {
		return nil, err
	}
	return processors.New(accts, st, engine, mailer, pol, clk, log, processors.Settings{
		BaseURL:      cfg.ServerDNS,
		CancelMethod: method,
		Concurrency:  cfg.Queue.Concurrency,
	}), nil
}

func NewService(
	cfg *config.Config,
	log *zap.Logger,
	engine *verification.Engine,
	st *store.Store,
	accts accounts.Accounts,
	mailer *senders.Mailer,
	scheduler *escalation.Scheduler,
) *lib.Service {
	return lib.NewService(cfg, log, engine, st, accts, mailer, scheduler)
}

// RunWorkers consumes every queue with the processors.
func RunWorkers(lc fx.Lifecycle, broker queue.Broker, procs *processors.Processors, log *zap.Logger) {
	queue.RunWorkers(lc, broker, procs.Handlers(), log)
}
