// Package app wires the gas station's services together and manages
// their lifecycle.
package app

import (
	"context"
	"fmt"

	"github.com/drsui/gas-station/internal/app/services/admission"
	"github.com/drsui/gas-station/internal/app/services/allowlist"
	"github.com/drsui/gas-station/internal/app/services/gas"
	"github.com/drsui/gas-station/internal/app/services/outcomes"
	"github.com/drsui/gas-station/internal/app/services/sponsor"
	"github.com/drsui/gas-station/internal/app/system"
	"github.com/drsui/gas-station/internal/chain"
	"github.com/drsui/gas-station/internal/config"
	"github.com/drsui/gas-station/pkg/logger"
)

// Application ties the sponsorship services together and manages their
// lifecycle.
type Application struct {
	manager *system.Manager
	log     *logger.Logger

	Config   *config.Config
	Chain    *chain.Client
	Ledger   *admission.Ledger
	Recorder *outcomes.Recorder
	Selector *gas.Selector
	Sponsor  *sponsor.Service
}

// New builds a fully initialised application from configuration.
func New(cfg *config.Config, log *logger.Logger) (*Application, error) {
	if log == nil {
		log = logger.NewDefault("app")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	node, err := chain.NewClient(chain.Config{
		RPCURL:  cfg.Node.RPCURL,
		Timeout: cfg.Node.Timeout(),
	})
	if err != nil {
		return nil, fmt.Errorf("node client: %w", err)
	}

	signer, err := sponsor.NewSigner(cfg.Sponsor.KeyBase64)
	if err != nil {
		return nil, fmt.Errorf("sponsor key: %w", err)
	}

	ledger := admission.NewLedger(admission.Policy{
		Window:     cfg.RateLimit.Window(),
		Global:     cfg.RateLimit.Global,
		PerAccount: cfg.RateLimit.PerAccount,
		Disabled:   cfg.RateLimit.Disabled,
	})
	recorder := outcomes.NewRecorder(cfg.Records.Capacity)
	selector := gas.NewSelector(node, signer.Address(), cfg.Sponsor.CoinType, cfg.Sponsor.MinCoinBalanceMist)

	sponsorSvc := sponsor.NewService(sponsor.Config{
		Ledger:     ledger,
		Validator:  allowlist.New(cfg.Sponsor.AllowedPackage),
		Selector:   selector,
		Recorder:   recorder,
		Node:       node,
		Signer:     signer,
		BudgetMist: cfg.Sponsor.GasBudgetMist,
		Logger:     log.WithField("component", "sponsor"),
	})

	manager := system.NewManager()
	if err := manager.Register(admission.NewSweeper(ledger, 0, log.WithField("component", "admission-sweeper"))); err != nil {
		return nil, fmt.Errorf("register admission sweeper: %w", err)
	}
	if cfg.Records.PersistPath != "" {
		persister := outcomes.NewPersister(recorder, cfg.Records.PersistPath, cfg.Records.PersistInterval(), log.WithField("component", "outcome-persister"))
		if err := manager.Register(persister); err != nil {
			return nil, fmt.Errorf("register outcome persister: %w", err)
		}
	}

	log.WithField("sponsor_address", signer.Address()).
		WithField("allowed_package", cfg.Sponsor.AllowedPackage).
		Info("gas station initialised")

	return &Application{
		manager:  manager,
		log:      log,
		Config:   cfg,
		Chain:    node,
		Ledger:   ledger,
		Recorder: recorder,
		Selector: selector,
		Sponsor:  sponsorSvc,
	}, nil
}

// Attach registers an additional lifecycle-managed service. Call before Start.
func (a *Application) Attach(service system.Service) error {
	return a.manager.Register(service)
}

// Start begins all registered services.
func (a *Application) Start(ctx context.Context) error {
	return a.manager.Start(ctx)
}

// Stop stops all services.
func (a *Application) Stop(ctx context.Context) error {
	return a.manager.Stop(ctx)
}
