// Package sponsor runs the co-signing pipeline: admit, decode, fund,
// validate, finalize against the node, sign, record.
package sponsor

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/blake2b"

	"github.com/drsui/gas-station/internal/app/domain/sponsorship"
	"github.com/drsui/gas-station/internal/app/domain/txn"
	"github.com/drsui/gas-station/internal/app/services/admission"
	"github.com/drsui/gas-station/internal/app/services/allowlist"
	"github.com/drsui/gas-station/internal/app/services/gas"
	"github.com/drsui/gas-station/internal/app/services/outcomes"
	"github.com/drsui/gas-station/internal/chain"
	"github.com/drsui/gas-station/pkg/logger"
)

// ErrRejectedByNode marks transactions the node's dry run refused. The
// transaction is well-formed but semantically invalid, so it is the
// caller's input that is at fault.
var ErrRejectedByNode = errors.New("transaction rejected by node")

// TxRunner is the slice of the chain client the pipeline needs beyond
// coin selection.
type TxRunner interface {
	DryRunTransaction(ctx context.Context, txBytesB64 string) (chain.DryRunResult, error)
}

// Service orchestrates one sponsorship attempt per request. No internal
// retries; a failed attempt rolls back its admission slot and reports.
type Service struct {
	ledger    *admission.Ledger
	validator *allowlist.Validator
	selector  *gas.Selector
	recorder  *outcomes.Recorder
	node      TxRunner
	signer    *Signer
	budget    uint64
	gasPrice  uint64
	log       *logger.Logger
}

// Config wires the pipeline's collaborators.
type Config struct {
	Ledger     *admission.Ledger
	Validator  *allowlist.Validator
	Selector   *gas.Selector
	Recorder   *outcomes.Recorder
	Node       TxRunner
	Signer     *Signer
	BudgetMist uint64
	GasPrice   uint64
	Logger     *logger.Logger
}

// NewService builds the orchestrator.
func NewService(cfg Config) *Service {
	log := cfg.Logger
	if log == nil {
		log = logger.NewDefault("sponsor")
	}
	price := cfg.GasPrice
	if price == 0 {
		price = 1000
	}
	return &Service{
		ledger:    cfg.Ledger,
		validator: cfg.Validator,
		selector:  cfg.Selector,
		recorder:  cfg.Recorder,
		node:      cfg.Node,
		signer:    cfg.Signer,
		budget:    cfg.BudgetMist,
		gasPrice:  price,
		log:       log,
	}
}

// Address returns the sponsor account address.
func (s *Service) Address() string { return s.signer.Address() }

// Sponsor runs the full pipeline for one request. The outcome record is
// appended before admission and patched exactly once, so even admission
// rejections leave an auditable failed entry.
func (s *Service) Sponsor(ctx context.Context, req sponsorship.Request, callerIP string) (*sponsorship.Receipt, error) {
	recordID := s.recorder.Append(req.SenderAddress, callerIP)

	reservation, err := s.ledger.Reserve(req.SenderAddress)
	if err != nil {
		s.recorder.Resolve(recordID, sponsorship.StatusFailed, "", 0, err.Error())
		return nil, err
	}

	receipt, digest, err := s.attempt(ctx, req)
	if err != nil {
		s.ledger.Rollback(req.SenderAddress, reservation)
		s.recorder.Resolve(recordID, sponsorship.StatusFailed, "", 0, err.Error())
		s.log.WithError(err).WithField("sender", req.SenderAddress).Warn("sponsorship failed")
		return nil, err
	}

	s.recorder.Resolve(recordID, sponsorship.StatusSuccess, digest, s.budget, "")
	s.log.WithField("sender", req.SenderAddress).WithField("digest", digest).Info("transaction sponsored")
	return receipt, nil
}

// attempt is the post-admission pipeline. Any error returned here has
// its admission slot rolled back by the caller.
func (s *Service) attempt(ctx context.Context, req sponsorship.Request) (*sponsorship.Receipt, string, error) {
	tx, err := txn.Decode(req.TransactionBytes)
	if err != nil {
		return nil, "", err
	}

	payment, err := s.selector.Select(ctx)
	if err != nil {
		return nil, "", err
	}

	tx.Sender = req.SenderAddress
	tx.Gas = txn.GasData{
		Owner:   s.signer.Address(),
		Payment: payment,
		Budget:  s.budget,
		Price:   s.gasPrice,
	}

	if err := s.validator.Validate(tx); err != nil {
		return nil, "", err
	}

	canonical, err := tx.Canonical()
	if err != nil {
		return nil, "", fmt.Errorf("finalizing transaction: %w", err)
	}
	txBytesB64 := base64.StdEncoding.EncodeToString(canonical)

	dry, err := s.node.DryRunTransaction(ctx, txBytesB64)
	if err != nil {
		return nil, "", fmt.Errorf("dry running transaction: %w", err)
	}
	if !dry.OK() {
		return nil, "", fmt.Errorf("%w: %s", ErrRejectedByNode, dry.Effects.Status.Error)
	}

	signature := s.signer.Sign(canonical)

	balance, err := s.selector.RemainingBalance(ctx)
	if err != nil {
		// The signature already exists; report it with a zero balance
		// rather than failing the whole attempt.
		s.log.WithError(err).Warn("sponsor balance unavailable")
		balance = 0
	}

	receipt := &sponsorship.Receipt{
		SignedBytes:             txBytesB64,
		SponsorSignature:        signature,
		SponsorAddress:          s.signer.Address(),
		SponsorRemainingBalance: balance,
	}
	return receipt, transactionDigest(canonical), nil
}

// transactionDigest derives the digest clients can look the transaction
// up by once submitted: blake2b-256 over the intent-prefixed bytes.
func transactionDigest(canonical []byte) string {
	msg := make([]byte, 0, len(transactionIntent)+len(canonical))
	msg = append(msg, transactionIntent...)
	msg = append(msg, canonical...)
	sum := blake2b.Sum256(msg)
	return base64.StdEncoding.EncodeToString(sum[:])
}
