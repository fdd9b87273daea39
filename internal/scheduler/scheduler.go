package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"DynamicVault/internal/collector"
	"DynamicVault/internal/notifier"
	"DynamicVault/internal/vault"
)

// Sender delivers keeper reports.
type Sender interface {
	SendWithRetry(ctx context.Context, text string, maxRetries int) error
}

// Scheduler drives the guarded vault operations on cron schedules on behalf
// of the admin identity.
type Scheduler struct {
	Cron      *cron.Cron
	Collector *collector.Collector
	Vaults    *vault.Manager
	Notifier  Sender
	Admin     solana.PublicKey
	Ctx       context.Context
	Log       *zap.Logger

	AutoRebalance        bool
	RebalanceTokenAmount uint64
	Now                  func() int64

	mu          sync.Mutex
	lastPriceOp string // kind of the last price result, to avoid repeating alerts
}

// NewScheduler creates a new Scheduler for the vault owned by admin.
func NewScheduler(ctx context.Context, col *collector.Collector, vm *vault.Manager, n Sender, admin solana.PublicKey, log *zap.Logger) *Scheduler {
	return &Scheduler{
		Cron:      cron.New(cron.WithSeconds()),
		Collector: col,
		Vaults:    vm,
		Notifier:  n,
		Admin:     admin,
		Ctx:       ctx,
		Log:       log,
		Now:       func() int64 { return time.Now().Unix() },
	}
}

// RegisterAll registers the price and harvest tasks.
func (s *Scheduler) RegisterAll(priceCron, harvestCron string) error {
	if _, err := s.Cron.AddFunc(priceCron, s.priceTask); err != nil {
		return fmt.Errorf("register price task: %w", err)
	}
	if _, err := s.Cron.AddFunc(harvestCron, func() { s.harvestTask() }); err != nil {
		return fmt.Errorf("register harvest task: %w", err)
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.Cron.Start()
	s.Log.Info("scheduler started")
}

// Stop stops the cron scheduler and waits for running tasks.
func (s *Scheduler) Stop() {
	<-s.Cron.Stop().Done()
	s.Log.Info("scheduler stopped")
}

// RunPriceNow executes the price task immediately.
func (s *Scheduler) RunPriceNow() {
	s.priceTask()
}

func (s *Scheduler) priceTask() {
	sample, err := s.Collector.Collect()
	if err != nil {
		s.Log.Error("collect price", zap.Error(err))
		s.alertOnce("collect", err)
		return
	}

	now := s.Now()
	out, err := s.Vaults.RecordPrice(s.Ctx, s.Admin, s.Admin, sample.Price, now)
	if errors.Is(err, vault.ErrStalePrice) {
		err = s.reseed(sample.Price, now)
	}
	if err != nil {
		s.alertOnce("record_price", err)
		return
	}
	s.alertOnce("record_price", nil)

	if out.Staged {
		s.trySend(notifier.FormatCandidate(sample.Price, out.DriftPct, out.Candidate))
	}
	if !s.AutoRebalance {
		return
	}
	if v, ok := s.Vaults.Snapshot(s.Admin); ok && v.HasCandidate() {
		s.rebalanceTask(now)
	}
}

// reseed restarts the price bookkeeping after a feed gap. Drift across the
// gap is not evaluated, so no candidate is staged from it.
func (s *Scheduler) reseed(price float64, now int64) error {
	before, _ := s.Vaults.Snapshot(s.Admin)
	if _, err := s.Vaults.ReseedPrice(s.Ctx, s.Admin, s.Admin, price, now); err != nil {
		return err
	}
	gap := before.PriceAge(now)
	s.Log.Warn("price feed gap, reseeded", zap.Int64("gap_seconds", gap), zap.Float64("price", price))
	s.trySend(notifier.FormatReseed(price, gap))
	return nil
}

func (s *Scheduler) rebalanceTask(now int64) string {
	before, _ := s.Vaults.Snapshot(s.Admin)
	after, err := s.Vaults.Rebalance(s.Ctx, s.Admin, s.Admin, now, s.RebalanceTokenAmount)
	if err != nil {
		if errors.Is(err, vault.ErrRebalanceTooFrequent) {
			s.Log.Debug("rebalance deferred", zap.Error(err))
			return fmt.Sprintf("Rebalance deferred: %v", err)
		}
		msg := notifier.FormatRejection("rebalance", vault.Kind(err), err)
		s.trySend(msg)
		return msg
	}
	msg := notifier.FormatRebalance(before.CurrentBins, after.CurrentBins, s.RebalanceTokenAmount)
	s.trySend(msg)
	return msg
}

func (s *Scheduler) harvestTask() string {
	out, err := s.Vaults.HarvestFees(s.Ctx, s.Admin, s.Admin, s.Now())
	if err != nil {
		msg := notifier.FormatRejection("harvest", vault.Kind(err), err)
		s.trySend(msg)
		return msg
	}
	v, _ := s.Vaults.Snapshot(s.Admin)
	msg := notifier.FormatHarvest(out.Claimed, out.Total, v.MaxFeeAmount)
	s.trySend(msg)
	return msg
}

// HandleCommand processes a chat command and returns a reply.
func (s *Scheduler) HandleCommand(command string) string {
	switch command {
	case "/status":
		v, ok := s.Vaults.Snapshot(s.Admin)
		if !ok {
			return "Vault not initialized"
		}
		return notifier.FormatVaultStatus(&v, s.Now())
	case "/harvest":
		s.harvestTask()
		return ""
	case "/rebalance":
		if s.RebalanceTokenAmount == 0 {
			return "keeper.rebalance_token_amount is not configured"
		}
		s.rebalanceTask(s.Now())
		return ""
	default:
		return "Available commands:\n• /status\n• /harvest\n• /rebalance"
	}
}

// alertOnce notifies when the outcome kind of an operation changes, so a
// feed stuck in the same failure does not flood the chat.
func (s *Scheduler) alertOnce(op string, err error) {
	kind := vault.Kind(err)
	key := op + ":" + kind

	s.mu.Lock()
	changed := s.lastPriceOp != key
	s.lastPriceOp = key
	s.mu.Unlock()

	if err == nil || !changed {
		return
	}
	s.trySend(notifier.FormatRejection(op, kind, err))
}

func (s *Scheduler) trySend(text string) {
	if err := s.Notifier.SendWithRetry(s.Ctx, text, 3); err != nil {
		s.Log.Error("send notification", zap.Error(err))
	}
}
