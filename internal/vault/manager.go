package vault

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/bits"
	"sort"
	"sync"

	"github.com/gagliardetto/solana-go"
	"github.com/puzpuzpuz/xsync/v4"
	"go.uber.org/zap"

	"DynamicVault/internal/calculator"
	"DynamicVault/internal/metrics"
	"DynamicVault/internal/model"
	"DynamicVault/internal/recorder"
)

// Params is the admin-chosen configuration of a new vault.
type Params struct {
	FeeTokenAccount    solana.PublicKey
	RebalanceThreshold uint8
	MaxFeeAmount       uint64
	MinRebalanceDelay  int64
}

// Validate checks the configuration bounds.
func (p Params) Validate() error {
	if p.RebalanceThreshold < 1 || p.RebalanceThreshold > 100 {
		return fmt.Errorf("%w: got %d", ErrInvalidThreshold, p.RebalanceThreshold)
	}
	if p.MinRebalanceDelay <= 0 {
		return fmt.Errorf("%w: min_rebalance_delay must be positive, got %d", ErrInvalidParameter, p.MinRebalanceDelay)
	}
	return nil
}

// PriceOutcome describes what a recorded price sample did to the vault.
type PriceOutcome struct {
	DriftPct  float64
	Staged    bool
	Candidate model.Bins
	Seeded    bool
}

// HarvestOutcome describes a committed fee harvest.
type HarvestOutcome struct {
	Claimed uint64
	Total   uint64
}

type entry struct {
	mu      sync.Mutex
	vault   model.Vault
	removed bool
}

// Manager applies guarded operations to registered vaults.
// Operations on one vault are serialized by a per-vault lock; a rejected
// operation leaves the record exactly as it was.
type Manager struct {
	vaults   *xsync.Map[solana.PublicKey, *entry]
	pool     PoolAdapter
	store    Store
	recorder recorder.Recorder
	log      *zap.Logger

	// Settler is optional; withdrawals skip settlement when nil.
	Settler Settler
	Metrics *metrics.VaultMetrics
}

// NewManager creates a Manager. A nil store keeps vaults in memory only.
func NewManager(pool PoolAdapter, store Store, rec recorder.Recorder, log *zap.Logger) *Manager {
	if rec == nil {
		rec = recorder.NewNoopRecorder()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{
		vaults:   xsync.NewMap[solana.PublicKey, *entry](),
		pool:     pool,
		store:    store,
		recorder: rec,
		log:      log,
	}
}

// Restore loads every persisted vault into the registry.
func (m *Manager) Restore(ctx context.Context) (int, error) {
	if m.store == nil {
		return 0, nil
	}
	vaults, err := m.store.Load(ctx)
	if err != nil {
		return 0, fmt.Errorf("restore vaults: %w", err)
	}
	for _, v := range vaults {
		m.vaults.Store(v.Admin, &entry{vault: v})
	}
	m.log.Info("vaults restored", zap.Int("count", len(vaults)))
	return len(vaults), nil
}

// Snapshot returns a copy of the vault registered under key.
func (m *Manager) Snapshot(key solana.PublicKey) (model.Vault, bool) {
	e, ok := m.vaults.Load(key)
	if !ok {
		return model.Vault{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.removed {
		return model.Vault{}, false
	}
	return e.vault, true
}

// List returns copies of all registered vaults ordered by admin key.
func (m *Manager) List() []model.Vault {
	var out []model.Vault
	m.vaults.Range(func(key solana.PublicKey, _ *entry) bool {
		if v, ok := m.Snapshot(key); ok {
			out = append(out, v)
		}
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Admin.String() < out[j].Admin.String() })
	return out
}

// Initialize registers a new vault owned by admin.
func (m *Manager) Initialize(ctx context.Context, admin solana.PublicKey, p Params) (model.Vault, error) {
	const op = "initialize"
	if err := p.Validate(); err != nil {
		return model.Vault{}, m.reject(op, admin, err)
	}
	if admin.IsZero() {
		return model.Vault{}, m.reject(op, admin, fmt.Errorf("%w: admin key is empty", ErrInvalidParameter))
	}

	e := &entry{vault: model.Vault{
		Admin:              admin,
		Version:            model.LayoutVersion,
		FeeTokenAccount:    p.FeeTokenAccount,
		RebalanceThreshold: p.RebalanceThreshold,
		MaxFeeAmount:       p.MaxFeeAmount,
		MinRebalanceDelay:  p.MinRebalanceDelay,
	}}
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, loaded := m.vaults.LoadOrStore(admin, e); loaded {
		return model.Vault{}, m.reject(op, admin, ErrVaultExists)
	}
	if m.store != nil {
		if err := m.store.Save(ctx, e.vault); err != nil {
			e.removed = true
			m.vaults.Delete(admin)
			return model.Vault{}, m.reject(op, admin, fmt.Errorf("%w: %w", ErrPersist, err))
		}
	}

	m.Metrics.ObserveOperation(op, "ok")
	m.log.Info("vault initialized",
		zap.Stringer("vault", admin),
		zap.Uint8("threshold", p.RebalanceThreshold),
		zap.Uint64("max_fee_amount", p.MaxFeeAmount),
		zap.Int64("min_rebalance_delay", p.MinRebalanceDelay),
	)
	if err := m.recorder.RecordLifecycle(&recorder.LifecycleEvent{
		Vault:  admin.String(),
		Action: "INITIALIZE",
		Note:   fmt.Sprintf("threshold=%d max_fee=%d delay=%d", p.RebalanceThreshold, p.MaxFeeAmount, p.MinRebalanceDelay),
	}); err != nil {
		m.log.Error("record lifecycle", zap.Error(err))
	}
	return e.vault, nil
}

// Deposit adds amount of liquidity into bins and makes bins the active range.
func (m *Manager) Deposit(ctx context.Context, key, caller solana.PublicKey, amount uint64, bins model.Bins) (model.Vault, error) {
	v, err := m.apply(ctx, "deposit", key, caller, func(s *model.Vault) (bool, error) {
		if !bins.Ordered() {
			return false, fmt.Errorf("%w: deposit range %v", ErrInvalidBins, bins)
		}
		if err := m.pool.AddLiquidity(ctx, key, amount, bins); err != nil {
			return false, fmt.Errorf("%w: add liquidity: %w", ErrAdapter, err)
		}
		s.CurrentBins = bins
		return true, nil
	})
	if err != nil {
		return v, err
	}
	if err := m.recorder.RecordLiquidity(&recorder.LiquidityEvent{
		Vault: key.String(), Action: "DEPOSIT", Amount: amount, Bins: bins,
	}); err != nil {
		m.log.Error("record deposit", zap.Error(err))
	}
	return v, nil
}

// RecordPrice ingests a price sample. When the drift from the last sample
// exceeds the vault threshold a candidate range is staged for the next
// rebalance. The staleness guard applies to the previously recorded sample.
// A vault that has never recorded a sample accepts the first one as a seed.
// A candidate that is not a well-formed range is dropped and the previously
// staged one, if any, is kept.
func (m *Manager) RecordPrice(ctx context.Context, key, caller solana.PublicKey, price float64, now int64) (PriceOutcome, error) {
	var out PriceOutcome
	var dropped model.Bins
	_, err := m.apply(ctx, "record_price", key, caller, func(s *model.Vault) (bool, error) {
		if err := validPrice(price); err != nil {
			return false, err
		}
		if err := validTime(now); err != nil {
			return false, err
		}
		if s.PriceUpdateTime == 0 {
			out.Seeded = true
		} else {
			if now < s.PriceUpdateTime {
				return false, fmt.Errorf("%w: now=%d last=%d", ErrTimeRegression, now, s.PriceUpdateTime)
			}
			if age := s.PriceAge(now); age >= model.StalenessWindow {
				return false, fmt.Errorf("%w: last sample is %ds old", ErrStalePrice, age)
			}
			drift, err := calculator.DriftPercent(s.LastPrice, price)
			if err != nil {
				return false, fmt.Errorf("%w: %w", ErrInvalidPrice, err)
			}
			out.DriftPct = drift
			if drift > float64(s.RebalanceThreshold) {
				candidate := calculator.CandidateBins(s.LastPrice, price, s.RebalanceThreshold)
				if candidate.Valid() {
					out.Candidate = candidate
					out.Staged = true
					s.PendingRebalanceBins = candidate
				} else {
					dropped = candidate
				}
			}
		}
		s.LastPrice = price
		s.PriceUpdateTime = now
		return true, nil
	})
	if err != nil {
		return PriceOutcome{}, err
	}

	vaultID := key.String()
	m.Metrics.ObservePrice(vaultID, price, out.DriftPct)
	if dropped != model.NoBins {
		m.log.Warn("degenerate rebalance candidate dropped",
			zap.String("vault", vaultID),
			zap.Float64("price", price),
			zap.Float64("drift_pct", out.DriftPct),
			zap.Int32("lower", dropped.Lower()),
			zap.Int32("upper", dropped.Upper()),
		)
	}
	if out.Staged {
		m.Metrics.ObserveCandidate(vaultID)
		m.log.Info("rebalance candidate staged",
			zap.String("vault", vaultID),
			zap.Float64("price", price),
			zap.Float64("drift_pct", out.DriftPct),
			zap.Int32("lower", out.Candidate.Lower()),
			zap.Int32("upper", out.Candidate.Upper()),
		)
	}
	if err := m.recorder.RecordPrice(&recorder.PriceEvent{
		Vault: vaultID, Price: price, DriftPct: out.DriftPct, Staged: out.Staged,
		Candidate: out.Candidate, Seeded: out.Seeded, At: now,
	}); err != nil {
		m.log.Error("record price", zap.Error(err))
	}
	return out, nil
}

// ReseedPrice records a sample without the staleness guard. It is the admin's
// way back after the price bookkeeping went stale; it never stages bins.
func (m *Manager) ReseedPrice(ctx context.Context, key, caller solana.PublicKey, price float64, now int64) (model.Vault, error) {
	v, err := m.apply(ctx, "reseed_price", key, caller, func(s *model.Vault) (bool, error) {
		if err := validPrice(price); err != nil {
			return false, err
		}
		if err := validTime(now); err != nil {
			return false, err
		}
		if now < s.PriceUpdateTime {
			return false, fmt.Errorf("%w: now=%d last=%d", ErrTimeRegression, now, s.PriceUpdateTime)
		}
		s.LastPrice = price
		s.PriceUpdateTime = now
		return true, nil
	})
	if err != nil {
		return v, err
	}
	m.log.Warn("price feed reseeded", zap.Stringer("vault", key), zap.Float64("price", price))
	if err := m.recorder.RecordLifecycle(&recorder.LifecycleEvent{
		Vault: key.String(), Action: "RESEED", Note: fmt.Sprintf("price=%g at=%d", price, now),
	}); err != nil {
		m.log.Error("record lifecycle", zap.Error(err))
	}
	return v, nil
}

// Rebalance moves all liquidity from the active range into the staged
// candidate, depositing tokenAmount. Guards run in order: candidate present,
// candidate ordered, minimum delay elapsed, price fresh.
func (m *Manager) Rebalance(ctx context.Context, key, caller solana.PublicKey, now int64, tokenAmount uint64) (model.Vault, error) {
	var from, to model.Bins
	v, err := m.apply(ctx, "rebalance", key, caller, func(s *model.Vault) (bool, error) {
		to = s.PendingRebalanceBins
		if !to.IsSet() {
			return false, fmt.Errorf("%w: no candidate staged", ErrInvalidBins)
		}
		if !to.Ordered() {
			return false, fmt.Errorf("%w: candidate %v is inverted", ErrInvalidBins, to)
		}
		if elapsed := now - s.LastRebalanceTime; elapsed <= s.MinRebalanceDelay {
			return false, fmt.Errorf("%w: %ds since last rebalance, need more than %ds", ErrRebalanceTooFrequent, elapsed, s.MinRebalanceDelay)
		}
		if age := s.PriceAge(now); age >= model.StalenessWindow {
			return false, fmt.Errorf("%w: last sample is %ds old", ErrStalePrice, age)
		}

		from = s.CurrentBins
		if err := m.pool.RemoveLiquidity(ctx, key, from); err != nil {
			return false, fmt.Errorf("%w: remove liquidity: %w", ErrAdapter, err)
		}
		if err := m.pool.AddLiquidity(ctx, key, tokenAmount, to); err != nil {
			return false, fmt.Errorf("%w: add liquidity: %w", ErrAdapter, err)
		}

		s.CurrentBins = to
		s.PendingRebalanceBins = model.NoBins
		s.LastRebalanceTime = now
		return true, nil
	})
	if err != nil {
		return v, err
	}

	m.log.Info("vault rebalanced",
		zap.Stringer("vault", key),
		zap.Any("from", from),
		zap.Any("to", to),
		zap.Uint64("token_amount", tokenAmount),
	)
	if err := m.recorder.RecordRebalance(&recorder.RebalanceEvent{
		Vault: key.String(), From: from, To: to, TokenAmount: tokenAmount, At: now,
	}); err != nil {
		m.log.Error("record rebalance", zap.Error(err))
	}
	return v, nil
}

// HarvestFees claims accrued pool fees into the fee token account.
// The pending amount is checked against the overflow and cap guards before
// the claim. The claimed amount is checked again afterwards; a failure there
// leaves the record unchanged but cannot undo the transfer.
func (m *Manager) HarvestFees(ctx context.Context, key, caller solana.PublicKey, now int64) (HarvestOutcome, error) {
	var out HarvestOutcome
	_, err := m.apply(ctx, "harvest_fees", key, caller, func(s *model.Vault) (bool, error) {
		pending, err := m.pool.PendingFees(ctx, key)
		if err != nil {
			return false, fmt.Errorf("%w: pending fees: %w", ErrAdapter, err)
		}
		if _, err := addFees(s.TotalFeesEarned, pending, s.MaxFeeAmount); err != nil {
			return false, err
		}

		claimed, err := m.pool.HarvestFee(ctx, key, s.FeeTokenAccount)
		if err != nil {
			return false, fmt.Errorf("%w: harvest fee: %w", ErrAdapter, err)
		}
		total, err := addFees(s.TotalFeesEarned, claimed, s.MaxFeeAmount)
		if err != nil {
			return false, &failOpenError{action: "claimed", amount: claimed, err: err}
		}

		s.TotalFeesEarned = total
		s.LastFeeHarvestTime = now
		out = HarvestOutcome{Claimed: claimed, Total: total}
		return true, nil
	})
	if err != nil {
		return HarvestOutcome{}, err
	}

	m.Metrics.SetFeesEarned(key.String(), out.Total)
	m.log.Info("fees harvested",
		zap.Stringer("vault", key),
		zap.Uint64("claimed", out.Claimed),
		zap.Uint64("total", out.Total),
	)
	if err := m.recorder.RecordHarvest(&recorder.HarvestEvent{
		Vault: key.String(), Amount: out.Claimed, TotalAfter: out.Total, At: now,
	}); err != nil {
		m.log.Error("record harvest", zap.Error(err))
	}
	return out, nil
}

// Withdraw removes share percent of the position liquidity from the active
// range and hands it to the settler. Integer division drops the remainder.
// It returns the liquidity removed. A settlement failure comes after the
// removal and is reported as fail-open.
func (m *Manager) Withdraw(ctx context.Context, key, caller solana.PublicKey, share uint64) (uint64, error) {
	var removed uint64
	var bins model.Bins
	_, err := m.apply(ctx, "withdraw", key, caller, func(s *model.Vault) (bool, error) {
		if share < 1 || share > 100 {
			return false, fmt.Errorf("%w: got %d", ErrInvalidSharePercentage, share)
		}
		liquidity, err := m.pool.PositionLiquidity(ctx, key)
		if err != nil {
			return false, fmt.Errorf("%w: position liquidity: %w", ErrAdapter, err)
		}
		removed = calculator.ProportionalLiquidity(liquidity, share)
		bins = s.CurrentBins
		if err := m.pool.RemoveLiquidityAmount(ctx, key, removed, bins); err != nil {
			return false, fmt.Errorf("%w: remove liquidity: %w", ErrAdapter, err)
		}
		if m.Settler != nil {
			if err := m.Settler.Settle(ctx, key, caller, removed); err != nil {
				return false, &failOpenError{action: "removed", amount: removed, err: fmt.Errorf("%w: %w", ErrSettlement, err)}
			}
		}
		return false, nil
	})
	if err != nil {
		return 0, err
	}

	if err := m.recorder.RecordLiquidity(&recorder.LiquidityEvent{
		Vault: key.String(), Action: "WITHDRAW", Amount: removed, Share: share, Bins: bins,
	}); err != nil {
		m.log.Error("record withdrawal", zap.Error(err))
	}
	return removed, nil
}

// apply runs fn against a staged copy of the vault while holding its lock.
// The copy replaces the record only when fn succeeds and, if fn reports a
// change, the store accepted it.
func (m *Manager) apply(ctx context.Context, op string, key, caller solana.PublicKey, fn func(staged *model.Vault) (bool, error)) (model.Vault, error) {
	e, ok := m.vaults.Load(key)
	if !ok {
		return model.Vault{}, m.reject(op, key, fmt.Errorf("%w: %s", ErrVaultNotFound, key))
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.removed {
		return model.Vault{}, m.reject(op, key, fmt.Errorf("%w: %s", ErrVaultNotFound, key))
	}
	if caller != e.vault.Admin {
		return e.vault, m.reject(op, key, ErrUnauthorized)
	}

	staged := e.vault
	changed, err := fn(&staged)
	if err != nil {
		return e.vault, m.reject(op, key, err)
	}
	if changed && m.store != nil {
		if err := m.store.Save(ctx, staged); err != nil {
			return e.vault, m.reject(op, key, fmt.Errorf("%w: %w", ErrPersist, err))
		}
	}
	e.vault = staged
	m.Metrics.ObserveOperation(op, "ok")
	return staged, nil
}

func (m *Manager) reject(op string, key solana.PublicKey, err error) error {
	kind := Kind(err)
	var fe *failOpenError
	failOpen := errors.As(err, &fe)

	m.Metrics.ObserveOperation(op, kind)
	if failOpen {
		m.log.Error("pool moved funds but operation rejected",
			zap.String("op", op), zap.Stringer("vault", key),
			zap.String("action", fe.action), zap.Uint64("amount", fe.amount), zap.Error(err))
	} else {
		m.log.Warn("vault operation rejected",
			zap.String("op", op), zap.Stringer("vault", key), zap.String("kind", kind), zap.Error(err))
	}
	if rerr := m.recorder.RecordRejection(&recorder.RejectionEvent{
		Vault: key.String(), Op: op, Kind: kind, Detail: err.Error(), FailOpen: failOpen,
	}); rerr != nil {
		m.log.Error("record rejection", zap.Error(rerr))
	}
	return err
}

// failOpenError marks a rejection that came after the pool already moved
// funds. The record is left unchanged but the pool side cannot be undone.
type failOpenError struct {
	action string
	amount uint64
	err    error
}

func (e *failOpenError) Error() string {
	return fmt.Sprintf("%s %d before rejection: %v", e.action, e.amount, e.err)
}

func (e *failOpenError) Unwrap() error { return e.err }

func addFees(total, amount, limit uint64) (uint64, error) {
	sum, carry := bits.Add64(total, amount, 0)
	if carry != 0 {
		return 0, fmt.Errorf("%w: %d + %d", ErrFeeOverflow, total, amount)
	}
	if sum > limit {
		return 0, fmt.Errorf("%w: %d > %d", ErrMaxFeeExceeded, sum, limit)
	}
	return sum, nil
}

func validTime(now int64) error {
	if now <= 0 {
		return fmt.Errorf("%w: timestamp must be positive, got %d", ErrInvalidParameter, now)
	}
	return nil
}

func validPrice(price float64) error {
	if math.IsNaN(price) || math.IsInf(price, 0) || price <= 0 {
		return fmt.Errorf("%w: got %v", ErrInvalidPrice, price)
	}
	return nil
}
