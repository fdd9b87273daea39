package vault

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"DynamicVault/internal/model"
	"DynamicVault/internal/pool"
	"DynamicVault/internal/recorder"
)

type rejectionLog struct {
	*recorder.NoopRecorder
	mu         sync.Mutex
	rejections []recorder.RejectionEvent
}

func (r *rejectionLog) RecordRejection(evt *recorder.RejectionEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rejections = append(r.rejections, *evt)
	return nil
}

func (r *rejectionLog) last(t *testing.T) recorder.RejectionEvent {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	require.NotEmpty(t, r.rejections)
	return r.rejections[len(r.rejections)-1]
}

func withRejectionLog(m *Manager) *rejectionLog {
	rl := &rejectionLog{NoopRecorder: recorder.NewNoopRecorder()}
	m.recorder = rl
	return rl
}

type memStore struct {
	mu    sync.Mutex
	saved map[solana.PublicKey]model.Vault
	fail  error
	saves int
}

func newMemStore() *memStore {
	return &memStore{saved: make(map[solana.PublicKey]model.Vault)}
}

func (s *memStore) Load(_ context.Context) ([]model.Vault, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Vault
	for _, v := range s.saved {
		out = append(out, v)
	}
	return out, nil
}

func (s *memStore) Save(_ context.Context, v model.Vault) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	s.saves++
	s.saved[v.Admin] = v
	return nil
}

type settlerFunc func(ctx context.Context, vault, recipient solana.PublicKey, liquidity uint64) error

func (f settlerFunc) Settle(ctx context.Context, vault, recipient solana.PublicKey, liquidity uint64) error {
	return f(ctx, vault, recipient, liquidity)
}

var defaultParams = Params{
	RebalanceThreshold: 5,
	MaxFeeAmount:       10000,
	MinRebalanceDelay:  3600,
}

func newTestManager(t *testing.T) (*Manager, *pool.MockPool, *memStore, solana.PublicKey) {
	t.Helper()
	p := pool.NewMockPool()
	st := newMemStore()
	m := NewManager(p, st, nil, zaptest.NewLogger(t))
	admin := solana.NewWallet().PublicKey()
	params := defaultParams
	params.FeeTokenAccount = solana.NewWallet().PublicKey()
	_, err := m.Initialize(context.Background(), admin, params)
	require.NoError(t, err)
	return m, p, st, admin
}

// put installs a vault record directly, bypassing the guarded operations.
func put(m *Manager, v model.Vault) {
	m.vaults.Store(v.Admin, &entry{vault: v})
}

func snapshot(t *testing.T, m *Manager, key solana.PublicKey) model.Vault {
	t.Helper()
	v, ok := m.Snapshot(key)
	require.True(t, ok)
	return v
}

func TestInitialize(t *testing.T) {
	ctx := context.Background()
	m := NewManager(pool.NewMockPool(), nil, nil, zaptest.NewLogger(t))
	admin := solana.NewWallet().PublicKey()

	for _, thr := range []uint8{0, 101, 255} {
		p := defaultParams
		p.RebalanceThreshold = thr
		_, err := m.Initialize(ctx, admin, p)
		require.ErrorIs(t, err, ErrInvalidThreshold, "threshold %d", thr)
	}

	p := defaultParams
	p.MinRebalanceDelay = 0
	_, err := m.Initialize(ctx, admin, p)
	require.ErrorIs(t, err, ErrInvalidParameter)

	_, err = m.Initialize(ctx, solana.PublicKey{}, defaultParams)
	require.ErrorIs(t, err, ErrInvalidParameter)

	_, ok := m.Snapshot(admin)
	require.False(t, ok)

	for _, thr := range []uint8{1, 100} {
		key := solana.NewWallet().PublicKey()
		p := defaultParams
		p.RebalanceThreshold = thr
		v, err := m.Initialize(ctx, key, p)
		require.NoError(t, err)
		require.Equal(t, key, v.Admin)
		require.Equal(t, model.NoBins, v.CurrentBins)
		require.Equal(t, model.NoBins, v.PendingRebalanceBins)
		require.Zero(t, v.TotalFeesEarned)
		require.Zero(t, v.LastRebalanceTime)
		require.Equal(t, model.LayoutVersion, v.Version)
	}

	v, err := m.Initialize(ctx, admin, defaultParams)
	require.NoError(t, err)
	_, err = m.Initialize(ctx, admin, defaultParams)
	require.ErrorIs(t, err, ErrVaultExists)
	require.Equal(t, v, snapshot(t, m, admin))
	require.Len(t, m.List(), 3)
}

func TestInitialize_PersistFailureLeavesNoVault(t *testing.T) {
	st := newMemStore()
	st.fail = errors.New("disk full")
	m := NewManager(pool.NewMockPool(), st, nil, zaptest.NewLogger(t))
	admin := solana.NewWallet().PublicKey()

	_, err := m.Initialize(context.Background(), admin, defaultParams)
	require.ErrorIs(t, err, ErrPersist)
	_, ok := m.Snapshot(admin)
	require.False(t, ok)

	st.fail = nil
	_, err = m.Initialize(context.Background(), admin, defaultParams)
	require.NoError(t, err)
}

func TestUnauthorizedCallerIsRejectedFirst(t *testing.T) {
	ctx := context.Background()
	m, p, _, admin := newTestManager(t)
	before := snapshot(t, m, admin)
	stranger := solana.NewWallet().PublicKey()

	_, err := m.Deposit(ctx, admin, stranger, 100, model.Bins{10, 20})
	require.ErrorIs(t, err, ErrUnauthorized)
	// invalid arguments still fail on authorization
	_, err = m.RecordPrice(ctx, admin, stranger, math.NaN(), 1)
	require.ErrorIs(t, err, ErrUnauthorized)
	_, err = m.Rebalance(ctx, admin, stranger, 10000, 1)
	require.ErrorIs(t, err, ErrUnauthorized)
	_, err = m.HarvestFees(ctx, admin, stranger, 1)
	require.ErrorIs(t, err, ErrUnauthorized)
	_, err = m.Withdraw(ctx, admin, stranger, 0)
	require.ErrorIs(t, err, ErrUnauthorized)
	_, err = m.ReseedPrice(ctx, admin, stranger, 1, 1)
	require.ErrorIs(t, err, ErrUnauthorized)

	require.Equal(t, before, snapshot(t, m, admin))
	require.Empty(t, p.Calls)
}

func TestUnknownVault(t *testing.T) {
	m, _, _, _ := newTestManager(t)
	key := solana.NewWallet().PublicKey()
	_, err := m.RecordPrice(context.Background(), key, key, 100, 1)
	require.ErrorIs(t, err, ErrVaultNotFound)
}

func TestDeposit(t *testing.T) {
	ctx := context.Background()
	m, p, st, admin := newTestManager(t)

	_, err := m.Deposit(ctx, admin, admin, 500, model.Bins{20, 10})
	require.ErrorIs(t, err, ErrInvalidBins)
	_, err = m.Deposit(ctx, admin, admin, 500, model.Bins{10, 10})
	require.ErrorIs(t, err, ErrInvalidBins)

	p.Fail["add"] = errors.New("rpc down")
	_, err = m.Deposit(ctx, admin, admin, 500, model.Bins{10, 20})
	require.ErrorIs(t, err, ErrAdapter)
	require.Equal(t, model.NoBins, snapshot(t, m, admin).CurrentBins)
	delete(p.Fail, "add")

	v, err := m.Deposit(ctx, admin, admin, 500, model.Bins{10, 20})
	require.NoError(t, err)
	require.Equal(t, model.Bins{10, 20}, v.CurrentBins)
	require.Equal(t, model.Bins{10, 20}, st.saved[admin].CurrentBins)

	pos, ok := p.Position(admin)
	require.True(t, ok)
	require.Equal(t, uint64(500), pos.Liquidity)
}

func TestRecordPrice_StagesCandidate(t *testing.T) {
	ctx := context.Background()
	m, _, _, admin := newTestManager(t)

	out, err := m.RecordPrice(ctx, admin, admin, 100, 1000)
	require.NoError(t, err)
	require.True(t, out.Seeded)
	require.False(t, out.Staged)

	v := snapshot(t, m, admin)
	require.Equal(t, 100.0, v.LastPrice)
	require.Equal(t, int64(1000), v.PriceUpdateTime)
	require.False(t, v.HasCandidate())

	out, err = m.RecordPrice(ctx, admin, admin, 110, 1010)
	require.NoError(t, err)
	require.True(t, out.Staged)
	require.InDelta(t, 10.0, out.DriftPct, 1e-9)
	require.Equal(t, model.Bins{100, 110}, out.Candidate)

	v = snapshot(t, m, admin)
	require.Equal(t, model.Bins{100, 110}, v.PendingRebalanceBins)
	require.Equal(t, 110.0, v.LastPrice)
	require.Equal(t, int64(1010), v.PriceUpdateTime)
}

func TestRecordPrice_BelowThresholdKeepsCandidate(t *testing.T) {
	ctx := context.Background()
	m, _, _, admin := newTestManager(t)

	_, err := m.RecordPrice(ctx, admin, admin, 100, 1000)
	require.NoError(t, err)
	_, err = m.RecordPrice(ctx, admin, admin, 110, 1005)
	require.NoError(t, err)

	// small moves update the sample but do not restage
	out, err := m.RecordPrice(ctx, admin, admin, 111.1, 1010)
	require.NoError(t, err)
	require.False(t, out.Staged)
	require.Equal(t, model.Bins{100, 110}, snapshot(t, m, admin).PendingRebalanceBins)

	out, err = m.RecordPrice(ctx, admin, admin, 113, 1015)
	require.NoError(t, err)
	require.False(t, out.Staged)
	require.Equal(t, 113.0, snapshot(t, m, admin).LastPrice)
}

func TestRecordPrice_StaleSampleRejected(t *testing.T) {
	ctx := context.Background()
	m, _, st, admin := newTestManager(t)

	_, err := m.RecordPrice(ctx, admin, admin, 100, 1000)
	require.NoError(t, err)
	before := snapshot(t, m, admin)
	saves := st.saves

	_, err = m.RecordPrice(ctx, admin, admin, 150, 1000+model.StalenessWindow)
	require.ErrorIs(t, err, ErrStalePrice)
	require.Equal(t, before, snapshot(t, m, admin))
	require.Equal(t, saves, st.saves)

	// one second inside the window still records
	_, err = m.RecordPrice(ctx, admin, admin, 100, 1000+model.StalenessWindow-1)
	require.NoError(t, err)
}

func TestRecordPrice_InvalidInput(t *testing.T) {
	ctx := context.Background()
	m, _, _, admin := newTestManager(t)

	for _, price := range []float64{0, -1, math.NaN(), math.Inf(1)} {
		_, err := m.RecordPrice(ctx, admin, admin, price, 1000)
		require.ErrorIs(t, err, ErrInvalidPrice, "price %v", price)
	}
	require.Zero(t, snapshot(t, m, admin).PriceUpdateTime)

	_, err := m.RecordPrice(ctx, admin, admin, 100, 1000)
	require.NoError(t, err)
	_, err = m.RecordPrice(ctx, admin, admin, 100, 999)
	require.ErrorIs(t, err, ErrTimeRegression)
}

func TestRecordPrice_NonPositiveTimestamp(t *testing.T) {
	ctx := context.Background()
	m, _, _, admin := newTestManager(t)

	for _, now := range []int64{0, -5} {
		_, err := m.RecordPrice(ctx, admin, admin, 100, now)
		require.ErrorIs(t, err, ErrInvalidParameter, "now %d", now)
		_, err = m.ReseedPrice(ctx, admin, admin, 100, now)
		require.ErrorIs(t, err, ErrInvalidParameter, "now %d", now)
	}
	v := snapshot(t, m, admin)
	require.Zero(t, v.PriceUpdateTime)
	require.Zero(t, v.LastPrice)

	out, err := m.RecordPrice(ctx, admin, admin, 100, 1)
	require.NoError(t, err)
	require.True(t, out.Seeded)
}

func TestRecordPrice_DegenerateCandidateKeepsStaged(t *testing.T) {
	ctx := context.Background()
	m, _, _, admin := newTestManager(t)

	_, err := m.RecordPrice(ctx, admin, admin, 100, 1000)
	require.NoError(t, err)
	_, err = m.RecordPrice(ctx, admin, admin, 110, 1001)
	require.NoError(t, err)
	require.Equal(t, model.Bins{100, 110}, snapshot(t, m, admin).PendingRebalanceBins)

	// the price collapses; ranges around 1.1 and 0.5 round to [1 1] and [0 1]
	_, err = m.ReseedPrice(ctx, admin, admin, 1.0, 1002)
	require.NoError(t, err)
	out, err := m.RecordPrice(ctx, admin, admin, 1.2, 1003)
	require.NoError(t, err)
	require.False(t, out.Staged)
	require.Greater(t, out.DriftPct, 5.0)

	_, err = m.ReseedPrice(ctx, admin, admin, 0.4, 1004)
	require.NoError(t, err)
	out, err = m.RecordPrice(ctx, admin, admin, 0.6, 1005)
	require.NoError(t, err)
	require.False(t, out.Staged)

	v := snapshot(t, m, admin)
	require.Equal(t, model.Bins{100, 110}, v.PendingRebalanceBins)
	require.Equal(t, 0.6, v.LastPrice)
	require.True(t, v.HasCandidate())
}

func TestHasCandidateMatchesRebalanceGuard(t *testing.T) {
	ctx := context.Background()
	admin := solana.NewWallet().PublicKey()
	m := NewManager(pool.NewMockPool(), nil, nil, zaptest.NewLogger(t))
	v := model.Vault{
		Admin:                admin,
		PendingRebalanceBins: model.Bins{0, 1},
		RebalanceThreshold:   5,
		MinRebalanceDelay:    1,
		PriceUpdateTime:      1000,
	}
	put(m, v)
	require.False(t, v.HasCandidate())

	_, err := m.Rebalance(ctx, admin, admin, 1001, 1)
	require.ErrorIs(t, err, ErrInvalidBins)
}

func TestReseedPrice(t *testing.T) {
	ctx := context.Background()
	m, _, _, admin := newTestManager(t)

	_, err := m.RecordPrice(ctx, admin, admin, 100, 1000)
	require.NoError(t, err)
	_, err = m.RecordPrice(ctx, admin, admin, 200, 5000)
	require.ErrorIs(t, err, ErrStalePrice)

	v, err := m.ReseedPrice(ctx, admin, admin, 200, 5000)
	require.NoError(t, err)
	require.Equal(t, 200.0, v.LastPrice)
	require.False(t, v.HasCandidate())

	out, err := m.RecordPrice(ctx, admin, admin, 201, 5010)
	require.NoError(t, err)
	require.False(t, out.Staged)

	_, err = m.ReseedPrice(ctx, admin, admin, 200, 4000)
	require.ErrorIs(t, err, ErrTimeRegression)
}

func TestRebalance_Commits(t *testing.T) {
	ctx := context.Background()
	m, p, st, admin := newTestManager(t)

	_, err := m.Deposit(ctx, admin, admin, 1000, model.Bins{90, 100})
	require.NoError(t, err)
	_, err = m.RecordPrice(ctx, admin, admin, 100, 9990)
	require.NoError(t, err)
	_, err = m.RecordPrice(ctx, admin, admin, 110, 10000)
	require.NoError(t, err)

	v, err := m.Rebalance(ctx, admin, admin, 10005, 800)
	require.NoError(t, err)
	require.Equal(t, model.Bins{100, 110}, v.CurrentBins)
	require.Equal(t, model.NoBins, v.PendingRebalanceBins)
	require.Equal(t, int64(10005), v.LastRebalanceTime)
	require.Equal(t, v, st.saved[admin])

	pos, _ := p.Position(admin)
	require.Equal(t, model.Bins{100, 110}, pos.Bins)
	require.Equal(t, uint64(800), pos.Liquidity)

	// candidate was consumed
	_, err = m.Rebalance(ctx, admin, admin, 20000, 800)
	require.ErrorIs(t, err, ErrInvalidBins)
}

func TestRebalance_TooFrequent(t *testing.T) {
	ctx := context.Background()
	m, _, _, admin := newTestManager(t)

	_, err := m.Deposit(ctx, admin, admin, 1000, model.Bins{90, 100})
	require.NoError(t, err)
	_, err = m.RecordPrice(ctx, admin, admin, 100, 10000)
	require.NoError(t, err)
	_, err = m.RecordPrice(ctx, admin, admin, 110, 10001)
	require.NoError(t, err)
	_, err = m.Rebalance(ctx, admin, admin, 10002, 1000)
	require.NoError(t, err)

	_, err = m.RecordPrice(ctx, admin, admin, 125, 10003)
	require.NoError(t, err)
	before := snapshot(t, m, admin)
	require.True(t, before.HasCandidate())

	_, err = m.Rebalance(ctx, admin, admin, 10004, 1000)
	require.ErrorIs(t, err, ErrRebalanceTooFrequent)
	require.Equal(t, before, snapshot(t, m, admin))

	// exactly the delay is still too soon
	_, err = m.Rebalance(ctx, admin, admin, 10002+3600, 1000)
	require.ErrorIs(t, err, ErrRebalanceTooFrequent)
}

func TestRebalance_GuardOrder(t *testing.T) {
	ctx := context.Background()
	admin := solana.NewWallet().PublicKey()
	base := model.Vault{
		Admin:                admin,
		CurrentBins:          model.Bins{90, 100},
		PendingRebalanceBins: model.Bins{100, 110},
		LastRebalanceTime:    1000,
		RebalanceThreshold:   5,
		MinRebalanceDelay:    3600,
		MaxFeeAmount:         10000,
		LastPrice:            110,
		PriceUpdateTime:      100,
	}
	m := NewManager(pool.NewMockPool(), nil, nil, zaptest.NewLogger(t))
	put(m, base)

	_, err := m.Rebalance(ctx, admin, admin, 2000, 1)
	require.ErrorIs(t, err, ErrRebalanceTooFrequent)

	// delay satisfied, price sample is 4900s old
	_, err = m.Rebalance(ctx, admin, admin, 5000, 1)
	require.ErrorIs(t, err, ErrStalePrice)

	inverted := base
	inverted.PendingRebalanceBins = model.Bins{110, 100}
	put(m, inverted)
	_, err = m.Rebalance(ctx, admin, admin, 2000, 1)
	require.ErrorIs(t, err, ErrInvalidBins)

	half := base
	half.PendingRebalanceBins = model.Bins{0, 100}
	put(m, half)
	_, err = m.Rebalance(ctx, admin, admin, 2000, 1)
	require.ErrorIs(t, err, ErrInvalidBins)
	require.Equal(t, half, snapshot(t, m, admin))
}

func TestRebalance_AdapterFailureLeavesVault(t *testing.T) {
	ctx := context.Background()
	m, p, _, admin := newTestManager(t)

	_, err := m.Deposit(ctx, admin, admin, 1000, model.Bins{90, 100})
	require.NoError(t, err)
	_, err = m.RecordPrice(ctx, admin, admin, 100, 10000)
	require.NoError(t, err)
	_, err = m.RecordPrice(ctx, admin, admin, 110, 10001)
	require.NoError(t, err)
	before := snapshot(t, m, admin)

	p.Fail["add"] = errors.New("slippage")
	_, err = m.Rebalance(ctx, admin, admin, 10002, 1000)
	require.ErrorIs(t, err, ErrAdapter)
	require.Equal(t, before, snapshot(t, m, admin))
}

func TestRebalance_PersistFailureLeavesVault(t *testing.T) {
	ctx := context.Background()
	m, _, st, admin := newTestManager(t)

	_, err := m.Deposit(ctx, admin, admin, 1000, model.Bins{90, 100})
	require.NoError(t, err)
	_, err = m.RecordPrice(ctx, admin, admin, 100, 10000)
	require.NoError(t, err)
	_, err = m.RecordPrice(ctx, admin, admin, 110, 10001)
	require.NoError(t, err)
	before := snapshot(t, m, admin)

	st.fail = errors.New("locked")
	_, err = m.Rebalance(ctx, admin, admin, 10002, 1000)
	require.ErrorIs(t, err, ErrPersist)
	require.Equal(t, before, snapshot(t, m, admin))
}

func TestHarvestFees(t *testing.T) {
	ctx := context.Background()
	m, p, _, admin := newTestManager(t)

	out, err := m.HarvestFees(ctx, admin, admin, 500)
	require.NoError(t, err)
	require.Equal(t, pool.DefaultFeeRate, out.Claimed)
	require.Equal(t, pool.DefaultFeeRate, out.Total)

	v := snapshot(t, m, admin)
	require.Equal(t, pool.DefaultFeeRate, v.TotalFeesEarned)
	require.Equal(t, int64(500), v.LastFeeHarvestTime)

	pos, _ := p.Position(admin)
	require.Equal(t, pool.DefaultFeeRate, pos.Fees)
}

func TestHarvestFees_MaxFeeExceeded(t *testing.T) {
	ctx := context.Background()
	m, p, _, admin := newTestManager(t)

	p.FeeRate = 9950
	_, err := m.HarvestFees(ctx, admin, admin, 1)
	require.NoError(t, err)

	p.FeeRate = 100
	_, err = m.HarvestFees(ctx, admin, admin, 2)
	require.ErrorIs(t, err, ErrMaxFeeExceeded)

	v := snapshot(t, m, admin)
	require.Equal(t, uint64(9950), v.TotalFeesEarned)
	require.Equal(t, int64(1), v.LastFeeHarvestTime)

	// nothing was claimed on the rejected call
	require.Equal(t, []string{"pending", "harvest", "pending"}, p.Calls)

	// reaching the cap exactly is allowed
	p.FeeRate = 50
	out, err := m.HarvestFees(ctx, admin, admin, 3)
	require.NoError(t, err)
	require.Equal(t, uint64(10000), out.Total)
}

func TestHarvestFees_Overflow(t *testing.T) {
	ctx := context.Background()
	admin := solana.NewWallet().PublicKey()
	p := pool.NewMockPool()
	m := NewManager(p, nil, nil, zaptest.NewLogger(t))
	put(m, model.Vault{
		Admin:              admin,
		TotalFeesEarned:    math.MaxUint64 - 10,
		MaxFeeAmount:       math.MaxUint64,
		RebalanceThreshold: 5,
		MinRebalanceDelay:  1,
	})

	_, err := m.HarvestFees(ctx, admin, admin, 1)
	require.ErrorIs(t, err, ErrFeeOverflow)
	require.Equal(t, uint64(math.MaxUint64-10), snapshot(t, m, admin).TotalFeesEarned)
}

func TestHarvestFees_ClaimAboveQuote(t *testing.T) {
	ctx := context.Background()
	m, p, _, admin := newTestManager(t)

	rl := withRejectionLog(m)

	p.FeeRate = 9990
	p.ClaimBonus = 20
	_, err := m.HarvestFees(ctx, admin, admin, 1)
	require.ErrorIs(t, err, ErrMaxFeeExceeded)

	var fe *failOpenError
	require.ErrorAs(t, err, &fe)
	require.Equal(t, uint64(10010), fe.amount)

	evt := rl.last(t)
	require.Equal(t, "harvest_fees", evt.Op)
	require.Equal(t, "MaxFeeExceeded", evt.Kind)
	require.True(t, evt.FailOpen)

	v := snapshot(t, m, admin)
	require.Zero(t, v.TotalFeesEarned)
	require.Zero(t, v.LastFeeHarvestTime)
}

func TestWithdraw(t *testing.T) {
	ctx := context.Background()
	m, p, _, admin := newTestManager(t)

	_, err := m.Deposit(ctx, admin, admin, 1001, model.Bins{10, 20})
	require.NoError(t, err)
	before := snapshot(t, m, admin)

	for _, share := range []uint64{0, 101} {
		_, err := m.Withdraw(ctx, admin, admin, share)
		require.ErrorIs(t, err, ErrInvalidSharePercentage, "share %d", share)
	}

	var settled uint64
	m.Settler = settlerFunc(func(_ context.Context, _, recipient solana.PublicKey, liquidity uint64) error {
		require.Equal(t, admin, recipient)
		settled = liquidity
		return nil
	})

	removed, err := m.Withdraw(ctx, admin, admin, 50)
	require.NoError(t, err)
	require.Equal(t, uint64(500), removed)
	require.Equal(t, uint64(500), settled)

	pos, _ := p.Position(admin)
	require.Equal(t, uint64(501), pos.Liquidity)
	require.Equal(t, before, snapshot(t, m, admin))

	removed, err = m.Withdraw(ctx, admin, admin, 100)
	require.NoError(t, err)
	require.Equal(t, uint64(501), removed)
	pos, _ = p.Position(admin)
	require.Zero(t, pos.Liquidity)
}

func TestWithdraw_SettlementFailure(t *testing.T) {
	ctx := context.Background()
	m, _, _, admin := newTestManager(t)

	_, err := m.Deposit(ctx, admin, admin, 100, model.Bins{10, 20})
	require.NoError(t, err)
	m.Settler = settlerFunc(func(context.Context, solana.PublicKey, solana.PublicKey, uint64) error {
		return errors.New("token account frozen")
	})

	rl := withRejectionLog(m)

	_, err = m.Withdraw(ctx, admin, admin, 10)
	require.ErrorIs(t, err, ErrSettlement)
	require.Equal(t, "SettlementFailure", Kind(err))

	var fe *failOpenError
	require.ErrorAs(t, err, &fe)
	require.Equal(t, uint64(10), fe.amount)

	evt := rl.last(t)
	require.Equal(t, "withdraw", evt.Op)
	require.Equal(t, "SettlementFailure", evt.Kind)
	require.True(t, evt.FailOpen)

	// guard failures before the pool call are not fail-open
	_, err = m.Withdraw(ctx, admin, admin, 0)
	require.ErrorIs(t, err, ErrInvalidSharePercentage)
	require.False(t, rl.last(t).FailOpen)
}

func TestRestore(t *testing.T) {
	ctx := context.Background()
	m, p, st, admin := newTestManager(t)
	_, err := m.Deposit(ctx, admin, admin, 100, model.Bins{10, 20})
	require.NoError(t, err)

	fresh := NewManager(p, st, nil, zaptest.NewLogger(t))
	n, err := fresh.Restore(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, snapshot(t, m, admin), snapshot(t, fresh, admin))

	_, err = fresh.Initialize(ctx, admin, defaultParams)
	require.ErrorIs(t, err, ErrVaultExists)
}

func TestConcurrentOperationsSerialize(t *testing.T) {
	ctx := context.Background()
	m, p, _, admin := newTestManager(t)
	p.FeeRate = 1

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			_, _ = m.HarvestFees(ctx, admin, admin, int64(i))
		}(i)
		go func(i int) {
			defer wg.Done()
			_, _ = m.RecordPrice(ctx, admin, admin, 100, 1000)
		}(i)
	}
	wg.Wait()

	v := snapshot(t, m, admin)
	require.Equal(t, uint64(50), v.TotalFeesEarned)
	require.Equal(t, 100.0, v.LastPrice)
}

func TestKind(t *testing.T) {
	require.Equal(t, "ok", Kind(nil))
	require.Equal(t, "unknown", Kind(errors.New("boom")))
	require.Equal(t, "StalePrice", Kind(ErrStalePrice))
	require.Equal(t, "AdapterFailure", Kind(errors.Join(ErrAdapter, errors.New("x"))))
}
