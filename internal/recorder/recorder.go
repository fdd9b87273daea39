package recorder

// PriceEvent records an accepted price sample.
type PriceEvent struct {
	Vault     string
	Price     float64
	DriftPct  float64
	Staged    bool
	Candidate [2]int32
	Seeded    bool
	At        int64
}

// RebalanceEvent records a committed range move.
type RebalanceEvent struct {
	Vault       string
	From        [2]int32
	To          [2]int32
	TokenAmount uint64
	At          int64
}

// HarvestEvent records a committed fee harvest.
type HarvestEvent struct {
	Vault      string
	Amount     uint64
	TotalAfter uint64
	At         int64
}

// LiquidityEvent records a deposit or withdrawal against the pool.
type LiquidityEvent struct {
	Vault  string
	Action string // "DEPOSIT" or "WITHDRAW"
	Amount uint64
	Share  uint64
	Bins   [2]int32
}

// LifecycleEvent records vault creation and admin maintenance.
type LifecycleEvent struct {
	Vault  string
	Action string // "INITIALIZE" or "RESEED"
	Note   string
}

// RejectionEvent records a guarded operation that was refused.
type RejectionEvent struct {
	Vault    string
	Op       string
	Kind     string
	Detail   string
	FailOpen bool // external side effect already happened
}

// Recorder persists the vault journal for later analysis.
type Recorder interface {
	RecordPrice(evt *PriceEvent) error
	RecordRebalance(evt *RebalanceEvent) error
	RecordHarvest(evt *HarvestEvent) error
	RecordLiquidity(evt *LiquidityEvent) error
	RecordLifecycle(evt *LifecycleEvent) error
	RecordRejection(evt *RejectionEvent) error
	Close() error
}
