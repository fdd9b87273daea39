package recorder

// NoopRecorder is a no-op implementation used when SQLite is not configured.
type NoopRecorder struct{}

func NewNoopRecorder() *NoopRecorder { return &NoopRecorder{} }

func (n *NoopRecorder) RecordPrice(_ *PriceEvent) error         { return nil }
func (n *NoopRecorder) RecordRebalance(_ *RebalanceEvent) error { return nil }
func (n *NoopRecorder) RecordHarvest(_ *HarvestEvent) error     { return nil }
func (n *NoopRecorder) RecordLiquidity(_ *LiquidityEvent) error { return nil }
func (n *NoopRecorder) RecordLifecycle(_ *LifecycleEvent) error { return nil }
func (n *NoopRecorder) RecordRejection(_ *RejectionEvent) error { return nil }
func (n *NoopRecorder) Close() error                            { return nil }
