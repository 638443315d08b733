package readiness_barrier

import "context"

type ReadinessBarrierInterface interface {
	SendSignalCtx(ctx context.Context, sig toggleSignal) error
	IsReady() bool
	Start()
	Stop()
}

// Pinger is anything whose reachability decides readiness, e.g. the lock store.
type Pinger interface {
	Ping(ctx context.Context) error
}
