package swapd

import (
	"context"
	"sync"
	"time"

	"github.com/lightninglabs/loopout/swapdb"
	"github.com/lightningnetwork/lnd/ticker"
)

// DefaultReconcileInterval is how often the reconciler polls for expired
// swaps when Config.ReconcileInterval is unset.
const DefaultReconcileInterval = 30 * time.Second

// Reconciler is a best-effort poller that advances non-terminal swaps to
// TIMEOUT once their cltv_expiry has passed. It intentionally sits outside
// NewLoopOut's transactional core: a missed or delayed tick never blocks a
// swap request, and a crashed reconciler only delays a state transition that
// a later restart or the claimer's own timeout-sweep path can still make.
type Reconciler struct {
	coordinator *Coordinator
	interval    time.Duration

	quit chan struct{}
	wg   sync.WaitGroup
}

// NewReconciler creates a Reconciler driving coordinator's store. interval
// of zero uses DefaultReconcileInterval.
func NewReconciler(coordinator *Coordinator, interval time.Duration) *Reconciler {
	if interval == 0 {
		interval = DefaultReconcileInterval
	}

	return &Reconciler{
		coordinator: coordinator,
		interval:    interval,
		quit:        make(chan struct{}),
	}
}

// Start runs the poll loop in the background until Stop is called.
func (r *Reconciler) Start() {
	r.wg.Add(1)
	go r.run()
}

// Stop halts the poll loop and waits for it to exit.
func (r *Reconciler) Stop() {
	close(r.quit)
	r.wg.Wait()
}

func (r *Reconciler) run() {
	defer r.wg.Done()

	t := ticker.New(r.interval)
	t.Resume()
	defer t.Stop()

	for {
		select {
		case <-t.Ticks():
			r.reconcileOnce(context.Background())

		case <-r.quit:
			return
		}
	}
}

// reconcileOnce runs a single pass: find every non-terminal swap whose
// cltv_expiry has been reached and mark it TIMEOUT. It does not itself
// broadcast the timeout-branch spend; that is a separate sweep path's job,
// this only keeps LoopOut.state truthful for readers of GetLoopOut.
func (r *Reconciler) reconcileOnce(ctx context.Context) {
	height, err := r.coordinator.cfg.Wallet.Height(ctx)
	if err != nil {
		log.Warnf("reconciler: failed to fetch tip height: %v", err)
		return
	}

	expired, err := r.coordinator.cfg.Store.ListExpirable(ctx, height)
	if err != nil {
		log.Warnf("reconciler: failed to list expirable loop outs: %v", err)
		return
	}

	for _, id := range expired {
		err := r.coordinator.cfg.Store.UpdateLoopOutState(
			ctx, id, swapdb.LoopOutStateTimeout,
		)
		if err != nil {
			log.Warnf("reconciler: failed to mark loop_out %d "+
				"TIMEOUT: %v", id, err)
			continue
		}

		log.Infof("reconciler: loop_out %d moved to TIMEOUT at "+
			"height %d", id, height)
	}
}
