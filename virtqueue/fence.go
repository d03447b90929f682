package virtqueue

// fence marks the points where the protocol requires a sequentially
// consistent fence bracketing the acquire/release pairing around
// EVENT_IDX notification decisions. Go's sync/atomic operations are
// already sequentially consistent by the language's memory model —
// there is no weaker ordering to escape — so this has nothing to do; it
// exists so the control flow below reads the same as the protocol it
// implements, and so the barrier's two call sites stay easy to find.
func fence() {}
