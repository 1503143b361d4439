package world

type WorldMetrics struct {
	Seq        uint64 `json:"seq"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	Grants     int    `json:"grants"`
	Owners     int    `json:"owners"`
	OpenClaims int    `json:"open_claims"`
	InboxDepth int    `json:"inbox_depth"`
}

// Metrics returns the figures published after the last mutating command.
// Safe for concurrent use.
func (w *World) Metrics() WorldMetrics {
	if w == nil {
		return WorldMetrics{}
	}
	m, _ := w.metrics.Load().(WorldMetrics)
	m.InboxDepth = len(w.inbox)
	return m
}

func (w *World) publishMetrics() {
	open := 0
	for _, c := range w.mgr.Claims() {
		if c.Open() {
			open++
		}
	}
	w.metrics.Store(WorldMetrics{
		Seq:        w.seq,
		Width:      w.mgr.Width(),
		Height:     w.mgr.Height(),
		Grants:     len(w.mgr.GrantedLands()),
		Owners:     len(w.mgr.Owners()),
		OpenClaims: open,
	})
}
