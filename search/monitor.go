package search

import "github.com/poiesic/notebase/core"

// SearchMonitor provides hooks to observe the search process.
type SearchMonitor interface {
	Start(mode, query string)
	AfterScan(candidates int)
	FinishText(hits []core.TextHit)
	FinishVector(hits []core.VectorHit)
}

// noopMonitor is a no-op implementation of SearchMonitor
type noopMonitor struct{}

var _ SearchMonitor = (*noopMonitor)(nil)

func (n *noopMonitor) Start(_, _ string)               {}
func (n *noopMonitor) AfterScan(_ int)                 {}
func (n *noopMonitor) FinishText(_ []core.TextHit)     {}
func (n *noopMonitor) FinishVector(_ []core.VectorHit) {}
