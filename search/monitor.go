package search

import "github.com/poiesic/docflow/core"

// SearchMonitor provides hooks to observe the search process.
// Implement this interface to track intermediate steps and results during search.
type SearchMonitor interface {
	Start(query string)
	AfterVectorSearch(chunkIds []uint64)
	AfterKeywordScan(chunkIds []uint64)
	HybridHit(chunk *core.DocumentChunk)
	VectorHit(chunk *core.DocumentChunk)
	KeywordHit(chunk *core.DocumentChunk)
	Finish(results []*Result)
}

// noopMonitor is a no-op implementation of SearchMonitor
type noopMonitor struct{}

var _ SearchMonitor = (*noopMonitor)(nil)

func (n *noopMonitor) Start(_ string)                    {}
func (n *noopMonitor) AfterVectorSearch(_ []uint64)      {}
func (n *noopMonitor) AfterKeywordScan(_ []uint64)       {}
func (n *noopMonitor) HybridHit(_ *core.DocumentChunk)   {}
func (n *noopMonitor) VectorHit(_ *core.DocumentChunk)   {}
func (n *noopMonitor) KeywordHit(_ *core.DocumentChunk)  {}
func (n *noopMonitor) Finish(_ []*Result)                {}
