package octree

import (
	"github.com/aukilabs/sjon/spatial"
)

// DebugInfo is a snapshot of the shape of a tree.
type DebugInfo struct {
	Name          string              `json:"name"`
	Bounds        spatial.BoundingBox `json:"bounds"`
	Entries       int                 `json:"entries"`
	Nodes         int                 `json:"nodes"`
	DividedNodes  int                 `json:"divided_nodes"`
	Depth         int                 `json:"depth"`
	Rebuilds      uint64              `json:"rebuilds"`
	RayNodeVisits uint64              `json:"ray_node_visits"`
	Cursor        uint32              `json:"visibility_cursor"`

	// The number of entries held at each depth.
	Occupancy []uint32 `json:"occupancy"`
}

func (t *Tree) GetDebugInfo() DebugInfo {
	t.visibilityMu.Lock()
	cursor := t.cursor
	t.visibilityMu.Unlock()

	info := DebugInfo{
		Name:          t.name,
		Bounds:        t.root.bounds,
		Entries:       len(t.entries),
		Rebuilds:      t.rebuilds,
		RayNodeVisits: t.rayNodeVisits.Load(),
		Cursor:        cursor,
	}

	t.Walk(func(n *Node) bool {
		info.Nodes++
		if n.divided {
			info.DividedNodes++
		}
		if n.depth > info.Depth {
			info.Depth = n.depth
		}

		for len(info.Occupancy) <= n.depth {
			info.Occupancy = append(info.Occupancy, 0)
		}
		info.Occupancy[n.depth] += uint32(len(n.entries))
		return true
	})

	return info
}
