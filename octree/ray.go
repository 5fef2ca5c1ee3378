package octree

import (
	"cmp"
	"slices"

	"github.com/aukilabs/sjon/spatial"
	"github.com/go-gl/mathgl/mgl32"
)

// RayTestResult is a hit between a ray and an entry.
type RayTestResult struct {
	ID       ID         `json:"id"`
	Point    mgl32.Vec3 `json:"point"`
	Normal   mgl32.Vec3 `json:"normal"`
	Distance float32    `json:"distance"`
	Payload  any        `json:"-"`
}

type RayTestResults []RayTestResult

// Sort orders the results from the closest to the furthest hit.
func (r RayTestResults) Sort() {
	slices.SortStableFunc(r, func(a, b RayTestResult) int {
		return cmp.Compare(a.Distance, b.Distance)
	})
}

// TestRay returns the entries hit by the ray. The boolean is false when the
// ray misses the root, in which case no node is descended. Results are not
// sorted.
func (t *Tree) TestRay(r spatial.Ray) (RayTestResults, bool) {
	visits := uint64(1)
	defer func() {
		t.rayNodeVisits.Add(visits)
		instrumentRayNodeVisits(t.name, visits)
	}()

	if _, ok := r.IntersectBox(t.root.bounds); !ok {
		return nil, false
	}

	results := RayTestResults{}
	t.root.testRay(r, t.rayDisabledBuckets.Load(), &results, &visits)
	return results, true
}

func (n *Node) testRay(r spatial.Ray, disabledBuckets uint64, results *RayTestResults, visits *uint64) {
	for _, e := range n.entries {
		if !e.rayTest || disabledBuckets&(1<<e.bucket) != 0 {
			continue
		}

		hit, ok := r.IntersectBox(e.bounds)
		if !ok {
			continue
		}
		if tester, isTester := e.payload.(spatial.RayTester); isTester {
			if hit, ok = tester.TestRay(r); !ok {
				continue
			}
		}

		*results = append(*results, RayTestResult{
			ID:       e.id,
			Point:    hit.Point,
			Normal:   hit.Normal,
			Distance: hit.Distance,
			Payload:  e.payload,
		})
	}

	if !n.divided {
		return
	}

	for i := range n.octants {
		*visits++
		if _, ok := r.IntersectBox(n.octants[i].bounds); !ok {
			continue
		}
		n.octants[i].node.testRay(r, disabledBuckets, results, visits)
	}
}
