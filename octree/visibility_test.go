package octree

import (
	"sync"
	"testing"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/sjon/spatial"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/require"
)

// frontFrustum sees x and y in [-10, 10] and z in [-100, -1].
func frontFrustum() spatial.Frustum {
	return spatial.NewFrustum(mgl32.Ortho(-10, 10, -10, 10, 1, 100))
}

// backFrustum sees x and y in [-10, 10] and z in [1, 100].
func backFrustum() spatial.Frustum {
	view := mgl32.LookAtV(mgl32.Vec3{0, 0, 0}, mgl32.Vec3{0, 0, 1}, mgl32.Vec3{0, 1, 0})
	return spatial.NewFrustum(mgl32.Ortho(-10, 10, -10, 10, 1, 100).Mul4(view))
}

// awayFrustum sees nothing of a tree centered on the origin.
func awayFrustum() spatial.Frustum {
	view := mgl32.Translate3D(0, 0, -1000)
	return spatial.NewFrustum(mgl32.Ortho(-10, 10, -10, 10, 1, 100).Mul4(view))
}

func newVisibilityTree(t *testing.T, opts Options) *Tree {
	tree := newTestTree(t, cube(8), opts)
	require.NoError(t, tree.Insert(1, box(-6, -6, -6, -5, -5, -5)))
	require.NoError(t, tree.Insert(2, box(5, 5, 5, 6, 6, 6)))
	return tree
}

func requireEntryVisible(t *testing.T, tree *Tree, id ID, viewer ViewerID, visible bool) {
	v, err := tree.IsEntryVisible(id, viewer)
	require.NoError(t, err)
	require.Equal(t, visible, v, "entry %d for viewer %d", id, viewer)
}

func TestCalculateVisibility(t *testing.T) {
	t.Run("nothing is visible before a pass", func(t *testing.T) {
		tree := newVisibilityTree(t, Options{})

		requireEntryVisible(t, tree, 1, 0, false)
		require.False(t, tree.IsVisible(tree.Root(), 0))
		require.Empty(t, tree.VisibleEntries(0))
	})

	t.Run("nodes intersecting the frustum are visible", func(t *testing.T) {
		tree := newVisibilityTree(t, Options{})
		require.NoError(t, tree.CalculateVisibility(0, frontFrustum()))

		require.True(t, tree.Root().IsVisible(0))
		requireEntryVisible(t, tree, 1, 0, true)
		requireEntryVisible(t, tree, 2, 0, false)
		require.False(t, tree.Root().Child(7).IsVisible(0))
		require.Equal(t, []ID{1}, tree.VisibleEntries(0))
	})

	t.Run("viewers do not see each other results", func(t *testing.T) {
		tree := newVisibilityTree(t, Options{})
		require.NoError(t, tree.CalculateVisibility(0, frontFrustum()))
		require.NoError(t, tree.CalculateVisibility(1, backFrustum()))

		requireEntryVisible(t, tree, 1, 0, true)
		requireEntryVisible(t, tree, 2, 0, false)
		requireEntryVisible(t, tree, 1, 1, false)
		requireEntryVisible(t, tree, 2, 1, true)
		requireEntryVisible(t, tree, 1, 2, false)
	})

	t.Run("a new pass replaces the previous one", func(t *testing.T) {
		tree := newVisibilityTree(t, Options{})
		require.NoError(t, tree.CalculateVisibility(0, frontFrustum()))
		require.NoError(t, tree.CalculateVisibility(1, backFrustum()))
		require.NoError(t, tree.CalculateVisibility(0, backFrustum()))

		requireEntryVisible(t, tree, 1, 0, false)
		requireEntryVisible(t, tree, 2, 0, true)
		requireEntryVisible(t, tree, 2, 1, true)
	})

	t.Run("frustum missing the root hides everything", func(t *testing.T) {
		tree := newVisibilityTree(t, Options{})
		require.NoError(t, tree.CalculateVisibility(0, frontFrustum()))
		require.NoError(t, tree.CalculateVisibility(0, awayFrustum()))

		require.False(t, tree.Root().IsVisible(0))
		requireEntryVisible(t, tree, 1, 0, false)
		require.Empty(t, tree.VisibleEntries(0))
	})

	t.Run("frames are reclaimed when the ring wraps", func(t *testing.T) {
		tree := newVisibilityTree(t, Options{})
		require.NoError(t, tree.CalculateVisibility(0, frontFrustum()))
		require.NoError(t, tree.CalculateVisibility(1, backFrustum()))

		for i := 0; i < VisibilitySlots-1; i++ {
			require.NoError(t, tree.CalculateVisibility(0, frontFrustum()))
		}
		requireEntryVisible(t, tree, 2, 1, true)

		require.NoError(t, tree.CalculateVisibility(0, frontFrustum()))
		requireEntryVisible(t, tree, 2, 1, false)
		requireEntryVisible(t, tree, 1, 0, true)
	})

	t.Run("invalid viewer", func(t *testing.T) {
		tree := newVisibilityTree(t, Options{})

		err := tree.CalculateVisibility(MaxViewers, frontFrustum())
		require.Equal(t, ErrTypeInvalidViewer, errors.Type(err))

		_, err = tree.IsEntryVisible(1, MaxViewers)
		require.Equal(t, ErrTypeInvalidViewer, errors.Type(err))
		require.False(t, tree.IsVisible(tree.Root(), MaxViewers))
	})

	t.Run("unknown entry", func(t *testing.T) {
		tree := newVisibilityTree(t, Options{})

		_, err := tree.IsEntryVisible(42, 0)
		require.Equal(t, ErrTypeNotFound, errors.Type(err))
	})

	t.Run("concurrent passes", func(t *testing.T) {
		tree := newVisibilityTree(t, Options{})

		var wg sync.WaitGroup
		for v := ViewerID(0); v < 8; v++ {
			wg.Add(1)
			go func(v ViewerID) {
				defer wg.Done()

				f := frontFrustum()
				if v%2 == 1 {
					f = backFrustum()
				}
				require.NoError(t, tree.CalculateVisibility(v, f))
			}(v)
		}
		wg.Wait()

		for v := ViewerID(0); v < 8; v++ {
			requireEntryVisible(t, tree, 1, v, v%2 == 0)
			requireEntryVisible(t, tree, 2, v, v%2 == 1)
		}
	})
}

func TestFlickerPrevention(t *testing.T) {
	t.Run("moved entry keeps the visibility of its source", func(t *testing.T) {
		tree := newTestTree(t, cube(8), Options{})
		require.NoError(t, tree.Insert(1, cube(1)))
		require.NoError(t, tree.CalculateVisibility(0, frontFrustum()))
		require.NoError(t, tree.CalculateVisibility(1, awayFrustum()))

		source, _ := tree.Entry(1)
		require.True(t, source.Node().IsVisible(0))
		require.False(t, source.Node().IsVisible(1))

		require.NoError(t, tree.Update(1, box(5, 5, 5, 6, 6, 6)))

		e, _ := tree.Entry(1)
		require.Equal(t, 4, e.Node().Depth())
		require.True(t, e.Node().IsVisible(0))
		require.False(t, e.Node().IsVisible(1))
		require.Equal(t, []ID{1}, tree.VisibleEntries(0))

		require.NoError(t, tree.CalculateVisibility(0, frontFrustum()))
		requireEntryVisible(t, tree, 1, 0, false)
	})

	t.Run("rebuild keeps the visibility of entries", func(t *testing.T) {
		tree := newVisibilityTree(t, Options{})
		require.NoError(t, tree.CalculateVisibility(0, frontFrustum()))

		require.NoError(t, tree.Insert(3, box(20, 20, 20, 21, 21, 21)))
		require.Equal(t, uint64(1), tree.GetDebugInfo().Rebuilds)

		requireEntryVisible(t, tree, 1, 0, true)
		requireEntryVisible(t, tree, 2, 0, false)
		requireEntryVisible(t, tree, 3, 0, false)
	})

	t.Run("disabled", func(t *testing.T) {
		tree := newTestTree(t, cube(8), Options{DisableFlickerPrevention: true})
		require.NoError(t, tree.Insert(1, cube(1)))
		require.NoError(t, tree.CalculateVisibility(0, frontFrustum()))

		require.NoError(t, tree.Update(1, box(5, 5, 5, 6, 6, 6)))
		requireEntryVisible(t, tree, 1, 0, false)
	})
}
