package spatial

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/require"
)

func box(minX, minY, minZ, maxX, maxY, maxZ float32) BoundingBox {
	return NewBoundingBox(mgl32.Vec3{minX, minY, minZ}, mgl32.Vec3{maxX, maxY, maxZ})
}

func TestEqualWithEpsilon(t *testing.T) {
	require.True(t, EqualWithEpsilon(0.1, 0.2, 0.11))
	require.False(t, EqualWithEpsilon(0.1, 0.3, 0.11))
}

func TestBoundingBoxValidity(t *testing.T) {
	t.Run("regular box is valid", func(t *testing.T) {
		require.True(t, box(0, 0, 0, 1, 1, 1).IsValid())
	})

	t.Run("flat box is valid", func(t *testing.T) {
		require.True(t, box(0, 0, 0, 0, 1, 1).IsValid())
	})

	t.Run("inverted box is empty", func(t *testing.T) {
		b := box(1, 0, 0, 0, 1, 1)
		require.True(t, b.IsEmpty())
		require.False(t, b.IsValid())
	})

	t.Run("empty bounding box is empty", func(t *testing.T) {
		require.True(t, EmptyBoundingBox().IsEmpty())
	})

	t.Run("nan box is not valid", func(t *testing.T) {
		nan := (float32)(math.NaN())
		require.False(t, box(nan, 0, 0, 1, 1, 1).IsValid())
	})

	t.Run("infinite box is not valid", func(t *testing.T) {
		inf := (float32)(math.Inf(1))
		require.False(t, box(0, 0, 0, inf, 1, 1).IsValid())
	})
}

func TestBoundingBoxContains(t *testing.T) {
	b := box(-1, -1, -1, 1, 1, 1)

	require.True(t, b.Contains(b))
	require.True(t, b.Contains(box(0, 0, 0, 0.5, 0.5, 0.5)))
	require.False(t, b.Contains(box(0, 0, 0, 2, 0.5, 0.5)))
	require.True(t, b.ContainsPoint(mgl32.Vec3{1, 1, 1}))
	require.False(t, b.ContainsPoint(mgl32.Vec3{1, 1, 1.01}))
}

func TestBoundingBoxIntersects(t *testing.T) {
	a := box(0, 0, 0, 1, 1, 1)

	require.True(t, a.Intersects(box(0.5, 0.5, 0.5, 2, 2, 2)))
	require.True(t, a.Intersects(box(1, 0, 0, 2, 1, 1)))
	require.False(t, a.Intersects(box(2, 0, 0, 3, 1, 1)))
	require.False(t, a.Intersects(box(0, 0, -3, 1, 1, -2)))
}

func TestBoundingBoxUnion(t *testing.T) {
	a := box(0, 0, 0, 1, 1, 1)
	b := box(-1, 2, 0, 0, 3, 4)

	require.Equal(t, box(-1, 0, 0, 1, 3, 4), a.Union(b))
	require.Equal(t, a, EmptyBoundingBox().Union(a))
	require.Equal(t, a, a.Union(EmptyBoundingBox()))
}

func TestBoundingBoxScale(t *testing.T) {
	b := box(-1, -1, -1, 1, 1, 1).Scale(2)
	require.Equal(t, box(-2, -2, -2, 2, 2, 2), b)

	shifted := box(0, 0, 0, 2, 2, 2).Scale(1.5)
	require.Equal(t, box(-0.5, -0.5, -0.5, 2.5, 2.5, 2.5), shifted)
}

func TestBoundingBoxOctants(t *testing.T) {
	b := box(-4, -4, -4, 4, 4, 4)

	t.Run("octants partition the box", func(t *testing.T) {
		var volume float32
		for i := 0; i < 8; i++ {
			o := b.Octant(i)
			require.True(t, b.Contains(o))

			size := o.Size()
			volume += size[0] * size[1] * size[2]

			for j := i + 1; j < 8; j++ {
				other := b.Octant(j)
				overlap := BoundingBox{Min: maxVec(o.Min, other.Min), Max: minVec(o.Max, other.Max)}
				s := overlap.Size()
				require.Zero(t, s[0]*s[1]*s[2], "octants %d and %d overlap", i, j)
			}
		}

		size := b.Size()
		require.Equal(t, size[0]*size[1]*size[2], volume)
	})

	t.Run("octant bit layout", func(t *testing.T) {
		require.Equal(t, box(-4, -4, -4, 0, 0, 0), b.Octant(0))
		require.Equal(t, box(0, -4, -4, 4, 0, 0), b.Octant(1))
		require.Equal(t, box(-4, 0, -4, 0, 4, 0), b.Octant(2))
		require.Equal(t, box(0, 0, 0, 4, 4, 4), b.Octant(7))
	})

	t.Run("octant index of contained box", func(t *testing.T) {
		require.Equal(t, 7, b.OctantIndex(box(1, 1, 1, 2, 2, 2)))
		require.Equal(t, 0, b.OctantIndex(box(-2, -2, -2, -1, -1, -1)))
		require.Equal(t, 5, b.OctantIndex(box(1, -2, 1, 2, -1, 2)))
	})

	t.Run("straddling box has no octant", func(t *testing.T) {
		require.Equal(t, -1, b.OctantIndex(box(-1, 1, 1, 1, 2, 2)))
	})

	t.Run("outside box has no octant", func(t *testing.T) {
		require.Equal(t, -1, b.OctantIndex(box(5, 5, 5, 6, 6, 6)))
	})

	t.Run("box on the split plane goes to the low side", func(t *testing.T) {
		index := b.OctantIndex(box(0, 1, 1, 0, 2, 2))
		require.Equal(t, 6, index)
		require.True(t, b.Octant(index).Contains(box(0, 1, 1, 0, 2, 2)))
	})
}

func TestBoundingBoxCorner(t *testing.T) {
	b := box(-1, -2, -3, 1, 2, 3)

	require.Equal(t, mgl32.Vec3{-1, -2, -3}, b.Corner(0))
	require.Equal(t, mgl32.Vec3{1, 2, 3}, b.Corner(7))
	require.Equal(t, mgl32.Vec3{1, -2, 3}, b.Corner(5))
}
