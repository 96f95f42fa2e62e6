package arena

import (
	"math"
	"sort"

	"github.com/tachyon-beep/tidebreak-sub000/internal/core/entity"
	"github.com/tachyon-beep/tidebreak-sub000/internal/core/vmath"
)

const defaultCellSize = 64.0

type cellKey struct{ x, y int32 }

// SpatialIndex is a uniform grid over entity positions. Query results are
// returned in ascending id order so spatial lookups are deterministic.
type SpatialIndex struct {
	cellSize float64
	cells    map[cellKey][]entity.ID
}

func NewSpatialIndex(cellSize float64) *SpatialIndex {
	if cellSize <= 0 {
		cellSize = defaultCellSize
	}
	return &SpatialIndex{cellSize: cellSize, cells: make(map[cellKey][]entity.ID)}
}

func (s *SpatialIndex) key(p vmath.Vec2) cellKey {
	return cellKey{
		x: int32(math.Floor(p.X / s.cellSize)),
		y: int32(math.Floor(p.Y / s.cellSize)),
	}
}

func (s *SpatialIndex) Insert(id entity.ID, pos vmath.Vec2) {
	k := s.key(pos)
	s.cells[k] = append(s.cells[k], id)
}

func (s *SpatialIndex) Remove(id entity.ID, pos vmath.Vec2) {
	k := s.key(pos)
	ids := s.cells[k]
	for i, got := range ids {
		if got == id {
			s.cells[k] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	if len(s.cells[k]) == 0 {
		delete(s.cells, k)
	}
}

// Move re-buckets an entity whose position changed. A same-cell move is a
// no-op.
func (s *SpatialIndex) Move(id entity.ID, oldPos, newPos vmath.Vec2) {
	oldKey, newKey := s.key(oldPos), s.key(newPos)
	if oldKey == newKey {
		return
	}
	s.Remove(id, oldPos)
	s.Insert(id, newPos)
}

// QueryRadius returns ids within radius of center, sorted ascending. The
// radius test is exact against the positions recorded at insert time, so
// callers must keep the index synced (Arena.SyncSpatial).
func (s *SpatialIndex) QueryRadius(center vmath.Vec2, radius float64, pos func(entity.ID) (vmath.Vec2, bool)) []entity.ID {
	if radius < 0 {
		return nil
	}
	minK := s.key(vmath.Vec2{X: center.X - radius, Y: center.Y - radius})
	maxK := s.key(vmath.Vec2{X: center.X + radius, Y: center.Y + radius})

	var out []entity.ID
	r2 := radius * radius
	for cx := minK.x; cx <= maxK.x; cx++ {
		for cy := minK.y; cy <= maxK.y; cy++ {
			for _, id := range s.cells[cellKey{cx, cy}] {
				p, ok := pos(id)
				if ok && p.DistanceSq(center) <= r2 {
					out = append(out, id)
				}
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
