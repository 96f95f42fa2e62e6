package sim

import (
	"encoding/binary"
	"math"
	"sort"

	"github.com/cespare/xxhash/v2"

	"github.com/tachyon-beep/tidebreak-sub000/internal/core/entity"
)

// StateHash digests the current generation into a single value. Entities
// are encoded in id order with a fixed little-endian layout, so two worlds
// hash equal exactly when their observable state is bit-identical. The hash
// is the unit of comparison for replay verification.
func (s *Simulation) StateHash() uint64 {
	h := xxhash.New()
	w := hashWriter{h: h}
	w.u64(s.tick)
	w.u64(uint64(s.cur.Len()))
	for _, id := range s.cur.IDs() {
		e := s.cur.Get(id)
		w.u64(uint64(id))
		w.u64(uint64(e.Tag))
		w.bundle(&e.Bundle)
	}
	return h.Sum64()
}

type hashWriter struct {
	h   *xxhash.Digest
	buf [8]byte
}

func (w *hashWriter) u64(v uint64) {
	binary.LittleEndian.PutUint64(w.buf[:], v)
	_, _ = w.h.Write(w.buf[:])
}

func (w *hashWriter) f64(v float64) { w.u64(math.Float64bits(v)) }

func (w *hashWriter) bundle(b *entity.Bundle) {
	var mask uint64
	for _, k := range b.Kinds() {
		mask |= 1 << uint(k)
	}
	w.u64(mask)
	if t := b.Transform; t != nil {
		w.f64(t.Position.X)
		w.f64(t.Position.Y)
		w.f64(t.Heading)
	}
	if p := b.Physics; p != nil {
		w.f64(p.Velocity.X)
		w.f64(p.Velocity.Y)
		w.f64(p.Acceleration.X)
		w.f64(p.Acceleration.Y)
		w.f64(p.Mass)
	}
	if c := b.Combat; c != nil {
		w.f64(c.HP)
		w.f64(c.MaxHP)
		w.u64(uint64(c.Flags))
		w.u64(uint64(len(c.Weapons)))
		for i := range c.Weapons {
			wp := &c.Weapons[i]
			w.u64(uint64(wp.Slot))
			w.f64(wp.Cooldown)
			w.f64(wp.CooldownMax)
			w.u64(uint64(wp.Ammo))
		}
	}
	if sn := b.Sensor; sn != nil {
		w.f64(sn.RadarRange)
		w.u64(uint64(len(sn.Tracks)))
		for i := range sn.Tracks {
			tr := &sn.Tracks[i]
			w.u64(uint64(tr.Target))
			w.f64(tr.Position.X)
			w.f64(tr.Position.Y)
			w.u64(uint64(tr.Quality))
		}
	}
	if inv := b.Inventory; inv != nil {
		w.ammo(inv.Ammo)
		w.reserved(inv.Reserved)
	}
}

func (w *hashWriter) ammo(m map[entity.AmmoType]int) {
	keys := make([]entity.AmmoType, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	w.u64(uint64(len(keys)))
	for _, k := range keys {
		w.u64(uint64(k))
		w.u64(uint64(m[k]))
	}
}

func (w *hashWriter) reserved(m map[string]entity.ID) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	w.u64(uint64(len(keys)))
	for _, k := range keys {
		_, _ = w.h.WriteString(k)
		w.u64(uint64(m[k]))
	}
}
