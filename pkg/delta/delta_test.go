package delta

import (
	"math/rand"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/l7mp/triejoin/pkg/join"
	"github.com/l7mp/triejoin/pkg/registry"
	"github.com/l7mp/triejoin/pkg/schema"
	"github.com/l7mp/triejoin/pkg/store"
	"github.com/l7mp/triejoin/pkg/zset"
)

func TestDelta(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Delta engine")
}

var rnd *rand.Rand = rand.New(rand.NewSource(42))

var _ = Describe("Delta engine", func() {
	var (
		st   *store.Store
		reg  *registry.Registry
		r, s *store.Relation
		spec join.Spec
	)

	intPair := func(a, b string) *schema.Schema {
		sch, err := schema.New(
			schema.Column{Name: a, Type: schema.Integer},
			schema.Column{Name: b, Type: schema.Integer},
		)
		Expect(err).NotTo(HaveOccurred())
		return sch
	}

	preSources := func() map[string]join.Source {
		return map[string]join.Source{"R": r.Snapshot(), "S": s.Snapshot()}
	}

	recompute := func() []zset.Entry {
		view, err := NewView(spec, preSources())
		Expect(err).NotTo(HaveOccurred())
		return view.State()
	}

	applyBatch := func(batch Batch) *zset.TupleZSet {
		pre := preSources()
		view, err := NewView(spec, pre)
		Expect(err).NotTo(HaveOccurred())

		deltas, err := batch.Normalize(reg)
		Expect(err).NotTo(HaveOccurred())

		vd, err := ComputeViewDelta(spec, pre, deltas)
		Expect(err).NotTo(HaveOccurred())

		for name, d := range deltas {
			rel, err := st.Relation(name)
			Expect(err).NotTo(HaveOccurred())
			Expect(rel.ApplyDelta(d)).To(Succeed())
		}

		Expect(view.Apply(vd)).To(Succeed())
		Expect(view.State()).To(Equal(recompute()))

		return vd
	}

	BeforeEach(func() {
		st = store.NewStore()
		reg = registry.New(st)

		rs := intPair("a", "b")
		ss := intPair("b", "c")
		Expect(reg.Register("R", rs)).To(Succeed())
		Expect(reg.Register("S", ss)).To(Succeed())
		r = st.Create("R", rs)
		s = st.Create("S", ss)

		spec = join.Spec{
			Terms: []join.Term{
				{Relation: "R", Vars: []string{"a", "b"}},
				{Relation: "S", Vars: []string{"b", "c"}},
			},
			VarOrder: []string{"a", "b", "c"},
		}
	})

	Describe("Batch normalization", func() {
		It("should net opposing ops on the same tuple to nothing", func() {
			batch := Batch{
				Insert("R", schema.Tuple{1, 2}),
				Delete("R", schema.Tuple{1, 2}),
			}
			deltas, err := batch.Normalize(reg)
			Expect(err).NotTo(HaveOccurred())
			Expect(deltas).To(BeEmpty())
		})

		It("should fail the whole batch on an unknown relation", func() {
			batch := Batch{
				Insert("R", schema.Tuple{1, 2}),
				Insert("Ghost", schema.Tuple{1, 2}),
			}
			_, err := batch.Normalize(reg)
			Expect(err).To(MatchError(registry.ErrRelationNotFound))
		})

		It("should fail the whole batch on a schema-invalid tuple", func() {
			batch := Batch{
				Insert("R", schema.Tuple{1, 2}),
				Insert("S", schema.Tuple{1, "two"}),
			}
			_, err := batch.Normalize(reg)
			Expect(err).To(MatchError(schema.ErrInvalidTuple))
		})

		It("should reject zero-count ops", func() {
			batch := Batch{{Relation: "R", Tuple: schema.Tuple{1, 2}, Count: 0}}
			_, err := batch.Normalize(reg)
			Expect(err).To(MatchError(schema.ErrInvalidTuple))
		})
	})

	Describe("Single-relation deltas", func() {
		BeforeEach(func() {
			Expect(r.Insert(schema.Tuple{1, 10}, 1)).To(Succeed())
			Expect(s.Insert(schema.Tuple{10, 100}, 1)).To(Succeed())
			Expect(s.Insert(schema.Tuple{10, 200}, 1)).To(Succeed())
		})

		It("should emit one insert delta per new join row", func() {
			vd := applyBatch(Batch{Insert("R", schema.Tuple{2, 10})})
			Expect(vd.UniqueCount()).To(Equal(2)) // joins both S rows
			for _, e := range vd.Entries() {
				Expect(e.Count).To(Equal(1))
			}
		})

		It("should emit a single negative delta on base deletion", func() {
			vd := applyBatch(Batch{Delete("S", schema.Tuple{10, 200})})
			entries := vd.Entries()
			Expect(entries).To(HaveLen(1))
			Expect(entries[0].Count).To(Equal(-1))
			Expect(entries[0].Tuple).To(Equal(schema.Tuple{int64(1), int64(10), int64(10), int64(200)}))
		})

		It("should emit nothing for changes that join with nothing", func() {
			vd := applyBatch(Batch{Insert("R", schema.Tuple{5, 55})})
			Expect(vd.IsZero()).To(BeTrue())
		})

		It("should floor deletes at the stored multiplicity", func() {
			// R(1,10) is stored once; deleting it twice must remove each
			// join row once, not twice.
			vd := applyBatch(Batch{
				Delete("R", schema.Tuple{1, 10}),
				Delete("R", schema.Tuple{1, 10}),
			})
			entries := vd.Entries()
			Expect(entries).To(HaveLen(2))
			for _, e := range entries {
				Expect(e.Count).To(Equal(-1))
			}
		})

		It("should ignore deletes of tuples that are not stored", func() {
			vd := applyBatch(Batch{Delete("R", schema.Tuple{2, 10})})
			Expect(vd.IsZero()).To(BeTrue())
		})
	})

	Describe("Multi-relation batches", func() {
		BeforeEach(func() {
			Expect(r.Insert(schema.Tuple{1, 10}, 1)).To(Succeed())
			Expect(s.Insert(schema.Tuple{10, 100}, 1)).To(Succeed())
		})

		It("should count combined changes exactly once", func() {
			// Both sides of a brand-new join row arrive in one batch:
			// counted via the triangular rule, not twice.
			vd := applyBatch(Batch{
				Insert("R", schema.Tuple{2, 20}),
				Insert("S", schema.Tuple{20, 200}),
			})
			Expect(vd.UniqueCount()).To(Equal(1))
			Expect(vd.Entries()[0].Count).To(Equal(1))
		})

		It("should handle simultaneous insert and delete across relations", func() {
			vd := applyBatch(Batch{
				Delete("R", schema.Tuple{1, 10}),
				Insert("S", schema.Tuple{10, 300}),
			})
			// The old row disappears; the new S row joins with nothing
			// since R's only tuple is deleted in the same batch.
			entries := vd.Entries()
			Expect(entries).To(HaveLen(1))
			Expect(entries[0].Count).To(Equal(-1))
		})

		It("should produce an empty view delta for a fully netting batch", func() {
			vd := applyBatch(Batch{
				Insert("R", schema.Tuple{3, 10}),
				Delete("R", schema.Tuple{3, 10}),
				Insert("S", schema.Tuple{10, 400}),
				Delete("S", schema.Tuple{10, 400}),
			})
			Expect(vd.IsZero()).To(BeTrue())
		})
	})

	Describe("Incremental equivalence on random instances", func() {
		It("should match recomputation for random batches", func() {
			for i := 0; i < 20; i++ {
				Expect(r.Insert(schema.Tuple{rnd.Intn(4), rnd.Intn(4)}, 1+rnd.Intn(2))).To(Succeed())
				Expect(s.Insert(schema.Tuple{rnd.Intn(4), rnd.Intn(4)}, 1+rnd.Intn(2))).To(Succeed())
			}

			for trial := 0; trial < 10; trial++ {
				var batch Batch

				// Random inserts.
				for i := 0; i < 3; i++ {
					batch = append(batch, Insert("R", schema.Tuple{rnd.Intn(4), rnd.Intn(4)}))
					batch = append(batch, Insert("S", schema.Tuple{rnd.Intn(4), rnd.Intn(4)}))
				}
				// Deletes of tuples that actually exist.
				for _, e := range r.Snapshot().Entries() {
					if rnd.Intn(3) == 0 {
						batch = append(batch, Delete("R", e.Tuple))
					}
				}
				for _, e := range s.Snapshot().Entries() {
					if rnd.Intn(3) == 0 {
						batch = append(batch, Delete("S", e.Tuple))
					}
				}

				applyBatch(batch) // asserts view+delta == recompute
			}
		})
	})

	Describe("Self-join views", func() {
		It("should maintain views with the same relation in two terms", func() {
			pathSpec := join.Spec{
				Terms: []join.Term{
					{Relation: "R", Vars: []string{"a", "b"}},
					{Relation: "R", Vars: []string{"b", "c"}},
				},
				VarOrder: []string{"a", "b", "c"},
			}

			Expect(r.Insert(schema.Tuple{1, 2}, 1)).To(Succeed())

			pre := map[string]join.Source{"R": r.Snapshot()}
			view, err := NewView(pathSpec, pre)
			Expect(err).NotTo(HaveOccurred())
			Expect(view.State()).To(BeEmpty())
			Expect(view.Relations()).To(Equal([]string{"R"}))

			batch := Batch{Insert("R", schema.Tuple{2, 3})}
			deltas, err := batch.Normalize(reg)
			Expect(err).NotTo(HaveOccurred())

			vd, err := ComputeViewDelta(pathSpec, pre, deltas)
			Expect(err).NotTo(HaveOccurred())

			for name, d := range deltas {
				rel, err := st.Relation(name)
				Expect(err).NotTo(HaveOccurred())
				Expect(rel.ApplyDelta(d)).To(Succeed())
			}
			Expect(view.Apply(vd)).To(Succeed())

			fresh, err := NewView(pathSpec, map[string]join.Source{"R": r.Snapshot()})
			Expect(err).NotTo(HaveOccurred())
			Expect(view.State()).To(Equal(fresh.State()))
			Expect(view.State()).To(HaveLen(1))
		})
	})
})
