package engine

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/l7mp/triejoin/internal/testutils"
	"github.com/l7mp/triejoin/pkg/delta"
	"github.com/l7mp/triejoin/pkg/join"
	"github.com/l7mp/triejoin/pkg/registry"
	"github.com/l7mp/triejoin/pkg/schema"
	"github.com/l7mp/triejoin/pkg/zset"
)

func TestEngine(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Engine")
}

// recordingSink captures committed batches.
type recordingSink struct {
	commits []map[string]*zset.TupleZSet
}

func (s *recordingSink) CommitBatch(deltas map[string]*zset.TupleZSet) error {
	s.commits = append(s.commits, deltas)
	return nil
}

var _ = Describe("Engine", func() {
	var (
		eng      *Engine
		sink     *recordingSink
		userSpec join.Spec
	)

	BeforeEach(func() {
		sink = &recordingSink{}
		eng = New(WithLogger(testutils.NewTestLogger()), WithCommitSink(sink))

		Expect(eng.RegisterRelation("Users", testutils.UsersSchema())).To(Succeed())
		Expect(eng.RegisterRelation("Orders", testutils.OrdersSchema())).To(Succeed())

		userSpec = join.Spec{
			Terms: []join.Term{
				{Relation: "Users", Vars: []string{"x", "a"}},
				{Relation: "Orders", Vars: []string{"x", "m"}},
			},
			VarOrder: []string{"x", "a", "m"},
		}
	})

	Describe("Catalog surface", func() {
		It("should list relations in registration order", func() {
			Expect(eng.RelationNames()).To(Equal([]string{"Users", "Orders"}))
			Expect(eng.HasRelation("Users")).To(BeTrue())
			Expect(eng.HasRelation("Ghost")).To(BeFalse())
		})

		It("should reject duplicate registrations", func() {
			err := eng.RegisterRelation("Users", testutils.UsersSchema())
			Expect(err).To(MatchError(registry.ErrDuplicateRelation))
		})

		It("should fail queries on unknown relations", func() {
			spec := join.Spec{
				Terms:    []join.Term{{Relation: "Ghost", Vars: []string{"x"}}},
				VarOrder: []string{"x"},
			}
			_, err := eng.Query(spec)
			Expect(err).To(MatchError(registry.ErrRelationNotFound))
		})
	})

	Describe("Queries and views", func() {
		BeforeEach(func() {
			Expect(eng.SubmitBatch(delta.Batch{
				delta.Insert("Users", schema.Tuple{"u1", 30}),
				delta.Insert("Orders", schema.Tuple{"u1", 9.99}),
			})).To(Succeed())
		})

		It("should answer the users-orders join", func() {
			it, err := eng.Query(userSpec)
			Expect(err).NotTo(HaveOccurred())

			row, ok := it.Next()
			Expect(ok).To(BeTrue())
			Expect(row.Tuple).To(Equal(schema.Tuple{"u1", int64(30), "u1", float64(9.99)}))
			Expect(row.Mult).To(Equal(1))

			_, ok = it.Next()
			Expect(ok).To(BeFalse())
		})

		It("should keep in-flight queries on the pre-batch snapshot", func() {
			it, err := eng.Query(userSpec)
			Expect(err).NotTo(HaveOccurred())

			Expect(eng.SubmitBatch(delta.Batch{
				delta.Delete("Users", schema.Tuple{"u1", 30}),
			})).To(Succeed())

			// The iterator still sees the row: it pinned its snapshot
			// before the batch committed.
			row, ok := it.Next()
			Expect(ok).To(BeTrue())
			Expect(row.Tuple).To(Equal(schema.Tuple{"u1", int64(30), "u1", float64(9.99)}))
		})

		It("should maintain a materialized view through a deletion", func() {
			handle, err := eng.MaterializeView(userSpec)
			Expect(err).NotTo(HaveOccurred())

			state, err := eng.ViewState(handle)
			Expect(err).NotTo(HaveOccurred())
			Expect(state).To(HaveLen(1))

			deltas, err := eng.ApplyBatchToView(handle, delta.Batch{
				delta.Delete("Users", schema.Tuple{"u1", 30}),
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(deltas).To(HaveLen(1))
			Expect(deltas[0].Count).To(Equal(-1))
			Expect(deltas[0].Tuple).To(Equal(schema.Tuple{"u1", int64(30), "u1", float64(9.99)}))

			state, err = eng.ViewState(handle)
			Expect(err).NotTo(HaveOccurred())
			Expect(state).To(BeEmpty())
		})

		It("should maintain all registered views on SubmitBatch", func() {
			h1, err := eng.MaterializeView(userSpec)
			Expect(err).NotTo(HaveOccurred())
			h2, err := eng.MaterializeView(userSpec)
			Expect(err).NotTo(HaveOccurred())

			Expect(eng.SubmitBatch(delta.Batch{
				delta.Insert("Orders", schema.Tuple{"u1", 5.0}),
			})).To(Succeed())

			for _, h := range []ViewHandle{h1, h2} {
				state, err := eng.ViewState(h)
				Expect(err).NotTo(HaveOccurred())
				Expect(state).To(HaveLen(2))
			}
		})

		It("should floor over-deleting batches at the stored state", func() {
			handle, err := eng.MaterializeView(userSpec)
			Expect(err).NotTo(HaveOccurred())

			// Users(u1,30) is stored once; the double delete must not
			// drive the view multiplicity negative.
			deltas, err := eng.ApplyBatchToView(handle, delta.Batch{
				delta.Delete("Users", schema.Tuple{"u1", 30}),
				delta.Delete("Users", schema.Tuple{"u1", 30}),
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(deltas).To(HaveLen(1))
			Expect(deltas[0].Count).To(Equal(-1))

			state, err := eng.ViewState(handle)
			Expect(err).NotTo(HaveOccurred())
			Expect(state).To(BeEmpty())

			// Deleting a tuple that was never stored changes nothing.
			deltas, err = eng.ApplyBatchToView(handle, delta.Batch{
				delta.Delete("Users", schema.Tuple{"ghost", 99}),
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(deltas).To(BeEmpty())
		})

		It("should net batch-internal insert/delete pairs to no view change", func() {
			handle, err := eng.MaterializeView(userSpec)
			Expect(err).NotTo(HaveOccurred())

			deltas, err := eng.ApplyBatchToView(handle, delta.Batch{
				delta.Insert("Orders", schema.Tuple{"u1", 1.0}),
				delta.Delete("Orders", schema.Tuple{"u1", 1.0}),
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(deltas).To(BeEmpty())

			stats, err := eng.Stats("Orders")
			Expect(err).NotTo(HaveOccurred())
			Expect(stats.TotalTuples).To(Equal(1), "orders must be unchanged")
		})

		It("should drop views when dropped explicitly or with their relation", func() {
			handle, err := eng.MaterializeView(userSpec)
			Expect(err).NotTo(HaveOccurred())

			Expect(eng.DropView(handle)).To(Succeed())
			Expect(eng.DropView(handle)).To(HaveOccurred())

			handle, err = eng.MaterializeView(userSpec)
			Expect(err).NotTo(HaveOccurred())
			Expect(eng.RemoveRelation("Orders")).To(Succeed())
			_, err = eng.ViewState(handle)
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("Batch atomicity", func() {
		It("should leave state unchanged when any op is invalid", func() {
			err := eng.SubmitBatch(delta.Batch{
				delta.Insert("Users", schema.Tuple{"u1", 30}),
				delta.Insert("Orders", schema.Tuple{"u1", "not-a-float"}),
			})
			Expect(err).To(MatchError(schema.ErrInvalidTuple))

			stats, err := eng.Stats("Users")
			Expect(err).NotTo(HaveOccurred())
			Expect(stats.TotalTuples).To(Equal(0))
			Expect(sink.commits).To(BeEmpty())
		})

		It("should hand committed deltas to the commit sink", func() {
			Expect(eng.SubmitBatch(delta.Batch{
				delta.Insert("Users", schema.Tuple{"u1", 30}),
			})).To(Succeed())

			Expect(sink.commits).To(HaveLen(1))
			Expect(sink.commits[0]).To(HaveKey("Users"))
		})
	})
})
