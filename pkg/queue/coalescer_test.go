package queue

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/reactiveui/akavache-go/pkg/model"
)

func TestCoalesceMergesAdjacentSelects(t *testing.T) {
	op1 := NewOp(BulkSelectByKey)
	op1.Keys = []string{"Foo"}
	op2 := NewOp(BulkSelectByKey)
	op2.Keys = []string{"Bar"}

	groups := NewCoalescer().Coalesce([]*Op{op1, op2})

	assert.Len(t, groups, 1)
	assert.Equal(t, BulkSelectByKey, groups[0].Kind)
	assert.ElementsMatch(t, []string{"Foo", "Bar"}, groups[0].Keys)
	assert.Equal(t, []*Op{op1, op2}, groups[0].Sources)
}

func TestCoalesceMergesSelectsAcrossInterveningInvalidate(t *testing.T) {
	selFoo := NewOp(BulkSelectByKey)
	selFoo.Keys = []string{"Foo"}
	selBar := NewOp(BulkSelectByKey)
	selBar.Keys = []string{"Bar"}
	inv := NewOp(BulkInvalidateByKey)
	inv.Keys = []string{"Bamf"}
	selBaz := NewOp(BulkSelectByKey)
	selBaz.Keys = []string{"Baz"}

	groups := NewCoalescer().Coalesce([]*Op{selFoo, selBar, inv, selBaz})

	assert.Len(t, groups, 2)
	assert.Equal(t, BulkSelectByKey, groups[0].Kind)
	assert.ElementsMatch(t, []string{"Foo", "Bar", "Baz"}, groups[0].Keys)
	assert.Equal(t, BulkInvalidateByKey, groups[1].Kind)
	assert.Equal(t, []string{"Bamf"}, groups[1].Keys)
}

func TestCoalesceInsertFlushesOpenSelectGroup(t *testing.T) {
	sel1 := NewOp(BulkSelectByKey)
	sel1.Keys = []string{"Foo"}
	ins1 := NewOp(BulkInsert)
	ins1.Elements = []model.CacheElement{{Key: "Foo", Value: []byte{1, 2, 3}}}
	sel2 := NewOp(BulkSelectByKey)
	sel2.Keys = []string{"Foo"}
	ins2 := NewOp(BulkInsert)
	ins2.Elements = []model.CacheElement{{Key: "Foo", Value: []byte{4, 5, 6}}}

	groups := NewCoalescer().Coalesce([]*Op{sel1, ins1, sel2, ins2})

	assert.Len(t, groups, 4)
	assert.Equal(t, BulkSelectByKey, groups[0].Kind)
	assert.Equal(t, BulkInsert, groups[1].Kind)
	assert.Equal(t, BulkSelectByKey, groups[2].Kind)
	assert.Equal(t, BulkInsert, groups[3].Kind)
}

func TestCoalesceInsertDoesNotDeduplicateKeys(t *testing.T) {
	ins1 := NewOp(BulkInsert)
	ins1.Elements = []model.CacheElement{{Key: "Foo", Value: []byte("first")}}
	ins2 := NewOp(BulkInsert)
	ins2.Elements = []model.CacheElement{{Key: "Foo", Value: []byte("second")}}

	groups := NewCoalescer().Coalesce([]*Op{ins1, ins2})

	assert.Len(t, groups, 2)
	assert.Equal(t, []byte("first"), groups[0].Elements[0].Value)
	assert.Equal(t, []byte("second"), groups[1].Elements[0].Value)
}

func TestCoalesceBarrierFlushesEveryOpenGroup(t *testing.T) {
	sel := NewOp(BulkSelectByKey)
	sel.Keys = []string{"Foo"}
	inv := NewOp(BulkInvalidateByKey)
	inv.Keys = []string{"Bar"}
	all := NewOp(InvalidateAll)

	groups := NewCoalescer().Coalesce([]*Op{sel, inv, all})

	assert.Len(t, groups, 3)
	assert.Equal(t, InvalidateAll, groups[2].Kind)
}

func TestGroupDeliverFiltersPerSourceKeys(t *testing.T) {
	op1 := NewOp(BulkSelectByKey)
	op1.Keys = []string{"Foo"}
	op2 := NewOp(BulkSelectByKey)
	op2.Keys = []string{"Bar"}

	groups := NewCoalescer().Coalesce([]*Op{op1, op2})
	groups[0].Deliver([]model.CacheElement{
		{Key: "Foo", Value: []byte("f")},
		{Key: "Bar", Value: []byte("b")},
	})

	r1, _ := op1.Sink.Wait(context.Background())
	r2, _ := op2.Sink.Wait(context.Background())
	assert.Equal(t, []model.CacheElement{{Key: "Foo", Value: []byte("f")}}, r1.Elements)
	assert.Equal(t, []model.CacheElement{{Key: "Bar", Value: []byte("b")}}, r2.Elements)
}

func TestGroupFailDeliversSameErrorToEverySource(t *testing.T) {
	op1 := NewOp(BulkInsert)
	op2 := NewOp(BulkInsert)
	g := &Group{Kind: BulkInsert, Sources: []*Op{op1, op2}}

	boom := assert.AnError
	g.Fail(boom)

	r1, _ := op1.Sink.Wait(context.Background())
	r2, _ := op2.Sink.Wait(context.Background())
	assert.Equal(t, boom, r1.Err)
	assert.Equal(t, boom, r2.Err)
}
