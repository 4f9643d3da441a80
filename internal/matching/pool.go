package matching

import "container/list"

type poolEntry struct {
	id       string
	priority bool
}

// Pool is the ordered set of connections waiting for a partner. Entries
// inserted at the head form a priority segment that is served before any
// tail entry; each segment is FIFO. A connection appears at most once.
//
// Pool is not safe for concurrent use.
type Pool struct {
	order    *list.List
	index    map[string]*list.Element
	lastPrio *list.Element // last element of the priority segment, or nil
}

// NewPool creates an empty pool.
func NewPool() *Pool {
	return &Pool{
		order: list.New(),
		index: make(map[string]*list.Element),
	}
}

// EnqueueTail appends id behind every waiting entry. It returns false if id
// is already pooled.
func (p *Pool) EnqueueTail(id string) bool {
	if _, ok := p.index[id]; ok {
		return false
	}
	p.index[id] = p.order.PushBack(poolEntry{id: id})
	return true
}

// EnqueueHead inserts id ahead of every tail entry and behind earlier head
// insertions. Connections whose partner walked away use this path. It
// returns false, leaving the pool untouched, if id is already pooled.
func (p *Pool) EnqueueHead(id string) bool {
	if _, ok := p.index[id]; ok {
		return false
	}
	var e *list.Element
	if p.lastPrio == nil {
		e = p.order.PushFront(poolEntry{id: id, priority: true})
	} else {
		e = p.order.InsertAfter(poolEntry{id: id, priority: true}, p.lastPrio)
	}
	p.lastPrio = e
	p.index[id] = e
	return true
}

// Remove deletes id. Removing an absent id is a no-op returning false.
func (p *Pool) Remove(id string) bool {
	e, ok := p.index[id]
	if !ok {
		return false
	}
	p.remove(e)
	return true
}

func (p *Pool) remove(e *list.Element) {
	if e == p.lastPrio {
		p.lastPrio = nil
		if prev := e.Prev(); prev != nil && prev.Value.(poolEntry).priority {
			p.lastPrio = prev
		}
	}
	delete(p.index, e.Value.(poolEntry).id)
	p.order.Remove(e)
}

// Contains reports whether id is waiting.
func (p *Pool) Contains(id string) bool {
	_, ok := p.index[id]
	return ok
}

// Size returns the number of waiting entries.
func (p *Pool) Size() int { return p.order.Len() }

// PopFrontPair removes and returns the two oldest entries.
func (p *Pool) PopFrontPair() (a, b string, ok bool) {
	if p.order.Len() < 2 {
		return "", "", false
	}
	first := p.order.Front()
	second := first.Next()
	a = first.Value.(poolEntry).id
	b = second.Value.(poolEntry).id
	p.remove(first)
	p.remove(p.index[b])
	return a, b, true
}

// frontPair returns the two oldest entries without removing them.
func (p *Pool) frontPair() (a, b string, ok bool) {
	if p.order.Len() < 2 {
		return "", "", false
	}
	first := p.order.Front()
	return first.Value.(poolEntry).id, first.Next().Value.(poolEntry).id, true
}

// each calls fn for every id in service order until fn returns false. fn may
// remove the id it was given.
func (p *Pool) each(fn func(id string) bool) {
	for e := p.order.Front(); e != nil; {
		next := e.Next()
		if !fn(e.Value.(poolEntry).id) {
			return
		}
		e = next
	}
}

// Snapshot returns the waiting ids in service order.
func (p *Pool) Snapshot() []string {
	ids := make([]string, 0, p.order.Len())
	for e := p.order.Front(); e != nil; e = e.Next() {
		ids = append(ids, e.Value.(poolEntry).id)
	}
	return ids
}
