package skiplist

// weakSearchPredecessors walks down from head to the first node whose
// key is >= k at every level, without repairing anything it passes
// through — marked (deleted-but-not-yet-unlinked) nodes are followed
// exactly like live ones. It corresponds to weak_search_predecessors
// and is used by Lookup and as the optimistic first attempt by Update
// and Remove.
func (s *Set[V]) weakSearchPredecessors(k uint64, preds, succs []*node[V]) *node[V] {
	x := s.head
	var xNext *node[V]
	for i := s.numLevels - 1; i >= 0; i-- {
		for {
			xNext = x.loadNext(i).to
			if xNext == s.tail || xNext.key >= k {
				break
			}
			x = xNext
		}
		if preds != nil {
			preds[i] = x
		}
		if succs != nil {
			succs[i] = xNext
		}
	}
	return xNext
}

// strongSearchPredecessors is weakSearchPredecessors plus physical
// repair: at every level, a run of marked nodes between a predecessor
// and the first live node at or past k is CAS-unlinked in one step.
// If that CAS loses a race, the whole search restarts from head — the
// only way to guarantee preds/succs describe a consistent snapshot
// after a repair. It corresponds to strong_search_predecessors.
func (s *Set[V]) strongSearchPredecessors(k uint64, preds, succs []*node[V]) *node[V] {
	for {
		x := s.head
		var y *node[V]
		restart := false

		for i := s.numLevels - 1; i >= 0 && !restart; i-- {
			xNextLink := x.loadNext(i)
			if xNextLink.marked {
				restart = true
				break
			}
			xNext := xNextLink.to
			y = xNext

			for {
				yNextLink := y.loadNext(i)
				for yNextLink.marked {
					y = yNextLink.to
					yNextLink = y.loadNext(i)
				}
				yNext := yNextLink.to

				if y == s.tail || y.key >= k {
					break
				}

				x = y
				xNext = yNext
				y = yNext
			}

			if xNext != y {
				if ok, _ := x.swingNext(i, xNext, y); !ok {
					restart = true
					break
				}
			}

			if preds != nil {
				preds[i] = x
			}
			if succs != nil {
				succs[i] = y
			}
		}

		if restart {
			continue
		}
		return y
	}
}
