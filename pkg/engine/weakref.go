package engine

// WeakRef is an uncounted pointer to a patch that is automatically
// cleared (and optionally invokes a callback) when the patch is
// destroyed. Used by long-lived caches, journaling metadata, and
// patchgroup labels that must survive patch completion without
// preventing it.
type WeakRef struct {
	patch *Patch

	prev *WeakRef // previous in target's weak chain (nil for head)
	next *WeakRef

	callback    func(w *WeakRef, target *Patch)
	hasCallback bool
}

// Retain attaches w to p's weak-reference chain. w must be zero-valued
// (freshly allocated) before the call.
func (p *Patch) Retain(w *WeakRef, callback func(w *WeakRef, target *Patch)) {
	w.patch = p
	w.next = p.weakHead
	w.prev = nil
	if p.weakHead != nil {
		p.weakHead.prev = w
	}
	p.weakHead = w
	w.callback = callback
	w.hasCallback = callback != nil
}

// Release detaches w from its target's chain without invoking any
// callback (used when the holder is simply done with the reference,
// not reacting to the target's destruction).
func (w *WeakRef) Release() {
	w.clear(false)
}

// Get returns the referenced patch, or nil if it has been cleared.
func (w *WeakRef) Get() *Patch { return w.patch }

func (w *WeakRef) clear(invokeCallback bool) {
	if w.patch == nil {
		return
	}
	target := w.patch
	if w.prev != nil {
		w.prev.next = w.next
	} else if target.weakHead == w {
		target.weakHead = w.next
	}
	if w.next != nil {
		w.next.prev = w.prev
	}
	w.patch = nil
	w.prev = nil
	w.next = nil
	if invokeCallback && w.hasCallback {
		w.callback(w, target)
	}
}

// clearWeakRefs walks p's weak reference chain, clearing every
// reference and invoking its callback, as part of satisfy().
func (p *Patch) clearWeakRefs() {
	for w := p.weakHead; w != nil; {
		next := w.next
		w.clear(true)
		w = next
	}
	p.weakHead = nil
}
