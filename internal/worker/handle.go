package worker

// Handle tracks completion of scheduled work. The zero Handle is already
// complete, so it can be used as "no dependency".
type Handle struct {
	done <-chan struct{}
}

// Completed returns a handle that is already complete.
func Completed() Handle {
	return Handle{}
}

// Complete blocks until the work behind the handle has finished.
func (h Handle) Complete() {
	if h.done != nil {
		<-h.done
	}
}

// IsCompleted reports whether the work has finished without blocking.
func (h Handle) IsCompleted() bool {
	if h.done == nil {
		return true
	}
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// Combine returns a handle that completes once every given handle has.
func Combine(handles ...Handle) Handle {
	pending := make([]Handle, 0, len(handles))
	for _, h := range handles {
		if !h.IsCompleted() {
			pending = append(pending, h)
		}
	}

	switch len(pending) {
	case 0:
		return Handle{}
	case 1:
		return pending[0]
	}

	done := make(chan struct{})
	go func() {
		for _, h := range pending {
			h.Complete()
		}
		close(done)
	}()
	return Handle{done: done}
}
