package journal

// actor serializes execution of closures onto a single goroutine. It is
// the Go equivalent of the cooperative "serialized" task queue pattern:
// put, rotate, checkOldFiles, and both journal- and reader-checkpoint
// writes all run through one actor per Journal, giving them a total order
// without a coarse lock around the whole Journal.
type actor struct {
	tasks chan func()
	done  chan struct{}
}

func newActor() *actor {
	a := &actor{
		tasks: make(chan func(), 256),
		done:  make(chan struct{}),
	}
	go a.run()
	return a
}

func (a *actor) run() {
	defer close(a.done)
	for task := range a.tasks {
		task()
	}
}

// submit runs fn on the actor's goroutine and blocks until it returns.
// It must not be called concurrently with or after close: sending on the
// closed task channel panics. Journal.Put checks the journal's closed flag
// before submitting.
func (a *actor) submit(fn func()) {
	done := make(chan struct{})
	a.tasks <- func() {
		defer close(done)
		fn()
	}
	<-done
}

// close stops accepting new tasks and waits for the goroutine to drain
// whatever was already queued.
func (a *actor) close() {
	close(a.tasks)
	<-a.done
}
