package cache

// Journal collects undo steps for cache mutations made inside one store
// transaction. A nil *Journal records nothing.
type Journal struct {
	undo []func()
}

// NewJournal returns an empty journal.
func NewJournal() *Journal {
	return &Journal{}
}

func (j *Journal) add(f func()) {
	if j == nil {
		return
	}
	j.undo = append(j.undo, f)
}

// Len returns the number of recorded undo steps.
func (j *Journal) Len() int {
	if j == nil {
		return 0
	}
	return len(j.undo)
}

// Rollback undoes recorded mutations in reverse order and empties the journal.
func (j *Journal) Rollback() {
	if j == nil {
		return
	}
	for i := len(j.undo) - 1; i >= 0; i-- {
		j.undo[i]()
	}
	j.undo = nil
}

// Commit discards the recorded undo steps.
func (j *Journal) Commit() {
	if j == nil {
		return
	}
	j.undo = nil
}
