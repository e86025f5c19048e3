package platform

type combined struct {
	StateStore
	Emitter
}

// Combine builds a Platform whose state and incidents live in different
// stores. The result is not a Committer.
func Combine(state StateStore, emitter Emitter) Platform {
	return combined{StateStore: state, Emitter: emitter}
}
