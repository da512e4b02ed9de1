package gateway

// Availability reports whether a real gateway adapter is wired. It is
// constructed exactly once at boot from configuration; nothing constructs
// adapters lazily at call time.
type Availability struct {
	ready  bool
	reason string
}

// Ready marks the gateway as fully configured.
func Ready() Availability {
	return Availability{ready: true}
}

// Unavailable marks the gateway as absent, with the reason operators see.
func Unavailable(reason string) Availability {
	return Availability{reason: reason}
}

// IsReady reports whether real gateway calls can be made.
func (a Availability) IsReady() bool {
	return a.ready
}

// Reason explains an unavailable gateway; empty when ready.
func (a Availability) Reason() string {
	return a.reason
}
