package manager

import "time"

// State represents lifecycle state of the manager.
type State string

const (
	StateLoading State = "loading"
	StateReady   State = "ready"
	StateClosed  State = "closed"
)

// Execution modes reported by Status.
const (
	ModeGPU = "gpu"
	ModeCPU = "cpu"
)

// Snapshot is a read-only projection of the manager state.
type Snapshot struct {
	State        State
	Mode         string
	DeviceTarget string
}

var timeNow = time.Now
