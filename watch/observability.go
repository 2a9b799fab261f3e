package watch

import (
	"sync"

	"github.com/petal-labs/toolwatch/mutation"
)

// CheckObservation captures one scheduler- or CLI-driven check outcome.
type CheckObservation struct {
	ToolName   string
	ChangeType mutation.ChangeType
	Severity   mutation.Severity
	Mutated    bool
	Suppressed bool
	FirstSeen  bool
	DurationMS int64
	Error      string
}

// Observer receives watch-level observability events.
type Observer interface {
	ObserveCheck(observation CheckObservation)
}

type noopObserver struct{}

func (noopObserver) ObserveCheck(CheckObservation) {}

var (
	observerMu     sync.RWMutex
	activeObserver Observer = noopObserver{}
)

// SetObserver sets the process-wide watch observability observer.
func SetObserver(observer Observer) {
	observerMu.Lock()
	defer observerMu.Unlock()
	if observer == nil {
		activeObserver = noopObserver{}
		return
	}
	activeObserver = observer
}

func emitCheckObservation(observation CheckObservation) {
	observerMu.RLock()
	observer := activeObserver
	observerMu.RUnlock()
	observer.ObserveCheck(observation)
}
