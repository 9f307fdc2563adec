package upstream

import (
	"sync"
	"testing"
	"time"
)

const testEndpoint = "gpu-a100-01:8000"

func TestRegistry_OpensAfterThreshold(t *testing.T) {
	reg := NewRegistry(3, 5*time.Minute, nil)
	now := time.Now()

	reg.ReportFailure(testEndpoint)
	reg.ReportFailure(testEndpoint)
	if !reg.IsAvailable(testEndpoint, now) {
		t.Fatal("Endpoint must stay available below the failure threshold")
	}

	reg.ReportFailure(testEndpoint)
	if reg.IsAvailable(testEndpoint, now) {
		t.Fatal("Endpoint must be unavailable after crossing the threshold")
	}

	// The cooldown window has a fixed length; past it the endpoint is
	// eligible again without any explicit reset.
	if !reg.IsAvailable(testEndpoint, now.Add(6*time.Minute)) {
		t.Error("Endpoint must become available after the cooldown elapses")
	}
}

func TestRegistry_SuccessResetsFailures(t *testing.T) {
	reg := NewRegistry(3, 5*time.Minute, nil)

	reg.ReportFailure(testEndpoint)
	reg.ReportFailure(testEndpoint)
	reg.ReportFailure(testEndpoint)
	if reg.IsAvailable(testEndpoint, time.Now()) {
		t.Fatal("Endpoint must be unavailable after three failures")
	}

	reg.ReportSuccess(testEndpoint)
	if !reg.IsAvailable(testEndpoint, time.Now()) {
		t.Error("Success must clear the cooldown window")
	}
	if got := reg.Failures(testEndpoint); got != 0 {
		t.Errorf("Expected failure count 0 after success, got %d", got)
	}

	// A single new failure starts counting from zero again.
	reg.ReportFailure(testEndpoint)
	if !reg.IsAvailable(testEndpoint, time.Now()) {
		t.Error("One failure after a success must not reopen the circuit")
	}
}

func TestRegistry_RenewedFailureReopensImmediately(t *testing.T) {
	reg := NewRegistry(3, 5*time.Minute, nil)

	reg.ReportFailure(testEndpoint)
	reg.ReportFailure(testEndpoint)
	reg.ReportFailure(testEndpoint)

	// Past the cooldown the endpoint is eligible, but the failure count
	// was not reset: only a success does that.
	future := time.Now().Add(6 * time.Minute)
	if !reg.IsAvailable(testEndpoint, future) {
		t.Fatal("Endpoint must be eligible after the cooldown elapses")
	}
	if got := reg.Failures(testEndpoint); got != 3 {
		t.Fatalf("Expected failure count to survive cooldown expiry, got %d", got)
	}

	// One renewed failure reopens the circuit without another full run.
	reg.ReportFailure(testEndpoint)
	if reg.IsAvailable(testEndpoint, time.Now()) {
		t.Error("A renewed failure after expiry must reopen the circuit immediately")
	}
}

func TestRegistry_SingleFailureThreshold(t *testing.T) {
	reg := NewRegistry(1, time.Minute, nil)

	reg.ReportFailure(testEndpoint)
	if reg.IsAvailable(testEndpoint, time.Now()) {
		t.Error("With max_failures=1 a single failure must open the circuit")
	}
}

func TestRegistry_UnknownEndpointIsAvailable(t *testing.T) {
	reg := NewRegistry(3, time.Minute, nil)

	if !reg.IsAvailable("never-seen:1234", time.Now()) {
		t.Error("An endpoint with no reports must be available")
	}
	if got := reg.Failures("never-seen:1234"); got != 0 {
		t.Errorf("Expected 0 failures for unknown endpoint, got %d", got)
	}
}

func TestRegistry_SetLimits(t *testing.T) {
	reg := NewRegistry(3, 5*time.Minute, nil)

	reg.ReportFailure(testEndpoint)
	reg.ReportFailure(testEndpoint)
	if !reg.IsAvailable(testEndpoint, time.Now()) {
		t.Fatal("Endpoint must be available at 2 of 3 failures")
	}

	// Lowering the threshold does not retroactively open the circuit;
	// the next failure is judged against the new limit.
	reg.SetLimits(2, time.Minute)
	if !reg.IsAvailable(testEndpoint, time.Now()) {
		t.Error("Retuning limits must not open circuits by itself")
	}

	reg.ReportFailure(testEndpoint)
	if reg.IsAvailable(testEndpoint, time.Now()) {
		t.Error("The next failure must be judged against the new threshold")
	}
}

func TestRegistry_Snapshot(t *testing.T) {
	reg := NewRegistry(2, time.Minute, nil)
	now := time.Now()

	reg.ReportFailure("gpu-a100-01:8000")
	reg.ReportFailure("gpu-a100-01:8000")
	reg.ReportFailure("gpu-a100-01:8001")

	snap := reg.Snapshot(now)
	if len(snap) != 2 {
		t.Fatalf("Expected 2 records, got %d", len(snap))
	}

	open := snap["gpu-a100-01:8000"]
	if open.Available {
		t.Error("Expected gpu-a100-01:8000 to be unavailable")
	}
	if open.Failures != 2 {
		t.Errorf("Expected 2 failures, got %d", open.Failures)
	}
	if open.CooldownUntil.IsZero() {
		t.Error("Expected a cooldown deadline for the open endpoint")
	}

	closed := snap["gpu-a100-01:8001"]
	if !closed.Available {
		t.Error("Expected gpu-a100-01:8001 to be available")
	}
	if closed.Failures != 1 {
		t.Errorf("Expected 1 failure, got %d", closed.Failures)
	}
	if !closed.CooldownUntil.IsZero() {
		t.Error("Expected no cooldown deadline below the threshold")
	}
}

func TestRegistry_ConcurrentReports(t *testing.T) {
	reg := NewRegistry(100000, time.Minute, nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				reg.ReportFailure(testEndpoint)
				reg.IsAvailable(testEndpoint, time.Now())
			}
		}()
	}
	wg.Wait()

	if got := reg.Failures(testEndpoint); got != 1600 {
		t.Errorf("Expected 1600 recorded failures, got %d", got)
	}
}

type stubObserver struct {
	mu        sync.Mutex
	successes int
	failures  int
	cooldowns int
}

func (o *stubObserver) Attempt(key string, success bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if success {
		o.successes++
	} else {
		o.failures++
	}
}

func (o *stubObserver) CooldownOpened(key string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.cooldowns++
}

func TestRegistry_ObserverReceivesEvents(t *testing.T) {
	reg := NewRegistry(2, time.Minute, nil)
	obs := &stubObserver{}
	reg.SetObserver(obs)

	reg.ReportSuccess(testEndpoint)
	reg.ReportFailure(testEndpoint)
	reg.ReportFailure(testEndpoint)

	obs.mu.Lock()
	defer obs.mu.Unlock()
	if obs.successes != 1 {
		t.Errorf("Expected 1 observed success, got %d", obs.successes)
	}
	if obs.failures != 2 {
		t.Errorf("Expected 2 observed failures, got %d", obs.failures)
	}
	if obs.cooldowns != 1 {
		t.Errorf("Expected 1 observed cooldown opening, got %d", obs.cooldowns)
	}
}
