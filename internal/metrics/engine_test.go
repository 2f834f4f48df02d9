package metrics

import (
	"sync"
	"testing"
	"time"
)

func TestNewEngine(t *testing.T) {
	engine := NewEngine()
	if engine == nil {
		t.Fatal("NewEngine() returned nil")
	}

	snapshot := engine.GetSnapshot()
	if snapshot.TotalRequests != 0 {
		t.Errorf("Initial TotalRequests = %d, want 0", snapshot.TotalRequests)
	}
	if snapshot.CurrentPhase != PhaseInit {
		t.Errorf("Initial phase = %v, want %v", snapshot.CurrentPhase, PhaseInit)
	}
}

func TestEngine_RecordLatency(t *testing.T) {
	engine := NewEngine()

	engine.RecordLatency(10*time.Millisecond, "create_payment", true, 1000)
	engine.RecordLatency(20*time.Millisecond, "create_payment", true, 2000)
	engine.RecordLatency(30*time.Millisecond, "get_summary", false, 500)

	snapshot := engine.GetSnapshot()

	if snapshot.TotalRequests != 3 {
		t.Errorf("TotalRequests = %d, want 3", snapshot.TotalRequests)
	}
	if snapshot.SuccessRequests != 2 {
		t.Errorf("SuccessRequests = %d, want 2", snapshot.SuccessRequests)
	}
	if snapshot.FailedRequests != 1 {
		t.Errorf("FailedRequests = %d, want 1", snapshot.FailedRequests)
	}
	if snapshot.TotalBytes != 3500 {
		t.Errorf("TotalBytes = %d, want 3500", snapshot.TotalBytes)
	}

	stats := engine.GetRequestStats()
	if stats["create_payment"].Count != 2 {
		t.Errorf("create_payment count = %d, want 2", stats["create_payment"].Count)
	}
	if stats["get_summary"].Count != 1 {
		t.Errorf("get_summary count = %d, want 1", stats["get_summary"].Count)
	}
}

func TestEngine_LatencyPercentiles(t *testing.T) {
	engine := NewEngine()

	for i := 1; i <= 10; i++ {
		engine.RecordLatency(time.Duration(i*10)*time.Millisecond, "", true, 100)
	}

	latency := engine.GetSnapshot().Latency

	// HDR binning allows some tolerance
	if latency.P50 < 40*time.Millisecond || latency.P50 > 60*time.Millisecond {
		t.Errorf("P50 = %v, want ~50ms (±10ms)", latency.P50)
	}
	if latency.P99 < 90*time.Millisecond || latency.P99 > 110*time.Millisecond {
		t.Errorf("P99 = %v, want ~100ms (±10ms)", latency.P99)
	}
	if latency.Count != 10 {
		t.Errorf("Count = %d, want 10", latency.Count)
	}
}

func TestEngine_PhaseHistory(t *testing.T) {
	engine := NewEngine()

	engine.SetPhase(PhaseSetup)
	engine.SetPhase(Phase("populate"))
	engine.SetPhase(Phase("populate"))
	engine.SetPhase(Phase("measure"))
	engine.SetPhase(PhaseDone)

	history := engine.GetPhaseHistory()
	if len(history) != 4 {
		t.Fatalf("len(history) = %d, want 4", len(history))
	}
	if history[1].Phase != "populate" || history[2].Phase != "measure" {
		t.Errorf("unexpected history: %+v", history)
	}
	if engine.GetPhase() != PhaseDone {
		t.Errorf("GetPhase() = %v, want %v", engine.GetPhase(), PhaseDone)
	}
}

func TestEngine_ConcurrentRecording(t *testing.T) {
	engine := NewEngine()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 500; j++ {
				engine.RecordLatency(time.Millisecond, "get_summary", true, 10)
			}
		}()
	}
	wg.Wait()

	if got := engine.GetSnapshot().TotalRequests; got != 10000 {
		t.Errorf("TotalRequests = %d, want 10000", got)
	}
	engine.SetActiveVUs(7)
	if engine.GetActiveVUs() != 7 {
		t.Errorf("GetActiveVUs() = %d, want 7", engine.GetActiveVUs())
	}
}
