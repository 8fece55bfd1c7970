package inventory

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/oremus-labs/ol-advisor-relay/internal/prompt"
	"github.com/oremus-labs/ol-advisor-relay/internal/store"
)

type fakeSource struct {
	probes   atomic.Int32
	cols     map[string]bool
	probeErr error
	gate     chan struct{}

	mu      sync.Mutex
	filters []store.InventoryFilter
	totals  []store.InventoryTotal
}

func (f *fakeSource) Columns(ctx context.Context, table string) (map[string]bool, error) {
	f.probes.Add(1)
	if f.gate != nil {
		<-f.gate
	}
	return f.cols, f.probeErr
}

func (f *fakeSource) AggregateInventory(ctx context.Context, filter store.InventoryFilter) ([]store.InventoryTotal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.filters = append(f.filters, filter)
	return f.totals, nil
}

func TestRowsDropsEmptyProductsAndMapsScope(t *testing.T) {
	t.Parallel()

	src := &fakeSource{
		cols: map[string]bool{"weekly_sales": true},
		totals: []store.InventoryTotal{
			{Product: "Tape", Category: "Packaging", CurrentStock: 3},
			{Product: "  ", Category: "Packaging", CurrentStock: 9},
		},
	}
	agg := NewAggregator(src, &CapabilityCache{})

	rows, err := agg.Rows(context.Background(), prompt.Scope{Kind: prompt.ScopeZone, WarehouseName: "North", FloorName: "F1", ZoneName: "Z2"})
	if err != nil {
		t.Fatalf("Rows: %v", err)
	}
	if len(rows) != 1 || rows[0].Product != "Tape" {
		t.Fatalf("unexpected rows %+v", rows)
	}
	got := src.filters[0]
	if got.Warehouse != "North" || got.Floor != "F1" || got.Zone != "Z2" || !got.WithSales {
		t.Fatalf("unexpected filter %+v", got)
	}
}

func TestCapabilityProbeIsSingleFlight(t *testing.T) {
	t.Parallel()

	src := &fakeSource{cols: map[string]bool{}, gate: make(chan struct{})}
	cache := &CapabilityCache{}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			caps, err := cache.Get(context.Background(), src)
			if err != nil || caps.WeeklySales {
				t.Errorf("unexpected caps %+v err %v", caps, err)
			}
		}()
	}
	deadline := time.Now().Add(time.Second)
	for src.probes.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	time.Sleep(20 * time.Millisecond)
	close(src.gate)
	wg.Wait()

	if _, err := cache.Get(context.Background(), src); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if n := src.probes.Load(); n != 1 {
		t.Fatalf("expected one probe, got %d", n)
	}
}

func TestFailedProbeIsRetried(t *testing.T) {
	t.Parallel()

	src := &fakeSource{probeErr: errors.New("db down")}
	cache := &CapabilityCache{}
	if _, err := cache.Get(context.Background(), src); err == nil {
		t.Fatalf("expected error")
	}
	src.probeErr = nil
	src.cols = map[string]bool{"weekly_sales": true}
	caps, err := cache.Get(context.Background(), src)
	if err != nil || !caps.WeeklySales {
		t.Fatalf("unexpected caps %+v err %v", caps, err)
	}
	if src.probes.Load() != 2 {
		t.Fatalf("expected a second probe, got %d", src.probes.Load())
	}
}

func TestValidScope(t *testing.T) {
	t.Parallel()

	if err := ValidScope(prompt.Scope{Kind: prompt.ScopeFloor}); err == nil {
		t.Fatalf("floor without name should fail")
	}
	if err := ValidScope(prompt.Scope{Kind: "building"}); err == nil {
		t.Fatalf("unknown kind should fail")
	}
	if err := ValidScope(prompt.Scope{Kind: prompt.ScopeZone, ZoneName: "Z"}); err != nil {
		t.Fatalf("unexpected error %v", err)
	}
}
