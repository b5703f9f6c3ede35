package runtime

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	errs "github.com/exclave-io/exclave/internal/runtime/errors"
)

type counterService struct {
	*Service
}

func newCounterService() *counterService {
	c := &counterService{Service: NewService("counter", map[string]any{"count": 0})}
	c.Bind(c)
	return c
}

func (c *counterService) Increment() int {
	v, _ := c.State().Get("count")
	n, _ := v.(int)
	c.SetState("count", n+1)
	return n + 1
}

func (c *counterService) AddItem(ctx context.Context, sku string, qty int) (int, error) {
	if qty <= 0 {
		return 0, errors.New("quantity must be positive")
	}
	c.Emit("itemAdded", sku)
	return qty, nil
}

func (c *counterService) LoadUser(ctx context.Context, id string) error {
	corr, ok := CorrelationFromContext(ctx)
	if !ok {
		return errors.New("no correlation attached")
	}
	go func() {
		time.Sleep(5 * time.Millisecond)
		c.ResolveRequest("userLoaded", corr, "user:"+id)
	}()
	return nil
}

func TestNewServicePanicsWithoutName(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on empty name")
		}
	}()
	NewService("", nil)
}

func TestNewServiceSeedsInitialState(t *testing.T) {
	svc := NewService("seeded", map[string]any{"zeta": 3, "alpha": 1, "mid": 2})
	defer svc.Close()

	want := []string{"alpha", "mid", "zeta"}
	got := svc.State().Keys()
	if len(got) != len(want) {
		t.Fatalf("expected %d keys, got %v", len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected sorted bootstrap order %v, got %v", want, got)
		}
	}

	// Seeding emits, so the notifier cache serves reads immediately.
	if v, ok := svc.Get("alpha"); !ok || v != 1 {
		t.Fatalf("expected cached seed value 1, got (%v, %v)", v, ok)
	}
}

func TestSetStateEmitsEveryWrite(t *testing.T) {
	svc := NewService("chatty", nil)
	defer svc.Close()

	var got []any
	svc.On("count", func(v any) { got = append(got, v) })

	svc.SetState("count", 1)
	svc.SetState("count", 1)
	svc.SetState("count", 2)

	if len(got) != 3 {
		t.Fatalf("expected an emission per write, got %d: %v", len(got), got)
	}
	if got[0] != 1 || got[1] != 1 || got[2] != 2 {
		t.Fatalf("expected [1 1 2], got %v", got)
	}
}

func TestStateViewRefusesWrites(t *testing.T) {
	svc := NewService("guarded", map[string]any{"count": 0})
	defer svc.Close()

	view := svc.State()
	if err := view.Set("count", 99); !errors.Is(err, errs.ErrReadOnlyState) {
		t.Fatalf("expected read-only error, got %v", err)
	}
	if v, _ := view.Get("count"); v != 0 {
		t.Fatalf("expected refused write to change nothing, got %v", v)
	}
}

func TestStateInsertionOrderFollowsWrites(t *testing.T) {
	svc := NewService("ordered", nil)
	defer svc.Close()

	svc.SetState("b", 1)
	svc.SetState("a", 2)
	svc.SetState("b", 3)
	svc.SetState("c", 4)

	want := []string{"b", "a", "c"}
	got := svc.State().Keys()
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected first-set order %v, got %v", want, got)
		}
	}
}

func TestSetStatesAppliesSorted(t *testing.T) {
	svc := NewService("bulk", nil)
	defer svc.Close()

	var order []string
	svc.On("x", func(any) { order = append(order, "x") })
	svc.On("a", func(any) { order = append(order, "a") })

	svc.SetStates(map[string]any{"x": 1, "a": 2})

	if len(order) != 2 || order[0] != "a" || order[1] != "x" {
		t.Fatalf("expected sorted application [a x], got %v", order)
	}
}

func TestCallBeforeBind(t *testing.T) {
	svc := NewService("unbound", nil)
	defer svc.Close()

	if _, err := svc.Call(context.Background(), "anything"); !errors.Is(err, errs.ErrNotBound) {
		t.Fatalf("expected not-bound error, got %v", err)
	}
}

func TestBindNilPanics(t *testing.T) {
	svc := NewService("nilbind", nil)
	defer svc.Close()

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on nil Bind")
		}
	}()
	svc.Bind(nil)
}

func TestCallRoutesToImplementation(t *testing.T) {
	c := newCounterService()
	defer c.Close()
	ctx := context.Background()

	out, err := c.Call(ctx, "increment")
	if err != nil {
		t.Fatalf("increment failed: %v", err)
	}
	if out != 1 {
		t.Fatalf("expected 1, got %v", out)
	}
	if v, _ := c.State().Get("count"); v != 1 {
		t.Fatalf("expected state to follow the call, got %v", v)
	}
}

func TestPostMatchesCallDispatch(t *testing.T) {
	c := newCounterService()
	defer c.Close()

	c.Post("increment")
	c.Post("increment")

	if v, _ := c.State().Get("count"); v != 2 {
		t.Fatalf("expected posted actions to run, count is %v", v)
	}
}

func TestPostSwallowsErrors(t *testing.T) {
	c := newCounterService()
	defer c.Close()

	// Unknown action and failing action must not panic or surface.
	c.Post("vanish")
	c.Post("addItem", "sku", 0)
}

func TestEmitReachesSubscribers(t *testing.T) {
	c := newCounterService()
	defer c.Close()

	var events []any
	c.On("itemAdded", func(v any) { events = append(events, v) })

	if _, err := c.Call(context.Background(), "addItem", "sku-1", 2); err != nil {
		t.Fatalf("addItem failed: %v", err)
	}

	if len(events) != 1 || events[0] != "sku-1" {
		t.Fatalf("expected one itemAdded event, got %v", events)
	}
	if v, ok := c.Get("itemAdded"); !ok || v != "sku-1" {
		t.Fatalf("expected event cached as last value, got (%v, %v)", v, ok)
	}
}

func TestOnceAndOff(t *testing.T) {
	svc := NewService("subs", nil)
	defer svc.Close()

	once := 0
	svc.Once("tick", func(any) { once++ })

	kept := 0
	sub := svc.On("tick", func(any) { kept++ })

	svc.Emit("tick", 1)
	svc.Emit("tick", 2)

	if once != 1 {
		t.Fatalf("expected once handler to fire once, fired %d", once)
	}
	if kept != 2 {
		t.Fatalf("expected persistent handler to fire twice, fired %d", kept)
	}

	svc.Off(sub)
	svc.Emit("tick", 3)
	if kept != 2 {
		t.Fatalf("expected removed handler to stay at 2, got %d", kept)
	}
}

func TestRequestResolvedByImplementation(t *testing.T) {
	c := newCounterService()
	defer c.Close()

	out, err := c.Request(context.Background(), "userLoaded", time.Second, "loadUser", "u1")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if out != "user:u1" {
		t.Fatalf("expected user:u1, got %v", out)
	}
}

func TestRequestTimesOutUnanswered(t *testing.T) {
	svc := NewService("silent", nil)
	defer svc.Close()
	svc.Bind(&silentResponder{svc})

	_, err := svc.Request(context.Background(), "never", 20*time.Millisecond, "ignore")
	if !errors.Is(err, errs.ErrCallTimeout) {
		t.Fatalf("expected call timeout, got %v", err)
	}
}

func TestRequestFailsWhenDispatchFails(t *testing.T) {
	c := newCounterService()
	defer c.Close()

	_, err := c.Request(context.Background(), "userLoaded", time.Second, "vanish")
	if !errors.Is(err, errs.ErrMethodNotFound) {
		t.Fatalf("expected dispatch error to surface, got %v", err)
	}
}

func TestResolveRequestChecksResponseType(t *testing.T) {
	c := newCounterService()
	defer c.Close()

	done := make(chan struct{})
	var out any
	var err error
	go func() {
		defer close(done)
		out, err = c.Request(context.Background(), "userLoaded", time.Second, "addItem", "sku", 1)
	}()

	// Wait until the dispatch is recorded, then pull its correlation ID.
	var corr string
	deadline := time.After(time.Second)
	for corr == "" {
		for _, entry := range c.History() {
			if entry.Action == "addItem" {
				corr = entry.CorrelationID
			}
		}
		if corr == "" {
			select {
			case <-deadline:
				t.Fatal("addItem dispatch never recorded a correlation id")
			default:
				time.Sleep(time.Millisecond)
			}
		}
	}

	if c.ResolveRequest("orderLoaded", corr, "wrong") {
		t.Fatal("expected mismatched response type to be refused")
	}
	if !c.ResolveRequest("userLoaded", corr, "right") {
		t.Fatal("expected matching response type to settle")
	}

	<-done
	if err != nil || out != "right" {
		t.Fatalf("expected (right, nil), got (%v, %v)", out, err)
	}
}

type silentResponder struct {
	*Service
}

func (s *silentResponder) Ignore(ctx context.Context) {}

func TestHistoryRecordsDispatches(t *testing.T) {
	c := newCounterService()
	defer c.Close()
	ctx := context.Background()

	c.Call(ctx, "increment")
	c.Call(ctx, "addItem", "sku-9", 3)

	entries := c.History()
	if len(entries) != 2 {
		t.Fatalf("expected 2 history entries, got %d", len(entries))
	}
	if entries[0].Action != "increment" || entries[1].Action != "addItem" {
		t.Fatalf("unexpected history order: %v", entries)
	}
	if entries[1].Args[0] != "sku-9" {
		t.Fatalf("expected recorded args, got %v", entries[1].Args)
	}
	if entries[0].Time.IsZero() || entries[0].Time.Location() != time.UTC {
		t.Fatalf("expected UTC timestamps, got %v", entries[0].Time)
	}

	raw, err := c.DumpHistory()
	if err != nil {
		t.Fatalf("dump failed: %v", err)
	}
	if !strings.Contains(string(raw), "addItem") {
		t.Fatalf("expected dump to mention addItem, got %s", raw)
	}
}

func TestHistoryLimitBoundsRecording(t *testing.T) {
	c := newCounterService()
	defer c.Close()
	c.SetHistoryLimit(2)

	for i := 0; i < 5; i++ {
		c.Call(context.Background(), "increment")
	}

	if got := len(c.History()); got != 2 {
		t.Fatalf("expected history capped at 2, got %d", got)
	}
}

func TestCloseIsIdempotentAndFinal(t *testing.T) {
	c := newCounterService()

	if err := c.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("second close failed: %v", err)
	}

	if _, err := c.Call(context.Background(), "increment"); !errors.Is(err, errs.ErrDisposed) {
		t.Fatalf("expected disposed error, got %v", err)
	}

	// Mutations after close are dropped silently.
	c.SetState("count", 99)
	if _, ok := c.Get("count"); ok {
		t.Fatal("expected cleared cache after close")
	}

	fired := false
	c.On("count", func(any) { fired = true })
	c.SetState("count", 1)
	if fired {
		t.Fatal("expected no emissions after close")
	}
}

func TestCloseRejectsPendingRequests(t *testing.T) {
	svc := NewService("closing", nil)
	svc.Bind(&silentResponder{svc})

	var wg sync.WaitGroup
	wg.Add(1)
	var err error
	go func() {
		defer wg.Done()
		_, err = svc.Request(context.Background(), "never", time.Minute, "ignore")
	}()

	deadline := time.After(time.Second)
	for svc.pending.Len() == 0 {
		select {
		case <-deadline:
			t.Fatal("request never became pending")
		default:
			time.Sleep(time.Millisecond)
		}
	}

	svc.Close()
	wg.Wait()

	if !errors.Is(err, errs.ErrDisposed) {
		t.Fatalf("expected pending request rejected with disposed, got %v", err)
	}
}

func TestConcurrentSetStateDeliversEveryWrite(t *testing.T) {
	svc := NewService("concurrent", nil)
	defer svc.Close()

	var mu sync.Mutex
	var got []any
	svc.On("seq", func(v any) {
		mu.Lock()
		got = append(got, v)
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				svc.SetState("seq", i)
			}
		}()
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 200 {
		t.Fatalf("expected 200 emissions, got %d", len(got))
	}
}
