package runtime

import (
	"context"
	"errors"
	"sort"
	"strings"
	"testing"

	errs "github.com/exclave-io/exclave/internal/runtime/errors"
)

type routedService struct {
	*Service
	lastNote string
}

func newRoutedService() *routedService {
	r := &routedService{Service: NewService("routed", nil)}
	r.Bind(r)
	return r
}

func (r *routedService) Add(a, b int) int { return a + b }

func (r *routedService) Note(note string) { r.lastNote = note }

func (r *routedService) Fail(ctx context.Context) error { return errors.New("told to fail") }

func (r *routedService) Describe(ctx context.Context, label string) (string, error) {
	return "described " + label, nil
}

func (r *routedService) Sum(values ...int) int {
	total := 0
	for _, v := range values {
		total += v
	}
	return total
}

func (r *routedService) Batch(values []int) int {
	total := 0
	for _, v := range values {
		total += v
	}
	return total
}

func (r *routedService) Explode() { panic("kaboom") }

func TestRouterDispatchValueAndError(t *testing.T) {
	svc := newRoutedService()
	defer svc.Close()
	ctx := context.Background()

	out, err := svc.Call(ctx, "add", 2, 3)
	if err != nil {
		t.Fatalf("add failed: %v", err)
	}
	if out != 5 {
		t.Fatalf("expected 5, got %v", out)
	}

	if _, err := svc.Call(ctx, "fail"); err == nil || !strings.Contains(err.Error(), "told to fail") {
		t.Fatalf("expected method error to pass through, got %v", err)
	}

	out, err = svc.Call(ctx, "describe", "thing")
	if err != nil {
		t.Fatalf("describe failed: %v", err)
	}
	if out != "described thing" {
		t.Fatalf("expected described thing, got %v", out)
	}
}

func TestRouterAcceptsExportedSpelling(t *testing.T) {
	svc := newRoutedService()
	defer svc.Close()

	out, err := svc.Call(context.Background(), "Add", 1, 1)
	if err != nil {
		t.Fatalf("exported spelling failed: %v", err)
	}
	if out != 2 {
		t.Fatalf("expected 2, got %v", out)
	}
}

func TestRouterUnknownAction(t *testing.T) {
	svc := newRoutedService()
	defer svc.Close()

	_, err := svc.Call(context.Background(), "vanish")
	if !errors.Is(err, errs.ErrMethodNotFound) {
		t.Fatalf("expected method-not-found, got %v", err)
	}
}

func TestRouterExcludesBaseMethods(t *testing.T) {
	svc := newRoutedService()
	defer svc.Close()

	// SetState is runtime plumbing, not an addressable action.
	if _, err := svc.Call(context.Background(), "setState", "count", 1); !errors.Is(err, errs.ErrMethodNotFound) {
		t.Fatalf("expected base method to be unroutable, got %v", err)
	}

	actions := svc.Actions()
	sort.Strings(actions)
	for _, a := range actions {
		if a == "SetState" || a == "Close" || a == "Call" {
			t.Fatalf("expected base methods excluded from actions, got %v", actions)
		}
	}
}

func TestRouterArityMismatch(t *testing.T) {
	svc := newRoutedService()
	defer svc.Close()

	if _, err := svc.Call(context.Background(), "add", 1); err == nil {
		t.Fatal("expected arity error")
	}
	if _, err := svc.Call(context.Background(), "add", 1, 2, 3); err == nil {
		t.Fatal("expected arity error for extra args")
	}
}

func TestRouterNumericConversion(t *testing.T) {
	svc := newRoutedService()
	defer svc.Close()

	// Decoded wire integers arrive as int64.
	out, err := svc.Call(context.Background(), "add", int64(4), int64(6))
	if err != nil {
		t.Fatalf("int64 args failed: %v", err)
	}
	if out != 10 {
		t.Fatalf("expected 10, got %v", out)
	}
}

func TestRouterRefusesIntToString(t *testing.T) {
	svc := newRoutedService()
	defer svc.Close()

	if _, err := svc.Call(context.Background(), "note", 65); err == nil {
		t.Fatal("expected int to string conversion to be refused")
	}
}

func TestRouterVariadic(t *testing.T) {
	svc := newRoutedService()
	defer svc.Close()
	ctx := context.Background()

	out, err := svc.Call(ctx, "sum", 1, 2, 3)
	if err != nil {
		t.Fatalf("variadic failed: %v", err)
	}
	if out != 6 {
		t.Fatalf("expected 6, got %v", out)
	}

	out, err = svc.Call(ctx, "sum")
	if err != nil {
		t.Fatalf("empty variadic failed: %v", err)
	}
	if out != 0 {
		t.Fatalf("expected 0, got %v", out)
	}
}

func TestRouterSliceArgument(t *testing.T) {
	svc := newRoutedService()
	defer svc.Close()

	// A decoded wire list arrives as one []any argument.
	out, err := svc.Call(context.Background(), "batch", []any{int64(1), int64(2)})
	if err != nil {
		t.Fatalf("decoded list failed: %v", err)
	}
	if out != 3 {
		t.Fatalf("expected 3, got %v", out)
	}
}

func TestRouterRecoversPanic(t *testing.T) {
	svc := newRoutedService()
	defer svc.Close()

	_, err := svc.Call(context.Background(), "explode")
	if err == nil || !strings.Contains(err.Error(), "kaboom") {
		t.Fatalf("expected recovered panic error, got %v", err)
	}

	// The service keeps dispatching after a panic.
	if out, err := svc.Call(context.Background(), "add", 1, 2); err != nil || out != 3 {
		t.Fatalf("expected dispatch to survive the panic, got (%v, %v)", out, err)
	}
}
