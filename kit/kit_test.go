package kit

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestChain_Order(t *testing.T) {
	var order []string

	mw := func(name string) Middleware {
		return func(next Endpoint) Endpoint {
			return func(ctx context.Context, req any) (any, error) {
				order = append(order, name+"_before")
				resp, err := next(ctx, req)
				order = append(order, name+"_after")
				return resp, err
			}
		}
	}

	base := func(_ context.Context, _ any) (any, error) {
		order = append(order, "endpoint")
		return "ok", nil
	}

	resp, err := Chain(mw("a"), mw("b"))(base)(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if resp != "ok" {
		t.Fatalf("response: got %v", resp)
	}
	want := "a_before b_before endpoint b_after a_after"
	if got := strings.Join(order, " "); got != want {
		t.Fatalf("order: got %q, want %q", got, want)
	}
}

func TestRecover(t *testing.T) {
	ep := Chain(Recover())(func(context.Context, any) (any, error) {
		panic("boom")
	})
	_, err := ep(context.Background(), nil)
	if err == nil || !strings.Contains(err.Error(), "panic: boom") {
		t.Fatalf("Recover: got %v", err)
	}
}

func TestLogging_PassesThrough(t *testing.T) {
	errFail := errors.New("fail")
	ep := Logging(nil, "test")(func(context.Context, any) (any, error) { return nil, errFail })
	if _, err := ep(context.Background(), nil); !errors.Is(err, errFail) {
		t.Fatalf("error: got %v, want %v", err, errFail)
	}
}

func TestContext(t *testing.T) {
	ctx := context.Background()
	if GetTransport(ctx) != "http" || GetRequestID(ctx) != "" {
		t.Fatal("defaults")
	}
	ctx = WithRequestID(WithTransport(ctx, "mcp"), "req_1")
	if GetTransport(ctx) != "mcp" || GetRequestID(ctx) != "req_1" {
		t.Fatalf("got %q %q", GetTransport(ctx), GetRequestID(ctx))
	}
}

func TestInputSchema(t *testing.T) {
	s := InputSchema(map[string]any{"x": map[string]any{"type": "string"}}, nil)
	if _, ok := s["required"]; ok {
		t.Error("no required list expected")
	}
	s = InputSchema(nil, []string{"x"})
	if r, _ := s["required"].([]string); len(r) != 1 {
		t.Errorf("required: got %v", s["required"])
	}
}
