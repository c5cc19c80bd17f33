package scripting

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestGojaEngine_ContextCancellation(t *testing.T) {
	engine := NewEngine()

	ctx, cancel := context.WithTimeout(context.Background(), 25*time.Millisecond)
	defer cancel()

	if _, err := engine.Execute(ctx, "while (true) {}"); err == nil || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected context deadline error, got %v", err)
	}

	if _, err := engine.Execute(context.Background(), "1 + 1"); err != nil {
		t.Fatalf("engine should recover after cancellation, got %v", err)
	}
}

func TestGojaEngine_ImmediateCancel(t *testing.T) {
	engine := NewEngine()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := engine.Execute(ctx, "42"); err == nil || !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context canceled error, got %v", err)
	}
}

func TestGojaEngine_Call(t *testing.T) {
	engine := NewEngine()
	if _, err := engine.Execute(context.Background(), "function add(a, b) { return a + b }; var x = 1"); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	got, err := engine.Call(context.Background(), "add", 2, 3)
	if err != nil {
		t.Fatalf("Call() error = %v", err)
	}
	if got != int64(5) {
		t.Fatalf("add(2, 3) = %#v", got)
	}
	if _, err := engine.Call(context.Background(), "x"); !errors.Is(err, ErrNotFunction) {
		t.Fatalf("expected ErrNotFunction, got %v", err)
	}
}

type recordingHost struct {
	title string
	logs  []string
}

func (h *recordingHost) Title() string  { return h.title }
func (h *recordingHost) Log(msg string) { h.logs = append(h.logs, msg) }

func TestFilterApply(t *testing.T) {
	host := &recordingHost{title: "Chapter 9"}
	script := `
function transform(text, page, rank) {
	if (rank === 1) { return ""; }
	if (page === 2) { return null; }
	log("panel " + page + "/" + rank);
	return text.toUpperCase() + " (" + recap.title + ")";
}`
	f, err := NewFilter(context.Background(), script, host)
	if err != nil {
		t.Fatalf("NewFilter() error = %v", err)
	}
	ctx := context.Background()
	cases := []struct {
		text       string
		page, rank int
		want       string
	}{
		{"hello", 0, 0, "HELLO (Chapter 9)"},
		{"gone", 0, 1, ""},
		{"kept", 2, 0, "kept"},
	}
	for _, tc := range cases {
		got, err := f.Apply(ctx, tc.text, tc.page, tc.rank)
		if err != nil {
			t.Fatalf("Apply(%q) error = %v", tc.text, err)
		}
		if got != tc.want {
			t.Errorf("Apply(%q) = %q, want %q", tc.text, got, tc.want)
		}
	}
	if len(host.logs) != 1 || host.logs[0] != "panel 0/0" {
		t.Fatalf("unexpected logs: %v", host.logs)
	}

	fn := f.Func(ctx)
	if got, _ := fn("x", 0, 0); got != "X (Chapter 9)" {
		t.Fatalf("Func() result = %q", got)
	}
}

func TestFilterRejectsBadScripts(t *testing.T) {
	ctx := context.Background()
	if _, err := NewFilter(ctx, "var transform = 3", nil); !errors.Is(err, ErrNotFunction) {
		t.Fatalf("expected ErrNotFunction, got %v", err)
	}
	if _, err := NewFilter(ctx, "function (", nil); err == nil {
		t.Fatalf("expected syntax error")
	}

	f, err := NewFilter(ctx, "function transform() { return 42 }", nil)
	if err != nil {
		t.Fatalf("NewFilter() error = %v", err)
	}
	if _, err := f.Apply(ctx, "x", 0, 0); err == nil {
		t.Fatalf("non-string result should fail")
	}
}

func TestFilterTimeout(t *testing.T) {
	f, err := NewFilter(context.Background(), "function transform() { while (true) {} }", nil)
	if err != nil {
		t.Fatalf("NewFilter() error = %v", err)
	}
	f.timeout = 20 * time.Millisecond
	if _, err := f.Apply(context.Background(), "x", 0, 0); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline, got %v", err)
	}
}

func TestLoadFilter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "filter.js")
	if err := os.WriteFile(path, []byte("function transform(t) { return t.trim() }"), 0o644); err != nil {
		t.Fatal(err)
	}
	f, err := LoadFilter(context.Background(), path, nil)
	if err != nil {
		t.Fatalf("LoadFilter() error = %v", err)
	}
	if got, _ := f.Apply(context.Background(), "  hi ", 0, 0); got != "hi" {
		t.Fatalf("Apply() = %q", got)
	}
	if _, err := LoadFilter(context.Background(), path+".missing", nil); err == nil {
		t.Fatalf("expected read error")
	}
}
