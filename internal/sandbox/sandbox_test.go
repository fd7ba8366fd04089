package sandbox

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestRun(t *testing.T) {
	s := New(Options{})
	ret, err := s.Run(context.Background(), "test.js", "1 + 1")
	if err != nil {
		t.Fatal(err)
	}
	if ret != int64(2) {
		t.Fatalf("invalid result %v", ret)
	}
}

func TestConsole(t *testing.T) {
	s := New(Options{Name: "test"})
	_, err := s.Run(context.Background(), "test.js", `console.log("hello", 1, true); console.error("oops")`)
	if err != nil {
		t.Fatal(err)
	}
	output := s.Output()
	if len(output) != 2 {
		t.Fatalf("invalid output lines count(%d), should be 2", len(output))
	}
	if output[0].Level != "log" || output[0].Text != "hello 1 true" {
		t.Fatalf("invalid output line %v", output[0])
	}
	if output[1].String() != "error: oops" {
		t.Fatalf("invalid output line %v", output[1])
	}
}

func TestException(t *testing.T) {
	s := New(Options{})
	_, err := s.Run(context.Background(), "test.js", `throw new TypeError("bad value")`)
	var ex *Exception
	if !errors.As(err, &ex) {
		t.Fatalf("expected an exception, got %v", err)
	}
	if ex.Name != "TypeError" || ex.Message != "bad value" {
		t.Fatalf("invalid exception %+v", ex)
	}
	if ex.Error() != "TypeError: bad value" {
		t.Fatalf("invalid error message %q", ex.Error())
	}

	_, err = s.Run(context.Background(), "test.js", `throw "plain"`)
	if !errors.As(err, &ex) || ex.Message != "plain" {
		t.Fatalf("invalid exception %v", err)
	}
}

func TestInterrupt(t *testing.T) {
	s := New(Options{})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := s.Run(ctx, "loop.js", `for (;;) {}`)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	// the runtime is usable again
	ret, err := s.Run(context.Background(), "test.js", `"ok"`)
	if err != nil || ret != "ok" {
		t.Fatalf("runtime is not usable after an interrupt: %v %v", ret, err)
	}
}

func TestLocalStorage(t *testing.T) {
	s := New(Options{})
	ret, err := s.Run(context.Background(), "test.js", `
		localStorage.setItem("a", 1);
		localStorage.setItem("b", "x");
		localStorage.removeItem("b");
		localStorage.getItem("a") + ":" + localStorage.getItem("b") + ":" + localStorage.length
	`)
	if err != nil {
		t.Fatal(err)
	}
	if ret != "1:null:1" {
		t.Fatalf("invalid result %v", ret)
	}
}

func TestConcurrentRuns(t *testing.T) {
	s := New(Options{})
	if _, err := s.Run(context.Background(), "init.js", `var counter = 0`); err != nil {
		t.Fatal(err)
	}
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Run(context.Background(), "inc.js", `counter++`)
		}()
	}
	wg.Wait()
	ret, err := s.Run(context.Background(), "get.js", `counter`)
	if err != nil {
		t.Fatal(err)
	}
	if ret != int64(10) {
		t.Fatalf("invalid counter %v", ret)
	}
}
