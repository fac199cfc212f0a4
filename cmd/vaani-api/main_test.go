package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"testing"

	"github.com/vaani-ai/vaani-live/pkg/config"
)

func TestRunMain_ReturnsNonZeroWhenConfigLoadFails(t *testing.T) {
	var stderr bytes.Buffer
	exitCode := runMain(context.Background(), &stderr, apiDeps{
		loadConfig: func() (config.Config, error) {
			return config.Config{}, errors.New("boom")
		},
		signalNotify: func(c chan<- os.Signal, sig ...os.Signal) {},
		signalStop:   func(c chan<- os.Signal) {},
	})

	if exitCode != 1 {
		t.Fatalf("exitCode=%d, want 1", exitCode)
	}
	if stderr.String() == "" {
		t.Fatal("expected stderr output for startup error")
	}
}

func TestBaseURLFromAddr(t *testing.T) {
	cases := []struct {
		addr string
		env  string
		want string
	}{
		{addr: ":8080", want: "http://localhost:8080"},
		{addr: "api.internal:8080", want: "http://api.internal:8080"},
		{addr: ":8080", env: "https://api.example.com/", want: "https://api.example.com"},
	}
	for _, tc := range cases {
		t.Setenv("VAANI_API_BASE_URL", tc.env)
		if got := baseURLFromAddr(tc.addr); got != tc.want {
			t.Fatalf("baseURLFromAddr(%q) = %q, want %q", tc.addr, got, tc.want)
		}
	}
}
