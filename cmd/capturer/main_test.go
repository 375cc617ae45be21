package main

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dennisdiepolder/monti/callmonitor/internal/types"
	"github.com/rs/zerolog"
)

func TestRunRequiresSource(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetArgs([]string{"run", "--server", "http://127.0.0.1:1"})
	cmd.SetOut(&discard{})
	cmd.SetErr(&discard{})

	if err := cmd.Execute(); err == nil {
		t.Fatal("expected an error without sources")
	}
}

func TestRunRejectsTwoStdinSources(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetArgs([]string{"run", "--system", "-", "--mic", "-"})
	var errOut bytes.Buffer
	cmd.SetOut(&discard{})
	cmd.SetErr(&errOut)

	err := cmd.Execute()
	if err == nil {
		t.Fatal("expected an error when both sources read stdin")
	}
	if !strings.Contains(err.Error(), "stdin") {
		t.Errorf("expected stdin error, got %v", err)
	}
}

func TestRunStreamsFileToServer(t *testing.T) {
	var posts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.FormValue("callId") != "call-cli" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		posts.Add(1)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(types.EmptyUpdate())
	}))
	defer srv.Close()

	buf := make([]byte, 2*1600)
	for i := 0; i < 1600; i++ {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(i))
	}
	path := filepath.Join(t.TempDir(), "system.pcm")
	if err := os.WriteFile(path, buf, 0o600); err != nil {
		t.Fatal(err)
	}

	opts := runOptions{
		server:     srv.URL,
		callID:     "call-cli",
		system:     path,
		timeslice:  20 * time.Millisecond,
		sampleRate: 16000,
	}
	if err := run(context.Background(), opts, zerolog.Nop()); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if posts.Load() == 0 {
		t.Error("expected at least one chunk to be posted")
	}
}

func TestRunMissingSource(t *testing.T) {
	opts := runOptions{server: "http://127.0.0.1:1", system: filepath.Join(t.TempDir(), "nope.pcm")}
	if err := run(context.Background(), opts, zerolog.Nop()); err == nil {
		t.Fatal("expected an error for a missing source")
	}
}

type discard struct{}

func (*discard) Write(p []byte) (int, error) { return len(p), nil }
