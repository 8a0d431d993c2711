package main

import (
	"context"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/amirasaad/ledger/pkg/app"
	"github.com/amirasaad/ledger/webapi"
	"github.com/amirasaad/ledger/webapi/testutils"
	"github.com/stretchr/testify/suite"
)

// TestMain runs before any tests and applies globally for all tests in the package.
func TestMain(m *testing.M) {
	slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))
	os.Exit(m.Run())
}

type MainTestSuite struct {
	testutils.E2ETestSuite
}

func TestMainTestSuite(t *testing.T) {
	suite.Run(t, new(MainTestSuite))
}

func (s *MainTestSuite) TestServeUntilCancelled() {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	s.Require().NoError(err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- serve(ctx, s.App, webapi.SetupApp(s.App, nil), ln, nil) }()

	url := "http://" + ln.Addr().String() + "/"
	s.Eventually(func() bool {
		resp, err := http.Get(url) //nolint:noctx
		if err != nil {
			return false
		}
		resp.Body.Close() //nolint:errcheck
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 50*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		s.NoError(err)
	case <-time.After(15 * time.Second):
		s.Fail("server did not stop")
	}
}

func (s *MainTestSuite) TestNotFoundRoute() {
	resp := s.Do(http.MethodGet, "/doesnotexist", "")
	defer resp.Body.Close() //nolint:errcheck
	s.Equal(http.StatusNotFound, resp.StatusCode)
}

func (s *MainTestSuite) TestAppRejectsInvalidLedgerConfig() {
	cfg := testutils.TestConfig()
	cfg.Ledger.Currency = "usd"
	_, err := app.New(s.App.Deps, cfg)
	s.Error(err)
}

func TestEveryStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var calls atomic.Int32
	done := make(chan error, 1)
	go func() {
		done <- every(ctx, 10*time.Millisecond, func(context.Context) {
			if calls.Add(1) == 3 {
				cancel()
			}
		})
	}()
	select {
	case err := <-done:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("every did not stop")
	}
	if calls.Load() < 3 {
		t.Fatalf("expected at least 3 calls, got %d", calls.Load())
	}
}
