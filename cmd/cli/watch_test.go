package main

import (
	"bytes"
	"context"
	"net/http/httptest"
	"strings"
	gosync "sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	synchub "advodash/internal/sync"
)

type lockedBuffer struct {
	mu  gosync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestWatchStopsOnCancel(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/ws", synchub.WSHandler(synchub.NewHub()))
	srv := httptest.NewServer(r)
	defer srv.Close()

	wsURL, err := websocketURL(srv.URL, "/ws")
	require.NoError(t, err)

	out := &lockedBuffer{}
	e := &env{stdout: out}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- watch(ctx, e, wsURL, false) }()

	// connected once the welcome frame is printed
	require.Eventually(t, func() bool { return strings.Contains(out.String(), "welcome") },
		5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("watch kept reading after cancel")
	}
	assert.Error(t, ctx.Err())
}
