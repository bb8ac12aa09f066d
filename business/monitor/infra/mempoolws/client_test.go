package mempoolws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fd1az/satsend/internal/logger"
)

const (
	addrA = "tb1qunjkws5z3jxgh268c840kytl5622fwzf35k068"
	addrB = "tb1qw508d6qejxtdg4y5r3zarvary0c5xw7kxpjzsx"
)

// pushServer records the first subscription and answers with frames.
func pushServer(t *testing.T, subs chan<- trackRequest, frames ...string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "")

		ctx := context.Background()
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		var req trackRequest
		if json.Unmarshal(data, &req) == nil {
			subs <- req
		}
		for _, f := range frames {
			if err := conn.Write(ctx, websocket.MessageText, []byte(f)); err != nil {
				return
			}
		}
		for {
			if _, _, err := conn.Read(ctx); err != nil {
				return
			}
		}
	}))
}

func wsURL(s *httptest.Server) string {
	return "ws" + strings.TrimPrefix(s.URL, "http")
}

func collectHints(c *Client) <-chan string {
	hints := make(chan string, 8)
	c.OnHint(func(address string) { hints <- address })
	return hints
}

func TestClient_SubscribesOnConnectAndHints(t *testing.T) {
	subs := make(chan trackRequest, 1)
	server := pushServer(t, subs,
		`{"conversions":{"USD":60000}}`,
		`{"multi-address-transactions":{"`+addrB+`":{"mempool":[{"txid":"aa"}],"confirmed":[],"removed":[]},"`+addrA+`":{"mempool":[],"confirmed":[],"removed":[]}}}`,
	)
	defer server.Close()

	c, err := NewClient(wsURL(server), logger.Nop())
	require.NoError(t, err)
	defer c.Close()
	hints := collectHints(c)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	assert.Error(t, c.Track(ctx, []string{addrA, addrB}), "not connected yet")
	c.Start(ctx)

	select {
	case req := <-subs:
		assert.Equal(t, []string{addrA, addrB}, req.TrackAddresses)
	case <-time.After(3 * time.Second):
		t.Fatal("no subscription received")
	}

	select {
	case got := <-hints:
		assert.Equal(t, addrB, got, "only addresses with activity are hinted")
	case <-time.After(3 * time.Second):
		t.Fatal("no hint received")
	}

	select {
	case got := <-hints:
		t.Fatalf("unexpected hint for %s", got)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestClient_BlockPushHintsEveryTrackedAddress(t *testing.T) {
	subs := make(chan trackRequest, 1)
	server := pushServer(t, subs, `{"block-transactions":[{"txid":"bb"}]}`)
	defer server.Close()

	c, err := NewClient(wsURL(server), logger.Nop())
	require.NoError(t, err)
	defer c.Close()
	hints := collectHints(c)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_ = c.Track(ctx, []string{addrA, addrB})
	c.Start(ctx)
	<-subs

	var got []string
	for range 2 {
		select {
		case a := <-hints:
			got = append(got, a)
		case <-time.After(3 * time.Second):
			t.Fatal("missing hint")
		}
	}
	assert.ElementsMatch(t, []string{addrA, addrB}, got)
}

func TestClient_ActiveIgnoresUnrelatedFrames(t *testing.T) {
	c := &Client{addresses: []string{addrA}}

	var msg pushMessage
	require.NoError(t, json.Unmarshal([]byte(`{"mempoolInfo":{"size":10}}`), &msg))
	assert.Empty(t, c.active(msg))

	require.NoError(t, json.Unmarshal([]byte(`{"address-transactions":[{"txid":"cc"}]}`), &msg))
	assert.Equal(t, []string{addrA}, c.active(msg))
}
