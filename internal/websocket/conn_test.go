package websocket

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"studyrooms-backend/internal/models"
)

func TestPending_TakesQueuedFramesInOrder(t *testing.T) {
	c := testConn("Alice", 4)
	c.enqueue([]byte("one"))
	c.enqueue([]byte("two"))

	got := c.pending()
	if len(got) != 2 || string(got[0]) != "one" || string(got[1]) != "two" {
		t.Fatalf("Unexpected pending frames %q", got)
	}
	if more := c.pending(); len(more) != 0 {
		t.Errorf("Expected buffer to be empty, got %q", more)
	}
}

func TestWritePump_FlushesQueuedFramesBeforeClosing(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		c := newConn(models.Identity{UserID: uuid.New(), UserName: "Alice"}, ws, 8, 0)
		for i := 0; i < 3; i++ {
			c.enqueue([]byte(fmt.Sprintf(`{"n":%d}`, i)))
		}
		c.close()
		c.writePump()
	}))
	defer srv.Close()

	client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer client.Close()
	_ = client.SetReadDeadline(time.Now().Add(5 * time.Second))

	for i := 0; i < 3; i++ {
		_, data, err := client.ReadMessage()
		if err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
		if want := fmt.Sprintf(`{"n":%d}`, i); string(data) != want {
			t.Errorf("frame %d: got %s, want %s", i, data, want)
		}
	}

	_, _, err = client.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		t.Errorf("Expected normal close after queued frames, got %v", err)
	}
}
