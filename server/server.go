package server

import (
	"context"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"sharedauto/session"
)

var upgrader = websocket.Upgrader{}

const (
	// Time allowed to write a message to the peer.
	writeWait = 1 * time.Second
	// Time to wait before force close on connection.
	closeGracePeriod = 10 * time.Second
	// Minimum interval between published frames; faster updates are dropped.
	publishResolution = 100 * time.Millisecond
)

// Server streams step telemetry to a client over a websocket and exposes
// the prometheus endpoint. It serves a single observer of a single
// session: the update channel has one consumer, so concurrent clients
// would starve each other. Fan-out belongs in a future muxing layer if it
// is ever needed.
type Server struct {
	addr    string
	updates <-chan session.StepResult
	metrics *Metrics
}

func NewServer(addr string, updates <-chan session.StepResult, metrics *Metrics) *Server {
	return &Server{
		addr:    addr,
		updates: updates,
		metrics: metrics,
	}
}

// Serve blocks until the listener fails or ctx is cancelled.
func (server *Server) Serve(ctx context.Context) error {
	router := mux.NewRouter()
	router.HandleFunc("/", server.serveIndex).Methods(http.MethodGet)
	router.HandleFunc("/ws", server.serveWebsocket)
	router.Handle("/metrics", server.metrics.Handler()).Methods(http.MethodGet)

	srv := &http.Server{
		Addr:    server.addr,
		Handler: router,
	}

	errs := make(chan error, 1)
	go func() {
		errs <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), closeGracePeriod)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errs:
		return fmt.Errorf("serve: %w", err)
	}
}

// serveWebsocket publishes step telemetry to the client.
func (server *Server) serveWebsocket(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		log.Error("websocket upgrade", "error", err)
		return
	}

	defer server.closeWebsocket(ws)
	server.publishUpdates(ws)
}

// publishUpdates forwards step results as JSON frames. Updates arriving
// faster than the publish resolution are dropped rather than queued, so a
// slow client cannot back-pressure the control loop.
func (server *Server) publishUpdates(ws *websocket.Conn) {
	last := time.Now()
	for res := range server.updates {
		if time.Since(last) < publishResolution {
			continue
		}
		last = time.Now()

		if err := ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
			log.Error("websocket deadline", "error", err)
			return
		}
		if err := ws.WriteJSON(res); err != nil {
			log.Error("websocket write", "error", err)
			return
		}
	}
}

func (server *Server) closeWebsocket(ws *websocket.Conn) {
	_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
	_ = ws.WriteMessage(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	ws.Close()
}

// The index page is a bare telemetry console: it opens the websocket and
// appends each frame. Rendering proper is an external collaborator's
// concern; this exists so a browser can watch a run without tooling.
var indexTemplate = template.Must(template.New("index").Parse(`<!DOCTYPE html>
<html>
<head><title>sharedauto telemetry</title></head>
<body>
<pre id="frames"></pre>
<script>
const ws = new WebSocket("ws://" + location.host + "/ws");
const pre = document.getElementById("frames");
ws.onmessage = (ev) => {
	pre.textContent = ev.data + "\n" + pre.textContent;
};
</script>
</body>
</html>
`))

func (server *Server) serveIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/html")
	if err := indexTemplate.Execute(w, nil); err != nil {
		_, _ = w.Write([]byte(err.Error()))
	}
}
