// Package adminhttp mounts debugging routes for an in-flight driver
// session: a send-command form, a registry snapshot, a raw-line tail
// over SSE, a background-error poll, and a quick chart of a pin's
// recent samples. Generalized from the serial-port admin routes model
// (one http.ServeMux per session, attached by the caller's own server).
package adminhttp

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/google/uuid"
	"gonum.org/v1/gonum/stat"
	"tailscale.com/tsweb"

	controllino "github.com/Argon343/controllino"
	"github.com/Argon343/controllino/chandle"
	"github.com/Argon343/controllino/logx"
	"github.com/Argon343/controllino/recorder"
)

var sendCommandTemplate = template.Must(template.New("send-command").Parse(sendCommandHTML))

const sendCommandHTML = `<!DOCTYPE html>
<html>
<head><title>controllino admin</title></head>
<body>
<h1>Send raw command</h1>
<form method="post" action="send-command-api">
  <input name="command" placeholder="get_signal" />
  <input name="pin" placeholder="D30" />
  <button type="submit">Send</button>
</form>
</body>
</html>
`

// Server wraps a Driver with admin/debugging HTTP endpoints. Each Server
// is tied to one driver session and carries a uuid session id, generated
// by New, for log correlation.
type Server struct {
	driver    *controllino.Driver
	sessionID string
	rec       *recorder.Recorder
	nextLogID atomic.Uint64
}

// New creates an admin server for driver. The session id is generated
// once per Server and surfaced on the session route and in the
// send-command log line, for correlating logs across a long-running
// process that may open several driver sessions.
// rec may be nil, in which case commands submitted through the admin
// HTTP surface simply aren't logged.
func New(driver *controllino.Driver, rec *recorder.Recorder) *Server {
	return &Server{driver: driver, sessionID: uuid.NewString(), rec: rec}
}

// AttachRoutes mounts the admin endpoints on mux under tsweb's debug
// namespace.
func (s *Server) AttachRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	debug.HandleFunc("send-command", "send a raw command to the device", s.handleSendCommandForm)
	debug.HandleSilentFunc("send-command-api", s.handleSendCommandAPI)
	debug.HandleSilentFunc("registry", s.handleRegistry)
	debug.HandleSilentFunc("chart", s.handleChart)
	debug.HandleSilentFunc("session", s.handleSession)
	debug.HandleSilentFunc("tail", s.handleTail)
	debug.HandleSilentFunc("errors", s.handleErrors)
}

func (s *Server) handleSendCommandForm(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := sendCommandTemplate.Execute(&buf, nil); err != nil {
		http.Error(w, "failed to render template", http.StatusInternalServerError)
		return
	}
	io.Copy(w, &buf)
}

type genericCommand struct {
	name string
	args map[string]any
}

func (c genericCommand) Serialize() (string, map[string]any, error) {
	return c.name, c.args, nil
}

func (s *Server) handleSendCommandAPI(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	command := strings.TrimSpace(r.FormValue("command"))
	if command == "" {
		http.Error(w, "missing command", http.StatusBadRequest)
		return
	}

	args := map[string]any{}
	if pin := r.FormValue("pin"); pin != "" {
		args["pin"] = pin
	}
	if value := r.FormValue("value"); value != "" {
		args["value"] = value
	}

	logx.Logf("adminhttp: session %s submitting %q %v", s.sessionID, command, args)

	logID := s.nextLogID.Add(1)
	if err := s.rec.RecordSubmit(logID, command, fmt.Sprint(args["pin"])); err != nil {
		logx.Logf("adminhttp: record submit failed: %v", err)
	}

	h, err := s.driver.Submit(genericCommand{name: command, args: args})
	if err != nil {
		s.recordOutcome(logID, false, err.Error())
		http.Error(w, fmt.Sprintf("submit failed: %v", err), http.StatusInternalServerError)
		return
	}
	if !h.Wait(5 * time.Second) {
		s.recordOutcome(logID, false, "timed out")
		http.Error(w, "command timed out", http.StatusGatewayTimeout)
		return
	}
	v, err := h.Result()
	if err != nil {
		s.recordOutcome(logID, false, err.Error())
		http.Error(w, fmt.Sprintf("command failed: %v", err), http.StatusOK)
		return
	}
	s.recordOutcome(logID, true, fmt.Sprint(v))
	io.WriteString(w, fmt.Sprintf("ok: %v\n", v))
}

// recordOutcome logs the result of a previously submitted command. A nil
// recorder silently discards the call, so this is safe to call
// unconditionally.
func (s *Server) recordOutcome(logID uint64, ok bool, detail string) {
	if err := s.rec.RecordOutcome(logID, ok, detail); err != nil {
		logx.Logf("adminhttp: record outcome failed: %v", err)
	}
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"session_id": s.sessionID})
}

// handleRegistry dumps the engine's outstanding request table as JSON,
// for inspecting what's currently in flight or actively logging.
func (s *Server) handleRegistry(w http.ResponseWriter, r *http.Request) {
	snapshots := s.driver.Registry().All()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(snapshots)
}

// handleTail streams every raw line read off the transport as it
// arrives, as Server-Sent Events, until the client disconnects.
func (s *Server) handleTail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	id, lines := s.driver.SubscribeTail()
	defer s.driver.UnsubscribeTail(id)

	w.Write([]byte(": ping\n\n"))
	flusher.Flush()

	for {
		select {
		case line, ok := <-lines:
			if !ok {
				return
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", line); err != nil {
				return
			}
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

// handleErrors drains the driver's background error channel and reports
// whatever was outstanding as JSON. Draining means a repeated poll only
// ever shows errors accumulated since the previous call.
func (s *Server) handleErrors(w http.ResponseWriter, r *http.Request) {
	var messages []string
	if err := s.driver.ProcessErrors(); err != nil {
		messages = strings.Split(err.Error(), "\n")
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string][]string{"errors": messages})
}

// handleChart renders a line chart of a recording's samples so far,
// plus the running median/p90 via gonum/stat, using go-echarts.
// Query params: pin (required).
func (s *Server) handleChart(w http.ResponseWriter, r *http.Request) {
	pin := r.URL.Query().Get("pin")
	if pin == "" {
		http.Error(w, "missing pin query parameter", http.StatusBadRequest)
		return
	}

	_, entry, ok := s.driver.Registry().LookupByPin(pin)
	if !ok || entry.Recording == nil {
		http.Error(w, fmt.Sprintf("no active logging job for pin %s", pin), http.StatusNotFound)
		return
	}

	samples := recordingSnapshot(entry.Recording)
	xs := make([]string, len(samples))
	ys := make([]opts.LineData, len(samples))
	for i, v := range samples {
		xs[i] = strconv.Itoa(i)
		ys[i] = opts.LineData{Value: v}
	}

	median, p90 := 0.0, 0.0
	if len(samples) > 0 {
		sorted := make([]float64, len(samples))
		for i, v := range samples {
			sorted[i] = float64(v)
		}
		median = stat.Quantile(0.5, stat.Empirical, sorted, nil)
		p90 = stat.Quantile(0.9, stat.Empirical, sorted, nil)
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "controllino sample chart", Theme: "dark"}),
		charts.WithTitleOpts(opts.Title{
			Title:    fmt.Sprintf("Samples for %s", pin),
			Subtitle: fmt.Sprintf("n=%d median=%.1f p90=%.1f", len(samples), median, p90),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	line.SetXAxis(xs).AddSeries("value", ys)

	var buf bytes.Buffer
	if err := line.Render(&buf); err != nil {
		http.Error(w, fmt.Sprintf("failed to render chart: %v", err), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(buf.Bytes())
}

// recordingSnapshot reads whatever samples are available, whether the
// recording has already terminated or is still actively logging.
func recordingSnapshot(rec *chandle.Recording) []int {
	if rec.Done() {
		result, err := rec.Result()
		if err != nil {
			return nil
		}
		return result.Values
	}
	return rec.Snapshot()
}
