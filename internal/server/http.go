package server

import (
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/morezero/analytics-bridge/pkg/db"
)

const httpLogPrefix = "server:http"

const maxEventsLimit = 500

// HealthChecks holds the individual dependency checks.
type HealthChecks struct {
	Database bool `json:"database"`
	Comms    bool `json:"comms"`
}

// HealthOutput is the body of /health.
type HealthOutput struct {
	Status    string       `json:"status"`
	Checks    HealthChecks `json:"checks"`
	Timestamp string       `json:"timestamp"`
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleHome())
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	})
	mux.HandleFunc("/methods", s.handleMethodsHTTP)
	mux.HandleFunc("/events", s.handleEvents)
	mux.HandleFunc("/settings", s.handleSettings)
	if s.cfg.WSEnabled {
		mux.HandleFunc("/ws", s.handleWebSocket)
	}
	return mux
}

// health checks the database and the NATS connection.
func (s *Server) health(ctx context.Context) *HealthOutput {
	h := &HealthOutput{Timestamp: time.Now().UTC().Format(time.RFC3339)}
	if s.db != nil {
		if err := s.db.Ping(ctx); err != nil {
			slog.Warn(fmt.Sprintf("%s - database ping failed: %v", httpLogPrefix, err))
		} else {
			h.Checks.Database = true
		}
	}
	h.Checks.Comms = s.nc != nil && s.nc.IsConnected()
	h.Status = "unhealthy"
	if h.Checks.Database && h.Checks.Comms {
		h.Status = "healthy"
	}
	return h
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.HealthCheckTimeout)
	defer cancel()
	h := s.health(ctx)
	status := http.StatusOK
	if h.Status != "healthy" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, h)
}

func (s *Server) handleMethodsHTTP(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, NewMethodsOutput(s.dispatcher.Registry(), s.subject))
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > maxEventsLimit {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": fmt.Sprintf("limit must be an integer between 1 and %d", maxEventsLimit),
			})
			return
		}
		limit = n
	}
	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.HealthCheckTimeout)
	defer cancel()
	events, err := s.store.RecentEvents(ctx, limit)
	if err != nil {
		slog.Error(fmt.Sprintf("%s - recent events: %v", httpLogPrefix, err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to load events"})
		return
	}
	if events == nil {
		events = []db.Event{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

// settingsOutput is the body of /settings.
type settingsOutput struct {
	Settings       *db.Settings      `json:"settings"`
	UserProperties []db.UserProperty `json:"userProperties"`
}

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.HealthCheckTimeout)
	defer cancel()
	out, err := s.loadSettings(ctx)
	if err != nil {
		slog.Error(fmt.Sprintf("%s - settings: %v", httpLogPrefix, err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to load settings"})
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) loadSettings(ctx context.Context) (*settingsOutput, error) {
	st, err := s.store.Settings(ctx)
	if err != nil {
		return nil, err
	}
	props, err := s.store.UserProperties(ctx)
	if err != nil {
		return nil, err
	}
	if props == nil {
		props = []db.UserProperty{}
	}
	return &settingsOutput{Settings: st, UserProperties: props}, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error(fmt.Sprintf("%s - response encode: %v", httpLogPrefix, err))
	}
}

// homePageTemplate is the HTML for the bridge home page (white bg, black/blue text).
const homePageTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <meta name="viewport" content="width=device-width, initial-scale=1">
  <title>Analytics Bridge</title>
  <style>
    * { box-sizing: border-box; }
    body { background: #fff; color: #000; font-family: system-ui, sans-serif; margin: 0; padding: 2rem; line-height: 1.5; }
    h1, h2 { color: #0066cc; }
    .status-healthy { color: #0066cc; font-weight: bold; }
    .status-unhealthy { color: #cc0000; font-weight: bold; }
    table { border-collapse: collapse; width: 100%; max-width: 900px; margin-top: 0.5rem; }
    th, td { text-align: left; padding: 0.5rem 0.75rem; border: 1px solid #ccc; }
    th { background: #f0f4f8; color: #0066cc; }
    .stat { font-weight: bold; color: #0066cc; }
    .meta { color: #333; font-size: 0.9rem; margin-top: 1rem; }
    section { margin-bottom: 2rem; }
    .error { color: #cc0000; }
    code { font-size: 0.85rem; }
  </style>
</head>
<body>
  <h1>Analytics Bridge</h1>
  <p class="meta">{{.Methods.Channel}}@{{.Methods.Version}} on <code>{{.Methods.Subject}}</code></p>

  <section>
    <h2>Health</h2>
    <p>Status: <span class="status-{{.Health.Status}}">{{.Health.Status}}</span></p>
    <p>Database: {{if .Health.Checks.Database}}<span class="stat">OK</span>{{else}}<span class="error">Failed</span>{{end}}</p>
    <p>NATS: {{if .Health.Checks.Comms}}<span class="stat">OK</span>{{else}}<span class="error">Disconnected</span>{{end}}</p>
    <p>Timestamp: {{.Health.Timestamp}}</p>
  </section>

  <section>
    <h2>Methods</h2>
    <p>{{range $i, $m := .Methods.Methods}}{{if $i}}, {{end}}<code>{{$m}}</code>{{end}}</p>
  </section>

  <section>
    <h2>Settings</h2>
    {{if .SettingsError}}
    <p class="error">Could not load settings: {{.SettingsError}}</p>
    {{else}}
    <p>Collection enabled: <span class="stat">{{.Settings.Settings.CollectionEnabled}}</span></p>
    <p>Minimum session: {{.Settings.Settings.MinSessionMs}} ms, session timeout: {{.Settings.Settings.SessionTimeoutMs}} ms</p>
    <p>User id: {{with .Settings.Settings.UserID}}{{.}}{{else}}(none){{end}}, screen: {{with .Settings.Settings.ScreenName}}{{.}}{{else}}(none){{end}}</p>
    <p>User properties: <span class="stat">{{len .Settings.UserProperties}}</span></p>
    {{end}}
  </section>

  <section>
    <h2>Recent events</h2>
    {{if .EventsError}}
    <p class="error">Could not load events: {{.EventsError}}</p>
    {{else if not .Events}}
    <p>No events recorded.</p>
    {{else}}
    <table>
      <thead>
        <tr><th>Name</th><th>Parameters</th><th>User</th><th>Screen</th><th>Created</th></tr>
      </thead>
      <tbody>
        {{range .Events}}
        <tr>
          <td>{{.Name}}</td>
          <td><code>{{printf "%s" .Params}}</code></td>
          <td>{{with .UserID}}{{.}}{{end}}</td>
          <td>{{with .ScreenName}}{{.}}{{end}}</td>
          <td>{{.Created.Format "2006-01-02 15:04:05"}}</td>
        </tr>
        {{end}}
      </tbody>
    </table>
    {{end}}
  </section>
</body>
</html>
`

// homeData is the data passed to the home page template.
type homeData struct {
	Health        *HealthOutput
	Methods       *MethodsOutput
	Settings      *settingsOutput
	SettingsError string
	Events        []db.Event
	EventsError   string
}

// handleHome returns an HTTP handler for the bridge home page.
func (s *Server) handleHome() http.HandlerFunc {
	tmpl := template.Must(template.New("home").Parse(homePageTemplate))
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), s.cfg.HealthCheckTimeout)
		defer cancel()

		data := homeData{
			Health:  s.health(ctx),
			Methods: NewMethodsOutput(s.dispatcher.Registry(), s.subject),
		}
		if settings, err := s.loadSettings(ctx); err != nil {
			data.SettingsError = err.Error()
		} else {
			data.Settings = settings
		}
		if events, err := s.store.RecentEvents(ctx, 20); err != nil {
			data.EventsError = err.Error()
		} else {
			data.Events = events
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := tmpl.Execute(w, data); err != nil {
			slog.Error(fmt.Sprintf("%s - home template execute: %v", httpLogPrefix, err))
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
	}
}
