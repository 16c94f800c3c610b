package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"chainjobs/internal/task/scheduler"
	"chainjobs/internal/toggle"
	logx "chainjobs/pkg/logx"
)

// Handler builds the router. Toggle routes are registered per task known
// at construction time.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(s.requestLog)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeText(w, http.StatusOK, "ok")
	})

	r.Group(func(r chi.Router) {
		r.Use(withAuth(s.cfg.Token))

		r.Get("/check_connect", s.checkConnect)
		for _, t := range s.ctl.Tasks() {
			name := t.Name
			r.Post("/start_"+name, s.toggleFixed(name, true))
			r.Post("/stop_"+name, s.toggleFixed(name, false))
		}

		r.Get("/tasks", s.listTasks)
		r.Post("/tasks/{name}/start", s.toggleParam(true))
		r.Post("/tasks/{name}/stop", s.toggleParam(false))
		r.Get("/runs", s.listRuns)

		if s.metrics != nil {
			r.Method(http.MethodGet, "/metrics", s.metrics)
		}
		if s.cfg.Pprof {
			r.Mount("/debug", middleware.Profiler())
		}
	})
	return r
}

func (s *Server) checkConnect(w http.ResponseWriter, r *http.Request) {
	version, err := s.ctl.CheckConnectivity(r.Context())
	if err != nil {
		writeText(w, http.StatusBadGateway, err.Error())
		return
	}
	writeText(w, http.StatusOK, version)
}

func (s *Server) toggleFixed(name string, on bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.toggle(w, r, name, on)
	}
}

func (s *Server) toggleParam(on bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.toggle(w, r, chi.URLParam(r, "name"), on)
	}
}

type toggleResponse struct {
	Task    string `json:"task"`
	Enabled bool   `json:"enabled"`
}

func (s *Server) toggle(w http.ResponseWriter, r *http.Request, name string, on bool) {
	ctx := toggle.WithActor(r.Context(), r.RemoteAddr)
	var err error
	if on {
		err = s.ctl.Enable(ctx, name)
	} else {
		err = s.ctl.Disable(ctx, name)
	}
	switch {
	case errors.Is(err, toggle.ErrUnknownTask):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
	case err != nil:
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
	default:
		writeJSON(w, http.StatusOK, toggleResponse{Task: name, Enabled: on})
	}
}

func (s *Server) listTasks(w http.ResponseWriter, _ *http.Request) {
	tasks := s.ctl.Tasks()
	if tasks == nil {
		tasks = []scheduler.TaskInfo{}
	}
	writeJSON(w, http.StatusOK, tasks)
}

type runView struct {
	RunID      string    `json:"run_id"`
	Task       string    `json:"task"`
	Function   string    `json:"function"`
	Started    time.Time `json:"started"`
	DurationMS int64     `json:"duration_ms"`
	OK         bool      `json:"ok"`
	Output     string    `json:"output,omitempty"`
	Error      string    `json:"error,omitempty"`
}

func (s *Server) listRuns(w http.ResponseWriter, _ *http.Request) {
	out := []runView{}
	if s.runs != nil {
		for _, res := range s.runs.History() {
			v := runView{
				RunID:      res.RunID,
				Task:       res.Task,
				Function:   res.Function,
				Started:    res.Started,
				DurationMS: res.Duration.Milliseconds(),
				OK:         res.OK(),
			}
			if len(res.Output) > 0 {
				v.Output = hexutil.Encode(res.Output)
			}
			if res.Err != nil {
				v.Error = res.Err.Error()
			}
			out = append(out, v)
		}
	}
	writeJSON(w, http.StatusOK, out)
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeText(w http.ResponseWriter, status int, s string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(s))
}

func (s *Server) requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Debug("http request",
			logx.String("method", r.Method),
			logx.String("path", r.URL.Path),
			logx.Int("status", ww.Status()),
			logx.String("remote", r.RemoteAddr),
			logx.Duration("took", time.Since(start)),
		)
	})
}
