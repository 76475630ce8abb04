package server

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/loykin/taskvisor/internal/metrics"
	"github.com/loykin/taskvisor/internal/process"
	"github.com/loykin/taskvisor/internal/queue"
	"github.com/loykin/taskvisor/internal/supervisor"
	"github.com/loykin/taskvisor/internal/task"
)

// Router provides embeddable HTTP handlers for the task queue and the
// process supervisor.
// Endpoints:
//   POST   {basePath}/tasks                  body: task template JSON
//   GET    {basePath}/tasks                  query: session=...&project=...&status=...
//   GET    {basePath}/tasks/pending         pending tasks in dispatch order
//   GET    {basePath}/tasks/:id
//   DELETE {basePath}/tasks/:id             cancel a pending or running task
//   GET    {basePath}/schedules
//   POST   {basePath}/schedules             body: schedule JSON
//   DELETE {basePath}/schedules/:id
//   POST   {basePath}/schedules/:id/enable  query: enabled=true|false (default true)
//   POST   {basePath}/processes             body: process spec JSON
//   GET    {basePath}/processes             live processes only
//   GET    {basePath}/processes/:id         status plus captured output
//   POST   {basePath}/processes/:id/kill
//   POST   {basePath}/processes/:id/wait    query: timeout=5s (optional)
//   GET    {basePath}/processes/:id/usage
// Exited processes leave the supervisor registry, so process GETs return 404
// once the monitor has reaped them.
// basePath may be empty or start with '/'; no trailing slash.

type Router struct {
	q        *queue.Queue
	sup      *supervisor.Supervisor
	basePath string
}

// NewRouter constructs a new Router with configurable basePath.
// Example basePath: "/api" results in /api/tasks, /api/schedules, /api/processes.
func NewRouter(q *queue.Queue, sup *supervisor.Supervisor, basePath string) *Router {
	bp := sanitizeBase(basePath)
	return &Router{q: q, sup: sup, basePath: bp}
}

// Handler returns an http.Handler powered by gin that can be mounted in any
// server/mux. /healthz and /metrics are served at the root, outside basePath.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	g.GET("/healthz", r.handleHealthz)
	g.GET("/metrics", gin.WrapH(metrics.Handler()))
	group := g.Group(r.basePath)
	group.POST("/tasks", r.handleTaskAdd)
	group.GET("/tasks", r.handleTaskList)
	group.GET("/tasks/pending", r.handleTaskPending)
	group.GET("/tasks/:id", r.handleTaskGet)
	group.DELETE("/tasks/:id", r.handleTaskCancel)
	group.GET("/schedules", r.handleScheduleList)
	group.POST("/schedules", r.handleScheduleAdd)
	group.DELETE("/schedules/:id", r.handleScheduleRemove)
	group.POST("/schedules/:id/enable", r.handleScheduleEnable)
	group.POST("/processes", r.handleProcessSpawn)
	group.GET("/processes", r.handleProcessList)
	group.GET("/processes/:id", r.handleProcessGet)
	group.POST("/processes/:id/kill", r.handleProcessKill)
	group.POST("/processes/:id/wait", r.handleProcessWait)
	group.GET("/processes/:id/usage", r.handleProcessUsage)
	return g
}

// NewServer starts a standalone HTTP server on addr using this router.
// The returned server can be shut down via http.Server's Close or Shutdown.
func NewServer(addr, basePath string, q *queue.Queue, sup *supervisor.Supervisor) (*http.Server, error) {
	r := NewRouter(q, sup, basePath)
	server := &http.Server{
		Addr:              addr,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() { _ = server.ListenAndServe() }()
	return server, nil
}

// --- Handlers ---

type errorResp struct {
	Error string `json:"error"`
}

type okResp struct {
	OK bool `json:"ok"`
}

func (r *Router) handleHealthz(c *gin.Context) {
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

func (r *Router) handleTaskAdd(c *gin.Context) {
	var tmpl task.Template
	if err := c.ShouldBindJSON(&tmpl); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
		return
	}
	t, err := r.q.Add(c.Request.Context(), tmpl)
	if err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, t)
}

func (r *Router) handleTaskList(c *gin.Context) {
	f := queue.Filter{
		SessionID: c.Query("session"),
		ProjectID: c.Query("project"),
	}
	if s := c.Query("status"); s != "" {
		st := task.Status(s)
		if !st.Valid() {
			writeJSON(c, http.StatusBadRequest, errorResp{Error: "unknown status: " + s})
			return
		}
		f.Status = st
	}
	writeJSON(c, http.StatusOK, r.q.List(f))
}

func (r *Router) handleTaskPending(c *gin.Context) {
	writeJSON(c, http.StatusOK, r.q.PendingInOrder())
}

func (r *Router) handleTaskGet(c *gin.Context) {
	t, err := r.q.Get(c.Param("id"))
	if err != nil {
		writeJSON(c, taskErrStatus(err), errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, t)
}

func (r *Router) handleTaskCancel(c *gin.Context) {
	if err := r.q.Cancel(c.Request.Context(), c.Param("id")); err != nil {
		writeJSON(c, taskErrStatus(err), errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

func (r *Router) handleScheduleList(c *gin.Context) {
	writeJSON(c, http.StatusOK, r.q.Schedules())
}

func (r *Router) handleScheduleAdd(c *gin.Context) {
	var s task.Schedule
	if err := c.ShouldBindJSON(&s); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
		return
	}
	added, err := r.q.AddSchedule(c.Request.Context(), s)
	if err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, added)
}

func (r *Router) handleScheduleRemove(c *gin.Context) {
	if err := r.q.RemoveSchedule(c.Request.Context(), c.Param("id")); err != nil {
		writeJSON(c, taskErrStatus(err), errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

func (r *Router) handleScheduleEnable(c *gin.Context) {
	enabled := true
	if v := c.Query("enabled"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid enabled: " + v})
			return
		}
		enabled = b
	}
	if err := r.q.EnableSchedule(c.Request.Context(), c.Param("id"), enabled); err != nil {
		writeJSON(c, taskErrStatus(err), errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

// processResp is a process snapshot plus its captured output.
type processResp struct {
	process.Info
	Output string `json:"output,omitempty"`
}

func (r *Router) handleProcessSpawn(c *gin.Context) {
	var spec process.Spec
	if err := c.ShouldBindJSON(&spec); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
		return
	}
	if spec.WorkDir != "" && !isSafeAbsPath(spec.WorkDir) {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid work_dir: must be absolute path without traversal"})
		return
	}
	h, err := r.sup.Spawn(c.Request.Context(), spec, nil)
	if err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, h.Snapshot())
}

func (r *Router) handleProcessList(c *gin.Context) {
	writeJSON(c, http.StatusOK, r.sup.List())
}

func (r *Router) handleProcessGet(c *gin.Context) {
	id, ok := parseProcessID(c)
	if !ok {
		return
	}
	h, ok := r.sup.Handle(id)
	if !ok {
		writeJSON(c, http.StatusNotFound, errorResp{Error: supervisor.ErrNotFound.Error()})
		return
	}
	writeJSON(c, http.StatusOK, processResp{Info: h.Snapshot(), Output: h.Output()})
}

func (r *Router) handleProcessKill(c *gin.Context) {
	id, ok := parseProcessID(c)
	if !ok {
		return
	}
	if err := r.sup.Kill(id); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

func (r *Router) handleProcessWait(c *gin.Context) {
	id, ok := parseProcessID(c)
	if !ok {
		return
	}
	var timeout time.Duration
	if v := c.Query("timeout"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid timeout: " + v})
			return
		}
		timeout = d
	}
	info, err := r.sup.WaitID(c.Request.Context(), id, timeout)
	switch {
	case errors.Is(err, supervisor.ErrNotFound):
		writeJSON(c, http.StatusNotFound, errorResp{Error: err.Error()})
	case errors.Is(err, supervisor.ErrWaitTimeout):
		writeJSON(c, http.StatusRequestTimeout, errorResp{Error: err.Error()})
	case err != nil:
		writeJSON(c, http.StatusBadRequest, errorResp{Error: err.Error()})
	default:
		writeJSON(c, http.StatusOK, info)
	}
}

func (r *Router) handleProcessUsage(c *gin.Context) {
	id, ok := parseProcessID(c)
	if !ok {
		return
	}
	u, err := r.sup.Usage(id)
	if err != nil {
		if errors.Is(err, supervisor.ErrNotFound) {
			writeJSON(c, http.StatusNotFound, errorResp{Error: err.Error()})
			return
		}
		writeJSON(c, http.StatusBadRequest, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, u)
}

func parseProcessID(c *gin.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid process id: " + c.Param("id")})
		return 0, false
	}
	return id, true
}

func taskErrStatus(err error) int {
	if errors.Is(err, queue.ErrTaskNotFound) || errors.Is(err, queue.ErrScheduleNotFound) {
		return http.StatusNotFound
	}
	return http.StatusBadRequest
}
