package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/kimhsiao/taskin/backend/internal/app"
	"github.com/kimhsiao/taskin/backend/internal/logging"
)

const shutdownTimeout = 5 * time.Second

// NewRouter registers every companion server route.
func NewRouter(tasks *TaskHandler, sync *SyncHandler, hub *WSHub) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{"status": "ok", "service": "taskin-desktop"})
	})

	mux.HandleFunc("GET /api/tasks", tasks.ListTasks)
	mux.HandleFunc("POST /api/tasks", tasks.CreateTask)
	mux.HandleFunc("PATCH /api/tasks/{id}", tasks.UpdateTask)
	mux.HandleFunc("DELETE /api/tasks/{id}", tasks.DeleteTask)
	mux.HandleFunc("GET /api/tasks/{id}/notes", tasks.TaskNotes)

	mux.HandleFunc("GET /api/projects", tasks.ListProjects)
	mux.HandleFunc("POST /api/projects", tasks.CreateProject)
	mux.HandleFunc("PATCH /api/projects/{id}", tasks.UpdateProject)
	mux.HandleFunc("DELETE /api/projects/{id}", tasks.DeleteProject)

	mux.HandleFunc("GET /api/sync/status", sync.GetStatus)
	mux.HandleFunc("POST /api/sync/now", sync.TriggerSync)
	mux.HandleFunc("PUT /api/sync/token", sync.SetToken)
	mux.HandleFunc("DELETE /api/sync/token", sync.DeleteToken)

	mux.HandleFunc("GET /ws", hub.ServeWS)

	return mux
}

// Serve runs the companion server for a until ctx is done: the scheduler,
// the websocket hub fed by the event bus, and the HTTP listener on addr.
func Serve(ctx context.Context, a *app.App, addr string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	hub := NewWSHub()
	go hub.Run(ctx)
	events, unsubscribe := a.Events.Subscribe(64)
	defer unsubscribe()
	go hub.Forward(ctx, events)

	if err := a.Scheduler.Start(ctx); err != nil {
		return err
	}
	defer a.Scheduler.Stop()

	router := NewRouter(
		NewTaskHandler(a.Tasks, a.UserID),
		NewSyncHandler(a.Scheduler, a.Tokens),
		hub,
	)
	server := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Info("Companion server listening", map[string]interface{}{"addr": addr})
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()
	logging.Info("Companion server shutting down")
	return server.Shutdown(shutdownCtx)
}
