package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	apisrv "github.com/compose-network/sequencer/server/api"
)

// handleHealth responds to health check requests.
func (a *App) handleHealth(w http.ResponseWriter, r *http.Request) {
	apisrv.WriteJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// handleReady reports readiness: the loop must be armed.
func (a *App) handleReady(w http.ResponseWriter, r *http.Request) {
	status := a.seq.Status()
	if !status.Running {
		apisrv.WriteJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "stopped",
		})
		return
	}
	apisrv.WriteJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
		"state":  status.State,
	})
}

// handleStatus returns the sequencer snapshot plus devnet chain info.
func (a *App) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := a.seq.Status()
	head := a.backend.Chain.Head()

	apisrv.WriteJSON(w, http.StatusOK, map[string]any{
		"sequencer":    status,
		"app_version":  Version,
		"chain_head":   head.Number,
		"archive_root": a.backend.Chain.TipArchiveRoot(),
	})
}

// handleFlush arms the one-shot flush flag.
func (a *App) handleFlush(w http.ResponseWriter, r *http.Request) {
	a.seq.Flush()
	apisrv.WriteJSON(w, http.StatusAccepted, map[string]any{"flushing": true})
}

func (a *App) handleStart(w http.ResponseWriter, r *http.Request) {
	if err := a.seq.Start(r.Context()); err != nil {
		apisrv.WriteError(w, r, http.StatusInternalServerError, "start_failed", err.Error(), nil)
		return
	}
	apisrv.WriteJSON(w, http.StatusOK, map[string]any{"running": true})
}

func (a *App) handleStop(w http.ResponseWriter, r *http.Request) {
	if err := a.seq.Stop(r.Context()); err != nil {
		apisrv.WriteError(w, r, http.StatusInternalServerError, "stop_failed", err.Error(), nil)
		return
	}
	apisrv.WriteJSON(w, http.StatusOK, map[string]any{"running": false})
}

// handleUpdateConfig applies a sequencer config update decoded on top of the
// current section; fields absent from the body keep their values. The
// timetable is rebuilt as part of the update.
func (a *App) handleUpdateConfig(w http.ResponseWriter, r *http.Request) {
	var section = a.cfg.Sequencer
	if err := json.NewDecoder(r.Body).Decode(&section); err != nil {
		apisrv.WriteError(w, r, http.StatusBadRequest, "bad_request", "invalid config body", err.Error())
		return
	}

	core, err := section.Core()
	if err != nil {
		apisrv.WriteError(w, r, http.StatusBadRequest, "invalid_config", err.Error(), nil)
		return
	}
	if err := a.seq.UpdateConfig(core); err != nil {
		apisrv.WriteError(w, r, http.StatusUnprocessableEntity, "invalid_config", err.Error(), nil)
		return
	}

	a.cfg.Sequencer = section
	apisrv.WriteJSON(w, http.StatusOK, a.seq.Status().Config)
}

// handleInjectTx feeds a raw payload into the devnet pool.
func (a *App) handleInjectTx(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil || len(payload) == 0 {
		apisrv.WriteError(w, r, http.StatusBadRequest, "bad_request", "empty tx payload", nil)
		return
	}

	hash := a.backend.Pool.Inject(payload)
	apisrv.WriteJSON(w, http.StatusAccepted, map[string]any{
		"hash": fmt.Sprintf("%#x", hash),
	})
}
