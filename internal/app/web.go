// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/relabs-tech/thermostat/internal/env"
	"github.com/relabs-tech/thermostat/internal/thermostat"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // LAN dashboard, any origin
	},
}

// Snapshot is the combined payload pushed over the websocket.
type Snapshot struct {
	Reading env.Reading      `json:"reading"`
	State   thermostat.State `json:"state"`
}

// Status gives the web surface read-only access to the runtime.
type Status struct {
	Reading func() env.Reading
	State   func() thermostat.State
}

// NewWebHandler returns the read-only HTTP API:
//
//	GET /api/reading   latest reading, 503 when there is none
//	GET /api/settings  controller settings and status
//	GET /ws            snapshot stream, one message per push interval
func NewWebHandler(st Status, push time.Duration) http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/api/reading", func(w http.ResponseWriter, _ *http.Request) {
		reading := st.Reading()
		if !reading.Valid {
			http.Error(w, "no reading available", http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, reading)
	}).Methods(http.MethodGet)

	r.HandleFunc("/api/settings", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, st.State())
	}).Methods(http.MethodGet)

	r.HandleFunc("/ws", func(w http.ResponseWriter, req *http.Request) {
		streamSnapshots(w, req, st, push)
	})

	return r
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("web: json encode error: %v", err)
	}
}

func streamSnapshots(w http.ResponseWriter, r *http.Request, st Status, push time.Duration) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("web: websocket upgrade error: %v", err)
		return
	}
	defer conn.Close()

	// The stream is one way; reading only detects the client going away.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					log.Printf("web: websocket error: %v", err)
				}
				return
			}
		}
	}()

	ticker := time.NewTicker(push)
	defer ticker.Stop()

	for {
		if err := conn.WriteJSON(Snapshot{Reading: st.Reading(), State: st.State()}); err != nil {
			log.Printf("web: websocket write error: %v", err)
			return
		}
		select {
		case <-gone:
			return
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}
	}
}

// RunWeb serves the API on port until ctx is done.
func RunWeb(ctx context.Context, port int, st Status) error {
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      NewWebHandler(st, time.Second),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 0, // websocket streams are long lived
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Printf("web: server listening on %s", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("web: %w", err)
	}
	return nil
}
