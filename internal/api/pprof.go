// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package api

import (
	"fmt"
	"net"
	"net/http"
	"net/http/pprof"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

// profileRates tracks the block and mutex sampling rates changed at runtime.
type profileRates struct {
	mu            sync.Mutex
	blockRate     int
	mutexFraction int
}

func (p *profileRates) setBlock(w http.ResponseWriter, r *http.Request) {
	rate, ok := rateParam(w, r)
	if !ok {
		return
	}
	p.mu.Lock()
	p.blockRate = rate
	p.mu.Unlock()

	runtime.SetBlockProfileRate(rate)
	log.Info().Int("rate", rate).Msg("block profile rate changed")
	fmt.Fprintf(w, "block profile rate=%d\n", rate)
}

func (p *profileRates) setMutex(w http.ResponseWriter, r *http.Request) {
	fraction, ok := rateParam(w, r)
	if !ok {
		return
	}
	p.mu.Lock()
	p.mutexFraction = fraction
	p.mu.Unlock()

	runtime.SetMutexProfileFraction(fraction)
	log.Info().Int("fraction", fraction).Msg("mutex profile fraction changed")
	fmt.Fprintf(w, "mutex profile fraction=%d\n", fraction)
}

func (p *profileRates) status(w http.ResponseWriter, _ *http.Request) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(w, "block rate=%d\nmutex fraction=%d\ngoroutines=%d\n", p.blockRate, p.mutexFraction, runtime.NumGoroutine())
}

// rateParam reads ?rate=, defaulting to 1. Zero disables sampling.
func rateParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("rate")
	if raw == "" {
		return 1, true
	}
	rate, err := strconv.Atoi(raw)
	if err != nil || rate < 0 {
		http.Error(w, "rate must be a non-negative integer", http.StatusBadRequest)
		return 0, false
	}
	return rate, true
}

// NewPprofServer returns the profiling listener. It is never mounted on the
// public API router.
func NewPprofServer(host string, port int) *http.Server {
	rates := &profileRates{}

	r := chi.NewRouter()
	r.HandleFunc("/debug/pprof/", pprof.Index)
	r.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	r.HandleFunc("/debug/pprof/profile", pprof.Profile)
	r.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	r.HandleFunc("/debug/pprof/trace", pprof.Trace)
	r.Handle("/debug/pprof/{profile}", http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		pprof.Handler(chi.URLParam(req, "profile")).ServeHTTP(w, req)
	}))
	r.Post("/debug/pprof/rates/block", rates.setBlock)
	r.Post("/debug/pprof/rates/mutex", rates.setMutex)
	r.Get("/debug/pprof/rates", rates.status)

	return &http.Server{
		Addr:              net.JoinHostPort(host, strconv.Itoa(port)),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
}
