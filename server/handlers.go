package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
)

type claimRequest struct {
	TokenIDs []uint64 `json:"token_ids"`
}

type amountResponse struct {
	Amount uint64 `json:"amount"`
}

type depositRequest struct {
	Amount uint64 `json:"amount"`
}

type addressRequest struct {
	Address string `json:"address"`
}

type toggleRequest struct {
	Enabled bool `json:"enabled"`
}

type durationRequest struct {
	Seconds int64 `json:"seconds"`
}

type claimedResponse struct {
	Interval uint64 `json:"interval"`
	TokenID  uint64 `json:"token_id"`
	Claimed  bool   `json:"claimed"`
}

// decode reads a JSON body into v. An empty body leaves v unchanged.
func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("%w: %w", ErrBadRequest, err)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.engine.Status(r.Context()))
}

func (s *Server) handleIsClaimed(w http.ResponseWriter, r *http.Request) {
	interval, err := strconv.ParseUint(chi.URLParam(r, "interval"), 10, 64)
	if err != nil {
		s.fail(w, fmt.Errorf("%w: interval: %w", ErrBadRequest, err))
		return
	}
	tokenID, err := strconv.ParseUint(chi.URLParam(r, "tokenID"), 10, 64)
	if err != nil {
		s.fail(w, fmt.Errorf("%w: token id: %w", ErrBadRequest, err))
		return
	}
	claimed, err := s.engine.IsClaimed(interval, tokenID)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, claimedResponse{Interval: interval, TokenID: tokenID, Claimed: claimed})
}

func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	var req claimRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, err)
		return
	}
	caller, _ := Caller(r.Context())
	amount, err := s.engine.Claim(r.Context(), caller, req.TokenIDs)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, amountResponse{Amount: amount})
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	var req depositRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, err)
		return
	}
	caller, _ := Caller(r.Context())
	if err := s.engine.Deposit(r.Context(), caller, req.Amount); err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.engine.Status(r.Context()))
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	caller, _ := Caller(r.Context())
	amount, err := s.engine.Withdraw(r.Context(), caller)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, amountResponse{Amount: amount})
}

func (s *Server) handleChangeOwner(w http.ResponseWriter, r *http.Request) {
	var req addressRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, err)
		return
	}
	caller, _ := Caller(r.Context())
	s.respond(w, r, s.engine.ChangeOwner(r.Context(), caller, req.Address))
}

func (s *Server) handleSetRegistry(w http.ResponseWriter, r *http.Request) {
	var req addressRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, err)
		return
	}
	caller, _ := Caller(r.Context())
	s.respond(w, r, s.engine.SetRegistryAddress(r.Context(), caller, req.Address))
}

func (s *Server) handleSetAutomated(w http.ResponseWriter, r *http.Request) {
	var req toggleRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, err)
		return
	}
	caller, _ := Caller(r.Context())
	s.respond(w, r, s.engine.SetAutomated(r.Context(), caller, req.Enabled))
}

func (s *Server) handleSetPaused(w http.ResponseWriter, r *http.Request) {
	var req toggleRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, err)
		return
	}
	caller, _ := Caller(r.Context())
	s.respond(w, r, s.engine.SetPaused(r.Context(), caller, req.Enabled))
}

func (s *Server) handleIncrementInterval(w http.ResponseWriter, r *http.Request) {
	caller, _ := Caller(r.Context())
	s.respond(w, r, s.engine.IncrementInterval(r.Context(), caller))
}

func (s *Server) handleSetWindow(w http.ResponseWriter, r *http.Request) {
	var req durationRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, err)
		return
	}
	caller, _ := Caller(r.Context())
	s.respond(w, r, s.engine.SetPayoutWindowLength(r.Context(), caller, time.Duration(req.Seconds)*time.Second))
}

func (s *Server) handleSetIntervalLength(w http.ResponseWriter, r *http.Request) {
	var req durationRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, err)
		return
	}
	caller, _ := Caller(r.Context())
	s.respond(w, r, s.engine.SetIntervalLength(r.Context(), caller, time.Duration(req.Seconds)*time.Second))
}

// respond writes err, or the post-operation status on success.
func (s *Server) respond(w http.ResponseWriter, r *http.Request, err error) {
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.engine.Status(r.Context()))
}
