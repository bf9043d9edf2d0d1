package server

import (
	"errors"
	"net/http"

	"github.com/gezibash/arc-ledger/internal/ledger"
)

// RegisterGroupRequest is the body of POST /register/group.
type RegisterGroupRequest struct {
	GroupName string `json:"groupname"`
	Owner     string `json:"owner"`
	State     string `json:"state"`
}

func (s *Server) handleRegisterGroup(w http.ResponseWriter, r *http.Request) {
	var req RegisterGroupRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	err := s.ledger.Register(r.Context(), req.GroupName, req.Owner, req.State)
	// A taken name is ignored rather than rejected; existing clients expect
	// an empty 200. The ledger has already logged the collision.
	if err != nil && !errors.Is(err, ledger.ErrAlreadyExists) {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleIsGroupRegistered(w http.ResponseWriter, r *http.Request) {
	writeBool(w, s.ledger.Exists(r.PathValue("group")))
}

func (s *Server) handleGroupMembers(w http.ResponseWriter, r *http.Request) {
	members, err := s.ledger.Members(r.PathValue("group"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, members)
}

func (s *Server) handleGroupState(w http.ResponseWriter, r *http.Request) {
	state, err := s.ledger.CurrentState(r.PathValue("group"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeText(w, state)
}

func (s *Server) handleGroupOperation(w http.ResponseWriter, r *http.Request) {
	op, err := s.ledger.OperationAt(r.PathValue("group"), r.PathValue("state"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, op)
}

func (s *Server) handleGroupPrevState(w http.ResponseWriter, r *http.Request) {
	prev, err := s.ledger.StateBefore(r.PathValue("group"), r.PathValue("state"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeText(w, prev)
}

func (s *Server) handleGroupHistory(w http.ResponseWriter, r *http.Request) {
	history, err := s.ledger.History(r.PathValue("group"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, history)
}

func (s *Server) handleGroupInvite(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("group")
	var tx ledger.Transaction
	if err := decodeJSON(w, r, &tx); err != nil {
		s.writeError(w, r, err)
		return
	}
	rcpt, err := s.ledger.Submit(r.Context(), name, tx)
	if err != nil {
		s.log.WithGroup(name).InfoContext(r.Context(), "transition rejected",
			"reason", ledger.Reason(err), "appended", rcpt != nil)
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}
