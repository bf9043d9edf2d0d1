package server

import (
	"encoding/base64"
	"net/http"
	"strings"

	"github.com/gezibash/arc-ledger/pkg/identity"
)

// PutSignKeyRequest is the body of POST /put/signkey.
type PutSignKeyRequest struct {
	Hash    string `json:"hash"`
	SignKey string `json:"signkey"`
}

// PutBoxKeyRequest is the body of POST /put/boxkey.
type PutBoxKeyRequest struct {
	Hash   string `json:"hash"`
	BoxKey string `json:"boxkey"`
}

// PutStorageAddressRequest is the body of POST /put/ipfsaddr.
type PutStorageAddressRequest struct {
	Hash    string `json:"hash"`
	Address string `json:"ipfsaddr"`
}

// The body of POST /register/username/{username} is the raw stable hash.
func (s *Server) handleRegisterUsername(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	username := r.PathValue("username")
	if err := s.directory.Register(r.Context(), username, strings.TrimSpace(string(body))); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleIsUsernameRegistered(w http.ResponseWriter, r *http.Request) {
	ok, err := s.directory.IsRegistered(r.Context(), r.PathValue("username"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeBool(w, ok)
}

func (s *Server) handlePutSignKey(w http.ResponseWriter, r *http.Request) {
	var req PutSignKeyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.directory.PutSigningKey(r.Context(), req.Hash, req.SignKey); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handlePutBoxKey(w http.ResponseWriter, r *http.Request) {
	var req PutBoxKeyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.directory.PutBoxingKey(r.Context(), req.Hash, req.BoxKey); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handlePutStorageAddress(w http.ResponseWriter, r *http.Request) {
	var req PutStorageAddressRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.directory.PutStorageAddress(r.Context(), req.Hash, req.Address); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleUserHash(w http.ResponseWriter, r *http.Request) {
	h, err := s.directory.Hash(r.Context(), r.PathValue("username"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeText(w, h)
}

func (s *Server) handleUserSignKey(w http.ResponseWriter, r *http.Request) {
	pk, err := s.directory.SigningKey(r.Context(), r.PathValue("username"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeText(w, identity.EncodeBase64(pk))
}

func (s *Server) handleUserBoxKey(w http.ResponseWriter, r *http.Request) {
	key, err := s.directory.BoxingKey(r.Context(), r.PathValue("username"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeText(w, base64.StdEncoding.EncodeToString(key))
}

func (s *Server) handleUserStorageAddress(w http.ResponseWriter, r *http.Request) {
	addr, err := s.directory.StorageAddress(r.Context(), r.PathValue("username"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeText(w, addr)
}
