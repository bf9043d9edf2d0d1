package server

import (
	"net/http"

	"github.com/gezibash/arc-ledger/internal/mailbox"
)

// SendMessageRequest is the body of POST /send/message.
type SendMessageRequest struct {
	To      string `json:"to"`
	From    string `json:"from"`
	Type    string `json:"type"`
	Message string `json:"message"`
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req SendMessageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	msg := mailbox.Message{From: req.From, Type: req.Type, Message: req.Message}
	if err := s.mailbox.Send(r.Context(), req.To, msg); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleGetMessages(w http.ResponseWriter, r *http.Request) {
	msgs, err := s.mailbox.Fetch(r.Context(), r.PathValue("username"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}
