package main

import (
	"net/http"

	json "github.com/goccy/go-json"
	"github.com/mcclellann/parcela/pkg/ledger"
	"github.com/mcclellann/parcela/pkg/models"
)

func (s *Server) createClientHandler(w http.ResponseWriter, r *http.Request) {
	var req models.Client
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, err.Error())
		return
	}

	client, err := s.ledger.CreateClient(req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, client)
}

func (s *Server) listClientsHandler(w http.ResponseWriter, r *http.Request) {
	clients, err := s.ledger.GetAllClients()
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, clients)
}

func (s *Server) getClientHandler(w http.ResponseWriter, r *http.Request) {
	clientID, ok := clientIDFrom(r)
	if !ok {
		badRequest(w, "Invalid client ID")
		return
	}

	client, err := s.ledger.GetClient(clientID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, client)
}

func (s *Server) updateClientHandler(w http.ResponseWriter, r *http.Request) {
	clientID, ok := clientIDFrom(r)
	if !ok {
		badRequest(w, "Invalid client ID")
		return
	}

	var req ledger.ClientPatch
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, err.Error())
		return
	}

	client, err := s.ledger.UpdateClient(clientID, req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, client)
}

func (s *Server) deleteClientHandler(w http.ResponseWriter, r *http.Request) {
	clientID, ok := clientIDFrom(r)
	if !ok {
		badRequest(w, "Invalid client ID")
		return
	}

	if err := s.ledger.DeleteClient(clientID); err != nil {
		s.writeError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
