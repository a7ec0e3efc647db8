package http

import (
	"net/http"

	"splitledger/internal/core"
)

type nameRequest struct {
	Name string `json:"name"`
}

func (s *Server) handleCreateMember(w http.ResponseWriter, r *http.Request) {
	var req nameRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	m, err := s.ledger.CreateMember(r.Context(), req.Name)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toMemberDTO(m))
}

func (s *Server) handleListMembers(w http.ResponseWriter, r *http.Request) {
	members, err := s.ledger.ListMembers(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	out := make([]memberDTO, 0, len(members))
	for _, m := range members {
		out = append(out, toMemberDTO(m))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetMember(w http.ResponseWriter, r *http.Request) {
	m, err := s.ledger.GetMember(r.Context(), core.MemberID(r.PathValue("id")))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toMemberDTO(m))
}

func (s *Server) handleRenameMember(w http.ResponseWriter, r *http.Request) {
	var req nameRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	id := core.MemberID(r.PathValue("id"))
	if err := s.ledger.RenameMember(r.Context(), id, req.Name); err != nil {
		respondError(w, r, err)
		return
	}
	m, err := s.ledger.GetMember(r.Context(), id)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toMemberDTO(m))
}

func (s *Server) handleDeleteMember(w http.ResponseWriter, r *http.Request) {
	if err := s.ledger.DeleteMember(r.Context(), core.MemberID(r.PathValue("id"))); err != nil {
		respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
