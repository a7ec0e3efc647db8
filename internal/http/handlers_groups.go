package http

import (
	"net/http"

	"splitledger/internal/core"
)

func (s *Server) handleCreateGroup(w http.ResponseWriter, r *http.Request) {
	var req nameRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	g, err := s.ledger.CreateGroup(r.Context(), req.Name)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toGroupDTO(g))
}

func (s *Server) handleListGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := s.ledger.ListGroups(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	out := make([]groupDTO, 0, len(groups))
	for _, g := range groups {
		out = append(out, toGroupDTO(g))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetGroup(w http.ResponseWriter, r *http.Request) {
	g, err := s.ledger.GetGroup(r.Context(), core.GroupID(r.PathValue("id")))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toGroupDTO(g))
}

func (s *Server) handleRenameGroup(w http.ResponseWriter, r *http.Request) {
	var req nameRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	id := core.GroupID(r.PathValue("id"))
	if err := s.ledger.RenameGroup(r.Context(), id, req.Name); err != nil {
		respondError(w, r, err)
		return
	}
	g, err := s.ledger.GetGroup(r.Context(), id)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toGroupDTO(g))
}

func (s *Server) handleDeleteGroup(w http.ResponseWriter, r *http.Request) {
	if err := s.ledger.DeleteGroup(r.Context(), core.GroupID(r.PathValue("id"))); err != nil {
		respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type addMemberRequest struct {
	MemberID string `json:"member_id"`
}

func (s *Server) handleAddMember(w http.ResponseWriter, r *http.Request) {
	var req addMemberRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	groupID := core.GroupID(r.PathValue("id"))
	if err := s.ledger.AddMember(r.Context(), groupID, core.MemberID(req.MemberID)); err != nil {
		respondError(w, r, err)
		return
	}
	g, err := s.ledger.GetGroup(r.Context(), groupID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toGroupDTO(g))
}

func (s *Server) handleRemoveMember(w http.ResponseWriter, r *http.Request) {
	groupID := core.GroupID(r.PathValue("id"))
	memberID := core.MemberID(r.PathValue("memberID"))
	if err := s.ledger.RemoveMember(r.Context(), groupID, memberID); err != nil {
		respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
