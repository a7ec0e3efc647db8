package core

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

type (
	MemberID  string
	GroupID   string
	ExpenseID string
)

// NewID mints a fresh entity identifier.
func NewID() string {
	return uuid.NewString()
}

type (
	// Member is a person participating in one or more groups. Identity is
	// immutable once created; the display name may change.
	Member struct {
		ID   MemberID
		Name string
	}

	// Group ties a set of members to the expenses they share. Membership is
	// an association by identifier; expenses are owned by the group and die
	// with it.
	Group struct {
		ID        GroupID
		Name      string
		MemberIDs []MemberID
	}

	// Expense is a single paid amount attributed to a payer and a category.
	Expense struct {
		ID       ExpenseID
		GroupID  GroupID
		PayerID  MemberID
		Name     string
		Amount   Money
		Category Category
		SpentAt  time.Time
	}
)

// HasMember reports whether id is part of the group.
func (g Group) HasMember(id MemberID) bool {
	for _, m := range g.MemberIDs {
		if m == id {
			return true
		}
	}
	return false
}

func (m Member) Validate() error {
	if strings.TrimSpace(m.Name) == "" {
		return ErrEmptyName
	}
	return nil
}

func (g Group) Validate() error {
	if strings.TrimSpace(g.Name) == "" {
		return ErrEmptyName
	}
	return nil
}

func (e Expense) Validate() error {
	if strings.TrimSpace(e.Name) == "" {
		return ErrEmptyName
	}
	if len(e.Name) > 200 {
		return errors.New("name too long (max 200 characters)")
	}
	if err := e.Amount.Validate(); err != nil {
		return err
	}
	if e.SpentAt.IsZero() {
		return ErrInvalidDate
	}
	if e.GroupID == "" || e.PayerID == "" {
		return ErrNotFound
	}
	return nil
}
