package models

import (
	"encoding/json"
	"sort"
)

// RoleType enumerates event-level participation roles.
type RoleType string

const (
	RoleTypeParticipant RoleType = "PARTICIPANT"
	RoleTypeVolunteer   RoleType = "VOLUNTEER"
	RoleTypeSpeaker     RoleType = "SPEAKER"
	RoleTypeOrganizer   RoleType = "ORGANIZER"
	RoleTypeJudge       RoleType = "JUDGE"
	RoleTypeMentor      RoleType = "MENTOR"
)

// Valid returns true when the role is supported.
func (r RoleType) Valid() bool {
	switch r {
	case RoleTypeParticipant, RoleTypeVolunteer, RoleTypeSpeaker, RoleTypeOrganizer, RoleTypeJudge, RoleTypeMentor:
		return true
	default:
		return false
	}
}

// RoleSet holds the roles a student has for one event.
type RoleSet map[RoleType]struct{}

// NewRoleSet builds a set ignoring unknown roles.
func NewRoleSet(roles ...RoleType) RoleSet {
	set := make(RoleSet, len(roles))
	for _, r := range roles {
		set.Add(r)
	}
	return set
}

// Add inserts a role when valid.
func (s RoleSet) Add(r RoleType) {
	if r.Valid() {
		s[r] = struct{}{}
	}
}

// Has reports membership.
func (s RoleSet) Has(r RoleType) bool {
	_, ok := s[r]
	return ok
}

// Sorted returns the roles in lexical order.
func (s RoleSet) Sorted() []RoleType {
	out := make([]RoleType, 0, len(s))
	for r := range s {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// MarshalJSON encodes the set as a sorted array.
func (s RoleSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Sorted())
}

// UnmarshalJSON decodes an array of roles.
func (s *RoleSet) UnmarshalJSON(data []byte) error {
	var roles []RoleType
	if err := json.Unmarshal(data, &roles); err != nil {
		return err
	}
	*s = NewRoleSet(roles...)
	return nil
}
