package registry

import (
	"errors"
	"sort"
	"strings"
)

// MaxDescriptionLength bounds every free-form description field.
const MaxDescriptionLength = 420

var (
	ErrAlreadyExists = errors.New("registry: already exists")
	ErrNotFound      = errors.New("registry: not found")
	ErrNoPermission  = errors.New("registry: no permission")
	ErrNotRegistered = errors.New("registry: not registered")
	ErrInvalidInput  = errors.New("registry: invalid input")
)

// EntityStatus models the lifecycle of an entity; entities are never deleted,
// closure is a status transition.
type EntityStatus string

const (
	EntityActive  EntityStatus = "active"
	EntityFlagged EntityStatus = "flagged"
)

func (s EntityStatus) Valid() bool {
	return s == EntityActive || s == EntityFlagged
}

// EntityKind categorizes what an entity is.
type EntityKind string

const (
	KindProject      EntityKind = "project"
	KindOrganization EntityKind = "organization"
	KindDAO          EntityKind = "dao"
)

func (k EntityKind) Valid() bool {
	return k == KindProject || k == KindOrganization || k == KindDAO
}

// Entity is something beyond a single person: it has a start and potentially
// an end. Display metadata beyond the name lives outside the registry.
type Entity struct {
	Name      string       `json:"name"`
	Status    EntityStatus `json:"status"`
	Kind      EntityKind   `json:"kind"`
	StartDate uint64       `json:"start_date"`
	EndDate   *uint64      `json:"end_date,omitempty"`
}

// Contributor is an existence marker; all relationship data lives in
// Contribution rows keyed against it.
type Contributor struct{}

// ContributionType is an open classification of involvement. Well-known
// values are listed below; anything else travels as OtherType(label).
type ContributionType string

const (
	TypeFounding    ContributionType = "founding"
	TypeDevelopment ContributionType = "development"
	TypeDesign      ContributionType = "design"
	TypeMarketing   ContributionType = "marketing"
	TypeOperations  ContributionType = "operations"
	TypeFunding     ContributionType = "funding"

	otherPrefix = "other:"
)

// OtherType encodes a free-form contribution type label.
func OtherType(label string) ContributionType {
	return ContributionType(otherPrefix + label)
}

// IsFounding reports whether t marks a founder. Old rows encode founding as
// the free-form "other:Founding"; both spellings must keep counting.
func (t ContributionType) IsFounding() bool {
	return t == TypeFounding || t == OtherType("Founding")
}

// Permission is a capability a contributor holds over a specific entity.
type Permission string

// PermissionAdmin grants full management rights over an entity.
const PermissionAdmin Permission = "admin"

// Permissions is a normalized (sorted, deduplicated) capability set.
type Permissions []Permission

func (p Permissions) Contains(perm Permission) bool {
	for _, have := range p {
		if have == perm {
			return true
		}
	}
	return false
}

// NormalizePermissions sorts and deduplicates, dropping blanks. A nil input
// stays nil: callers use nil to mean "leave permissions unchanged".
func NormalizePermissions(perms []Permission) Permissions {
	if perms == nil {
		return nil
	}
	seen := make(map[Permission]bool, len(perms))
	out := make(Permissions, 0, len(perms))
	for _, perm := range perms {
		perm = Permission(strings.TrimSpace(string(perm)))
		if perm == "" || seen[perm] {
			continue
		}
		seen[perm] = true
		out = append(out, perm)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ContributionDetail is a snapshot of one period of involvement.
type ContributionDetail struct {
	Description      string           `json:"description"`
	ContributionType ContributionType `json:"contribution_type"`
	StartDate        uint64           `json:"start_date"`
	EndDate          *uint64          `json:"end_date,omitempty"`
	Need             *string          `json:"need,omitempty"`
}

// Contribution is the ledger row for one (entity, contributor) pair: the
// single open detail plus an append-only history of superseded details.
type Contribution struct {
	Permissions Permissions          `json:"permissions"`
	Current     ContributionDetail   `json:"current"`
	History     []ContributionDetail `json:"history"`
}

// withDetail archives the current detail and installs the new one. The
// archived detail is kept verbatim; closing its period is the caller's job.
// Permissions are replaced only when perms is non-nil.
func (c Contribution) withDetail(detail ContributionDetail, perms Permissions) Contribution {
	history := make([]ContributionDetail, 0, len(c.History)+1)
	history = append(history, c.History...)
	history = append(history, c.Current)
	out := Contribution{Permissions: c.Permissions, Current: detail, History: history}
	if perms != nil {
		out.Permissions = perms
	}
	return out
}

// IsFounder reports whether any detail, current or historical, is a founding
// one.
func (c Contribution) IsFounder() bool {
	if c.Current.ContributionType.IsFounding() {
		return true
	}
	for _, detail := range c.History {
		if detail.ContributionType.IsFounding() {
			return true
		}
	}
	return false
}

// ContributionRequest is a pending contributor-initiated proposal. It exists
// until approved; re-requesting overwrites it.
type ContributionRequest struct {
	Description      string           `json:"description"`
	ContributionType ContributionType `json:"contribution_type"`
	Need             *string          `json:"need,omitempty"`
}

// ContributionInvite is a pending entity-initiated proposal. At most one per
// (entity, contributor) pair.
type ContributionInvite struct {
	Permissions      Permissions      `json:"permissions"`
	Description      string           `json:"description"`
	ContributionType ContributionType `json:"contribution_type"`
	StartDate        uint64           `json:"start_date"`
}

// Need is an open call for contributions posted by an entity.
type Need struct {
	Description      string           `json:"description"`
	ContributionType ContributionType `json:"contribution_type"`
	Active           bool             `json:"active"`
}

func validDescription(desc string) bool {
	return len(desc) <= MaxDescriptionLength
}

func validAccount(id string) bool {
	return strings.TrimSpace(id) != ""
}
