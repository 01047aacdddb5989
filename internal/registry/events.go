package registry

import "time"

// Event describes one successful mutation. Exactly one event is emitted per
// successful mutating call and none on failure; an external indexer consumes
// them.
type Event struct {
	ID            string         `json:"id"`
	Name          string         `json:"name"`
	At            time.Time      `json:"at"`
	ActorID       string         `json:"actor_id,omitempty"`
	EntityID      string         `json:"entity_id,omitempty"`
	ContributorID string         `json:"contributor_id,omitempty"`
	Fields        map[string]any `json:"fields,omitempty"`
}

// Sink receives emitted events.
type Sink interface {
	Publish(Event)
}

// Mutation event names.
const (
	EventEntityAdded        = "registry.entity.added"
	EventEntitySet          = "registry.entity.set"
	EventClaimRequested     = "registry.entity.claim_requested"
	EventEntityClaimed      = "registry.entity.claimed"
	EventContributorInvited = "registry.invite.sent"
	EventInviteAccepted     = "registry.invite.accepted"
	EventInviteRejected     = "registry.invite.rejected"
	EventContributionAsked  = "registry.contribution.requested"
	EventContributionOK     = "registry.contribution.approved"
	EventContributionDone   = "registry.contribution.finished"
	EventNeedPosted         = "registry.need.posted"
	EventNeedClosed         = "registry.need.closed"
	EventModeratorChanged   = "registry.moderator.changed"
	EventRecordsMigrated    = "registry.records.migrated"
)
