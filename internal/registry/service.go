// Package registry implements the contribution registry core: the entity and
// contributor registries, the contribution ledger with its append-only
// history, the request/invite workflow, and the authorization model gating
// every mutation.
package registry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"guildry.org/internal/envelope"
	"guildry.org/internal/ids"
	"guildry.org/internal/obs"
)

// Service owns all registry state transitions. Operations are serialized:
// one call fully completes (or aborts with no effects) before the next
// begins. Every mutating call validates all preconditions, including
// authorization, before the first write.
type Service struct {
	mu     sync.RWMutex
	store  Store
	codec  *envelope.Codec
	events Sink
	now    func() time.Time
}

// Option configures Service behavior.
type Option func(*Service)

// WithEvents installs the sink receiving one event per successful mutation.
func WithEvents(sink Sink) Option {
	return func(s *Service) { s.events = sink }
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// WithCodec overrides the record codec, e.g. to register legacy upgrades.
func WithCodec(codec *envelope.Codec) Option {
	return func(s *Service) {
		if codec != nil {
			s.codec = codec
		}
	}
}

// NewService constructs a Service over the given store.
func NewService(store Store, opts ...Option) *Service {
	s := &Service{
		store: store,
		codec: envelope.NewCodec(),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// EnsureModerator installs the moderator account if none is set yet. It is
// the bootstrap path; afterwards only the moderator can hand the role over.
func (s *Service) EnsureModerator(ctx context.Context, accountID string) error {
	if !validAccount(accountID) {
		return fmt.Errorf("%w: moderator account required", ErrInvalidInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	current, err := s.store.Moderator(ctx)
	if err != nil {
		return err
	}
	if current != "" {
		return nil
	}
	return s.store.SetModerator(ctx, accountID)
}

// SetModerator hands the global moderator role to another account. Only the
// current moderator may call it.
func (s *Service) SetModerator(ctx context.Context, actor, accountID string) error {
	if !validAccount(accountID) {
		return fmt.Errorf("%w: moderator account required", ErrInvalidInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	current, err := s.store.Moderator(ctx)
	if err != nil {
		return err
	}
	if current == "" || current != actor {
		return ErrNoPermission
	}
	if err := s.store.SetModerator(ctx, accountID); err != nil {
		return err
	}
	s.emit(ctx, Event{Name: EventModeratorChanged, ActorID: actor, Fields: map[string]any{
		"moderator_id": accountID,
	}})
	return nil
}

// AddEntity registers a new entity and founds its ledger: the caller becomes
// the founding contributor with admin permission.
func (s *Service) AddEntity(ctx context.Context, actor, entityID, name string, kind EntityKind, startDate uint64) error {
	if !validAccount(actor) || !validAccount(entityID) {
		return fmt.Errorf("%w: account required", ErrInvalidInput)
	}
	if !kind.Valid() {
		return fmt.Errorf("%w: unknown entity kind %q", ErrInvalidInput, kind)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.store.Atomic(ctx, func(st Store) error {
		_, exists, err := st.Entities().Get(ctx, entityID)
		if err != nil {
			return err
		}
		if exists {
			return ErrAlreadyExists
		}
		return s.foundEntity(ctx, st, entityID, actor, name, kind, startDate)
	})
	if err != nil {
		return err
	}
	s.emit(ctx, Event{Name: EventEntityAdded, ActorID: actor, EntityID: entityID, ContributorID: actor, Fields: map[string]any{
		"kind":       string(kind),
		"start_date": startDate,
	}})
	return nil
}

// AdminAddEntity registers an entity on behalf of an explicit founder. The
// privileged path deliberately skips the existence check so a moderator can
// reuse an id, e.g. to reset a flagged entity.
func (s *Service) AdminAddEntity(ctx context.Context, actor, entityID, founderID, name string, kind EntityKind, startDate uint64) error {
	if !validAccount(entityID) || !validAccount(founderID) {
		return fmt.Errorf("%w: account required", ErrInvalidInput)
	}
	if !kind.Valid() {
		return fmt.Errorf("%w: unknown entity kind %q", ErrInvalidInput, kind)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.store.Atomic(ctx, func(st Store) error {
		if err := s.requireManager(ctx, st, entityID, actor); err != nil {
			return err
		}
		return s.foundEntity(ctx, st, entityID, founderID, name, kind, startDate)
	})
	if err != nil {
		return err
	}
	s.emit(ctx, Event{Name: EventEntityAdded, ActorID: actor, EntityID: entityID, ContributorID: founderID, Fields: map[string]any{
		"kind":       string(kind),
		"start_date": startDate,
	}})
	return nil
}

// SetEntity replaces the stored entity wholesale.
func (s *Service) SetEntity(ctx context.Context, actor, entityID string, ent Entity) error {
	if !ent.Status.Valid() {
		return fmt.Errorf("%w: unknown entity status %q", ErrInvalidInput, ent.Status)
	}
	if !ent.Kind.Valid() {
		return fmt.Errorf("%w: unknown entity kind %q", ErrInvalidInput, ent.Kind)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.store.Atomic(ctx, func(st Store) error {
		if err := s.requireManager(ctx, st, entityID, actor); err != nil {
			return err
		}
		return putOne(ctx, s.codec, st.Entities(), entityID, ent)
	})
	if err != nil {
		return err
	}
	s.emit(ctx, Event{Name: EventEntitySet, ActorID: actor, EntityID: entityID, Fields: map[string]any{
		"status": string(ent.Status),
	}})
	return nil
}

// RequestClaimEntity records a takeover request for an existing entity. The
// claim is stored in the request workflow with founding type and waits for a
// manager (or the moderator) to approve it.
func (s *Service) RequestClaimEntity(ctx context.Context, actor, entityID string) error {
	if !validAccount(actor) {
		return fmt.Errorf("%w: account required", ErrInvalidInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.store.Atomic(ctx, func(st Store) error {
		_, exists, err := st.Entities().Get(ctx, entityID)
		if err != nil {
			return err
		}
		if !exists {
			return ErrNotFound
		}
		req := ContributionRequest{ContributionType: TypeFounding}
		return putPair(ctx, s.codec, st.Requests(), PairKey{entityID, actor}, req)
	})
	if err != nil {
		return err
	}
	s.emit(ctx, Event{Name: EventClaimRequested, ActorID: actor, EntityID: entityID, ContributorID: actor})
	return nil
}

// ApproveClaimEntity consumes a pending claim and grants the claimant admin
// permission on the entity, amending any existing ledger row. When
// removeCurrent is set the approver's own row is deleted in the same
// operation.
func (s *Service) ApproveClaimEntity(ctx context.Context, actor, entityID, contributorID string, startDate uint64, removeCurrent bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.store.Atomic(ctx, func(st Store) error {
		if err := s.requireManager(ctx, st, entityID, actor); err != nil {
			return err
		}
		key := PairKey{entityID, contributorID}
		req, ok, err := getPair[ContributionRequest](ctx, s.codec, st.Requests(), key)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: claim request", ErrNotFound)
		}
		detail := ContributionDetail{
			Description:      req.Description,
			ContributionType: req.ContributionType,
			StartDate:        startDate,
		}
		if err := s.ensureContributor(ctx, st, contributorID); err != nil {
			return err
		}
		if err := s.amend(ctx, st, key, detail, Permissions{PermissionAdmin}); err != nil {
			return err
		}
		if _, err := st.Requests().Delete(ctx, key); err != nil {
			return err
		}
		if removeCurrent {
			if _, err := st.Contributions().Delete(ctx, PairKey{entityID, actor}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.emit(ctx, Event{Name: EventEntityClaimed, ActorID: actor, EntityID: entityID, ContributorID: contributorID, Fields: map[string]any{
		"start_date":      startDate,
		"removed_current": removeCurrent,
	}})
	return nil
}

// InviteContributor stores an entity-initiated proposal. A second invite for
// the same pair is rejected while the first is pending.
func (s *Service) InviteContributor(ctx context.Context, actor, entityID, contributorID, description string, ctype ContributionType, startDate uint64, perms []Permission) error {
	if !validAccount(contributorID) {
		return fmt.Errorf("%w: contributor account required", ErrInvalidInput)
	}
	if !validDescription(description) {
		return fmt.Errorf("%w: description exceeds %d characters", ErrInvalidInput, MaxDescriptionLength)
	}
	permSet := NormalizePermissions(perms)
	if permSet == nil {
		permSet = Permissions{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.store.Atomic(ctx, func(st Store) error {
		key := PairKey{entityID, contributorID}
		_, pending, err := st.Invites().Get(ctx, key)
		if err != nil {
			return err
		}
		if pending {
			return fmt.Errorf("%w: invite", ErrAlreadyExists)
		}
		if err := s.requireManager(ctx, st, entityID, actor); err != nil {
			return err
		}
		if err := s.ensureContributor(ctx, st, contributorID); err != nil {
			return err
		}
		invite := ContributionInvite{
			Permissions:      permSet,
			Description:      description,
			ContributionType: ctype,
			StartDate:        startDate,
		}
		return putPair(ctx, s.codec, st.Invites(), key, invite)
	})
	if err != nil {
		return err
	}
	s.emit(ctx, Event{Name: EventContributorInvited, ActorID: actor, EntityID: entityID, ContributorID: contributorID, Fields: map[string]any{
		"contribution_type": string(ctype),
		"start_date":        startDate,
	}})
	return nil
}

// AcceptInvite consumes the caller's pending invite and writes the ledger
// row in the same operation. A fresh row takes the invite's permission set;
// an existing row keeps its own.
func (s *Service) AcceptInvite(ctx context.Context, actor, entityID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var invite ContributionInvite
	err := s.store.Atomic(ctx, func(st Store) error {
		key := PairKey{entityID, actor}
		var ok bool
		var err error
		invite, ok, err = getPair[ContributionInvite](ctx, s.codec, st.Invites(), key)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: invite", ErrNotFound)
		}
		detail := ContributionDetail{
			Description:      invite.Description,
			ContributionType: invite.ContributionType,
			StartDate:        invite.StartDate,
		}
		if err := s.amendWithInitial(ctx, st, key, detail, nil, invite.Permissions); err != nil {
			return err
		}
		_, err = st.Invites().Delete(ctx, key)
		return err
	})
	if err != nil {
		return err
	}
	s.emit(ctx, Event{Name: EventInviteAccepted, ActorID: actor, EntityID: entityID, ContributorID: actor, Fields: map[string]any{
		"contribution_type": string(invite.ContributionType),
		"start_date":        invite.StartDate,
	}})
	return nil
}

// RejectInvite consumes the caller's pending invite without touching the
// ledger. The pair may be re-invited afterwards.
func (s *Service) RejectInvite(ctx context.Context, actor, entityID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.store.Atomic(ctx, func(st Store) error {
		deleted, err := st.Invites().Delete(ctx, PairKey{entityID, actor})
		if err != nil {
			return err
		}
		if !deleted {
			return fmt.Errorf("%w: invite", ErrNotFound)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.emit(ctx, Event{Name: EventInviteRejected, ActorID: actor, EntityID: entityID, ContributorID: actor})
	return nil
}

// RequestContribution stores a contributor-initiated proposal against an
// existing entity. Re-requesting overwrites the pending request.
func (s *Service) RequestContribution(ctx context.Context, actor, entityID, description string, ctype ContributionType, need *string) error {
	if !validAccount(actor) {
		return fmt.Errorf("%w: account required", ErrInvalidInput)
	}
	if !validDescription(description) {
		return fmt.Errorf("%w: description exceeds %d characters", ErrInvalidInput, MaxDescriptionLength)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.store.Atomic(ctx, func(st Store) error {
		_, exists, err := st.Entities().Get(ctx, entityID)
		if err != nil {
			return err
		}
		if !exists {
			return fmt.Errorf("%w: entity", ErrNotFound)
		}
		if need != nil {
			_, ok, err := st.Needs().Get(ctx, PairKey{entityID, *need})
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("%w: need %q", ErrNotFound, *need)
			}
		}
		req := ContributionRequest{Description: description, ContributionType: ctype, Need: need}
		return putPair(ctx, s.codec, st.Requests(), PairKey{entityID, actor}, req)
	})
	if err != nil {
		return err
	}
	s.emit(ctx, Event{Name: EventContributionAsked, ActorID: actor, EntityID: entityID, ContributorID: actor, Fields: map[string]any{
		"contribution_type": string(ctype),
	}})
	return nil
}

// ApproveContribution consumes a pending request and amends the ledger. The
// approver may override the description and supplies the start date; the
// permission set is left untouched (fresh rows start with none).
func (s *Service) ApproveContribution(ctx context.Context, actor, entityID, contributorID string, description *string, startDate *uint64) error {
	if description != nil && !validDescription(*description) {
		return fmt.Errorf("%w: description exceeds %d characters", ErrInvalidInput, MaxDescriptionLength)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.store.Atomic(ctx, func(st Store) error {
		if err := s.requireManager(ctx, st, entityID, actor); err != nil {
			return err
		}
		key := PairKey{entityID, contributorID}
		req, ok, err := getPair[ContributionRequest](ctx, s.codec, st.Requests(), key)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: contribution request", ErrNotFound)
		}
		detail := ContributionDetail{
			Description:      req.Description,
			ContributionType: req.ContributionType,
			Need:             req.Need,
		}
		if description != nil {
			detail.Description = *description
		}
		if startDate != nil {
			detail.StartDate = *startDate
		}
		if err := s.ensureContributor(ctx, st, contributorID); err != nil {
			return err
		}
		if err := s.amendWithInitial(ctx, st, key, detail, nil, Permissions{}); err != nil {
			return err
		}
		_, err = st.Requests().Delete(ctx, key)
		return err
	})
	if err != nil {
		return err
	}
	s.emit(ctx, Event{Name: EventContributionOK, ActorID: actor, EntityID: entityID, ContributorID: contributorID})
	return nil
}

// FinishContribution closes the current detail in place: the end date is
// set but the detail stays current (and queryable) until the next amend.
// The contributor themself or a manager may finish.
func (s *Service) FinishContribution(ctx context.Context, actor, entityID, contributorID string, endDate uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.store.Atomic(ctx, func(st Store) error {
		if actor != contributorID {
			if err := s.requireManager(ctx, st, entityID, actor); err != nil {
				return err
			}
		}
		key := PairKey{entityID, contributorID}
		row, ok, err := getPair[Contribution](ctx, s.codec, st.Contributions(), key)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: contribution", ErrNotFound)
		}
		end := endDate
		row.Current.EndDate = &end
		return putPair(ctx, s.codec, st.Contributions(), key, row)
	})
	if err != nil {
		return err
	}
	s.emit(ctx, Event{Name: EventContributionDone, ActorID: actor, EntityID: entityID, ContributorID: contributorID, Fields: map[string]any{
		"end_date": endDate,
	}})
	return nil
}

// PostNeed publishes (or republishes) an open call for contributions.
func (s *Service) PostNeed(ctx context.Context, actor, entityID, name, description string, ctype ContributionType) error {
	if !validAccount(name) {
		return fmt.Errorf("%w: need name required", ErrInvalidInput)
	}
	if !validDescription(description) {
		return fmt.Errorf("%w: description exceeds %d characters", ErrInvalidInput, MaxDescriptionLength)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.store.Atomic(ctx, func(st Store) error {
		if err := s.requireManager(ctx, st, entityID, actor); err != nil {
			return err
		}
		need := Need{Description: description, ContributionType: ctype, Active: true}
		return putPair(ctx, s.codec, st.Needs(), PairKey{entityID, name}, need)
	})
	if err != nil {
		return err
	}
	s.emit(ctx, Event{Name: EventNeedPosted, ActorID: actor, EntityID: entityID, Fields: map[string]any{
		"need": name,
	}})
	return nil
}

// CloseNeed marks a posted need inactive. The record is kept so requests
// referencing it stay resolvable.
func (s *Service) CloseNeed(ctx context.Context, actor, entityID, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.store.Atomic(ctx, func(st Store) error {
		if err := s.requireManager(ctx, st, entityID, actor); err != nil {
			return err
		}
		key := PairKey{entityID, name}
		need, ok, err := getPair[Need](ctx, s.codec, st.Needs(), key)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: need %q", ErrNotFound, name)
		}
		need.Active = false
		return putPair(ctx, s.codec, st.Needs(), key, need)
	})
	if err != nil {
		return err
	}
	s.emit(ctx, Event{Name: EventNeedClosed, ActorID: actor, EntityID: entityID, Fields: map[string]any{
		"need": name,
	}})
	return nil
}

// MigrateRecords rewrites every stored record through the current envelope
// schema. Invoked by the upgrade mechanism after a deploy; already-migrated
// state passes through unchanged, so running it twice is safe.
func (s *Service) MigrateRecords(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var rewritten int
	err := s.store.Atomic(ctx, func(st Store) error {
		for _, kv := range []KV{st.Entities(), st.Contributors()} {
			n, err := migrateKV(ctx, s.codec, kv)
			if err != nil {
				return err
			}
			rewritten += n
		}
		for _, kv := range []PairKV{st.Contributions(), st.Requests(), st.Invites(), st.Needs()} {
			n, err := migratePairKV(ctx, s.codec, kv)
			if err != nil {
				return err
			}
			rewritten += n
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.emit(ctx, Event{Name: EventRecordsMigrated, Fields: map[string]any{
		"rewritten": rewritten,
	}})
	return nil
}

// Internals ---------------------------------------------------------------

// foundEntity writes the entity and its founding ledger row: admin
// permission, founding type, empty description, no history.
func (s *Service) foundEntity(ctx context.Context, st Store, entityID, founderID, name string, kind EntityKind, startDate uint64) error {
	ent := Entity{Name: name, Status: EntityActive, Kind: kind, StartDate: startDate}
	if err := putOne(ctx, s.codec, st.Entities(), entityID, ent); err != nil {
		return err
	}
	if err := s.ensureContributor(ctx, st, founderID); err != nil {
		return err
	}
	row := Contribution{
		Permissions: Permissions{PermissionAdmin},
		Current: ContributionDetail{
			ContributionType: TypeFounding,
			StartDate:        startDate,
		},
	}
	return putPair(ctx, s.codec, st.Contributions(), PairKey{entityID, founderID}, row)
}

// ensureContributor lazily registers a contributor; the first registration
// wins and is never overwritten.
func (s *Service) ensureContributor(ctx context.Context, st Store, accountID string) error {
	_, ok, err := st.Contributors().Get(ctx, accountID)
	if err != nil || ok {
		return err
	}
	return putOne(ctx, s.codec, st.Contributors(), accountID, Contributor{})
}

// amend funnels every relationship update: the existing current detail is
// archived verbatim and replaced, or a fresh row is created. A non-nil perms
// replaces the permission set outright.
func (s *Service) amend(ctx context.Context, st Store, key PairKey, detail ContributionDetail, perms Permissions) error {
	initial := perms
	if initial == nil {
		initial = Permissions{}
	}
	return s.amendWithInitial(ctx, st, key, detail, perms, initial)
}

// amendWithInitial is amend with a distinct permission set for the
// row-creation case (invite acceptance keeps existing rows' permissions but
// seeds fresh rows from the invite).
func (s *Service) amendWithInitial(ctx context.Context, st Store, key PairKey, detail ContributionDetail, perms, initial Permissions) error {
	row, ok, err := getPair[Contribution](ctx, s.codec, st.Contributions(), key)
	if err != nil {
		return err
	}
	if ok {
		row = row.withDetail(detail, perms)
	} else {
		row = Contribution{Permissions: initial, Current: detail}
	}
	return putPair(ctx, s.codec, st.Contributions(), key, row)
}

// requireManager aborts with ErrNoPermission unless the account is the
// moderator or holds admin permission on the entity.
func (s *Service) requireManager(ctx context.Context, st Store, entityID, account string) error {
	ok, err := s.managerOrHigher(ctx, st, entityID, account)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNoPermission
	}
	return nil
}

func (s *Service) managerOrHigher(ctx context.Context, st Store, entityID, account string) (bool, error) {
	if !validAccount(account) {
		return false, nil
	}
	moderator, err := st.Moderator(ctx)
	if err != nil {
		return false, err
	}
	if moderator != "" && account == moderator {
		return true, nil
	}
	row, ok, err := getPair[Contribution](ctx, s.codec, st.Contributions(), PairKey{entityID, account})
	if err != nil || !ok {
		return false, err
	}
	return row.Permissions.Contains(PermissionAdmin), nil
}

func (s *Service) emit(ctx context.Context, e Event) {
	obs.MutationObserved(e.Name)
	if s.events == nil {
		return
	}
	e.ID = ids.New()
	e.At = s.now().UTC()
	s.events.Publish(e)
}

// Generic record helpers --------------------------------------------------

func getOne[T any](ctx context.Context, codec *envelope.Codec, kv KV, key string) (T, bool, error) {
	var v T
	rec, ok, err := kv.Get(ctx, key)
	if err != nil || !ok {
		return v, false, err
	}
	if err := codec.Open(rec, &v); err != nil {
		return v, false, err
	}
	return v, true, nil
}

func putOne[T any](ctx context.Context, codec *envelope.Codec, kv KV, key string, v T) error {
	rec, err := codec.Wrap(v)
	if err != nil {
		return err
	}
	return kv.Put(ctx, key, rec)
}

func getPair[T any](ctx context.Context, codec *envelope.Codec, kv PairKV, key PairKey) (T, bool, error) {
	var v T
	rec, ok, err := kv.Get(ctx, key)
	if err != nil || !ok {
		return v, false, err
	}
	if err := codec.Open(rec, &v); err != nil {
		return v, false, err
	}
	return v, true, nil
}

func putPair[T any](ctx context.Context, codec *envelope.Codec, kv PairKV, key PairKey, v T) error {
	rec, err := codec.Wrap(v)
	if err != nil {
		return err
	}
	return kv.Put(ctx, key, rec)
}

func migrateKV(ctx context.Context, codec *envelope.Codec, kv KV) (int, error) {
	all, err := kv.All(ctx)
	if err != nil {
		return 0, err
	}
	var n int
	for key, rec := range all {
		if rec.Schema == envelope.CurrentSchema {
			continue
		}
		upgraded, err := codec.Upgraded(rec)
		if err != nil {
			return n, err
		}
		if err := kv.Put(ctx, key, upgraded); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

func migratePairKV(ctx context.Context, codec *envelope.Codec, kv PairKV) (int, error) {
	all, err := kv.All(ctx)
	if err != nil {
		return 0, err
	}
	var n int
	for key, rec := range all {
		if rec.Schema == envelope.CurrentSchema {
			continue
		}
		upgraded, err := codec.Upgraded(rec)
		if err != nil {
			return n, err
		}
		if err := kv.Put(ctx, key, upgraded); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}
