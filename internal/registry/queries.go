package registry

import (
	"context"
	"fmt"
	"sort"
)

// Read-only projections. Queries never mutate and derive everything from
// stored rows; "founder" in particular is derived from contribution types,
// not a stored flag.

// GetEntities lists entities ordered by id, skipping offset and returning at
// most limit entries (limit <= 0 returns everything after offset).
func (s *Service) GetEntities(ctx context.Context, offset, limit int) (map[string]Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all, err := s.store.Entities().All(ctx)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(all))
	for key := range all {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	if offset < 0 {
		offset = 0
	}
	if offset > len(keys) {
		offset = len(keys)
	}
	keys = keys[offset:]
	if limit > 0 && limit < len(keys) {
		keys = keys[:limit]
	}
	out := make(map[string]Entity, len(keys))
	for _, key := range keys {
		var ent Entity
		if err := s.codec.Open(all[key], &ent); err != nil {
			return nil, err
		}
		out[key] = ent
	}
	return out, nil
}

// GetEntity returns a single entity.
func (s *Service) GetEntity(ctx context.Context, entityID string) (Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ent, ok, err := getOne[Entity](ctx, s.codec, s.store.Entities(), entityID)
	if err != nil {
		return Entity{}, err
	}
	if !ok {
		return Entity{}, fmt.Errorf("%w: entity", ErrNotFound)
	}
	return ent, nil
}

// CheckIsEntity reports whether the account is a registered entity.
func (s *Service) CheckIsEntity(ctx context.Context, accountID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok, err := s.store.Entities().Get(ctx, accountID)
	return ok, err
}

// GetAdminEntities lists the entities the contributor holds admin permission
// on, keyed by entity id.
func (s *Service) GetAdminEntities(ctx context.Context, contributorID string) (map[string]Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.store.Contributions().All(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]Entity)
	for key, rec := range rows {
		if key.Member != contributorID {
			continue
		}
		var row Contribution
		if err := s.codec.Open(rec, &row); err != nil {
			return nil, err
		}
		if !row.Permissions.Contains(PermissionAdmin) {
			continue
		}
		ent, ok, err := getOne[Entity](ctx, s.codec, s.store.Entities(), key.EntityID)
		if err != nil {
			return nil, err
		}
		if ok {
			out[key.EntityID] = ent
		}
	}
	return out, nil
}

// GetFounders returns the contributors whose current or historical detail
// carries a founding type (either encoding) for the entity.
func (s *Service) GetFounders(ctx context.Context, entityID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.store.Contributions().All(ctx)
	if err != nil {
		return nil, err
	}
	var founders []string
	for key, rec := range rows {
		if key.EntityID != entityID {
			continue
		}
		var row Contribution
		if err := s.codec.Open(rec, &row); err != nil {
			return nil, err
		}
		if row.IsFounder() {
			founders = append(founders, key.Member)
		}
	}
	sort.Strings(founders)
	return founders, nil
}

// GetContribution returns the ledger row for the pair.
func (s *Service) GetContribution(ctx context.Context, entityID, contributorID string) (Contribution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok, err := getPair[Contribution](ctx, s.codec, s.store.Contributions(), PairKey{entityID, contributorID})
	if err != nil {
		return Contribution{}, err
	}
	if !ok {
		return Contribution{}, fmt.Errorf("%w: contribution", ErrNotFound)
	}
	return row, nil
}

// GetContributionHistory returns the archived details for the pair, oldest
// first.
func (s *Service) GetContributionHistory(ctx context.Context, entityID, contributorID string) ([]ContributionDetail, error) {
	row, err := s.GetContribution(ctx, entityID, contributorID)
	if err != nil {
		return nil, err
	}
	return row.History, nil
}

// GetEntityContributions lists ledger rows for an entity keyed by
// contributor.
func (s *Service) GetEntityContributions(ctx context.Context, entityID string) (map[string]Contribution, error) {
	return s.contributionsBy(ctx, func(key PairKey) (bool, string) {
		return key.EntityID == entityID, key.Member
	})
}

// GetContributorContributions lists ledger rows for a contributor keyed by
// entity.
func (s *Service) GetContributorContributions(ctx context.Context, contributorID string) (map[string]Contribution, error) {
	return s.contributionsBy(ctx, func(key PairKey) (bool, string) {
		return key.Member == contributorID, key.EntityID
	})
}

// GetContributionRequest returns the pending request for the pair, if any.
func (s *Service) GetContributionRequest(ctx context.Context, entityID, contributorID string) (ContributionRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	req, ok, err := getPair[ContributionRequest](ctx, s.codec, s.store.Requests(), PairKey{entityID, contributorID})
	if err != nil {
		return ContributionRequest{}, err
	}
	if !ok {
		return ContributionRequest{}, fmt.Errorf("%w: contribution request", ErrNotFound)
	}
	return req, nil
}

// GetEntityRequests lists pending requests against an entity keyed by
// contributor.
func (s *Service) GetEntityRequests(ctx context.Context, entityID string) (map[string]ContributionRequest, error) {
	return s.requestsBy(ctx, func(key PairKey) (bool, string) {
		return key.EntityID == entityID, key.Member
	})
}

// GetContributorRequests lists a contributor's pending requests keyed by
// entity.
func (s *Service) GetContributorRequests(ctx context.Context, contributorID string) (map[string]ContributionRequest, error) {
	return s.requestsBy(ctx, func(key PairKey) (bool, string) {
		return key.Member == contributorID, key.EntityID
	})
}

// GetInvite returns the pending invite for the pair, if any.
func (s *Service) GetInvite(ctx context.Context, entityID, contributorID string) (ContributionInvite, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	invite, ok, err := getPair[ContributionInvite](ctx, s.codec, s.store.Invites(), PairKey{entityID, contributorID})
	if err != nil {
		return ContributionInvite{}, err
	}
	if !ok {
		return ContributionInvite{}, fmt.Errorf("%w: invite", ErrNotFound)
	}
	return invite, nil
}

// GetEntityInvites lists invites sent by the entity keyed by contributor.
func (s *Service) GetEntityInvites(ctx context.Context, entityID string) (map[string]ContributionInvite, error) {
	return s.invitesBy(ctx, func(key PairKey) (bool, string) {
		return key.EntityID == entityID, key.Member
	})
}

// GetContributorInvites lists invites sent to the contributor keyed by
// entity.
func (s *Service) GetContributorInvites(ctx context.Context, contributorID string) (map[string]ContributionInvite, error) {
	return s.invitesBy(ctx, func(key PairKey) (bool, string) {
		return key.Member == contributorID, key.EntityID
	})
}

// GetContributors lists every registered contributor account.
func (s *Service) GetContributors(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all, err := s.store.Contributors().All(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(all))
	for key := range all {
		out = append(out, key)
	}
	sort.Strings(out)
	return out, nil
}

// CheckIsContributor reports whether the account is registered.
func (s *Service) CheckIsContributor(ctx context.Context, accountID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok, err := s.store.Contributors().Get(ctx, accountID)
	return ok, err
}

// GetNeeds lists an entity's posted needs keyed by name.
func (s *Service) GetNeeds(ctx context.Context, entityID string) (map[string]Need, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all, err := s.store.Needs().All(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]Need)
	for key, rec := range all {
		if key.EntityID != entityID {
			continue
		}
		var need Need
		if err := s.codec.Open(rec, &need); err != nil {
			return nil, err
		}
		out[key.Member] = need
	}
	return out, nil
}

// CheckIsModerator reports whether the account is the global moderator.
func (s *Service) CheckIsModerator(ctx context.Context, accountID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	moderator, err := s.store.Moderator(ctx)
	if err != nil {
		return false, err
	}
	return moderator != "" && moderator == accountID, nil
}

// CheckIsManagerOrHigher is the authorization predicate: the moderator, or
// an admin-permission holder on the entity.
func (s *Service) CheckIsManagerOrHigher(ctx context.Context, entityID, accountID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.managerOrHigher(ctx, s.store, entityID, accountID)
}

func (s *Service) contributionsBy(ctx context.Context, match func(PairKey) (bool, string)) (map[string]Contribution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.store.Contributions().All(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]Contribution)
	for key, rec := range rows {
		ok, outKey := match(key)
		if !ok {
			continue
		}
		var row Contribution
		if err := s.codec.Open(rec, &row); err != nil {
			return nil, err
		}
		out[outKey] = row
	}
	return out, nil
}

func (s *Service) requestsBy(ctx context.Context, match func(PairKey) (bool, string)) (map[string]ContributionRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all, err := s.store.Requests().All(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]ContributionRequest)
	for key, rec := range all {
		ok, outKey := match(key)
		if !ok {
			continue
		}
		var req ContributionRequest
		if err := s.codec.Open(rec, &req); err != nil {
			return nil, err
		}
		out[outKey] = req
	}
	return out, nil
}

func (s *Service) invitesBy(ctx context.Context, match func(PairKey) (bool, string)) (map[string]ContributionInvite, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all, err := s.store.Invites().All(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]ContributionInvite)
	for key, rec := range all {
		ok, outKey := match(key)
		if !ok {
			continue
		}
		var invite ContributionInvite
		if err := s.codec.Open(rec, &invite); err != nil {
			return nil, err
		}
		out[outKey] = invite
	}
	return out, nil
}
