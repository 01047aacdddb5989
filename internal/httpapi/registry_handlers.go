package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"guildry.org/internal/audit"
	"guildry.org/internal/auth"
	"guildry.org/internal/registry"
)

type addEntityRequest struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Kind      string `json:"kind"`
	StartDate uint64 `json:"start_date"`
}

type adminAddEntityRequest struct {
	ID        string `json:"id"`
	FounderID string `json:"founder_id"`
	Name      string `json:"name"`
	Kind      string `json:"kind"`
	StartDate uint64 `json:"start_date"`
}

type setEntityRequest struct {
	Name      string  `json:"name"`
	Status    string  `json:"status"`
	Kind      string  `json:"kind"`
	StartDate uint64  `json:"start_date"`
	EndDate   *uint64 `json:"end_date"`
}

type approveClaimRequest struct {
	ContributorID string `json:"contributor_id"`
	StartDate     uint64 `json:"start_date"`
	RemoveCurrent bool   `json:"remove_current"`
}

type inviteRequest struct {
	ContributorID    string   `json:"contributor_id"`
	Description      string   `json:"description"`
	ContributionType string   `json:"contribution_type"`
	StartDate        uint64   `json:"start_date"`
	Permissions      []string `json:"permissions"`
}

type contributionRequestBody struct {
	Description      string  `json:"description"`
	ContributionType string  `json:"contribution_type"`
	Need             *string `json:"need"`
}

type approveContributionRequest struct {
	ContributorID string  `json:"contributor_id"`
	Description   *string `json:"description"`
	StartDate     *uint64 `json:"start_date"`
}

type finishContributionRequest struct {
	ContributorID string `json:"contributor_id"`
	EndDate       uint64 `json:"end_date"`
}

type postNeedRequest struct {
	Name             string `json:"name"`
	Description      string `json:"description"`
	ContributionType string `json:"contribution_type"`
}

type setModeratorRequest struct {
	AccountID string `json:"account_id"`
}

type entitiesResponse struct {
	Items map[string]registry.Entity `json:"items"`
}

func (a *API) handleEntitiesCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		a.listEntities(w, r)
	case http.MethodPost:
		a.addEntity(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleAdminAddEntity(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	var req adminAddEntityRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	err := a.registry.AdminAddEntity(r.Context(), actor, strings.TrimSpace(req.ID),
		strings.TrimSpace(req.FounderID), req.Name, registry.EntityKind(req.Kind), req.StartDate)
	if err != nil {
		handleRegistryError(w, r, err)
		return
	}
	a.audit(r.Context(), "registry.entity.admin_add", map[string]any{
		"entity":  req.ID,
		"founder": req.FounderID,
	})
	writeJSON(w, http.StatusCreated, map[string]any{"id": req.ID})
}

// handleEntityResource dispatches /v1/entities/{id} and its sub-resources.
func (a *API) handleEntityResource(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/entities/")
	if rest == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	id, sub, _ := strings.Cut(rest, "/")
	if id == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	switch {
	case sub == "":
		switch r.Method {
		case http.MethodGet:
			a.getEntity(w, r, id)
		case http.MethodPut:
			a.setEntity(w, r, id)
		default:
			methodNotAllowed(w, r, http.MethodGet, http.MethodPut)
		}
	case sub == "claim":
		a.requirePost(w, r, func() { a.requestClaim(w, r, id) })
	case sub == "claim/approve":
		a.requirePost(w, r, func() { a.approveClaim(w, r, id) })
	case sub == "invites":
		switch r.Method {
		case http.MethodGet:
			a.listEntityInvites(w, r, id)
		case http.MethodPost:
			a.inviteContributor(w, r, id)
		default:
			methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
		}
	case sub == "invites/accept":
		a.requirePost(w, r, func() { a.acceptInvite(w, r, id) })
	case sub == "invites/reject":
		a.requirePost(w, r, func() { a.rejectInvite(w, r, id) })
	case sub == "requests":
		switch r.Method {
		case http.MethodGet:
			a.listEntityRequests(w, r, id)
		case http.MethodPost:
			a.requestContribution(w, r, id)
		default:
			methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
		}
	case sub == "requests/approve":
		a.requirePost(w, r, func() { a.approveContribution(w, r, id) })
	case sub == "contributions":
		a.requireGet(w, r, func() { a.listEntityContributions(w, r, id) })
	case sub == "contributions/finish":
		a.requirePost(w, r, func() { a.finishContribution(w, r, id) })
	case strings.HasPrefix(sub, "contributions/"):
		a.requireGet(w, r, func() { a.getContribution(w, r, id, strings.TrimPrefix(sub, "contributions/")) })
	case sub == "founders":
		a.requireGet(w, r, func() { a.getFounders(w, r, id) })
	case sub == "needs":
		switch r.Method {
		case http.MethodGet:
			a.listNeeds(w, r, id)
		case http.MethodPost:
			a.postNeed(w, r, id)
		default:
			methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
		}
	case strings.HasPrefix(sub, "needs/"):
		if r.Method != http.MethodDelete {
			methodNotAllowed(w, r, http.MethodDelete)
			return
		}
		a.closeNeed(w, r, id, strings.TrimPrefix(sub, "needs/"))
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) handleContributorsCollection(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	ids, err := a.registry.GetContributors(r.Context())
	if err != nil {
		handleRegistryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": ids})
}

// handleContributorResource dispatches /v1/contributors/{id} and sub-views.
func (a *API) handleContributorResource(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/v1/contributors/")
	id, sub, _ := strings.Cut(rest, "/")
	if id == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	switch sub {
	case "":
		registered, err := a.registry.CheckIsContributor(r.Context(), id)
		if err != nil {
			handleRegistryError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"id": id, "registered": registered})
	case "contributions":
		items, err := a.registry.GetContributorContributions(r.Context(), id)
		if err != nil {
			handleRegistryError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items})
	case "requests":
		items, err := a.registry.GetContributorRequests(r.Context(), id)
		if err != nil {
			handleRegistryError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items})
	case "invites":
		items, err := a.registry.GetContributorInvites(r.Context(), id)
		if err != nil {
			handleRegistryError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items})
	case "entities":
		items, err := a.registry.GetAdminEntities(r.Context(), id)
		if err != nil {
			handleRegistryError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, entitiesResponse{Items: items})
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) handleModerator(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		account := strings.TrimSpace(r.URL.Query().Get("account"))
		if account == "" {
			writeError(w, r, http.StatusBadRequest, "account query parameter is required")
			return
		}
		ok, err := a.registry.CheckIsModerator(r.Context(), account)
		if err != nil {
			handleRegistryError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"account": account, "moderator": ok})
	case http.MethodPost:
		actor, ok := actorFrom(w, r)
		if !ok {
			return
		}
		var req setModeratorRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		if err := a.registry.SetModerator(r.Context(), actor, strings.TrimSpace(req.AccountID)); err != nil {
			handleRegistryError(w, r, err)
			return
		}
		a.audit(r.Context(), "registry.moderator.set", map[string]any{"account": req.AccountID})
		writeJSON(w, http.StatusOK, map[string]any{"moderator": req.AccountID})
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

// --- entity handlers ---

func (a *API) listEntities(w http.ResponseWriter, r *http.Request) {
	offset, err := parseBoundedInt(r.URL.Query().Get("offset"), 0, 0, 1<<30)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "offset must be a non-negative integer")
		return
	}
	limit, err := parseBoundedInt(r.URL.Query().Get("limit"), 100, 1, 1000)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "limit must be between 1 and 1000")
		return
	}
	items, err := a.registry.GetEntities(r.Context(), offset, limit)
	if err != nil {
		handleRegistryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entitiesResponse{Items: items})
}

func (a *API) addEntity(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	var req addEntityRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	id := strings.TrimSpace(req.ID)
	err := a.registry.AddEntity(r.Context(), actor, id, req.Name, registry.EntityKind(req.Kind), req.StartDate)
	if err != nil {
		handleRegistryError(w, r, err)
		return
	}
	a.audit(r.Context(), "registry.entity.add", map[string]any{"entity": id})
	w.Header().Set("Location", "/v1/entities/"+id)
	writeJSON(w, http.StatusCreated, map[string]any{"id": id})
}

func (a *API) getEntity(w http.ResponseWriter, r *http.Request, id string) {
	ent, err := a.registry.GetEntity(r.Context(), id)
	if err != nil {
		handleRegistryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ent)
}

func (a *API) setEntity(w http.ResponseWriter, r *http.Request, id string) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	var req setEntityRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	ent := registry.Entity{
		Name:      req.Name,
		Status:    registry.EntityStatus(req.Status),
		Kind:      registry.EntityKind(req.Kind),
		StartDate: req.StartDate,
		EndDate:   req.EndDate,
	}
	if err := a.registry.SetEntity(r.Context(), actor, id, ent); err != nil {
		handleRegistryError(w, r, err)
		return
	}
	a.audit(r.Context(), "registry.entity.set", map[string]any{"entity": id})
	writeJSON(w, http.StatusOK, ent)
}

func (a *API) requestClaim(w http.ResponseWriter, r *http.Request, id string) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	if err := a.registry.RequestClaimEntity(r.Context(), actor, id); err != nil {
		handleRegistryError(w, r, err)
		return
	}
	a.audit(r.Context(), "registry.claim.request", map[string]any{"entity": id})
	writeJSON(w, http.StatusAccepted, map[string]any{"entity": id, "contributor": actor})
}

func (a *API) approveClaim(w http.ResponseWriter, r *http.Request, id string) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	var req approveClaimRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	err := a.registry.ApproveClaimEntity(r.Context(), actor, id,
		strings.TrimSpace(req.ContributorID), req.StartDate, req.RemoveCurrent)
	if err != nil {
		handleRegistryError(w, r, err)
		return
	}
	a.audit(r.Context(), "registry.claim.approve", map[string]any{
		"entity":      id,
		"contributor": req.ContributorID,
	})
	writeJSON(w, http.StatusOK, map[string]any{"entity": id, "contributor": req.ContributorID})
}

// --- invite handlers ---

func (a *API) listEntityInvites(w http.ResponseWriter, r *http.Request, id string) {
	items, err := a.registry.GetEntityInvites(r.Context(), id)
	if err != nil {
		handleRegistryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (a *API) inviteContributor(w http.ResponseWriter, r *http.Request, id string) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	var req inviteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	perms := make([]registry.Permission, 0, len(req.Permissions))
	for _, p := range req.Permissions {
		perms = append(perms, registry.Permission(p))
	}
	err := a.registry.InviteContributor(r.Context(), actor, id, strings.TrimSpace(req.ContributorID),
		req.Description, registry.ContributionType(req.ContributionType), req.StartDate, perms)
	if err != nil {
		handleRegistryError(w, r, err)
		return
	}
	a.audit(r.Context(), "registry.invite.send", map[string]any{
		"entity":      id,
		"contributor": req.ContributorID,
	})
	writeJSON(w, http.StatusCreated, map[string]any{"entity": id, "contributor": req.ContributorID})
}

func (a *API) acceptInvite(w http.ResponseWriter, r *http.Request, id string) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	if err := a.registry.AcceptInvite(r.Context(), actor, id); err != nil {
		handleRegistryError(w, r, err)
		return
	}
	a.audit(r.Context(), "registry.invite.accept", map[string]any{"entity": id})
	writeJSON(w, http.StatusOK, map[string]any{"entity": id, "contributor": actor})
}

func (a *API) rejectInvite(w http.ResponseWriter, r *http.Request, id string) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	if err := a.registry.RejectInvite(r.Context(), actor, id); err != nil {
		handleRegistryError(w, r, err)
		return
	}
	a.audit(r.Context(), "registry.invite.reject", map[string]any{"entity": id})
	writeJSON(w, http.StatusOK, map[string]any{"entity": id, "contributor": actor})
}

// --- contribution request handlers ---

func (a *API) listEntityRequests(w http.ResponseWriter, r *http.Request, id string) {
	items, err := a.registry.GetEntityRequests(r.Context(), id)
	if err != nil {
		handleRegistryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (a *API) requestContribution(w http.ResponseWriter, r *http.Request, id string) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	var req contributionRequestBody
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	err := a.registry.RequestContribution(r.Context(), actor, id, req.Description,
		registry.ContributionType(req.ContributionType), req.Need)
	if err != nil {
		handleRegistryError(w, r, err)
		return
	}
	a.audit(r.Context(), "registry.contribution.request", map[string]any{"entity": id})
	writeJSON(w, http.StatusAccepted, map[string]any{"entity": id, "contributor": actor})
}

func (a *API) approveContribution(w http.ResponseWriter, r *http.Request, id string) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	var req approveContributionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	err := a.registry.ApproveContribution(r.Context(), actor, id,
		strings.TrimSpace(req.ContributorID), req.Description, req.StartDate)
	if err != nil {
		handleRegistryError(w, r, err)
		return
	}
	a.audit(r.Context(), "registry.contribution.approve", map[string]any{
		"entity":      id,
		"contributor": req.ContributorID,
	})
	writeJSON(w, http.StatusOK, map[string]any{"entity": id, "contributor": req.ContributorID})
}

// --- contribution views ---

func (a *API) listEntityContributions(w http.ResponseWriter, r *http.Request, id string) {
	items, err := a.registry.GetEntityContributions(r.Context(), id)
	if err != nil {
		handleRegistryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (a *API) getContribution(w http.ResponseWriter, r *http.Request, entityID, rest string) {
	member, tail, _ := strings.Cut(rest, "/")
	if member == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	switch tail {
	case "":
		row, err := a.registry.GetContribution(r.Context(), entityID, member)
		if err != nil {
			handleRegistryError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, row)
	case "history":
		history, err := a.registry.GetContributionHistory(r.Context(), entityID, member)
		if err != nil {
			handleRegistryError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": history})
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) finishContribution(w http.ResponseWriter, r *http.Request, id string) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	var req finishContributionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	contributor := strings.TrimSpace(req.ContributorID)
	if contributor == "" {
		contributor = actor
	}
	if err := a.registry.FinishContribution(r.Context(), actor, id, contributor, req.EndDate); err != nil {
		handleRegistryError(w, r, err)
		return
	}
	a.audit(r.Context(), "registry.contribution.finish", map[string]any{
		"entity":      id,
		"contributor": contributor,
	})
	writeJSON(w, http.StatusOK, map[string]any{"entity": id, "contributor": contributor})
}

func (a *API) getFounders(w http.ResponseWriter, r *http.Request, id string) {
	founders, err := a.registry.GetFounders(r.Context(), id)
	if err != nil {
		handleRegistryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": founders})
}

// --- needs handlers ---

func (a *API) listNeeds(w http.ResponseWriter, r *http.Request, id string) {
	items, err := a.registry.GetNeeds(r.Context(), id)
	if err != nil {
		handleRegistryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (a *API) postNeed(w http.ResponseWriter, r *http.Request, id string) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	var req postNeedRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	err := a.registry.PostNeed(r.Context(), actor, id, strings.TrimSpace(req.Name),
		req.Description, registry.ContributionType(req.ContributionType))
	if err != nil {
		handleRegistryError(w, r, err)
		return
	}
	a.audit(r.Context(), "registry.need.post", map[string]any{"entity": id, "need": req.Name})
	writeJSON(w, http.StatusCreated, map[string]any{"entity": id, "need": req.Name})
}

func (a *API) closeNeed(w http.ResponseWriter, r *http.Request, id, name string) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	if err := a.registry.CloseNeed(r.Context(), actor, id, name); err != nil {
		handleRegistryError(w, r, err)
		return
	}
	a.audit(r.Context(), "registry.need.close", map[string]any{"entity": id, "need": name})
	writeJSON(w, http.StatusOK, map[string]any{"entity": id, "need": name})
}

// --- helpers ---

func (a *API) requirePost(w http.ResponseWriter, r *http.Request, fn func()) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	fn()
}

func (a *API) requireGet(w http.ResponseWriter, r *http.Request, fn func()) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	fn()
}

func (a *API) audit(ctx context.Context, event string, fields map[string]any) {
	_ = audit.LogEvent(ctx, event, fields)
}

func actorFrom(w http.ResponseWriter, r *http.Request) (string, bool) {
	account, ok := auth.AccountFromContext(r.Context())
	if !ok || account == "" {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return "", false
	}
	return account, true
}

func parseBoundedInt(raw string, def, min, max int) (int, error) {
	if strings.TrimSpace(raw) == "" {
		return def, nil
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.New("not an integer")
	}
	if val < min || val > max {
		return 0, errors.New("out of range")
	}
	return val, nil
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

func handleRegistryError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, registry.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, registry.ErrAlreadyExists):
		writeError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, registry.ErrNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	case errors.Is(err, registry.ErrNoPermission), errors.Is(err, registry.ErrNotRegistered):
		writeError(w, r, http.StatusForbidden, err.Error())
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
}
