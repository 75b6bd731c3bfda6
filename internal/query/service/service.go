// Package service implements the query façade: read-only operations over the
// projector's latest snapshot. Every read pins one snapshot for its whole
// lifetime and never calls the ledger.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"credpass/internal/consensus"
	ledger "credpass/internal/ledger/models"
	"credpass/internal/metadata"
	"credpass/internal/projector/models"
	"credpass/internal/query/readmodels"
	dErrors "credpass/pkg/domain-errors"
	"credpass/pkg/platform/sentinel"
	"credpass/pkg/validation"
)

const defaultRecentLimit = 20

// ViewSource supplies the latest published snapshot.
type ViewSource interface {
	View() *models.Snapshot
}

// Service hands out pinned read views.
type Service struct {
	views   ViewSource
	engine  *consensus.Engine
	storage metadata.Storage
	gateway string
	logger  *slog.Logger
}

// Option configures the Service.
type Option func(*Service)

// WithEngine sets the engine used to render outcomes.
func WithEngine(e *consensus.Engine) Option {
	return func(s *Service) {
		if e != nil {
			s.engine = e
		}
	}
}

// WithStorage enables metadata resolution.
func WithStorage(storage metadata.Storage) Option {
	return func(s *Service) {
		s.storage = storage
	}
}

// WithGatewayURL sets the public gateway used to render credential links.
func WithGatewayURL(url string) Option {
	return func(s *Service) {
		s.gateway = strings.TrimRight(url, "/")
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New creates a Service.
func New(views ViewSource, opts ...Option) *Service {
	s := &Service{
		views:  views,
		engine: consensus.New(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// StaleError reports a snapshot behind the cursor a caller asked for.
type StaleError struct {
	Cursor    uint64
	MinCursor uint64
}

func (e *StaleError) Error() string {
	return fmt.Sprintf("projection at cursor %d is behind requested cursor %d", e.Cursor, e.MinCursor)
}

func (e *StaleError) Unwrap() error { return sentinel.ErrStale }

// At pins the latest snapshot. When it is behind minCursor the view is still
// returned alongside a stale_projection error carrying a *StaleError.
func (s *Service) At(minCursor uint64) (*View, error) {
	snap := s.views.View()
	if snap == nil {
		snap = models.NewSnapshot()
	}
	v := &View{snap: snap, svc: s}
	if snap.Cursor < minCursor {
		stale := &StaleError{Cursor: snap.Cursor, MinCursor: minCursor}
		return v, dErrors.Tag(stale, dErrors.CodeStale, stale.Error())
	}
	return v, nil
}

// View is a read handle over one immutable snapshot.
type View struct {
	snap *models.Snapshot
	svc  *Service
}

// Cursor returns the cursor of the pinned snapshot.
func (v *View) Cursor() uint64 {
	return v.snap.Cursor
}

// CredentialsByOwner lists an owner's credentials in token order. The owner
// may be given in any letter case.
func (v *View) CredentialsByOwner(owner string, now int64) ([]readmodels.Credential, error) {
	account, err := ledger.ParseAccount(owner)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeValidation, fmt.Sprintf("invalid owner %q", owner))
	}
	out := []readmodels.Credential{}
	for _, c := range v.sortedCredentials() {
		if c.Owner == account {
			out = append(out, readmodels.FromCredential(c, v.svc.gateway, now))
		}
	}
	return out, nil
}

// Credential reports a credential and whether it is valid at now.
func (v *View) Credential(tokenID ledger.TokenID, now int64) (readmodels.Credential, error) {
	c, ok := v.snap.Credentials[tokenID]
	if !ok {
		return readmodels.Credential{}, notFound("credential", tokenID.String())
	}
	return readmodels.FromCredential(c, v.svc.gateway, now), nil
}

// CredentialMetadata fetches the metadata document of a credential.
func (v *View) CredentialMetadata(ctx context.Context, tokenID ledger.TokenID) ([]byte, error) {
	c, ok := v.snap.Credentials[tokenID]
	if !ok {
		return nil, notFound("credential", tokenID.String())
	}
	if v.svc.storage == nil {
		return nil, metadata.Unavailable(c.MetadataURI, nil)
	}
	data, err := v.svc.storage.Get(ctx, c.MetadataURI)
	if err != nil {
		v.svc.logger.WarnContext(ctx, "metadata resolution failed",
			"token_id", tokenID,
			"metadata_uri", c.MetadataURI,
			"error", err,
		)
		if dErrors.HasCode(err, dErrors.CodeUnavailable) {
			return nil, err
		}
		return nil, metadata.Unavailable(c.MetadataURI, err)
	}
	return data, nil
}

// Request returns a request with its tally and outcome.
func (v *View) Request(id ledger.RequestID) (readmodels.Request, error) {
	req, ok := v.snap.Requests[id]
	if !ok {
		return readmodels.Request{}, notFound("request", id.String())
	}
	return v.render(req), nil
}

// Tally returns the tally of a request.
func (v *View) Tally(id ledger.RequestID) (readmodels.Tally, error) {
	req, ok := v.snap.Requests[id]
	if !ok {
		return readmodels.Tally{}, notFound("request", id.String())
	}
	out := readmodels.FromTally(v.snap.Tallies[id], v.svc.engine.Outcome(*req))
	out.RequestID = id.String()
	return out, nil
}

// RecentRequests lists requests newest first by submission sequence.
// limit <= 0 means the default; limits above the maximum are clamped.
func (v *View) RecentRequests(limit int) []readmodels.Request {
	if limit <= 0 {
		limit = defaultRecentLimit
	}
	limit = min(limit, validation.MaxRecentRequests)

	reqs := make([]*models.VerificationRequest, 0, len(v.snap.Requests))
	for _, r := range v.snap.Requests {
		reqs = append(reqs, r)
	}
	sort.Slice(reqs, func(i, j int) bool {
		if reqs[i].SubmittedSeq != reqs[j].SubmittedSeq {
			return reqs[i].SubmittedSeq > reqs[j].SubmittedSeq
		}
		return reqs[i].ID > reqs[j].ID
	})

	out := make([]readmodels.Request, 0, min(limit, len(reqs)))
	for _, r := range reqs[:min(limit, len(reqs))] {
		out = append(out, v.render(r))
	}
	return out
}

// CurrentEpoch returns the election epoch currently open for voting.
func (v *View) CurrentEpoch() (readmodels.Epoch, error) {
	e, ok := v.snap.Epochs[v.snap.CurrentEpoch]
	if !ok {
		if v.snap.CurrentEpoch == 0 {
			return readmodels.Epoch{}, notFound("epoch", "current")
		}
		e = &models.ElectionEpoch{ID: v.snap.CurrentEpoch}
	}
	return readmodels.FromEpoch(e, true), nil
}

// Eligibility reports whether an account holds a voting right in an epoch.
func (v *View) Eligibility(epoch ledger.EpochID, account string) (readmodels.Eligibility, error) {
	addr, err := ledger.ParseAccount(account)
	if err != nil {
		return readmodels.Eligibility{}, dErrors.Wrap(err, dErrors.CodeValidation, fmt.Sprintf("invalid account %q", account))
	}
	return readmodels.Eligibility{
		Epoch:    epoch.String(),
		Account:  addr.Hex(),
		Eligible: v.snap.Epochs[epoch].Eligible(addr),
	}, nil
}

// Institution reports the latest request for a project and whether the
// project is trusted at now: finalized, approved and holding a valid credential.
func (v *View) Institution(projectID string, now int64) (readmodels.Institution, error) {
	projectID = strings.TrimSpace(projectID)
	var latest *models.VerificationRequest
	for _, r := range v.snap.Requests {
		if !strings.EqualFold(r.ProjectID, projectID) {
			continue
		}
		if latest == nil || r.SubmittedSeq > latest.SubmittedSeq ||
			(r.SubmittedSeq == latest.SubmittedSeq && r.ID > latest.ID) {
			latest = r
		}
	}
	if latest == nil {
		return readmodels.Institution{}, notFound("institution", projectID)
	}

	out := readmodels.Institution{
		ProjectID: latest.ProjectID,
		Status:    readmodels.RequestStatus(latest),
		Request:   v.render(latest),
	}
	if latest.MintedCredentialID != nil {
		if c, ok := v.snap.Credentials[*latest.MintedCredentialID]; ok {
			cred := readmodels.FromCredential(c, v.svc.gateway, now)
			out.Credential = &cred
			out.Trusted = latest.Approved && cred.Valid
		}
	}
	return out, nil
}

// Summary reports the cursor and entity counts.
func (v *View) Summary() readmodels.Projection {
	return readmodels.Projection{
		Cursor:       v.snap.Cursor,
		CurrentEpoch: v.snap.CurrentEpoch.String(),
		Requests:     len(v.snap.Requests),
		Credentials:  len(v.snap.Credentials),
		Epochs:       len(v.snap.Epochs),
		PendingMints: len(v.snap.PendingMints),
	}
}

func (v *View) render(r *models.VerificationRequest) readmodels.Request {
	return readmodels.FromRequest(r, v.snap.Tallies[r.ID], v.svc.engine.Outcome(*r))
}

func (v *View) sortedCredentials() []*models.CredentialRecord {
	out := make([]*models.CredentialRecord, 0, len(v.snap.Credentials))
	for _, c := range v.snap.Credentials {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TokenID < out[j].TokenID })
	return out
}

func notFound(entity, id string) error {
	return dErrors.Tag(sentinel.ErrNotFound, dErrors.CodeNotFound, fmt.Sprintf("%s %s not found", entity, id))
}
