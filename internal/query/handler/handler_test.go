package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"

	"credpass/internal/issuance/store"
	"credpass/internal/ledger/journal"
	ledger "credpass/internal/ledger/models"
	"credpass/internal/metadata"
	projector "credpass/internal/projector/service"
	"credpass/internal/query/readmodels"
	"credpass/internal/query/service"
	dErrors "credpass/pkg/domain-errors"
	"credpass/pkg/platform/httputil"
	"credpass/pkg/platform/middleware/requesttime"
)

var (
	proposer = common.BigToAddress(big.NewInt(0xa1))
	voter    = common.BigToAddress(big.NewInt(0xb1))
	now      = time.Unix(1700000000, 0)
)

type HandlerSuite struct {
	suite.Suite
	ctx       context.Context
	projector *projector.Projector
	storage   *metadata.InMemory
	issuance  *stubIssuance
	router    *chi.Mux
	seq       uint64
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	s.ctx = context.Background()
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	s.projector = projector.New(journal.NewInMemory(), projector.WithLogger(logger))
	s.storage = metadata.NewInMemory()
	s.issuance = &stubIssuance{intents: map[ledger.RequestID]*store.Intent{}}
	s.seq = 0

	query := service.New(s.projector, service.WithStorage(s.storage), service.WithLogger(logger))
	s.router = chi.NewRouter()
	s.router.Use(requesttime.MiddlewareWithClock(func() time.Time { return now }))
	New(query, logger, nil).Register(s.router)
	NewAdmin(s.projector, s.issuance, logger).Register(s.router)
}

func (s *HandlerSuite) apply(payload ledger.Payload) {
	s.seq++
	ev := ledger.NewEvent(s.seq, payload)
	ev.Timestamp = now.Unix()
	s.Require().NoError(s.projector.Apply(s.ctx, ev))
}

func (s *HandlerSuite) do(method, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func (s *HandlerSuite) decode(rec *httptest.ResponseRecorder, v any) {
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

func (s *HandlerSuite) seed() {
	s.apply(ledger.ElectionStarted{Epoch: 1})
	s.apply(ledger.VotingRightAssigned{Epoch: 1, Account: voter, Balance: 1})
	s.apply(ledger.Submitted{ID: 1, ProjectID: "MITS", Proposer: proposer, ProofURI: "cid://abc", Epoch: 1})
	s.apply(ledger.Voted{RequestID: 1, Voter: voter, Choice: true})
	s.apply(ledger.Finalized{RequestID: 1, Approved: true})

	data, err := metadata.OnboardingBytes(*s.projector.View().Requests[1])
	s.Require().NoError(err)
	uri, err := s.storage.Put(s.ctx, data)
	s.Require().NoError(err)
	s.apply(ledger.CredentialMinted{TokenID: 3, To: proposer, URI: uri, ExpiryTs: now.Unix() + 3600})
}

func (s *HandlerSuite) TestEveryResponseCarriesCursor() {
	s.seed()
	for _, target := range []string{
		"/v1/projection",
		"/v1/requests/1",
		"/v1/requests/404",
		"/v1/credentials?owner=" + proposer.Hex(),
	} {
		rec := s.do(http.MethodGet, target)
		s.Equal("6", rec.Header().Get(CursorHeader), target)
	}
}

func (s *HandlerSuite) TestRequestAndTally() {
	s.seed()

	rec := s.do(http.MethodGet, "/v1/requests/1")
	s.Equal(http.StatusOK, rec.Code)
	var req readmodels.Request
	s.decode(rec, &req)
	s.Equal("MITS", req.ProjectID)
	s.Equal("approved", req.Tally.Outcome)
	s.Equal(readmodels.StatusIssued, req.Status)

	rec = s.do(http.MethodGet, "/v1/requests/1/tally")
	s.Equal(http.StatusOK, rec.Code)
	var tally readmodels.Tally
	s.decode(rec, &tally)
	s.Equal(uint64(1), tally.Yes)

	s.Equal(http.StatusNotFound, s.do(http.MethodGet, "/v1/requests/9").Code)
	s.Equal(http.StatusBadRequest, s.do(http.MethodGet, "/v1/requests/abc").Code)
}

func (s *HandlerSuite) TestCredentialsByOwner() {
	s.seed()

	rec := s.do(http.MethodGet, "/v1/credentials?owner="+strings.ToLower(proposer.Hex()))
	s.Equal(http.StatusOK, rec.Code)
	var body struct {
		Credentials []readmodels.Credential `json:"credentials"`
	}
	s.decode(rec, &body)
	s.Require().Len(body.Credentials, 1)
	s.True(body.Credentials[0].Valid)
	s.Equal(now.Unix(), body.Credentials[0].EvaluatedAt)

	s.Equal(http.StatusBadRequest, s.do(http.MethodGet, "/v1/credentials").Code)
	s.Equal(http.StatusBadRequest, s.do(http.MethodGet, "/v1/credentials?owner=nobody").Code)
}

func (s *HandlerSuite) TestCredentialMetadata() {
	s.seed()

	rec := s.do(http.MethodGet, "/v1/credentials/3/metadata")
	s.Equal(http.StatusOK, rec.Code)
	doc, err := metadata.DecodeDocument(rec.Body.Bytes())
	s.Require().NoError(err)
	s.Equal("MITS", doc.Name)

	s.apply(ledger.CredentialMinted{TokenID: 4, To: voter, URI: "ipfs://bafkreigh2akiscaildcqabsyg3dfr6chu3fgpregiymsck7e7aqa4s52zy"})
	rec = s.do(http.MethodGet, "/v1/credentials/4/metadata")
	s.Equal(http.StatusServiceUnavailable, rec.Code)
	var body httputil.ErrorResponse
	s.decode(rec, &body)
	s.Equal("unavailable", body.Error)
}

func (s *HandlerSuite) TestRecentRequestsLimit() {
	for i := 1; i <= 3; i++ {
		s.apply(ledger.Submitted{ID: ledger.RequestID(i), ProjectID: "P", Proposer: proposer, ProofURI: "ipfs://x", Epoch: 1})
	}

	rec := s.do(http.MethodGet, "/v1/requests?limit=2")
	s.Equal(http.StatusOK, rec.Code)
	var body struct {
		Requests []readmodels.Request `json:"requests"`
	}
	s.decode(rec, &body)
	s.Require().Len(body.Requests, 2)
	s.Equal("3", body.Requests[0].ID)

	s.Equal(http.StatusBadRequest, s.do(http.MethodGet, "/v1/requests?limit=0").Code)
	s.Equal(http.StatusBadRequest, s.do(http.MethodGet, "/v1/requests?limit=many").Code)
}

func (s *HandlerSuite) TestEpochsAndInstitutions() {
	s.seed()

	rec := s.do(http.MethodGet, "/v1/epochs/current")
	s.Equal(http.StatusOK, rec.Code)
	var epoch readmodels.Epoch
	s.decode(rec, &epoch)
	s.Equal([]string{voter.Hex()}, epoch.Eligible)

	rec = s.do(http.MethodGet, "/v1/epochs/1/eligibility/"+voter.Hex())
	var elig readmodels.Eligibility
	s.decode(rec, &elig)
	s.True(elig.Eligible)
	s.Equal(http.StatusBadRequest, s.do(http.MethodGet, "/v1/epochs/x/eligibility/"+voter.Hex()).Code)

	rec = s.do(http.MethodGet, "/v1/institutions/mits")
	s.Equal(http.StatusOK, rec.Code)
	var inst readmodels.Institution
	s.decode(rec, &inst)
	s.True(inst.Trusted)
	s.Equal(http.StatusNotFound, s.do(http.MethodGet, "/v1/institutions/Unknown").Code)
}

func (s *HandlerSuite) TestStaleRead() {
	s.seed()

	rec := s.do(http.MethodGet, "/v1/requests/1?min_cursor=10")
	s.Equal(http.StatusPreconditionFailed, rec.Code)
	s.Equal("6", rec.Header().Get(CursorHeader))
	var body StaleResponse
	s.decode(rec, &body)
	s.Equal("stale_projection", body.Error)
	s.Equal(uint64(6), body.Cursor)
	s.Equal(uint64(10), body.MinCursor)

	s.Equal(http.StatusOK, s.do(http.MethodGet, "/v1/requests/1?min_cursor=6").Code)
	s.Equal(http.StatusBadRequest, s.do(http.MethodGet, "/v1/requests/1?min_cursor=-1").Code)
}

func (s *HandlerSuite) TestAdminRebuildAndErrors() {
	s.seed()
	err := s.projector.Apply(s.ctx, ledger.NewEvent(7, ledger.Voted{RequestID: 42, Voter: voter, Choice: true}))
	s.Require().True(dErrors.HasCode(err, dErrors.CodeUnknownReference))

	rec := s.do(http.MethodGet, "/admin/projection/errors")
	s.Equal(http.StatusOK, rec.Code)
	var body struct {
		Errors []projector.ProjectionError `json:"errors"`
	}
	s.decode(rec, &body)
	s.Require().Len(body.Errors, 1)
	s.Equal(dErrors.CodeUnknownReference, body.Errors[0].Code)

	rec = s.do(http.MethodPost, "/admin/projection/rebuild")
	s.Equal(http.StatusOK, rec.Code)
	s.Equal("7", rec.Header().Get(CursorHeader))
}

func (s *HandlerSuite) TestAdminIssuance() {
	s.issuance.intents[5] = &store.Intent{RequestID: 5, State: store.StateSubmitted}
	s.issuance.intents[6] = &store.Intent{RequestID: 6, State: store.StateSettled}

	s.Equal(http.StatusOK, s.do(http.MethodGet, "/admin/issuance/5").Code)
	s.Equal(http.StatusNotFound, s.do(http.MethodGet, "/admin/issuance/9").Code)

	s.Equal(http.StatusNoContent, s.do(http.MethodPost, "/admin/issuance/5/release").Code)
	s.NotContains(s.issuance.intents, ledger.RequestID(5))
	s.Equal(http.StatusConflict, s.do(http.MethodPost, "/admin/issuance/6/release").Code)
	s.Equal(http.StatusBadRequest, s.do(http.MethodPost, "/admin/issuance/x/release").Code)
}

type stubIssuance struct {
	intents map[ledger.RequestID]*store.Intent
}

func (s *stubIssuance) Intent(_ context.Context, id ledger.RequestID) (*store.Intent, error) {
	intent, ok := s.intents[id]
	if !ok {
		return nil, dErrors.Tag(store.ErrNotFound, dErrors.CodeNotFound, "no intent")
	}
	return intent, nil
}

func (s *stubIssuance) Release(ctx context.Context, id ledger.RequestID) error {
	intent, err := s.Intent(ctx, id)
	if err != nil {
		return err
	}
	if intent.State == store.StateSettled {
		return dErrors.New(dErrors.CodeConflict, "settled")
	}
	delete(s.intents, id)
	return nil
}
