package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/suite"

	dErrors "credpass/pkg/domain-errors"
)

type ValidationSuite struct {
	suite.Suite
}

func TestValidationSuite(t *testing.T) {
	suite.Run(t, new(ValidationSuite))
}

type submission struct {
	ProjectID string `json:"projectId" validate:"required,notblank,max=128"`
	ProofURI  string `json:"proofURI" validate:"required,content_uri"`
	Account   string `json:"account,omitempty" validate:"omitempty,eth_addr"`
}

func (s *ValidationSuite) TestValidate() {
	cases := []struct {
		name string
		req  submission
		msg  string
	}{
		{name: "valid", req: submission{ProjectID: "MITS", ProofURI: "cid://abc"}},
		{name: "ipfs uri", req: submission{ProjectID: "MITS", ProofURI: "ipfs://bafkreigh2akiscaild"}},
		{name: "missing project", req: submission{ProofURI: "cid://abc"}, msg: "projectId is required"},
		{name: "blank project", req: submission{ProjectID: "   ", ProofURI: "cid://abc"}, msg: "projectId must not be blank"},
		{name: "bare path", req: submission{ProjectID: "MITS", ProofURI: "abc"}, msg: "proofURI must be a content uri such as ipfs://<cid>"},
		{name: "bad account", req: submission{ProjectID: "MITS", ProofURI: "cid://abc", Account: "0x12"}, msg: "account must be a 0x-prefixed account address"},
	}
	for _, tc := range cases {
		s.Run(tc.name, func() {
			err := Validate(tc.req)
			if tc.msg == "" {
				s.NoError(err)
				return
			}
			s.Require().Error(err)
			s.True(dErrors.HasCode(err, dErrors.CodeValidation))
			s.Contains(err.Error(), tc.msg)
		})
	}
}

func (s *ValidationSuite) TestIsContentURI() {
	s.True(IsContentURI("https://ipfs.io/ipfs/bafy"))
	s.False(IsContentURI(""))
	s.False(IsContentURI("ipfs:// spaced"))
	s.False(IsContentURI("/ipfs/bafy"))
}

func (s *ValidationSuite) TestLimits() {
	s.NoError(CheckStringLength("projectId", strings.Repeat("a", MaxProjectIDLength), MaxProjectIDLength))
	s.Error(CheckStringLength("projectId", strings.Repeat("a", MaxProjectIDLength+1), MaxProjectIDLength))
	s.NoError(CheckSize("proof", MaxProofSize, MaxProofSize))
	s.True(dErrors.HasCode(CheckSize("proof", MaxProofSize+1, MaxProofSize), dErrors.CodeValidation))
}
