package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/suite"

	jwttoken "credpass/internal/jwt_token"
	"credpass/internal/metadata"
	"credpass/internal/platform/config"
	"credpass/pkg/testutil"
)

type CommandSuite struct {
	suite.Suite
	dir string
}

func TestCommandSuite(t *testing.T) {
	suite.Run(t, new(CommandSuite))
}

func (s *CommandSuite) SetupTest() {
	s.dir = s.T().TempDir()
}

func (s *CommandSuite) execute(cfg config.Server, args ...string) (string, error) {
	root := NewRootCmd(cfg)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func (s *CommandSuite) writeFile(name string, data []byte) string {
	path := filepath.Join(s.dir, name)
	s.Require().NoError(os.WriteFile(path, data, 0o600))
	return path
}

func (s *CommandSuite) TestReplay() {
	lines, err := testutil.NewStream(1_700_000_000).Onboarding(1).Encoded()
	s.Require().NoError(err)
	lines = append(lines, []byte(`{"seq":10,"kind":"nonsense"}`))

	path := s.writeFile("events.jsonl", append(bytes.Join(lines, []byte("\n")), '\n'))

	s.Run("prints the snapshot summary", func() {
		out, err := s.execute(config.Server{}, "replay", path)
		s.Require().NoError(err)

		var summary replaySummary
		s.Require().NoError(json.Unmarshal([]byte(out), &summary))
		s.Equal(10, summary.Stats.Lines)
		s.Equal(9, summary.Stats.Applied)
		s.Equal(1, summary.Stats.Malformed)
		s.Equal(uint64(9), summary.Projection.Cursor)
		s.Equal(1, summary.Projection.Requests)
		s.Empty(summary.Errors)
	})

	s.Run("includes skipped-event errors on request", func() {
		out, err := s.execute(config.Server{}, "replay", "--errors", path)
		s.Require().NoError(err)

		var summary replaySummary
		s.Require().NoError(json.Unmarshal([]byte(out), &summary))
		s.Len(summary.Errors, 1)
	})

	s.Run("missing file", func() {
		_, err := s.execute(config.Server{}, "replay", filepath.Join(s.dir, "absent.jsonl"))
		s.Error(err)
	})
}

func (s *CommandSuite) TestCID() {
	data := []byte(`{"project":"acme"}`)
	path := s.writeFile("proof.json", data)

	out, err := s.execute(config.Server{}, "cid", path)
	s.Require().NoError(err)

	want, err := metadata.URIFor(data)
	s.Require().NoError(err)
	s.Equal(want, strings.TrimSpace(out))
}

func (s *CommandSuite) TestUploadRequiresAPI() {
	path := s.writeFile("proof.json", []byte("proof"))
	_, err := s.execute(config.Server{}, "upload", path)
	s.ErrorContains(err, "IPFS_API_URL")
}

func (s *CommandSuite) TestToken() {
	cfg := config.Server{AdminJWTSigningKey: "test-signing-key"}

	s.Run("issues a token the admin middleware accepts", func() {
		out, err := s.execute(cfg, "token", "--subject", "alice")
		s.Require().NoError(err)

		subject, err := jwttoken.New(cfg.AdminJWTSigningKey).Verify(strings.TrimSpace(out))
		s.Require().NoError(err)
		s.Equal("alice", subject)
	})

	s.Run("json output", func() {
		out, err := s.execute(cfg, "token", "--json")
		s.Require().NoError(err)

		var tok tokenOutput
		s.Require().NoError(json.Unmarshal([]byte(out), &tok))
		s.Equal("Bearer", tok.Type)
		s.Equal("operator", tok.Subject)
	})

	s.Run("no signing key", func() {
		_, err := s.execute(config.Server{}, "token")
		s.Error(err)
	})
}

func (s *CommandSuite) TestGovernanceNeedsProjection() {
	_, err := s.execute(config.Server{}, "finalize", "1")
	s.ErrorContains(err, "--events or --database-url")
}

func (s *CommandSuite) TestVoteRejectsBadID() {
	_, err := s.execute(config.Server{}, "vote", "not-a-number")
	s.Error(err)
}
