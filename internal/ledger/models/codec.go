package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	dErrors "credpass/pkg/domain-errors"
	"credpass/pkg/platform/sentinel"
)

const maxTextField = 1024

type envelope struct {
	Seq       Quantity        `json:"seq"`
	Kind      Kind            `json:"kind"`
	Block     Quantity        `json:"block"`
	TxHash    string          `json:"txHash,omitempty"`
	Timestamp Quantity        `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

type wireSubmitted struct {
	ID        Quantity `json:"id"`
	ProjectID string   `json:"projectId"`
	Proposer  string   `json:"proposer"`
	ProofURI  string   `json:"proofURI"`
	Epoch     Quantity `json:"epoch"`
}

type wireVoted struct {
	RequestID Quantity `json:"requestId"`
	Voter     string   `json:"voter"`
	Choice    *bool    `json:"choice"`
}

type wireFinalized struct {
	RequestID Quantity `json:"requestId"`
	Approved  *bool    `json:"approved"`
}

type wireMinted struct {
	TokenID   *Quantity `json:"tokenId"`
	To        string    `json:"to"`
	URI       string    `json:"uri"`
	ExpiryTs  Quantity  `json:"expiryTs"`
	RequestID *Quantity `json:"requestId"`
}

type wireToken struct {
	TokenID *Quantity `json:"tokenId"`
	From    string    `json:"from"`
	To      string    `json:"to"`
}

type wireRole struct {
	Role    string `json:"role"`
	Account string `json:"account"`
	Sender  string `json:"sender"`
}

type wireIssuer struct {
	Issuer  string `json:"issuer"`
	Allowed *bool  `json:"allowed"`
}

type wireEpoch struct {
	Epoch   Quantity `json:"epoch"`
	Account string   `json:"account"`
	Balance Quantity `json:"balance"`
}

type wireReorg struct {
	FromSeq Quantity `json:"fromSeq"`
}

// Decode parses and validates one event envelope. Any mismatch with the
// expected shape yields a decode_error wrapping sentinel.ErrDecode.
func Decode(data []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Event{}, decodeError(0, "envelope: %v", err)
	}
	seq := uint64(env.Seq)
	if env.Kind == "" {
		return Event{}, decodeError(seq, "missing kind")
	}
	if env.Kind != KindReorg && seq == 0 {
		return Event{}, decodeError(seq, "sequence number must be positive")
	}
	if len(env.Payload) == 0 {
		return Event{}, decodeError(seq, "missing payload")
	}

	var txHash common.Hash
	if env.TxHash != "" {
		raw, err := hexutil.Decode(env.TxHash)
		if err != nil || len(raw) != common.HashLength {
			return Event{}, decodeError(seq, "invalid txHash %q", env.TxHash)
		}
		txHash = common.BytesToHash(raw)
	}

	payload, err := decodePayload(env.Kind, env.Payload)
	if err != nil {
		return Event{}, decodeError(seq, "%s payload: %v", env.Kind, err)
	}

	return Event{
		Seq:       seq,
		Kind:      env.Kind,
		Block:     uint64(env.Block),
		TxHash:    txHash,
		Timestamp: int64(env.Timestamp),
		Payload:   payload,
	}, nil
}

func decodePayload(kind Kind, raw json.RawMessage) (Payload, error) {
	switch kind {
	case KindSubmitted:
		var w wireSubmitted
		if err := strict(raw, &w); err != nil {
			return nil, err
		}
		if w.ID == 0 {
			return nil, fmt.Errorf("id is required")
		}
		proposer, err := account("proposer", w.Proposer)
		if err != nil {
			return nil, err
		}
		projectID := strings.TrimSpace(w.ProjectID)
		if projectID == "" || len(projectID) > maxTextField {
			return nil, fmt.Errorf("projectId must be 1-%d characters", maxTextField)
		}
		if strings.TrimSpace(w.ProofURI) == "" || len(w.ProofURI) > maxTextField {
			return nil, fmt.Errorf("proofURI must be 1-%d characters", maxTextField)
		}
		return Submitted{
			ID:        RequestID(w.ID),
			ProjectID: projectID,
			Proposer:  proposer,
			ProofURI:  strings.TrimSpace(w.ProofURI),
			Epoch:     EpochID(w.Epoch),
		}, nil

	case KindVoted:
		var w wireVoted
		if err := strict(raw, &w); err != nil {
			return nil, err
		}
		if w.RequestID == 0 {
			return nil, fmt.Errorf("requestId is required")
		}
		if w.Choice == nil {
			return nil, fmt.Errorf("choice is required")
		}
		voter, err := account("voter", w.Voter)
		if err != nil {
			return nil, err
		}
		return Voted{RequestID: RequestID(w.RequestID), Voter: voter, Choice: *w.Choice}, nil

	case KindFinalized:
		var w wireFinalized
		if err := strict(raw, &w); err != nil {
			return nil, err
		}
		if w.RequestID == 0 {
			return nil, fmt.Errorf("requestId is required")
		}
		if w.Approved == nil {
			return nil, fmt.Errorf("approved is required")
		}
		return Finalized{RequestID: RequestID(w.RequestID), Approved: *w.Approved}, nil

	case KindCredentialMinted:
		var w wireMinted
		if err := strict(raw, &w); err != nil {
			return nil, err
		}
		if w.TokenID == nil {
			return nil, fmt.Errorf("tokenId is required")
		}
		to, err := account("to", w.To)
		if err != nil {
			return nil, err
		}
		if strings.TrimSpace(w.URI) == "" || len(w.URI) > maxTextField {
			return nil, fmt.Errorf("uri must be 1-%d characters", maxTextField)
		}
		minted := CredentialMinted{
			TokenID:  TokenID(*w.TokenID),
			To:       to,
			URI:      strings.TrimSpace(w.URI),
			ExpiryTs: int64(w.ExpiryTs),
		}
		if w.RequestID != nil {
			reqID := RequestID(*w.RequestID)
			minted.RequestID = &reqID
		}
		return minted, nil

	case KindCredentialRevoked:
		var w wireToken
		if err := strict(raw, &w); err != nil {
			return nil, err
		}
		if w.TokenID == nil {
			return nil, fmt.Errorf("tokenId is required")
		}
		return CredentialRevoked{TokenID: TokenID(*w.TokenID)}, nil

	case KindCredentialBurned:
		var w wireToken
		if err := strict(raw, &w); err != nil {
			return nil, err
		}
		if w.TokenID == nil {
			return nil, fmt.Errorf("tokenId is required")
		}
		from, err := account("from", w.From)
		if err != nil {
			return nil, err
		}
		return CredentialBurned{TokenID: TokenID(*w.TokenID), From: from}, nil

	case KindCredentialTransferred:
		var w wireToken
		if err := strict(raw, &w); err != nil {
			return nil, err
		}
		if w.TokenID == nil {
			return nil, fmt.Errorf("tokenId is required")
		}
		from, err := account("from", w.From)
		if err != nil {
			return nil, err
		}
		to, err := account("to", w.To)
		if err != nil {
			return nil, err
		}
		return CredentialTransferred{TokenID: TokenID(*w.TokenID), From: from, To: to}, nil

	case KindRoleGranted, KindRoleRevoked:
		var w wireRole
		if err := strict(raw, &w); err != nil {
			return nil, err
		}
		role, err := ParseRole(w.Role)
		if err != nil {
			return nil, err
		}
		acct, err := account("account", w.Account)
		if err != nil {
			return nil, err
		}
		var sender common.Address
		if w.Sender != "" {
			if sender, err = ParseAccount(w.Sender); err != nil {
				return nil, fmt.Errorf("sender: %w", err)
			}
		}
		return RoleChanged{Granted: kind == KindRoleGranted, Role: role, Account: acct, Sender: sender}, nil

	case KindIssuerUpdated:
		var w wireIssuer
		if err := strict(raw, &w); err != nil {
			return nil, err
		}
		if w.Allowed == nil {
			return nil, fmt.Errorf("allowed is required")
		}
		issuer, err := account("issuer", w.Issuer)
		if err != nil {
			return nil, err
		}
		return IssuerUpdated{Issuer: issuer, Allowed: *w.Allowed}, nil

	case KindElectionStarted:
		var w wireEpoch
		if err := strict(raw, &w); err != nil {
			return nil, err
		}
		if w.Account != "" || w.Balance != 0 {
			return nil, fmt.Errorf("unexpected account fields")
		}
		return ElectionStarted{Epoch: EpochID(w.Epoch)}, nil

	case KindVotingRightAssigned:
		var w wireEpoch
		if err := strict(raw, &w); err != nil {
			return nil, err
		}
		acct, err := account("account", w.Account)
		if err != nil {
			return nil, err
		}
		if w.Balance > 1 {
			return nil, fmt.Errorf("balance must be 0 or 1, got %d", w.Balance)
		}
		return VotingRightAssigned{Epoch: EpochID(w.Epoch), Account: acct, Balance: uint8(w.Balance)}, nil

	case KindReorg:
		var w wireReorg
		if err := strict(raw, &w); err != nil {
			return nil, err
		}
		if w.FromSeq == 0 {
			return nil, fmt.Errorf("fromSeq must be positive")
		}
		return Reorg{FromSeq: uint64(w.FromSeq)}, nil

	default:
		return nil, fmt.Errorf("unknown kind")
	}
}

// Encode renders an event in the envelope format accepted by Decode.
func Encode(ev Event) ([]byte, error) {
	if ev.Payload == nil {
		return nil, fmt.Errorf("encode event %d: missing payload", ev.Seq)
	}
	payload, err := json.Marshal(ev.Payload)
	if err != nil {
		return nil, fmt.Errorf("encode event %d payload: %w", ev.Seq, err)
	}
	env := envelope{
		Seq:       Quantity(ev.Seq),
		Kind:      ev.Payload.Kind(),
		Block:     Quantity(ev.Block),
		Timestamp: Quantity(ev.Timestamp),
		Payload:   payload,
	}
	if ev.TxHash != (common.Hash{}) {
		env.TxHash = ev.TxHash.Hex()
	}
	return json.Marshal(env)
}

func strict(raw json.RawMessage, v any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func account(field, value string) (common.Address, error) {
	if value == "" {
		return common.Address{}, fmt.Errorf("%s is required", field)
	}
	addr, err := ParseAccount(value)
	if err != nil {
		return common.Address{}, fmt.Errorf("%s: %w", field, err)
	}
	if addr == (common.Address{}) {
		return common.Address{}, fmt.Errorf("%s must not be the zero account", field)
	}
	return addr, nil
}

func decodeError(seq uint64, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	if seq > 0 {
		msg = fmt.Sprintf("event %d: %s", seq, msg)
	}
	return dErrors.Tag(sentinel.ErrDecode, dErrors.CodeDecode, msg)
}
