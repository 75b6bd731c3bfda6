package metadata

import (
	"encoding/json"
	"fmt"

	"credpass/internal/projector/models"
)

// Attribute is one ERC-1155 metadata trait.
type Attribute struct {
	TraitType string `json:"trait_type"`
	Value     string `json:"value"`
}

// Document is the ERC-1155 style metadata JSON a credential token points to.
type Document struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Image       string      `json:"image,omitempty"`
	Attributes  []Attribute `json:"attributes"`
}

// Attribute returns the value of the named trait.
func (d Document) Attribute(traitType string) (string, bool) {
	for _, a := range d.Attributes {
		if a.TraitType == traitType {
			return a.Value, true
		}
	}
	return "", false
}

// Trait names of the onboarding document.
const (
	TraitProposer       = "Proposer"
	TraitVerificationID = "Verification ID"
	TraitElectionEpoch  = "Election Epoch"
	TraitProofURI       = "Proof URI"
)

// OnboardingDocument builds the metadata document for the credential minted
// when req is approved. It depends only on fields fixed at submission, so the
// same request always yields the same bytes and URI.
func OnboardingDocument(req models.VerificationRequest) Document {
	return Document{
		Name:        req.ProjectID,
		Description: fmt.Sprintf("Institution credential for %s, approved by verification request %s", req.ProjectID, req.ID),
		Image:       GatewayURL(DefaultGateway, req.ProofURI),
		Attributes: []Attribute{
			{TraitType: TraitProposer, Value: req.Proposer.Hex()},
			{TraitType: TraitVerificationID, Value: req.ID.String()},
			{TraitType: TraitElectionEpoch, Value: req.Epoch.String()},
			{TraitType: TraitProofURI, Value: req.ProofURI},
		},
	}
}

// OnboardingBytes encodes the onboarding document of req.
func OnboardingBytes(req models.VerificationRequest) ([]byte, error) {
	return json.Marshal(OnboardingDocument(req))
}

// OnboardingURI is the content URI of the onboarding document of req.
func OnboardingURI(req models.VerificationRequest) (string, error) {
	data, err := OnboardingBytes(req)
	if err != nil {
		return "", err
	}
	return URIFor(data)
}

// DecodeDocument parses a metadata document.
func DecodeDocument(data []byte) (Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return Document{}, fmt.Errorf("decode metadata document: %w", err)
	}
	return doc, nil
}
