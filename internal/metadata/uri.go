// Package metadata is the content-addressed storage collaborator: URI parsing,
// CID derivation, storage adapters and the credential metadata document.
//
// Identifiers are CIDv1 with the raw codec and a sha2-256 multihash, so the
// URI of a document is a pure function of its bytes.
package metadata

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"

	dErrors "credpass/pkg/domain-errors"
)

// Scheme is the URI scheme for content-addressed pointers.
const Scheme = "ipfs://"

// DefaultGateway resolves ipfs:// URIs to HTTP.
const DefaultGateway = "https://ipfs.io"

// CIDFor derives the CIDv1 (raw, sha2-256) of data.
func CIDFor(data []byte) (cid.Cid, error) {
	sum, err := multihash.Sum(data, multihash.SHA2_256, -1)
	if err != nil {
		return cid.Undef, err
	}
	return cid.NewCidV1(cid.Raw, sum), nil
}

// URIFor derives the ipfs:// URI of data.
func URIFor(data []byte) (string, error) {
	id, err := CIDFor(data)
	if err != nil {
		return "", err
	}
	return Scheme + id.String(), nil
}

// ParseURI extracts the CID from an ipfs:// URI, a gateway URL containing
// /ipfs/<cid>, or a bare CID string.
func ParseURI(uri string) (cid.Cid, error) {
	uri = strings.TrimSpace(uri)
	var raw string
	switch {
	case strings.HasPrefix(uri, Scheme):
		raw = strings.TrimPrefix(uri, Scheme)
	case strings.HasPrefix(uri, "http://") || strings.HasPrefix(uri, "https://"):
		u, err := url.Parse(uri)
		if err != nil {
			return cid.Undef, invalidURI(uri)
		}
		_, after, ok := strings.Cut(u.Path, "/ipfs/")
		if !ok {
			return cid.Undef, invalidURI(uri)
		}
		raw = after
	default:
		raw = uri
	}
	// Paths inside a directory CID are addressed by the root only.
	raw, _, _ = strings.Cut(raw, "/")
	id, err := cid.Decode(raw)
	if err != nil || !id.Defined() {
		return cid.Undef, invalidURI(uri)
	}
	return id, nil
}

// GatewayURL rewrites a content URI to an HTTP URL on gateway. URIs that do
// not name a CID are returned unchanged.
func GatewayURL(gateway, uri string) string {
	id, err := ParseURI(uri)
	if err != nil {
		return uri
	}
	if gateway == "" {
		gateway = DefaultGateway
	}
	return strings.TrimRight(gateway, "/") + "/ipfs/" + id.String()
}

// Verify checks data against id when id is a raw sha2-256 CID. Other CID
// types (DAG-encoded uploads) cannot be checked without the DAG and pass.
func Verify(id cid.Cid, data []byte) error {
	if id.Type() != cid.Raw || id.Prefix().MhType != multihash.SHA2_256 {
		return nil
	}
	got, err := cid.Prefix{Version: id.Version(), Codec: cid.Raw, MhType: multihash.SHA2_256, MhLength: -1}.Sum(data)
	if err != nil {
		return err
	}
	if !got.Equals(id) {
		return fmt.Errorf("content does not match %s", id)
	}
	return nil
}

func invalidURI(uri string) error {
	return dErrors.New(dErrors.CodeInvalidInput, fmt.Sprintf("invalid content uri %q", uri))
}
