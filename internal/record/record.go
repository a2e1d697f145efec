// Package record defines the data types shared by the extraction, resolution,
// and reconciliation stages, plus the affiliation fingerprint used as the
// checkpoint and join key throughout the pipeline.
package record

import (
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// Fingerprint returns the fixed-width hexadecimal fingerprint of an
// affiliation string. It hashes the raw UTF-8 bytes, so the same string
// always yields the same 16-digit key no matter which stage computed it.
func Fingerprint(affiliation string) string {
	return fmt.Sprintf("%016x", xxhash.Sum64String(affiliation))
}

// AuthorAffiliationRecord links one affiliation occurrence to its DOI and
// author position in the source dump. The extraction stage emits one per
// (DOI, author, affiliation) triple; the reconciliation stage joins resolved
// identifiers back onto them by AffiliationHash.
type AuthorAffiliationRecord struct {
	DOI             string `json:"doi"`
	AuthorIdx       int    `json:"author_idx"`
	AuthorName      string `json:"author_name"`
	AffiliationIdx  int    `json:"affiliation_idx"`
	Affiliation     string `json:"affiliation"`
	AffiliationHash string `json:"affiliation_hash"`
	// ExistingRORID is set when the source record already carried a ROR
	// identifier for this affiliation; such records bypass resolution.
	ExistingRORID string `json:"existing_ror_id,omitempty"`
}

// Match records one successfully resolved affiliation.
type Match struct {
	Affiliation     string `json:"affiliation"`
	AffiliationHash string `json:"affiliation_hash"`
	RORID           string `json:"ror_id"`
}

// MatchFailed records an affiliation that reached a terminal outcome without
// a resolved identifier. Error is either a transport/status description or
// the distinguished "no match found" reason.
type MatchFailed struct {
	Affiliation     string `json:"affiliation"`
	AffiliationHash string `json:"affiliation_hash"`
	Error           string `json:"error"`
}

// EnrichedAffiliation is one affiliation of an enriched creator, in the
// DataCite metadata shape.
type EnrichedAffiliation struct {
	Name                        string `json:"name"`
	AffiliationIdentifier       string `json:"affiliationIdentifier"`
	AffiliationIdentifierScheme string `json:"affiliationIdentifierScheme"`
	SchemeURI                   string `json:"schemeUri"`
}

// EnrichedCreator is one creator with at least one resolved affiliation.
type EnrichedCreator struct {
	Name        string                `json:"name"`
	GivenName   string                `json:"givenName,omitempty"`
	FamilyName  string                `json:"familyName,omitempty"`
	Affiliation []EnrichedAffiliation `json:"affiliation"`
}

// EnrichedRecord is the reconciliation output for one DOI.
type EnrichedRecord struct {
	DOI      string            `json:"doi"`
	Creators []EnrichedCreator `json:"creators"`
}
