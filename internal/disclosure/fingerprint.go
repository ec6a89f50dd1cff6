package disclosure

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/gowebpki/jcs"

	"carbon-scribe/ghg-disclosure-backend/internal/disclosure/xbrl"
	"carbon-scribe/ghg-disclosure-backend/internal/emissions"
)

type fingerprintInput struct {
	Records  []json.RawMessage `json:"records"`
	Metadata xbrl.Metadata     `json:"metadata"`
	Options  BuildOptions      `json:"options"`
}

// Fingerprint returns the sha256 of the RFC 8785 canonical form of the build
// inputs. Records are compared as a multiset, so their order does not matter.
func Fingerprint(records []emissions.ActivityRecord, meta xbrl.Metadata, options BuildOptions) (string, error) {
	canonical := make([]string, len(records))
	for i, r := range records {
		c, err := canonicalJSON(r)
		if err != nil {
			return "", fmt.Errorf("failed to canonicalize activity %d: %w", i, err)
		}
		canonical[i] = string(c)
	}
	sort.Strings(canonical)

	input := fingerprintInput{
		Records:  make([]json.RawMessage, len(canonical)),
		Metadata: meta,
		Options:  options,
	}
	for i, c := range canonical {
		input.Records[i] = json.RawMessage(c)
	}

	payload, err := canonicalJSON(input)
	if err != nil {
		return "", fmt.Errorf("failed to canonicalize build inputs: %w", err)
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:]), nil
}

func canonicalJSON(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return jcs.Transform(raw)
}
