package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rorlink/internal/record"
)

func TestParseRecord_ObjectAffiliations(t *testing.T) {
	line := []byte(`{
		"id": "10.1234/example",
		"attributes": {
			"creators": [
				{
					"name": "Doe, Jane",
					"affiliation": [
						{"name": "University of Oxford"},
						{"name": "Max Planck Institute"}
					]
				}
			]
		}
	}`)

	records := ParseRecord(line)
	require.Len(t, records, 2)

	assert.Equal(t, "10.1234/example", records[0].DOI)
	assert.Equal(t, 0, records[0].AuthorIdx)
	assert.Equal(t, "Doe, Jane", records[0].AuthorName)
	assert.Equal(t, 0, records[0].AffiliationIdx)
	assert.Equal(t, "University of Oxford", records[0].Affiliation)
	assert.Equal(t, record.Fingerprint("University of Oxford"), records[0].AffiliationHash)

	assert.Equal(t, 1, records[1].AffiliationIdx)
	assert.Equal(t, "Max Planck Institute", records[1].Affiliation)
}

func TestParseRecord_StringAffiliations(t *testing.T) {
	line := []byte(`{
		"id": "10.1234/strings",
		"attributes": {
			"creators": [
				{"name": "Roe, Richard", "affiliation": ["CERN"]}
			]
		}
	}`)

	records := ParseRecord(line)
	require.Len(t, records, 1)
	assert.Equal(t, "CERN", records[0].Affiliation)
	assert.Empty(t, records[0].ExistingRORID)
}

func TestParseRecord_ExistingRORIdentifier(t *testing.T) {
	line := []byte(`{
		"id": "10.1234/existing",
		"attributes": {
			"creators": [
				{
					"name": "Doe, Jane",
					"affiliation": [{
						"name": "University of Oxford",
						"affiliationIdentifier": "https://ror.org/052gg0110",
						"affiliationIdentifierScheme": "ROR"
					}]
				}
			]
		}
	}`)

	records := ParseRecord(line)
	require.Len(t, records, 1)
	assert.Equal(t, "https://ror.org/052gg0110", records[0].ExistingRORID)
}

func TestParseRecord_NonRORSchemeIgnored(t *testing.T) {
	line := []byte(`{
		"id": "10.1234/grid",
		"attributes": {
			"creators": [
				{
					"name": "Doe, Jane",
					"affiliation": [{
						"name": "University of Oxford",
						"affiliationIdentifier": "grid.4991.5",
						"affiliationIdentifierScheme": "GRID"
					}]
				}
			]
		}
	}`)

	records := ParseRecord(line)
	require.Len(t, records, 1)
	assert.Empty(t, records[0].ExistingRORID)
}

func TestParseRecord_DOIFromAttributes(t *testing.T) {
	line := []byte(`{
		"attributes": {
			"doi": "10.5555/fallback",
			"creators": [
				{"name": "Doe, Jane", "affiliation": ["Somewhere"]}
			]
		}
	}`)

	records := ParseRecord(line)
	require.Len(t, records, 1)
	assert.Equal(t, "10.5555/fallback", records[0].DOI)
}

func TestParseRecord_SkipsDegenerateInputs(t *testing.T) {
	cases := map[string]string{
		"no doi":              `{"attributes":{"creators":[{"name":"X","affiliation":["Y"]}]}}`,
		"no creators":         `{"id":"10.1/a","attributes":{}}`,
		"nameless creator":    `{"id":"10.1/a","attributes":{"creators":[{"affiliation":["Y"]}]}}`,
		"empty affiliation":   `{"id":"10.1/a","attributes":{"creators":[{"name":"X","affiliation":[""]}]}}`,
		"malformed json":      `{"id":`,
		"affiliation numbers": `{"id":"10.1/a","attributes":{"creators":[{"name":"X","affiliation":[42]}]}}`,
	}

	for name, line := range cases {
		assert.Empty(t, ParseRecord([]byte(line)), name)
	}
}
