package fingerprint

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// genResponses generates a random set of flat response records.
func genResponses() gopter.Gen {
	return gen.SliceOf(gen.MapOf(gen.Identifier(), gen.AlphaString())).Map(func(raw []map[string]string) []map[string]any {
		responses := make([]map[string]any, len(raw))
		for i, record := range raw {
			response := make(map[string]any, len(record))
			for key, value := range record {
				response[key] = value
			}
			responses[i] = response
		}
		return responses
	})
}

func TestResponseOrderInvariance_Property(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	fingerprinter := New(Config{Now: testClock})

	properties.Property("reversed response order hashes identically", prop.ForAll(
		func(responses []map[string]any) bool {
			reversed := make([]map[string]any, len(responses))
			for i, response := range responses {
				reversed[len(responses)-1-i] = response
			}

			forward, err := fingerprinter.Fingerprint("t", nil, responses, "")
			if err != nil {
				return false
			}
			backward, err := fingerprinter.Fingerprint("t", nil, reversed, "")
			if err != nil {
				return false
			}
			return forward.ResponsePatternHash == backward.ResponsePatternHash
		},
		genResponses(),
	))

	properties.Property("duplicated records do not change the hash", prop.ForAll(
		func(responses []map[string]any) bool {
			doubled := append(append([]map[string]any{}, responses...), responses...)

			base, err := fingerprinter.Fingerprint("t", nil, responses, "")
			if err != nil {
				return false
			}
			dup, err := fingerprinter.Fingerprint("t", nil, doubled, "")
			if err != nil {
				return false
			}
			return base.ResponsePatternHash == dup.ResponsePatternHash
		},
		genResponses(),
	))

	properties.TestingRun(t)
}
