// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package generative

import (
	"bytes"
	"fmt"
	"text/template"
)

// extractionPromptTmpl asks the model for clinical entities and code
// guesses. Every guess carries the report span it was read from so the
// reconciler can re-resolve it against the catalog.
var extractionPromptTmpl = template.Must(template.New("extract").Parse(
	`You are a medical coding assistant. Read the clinical report below and extract:

1. Clinical terms: conditions, signs, symptoms and findings as written.
2. Anatomical locations mentioned in the report.
3. Diagnosis descriptions, phrased as a coder would look them up.
4. Procedures performed or ordered.
5. Candidate medical codes:
   - ICD-10 diagnosis codes (e.g. I21.4, J44.9, E11.9)
   - CPT procedure codes (e.g. 99213, 93000, 71045)
   - HCPCS supply and service codes (e.g. J1100, G0008, A4253)
   For each code give the exact phrase from the report that supports it.

Return ONLY a JSON object with exactly these keys and no other text:
{
  "clinical_terms": ["..."],
  "anatomical_locations": ["..."],
  "diagnoses": ["..."],
  "procedures": ["..."],
  "codes": [{"code": "...", "category": "ICD-10|CPT|HCPCS", "span": "..."}]
}
Use an empty list for anything not present in the report.

Clinical report:
{{.Text}}
`))

// RenderPrompt builds the extraction prompt for text, truncated to maxChars
// characters when maxChars is positive.
func RenderPrompt(text string, maxChars int) (string, error) {
	var buf bytes.Buffer
	err := extractionPromptTmpl.Execute(&buf, struct{ Text string }{Text: Truncate(text, maxChars)})
	if err != nil {
		return "", fmt.Errorf("rendering prompt: %w", err)
	}
	return buf.String(), nil
}

// Truncate returns the first n characters of s. Non-positive n leaves s
// untouched.
func Truncate(s string, n int) string {
	if n <= 0 {
		return s
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
