// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package semantic

import (
	"context"
	"regexp"
	"strings"

	"github.com/pdiddy/medcode/internal/textnorm"
	"github.com/pdiddy/medcode/pkg/types"
)

// Section names recognised in clinical reports.
const (
	SectionChiefComplaint = "chief_complaint"
	SectionHistory        = "history_of_present_illness"
	SectionReview         = "review_of_systems"
	SectionExam           = "physical_examination"
	SectionAssessment     = "assessment_and_plan"
	SectionProcedures     = "procedures"
	SectionDiagnoses      = "diagnoses"
)

// sectionHeaders maps lower-cased header spellings to section names.
var sectionHeaders = map[string]string{
	"chief complaint":            SectionChiefComplaint,
	"cc":                         SectionChiefComplaint,
	"history of present illness": SectionHistory,
	"hpi":                        SectionHistory,
	"review of systems":          SectionReview,
	"ros":                        SectionReview,
	"physical examination":       SectionExam,
	"physical exam":              SectionExam,
	"exam":                       SectionExam,
	"assessment and plan":        SectionAssessment,
	"a&p":                        SectionAssessment,
	"assessment":                 SectionAssessment,
	"procedures performed":       SectionProcedures,
	"procedures":                 SectionProcedures,
	"procedure":                  SectionProcedures,
	"final diagnosis":            SectionDiagnoses,
	"diagnoses":                  SectionDiagnoses,
	"diagnosis":                  SectionDiagnoses,
	"postoperative diagnosis":    SectionDiagnoses,
	"preoperative diagnosis":     SectionDiagnoses,
}

// headerPattern matches a known header at the start of a line followed by
// a colon. Longer alternatives come first so "procedures performed" wins
// over "procedures".
var headerPattern = regexp.MustCompile(`(?im)^[ \t]*(chief complaint|cc|history of present illness|hpi|review of systems|ros|physical examination|physical exam|exam|assessment and plan|a&p|assessment|procedures performed|procedures|procedure|final diagnosis|postoperative diagnosis|preoperative diagnosis|diagnoses|diagnosis)[ \t]*:`)

// sectionRoutes lists, per category, the sections whose text is searched
// when falling back to section matching.
var sectionRoutes = map[types.Category][]string{
	types.CategoryICD10: {SectionChiefComplaint, SectionHistory, SectionAssessment, SectionDiagnoses},
	types.CategoryCPT:   {SectionProcedures, SectionExam, SectionAssessment},
}

// Section is one headed block of a report.
type Section struct {
	Name   string
	Text   string
	Offset int
}

// Sections splits text into headed sections. A section runs from its
// header to the next header or blank line. Only the first occurrence of
// each section name is kept.
func Sections(text string) []Section {
	locs := headerPattern.FindAllStringSubmatchIndex(text, -1)
	var out []Section
	seen := make(map[string]bool)
	for i, loc := range locs {
		name := sectionHeaders[strings.ToLower(text[loc[2]:loc[3]])]
		if name == "" || seen[name] {
			continue
		}
		start, end := loc[1], len(text)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		body := text[start:end]
		if blank := strings.Index(body, "\n\n"); blank >= 0 {
			body = body[:blank]
		}
		body = textnorm.Clean(body)
		if body == "" {
			continue
		}
		seen[name] = true
		out = append(out, Section{Name: name, Text: body, Offset: start})
	}
	return out
}

// SectionCandidates matches the diagnosis-bearing sections of text against
// the ICD-10 catalog and the procedure-bearing sections against the CPT
// catalog. When text has no recognised sections the whole text is used.
// Every neighbour above the threshold becomes a semantic candidate.
func (m *Matcher) SectionCandidates(ctx context.Context, text string) ([]types.ExtractionCandidate, error) {
	sections := Sections(text)
	byName := make(map[string]string, len(sections))
	for _, s := range sections {
		byName[s.Name] = s.Text
	}

	var out []types.ExtractionCandidate
	for _, category := range types.AllCategories {
		route, ok := sectionRoutes[category]
		if !ok || !m.HasCatalog(category) {
			continue
		}
		var parts []string
		for _, name := range route {
			if t := byName[name]; t != "" {
				parts = append(parts, t)
			}
		}
		query := strings.Join(parts, " ")
		if query == "" {
			query = textnorm.Clean(text)
		}
		cands, err := m.MatchAll(ctx, query, category)
		if err != nil {
			return nil, err
		}
		out = append(out, cands...)
	}
	return out, nil
}
