package overrides

import (
	"context"
	"sort"
	"strings"
	"unicode"
)

// StandardsService validates standard codes and compares their domains. The
// real implementation lives outside this service.
type StandardsService interface {
	ValidateStandardsList(ctx context.Context, codes []string) (StandardsValidation, error)
	DetectDomainChange(ctx context.Context, oldCodes, newCodes []string) (DomainChange, error)
}

// BasicStandards accepts any well-formed code and treats everything before the
// last '.' (or '-') as the domain. It stands in until a catalogue-backed
// service is configured.
type BasicStandards struct{}

func (BasicStandards) ValidateStandardsList(ctx context.Context, codes []string) (StandardsValidation, error) {
	if err := ctx.Err(); err != nil {
		return StandardsValidation{}, err
	}
	out := StandardsValidation{Valid: []string{}, Invalid: []string{}}
	for _, code := range codes {
		if wellFormed(code) {
			out.Valid = append(out.Valid, code)
			continue
		}
		out.Invalid = append(out.Invalid, code)
		if fixed := strings.ToUpper(strings.Join(strings.Fields(code), "")); wellFormed(fixed) {
			if out.Suggestions == nil {
				out.Suggestions = make(map[string][]string)
			}
			out.Suggestions[code] = []string{fixed}
		}
	}
	return out, nil
}

func (BasicStandards) DetectDomainChange(ctx context.Context, oldCodes, newCodes []string) (DomainChange, error) {
	if err := ctx.Err(); err != nil {
		return DomainChange{}, err
	}
	before := domains(oldCodes)
	after := domains(newCodes)
	change := DomainChange{
		OriginalDomains: keys(before),
		NewDomains:      keys(after),
		Changes:         []string{},
	}
	for _, d := range change.NewDomains {
		if !before[d] {
			change.Changes = append(change.Changes, "added domain "+d)
		}
	}
	for _, d := range change.OriginalDomains {
		if !after[d] {
			change.Changes = append(change.Changes, "removed domain "+d)
		}
	}
	change.HasSignificantChange = len(before) > 0 && len(change.Changes) > 0
	return change, nil
}

func wellFormed(code string) bool {
	if len(code) < 2 || len(code) > 64 {
		return false
	}
	for _, r := range code {
		if !(unicode.IsLetter(r) || unicode.IsDigit(r) || r == '.' || r == '-' || r == '_') {
			return false
		}
	}
	return true
}

func domainOf(code string) string {
	if i := strings.LastIndex(code, "."); i > 0 {
		return code[:i]
	}
	if i := strings.LastIndex(code, "-"); i > 0 {
		return code[:i]
	}
	return code
}

func domains(codes []string) map[string]bool {
	out := make(map[string]bool, len(codes))
	for _, c := range codes {
		if c = strings.TrimSpace(c); c != "" {
			out[domainOf(c)] = true
		}
	}
	return out
}

func keys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
