package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
)

// DefaultBoundarySuffix is appended to reconciled district names to match the
// boundary dataset's naming convention.
const DefaultBoundarySuffix = " District"

// BuiltinMappingVersion names the mapping set compiled into the binary.
const BuiltinMappingVersion = "builtin-2010-2012"

// MappingSet is the versioned name canonicalization configuration. It is
// loaded once at process start and read-only afterwards.
type MappingSet struct {
	Version     string            `json:"version"`
	Districts   map[string]string `json:"districts"`
	Categories  map[string]string `json:"categories"`
	Corrections map[string]string `json:"corrections"`
	Suffix      string            `json:"suffix"`
}

// DefaultMappings returns a fresh copy of the built-in mapping set covering
// the 2010-2012 police district and crime category labels.
func DefaultMappings() MappingSet {
	return MappingSet{
		Version: BuiltinMappingVersion,
		Districts: map[string]string{
			"Badulla (Badulla & Bandarawela)":                                "Badulla",
			"Colombo (Colombo South, North, Central) Mt. Laviniya, Nugegoda": "Colombo",
			"Galle (Galle/Elpitiya)":                                         "Galle",
			"Gampaha (Kelaniya/Gampha/Negombo Div)":                          "Gampaha",
			"Hambanthota (Tangalle )":                                        "Hambantota",
			"Jaffna(Jaffna, KKS)":                                            "Jaffna",
			"Kalutara (Kalutara,Panadura)":                                   "Kalutara",
			"Kandy (Kandy, Gampola)":                                         "Kandy",
			"Kegalle (Kegalle, Sithawakapura0":                               "Kegalle",
			"Kilinochchi (Kilinochchi, Mankulam )":                           "Kilinochchi",
			"Kurunegala (Kurunegala, Kuliyapitiya, Nikaweratiya )":           "Kurunegala",
			"Nuwara Eliya (Hatton, Nuwara Eliya )":                           "Nuwara Eliya",
			"Puttlam (Puttlam, Chilaw )":                                     "Puttalam",
			"Trincomalee (Kantale, Trincomalee )":                            "Trincomalee",
		},
		Categories: map[string]string{
			"Abduction / Kidnapping": "Abduction/Kidnap",
			"Theft of Property Including praedial produce over Rs . 5000 / & cycle cattle theft Irrespective of their value": "Theft > 5000",
			"All other thefts":          "Other Thefts",
			"Assaults":                  "Assault",
			"Attempted Murder":          "Attempted Murder",
			"Bribery":                   "Bribery",
			"Burglary":                  "Burglary",
			"Cheating":                  "Cheating",
			"Criminal Trespass":         "Criminal Trespass",
			"Damaging Private Property": "Damage Property",
			"Extortion":                 "Extortion",
			"Grave Robbery":             "Grave Robbery",
			"Homicide":                  "Homicide",
			"House Breaking":            "House Breaking",
			"Human trafficking":         "Human trafficking",
			"Murder":                    "Murder",
			"Other":                     "Other",
			"Other offences against":    "Other offences against",
			"Possession of Ganja":       "Possession of Ganja",
			"Rape":                      "Rape",
			"Rioting":                   "Rioting",
			"Robbery":                   "Robbery",
			"Sexual Harassment":         "Sexual Harassment",
			"Theft of Motor Vehicle":    "Vehicle Theft",
			"Theft of Property Including praedial produce Rs. 5000/- and below": "Theft <= 5000",
		},
		Corrections: map[string]string{
			"Mulathivu":   "Mullaitivu",
			"Mullativu":   "Mullaitivu",
			"Puttlam":     "Puttalam",
			"Hambanthota": "Hambantota",
			"Gampha":      "Gampaha",
			"Vauniya":     "Vavuniya",
		},
		Suffix: DefaultBoundarySuffix,
	}
}

// DecodeMappingSet reads a JSON mapping set. A missing suffix defaults to
// DefaultBoundarySuffix; the result is validated.
func DecodeMappingSet(r io.Reader) (MappingSet, error) {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	var set MappingSet
	if err := dec.Decode(&set); err != nil {
		return MappingSet{}, fmt.Errorf("decode mapping set: %w", err)
	}
	set = set.withDefaults()
	if err := set.Validate(); err != nil {
		return MappingSet{}, err
	}
	return set, nil
}

func (m MappingSet) withDefaults() MappingSet {
	if m.Suffix == "" {
		m.Suffix = DefaultBoundarySuffix
	}
	if m.Districts == nil {
		m.Districts = map[string]string{}
	}
	if m.Categories == nil {
		m.Categories = map[string]string{}
	}
	if m.Corrections == nil {
		m.Corrections = map[string]string{}
	}
	return m
}

// Validate checks the mapping set is usable. Chained entries (a canonical
// value that is itself mapped elsewhere) are rejected because they make
// normalization non-idempotent.
func (m MappingSet) Validate() error {
	var problems []string
	if strings.TrimSpace(m.Version) == "" {
		problems = append(problems, "version required")
	}
	check := func(table string, entries map[string]string) {
		for _, raw := range sortedKeys(entries) {
			canonical := entries[raw]
			if raw == "" {
				problems = append(problems, fmt.Sprintf("%s: empty key", table))
				continue
			}
			if strings.TrimSpace(canonical) == "" {
				problems = append(problems, fmt.Sprintf("%s: %q maps to empty value", table, raw))
				continue
			}
			if next, ok := entries[canonical]; ok && next != canonical {
				problems = append(problems, fmt.Sprintf("%s: %q -> %q -> %q is chained", table, raw, canonical, next))
			}
		}
	}
	check("districts", m.Districts)
	check("categories", m.Categories)
	check("corrections", m.Corrections)
	if len(problems) > 0 {
		return &MappingError{Version: m.Version, Problems: problems}
	}
	return nil
}

// Clone returns a deep copy.
func (m MappingSet) Clone() MappingSet {
	return MappingSet{
		Version:     m.Version,
		Districts:   cloneStringMap(m.Districts),
		Categories:  cloneStringMap(m.Categories),
		Corrections: cloneStringMap(m.Corrections),
		Suffix:      m.Suffix,
	}
}

// IsCanonicalDistrict reports whether name is a value of the district table.
func (m MappingSet) IsCanonicalDistrict(name string) bool {
	return containsValue(m.Districts, name)
}

// IsCanonicalCategory reports whether name is a value of the category table.
func (m MappingSet) IsCanonicalCategory(name string) bool {
	return containsValue(m.Categories, name)
}

// ErrInvalidMappings classifies MappingError.
var ErrInvalidMappings = errors.New("invalid mapping set")

// MappingError lists every problem found in a mapping set.
type MappingError struct {
	Version  string
	Problems []string
}

func (e *MappingError) Error() string {
	return fmt.Sprintf("mapping set %q: %s", e.Version, strings.Join(e.Problems, "; "))
}

func (e *MappingError) Is(target error) bool { return target == ErrInvalidMappings }

func containsValue(m map[string]string, value string) bool {
	for _, v := range m {
		if v == value {
			return true
		}
	}
	return false
}

func cloneStringMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
