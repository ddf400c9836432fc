package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/JanithMCSCO/Medmaestro-gmail-agent/internal/core/domain"
)

// PolicySpec is the on-disk completeness policy description.
//
//	policy: required_test_types
//	min_documents: 2
//	required_test_types:
//	  - blood panel
//	  - mri scan
type PolicySpec struct {
	Policy            string   `yaml:"policy"`
	MinDocuments      int      `yaml:"min_documents"`
	RequiredTestTypes []string `yaml:"required_test_types"`
}

const (
	policyMinDocuments      = "min_documents"
	policyRequiredTestTypes = "required_test_types"
)

// LoadPolicy builds the completeness policy from the YAML file at path.
// An empty path selects the default min-documents policy with the given
// fallback threshold.
func LoadPolicy(path string, fallbackMinDocuments int) (domain.CollationPolicy, error) {
	if path == "" {
		return domain.MinDocumentsPolicy(fallbackMinDocuments), nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return domain.CollationPolicy{}, fmt.Errorf("read policy file: %w", err)
	}

	var spec PolicySpec
	if err := yaml.Unmarshal(raw, &spec); err != nil {
		return domain.CollationPolicy{}, fmt.Errorf("parse policy file: %w", err)
	}
	return spec.Build(fallbackMinDocuments)
}

func (s PolicySpec) Build(fallbackMinDocuments int) (domain.CollationPolicy, error) {
	switch s.Policy {
	case "", policyMinDocuments:
		n := s.MinDocuments
		if n == 0 {
			n = fallbackMinDocuments
		}
		return domain.MinDocumentsPolicy(n), nil
	case policyRequiredTestTypes:
		if len(s.RequiredTestTypes) == 0 {
			return domain.CollationPolicy{}, fmt.Errorf("policy %q needs at least one required test type", s.Policy)
		}
		return domain.RequiredTestTypesPolicy(s.RequiredTestTypes), nil
	default:
		return domain.CollationPolicy{}, fmt.Errorf("unknown completeness policy %q", s.Policy)
	}
}
