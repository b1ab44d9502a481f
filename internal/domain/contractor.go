package domain

import "strings"

// ContractorProfile is read-only reference data describing a contractor's
// trade skills, availability, and track record.
type ContractorProfile struct {
	ID                  string
	Name                string
	Email               string
	Skills              []string
	Availability        bool
	Rating              float64
	JobsCompleted       int
	PreferredProperties []string
}

// HasSkill reports whether the contractor covers the category. Skills are
// stored lower-cased; the comparison is case-insensitive either way.
func (c *ContractorProfile) HasSkill(category string) bool {
	needle := strings.ToLower(category)
	for _, skill := range c.Skills {
		if strings.ToLower(skill) == needle {
			return true
		}
	}
	return false
}

// PrefersProperty reports whether the contractor lists the property among
// its preferred properties.
func (c *ContractorProfile) PrefersProperty(propertyID string) bool {
	for _, id := range c.PreferredProperties {
		if id == propertyID {
			return true
		}
	}
	return false
}

// ContractorFromFields decodes and validates a raw contractor profile.
func ContractorFromFields(id string, fields map[string]any) (*ContractorProfile, error) {
	if fields == nil {
		return nil, missingField("skills")
	}
	contractor := &ContractorProfile{ID: id}

	var err error
	name, err := fieldOptString(fields, "name")
	if err != nil {
		return nil, err
	}
	if name != nil {
		contractor.Name = *name
	}
	email, err := fieldOptString(fields, "email")
	if err != nil {
		return nil, err
	}
	if email != nil {
		contractor.Email = *email
	}
	if contractor.Skills, err = fieldStringSlice(fields, "skills"); err != nil {
		return nil, err
	}
	for i, skill := range contractor.Skills {
		contractor.Skills[i] = strings.ToLower(skill)
	}
	if contractor.Availability, err = fieldBool(fields, "availability", false); err != nil {
		return nil, err
	}
	if contractor.Rating, err = fieldFloat(fields, "rating", 0); err != nil {
		return nil, err
	}
	if contractor.JobsCompleted, err = fieldInt(fields, "jobsCompleted", 0); err != nil {
		return nil, err
	}
	if contractor.PreferredProperties, err = fieldStringSlice(fields, "preferredProperties"); err != nil {
		return nil, err
	}
	return contractor, nil
}
