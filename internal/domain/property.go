package domain

// Address is the postal address of a managed property.
type Address struct {
	Street string
	City   string
	State  string
	Zip    string
}

// Property is read-only reference data owned by property management.
type Property struct {
	ID           string
	LandlordID   string
	PropertyName string
	Address      Address
}

// PropertyFromFields decodes and validates a raw property document.
func PropertyFromFields(id string, fields map[string]any) (*Property, error) {
	if fields == nil {
		return nil, missingField("landlordId")
	}
	property := &Property{ID: id}

	var err error
	if property.LandlordID, err = fieldString(fields, "landlordId"); err != nil {
		return nil, err
	}
	name, err := fieldOptString(fields, "propertyName")
	if err != nil {
		return nil, err
	}
	if name != nil {
		property.PropertyName = *name
	}

	if rawAddr, ok := fields["address"]; ok && rawAddr != nil {
		addrFields, ok := rawAddr.(map[string]any)
		if !ok {
			return nil, badField("address", "object", rawAddr)
		}
		for key, dst := range map[string]*string{
			"street": &property.Address.Street,
			"city":   &property.Address.City,
			"state":  &property.Address.State,
			"zip":    &property.Address.Zip,
		} {
			val, err := fieldOptString(addrFields, key)
			if err != nil {
				return nil, err
			}
			if val != nil {
				*dst = *val
			}
		}
	}
	return property, nil
}

// LandlordProfile is read-only reference data: the landlord's ordered list
// of preferred contractor ids.
type LandlordProfile struct {
	ID          string
	Contractors []string
}

// LandlordFromFields decodes a raw landlord profile document.
func LandlordFromFields(id string, fields map[string]any) (*LandlordProfile, error) {
	profile := &LandlordProfile{ID: id}
	if fields == nil {
		return profile, nil
	}
	contractors, err := fieldStringSlice(fields, "contractors")
	if err != nil {
		return nil, err
	}
	profile.Contractors = contractors
	return profile, nil
}
