package canon

// Tables bundles the static data the canonicalizer and reassigner are built from.
type Tables struct {
	Entities      []string
	Aliases       map[string]string
	Reassignments map[string]string
}

// DefaultTables returns fresh copies of the built-in entity list, alias map
// and district reassignments. Callers may mutate the result freely.
func DefaultTables() Tables {
	entities := []string{
		"ANDAMAN AND NICOBAR ISLANDS", "ANDHRA PRADESH", "ARUNACHAL PRADESH", "ASSAM", "BIHAR",
		"CHANDIGARH", "CHHATTISGARH", "DADRA AND NAGAR HAVELI AND DAMAN AND DIU", "DELHI", "GOA",
		"GUJARAT", "HARYANA", "HIMACHAL PRADESH", "JAMMU AND KASHMIR", "JHARKHAND", "KARNATAKA",
		"KERALA", "LADAKH", "LAKSHADWEEP", "MADHYA PRADESH", "MAHARASHTRA", "MANIPUR", "MEGHALAYA",
		"MIZORAM", "NAGALAND", "ODISHA", "PUDUCHERRY", "PUNJAB", "RAJASTHAN", "SIKKIM", "TAMIL NADU",
		"TELANGANA", "TRIPURA", "UTTAR PRADESH", "UTTARAKHAND", "WEST BENGAL",
	}

	aliases := map[string]string{
		"ANDAMAN NICOBAR":         "ANDAMAN AND NICOBAR ISLANDS",
		"ANDAMAN AND NICOBAR":     "ANDAMAN AND NICOBAR ISLANDS",
		"ANDAAMAN NICOBAR":        "ANDAMAN AND NICOBAR ISLANDS",
		"ANDAMAN NICOBAR ISLANDS": "ANDAMAN AND NICOBAR ISLANDS",
		"THE DADRA AND NAGAR HAVELI AND DAMAN AND DIU": "DADRA AND NAGAR HAVELI AND DAMAN AND DIU",
		"DADRA NAGAR HAVELI": "DADRA AND NAGAR HAVELI AND DAMAN AND DIU",
		"DAMAN AND DIU":      "DADRA AND NAGAR HAVELI AND DAMAN AND DIU",
		"ORISSA":             "ODISHA",
		"PONDICHERRY":        "PUDUCHERRY",
		"UTTARANCHAL":        "UTTARAKHAND",
		"CHHATISGARH":        "CHHATTISGARH",
		"WESTBENGAL":         "WEST BENGAL",
		"WEST BANGAL":        "WEST BENGAL",
		"WEST BENGLI":        "WEST BENGAL",
		"JAMMU KASHMIR":      "JAMMU AND KASHMIR",
	}

	// Districts carved into Telangana in 2014 but still coded under Andhra Pradesh upstream.
	reassignments := map[string]string{}
	for _, district := range []string{
		"ADILABAD", "HYDERABAD", "KARIMNAGAR", "KHAMMAM", "MAHABUBNAGAR",
		"MEDAK", "NALGONDA", "NIZAMABAD", "RANGAREDDI", "WARANGAL",
	} {
		reassignments[district] = "TELANGANA"
	}

	return Tables{
		Entities:      entities,
		Aliases:       aliases,
		Reassignments: reassignments,
	}
}
