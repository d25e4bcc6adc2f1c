package dictionary

import (
	"fmt"
	"sort"
	"strings"

	"shipfilter/internal/filterspec"
)

var stateTarget = TargetRule{
	Exact:      []string{"state"},
	Synonyms:   []string{"ship_to_state", "shipping_state", "state_code", "province", "province_code"},
	Substrings: []string{"state"},
}

var serviceTarget = TargetRule{
	Exact:      []string{"service_code"},
	Synonyms:   []string{"service", "ups_service", "shipping_service", "service_level"},
	Substrings: []string{"service"},
}

var companyTarget = TargetRule{
	Exact:      []string{"company"},
	Synonyms:   []string{"company_name", "business_name", "ship_to_company"},
	Substrings: []string{"company", "business"},
}

var weightTarget = TargetRule{
	Exact:      []string{"weight"},
	Synonyms:   []string{"weight_lbs", "weight_lb", "package_weight", "total_weight"},
	Substrings: []string{"weight"},
}

var totalTarget = TargetRule{
	Exact:      []string{"total"},
	Synonyms:   []string{"order_total", "total_price", "grand_total", "total_amount"},
	Substrings: []string{"total"},
}

var states = [][2]string{
	{"Alabama", "AL"}, {"Alaska", "AK"}, {"Arizona", "AZ"}, {"Arkansas", "AR"},
	{"California", "CA"}, {"Colorado", "CO"}, {"Connecticut", "CT"}, {"Delaware", "DE"},
	{"District of Columbia", "DC"}, {"Florida", "FL"}, {"Georgia", "GA"}, {"Hawaii", "HI"},
	{"Idaho", "ID"}, {"Illinois", "IL"}, {"Indiana", "IN"}, {"Iowa", "IA"},
	{"Kansas", "KS"}, {"Kentucky", "KY"}, {"Louisiana", "LA"}, {"Maine", "ME"},
	{"Maryland", "MD"}, {"Massachusetts", "MA"}, {"Michigan", "MI"}, {"Minnesota", "MN"},
	{"Mississippi", "MS"}, {"Missouri", "MO"}, {"Montana", "MT"}, {"Nebraska", "NE"},
	{"Nevada", "NV"}, {"New Hampshire", "NH"}, {"New Jersey", "NJ"}, {"New Mexico", "NM"},
	{"New York", "NY"}, {"North Carolina", "NC"}, {"North Dakota", "ND"}, {"Ohio", "OH"},
	{"Oklahoma", "OK"}, {"Oregon", "OR"}, {"Pennsylvania", "PA"}, {"Puerto Rico", "PR"},
	{"Rhode Island", "RI"}, {"South Carolina", "SC"}, {"South Dakota", "SD"}, {"Tennessee", "TN"},
	{"Texas", "TX"}, {"Utah", "UT"}, {"Vermont", "VT"}, {"Virginia", "VA"},
	{"Washington", "WA"}, {"West Virginia", "WV"}, {"Wisconsin", "WI"}, {"Wyoming", "WY"},
}

type serviceDef struct {
	key     string
	code    string
	name    string
	aliases []string
}

var services = []serviceDef{
	{"UPS_NEXT_DAY_AIR", "01", "UPS Next Day Air", []string{"next day air", "ups next day air", "overnight", "nda"}},
	{"UPS_2ND_DAY_AIR", "02", "UPS 2nd Day Air", []string{"2nd day air", "second day air", "ups 2nd day air", "two day air"}},
	{"UPS_GROUND", "03", "UPS Ground", []string{"ground", "ups ground"}},
	{"UPS_STANDARD", "11", "UPS Standard", []string{"standard", "ups standard"}},
	{"UPS_3_DAY_SELECT", "12", "UPS 3 Day Select", []string{"3 day select", "three day select", "ups 3 day select"}},
	{"UPS_NEXT_DAY_AIR_SAVER", "13", "UPS Next Day Air Saver", []string{"next day air saver", "nda saver", "ups next day air saver"}},
	{"UPS_NEXT_DAY_AIR_EARLY", "14", "UPS Next Day Air Early", []string{"next day air early", "next day air early am", "nda early"}},
	{"UPS_2ND_DAY_AIR_AM", "59", "UPS 2nd Day Air A.M.", []string{"2nd day air am", "second day air am"}},
}

type regionDef struct {
	key     string
	codes   []string
	aliases []string
}

var regions = []regionDef{
	{"NORTHEAST", []string{"NY", "MA", "CT", "PA", "NJ", "ME", "NH", "RI", "VT"},
		[]string{"northeast", "the northeast", "northeastern", "north east"}},
	{"NEW_ENGLAND", []string{"ME", "NH", "VT", "MA", "RI", "CT"},
		[]string{"new england"}},
	{"MID_ATLANTIC", []string{"NY", "NJ", "PA", "DE", "MD", "DC"},
		[]string{"mid atlantic", "the mid atlantic"}},
	{"SOUTHEAST", []string{"VA", "WV", "NC", "SC", "GA", "FL", "KY", "TN", "AL", "MS", "AR", "LA"},
		[]string{"southeast", "the southeast", "southeastern"}},
	{"MIDWEST", []string{"OH", "MI", "IN", "IL", "WI", "MN", "IA", "MO", "ND", "SD", "NE", "KS"},
		[]string{"midwest", "the midwest", "midwestern"}},
	{"SOUTHWEST", []string{"TX", "OK", "NM", "AZ"},
		[]string{"southwest", "the southwest", "southwestern"}},
	{"WEST", []string{"MT", "WY", "CO", "ID", "UT", "NV"},
		[]string{"west", "the west", "western", "mountain west"}},
	{"WEST_COAST", []string{"WA", "OR", "CA"},
		[]string{"west coast", "the west coast"}},
	{"PACIFIC", []string{"HI", "AK"},
		[]string{"pacific", "the pacific"}},
	{"ALL_US", []string{
		"AL", "AK", "AZ", "AR", "CA", "CO", "CT", "DE", "FL", "GA",
		"HI", "ID", "IL", "IN", "IA", "KS", "KY", "LA", "ME", "MD",
		"MA", "MI", "MN", "MS", "MO", "MT", "NE", "NV", "NH", "NJ",
		"NM", "NY", "NC", "ND", "OH", "OK", "OR", "PA", "RI", "SC",
		"SD", "TN", "TX", "UT", "VT", "VA", "WA", "WV", "WI", "WY",
		"DC", "PR",
	}, []string{"all us", "all states", "nationwide", "everywhere in the us"}},
}

// blacklist holds phrases that look like vocabulary but are too vague to
// expand. They always force clarification.
var blacklist = []string{"south", "the south", "north", "east", "central", "local", "nearby", "big orders"}

// Default returns the built-in shipping dictionary.
func Default() *Dictionary {
	d, err := New(Version, defaultEntries())
	if err != nil {
		panic(fmt.Sprintf("dictionary: invalid built-in entries: %v", err))
	}
	return d
}

func defaultEntries() []Entry {
	var entries []Entry

	for _, s := range states {
		name, code := s[0], s[1]
		entries = append(entries, Entry{
			Key:         strings.ToUpper(strings.ReplaceAll(name, " ", "_")),
			Tier:        filterspec.TierA,
			Kind:        KindState,
			Aliases:     []string{name},
			Description: fmt.Sprintf("%s → %s", name, code),
			Target:      stateTarget,
			Operator:    filterspec.OpEq,
			Values:      []filterspec.TypedLiteral{filterspec.String(code)},
		})
	}

	for _, s := range services {
		entries = append(entries, Entry{
			Key:         s.key,
			Tier:        filterspec.TierA,
			Kind:        KindService,
			Aliases:     s.aliases,
			Description: fmt.Sprintf("%s → service code %s", s.name, s.code),
			Target:      serviceTarget,
			Operator:    filterspec.OpEq,
			Values:      []filterspec.TypedLiteral{filterspec.String(s.code)},
		})
	}

	for _, r := range regions {
		codes := append([]string(nil), r.codes...)
		sort.Strings(codes)
		entries = append(entries, Entry{
			Key:         r.key,
			Tier:        filterspec.TierB,
			Kind:        KindRegion,
			Aliases:     r.aliases,
			Description: fmt.Sprintf("%s (%d states: %s)", r.key, len(codes), strings.Join(codes, ", ")),
			Target:      stateTarget,
			Operator:    filterspec.OpIn,
			Values:      filterspec.Strings(codes...),
		})
	}

	entries = append(entries,
		Entry{
			Key:         "BUSINESS_RECIPIENT",
			Tier:        filterspec.TierB,
			Kind:        KindPredicate,
			Aliases:     []string{"business recipient", "business", "businesses", "companies", "commercial"},
			Description: "Rows where the company name is populated",
			Target:      companyTarget,
			Operator:    filterspec.OpIsNotBlank,
		},
		Entry{
			Key:         "PERSONAL_RECIPIENT",
			Tier:        filterspec.TierB,
			Kind:        KindPredicate,
			Aliases:     []string{"personal recipient", "residential", "individuals", "consumers"},
			Description: "Rows where the company name is empty",
			Target:      companyTarget,
			Operator:    filterspec.OpIsBlank,
		},
		Entry{
			Key:         "HEAVY_PACKAGE",
			Tier:        filterspec.TierB,
			Kind:        KindBand,
			Aliases:     []string{"heavy", "heavy package", "heavy packages", "heavy shipments"},
			Description: "Weight of 70 or more",
			Target:      weightTarget,
			Operator:    filterspec.OpGte,
			Values:      []filterspec.TypedLiteral{filterspec.Int(70)},
		},
		Entry{
			Key:         "LIGHTWEIGHT_PACKAGE",
			Tier:        filterspec.TierB,
			Kind:        KindBand,
			Aliases:     []string{"lightweight", "light package", "light packages", "lightweight packages"},
			Description: "Weight under 1",
			Target:      weightTarget,
			Operator:    filterspec.OpLt,
			Values:      []filterspec.TypedLiteral{filterspec.Int(1)},
		},
		Entry{
			Key:         "HIGH_VALUE_ORDER",
			Tier:        filterspec.TierB,
			Kind:        KindBand,
			Aliases:     []string{"high value", "high value orders", "expensive orders"},
			Description: "Order total of 500 or more",
			Target:      totalTarget,
			Operator:    filterspec.OpGte,
			Values:      []filterspec.TypedLiteral{filterspec.Int(500)},
		},
		Entry{
			Key:         "LOW_VALUE_ORDER",
			Tier:        filterspec.TierB,
			Kind:        KindBand,
			Aliases:     []string{"low value", "low value orders", "cheap orders"},
			Description: "Order total under 50",
			Target:      totalTarget,
			Operator:    filterspec.OpLt,
			Values:      []filterspec.TypedLiteral{filterspec.Int(50)},
		},
	)

	for _, phrase := range blacklist {
		entries = append(entries, Entry{
			Key:         "AMBIGUOUS_" + strings.ToUpper(strings.ReplaceAll(phrase, " ", "_")),
			Tier:        filterspec.TierC,
			Kind:        KindAmbiguous,
			Aliases:     []string{phrase},
			Description: fmt.Sprintf("%q is ambiguous and must be clarified", phrase),
		})
	}
	return entries
}
