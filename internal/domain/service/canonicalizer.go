package service

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// UnknownName is returned for empty bookrunner names.
const UnknownName = "Unknown"

// bookrunnerAliases maps lower-cased raw names to a standard display name.
var bookrunnerAliases = map[string]string{
	"jp morgan":                          "J.P. Morgan",
	"jpmorgan":                           "J.P. Morgan",
	"j.p. morgan":                        "J.P. Morgan",
	"j.p. morgan securities plc":         "J.P. Morgan",
	"jpm":                                "J.P. Morgan",
	"deutsche bank":                      "Deutsche Bank",
	"deutsche bank ag":                   "Deutsche Bank",
	"db":                                 "Deutsche Bank",
	"bnp":                                "BNP Paribas",
	"bnp paribas":                        "BNP Paribas",
	"bnp paribas sa":                     "BNP Paribas",
	"hsbc":                               "HSBC",
	"hsbc bank plc":                      "HSBC",
	"hsbc continental europe":            "HSBC",
	"goldman sachs":                      "Goldman Sachs",
	"goldman sachs international":        "Goldman Sachs",
	"gs":                                 "Goldman Sachs",
	"morgan stanley":                     "Morgan Stanley",
	"morgan stanley & co. international": "Morgan Stanley",
	"barclays":                           "Barclays",
	"barclays bank plc":                  "Barclays",
	"citi":                               "Citigroup",
	"citigroup":                          "Citigroup",
	"citigroup global markets":           "Citigroup",
	"bofa":                               "BofA Securities",
	"bofa securities":                    "BofA Securities",
	"bank of america":                    "BofA Securities",
	"bank of america merrill lynch":      "BofA Securities",
	"commerzbank":                        "Commerzbank",
	"commerzbank ag":                     "Commerzbank",
	"lbbw":                               "LBBW",
	"landesbank baden-württemberg":       "LBBW",
	"dz bank":                            "DZ Bank",
	"dz bank ag":                         "DZ Bank",
	"unicredit":                          "UniCredit",
	"unicredit bank ag":                  "UniCredit",
	"societe generale":                   "Société Générale",
	"société générale":                   "Société Générale",
	"socgen":                             "Société Générale",
	"credit agricole":                    "Crédit Agricole CIB",
	"crédit agricole cib":                "Crédit Agricole CIB",
	"credit agricole cib":                "Crédit Agricole CIB",
	"natixis":                            "Natixis",
	"ing":                                "ING",
	"ing bank":                           "ING",
	"santander":                          "Santander",
	"nomura":                             "Nomura",
	"rbc":                                "RBC Capital Markets",
	"rbc capital markets":                "RBC Capital Markets",
	"td securities":                      "TD Securities",
	"nordea":                             "Nordea",
	"danske bank":                        "Danske Bank",
	"helaba":                             "Helaba",
	"bayernlb":                           "BayernLB",
	"nord/lb":                            "NORD/LB",
	"ubs":                                "UBS",
}

// Canonicalizer maps raw bookrunner names onto standard display names.
// The table is fixed after construction.
type Canonicalizer struct {
	aliases map[string]string
}

// NewCanonicalizer builds a canonicalizer over the built-in table plus extra
// aliases; extra entries override built-in ones.
func NewCanonicalizer(extra map[string]string) *Canonicalizer {
	aliases := make(map[string]string, len(bookrunnerAliases)+len(extra))
	for k, v := range bookrunnerAliases {
		aliases[aliasKey(k)] = v
	}
	for k, v := range extra {
		if key := aliasKey(k); key != "" && strings.TrimSpace(v) != "" {
			aliases[key] = strings.TrimSpace(v)
		}
	}
	return &Canonicalizer{aliases: aliases}
}

// Canonicalize returns the standard name for raw, raw itself when unmapped,
// or UnknownName when raw is blank.
func (c *Canonicalizer) Canonicalize(raw string) string {
	key := aliasKey(raw)
	if key == "" {
		return UnknownName
	}
	if name, ok := c.aliases[key]; ok {
		return name
	}
	return raw
}

func aliasKey(s string) string {
	return norm.NFC.String(strings.Join(strings.Fields(strings.ToLower(s)), " "))
}
