package migrate

// Historical column-family catalogs. Each list is the exact set of families
// a released format version opened the database with. These lists are
// frozen: migration steps depend on them to recognize and rewrite old
// shapes, so they are never edited to follow the current catalog in
// package store.

// cfNamesV0_42 is the 0.42.x catalog. It still carries the deprecated
// "account policy" family and the pre-rename "TI database" family.
var cfNamesV0_42 = []string{
	"access_tokens",
	"accounts",
	"account policy",
	"agents",
	"allow networks",
	"batch_info",
	"block networks",
	"category",
	"cluster",
	"column stats",
	"configs",
	"csv column extras",
	"customers",
	"data sources",
	"filters",
	"hosts",
	"models",
	"model indicators",
	"meta",
	"networks",
	"nodes",
	"outliers",
	"qualifiers",
	"external services",
	"sampling policy",
	"scores",
	"statuses",
	"templates",
	"TI database",
	"time series",
	"Tor exit nodes",
	"traffic filter rules",
	"triage policy",
	"triage response",
	"trusted DNS servers",
	"trusted user agents",
}

// cfNamesV0_42WithoutAccountPolicy returns the 0.42 catalog minus the
// "account policy" family, the shape a partially migrated directory has
// after the drop but before the rename.
func cfNamesV0_42WithoutAccountPolicy() []string {
	names := make([]string, 0, len(cfNamesV0_42)-1)
	for _, name := range cfNamesV0_42 {
		if name != "account policy" {
			names = append(names, name)
		}
	}
	return names
}
