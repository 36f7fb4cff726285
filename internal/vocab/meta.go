package vocab

// Meta-field synonyms in detection priority order. The first code present in
// a harmonized frame wins.
var (
	timestampFields = []string{"timestamp", "datetime", "date", "time"}
	siteFields      = []string{"sampling_point", "site", "station", "site_id"}
	latitudeFields  = []string{"lat", "latitude"}
	longitudeFields = []string{"lon", "longitude"}
	depthFields     = []string{"depth_m", "depth"}
)

func TimestampFields() []string { return append([]string(nil), timestampFields...) }
func SiteFields() []string      { return append([]string(nil), siteFields...) }
func LatitudeFields() []string  { return append([]string(nil), latitudeFields...) }
func LongitudeFields() []string { return append([]string(nil), longitudeFields...) }
func DepthFields() []string     { return append([]string(nil), depthFields...) }
