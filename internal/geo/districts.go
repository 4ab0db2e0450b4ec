package geo

// district is one row of the static administrative reference table: the
// legal district code, display name, and the centroid of the district.
type district struct {
	code string
	name string
	lat  float64
	lon  float64
}

// districtTable is the administrative district reference data for the Seoul
// metropolitan coverage area. Loaded once, read-only. Codes are the official
// 5-digit administrative codes.
var districtTable = []district{
	{"11110", "Jongno-gu", 37.5735, 126.9790},
	{"11140", "Jung-gu", 37.5641, 126.9979},
	{"11170", "Yongsan-gu", 37.5324, 126.9906},
	{"11200", "Seongdong-gu", 37.5634, 127.0370},
	{"11215", "Gwangjin-gu", 37.5385, 127.0823},
	{"11230", "Dongdaemun-gu", 37.5744, 127.0396},
	{"11260", "Jungnang-gu", 37.6063, 127.0925},
	{"11290", "Seongbuk-gu", 37.5894, 127.0167},
	{"11305", "Gangbuk-gu", 37.6396, 127.0257},
	{"11320", "Dobong-gu", 37.6688, 127.0471},
	{"11350", "Nowon-gu", 37.6543, 127.0568},
	{"11380", "Eunpyeong-gu", 37.6027, 126.9291},
	{"11410", "Seodaemun-gu", 37.5791, 126.9368},
	{"11440", "Mapo-gu", 37.5663, 126.9014},
	{"11470", "Yangcheon-gu", 37.5170, 126.8665},
	{"11500", "Gangseo-gu", 37.5510, 126.8495},
	{"11530", "Guro-gu", 37.4954, 126.8874},
	{"11545", "Geumcheon-gu", 37.4569, 126.8955},
	{"11560", "Yeongdeungpo-gu", 37.5264, 126.8963},
	{"11590", "Dongjak-gu", 37.5124, 126.9393},
	{"11620", "Gwanak-gu", 37.4784, 126.9516},
	{"11650", "Seocho-gu", 37.4837, 127.0324},
	{"11680", "Gangnam-gu", 37.5172, 127.0473},
	{"11710", "Songpa-gu", 37.5145, 127.1060},
	{"11740", "Gangdong-gu", 37.5301, 127.1238},
}
