package model

// CountryProfile describes one investable country. RiskScore uses the 0-10
// scale; catalog loaders normalize other scales before building profiles.
type CountryProfile struct {
	ISOCode                  string  `json:"iso_code" yaml:"iso" msgpack:"iso"`
	DisplayName              string  `json:"display_name" yaml:"name" msgpack:"name"`
	Region                   string  `json:"region,omitempty" yaml:"region" msgpack:"region"`
	RiskScore                float64 `json:"risk_score" yaml:"risk" msgpack:"risk"`
	GrowthRate               float64 `json:"growth_rate" yaml:"growth" msgpack:"growth"`
	BaseReturnRate           float64 `json:"base_return_rate" yaml:"base_return" msgpack:"base_return"`
	ExpropriationProbability float64 `json:"expropriation_probability" yaml:"expropriation_prob" msgpack:"exprop"`
}
