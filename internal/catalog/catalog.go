// Package catalog loads the static country reference data and normalizes
// it onto the engine's 0-10 risk scale.
package catalog

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"

	"go.uber.org/multierr"

	"RiskArena/internal/engine"
	"RiskArena/internal/model"
)

var (
	ErrInvalidCountry  = errors.New("invalid country")
	ErrDuplicateISO    = errors.New("duplicate iso code")
	ErrTooFewCountries = errors.New("catalog needs at least two countries")
)

// Catalog is an immutable, ordered set of country profiles.
type Catalog struct {
	countries []model.CountryProfile
	byISO     map[string]int
}

// Load reads src and builds a Catalog from its normalized records.
func Load(src Source) (*Catalog, error) {
	doc, err := src.Load()
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", src.Name(), err)
	}
	profiles, err := Normalize(doc)
	if err != nil {
		return nil, fmt.Errorf("normalize %s: %w", src.Name(), err)
	}
	return New(profiles)
}

// Default returns the embedded catalog.
func Default() (*Catalog, error) {
	return Load(EmbeddedSource{})
}

// New builds a Catalog from already normalized profiles.
func New(profiles []model.CountryProfile) (*Catalog, error) {
	c := &Catalog{
		countries: make([]model.CountryProfile, 0, len(profiles)),
		byISO:     make(map[string]int, len(profiles)),
	}
	for _, p := range profiles {
		p.ISOCode = strings.ToUpper(strings.TrimSpace(p.ISOCode))
		if _, dup := c.byISO[p.ISOCode]; dup {
			return nil, fmt.Errorf("%s: %w", p.ISOCode, ErrDuplicateISO)
		}
		c.byISO[p.ISOCode] = len(c.countries)
		c.countries = append(c.countries, p)
	}
	if len(c.countries) < 2 {
		return nil, ErrTooFewCountries
	}
	return c, nil
}

// Lookup finds a country by ISO code, case-insensitively.
func (c *Catalog) Lookup(iso string) (model.CountryProfile, bool) {
	i, ok := c.byISO[strings.ToUpper(strings.TrimSpace(iso))]
	if !ok {
		return model.CountryProfile{}, false
	}
	return c.countries[i], true
}

// All returns a copy of every profile in catalog order.
func (c *Catalog) All() []model.CountryProfile {
	out := make([]model.CountryProfile, len(c.countries))
	copy(out, c.countries)
	return out
}

func (c *Catalog) Len() int { return len(c.countries) }

// Pair draws two distinct countries.
func (c *Catalog) Pair(rng *rand.Rand) (model.CountryProfile, model.CountryProfile) {
	n := len(c.countries)
	i := rng.IntN(n)
	j := rng.IntN(n - 1)
	if j >= i {
		j++
	}
	return c.countries[i], c.countries[j]
}

// Normalize converts raw records to profiles on the 0-10 risk scale and
// validates them. Every invalid record is reported.
func Normalize(doc *Document) ([]model.CountryProfile, error) {
	scale := doc.RiskScale
	if scale <= 0 {
		scale = detectScale(doc.Countries)
	}
	factor := engine.RiskScale / scale

	var errs error
	profiles := make([]model.CountryProfile, 0, len(doc.Countries))
	for i, raw := range doc.Countries {
		p := raw.profile(factor)
		if err := validate(p); err != nil {
			label := p.ISOCode
			if label == "" {
				label = fmt.Sprintf("#%d", i)
			}
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", label, err))
			continue
		}
		profiles = append(profiles, p)
	}
	if errs != nil {
		return nil, errs
	}
	return profiles, nil
}

// detectScale treats a file whose risks all fit in [0,1] as a 0-1 file.
func detectScale(raws []RawCountry) float64 {
	if len(raws) == 0 {
		return engine.RiskScale
	}
	for _, r := range raws {
		if r.Risk > 1 {
			return engine.RiskScale
		}
	}
	return 1
}

func (r RawCountry) profile(factor float64) model.CountryProfile {
	iso := r.ISO
	if iso == "" {
		iso = r.ISO2
	}
	p := model.CountryProfile{
		ISOCode:     strings.ToUpper(strings.TrimSpace(iso)),
		DisplayName: strings.TrimSpace(r.Name),
		Region:      r.Region,
		RiskScore:   r.Risk * factor,
		GrowthRate:  r.Growth,
	}
	switch {
	case r.BaseReturn != nil:
		p.BaseReturnRate = *r.BaseReturn
	case r.BaseRetAlt != nil:
		p.BaseReturnRate = *r.BaseRetAlt
	}
	switch {
	case r.Exprop != nil:
		p.ExpropriationProbability = *r.Exprop
	case r.ExpropAlt != nil:
		p.ExpropriationProbability = *r.ExpropAlt
	}
	return p
}

func validate(p model.CountryProfile) error {
	switch {
	case p.ISOCode == "":
		return fmt.Errorf("%w: missing iso code", ErrInvalidCountry)
	case p.DisplayName == "":
		return fmt.Errorf("%w: missing name", ErrInvalidCountry)
	case p.RiskScore < 0 || p.RiskScore > engine.RiskScale:
		return fmt.Errorf("%w: risk %.2f outside 0-%.0f", ErrInvalidCountry, p.RiskScore, engine.RiskScale)
	case p.ExpropriationProbability < 0 || p.ExpropriationProbability > 1:
		return fmt.Errorf("%w: expropriation probability %.3f outside [0,1]", ErrInvalidCountry, p.ExpropriationProbability)
	case p.BaseReturnRate < 0:
		return fmt.Errorf("%w: negative base return %.3f", ErrInvalidCountry, p.BaseReturnRate)
	}
	return nil
}
