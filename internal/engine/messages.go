package engine

import (
	"math"
	"strconv"
	"strings"

	"golang.org/x/text/language"

	"RiskArena/internal/model"
)

// messageSet holds the narrative pools for one language. Templates use
// {country}, {risk_level}, {risk}, {return}, {growth} and {exprop}.
type messageSet struct {
	levels        [3]string // low, medium, high
	noInvestment  []string
	success       []string
	failure       []string
	expropriation []string
}

var english = &messageSet{
	levels: [3]string{"low", "moderate", "high"},
	noInvestment: []string{
		"You kept your capital out of {country} this round.",
		"No money went into {country}; nothing gained, nothing lost.",
		"You sat this one out in {country}.",
	},
	success: []string{
		"{country} delivered on its {return}% expected return. Its {risk_level} political risk ({risk}/100) stayed contained and institutions held firm.",
		"Your bet on {country} paid off. Despite {risk_level} political risk, {growth}% GDP growth and business-friendly policy lifted your returns.",
		"{country} showed why investors like it: structural reforms and relative stability turned its {return}% expected return into real gains.",
		"{country} beat expectations. Pro-investment measures more than offset its {risk_level} political risk ({risk}/100).",
	},
	failure: []string{
		"{country} offered a {return}% expected return, but its {risk_level} political risk ({risk}/100) materialized. Regulatory shifts and protests hit your position.",
		"Political uncertainty in {country} ate into the {return}% return you were counting on.",
		"{country} went through the kind of turbulence typical of {risk_level} risk countries ({risk}/100). Erratic policy soured the investment climate.",
		"The political risk in {country} ({risk}/100) turned into losses. Institutional instability outweighed the {return}% upside.",
	},
	expropriation: []string{
		"Expropriation in {country}! With a {exprop}% confiscation risk and {risk_level} political risk ({risk}/100), the government nationalized your stake.",
		"Total loss in {country}. The {exprop}% expropriation risk came true and foreign assets were seized without compensation.",
		"{country} lived up to an investor's worst fear. The government rewrote the rules and took your investment ({exprop}% expropriation risk, {risk}/100 political risk).",
		"A political crisis in {country} brought a new regime that confiscated all foreign investment. The {exprop}% probability became reality.",
	},
}

var spanish = &messageSet{
	levels: [3]string{"bajo", "medio", "alto"},
	noInvestment: []string{
		"No invertiste en {country} esta ronda.",
		"Tu capital se quedó fuera de {country}: sin ganancias ni pérdidas.",
		"Decidiste no arriesgar en {country}.",
	},
	success: []string{
		"{country} cumplió su retorno esperado del {return}%. Su riesgo político {risk_level} ({risk}/100) se mantuvo bajo control.",
		"Tu apuesta por {country} salió bien: el crecimiento del {growth}% del PIB y políticas favorables impulsaron tus retornos.",
		"{country} mostró por qué atrae inversores. Reformas y estabilidad relativa convirtieron su {return}% esperado en ganancias.",
		"{country} superó las expectativas; las medidas pro-inversión compensaron su riesgo político {risk_level} ({risk}/100).",
	},
	failure: []string{
		"{country} prometía un {return}% pero su riesgo político {risk_level} ({risk}/100) se materializó. Cambios regulatorios afectaron tu inversión.",
		"La incertidumbre política en {country} redujo el retorno del {return}% que esperabas.",
		"{country} vivió la volatilidad típica de un riesgo {risk_level} ({risk}/100). Políticas erráticas dañaron el clima de inversión.",
		"El riesgo político de {country} ({risk}/100) se tradujo en pérdidas pese al potencial del {return}%.",
	},
	expropriation: []string{
		"¡Expropiación en {country}! Con un riesgo de expropiación del {exprop}% y riesgo político {risk_level} ({risk}/100), el gobierno nacionalizó tu inversión.",
		"Pérdida total en {country}: el {exprop}% de riesgo de expropiación se cumplió y los activos extranjeros fueron confiscados.",
		"{country} cumplió la peor pesadilla del inversor: el gobierno cambió las reglas y se quedó con tu inversión ({exprop}%, {risk}/100).",
		"Una crisis política en {country} llevó a un nuevo régimen que expropió toda la inversión extranjera ({exprop}% de probabilidad).",
	},
}

var (
	supportedLocales = []language.Tag{language.English, language.Spanish}
	localeMatcher    = language.NewMatcher(supportedLocales)
	messageSets      = []*messageSet{english, spanish}
)

// messagesFor picks the closest supported pool; English is the fallback.
func messagesFor(locale string) *messageSet {
	if locale == "" {
		return english
	}
	_, idx := language.MatchStrings(localeMatcher, locale)
	if idx < 0 || idx >= len(messageSets) {
		return english
	}
	return messageSets[idx]
}

func (m *messageSet) pool(kind model.OutcomeKind) []string {
	switch kind {
	case model.OutcomeSuccess:
		return m.success
	case model.OutcomeFailure:
		return m.failure
	default:
		return m.expropriation
	}
}

func (m *messageSet) render(tmpl string, c model.CountryProfile) string {
	r := strings.NewReplacer(
		"{country}", c.DisplayName,
		"{risk_level}", m.riskLevel(c.RiskScore),
		"{risk}", percent(c.RiskScore/RiskScale),
		"{return}", percent(c.BaseReturnRate),
		"{growth}", percent(c.GrowthRate),
		"{exprop}", percent(c.ExpropriationProbability),
	)
	return r.Replace(tmpl)
}

func (m *messageSet) riskLevel(risk float64) string {
	switch {
	case risk <= 3:
		return m.levels[0]
	case risk <= 6:
		return m.levels[1]
	default:
		return m.levels[2]
	}
}

// pick indexes pool with floor(r * len), guarding r == 1 from rounding.
func pick(pool []string, r float64) string {
	i := int(math.Floor(r * float64(len(pool))))
	if i >= len(pool) {
		i = len(pool) - 1
	}
	if i < 0 {
		i = 0
	}
	return pool[i]
}

func percent(f float64) string {
	return strconv.Itoa(int(math.Round(f * 100)))
}
