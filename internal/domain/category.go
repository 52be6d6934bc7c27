package domain

import "strings"

// Category es la categoría temática inferida de un mercado.
type Category string

const (
	CategoryCrypto      Category = "crypto"
	CategoryPolitics    Category = "politics"
	CategoryEconomics   Category = "economics"
	CategorySports      Category = "sports"
	CategoryTech        Category = "tech"
	CategoryClimate     Category = "climate"
	CategoryGeopolitics Category = "geopolitics"
	CategoryGeneral     Category = "general"
)

// categoryMatcher asocia una categoría con sus keywords. El orden de la lista
// importa: gana el primer patrón que matchea, así la clasificación es
// determinista e independiente del orden de los inputs.
type categoryMatcher struct {
	category Category
	keywords []string
}

var categoryMatchers = []categoryMatcher{
	{CategoryCrypto, []string{"bitcoin", "btc", "ethereum", "eth", "crypto", "solana", "token", "blockchain"}},
	{CategoryPolitics, []string{"election", "president", "senate", "congress", "vote", "candidate", "governor", "prime minister"}},
	{CategoryEconomics, []string{"fed", "inflation", "interest rate", "gdp", "recession", "unemployment", "cpi", "treasury"}},
	{CategorySports, []string{"super bowl", "nba", "nfl", "world cup", "championship", "olympics", "playoffs", "grand slam"}},
	{CategoryTech, []string{"ai ", " ai", "openai", "apple", "google", "spacex", "tesla", "launch", "chip"}},
	{CategoryClimate, []string{"climate", "temperature", "hurricane", "emissions", "wildfire", "heat record"}},
	{CategoryGeopolitics, []string{"war", "ceasefire", "invasion", "nato", "sanctions", "treaty", "nuclear"}},
}

// InferCategory clasifica un título de mercado por keyword matching ordenado.
// Si ningún patrón matchea devuelve CategoryGeneral.
func InferCategory(title string) Category {
	t := strings.ToLower(title)
	for _, m := range categoryMatchers {
		for _, kw := range m.keywords {
			if strings.Contains(t, kw) {
				return m.category
			}
		}
	}
	return CategoryGeneral
}
