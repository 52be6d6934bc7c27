package similarity

// Tablas built-in. Se pueden sobreescribir por config para mercados
// de otros dominios sin tocar el código.

var defaultStopwords = []string{
	"a", "an", "the", "will", "be", "is", "are", "was", "were", "in", "on",
	"at", "by", "for", "of", "to", "and", "or", "before", "after", "during",
	"this", "that", "it", "its", "do", "does", "did", "than", "more", "less",
	"above", "below", "over", "under", "end", "with", "without", "reach",
	"hit", "win", "wins",
}

var defaultSynonymGroups = [][]string{
	{"super bowl", "championship game", "nfl final"},
	{"bitcoin", "btc"},
	{"ethereum", "eth"},
	{"president", "presidential", "presidency"},
	{"fed", "federal reserve"},
	{"rate cut", "rate cuts", "lower rates"},
	{"rate hike", "rate hikes", "raise rates"},
	{"world cup", "fifa world cup"},
	{"recession", "economic downturn"},
	{"election", "elections", "electoral"},
	{"100k", "100,000", "$100k", "$100,000"},
}

var defaultEntities = []string{
	"bitcoin", "btc", "ethereum", "eth", "solana",
	"trump", "biden", "harris", "putin", "zelensky", "xi",
	"fed", "federal reserve", "ecb", "opec",
	"super bowl", "world cup", "nba", "nfl", "olympics",
	"openai", "spacex", "tesla", "apple", "google", "nvidia",
	"ukraine", "russia", "china", "taiwan", "israel", "iran",
	"nato", "united nations",
}
