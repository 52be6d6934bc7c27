// Package similarity puntúa la relación textual entre dos preguntas de mercado.
//
// Combina cuatro señales: overlap de caracteres preservando orden, Jaccard
// sobre keywords, Jaccard expandido con sinónimos y overlap de entidades
// nombradas. Es una función pura: sin estado mutable, sin efectos.
package similarity

import (
	"strings"
	"unicode"
)

// Pesos de cada señal. Las señales sin datos en ninguno de los dos inputs
// (entidades, grupos de frases) se excluyen y los pesos se renormalizan,
// así similarity(a, a) == 1 siempre.
const (
	weightCharOverlap = 0.20
	weightKeyword     = 0.30
	weightSynonym     = 0.20
	weightEntity      = 0.15
	weightPhrase      = 0.15

	// boostThreshold: si entidades o frases superan esto, aplicamos boost.
	boostThreshold = 0.5
	boost          = 0.10
)

// Config permite ajustar las tablas del engine. Los campos vacíos usan defaults.
type Config struct {
	Stopwords     []string
	SynonymGroups [][]string // cada grupo se trata como un único token canónico
	Entities      []string   // tabla de entidades/tópicos nombrados
}

// Engine calcula scores de similitud con tablas configuradas.
type Engine struct {
	stopwords map[string]bool
	// canon mapea cada miembro de un grupo de sinónimos a su token canónico.
	canon map[string]string
	// phraseGroups son los grupos multi-palabra, para el bonus de frase.
	phraseGroups [][]string
	entities     []string
}

// New crea un Engine con la configuración dada.
func New(cfg Config) *Engine {
	if len(cfg.Stopwords) == 0 {
		cfg.Stopwords = defaultStopwords
	}
	if len(cfg.SynonymGroups) == 0 {
		cfg.SynonymGroups = defaultSynonymGroups
	}
	if len(cfg.Entities) == 0 {
		cfg.Entities = defaultEntities
	}

	e := &Engine{
		stopwords: make(map[string]bool, len(cfg.Stopwords)),
		canon:     make(map[string]string),
		entities:  make([]string, len(cfg.Entities)),
	}
	for _, w := range cfg.Stopwords {
		e.stopwords[strings.ToLower(w)] = true
	}
	for _, group := range cfg.SynonymGroups {
		if len(group) == 0 {
			continue
		}
		canonical := normalizePhrase(group[0])
		multiword := false
		for _, member := range group {
			m := normalizePhrase(member)
			e.canon[m] = canonical
			if strings.Contains(m, " ") {
				multiword = true
			}
		}
		if multiword {
			e.phraseGroups = append(e.phraseGroups, group)
		}
	}
	for i, ent := range cfg.Entities {
		e.entities[i] = normalizePhrase(ent)
	}
	return e
}

// Default crea un Engine con las tablas built-in.
func Default() *Engine {
	return New(Config{})
}

// Score devuelve la similitud entre dos strings en [0,1].
// Es simétrica y Score(a, a) == 1 para cualquier a no trivial.
func (e *Engine) Score(a, b string) float64 {
	la, lb := strings.ToLower(strings.TrimSpace(a)), strings.ToLower(strings.TrimSpace(b))
	if la == "" || lb == "" {
		return 0
	}
	if la == lb {
		return 1
	}

	kwA, kwB := e.keywords(la), e.keywords(lb)

	charScore := charOverlapRatio(la, lb)

	// Fallback: sin keywords extraíbles solo podemos comparar caracteres.
	if len(kwA) == 0 || len(kwB) == 0 {
		return charScore
	}

	type signal struct {
		score  float64
		weight float64
	}
	signals := []signal{
		{charScore, weightCharOverlap},
		{jaccard(kwA, kwB), weightKeyword},
		{jaccard(e.canonicalize(kwA), e.canonicalize(kwB)), weightSynonym},
	}

	entityScore, entitiesFound := e.entityOverlap(la, lb)
	if entitiesFound {
		signals = append(signals, signal{entityScore, weightEntity})
	}

	phraseScore, phrasesFound := e.phraseBonus(la, lb)
	if phrasesFound {
		signals = append(signals, signal{phraseScore, weightPhrase})
	}

	total, weightSum := 0.0, 0.0
	for _, s := range signals {
		total += s.score * s.weight
		weightSum += s.weight
	}
	score := total / weightSum

	// Señal fuerte de entidad o frase compartida → boost aditivo.
	if (entitiesFound && entityScore > boostThreshold) ||
		(phrasesFound && phraseScore > boostThreshold) {
		score += boost
	}
	if score > 1 {
		score = 1
	}
	return score
}

// --- señales ---

// charOverlapRatio es un ratio de matching por subsecuencias que preserva
// el orden (longest common subsequence sobre runas), no una distancia de
// edición completa. 2×LCS / (len(a)+len(b)), simétrico por construcción.
func charOverlapRatio(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 || len(rb) == 0 {
		return 0
	}

	// DP de una fila: prev[j] = LCS(ra[:i], rb[:j])
	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for i := 1; i <= len(ra); i++ {
		for j := 1; j <= len(rb); j++ {
			if ra[i-1] == rb[j-1] {
				curr[j] = prev[j-1] + 1
			} else if prev[j] >= curr[j-1] {
				curr[j] = prev[j]
			} else {
				curr[j] = curr[j-1]
			}
		}
		prev, curr = curr, prev
	}
	lcs := prev[len(rb)]
	return 2 * float64(lcs) / float64(len(ra)+len(rb))
}

// keywords tokeniza, filtra stopwords y descarta tokens demasiado cortos.
func (e *Engine) keywords(s string) map[string]bool {
	out := make(map[string]bool)
	for _, tok := range tokenize(s) {
		if len(tok) < 3 && !hasDigit(tok) {
			continue
		}
		if e.stopwords[tok] {
			continue
		}
		out[tok] = true
	}
	return out
}

// canonicalize reemplaza cada keyword por su token canónico de sinónimos.
func (e *Engine) canonicalize(kw map[string]bool) map[string]bool {
	out := make(map[string]bool, len(kw))
	for w := range kw {
		if c, ok := e.canon[w]; ok {
			out[c] = true
		} else {
			out[w] = true
		}
	}
	return out
}

// entityOverlap devuelve el Jaccard sobre las entidades de la tabla presentes
// en cada string. found=false si ninguno de los dos menciona entidades.
// Las entidades se canonicalizan por sinónimos: "bitcoin" y "btc" cuentan
// como la misma entidad.
func (e *Engine) entityOverlap(a, b string) (score float64, found bool) {
	inA, inB := e.entitiesIn(a), e.entitiesIn(b)
	if len(inA) == 0 && len(inB) == 0 {
		return 0, false
	}
	return jaccard(inA, inB), true
}

func (e *Engine) entitiesIn(s string) map[string]bool {
	out := make(map[string]bool)
	for _, ent := range e.entities {
		if !strings.Contains(s, ent) {
			continue
		}
		if c, ok := e.canon[ent]; ok {
			out[c] = true
		} else {
			out[ent] = true
		}
	}
	return out
}

// phraseBonus mide cuántos grupos de frase comparten ambos strings.
// found=false si ninguno de los dos menciona miembros de ningún grupo.
func (e *Engine) phraseBonus(a, b string) (score float64, found bool) {
	shared, either := 0, 0
	for _, group := range e.phraseGroups {
		inA, inB := phraseGroupIn(a, group), phraseGroupIn(b, group)
		if inA || inB {
			either++
		}
		if inA && inB {
			shared++
		}
	}
	if either == 0 {
		return 0, false
	}
	return float64(shared) / float64(either), true
}

func phraseGroupIn(s string, group []string) bool {
	for _, member := range group {
		if strings.Contains(s, normalizePhrase(member)) {
			return true
		}
	}
	return false
}

// --- helpers ---

func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	inter := 0
	for w := range a {
		if b[w] {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

func tokenize(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func hasDigit(s string) bool {
	for _, r := range s {
		if unicode.IsDigit(r) {
			return true
		}
	}
	return false
}

func normalizePhrase(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
