package expand

import "fmt"

// buildPrompt produces the few-shot expansion prompt. The examples anchor the
// output shape so smaller local models stay on format.
func buildPrompt(query string) string {
	return fmt.Sprintf(`You are an e-commerce search expert. Your job is to understand what users are REALLY looking for when they search.

User Query: %q

Analyze this query deeply and return a JSON object that helps find the right products.

Your JSON must have these fields:

1. "search_intent": One sentence describing what the user actually wants
2. "product_categories": List of product types/categories that would satisfy this (be specific, 5-10 items)
3. "key_attributes": Important product qualities/features the user cares about (e.g., style, use case, quality level)
4. "context_clues": Any implicit context (occasion, recipient, urgency, price sensitivity, etc.)
5. "semantic_expansion": A rich 40-60 word text that represents this search intent, written to match against product descriptions (include synonyms, related terms, use cases)

Examples to guide you:

Query: "gifts for my girlfriend"
{
  "search_intent": "User wants to buy a thoughtful, romantic gift for their romantic partner",
  "product_categories": ["jewelry", "necklaces", "bracelets", "rings", "accessories", "beauty products", "fragrances", "handbags", "fashion items", "personal care"],
  "key_attributes": ["romantic", "elegant", "feminine", "thoughtful", "beautiful", "high-quality", "giftable", "special"],
  "context_clues": "Romantic relationship, wants to impress, likely birthday or anniversary or spontaneous gesture, willing to spend reasonably, needs gift packaging",
  "semantic_expansion": "romantic elegant jewelry beautiful necklace bracelet ring feminine accessories thoughtful gift girlfriend partner love special occasion anniversary birthday present beautiful fragrance beauty products stylish handbag fashion items personal care premium quality giftable"
}

Query: "workout equipment for home"
{
  "search_intent": "User wants to set up home gym or fitness area",
  "product_categories": ["dumbbells", "resistance bands", "yoga mats", "fitness equipment", "weights", "exercise gear", "workout accessories", "home gym equipment"],
  "key_attributes": ["durable", "compact", "effective", "versatile", "quality", "space-saving", "functional"],
  "context_clues": "Work from home or limited gym access, wants convenience, likely beginner to intermediate, needs space-efficient solutions",
  "semantic_expansion": "home workout equipment fitness gear exercise dumbbells weights resistance bands yoga mat gym equipment training accessories compact space-saving durable quality functional versatile strength training cardio home gym setup"
}

Query: "minimalist desk accessories"
{
  "search_intent": "User wants clean, simple desk items with aesthetic appeal",
  "product_categories": ["desk organizers", "pen holders", "cable management", "desk lamps", "stationery", "office accessories", "desk decor", "workspace items"],
  "key_attributes": ["minimalist", "clean design", "functional", "aesthetic", "simple", "organized", "modern", "sleek"],
  "context_clues": "Values aesthetics and organization, likely remote worker or student, prefers quality over quantity, willing to pay for good design",
  "semantic_expansion": "minimalist desk accessories office simple clean design modern workspace organizer aesthetic functional stationery pen holder cable management sleek desk lamp organization tools workspace decor contemporary style productivity clutter-free"
}

Now analyze: %q

Return ONLY valid JSON, no other text.`, query, query)
}
