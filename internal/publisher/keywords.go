package publisher

import (
	"regexp"
	"strings"
)

const maxProjectNames = 5

var cryptoEntities = []string{
	"bitcoin", "btc", "ethereum", "eth", "binance", "coinbase",
	"tether", "usdt", "cardano", "ada", "solana", "sol",
	"polygon", "matic", "chainlink", "link", "litecoin", "ltc",
	"dogecoin", "doge", "shiba", "avalanche", "avax",
}

var topicKeywords = map[string][]string{
	"price":       {"price", "cost", "value", "expensive", "cheap", "pump", "dump"},
	"trading":     {"trading", "trade", "buy", "sell", "exchange", "market"},
	"technology":  {"technology", "tech", "blockchain", "protocol", "network"},
	"regulation":  {"regulation", "legal", "law", "government", "sec", "compliance"},
	"defi":        {"defi", "decentralized", "yield", "farming", "liquidity", "pool"},
	"nft":         {"nft", "non-fungible", "collectible", "art", "opensea"},
	"security":    {"hack", "security", "exploit", "vulnerability", "attack"},
	"partnership": {"partnership", "collaboration", "integration", "alliance"},
	"development": {"development", "update", "upgrade", "release", "launch"},
}

var projectNamePattern = regexp.MustCompile(`\b[A-Z][a-z]+(?:[A-Z][a-z]+)*\b`)

// ExtractEntities picks known crypto asset names plus a handful of
// capitalized project-name candidates out of a text.
func ExtractEntities(text string) []string {
	lower := strings.ToLower(text)

	seen := make(map[string]struct{})

	var entities []string

	add := func(entity string) {
		if _, ok := seen[entity]; ok {
			return
		}

		seen[entity] = struct{}{}
		entities = append(entities, entity)
	}

	for _, keyword := range cryptoEntities {
		if strings.Contains(lower, keyword) {
			add(keyword)
		}
	}

	names := projectNamePattern.FindAllString(text, -1)
	if len(names) > maxProjectNames {
		names = names[:maxProjectNames]
	}

	for _, name := range names {
		add(name)
	}

	return entities
}

// ExtractTopics tags a text with coarse topic buckets by keyword match.
func ExtractTopics(text string) []string {
	lower := strings.ToLower(text)

	var topics []string

	// Fixed order keeps output deterministic for identical input.
	for _, topic := range []string{
		"price", "trading", "technology", "regulation", "defi",
		"nft", "security", "partnership", "development",
	} {
		for _, keyword := range topicKeywords[topic] {
			if strings.Contains(lower, keyword) {
				topics = append(topics, topic)

				break
			}
		}
	}

	return topics
}

// EngagementScore folds raw interaction counters into a single score
// used to rank archive entries.
func EngagementScore(views, likes, shares, comments int64) float32 {
	if views < 1 {
		views = 1
	}

	return float32(likes*2+shares*3+comments*2) / float32(views)
}
