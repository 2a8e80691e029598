package publisher

import (
	"encoding/json"
	"fmt"
	"math/rand"

	"github.com/lueurxax/crypto-autopost/internal/db"
)

// AffiliateLink is one exchange referral candidate. Weight steers the
// random choice among candidates; weights need not sum to one.
type AffiliateLink struct {
	Name   string  `json:"name"`
	URL    string  `json:"url"`
	Text   string  `json:"text"`
	Weight float64 `json:"weight"`
}

// DisclosureText is appended whenever a post carries an affiliate block.
const DisclosureText = "содержит партнёрскую ссылку"

// DefaultAffiliateLinks is the built-in candidate set, used when no
// override is configured.
func DefaultAffiliateLinks() []AffiliateLink {
	return []AffiliateLink{
		{
			Name:   "Binance",
			URL:    "https://accounts.binance.com/register?ref=YOUR_REF",
			Text:   "Если хотите быстрее заходить на биржу — используйте партнёрскую ссылку",
			Weight: 0.4,
		},
		{
			Name:   "ByBit",
			URL:    "https://www.bybit.com/register?affiliate_id=YOUR_ID",
			Text:   "Для торговли с бонусами — партнёрская ссылка в описании",
			Weight: 0.3,
		},
		{
			Name:   "OKX",
			URL:    "https://www.okx.com/join/YOUR_CODE",
			Text:   "Хотите попробовать другую биржу? Ссылка с бонусом",
			Weight: 0.3,
		},
	}
}

// ParseAffiliateLinks decodes a JSON override of the candidate set. An
// empty input keeps the defaults.
func ParseAffiliateLinks(raw string) ([]AffiliateLink, error) {
	if raw == "" {
		return DefaultAffiliateLinks(), nil
	}

	var links []AffiliateLink
	if err := json.Unmarshal([]byte(raw), &links); err != nil {
		return nil, fmt.Errorf("parse affiliate links: %w", err)
	}

	return links, nil
}

// ShouldInsertAffiliate decides whether the next post carries an
// affiliate block, from a snapshot of the trailing window of recent
// posts (newest first, at most frequency-1 entries; the post being
// decided completes the window). The block goes in only when none of
// the window's posts carried one, which keeps the affiliate cadence at
// one per frequency posts.
func ShouldInsertAffiliate(window []db.PublishedRecord, frequency int) bool {
	if frequency <= 0 {
		return false
	}

	for _, rec := range window {
		if rec.ContainsAffiliate {
			return false
		}
	}

	return true
}

// PickAffiliate chooses one candidate by weighted random selection.
// Returns nil when no candidates have positive weight.
func PickAffiliate(rng *rand.Rand, links []AffiliateLink) *AffiliateLink {
	total := 0.0
	for _, link := range links {
		if link.Weight > 0 {
			total += link.Weight
		}
	}

	if total <= 0 {
		return nil
	}

	roll := rng.Float64() * total

	acc := 0.0

	for i := range links {
		if links[i].Weight <= 0 {
			continue
		}

		acc += links[i].Weight
		if roll <= acc {
			return &links[i]
		}
	}

	return &links[len(links)-1]
}
