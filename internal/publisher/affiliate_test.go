package publisher

import (
	"math/rand"
	"testing"

	"github.com/lueurxax/crypto-autopost/internal/db"
)

func window(flags ...bool) []db.PublishedRecord {
	records := make([]db.PublishedRecord, len(flags))
	for i, flag := range flags {
		records[i] = db.PublishedRecord{ContainsAffiliate: flag}
	}

	return records
}

func TestShouldInsertAffiliate(t *testing.T) {
	tests := []struct {
		name      string
		window    []db.PublishedRecord
		frequency int
		want      bool
	}{
		{name: "empty window", window: nil, frequency: 5, want: true},
		{name: "no affiliates in partial window", window: window(false, false, false), frequency: 5, want: true},
		{name: "affiliate present in partial window", window: window(false, true, false), frequency: 5, want: false},
		{name: "full window with affiliate", window: window(true, false, false, false), frequency: 5, want: false},
		{name: "full window without affiliate", window: window(false, false, false, false), frequency: 5, want: true},
		{name: "zero frequency disables", window: nil, frequency: 0, want: false},
		{name: "negative frequency disables", window: window(false), frequency: -1, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ShouldInsertAffiliate(tt.window, tt.frequency); got != tt.want {
				t.Errorf("ShouldInsertAffiliate() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPickAffiliateWeighted(t *testing.T) {
	links := DefaultAffiliateLinks()
	rng := rand.New(rand.NewSource(42)) //nolint:gosec // deterministic test

	counts := make(map[string]int)

	const draws = 10000
	for i := 0; i < draws; i++ {
		link := PickAffiliate(rng, links)
		if link == nil {
			t.Fatal("PickAffiliate() = nil with positive weights")
		}

		counts[link.Name]++
	}

	// Binance carries weight 0.4 of 1.0; allow generous slack.
	binance := float64(counts["Binance"]) / draws
	if binance < 0.35 || binance > 0.45 {
		t.Errorf("Binance share = %.3f, want near 0.40", binance)
	}

	for _, link := range links {
		if counts[link.Name] == 0 {
			t.Errorf("link %s never selected", link.Name)
		}
	}
}

func TestPickAffiliateNoPositiveWeights(t *testing.T) {
	rng := rand.New(rand.NewSource(1)) //nolint:gosec // deterministic test

	links := []AffiliateLink{{Name: "dead", Weight: 0}}
	if got := PickAffiliate(rng, links); got != nil {
		t.Errorf("PickAffiliate() = %v, want nil", got)
	}

	if got := PickAffiliate(rng, nil); got != nil {
		t.Errorf("PickAffiliate(nil) = %v, want nil", got)
	}
}

func TestParseAffiliateLinks(t *testing.T) {
	links, err := ParseAffiliateLinks("")
	if err != nil {
		t.Fatalf("ParseAffiliateLinks(\"\") error = %v", err)
	}

	if len(links) != 3 {
		t.Errorf("default links = %d, want 3", len(links))
	}

	links, err = ParseAffiliateLinks(`[{"name":"X","url":"https://x","text":"t","weight":1}]`)
	if err != nil {
		t.Fatalf("ParseAffiliateLinks() error = %v", err)
	}

	if len(links) != 1 || links[0].Name != "X" {
		t.Errorf("parsed links = %+v", links)
	}

	if _, err = ParseAffiliateLinks("not json"); err == nil {
		t.Error("ParseAffiliateLinks() accepted invalid JSON")
	}
}

// Simulated stream: with frequency N the policy inspects the previous
// N-1 posts, every trailing N-window carries an affiliate, and the
// cadence is exactly one in N.
func TestAffiliatePolicyOverStream(t *testing.T) {
	const (
		frequency = 5
		posts     = 100
	)

	var history []db.PublishedRecord

	rng := rand.New(rand.NewSource(7)) //nolint:gosec // deterministic test

	inserted := 0

	for i := 0; i < posts; i++ {
		recent := history
		if len(recent) > frequency-1 {
			recent = recent[len(recent)-(frequency-1):]
		}

		insert := ShouldInsertAffiliate(recent, frequency)
		if insert {
			inserted++

			if PickAffiliate(rng, DefaultAffiliateLinks()) == nil {
				t.Fatal("insertion decided but no link picked")
			}
		}

		history = append(history, db.PublishedRecord{ContainsAffiliate: insert})
	}

	for i := frequency; i <= len(history); i++ {
		windowSlice := history[i-frequency : i]

		any := false

		for _, rec := range windowSlice {
			if rec.ContainsAffiliate {
				any = true

				break
			}
		}

		if !any {
			t.Fatalf("window ending at %d has no affiliate post", i)
		}
	}

	if want := posts / frequency; inserted != want {
		t.Errorf("affiliate posts = %d of %d, want one in %d (= %d)", inserted, posts, frequency, want)
	}
}
