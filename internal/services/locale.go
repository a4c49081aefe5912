package services

import (
	"regexp"
	"sort"
	"strings"
	"sync"
)

// phrasePair maps a source-language phrase to its English rendering.
type phrasePair struct {
	Source  string
	English string
}

// localeAliases maps incoming language tags to the phrase table keys.
// Scraped sources label Japanese pages as both "jp" and "ja", and Chinese
// as "zh" or "cn" depending on the site.
var localeAliases = map[string]string{
	"ja": "jp",
	"zh": "cn",
}

// localePhrases holds one table per supported locale. NOT machine translation:
// a bounded dictionary of the product and event vocabulary this card game
// actually uses, applied longest phrase first so multi-word phrases win over
// any single-word substrings they contain.
var localePhrases = map[string][]phrasePair{
	"jp": {
		{"ワンピースカードゲーム", "One Piece Card Game"},
		{"プロモーションパック", "Promotion Pack"},
		{"スタンダードバトル", "Standard Battle"},
		{"チャンピオンシップ", "Championship"},
		{"トレジャーカップ", "Treasure Cup"},
		{"ブースターパック", "Booster Pack"},
		{"スタートデッキ", "Start Deck"},
		{"記念大会", "Anniversary Tournament"},
		{"発売記念", "Release Commemoration"},
		{"プロモカード", "Promo Card"},
		{"大会", "Tournament"},
		{"限定", "Limited"},
		{"参加賞", "Participation Prize"},
		{"優勝", "Winner"},
		{"交流会", "Meetup"},
		{"店舗", "Store"},
		{"第", "Vol."},
		{"弾", ""},
	},
	"fr": {
		{"tournoi de lancement", "Launch Tournament"},
		{"boîte de rangement", "Storage Box"},
		{"deck de démarrage", "Start Deck"},
		{"carte promotionnelle", "Promo Card"},
		{"pack promotionnel", "Promotion Pack"},
		{"championnat", "Championship"},
		{"édition limitée", "Limited Edition"},
		{"tournoi", "Tournament"},
		{"boutique", "Store"},
	},
	"cn": {
		{"航海王卡牌游戏", "One Piece Card Game"},
		{"补充包", "Booster Pack"},
		{"起始卡组", "Start Deck"},
		{"促销卡", "Promo Card"},
		{"锦标赛", "Championship"},
		{"比赛", "Tournament"},
		{"限定", "Limited"},
		{"纪念", "Anniversary"},
	},
}

type localeTable struct {
	phrases []phrasePair // sorted by source length, longest first
}

var (
	localeTablesOnce sync.Once
	localeTables     map[string]*localeTable
)

// volumeTokenRe finds a word character glued to a volume/set token, an
// artifact of substituting phrases out of markup with no spacing.
var volumeTokenRe = regexp.MustCompile(`(\w)((?:Vol\.|Volume|Season|Set)\s*\d+)`)

var spaceRunRe = regexp.MustCompile(`\s+`)

func buildLocaleTables() {
	localeTables = make(map[string]*localeTable, len(localePhrases))
	for locale, pairs := range localePhrases {
		sorted := make([]phrasePair, len(pairs))
		copy(sorted, pairs)
		sort.SliceStable(sorted, func(i, j int) bool {
			return len(sorted[i].Source) > len(sorted[j].Source)
		})
		localeTables[locale] = &localeTable{phrases: sorted}
	}
}

// resolveLocaleTable finds the phrase table for a language tag, stripping a
// region suffix ("fr-FR" -> "fr") and applying aliases before giving up.
func resolveLocaleTable(locale string) *localeTable {
	localeTablesOnce.Do(buildLocaleTables)

	key := strings.ToLower(strings.TrimSpace(locale))
	if t, ok := localeTables[key]; ok {
		return t
	}
	if i := strings.IndexAny(key, "-_"); i > 0 {
		key = key[:i]
		if t, ok := localeTables[key]; ok {
			return t
		}
	}
	if alias, ok := localeAliases[key]; ok {
		if t, ok := localeTables[alias]; ok {
			return t
		}
	}
	return nil
}

// NormalizeTitle rewrites a scraped foreign-language title into an English-ish
// approximation using the locale's phrase table. ok is false when no table
// exists for the locale or no phrase fired, so callers can keep the original
// text and tell "no translation available" apart from "translated to itself".
func NormalizeTitle(text, locale string) (string, bool) {
	if text == "" {
		return "", false
	}
	table := resolveLocaleTable(locale)
	if table == nil {
		return "", false
	}

	out := text
	fired := false
	for _, p := range table.phrases {
		if !strings.Contains(out, p.Source) {
			continue
		}
		out = strings.ReplaceAll(out, p.Source, p.English)
		fired = true
	}
	if !fired {
		return "", false
	}

	// Substitution boundaries leave " - " runs and glued volume tokens behind.
	out = strings.ReplaceAll(out, " - ", " ")
	out = volumeTokenRe.ReplaceAllString(out, "$1 $2")
	out = spaceRunRe.ReplaceAllString(out, " ")
	return strings.TrimSpace(out), true
}
