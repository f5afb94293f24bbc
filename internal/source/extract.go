package source

import (
	"github.com/tidwall/gjson"

	"github.com/pders01/moji/internal/media"
	"github.com/pders01/moji/internal/validation"
)

// Extractor pulls image URLs out of a container search payload.
type Extractor struct {
	CardType  int
	Limits    media.Limits
	Validator *validation.URLValidator
}

type extraction struct {
	x       *Extractor
	seen    map[string]bool
	urls    []string
	skipped int
}

// Extract walks data.cards (descending into card_group) and collects URLs
// from mblog.pics and mblog.pic_infos. URLs appear once, in payload order.
// Entries whose declared dimensions break the limits are counted in skipped.
func (x *Extractor) Extract(payload []byte) (urls []string, skipped int) {
	e := &extraction{x: x, seen: make(map[string]bool)}
	gjson.GetBytes(payload, "data.cards").ForEach(func(_, card gjson.Result) bool {
		e.card(card)
		return true
	})
	return e.urls, e.skipped
}

func (e *extraction) card(card gjson.Result) {
	if group := card.Get("card_group"); group.IsArray() {
		group.ForEach(func(_, c gjson.Result) bool {
			e.card(c)
			return true
		})
	}
	if int(card.Get("card_type").Int()) != e.x.CardType {
		return
	}
	mblog := card.Get("mblog")

	mblog.Get("pics").ForEach(func(_, pic gjson.Result) bool {
		large := pic.Get("large")
		u := firstString(large.Get("url"), pic.Get("url"))
		w := firstInt(large.Get("w"), large.Get("width"), pic.Get("w"), pic.Get("width"), pic.Get("geo.width"))
		h := firstInt(large.Get("h"), large.Get("height"), pic.Get("h"), pic.Get("height"), pic.Get("geo.height"))
		e.add(u, w, h)
		return true
	})

	if infos := mblog.Get("pic_infos"); infos.IsObject() {
		infos.ForEach(func(_, info gjson.Result) bool {
			if !info.IsObject() {
				return true
			}
			u := firstString(info.Get("original.url"), info.Get("largest.url"), info.Get("large.url"), info.Get("url"))
			size := firstObject(info.Get("original"), info.Get("largest"), info.Get("large"))
			w := firstInt(size.Get("width"), size.Get("w"), info.Get("width"), info.Get("w"))
			h := firstInt(size.Get("height"), size.Get("h"), info.Get("height"), info.Get("h"))
			e.add(u, w, h)
			return true
		})
	}
}

func (e *extraction) add(raw string, w, h int) {
	if raw == "" {
		return
	}
	u := raw
	if e.x.Validator != nil {
		normalized, err := e.x.Validator.ValidateAndNormalize(raw)
		if err != nil {
			return
		}
		u = normalized
	}
	if e.seen[u] {
		return
	}
	if e.x.Limits.Oversized(w, h) {
		e.skipped++
		return
	}
	e.seen[u] = true
	e.urls = append(e.urls, u)
}

func firstString(rs ...gjson.Result) string {
	for _, r := range rs {
		if s := r.String(); r.Exists() && s != "" {
			return s
		}
	}
	return ""
}

// firstInt returns the first positive integer, accepting numeric strings.
func firstInt(rs ...gjson.Result) int {
	for _, r := range rs {
		if n := r.Int(); n > 0 {
			return int(n)
		}
	}
	return 0
}

func firstObject(rs ...gjson.Result) gjson.Result {
	for _, r := range rs {
		if r.IsObject() && len(r.Map()) > 0 {
			return r
		}
	}
	return gjson.Result{}
}
