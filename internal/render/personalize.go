package render

import (
	"hash/fnv"
	"strings"

	"github.com/Clukay-Fun/OmniAgent-sub000/internal/state"
)

var friendlyOpeners = []string{"好的～", "收到～", "没问题～"}

// Personalize applies tone and length preferences to the fallback text and
// the first paragraph block. Callers skip it for chit-chat results.
func Personalize(resp *RenderedResponse, prefs *state.ReplyPreferences) {
	if resp == nil || prefs == nil {
		return
	}
	resp.TextFallback = applyPrefs(resp.TextFallback, prefs)
	for i := range resp.Blocks {
		if resp.Blocks[i].Type == BlockParagraph {
			resp.Blocks[i].Text = applyPrefs(resp.Blocks[i].Text, prefs)
			break
		}
	}
}

func applyPrefs(text string, prefs *state.ReplyPreferences) string {
	if text == "" {
		return text
	}
	if prefs.Length == "short" {
		lines := strings.Split(text, "\n")
		kept := lines[:0]
		for _, line := range lines {
			if strings.TrimSpace(line) == "" {
				continue
			}
			kept = append(kept, line)
			if len(kept) == 2 {
				break
			}
		}
		text = strings.Join(kept, "\n")
	}
	if prefs.Tone == "friendly" && !hasOpener(text) {
		text = friendlyOpeners[openerIndex(text)] + text
	}
	return text
}

func hasOpener(text string) bool {
	for _, opener := range friendlyOpeners {
		if strings.HasPrefix(text, opener) {
			return true
		}
	}
	return false
}

// openerIndex alternates the opener deterministically per message.
func openerIndex(text string) int {
	h := fnv.New32a()
	h.Write([]byte(text))
	return int(h.Sum32() % uint32(len(friendlyOpeners)))
}
