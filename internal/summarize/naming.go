package summarize

import (
	"context"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/ernop/gpt-webdiff/internal/drift"
	"github.com/ernop/gpt-webdiff/internal/snapshot"
)

const nameContextChars = 1000

// SuggestName asks the oracle for a short job name for url, given the
// start of the page text. taken lists names the oracle should avoid.
// The reply must decode to {"result": "<name>"}.
func (g *Gateway) SuggestName(ctx context.Context, url, text string, taken []string) (string, error) {
	preamble, err := render(g.namePrompt, "", url)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString(preamble)
	b.WriteString("\n\nThe page begins with this content:\n")
	b.WriteString(truncate(text, nameContextChars))
	if len(taken) > 0 {
		b.WriteString("\n\nThese names are already in use, so choose a different one: ")
		b.WriteString(strings.Join(taken, ", "))
	}
	b.WriteString("\n\nReturn just the name as JSON like this: {\"result\": \"<your result>\"}")

	raw, err := g.oracle.Complete(ctx, b.String())
	if err != nil {
		return "", errors.Mark(errors.Wrap(err, "oracle call"), ErrOracle)
	}

	obj, _, err := ParseChain(strings.TrimSpace(raw))
	if err != nil {
		return "", err
	}
	name, ok := obj["result"].(string)
	if !ok || strings.TrimSpace(name) == "" {
		return "", errors.Wrap(ErrParse, `missing or non-string "result"`)
	}
	return strings.TrimSpace(name), nil
}

// PageNamer suggests job names from the live page. It satisfies
// registry.Namer.
type PageNamer struct {
	Gateway   *Gateway
	Fetcher   snapshot.Fetcher
	Extractor drift.Extractor
}

// SuggestName fetches url, extracts its text and asks the gateway for a name.
func (n *PageNamer) SuggestName(ctx context.Context, url string, taken []string) (string, error) {
	raw, err := n.Fetcher.Fetch(ctx, url)
	if err != nil {
		return "", errors.Wrapf(err, "fetch %s for naming", url)
	}
	text, err := n.Extractor.Extract(raw)
	if err != nil {
		return "", errors.Wrap(err, "extract text for naming")
	}
	return n.Gateway.SuggestName(ctx, url, text, taken)
}
