// CLAUDE:SUMMARY Intercepts and blocks specified resource types (images, fonts, media, stylesheets) on Rod pages.
package browser

import (
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// applyResourceBlocking fails requests for the configured resource types.
// Mirroring only needs the DOM, so images and fonts are pure cost.
func applyResourceBlocking(page *rod.Page, types []string) {
	block := blockSet(types)
	router := page.HijackRequests()
	router.MustAdd("*", func(ctx *rod.Hijack) {
		if shouldBlock(block, string(ctx.Request.Type())) {
			ctx.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
			return
		}
		ctx.ContinueRequest(&proto.FetchContinueRequest{})
	})
	go router.Run()
}

func blockSet(types []string) map[string]bool {
	set := make(map[string]bool, len(types))
	for _, t := range types {
		set[strings.ToLower(t)] = true
	}
	return set
}

func shouldBlock(set map[string]bool, resType string) bool {
	switch lower := strings.ToLower(resType); lower {
	case "image":
		return set["images"]
	case "font":
		return set["fonts"]
	case "stylesheet":
		return set["stylesheets"]
	default:
		return set[lower]
	}
}
