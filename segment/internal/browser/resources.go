package browser

import (
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// applyResourceBlocking intercepts requests and fails those whose resource
// type is listed. Images and stylesheets are never blocked because they
// shape the captured pixels.
func applyResourceBlocking(page *rod.Page, types []string) *rod.HijackRouter {
	blockSet := blockSet(types)

	router := page.HijackRequests()
	router.MustAdd("*", func(ctx *rod.Hijack) {
		if shouldBlock(blockSet, string(ctx.Request.Type())) {
			ctx.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
			return
		}
		ctx.ContinueRequest(&proto.FetchContinueRequest{})
	})
	go router.Run()
	return router
}

func blockSet(types []string) map[string]bool {
	set := make(map[string]bool, len(types))
	for _, t := range types {
		switch t = strings.ToLower(strings.TrimSpace(t)); t {
		case "images", "image", "stylesheets", "stylesheet", "":
			continue
		default:
			set[t] = true
		}
	}
	return set
}

func shouldBlock(set map[string]bool, resType string) bool {
	switch lower := strings.ToLower(resType); lower {
	case "font":
		return set["fonts"] || set["font"]
	case "media":
		return set["media"]
	default:
		return set[lower]
	}
}
