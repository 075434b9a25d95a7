package scraper

import (
	"net/url"
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// resourceTypes maps the names accepted in PRICESCOUT_BLOCKED_RESOURCES to
// CDP resource types. Documents, scripts and XHR are never blockable; they
// build the listing grid.
var resourceTypes = map[string]proto.NetworkResourceType{
	"Image":      proto.NetworkResourceTypeImage,
	"Stylesheet": proto.NetworkResourceTypeStylesheet,
	"Font":       proto.NetworkResourceTypeFont,
	"Media":      proto.NetworkResourceTypeMedia,
}

// adDomains are ad and tracking hosts blocked while rendering when
// BlockAds is enabled. Listing grids on retail sites pull in most of these.
var adDomains = map[string]struct{}{
	"doubleclick.net":       {},
	"googlesyndication.com": {},
	"googleadservices.com":  {},
	"google-analytics.com":  {},
	"googletagmanager.com":  {},
	"facebook.net":          {},
	"adnxs.com":             {},
	"adsrvr.org":            {},
	"amazon-adsystem.com":   {},
	"criteo.com":            {},
	"criteo.net":            {},
	"taboola.com":           {},
	"outbrain.com":          {},
	"moatads.com":           {},
	"pubmatic.com":          {},
	"rubiconproject.com":    {},
	"scorecardresearch.com": {},
	"hotjar.com":            {},
	"demdex.net":            {},
	"rlcdn.com":             {},
}

// blockPolicy decides which subresources a results page may load.
type blockPolicy struct {
	types map[proto.NetworkResourceType]struct{}
	ads   bool
}

// newBlockPolicy resolves the configured type names; unknown names are
// ignored.
func newBlockPolicy(typeNames []string, blockAds bool) blockPolicy {
	p := blockPolicy{
		types: make(map[proto.NetworkResourceType]struct{}, len(typeNames)),
		ads:   blockAds,
	}
	for _, name := range typeNames {
		if rt, ok := resourceTypes[name]; ok {
			p.types[rt] = struct{}{}
		}
	}
	return p
}

func (p blockPolicy) empty() bool { return len(p.types) == 0 && !p.ads }

// blocks reports whether a request of resType for rawURL is refused.
func (p blockPolicy) blocks(resType proto.NetworkResourceType, rawURL string) bool {
	if _, ok := p.types[resType]; ok {
		return true
	}
	if !p.ads {
		return false
	}
	u, err := url.Parse(rawURL)
	return err == nil && isAdHost(u.Hostname())
}

// isAdHost reports whether host or one of its parent domains is an ad or
// tracking host.
func isAdHost(host string) bool {
	host = strings.ToLower(host)
	for host != "" {
		if _, ok := adDomains[host]; ok {
			return true
		}
		_, parent, found := strings.Cut(host, ".")
		if !found {
			return false
		}
		host = parent
	}
	return false
}

// mountBlocker intercepts every request of page and fails the ones policy
// refuses. It returns nil when the policy blocks nothing; otherwise the
// caller stops the returned router once the render ends.
func mountBlocker(page *rod.Page, policy blockPolicy) *rod.HijackRouter {
	if policy.empty() {
		return nil
	}
	router := page.HijackRequests()
	_ = router.Add("*", "", func(h *rod.Hijack) {
		if policy.blocks(h.Request.Type(), h.Request.URL().String()) {
			h.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
			return
		}
		h.ContinueRequest(&proto.FetchContinueRequest{})
	})
	go router.Run()
	return router
}
