// Package consent detects and resolves cookie-consent banners so a crawl
// can be run under IGNORE, ACCEPT, or REJECT modes.
package consent

// cmpDefinition describes a known Consent Management Platform: the selector
// that proves it is present, and the selectors used to accept or reject.
type cmpDefinition struct {
	name            string
	detectSelector  string
	acceptSelector  string
	rejectSelector  string
}

// knownCMPs lists the consent platforms detected by selector before falling
// back to text matching. Ordered roughly by global prevalence.
var knownCMPs = []cmpDefinition{
	{
		name:           "onetrust",
		detectSelector: "#onetrust-banner-sdk",
		acceptSelector: "#onetrust-accept-btn-handler",
		rejectSelector: "#onetrust-reject-all-handler",
	},
	{
		name:           "cookiebot",
		detectSelector: "#CybotCookiebotDialog",
		acceptSelector: "#CybotCookiebotDialogBodyLevelButtonLevelOptinAllowAll",
		rejectSelector: "#CybotCookiebotDialogBodyButtonDecline",
	},
	{
		name:           "cookieyes",
		detectSelector: ".cky-consent-container",
		acceptSelector: ".cky-btn-accept",
		rejectSelector: ".cky-btn-reject",
	},
	{
		name:           "didomi",
		detectSelector: "#didomi-popup",
		acceptSelector: "#didomi-notice-agree-button",
		rejectSelector: ".didomi-components-button--color.didomi-button-highlight.didomi-components-button--standard",
	},
	{
		name:           "quantcast",
		detectSelector: ".qc-cmp2-container",
		acceptSelector: ".qc-cmp2-summary-buttons button:first-child",
		rejectSelector: ".qc-cmp2-summary-buttons button:last-child",
	},
	{
		name:           "termly",
		detectSelector: "#termly-code-snippet-support",
		acceptSelector: "[data-tid='banner-accept']",
		rejectSelector: "[data-tid='banner-decline']",
	},
	{
		name:           "osano",
		detectSelector: ".osano-cm-window",
		acceptSelector: ".osano-cm-accept-all",
		rejectSelector: ".osano-cm-deny",
	},
	{
		name:           "trustarc",
		detectSelector: "#truste-consent-track",
		acceptSelector: "#truste-consent-button",
		rejectSelector: ".truste-button2",
	},
	{
		name:           "iubenda",
		detectSelector: ".iubenda-cs-container",
		acceptSelector: ".iubenda-cs-accept-btn",
		rejectSelector: ".iubenda-cs-reject-btn",
	},
	{
		name:           "klaro",
		detectSelector: ".klaro",
		acceptSelector: ".cm-btn-success",
		rejectSelector: ".cm-btn-decline",
	},
	{
		name:           "complianz",
		detectSelector: "#cmplz-cookiebanner-container",
		acceptSelector: ".cmplz-accept",
		rejectSelector: ".cmplz-deny",
	},
	{
		name:           "civic",
		detectSelector: "#ccc",
		acceptSelector: "#ccc-notify-accept",
		rejectSelector: "#ccc-notify-reject",
	},
	{
		name:           "sourcepoint",
		detectSelector: "div[class^='sp_message_container']",
		acceptSelector: "button[title='Accept All']",
		rejectSelector: "button[title='Reject All']",
	},
	{
		name:           "alza",
		detectSelector: "#cookies-info",
		acceptSelector: "#cookies-info .btn-accept",
		rejectSelector: "#cookies-info .btn-reject",
	},
	{
		name:           "idnes_wall",
		detectSelector: ".cmp-wall",
		acceptSelector: ".cmp-wall__accept",
		rejectSelector: ".cmp-wall__reject",
	},
	{
		name:           "allegro",
		detectSelector: "#cookie-bar",
		acceptSelector: "#cookie-bar-accept",
		rejectSelector: "#cookie-bar-decline",
	},
	{
		name:           "cpex",
		detectSelector: "#cpex-cmp",
		acceptSelector: ".cpex-cmp-accept-all",
		rejectSelector: ".cpex-cmp-reject-all",
	},
}

// defaultAcceptTexts and defaultRejectTexts are the default button-label patterns used by
// the text-matching strategies when a page runs a CMP we don't recognize by
// selector. Config can extend these via config.ConsentPatterns.
var defaultAcceptTexts = []string{
	"accept all", "accept cookies", "i agree", "agree", "allow all",
	"souhlasím", "přijmout vše", "povolit vše",
}

var defaultRejectTexts = []string{
	"reject all", "decline", "reject cookies", "necessary only", "only necessary",
	"odmítnout", "pouze nezbytné", "nesouhlasím",
}
