package apply

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/chromedp/chromedp"

	"github.com/wohnblick/wohnblick/internal/model"
)

// Ensure BerlinovoApplier implements model.Applier.
var _ model.Applier = (*BerlinovoApplier)(nil)

const berlinovoURLPrefix = "https://www.berlinovo.de/"

// BerlinovoApplier submits the contact form on a Berlinovo listing page with
// a headless browser. The form is rendered client-side, so a plain HTTP POST
// is not possible.
type BerlinovoApplier struct {
	profile Profile
	logger  *slog.Logger
}

func NewBerlinovoApplier(profile Profile, logger *slog.Logger) *BerlinovoApplier {
	return &BerlinovoApplier{profile: profile, logger: logger}
}

func (a *BerlinovoApplier) Name() string { return "berlinovo" }

func (a *BerlinovoApplier) CanApply(l model.Listing) bool {
	return strings.HasPrefix(l.ExternalID, berlinovoURLPrefix)
}

// Exclusive is true: one browser session at a time.
func (a *BerlinovoApplier) Exclusive() bool { return true }

// Apply drives a headless Chrome through the listing's contact form.
func (a *BerlinovoApplier) Apply(ctx context.Context, l model.Listing) model.ApplyResult {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	if bin := findChromeBinary(); bin != "" {
		opts = append(opts, chromedp.ExecPath(bin))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx, chromedp.WithLogf(func(string, ...interface{}) {}))
	defer cancelBrowser()

	var confirmation string
	err := chromedp.Run(browserCtx,
		chromedp.Navigate(l.ExternalID),
		chromedp.WaitVisible(`form.contact-message-feedback-form, form[id^="contact-message"]`, chromedp.ByQuery),
		chromedp.SendKeys(`input[name="field_first_name[0][value]"]`, a.profile.FirstName, chromedp.ByQuery),
		chromedp.SendKeys(`input[name="field_last_name[0][value]"]`, a.profile.LastName, chromedp.ByQuery),
		chromedp.SendKeys(`input[name="mail"]`, a.profile.Email, chromedp.ByQuery),
		chromedp.SendKeys(`input[name="field_phone[0][value]"]`, a.profile.Phone, chromedp.ByQuery),
		chromedp.SendKeys(`textarea[name="message[0][value]"]`, a.message(l), chromedp.ByQuery),
		chromedp.Click(`input[name="field_data_protection[value]"]`, chromedp.ByQuery),
		chromedp.Click(`form input[type="submit"], form button[type="submit"]`, chromedp.ByQuery),
		chromedp.WaitVisible(`.messages--status, .messages__wrapper`, chromedp.ByQuery),
		chromedp.Text(`.messages--status, .messages__wrapper`, &confirmation, chromedp.ByQuery),
	)
	if err != nil {
		if ctx.Err() != nil {
			return model.ApplyResult{Outcome: model.OutcomeRetryable, Message: fmt.Sprintf("browser session timed out: %v", err)}
		}
		return model.ApplyResult{Outcome: model.OutcomeRetryable, Message: fmt.Sprintf("browser session: %v", err)}
	}

	if !strings.Contains(confirmation, "Vielen Dank") && !strings.Contains(confirmation, "gesendet") {
		return model.ApplyResult{Outcome: model.OutcomeTerminal, Message: fmt.Sprintf("unexpected confirmation: %q", confirmation)}
	}
	return model.ApplyResult{Outcome: model.OutcomeSubmitted}
}

func (a *BerlinovoApplier) message(l model.Listing) string {
	return fmt.Sprintf(
		"Sehr geehrte Damen und Herren,\n\nhiermit bewerbe ich mich auf die Wohnung %s. Über eine Einladung zur Besichtigung würde ich mich sehr freuen.\n\nMit freundlichen Grüßen\n%s %s",
		l.Address, a.profile.FirstName, a.profile.LastName,
	)
}

// findChromeBinary probes the usual install locations.
func findChromeBinary() string {
	candidates := []string{
		"/usr/bin/google-chrome",
		"/usr/bin/google-chrome-stable",
		"/usr/bin/chromium",
		"/usr/bin/chromium-browser",
		"/snap/bin/chromium",
	}
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c
		}
	}
	return ""
}
