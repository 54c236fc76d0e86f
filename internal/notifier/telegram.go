package notifier

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/wohnblick/wohnblick/internal/model"
)

// Ensure TelegramNotifier implements model.Notifier.
var _ model.Notifier = (*TelegramNotifier)(nil)

const telegramAPIBase = "https://api.telegram.org"

// TelegramNotifier sends listing alerts to a Telegram chat via the Bot API.
type TelegramNotifier struct {
	apiURL     string // overridable in tests
	botToken   string
	chatID     string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewTelegramNotifier returns a notifier that posts each listing as a
// MarkdownV2 message to the configured chat.
func NewTelegramNotifier(botToken, chatID string, httpClient *http.Client, logger *slog.Logger) *TelegramNotifier {
	return &TelegramNotifier{
		apiURL:     telegramAPIBase,
		botToken:   botToken,
		chatID:     chatID,
		httpClient: httpClient,
		logger:     logger,
	}
}

// Notify sends one message for the given listing.
func (t *TelegramNotifier) Notify(l model.Listing) error {
	if err := t.sendMessage(buildListingMessage(l)); err != nil {
		return fmt.Errorf("telegram notify for %s: %w", l.Key(), err)
	}
	t.logger.Info("telegram message sent", "source", l.Source, "address", l.Address)
	return nil
}

// Send posts a plain status message to the chat.
func (t *TelegramNotifier) Send(text string) error {
	return t.sendMessage(EscapeMarkdownV2(text))
}

type telegramRequest struct {
	ChatID                string `json:"chat_id"`
	Text                  string `json:"text"`
	ParseMode             string `json:"parse_mode"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview"`
}

type telegramResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
	Parameters  struct {
		RetryAfter int `json:"retry_after"`
	} `json:"parameters"`
}

func (t *TelegramNotifier) sendMessage(text string) error {
	body, err := json.Marshal(telegramRequest{
		ChatID:                t.chatID,
		Text:                  text,
		ParseMode:             "MarkdownV2",
		DisableWebPagePreview: false,
	})
	if err != nil {
		return fmt.Errorf("marshal telegram payload: %w", err)
	}

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", t.apiURL, t.botToken)

	resp, err := t.httpClient.Post(endpoint, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("post to telegram: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		var tr telegramResponse
		_ = json.NewDecoder(resp.Body).Decode(&tr)
		secs := tr.Parameters.RetryAfter
		if secs <= 0 {
			secs = 1
		}
		t.logger.Warn("telegram rate limited, retrying", "retry_after_secs", secs)
		time.Sleep(time.Duration(secs) * time.Second)

		resp2, err := t.httpClient.Post(endpoint, "application/json", bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("post to telegram (retry): %w", err)
		}
		defer resp2.Body.Close()

		if resp2.StatusCode != http.StatusOK {
			return fmt.Errorf("telegram returned %d on retry", resp2.StatusCode)
		}
		return nil
	}

	if resp.StatusCode != http.StatusOK {
		var tr telegramResponse
		_ = json.NewDecoder(resp.Body).Decode(&tr)
		if tr.Description != "" {
			return fmt.Errorf("telegram returned %d: %s", resp.StatusCode, tr.Description)
		}
		return fmt.Errorf("telegram returned %d", resp.StatusCode)
	}
	return nil
}

// markdownV2Escaper escapes the characters the MarkdownV2 parse mode reserves.
var markdownV2Escaper = strings.NewReplacer(
	"_", "\\_", "*", "\\*", "[", "\\[", "]", "\\]", "(", "\\(", ")", "\\)",
	"~", "\\~", "`", "\\`", ">", "\\>", "#", "\\#", "+", "\\+", "-", "\\-",
	"=", "\\=", "|", "\\|", "{", "\\{", "}", "\\}", ".", "\\.", "!", "\\!",
)

// EscapeMarkdownV2 escapes text for safe inclusion in a MarkdownV2 message.
func EscapeMarkdownV2(s string) string {
	return markdownV2Escaper.Replace(s)
}

func buildListingMessage(l model.Listing) string {
	var sb strings.Builder

	sb.WriteString("🏠 *Neue Wohnung*\n\n")
	sb.WriteString("*" + EscapeMarkdownV2(l.Address) + "*\n")
	if l.Borough != "" {
		sb.WriteString(EscapeMarkdownV2(l.Borough) + "\n")
	}
	sb.WriteString("\n")

	if l.PriceTotal != nil {
		sb.WriteString("Warmmiete: " + EscapeMarkdownV2(fmt.Sprintf("%.2f €", *l.PriceTotal)) + "\n")
	}
	if l.PriceCold != nil {
		sb.WriteString("Kaltmiete: " + EscapeMarkdownV2(fmt.Sprintf("%.2f €", *l.PriceCold)) + "\n")
	}
	if l.SizeSqm != nil {
		sb.WriteString("Fläche: " + EscapeMarkdownV2(fmt.Sprintf("%.1f m²", *l.SizeSqm)) + "\n")
	}
	if l.Rooms != nil {
		sb.WriteString("Zimmer: " + EscapeMarkdownV2(fmt.Sprintf("%g", *l.Rooms)) + "\n")
	}
	switch l.WBS {
	case model.WBSRequired:
		sb.WriteString("WBS: erforderlich\n")
	case model.WBSNotRequired:
		sb.WriteString("WBS: nicht erforderlich\n")
	}

	sb.WriteString("\nQuelle: " + EscapeMarkdownV2(l.Source) + "\n")
	if u := l.URL(); u != "" {
		sb.WriteString("[Zum Angebot](" + u + ")\n")
	}
	if l.Address != "" {
		maps := "https://www.google.com/maps/search/?api=1&query=" + url.QueryEscape(l.Address)
		sb.WriteString("[Karte](" + maps + ")")
	}

	return sb.String()
}

// SendTestMessage sends a dummy listing notification to verify the integration.
func SendTestMessage(n model.Notifier) error {
	price := 850.0
	size := 62.5
	rooms := 2.0
	return n.Notify(model.Listing{
		Source:     "test",
		ExternalID: "https://example.com/wohnung/test-001",
		Address:    "Teststraße 1, 10115 Berlin",
		Borough:    "Mitte",
		PriceTotal: &price,
		SizeSqm:    &size,
		Rooms:      &rooms,
		WBS:        model.WBSNotRequired,
		FirstSeen:  time.Now(),
	})
}
