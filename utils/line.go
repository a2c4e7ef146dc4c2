package utils

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/multierr"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/cppla/schoolgate/config"
	"github.com/cppla/schoolgate/models"
)

// LineNotifier pushes entry/exit messages to guardians through the LINE Messaging API.
// The channel access token is issued with the client-credentials grant and cached by oauth2.
type LineNotifier struct {
	client   *http.Client
	pushURL  string
	entryTpl string
	exitTpl  string
	loc      *time.Location
}

// NewLineNotifier returns nil when the channel is not configured.
func NewLineNotifier(cfg config.AppConfig, loc *time.Location) *LineNotifier {
	if cfg.LineChannelID == "" || cfg.LineChannelSecret == "" {
		return nil
	}
	base := strings.TrimRight(cfg.LineAPIBase, "/")
	cc := clientcredentials.Config{
		ClientID:     cfg.LineChannelID,
		ClientSecret: cfg.LineChannelSecret,
		TokenURL:     base + "/v2/oauth/accessToken",
		AuthStyle:    oauth2.AuthStyleInParams,
	}
	httpClient := &http.Client{Timeout: 10 * time.Second}
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, httpClient)
	if loc == nil {
		loc = time.UTC
	}
	return &LineNotifier{
		client:   cc.Client(ctx),
		pushURL:  base + "/v2/bot/message/push",
		entryTpl: cfg.LineEntryTemplate,
		exitTpl:  cfg.LineExitTemplate,
		loc:      loc,
	}
}

type linePush struct {
	To       string        `json:"to"`
	Messages []lineMessage `json:"messages"`
}

type lineMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// NotifyGuardians sends one push per guardian. Every guardian is attempted; failures are combined.
func (n *LineNotifier) NotifyGuardians(ctx context.Context, ind models.Individual, guardians []models.Guardian, eventType string, at time.Time) error {
	text := n.render(ind, eventType, at)
	if text == "" {
		return nil
	}
	var errs error
	for _, g := range guardians {
		if g.LineUserID == "" {
			continue
		}
		if err := n.push(ctx, g.LineUserID, text); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("guardian %d: %w", g.ID, err))
		}
	}
	return errs
}

func (n *LineNotifier) render(ind models.Individual, eventType string, at time.Time) string {
	var tpl string
	switch eventType {
	case models.EventEntry:
		tpl = n.entryTpl
	case models.EventExit:
		tpl = n.exitTpl
	default:
		return ""
	}
	local := at.In(n.loc)
	return strings.NewReplacer(
		"{name}", ind.Name,
		"{time}", local.Format("15:04"),
		"{date}", local.Format("2006-01-02"),
		"{points}", fmt.Sprint(ind.CurrentPoints),
	).Replace(tpl)
}

func (n *LineNotifier) push(ctx context.Context, to, text string) error {
	body, err := json.Marshal(linePush{To: to, Messages: []lineMessage{{Type: "text", Text: text}}})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.pushURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("line push status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil
}
