package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jmehdipour/wx-ci/internal/model"
	"github.com/tidwall/gjson"
)

const (
	MsgTypeMarkdown = "markdown"
	MsgTypeImage    = "image"
)

var ErrEmptyURL = errors.New("webhook url is empty")

// StatusError is returned when the robot answers with a non-2xx status or a
// non-zero errcode.
type StatusError struct {
	MsgType string
	Status  int
	ErrCode int64
	ErrMsg  string
}

func (e *StatusError) Error() string {
	if e.ErrCode != 0 {
		return fmt.Sprintf("work weixin %s message: status=%d errcode=%d errmsg=%s", e.MsgType, e.Status, e.ErrCode, e.ErrMsg)
	}
	return fmt.Sprintf("work weixin %s message: status=%d", e.MsgType, e.Status)
}

type markdownBody struct {
	MsgType  string `json:"msgtype"`
	Markdown struct {
		Content string `json:"content"`
	} `json:"markdown"`
}

type imageBody struct {
	MsgType string            `json:"msgtype"`
	Image   model.InlineImage `json:"image"`
}

// WorkWeixin posts run envelopes to a Work Weixin group robot.
type WorkWeixin struct {
	url    string
	client *http.Client
}

func NewWorkWeixin(url string, timeout time.Duration) *WorkWeixin {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &WorkWeixin{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

// Send posts the markdown summary and then, for previews carrying an inline
// image, the image message. The image is not sent when the summary failed.
func (w *WorkWeixin) Send(ctx context.Context, env model.Envelope) error {
	if strings.TrimSpace(w.url) == "" {
		return ErrEmptyURL
	}

	md := markdownBody{MsgType: MsgTypeMarkdown}
	md.Markdown.Content = MarkdownContent(env)
	if err := w.post(ctx, MsgTypeMarkdown, md); err != nil {
		return err
	}

	if env.Type != model.RunTypePreview {
		return nil
	}

	img, ok := env.Image.(model.InlineImage)
	if !ok {
		return nil
	}

	return w.post(ctx, MsgTypeImage, imageBody{MsgType: MsgTypeImage, Image: img})
}

// MarkdownContent renders the bold title followed by one "name: value" line
// per remote field. A hosted image adds a trailing image link.
func MarkdownContent(env model.Envelope) string {
	var sb strings.Builder
	sb.WriteString("**" + env.Title() + "**")

	lines := make([]string, 0, len(env.Info))
	for _, f := range env.Info.Remote() {
		lines = append(lines, f.Name+": "+f.Value)
	}
	sb.WriteString("\n")
	sb.WriteString(strings.Join(lines, "\n"))

	if ref, ok := env.Image.(model.HostedImageRef); ok && env.Type == model.RunTypePreview && ref.URL != "" {
		sb.WriteString("\n![预览二维码](" + ref.URL + ")")
	}

	return sb.String()
}

func (w *WorkWeixin) post(ctx context.Context, msgType string, body any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal %s message: %w", msgType, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(b))
	if err != nil {
		return fmt.Errorf("create %s request: %w", msgType, err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("send %s message: %w", msgType, err)
	}
	defer res.Body.Close()

	if res.StatusCode/100 != 2 {
		return &StatusError{MsgType: msgType, Status: res.StatusCode}
	}

	// the robot answers 200 with {"errcode":..,"errmsg":..}
	raw, _ := io.ReadAll(io.LimitReader(res.Body, 64<<10))
	if gjson.ValidBytes(raw) {
		if code := gjson.GetBytes(raw, "errcode"); code.Exists() && code.Int() != 0 {
			return &StatusError{
				MsgType: msgType,
				Status:  res.StatusCode,
				ErrCode: code.Int(),
				ErrMsg:  gjson.GetBytes(raw, "errmsg").String(),
			}
		}
	}

	return nil
}
