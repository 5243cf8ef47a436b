package publish

import (
	"context"
	"crypto/md5"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/jmehdipour/wx-ci/internal/barcode"
	"github.com/jmehdipour/wx-ci/internal/metrics"
	"github.com/jmehdipour/wx-ci/internal/model"
	"go.uber.org/zap"
)

// Notifier delivers an envelope to a chat channel.
type Notifier interface {
	Send(ctx context.Context, env model.Envelope) error
}

// ImageUploader hosts the artifact somewhere and returns a reference to it,
// typically a URL.
type ImageUploader interface {
	Upload(ctx context.Context, data []byte) (string, error)
}

// Publisher renders run results in the terminal and, when a Notifier is set,
// in a chat webhook. A nil Notifier means no webhook is configured.
type Publisher struct {
	Out      io.Writer
	Notifier Notifier
	Uploader ImageUploader
	Logger   *zap.Logger
}

type PreviewRequest struct {
	ArtifactPath string
	Info         model.Info
	Title        string // terminal headline, e.g. "预览成功"
}

type UploadRequest struct {
	Info  model.Info
	Title string
}

type Result struct {
	Payload   barcode.Payload // zero for uploads
	State     model.RunState
	Notified  bool
	NotifyErr error // *NotificationError, never returned as the call error
}

func New(out io.Writer, notifier Notifier, uploader ImageUploader, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{Out: out, Notifier: notifier, Uploader: uploader, Logger: logger}
}

// Preview decodes the artifact, renders it, then notifies. Only a read or
// decode failure is returned as an error; notification failures end up in
// Result.NotifyErr.
func (p *Publisher) Preview(ctx context.Context, req PreviewRequest) (Result, error) {
	res := Result{State: model.StateArtifactGenerated}

	payload, err := barcode.DecodeFile(req.ArtifactPath)
	if err != nil {
		res.State = model.StateAborted
		return res, fmt.Errorf("decode artifact %s: %w", req.ArtifactPath, err)
	}
	res.Payload = payload
	res.State = model.StateDecoded

	barcode.Render(p.out(), payload.Text)
	fmt.Fprintln(p.out())
	p.summary(req.Title, req.Info)
	res.State = model.StateRendered

	if p.Notifier == nil {
		metrics.NotificationsTotal.WithLabelValues(model.RunTypePreview.String(), "skipped").Inc()
		res.State = model.StateDone
		return res, nil
	}

	image, err := p.artifactImage(ctx, req.ArtifactPath)
	if err == nil {
		err = p.Notify(ctx, model.PreviewEnvelope(req.Info, image))
	} else {
		err = p.notificationFailed(model.RunTypePreview, err)
	}
	p.finish(&res, err)

	return res, nil
}

// Upload prints the upload summary and notifies. There is no artifact and no
// image leg.
func (p *Publisher) Upload(ctx context.Context, req UploadRequest) (Result, error) {
	p.summary(req.Title, req.Info)
	res := Result{State: model.StateRendered}

	if p.Notifier == nil {
		metrics.NotificationsTotal.WithLabelValues(model.RunTypeUpload.String(), "skipped").Inc()
		res.State = model.StateDone
		return res, nil
	}

	p.finish(&res, p.Notify(ctx, model.UploadEnvelope(req.Info)))

	return res, nil
}

// Notify runs the notification leg alone. It can be retried without touching
// the artifact again.
func (p *Publisher) Notify(ctx context.Context, env model.Envelope) error {
	if p.Notifier == nil {
		return nil
	}
	if err := p.Notifier.Send(ctx, env); err != nil {
		return p.notificationFailed(env.Type, err)
	}
	metrics.NotificationsTotal.WithLabelValues(env.Type.String(), "sent").Inc()
	return nil
}

func (p *Publisher) notificationFailed(t model.RunType, err error) error {
	metrics.NotificationsTotal.WithLabelValues(t.String(), "failed").Inc()
	nerr := &NotificationError{Type: t, Err: err}
	p.Logger.Warn("企业微信通知发送失败", zap.String("type", t.String()), zap.Error(nerr))
	return nerr
}

func (p *Publisher) finish(res *Result, notifyErr error) {
	if notifyErr != nil {
		res.NotifyErr = notifyErr
		res.State = model.StateDoneWithWarning
		return
	}
	res.Notified = true
	res.State = model.StateDone
}

// artifactImage reads the artifact again for the webhook leg only; a failure
// here is a notification failure, never a decode failure.
func (p *Publisher) artifactImage(ctx context.Context, path string) (model.Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read artifact: %w", err)
	}
	image, err := p.imageOf(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("upload qr code: %w", err)
	}
	return image, nil
}

func (p *Publisher) imageOf(ctx context.Context, data []byte) (model.Image, error) {
	if p.Uploader != nil {
		url, err := p.Uploader.Upload(ctx, data)
		if err != nil {
			return nil, err
		}
		return model.HostedImageRef{URL: url}, nil
	}
	return InlineImageOf(data), nil
}

// InlineImageOf encodes data the way Work Weixin image messages expect.
func InlineImageOf(data []byte) model.InlineImage {
	sum := md5.Sum(data)
	return model.InlineImage{
		Base64: base64.StdEncoding.EncodeToString(data),
		MD5:    hex.EncodeToString(sum[:]),
	}
}

func (p *Publisher) out() io.Writer {
	if p.Out == nil {
		return io.Discard
	}
	return p.Out
}
