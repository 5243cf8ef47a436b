package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/briandowns/spinner"
	"github.com/jmehdipour/wx-ci/internal/config"
	"github.com/jmehdipour/wx-ci/internal/db"
	"github.com/jmehdipour/wx-ci/internal/envfacts"
	"github.com/jmehdipour/wx-ci/internal/hooks"
	"github.com/jmehdipour/wx-ci/internal/kafka"
	"github.com/jmehdipour/wx-ci/internal/logger"
	"github.com/jmehdipour/wx-ci/internal/metrics"
	"github.com/jmehdipour/wx-ci/internal/model"
	"github.com/jmehdipour/wx-ci/internal/publish"
	"github.com/jmehdipour/wx-ci/internal/repository"
	"github.com/jmehdipour/wx-ci/internal/sdk"
	"github.com/jmehdipour/wx-ci/internal/uploader"
	"github.com/jmehdipour/wx-ci/internal/util"
	"github.com/jmehdipour/wx-ci/internal/webhook"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const (
	defaultPreviewURL   = "default"
	defaultPreviewScene = "1011"
)

var errNoPrivateKey = errors.New("缺少上传密钥路径")

// runFlags are shared by upload and preview; url and scene are preview only.
type runFlags struct {
	env         string
	mode        string
	version     string
	description string
	privateKey  string
	url         string
	scene       string
}

func (f *runFlags) bind(cmd *cobra.Command) {
	fl := cmd.Flags()
	fl.StringVarP(&f.env, "env", "e", "", "target environment (required)")
	fl.StringVarP(&f.mode, "mode", "m", "default", "situation mode")
	fl.StringVarP(&f.version, "version", "v", "", "version number (required)")
	fl.StringVarP(&f.description, "description", "d", "", "version description")
	fl.StringVarP(&f.privateKey, "private-key", "k", "", "path of the upload private key")
	_ = cmd.MarkFlagRequired("env")
	_ = cmd.MarkFlagRequired("version")
}

// run carries one upload or preview invocation from config loading to the
// history record.
type run struct {
	rc    model.RunContext
	cfg   config.Config
	flags *runFlags
	facts envfacts.Facts
	log   *zap.Logger
	reg   *prometheus.Registry
	spin  *spinner.Spinner
}

// newRun allocates the action id, loads config and starts logging. Errors here
// happen before anything worth recording.
func newRun(typ model.RunType, f *runFlags) (*run, error) {
	r := &run{
		rc: model.RunContext{
			ActionID:  util.NewActionID(),
			Type:      typ,
			Env:       f.env,
			Mode:      f.mode,
			StartedAt: time.Now(),
		},
		flags: f,
		reg:   prometheus.NewRegistry(),
	}

	r.spin = spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(os.Stderr))
	r.spin.Suffix = fmt.Sprintf(" %s %s ...", typ, f.version)
	r.spin.Start()

	cfg, err := config.Load(cfgPath, f.env, f.mode)
	if err != nil {
		r.spin.Stop()
		return nil, fmt.Errorf("load config: %w", err)
	}
	r.cfg = cfg
	r.rc.ConfigPath = cfg.Path

	level := cfg.Log.Level
	if logLevel != "" {
		level = logLevel
	}
	logger.Init(level, cfg.Log.Encoding)
	r.log = logger.Log.With(zap.String("action_id", r.rc.ActionID), zap.String("type", typ.String()))

	metrics.MustRegister(r.reg)
	return r, nil
}

// prepare runs the prepare hook, collects CI facts and resolves paths.
func (r *run) prepare(ctx context.Context) error {
	cfgDir := filepath.Dir(r.cfg.Path)

	if r.cfg.Hooks.Prepare != "" {
		err := hooks.RunPrepare(ctx, r.cfg.ResolvePath(r.cfg.Hooks.Prepare), hooks.Globals{
			ActionID:  r.rc.ActionID,
			Env:       r.rc.Env,
			Mode:      r.rc.Mode,
			ConfigDir: cfgDir,
		}, r.log)
		if err != nil {
			return err
		}
	}

	r.rc.ProjectPath = r.cfg.ResolvePath(r.cfg.ProjectPath)

	key := r.flags.privateKey
	if key == "" {
		key = r.cfg.PrivateKeyPath
	}
	if key == "" {
		return errNoPrivateKey
	}
	r.rc.PrivateKeyPath = r.cfg.ResolvePath(key)
	if _, err := os.Stat(r.rc.PrivateKeyPath); err != nil {
		return fmt.Errorf("%w: %v", errNoPrivateKey, err)
	}

	r.facts = envfacts.Collect(ctx, envfacts.NewGit(r.rc.ProjectPath, envfacts.ExecRunner))

	if r.flags.description == "" {
		r.flags.description = fmt.Sprintf("%s by ci, %s, %s",
			r.rc.Type, r.facts.User, r.rc.StartedAt.Format("2006-01-02 15:04:05"))
	}
	if r.rc.Type == model.RunTypePreview {
		r.rc.OutputPath = filepath.Join(os.TempDir(), "wx-ci", r.rc.ActionID+".jpg")
	}

	r.log.Debug("run prepared",
		zap.String("project_path", r.rc.ProjectPath),
		zap.String("user", r.facts.User),
		zap.String("branch", r.facts.Branch),
		zap.String("commit", r.facts.CommitID),
	)
	return nil
}

func (r *run) runner() sdk.Runner {
	return sdk.NewCLI(r.cfg.SDK.Command, r.cfg.SDK.Robot, r.cfg.SDK.Timeout)
}

func (r *run) project() sdk.Project {
	return sdk.Project{
		AppID:          r.cfg.AppID,
		ProjectPath:    r.rc.ProjectPath,
		PrivateKeyPath: r.rc.PrivateKeyPath,
	}
}

// info is the labeled summary shared by the terminal and the webhook.
func (r *run) info() model.Info {
	info := model.Info{
		{Name: "操作ID", Alias: "actionId", Value: r.rc.ActionID},
		{Name: "操作人", Alias: "username", Value: r.facts.User},
		{Name: "代码分支", Alias: "branch", Value: r.facts.Branch},
		{Name: "最新提交ID", Alias: "commitId", Value: r.facts.CommitID},
		{Name: "最新提交信息", Alias: "commitMessage", Value: r.facts.CommitMessage},
		{Name: "应用ID", Alias: "appId", Value: r.cfg.AppID},
		{Name: "版本号", Alias: "version", Value: r.flags.version},
		{Name: "版本描述", Alias: "description", Value: r.flags.description},
		{Name: "环境", Alias: "env", Value: r.rc.Env},
		{Name: "情景模式", Alias: "mode", Value: r.rc.Mode},
	}
	if r.rc.Type == model.RunTypePreview {
		info = append(info,
			model.Field{Name: "预览页面", Alias: "url", Value: orDefault(r.flags.url, defaultPreviewURL)},
			model.Field{Name: "预览场景", Alias: "scene", Value: orDefault(r.flags.scene, defaultPreviewScene)},
		)
	}
	info = append(info,
		model.Field{Name: "配置路径", Alias: "configPath", Value: r.rc.ConfigPath, Local: true},
		model.Field{Name: "项目路径", Alias: "projectPath", Value: r.rc.ProjectPath, Local: true},
	)
	if r.rc.Type == model.RunTypePreview {
		info = append(info, model.Field{Name: "二维码临时保存路径", Alias: "outputPath", Value: r.rc.OutputPath, Local: true})
	}
	return info
}

// publisher wires the webhook and, for previews, the optional image host.
func (r *run) publisher() *publish.Publisher {
	var notifier publish.Notifier
	if r.cfg.Webhook.WorkWeixin != "" {
		notifier = webhook.NewWorkWeixin(r.cfg.Webhook.WorkWeixin, r.cfg.Webhook.Timeout)
	}

	var up publish.ImageUploader
	if q := r.cfg.QRCodeUpload; r.rc.Type == model.RunTypePreview && q.Endpoint != "" {
		var u uploader.Uploader = uploader.NewHTTP(uploader.HTTPConfig{
			Endpoint: q.Endpoint,
			Field:    q.Field,
			FileName: q.FileName,
			URLPath:  q.URLPath,
			Headers:  q.Headers,
			Timeout:  q.Timeout,
		})
		if r.cfg.Redis.Addr != "" {
			rds, err := db.NewRedisClient(r.cfg.RedisOpts())
			if err != nil {
				r.log.Warn("redis unavailable, upload cache disabled", zap.Error(err))
			} else {
				u = uploader.NewCached(u, rds, q.CacheTTL, r.log)
			}
		}
		up = u
	}

	return publish.New(os.Stdout, notifier, up, r.log)
}

// finish records the run everywhere it is configured. Every leg is best
// effort; none of them changes the command outcome.
func (r *run) finish(res publish.Result, runErr error) {
	r.spin.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	rec := model.RunRecord{
		ActionID:    r.rc.ActionID,
		Type:        r.rc.Type,
		AppID:       r.cfg.AppID,
		Version:     r.flags.version,
		Description: r.flags.description,
		Env:         r.rc.Env,
		Mode:        r.rc.Mode,
		User:        r.facts.User,
		Branch:      r.facts.Branch,
		CommitID:    r.facts.CommitID,
		State:       res.State,
		StartedAt:   r.rc.StartedAt,
		FinishedAt:  time.Now(),
	}
	if runErr != nil {
		rec.State = model.StateAborted
		rec.Error = runErr.Error()
	}
	if res.NotifyErr != nil {
		rec.NotifyError = res.NotifyErr.Error()
	}

	metrics.RunsTotal.WithLabelValues(rec.Type.String(), rec.State.String()).Inc()
	metrics.RunDuration.WithLabelValues(rec.Type.String()).Observe(rec.FinishedAt.Sub(rec.StartedAt).Seconds())

	if err := r.saveHistory(ctx, rec); err != nil {
		r.log.Warn("save run history failed", zap.Error(err))
	}
	if err := r.publishEvent(ctx, rec); err != nil {
		r.log.Warn("publish run event failed", zap.Error(err))
	}
	err := metrics.Push(ctx, r.cfg.Metrics.PushgatewayURL, r.cfg.Metrics.Job, r.reg, map[string]string{
		"app_id": r.cfg.AppID,
		"env":    r.rc.Env,
	})
	if err != nil {
		r.log.Warn("push metrics failed", zap.Error(err))
	}

	r.log.Info("run finished", zap.String("state", rec.State.String()), zap.Duration("took", rec.FinishedAt.Sub(rec.StartedAt)))
	_ = r.log.Sync()
}

func (r *run) saveHistory(ctx context.Context, rec model.RunRecord) error {
	if r.cfg.History.Driver == "" {
		return nil
	}
	dbx, err := db.Open(r.cfg.HistoryOpts())
	if err != nil {
		return fmt.Errorf("%s connect: %w", r.cfg.History.Driver, err)
	}
	defer dbx.Close()

	repo := repository.NewRunsRepository(dbx)
	if r.cfg.History.Driver == "sqlite" {
		if err := repo.Migrate(ctx); err != nil {
			return err
		}
	}
	return repo.Insert(ctx, rec)
}

func (r *run) publishEvent(ctx context.Context, rec model.RunRecord) error {
	kc := r.cfg.KafkaOpts()
	if !kc.Enabled() {
		return nil
	}
	p, err := kafka.NewProducerFromConfig(kc)
	if err != nil {
		return err
	}
	defer p.Close()
	return p.PublishRun(ctx, rec)
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
