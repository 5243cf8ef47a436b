package cmd

import (
	"context"
	"fmt"

	"github.com/jmehdipour/wx-ci/internal/model"
	"github.com/jmehdipour/wx-ci/internal/publish"
	"github.com/jmehdipour/wx-ci/internal/sdk"
	"github.com/spf13/cobra"
)

var uploadFlags runFlags

var uploadCmd = &cobra.Command{
	Use:   "upload",
	Short: "Upload a mini-program version",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := runUpload(cmd.Context(), &uploadFlags); err != nil {
			return fmt.Errorf("上传失败: %w", err)
		}
		return nil
	},
}

func init() {
	uploadFlags.bind(uploadCmd)
}

func runUpload(ctx context.Context, f *runFlags) error {
	r, err := newRun(model.RunTypeUpload, f)
	if err != nil {
		return err
	}

	if err := r.prepare(ctx); err != nil {
		r.finish(publish.Result{State: model.StateAborted}, err)
		return err
	}

	err = r.runner().Upload(ctx, sdk.UploadOptions{
		Project:     r.project(),
		Version:     f.version,
		Description: f.description,
	})
	if err != nil {
		r.finish(publish.Result{State: model.StateAborted}, err)
		return err
	}
	r.spin.Stop()

	res, err := r.publisher().Upload(ctx, publish.UploadRequest{Info: r.info(), Title: "上传成功"})
	r.finish(res, err)
	return err
}
